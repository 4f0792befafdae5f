package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"pharmapos/backend/internal/cache"
	"pharmapos/backend/internal/config"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store/memory"
	"pharmapos/backend/internal/store/sqlstore"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := map[string]config.Config{
		"short":       {Auth: config.AuthConfig{Secret: "short"}},
		"placeholder": {Auth: config.AuthConfig{Secret: "change-me-0123456789abcdef0123456789"}},
		"bad driver": {
			Auth:     config.AuthConfig{Secret: "0123456789abcdef0123456789abcdef"},
			Database: config.DatabaseConfig{Driver: "mysql", URL: "root@tcp(localhost)/pos"},
		},
	}
	for name, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("%s: expected config to be rejected", name)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{Auth: config.AuthConfig{Secret: "0123456789abcdef0123456789abcdef"}})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenRepositoryDefaultsToSeededMemory(t *testing.T) {
	repo, closeRepo, err := openRepository(context.Background(), config.Config{
		Engine: config.EngineConfig{SeedDemoData: true},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	defer closeRepo()

	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", repo)
	}
	products, err := repo.ListProducts(context.Background(), memory.DemoPharmacyID)
	if err != nil || len(products) == 0 {
		t.Fatalf("expected demo catalog, got %d products (err %v)", len(products), err)
	}
}

func TestOpenRepositoryUsesSQLiteWhenConfigured(t *testing.T) {
	repo, closeRepo, err := openRepository(context.Background(), config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", URL: ":memory:"},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { _ = closeRepo() })

	if _, ok := repo.(*sqlstore.Store); !ok {
		t.Fatalf("expected sql store, got %T", repo)
	}
	if _, err := repo.FindProduct(context.Background(), "ph-1", domain.ProductRef{ProductID: "missing"}); err == nil {
		t.Fatalf("expected empty migrated schema")
	}
}

func TestOpenBarcodeCacheFallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	codes, closeCodes := openBarcodeCache(ctx, config.Config{}, zap.NewNop())
	defer closeCodes()

	if _, ok := codes.(*cache.MemoryBarcodeCache); !ok {
		t.Fatalf("expected in-process cache without redis, got %T", codes)
	}
	if err := codes.Set(ctx, "ph1", "869", "prd-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if id, ok, _ := codes.Get(ctx, "ph1", "869"); !ok || id != "prd-1" {
		t.Fatalf("expected cached id, got %q ok=%v", id, ok)
	}
}
