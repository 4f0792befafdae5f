package cache

import (
	"context"
	"sync"
	"time"
)

// BarcodeCache maps a scanned code (barcode or QR code) to a product id
// within one pharmacy. A miss is ("", false, nil).
type BarcodeCache interface {
	Get(ctx context.Context, pharmacyID string, code string) (string, bool, error)
	Set(ctx context.Context, pharmacyID string, code string, productID string) error
	Delete(ctx context.Context, pharmacyID string, code string) error
}

type NoopBarcodeCache struct{}

func (NoopBarcodeCache) Get(_ context.Context, _ string, _ string) (string, bool, error) {
	return "", false, nil
}

func (NoopBarcodeCache) Set(_ context.Context, _ string, _ string, _ string) error {
	return nil
}

func (NoopBarcodeCache) Delete(_ context.Context, _ string, _ string) error {
	return nil
}

// MemoryBarcodeCache keeps entries in process with an optional TTL.
type MemoryBarcodeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

type memoryEntry struct {
	productID string
	expiresAt time.Time
}

func NewMemoryBarcodeCache(ttl time.Duration) *MemoryBarcodeCache {
	return &MemoryBarcodeCache{ttl: ttl, entries: make(map[string]memoryEntry)}
}

func (c *MemoryBarcodeCache) Get(_ context.Context, pharmacyID string, code string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[barcodeKey(pharmacyID, code)]
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(c.entries, barcodeKey(pharmacyID, code))
		return "", false, nil
	}
	return entry.productID, true, nil
}

func (c *MemoryBarcodeCache) Set(_ context.Context, pharmacyID string, code string, productID string) error {
	entry := memoryEntry{productID: productID}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[barcodeKey(pharmacyID, code)] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryBarcodeCache) Delete(_ context.Context, pharmacyID string, code string) error {
	c.mu.Lock()
	delete(c.entries, barcodeKey(pharmacyID, code))
	c.mu.Unlock()
	return nil
}

func barcodeKey(pharmacyID string, code string) string {
	return "pharmapos:barcode:" + pharmacyID + ":" + code
}
