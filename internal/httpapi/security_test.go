package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pharmapos/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, http.MethodGet, "/healthz", "", nil)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := rec.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/v1/sales", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec = srv.do(t, http.MethodGet, "/api/v1/sales", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestTokensAreTenantScoped(t *testing.T) {
	srv := newTestServer(t)
	other, _, err := srv.auth.Sign(domain.Actor{UserID: "intruder", PharmacyID: "ph-other", Role: domain.RolePharmacist})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rec := srv.do(t, http.MethodPost, "/api/v1/sales", other, domain.CreateSaleRequest{
		Items: []domain.ItemRequest{{ProductID: "p-general", Quantity: 1}},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected other pharmacy to miss the product, got %d", rec.Code)
	}
	if got := srv.stock(t, "p-general"); got != 10 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	srv := newTestServer(t)
	veryLong := strings.Repeat("a", maxBodyBytes+1024)
	body := fmt.Sprintf(`{"patient_tc":"%s","prescription_no":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions/lookup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+srv.token(t, domain.RolePharmacist))
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", rec.Code)
	}
	list, _ := srv.repo.ListPrescriptions(context.Background(), testPharmacy)
	if len(list) != 0 {
		t.Fatalf("expected no prescription created, got %d", len(list))
	}
}

func TestServerErrorsHideDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErrorCode(rec, http.StatusInternalServerError, "INTERNAL", fmt.Errorf("pq: relation \"sales\" does not exist"))
	if strings.Contains(rec.Body.String(), "relation") {
		t.Fatalf("expected internal detail hidden, got %s", rec.Body.String())
	}
	if statusFor(domain.ErrStorageConflict) != http.StatusServiceUnavailable {
		t.Fatalf("expected storage conflict to map to 503")
	}
}
