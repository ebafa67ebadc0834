package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"servispos/backend/internal/cache"
	"servispos/backend/internal/domain"
	"servispos/backend/internal/report"
	"servispos/backend/internal/service"
	"servispos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")
	t.Setenv("SEED_TECHNICIAN_PASSWORD", "teknisi123")
	t.Setenv("SEED_CASHIER_PASSWORD", "kasir123")

	repo := memory.NewSeeded(1)
	reports := report.NewEngine(repo, cache.NoopSalesCache{}, time.Second, 1)
	svc := service.New(repo, reports, 5)
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, svc)

	return New(svc, auth, "*").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s failed: %d %s", username, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestRepairJobLifecycleOverHTTP(t *testing.T) {
	handler := newTestAPI(t)
	adminToken := login(t, handler, "admin", "admin123")
	technicianToken := login(t, handler, "teknisi", "teknisi123")
	cashierToken := login(t, handler, "kasir", "kasir123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", adminToken, domain.ProductCreateRequest{
		Name:       "LCD Infinix",
		Price:      400000,
		Stock:      4,
		CategoryID: 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: %d %s", rec.Code, rec.Body.String())
	}
	var product domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&product); err != nil {
		t.Fatalf("decode product: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/transactions", technicianToken, domain.TransactionCreateRequest{
		Items:             []domain.TransactionItemRequest{{ProductID: product.ID, Quantity: 1}},
		Services:          []domain.ServiceItem{{Description: "Ganti LCD", Price: 100000}},
		CustomerName:      "Budi",
		PhoneType:         "Infinix Note 12",
		DamageDescription: "LCD pecah",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction: %d %s", rec.Code, rec.Body.String())
	}
	var tx domain.Transaction
	if err := json.NewDecoder(rec.Body).Decode(&tx); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if tx.Total != 500000 || tx.Status != domain.TxStatusPending {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	completePath := fmt.Sprintf("/api/v1/transactions/%d/complete", tx.ID)

	rec = doJSON(t, handler, http.MethodPost, completePath, technicianToken, domain.TransactionCompleteRequest{AmountPaid: 500000})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected technician completion to be forbidden, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, completePath, cashierToken, domain.TransactionCompleteRequest{AmountPaid: 600000})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete transaction: %d %s", rec.Code, rec.Body.String())
	}
	var completed domain.Transaction
	if err := json.NewDecoder(rec.Body).Decode(&completed); err != nil {
		t.Fatalf("decode completed transaction: %v", err)
	}
	if completed.Status != domain.TxStatusCompleted || completed.Change == nil || *completed.Change != 100000 {
		t.Fatalf("unexpected completed transaction: %+v", completed)
	}

	rec = doJSON(t, handler, http.MethodPost, completePath, cashierToken, domain.TransactionCompleteRequest{AmountPaid: 600000})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected second completion to conflict, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", product.ID), cashierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get product: %d", rec.Code)
	}
	var after domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&after); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if after.Stock != 3 {
		t.Fatalf("expected stock 3 after completion, got %d", after.Stock)
	}
}

func TestUnderpaymentReturnsBadRequest(t *testing.T) {
	handler := newTestAPI(t)
	adminToken := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/transactions", adminToken, domain.TransactionCreateRequest{
		Services: []domain.ServiceItem{{Description: "Flash Ulang", Price: 150000}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction: %d %s", rec.Code, rec.Body.String())
	}
	var tx domain.Transaction
	if err := json.NewDecoder(rec.Body).Decode(&tx); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/transactions/%d/complete", tx.ID), adminToken,
		domain.TransactionCompleteRequest{AmountPaid: 100000})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on underpayment, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestUserAdministrationIsAdminOnly(t *testing.T) {
	handler := newTestAPI(t)
	cashierToken := login(t, handler, "kasir", "kasir123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/users", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	adminToken := login(t, handler, "admin", "admin123")
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/users", adminToken, domain.UserCreateRequest{
		Name:     "Teknisi B",
		Username: "teknisib",
		Password: "teknisi-rahasia",
		Role:     domain.RoleTechnician,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: %d %s", rec.Code, rec.Body.String())
	}

	if token := login(t, handler, "teknisib", "teknisi-rahasia"); token == "" {
		t.Fatalf("expected new technician to log in")
	}
}

func TestAdjustStockEndpoint(t *testing.T) {
	handler := newTestAPI(t)
	adminToken := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", adminToken, domain.ProductCreateRequest{
		Name:       "Baterai Realme",
		Price:      200000,
		Stock:      10,
		CategoryID: 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: %d %s", rec.Code, rec.Body.String())
	}
	var product domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&product); err != nil {
		t.Fatalf("decode product: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/products/%d/adjust-stock", product.ID), adminToken,
		domain.StockAdjustRequest{Quantity: 4, Reason: "hilang"})
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust stock: %d %s", rec.Code, rec.Body.String())
	}
	var adjusted domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&adjusted); err != nil {
		t.Fatalf("decode adjusted product: %v", err)
	}
	if adjusted.Stock != 6 {
		t.Fatalf("expected stock 6, got %d", adjusted.Stock)
	}

	cashierToken := login(t, handler, "kasir", "kasir123")
	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/products/%d/adjust-stock", product.ID), cashierToken,
		domain.StockAdjustRequest{Quantity: 1})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier adjustment, got %d", rec.Code)
	}
}

func TestDashboardEndpoints(t *testing.T) {
	handler := newTestAPI(t)
	adminToken := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/dashboard/summary", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard summary: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/dashboard/sales-series?period=weekly", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sales series: %d %s", rec.Code, rec.Body.String())
	}
	var series domain.SalesSeriesResponse
	if err := json.NewDecoder(rec.Body).Decode(&series); err != nil {
		t.Fatalf("decode series: %v", err)
	}
	if series.Period != domain.PeriodWeekly || len(series.Buckets) != 6 {
		t.Fatalf("unexpected series: %+v", series)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/dashboard/sales-series?period=hourly", adminToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown period, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/sales?range=monthly", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sales report: %d %s", rec.Code, rec.Body.String())
	}

	cashierToken := login(t, handler, "kasir", "kasir123")
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/sales?range=monthly", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected cashier to be denied sales reports, got %d", rec.Code)
	}
}
