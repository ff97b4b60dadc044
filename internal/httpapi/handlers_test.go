package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"boltline/backend/internal/cache"
	"boltline/backend/internal/service"
	"boltline/backend/internal/store/pack"
)

// newTestAPI builds a full API with a file-backed store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo, err := pack.LoadOrInit(t.TempDir())
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	svc := service.New(repo, cache.NoopInfoCache{}, time.Minute, nil)
	auth := NewAuthManager("test-secret-key", time.Hour, "admin123", "cashier123")

	return New(svc, auth, "*")
}

func loginAs(t *testing.T, api *API, username, password string) string {
	t.Helper()
	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", res.Code, res.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if body["access_token"] == "" {
		t.Fatalf("login response missing access_token")
	}
	return body["access_token"]
}

func doJSON(t *testing.T, api *API, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func healthyLabel(uplID string, piece int) map[string]any {
	return map[string]any{
		"upl_id":                 uplID,
		"kind":                   "sku",
		"sku":                    100,
		"piece":                  piece,
		"name":                   "Mineral water 1.5l",
		"retail_price_net":       1000,
		"vat":                    "27",
		"retail_price_gross":     1270,
		"procurement_net_price":  700,
		"depreciated":            false,
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	res := doJSON(t, api, http.MethodGet, "/healthz", "", nil)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestCartsRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/api/v1/carts", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/carts", "not-a-real-token", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bogus token, got %d", res.Code)
	}
}

// cartFromResponse decodes the {"cart": ...} envelope.
func cartFromResponse(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Cart map[string]any `json:"cart"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode cart envelope: %v", err)
	}
	if body.Cart == nil {
		t.Fatalf("response has no cart")
	}
	return body.Cart
}

func TestCartLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/carts", token, map[string]any{
		"owner_uid": 1, "store_id": 7, "created_by": 1,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("create cart: expected 201, got %d (%s)", res.Code, res.Body.String())
	}
	cartID, _ := cartFromResponse(t, res)["id"].(string)
	if cartID == "" {
		t.Fatalf("created cart has no id")
	}

	for _, uplID := range []string{"U1", "U2"} {
		res = doJSON(t, api, http.MethodPost, "/api/v1/carts/"+cartID+"/upl", token, healthyLabel(uplID, 1))
		if res.Code != http.StatusOK {
			t.Fatalf("add upl %s: expected 200, got %d (%s)", uplID, res.Code, res.Body.String())
		}
	}

	// Unsettled close is a business rejection, not a client error.
	res = doJSON(t, api, http.MethodPost, "/api/v1/carts/"+cartID+"/close", token, nil)
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("close unsettled: expected 422, got %d (%s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/carts/"+cartID+"/payments", token, map[string]any{
		"amount": 2540,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("add payment: expected 200, got %d (%s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/carts/"+cartID+"/close", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d (%s)", res.Code, res.Body.String())
	}
	var closed struct {
		Purchase map[string]any `json:"purchase"`
	}
	if err := json.NewDecoder(res.Body).Decode(&closed); err != nil {
		t.Fatalf("decode close envelope: %v", err)
	}
	if closed.Purchase["id"] != cartID {
		t.Fatalf("purchase id %v does not carry over the cart id %s", closed.Purchase["id"], cartID)
	}

	// The cart is gone, the purchase is readable under the same id.
	res = doJSON(t, api, http.MethodGet, "/api/v1/carts/"+cartID, token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("closed cart lookup: expected 404, got %d", res.Code)
	}
	res = doJSON(t, api, http.MethodGet, "/api/v1/purchases/"+cartID, token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("purchase lookup: expected 200, got %d (%s)", res.Code, res.Body.String())
	}
}

func TestCartAbandonOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/carts", token, map[string]any{
		"owner_uid": 1, "store_id": 7, "created_by": 1,
	})
	cartID, _ := cartFromResponse(t, res)["id"].(string)
	if cartID == "" {
		t.Fatalf("created cart has no id")
	}

	res = doJSON(t, api, http.MethodDelete, "/api/v1/carts/"+cartID, token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("abandon cart: expected 200, got %d (%s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/carts/"+cartID, token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("abandoned cart lookup: expected 404, got %d", res.Code)
	}
	res = doJSON(t, api, http.MethodDelete, "/api/v1/carts/"+cartID, token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("second abandon: expected 404, got %d", res.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/carts/not-a-uuid", token, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("malformed id: expected 400, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/carts/00000000-0000-0000-0000-00000000beef", token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("missing cart: expected 404, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/carts", token, map[string]any{
		"owner_uid": 1, "store_id": 7, "created_by": 1,
	})
	cartID, _ := cartFromResponse(t, res)["id"].(string)

	res = doJSON(t, api, http.MethodPost, "/api/v1/carts/"+cartID+"/upl", token, healthyLabel("U1", 1))
	if res.Code != http.StatusOK {
		t.Fatalf("add upl: got %d (%s)", res.Code, res.Body.String())
	}
	res = doJSON(t, api, http.MethodPost, "/api/v1/carts/"+cartID+"/upl", token, healthyLabel("U1", 1))
	if res.Code != http.StatusConflict {
		t.Fatalf("duplicate upl: expected 409, got %d (%s)", res.Code, res.Body.String())
	}
}

func TestCartBulkInfoStreamsNDJSON(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	ids := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		res := doJSON(t, api, http.MethodPost, "/api/v1/carts", token, map[string]any{
			"owner_uid": 1, "store_id": 7, "created_by": 1,
		})
		id, _ := cartFromResponse(t, res)["id"].(string)
		ids = append(ids, id)
	}

	res := doJSON(t, api, http.MethodPost, "/api/v1/carts/bulk-info", token, map[string]any{"ids": ids})
	if res.Code != http.StatusOK {
		t.Fatalf("bulk-info: expected 200, got %d (%s)", res.Code, res.Body.String())
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("expected ndjson content type, got %q", ct)
	}

	scanner := bufio.NewScanner(res.Body)
	var lines int
	for scanner.Scan() {
		var row map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("line %d is not valid json: %v", lines+1, err)
		}
		if row["cart_id"] != ids[lines] {
			t.Fatalf("line %d: expected cart %s, got %v", lines+1, ids[lines], row["cart_id"])
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 ndjson lines, got %d", lines)
	}

	// One malformed id rejects the whole batch before any row is written.
	res = doJSON(t, api, http.MethodPost, "/api/v1/carts/bulk-info", token, map[string]any{
		"ids": []string{ids[0], "junk"},
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("malformed batch: expected 400, got %d", res.Code)
	}
}

func TestPurchaseStatsValidatesDates(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/purchases/stats?from=2026-08-01&to=2026-09-01", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d (%s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/purchases/stats?from=bogus&to=2026-09-01", token, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("stats with bad date: expected 400, got %d", res.Code)
	}
}
