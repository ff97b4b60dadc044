package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"boltline/backend/internal/domain"
	"boltline/backend/internal/service"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/carts", a.requireAuth(a.handleCarts, "cashier", "admin"))
	mux.HandleFunc("/api/v1/carts/", a.requireAuth(a.handleCartActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/purchases", a.requireAuth(a.handlePurchases, "cashier", "admin"))
	mux.HandleFunc("/api/v1/purchases/", a.requireAuth(a.handlePurchaseActions, "cashier", "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCarts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ids, err := a.service.CartIDs(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cart_ids": ids})
	case http.MethodPost:
		var req domain.CartNewRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		c, err := a.service.CartNew(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"cart": c})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCartActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/carts/"), "/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("cart id required"))
		return
	}

	if tail == "bulk-info" {
		a.handleCartBulkInfo(w, r)
		return
	}

	segments := strings.Split(tail, "/")
	cartID := segments[0]
	rest := segments[1:]
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			c, err := a.service.CartByID(ctx, cartID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"cart": c})
		case http.MethodDelete:
			if err := a.service.CartRemove(ctx, cartID); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"removed": cartID})
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	switch rest[0] {
	case "customer":
		if len(rest) != 1 {
			break
		}
		switch r.Method {
		case http.MethodPut:
			var req domain.CustomerRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			a.respondCart(w, func() (any, error) { return a.service.CartSetCustomer(ctx, cartID, req) })
		case http.MethodDelete:
			a.respondCart(w, func() (any, error) { return a.service.CartRemoveCustomer(ctx, cartID) })
		default:
			writeMethodNotAllowed(w)
		}
		return
	case "sku":
		a.handleCartSku(w, r, cartID, rest[1:])
		return
	case "upl":
		switch {
		case len(rest) == 1 && r.Method == http.MethodPost:
			var req domain.AddUplRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			a.respondCart(w, func() (any, error) { return a.service.CartAddUpl(ctx, cartID, req) })
		case len(rest) == 2 && r.Method == http.MethodDelete:
			a.respondCart(w, func() (any, error) { return a.service.CartRemoveUpl(ctx, cartID, rest[1]) })
		default:
			writeMethodNotAllowed(w)
		}
		return
	case "document":
		if len(rest) != 1 || r.Method != http.MethodPut {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.SetDocumentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.respondCart(w, func() (any, error) { return a.service.CartSetDocument(ctx, cartID, req) })
		return
	case "payment":
		if len(rest) != 1 || r.Method != http.MethodPut {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.SetPaymentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.respondCart(w, func() (any, error) { return a.service.CartSetPayment(ctx, cartID, req) })
		return
	case "payments":
		if len(rest) != 1 || r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.AddPaymentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.respondCart(w, func() (any, error) { return a.service.CartAddPayment(ctx, cartID, req) })
		return
	case "owner":
		if len(rest) != 1 || r.Method != http.MethodPut {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.SetOwnerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.respondCart(w, func() (any, error) { return a.service.CartSetOwner(ctx, cartID, req.OwnerUID) })
		return
	case "store":
		if len(rest) != 1 || r.Method != http.MethodPut {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.SetStoreRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.respondCart(w, func() (any, error) { return a.service.CartSetStore(ctx, cartID, req.StoreID) })
		return
	case "loyalty-card":
		if len(rest) != 1 {
			break
		}
		switch r.Method {
		case http.MethodPost:
			var req domain.LoyaltyCardRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			a.respondCart(w, func() (any, error) { return a.service.CartAddLoyaltyCard(ctx, cartID, req) })
		case http.MethodDelete:
			a.respondCart(w, func() (any, error) { return a.service.CartRemoveLoyaltyCard(ctx, cartID) })
		default:
			writeMethodNotAllowed(w)
		}
		return
	case "burn-points":
		if len(rest) != 1 || r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.BurnPointsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.respondCart(w, func() (any, error) { return a.service.CartBurnPoints(ctx, cartID, req) })
		return
	case "commitment":
		if len(rest) != 1 {
			break
		}
		switch r.Method {
		case http.MethodPost:
			var req domain.CommitmentRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			a.respondCart(w, func() (any, error) { return a.service.CartAddCommitment(ctx, cartID, req) })
		case http.MethodDelete:
			a.respondCart(w, func() (any, error) { return a.service.CartRemoveCommitment(ctx, cartID) })
		default:
			writeMethodNotAllowed(w)
		}
		return
	case "close":
		if len(rest) != 1 || r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		p, err := a.service.CartClose(ctx, cartID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purchase": p})
		return
	}

	writeError(w, http.StatusNotFound, errors.New("unknown cart action"))
}

func (a *API) handleCartSku(w http.ResponseWriter, r *http.Request, cartID string, rest []string) {
	ctx := r.Context()
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		var req domain.AddSkuRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.respondCart(w, func() (any, error) { return a.service.CartAddSku(ctx, cartID, req) })
	case len(rest) == 1 && r.Method == http.MethodDelete:
		sku, err := parseSku(rest[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.respondCart(w, func() (any, error) { return a.service.CartRemoveSku(ctx, cartID, sku) })
	case len(rest) == 2 && rest[1] == "piece" && r.Method == http.MethodPut:
		sku, err := parseSku(rest[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		var req domain.SetSkuPieceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.respondCart(w, func() (any, error) { return a.service.CartSetSkuPiece(ctx, cartID, sku, req.Piece) })
	default:
		writeMethodNotAllowed(w)
	}
}

func parseSku(raw string) (uint32, error) {
	sku, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, errors.New("malformed sku")
	}
	return uint32(sku), nil
}

// respondCart wraps the mutate-and-return-cart pattern shared by most cart
// endpoints.
func (a *API) respondCart(w http.ResponseWriter, op func() (any, error)) {
	c, err := op()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": c})
}

func (a *API) handleCartBulkInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.BulkInfoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	infos, err := a.service.CartInfos(r.Context(), req.IDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	streamNDJSON(w, r, len(infos), func(i int) any { return infos[i] })
}

func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ids, err := a.service.PurchaseIDs(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase_ids": ids})
}

func (a *API) handlePurchaseActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/purchases/"), "/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("purchase id required"))
		return
	}
	ctx := r.Context()

	switch tail {
	case "bulk-info":
		a.handlePurchaseBulkInfo(w, r)
		return
	case "stats":
		a.handlePurchaseStats(w, r)
		return
	}

	segments := strings.Split(tail, "/")
	purchaseID := segments[0]
	rest := segments[1:]

	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		p, err := a.service.PurchaseByID(ctx, purchaseID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purchase": p})
		return
	}
	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, errors.New("unknown purchase action"))
		return
	}

	switch rest[0] {
	case "invoice":
		if r.Method != http.MethodPut {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.SetInvoiceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.respondPurchase(w, func() (any, error) { return a.service.PurchaseSetInvoice(ctx, purchaseID, req) })
	case "storno":
		if r.Method != http.MethodPut {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.SetStornoRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.respondPurchase(w, func() (any, error) { return a.service.PurchaseSetStorno(ctx, purchaseID, req) })
	case "loyalty-summary":
		if r.Method != http.MethodPut {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.LoyaltySummaryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.respondPurchase(w, func() (any, error) { return a.service.PurchaseSetLoyaltySummary(ctx, purchaseID, req) })
	case "payments":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.AddPaymentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.respondPurchase(w, func() (any, error) { return a.service.PurchaseAddPayment(ctx, purchaseID, req) })
	case "restore":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.RestoreRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		c, err := a.service.PurchaseRestore(ctx, purchaseID, req.CreatedBy)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"cart": c})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown purchase action"))
	}
}

func (a *API) respondPurchase(w http.ResponseWriter, op func() (any, error)) {
	p, err := op()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase": p})
}

func (a *API) handlePurchaseBulkInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.BulkInfoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	infos, err := a.service.PurchaseInfos(r.Context(), req.IDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	streamNDJSON(w, r, len(infos), func(i int) any { return infos[i] })
}

func (a *API) handlePurchaseStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("from must be a YYYY-MM-DD date"))
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("to must be a YYYY-MM-DD date"))
		return
	}

	stat, err := a.service.PurchaseStatByInterval(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stat": stat})
}

// streamNDJSON writes one JSON document per line, flushing after each so a
// slow consumer sees rows as they are produced, and stops early when the
// request context is cancelled.
func streamNDJSON(w http.ResponseWriter, r *http.Request, n int, row func(int) any) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for i := 0; i < n; i++ {
		if r.Context().Err() != nil {
			return
		}
		if err := enc.Encode(row(i)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 4xx messages are user-facing; 5xx bodies stay generic so internals
	// never leak.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
