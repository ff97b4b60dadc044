// Package service is the operation layer: request DTOs in, aggregates out,
// with the repository doing the locking and the cache kept coherent by
// invalidating on every mutation.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"boltline/backend/internal/cache"
	"boltline/backend/internal/cart"
	"boltline/backend/internal/domain"
	"boltline/backend/internal/money"
	"boltline/backend/internal/purchase"
	"boltline/backend/internal/store"
	"boltline/backend/internal/xid"
)

type Service struct {
	store   store.Repository
	cache   cache.InfoCache
	infoTTL time.Duration
	logger  *log.Logger
}

func New(repo store.Repository, infoCache cache.InfoCache, infoTTL time.Duration, logger *log.Logger) *Service {
	if infoCache == nil {
		infoCache = cache.NoopInfoCache{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:   repo,
		cache:   infoCache,
		infoTTL: infoTTL,
		logger:  logger,
	}
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed id %q", domain.ErrBadRequest, raw)
	}
	return id, nil
}

// parseIDs rejects the whole batch on the first malformed id, before any
// lookup happens.
func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := parseID(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Invalidate(ctx, id.String()); err != nil {
		s.logger.Printf("[service] cache invalidate %s: %v", id, err)
	}
}

// updateCart wraps the repository closure update with cache invalidation.
func (s *Service) updateCart(ctx context.Context, rawID string, fn func(*cart.Cart) error) (cart.Cart, error) {
	id, err := parseID(rawID)
	if err != nil {
		return cart.Cart{}, err
	}
	c, err := s.store.UpdateCart(ctx, id, fn)
	if err != nil {
		return cart.Cart{}, err
	}
	s.invalidate(ctx, id)
	return c, nil
}

func (s *Service) updatePurchase(ctx context.Context, rawID string, fn func(*purchase.Purchase) error) (purchase.Purchase, error) {
	id, err := parseID(rawID)
	if err != nil {
		return purchase.Purchase{}, err
	}
	p, err := s.store.UpdatePurchase(ctx, id, fn)
	if err != nil {
		return purchase.Purchase{}, err
	}
	s.invalidate(ctx, id)
	return p, nil
}

func (s *Service) CartNew(ctx context.Context, req domain.CartNewRequest) (cart.Cart, error) {
	c := cart.New(req.OwnerUID, req.StoreID, req.CreatedBy)
	if err := s.store.InsertCart(ctx, c); err != nil {
		return cart.Cart{}, err
	}
	return c, nil
}

func (s *Service) CartIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.store.CartIDs(ctx)
}

func (s *Service) CartByID(ctx context.Context, rawID string) (cart.Cart, error) {
	id, err := parseID(rawID)
	if err != nil {
		return cart.Cart{}, err
	}
	return s.store.CartByID(ctx, id)
}

// CartRemove abandons an open cart, including an orphan left behind by a
// crash between the two writes of CartClose. The purchase store is untouched.
func (s *Service) CartRemove(ctx context.Context, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	if err := s.store.RemoveCart(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// CartInfos resolves a batch of ids to summaries in input order, silently
// skipping ids with no cart behind them.
func (s *Service) CartInfos(ctx context.Context, rawIDs []string) ([]domain.CartInfo, error) {
	ids, err := parseIDs(rawIDs)
	if err != nil {
		return nil, err
	}

	resolved := make(map[uuid.UUID]domain.CartInfo, len(ids))
	misses := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		cached, ok, err := s.cache.GetCartInfo(ctx, id.String())
		if err != nil {
			s.logger.Printf("[service] cart info cache get %s: %v", id, err)
		}
		if ok {
			resolved[id] = *cached
			continue
		}
		misses = append(misses, id)
	}

	carts, err := s.store.CartsByIDs(ctx, misses)
	if err != nil {
		return nil, err
	}
	for _, c := range carts {
		info := cartInfo(c)
		if err := s.cache.SetCartInfo(ctx, c.ID.String(), &info, s.infoTTL); err != nil {
			s.logger.Printf("[service] cart info cache set %s: %v", c.ID, err)
		}
		resolved[c.ID] = info
	}

	out := make([]domain.CartInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := resolved[id]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func cartInfo(c cart.Cart) domain.CartInfo {
	names := make([]string, 0, len(c.ShoppingList)+len(c.UplsUnique))
	for _, li := range c.ShoppingList {
		names = append(names, li.Name)
	}
	for _, u := range c.UplsUnique {
		names = append(names, u.Name)
	}
	info := domain.CartInfo{
		CartID:    c.ID.String(),
		UplCount:  len(c.UplsSku) + len(c.UplsUnique),
		ItemNames: names,
		OwnerUID:  c.OwnerUID,
		CreatedBy: c.CreatedBy,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
	if c.Customer != nil {
		info.CustomerName = c.Customer.Name
	}
	return info
}

func (s *Service) CartSetCustomer(ctx context.Context, rawID string, req domain.CustomerRequest) (cart.Cart, error) {
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		c.SetCustomer(&cart.Customer{
			ID:        req.CustomerID,
			Name:      req.Name,
			Zip:       req.Zip,
			Location:  req.Location,
			Street:    req.Street,
			TaxNumber: req.TaxNumber,
		})
		return nil
	})
}

func (s *Service) CartRemoveCustomer(ctx context.Context, rawID string) (cart.Cart, error) {
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		c.SetCustomer(nil)
		return nil
	})
}

func (s *Service) CartAddSku(ctx context.Context, rawID string, req domain.AddSkuRequest) (cart.Cart, error) {
	if req.Piece < 1 {
		return cart.Cart{}, fmt.Errorf("%w: piece must be at least 1", domain.ErrBadRequest)
	}
	vat, err := money.ParseVAT(req.VAT)
	if err != nil {
		return cart.Cart{}, err
	}
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		c.AddSku(req.SKU, req.Piece, req.Name, vat, req.UnitPriceNet, req.UnitPriceGross)
		return nil
	})
}

func (s *Service) CartRemoveSku(ctx context.Context, rawID string, sku uint32) (cart.Cart, error) {
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		return c.RemoveSku(sku)
	})
}

func (s *Service) CartSetSkuPiece(ctx context.Context, rawID string, sku uint32, piece int) (cart.Cart, error) {
	if piece < 0 {
		return cart.Cart{}, fmt.Errorf("%w: piece must not be negative", domain.ErrBadRequest)
	}
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		return c.SetSkuPiece(sku, piece)
	})
}

func uplFromRequest(req domain.AddUplRequest) (cart.UplInfo, error) {
	if req.UplID == "" {
		return cart.UplInfo{}, fmt.Errorf("%w: upl_id is required", domain.ErrBadRequest)
	}
	vat, err := money.ParseVAT(req.VAT)
	if err != nil {
		return cart.UplInfo{}, err
	}

	u := cart.UplInfo{
		UplID:            req.UplID,
		Name:             req.Name,
		RetailPriceNet:   req.RetailPriceNet,
		VAT:              vat,
		RetailPriceGross: req.RetailPriceGross,
		ProcurementNet:   req.ProcurementNet,
		Depreciated:      req.Depreciated,
	}
	if req.BestBefore != "" {
		bb, err := time.Parse("2006-01-02", req.BestBefore)
		if err != nil {
			return cart.UplInfo{}, fmt.Errorf("%w: best_before %q is not a date", domain.ErrBadRequest, req.BestBefore)
		}
		u.BestBefore = &bb
	}

	switch cart.UplKind(req.Kind) {
	case cart.UplSku:
		if req.Piece < 1 {
			return cart.UplInfo{}, fmt.Errorf("%w: sku tag piece must be at least 1", domain.ErrBadRequest)
		}
		u.Kind = cart.UplSku
		u.SKU = req.SKU
		u.Piece = req.Piece
	case cart.UplDerivedProduct:
		u.Kind = cart.UplDerivedProduct
		u.ProductID = req.ProductID
		u.Amount = req.Amount
	default:
		return cart.UplInfo{}, fmt.Errorf("%w: unknown UPL kind %q", domain.ErrBadRequest, req.Kind)
	}
	return u, nil
}

func (s *Service) CartAddUpl(ctx context.Context, rawID string, req domain.AddUplRequest) (cart.Cart, error) {
	u, err := uplFromRequest(req)
	if err != nil {
		return cart.Cart{}, err
	}
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		return c.AddUpl(u)
	})
}

func (s *Service) CartRemoveUpl(ctx context.Context, rawID string, uplID string) (cart.Cart, error) {
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		c.RemoveUpl(uplID)
		return nil
	})
}

func (s *Service) CartSetDocument(ctx context.Context, rawID string, req domain.SetDocumentRequest) (cart.Cart, error) {
	kind, err := cart.ParseDocumentKind(req.DocumentKind)
	if err != nil {
		return cart.Cart{}, err
	}
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		c.SetDocument(kind)
		return nil
	})
}

func (s *Service) CartSetPayment(ctx context.Context, rawID string, req domain.SetPaymentRequest) (cart.Cart, error) {
	kind, err := cart.ParsePaymentKind(req.PaymentKind)
	if err != nil {
		return cart.Cart{}, err
	}
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		c.SetPayment(kind)
		return nil
	})
}

func (s *Service) CartAddPayment(ctx context.Context, rawID string, req domain.AddPaymentRequest) (cart.Cart, error) {
	if req.Amount == 0 {
		return cart.Cart{}, fmt.Errorf("%w: payment amount must not be zero", domain.ErrBadRequest)
	}
	paymentID := req.PaymentID
	if paymentID == "" {
		paymentID = xid.New("pay")
	}
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		c.AddPayment(cart.Payment{PaymentID: paymentID, Amount: req.Amount})
		return nil
	})
}

func (s *Service) CartSetOwner(ctx context.Context, rawID string, ownerUID uint32) (cart.Cart, error) {
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		c.SetOwner(ownerUID)
		return nil
	})
}

func (s *Service) CartSetStore(ctx context.Context, rawID string, storeID uint32) (cart.Cart, error) {
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		c.SetStoreID(storeID)
		return nil
	})
}

func (s *Service) CartAddLoyaltyCard(ctx context.Context, rawID string, req domain.LoyaltyCardRequest) (cart.Cart, error) {
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		return c.AddLoyaltyCard(req.AccountID, req.CardID, req.Level)
	})
}

func (s *Service) CartRemoveLoyaltyCard(ctx context.Context, rawID string) (cart.Cart, error) {
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		return c.RemoveLoyaltyCard()
	})
}

func (s *Service) CartBurnPoints(ctx context.Context, rawID string, req domain.BurnPointsRequest) (cart.Cart, error) {
	if req.TransactionID == "" {
		return cart.Cart{}, fmt.Errorf("%w: transaction_id is required", domain.ErrBadRequest)
	}
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		return c.BurnPoints(req.AccountID, req.TransactionID, req.Amount)
	})
}

func (s *Service) CartAddCommitment(ctx context.Context, rawID string, req domain.CommitmentRequest) (cart.Cart, error) {
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		return c.AddCommitment(req.CommitmentID, req.Percentage)
	})
}

func (s *Service) CartRemoveCommitment(ctx context.Context, rawID string) (cart.Cart, error) {
	return s.updateCart(ctx, rawID, func(c *cart.Cart) error {
		return c.RemoveCommitment()
	})
}

// CartClose runs the close gate under the cart's lock, then converts the
// validated snapshot into a purchase. The two stores are not covered by one
// transaction: the purchase is inserted first, and only then is the cart
// removed, so a crash in between leaves an orphan cart next to a complete
// purchase rather than losing the financial record.
func (s *Service) CartClose(ctx context.Context, rawID string) (purchase.Purchase, error) {
	id, err := parseID(rawID)
	if err != nil {
		return purchase.Purchase{}, err
	}

	c, err := s.store.UpdateCart(ctx, id, func(c *cart.Cart) error {
		return c.Close()
	})
	if err != nil {
		return purchase.Purchase{}, err
	}

	p := purchase.FromCart(c)
	if err := s.store.InsertPurchase(ctx, p); err != nil {
		return purchase.Purchase{}, err
	}
	if err := s.store.RemoveCart(ctx, id); err != nil {
		// The purchase is already durable; the leftover cart is harmless.
		s.logger.Printf("[service] remove closed cart %s: %v", id, err)
	}
	s.invalidate(ctx, id)
	return p, nil
}

func (s *Service) PurchaseIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.store.PurchaseIDs(ctx)
}

func (s *Service) PurchaseByID(ctx context.Context, rawID string) (purchase.Purchase, error) {
	id, err := parseID(rawID)
	if err != nil {
		return purchase.Purchase{}, err
	}
	return s.store.PurchaseByID(ctx, id)
}

func (s *Service) PurchaseInfos(ctx context.Context, rawIDs []string) ([]domain.PurchaseInfo, error) {
	ids, err := parseIDs(rawIDs)
	if err != nil {
		return nil, err
	}

	resolved := make(map[uuid.UUID]domain.PurchaseInfo, len(ids))
	misses := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		cached, ok, err := s.cache.GetPurchaseInfo(ctx, id.String())
		if err != nil {
			s.logger.Printf("[service] purchase info cache get %s: %v", id, err)
		}
		if ok {
			resolved[id] = *cached
			continue
		}
		misses = append(misses, id)
	}

	purchases, err := s.store.PurchasesByIDs(ctx, misses)
	if err != nil {
		return nil, err
	}
	for _, p := range purchases {
		info := purchaseInfo(p)
		if err := s.cache.SetPurchaseInfo(ctx, p.ID.String(), &info, s.infoTTL); err != nil {
			s.logger.Printf("[service] purchase info cache set %s: %v", p.ID, err)
		}
		resolved[p.ID] = info
	}

	out := make([]domain.PurchaseInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := resolved[id]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func purchaseInfo(p purchase.Purchase) domain.PurchaseInfo {
	info := domain.PurchaseInfo{
		PurchaseID:      p.ID.String(),
		UplCount:        len(p.UplInfoObjects),
		TotalNet:        p.TotalNet,
		TotalVat:        p.TotalVat,
		TotalGross:      p.TotalGross,
		Payable:         p.Payable,
		Balance:         p.Balance(),
		DocumentInvoice: p.DocumentKind == cart.DocumentInvoice,
		DateCompletion:  p.DateCompletion.Format("2006-01-02"),
		PaymentDuedate:  p.PaymentDuedate.Format("2006-01-02"),
		PaymentExpired:  p.Balance() > 0 && time.Now().UTC().After(p.PaymentDuedate),
		ProfitNet:       p.ProfitNet,
		Restored:        p.Restored(),
		CreatedBy:       p.CreatedBy,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
	if p.Customer != nil {
		info.CustomerName = p.Customer.Name
	}
	return info
}

func (s *Service) PurchaseSetInvoice(ctx context.Context, rawID string, req domain.SetInvoiceRequest) (purchase.Purchase, error) {
	if req.InvoiceID == "" {
		return purchase.Purchase{}, fmt.Errorf("%w: invoice_id is required", domain.ErrBadRequest)
	}
	return s.updatePurchase(ctx, rawID, func(p *purchase.Purchase) error {
		return p.SetInvoiceID(req.InvoiceID)
	})
}

func (s *Service) PurchaseSetStorno(ctx context.Context, rawID string, req domain.SetStornoRequest) (purchase.Purchase, error) {
	stornoID, err := parseID(req.StornoID)
	if err != nil {
		return purchase.Purchase{}, err
	}
	return s.updatePurchase(ctx, rawID, func(p *purchase.Purchase) error {
		return p.SetStornoID(stornoID)
	})
}

func (s *Service) PurchaseAddPayment(ctx context.Context, rawID string, req domain.AddPaymentRequest) (purchase.Purchase, error) {
	if req.Amount == 0 {
		return purchase.Purchase{}, fmt.Errorf("%w: payment amount must not be zero", domain.ErrBadRequest)
	}
	paymentID := req.PaymentID
	if paymentID == "" {
		paymentID = xid.New("pay")
	}
	return s.updatePurchase(ctx, rawID, func(p *purchase.Purchase) error {
		return p.AddPayment(cart.Payment{PaymentID: paymentID, Amount: req.Amount})
	})
}

func (s *Service) PurchaseSetLoyaltySummary(ctx context.Context, rawID string, req domain.LoyaltySummaryRequest) (purchase.Purchase, error) {
	return s.updatePurchase(ctx, rawID, func(p *purchase.Purchase) error {
		return p.SetLoyaltySummary(purchase.LoyaltySummary{
			AccountID:    req.AccountID,
			PointsEarned: req.PointsEarned,
		})
	})
}

// PurchaseRestore marks the purchase restored and opens a replacement cart
// seeded from it. The mark and the insert are two separate writes; if the
// insert fails after the mark, the error is returned and the purchase stays
// marked, which blocks a second restore rather than permitting a duplicate.
func (s *Service) PurchaseRestore(ctx context.Context, rawID string, createdBy uint32) (cart.Cart, error) {
	p, err := s.PurchaseByID(ctx, rawID)
	if err != nil {
		return cart.Cart{}, err
	}

	c := purchase.RestoreCart(p, createdBy)
	if _, err := s.updatePurchase(ctx, rawID, func(p *purchase.Purchase) error {
		return p.MarkRestored(c.ID)
	}); err != nil {
		return cart.Cart{}, err
	}
	if err := s.store.InsertCart(ctx, c); err != nil {
		return cart.Cart{}, err
	}
	return c, nil
}

// PurchaseStatByInterval aggregates purchases completed in [from, to).
func (s *Service) PurchaseStatByInterval(ctx context.Context, from, to time.Time) (domain.PurchaseStat, error) {
	if !from.Before(to) {
		return domain.PurchaseStat{}, fmt.Errorf("%w: from must be before to", domain.ErrBadRequest)
	}

	purchases, err := s.store.PurchasesByInterval(ctx, from, to)
	if err != nil {
		return domain.PurchaseStat{}, err
	}

	stat := domain.PurchaseStat{
		From: from.Format("2006-01-02"),
		To:   to.Format("2006-01-02"),
	}
	for _, p := range purchases {
		stat.PurchaseCount++
		stat.TotalNet += p.TotalNet
		stat.TotalGross += p.TotalGross
		stat.TotalPayable += p.Payable
	}
	return stat, nil
}
