package purchase

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"boltline/backend/internal/cart"
	"boltline/backend/internal/domain"
	"boltline/backend/internal/money"
)

// ItemKind tells where a flattened purchase line came from.
type ItemKind string

const (
	// ItemSku is a regular shopping-list line.
	ItemSku ItemKind = "sku"
	// ItemDepreciatedSku is a depreciated unit sold at its own price.
	ItemDepreciatedSku ItemKind = "depreciated_sku"
	// ItemDerivedProduct is an opened product sold by amount.
	ItemDerivedProduct ItemKind = "derived_product"
)

// Item is one flattened, priced line of a completed purchase.
type Item struct {
	Kind             ItemKind  `json:"kind"`
	Name             string    `json:"name"`
	Piece            int       `json:"piece"`
	RetailPriceNet   int       `json:"retail_price_net"`
	VAT              money.VAT `json:"vat"`
	RetailPriceGross int       `json:"retail_price_gross"`
	TotalPriceNet    int       `json:"total_price_net"`
	TotalPriceGross  int       `json:"total_price_gross"`
}

// LoyaltySummary records the points granted for the purchase after the
// loyalty backend has processed it.
type LoyaltySummary struct {
	AccountID    string `json:"account_id"`
	PointsEarned int    `json:"points_earned"`
}

// Purchase is the immutable financial record produced by closing a cart.
// The commercial content never changes after creation; only bookkeeping
// references (invoice id, storno link, transfer payments, loyalty summary,
// restore mark) may be added, each exactly once.
type Purchase struct {
	ID                      uuid.UUID                 `json:"id"`
	Customer                *cart.Customer            `json:"customer,omitempty"`
	Commitment              *cart.Commitment          `json:"commitment,omitempty"`
	CommitmentDiscountValue int                       `json:"commitment_discount_value"`
	LoyaltyCard             *cart.LoyaltyCard         `json:"loyalty_card,omitempty"`
	BurnedPoints            []cart.LoyaltyTransaction `json:"burned_points"`
	LoyaltySummary          *LoyaltySummary           `json:"loyalty_summary,omitempty"`
	Items                   []Item                    `json:"items"`
	UplInfoObjects          []cart.UplInfo            `json:"upl_info_objects"`
	TotalNet                int                       `json:"total_net"`
	TotalVat                int                       `json:"total_vat"`
	TotalGross              int                       `json:"total_gross"`
	DocumentKind            cart.DocumentKind         `json:"document_kind"`
	InvoiceID               string                    `json:"invoice_id,omitempty"`
	StornoID                *uuid.UUID                `json:"storno_id,omitempty"`
	StornoOf                *uuid.UUID                `json:"storno_of,omitempty"`
	PaymentKind             cart.PaymentKind          `json:"payment_kind"`
	PaymentDuedate          time.Time                 `json:"payment_duedate"`
	Payable                 int                       `json:"payable"`
	Payments                []cart.Payment            `json:"payments"`
	ProfitNet               int                       `json:"profit_net"`
	RestoredTo              *uuid.UUID                `json:"restored,omitempty"`
	OwnerUID                uint32                    `json:"owner_uid"`
	StoreID                 uint32                    `json:"store_id,omitempty"`
	DateCompletion          time.Time                 `json:"date_completion"`
	CreatedBy               uint32                    `json:"created_by"`
	CreatedAt               time.Time                 `json:"created_at"`
}

// FromCart snapshots a validated cart into a purchase. The caller must have
// run the cart's close gate first; FromCart itself does not validate. The
// shopping list and the unique labels are flattened into one item list, and
// the completion date is stamped with the current day.
func FromCart(c cart.Cart) Purchase {
	items := make([]Item, 0, len(c.ShoppingList)+len(c.UplsUnique))
	for _, li := range c.ShoppingList {
		items = append(items, Item{
			Kind:             ItemSku,
			Name:             li.Name,
			Piece:            li.Piece,
			RetailPriceNet:   li.UnitPriceNet,
			VAT:              li.VAT,
			RetailPriceGross: li.UnitPriceGross,
			TotalPriceNet:    li.TotalPriceNet,
			TotalPriceGross:  li.TotalPriceGross,
		})
	}
	for _, u := range c.UplsUnique {
		kind := ItemDepreciatedSku
		if u.Kind == cart.UplDerivedProduct {
			kind = ItemDerivedProduct
		}
		items = append(items, Item{
			Kind:             kind,
			Name:             u.Name,
			Piece:            u.PieceCount(),
			RetailPriceNet:   u.RetailPriceNet,
			VAT:              u.VAT,
			RetailPriceGross: u.RetailPriceGross,
			TotalPriceNet:    u.TotalNet(),
			TotalPriceGross:  u.TotalGross(),
		})
	}

	upls := make([]cart.UplInfo, 0, len(c.UplsSku)+len(c.UplsUnique))
	upls = append(upls, c.UplsSku...)
	upls = append(upls, c.UplsUnique...)

	now := time.Now().UTC()
	return Purchase{
		ID:                      c.ID,
		Customer:                c.Customer,
		Commitment:              c.Commitment,
		CommitmentDiscountValue: c.CommitmentDiscountValue,
		LoyaltyCard:             c.LoyaltyCard,
		BurnedPoints:            c.BurnedPoints,
		Items:                   items,
		UplInfoObjects:          upls,
		TotalNet:                c.TotalNet,
		TotalVat:                c.TotalVat,
		TotalGross:              c.TotalGross,
		DocumentKind:            c.DocumentKind,
		StornoOf:                c.Ancestor,
		PaymentKind:             c.PaymentKind,
		PaymentDuedate:          c.PaymentDuedate,
		Payable:                 c.Payable,
		Payments:                c.Payments,
		ProfitNet:               c.ProfitNet(),
		OwnerUID:                c.OwnerUID,
		StoreID:                 c.StoreID,
		DateCompletion:          time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		CreatedBy:               c.CreatedBy,
		CreatedAt:               now,
	}
}

// Balance is payable minus recorded payments. Non-zero only for transfer
// purchases awaiting the wire.
func (p *Purchase) Balance() int {
	paid := 0
	for _, pm := range p.Payments {
		paid += pm.Amount
	}
	return p.Payable - paid
}

// SetInvoiceID records the external invoice document id, once.
func (p *Purchase) SetInvoiceID(id string) error {
	if p.InvoiceID != "" {
		return fmt.Errorf("%w: purchase already has invoice %s", domain.ErrConflict, p.InvoiceID)
	}
	if p.DocumentKind != cart.DocumentInvoice {
		return fmt.Errorf("%w: purchase is not an invoice", domain.ErrBadRequest)
	}
	p.InvoiceID = id
	return nil
}

// SetStornoID links the cancelling purchase, once.
func (p *Purchase) SetStornoID(id uuid.UUID) error {
	if p.StornoID != nil {
		return fmt.Errorf("%w: purchase already stornoed by %s", domain.ErrConflict, p.StornoID)
	}
	p.StornoID = &id
	return nil
}

// AddPayment records a late payment against a transfer purchase.
func (p *Purchase) AddPayment(pm cart.Payment) error {
	if p.PaymentKind != cart.PaymentTransfer {
		return fmt.Errorf("%w: only transfer purchases accept late payments", domain.ErrBadRequest)
	}
	for _, existing := range p.Payments {
		if existing.PaymentID == pm.PaymentID {
			return fmt.Errorf("%w: payment %s already recorded", domain.ErrConflict, pm.PaymentID)
		}
	}
	p.Payments = append(p.Payments, pm)
	return nil
}

// SetLoyaltySummary records the granted points, once.
func (p *Purchase) SetLoyaltySummary(s LoyaltySummary) error {
	if p.LoyaltySummary != nil {
		return fmt.Errorf("%w: loyalty summary already set", domain.ErrConflict)
	}
	p.LoyaltySummary = &s
	return nil
}

// MarkRestored records the cart the purchase was reopened into. A purchase
// may be restored only once.
func (p *Purchase) MarkRestored(cartID uuid.UUID) error {
	if p.RestoredTo != nil {
		return fmt.Errorf("%w: purchase already restored to cart %s", domain.ErrConflict, p.RestoredTo)
	}
	p.RestoredTo = &cartID
	return nil
}

// Restored reports whether the purchase has been reopened into a cart.
func (p *Purchase) Restored() bool {
	return p.RestoredTo != nil
}

// RestoreCart reopens the purchase as a fresh cart with a new id. The new
// cart carries the purchase's content and references the purchase as its
// ancestor; totals are re-derived rather than copied.
func RestoreCart(p Purchase, createdBy uint32) cart.Cart {
	c := cart.New(p.OwnerUID, p.StoreID, createdBy)
	ancestor := p.ID
	c.Ancestor = &ancestor
	c.Customer = p.Customer
	c.Commitment = p.Commitment
	c.LoyaltyCard = p.LoyaltyCard
	c.BurnedPoints = append([]cart.LoyaltyTransaction{}, p.BurnedPoints...)
	c.DocumentKind = p.DocumentKind
	c.PaymentKind = p.PaymentKind
	c.PaymentDuedate = p.PaymentDuedate

	// Flattened sku lines lose their SKU, so the shopping list is rebuilt
	// from the retained label objects instead of from Items.
	for _, u := range p.UplInfoObjects {
		if u.Kind == cart.UplSku && !u.Depreciated {
			continue
		}
		c.UplsUnique = append(c.UplsUnique, u)
	}
	for _, u := range p.UplInfoObjects {
		if u.Kind != cart.UplSku || u.Depreciated {
			continue
		}
		c.UplsSku = append(c.UplsSku, u)
		found := false
		for i := range c.ShoppingList {
			if c.ShoppingList[i].SKU == u.SKU {
				c.ShoppingList[i].Piece += u.Piece
				c.ShoppingList[i].TotalPriceNet = c.ShoppingList[i].UnitPriceNet * c.ShoppingList[i].Piece
				c.ShoppingList[i].TotalPriceGross = c.ShoppingList[i].UnitPriceGross * c.ShoppingList[i].Piece
				found = true
				break
			}
		}
		if !found {
			c.ShoppingList = append(c.ShoppingList, cart.ListItem{
				SKU:             u.SKU,
				Name:            u.Name,
				Piece:           u.Piece,
				VAT:             u.VAT,
				UnitPriceNet:    u.RetailPriceNet,
				UnitPriceGross:  u.RetailPriceGross,
				TotalPriceNet:   u.RetailPriceNet * u.Piece,
				TotalPriceGross: u.RetailPriceGross * u.Piece,
			})
		}
	}

	c.Recalculate()
	return c
}
