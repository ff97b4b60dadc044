// Package migration converts documents from the predecessor system's data
// dump into the current aggregate shapes. Legacy carts carried a bare
// discount percentage instead of a commitment, no loyalty surface, and a
// payable frozen to the gross total.
package migration

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"boltline/backend/internal/cart"
	"boltline/backend/internal/domain"
	"boltline/backend/internal/money"
	"boltline/backend/internal/purchase"
	"boltline/backend/internal/xid"
)

// LegacyUpl is the old tag shape. Kind discrimination used capitalized
// variant names.
type LegacyUpl struct {
	UplID            string     `json:"upl_id"`
	Kind             string     `json:"kind"`
	SKU              uint32     `json:"sku,omitempty"`
	Piece            int        `json:"piece,omitempty"`
	ProductID        uint32     `json:"product_id,omitempty"`
	Amount           int        `json:"amount,omitempty"`
	Name             string     `json:"name"`
	RetailPriceNet   int        `json:"retail_net_price"`
	VAT              string     `json:"vat"`
	RetailPriceGross int        `json:"retail_gross_price"`
	ProcurementNet   int        `json:"procurement_net_price"`
	BestBefore       *time.Time `json:"best_before,omitempty"`
	Depreciated      bool       `json:"depreciated"`
}

type LegacyListItem struct {
	SKU             uint32 `json:"sku"`
	Name            string `json:"name"`
	Piece           int    `json:"piece"`
	VAT             string `json:"vat"`
	UnitPriceNet    int    `json:"unit_price_net"`
	UnitPriceGross  int    `json:"unit_price_gross"`
	TotalPriceNet   int    `json:"total_price_net"`
	TotalPriceGross int    `json:"total_price_gross"`
}

type LegacyPayment struct {
	PaymentID string `json:"payment_id"`
	Amount    int    `json:"amount"`
}

type LegacyCustomer struct {
	ID        uint32 `json:"id"`
	Name      string `json:"name"`
	Zip       string `json:"zip"`
	Location  string `json:"location"`
	Street    string `json:"street"`
	TaxNumber string `json:"tax_number"`
}

type LegacyCart struct {
	Ancestor           *uuid.UUID       `json:"ancestor,omitempty"`
	ID                 uuid.UUID        `json:"id"`
	Customer           *LegacyCustomer  `json:"customer,omitempty"`
	DiscountPercentage *int             `json:"discount_percentage,omitempty"`
	ShoppingList       []LegacyListItem `json:"shopping_list"`
	UplsSku            []LegacyUpl      `json:"upls_sku"`
	UplsUnique         []LegacyUpl      `json:"upls_unique"`
	TotalNet           int              `json:"total_net"`
	TotalVat           int              `json:"total_vat"`
	TotalGross         int              `json:"total_gross"`
	DocumentKind       string           `json:"document_kind"`
	PaymentKind        string           `json:"payment_kind"`
	Payments           []LegacyPayment  `json:"payments"`
	OwnerUID           uint32           `json:"owner_uid"`
	StoreID            *uint32          `json:"store_id,omitempty"`
	DateCompletion     time.Time        `json:"date_completion"`
	PaymentDuedate     time.Time        `json:"payment_duedate"`
	CreatedBy          uint32           `json:"created_by"`
	CreatedAt          time.Time        `json:"created_at"`
}

type LegacyItem struct {
	Kind             string `json:"kind"`
	Name             string `json:"name"`
	Piece            int    `json:"piece"`
	RetailPriceNet   int    `json:"retail_price_net"`
	VAT              string `json:"vat"`
	RetailPriceGross int    `json:"retail_price_gross"`
	TotalPriceNet    int    `json:"total_price_net"`
	TotalPriceGross  int    `json:"total_price_gross"`
}

type LegacyPurchase struct {
	ID                 uuid.UUID       `json:"id"`
	Customer           *LegacyCustomer `json:"customer,omitempty"`
	DiscountPercentage *int            `json:"discount_percentage,omitempty"`
	Items              []LegacyItem    `json:"items"`
	UplInfoObjects     []LegacyUpl     `json:"upl_info_objects"`
	TotalNet           int             `json:"total_net"`
	TotalVat           int             `json:"total_vat"`
	TotalGross         int             `json:"total_gross"`
	DocumentKind       string          `json:"document_kind"`
	PaymentKind        string          `json:"payment_kind"`
	Payments           []LegacyPayment `json:"payments"`
	Balance            int             `json:"balance"`
	ProfitNet          int             `json:"profit_net"`
	OwnerUID           uint32          `json:"owner_uid"`
	StoreID            *uint32         `json:"store_id,omitempty"`
	DateCompletion     time.Time       `json:"date_completion"`
	PaymentDuedate     time.Time       `json:"payment_duedate"`
	Restored           *uuid.UUID      `json:"restored,omitempty"`
	CreatedBy          uint32          `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
}

func parseDocumentKind(raw string) (cart.DocumentKind, error) {
	return cart.ParseDocumentKind(strings.ToLower(raw))
}

func parsePaymentKind(raw string) (cart.PaymentKind, error) {
	return cart.ParsePaymentKind(strings.ToLower(raw))
}

func convertUpl(l LegacyUpl) (cart.UplInfo, error) {
	vat, err := money.ParseVAT(l.VAT)
	if err != nil {
		return cart.UplInfo{}, fmt.Errorf("upl %s: %w", l.UplID, err)
	}

	u := cart.UplInfo{
		UplID:            l.UplID,
		SKU:              l.SKU,
		Piece:            l.Piece,
		ProductID:        l.ProductID,
		Amount:           l.Amount,
		Name:             l.Name,
		RetailPriceNet:   l.RetailPriceNet,
		VAT:              vat,
		RetailPriceGross: l.RetailPriceGross,
		ProcurementNet:   l.ProcurementNet,
		BestBefore:       l.BestBefore,
		Depreciated:      l.Depreciated,
	}
	switch strings.ToLower(l.Kind) {
	case "sku":
		u.Kind = cart.UplSku
	case "derivedproduct", "derived_product", "openedsku", "opened_sku":
		u.Kind = cart.UplDerivedProduct
	default:
		return cart.UplInfo{}, fmt.Errorf("%w: upl %s has unknown kind %q", domain.ErrBadRequest, l.UplID, l.Kind)
	}
	return u, nil
}

func convertUpls(ls []LegacyUpl) ([]cart.UplInfo, error) {
	out := make([]cart.UplInfo, 0, len(ls))
	for _, l := range ls {
		u, err := convertUpl(l)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func convertCustomer(l *LegacyCustomer) *cart.Customer {
	if l == nil {
		return nil
	}
	return &cart.Customer{
		ID:        l.ID,
		Name:      l.Name,
		Zip:       l.Zip,
		Location:  l.Location,
		Street:    l.Street,
		TaxNumber: l.TaxNumber,
	}
}

func convertPayments(ls []LegacyPayment) []cart.Payment {
	out := make([]cart.Payment, 0, len(ls))
	for _, l := range ls {
		out = append(out, cart.Payment(l))
	}
	return out
}

// ConvertCart maps a legacy open cart into the current shape. The bare
// discount percentage becomes a commitment with a generated id, and the
// totals are re-derived so the migrated cart satisfies the close gate
// instead of carrying the legacy payable (which was frozen to the gross
// total and never cash-rounded).
func ConvertCart(l LegacyCart) (cart.Cart, error) {
	docKind, err := parseDocumentKind(l.DocumentKind)
	if err != nil {
		return cart.Cart{}, fmt.Errorf("cart %s: %w", l.ID, err)
	}
	payKind, err := parsePaymentKind(l.PaymentKind)
	if err != nil {
		return cart.Cart{}, fmt.Errorf("cart %s: %w", l.ID, err)
	}

	c := cart.Cart{
		Ancestor:       l.Ancestor,
		ID:             l.ID,
		Customer:       convertCustomer(l.Customer),
		BurnedPoints:   []cart.LoyaltyTransaction{},
		ShoppingList:   make([]cart.ListItem, 0, len(l.ShoppingList)),
		DocumentKind:   docKind,
		PaymentKind:    payKind,
		Payments:       convertPayments(l.Payments),
		OwnerUID:       l.OwnerUID,
		DateCompletion: l.DateCompletion,
		PaymentDuedate: l.PaymentDuedate,
		CreatedBy:      l.CreatedBy,
		CreatedAt:      l.CreatedAt,
	}
	if l.StoreID != nil {
		c.StoreID = *l.StoreID
	}
	if l.DiscountPercentage != nil && *l.DiscountPercentage > 0 {
		c.Commitment = &cart.Commitment{ID: xid.New("cm"), Percentage: *l.DiscountPercentage}
	}

	for _, li := range l.ShoppingList {
		vat, err := money.ParseVAT(li.VAT)
		if err != nil {
			return cart.Cart{}, fmt.Errorf("cart %s sku %d: %w", l.ID, li.SKU, err)
		}
		c.ShoppingList = append(c.ShoppingList, cart.ListItem{
			SKU:             li.SKU,
			Name:            li.Name,
			Piece:           li.Piece,
			VAT:             vat,
			UnitPriceNet:    li.UnitPriceNet,
			UnitPriceGross:  li.UnitPriceGross,
			TotalPriceNet:   li.TotalPriceNet,
			TotalPriceGross: li.TotalPriceGross,
		})
	}
	if c.UplsSku, err = convertUpls(l.UplsSku); err != nil {
		return cart.Cart{}, fmt.Errorf("cart %s: %w", l.ID, err)
	}
	if c.UplsUnique, err = convertUpls(l.UplsUnique); err != nil {
		return cart.Cart{}, fmt.Errorf("cart %s: %w", l.ID, err)
	}

	c.Recalculate()
	return c, nil
}

func convertItemKind(raw string) (purchase.ItemKind, error) {
	switch strings.ToLower(raw) {
	case "sku":
		return purchase.ItemSku, nil
	case "depreciatedsku", "depreciated_sku":
		return purchase.ItemDepreciatedSku, nil
	case "derivedproduct", "derived_product":
		return purchase.ItemDerivedProduct, nil
	default:
		return "", fmt.Errorf("%w: unknown item kind %q", domain.ErrBadRequest, raw)
	}
}

// ConvertPurchase maps a legacy purchase. Purchases are immutable records, so
// totals are carried over verbatim; only the payable is filled in (legacy
// froze it to the gross total) and the stored balance is dropped in favor of
// deriving it from payable and payments.
func ConvertPurchase(l LegacyPurchase) (purchase.Purchase, error) {
	docKind, err := parseDocumentKind(l.DocumentKind)
	if err != nil {
		return purchase.Purchase{}, fmt.Errorf("purchase %s: %w", l.ID, err)
	}
	payKind, err := parsePaymentKind(l.PaymentKind)
	if err != nil {
		return purchase.Purchase{}, fmt.Errorf("purchase %s: %w", l.ID, err)
	}

	p := purchase.Purchase{
		ID:             l.ID,
		Customer:       convertCustomer(l.Customer),
		BurnedPoints:   []cart.LoyaltyTransaction{},
		Items:          make([]purchase.Item, 0, len(l.Items)),
		TotalNet:       l.TotalNet,
		TotalVat:       l.TotalVat,
		TotalGross:     l.TotalGross,
		DocumentKind:   docKind,
		PaymentKind:    payKind,
		PaymentDuedate: l.PaymentDuedate,
		Payable:        l.TotalGross,
		Payments:       convertPayments(l.Payments),
		ProfitNet:      l.ProfitNet,
		RestoredTo:     l.Restored,
		OwnerUID:       l.OwnerUID,
		DateCompletion: l.DateCompletion,
		CreatedBy:      l.CreatedBy,
		CreatedAt:      l.CreatedAt,
	}
	if l.StoreID != nil {
		p.StoreID = *l.StoreID
	}
	if l.DiscountPercentage != nil && *l.DiscountPercentage > 0 {
		p.Commitment = &cart.Commitment{ID: xid.New("cm"), Percentage: *l.DiscountPercentage}
	}

	for _, li := range l.Items {
		kind, err := convertItemKind(li.Kind)
		if err != nil {
			return purchase.Purchase{}, fmt.Errorf("purchase %s: %w", l.ID, err)
		}
		vat, err := money.ParseVAT(li.VAT)
		if err != nil {
			return purchase.Purchase{}, fmt.Errorf("purchase %s item %q: %w", l.ID, li.Name, err)
		}
		p.Items = append(p.Items, purchase.Item{
			Kind:             kind,
			Name:             li.Name,
			Piece:            li.Piece,
			RetailPriceNet:   li.RetailPriceNet,
			VAT:              vat,
			RetailPriceGross: li.RetailPriceGross,
			TotalPriceNet:    li.TotalPriceNet,
			TotalPriceGross:  li.TotalPriceGross,
		})
	}
	if p.UplInfoObjects, err = convertUpls(l.UplInfoObjects); err != nil {
		return purchase.Purchase{}, fmt.Errorf("purchase %s: %w", l.ID, err)
	}

	return p, nil
}
