package cart

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"boltline/backend/internal/domain"
	"boltline/backend/internal/money"
)

type DocumentKind string

const (
	DocumentReceipt DocumentKind = "receipt"
	DocumentInvoice DocumentKind = "invoice"
)

func ParseDocumentKind(raw string) (DocumentKind, error) {
	switch DocumentKind(raw) {
	case DocumentReceipt, DocumentInvoice:
		return DocumentKind(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown document kind %q", domain.ErrBadRequest, raw)
	}
}

type PaymentKind string

const (
	PaymentCash     PaymentKind = "cash"
	PaymentCard     PaymentKind = "card"
	PaymentTransfer PaymentKind = "transfer"
)

func ParsePaymentKind(raw string) (PaymentKind, error) {
	switch PaymentKind(raw) {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return PaymentKind(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown payment kind %q", domain.ErrBadRequest, raw)
	}
}

// transferDuedateOffset is the fixed payment term applied when the payment
// kind is set to transfer.
const transferDuedateOffset = 30 * 24 * time.Hour

type Customer struct {
	ID        uint32 `json:"id"`
	Name      string `json:"name"`
	Zip       string `json:"zip"`
	Location  string `json:"location"`
	Street    string `json:"street"`
	TaxNumber string `json:"tax_number"`
}

// Commitment is an applied percentage discount agreement.
type Commitment struct {
	ID         string `json:"id"`
	Percentage int    `json:"percentage"`
}

type LoyaltyCard struct {
	AccountID string `json:"account_id"`
	CardID    string `json:"card_id"`
	Level     string `json:"level"`
}

// LoyaltyTransaction is a single point-burn, keyed by TransactionID for
// idempotency. Amount is signed; a negative amount undoes earlier burns.
type LoyaltyTransaction struct {
	AccountID     string `json:"account_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int    `json:"amount"`
}

type Payment struct {
	PaymentID string `json:"payment_id"`
	Amount    int    `json:"amount"`
}

// ListItem is one shopping-list line, keyed by SKU.
type ListItem struct {
	SKU             uint32    `json:"sku"`
	Name            string    `json:"name"`
	Piece           int       `json:"piece"`
	VAT             money.VAT `json:"vat"`
	UnitPriceNet    int       `json:"unit_price_net"`
	UnitPriceGross  int       `json:"unit_price_gross"`
	TotalPriceNet   int       `json:"total_price_net"`
	TotalPriceGross int       `json:"total_price_gross"`
}

// UplKind discriminates the closed set of unique-product-label variants.
type UplKind string

const (
	// UplSku is a plain (possibly depreciated) unit backing a SKU quantity.
	UplSku UplKind = "sku"
	// UplDerivedProduct is an opened/derived product sold by amount.
	UplDerivedProduct UplKind = "derived_product"
)

// UplInfo describes one physically labeled unit. SKU/Piece are meaningful
// when Kind == UplSku, ProductID/Amount when Kind == UplDerivedProduct.
type UplInfo struct {
	UplID            string     `json:"upl_id"`
	Kind             UplKind    `json:"kind"`
	SKU              uint32     `json:"sku,omitempty"`
	Piece            int        `json:"piece,omitempty"`
	ProductID        uint32     `json:"product_id,omitempty"`
	Amount           int        `json:"amount,omitempty"`
	Name             string     `json:"name"`
	RetailPriceNet   int        `json:"retail_price_net"`
	VAT              money.VAT  `json:"vat"`
	RetailPriceGross int        `json:"retail_price_gross"`
	ProcurementNet   int        `json:"procurement_net_price"`
	BestBefore       *time.Time `json:"best_before,omitempty"`
	Depreciated      bool       `json:"depreciated"`
}

// PieceCount reports how many sold pieces the label stands for.
func (u UplInfo) PieceCount() int {
	switch u.Kind {
	case UplSku:
		return u.Piece
	default:
		return 1
	}
}

// TotalNet is the label's own net line value: flat price for derived
// products, unit price times piece for SKU units.
func (u UplInfo) TotalNet() int {
	switch u.Kind {
	case UplDerivedProduct:
		return u.RetailPriceNet
	default:
		return u.RetailPriceNet * u.Piece
	}
}

func (u UplInfo) TotalGross() int {
	switch u.Kind {
	case UplDerivedProduct:
		return u.RetailPriceGross
	default:
		return u.RetailPriceGross * u.Piece
	}
}

// Cart is the mutable in-progress transaction. Every mutator recomputes the
// cached totals; Close re-derives and re-checks them before the cart may be
// converted into a purchase.
type Cart struct {
	Ancestor                *uuid.UUID           `json:"ancestor,omitempty"`
	ID                      uuid.UUID            `json:"id"`
	Customer                *Customer            `json:"customer,omitempty"`
	Commitment              *Commitment          `json:"commitment,omitempty"`
	LoyaltyCard             *LoyaltyCard         `json:"loyalty_card,omitempty"`
	BurnedPoints            []LoyaltyTransaction `json:"burned_points"`
	ShoppingList            []ListItem           `json:"shopping_list"`
	UplsSku                 []UplInfo            `json:"upls_sku"`
	UplsUnique              []UplInfo            `json:"upls_unique"`
	TotalNet                int                  `json:"total_net"`
	TotalVat                int                  `json:"total_vat"`
	TotalGross              int                  `json:"total_gross"`
	CommitmentDiscountValue int                  `json:"commitment_discount_value"`
	Payable                 int                  `json:"payable"`
	DocumentKind            DocumentKind         `json:"document_kind"`
	PaymentKind             PaymentKind          `json:"payment_kind"`
	Payments                []Payment            `json:"payments"`
	OwnerUID                uint32               `json:"owner_uid"`
	StoreID                 uint32               `json:"store_id,omitempty"`
	DateCompletion          time.Time            `json:"date_completion"`
	PaymentDuedate          time.Time            `json:"payment_duedate"`
	CreatedBy               uint32               `json:"created_by"`
	CreatedAt               time.Time            `json:"created_at"`
}

// New creates an open cart. StoreID zero means no store assigned.
func New(ownerUID uint32, storeID uint32, createdBy uint32) Cart {
	now := time.Now().UTC()
	c := Cart{
		ID:             uuid.New(),
		BurnedPoints:   []LoyaltyTransaction{},
		ShoppingList:   []ListItem{},
		UplsSku:        []UplInfo{},
		UplsUnique:     []UplInfo{},
		DocumentKind:   DocumentReceipt,
		PaymentKind:    PaymentCash,
		Payments:       []Payment{},
		OwnerUID:       ownerUID,
		StoreID:        storeID,
		DateCompletion: today(),
		PaymentDuedate: today(),
		CreatedBy:      createdBy,
		CreatedAt:      now,
	}
	c.recalculate()
	return c
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// SetCustomer attaches the billing party; nil detaches it.
func (c *Cart) SetCustomer(customer *Customer) {
	c.Customer = customer
}

// AddSku upserts a shopping-list line. An existing line for the SKU is fully
// replaced, not merged.
func (c *Cart) AddSku(sku uint32, piece int, name string, vat money.VAT, unitPriceNet, unitPriceGross int) {
	line := ListItem{
		SKU:             sku,
		Name:            name,
		Piece:           piece,
		VAT:             vat,
		UnitPriceNet:    unitPriceNet,
		UnitPriceGross:  unitPriceGross,
		TotalPriceNet:   unitPriceNet * piece,
		TotalPriceGross: unitPriceGross * piece,
	}
	for i := range c.ShoppingList {
		if c.ShoppingList[i].SKU == sku {
			c.ShoppingList[i] = line
			c.recalculate()
			return
		}
	}
	c.ShoppingList = append(c.ShoppingList, line)
	c.recalculate()
}

// RemoveSku removes a shopping-list line. Healthy labels must be detached
// first; a line that still backs labels cannot be removed.
func (c *Cart) RemoveSku(sku uint32) error {
	for _, u := range c.UplsSku {
		if u.Kind == UplSku && u.SKU == sku {
			return fmt.Errorf("%w: sku %d still has attached UPL %s; detach it first", domain.ErrConflict, sku, u.UplID)
		}
	}
	for i := range c.ShoppingList {
		if c.ShoppingList[i].SKU == sku {
			c.ShoppingList = append(c.ShoppingList[:i], c.ShoppingList[i+1:]...)
			c.recalculate()
			return nil
		}
	}
	return fmt.Errorf("%w: sku %d is not in the cart", domain.ErrNotFound, sku)
}

// SetSkuPiece replaces the piece count of an existing line and refreshes the
// dependent line totals.
func (c *Cart) SetSkuPiece(sku uint32, piece int) error {
	for i := range c.ShoppingList {
		if c.ShoppingList[i].SKU == sku {
			c.ShoppingList[i].Piece = piece
			c.ShoppingList[i].TotalPriceNet = c.ShoppingList[i].UnitPriceNet * piece
			c.ShoppingList[i].TotalPriceGross = c.ShoppingList[i].UnitPriceGross * piece
			c.recalculate()
			return nil
		}
	}
	return fmt.Errorf("%w: sku %d is not in the cart", domain.ErrNotFound, sku)
}

func (c *Cart) hasUpl(uplID string) bool {
	for _, u := range c.UplsSku {
		if u.UplID == uplID {
			return true
		}
	}
	for _, u := range c.UplsUnique {
		if u.UplID == uplID {
			return true
		}
	}
	return false
}

// AddUpl attaches a unique product label. Depreciated SKU units and derived
// products become their own priced lines; a healthy SKU unit backs the
// shopping list, folding its piece count into the matching line and creating
// the line when absent.
func (c *Cart) AddUpl(u UplInfo) error {
	if c.hasUpl(u.UplID) {
		return fmt.Errorf("%w: UPL %s is already in the cart", domain.ErrConflict, u.UplID)
	}

	switch u.Kind {
	case UplDerivedProduct:
		c.UplsUnique = append(c.UplsUnique, u)
	case UplSku:
		if u.Depreciated {
			c.UplsUnique = append(c.UplsUnique, u)
			break
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
			c.ShoppingList = append(c.ShoppingList, ListItem{
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
	default:
		return fmt.Errorf("%w: unknown UPL kind %q", domain.ErrBadRequest, u.Kind)
	}

	c.recalculate()
	return nil
}

// RemoveUpl detaches a label from whichever collection holds it; absent ids
// are a no-op. The shopping-list piece count is deliberately left untouched,
// so a resulting quantity mismatch stays visible to Close.
func (c *Cart) RemoveUpl(uplID string) {
	for i := range c.UplsSku {
		if c.UplsSku[i].UplID == uplID {
			c.UplsSku = append(c.UplsSku[:i], c.UplsSku[i+1:]...)
			c.recalculate()
			return
		}
	}
	for i := range c.UplsUnique {
		if c.UplsUnique[i].UplID == uplID {
			c.UplsUnique = append(c.UplsUnique[:i], c.UplsUnique[i+1:]...)
			c.recalculate()
			return
		}
	}
}

func (c *Cart) SetDocument(kind DocumentKind) {
	c.DocumentKind = kind
}

// SetPayment sets the payment kind, recomputes the payment due date (cash and
// card settle today, transfer gets the fixed term) and re-runs the totals,
// since cash rounding of the payable depends on the kind.
func (c *Cart) SetPayment(kind PaymentKind) {
	c.PaymentKind = kind
	if kind == PaymentTransfer {
		c.PaymentDuedate = today().Add(transferDuedateOffset)
	} else {
		c.PaymentDuedate = today()
	}
	c.recalculate()
}

func (c *Cart) AddPayment(p Payment) {
	c.Payments = append(c.Payments, p)
}

func (c *Cart) SetOwner(ownerUID uint32) {
	c.OwnerUID = ownerUID
}

func (c *Cart) SetStoreID(storeID uint32) {
	c.StoreID = storeID
}

// AddLoyaltyCard attaches a loyalty card; at most one per cart.
func (c *Cart) AddLoyaltyCard(accountID, cardID, level string) error {
	if c.LoyaltyCard != nil {
		return fmt.Errorf("%w: cart already has loyalty card %s", domain.ErrConflict, c.LoyaltyCard.CardID)
	}
	c.LoyaltyCard = &LoyaltyCard{AccountID: accountID, CardID: cardID, Level: level}
	return nil
}

// RemoveLoyaltyCard detaches the card. Points already burned against it must
// be refunded first: the burned balance has to be exactly zero.
func (c *Cart) RemoveLoyaltyCard() error {
	if c.LoyaltyCard == nil {
		return fmt.Errorf("%w: cart has no loyalty card", domain.ErrNotFound)
	}
	if c.BurnedPointsBalance() != 0 {
		return fmt.Errorf("%w: %d points are still burned against the card", domain.ErrConflict, c.BurnedPointsBalance())
	}
	c.LoyaltyCard = nil
	return nil
}

// BurnPoints records a point-burn transaction. The transaction id is an
// idempotency key; a negative amount may not drive the running balance below
// zero.
func (c *Cart) BurnPoints(accountID, transactionID string, amount int) error {
	for _, tr := range c.BurnedPoints {
		if tr.TransactionID == transactionID {
			return fmt.Errorf("%w: burn transaction %s already recorded", domain.ErrConflict, transactionID)
		}
	}
	if amount < 0 && c.BurnedPointsBalance()+amount < 0 {
		return fmt.Errorf("%w: refunding %d points would drive the burned balance below zero", domain.ErrConflict, -amount)
	}
	c.BurnedPoints = append(c.BurnedPoints, LoyaltyTransaction{
		AccountID:     accountID,
		TransactionID: transactionID,
		Amount:        amount,
	})
	c.recalculate()
	return nil
}

// AddCommitment attaches (or replaces) the percentage discount agreement.
func (c *Cart) AddCommitment(id string, percentage int) error {
	if percentage < 0 || percentage > 100 {
		return fmt.Errorf("%w: commitment percentage %d out of range 0-100", domain.ErrBadRequest, percentage)
	}
	c.Commitment = &Commitment{ID: id, Percentage: percentage}
	c.recalculate()
	return nil
}

func (c *Cart) RemoveCommitment() error {
	if c.Commitment == nil {
		return fmt.Errorf("%w: cart has no commitment", domain.ErrNotFound)
	}
	c.Commitment = nil
	c.recalculate()
	return nil
}

func (c *Cart) ItemsTotalNet() int {
	sum := 0
	for _, li := range c.ShoppingList {
		sum += li.TotalPriceNet
	}
	for _, u := range c.UplsUnique {
		sum += u.TotalNet()
	}
	return sum
}

func (c *Cart) ItemsTotalGross() int {
	sum := 0
	for _, li := range c.ShoppingList {
		sum += li.TotalPriceGross
	}
	for _, u := range c.UplsUnique {
		sum += u.TotalGross()
	}
	return sum
}

// BurnedPointsBalance sums the burn transactions, floored at zero so the
// discount value can never go negative.
func (c *Cart) BurnedPointsBalance() int {
	sum := 0
	for _, tr := range c.BurnedPoints {
		sum += tr.Amount
	}
	if sum < 0 {
		return 0
	}
	return sum
}

// Balance is payable minus recorded payments; zero means settled.
func (c *Cart) Balance() int {
	paid := 0
	for _, p := range c.Payments {
		paid += p.Amount
	}
	return c.Payable - paid
}

// ProfitNet is total net minus the procurement net price of every attached
// label.
func (c *Cart) ProfitNet() int {
	procurement := 0
	for _, u := range c.UplsSku {
		procurement += u.ProcurementNet
	}
	for _, u := range c.UplsUnique {
		procurement += u.ProcurementNet
	}
	return c.TotalNet - procurement
}

// recalculate is the single totals calculator; every mutator that affects
// money must end by calling it. The discount net split always divides by
// 1.27: discounts are treated as levied on a 27% VAT basis no matter what
// each line's actual rate is. That matches the historical behaviour and must
// not be silently "corrected".
func (c *Cart) recalculate() {
	itemsNet := c.ItemsTotalNet()
	itemsGross := c.ItemsTotalGross()

	discount := 0
	if c.Commitment != nil {
		discount = int(math.Round(float64(itemsGross) * float64(c.Commitment.Percentage) / 100))
	}
	burned := c.BurnedPointsBalance()

	c.CommitmentDiscountValue = discount
	c.TotalGross = itemsGross - discount - burned
	c.TotalNet = itemsNet - int(math.Round(float64(discount+burned)/1.27))
	c.TotalVat = c.TotalGross - c.TotalNet

	if c.PaymentKind == PaymentCash {
		c.Payable = money.RoundCash(c.TotalGross)
	} else {
		c.Payable = c.TotalGross
	}
}

// Recalculate re-derives the cached totals from current state. Exposed for
// restore and migration paths that assemble a cart outside the mutators.
func (c *Cart) Recalculate() {
	c.recalculate()
}

// Close is the terminal validation gate. It checks, in order: the invoice
// customer requirement, shopping-list/label quantity reconciliation, cached
// totals against a fresh recomputation, and payment-kind settlement rules.
// The first failure wins and the cart is left untouched. On nil return the
// caller converts the cart into a purchase and discards it.
func (c *Cart) Close() error {
	if c.DocumentKind == DocumentInvoice && c.Customer == nil {
		return fmt.Errorf("%w: invoice requires customer", domain.ErrRejected)
	}

	for _, li := range c.ShoppingList {
		backed := 0
		for _, u := range c.UplsSku {
			if u.Kind == UplSku && u.SKU == li.SKU {
				backed += u.Piece
			}
		}
		if backed != li.Piece {
			return fmt.Errorf("%w: sku/tag quantity mismatch for sku %d (list %d, labels %d)",
				domain.ErrRejected, li.SKU, li.Piece, backed)
		}
	}

	check := *c
	check.recalculate()
	if check.TotalNet != c.TotalNet || check.TotalVat != c.TotalVat ||
		check.TotalGross != c.TotalGross || check.Payable != c.Payable {
		return fmt.Errorf("%w: totals inconsistent", domain.ErrRejected)
	}

	switch c.PaymentKind {
	case PaymentCash, PaymentCard:
		if c.Balance() != 0 {
			return fmt.Errorf("%w: cart not settled, balance is %d", domain.ErrRejected, c.Balance())
		}
	case PaymentTransfer:
		if c.DocumentKind != DocumentInvoice {
			return fmt.Errorf("%w: transfer requires invoice", domain.ErrRejected)
		}
	}

	return nil
}
