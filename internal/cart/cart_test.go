package cart

import (
	"errors"
	"testing"
	"time"

	"boltline/backend/internal/domain"
	"boltline/backend/internal/money"
)

func TestTotalsEndToEnd(t *testing.T) {
	c := New(1, 7, 1)
	c.AddSku(100, 2, "Mineral water 1.5l", money.VAT27, 1000, 1270)

	if c.TotalNet != 2000 || c.TotalGross != 2540 || c.TotalVat != 540 {
		t.Fatalf("totals = net %d vat %d gross %d, want 2000/540/2540", c.TotalNet, c.TotalVat, c.TotalGross)
	}

	if err := c.AddCommitment("commitment-1", 10); err != nil {
		t.Fatalf("add commitment: %v", err)
	}
	if c.CommitmentDiscountValue != 254 {
		t.Fatalf("discount = %d, want 254", c.CommitmentDiscountValue)
	}
	if c.TotalGross != 2286 {
		t.Fatalf("gross after discount = %d, want 2286", c.TotalGross)
	}
	// Cash is the default payment kind, so the payable is cash-rounded.
	if c.Payable != 2285 {
		t.Fatalf("payable = %d, want 2285", c.Payable)
	}
	wantNet := 2000 - 200 // round(254/1.27)
	if c.TotalNet != wantNet {
		t.Fatalf("net after discount = %d, want %d", c.TotalNet, wantNet)
	}
	if c.TotalVat != c.TotalGross-c.TotalNet {
		t.Fatalf("vat = %d, want gross-net = %d", c.TotalVat, c.TotalGross-c.TotalNet)
	}
}

func TestPayableNotRoundedForCard(t *testing.T) {
	c := New(1, 0, 1)
	c.AddSku(100, 2, "Water", money.VAT27, 1000, 1270)
	if err := c.AddCommitment("x", 10); err != nil {
		t.Fatalf("add commitment: %v", err)
	}
	c.SetPayment(PaymentCard)
	if c.Payable != 2286 {
		t.Fatalf("card payable = %d, want 2286", c.Payable)
	}
	c.SetPayment(PaymentCash)
	if c.Payable != 2285 {
		t.Fatalf("cash payable = %d, want 2285", c.Payable)
	}
}

func TestAddSkuReplacesLine(t *testing.T) {
	c := New(1, 0, 1)
	c.AddSku(5, 1, "Bread", money.VAT5, 400, 420)
	c.AddSku(5, 3, "Bread", money.VAT5, 400, 420)
	if len(c.ShoppingList) != 1 {
		t.Fatalf("expected one line, got %d", len(c.ShoppingList))
	}
	if c.ShoppingList[0].Piece != 3 || c.ShoppingList[0].TotalPriceGross != 1260 {
		t.Fatalf("line not replaced: %+v", c.ShoppingList[0])
	}
}

func TestRemoveSku(t *testing.T) {
	c := New(1, 0, 1)
	c.AddSku(5, 1, "Bread", money.VAT5, 400, 420)

	if err := c.RemoveSku(99); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown sku, got %v", err)
	}
	if err := c.RemoveSku(5); err != nil {
		t.Fatalf("remove sku: %v", err)
	}
	if len(c.ShoppingList) != 0 || c.TotalGross != 0 {
		t.Fatalf("cart not empty after remove: %+v", c)
	}
}

func TestRemoveSkuBlockedByAttachedUpl(t *testing.T) {
	c := New(1, 0, 1)
	if err := c.AddUpl(healthyUpl("U1", 5, 1, 400, 420)); err != nil {
		t.Fatalf("add upl: %v", err)
	}
	if err := c.RemoveSku(5); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict while labels attached, got %v", err)
	}
	c.RemoveUpl("U1")
	if err := c.SetSkuPiece(5, 0); err != nil {
		t.Fatalf("set piece: %v", err)
	}
	if err := c.RemoveSku(5); err != nil {
		t.Fatalf("remove after detach: %v", err)
	}
}

func healthyUpl(id string, sku uint32, piece, net, gross int) UplInfo {
	return UplInfo{
		UplID:            id,
		Kind:             UplSku,
		SKU:              sku,
		Piece:            piece,
		Name:             "Bread",
		RetailPriceNet:   net,
		VAT:              money.VAT5,
		RetailPriceGross: gross,
		ProcurementNet:   net / 2,
	}
}

func TestAddUplHealthyFoldsIntoList(t *testing.T) {
	c := New(1, 0, 1)
	if err := c.AddUpl(healthyUpl("U1", 5, 2, 400, 420)); err != nil {
		t.Fatalf("add upl: %v", err)
	}
	if len(c.ShoppingList) != 1 || c.ShoppingList[0].Piece != 2 {
		t.Fatalf("expected list line with piece 2, got %+v", c.ShoppingList)
	}
	if err := c.AddUpl(healthyUpl("U2", 5, 1, 400, 420)); err != nil {
		t.Fatalf("add second upl: %v", err)
	}
	if c.ShoppingList[0].Piece != 3 {
		t.Fatalf("piece = %d, want 3", c.ShoppingList[0].Piece)
	}
	if c.TotalGross != 3*420 {
		t.Fatalf("gross = %d, want %d", c.TotalGross, 3*420)
	}
}

func TestAddUplDuplicateRejected(t *testing.T) {
	c := New(1, 0, 1)
	if err := c.AddUpl(healthyUpl("U1", 5, 1, 400, 420)); err != nil {
		t.Fatalf("add upl: %v", err)
	}
	if err := c.AddUpl(healthyUpl("U1", 5, 1, 400, 420)); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate label, got %v", err)
	}
}

func TestAddUplDepreciatedOwnLine(t *testing.T) {
	c := New(1, 0, 1)
	u := healthyUpl("U1", 5, 2, 400, 420)
	u.Depreciated = true
	u.RetailPriceNet = 200
	u.RetailPriceGross = 210
	if err := c.AddUpl(u); err != nil {
		t.Fatalf("add upl: %v", err)
	}
	if len(c.ShoppingList) != 0 {
		t.Fatalf("depreciated unit must not touch the shopping list: %+v", c.ShoppingList)
	}
	if len(c.UplsUnique) != 1 {
		t.Fatalf("expected unique line, got %+v", c.UplsUnique)
	}
	if c.TotalGross != 2*210 || c.TotalNet != 2*200 {
		t.Fatalf("totals = net %d gross %d, want 400/420", c.TotalNet, c.TotalGross)
	}
}

func TestAddUplDerivedProduct(t *testing.T) {
	c := New(1, 0, 1)
	u := UplInfo{
		UplID:            "D1",
		Kind:             UplDerivedProduct,
		ProductID:        42,
		Amount:           500,
		Name:             "Cheese, cut",
		RetailPriceNet:   900,
		VAT:              money.VAT27,
		RetailPriceGross: 1143,
		ProcurementNet:   600,
	}
	if err := c.AddUpl(u); err != nil {
		t.Fatalf("add upl: %v", err)
	}
	// Flat price: amount is informational, not a multiplier.
	if c.TotalNet != 900 || c.TotalGross != 1143 {
		t.Fatalf("totals = net %d gross %d, want 900/1143", c.TotalNet, c.TotalGross)
	}
	if c.ProfitNet() != c.TotalNet-600 {
		t.Fatalf("profit = %d, want %d", c.ProfitNet(), c.TotalNet-600)
	}
}

func TestBurnPoints(t *testing.T) {
	c := New(1, 0, 1)
	c.AddSku(100, 2, "Water", money.VAT27, 1000, 1270)

	if err := c.BurnPoints("acc", "tr-1", 300); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := c.BurnPoints("acc", "tr-1", 300); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate transaction, got %v", err)
	}
	if c.TotalGross != 2540-300 {
		t.Fatalf("gross = %d, want %d", c.TotalGross, 2540-300)
	}

	if err := c.BurnPoints("acc", "tr-2", -400); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict when refund exceeds balance, got %v", err)
	}
	if err := c.BurnPoints("acc", "tr-3", -300); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if c.BurnedPointsBalance() != 0 || c.TotalGross != 2540 {
		t.Fatalf("balance %d gross %d after full refund", c.BurnedPointsBalance(), c.TotalGross)
	}
}

func TestLoyaltyCardLifecycle(t *testing.T) {
	c := New(1, 0, 1)
	if err := c.AddLoyaltyCard("acc", "card-1", "gold"); err != nil {
		t.Fatalf("add card: %v", err)
	}
	if err := c.AddLoyaltyCard("acc", "card-2", "gold"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for second card, got %v", err)
	}

	c.AddSku(100, 1, "Water", money.VAT27, 1000, 1270)
	if err := c.BurnPoints("acc", "tr-1", 100); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := c.RemoveLoyaltyCard(); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict while points burned, got %v", err)
	}
	if err := c.BurnPoints("acc", "tr-2", -100); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := c.RemoveLoyaltyCard(); err != nil {
		t.Fatalf("remove card: %v", err)
	}
	if err := c.RemoveLoyaltyCard(); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for second removal, got %v", err)
	}
}

func TestCommitmentBounds(t *testing.T) {
	c := New(1, 0, 1)
	if err := c.AddCommitment("x", 101); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected bad request for 101%%, got %v", err)
	}
	if err := c.AddCommitment("x", -1); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected bad request for -1%%, got %v", err)
	}
	if err := c.RemoveCommitment(); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found removing absent commitment, got %v", err)
	}
	if err := c.AddCommitment("x", 10); err != nil {
		t.Fatalf("add commitment: %v", err)
	}
	if err := c.RemoveCommitment(); err != nil {
		t.Fatalf("remove commitment: %v", err)
	}
	if c.CommitmentDiscountValue != 0 {
		t.Fatalf("discount still %d after removal", c.CommitmentDiscountValue)
	}
}

func TestSetPaymentDuedate(t *testing.T) {
	c := New(1, 0, 1)
	day := func(ts time.Time) time.Time {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	now := time.Now().UTC()

	c.SetPayment(PaymentTransfer)
	if got, want := c.PaymentDuedate, day(now).Add(30*24*time.Hour); !got.Equal(want) {
		t.Fatalf("transfer duedate = %v, want %v", got, want)
	}
	c.SetPayment(PaymentCard)
	if got, want := c.PaymentDuedate, day(now); !got.Equal(want) {
		t.Fatalf("card duedate = %v, want %v", got, want)
	}
}

func settledCart(t *testing.T) Cart {
	t.Helper()
	c := New(1, 0, 1)
	if err := c.AddUpl(healthyUpl("U1", 5, 2, 400, 420)); err != nil {
		t.Fatalf("add upl: %v", err)
	}
	c.SetPayment(PaymentCash)
	c.AddPayment(Payment{PaymentID: "P1", Amount: c.Payable})
	return c
}

func TestCloseHappyPath(t *testing.T) {
	c := settledCart(t)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestCloseInvoiceRequiresCustomer(t *testing.T) {
	c := settledCart(t)
	c.SetDocument(DocumentInvoice)
	if err := c.Close(); !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected rejected, got %v", err)
	}
	c.SetCustomer(&Customer{ID: 9, Name: "Acme Kft.", TaxNumber: "12345678-2-42"})
	if err := c.Close(); err != nil {
		t.Fatalf("close with customer: %v", err)
	}
}

func TestCloseQuantityMismatch(t *testing.T) {
	c := settledCart(t)
	// Detaching a label leaves the list piece untouched, so the backing
	// counts no longer reconcile.
	c.RemoveUpl("U1")
	if err := c.Close(); !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected rejected for quantity mismatch, got %v", err)
	}
}

func TestCloseTotalsInconsistent(t *testing.T) {
	c := settledCart(t)
	c.TotalGross++ // simulate corrupted persisted state
	if err := c.Close(); !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected rejected for inconsistent totals, got %v", err)
	}
}

func TestCloseUnsettledBalance(t *testing.T) {
	c := settledCart(t)
	c.Payments = c.Payments[:0]
	if err := c.Close(); !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected rejected for unpaid cart, got %v", err)
	}
}

func TestCloseTransferRequiresInvoice(t *testing.T) {
	c := New(1, 0, 1)
	if err := c.AddUpl(healthyUpl("U1", 5, 1, 400, 420)); err != nil {
		t.Fatalf("add upl: %v", err)
	}
	c.SetPayment(PaymentTransfer)
	if err := c.Close(); !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected rejected for transfer receipt, got %v", err)
	}
	c.SetDocument(DocumentInvoice)
	c.SetCustomer(&Customer{ID: 1, Name: "Acme Kft."})
	// Transfer carts may close unpaid; the balance stays open until the
	// wire arrives.
	if err := c.Close(); err != nil {
		t.Fatalf("close transfer invoice: %v", err)
	}
}

func TestParseKinds(t *testing.T) {
	if _, err := ParseDocumentKind("memo"); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if _, err := ParsePaymentKind("cheque"); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if k, err := ParseDocumentKind("invoice"); err != nil || k != DocumentInvoice {
		t.Fatalf("ParseDocumentKind(invoice) = %q, %v", k, err)
	}
	if k, err := ParsePaymentKind("transfer"); err != nil || k != PaymentTransfer {
		t.Fatalf("ParsePaymentKind(transfer) = %q, %v", k, err)
	}
}
