package migration

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"boltline/backend/internal/domain"
	"boltline/backend/internal/money"
)

func legacyCart() LegacyCart {
	ten := 10
	store := uint32(7)
	return LegacyCart{
		ID:                 uuid.New(),
		DiscountPercentage: &ten,
		ShoppingList: []LegacyListItem{{
			SKU:             100,
			Name:            "Mineral water 1.5l",
			Piece:           2,
			VAT:             "27",
			UnitPriceNet:    1000,
			UnitPriceGross:  1270,
			TotalPriceNet:   2000,
			TotalPriceGross: 2540,
		}},
		UplsSku: []LegacyUpl{{
			UplID:            "U1",
			Kind:             "Sku",
			SKU:              100,
			Piece:            2,
			Name:             "Mineral water 1.5l",
			RetailPriceNet:   1000,
			VAT:              "27",
			RetailPriceGross: 1270,
			ProcurementNet:   700,
		}},
		TotalNet:       2000,
		TotalVat:       540,
		TotalGross:     2540,
		DocumentKind:   "Receipt",
		PaymentKind:    "Cash",
		Payments:       []LegacyPayment{},
		OwnerUID:       3,
		StoreID:        &store,
		DateCompletion: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		PaymentDuedate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		CreatedBy:      3,
		CreatedAt:      time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestConvertCart(t *testing.T) {
	l := legacyCart()
	c, err := ConvertCart(l)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if c.ID != l.ID || c.OwnerUID != 3 || c.StoreID != 7 {
		t.Fatalf("identity fields not carried: %+v", c)
	}
	if c.Commitment == nil || c.Commitment.Percentage != 10 || c.Commitment.ID == "" {
		t.Fatalf("discount percentage not converted to commitment: %+v", c.Commitment)
	}
	// Totals are re-derived: 10% of 2540 = 254 discount, cash-rounded payable.
	if c.CommitmentDiscountValue != 254 || c.TotalGross != 2286 || c.Payable != 2285 {
		t.Fatalf("re-derived totals wrong: discount %d gross %d payable %d",
			c.CommitmentDiscountValue, c.TotalGross, c.Payable)
	}
	if len(c.UplsSku) != 1 || c.UplsSku[0].Kind != "sku" {
		t.Fatalf("upl not converted: %+v", c.UplsSku)
	}
}

func TestConvertCartZeroDiscountMeansNoCommitment(t *testing.T) {
	l := legacyCart()
	zero := 0
	l.DiscountPercentage = &zero
	c, err := ConvertCart(l)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if c.Commitment != nil {
		t.Fatalf("zero discount must not create a commitment: %+v", c.Commitment)
	}
	if c.Payable != 2540 {
		t.Fatalf("payable = %d, want 2540", c.Payable)
	}
}

func TestConvertCartRejectsUnknownKinds(t *testing.T) {
	l := legacyCart()
	l.DocumentKind = "Memo"
	if _, err := ConvertCart(l); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected bad request for unknown document kind, got %v", err)
	}

	l = legacyCart()
	l.UplsSku[0].Kind = "Mystery"
	if _, err := ConvertCart(l); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected bad request for unknown upl kind, got %v", err)
	}
}

func TestConvertPurchase(t *testing.T) {
	restored := uuid.New()
	l := LegacyPurchase{
		ID: uuid.New(),
		Items: []LegacyItem{{
			Kind:             "DepreciatedSku",
			Name:             "Yogurt, short dated",
			Piece:            1,
			RetailPriceNet:   100,
			VAT:              "18",
			RetailPriceGross: 118,
			TotalPriceNet:    100,
			TotalPriceGross:  118,
		}},
		UplInfoObjects: []LegacyUpl{{
			UplID:            "X1",
			Kind:             "Sku",
			SKU:              55,
			Piece:            1,
			Name:             "Yogurt, short dated",
			RetailPriceNet:   100,
			VAT:              "18",
			RetailPriceGross: 118,
			Depreciated:      true,
		}},
		TotalNet:       100,
		TotalVat:       18,
		TotalGross:     118,
		DocumentKind:   "Invoice",
		PaymentKind:    "Transfer",
		Payments:       []LegacyPayment{{PaymentID: "P1", Amount: 50}},
		Balance:        999, // legacy stored balance is ignored
		ProfitNet:      10,
		OwnerUID:       3,
		DateCompletion: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		PaymentDuedate: time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		Restored:       &restored,
		CreatedBy:      3,
		CreatedAt:      time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
	}

	p, err := ConvertPurchase(l)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	// Verbatim totals, payable filled from gross, balance re-derived.
	if p.TotalNet != 100 || p.TotalGross != 118 || p.Payable != 118 {
		t.Fatalf("totals wrong: %+v", p)
	}
	if p.Balance() != 118-50 {
		t.Fatalf("balance = %d, want %d", p.Balance(), 118-50)
	}
	if p.Items[0].Kind != "depreciated_sku" || p.Items[0].VAT != money.VAT18 {
		t.Fatalf("item not converted: %+v", p.Items[0])
	}
	if !p.Restored() || *p.RestoredTo != restored {
		t.Fatalf("restored reference lost: %+v", p.RestoredTo)
	}
	if p.ProfitNet != 10 {
		t.Fatalf("profit = %d, want 10", p.ProfitNet)
	}
}
