package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"boltline/backend/internal/cart"
	"boltline/backend/internal/domain"
	"boltline/backend/internal/money"
	"boltline/backend/internal/purchase"
)

func TestCartLifecycleAgainstDatabase(t *testing.T) {
	databaseURL := os.Getenv("BOLTLINE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BOLTLINE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	c := cart.New(1, 7, 1)
	c.AddSku(100, 2, "Mineral water 1.5l", money.VAT27, 1000, 1270)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, c.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM purchases WHERE id = $1`, c.ID)
	})

	if err := s.InsertCart(ctx, c); err != nil {
		t.Fatalf("insert cart: %v", err)
	}
	if err := s.InsertCart(ctx, c); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}

	updated, err := s.UpdateCart(ctx, c.ID, func(c *cart.Cart) error {
		return c.AddCommitment("commitment-1", 10)
	})
	if err != nil {
		t.Fatalf("update cart: %v", err)
	}
	if updated.CommitmentDiscountValue != 254 {
		t.Fatalf("discount = %d, want 254", updated.CommitmentDiscountValue)
	}

	reloaded, err := s.CartByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if reloaded.Payable != 2285 {
		t.Fatalf("payable = %d, want 2285", reloaded.Payable)
	}

	// Failing closures must not persist their mutations.
	boom := errors.New("boom")
	if _, err := s.UpdateCart(ctx, c.ID, func(c *cart.Cart) error {
		c.AddSku(200, 1, "Should not persist", money.VAT27, 100, 127)
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected fn error surfaced, got %v", err)
	}
	reloaded, err = s.CartByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("get cart after failed update: %v", err)
	}
	if len(reloaded.ShoppingList) != 1 {
		t.Fatalf("failed update leaked state: %+v", reloaded.ShoppingList)
	}

	p := purchase.FromCart(reloaded)
	if err := s.InsertPurchase(ctx, p); err != nil {
		t.Fatalf("insert purchase: %v", err)
	}
	if err := s.RemoveCart(ctx, c.ID); err != nil {
		t.Fatalf("remove cart: %v", err)
	}
	if _, err := s.CartByID(ctx, c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after remove, got %v", err)
	}

	got, err := s.PurchaseByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if got.TotalGross != p.TotalGross || len(got.Items) != len(p.Items) {
		t.Fatalf("purchase round trip differs: %+v", got)
	}
}
