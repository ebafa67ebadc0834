package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"servispos/backend/internal/domain"
	"servispos/backend/internal/store"
	"servispos/backend/internal/xid"
)

func TestCompleteTransactionDecrementsStockOnce(t *testing.T) {
	databaseURL := os.Getenv("SERVISPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SERVISPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	categoryID := xid.New()
	productID := xid.New()
	var txID int64

	t.Cleanup(func() {
		if txID != 0 {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, txID)
			_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, txID)
		}
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, categoryID)
	})

	if _, err := s.CreateCategory(ctx, domain.Category{ID: categoryID, Name: "Sparepart IT"}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{
		ID:         productID,
		Name:       "LCD Integration",
		Price:      100,
		Stock:      3,
		CategoryID: categoryID,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	created, err := s.CreateTransaction(ctx, domain.Transaction{
		Items: []domain.TransactionItem{{ProductID: productID, Quantity: 5, Price: 100, Subtotal: 500}},
		Total: 500,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	txID = created.ID

	if _, err := s.CompleteTransaction(ctx, txID, 1, "Budi", 400, time.Now().UTC()); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected underpayment rejection, got %v", err)
	}

	completed, err := s.CompleteTransaction(ctx, txID, 1, "Budi", 600, time.Now().UTC())
	if err != nil {
		t.Fatalf("complete transaction: %v", err)
	}
	if completed.Status != domain.TxStatusCompleted || completed.Change == nil || *completed.Change != 100 {
		t.Fatalf("unexpected completed transaction: %+v", completed)
	}

	if _, err := s.CompleteTransaction(ctx, txID, 1, "Budi", 600, time.Now().UTC()); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected second completion to fail, got %v", err)
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != -2 {
		t.Fatalf("expected stock -2 after one completion, got %d", product.Stock)
	}
}
