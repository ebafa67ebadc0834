package store

import (
	"context"
	"errors"
	"time"

	"servispos/backend/internal/domain"
)

var (
	// ErrNotFound signals an unknown transaction, product, category, or user id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState signals a state-machine violation, e.g. completing an
	// already-completed transaction.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation signals rejected input: empty line lists, insufficient
	// payment, malformed fields.
	ErrValidation = errors.New("validation failed")
)

// Repository is the single owner of catalog, ledger, and user records.
// CompleteTransaction is the only operation that mutates stock as a side
// effect and must apply the status flip and every stock decrement as one
// atomic unit: concurrent completions of the same id yield exactly one
// success, and a failed call leaves transaction and stock untouched.
type Repository interface {
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	// AdjustStock subtracts qty from the product's stock. No lower bound is
	// enforced; stock may go negative.
	AdjustStock(ctx context.Context, productID int64, qty int) error

	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	CompleteTransaction(ctx context.Context, id int64, cashierID int64, customerName string, amountPaid int64, completedAt time.Time) (*domain.Transaction, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
