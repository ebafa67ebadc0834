package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"servispos/backend/internal/domain"
	"servispos/backend/internal/report"
	"servispos/backend/internal/store"
	"servispos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const defaultLowStockThreshold = 5

type Service struct {
	repo              store.Repository
	reports           *report.Engine
	lowStockThreshold int
}

func New(repo store.Repository, reports *report.Engine, lowStockThreshold int) *Service {
	if lowStockThreshold <= 0 {
		lowStockThreshold = defaultLowStockThreshold
	}

	return &Service{
		repo:              repo,
		reports:           reports,
		lowStockThreshold: lowStockThreshold,
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Category{}, fmt.Errorf("%w: category name required", store.ErrValidation)
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{Name: req.Name})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_create", "category", created.ID, created.Name)
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id int64, req domain.CategoryCreateRequest) (domain.Category, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Category{}, fmt.Errorf("%w: category name required", store.ErrValidation)
	}

	updated, err := s.repo.UpdateCategory(ctx, domain.Category{ID: id, Name: req.Name})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_update", "category", updated.ID, updated.Name)
	return *updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "category_delete", "category", id, "")
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// LowStockProducts lists products at or below the restock threshold,
// including any driven negative by completions.
func (s *Service) LowStockProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	low := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.Stock <= s.lowStockThreshold {
			low = append(low, p)
		}
	}
	return low, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name required", store.ErrValidation)
	}
	if req.Price < 0 || req.Stock < 0 {
		return domain.Product{}, fmt.Errorf("%w: price and stock must not be negative", store.ErrValidation)
	}
	if _, err := s.repo.GetCategory(ctx, req.CategoryID); err != nil {
		return domain.Product{}, fmt.Errorf("category %d: %w", req.CategoryID, err)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:       req.Name,
		Price:      req.Price,
		Stock:      req.Stock,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.Price, created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: product name required", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return domain.Product{}, fmt.Errorf("%w: price must not be negative", store.ErrValidation)
		}
		updated.Price = *req.Price
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if req.CategoryID != nil {
		if _, err := s.repo.GetCategory(ctx, *req.CategoryID); err != nil {
			return domain.Product{}, fmt.Errorf("category %d: %w", *req.CategoryID, err)
		}
		updated.CategoryID = *req.CategoryID
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", saved.Name, saved.Price, saved.Stock))
	return *saved, nil
}

// AdjustProductStock applies a manual stock correction outside the
// completion flow, e.g. opname counts or damaged parts. Positive quantities
// subtract, negative quantities restock, and no floor is enforced.
func (s *Service) AdjustProductStock(ctx context.Context, id int64, req domain.StockAdjustRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if req.Quantity == 0 {
		return domain.Product{}, fmt.Errorf("%w: quantity must not be zero", store.ErrValidation)
	}
	if _, err := s.repo.GetProduct(ctx, id); err != nil {
		return domain.Product{}, err
	}

	if err := s.repo.AdjustStock(ctx, id, req.Quantity); err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "stock_adjust", "product", id, fmt.Sprintf("quantity=%d,reason=%s", req.Quantity, req.Reason))
	adjusted, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *adjusted, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

// CreateTransaction opens a pending repair job. Item prices are snapshotted
// from the catalog at this moment and the total is fixed; later price edits
// or the completion itself never change it. Stock is not touched or checked
// here: the parts are reserved physically on the workbench, not in the
// ledger, and only completion decrements stock.
func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	if len(req.Items) == 0 && len(req.Services) == 0 {
		return domain.Transaction{}, fmt.Errorf("%w: transaction needs at least one item or service", store.ErrValidation)
	}

	ids := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return domain.Transaction{}, fmt.Errorf("%w: item quantity must be at least 1", store.ErrValidation)
		}
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Transaction{}, err
	}

	var total int64
	items := make([]domain.TransactionItem, 0, len(req.Items))
	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return domain.Transaction{}, fmt.Errorf("product %d: %w", item.ProductID, store.ErrNotFound)
		}
		subtotal := product.Price * int64(item.Quantity)
		items = append(items, domain.TransactionItem{
			ProductID: product.ID,
			Quantity:  item.Quantity,
			Price:     product.Price,
			Subtotal:  subtotal,
		})
		total += subtotal
	}

	services := make([]domain.ServiceItem, 0, len(req.Services))
	for _, svc := range req.Services {
		desc := strings.TrimSpace(svc.Description)
		if desc == "" {
			return domain.Transaction{}, fmt.Errorf("%w: service description required", store.ErrValidation)
		}
		if svc.Price < 0 {
			return domain.Transaction{}, fmt.Errorf("%w: service price must not be negative", store.ErrValidation)
		}
		services = append(services, domain.ServiceItem{Description: desc, Price: svc.Price})
		total += svc.Price
	}

	technicianID := req.TechnicianID
	if technicianID == 0 {
		if actor, ok := ActorFromContext(ctx); ok {
			technicianID = actor.UserID
		}
	}

	created, err := s.repo.CreateTransaction(ctx, domain.Transaction{
		Items:             items,
		Services:          services,
		Total:             total,
		Status:            domain.TxStatusPending,
		CreatedAt:         time.Now().UTC(),
		TechnicianID:      technicianID,
		CustomerName:      strings.TrimSpace(req.CustomerName),
		PhoneType:         strings.TrimSpace(req.PhoneType),
		DamageDescription: strings.TrimSpace(req.DamageDescription),
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "transaction_create", "transaction", created.ID, fmt.Sprintf("items=%d,services=%d,total=%d", len(created.Items), len(created.Services), created.Total))
	return *created, nil
}

// CompleteTransaction settles a pending job. The repository applies the
// status flip, payment fields, and stock decrements as one atomic unit, so
// two concurrent calls on the same id produce exactly one success.
func (s *Service) CompleteTransaction(ctx context.Context, id int64, req domain.TransactionCompleteRequest) (domain.Transaction, error) {
	if req.AmountPaid < 0 {
		return domain.Transaction{}, fmt.Errorf("%w: amount paid must not be negative", store.ErrValidation)
	}

	cashierID := req.CashierID
	if cashierID == 0 {
		actor, ok := ActorFromContext(ctx)
		if !ok {
			return domain.Transaction{}, fmt.Errorf("%w: cashier id required", store.ErrValidation)
		}
		cashierID = actor.UserID
	}

	now := time.Now().UTC()
	completed, err := s.repo.CompleteTransaction(ctx, id, cashierID, strings.TrimSpace(req.CustomerName), req.AmountPaid, now)
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "transaction_complete", "transaction", completed.ID, fmt.Sprintf("paid=%d,change=%d", req.AmountPaid, *completed.Change))
	if s.reports != nil {
		s.reports.InvalidateSeries(ctx, now)
	}
	return *completed, nil
}

func (s *Service) GetTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	switch filter.Status {
	case "", domain.TxStatusPending, domain.TxStatusCompleted:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrValidation, filter.Status)
	}
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) DashboardSummary(ctx context.Context) (*domain.DashboardSummary, error) {
	return s.reports.DashboardSummary(ctx, time.Now())
}

func (s *Service) SalesSeries(ctx context.Context, period domain.ChartPeriod) (*domain.SalesSeriesResponse, error) {
	return s.reports.SalesSeries(ctx, period, time.Now())
}

// SalesReport builds the report for the range anchored at date (YYYY-MM-DD,
// empty means today).
func (s *Service) SalesReport(ctx context.Context, rng domain.ChartPeriod, date string) (*domain.SalesReport, error) {
	anchor := time.Now()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		anchor = parsed
	}
	return s.reports.SalesReport(ctx, rng, anchor)
}

func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.User, error) {
	account, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return domain.User{}, fmt.Errorf("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)) != nil {
		return domain.User{}, fmt.Errorf("invalid credentials")
	}
	return toUser(*account), nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.User{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	switch req.Role {
	case domain.RoleAdmin, domain.RoleTechnician, domain.RoleCashier:
	default:
		return domain.User{}, fmt.Errorf("%w: unknown role %q", store.ErrValidation, req.Role)
	}
	if req.Name == "" || req.Username == "" {
		return domain.User{}, fmt.Errorf("%w: name and username required", store.ErrValidation)
	}
	if len(req.Password) < 8 {
		return domain.User{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Name:      req.Name,
		Username:  req.Username,
		Password:  string(hash),
		Role:      req.Role,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user_create", "user", created.ID, fmt.Sprintf("username=%s,role=%s", created.Username, created.Role))
	return toUser(*created), nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, toUser(account))
	}
	return users, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	day := time.Now().UTC()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, from.AddDate(0, 0, 1), limit)
}

func toUser(account domain.UserAccount) domain.User {
	return domain.User{
		ID:        account.ID,
		Name:      account.Name,
		Username:  account.Username,
		Role:      account.Role,
		CreatedAt: account.CreatedAt,
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID int64, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New(),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%d: %v", action, entityType, entityID, err)
	}
}
