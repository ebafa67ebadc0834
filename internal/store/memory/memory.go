package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"servispos/backend/internal/domain"
	"servispos/backend/internal/store"
	"servispos/backend/internal/xid"
)

// Store keeps every collection behind one RWMutex. CompleteTransaction runs
// entirely under the write lock, which makes the status flip and the stock
// decrements a single critical section.
type Store struct {
	mu              sync.RWMutex
	categories      map[int64]domain.Category
	categoryOrder   []int64
	products        map[int64]domain.Product
	productOrder    []int64
	transactions    map[int64]*domain.Transaction
	txOrder         []int64
	usersByUsername map[string]domain.UserAccount
	auditLogs       []domain.AuditLog
}

func New() *Store {
	return &Store{
		categories:      make(map[int64]domain.Category),
		products:        make(map[int64]domain.Product),
		transactions:    make(map[int64]*domain.Transaction),
		usersByUsername: make(map[string]domain.UserAccount),
		auditLogs:       make([]domain.AuditLog, 0, 128),
	}
}

// seedUsers builds the initial accounts for dev/demo mode. Credentials come
// from SEED_ADMIN_PASSWORD, SEED_TECHNICIAN_PASSWORD and SEED_CASHIER_PASSWORD;
// hardcoded dev defaults are used with a warning when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	technicianPwd := envOr("SEED_TECHNICIAN_PASSWORD", "teknisi123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "kasir123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_TECHNICIAN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_*_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		name     string
		username string
		password string
		role     string
	}{
		{"Admin Toko", "admin", adminPwd, domain.RoleAdmin},
		{"Teknisi A", "teknisi", technicianPwd, domain.RoleTechnician},
		{"Kasir A", "kasir", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        xid.New(),
			Name:      u.name,
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store preloaded with a small phone-repair catalog and
// the three dev accounts. The first category is the sparepart category.
func NewSeeded(sparepartCategoryID int64) *Store {
	s := New()
	s.usersByUsername = seedUsers()

	categories := []domain.Category{
		{ID: sparepartCategoryID, Name: "Sparepart"},
		{ID: xid.New(), Name: "Aksesoris"},
	}
	for _, c := range categories {
		s.categories[c.ID] = c
		s.categoryOrder = append(s.categoryOrder, c.ID)
	}

	products := []domain.Product{
		{ID: xid.New(), Name: "LCD iPhone 11", Price: 850000, Stock: 12, CategoryID: sparepartCategoryID},
		{ID: xid.New(), Name: "Baterai Samsung A52", Price: 250000, Stock: 20, CategoryID: sparepartCategoryID},
		{ID: xid.New(), Name: "Konektor Cas Xiaomi", Price: 90000, Stock: 35, CategoryID: sparepartCategoryID},
		{ID: xid.New(), Name: "Kamera Belakang Oppo", Price: 320000, Stock: 8, CategoryID: sparepartCategoryID},
		{ID: xid.New(), Name: "Tempered Glass", Price: 35000, Stock: 60, CategoryID: categories[1].ID},
		{ID: xid.New(), Name: "Softcase Universal", Price: 25000, Stock: 45, CategoryID: categories[1].ID},
	}
	for _, p := range products {
		s.products[p.ID] = p
		s.productOrder = append(s.productOrder, p.ID)
	}

	return s
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if category.ID == 0 {
		category.ID = xid.New()
	}
	s.categories[category.ID] = category
	s.categoryOrder = append(s.categoryOrder, category.ID)
	created := category
	return &created, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[category.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.categories[category.ID] = category
	updated := category
	return &updated, nil
}

// DeleteCategory does not cascade: products keep referencing the deleted id.
func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.categories, id)
	s.categoryOrder = slices.DeleteFunc(s.categoryOrder, func(v int64) bool { return v == id })
	return nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, exists := s.categories[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCategory := category
	return &copyCategory, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categoryOrder))
	for _, id := range s.categoryOrder {
		if c, ok := s.categories[id]; ok {
			categories = append(categories, c)
		}
	}
	return categories, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == 0 {
		product.ID = xid.New()
	}
	s.products[product.ID] = product
	s.productOrder = append(s.productOrder, product.ID)
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	s.productOrder = slices.DeleteFunc(s.productOrder, func(v int64) bool { return v == id })
	return nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		if p, ok := s.products[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

// AdjustStock subtracts qty from the product's stock without a floor. A
// missing product is a no-op: the ledger validated existence at creation and
// the product may have been deleted since.
func (s *Store) AdjustStock(_ context.Context, productID int64, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return nil
	}
	product.Stock -= qty
	s.products[productID] = product
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if len(tx.Items) == 0 && len(tx.Services) == 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == 0 {
		tx.ID = xid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusPending
	}

	txCopy := cloneTransaction(&tx)
	s.transactions[tx.ID] = txCopy
	s.txOrder = append(s.txOrder, tx.ID)
	return cloneTransaction(txCopy), nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.txOrder))
	for _, id := range s.txOrder {
		tx, ok := s.transactions[id]
		if !ok {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if filter.TechnicianID != 0 && tx.TechnicianID != filter.TechnicianID {
			continue
		}
		if filter.CashierID != 0 && (tx.CashierID == nil || *tx.CashierID != filter.CashierID) {
			continue
		}
		result = append(result, *cloneTransaction(tx))
	}
	return result, nil
}

// CompleteTransaction flips pending -> completed, records the payment fields
// and decrements stock for every item, all under one lock. Stock has no
// floor. Validation happens before any mutation, so a rejected call changes
// nothing.
func (s *Store) CompleteTransaction(_ context.Context, id int64, cashierID int64, customerName string, amountPaid int64, completedAt time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Status != domain.TxStatusPending {
		return nil, store.ErrInvalidState
	}
	if amountPaid < tx.Total {
		return nil, store.ErrValidation
	}
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	change := amountPaid - tx.Total
	tx.Status = domain.TxStatusCompleted
	tx.CompletedAt = &completedAt
	tx.CashierID = &cashierID
	if strings.TrimSpace(customerName) != "" {
		tx.CustomerName = customerName
	}
	tx.AmountPaid = &amountPaid
	tx.Change = &change

	for _, item := range tx.Items {
		product, exists := s.products[item.ProductID]
		if !exists {
			continue
		}
		product.Stock -= item.Quantity
		s.products[item.ProductID] = product
	}

	return cloneTransaction(tx), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return nil, store.ErrValidation
	}
	user.Username = username
	if user.ID == 0 {
		user.ID = xid.New()
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	created := user
	return &created, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == 0 {
		entry.ID = xid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return int(b.ID - a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dupItems := make([]domain.TransactionItem, len(src.Items))
	copy(dupItems, src.Items)
	dup.Items = dupItems
	dupServices := make([]domain.ServiceItem, len(src.Services))
	copy(dupServices, src.Services)
	dup.Services = dupServices
	if src.CompletedAt != nil {
		at := *src.CompletedAt
		dup.CompletedAt = &at
	}
	if src.CashierID != nil {
		v := *src.CashierID
		dup.CashierID = &v
	}
	if src.AmountPaid != nil {
		v := *src.AmountPaid
		dup.AmountPaid = &v
	}
	if src.Change != nil {
		v := *src.Change
		dup.Change = &v
	}
	return &dup
}
