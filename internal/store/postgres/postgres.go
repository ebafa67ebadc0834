package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"servispos/backend/internal/domain"
	"servispos/backend/internal/store"
	"servispos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrValidation
	}
	if category.ID == 0 {
		category.ID = xid.New()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name)
		VALUES ($1,$2)
	`, category.ID, category.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := category
	return &created, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name = $2 WHERE id = $1
	`, category.ID, category.Name)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	var category domain.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name FROM categories WHERE id = $1
	`, id).Scan(&category.ID, &category.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name FROM categories ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price < 0 {
		return nil, store.ErrValidation
	}
	if product.ID == 0 {
		product.ID = xid.New()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, category_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
	`, product.ID, product.Name, product.Price, product.Stock, product.CategoryID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price < 0 {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, stock = $4, category_id = $5, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Price, product.Stock, product.CategoryID)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock, category_id FROM products WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Price, &product.Stock, &product.CategoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, stock, category_id FROM products ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CategoryID); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	result := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, stock, category_id FROM products WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CategoryID); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (s *Store) AdjustStock(ctx context.Context, productID int64, qty int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1
	`, productID, qty)
	return err
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if len(tx.Items) == 0 && len(tx.Services) == 0 {
		return nil, store.ErrValidation
	}
	if tx.ID == 0 {
		tx.ID = xid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusPending
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, total, status, created_at, technician_id,
			customer_name, phone_type, damage_description
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, tx.ID, tx.Total, tx.Status, tx.CreatedAt, tx.TechnicianID,
		tx.CustomerName, tx.PhoneType, tx.DamageDescription)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	for _, item := range tx.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_id, quantity, price, subtotal)
			VALUES ($1,$2,$3,$4,$5)
		`, tx.ID, item.ProductID, item.Quantity, item.Price, item.Subtotal)
		if err != nil {
			return nil, err
		}
	}
	for _, svc := range tx.Services {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_services (transaction_id, description, price)
			VALUES ($1,$2,$3)
		`, tx.ID, svc.Description, svc.Price)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := tx
	return &created, nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT id, total, status, created_at, completed_at, technician_id,
		       cashier_id, customer_name, phone_type, damage_description,
		       amount_paid, change_due
		FROM transactions
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := s.loadTransactionLines(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	query := `
		SELECT id, total, status, created_at, completed_at, technician_id,
		       cashier_id, customer_name, phone_type, damage_description,
		       amount_paid, change_due
		FROM transactions
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = 0 OR technician_id = $2)
		  AND ($3 = 0 OR cashier_id = $3)
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, filter.Status, filter.TechnicianID, filter.CashierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range transactions {
		if err := s.loadTransactionLines(ctx, &transactions[i]); err != nil {
			return nil, err
		}
	}
	return transactions, nil
}

// CompleteTransaction guards the status flip with a row lock and applies the
// decrements inside the same serializable transaction, so concurrent
// completions of the same id commit exactly once.
func (s *Store) CompleteTransaction(ctx context.Context, id int64, cashierID int64, customerName string, amountPaid int64, completedAt time.Time) (*domain.Transaction, error) {
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	var total int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT status, total FROM transactions WHERE id = $1 FOR UPDATE
	`, id).Scan(&status, &total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.TxStatusPending {
		return nil, store.ErrInvalidState
	}
	if amountPaid < total {
		return nil, store.ErrValidation
	}

	change := amountPaid - total
	var nameArg any
	if strings.TrimSpace(customerName) != "" {
		nameArg = customerName
	}
	_, err = pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, completed_at = $3, cashier_id = $4,
		    customer_name = COALESCE($5, customer_name),
		    amount_paid = $6, change_due = $7
		WHERE id = $1 AND status = $8
	`, id, domain.TxStatusCompleted, completedAt, cashierID, nameArg, amountPaid, change, domain.TxStatusPending)
	if err != nil {
		return nil, err
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT product_id, quantity FROM transaction_items WHERE transaction_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	type decrement struct {
		productID int64
		qty       int
	}
	decrements := make([]decrement, 0, 8)
	for itemRows.Next() {
		var d decrement
		if err := itemRows.Scan(&d.productID, &d.qty); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		decrements = append(decrements, d)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	for _, d := range decrements {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1
		`, d.productID, d.qty)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetTransaction(ctx, id)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || user.Password == "" {
		return nil, store.ErrValidation
	}
	if user.ID == 0 {
		user.ID = xid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, username, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Name, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, username, password_hash, role, created_at
		FROM users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(
		&user.ID, &user.Name, &user.Username, &user.Password, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, username, password_hash, role, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &u.Password, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == 0 {
		entry.ID = xid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var completedAt sql.NullTime
	var cashierID, amountPaid, change sql.NullInt64
	var customerName, phoneType, damage sql.NullString
	err := row.Scan(&tx.ID, &tx.Total, &tx.Status, &tx.CreatedAt, &completedAt, &tx.TechnicianID,
		&cashierID, &customerName, &phoneType, &damage, &amountPaid, &change)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		at := completedAt.Time
		tx.CompletedAt = &at
	}
	if cashierID.Valid {
		v := cashierID.Int64
		tx.CashierID = &v
	}
	if amountPaid.Valid {
		v := amountPaid.Int64
		tx.AmountPaid = &v
	}
	if change.Valid {
		v := change.Int64
		tx.Change = &v
	}
	tx.CustomerName = customerName.String
	tx.PhoneType = phoneType.String
	tx.DamageDescription = damage.String
	return &tx, nil
}

func (s *Store) loadTransactionLines(ctx context.Context, tx *domain.Transaction) error {
	itemRows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, price, subtotal
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY product_id
	`, tx.ID)
	if err != nil {
		return err
	}
	defer itemRows.Close()

	tx.Items = make([]domain.TransactionItem, 0, 8)
	for itemRows.Next() {
		var item domain.TransactionItem
		if err := itemRows.Scan(&item.ProductID, &item.Quantity, &item.Price, &item.Subtotal); err != nil {
			return err
		}
		tx.Items = append(tx.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return err
	}

	svcRows, err := s.db.QueryContext(ctx, `
		SELECT description, price
		FROM transaction_services
		WHERE transaction_id = $1
		ORDER BY description
	`, tx.ID)
	if err != nil {
		return err
	}
	defer svcRows.Close()

	tx.Services = make([]domain.ServiceItem, 0, 4)
	for svcRows.Next() {
		var svc domain.ServiceItem
		if err := svcRows.Scan(&svc.Description, &svc.Price); err != nil {
			return err
		}
		tx.Services = append(tx.Services, svc)
	}
	return svcRows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
