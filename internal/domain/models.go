package domain

import "time"

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CategoryCreateRequest struct {
	Name string `json:"name"`
}

type Product struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	Stock      int    `json:"stock"`
	CategoryID int64  `json:"category_id"`
}

type ProductCreateRequest struct {
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	Stock      int    `json:"stock"`
	CategoryID int64  `json:"category_id"`
}

// StockAdjustRequest subtracts Quantity from a product's stock; negative
// values restock.
type StockAdjustRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Price      *int64  `json:"price,omitempty"`
	Stock      *int    `json:"stock,omitempty"`
	CategoryID *int64  `json:"category_id,omitempty"`
}

// TransactionItem carries the unit price in effect when the line was added.
// The price is a snapshot and is never recomputed from the live product.
type TransactionItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Price     int64 `json:"price"`
	Subtotal  int64 `json:"subtotal"`
}

type ServiceItem struct {
	Description string `json:"description"`
	Price       int64  `json:"price"`
}

const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
)

// Transaction is the central ledger entity. Payment fields stay nil while
// the transaction is pending and are all set together at completion.
type Transaction struct {
	ID                int64             `json:"id"`
	Items             []TransactionItem `json:"items"`
	Services          []ServiceItem     `json:"services"`
	Total             int64             `json:"total"`
	Status            string            `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	TechnicianID      int64             `json:"technician_id"`
	CashierID         *int64            `json:"cashier_id,omitempty"`
	CustomerName      string            `json:"customer_name,omitempty"`
	PhoneType         string            `json:"phone_type,omitempty"`
	DamageDescription string            `json:"damage_description,omitempty"`
	AmountPaid        *int64            `json:"amount_paid,omitempty"`
	Change            *int64            `json:"change,omitempty"`
}

type TransactionItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type TransactionCreateRequest struct {
	Items             []TransactionItemRequest `json:"items"`
	Services          []ServiceItem            `json:"services"`
	TechnicianID      int64                    `json:"technician_id"`
	CustomerName      string                   `json:"customer_name"`
	PhoneType         string                   `json:"phone_type"`
	DamageDescription string                   `json:"damage_description"`
}

type TransactionCompleteRequest struct {
	CashierID    int64  `json:"cashier_id"`
	CustomerName string `json:"customer_name"`
	AmountPaid   int64  `json:"amount_paid"`
}

// TransactionFilter narrows ledger list queries. Zero values mean "any".
type TransactionFilter struct {
	Status       string
	TechnicianID int64
	CashierID    int64
}

type ChartPeriod string

const (
	PeriodDaily   ChartPeriod = "daily"
	PeriodWeekly  ChartPeriod = "weekly"
	PeriodMonthly ChartPeriod = "monthly"
)

// SalesBucket is one point of the dashboard sales series.
type SalesBucket struct {
	Label          string `json:"label"`
	Total          int64  `json:"total"`
	SparepartSales int64  `json:"sparepart_sales"`
	ServiceSales   int64  `json:"service_sales"`
	PreviousPeriod int64  `json:"previous_period"`
}

type SalesSeriesResponse struct {
	Period  ChartPeriod   `json:"period"`
	Buckets []SalesBucket `json:"buckets"`
}

type DashboardSummary struct {
	PendingCount   int     `json:"pending_count"`
	TodaySales     int64   `json:"today_sales"`
	TodayCount     int     `json:"today_count"`
	SalesChangePct float64 `json:"sales_change_pct"`
	ProductCount   int     `json:"product_count"`
	CategoryCount  int     `json:"category_count"`
	CompletedCount int     `json:"completed_count"`
}

type ProductSale struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Revenue   int64  `json:"revenue"`
}

type ServiceSale struct {
	Description string `json:"description"`
	Count       int    `json:"count"`
	Revenue     int64  `json:"revenue"`
}

type SalesReport struct {
	Range            ChartPeriod   `json:"range"`
	Start            time.Time     `json:"start"`
	End              time.Time     `json:"end"`
	TransactionCount int           `json:"transaction_count"`
	TotalSales       int64         `json:"total_sales"`
	AveragePerTx     int64         `json:"average_per_tx"`
	ProductSales     []ProductSale `json:"product_sales"`
	ServiceSales     []ServiceSale `json:"service_sales"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID   int64
	Username string
	Role     string
}

const (
	RoleAdmin      = "admin"
	RoleTechnician = "technician"
	RoleCashier    = "cashier"
)

type UserCreateRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is the internal persistence model for auth credentials.
type UserAccount struct {
	ID        int64
	Name      string
	Username  string
	Password  string
	Role      string
	CreatedAt time.Time
}

type AuditLog struct {
	ID            int64     `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      int64     `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
