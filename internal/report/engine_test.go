package report

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"servispos/backend/internal/cache"
	"servispos/backend/internal/domain"
	"servispos/backend/internal/store"
	"servispos/backend/internal/store/memory"
)

const sparepartCategoryID = int64(1)

type fixture struct {
	repo   *memory.Store
	engine *Engine
	part   domain.Product
	extra  domain.Product
}

func newFixture(t *testing.T, salesCache cache.SalesCache) *fixture {
	t.Helper()
	repo := memory.New()
	ctx := context.Background()

	if _, err := repo.CreateCategory(ctx, domain.Category{ID: sparepartCategoryID, Name: "Sparepart"}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	accessories, err := repo.CreateCategory(ctx, domain.Category{Name: "Aksesoris"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	part, err := repo.CreateProduct(ctx, domain.Product{Name: "LCD iPhone 11", Price: 100, Stock: 50, CategoryID: sparepartCategoryID})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	extra, err := repo.CreateProduct(ctx, domain.Product{Name: "Tempered Glass", Price: 30, Stock: 50, CategoryID: accessories.ID})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	return &fixture{
		repo:   repo,
		engine: NewEngine(repo, salesCache, 10*time.Second, sparepartCategoryID),
		part:   *part,
		extra:  *extra,
	}
}

// completedSale writes a completed transaction with full control over the
// creation and completion timestamps.
func (f *fixture) completedSale(t *testing.T, createdAt, completedAt time.Time, items []domain.TransactionItem, services []domain.ServiceItem) domain.Transaction {
	t.Helper()
	ctx := context.Background()

	var total int64
	for _, item := range items {
		total += item.Subtotal
	}
	for _, svc := range services {
		total += svc.Price
	}

	created, err := f.repo.CreateTransaction(ctx, domain.Transaction{
		Items:     items,
		Services:  services,
		Total:     total,
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	completed, err := f.repo.CompleteTransaction(ctx, created.ID, 20, "", total, completedAt)
	if err != nil {
		t.Fatalf("complete transaction: %v", err)
	}
	return *completed
}

func partItem(f *fixture, qty int) domain.TransactionItem {
	return domain.TransactionItem{
		ProductID: f.part.ID,
		Quantity:  qty,
		Price:     f.part.Price,
		Subtotal:  f.part.Price * int64(qty),
	}
}

func TestSalesChangePct(t *testing.T) {
	cases := []struct {
		today, yesterday int64
		want             float64
	}{
		{0, 0, 0},
		{500, 0, 100},
		{1200, 1000, 20},
		{800, 1000, -20},
	}
	for _, tc := range cases {
		if got := salesChangePct(tc.today, tc.yesterday); got != tc.want {
			t.Fatalf("salesChangePct(%d, %d) = %v, want %v", tc.today, tc.yesterday, got, tc.want)
		}
	}
}

func TestDashboardSummaryBucketsByCompletionTime(t *testing.T) {
	f := newFixture(t, cache.NoopSalesCache{})
	now := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	// Opened yesterday, paid today: belongs to today's sales.
	f.completedSale(t, yesterday, now.Add(-time.Hour), []domain.TransactionItem{partItem(f, 2)}, nil)
	// Paid yesterday: baseline for the percent change.
	f.completedSale(t, yesterday, yesterday, []domain.TransactionItem{partItem(f, 1)}, nil)
	// Still pending.
	if _, err := f.repo.CreateTransaction(context.Background(), domain.Transaction{
		Items:     []domain.TransactionItem{partItem(f, 1)},
		Total:     100,
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("create pending transaction: %v", err)
	}

	summary, err := f.engine.DashboardSummary(context.Background(), now)
	if err != nil {
		t.Fatalf("dashboard summary: %v", err)
	}
	if summary.PendingCount != 1 || summary.CompletedCount != 2 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.TodaySales != 200 || summary.TodayCount != 1 {
		t.Fatalf("expected only today's completion counted, got sales=%d count=%d", summary.TodaySales, summary.TodayCount)
	}
	if summary.SalesChangePct != 100 {
		t.Fatalf("expected 100%% change over yesterday's 100, got %v", summary.SalesChangePct)
	}
	if summary.ProductCount != 2 || summary.CategoryCount != 2 {
		t.Fatalf("unexpected catalog counts: %+v", summary)
	}
}

func TestSalesSeriesDailySplitsRevenue(t *testing.T) {
	f := newFixture(t, cache.NoopSalesCache{})
	now := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)

	f.completedSale(t, now, now,
		[]domain.TransactionItem{partItem(f, 2), {ProductID: f.extra.ID, Quantity: 1, Price: 30, Subtotal: 30}},
		[]domain.ServiceItem{{Description: "Ganti LCD", Price: 70}})
	// Same weekday one week earlier feeds the comparison value.
	f.completedSale(t, now.AddDate(0, 0, -7), now.AddDate(0, 0, -7), []domain.TransactionItem{partItem(f, 1)}, nil)

	series, err := f.engine.SalesSeries(context.Background(), domain.PeriodDaily, now)
	if err != nil {
		t.Fatalf("sales series: %v", err)
	}
	if len(series.Buckets) != 7 {
		t.Fatalf("expected 7 daily buckets, got %d", len(series.Buckets))
	}

	today := series.Buckets[6]
	if today.Total != 300 {
		t.Fatalf("expected today's total 300, got %d", today.Total)
	}
	if today.SparepartSales != 200 {
		t.Fatalf("expected sparepart revenue 200, got %d", today.SparepartSales)
	}
	if today.ServiceSales != 70 {
		t.Fatalf("expected service revenue 70, got %d", today.ServiceSales)
	}
	if today.PreviousPeriod != 100 {
		t.Fatalf("expected previous-week value 100, got %d", today.PreviousPeriod)
	}
}

func TestSalesSeriesWeeklyAndMonthlyShape(t *testing.T) {
	f := newFixture(t, cache.NoopSalesCache{})
	now := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)
	f.completedSale(t, now, now, []domain.TransactionItem{partItem(f, 1)}, nil)

	weekly, err := f.engine.SalesSeries(context.Background(), domain.PeriodWeekly, now)
	if err != nil {
		t.Fatalf("weekly series: %v", err)
	}
	if len(weekly.Buckets) != 6 || weekly.Buckets[5].Total != 100 {
		t.Fatalf("unexpected weekly buckets: %+v", weekly.Buckets)
	}

	monthly, err := f.engine.SalesSeries(context.Background(), domain.PeriodMonthly, now)
	if err != nil {
		t.Fatalf("monthly series: %v", err)
	}
	if len(monthly.Buckets) != 6 || monthly.Buckets[5].Total != 100 {
		t.Fatalf("unexpected monthly buckets: %+v", monthly.Buckets)
	}
	if monthly.Buckets[5].Label != "Aug 2026" {
		t.Fatalf("unexpected current month label %q", monthly.Buckets[5].Label)
	}
}

func TestSalesSeriesDeterministicRecompute(t *testing.T) {
	f := newFixture(t, cache.NoopSalesCache{})
	now := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)
	f.completedSale(t, now.AddDate(0, 0, -3), now.AddDate(0, 0, -3), []domain.TransactionItem{partItem(f, 2)}, nil)
	f.completedSale(t, now, now, nil, []domain.ServiceItem{{Description: "Flash Ulang", Price: 80}})

	first, err := f.engine.SalesSeries(context.Background(), domain.PeriodDaily, now)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := f.engine.SalesSeries(context.Background(), domain.PeriodDaily, now)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results on recompute:\n%+v\n%+v", first, second)
	}
}

// countingCache records Set calls so the test can tell a recompute from a
// cache hit.
type countingCache struct {
	mu      sync.Mutex
	entries map[string]*domain.SalesSeriesResponse
	sets    int
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.SalesSeriesResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.SalesSeriesResponse, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]*domain.SalesSeriesResponse)
	}
	c.entries[key] = value
	c.sets++
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func TestSalesSeriesServedFromCacheUntilInvalidated(t *testing.T) {
	salesCache := &countingCache{}
	f := newFixture(t, salesCache)
	now := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)
	f.completedSale(t, now, now, []domain.TransactionItem{partItem(f, 1)}, nil)

	if _, err := f.engine.SalesSeries(context.Background(), domain.PeriodDaily, now); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := f.engine.SalesSeries(context.Background(), domain.PeriodDaily, now); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if salesCache.sets != 1 {
		t.Fatalf("expected second call served from cache, got %d sets", salesCache.sets)
	}

	f.engine.InvalidateSeries(context.Background(), now)
	if _, err := f.engine.SalesSeries(context.Background(), domain.PeriodDaily, now); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if salesCache.sets != 2 {
		t.Fatalf("expected recompute after invalidation, got %d sets", salesCache.sets)
	}
}

func TestSalesReportGroupsByCreationTime(t *testing.T) {
	f := newFixture(t, cache.NoopSalesCache{})
	now := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	// Opened and paid today: in today's report.
	f.completedSale(t, now.Add(-2*time.Hour), now.Add(-time.Hour),
		[]domain.TransactionItem{partItem(f, 2)},
		[]domain.ServiceItem{{Description: "Ganti LCD", Price: 500}})
	f.completedSale(t, now.Add(-time.Hour), now,
		[]domain.TransactionItem{{ProductID: f.extra.ID, Quantity: 3, Price: 30, Subtotal: 90}},
		[]domain.ServiceItem{{Description: "Ganti LCD", Price: 500}})
	// Opened yesterday, paid today: excluded from today's report even though
	// the dashboard counts it for today.
	f.completedSale(t, yesterday, now, []domain.TransactionItem{partItem(f, 5)}, nil)

	report, err := f.engine.SalesReport(context.Background(), domain.PeriodDaily, now)
	if err != nil {
		t.Fatalf("sales report: %v", err)
	}
	if report.TransactionCount != 2 {
		t.Fatalf("expected 2 transactions in today's report, got %d", report.TransactionCount)
	}
	if report.TotalSales != 1290 {
		t.Fatalf("expected total 1290, got %d", report.TotalSales)
	}
	if report.AveragePerTx != 645 {
		t.Fatalf("expected average 645, got %d", report.AveragePerTx)
	}

	if len(report.ProductSales) != 2 {
		t.Fatalf("expected 2 product groups, got %+v", report.ProductSales)
	}
	if report.ProductSales[0].Name != "LCD iPhone 11" || report.ProductSales[0].Revenue != 200 || report.ProductSales[0].Quantity != 2 {
		t.Fatalf("unexpected top product: %+v", report.ProductSales[0])
	}
	if len(report.ServiceSales) != 1 || report.ServiceSales[0].Count != 2 || report.ServiceSales[0].Revenue != 1000 {
		t.Fatalf("unexpected service group: %+v", report.ServiceSales)
	}
}

func TestSalesReportWeeklyCoversCalendarWeek(t *testing.T) {
	f := newFixture(t, cache.NoopSalesCache{})
	// Anchor on a Wednesday: the week runs Mon 24th through Sun 30th.
	anchor := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	friday := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	priorSunday := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	nextMonday := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	f.completedSale(t, monday, monday, []domain.TransactionItem{partItem(f, 1)}, nil)
	// Opened after the anchor but inside the same calendar week: still counted.
	f.completedSale(t, friday, friday, []domain.TransactionItem{partItem(f, 2)}, nil)
	f.completedSale(t, priorSunday, priorSunday, []domain.TransactionItem{partItem(f, 4)}, nil)
	f.completedSale(t, nextMonday, nextMonday, []domain.TransactionItem{partItem(f, 8)}, nil)

	report, err := f.engine.SalesReport(context.Background(), domain.PeriodWeekly, anchor)
	if err != nil {
		t.Fatalf("sales report: %v", err)
	}
	if !report.Start.Equal(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected week to start Monday the 24th, got %v", report.Start)
	}
	if !report.End.Equal(time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected week to end before Monday the 31st, got %v", report.End)
	}
	if report.TransactionCount != 2 {
		t.Fatalf("expected 2 transactions in the week, got %d", report.TransactionCount)
	}
	if report.TotalSales != 300 {
		t.Fatalf("expected total 300, got %d", report.TotalSales)
	}
}

func TestSalesReportNamesDeletedProductsUnknown(t *testing.T) {
	f := newFixture(t, cache.NoopSalesCache{})
	now := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)
	f.completedSale(t, now, now, []domain.TransactionItem{partItem(f, 1)}, nil)

	if err := f.repo.DeleteProduct(context.Background(), f.part.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	report, err := f.engine.SalesReport(context.Background(), domain.PeriodDaily, now)
	if err != nil {
		t.Fatalf("sales report: %v", err)
	}
	if len(report.ProductSales) != 1 || report.ProductSales[0].Name != "Unknown" {
		t.Fatalf("expected deleted product reported as Unknown, got %+v", report.ProductSales)
	}
}

func TestSalesReportRejectsUnknownRange(t *testing.T) {
	f := newFixture(t, cache.NoopSalesCache{})

	_, err := f.engine.SalesReport(context.Background(), "yearly", time.Now())
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = f.engine.SalesSeries(context.Background(), "yearly", time.Now())
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
