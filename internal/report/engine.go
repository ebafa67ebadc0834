package report

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"servispos/backend/internal/cache"
	"servispos/backend/internal/domain"
	"servispos/backend/internal/store"
)

// Engine computes dashboard series, summary cards, and period reports from
// the transaction ledger. It never mutates anything: every figure is derived
// by re-reading completed transactions, so a recomputation over the same
// ledger always yields the same result.
type Engine struct {
	repo                store.Repository
	salesCache          cache.SalesCache
	cacheTTL            time.Duration
	sparepartCategoryID int64
}

func NewEngine(repo store.Repository, salesCache cache.SalesCache, cacheTTL time.Duration, sparepartCategoryID int64) *Engine {
	if salesCache == nil {
		salesCache = cache.NoopSalesCache{}
	}
	return &Engine{
		repo:                repo,
		salesCache:          salesCache,
		cacheTTL:            cacheTTL,
		sparepartCategoryID: sparepartCategoryID,
	}
}

func salesCacheKey(period domain.ChartPeriod, now time.Time) string {
	return fmt.Sprintf("sales:%s:%s", period, now.Format("2006-01-02"))
}

// completedWithin reports whether the transaction was completed inside
// [from, to). Dashboard figures bucket by completion time.
func completedWithin(tx *domain.Transaction, from, to time.Time) bool {
	if tx.Status != domain.TxStatusCompleted || tx.CompletedAt == nil {
		return false
	}
	at := *tx.CompletedAt
	return !at.Before(from) && at.Before(to)
}

// createdWithin reports whether the transaction was opened inside [from, to).
// Period reports bucket by creation time, so a job opened this week but paid
// next week still belongs to this week's report.
func createdWithin(tx *domain.Transaction, from, to time.Time) bool {
	return !tx.CreatedAt.Before(from) && tx.CreatedAt.Before(to)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SalesSeries returns the chart buckets for the given period, serving from
// the sales cache when a fresh entry exists.
func (e *Engine) SalesSeries(ctx context.Context, period domain.ChartPeriod, now time.Time) (*domain.SalesSeriesResponse, error) {
	switch period {
	case domain.PeriodDaily, domain.PeriodWeekly, domain.PeriodMonthly:
	default:
		return nil, fmt.Errorf("%w: unknown chart period %q", store.ErrValidation, period)
	}

	key := salesCacheKey(period, now)
	if cached, ok, err := e.salesCache.Get(ctx, key); err != nil {
		log.Printf("[report] sales cache get failed: %v", err)
	} else if ok {
		return cached, nil
	}

	completed, err := e.repo.ListTransactions(ctx, domain.TransactionFilter{Status: domain.TxStatusCompleted})
	if err != nil {
		return nil, fmt.Errorf("list completed transactions: %w", err)
	}
	products, err := e.repo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	categoryByProduct := make(map[int64]int64, len(products))
	for _, p := range products {
		categoryByProduct[p.ID] = p.CategoryID
	}

	var buckets []domain.SalesBucket
	switch period {
	case domain.PeriodDaily:
		buckets = e.dailyBuckets(completed, categoryByProduct, now)
	case domain.PeriodWeekly:
		buckets = e.weeklyBuckets(completed, categoryByProduct, now)
	case domain.PeriodMonthly:
		buckets = e.monthlyBuckets(completed, categoryByProduct, now)
	}

	resp := &domain.SalesSeriesResponse{Period: period, Buckets: buckets}
	if err := e.salesCache.Set(ctx, key, resp, e.cacheTTL); err != nil {
		log.Printf("[report] sales cache set failed: %v", err)
	}
	return resp, nil
}

// InvalidateSeries drops today's cached series for all three periods. The
// service calls this after a completion so dashboards pick up the sale within
// one request instead of one TTL.
func (e *Engine) InvalidateSeries(ctx context.Context, now time.Time) {
	keys := []string{
		salesCacheKey(domain.PeriodDaily, now),
		salesCacheKey(domain.PeriodWeekly, now),
		salesCacheKey(domain.PeriodMonthly, now),
	}
	if err := e.salesCache.Invalidate(ctx, keys...); err != nil {
		log.Printf("[report] sales cache invalidate failed: %v", err)
	}
}

// bucketTotals sums completed sales inside [from, to) by completion time,
// split into sparepart revenue (items whose product sits in the sparepart
// category) and service revenue.
func (e *Engine) bucketTotals(completed []domain.Transaction, categoryByProduct map[int64]int64, from, to time.Time) (total, sparepart, service int64) {
	for i := range completed {
		tx := &completed[i]
		if !completedWithin(tx, from, to) {
			continue
		}
		total += tx.Total
		for _, item := range tx.Items {
			if categoryByProduct[item.ProductID] == e.sparepartCategoryID {
				sparepart += item.Subtotal
			}
		}
		for _, svc := range tx.Services {
			service += svc.Price
		}
	}
	return total, sparepart, service
}

// dailyBuckets covers the last 7 days, oldest first, with the same weekday
// one week earlier as the comparison value.
func (e *Engine) dailyBuckets(completed []domain.Transaction, categoryByProduct map[int64]int64, now time.Time) []domain.SalesBucket {
	buckets := make([]domain.SalesBucket, 0, 7)
	for offset := 6; offset >= 0; offset-- {
		day := startOfDay(now.AddDate(0, 0, -offset))
		next := day.AddDate(0, 0, 1)
		total, sparepart, service := e.bucketTotals(completed, categoryByProduct, day, next)
		prevTotal, _, _ := e.bucketTotals(completed, categoryByProduct, day.AddDate(0, 0, -7), next.AddDate(0, 0, -7))
		buckets = append(buckets, domain.SalesBucket{
			Label:          day.Format("Mon 02/01"),
			Total:          total,
			SparepartSales: sparepart,
			ServiceSales:   service,
			PreviousPeriod: prevTotal,
		})
	}
	return buckets
}

// weeklyBuckets covers the last 6 seven-day windows ending today, oldest
// first. Window i spans [today-7(i+1)+1, today-7i] inclusive; the comparison
// value is the same window six weeks earlier.
func (e *Engine) weeklyBuckets(completed []domain.Transaction, categoryByProduct map[int64]int64, now time.Time) []domain.SalesBucket {
	buckets := make([]domain.SalesBucket, 0, 6)
	today := startOfDay(now)
	for i := 5; i >= 0; i-- {
		from := today.AddDate(0, 0, -7*(i+1)+1)
		to := today.AddDate(0, 0, -7*i+1)
		total, sparepart, service := e.bucketTotals(completed, categoryByProduct, from, to)
		prevTotal, _, _ := e.bucketTotals(completed, categoryByProduct, from.AddDate(0, 0, -42), to.AddDate(0, 0, -42))
		buckets = append(buckets, domain.SalesBucket{
			Label:          fmt.Sprintf("%s - %s", from.Format("02/01"), to.AddDate(0, 0, -1).Format("02/01")),
			Total:          total,
			SparepartSales: sparepart,
			ServiceSales:   service,
			PreviousPeriod: prevTotal,
		})
	}
	return buckets
}

// monthlyBuckets covers the last 6 calendar months, oldest first, with the
// same month six months earlier as the comparison value.
func (e *Engine) monthlyBuckets(completed []domain.Transaction, categoryByProduct map[int64]int64, now time.Time) []domain.SalesBucket {
	buckets := make([]domain.SalesBucket, 0, 6)
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := 5; i >= 0; i-- {
		from := firstOfMonth.AddDate(0, -i, 0)
		to := from.AddDate(0, 1, 0)
		total, sparepart, service := e.bucketTotals(completed, categoryByProduct, from, to)
		prevTotal, _, _ := e.bucketTotals(completed, categoryByProduct, from.AddDate(0, -6, 0), to.AddDate(0, -6, 0))
		buckets = append(buckets, domain.SalesBucket{
			Label:          from.Format("Jan 2006"),
			Total:          total,
			SparepartSales: sparepart,
			ServiceSales:   service,
			PreviousPeriod: prevTotal,
		})
	}
	return buckets
}

// salesChangePct compares today against yesterday. No yesterday baseline
// means 100% when anything sold today and 0% when nothing did.
func salesChangePct(today, yesterday int64) float64 {
	if yesterday > 0 {
		return float64(today-yesterday) / float64(yesterday) * 100
	}
	if today > 0 {
		return 100
	}
	return 0
}

// DashboardSummary builds the landing-page cards. Today's figures bucket by
// completion time: a job opened yesterday and paid today counts as today.
func (e *Engine) DashboardSummary(ctx context.Context, now time.Time) (*domain.DashboardSummary, error) {
	transactions, err := e.repo.ListTransactions(ctx, domain.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	products, err := e.repo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	categories, err := e.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	today := startOfDay(now)
	tomorrow := today.AddDate(0, 0, 1)
	yesterday := today.AddDate(0, 0, -1)

	summary := &domain.DashboardSummary{
		ProductCount:  len(products),
		CategoryCount: len(categories),
	}
	var yesterdaySales int64
	for i := range transactions {
		tx := &transactions[i]
		switch tx.Status {
		case domain.TxStatusPending:
			summary.PendingCount++
		case domain.TxStatusCompleted:
			summary.CompletedCount++
		}
		if completedWithin(tx, today, tomorrow) {
			summary.TodaySales += tx.Total
			summary.TodayCount++
		}
		if completedWithin(tx, yesterday, today) {
			yesterdaySales += tx.Total
		}
	}
	summary.SalesChangePct = salesChangePct(summary.TodaySales, yesterdaySales)
	return summary, nil
}

// reportWindow resolves a report range to [from, to) anchored at now:
// daily is the current day, weekly the Monday-start calendar week
// containing it, monthly the current calendar month.
func reportWindow(rng domain.ChartPeriod, now time.Time) (from, to time.Time, err error) {
	today := startOfDay(now)
	switch rng {
	case domain.PeriodDaily:
		return today, today.AddDate(0, 0, 1), nil
	case domain.PeriodWeekly:
		monday := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
		return monday, monday.AddDate(0, 0, 7), nil
	case domain.PeriodMonthly:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return first, first.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown report range %q", store.ErrValidation, rng)
	}
}

// SalesReport aggregates completed transactions opened inside the range into
// per-product and per-service breakdowns, highest revenue first.
func (e *Engine) SalesReport(ctx context.Context, rng domain.ChartPeriod, now time.Time) (*domain.SalesReport, error) {
	from, to, err := reportWindow(rng, now)
	if err != nil {
		return nil, err
	}

	completed, err := e.repo.ListTransactions(ctx, domain.TransactionFilter{Status: domain.TxStatusCompleted})
	if err != nil {
		return nil, fmt.Errorf("list completed transactions: %w", err)
	}
	products, err := e.repo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	nameByProduct := make(map[int64]string, len(products))
	for _, p := range products {
		nameByProduct[p.ID] = p.Name
	}

	report := &domain.SalesReport{
		Range: rng,
		Start: from,
		End:   to,
	}
	productSales := map[int64]*domain.ProductSale{}
	serviceSales := map[string]*domain.ServiceSale{}
	for i := range completed {
		tx := &completed[i]
		if !createdWithin(tx, from, to) {
			continue
		}
		report.TransactionCount++
		report.TotalSales += tx.Total

		for _, item := range tx.Items {
			entry, ok := productSales[item.ProductID]
			if !ok {
				name := nameByProduct[item.ProductID]
				if name == "" {
					name = "Unknown"
				}
				entry = &domain.ProductSale{ProductID: item.ProductID, Name: name}
				productSales[item.ProductID] = entry
			}
			entry.Quantity += item.Quantity
			entry.Revenue += item.Subtotal
		}
		for _, svc := range tx.Services {
			entry, ok := serviceSales[svc.Description]
			if !ok {
				entry = &domain.ServiceSale{Description: svc.Description}
				serviceSales[svc.Description] = entry
			}
			entry.Count++
			entry.Revenue += svc.Price
		}
	}

	if report.TransactionCount > 0 {
		report.AveragePerTx = report.TotalSales / int64(report.TransactionCount)
	}
	report.ProductSales = sortedProductSales(productSales)
	report.ServiceSales = sortedServiceSales(serviceSales)
	return report, nil
}

func sortedProductSales(byProduct map[int64]*domain.ProductSale) []domain.ProductSale {
	sales := make([]domain.ProductSale, 0, len(byProduct))
	for _, entry := range byProduct {
		sales = append(sales, *entry)
	}
	slices.SortFunc(sales, func(a, b domain.ProductSale) int {
		if a.Revenue != b.Revenue {
			return cmp.Compare(b.Revenue, a.Revenue)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return sales
}

func sortedServiceSales(byDescription map[string]*domain.ServiceSale) []domain.ServiceSale {
	sales := make([]domain.ServiceSale, 0, len(byDescription))
	for _, entry := range byDescription {
		sales = append(sales, *entry)
	}
	slices.SortFunc(sales, func(a, b domain.ServiceSale) int {
		if a.Revenue != b.Revenue {
			return cmp.Compare(b.Revenue, a.Revenue)
		}
		return strings.Compare(a.Description, b.Description)
	})
	return sales
}
