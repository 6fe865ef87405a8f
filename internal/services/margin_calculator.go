package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/swagbox/api/internal/domain"
	"github.com/swagbox/api/internal/repositories"
)

var (
	// ErrMarginInvalidInput signals malformed report parameters such as an inverted date range.
	ErrMarginInvalidInput = errors.New("margin: invalid input")
)

const (
	defaultMarginAlertThreshold = 20.0

	// reportFetchConcurrency bounds the per-order breakdown fan-out while
	// building customer margin reports.
	reportFetchConcurrency = 8
)

// GrossMargin returns price minus cost. Total over all inputs, including
// negatives.
func GrossMargin(price, cost int64) int64 {
	return price - cost
}

// MarginPercentage returns the gross margin as a percentage of price, or 0
// when price is 0 so a zero-revenue order never yields NaN.
func MarginPercentage(price, cost int64) float64 {
	if price == 0 {
		return 0
	}
	return float64(price-cost) / float64(price) * 100
}

// MarginCalculatorDeps bundles collaborators required to construct the margin calculator.
type MarginCalculatorDeps struct {
	Orders    repositories.OrderRepository
	Costs     CostBreakdownProvider
	Alerts    AlertDispatcher
	Threshold float64
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// MarginCalculator derives margins from cost breakdowns, enforces the
// low-margin alert threshold, and builds grouped margin reports. Reports are
// transient: nothing is cached across calls, so results always reflect the
// current pricing and variant-cost data.
type MarginCalculator struct {
	orders    repositories.OrderRepository
	costs     CostBreakdownProvider
	alerts    AlertDispatcher
	threshold float64
	logger    func(context.Context, string, map[string]any)
}

var _ MarginService = (*MarginCalculator)(nil)

// NewMarginCalculator wires dependencies into a MarginCalculator.
func NewMarginCalculator(deps MarginCalculatorDeps) (*MarginCalculator, error) {
	if deps.Orders == nil {
		return nil, errors.New("margin calculator: order repository is required")
	}
	if deps.Costs == nil {
		return nil, errors.New("margin calculator: cost breakdown provider is required")
	}

	threshold := deps.Threshold
	if threshold <= 0 {
		threshold = defaultMarginAlertThreshold
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &MarginCalculator{
		orders:    deps.Orders,
		costs:     deps.Costs,
		alerts:    deps.Alerts,
		threshold: threshold,
		logger:    logger,
	}, nil
}

// CheckMarginThreshold alerts when the breakdown's margin percentage falls
// strictly below the threshold; exactly on the threshold does not alert. A
// dispatcher failure is logged, not propagated, so a flaky alert channel
// never fails the costing path.
func (m *MarginCalculator) CheckMarginThreshold(ctx context.Context, order domain.Order, breakdown domain.CostBreakdown) MarginAlertDecision {
	decision := MarginAlertDecision{
		MarginPercentage: breakdown.MarginPercentage,
		Threshold:        m.threshold,
	}

	if breakdown.MarginPercentage >= m.threshold {
		return decision
	}

	decision.Alerted = true
	decision.Message = fmt.Sprintf("order %s margin %.2f%% is below the %.2f%% threshold",
		order.OrderNumber, breakdown.MarginPercentage, m.threshold)

	if m.alerts != nil {
		alert := LowMarginAlert{
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			MarginPercentage: breakdown.MarginPercentage,
			Threshold:        m.threshold,
		}
		if err := m.alerts.SendLowMarginAlert(ctx, alert); err != nil {
			m.logger(ctx, "margin.alert.dispatch_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}

	return decision
}

// MarginReportByProduct groups snapshot revenue and cost by product across
// eligible orders in the range. Accumulation is per line-item occurrence,
// not per distinct order; OrderCount mirrors that (see domain.ProductMargin).
func (m *MarginCalculator) MarginReportByProduct(ctx context.Context, dateRange domain.DateRange) ([]domain.ProductMargin, error) {
	orders, err := m.eligibleOrders(ctx, dateRange)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*domain.ProductMargin)
	for _, order := range orders {
		for _, item := range order.Items {
			group, ok := groups[item.ProductID]
			if !ok {
				group = &domain.ProductMargin{ProductID: item.ProductID, ProductName: item.Name}
				groups[item.ProductID] = group
			}
			if group.ProductName == "" {
				group.ProductName = item.Name
			}
			quantity := int64(item.Quantity)
			group.Revenue += item.UnitPrice * quantity
			group.Cost += item.UnitCost * quantity
			group.OrderCount++
		}
	}

	results := make([]domain.ProductMargin, 0, len(groups))
	for _, group := range groups {
		group.Margin = GrossMargin(group.Revenue, group.Cost)
		group.MarginPercentage = MarginPercentage(group.Revenue, group.Cost)
		results = append(results, *group)
	}
	sortByRevenueDesc(results, func(pm domain.ProductMargin) (int64, string) {
		return pm.Revenue, pm.ProductID
	})
	return results, nil
}

// MarginReportByCustomer groups full-breakdown revenue and cost by buying
// organization. Each order is priced through the cost calculator so
// operational costs are captured; an order whose breakdown fails is skipped
// and logged rather than voiding the report.
func (m *MarginCalculator) MarginReportByCustomer(ctx context.Context, dateRange domain.DateRange) ([]domain.CustomerMargin, error) {
	orders, err := m.eligibleOrders(ctx, dateRange)
	if err != nil {
		return nil, err
	}

	breakdowns := make([]*domain.CostBreakdown, len(orders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reportFetchConcurrency)
	for i := range orders {
		g.Go(func() error {
			breakdown, err := m.costs.TotalCost(gctx, orders[i])
			if err != nil {
				m.logger(gctx, "margin.report.order_skipped", map[string]any{
					"orderId": orders[i].ID,
					"error":   err.Error(),
				})
				return nil
			}
			breakdowns[i] = &breakdown
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	groups := make(map[string]*domain.CustomerMargin)
	for i, order := range orders {
		breakdown := breakdowns[i]
		if breakdown == nil {
			continue
		}
		group, ok := groups[order.OrganizationID]
		if !ok {
			group = &domain.CustomerMargin{OrganizationID: order.OrganizationID}
			groups[order.OrganizationID] = group
		}
		group.Revenue += breakdown.TotalPrice
		group.Cost += breakdown.TotalCost
		group.OrderCount++
	}

	results := make([]domain.CustomerMargin, 0, len(groups))
	for _, group := range groups {
		group.Margin = GrossMargin(group.Revenue, group.Cost)
		group.MarginPercentage = MarginPercentage(group.Revenue, group.Cost)
		results = append(results, *group)
	}
	sortByRevenueDesc(results, func(cm domain.CustomerMargin) (int64, string) {
		return cm.Revenue, cm.OrganizationID
	})
	return results, nil
}

// MarginReport runs both groupings concurrently and derives the summary from
// the by-customer results alone. The by-product grouping omits operational
// costs, so summing both would double-count; the full-breakdown basis is the
// authoritative one.
func (m *MarginCalculator) MarginReport(ctx context.Context, dateRange domain.DateRange) (domain.MarginReport, error) {
	if dateRange.Inverted() {
		return domain.MarginReport{}, fmt.Errorf("%w: start date is after end date", ErrMarginInvalidInput)
	}

	var (
		byProduct  []domain.ProductMargin
		byCustomer []domain.CustomerMargin
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byProduct, err = m.MarginReportByProduct(gctx, dateRange)
		return err
	})
	g.Go(func() error {
		var err error
		byCustomer, err = m.MarginReportByCustomer(gctx, dateRange)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.MarginReport{}, err
	}

	summary := domain.MarginSummary{}
	for _, group := range byCustomer {
		summary.TotalRevenue += group.Revenue
		summary.TotalCost += group.Cost
		summary.OrderCount += group.OrderCount
	}
	summary.TotalMargin = summary.TotalRevenue - summary.TotalCost
	summary.AverageMarginPercentage = MarginPercentage(summary.TotalRevenue, summary.TotalCost)

	return domain.MarginReport{
		Range:      dateRange,
		Summary:    summary,
		ByProduct:  byProduct,
		ByCustomer: byCustomer,
	}, nil
}

func (m *MarginCalculator) eligibleOrders(ctx context.Context, dateRange domain.DateRange) ([]domain.Order, error) {
	if dateRange.Inverted() {
		return nil, fmt.Errorf("%w: start date is after end date", ErrMarginInvalidInput)
	}
	filter := repositories.OrderListFilter{
		Statuses: domain.ReportEligibleStatuses,
		CreatedRange: domain.RangeQuery[time.Time]{
			From: &dateRange.Start,
			To:   &dateRange.End,
		},
	}
	return m.orders.List(ctx, filter)
}

func sortByRevenueDesc[T any](items []T, key func(T) (int64, string)) {
	sort.SliceStable(items, func(i, j int) bool {
		revI, idI := key(items[i])
		revJ, idJ := key(items[j])
		if revI == revJ {
			return idI < idJ
		}
		return revI > revJ
	})
}
