package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/swagbox/api/internal/domain"
	"github.com/swagbox/api/internal/repositories"
)

var (
	// ErrVarianceInvalidInput signals bad request data such as a negative actual cost.
	ErrVarianceInvalidInput = errors.New("variance: invalid input")
	// ErrVarianceNotFound indicates the referenced order or production order could not be located.
	ErrVarianceNotFound = errors.New("variance: not found")
	// ErrVarianceConflict indicates the production order is not in a state that accepts the write.
	ErrVarianceConflict = errors.New("variance: conflict")
)

const (
	// varianceReportThresholdPct is the absolute variance percentage above
	// which an order-level overrun or saving line is emitted. Exactly on the
	// threshold is not reported.
	varianceReportThresholdPct = 10.0

	// componentDeviationThresholdPct flags a materials/labor/overhead component
	// whose deviation exceeds this share of the sub-order's estimated cost.
	componentDeviationThresholdPct = 5.0

	varianceReportConcurrency = 8
)

// VarianceAnalyzerDeps bundles collaborators required to construct the variance analyzer.
type VarianceAnalyzerDeps struct {
	Orders           repositories.OrderRepository
	ProductionOrders repositories.ProductionOrderRepository
	Logger           func(ctx context.Context, event string, fields map[string]any)
}

// VarianceAnalyzer records actual manufacturing costs on completed production
// orders and analyses estimated-vs-actual deviations, per order and across
// reporting windows.
type VarianceAnalyzer struct {
	orders           repositories.OrderRepository
	productionOrders repositories.ProductionOrderRepository
	logger           func(context.Context, string, map[string]any)
}

var _ VarianceService = (*VarianceAnalyzer)(nil)

// NewVarianceAnalyzer wires dependencies into a VarianceAnalyzer.
func NewVarianceAnalyzer(deps VarianceAnalyzerDeps) (*VarianceAnalyzer, error) {
	if deps.Orders == nil {
		return nil, errors.New("variance analyzer: order repository is required")
	}
	if deps.ProductionOrders == nil {
		return nil, errors.New("variance analyzer: production order repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &VarianceAnalyzer{
		orders:           deps.Orders,
		productionOrders: deps.ProductionOrders,
		logger:           logger,
	}, nil
}

// RecordActualCost stores the actual manufacturing cost on a completed
// production order and derives its variance. Writes against sub-orders that
// have not completed are rejected as conflicts; the repository's update
// precondition turns concurrent recordings into conflicts as well.
func (v *VarianceAnalyzer) RecordActualCost(ctx context.Context, cmd RecordActualCostCommand) (domain.ProductionOrder, error) {
	id := strings.TrimSpace(cmd.ProductionOrderID)
	if id == "" {
		return domain.ProductionOrder{}, fmt.Errorf("%w: production order id is required", ErrVarianceInvalidInput)
	}
	if cmd.ActualCost < 0 {
		return domain.ProductionOrder{}, fmt.Errorf("%w: actual cost must not be negative", ErrVarianceInvalidInput)
	}

	po, err := v.productionOrders.FindByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.ProductionOrder{}, fmt.Errorf("%w: production order %s", ErrVarianceNotFound, id)
		}
		return domain.ProductionOrder{}, err
	}

	if po.Status != domain.ProductionOrderStatusCompleted {
		return domain.ProductionOrder{}, fmt.Errorf("%w: production order %s is %s, actual cost requires completed",
			ErrVarianceConflict, id, po.Status)
	}

	actual := cmd.ActualCost
	variance := actual - po.EstimatedCost
	po.ActualCost = &actual
	po.CostVariance = &variance
	if cmd.Breakdown != nil {
		breakdown := *cmd.Breakdown
		po.ActualBreakdown = &breakdown
	}
	if cmd.Notes != nil {
		notes := strings.TrimSpace(*cmd.Notes)
		if notes != "" {
			po.CostNotes = &notes
		}
	}

	updated, err := v.productionOrders.Update(ctx, po)
	if err != nil {
		if isRepoConflict(err) {
			return domain.ProductionOrder{}, fmt.Errorf("%w: production order %s was modified concurrently", ErrVarianceConflict, id)
		}
		return domain.ProductionOrder{}, err
	}

	v.logger(ctx, "variance.actual_cost.recorded", map[string]any{
		"productionOrderId": updated.ID,
		"orderId":           updated.OrderID,
		"actualCost":        actual,
		"variance":          variance,
	})

	return updated, nil
}

// CalculateVariance compares estimated and actual manufacturing cost across
// an order's production sub-orders. Sub-orders whose actual cost has not been
// recorded contribute their estimate on the actual side, so the order-level
// variance only reflects deviations that have actually been measured.
func (v *VarianceAnalyzer) CalculateVariance(ctx context.Context, orderID string) (domain.OrderVariance, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.OrderVariance{}, fmt.Errorf("%w: order id is required", ErrVarianceInvalidInput)
	}

	order, err := v.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.OrderVariance{}, fmt.Errorf("%w: order %s", ErrVarianceNotFound, orderID)
		}
		return domain.OrderVariance{}, err
	}

	return v.varianceForOrder(ctx, order)
}

func (v *VarianceAnalyzer) varianceForOrder(ctx context.Context, order domain.Order) (domain.OrderVariance, error) {
	productionOrders, err := v.productionOrders.ListByOrder(ctx, order.ID)
	if err != nil {
		return domain.OrderVariance{}, err
	}

	result := domain.OrderVariance{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	}
	for _, po := range productionOrders {
		result.EstimatedCost += po.EstimatedCost
		if po.HasActualCost() {
			result.ActualCost += *po.ActualCost
		} else {
			result.ActualCost += po.EstimatedCost
		}
	}

	result.Variance = result.ActualCost - result.EstimatedCost
	if result.EstimatedCost != 0 {
		result.VariancePercentage = float64(result.Variance) / float64(result.EstimatedCost) * 100
	}
	result.Reasons = AnalyzeVarianceReasons(productionOrders)

	return result, nil
}

// AnalyzeVarianceReasons produces human-readable explanations for an order's
// cost deviations. Order-level overruns and savings are reported only when
// the sub-order's variance percentage strictly exceeds 10 percent in either
// direction; component deviations are flagged above 5 percent of the
// sub-order's estimated cost.
func AnalyzeVarianceReasons(productionOrders []domain.ProductionOrder) []string {
	if len(productionOrders) == 0 {
		return []string{"no production orders found"}
	}

	var reasons []string
	for _, po := range productionOrders {
		if !po.HasActualCost() {
			reasons = append(reasons, fmt.Sprintf("production order %s: actual cost not yet recorded", po.ID))
			continue
		}

		var emitted bool
		if po.EstimatedCost != 0 {
			pct := float64(*po.ActualCost-po.EstimatedCost) / float64(po.EstimatedCost) * 100
			switch {
			case pct > varianceReportThresholdPct:
				reasons = append(reasons, fmt.Sprintf("production order %s: cost overrun of %.2f%%", po.ID, pct))
				emitted = true
			case pct < -varianceReportThresholdPct:
				reasons = append(reasons, fmt.Sprintf("production order %s: cost savings of %.2f%%", po.ID, math.Abs(pct)))
				emitted = true
			}
		}

		if lines := componentDeviations(po); len(lines) > 0 {
			reasons = append(reasons, lines...)
			emitted = true
		}

		if emitted && po.CostNotes != nil && *po.CostNotes != "" {
			reasons = append(reasons, fmt.Sprintf("production order %s notes: %s", po.ID, *po.CostNotes))
		}
	}

	if len(reasons) == 0 {
		return []string{"no significant variances detected"}
	}
	return reasons
}

// componentDeviations flags components whose deviation exceeds 5 percent of
// the sub-order's estimated cost. A zero estimate makes the threshold zero,
// so any nonzero deviation is flagged.
func componentDeviations(po domain.ProductionOrder) []string {
	if po.EstimatedBreakdown == nil || po.ActualBreakdown == nil {
		return nil
	}

	components := []struct {
		name      string
		estimated int64
		actual    int64
	}{
		{"materials", po.EstimatedBreakdown.Materials, po.ActualBreakdown.Materials},
		{"labor", po.EstimatedBreakdown.Labor, po.ActualBreakdown.Labor},
		{"overhead", po.EstimatedBreakdown.Overhead, po.ActualBreakdown.Overhead},
	}

	threshold := float64(po.EstimatedCost) * componentDeviationThresholdPct / 100

	var lines []string
	for _, component := range components {
		deviation := float64(component.actual - component.estimated)
		if math.Abs(deviation) <= threshold {
			continue
		}
		direction := "over"
		if deviation < 0 {
			direction = "under"
		}
		lines = append(lines, fmt.Sprintf("production order %s: %s %s estimate by %d",
			po.ID, component.name, direction, int64(math.Abs(deviation))))
	}
	return lines
}

// GenerateVarianceReport aggregates order variances across the reporting
// window. Orders whose variance calculation fails are skipped and logged so
// one broken record never voids the whole report. Every computed variance
// appears in the per-order list with its reasons flattened into the
// report-level list; the 10 percent threshold only shapes the per-sub-order
// reason lines.
func (v *VarianceAnalyzer) GenerateVarianceReport(ctx context.Context, dateRange domain.DateRange) (domain.VarianceAnalysis, error) {
	if dateRange.Inverted() {
		return domain.VarianceAnalysis{}, fmt.Errorf("%w: start date is after end date", ErrVarianceInvalidInput)
	}

	filter := repositories.OrderListFilter{
		Statuses: domain.ReportEligibleStatuses,
		CreatedRange: domain.RangeQuery[time.Time]{
			From: &dateRange.Start,
			To:   &dateRange.End,
		},
	}
	orders, err := v.orders.List(ctx, filter)
	if err != nil {
		return domain.VarianceAnalysis{}, err
	}

	variances := make([]*domain.OrderVariance, len(orders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(varianceReportConcurrency)
	for i := range orders {
		g.Go(func() error {
			variance, err := v.varianceForOrder(gctx, orders[i])
			if err != nil {
				v.logger(gctx, "variance.report.order_skipped", map[string]any{
					"orderId": orders[i].ID,
					"error":   err.Error(),
				})
				return nil
			}
			variances[i] = &variance
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.VarianceAnalysis{}, err
	}

	analysis := domain.VarianceAnalysis{Range: dateRange}
	for _, variance := range variances {
		if variance == nil {
			continue
		}
		analysis.TotalEstimated += variance.EstimatedCost
		analysis.TotalActual += variance.ActualCost
		analysis.OrderCount++

		analysis.Orders = append(analysis.Orders, *variance)
		for _, reason := range variance.Reasons {
			analysis.Reasons = append(analysis.Reasons, fmt.Sprintf("order %s: %s", variance.OrderNumber, reason))
		}
	}

	analysis.TotalVariance = analysis.TotalActual - analysis.TotalEstimated
	if analysis.TotalEstimated != 0 {
		analysis.VariancePercentage = float64(analysis.TotalVariance) / float64(analysis.TotalEstimated) * 100
	}

	return analysis, nil
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
