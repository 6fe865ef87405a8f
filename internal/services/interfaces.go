package services

import (
	"context"

	domain "github.com/swagbox/api/internal/domain"
)

// CostService derives per-order cost breakdowns from pack snapshots and the
// variant catalog. Breakdowns are recomputed on every call; repeated calls
// over unchanged data yield identical results.
type CostService interface {
	GetCostBreakdown(ctx context.Context, orderID string) (domain.CostBreakdown, error)
	TotalCost(ctx context.Context, order domain.Order) (domain.CostBreakdown, error)
}

// CostBreakdownProvider is the slice of CostService the margin calculator
// needs to price whole orders.
type CostBreakdownProvider interface {
	TotalCost(ctx context.Context, order domain.Order) (domain.CostBreakdown, error)
}

// MarginService computes gross margins, enforces the low-margin alert
// threshold, and builds grouped margin reports over a date range.
type MarginService interface {
	CheckMarginThreshold(ctx context.Context, order domain.Order, breakdown domain.CostBreakdown) MarginAlertDecision
	MarginReportByProduct(ctx context.Context, dateRange domain.DateRange) ([]domain.ProductMargin, error)
	MarginReportByCustomer(ctx context.Context, dateRange domain.DateRange) ([]domain.CustomerMargin, error)
	MarginReport(ctx context.Context, dateRange domain.DateRange) (domain.MarginReport, error)
}

// VarianceService records actual manufacturing costs and analyses
// estimated-vs-actual deviations across production sub-orders.
type VarianceService interface {
	RecordActualCost(ctx context.Context, cmd RecordActualCostCommand) (domain.ProductionOrder, error)
	CalculateVariance(ctx context.Context, orderID string) (domain.OrderVariance, error)
	GenerateVarianceReport(ctx context.Context, dateRange domain.DateRange) (domain.VarianceAnalysis, error)
}

// LowMarginAlert carries the payload handed to the alert dispatcher when an
// order's margin falls below the configured threshold.
type LowMarginAlert struct {
	OrderID          string
	OrderNumber      string
	MarginPercentage float64
	Threshold        float64
}

// AlertDispatcher delivers low-margin alerts to downstream consumers.
type AlertDispatcher interface {
	SendLowMarginAlert(ctx context.Context, alert LowMarginAlert) error
}

// MarginAlertDecision reports whether a threshold check alerted and, if so,
// the formatted alert message.
type MarginAlertDecision struct {
	Alerted          bool
	MarginPercentage float64
	Threshold        float64
	Message          string
}

// RecordActualCostCommand captures the write against a completed production
// order. Breakdown and Notes are optional.
type RecordActualCostCommand struct {
	ProductionOrderID string
	ActualCost        int64
	Breakdown         *domain.CostComponents
	Notes             *string
}
