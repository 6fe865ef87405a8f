package domain

// CostBreakdown is the per-order cost decomposition produced by the cost
// calculator. It is recomputed from fresh inputs on every request and never
// persisted. All monetary fields are in minor currency units.
//
// Invariant: TotalCost = BaseProductsCost + CustomizationCost + KittingFee +
// PackagingCost + ShippingCost + HandlingFee, GrossMargin = TotalPrice -
// TotalCost, and MarginPercentage = GrossMargin / TotalPrice * 100 (0 when
// TotalPrice is 0).
type CostBreakdown struct {
	OrderID           string
	BaseProductsCost  int64
	CustomizationCost int64
	SetupFees         int64
	KittingFee        int64
	PackagingCost     int64
	ShippingCost      int64
	HandlingFee       int64
	TotalCost         int64
	TotalPrice        int64
	GrossMargin       int64
	MarginPercentage  float64
}

// ProductMargin aggregates snapshot revenue and cost for one product across
// a margin report window.
//
// OrderCount counts line-item occurrences, not distinct orders: an order
// carrying the same product on two lines increments it twice. The name is
// kept for report compatibility with downstream consumers.
type ProductMargin struct {
	ProductID        string
	ProductName      string
	Revenue          int64
	Cost             int64
	Margin           int64
	MarginPercentage float64
	OrderCount       int
}

// CustomerMargin aggregates full-breakdown revenue and cost per buying
// organization. Unlike ProductMargin this is computed from complete cost
// breakdowns, so operational costs are included.
type CustomerMargin struct {
	OrganizationID   string
	Revenue          int64
	Cost             int64
	Margin           int64
	MarginPercentage float64
	OrderCount       int
}

// MarginSummary rolls up a margin report. Derived exclusively from the
// by-customer grouping, which is the only one carrying operational costs.
type MarginSummary struct {
	TotalRevenue            int64
	TotalCost               int64
	TotalMargin             int64
	AverageMarginPercentage float64
	OrderCount              int
}

// MarginReport is the transient aggregate returned for a report request.
type MarginReport struct {
	Range      DateRange
	Summary    MarginSummary
	ByProduct  []ProductMargin
	ByCustomer []CustomerMargin
}

// OrderVariance compares estimated and actual manufacturing cost for one
// order, summed across its production sub-orders. Unrecorded actuals fall
// back to their estimate so they never distort the variance.
type OrderVariance struct {
	OrderID            string
	OrderNumber        string
	EstimatedCost      int64
	ActualCost         int64
	Variance           int64
	VariancePercentage float64
	Reasons            []string
}

// VarianceAnalysis aggregates order variances over a date range.
type VarianceAnalysis struct {
	Range              DateRange
	TotalEstimated     int64
	TotalActual        int64
	TotalVariance      int64
	VariancePercentage float64
	OrderCount         int
	Orders             []OrderVariance
	Reasons            []string
}
