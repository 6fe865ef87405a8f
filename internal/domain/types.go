package domain

import (
	"time"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// OrderStatus enumerates valid lifecycle states for swag orders.
type OrderStatus string

const (
	// OrderStatusDraft indicates the order is yet to be confirmed or checkout is incomplete.
	OrderStatusDraft OrderStatus = "draft"
	// OrderStatusPendingPayment indicates the order awaits payment completion.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPaid indicates payment succeeded and production can begin.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusInProduction indicates the order is actively being manufactured.
	OrderStatusInProduction OrderStatus = "in_production"
	// OrderStatusShipped indicates the order has been handed to carriers.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates all recipients have received their packs.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCompleted indicates the order has been closed out.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCanceled indicates the order has been canceled.
	OrderStatusCanceled OrderStatus = "canceled"
)

// ReportEligibleStatuses lists the order states included in margin and
// variance reporting. Orders still in flight are excluded so reports only
// cover revenue that has actually shipped.
var ReportEligibleStatuses = []OrderStatus{
	OrderStatusCompleted,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// Recipient is a delivery target for one pack within an order.
type Recipient struct {
	ID         string
	Name       string
	Email      string
	Company    string
	PostalCode string
	Country    string
}

// PrintArea describes one decorated surface on a customized item. Cost is
// charged per unit produced, in minor currency units.
type PrintArea struct {
	Name string
	Cost int64
}

// ItemCustomization captures the decoration applied to a pack item. SetupFee
// is a one-time charge per distinct (product, print method) pair within an
// order; UnitCost is charged per unit.
type ItemCustomization struct {
	PrintMethod string
	SetupFee    int64
	UnitCost    int64
	PrintAreas  []PrintArea
}

// PackItem is one line of the immutable pack snapshot taken when the order
// was placed. UnitCost mirrors the catalog cost at purchase time and serves
// as a fallback when the variant has since disappeared from the catalog.
type PackItem struct {
	VariantID     string
	ProductID     string
	Name          string
	Quantity      int
	UnitPrice     int64
	UnitCost      int64
	Customization *ItemCustomization
}

// Order captures the order header plus its pack snapshot. The costing engine
// only ever reads orders; mutation belongs to the order-management subsystem.
type Order struct {
	ID             string
	OrderNumber    string
	OrganizationID string
	Status         OrderStatus
	TotalPrice     int64
	Recipients     []Recipient
	Items          []PackItem
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TotalItemQuantity sums the quantities across the pack snapshot.
func (o Order) TotalItemQuantity() int64 {
	var total int64
	for _, item := range o.Items {
		total += int64(item.Quantity)
	}
	return total
}

// ProductionOrderStatus enumerates manufacturing sub-order states.
type ProductionOrderStatus string

const (
	// ProductionOrderStatusPending indicates the sub-order awaits scheduling.
	ProductionOrderStatusPending ProductionOrderStatus = "pending"
	// ProductionOrderStatusInProgress indicates manufacturing is underway.
	ProductionOrderStatusInProgress ProductionOrderStatus = "in_progress"
	// ProductionOrderStatusCompleted indicates manufacturing finished; actual
	// cost may now be recorded.
	ProductionOrderStatusCompleted ProductionOrderStatus = "completed"
	// ProductionOrderStatusCanceled indicates the sub-order was abandoned.
	ProductionOrderStatusCanceled ProductionOrderStatus = "canceled"
)

// CostComponents is the materials/labor/overhead sub-breakdown attached to a
// production order on either the estimated or the actual side.
type CostComponents struct {
	Materials int64
	Labor     int64
	Overhead  int64
}

// ProductionOrder is a manufacturing sub-order of a swag order. ActualCost,
// CostVariance, ActualBreakdown, and CostNotes stay nil until an operator
// records the actual cost after completion.
type ProductionOrder struct {
	ID                 string
	OrderID            string
	Supplier           string
	Status             ProductionOrderStatus
	EstimatedCost      int64
	ActualCost         *int64
	CostVariance       *int64
	EstimatedBreakdown *CostComponents
	ActualBreakdown    *CostComponents
	CostNotes          *string
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasActualCost reports whether an actual cost has been recorded.
func (p ProductionOrder) HasActualCost() bool {
	return p.ActualCost != nil
}

// VariantCost is the authoritative per-unit catalog cost for a product
// variant, maintained by the catalog subsystem.
type VariantCost struct {
	VariantID string
	ProductID string
	UnitCost  int64
	UpdatedAt time.Time
}

// DateRange bounds report queries. Start must not be after End.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Inverted reports whether the range is malformed (start after end).
func (r DateRange) Inverted() bool {
	return r.Start.After(r.End)
}
