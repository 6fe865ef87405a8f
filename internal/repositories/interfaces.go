package repositories

import (
	"context"
	"time"

	domain "github.com/swagbox/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for
// dependency injection. Every repository the engine needs is resolved once
// at construction time; a missing repository is a configuration error
// surfaced at startup, never a degraded per-call path.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	ProductionOrders() ProductionOrderRepository
	VariantCosts() VariantCostRepository
}

// RepositoryError wraps low-level persistence failures with categorisation
// used by services when mapping to their own sentinel errors.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderListFilter narrows order queries for report generation. Zero-valued
// fields are ignored.
type OrderListFilter struct {
	Statuses     []domain.OrderStatus
	CreatedRange domain.RangeQuery[time.Time]
	Limit        int
}

// OrderRepository reads order headers and pack snapshots. The costing engine
// never mutates orders.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
}

// ProductionOrderRepository reads and updates manufacturing sub-orders.
// Update must apply an optimistic concurrency precondition (last-seen
// UpdatedAt) so concurrent actual-cost recordings against the same record
// surface as conflicts instead of lost writes.
type ProductionOrderRepository interface {
	FindByID(ctx context.Context, productionOrderID string) (domain.ProductionOrder, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.ProductionOrder, error)
	Update(ctx context.Context, po domain.ProductionOrder) (domain.ProductionOrder, error)
}

// VariantCostRepository resolves authoritative catalog unit costs. FindByID
// returns a RepositoryError with IsNotFound when the variant is absent; the
// cost calculator treats that as a non-fatal degraded path and falls back to
// the snapshot cost.
type VariantCostRepository interface {
	FindByID(ctx context.Context, variantID string) (domain.VariantCost, error)
}
