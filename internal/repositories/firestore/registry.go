package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/swagbox/api/internal/platform/firestore"
	"github.com/swagbox/api/internal/repositories"
)

// Registry wires the Firestore backed repositories behind the
// repositories.Registry interface. All repositories share one lazily dialed
// client via the provider.
type Registry struct {
	provider *pfirestore.Provider

	orders           *OrderRepository
	productionOrders *ProductionOrderRepository
	variantCosts     *VariantCostRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the registry and every repository it exposes.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("repository registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	productionOrders, err := NewProductionOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	variantCosts, err := NewVariantCostRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:         provider,
		orders:           orders,
		productionOrders: productionOrders,
		variantCosts:     variantCosts,
	}, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) ProductionOrders() repositories.ProductionOrderRepository {
	return r.productionOrders
}

func (r *Registry) VariantCosts() repositories.VariantCostRepository { return r.variantCosts }
