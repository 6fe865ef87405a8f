package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/swagbox/api/internal/platform/config"
	"github.com/swagbox/api/internal/repositories"
	"github.com/swagbox/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled in NewContainer.
type Services struct {
	Costs    services.CostService
	Margins  services.MarginService
	Variance services.VarianceService
}

// ContainerDeps carries the external collaborators the container cannot build
// itself. Alerts and Logger are optional.
type ContainerDeps struct {
	Registry repositories.Registry
	Alerts   services.AlertDispatcher
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// Firestore-backed repositories, while tests can supply in-memory registries.
func NewContainer(cfg config.Config, deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases repository clients and any other held resources.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, deps ContainerDeps) (Services, error) {
	reg := deps.Registry

	costs, err := services.NewCostCalculator(services.CostCalculatorDeps{
		Orders:       reg.Orders(),
		VariantCosts: reg.VariantCosts(),
		Rates: services.CostRates{
			BaseShippingCost:          cfg.Costing.BaseShippingCost,
			PerRecipientRate:          cfg.Costing.PerRecipientRate,
			PerUnitWeightSurcharge:    cfg.Costing.PerUnitWeightSurcharge,
			KittingRatePerRecipient:   cfg.Costing.KittingRatePerRecipient,
			PackagingRatePerRecipient: cfg.Costing.PackagingRatePerRecipient,
			HandlingRateBps:           cfg.Costing.HandlingRateBps,
		},
		Logger: deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cost calculator: %w", err)
	}

	margins, err := services.NewMarginCalculator(services.MarginCalculatorDeps{
		Orders:    reg.Orders(),
		Costs:     costs,
		Alerts:    deps.Alerts,
		Threshold: cfg.Costing.MarginAlertThreshold,
		Logger:    deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build margin calculator: %w", err)
	}

	variance, err := services.NewVarianceAnalyzer(services.VarianceAnalyzerDeps{
		Orders:           reg.Orders(),
		ProductionOrders: reg.ProductionOrders(),
		Logger:           deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build variance analyzer: %w", err)
	}

	return Services{
		Costs:    costs,
		Margins:  margins,
		Variance: variance,
	}, nil
}
