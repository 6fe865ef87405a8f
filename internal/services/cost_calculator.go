package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/swagbox/api/internal/domain"
	"github.com/swagbox/api/internal/repositories"
)

var (
	// ErrCostingInvalidInput signals bad request data such as an empty pack snapshot.
	ErrCostingInvalidInput = errors.New("costing: invalid input")
	// ErrCostingNotFound indicates the referenced order could not be located.
	ErrCostingNotFound = errors.New("costing: not found")
)

// CostRates bundles the operational rate card applied on top of product and
// customization costs. Monetary fields are minor currency units; the handling
// rate is expressed in basis points of the order's total price.
type CostRates struct {
	BaseShippingCost          int64
	PerRecipientRate          int64
	PerUnitWeightSurcharge    int64
	KittingRatePerRecipient   int64
	PackagingRatePerRecipient int64
	HandlingRateBps           int64
}

// DefaultCostRates returns the standard rate card used when configuration
// does not override individual rates.
func DefaultCostRates() CostRates {
	return CostRates{
		BaseShippingCost:          100000,
		PerRecipientRate:          4000,
		PerUnitWeightSurcharge:    300,
		KittingRatePerRecipient:   5000,
		PackagingRatePerRecipient: 3000,
		HandlingRateBps:           200,
	}
}

// CostCalculatorDeps bundles collaborators required to construct the cost calculator.
type CostCalculatorDeps struct {
	Orders       repositories.OrderRepository
	VariantCosts repositories.VariantCostRepository
	Rates        CostRates
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

// CostCalculator derives structured cost breakdowns for single orders. It
// holds no mutable state; every calculation is a pure function of the order
// snapshot, the variant catalog, and the rate card.
type CostCalculator struct {
	orders       repositories.OrderRepository
	variantCosts repositories.VariantCostRepository
	rates        CostRates
	logger       func(context.Context, string, map[string]any)
}

var _ CostService = (*CostCalculator)(nil)

// NewCostCalculator wires dependencies into a CostCalculator. Missing rate
// fields fall back to the default rate card.
func NewCostCalculator(deps CostCalculatorDeps) (*CostCalculator, error) {
	if deps.Orders == nil {
		return nil, errors.New("cost calculator: order repository is required")
	}
	if deps.VariantCosts == nil {
		return nil, errors.New("cost calculator: variant cost repository is required")
	}

	rates := deps.Rates
	defaults := DefaultCostRates()
	if rates.BaseShippingCost <= 0 {
		rates.BaseShippingCost = defaults.BaseShippingCost
	}
	if rates.PerRecipientRate <= 0 {
		rates.PerRecipientRate = defaults.PerRecipientRate
	}
	if rates.PerUnitWeightSurcharge <= 0 {
		rates.PerUnitWeightSurcharge = defaults.PerUnitWeightSurcharge
	}
	if rates.KittingRatePerRecipient <= 0 {
		rates.KittingRatePerRecipient = defaults.KittingRatePerRecipient
	}
	if rates.PackagingRatePerRecipient <= 0 {
		rates.PackagingRatePerRecipient = defaults.PackagingRatePerRecipient
	}
	if rates.HandlingRateBps <= 0 {
		rates.HandlingRateBps = defaults.HandlingRateBps
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &CostCalculator{
		orders:       deps.Orders,
		variantCosts: deps.VariantCosts,
		rates:        rates,
		logger:       logger,
	}, nil
}

// ProductCost sums quantity times authoritative unit cost across the pack
// snapshot. When a variant is missing from the catalog the snapshot cost is
// used instead; that is a degraded path logged as a warning, never an error.
func (c *CostCalculator) ProductCost(ctx context.Context, order domain.Order) int64 {
	var total int64
	for _, item := range order.Items {
		unitCost := item.UnitCost
		variantID := strings.TrimSpace(item.VariantID)
		if variantID != "" {
			variant, err := c.variantCosts.FindByID(ctx, variantID)
			switch {
			case err == nil:
				unitCost = variant.UnitCost
			case isRepoNotFound(err):
				c.logger(ctx, "costing.variant.missing", map[string]any{
					"orderId":   order.ID,
					"variantId": variantID,
				})
			default:
				c.logger(ctx, "costing.variant.lookup_failed", map[string]any{
					"orderId":   order.ID,
					"variantId": variantID,
					"error":     err.Error(),
				})
			}
		}
		total += unitCost * int64(item.Quantity)
	}
	return total
}

// CustomizationCost sums decoration charges across the pack snapshot: the
// one-time setup fee once per distinct (product, print method) pair, the
// per-unit customization cost, and every priced print area per unit.
func (c *CostCalculator) CustomizationCost(order domain.Order) int64 {
	var total int64
	seen := make(map[setupFeeKey]struct{})
	for _, item := range order.Items {
		custom := item.Customization
		if custom == nil {
			continue
		}

		key := setupFeeKey{productID: item.ProductID, printMethod: custom.PrintMethod}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			total += custom.SetupFee
		}

		quantity := int64(item.Quantity)
		total += custom.UnitCost * quantity
		for _, area := range custom.PrintAreas {
			if area.Cost > 0 {
				total += area.Cost * quantity
			}
		}
	}
	return total
}

// SetupFees is the setup-fee-only projection of CustomizationCost, with the
// same (product, print method) deduplication rule.
func (c *CostCalculator) SetupFees(order domain.Order) int64 {
	var total int64
	seen := make(map[setupFeeKey]struct{})
	for _, item := range order.Items {
		custom := item.Customization
		if custom == nil {
			continue
		}
		key := setupFeeKey{productID: item.ProductID, printMethod: custom.PrintMethod}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		total += custom.SetupFee
	}
	return total
}

// ShippingCost applies the rate card: a flat base, a per-recipient rate, and
// a per-unit weight surcharge. The recipient count floors at one so an order
// without recipients still carries more than the bare base rate.
func (c *CostCalculator) ShippingCost(order domain.Order) int64 {
	recipients := recipientCount(order)
	return c.rates.BaseShippingCost +
		recipients*c.rates.PerRecipientRate +
		order.TotalItemQuantity()*c.rates.PerUnitWeightSurcharge
}

// OperationalCost sums kitting, packaging, shipping, and handling for the order.
func (c *CostCalculator) OperationalCost(order domain.Order) int64 {
	recipients := recipientCount(order)
	kitting := recipients * c.rates.KittingRatePerRecipient
	packaging := recipients * c.rates.PackagingRatePerRecipient
	handling := c.handlingFee(order)
	return kitting + packaging + c.ShippingCost(order) + handling
}

// TotalCost computes the full validated breakdown for an order. It fails with
// a validation error when the pack snapshot has no line items; every derived
// field follows the breakdown invariants.
func (c *CostCalculator) TotalCost(ctx context.Context, order domain.Order) (domain.CostBreakdown, error) {
	if len(order.Items) == 0 {
		return domain.CostBreakdown{}, fmt.Errorf("%w: order %s has no line items", ErrCostingInvalidInput, order.ID)
	}

	recipients := recipientCount(order)

	breakdown := domain.CostBreakdown{
		OrderID:           order.ID,
		BaseProductsCost:  c.ProductCost(ctx, order),
		CustomizationCost: c.CustomizationCost(order),
		SetupFees:         c.SetupFees(order),
		KittingFee:        recipients * c.rates.KittingRatePerRecipient,
		PackagingCost:     recipients * c.rates.PackagingRatePerRecipient,
		ShippingCost:      c.ShippingCost(order),
		HandlingFee:       c.handlingFee(order),
		TotalPrice:        order.TotalPrice,
	}

	breakdown.TotalCost = breakdown.BaseProductsCost +
		breakdown.CustomizationCost +
		breakdown.KittingFee +
		breakdown.PackagingCost +
		breakdown.ShippingCost +
		breakdown.HandlingFee

	breakdown.GrossMargin = breakdown.TotalPrice - breakdown.TotalCost
	breakdown.MarginPercentage = MarginPercentage(breakdown.TotalPrice, breakdown.TotalCost)

	return breakdown, nil
}

// GetCostBreakdown fetches the order by id and delegates to TotalCost.
func (c *CostCalculator) GetCostBreakdown(ctx context.Context, orderID string) (domain.CostBreakdown, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.CostBreakdown{}, fmt.Errorf("%w: order id is required", ErrCostingInvalidInput)
	}

	order, err := c.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.CostBreakdown{}, fmt.Errorf("%w: order %s", ErrCostingNotFound, orderID)
		}
		return domain.CostBreakdown{}, err
	}

	return c.TotalCost(ctx, order)
}

func (c *CostCalculator) handlingFee(order domain.Order) int64 {
	return order.TotalPrice * c.rates.HandlingRateBps / 10000
}

type setupFeeKey struct {
	productID   string
	printMethod string
}

// recipientCount floors at one so shipping and per-recipient fees never
// collapse to the bare base rate for orders without a recipient list.
func recipientCount(order domain.Order) int64 {
	if len(order.Recipients) == 0 {
		return 1
	}
	return int64(len(order.Recipients))
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
