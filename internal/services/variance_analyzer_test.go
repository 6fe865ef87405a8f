package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	domain "github.com/swagbox/api/internal/domain"
)

func TestVarianceAnalyzer_RecordActualCost(t *testing.T) {
	ctx := context.Background()

	productionOrders := &fakeProductionOrderRepo{byID: map[string]domain.ProductionOrder{
		"po_1": {
			ID:            "po_1",
			OrderID:       "ord_1",
			Status:        domain.ProductionOrderStatusCompleted,
			EstimatedCost: 100_000,
		},
	}}
	analyzer, err := NewVarianceAnalyzer(VarianceAnalyzerDeps{
		Orders:           &fakeOrderRepo{},
		ProductionOrders: productionOrders,
	})
	if err != nil {
		t.Fatalf("NewVarianceAnalyzer error: %v", err)
	}

	notes := "supplier raised material prices"
	updated, err := analyzer.RecordActualCost(ctx, RecordActualCostCommand{
		ProductionOrderID: "po_1",
		ActualCost:        130_000,
		Breakdown:         &domain.CostComponents{Materials: 90_000, Labor: 30_000, Overhead: 10_000},
		Notes:             &notes,
	})
	if err != nil {
		t.Fatalf("RecordActualCost error: %v", err)
	}

	if !updated.HasActualCost() || *updated.ActualCost != 130_000 {
		t.Fatalf("expected actual cost 130000, got %+v", updated.ActualCost)
	}
	if updated.CostVariance == nil || *updated.CostVariance != 30_000 {
		t.Fatalf("expected cost variance 30000, got %+v", updated.CostVariance)
	}
	if updated.ActualBreakdown == nil || updated.ActualBreakdown.Materials != 90_000 {
		t.Fatalf("expected actual breakdown persisted, got %+v", updated.ActualBreakdown)
	}
	if updated.CostNotes == nil || *updated.CostNotes != notes {
		t.Fatalf("expected cost notes persisted, got %+v", updated.CostNotes)
	}
}

func TestVarianceAnalyzer_RecordActualCostZeroVariance(t *testing.T) {
	productionOrders := &fakeProductionOrderRepo{byID: map[string]domain.ProductionOrder{
		"po_1": {ID: "po_1", Status: domain.ProductionOrderStatusCompleted, EstimatedCost: 100_000},
	}}
	analyzer, err := NewVarianceAnalyzer(VarianceAnalyzerDeps{
		Orders:           &fakeOrderRepo{},
		ProductionOrders: productionOrders,
	})
	if err != nil {
		t.Fatalf("NewVarianceAnalyzer error: %v", err)
	}

	updated, err := analyzer.RecordActualCost(context.Background(), RecordActualCostCommand{
		ProductionOrderID: "po_1",
		ActualCost:        100_000,
	})
	if err != nil {
		t.Fatalf("RecordActualCost error: %v", err)
	}
	if updated.CostVariance == nil || *updated.CostVariance != 0 {
		t.Fatalf("expected zero variance, got %+v", updated.CostVariance)
	}
}

func TestVarianceAnalyzer_RecordActualCostRejections(t *testing.T) {
	ctx := context.Background()

	productionOrders := &fakeProductionOrderRepo{byID: map[string]domain.ProductionOrder{
		"po_pending": {ID: "po_pending", Status: domain.ProductionOrderStatusPending, EstimatedCost: 50_000},
	}}
	analyzer, err := NewVarianceAnalyzer(VarianceAnalyzerDeps{
		Orders:           &fakeOrderRepo{},
		ProductionOrders: productionOrders,
	})
	if err != nil {
		t.Fatalf("NewVarianceAnalyzer error: %v", err)
	}

	if _, err := analyzer.RecordActualCost(ctx, RecordActualCostCommand{ProductionOrderID: "po_pending", ActualCost: 1}); !errors.Is(err, ErrVarianceConflict) {
		t.Fatalf("expected ErrVarianceConflict for pending sub-order, got %v", err)
	}
	if _, err := analyzer.RecordActualCost(ctx, RecordActualCostCommand{ProductionOrderID: "po_missing", ActualCost: 1}); !errors.Is(err, ErrVarianceNotFound) {
		t.Fatalf("expected ErrVarianceNotFound, got %v", err)
	}
	if _, err := analyzer.RecordActualCost(ctx, RecordActualCostCommand{ProductionOrderID: "po_pending", ActualCost: -1}); !errors.Is(err, ErrVarianceInvalidInput) {
		t.Fatalf("expected ErrVarianceInvalidInput for negative cost, got %v", err)
	}
	if _, err := analyzer.RecordActualCost(ctx, RecordActualCostCommand{ProductionOrderID: " ", ActualCost: 1}); !errors.Is(err, ErrVarianceInvalidInput) {
		t.Fatalf("expected ErrVarianceInvalidInput for blank id, got %v", err)
	}
}

func TestVarianceAnalyzer_RecordActualCostConcurrentUpdate(t *testing.T) {
	productionOrders := &fakeProductionOrderRepo{
		byID: map[string]domain.ProductionOrder{
			"po_1": {ID: "po_1", Status: domain.ProductionOrderStatusCompleted, EstimatedCost: 10_000},
		},
		updateErr: repoError{msg: "precondition failed", conflict: true},
	}
	analyzer, err := NewVarianceAnalyzer(VarianceAnalyzerDeps{
		Orders:           &fakeOrderRepo{},
		ProductionOrders: productionOrders,
	})
	if err != nil {
		t.Fatalf("NewVarianceAnalyzer error: %v", err)
	}

	_, err = analyzer.RecordActualCost(context.Background(), RecordActualCostCommand{ProductionOrderID: "po_1", ActualCost: 12_000})
	if !errors.Is(err, ErrVarianceConflict) {
		t.Fatalf("expected ErrVarianceConflict on concurrent update, got %v", err)
	}
}

func TestVarianceAnalyzer_CalculateVariance(t *testing.T) {
	ctx := context.Background()

	actual := int64(130_000)
	orders := &fakeOrderRepo{orders: map[string]domain.Order{
		"ord_1": {ID: "ord_1", OrderNumber: "SWAG-0001"},
	}}
	productionOrders := &fakeProductionOrderRepo{byOrder: map[string][]domain.ProductionOrder{
		"ord_1": {
			{ID: "po_1", OrderID: "ord_1", Status: domain.ProductionOrderStatusCompleted, EstimatedCost: 100_000, ActualCost: &actual, CostVariance: ptrInt64(30_000)},
			// Actual never recorded: contributes its estimate on both sides.
			{ID: "po_2", OrderID: "ord_1", Status: domain.ProductionOrderStatusInProgress, EstimatedCost: 50_000},
		},
	}}
	analyzer, err := NewVarianceAnalyzer(VarianceAnalyzerDeps{Orders: orders, ProductionOrders: productionOrders})
	if err != nil {
		t.Fatalf("NewVarianceAnalyzer error: %v", err)
	}

	variance, err := analyzer.CalculateVariance(ctx, "ord_1")
	if err != nil {
		t.Fatalf("CalculateVariance error: %v", err)
	}

	if variance.EstimatedCost != 150_000 || variance.ActualCost != 180_000 {
		t.Fatalf("unexpected totals: %+v", variance)
	}
	if variance.Variance != 30_000 {
		t.Fatalf("expected variance 30000, got %d", variance.Variance)
	}
	if math.Abs(variance.VariancePercentage-20) > 1e-9 {
		t.Fatalf("expected variance percentage 20%%, got %f", variance.VariancePercentage)
	}

	if !containsReason(variance.Reasons, "cost overrun of 30.00%") {
		t.Fatalf("expected 30%% overrun reason, got %v", variance.Reasons)
	}
	if !containsReason(variance.Reasons, "po_2: actual cost not yet recorded") {
		t.Fatalf("expected unrecorded reason for po_2, got %v", variance.Reasons)
	}

	if _, err := analyzer.CalculateVariance(ctx, "ord_missing"); !errors.Is(err, ErrVarianceNotFound) {
		t.Fatalf("expected ErrVarianceNotFound, got %v", err)
	}
}

func TestAnalyzeVarianceReasons(t *testing.T) {
	t.Run("no production orders", func(t *testing.T) {
		reasons := AnalyzeVarianceReasons(nil)
		if len(reasons) != 1 || reasons[0] != "no production orders found" {
			t.Fatalf("unexpected reasons: %v", reasons)
		}
	})

	t.Run("within threshold stays quiet", func(t *testing.T) {
		// 10% exactly is not reported.
		reasons := AnalyzeVarianceReasons([]domain.ProductionOrder{
			{ID: "po_1", EstimatedCost: 100_000, ActualCost: ptrInt64(110_000)},
		})
		if len(reasons) != 1 || reasons[0] != "no significant variances detected" {
			t.Fatalf("unexpected reasons: %v", reasons)
		}
	})

	t.Run("overrun reported with two decimals", func(t *testing.T) {
		reasons := AnalyzeVarianceReasons([]domain.ProductionOrder{
			{ID: "po_1", EstimatedCost: 100_000, ActualCost: ptrInt64(130_000)},
		})
		if !containsReason(reasons, "production order po_1: cost overrun of 30.00%") {
			t.Fatalf("unexpected reasons: %v", reasons)
		}
	})

	t.Run("savings reported as positive percentage", func(t *testing.T) {
		reasons := AnalyzeVarianceReasons([]domain.ProductionOrder{
			{ID: "po_1", EstimatedCost: 100_000, ActualCost: ptrInt64(80_000)},
		})
		if !containsReason(reasons, "production order po_1: cost savings of 20.00%") {
			t.Fatalf("unexpected reasons: %v", reasons)
		}
	})

	t.Run("component deviations with notes", func(t *testing.T) {
		notes := "rush labor to hit the ship date"
		reasons := AnalyzeVarianceReasons([]domain.ProductionOrder{{
			ID:                 "po_1",
			EstimatedCost:      100_000,
			ActualCost:         ptrInt64(109_000),
			EstimatedBreakdown: &domain.CostComponents{Materials: 60_000, Labor: 30_000, Overhead: 10_000},
			ActualBreakdown:    &domain.CostComponents{Materials: 61_000, Labor: 38_000, Overhead: 10_000},
			CostNotes:          &notes,
		}})

		// Order-level variance is 9%, below threshold; only labor deviates by
		// more than 5% of the estimated cost.
		if containsReason(reasons, "overrun") {
			t.Fatalf("did not expect order-level overrun: %v", reasons)
		}
		if !containsReason(reasons, "labor over estimate by 8000") {
			t.Fatalf("expected labor deviation, got %v", reasons)
		}
		if containsReason(reasons, "materials") {
			t.Fatalf("did not expect materials deviation: %v", reasons)
		}
		if !containsReason(reasons, "notes: rush labor") {
			t.Fatalf("expected notes follow-up, got %v", reasons)
		}
	})

	t.Run("zero estimate flags any component deviation", func(t *testing.T) {
		reasons := AnalyzeVarianceReasons([]domain.ProductionOrder{{
			ID:                 "po_1",
			EstimatedCost:      0,
			ActualCost:         ptrInt64(4_000),
			EstimatedBreakdown: &domain.CostComponents{},
			ActualBreakdown:    &domain.CostComponents{Materials: 4_000},
		}})
		if !containsReason(reasons, "materials over estimate by 4000") {
			t.Fatalf("expected materials deviation against zero estimate, got %v", reasons)
		}
	})

	t.Run("notes omitted without a deviation line", func(t *testing.T) {
		notes := "all nominal"
		reasons := AnalyzeVarianceReasons([]domain.ProductionOrder{{
			ID:            "po_1",
			EstimatedCost: 100_000,
			ActualCost:    ptrInt64(102_000),
			CostNotes:     &notes,
		}})
		if len(reasons) != 1 || reasons[0] != "no significant variances detected" {
			t.Fatalf("unexpected reasons: %v", reasons)
		}
	})
}

func TestVarianceAnalyzer_GenerateVarianceReport(t *testing.T) {
	ctx := context.Background()

	orders := &fakeOrderRepo{listed: []domain.Order{
		{ID: "ord_big", OrderNumber: "SWAG-0001"},
		{ID: "ord_quiet", OrderNumber: "SWAG-0002"},
	}}
	productionOrders := &fakeProductionOrderRepo{byOrder: map[string][]domain.ProductionOrder{
		"ord_big": {
			{ID: "po_1", OrderID: "ord_big", EstimatedCost: 100_000, ActualCost: ptrInt64(130_000)},
		},
		"ord_quiet": {
			{ID: "po_2", OrderID: "ord_quiet", EstimatedCost: 200_000, ActualCost: ptrInt64(205_000)},
			{ID: "po_3", OrderID: "ord_quiet", EstimatedCost: 100_000},
		},
	}}
	analyzer, err := NewVarianceAnalyzer(VarianceAnalyzerDeps{Orders: orders, ProductionOrders: productionOrders})
	if err != nil {
		t.Fatalf("NewVarianceAnalyzer error: %v", err)
	}

	analysis, err := analyzer.GenerateVarianceReport(ctx, domain.DateRange{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("GenerateVarianceReport error: %v", err)
	}

	if analysis.TotalEstimated != 400_000 || analysis.TotalActual != 435_000 {
		t.Fatalf("unexpected aggregate totals: %+v", analysis)
	}
	if analysis.TotalVariance != 35_000 {
		t.Fatalf("expected total variance 35000, got %d", analysis.TotalVariance)
	}
	if math.Abs(analysis.VariancePercentage-8.75) > 0.01 {
		t.Fatalf("expected variance percentage near 8.75, got %f", analysis.VariancePercentage)
	}
	if analysis.OrderCount != 2 {
		t.Fatalf("expected 2 orders counted, got %d", analysis.OrderCount)
	}

	// Every computed variance is listed, including the order whose overall
	// deviation is small.
	if len(analysis.Orders) != 2 {
		t.Fatalf("expected both orders in details, got %+v", analysis.Orders)
	}
	listed := map[string]bool{}
	for _, variance := range analysis.Orders {
		listed[variance.OrderID] = true
	}
	if !listed["ord_big"] || !listed["ord_quiet"] {
		t.Fatalf("expected ord_big and ord_quiet in details, got %+v", analysis.Orders)
	}
	if !containsReason(analysis.Reasons, "order SWAG-0001: production order po_1: cost overrun of 30.00%") {
		t.Fatalf("unexpected report reasons: %v", analysis.Reasons)
	}
	if !containsReason(analysis.Reasons, "order SWAG-0002: production order po_3: actual cost not yet recorded") {
		t.Fatalf("expected unrecorded reason for the low-variance order, got %v", analysis.Reasons)
	}
}

func TestVarianceAnalyzer_GenerateVarianceReportInvertedRange(t *testing.T) {
	analyzer, err := NewVarianceAnalyzer(VarianceAnalyzerDeps{
		Orders:           &fakeOrderRepo{},
		ProductionOrders: &fakeProductionOrderRepo{},
	})
	if err != nil {
		t.Fatalf("NewVarianceAnalyzer error: %v", err)
	}

	_, err = analyzer.GenerateVarianceReport(context.Background(), domain.DateRange{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrVarianceInvalidInput) {
		t.Fatalf("expected ErrVarianceInvalidInput, got %v", err)
	}
}

func containsReason(reasons []string, fragment string) bool {
	for _, reason := range reasons {
		if strings.Contains(reason, fragment) {
			return true
		}
	}
	return false
}

func ptrInt64(v int64) *int64 { return &v }
