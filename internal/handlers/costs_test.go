package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/swagbox/api/internal/domain"
	"github.com/swagbox/api/internal/services"
)

type fakeCostService struct {
	breakdown domain.CostBreakdown
	err       error
	lastID    string
}

func (f *fakeCostService) GetCostBreakdown(_ context.Context, orderID string) (domain.CostBreakdown, error) {
	f.lastID = orderID
	if f.err != nil {
		return domain.CostBreakdown{}, f.err
	}
	return f.breakdown, nil
}

func (f *fakeCostService) TotalCost(_ context.Context, order domain.Order) (domain.CostBreakdown, error) {
	if f.err != nil {
		return domain.CostBreakdown{}, f.err
	}
	breakdown := f.breakdown
	breakdown.OrderID = order.ID
	return breakdown, nil
}

type fakeMarginService struct {
	byProduct   []domain.ProductMargin
	byCustomer  []domain.CustomerMargin
	report      domain.MarginReport
	err         error
	lastRange   domain.DateRange
	sawDeadline bool
}

func (f *fakeMarginService) CheckMarginThreshold(context.Context, domain.Order, domain.CostBreakdown) services.MarginAlertDecision {
	return services.MarginAlertDecision{}
}

func (f *fakeMarginService) MarginReportByProduct(_ context.Context, dateRange domain.DateRange) ([]domain.ProductMargin, error) {
	f.lastRange = dateRange
	return f.byProduct, f.err
}

func (f *fakeMarginService) MarginReportByCustomer(_ context.Context, dateRange domain.DateRange) ([]domain.CustomerMargin, error) {
	f.lastRange = dateRange
	return f.byCustomer, f.err
}

func (f *fakeMarginService) MarginReport(ctx context.Context, dateRange domain.DateRange) (domain.MarginReport, error) {
	f.lastRange = dateRange
	_, f.sawDeadline = ctx.Deadline()
	return f.report, f.err
}

type fakeVarianceService struct {
	updated  domain.ProductionOrder
	variance domain.OrderVariance
	analysis domain.VarianceAnalysis
	err      error
	lastCmd  services.RecordActualCostCommand
}

func (f *fakeVarianceService) RecordActualCost(_ context.Context, cmd services.RecordActualCostCommand) (domain.ProductionOrder, error) {
	f.lastCmd = cmd
	if f.err != nil {
		return domain.ProductionOrder{}, f.err
	}
	return f.updated, nil
}

func (f *fakeVarianceService) CalculateVariance(_ context.Context, orderID string) (domain.OrderVariance, error) {
	if f.err != nil {
		return domain.OrderVariance{}, f.err
	}
	return f.variance, nil
}

func (f *fakeVarianceService) GenerateVarianceReport(_ context.Context, dateRange domain.DateRange) (domain.VarianceAnalysis, error) {
	if f.err != nil {
		return domain.VarianceAnalysis{}, f.err
	}
	return f.analysis, nil
}

func newCostTestRouter(h *CostHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/costs", h.Routes)
	return r
}

func TestGetCostBreakdown(t *testing.T) {
	costs := &fakeCostService{
		breakdown: domain.CostBreakdown{
			OrderID:          "ord_1",
			BaseProductsCost: 4500000,
			TotalCost:        6020000,
			TotalPrice:       1200000,
			GrossMargin:      -4820000,
			MarginPercentage: -401.67,
		},
	}
	handler := NewCostHandlers(costs, &fakeMarginService{}, &fakeVarianceService{})
	router := newCostTestRouter(handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/costs/ord_1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if costs.lastID != "ord_1" {
		t.Fatalf("expected lookup for ord_1, got %q", costs.lastID)
	}

	var payload struct {
		Breakdown costBreakdownPayload `json:"breakdown"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload.Breakdown.TotalCost != 6020000 {
		t.Fatalf("expected total cost 6020000, got %d", payload.Breakdown.TotalCost)
	}
	if payload.Breakdown.GrossMargin != -4820000 {
		t.Fatalf("expected gross margin -4820000, got %d", payload.Breakdown.GrossMargin)
	}
}

func TestGetCostBreakdownNotFound(t *testing.T) {
	handler := NewCostHandlers(&fakeCostService{err: services.ErrCostingNotFound}, &fakeMarginService{}, &fakeVarianceService{})
	router := newCostTestRouter(handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/costs/ord_missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	assertErrorCode(t, rec, "not_found")
}

func TestMarginReport(t *testing.T) {
	margins := &fakeMarginService{
		report: domain.MarginReport{
			Range: domain.DateRange{
				Start: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC),
			},
			Summary: domain.MarginSummary{TotalRevenue: 300000, TotalCost: 210000, TotalMargin: 90000, AverageMarginPercentage: 30, OrderCount: 2},
			ByProduct: []domain.ProductMargin{
				{ProductID: "prod_tee", ProductName: "Organic Tee", Revenue: 64000, Cost: 25600, Margin: 38400, MarginPercentage: 60, OrderCount: 3},
			},
			ByCustomer: []domain.CustomerMargin{
				{OrganizationID: "org_acme", Revenue: 300000, Cost: 210000, Margin: 90000, MarginPercentage: 30, OrderCount: 2},
			},
		},
	}
	handler := NewCostHandlers(&fakeCostService{}, margins, &fakeVarianceService{})
	router := newCostTestRouter(handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/costs/margin-report?startDate=2026-01-01&endDate=2026-01-31", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := margins.lastRange.Start; !got.Equal(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected range start %v", got)
	}

	var payload struct {
		Report marginReportPayload `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload.Report.Summary.TotalMargin != 90000 || payload.Report.Summary.OrderCount != 2 {
		t.Fatalf("unexpected summary %#v", payload.Report.Summary)
	}
	if len(payload.Report.ByProduct) != 1 || payload.Report.ByProduct[0].ProductID != "prod_tee" {
		t.Fatalf("unexpected byProduct payload %#v", payload.Report.ByProduct)
	}
	if payload.Report.ByProduct[0].OrderCount != 3 {
		t.Fatalf("expected order count 3, got %d", payload.Report.ByProduct[0].OrderCount)
	}
	if len(payload.Report.ByCustomer) != 1 || payload.Report.ByCustomer[0].OrganizationID != "org_acme" {
		t.Fatalf("unexpected byCustomer payload %#v", payload.Report.ByCustomer)
	}
}

func TestMarginReportGroupByHintStillReturnsBothGroupings(t *testing.T) {
	margins := &fakeMarginService{
		report: domain.MarginReport{
			ByProduct:  []domain.ProductMargin{{ProductID: "prod_tee"}},
			ByCustomer: []domain.CustomerMargin{{OrganizationID: "org_acme"}},
		},
	}
	handler := NewCostHandlers(&fakeCostService{}, margins, &fakeVarianceService{})
	router := newCostTestRouter(handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/costs/margin-report?startDate=2026-01-01&endDate=2026-01-31&groupBy=product", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Report marginReportPayload `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(payload.Report.ByProduct) != 1 || len(payload.Report.ByCustomer) != 1 {
		t.Fatalf("expected both groupings populated, got %#v", payload.Report)
	}
}

func TestMarginReportAppliesReportTimeout(t *testing.T) {
	margins := &fakeMarginService{}
	handler := NewCostHandlers(&fakeCostService{}, margins, &fakeVarianceService{}, WithReportTimeout(30*time.Second))
	router := newCostTestRouter(handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/costs/margin-report?startDate=2026-01-01&endDate=2026-01-31", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !margins.sawDeadline {
		t.Fatalf("expected report context to carry a deadline")
	}
}

func TestMarginReportRequiresDates(t *testing.T) {
	handler := NewCostHandlers(&fakeCostService{}, &fakeMarginService{}, &fakeVarianceService{})
	router := newCostTestRouter(handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/costs/margin-report?endDate=2026-01-31", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	assertErrorCode(t, rec, "invalid_request")
}

func TestMarginReportRejectsUnknownGroupBy(t *testing.T) {
	handler := NewCostHandlers(&fakeCostService{}, &fakeMarginService{}, &fakeVarianceService{})
	router := newCostTestRouter(handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/costs/margin-report?startDate=2026-01-01&endDate=2026-01-31&groupBy=supplier", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRecordActualCost(t *testing.T) {
	actual := int64(180000)
	variance := int64(30000)
	svc := &fakeVarianceService{
		updated: domain.ProductionOrder{
			ID:            "po_1",
			OrderID:       "ord_1",
			Status:        domain.ProductionOrderStatusCompleted,
			EstimatedCost: 150000,
			ActualCost:    &actual,
			CostVariance:  &variance,
		},
	}
	handler := NewCostHandlers(&fakeCostService{}, &fakeMarginService{}, svc)
	router := newCostTestRouter(handler)

	body := bytes.NewBufferString(`{"actualCost":180000,"costBreakdown":{"materials":90000,"labor":60000,"overhead":30000},"notes":"steel price spike"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/costs/production-orders/po_1/actual", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastCmd.ProductionOrderID != "po_1" || svc.lastCmd.ActualCost != 180000 {
		t.Fatalf("unexpected command %#v", svc.lastCmd)
	}
	if svc.lastCmd.Breakdown == nil || svc.lastCmd.Breakdown.Labor != 60000 {
		t.Fatalf("expected breakdown to be forwarded, got %#v", svc.lastCmd.Breakdown)
	}
	if svc.lastCmd.Notes == nil || *svc.lastCmd.Notes != "steel price spike" {
		t.Fatalf("expected notes to be forwarded")
	}

	var payload struct {
		ProductionOrder productionOrderPayload `json:"productionOrder"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload.ProductionOrder.CostVariance == nil || *payload.ProductionOrder.CostVariance != 30000 {
		t.Fatalf("expected cost variance 30000, got %#v", payload.ProductionOrder.CostVariance)
	}
}

func TestRecordActualCostValidation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "empty body", body: "", wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "invalid json", body: "{", wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "missing actual cost", body: `{"notes":"n"}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewCostHandlers(&fakeCostService{}, &fakeMarginService{}, &fakeVarianceService{})
			router := newCostTestRouter(handler)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/costs/production-orders/po_1/actual", bytes.NewBufferString(tc.body)))

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			assertErrorCode(t, rec, tc.wantCode)
		})
	}
}

func TestRecordActualCostConflict(t *testing.T) {
	handler := NewCostHandlers(&fakeCostService{}, &fakeMarginService{}, &fakeVarianceService{err: services.ErrVarianceConflict})
	router := newCostTestRouter(handler)

	body := bytes.NewBufferString(`{"actualCost":180000}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/costs/production-orders/po_1/actual", body))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	assertErrorCode(t, rec, "conflict")
}

func TestVarianceForSingleOrder(t *testing.T) {
	svc := &fakeVarianceService{
		variance: domain.OrderVariance{
			OrderID:            "ord_1",
			OrderNumber:        "SWAG-0001",
			EstimatedCost:      150000,
			ActualCost:         180000,
			Variance:           30000,
			VariancePercentage: 20,
			Reasons:            []string{"production order po_1: cost overrun of 20.00%"},
		},
	}
	handler := NewCostHandlers(&fakeCostService{}, &fakeMarginService{}, svc)
	router := newCostTestRouter(handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/costs/variance?orderId=ord_1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Variance orderVariancePayload `json:"variance"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload.Variance.Variance != 30000 || payload.Variance.VariancePercentage != 20 {
		t.Fatalf("unexpected variance payload %#v", payload.Variance)
	}
}

func TestVarianceReport(t *testing.T) {
	svc := &fakeVarianceService{
		analysis: domain.VarianceAnalysis{
			TotalEstimated:     300000,
			TotalActual:        335000,
			TotalVariance:      35000,
			VariancePercentage: 11.67,
			OrderCount:         2,
			Orders: []domain.OrderVariance{
				{OrderID: "ord_big", OrderNumber: "SWAG-0001", Variance: 30000, VariancePercentage: 30},
			},
			Reasons: []string{"order SWAG-0001: production order po_1: cost overrun of 30.00%"},
		},
	}
	handler := NewCostHandlers(&fakeCostService{}, &fakeMarginService{}, svc)
	router := newCostTestRouter(handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/costs/variance?startDate=2026-01-01&endDate=2026-03-31", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Analysis varianceAnalysisPayload `json:"analysis"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload.Analysis.TotalVariance != 35000 || payload.Analysis.OrderCount != 2 {
		t.Fatalf("unexpected analysis payload %#v", payload.Analysis)
	}
	if len(payload.Analysis.Orders) != 1 || payload.Analysis.Orders[0].OrderID != "ord_big" {
		t.Fatalf("unexpected orders detail %#v", payload.Analysis.Orders)
	}
}

func TestVarianceReportRequiresDates(t *testing.T) {
	handler := NewCostHandlers(&fakeCostService{}, &fakeMarginService{}, &fakeVarianceService{})
	router := newCostTestRouter(handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/costs/variance", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if payload.Error != want {
		t.Fatalf("expected error code %q, got %q", want, payload.Error)
	}
}
