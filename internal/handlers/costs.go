package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/swagbox/api/internal/domain"
	"github.com/swagbox/api/internal/platform/httpx"
	"github.com/swagbox/api/internal/services"
)

const maxActualCostBodySize = 64 * 1024

var (
	errEmptyBody    = errors.New("handlers: request body is empty")
	errBodyTooLarge = errors.New("handlers: request body too large")
)

// CostHandlers exposes the costing, margin, and variance endpoints.
type CostHandlers struct {
	costs         services.CostService
	margins       services.MarginService
	variance      services.VarianceService
	reportTimeout time.Duration
}

// CostOption customises cost handler behaviour.
type CostOption func(*CostHandlers)

// WithReportTimeout bounds margin and variance report requests. Zero leaves
// reports governed by the router's request timeout alone.
func WithReportTimeout(timeout time.Duration) CostOption {
	return func(h *CostHandlers) {
		h.reportTimeout = timeout
	}
}

// NewCostHandlers constructs a new CostHandlers instance.
func NewCostHandlers(costs services.CostService, margins services.MarginService, variance services.VarianceService, opts ...CostOption) *CostHandlers {
	h := &CostHandlers{
		costs:    costs,
		margins:  margins,
		variance: variance,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *CostHandlers) reportContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.reportTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.reportTimeout)
}

// Routes registers the /costs endpoints.
func (h *CostHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/margin-report", h.marginReport)
	r.Get("/variance", h.varianceReport)
	r.Put("/production-orders/{productionOrderID}/actual", h.recordActualCost)
	r.Get("/{orderID}", h.getCostBreakdown)
}

func (h *CostHandlers) getCostBreakdown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.costs == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cost_service_unavailable", "cost service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	breakdown, err := h.costs.GetCostBreakdown(ctx, orderID)
	if err != nil {
		writeCostError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"breakdown": newCostBreakdownPayload(breakdown),
	})
}

func (h *CostHandlers) marginReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.margins == nil {
		httpx.WriteError(ctx, w, httpx.NewError("margin_service_unavailable", "margin service unavailable", http.StatusServiceUnavailable))
		return
	}

	dateRange, err := parseDateRange(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	// groupBy hints at the grouping the caller cares about, but both
	// groupings are always populated in the response.
	switch groupBy := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("groupBy"))); groupBy {
	case "", "all", "product", "customer":
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "groupBy must be one of product, customer, all", http.StatusBadRequest))
		return
	}

	ctx, cancel := h.reportContext(ctx)
	defer cancel()

	report, err := h.margins.MarginReport(ctx, dateRange)
	if err != nil {
		writeMarginError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"report": marginReportPayload{
			Range: newDateRangePayload(report.Range),
			Summary: marginSummaryPayload{
				TotalRevenue:            report.Summary.TotalRevenue,
				TotalCost:               report.Summary.TotalCost,
				TotalMargin:             report.Summary.TotalMargin,
				AverageMarginPercentage: report.Summary.AverageMarginPercentage,
				OrderCount:              report.Summary.OrderCount,
			},
			ByProduct:  newProductMarginPayloads(report.ByProduct),
			ByCustomer: newCustomerMarginPayloads(report.ByCustomer),
		},
	})
}

func (h *CostHandlers) recordActualCost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.variance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("variance_service_unavailable", "variance service unavailable", http.StatusServiceUnavailable))
		return
	}

	productionOrderID := strings.TrimSpace(chi.URLParam(r, "productionOrderID"))
	if productionOrderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "production order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxActualCostBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("request_too_large", "request body too large", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		}
		return
	}

	var req recordActualCostRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if req.ActualCost == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "actualCost is required", http.StatusBadRequest))
		return
	}

	cmd := services.RecordActualCostCommand{
		ProductionOrderID: productionOrderID,
		ActualCost:        *req.ActualCost,
		Notes:             req.Notes,
	}
	if req.Breakdown != nil {
		cmd.Breakdown = &domain.CostComponents{
			Materials: req.Breakdown.Materials,
			Labor:     req.Breakdown.Labor,
			Overhead:  req.Breakdown.Overhead,
		}
	}

	updated, err := h.variance.RecordActualCost(ctx, cmd)
	if err != nil {
		writeVarianceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"productionOrder": newProductionOrderPayload(updated),
	})
}

func (h *CostHandlers) varianceReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.variance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("variance_service_unavailable", "variance service unavailable", http.StatusServiceUnavailable))
		return
	}

	if orderID := strings.TrimSpace(r.URL.Query().Get("orderId")); orderID != "" {
		variance, err := h.variance.CalculateVariance(ctx, orderID)
		if err != nil {
			writeVarianceError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, map[string]any{
			"variance": newOrderVariancePayload(variance),
		})
		return
	}

	dateRange, err := parseDateRange(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	ctx, cancel := h.reportContext(ctx)
	defer cancel()

	analysis, err := h.variance.GenerateVarianceReport(ctx, dateRange)
	if err != nil {
		writeVarianceError(ctx, w, err)
		return
	}

	orders := make([]orderVariancePayload, 0, len(analysis.Orders))
	for _, variance := range analysis.Orders {
		orders = append(orders, newOrderVariancePayload(variance))
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"analysis": varianceAnalysisPayload{
			Range:              newDateRangePayload(analysis.Range),
			TotalEstimated:     analysis.TotalEstimated,
			TotalActual:        analysis.TotalActual,
			TotalVariance:      analysis.TotalVariance,
			VariancePercentage: analysis.VariancePercentage,
			OrderCount:         analysis.OrderCount,
			Orders:             orders,
			Reasons:            analysis.Reasons,
		},
	})
}

func writeCostError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCostingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCostingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to compute cost breakdown", http.StatusInternalServerError))
	}
}

func writeMarginError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrMarginInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to build margin report", http.StatusInternalServerError))
	}
}

func writeVarianceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrVarianceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrVarianceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrVarianceConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to analyse cost variance", http.StatusInternalServerError))
	}
}

type recordActualCostRequest struct {
	ActualCost *int64                 `json:"actualCost"`
	Breakdown  *costComponentsPayload `json:"costBreakdown"`
	Notes      *string                `json:"notes"`
}

type costComponentsPayload struct {
	Materials int64 `json:"materials"`
	Labor     int64 `json:"labor"`
	Overhead  int64 `json:"overhead"`
}

type costBreakdownPayload struct {
	OrderID           string  `json:"orderId"`
	BaseProductsCost  int64   `json:"baseProductsCost"`
	CustomizationCost int64   `json:"customizationCost"`
	SetupFees         int64   `json:"setupFees"`
	KittingFee        int64   `json:"kittingFee"`
	PackagingCost     int64   `json:"packagingCost"`
	ShippingCost      int64   `json:"shippingCost"`
	HandlingFee       int64   `json:"handlingFee"`
	TotalCost         int64   `json:"totalCost"`
	TotalPrice        int64   `json:"totalPrice"`
	GrossMargin       int64   `json:"grossMargin"`
	MarginPercentage  float64 `json:"marginPercentage"`
}

func newCostBreakdownPayload(breakdown domain.CostBreakdown) costBreakdownPayload {
	return costBreakdownPayload{
		OrderID:           breakdown.OrderID,
		BaseProductsCost:  breakdown.BaseProductsCost,
		CustomizationCost: breakdown.CustomizationCost,
		SetupFees:         breakdown.SetupFees,
		KittingFee:        breakdown.KittingFee,
		PackagingCost:     breakdown.PackagingCost,
		ShippingCost:      breakdown.ShippingCost,
		HandlingFee:       breakdown.HandlingFee,
		TotalCost:         breakdown.TotalCost,
		TotalPrice:        breakdown.TotalPrice,
		GrossMargin:       breakdown.GrossMargin,
		MarginPercentage:  breakdown.MarginPercentage,
	}
}

type dateRangePayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func newDateRangePayload(dateRange domain.DateRange) dateRangePayload {
	return dateRangePayload{
		Start: formatTime(dateRange.Start),
		End:   formatTime(dateRange.End),
	}
}

type productMarginPayload struct {
	ProductID        string  `json:"productId"`
	ProductName      string  `json:"productName"`
	Revenue          int64   `json:"revenue"`
	Cost             int64   `json:"cost"`
	Margin           int64   `json:"margin"`
	MarginPercentage float64 `json:"marginPercentage"`
	OrderCount       int     `json:"orderCount"`
}

func newProductMarginPayloads(margins []domain.ProductMargin) []productMarginPayload {
	payloads := make([]productMarginPayload, 0, len(margins))
	for _, margin := range margins {
		payloads = append(payloads, productMarginPayload{
			ProductID:        margin.ProductID,
			ProductName:      margin.ProductName,
			Revenue:          margin.Revenue,
			Cost:             margin.Cost,
			Margin:           margin.Margin,
			MarginPercentage: margin.MarginPercentage,
			OrderCount:       margin.OrderCount,
		})
	}
	return payloads
}

type customerMarginPayload struct {
	OrganizationID   string  `json:"organizationId"`
	Revenue          int64   `json:"revenue"`
	Cost             int64   `json:"cost"`
	Margin           int64   `json:"margin"`
	MarginPercentage float64 `json:"marginPercentage"`
	OrderCount       int     `json:"orderCount"`
}

func newCustomerMarginPayloads(margins []domain.CustomerMargin) []customerMarginPayload {
	payloads := make([]customerMarginPayload, 0, len(margins))
	for _, margin := range margins {
		payloads = append(payloads, customerMarginPayload{
			OrganizationID:   margin.OrganizationID,
			Revenue:          margin.Revenue,
			Cost:             margin.Cost,
			Margin:           margin.Margin,
			MarginPercentage: margin.MarginPercentage,
			OrderCount:       margin.OrderCount,
		})
	}
	return payloads
}

type marginReportPayload struct {
	Range      dateRangePayload        `json:"range"`
	Summary    marginSummaryPayload    `json:"summary"`
	ByProduct  []productMarginPayload  `json:"byProduct"`
	ByCustomer []customerMarginPayload `json:"byCustomer"`
}

type marginSummaryPayload struct {
	TotalRevenue            int64   `json:"totalRevenue"`
	TotalCost               int64   `json:"totalCost"`
	TotalMargin             int64   `json:"totalMargin"`
	AverageMarginPercentage float64 `json:"averageMarginPercentage"`
	OrderCount              int     `json:"orderCount"`
}

type productionOrderPayload struct {
	ID                 string                 `json:"id"`
	OrderID            string                 `json:"orderId"`
	Supplier           string                 `json:"supplier,omitempty"`
	Status             string                 `json:"status"`
	EstimatedCost      int64                  `json:"estimatedCost"`
	ActualCost         *int64                 `json:"actualCost,omitempty"`
	CostVariance       *int64                 `json:"costVariance,omitempty"`
	EstimatedBreakdown *costComponentsPayload `json:"estimatedBreakdown,omitempty"`
	ActualBreakdown    *costComponentsPayload `json:"actualBreakdown,omitempty"`
	CostNotes          *string                `json:"costNotes,omitempty"`
	CompletedAt        string                 `json:"completedAt,omitempty"`
	CreatedAt          string                 `json:"createdAt,omitempty"`
	UpdatedAt          string                 `json:"updatedAt,omitempty"`
}

func newProductionOrderPayload(po domain.ProductionOrder) productionOrderPayload {
	payload := productionOrderPayload{
		ID:            po.ID,
		OrderID:       po.OrderID,
		Supplier:      po.Supplier,
		Status:        string(po.Status),
		EstimatedCost: po.EstimatedCost,
		ActualCost:    po.ActualCost,
		CostVariance:  po.CostVariance,
		CostNotes:     po.CostNotes,
		CreatedAt:     formatTime(po.CreatedAt),
		UpdatedAt:     formatTime(po.UpdatedAt),
	}
	if po.CompletedAt != nil {
		payload.CompletedAt = formatTime(*po.CompletedAt)
	}
	if po.EstimatedBreakdown != nil {
		payload.EstimatedBreakdown = &costComponentsPayload{
			Materials: po.EstimatedBreakdown.Materials,
			Labor:     po.EstimatedBreakdown.Labor,
			Overhead:  po.EstimatedBreakdown.Overhead,
		}
	}
	if po.ActualBreakdown != nil {
		payload.ActualBreakdown = &costComponentsPayload{
			Materials: po.ActualBreakdown.Materials,
			Labor:     po.ActualBreakdown.Labor,
			Overhead:  po.ActualBreakdown.Overhead,
		}
	}
	return payload
}

type orderVariancePayload struct {
	OrderID            string   `json:"orderId"`
	OrderNumber        string   `json:"orderNumber"`
	EstimatedCost      int64    `json:"estimatedCost"`
	ActualCost         int64    `json:"actualCost"`
	Variance           int64    `json:"variance"`
	VariancePercentage float64  `json:"variancePercentage"`
	Reasons            []string `json:"reasons"`
}

func newOrderVariancePayload(variance domain.OrderVariance) orderVariancePayload {
	return orderVariancePayload{
		OrderID:            variance.OrderID,
		OrderNumber:        variance.OrderNumber,
		EstimatedCost:      variance.EstimatedCost,
		ActualCost:         variance.ActualCost,
		Variance:           variance.Variance,
		VariancePercentage: variance.VariancePercentage,
		Reasons:            variance.Reasons,
	}
}

type varianceAnalysisPayload struct {
	Range              dateRangePayload       `json:"range"`
	TotalEstimated     int64                  `json:"totalEstimated"`
	TotalActual        int64                  `json:"totalActual"`
	TotalVariance      int64                  `json:"totalVariance"`
	VariancePercentage float64                `json:"variancePercentage"`
	OrderCount         int                    `json:"orderCount"`
	Orders             []orderVariancePayload `json:"orders"`
	Reasons            []string               `json:"reasons"`
}

func parseDateRange(r *http.Request) (domain.DateRange, error) {
	query := r.URL.Query()

	startRaw := strings.TrimSpace(query.Get("startDate"))
	if startRaw == "" {
		return domain.DateRange{}, errors.New("startDate is required")
	}
	start, err := parseTimeParam(startRaw)
	if err != nil {
		return domain.DateRange{}, errors.New("startDate must be an RFC3339 timestamp or YYYY-MM-DD date")
	}

	endRaw := strings.TrimSpace(query.Get("endDate"))
	if endRaw == "" {
		return domain.DateRange{}, errors.New("endDate is required")
	}
	end, err := parseTimeParam(endRaw)
	if err != nil {
		return domain.DateRange{}, errors.New("endDate must be an RFC3339 timestamp or YYYY-MM-DD date")
	}

	return domain.DateRange{Start: start, End: end}, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
		_ = r.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(data) == 0 {
		return nil, errEmptyBody
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
