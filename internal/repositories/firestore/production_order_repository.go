package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/swagbox/api/internal/domain"
	pfirestore "github.com/swagbox/api/internal/platform/firestore"
	"github.com/swagbox/api/internal/repositories"
)

const productionOrdersCollection = "productionOrders"

// ProductionOrderRepository persists manufacturing sub-orders. Updates run in
// a transaction with a last-seen UpdatedAt precondition so concurrent
// actual-cost recordings surface as conflicts instead of lost writes.
type ProductionOrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productionOrderDocument]
}

var _ repositories.ProductionOrderRepository = (*ProductionOrderRepository)(nil)

func NewProductionOrderRepository(provider *pfirestore.Provider) (*ProductionOrderRepository, error) {
	if provider == nil {
		return nil, errors.New("production order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productionOrderDocument](provider, productionOrdersCollection, nil, nil)
	return &ProductionOrderRepository{provider: provider, base: base}, nil
}

func (r *ProductionOrderRepository) FindByID(ctx context.Context, productionOrderID string) (domain.ProductionOrder, error) {
	if r == nil || r.base == nil {
		return domain.ProductionOrder{}, errors.New("production order repository not initialised")
	}
	productionOrderID = strings.TrimSpace(productionOrderID)
	if productionOrderID == "" {
		return domain.ProductionOrder{}, errors.New("production order find: id is required")
	}

	doc, err := r.base.Get(ctx, productionOrderID)
	if err != nil {
		return domain.ProductionOrder{}, pfirestore.WrapError("productionOrders.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ProductionOrderRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.ProductionOrder, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("production order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("production order list: order id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, pfirestore.WrapError("productionOrders.list", err)
	}

	productionOrders := make([]domain.ProductionOrder, 0, len(docs))
	for _, doc := range docs {
		productionOrders = append(productionOrders, doc.Data.toDomain(doc.ID))
	}
	return productionOrders, nil
}

// Update writes the production order back if it has not changed since it was
// read. The caller's po.UpdatedAt is the last-seen timestamp; a mismatch
// inside the transaction fails with a conflict.
func (r *ProductionOrderRepository) Update(ctx context.Context, po domain.ProductionOrder) (domain.ProductionOrder, error) {
	if r == nil || r.provider == nil {
		return domain.ProductionOrder{}, errors.New("production order repository not initialised")
	}
	id := strings.TrimSpace(po.ID)
	if id == "" {
		return domain.ProductionOrder{}, errors.New("production order update: id is required")
	}

	now := time.Now().UTC()
	var updated domain.ProductionOrder

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return pfirestore.WrapError("productionOrders.update", err)
			}
			return err
		}

		var current productionOrderDocument
		if err := snap.DataTo(&current); err != nil {
			return fmt.Errorf("decode production order %s: %w", id, err)
		}
		if !current.UpdatedAt.Equal(po.UpdatedAt) {
			return status.Errorf(codes.FailedPrecondition, "production order %s modified concurrently", id)
		}

		doc := newProductionOrderDocument(po)
		doc.CreatedAt = current.CreatedAt
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.ProductionOrder{}, pfirestore.WrapError("productionOrders.update", err)
	}
	return updated, nil
}

type productionOrderDocument struct {
	OrderID            string                  `firestore:"orderId"`
	Supplier           string                  `firestore:"supplier"`
	Status             string                  `firestore:"status"`
	EstimatedCost      int64                   `firestore:"estimatedCost"`
	ActualCost         *int64                  `firestore:"actualCost,omitempty"`
	CostVariance       *int64                  `firestore:"costVariance,omitempty"`
	EstimatedBreakdown *costComponentsDocument `firestore:"estimatedBreakdown,omitempty"`
	ActualBreakdown    *costComponentsDocument `firestore:"actualBreakdown,omitempty"`
	CostNotes          *string                 `firestore:"costNotes,omitempty"`
	CompletedAt        *time.Time              `firestore:"completedAt,omitempty"`
	CreatedAt          time.Time               `firestore:"createdAt"`
	UpdatedAt          time.Time               `firestore:"updatedAt"`
}

type costComponentsDocument struct {
	Materials int64 `firestore:"materials"`
	Labor     int64 `firestore:"labor"`
	Overhead  int64 `firestore:"overhead"`
}

func newProductionOrderDocument(po domain.ProductionOrder) productionOrderDocument {
	doc := productionOrderDocument{
		OrderID:       strings.TrimSpace(po.OrderID),
		Supplier:      strings.TrimSpace(po.Supplier),
		Status:        string(po.Status),
		EstimatedCost: po.EstimatedCost,
		ActualCost:    po.ActualCost,
		CostVariance:  po.CostVariance,
		CostNotes:     po.CostNotes,
		CompletedAt:   po.CompletedAt,
		CreatedAt:     po.CreatedAt.UTC(),
		UpdatedAt:     po.UpdatedAt.UTC(),
	}
	if po.EstimatedBreakdown != nil {
		doc.EstimatedBreakdown = &costComponentsDocument{
			Materials: po.EstimatedBreakdown.Materials,
			Labor:     po.EstimatedBreakdown.Labor,
			Overhead:  po.EstimatedBreakdown.Overhead,
		}
	}
	if po.ActualBreakdown != nil {
		doc.ActualBreakdown = &costComponentsDocument{
			Materials: po.ActualBreakdown.Materials,
			Labor:     po.ActualBreakdown.Labor,
			Overhead:  po.ActualBreakdown.Overhead,
		}
	}
	return doc
}

func (d productionOrderDocument) toDomain(id string) domain.ProductionOrder {
	po := domain.ProductionOrder{
		ID:            id,
		OrderID:       strings.TrimSpace(d.OrderID),
		Supplier:      strings.TrimSpace(d.Supplier),
		Status:        domain.ProductionOrderStatus(strings.TrimSpace(d.Status)),
		EstimatedCost: d.EstimatedCost,
		ActualCost:    d.ActualCost,
		CostVariance:  d.CostVariance,
		CostNotes:     d.CostNotes,
		CompletedAt:   d.CompletedAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.EstimatedBreakdown != nil {
		po.EstimatedBreakdown = &domain.CostComponents{
			Materials: d.EstimatedBreakdown.Materials,
			Labor:     d.EstimatedBreakdown.Labor,
			Overhead:  d.EstimatedBreakdown.Overhead,
		}
	}
	if d.ActualBreakdown != nil {
		po.ActualBreakdown = &domain.CostComponents{
			Materials: d.ActualBreakdown.Materials,
			Labor:     d.ActualBreakdown.Labor,
			Overhead:  d.ActualBreakdown.Overhead,
		}
	}
	return po
}
