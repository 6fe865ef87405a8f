package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/swagbox/api/internal/domain"
	pfirestore "github.com/swagbox/api/internal/platform/firestore"
	"github.com/swagbox/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository reads order headers and their pack snapshots. Orders are
// written by the order-management subsystem; this repository is read-only.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if len(filter.Statuses) > 0 {
			statuses := make([]string, len(filter.Statuses))
			for i, status := range filter.Statuses {
				statuses[i] = string(status)
			}
			query = query.Where("status", "in", statuses)
		}
		if filter.CreatedRange.From != nil {
			query = query.Where("createdAt", ">=", filter.CreatedRange.From.UTC())
		}
		if filter.CreatedRange.To != nil {
			query = query.Where("createdAt", "<=", filter.CreatedRange.To.UTC())
		}
		query = query.OrderBy("createdAt", firestore.Asc)
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		return query
	})
	if err != nil {
		return nil, pfirestore.WrapError("orders.list", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

type orderDocument struct {
	OrderNumber    string              `firestore:"orderNumber"`
	OrganizationID string              `firestore:"organizationId"`
	Status         string              `firestore:"status"`
	TotalPrice     int64               `firestore:"totalPrice"`
	Recipients     []recipientDocument `firestore:"recipients"`
	Items          []packItemDocument  `firestore:"items"`
	Metadata       map[string]any      `firestore:"metadata,omitempty"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`
}

type recipientDocument struct {
	ID         string `firestore:"id"`
	Name       string `firestore:"name"`
	Email      string `firestore:"email,omitempty"`
	Company    string `firestore:"company,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country,omitempty"`
}

type packItemDocument struct {
	VariantID     string                 `firestore:"variantId"`
	ProductID     string                 `firestore:"productId"`
	Name          string                 `firestore:"name"`
	Quantity      int                    `firestore:"qty"`
	UnitPrice     int64                  `firestore:"unitPrice"`
	UnitCost      int64                  `firestore:"unitCost"`
	Customization *customizationDocument `firestore:"customization,omitempty"`
}

type customizationDocument struct {
	PrintMethod string              `firestore:"printMethod"`
	SetupFee    int64               `firestore:"setupFee"`
	UnitCost    int64               `firestore:"unitCost"`
	PrintAreas  []printAreaDocument `firestore:"printAreas,omitempty"`
}

type printAreaDocument struct {
	Name string `firestore:"name"`
	Cost int64  `firestore:"cost"`
}

func (d orderDocument) toDomain(id string) domain.Order {
	recipients := make([]domain.Recipient, len(d.Recipients))
	for i, rec := range d.Recipients {
		recipients[i] = domain.Recipient{
			ID:         rec.ID,
			Name:       rec.Name,
			Email:      rec.Email,
			Company:    rec.Company,
			PostalCode: rec.PostalCode,
			Country:    rec.Country,
		}
	}

	items := make([]domain.PackItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.PackItem{
			VariantID: item.VariantID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			UnitCost:  item.UnitCost,
		}
		if item.Customization != nil {
			areas := make([]domain.PrintArea, len(item.Customization.PrintAreas))
			for j, area := range item.Customization.PrintAreas {
				areas[j] = domain.PrintArea{Name: area.Name, Cost: area.Cost}
			}
			items[i].Customization = &domain.ItemCustomization{
				PrintMethod: item.Customization.PrintMethod,
				SetupFee:    item.Customization.SetupFee,
				UnitCost:    item.Customization.UnitCost,
				PrintAreas:  areas,
			}
		}
	}

	return domain.Order{
		ID:             id,
		OrderNumber:    strings.TrimSpace(d.OrderNumber),
		OrganizationID: strings.TrimSpace(d.OrganizationID),
		Status:         domain.OrderStatus(strings.TrimSpace(d.Status)),
		TotalPrice:     d.TotalPrice,
		Recipients:     recipients,
		Items:          items,
		Metadata:       d.Metadata,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
