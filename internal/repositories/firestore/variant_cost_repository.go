package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/swagbox/api/internal/domain"
	pfirestore "github.com/swagbox/api/internal/platform/firestore"
	"github.com/swagbox/api/internal/repositories"
)

const variantCostsCollection = "variantCosts"

// VariantCostRepository resolves authoritative catalog unit costs, maintained
// by the catalog subsystem.
type VariantCostRepository struct {
	base *pfirestore.BaseRepository[variantCostDocument]
}

var _ repositories.VariantCostRepository = (*VariantCostRepository)(nil)

func NewVariantCostRepository(provider *pfirestore.Provider) (*VariantCostRepository, error) {
	if provider == nil {
		return nil, errors.New("variant cost repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[variantCostDocument](provider, variantCostsCollection, nil, nil)
	return &VariantCostRepository{base: base}, nil
}

func (r *VariantCostRepository) FindByID(ctx context.Context, variantID string) (domain.VariantCost, error) {
	if r == nil || r.base == nil {
		return domain.VariantCost{}, errors.New("variant cost repository not initialised")
	}
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.VariantCost{}, errors.New("variant cost find: id is required")
	}

	doc, err := r.base.Get(ctx, variantID)
	if err != nil {
		return domain.VariantCost{}, pfirestore.WrapError("variantCosts.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

type variantCostDocument struct {
	ProductID string    `firestore:"productId"`
	UnitCost  int64     `firestore:"unitCost"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d variantCostDocument) toDomain(id string) domain.VariantCost {
	return domain.VariantCost{
		VariantID: id,
		ProductID: strings.TrimSpace(d.ProductID),
		UnitCost:  d.UnitCost,
		UpdatedAt: d.UpdatedAt,
	}
}
