package firestore

import (
	"context"
	"errors"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	pfirestore "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/firestore"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

const variantsCollection = "variants"

// CatalogRepository reads the variants collection maintained by the catalog service.
type CatalogRepository struct {
	variants *pfirestore.Collection[variantDocument]
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{variants: pfirestore.NewCollection[variantDocument](provider, variantsCollection)}, nil
}

// FindVariants returns the known variants among ids. Unknown ids are omitted.
func (r *CatalogRepository) FindVariants(ctx context.Context, ids []string) (map[string]domain.CatalogVariant, error) {
	docs, err := r.variants.GetAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.CatalogVariant, len(docs))
	for _, doc := range docs {
		if !doc.Exists {
			continue
		}
		out[doc.ID] = domain.CatalogVariant{
			VariantID: doc.ID,
			ProductID: doc.Data.ProductID,
			Name:      doc.Data.Name,
			ImageURL:  doc.Data.ImageURL,
			Price:     doc.Data.Price,
			Active:    doc.Data.Active,
		}
	}
	return out, nil
}

// PutVariant writes a variant document. Used by seeding tools.
func (r *CatalogRepository) PutVariant(ctx context.Context, v domain.CatalogVariant) error {
	return r.variants.Set(ctx, v.VariantID, variantDocument{
		ProductID: v.ProductID,
		Name:      v.Name,
		ImageURL:  v.ImageURL,
		Price:     v.Price,
		Active:    v.Active,
	})
}

type variantDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	ImageURL  string `firestore:"imageUrl,omitempty"`
	Price     int64  `firestore:"price"`
	Active    bool   `firestore:"active"`
}
