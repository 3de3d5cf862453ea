package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/config"
	pfirestore "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/firestore"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
	firestoreRepo "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories/firestore"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories/postgres"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/services"
)

const seedActor = "settlectl"

// fixtures is the YAML document accepted by `settlectl seed`.
type fixtures struct {
	Variants   []variantFixture   `yaml:"variants"`
	Stock      []stockFixture     `yaml:"stock"`
	Promotions []promotionFixture `yaml:"promotions"`
}

type variantFixture struct {
	ID        string `yaml:"id"`
	ProductID string `yaml:"productId"`
	Name      string `yaml:"name"`
	ImageURL  string `yaml:"imageUrl"`
	Price     int64  `yaml:"price"`
	Active    *bool  `yaml:"active"`
}

type stockFixture struct {
	Branch   string `yaml:"branch"`
	Variant  string `yaml:"variant"`
	Quantity int64  `yaml:"quantity"`
}

type promotionFixture struct {
	Code            string    `yaml:"code"`
	Type            string    `yaml:"type"`
	Value           float64   `yaml:"value"`
	MinimumPurchase int64     `yaml:"minimumPurchase"`
	ExpiresAt       time.Time `yaml:"expiresAt"`
	OwnerID         string    `yaml:"ownerId"`
	Active          *bool     `yaml:"active"`
}

func loadFixtures(path string) (fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fixtures{}, fmt.Errorf("reading fixtures %s: %w", path, err)
	}
	return parseFixtures(data)
}

func parseFixtures(data []byte) (fixtures, error) {
	var fx fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return fixtures{}, fmt.Errorf("parsing fixtures: %w", err)
	}
	for i, v := range fx.Variants {
		if strings.TrimSpace(v.ID) == "" {
			return fixtures{}, fmt.Errorf("variants[%d]: id is required", i)
		}
		if v.Price < 0 {
			return fixtures{}, fmt.Errorf("variant %q: price must not be negative", v.ID)
		}
	}
	for i, s := range fx.Stock {
		if strings.TrimSpace(s.Branch) == "" || strings.TrimSpace(s.Variant) == "" {
			return fixtures{}, fmt.Errorf("stock[%d]: branch and variant are required", i)
		}
		if s.Quantity < 0 {
			return fixtures{}, fmt.Errorf("stock[%d]: quantity must not be negative", i)
		}
	}
	for i, p := range fx.Promotions {
		if strings.TrimSpace(p.Code) == "" {
			return fixtures{}, fmt.Errorf("promotions[%d]: code is required", i)
		}
	}
	return fx, nil
}

type catalogWriter interface {
	PutVariant(ctx context.Context, variant domain.CatalogVariant) error
}

// seeder writes fixtures through the ledger services so codes are normalised and stock events
// behave exactly as they do for operator calls.
type seeder struct {
	catalog    catalogWriter
	inventory  services.InventoryService
	promotions services.PromotionService
}

type seedSummary struct {
	Variants   int
	Stock      int
	Promotions int
}

func newSeeder(reg repositories.Registry, catalog catalogWriter) (*seeder, error) {
	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{Inventory: reg.Inventory()})
	if err != nil {
		return nil, err
	}
	promotions, err := services.NewPromotionService(services.PromotionServiceDeps{Promotions: reg.Promotions()})
	if err != nil {
		return nil, err
	}
	return &seeder{catalog: catalog, inventory: inventory, promotions: promotions}, nil
}

func (s *seeder) apply(ctx context.Context, fx fixtures) (seedSummary, error) {
	var summary seedSummary
	for _, v := range fx.Variants {
		active := true
		if v.Active != nil {
			active = *v.Active
		}
		if err := s.catalog.PutVariant(ctx, domain.CatalogVariant{
			VariantID: strings.TrimSpace(v.ID),
			ProductID: strings.TrimSpace(v.ProductID),
			Name:      strings.TrimSpace(v.Name),
			ImageURL:  strings.TrimSpace(v.ImageURL),
			Price:     v.Price,
			Active:    active,
		}); err != nil {
			return summary, fmt.Errorf("variant %s: %w", v.ID, err)
		}
		summary.Variants++
	}
	for _, st := range fx.Stock {
		if _, err := s.inventory.SetStock(ctx, services.SetStockCommand{
			BranchID:  strings.TrimSpace(st.Branch),
			VariantID: strings.TrimSpace(st.Variant),
			Stock:     st.Quantity,
			ActorID:   seedActor,
		}); err != nil {
			return summary, fmt.Errorf("stock %s/%s: %w", st.Branch, st.Variant, err)
		}
		summary.Stock++
	}
	for _, p := range fx.Promotions {
		active := true
		if p.Active != nil {
			active = *p.Active
		}
		if _, err := s.promotions.Upsert(ctx, services.UpsertPromotionCommand{
			Promotion: domain.Promotion{
				Code:            p.Code,
				Type:            domain.PromotionType(strings.ToLower(strings.TrimSpace(p.Type))),
				Value:           p.Value,
				MinimumPurchase: p.MinimumPurchase,
				ExpiresAt:       p.ExpiresAt,
				OwnerID:         strings.TrimSpace(p.OwnerID),
				Active:          active,
			},
			ActorID: seedActor,
		}); err != nil {
			return summary, fmt.Errorf("promotion %s: %w", p.Code, err)
		}
		summary.Promotions++
	}
	return summary, nil
}

// openStore connects to the backend the API is configured with. The in-memory backend is
// rejected because its data would vanish with this process.
func openStore(ctx context.Context, cfg config.Config) (repositories.Registry, catalogWriter, error) {
	switch cfg.Store.Driver {
	case config.StoreFirestore:
		reg, err := firestoreRepo.NewRegistry(pfirestore.NewProvider(cfg.Firestore), time.Now)
		if err != nil {
			return nil, nil, err
		}
		return reg, reg.CatalogWriter(), nil
	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, postgres.PoolConfig{DSN: cfg.Store.PostgresDSN})
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		reg, err := postgres.NewRegistry(pool, time.Now)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return reg, reg.CatalogWriter(), nil
	case config.StoreMemory:
		return nil, nil, errors.New("seed: the memory store does not outlive this process")
	default:
		return nil, nil, fmt.Errorf("seed: unsupported store driver %q", cfg.Store.Driver)
	}
}
