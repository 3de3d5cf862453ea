package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/payments"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/config"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/observability"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders     services.OrderService
	Callbacks  services.CallbackReconciler
	Inventory  services.InventoryService
	Loyalty    services.LoyaltyService
	Promotions services.PromotionService
	System     services.SystemService
}

// EventPublisher carries both event streams. The Pub/Sub and Kafka transports implement it.
type EventPublisher interface {
	services.OrderEventPublisher
	services.InventoryEventPublisher
}

// Container wires repositories, services, and payment providers for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Payments     *payments.Registry
	Services     Services
}

type containerOptions struct {
	logger   *zap.Logger
	events   EventPublisher
	health   repositories.HealthRepository
	build    services.BuildInfo
	clock    func() time.Time
	payments *payments.Registry
	meter    metric.Meter
}

// Option customises container construction.
type Option func(*containerOptions)

// WithLogger sets the base logger services derive their component loggers from.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEventPublisher routes order and inventory events to the given transport.
func WithEventPublisher(events EventPublisher) Option {
	return func(o *containerOptions) {
		o.events = events
	}
}

// WithHealthRepository enables the system service backing /readyz.
func WithHealthRepository(repo repositories.HealthRepository) Option {
	return func(o *containerOptions) {
		o.health = repo
	}
}

// WithBuildInfo sets the build metadata reported by health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// WithClock overrides the time source handed to every service.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithPaymentRegistry skips building providers from configuration.
func WithPaymentRegistry(reg *payments.Registry) Option {
	return func(o *containerOptions) {
		o.payments = reg
	}
}

// WithMeter records settlement counters on the given meter instead of the global provider.
func WithMeter(meter metric.Meter) Option {
	return func(o *containerOptions) {
		o.meter = meter
	}
}

// NewContainer constructs the runtime dependencies. Production wiring passes a backend registry
// selected by configuration; tests supply the in-memory one.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	options := containerOptions{
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	paymentRegistry := options.payments
	var verifier services.CallbackVerifier
	if paymentRegistry == nil {
		built, vnpay, err := BuildPaymentRegistry(cfg, options.logger, options.clock)
		if err != nil {
			return nil, err
		}
		paymentRegistry = built
		if vnpay != nil {
			verifier = vnpay
		}
	} else if provider, err := paymentRegistry.Provider(domain.PaymentMethodVNPay); err == nil {
		if v, ok := provider.(services.CallbackVerifier); ok {
			verifier = v
		}
	}

	svc, err := buildServices(ctx, reg, cfg, paymentRegistry, verifier, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Payments:     paymentRegistry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

// SettlementConfig maps the configuration section onto the engine knobs.
func SettlementConfig(cfg config.Config) services.SettlementConfig {
	return services.SettlementConfig{
		Currency:              cfg.Settlement.Currency,
		PointsPerCurrencyUnit: cfg.Settlement.PointsPerUnit,
		LowStockThreshold:     cfg.Settlement.LowStockThreshold,
		PendingTTL:            cfg.Settlement.PendingTTL,
		ReturnSuccessURL:      cfg.Settlement.ReturnSuccessURL,
		ReturnFailureURL:      cfg.Settlement.ReturnFailureURL,
	}
}

// BuildPaymentRegistry registers cash on delivery plus every provider whose credentials are
// configured. The VNPay provider is returned separately because it also verifies callbacks.
func BuildPaymentRegistry(cfg config.Config, logger *zap.Logger, clock func() time.Time) (*payments.Registry, *payments.VNPayProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	psp := cfg.PSP
	providers := []payments.Provider{payments.CashOnDeliveryProvider{}}

	if strings.TrimSpace(psp.BankAccountNumber) != "" {
		bank, err := payments.NewBankTransferProvider(payments.BankTransferConfig{
			BankName:        psp.BankName,
			AccountName:     psp.BankAccountName,
			AccountNumber:   psp.BankAccountNumber,
			ReferencePrefix: psp.BankReferencePrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build bank transfer provider: %w", err)
		}
		providers = append(providers, bank)
	}

	if strings.TrimSpace(psp.StripeAPIKey) != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:    psp.StripeAPIKey,
			AccountID: psp.StripeAccountID,
			Logger:    observability.ServiceLogger(logger, "payments.stripe"),
			Clock:     clock,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build stripe provider: %w", err)
		}
		providers = append(providers, stripe)
	}

	var vnpay *payments.VNPayProvider
	if strings.TrimSpace(psp.VNPayTmnCode) != "" && psp.VNPayHashSecret != "" {
		provider, err := payments.NewVNPayProvider(payments.VNPayConfig{
			TmnCode:    psp.VNPayTmnCode,
			HashSecret: psp.VNPayHashSecret,
			PayURL:     psp.VNPayPayURL,
			ReturnURL:  psp.VNPayReturnURL,
			Clock:      clock,
			Logger:     observability.ServiceLogger(logger, "payments.vnpay"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build vnpay provider: %w", err)
		}
		vnpay = provider
		providers = append(providers, provider)
	}

	if strings.TrimSpace(psp.PayPalClientID) != "" && psp.PayPalSecret != "" {
		paypal, err := payments.NewPayPalProvider(payments.PayPalConfig{
			ClientID:     psp.PayPalClientID,
			ClientSecret: psp.PayPalSecret,
			BaseURL:      psp.PayPalBaseURL,
			Currency:     psp.PayPalCurrency,
			ExchangeRate: psp.PayPalExchangeRate,
			Logger:       observability.ServiceLogger(logger, "payments.paypal"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build paypal provider: %w", err)
		}
		providers = append(providers, paypal)
	}

	registry, err := payments.NewRegistry(providers...)
	if err != nil {
		return nil, nil, fmt.Errorf("build payment registry: %w", err)
	}
	return registry, vnpay, nil
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, paymentRegistry *payments.Registry, verifier services.CallbackVerifier, opts containerOptions) (Services, error) {
	var svc Services
	settlement := SettlementConfig(cfg)
	logger := opts.logger

	var inventoryEvents services.InventoryEventPublisher
	var orderEvents services.OrderEventPublisher
	if opts.events != nil {
		inventoryEvents = opts.events
		orderEvents = opts.events
	}

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory:         reg.Inventory(),
		Events:            inventoryEvents,
		LowStockThreshold: settlement.LowStockThreshold,
		Clock:             opts.clock,
		Logger:            observability.ServiceLogger(logger, "inventory"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	loyaltySvc, err := services.NewLoyaltyService(services.LoyaltyServiceDeps{
		Loyalty:               reg.Loyalty(),
		PointsPerCurrencyUnit: settlement.PointsPerCurrencyUnit,
		Clock:                 opts.clock,
		Logger:                observability.ServiceLogger(logger, "loyalty"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build loyalty service: %w", err)
	}
	svc.Loyalty = loyaltySvc

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions: reg.Promotions(),
		Clock:      opts.clock,
		Logger:     observability.ServiceLogger(logger, "promotions"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotionSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Inventory:  inventorySvc,
		Loyalty:    loyaltySvc,
		Promotions: promotionSvc,
		Catalog:    reg.Catalog(),
		Payments:   paymentRegistry,
		UnitOfWork: reg,
		Config:     settlement,
		Clock:      opts.clock,
		Events:     orderEvents,
		Logger:     observability.ServiceLogger(logger, "orders"),
		Meter:      opts.meter,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if verifier != nil {
		reconciler, err := services.NewCallbackReconciler(services.CallbackReconcilerDeps{
			Orders:   orderSvc,
			Verifier: verifier,
			Config:   settlement,
			Logger:   observability.ServiceLogger(logger, "callbacks"),
			Meter:    opts.meter,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build callback reconciler: %w", err)
		}
		svc.Callbacks = reconciler
	}

	if opts.health != nil {
		build := opts.build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = opts.clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: opts.health,
			Clock:            opts.clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
