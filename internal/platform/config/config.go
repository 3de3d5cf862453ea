package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultShutdownTimeout      = 20 * time.Second
	defaultLogLevel             = "info"
	defaultStoreDriver          = StoreFirestore
	defaultNotificationDriver   = NotificationsNone
	defaultCurrency             = "VND"
	defaultPointsPerUnit        = 10000
	defaultLowStockThreshold    = 5
	defaultVNPayPayURL          = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"
	defaultPayPalBaseURL        = "https://api-m.sandbox.paypal.com"
	defaultPayPalCurrency       = "USD"
	defaultPayPalExchangeRate   = "25000"
	defaultBankReferencePrefix  = "FF"
	defaultCallbackRatePerSec   = 20
	defaultCallbackBurst        = 40
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultHMACSecretName       = "admin"
	defaultHMACClockSkew        = 5 * time.Minute
	defaultHMACNonceTTL         = 5 * time.Minute
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Store drivers.
const (
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
	StoreMemory    = "memory"
)

// Notification transports.
const (
	NotificationsNone   = "none"
	NotificationsPubSub = "pubsub"
	NotificationsKafka  = "kafka"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Log           LogConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Store         StoreConfig
	Redis         RedisConfig
	Notifications NotificationConfig
	PSP           PSPConfig
	Settlement    SettlementConfig
	RateLimits    RateLimitConfig
	Security      SecurityConfig
	Idempotency   IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig selects the zap level.
type LogConfig struct {
	Level string
}

// FirebaseConfig stores Firebase project settings used for buyer ID tokens.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StoreConfig selects the ledger backend.
type StoreConfig struct {
	Driver      string
	PostgresDSN string
}

// RedisConfig points at the Redis used for shared HMAC nonces. An empty Addr keeps nonces in
// process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NotificationConfig selects where order and inventory events are published.
type NotificationConfig struct {
	Transport    string
	PubSubTopic  string
	KafkaBrokers []string
	KafkaTopic   string
}

// PSPConfig collects payment provider settings. Providers with missing credentials are not
// registered.
type PSPConfig struct {
	StripeAPIKey    string
	StripeAccountID string

	VNPayTmnCode    string
	VNPayHashSecret string
	VNPayPayURL     string
	VNPayReturnURL  string

	PayPalClientID     string
	PayPalSecret       string
	PayPalBaseURL      string
	PayPalCurrency     string
	PayPalExchangeRate decimal.Decimal

	BankName            string
	BankAccountName     string
	BankAccountNumber   string
	BankReferencePrefix string
}

// SettlementConfig carries the engine knobs.
type SettlementConfig struct {
	Currency          string
	PointsPerUnit     int64
	LowStockThreshold int64
	PendingTTL        time.Duration
	ReturnSuccessURL  string
	ReturnFailureURL  string
}

// RateLimitConfig throttles the gateway callback endpoints.
type RateLimitConfig struct {
	CallbackPerSecond int
	CallbackBurst     int
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
	HMAC        HMACConfig
}

// OIDCConfig controls Google-signed token verification for the internal routes.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// HMACConfig captures back-office signing expectations.
type HMACConfig struct {
	SecretName  string
	AdminSecret string
	ClockSkew   time.Duration
	NonceTTL    time.Duration
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets are empty after resolution.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface. Names are hashed so the message is safe to log.
func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns hashed secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.LookupEnv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory. Identifiers match the
// config field names (e.g. "Security.HMAC.AdminSecret").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Lookup returns a single value using the same precedence as Load. The API uses it to read the
// Secret Manager project before the resolver exists.
func Lookup(key string, opts ...Option) (string, error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	lookup, err := newLookup(options)
	if err != nil {
		return "", err
	}
	value, _ := lookup(key)
	return value, nil
}

// Load assembles the application configuration from defaults, the .env file, environment
// variables and Secret Manager references, in increasing precedence.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}

	lookup, err := newLookup(options)
	if err != nil {
		return Config{}, err
	}

	var parseErrors []string
	exchangeRate, err := decimal.NewFromString(stringWithDefault(lookup, "API_PSP_PAYPAL_EXCHANGE_RATE", defaultPayPalExchangeRate))
	if err != nil || !exchangeRate.IsPositive() {
		parseErrors = append(parseErrors, "PSP.PayPalExchangeRate")
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Log: LogConfig{
			Level: stringWithDefault(lookup, "API_LOG_LEVEL", defaultLogLevel),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(stringWithDefault(lookup, "API_STORE_DRIVER", defaultStoreDriver)),
			PostgresDSN: stringWithDefault(lookup, "API_STORE_POSTGRES_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "API_REDIS_DB", 0),
		},
		Notifications: NotificationConfig{
			Transport:    strings.ToLower(stringWithDefault(lookup, "API_NOTIFICATIONS_TRANSPORT", defaultNotificationDriver)),
			PubSubTopic:  stringWithDefault(lookup, "API_NOTIFICATIONS_PUBSUB_TOPIC", ""),
			KafkaBrokers: csvWithDefault(lookup, "API_NOTIFICATIONS_KAFKA_BROKERS"),
			KafkaTopic:   stringWithDefault(lookup, "API_NOTIFICATIONS_KAFKA_TOPIC", ""),
		},
		PSP: PSPConfig{
			StripeAPIKey:        stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			StripeAccountID:     stringWithDefault(lookup, "API_PSP_STRIPE_ACCOUNT_ID", ""),
			VNPayTmnCode:        stringWithDefault(lookup, "API_PSP_VNPAY_TMN_CODE", ""),
			VNPayHashSecret:     stringWithDefault(lookup, "API_PSP_VNPAY_HASH_SECRET", ""),
			VNPayPayURL:         stringWithDefault(lookup, "API_PSP_VNPAY_PAY_URL", defaultVNPayPayURL),
			VNPayReturnURL:      stringWithDefault(lookup, "API_PSP_VNPAY_RETURN_URL", ""),
			PayPalClientID:      stringWithDefault(lookup, "API_PSP_PAYPAL_CLIENT_ID", ""),
			PayPalSecret:        stringWithDefault(lookup, "API_PSP_PAYPAL_SECRET", ""),
			PayPalBaseURL:       stringWithDefault(lookup, "API_PSP_PAYPAL_BASE_URL", defaultPayPalBaseURL),
			PayPalCurrency:      strings.ToUpper(stringWithDefault(lookup, "API_PSP_PAYPAL_CURRENCY", defaultPayPalCurrency)),
			PayPalExchangeRate:  exchangeRate,
			BankName:            stringWithDefault(lookup, "API_PSP_BANK_NAME", ""),
			BankAccountName:     stringWithDefault(lookup, "API_PSP_BANK_ACCOUNT_NAME", ""),
			BankAccountNumber:   stringWithDefault(lookup, "API_PSP_BANK_ACCOUNT_NUMBER", ""),
			BankReferencePrefix: stringWithDefault(lookup, "API_PSP_BANK_REFERENCE_PREFIX", defaultBankReferencePrefix),
		},
		Settlement: SettlementConfig{
			Currency:          strings.ToUpper(stringWithDefault(lookup, "API_SETTLEMENT_CURRENCY", defaultCurrency)),
			PointsPerUnit:     int64(intWithDefault(lookup, "API_SETTLEMENT_POINTS_PER_UNIT", defaultPointsPerUnit)),
			LowStockThreshold: int64(intWithDefault(lookup, "API_SETTLEMENT_LOW_STOCK_THRESHOLD", defaultLowStockThreshold)),
			PendingTTL:        durationWithDefault(lookup, "API_SETTLEMENT_PENDING_TTL", 0),
			ReturnSuccessURL:  stringWithDefault(lookup, "API_SETTLEMENT_RETURN_SUCCESS_URL", ""),
			ReturnFailureURL:  stringWithDefault(lookup, "API_SETTLEMENT_RETURN_FAILURE_URL", ""),
		},
		RateLimits: RateLimitConfig{
			CallbackPerSecond: intWithDefault(lookup, "API_RATELIMIT_CALLBACK_PER_SEC", defaultCallbackRatePerSec),
			CallbackBurst:     intWithDefault(lookup, "API_RATELIMIT_CALLBACK_BURST", defaultCallbackBurst),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS"),
			},
			HMAC: HMACConfig{
				SecretName:  stringWithDefault(lookup, "API_SECURITY_HMAC_SECRET_NAME", defaultHMACSecretName),
				AdminSecret: stringWithDefault(lookup, "API_SECURITY_HMAC_ADMIN_SECRET", ""),
				ClockSkew:   durationWithDefault(lookup, "API_SECURITY_HMAC_CLOCK_SKEW", defaultHMACClockSkew),
				NonceTTL:    durationWithDefault(lookup, "API_SECURITY_HMAC_NONCE_TTL", defaultHMACNonceTTL),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Store.PostgresDSN", &cfg.Store.PostgresDSN},
		{"Redis.Password", &cfg.Redis.Password},
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"PSP.VNPayHashSecret", &cfg.PSP.VNPayHashSecret},
		{"PSP.PayPalSecret", &cfg.PSP.PayPalSecret},
		{"Security.HMAC.AdminSecret", &cfg.Security.HMAC.AdminSecret},
	}
	resolved := make(map[string]string, len(secretFields))
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = value
	}

	if err := validateConfig(cfg, parseErrors); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

// SecretValues returns the resolved secret fields by config name. Callers use it to register
// secrets with components that look them up by name, such as the HMAC validator.
func (c Config) SecretValues() map[string]string {
	return map[string]string{
		c.Security.HMAC.SecretName: c.Security.HMAC.AdminSecret,
	}
}

func defaultLoaderOptions() loaderOptions {
	return loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
}

func newLookup(options loaderOptions) (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}

	switch cfg.Store.Driver {
	case StoreFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case StorePostgres:
		if cfg.Store.PostgresDSN == "" {
			missing = append(missing, "Store.PostgresDSN")
		}
	case StoreMemory:
	default:
		missing = append(missing, "Store.Driver")
	}

	switch cfg.Notifications.Transport {
	case NotificationsNone:
	case NotificationsPubSub:
		if cfg.Notifications.PubSubTopic == "" {
			missing = append(missing, "Notifications.PubSubTopic")
		}
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case NotificationsKafka:
		if len(cfg.Notifications.KafkaBrokers) == 0 {
			missing = append(missing, "Notifications.KafkaBrokers")
		}
		if cfg.Notifications.KafkaTopic == "" {
			missing = append(missing, "Notifications.KafkaTopic")
		}
	default:
		missing = append(missing, "Notifications.Transport")
	}

	if cfg.Settlement.Currency == "" {
		missing = append(missing, "Settlement.Currency")
	}
	if cfg.Settlement.PointsPerUnit <= 0 {
		missing = append(missing, "Settlement.PointsPerUnit")
	}
	if cfg.Settlement.LowStockThreshold < 0 {
		missing = append(missing, "Settlement.LowStockThreshold")
	}
	if cfg.Settlement.PendingTTL < 0 {
		missing = append(missing, "Settlement.PendingTTL")
	}
	if cfg.PSP.VNPayTmnCode != "" {
		if cfg.PSP.VNPayHashSecret == "" {
			missing = append(missing, "PSP.VNPayHashSecret")
		}
		if cfg.PSP.VNPayReturnURL == "" {
			missing = append(missing, "PSP.VNPayReturnURL")
		}
		if cfg.Settlement.ReturnSuccessURL == "" {
			missing = append(missing, "Settlement.ReturnSuccessURL")
		}
		if cfg.Settlement.ReturnFailureURL == "" {
			missing = append(missing, "Settlement.ReturnFailureURL")
		}
	}
	if cfg.RateLimits.CallbackPerSecond <= 0 || cfg.RateLimits.CallbackBurst <= 0 {
		missing = append(missing, "RateLimits.Callback")
	}
	if strings.TrimSpace(cfg.Security.HMAC.SecretName) == "" {
		missing = append(missing, "Security.HMAC.SecretName")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{}, len(required))
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(resolved[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
