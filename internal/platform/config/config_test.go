package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "freshfood-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "freshfood-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Store.Driver != StoreFirestore {
		t.Errorf("expected firestore store by default, got %s", cfg.Store.Driver)
	}
	if cfg.Notifications.Transport != NotificationsNone {
		t.Errorf("expected notifications disabled by default, got %s", cfg.Notifications.Transport)
	}
	if cfg.Settlement.Currency != "VND" || cfg.Settlement.PointsPerUnit != 10000 {
		t.Errorf("unexpected settlement defaults: %+v", cfg.Settlement)
	}
	if cfg.Settlement.LowStockThreshold != 5 {
		t.Errorf("unexpected low stock threshold: %d", cfg.Settlement.LowStockThreshold)
	}
	if cfg.Settlement.PendingTTL != 0 {
		t.Errorf("expected pending sweep disabled by default, got %s", cfg.Settlement.PendingTTL)
	}
	if !cfg.PSP.PayPalExchangeRate.Equal(decimal.NewFromInt(25000)) {
		t.Errorf("unexpected exchange rate: %s", cfg.PSP.PayPalExchangeRate)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Errorf("expected default jwks url %s, got %s", defaultOIDCJWKSURL, cfg.Security.OIDC.JWKSURL)
	}
	if !reflect.DeepEqual(cfg.Security.OIDC.Issuers, []string{defaultSecurityIssuer}) {
		t.Errorf("expected default issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Security.HMAC.SecretName != "admin" || cfg.Security.HMAC.ClockSkew != 5*time.Minute {
		t.Errorf("unexpected hmac defaults: %+v", cfg.Security.HMAC)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader || cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency defaults: %+v", cfg.Idempotency)
	}
	if cfg.RateLimits.CallbackPerSecond != 20 || cfg.RateLimits.CallbackBurst != 40 {
		t.Errorf("unexpected rate limits: %+v", cfg.RateLimits)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                    "9090",
		"API_SERVER_SHUTDOWN_TIMEOUT":        "5s",
		"API_LOG_LEVEL":                      "debug",
		"API_STORE_DRIVER":                   "Postgres",
		"API_STORE_POSTGRES_DSN":             "sm://freshfood/pg-dsn",
		"API_REDIS_ADDR":                     "redis:6379",
		"API_REDIS_DB":                       "2",
		"API_NOTIFICATIONS_TRANSPORT":        "kafka",
		"API_NOTIFICATIONS_KAFKA_BROKERS":    "kafka-1:9092, kafka-2:9092",
		"API_NOTIFICATIONS_KAFKA_TOPIC":      "order-events",
		"API_PSP_STRIPE_API_KEY":             "secret://stripe/api",
		"API_PSP_VNPAY_TMN_CODE":             "FRESH01",
		"API_PSP_VNPAY_HASH_SECRET":          "secret://vnpay/hash",
		"API_PSP_VNPAY_RETURN_URL":           "https://api.freshfood.example/api/v1/payments/vnpay/return",
		"API_PSP_PAYPAL_CLIENT_ID":           "paypal-client",
		"API_PSP_PAYPAL_SECRET":              "secret://paypal/secret",
		"API_PSP_PAYPAL_EXCHANGE_RATE":       "25400.5",
		"API_SETTLEMENT_PENDING_TTL":         "30m",
		"API_SETTLEMENT_RETURN_SUCCESS_URL":  "https://freshfood.example/checkout/success",
		"API_SETTLEMENT_RETURN_FAILURE_URL":  "https://freshfood.example/checkout/failure",
		"API_SECURITY_ENVIRONMENT":           "PROD",
		"API_SECURITY_OIDC_AUDIENCE":         "https://api.freshfood.example",
		"API_SECURITY_OIDC_ISSUERS":          "https://accounts.google.com, accounts.google.com",
		"API_SECURITY_HMAC_ADMIN_SECRET":     "secret://hmac/admin",
		"API_SECURITY_HMAC_CLOCK_SKEW":       "3m",
		"API_IDEMPOTENCY_HEADER":             "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":                "48h",
	}

	secrets := map[string]string{
		"secret://freshfood/pg-dsn": "postgres://settle@db/freshfood",
		"secret://stripe/api":       "sk_test_123",
		"secret://vnpay/hash":       "VNPAYHASH",
		"secret://paypal/secret":    "paypal-secret",
		"secret://hmac/admin":       "admin-hmac",
	}
	var seen []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		seen = append(seen, ref)
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver),
		WithRequiredSecrets("Security.HMAC.AdminSecret", "PSP.VNPayHashSecret"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("unexpected log level: %s", cfg.Log.Level)
	}
	if cfg.Store.Driver != StorePostgres || cfg.Store.PostgresDSN != "postgres://settle@db/freshfood" {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if !reflect.DeepEqual(cfg.Notifications.KafkaBrokers, []string{"kafka-1:9092", "kafka-2:9092"}) {
		t.Errorf("unexpected brokers: %v", cfg.Notifications.KafkaBrokers)
	}
	if cfg.PSP.StripeAPIKey != "sk_test_123" || cfg.PSP.VNPayHashSecret != "VNPAYHASH" || cfg.PSP.PayPalSecret != "paypal-secret" {
		t.Errorf("expected psp secrets to resolve, got %+v", cfg.PSP)
	}
	if !cfg.PSP.PayPalExchangeRate.Equal(decimal.RequireFromString("25400.5")) {
		t.Errorf("unexpected exchange rate: %s", cfg.PSP.PayPalExchangeRate)
	}
	if cfg.Settlement.PendingTTL != 30*time.Minute {
		t.Errorf("unexpected pending ttl: %s", cfg.Settlement.PendingTTL)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Security.Environment)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("unexpected issuers: %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Security.HMAC.AdminSecret != "admin-hmac" || cfg.Security.HMAC.ClockSkew != 3*time.Minute {
		t.Errorf("unexpected hmac config: %+v", cfg.Security.HMAC)
	}
	if got := cfg.SecretValues()["admin"]; got != "admin-hmac" {
		t.Errorf("expected admin secret registered by name, got %q", got)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" || cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency config: %+v", cfg.Idempotency)
	}
	if len(seen) != 5 {
		t.Errorf("expected five secret lookups, got %v", seen)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"API_STORE_DRIVER":               "cassandra",
		"API_NOTIFICATIONS_TRANSPORT":    "pubsub",
		"API_SETTLEMENT_POINTS_PER_UNIT": "0",
		"API_PSP_VNPAY_TMN_CODE":         "FRESH01",
		"API_PSP_PAYPAL_EXCHANGE_RATE":   "-1",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	want := map[string]bool{
		"PSP.PayPalExchangeRate":      true,
		"Store.Driver":                true,
		"Notifications.PubSubTopic":   true,
		"Firestore.ProjectID":         true,
		"Settlement.PointsPerUnit":    true,
		"PSP.VNPayHashSecret":         true,
		"PSP.VNPayReturnURL":          true,
		"Settlement.ReturnSuccessURL": true,
		"Settlement.ReturnFailureURL": true,
	}
	fields := vErr.Fields()
	for _, field := range fields {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Fatalf("expected fields %v to be reported, got %v", want, fields)
	}
}

func TestLoadMemoryStoreNeedsNoProject(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{"API_STORE_DRIVER": "memory"}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Store.Driver != StoreMemory {
		t.Fatalf("unexpected driver %s", cfg.Store.Driver)
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := map[string]string{
		"API_STORE_DRIVER":               "memory",
		"API_SECURITY_HMAC_ADMIN_SECRET": "sm://hmac/admin",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var sErr *SecretError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if sErr.Ref != "secret://hmac/admin" {
		t.Fatalf("expected normalised ref, got %s", sErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver-not-configured cause, got %v", err)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{"API_STORE_DRIVER": "memory"}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets("Security.HMAC.AdminSecret", "Security.HMAC.AdminSecret", " "))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if names := missing.Names(); !reflect.DeepEqual(names, []string{"Security.HMAC.AdminSecret"}) {
		t.Fatalf("unexpected names %v", names)
	}
	redacted := missing.RedactedNames()
	if len(redacted) != 1 || redacted[0] == "Security.HMAC.AdminSecret" {
		t.Fatalf("expected hashed name, got %v", redacted)
	}
}

func TestLoadDotEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "# local overrides\nAPI_STORE_DRIVER=memory\nexport API_SERVER_PORT=7070\nAPI_LOG_LEVEL=\"warn\"\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(envFile),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected env map to override .env, got %s", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" || cfg.Store.Driver != StoreMemory {
		t.Errorf("expected .env values to apply, got level=%s driver=%s", cfg.Log.Level, cfg.Store.Driver)
	}

	value, err := Lookup("API_SERVER_PORT", WithEnvFile(envFile), WithoutSystemEnv())
	if err != nil || value != "7070" {
		t.Errorf("expected Lookup to read .env, got %q (%v)", value, err)
	}
}

func TestLoadMissingDotEnvIgnored(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(filepath.Join(t.TempDir(), "missing.env")),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_STORE_DRIVER": "memory"}),
	)
	if err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}
