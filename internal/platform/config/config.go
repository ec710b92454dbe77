package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultDBMaxOpenConns     = 10
	defaultDBMaxIdleConns     = 5
	defaultRedisAddr          = "localhost:6379"
	defaultIntentKeyPrefix    = "booking-intent:"
	defaultIntentTTL          = 24 * time.Hour
	defaultDeliveryCharge     = 50
	defaultProcessingFeePct   = 3.5
	defaultMiamiFlatFee       = 1000
	defaultMiamiLengthLimit   = 70
	defaultLeadTimeout        = 5 * time.Second
	defaultCalendarTokenURL   = "https://oauth2.googleapis.com/token"
	defaultCalendarID         = "primary"
	defaultSecretsEnvironment = "local"
	defaultIdempotencyHeader  = "Idempotency-Key"
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultEmailFromName      = "Seaside Charters"
)

// Config captures runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	PSP         PSPConfig
	Pricing     PricingConfig
	Email       EmailConfig
	Calendar    CalendarConfig
	Leads       LeadsConfig
	Jobs        JobsConfig
	Secrets     SecretsConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig configures the short-lived booking intent store.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	IntentKeyPrefix string
	IntentTTL       time.Duration
}

// PSPConfig holds Stripe credentials and checkout redirect targets.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	SuccessURL          string
	CancelURL           string
}

// PricingConfig holds the business constants used by the price breakdown engine.
type PricingConfig struct {
	DeliveryCharge        float64
	ProcessingFeePercent  float64
	MiamiRegistrationFee  float64
	MiamiYachtLengthLimit float64
}

// EmailConfig configures SendGrid delivery.
type EmailConfig struct {
	SendGridAPIKey  string
	FromAddress     string
	FromName        string
	AlertRecipients []string
}

// CalendarConfig configures Google Calendar OAuth.
type CalendarConfig struct {
	ClientID          string
	ClientSecret      string
	TokenURL          string
	DefaultCalendarID string
}

// LeadsConfig configures the CRM lead webhook.
type LeadsConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// JobsConfig configures the optional booking event feed.
type JobsConfig struct {
	ProjectID             string
	BookingConfirmedTopic string
}

// SecretsConfig configures Secret Manager resolution.
type SecretsConfig struct {
	Environment    string
	DefaultProject string
}

// IdempotencyConfig controls the Idempotency-Key middleware on checkout.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// SecretResolver resolves secret:// references.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret calls f.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists missing or invalid configuration fields.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes a failed secret lookup.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError reports required secrets that resolved to empty values.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed secret identifiers safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env path.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects explicit values that take precedence over the OS environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the OS environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks config fields (e.g. "PSP.StripeAPIKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// EnvironmentValues returns the merged environment (.env < OS < explicit map) so callers can
// bootstrap dependencies such as the secret fetcher before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(dotEnv))
	for k, v := range dotEnv {
		values[k] = v
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

// Load assembles configuration from defaults, .env, the environment and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Database: DatabaseConfig{
			DSN:          stringWithDefault(lookup, "API_DATABASE_DSN", ""),
			MaxOpenConns: intWithDefault(lookup, "API_DATABASE_MAX_OPEN_CONNS", defaultDBMaxOpenConns),
			MaxIdleConns: intWithDefault(lookup, "API_DATABASE_MAX_IDLE_CONNS", defaultDBMaxIdleConns),
		},
		Redis: RedisConfig{
			Addr:            stringWithDefault(lookup, "API_REDIS_ADDR", defaultRedisAddr),
			Password:        stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:              intWithDefault(lookup, "API_REDIS_DB", 0),
			IntentKeyPrefix: stringWithDefault(lookup, "API_REDIS_INTENT_PREFIX", defaultIntentKeyPrefix),
			IntentTTL:       durationWithDefault(lookup, "API_REDIS_INTENT_TTL", defaultIntentTTL),
		},
		PSP: PSPConfig{
			StripeAPIKey:        stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			StripeWebhookSecret: stringWithDefault(lookup, "API_PSP_STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:          stringWithDefault(lookup, "API_PSP_SUCCESS_URL", ""),
			CancelURL:           stringWithDefault(lookup, "API_PSP_CANCEL_URL", ""),
		},
		Pricing: PricingConfig{
			DeliveryCharge:        floatWithDefault(lookup, "API_PRICING_DELIVERY_CHARGE", defaultDeliveryCharge),
			ProcessingFeePercent:  floatWithDefault(lookup, "API_PRICING_PROCESSING_FEE_PERCENT", defaultProcessingFeePct),
			MiamiRegistrationFee:  floatWithDefault(lookup, "API_PRICING_MIAMI_REGISTRATION_FEE", defaultMiamiFlatFee),
			MiamiYachtLengthLimit: floatWithDefault(lookup, "API_PRICING_MIAMI_LENGTH_LIMIT", defaultMiamiLengthLimit),
		},
		Email: EmailConfig{
			SendGridAPIKey:  stringWithDefault(lookup, "API_EMAIL_SENDGRID_API_KEY", ""),
			FromAddress:     stringWithDefault(lookup, "API_EMAIL_FROM_ADDRESS", ""),
			FromName:        stringWithDefault(lookup, "API_EMAIL_FROM_NAME", defaultEmailFromName),
			AlertRecipients: csvWithDefault(lookup, "API_EMAIL_ALERT_RECIPIENTS"),
		},
		Calendar: CalendarConfig{
			ClientID:          stringWithDefault(lookup, "API_CALENDAR_CLIENT_ID", ""),
			ClientSecret:      stringWithDefault(lookup, "API_CALENDAR_CLIENT_SECRET", ""),
			TokenURL:          stringWithDefault(lookup, "API_CALENDAR_TOKEN_URL", defaultCalendarTokenURL),
			DefaultCalendarID: stringWithDefault(lookup, "API_CALENDAR_DEFAULT_ID", defaultCalendarID),
		},
		Leads: LeadsConfig{
			WebhookURL: stringWithDefault(lookup, "API_LEADS_WEBHOOK_URL", ""),
			Timeout:    durationWithDefault(lookup, "API_LEADS_TIMEOUT", defaultLeadTimeout),
		},
		Jobs: JobsConfig{
			ProjectID:             stringWithDefault(lookup, "API_JOBS_PROJECT_ID", ""),
			BookingConfirmedTopic: stringWithDefault(lookup, "API_JOBS_BOOKING_CONFIRMED_TOPIC", ""),
		},
		Secrets: SecretsConfig{
			Environment:    strings.ToLower(stringWithDefault(lookup, "API_SECRETS_ENVIRONMENT", defaultSecretsEnvironment)),
			DefaultProject: stringWithDefault(lookup, "API_SECRETS_DEFAULT_PROJECT", ""),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Database.DSN", &cfg.Database.DSN},
		{"Redis.Password", &cfg.Redis.Password},
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"PSP.StripeWebhookSecret", &cfg.PSP.StripeWebhookSecret},
		{"Email.SendGridAPIKey", &cfg.Email.SendGridAPIKey},
		{"Calendar.ClientSecret", &cfg.Calendar.ClientSecret},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var invalid []string
	if strings.TrimSpace(cfg.Server.Port) == "" {
		invalid = append(invalid, "Server.Port")
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		invalid = append(invalid, "Database.DSN")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		invalid = append(invalid, "Redis.Addr")
	}
	if cfg.Redis.IntentTTL <= 0 {
		invalid = append(invalid, "Redis.IntentTTL")
	}
	if !validAbsoluteURL(cfg.PSP.SuccessURL) {
		invalid = append(invalid, "PSP.SuccessURL")
	}
	if !validAbsoluteURL(cfg.PSP.CancelURL) {
		invalid = append(invalid, "PSP.CancelURL")
	}
	if cfg.Pricing.DeliveryCharge < 0 {
		invalid = append(invalid, "Pricing.DeliveryCharge")
	}
	if cfg.Pricing.ProcessingFeePercent < 0 || cfg.Pricing.ProcessingFeePercent >= 100 {
		invalid = append(invalid, "Pricing.ProcessingFeePercent")
	}
	if cfg.Leads.WebhookURL != "" && !validAbsoluteURL(cfg.Leads.WebhookURL) {
		invalid = append(invalid, "Leads.WebhookURL")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func validAbsoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && u.Scheme != "" && u.Host != ""
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") && !strings.HasPrefix(trimmed, "sm://") {
		return value, nil
	}
	ref := trimmed
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		ref = "secret://" + rest
	}
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{}, len(required))
	var missing []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}
