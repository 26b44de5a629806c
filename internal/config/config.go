package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	SandboxURL    = "https://sandbox.jazzcash.com.pk/CustomerPortal/transactionmanagement/merchantform"
	ProductionURL = "https://payments.jazzcash.com.pk/CustomerPortal/transactionmanagement/merchantform"
)

// Secret holds a credential that must never be printed.
type Secret string

const redacted = "[REDACTED]"

func (Secret) String() string   { return redacted }
func (Secret) GoString() string { return redacted }

func (Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// Reveal returns the raw value. Only the signer should call it.
func (s Secret) Reveal() string { return string(s) }

// Gateway mirrors the merchant settings of the payment method.
type Gateway struct {
	Enabled     bool
	Title       string
	Description string
	MerchantID  string
	Password    Secret
	TestMode    bool

	// PasswordSecretID names an AWS Secrets Manager secret holding Password.
	PasswordSecretID string

	SandboxURL     string
	ProductionURL  string
	ReturnURL      string
	BillReference  string
	TxnDescription string
	Location       *time.Location

	TxnRefNonce         bool
	RequireCallbackHash bool
	PendingExpiry       time.Duration
}

// EndpointURL picks the hosted page for the configured mode.
func (g Gateway) EndpointURL() string {
	if g.TestMode {
		return g.SandboxURL
	}
	return g.ProductionURL
}

type Database struct {
	Host     string
	Port     string
	Username string
	Password Secret
	Name     string
	Schema   string
}

// DSN is the pgx connection string.
func (d Database) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.Username, d.Password.Reveal()),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {"disable"}, "search_path": {d.Schema}}.Encode(),
	}
	return u.String()
}

// Store describes where shoppers land after a payment.
type Store struct {
	BaseURL        string
	SuccessPath    string
	FailurePath    string
	CartPath       string
	AllowedOrigins []string
}

type Config struct {
	Env            string
	Port           string
	Database       Database
	Gateway        Gateway
	Store          Store
	RedisURL       string
	EventsTopicARN string
	WorkerInterval time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:  getEnv("APP_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		Database: Database{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Username: os.Getenv("DB_USERNAME"),
			Password: Secret(os.Getenv("DB_PASSWORD")),
			Name:     os.Getenv("DB_DATABASE"),
			Schema:   getEnv("DB_SCHEMA", "public"),
		},
		Gateway: Gateway{
			Title:            getEnv("JAZZCASH_TITLE", "JazzCash"),
			Description:      getEnv("JAZZCASH_DESCRIPTION", "Pay securely using JazzCash"),
			MerchantID:       os.Getenv("JAZZCASH_MERCHANT_ID"),
			Password:         Secret(os.Getenv("JAZZCASH_PASSWORD")),
			PasswordSecretID: os.Getenv("JAZZCASH_PASSWORD_SECRET_ID"),
			SandboxURL:       getEnv("JAZZCASH_SANDBOX_URL", SandboxURL),
			ProductionURL:    getEnv("JAZZCASH_PRODUCTION_URL", ProductionURL),
			BillReference:    getEnv("JAZZCASH_BILL_REFERENCE", "billRef"),
			TxnDescription:   getEnv("JAZZCASH_TXN_DESCRIPTION", "Order Payment"),
		},
		Store: Store{
			BaseURL:        strings.TrimRight(getEnv("STORE_BASE_URL", "http://localhost:3000"), "/"),
			SuccessPath:    getEnv("STORE_SUCCESS_PATH", "/checkout/order-received/%d"),
			FailurePath:    getEnv("STORE_FAILURE_PATH", "/checkout/order-failed/%d"),
			CartPath:       getEnv("STORE_CART_PATH", "/cart"),
			AllowedOrigins: splitList(os.Getenv("STORE_ALLOWED_ORIGINS")),
		},
		RedisURL:       os.Getenv("REDIS_URL"),
		EventsTopicARN: os.Getenv("PAYMENT_EVENTS_TOPIC_ARN"),
	}

	var err error
	if cfg.Gateway.Enabled, err = getBool("JAZZCASH_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.Gateway.TestMode, err = getBool("JAZZCASH_TEST_MODE", true); err != nil {
		return nil, err
	}
	if cfg.Gateway.TxnRefNonce, err = getBool("JAZZCASH_TXN_REF_NONCE", false); err != nil {
		return nil, err
	}
	if cfg.Gateway.RequireCallbackHash, err = getBool("JAZZCASH_REQUIRE_CALLBACK_HASH", false); err != nil {
		return nil, err
	}
	if cfg.Gateway.PendingExpiry, err = getDuration("JAZZCASH_PENDING_EXPIRY", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.WorkerInterval, err = getDuration("WORKER_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	cfg.Gateway.Location = loadLocation(getEnv("JAZZCASH_TIMEZONE", "Asia/Karachi"))
	cfg.Gateway.ReturnURL = getEnv("JAZZCASH_RETURN_URL",
		strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+cfg.Port), "/")+"/jazzcash/callback")

	if cfg.Database.Username == "" || cfg.Database.Name == "" {
		return nil, errors.New("missing required environment variables: DB_USERNAME, DB_DATABASE")
	}
	return cfg, nil
}

// SecretGetter resolves a named secret, e.g. from AWS Secrets Manager.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// ResolveSecrets fills the merchant password from the secret store when a
// secret id is configured, then checks the gateway has usable credentials.
func (c *Config) ResolveSecrets(ctx context.Context, secrets SecretGetter) error {
	g := &c.Gateway
	if g.PasswordSecretID != "" {
		if secrets == nil {
			return fmt.Errorf("JAZZCASH_PASSWORD_SECRET_ID set but no secret store configured")
		}
		v, err := secrets.GetSecret(ctx, g.PasswordSecretID)
		if err != nil {
			return fmt.Errorf("resolve merchant password: %w", err)
		}
		g.Password = Secret(v)
	}
	if g.Enabled && (g.MerchantID == "" || g.Password == "") {
		return errors.New("jazzcash gateway enabled without JAZZCASH_MERCHANT_ID and a password")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	switch strings.ToLower(val) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(val string) []string {
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// JazzCash stamps transactions in Pakistan time; fall back to a fixed +05:00
// zone when the host has no tzdata.
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("PKT", 5*60*60)
	}
	return loc
}
