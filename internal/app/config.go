package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-orders/internal/domain/order"
	"github.com/xenking/oolio-orders/internal/gateway"
)

// Config holds the complete application configuration, loadable from
// environment variables (ORDERS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Store       string `default:"memory" usage:"Order store: memory or postgres"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Currency    string `default:"USD" usage:"Currency of orders created without one"`
	Pricing     PricingConfig
	Policy      PolicyConfig
	Gateway     GatewayConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// PricingConfig configures shipping and tax. Amounts are decimal strings.
type PricingConfig struct {
	ShippingFlat     string `default:"0" usage:"Flat shipping fee for non-empty orders"`
	FreeShippingOver string `default:"0" usage:"Merchandise total from which shipping is free (0 disables)"`
	TaxRate          string `default:"0" usage:"Tax rate in percent"`
	TaxShipping      bool   `default:"false" usage:"Apply tax to shipping"`
}

// PolicyConfig holds order lifecycle knobs.
type PolicyConfig struct {
	AllowEmpty     bool          `default:"true" usage:"Allow deleting the last item of a draft order"`
	GatewayTimeout time.Duration `default:"30s" usage:"Deadline of a single gateway capture"`
}

// GatewayConfig selects and configures the payment gateway.
type GatewayConfig struct {
	Kind    string `default:"sandbox" usage:"Payment gateway: sandbox or stripe"`
	Stripe  StripeConfig
	Sandbox SandboxConfig
}

type StripeConfig struct {
	APIKey        string `usage:"Stripe secret key (ORDERS_GATEWAY_STRIPE_API_KEY)"`
	AccountID     string `usage:"Connected account to charge on behalf of"`
	PaymentMethod string `usage:"Stored payment method charged off-session"`
}

type SandboxConfig struct {
	Limit   string        `default:"0" usage:"Decline captures above this amount (0 disables)"`
	Latency time.Duration `default:"0s" usage:"Simulated capture latency"`
	Offline bool          `default:"false" usage:"Fail every capture as unreachable"`
}

// RateLimitConfig controls the per-client limiter of the order API.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window (0 disables)"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, then validates it.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "ORDERS",
		Files:     []string{"config.yaml", "/etc/orders/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the DATABASE_URL and PORT variables set by
// hosting platforms onto the ORDERS_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch c.Store {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database URL is required for the postgres store: set ORDERS_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown store %q", c.Store)
	}
	switch c.Gateway.Kind {
	case "sandbox":
	case "stripe":
		if c.Gateway.Stripe.APIKey == "" || c.Gateway.Stripe.PaymentMethod == "" {
			return errors.New("stripe gateway requires an api key and a payment method")
		}
	default:
		return errors.Errorf("unknown gateway %q", c.Gateway.Kind)
	}
	if _, err := c.orderConfig(); err != nil {
		return err
	}
	if _, err := c.sandboxConfig(); err != nil {
		return err
	}
	return nil
}

func parseAmount(name, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s", name)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Errorf("%s must not be negative", name)
	}
	return d, nil
}

// orderConfig builds the order.Service configuration.
func (c *Config) orderConfig() (order.Config, error) {
	flat, err := parseAmount("pricing.shipping_flat", c.Pricing.ShippingFlat)
	if err != nil {
		return order.Config{}, err
	}
	freeOver, err := parseAmount("pricing.free_shipping_over", c.Pricing.FreeShippingOver)
	if err != nil {
		return order.Config{}, err
	}
	rate, err := parseAmount("pricing.tax_rate", c.Pricing.TaxRate)
	if err != nil {
		return order.Config{}, err
	}
	if _, err := order.NormalizeCurrency(c.Currency); err != nil {
		return order.Config{}, errors.Wrap(err, "default currency")
	}
	return order.Config{
		Shipping:         order.FlatShipping{Amount: flat, FreeOver: freeOver},
		Tax:              order.PercentTax{Rate: rate, IncludeShipping: c.Pricing.TaxShipping},
		DefaultCurrency:  c.Currency,
		AllowEmptyOrders: c.Policy.AllowEmpty,
		GatewayTimeout:   c.Policy.GatewayTimeout,
	}, nil
}

func (c *Config) sandboxConfig() (gateway.SandboxConfig, error) {
	limit, err := parseAmount("gateway.sandbox.limit", c.Gateway.Sandbox.Limit)
	if err != nil {
		return gateway.SandboxConfig{}, err
	}
	return gateway.SandboxConfig{
		Limit:   limit,
		Latency: c.Gateway.Sandbox.Latency,
		Offline: c.Gateway.Sandbox.Offline,
	}, nil
}
