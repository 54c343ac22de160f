package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the API server configuration, loadable from environment
// variables (PROMO_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage   StorageConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Graceful  GracefulConfig
}

// StorageConfig selects and addresses the backing store.
type StorageConfig struct {
	Driver        string `default:"postgres" usage:"Storage backend: postgres, mongo or memory"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (PROMO_STORAGE_DATABASE_URL or DATABASE_URL)"`
	MongoURI      string `usage:"MongoDB connection URI (PROMO_STORAGE_MONGO_URI or MONGODB_URI)"`
	MongoDatabase string `default:"promo" usage:"MongoDB database name"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret string `usage:"HMAC secret used to verify bearer tokens"`
	Issuer string `usage:"Expected token issuer; empty accepts any"`
}

// RateLimitConfig controls the sliding window limit on coupon applications.
type RateLimitConfig struct {
	Max        int           `default:"30" usage:"Max coupon applications per client per window; 0 disables"`
	Window     time.Duration `default:"1m" usage:"Rate limit window duration"`
	TrustProxy bool          `default:"false" usage:"Key clients by X-Forwarded-For / X-Real-IP"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration"`
}

// NewLoader returns a loader that fills dst from defaults, the YAML config
// files, PROMO_ environment variables and args, in that order.
func NewLoader(dst any, args []string) *aconfig.Loader {
	return aconfig.LoaderFor(dst, aconfig.Config{
		EnvPrefix: "PROMO",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/promo/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

// LoadConfig loads the server configuration from the process environment
// and command line.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	if err := NewLoader(&cfg, args).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.Storage.ApplyPlatformDefaults()
	if port := os.Getenv("PORT"); port != "" && cfg.Addr == defaultAddr {
		cfg.Addr = "0.0.0.0:" + port
	}

	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}
	if cfg.Auth.Secret == "" {
		return nil, errors.New("auth secret is required: set PROMO_AUTH_SECRET")
	}
	return &cfg, nil
}

// ApplyPlatformDefaults fills connection strings from the unprefixed
// variables hosting platforms set (DATABASE_URL, MONGODB_URI).
func (c *StorageConfig) ApplyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.MongoURI == "" {
		c.MongoURI = os.Getenv("MONGODB_URI")
	}
}

// Validate checks the selected driver has what it needs.
func (c *StorageConfig) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set PROMO_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("mongo URI is required: set PROMO_STORAGE_MONGO_URI or MONGODB_URI")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Driver)
	}
	return nil
}
