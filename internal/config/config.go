package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	CKAN    CKANConfig    `yaml:"ckan" mapstructure:"ckan"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Centres CentresConfig `yaml:"centres" mapstructure:"centres"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres/PostGIS database.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the raw dataset cache document backend.
type CacheConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"` // postgres, redis or sqlite
	Key           string `yaml:"key" mapstructure:"key"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	SQLitePath    string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// CKANConfig configures the open-data catalog client.
type CKANConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	PackageID      string  `yaml:"package_id" mapstructure:"package_id"`
	DatastoreLimit int     `yaml:"datastore_limit" mapstructure:"datastore_limit"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit      float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Concurrency    int     `yaml:"concurrency" mapstructure:"concurrency"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// GeocodeConfig holds Google Geocoding API settings.
type GeocodeConfig struct {
	GoogleAPIKey string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CentresConfig configures nearest-centre query defaults.
type CentresConfig struct {
	DefaultMaxDistance float64 `yaml:"default_max_distance" mapstructure:"default_max_distance"`
	DefaultLimit       int     `yaml:"default_limit" mapstructure:"default_limit"`
	MaxLimit           int     `yaml:"max_limit" mapstructure:"max_limit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CENTRES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names kept for deployments that already export them.
	if err := v.BindEnv("store.database_url", "CENTRES_STORE_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, eris.Wrap(err, "config: bind database url")
	}
	if err := v.BindEnv("geocode.google_api_key", "CENTRES_GEOCODE_GOOGLE_API_KEY", "GOOGLE_GEOCODING_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind geocoding key")
	}

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 60)
	v.SetDefault("cache.driver", "postgres")
	v.SetDefault("cache.key", "centres_data")
	v.SetDefault("cache.redis_addr", "127.0.0.1:6379")
	v.SetDefault("cache.sqlite_path", "centres-cache.db")
	v.SetDefault("ckan.base_url", "https://ckan0.cf.opendata.inter.prod-toronto.ca")
	v.SetDefault("ckan.package_id", "earlyon-child-and-family-centres")
	v.SetDefault("ckan.datastore_limit", 32000)
	v.SetDefault("ckan.timeout_secs", 30)
	v.SetDefault("ckan.rate_limit", 5)
	v.SetDefault("ckan.concurrency", 4)
	v.SetDefault("ckan.user_agent", "centres-api/1.0")
	v.SetDefault("geocode.base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geocode.rate_limit", 10)
	v.SetDefault("geocode.timeout_secs", 15)
	v.SetDefault("centres.default_max_distance", 5000)
	v.SetDefault("centres.default_limit", 50)
	v.SetDefault("centres.max_limit", 500)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command mode depends on. The geocoding key is
// never required here; a missing key only fails geocode requests.
func (c *Config) Validate(mode string) error {
	var errs []string

	needDB := false
	switch mode {
	case "serve":
		needDB = true
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Centres.DefaultLimit <= 0 || c.Centres.DefaultLimit > c.Centres.MaxLimit {
			errs = append(errs, "centres.default_limit must be between 1 and centres.max_limit")
		}
		if c.Centres.DefaultMaxDistance <= 0 {
			errs = append(errs, "centres.default_max_distance must be > 0")
		}
	case "migrate", "rebuild":
		needDB = true
	case "refresh":
		needDB = c.Cache.Driver == "postgres"
	case "geocode":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needDB && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch c.Cache.Driver {
	case "postgres", "sqlite":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr is required for the redis cache driver")
		}
	default:
		errs = append(errs, "cache.driver must be one of postgres, redis, sqlite")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
