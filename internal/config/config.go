package config

import (
    "errors"
    "fmt"
    "os"
    "strings"

    "github.com/spf13/viper"
)

type Server struct {
    Port              string   `mapstructure:"port"`
    RequestTimeoutSec int      `mapstructure:"request_timeout_sec"`
    CORSOrigins       []string `mapstructure:"cors_origins"`
}

type Log struct {
    Level  string `mapstructure:"level"`
    Format string `mapstructure:"format"` // json | console
}

type Engine struct {
    AdapterTimeoutSec int    `mapstructure:"adapter_timeout_sec"`
    FallbackEnabled   bool   `mapstructure:"fallback_enabled"`
    Currency          string `mapstructure:"currency"`
}

type Secrets struct {
    Backend        string `mapstructure:"backend"` // env | aws | chain
    EnvPrefix      string `mapstructure:"env_prefix"`
    AWSRegion      string `mapstructure:"aws_region"`
    AWSPrefix      string `mapstructure:"aws_prefix"`
    CacheTTLSec    int    `mapstructure:"cache_ttl_sec"`
    NegativeTTLSec int    `mapstructure:"negative_ttl_sec"`
}

type QuoteHub struct {
    Enabled               bool    `mapstructure:"enabled"`
    Endpoint              string  `mapstructure:"endpoint"`
    CredentialName        string  `mapstructure:"credential_name"`
    CommissionRate        float64 `mapstructure:"commission_rate"`
    ValidityDays          int     `mapstructure:"validity_days"`
    MaxRequestsPerMinute  int     `mapstructure:"max_requests_per_minute"`
    MinRequestIntervalSec int     `mapstructure:"min_request_interval_sec"`
    Burst                 int     `mapstructure:"burst"`
    CacheTTLSeconds       int     `mapstructure:"cache_ttl_sec"`
    CacheMaxItems         int     `mapstructure:"cache_max_items"`
}

type HMOMarket struct {
    Enabled               bool    `mapstructure:"enabled"`
    Endpoint              string  `mapstructure:"endpoint"`
    CredentialName        string  `mapstructure:"credential_name"`
    CommissionRate        float64 `mapstructure:"commission_rate"`
    MaxSubProviders       int     `mapstructure:"max_sub_providers"`
    MaxConcurrency        int     `mapstructure:"max_concurrency"`
    SubRequestTimeoutSec  int     `mapstructure:"sub_request_timeout_sec"`
    MaxRequestsPerMinute  int     `mapstructure:"max_requests_per_minute"`
    MinRequestIntervalSec int     `mapstructure:"min_request_interval_sec"`
    Burst                 int     `mapstructure:"burst"`
    CacheTTLSeconds       int     `mapstructure:"cache_ttl_sec"`
    CacheMaxItems         int     `mapstructure:"cache_max_items"`
}

type Cache struct {
    Backend  string `mapstructure:"backend"` // memory | redis
    RedisURL string `mapstructure:"redis_url"`
    Prefix   string `mapstructure:"prefix"`
}

type Ledger struct {
    Driver      string `mapstructure:"driver"` // memory | postgres
    DatabaseURL string `mapstructure:"database_url"`
    MaxConns    int32  `mapstructure:"max_conns"`
    MinConns    int32  `mapstructure:"min_conns"`
}

type Config struct {
    Server    Server    `mapstructure:"server"`
    Log       Log       `mapstructure:"log"`
    Engine    Engine    `mapstructure:"engine"`
    Secrets   Secrets   `mapstructure:"secrets"`
    QuoteHub  QuoteHub  `mapstructure:"quotehub"`
    HMOMarket HMOMarket `mapstructure:"hmomarket"`
    Cache     Cache     `mapstructure:"cache"`
    Ledger    Ledger    `mapstructure:"ledger"`
}

func setDefaults(v *viper.Viper) {
    v.SetDefault("server.port", "8080")
    v.SetDefault("server.request_timeout_sec", 15)
    v.SetDefault("server.cors_origins", []string{"*"})

    v.SetDefault("log.level", "info")
    v.SetDefault("log.format", "json")

    v.SetDefault("engine.adapter_timeout_sec", 8)
    v.SetDefault("engine.fallback_enabled", true)
    v.SetDefault("engine.currency", "NGN")

    v.SetDefault("secrets.backend", "env")
    v.SetDefault("secrets.env_prefix", "")
    v.SetDefault("secrets.aws_region", "")
    v.SetDefault("secrets.aws_prefix", "quoteengine/")
    v.SetDefault("secrets.cache_ttl_sec", 300)
    v.SetDefault("secrets.negative_ttl_sec", 30)

    v.SetDefault("quotehub.enabled", true)
    v.SetDefault("quotehub.endpoint", "https://api.quotehub.africa")
    v.SetDefault("quotehub.credential_name", "QUOTEHUB_API_KEY")
    v.SetDefault("quotehub.commission_rate", 0.10)
    v.SetDefault("quotehub.validity_days", 7)
    v.SetDefault("quotehub.max_requests_per_minute", 120)
    v.SetDefault("quotehub.min_request_interval_sec", 0)
    v.SetDefault("quotehub.burst", 10)
    v.SetDefault("quotehub.cache_ttl_sec", 60)
    v.SetDefault("quotehub.cache_max_items", 5000)

    v.SetDefault("hmomarket.enabled", true)
    v.SetDefault("hmomarket.endpoint", "https://api.hmomarket.ng")
    v.SetDefault("hmomarket.credential_name", "HMOMARKET_API_KEY")
    v.SetDefault("hmomarket.commission_rate", 0.08)
    v.SetDefault("hmomarket.max_sub_providers", 5)
    v.SetDefault("hmomarket.max_concurrency", 3)
    v.SetDefault("hmomarket.sub_request_timeout_sec", 4)
    v.SetDefault("hmomarket.max_requests_per_minute", 60)
    v.SetDefault("hmomarket.min_request_interval_sec", 0)
    v.SetDefault("hmomarket.burst", 5)
    v.SetDefault("hmomarket.cache_ttl_sec", 60)
    v.SetDefault("hmomarket.cache_max_items", 5000)

    v.SetDefault("cache.backend", "memory")
    v.SetDefault("cache.redis_url", "")
    v.SetDefault("cache.prefix", "quoteengine:")

    v.SetDefault("ledger.driver", "memory")
    v.SetDefault("ledger.database_url", "")
    v.SetDefault("ledger.max_conns", 10)
    v.SetDefault("ledger.min_conns", 1)
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() Config {
    v := viper.New()
    setDefaults(v)
    var cfg Config
    _ = v.Unmarshal(&cfg)
    return cfg
}

// Load reads an optional JSON config file and applies environment
// overrides, e.g. QUOTEHUB_ENDPOINT or ENGINE_ADAPTER_TIMEOUT_SEC. If path is
// empty, ./config.json is used when present.
func Load(path string) (Config, error) {
    v := viper.New()
    v.SetConfigType("json")
    setDefaults(v)
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    v.AutomaticEnv()
    _ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
    _ = v.BindEnv("ledger.database_url", "LEDGER_DATABASE_URL", "DATABASE_URL")
    _ = v.BindEnv("cache.redis_url", "CACHE_REDIS_URL", "REDIS_URL")

    if path == "" {
        if _, err := os.Stat("config.json"); err == nil { path = "config.json" }
    }
    if path != "" {
        v.SetConfigFile(path)
        if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
            return Config{}, fmt.Errorf("read config: %w", err)
        }
    }

    var cfg Config
    if err := v.Unmarshal(&cfg); err != nil {
        return Config{}, fmt.Errorf("parse config: %w", err)
    }
    // env values arrive as one comma-separated string
    cfg.Server.CORSOrigins = splitCSV(strings.Join(cfg.Server.CORSOrigins, ","))
    if err := cfg.Validate(); err != nil { return Config{}, err }
    return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
    var errs []error
    if c.Engine.AdapterTimeoutSec <= 0 { errs = append(errs, errors.New("engine.adapter_timeout_sec must be positive")) }
    if c.Server.RequestTimeoutSec <= 0 { errs = append(errs, errors.New("server.request_timeout_sec must be positive")) }
    if r := c.QuoteHub.CommissionRate; r < 0 || r > 1 { errs = append(errs, fmt.Errorf("quotehub.commission_rate %v outside [0,1]", r)) }
    if r := c.HMOMarket.CommissionRate; r < 0 || r > 1 { errs = append(errs, fmt.Errorf("hmomarket.commission_rate %v outside [0,1]", r)) }
    if c.HMOMarket.SubRequestTimeoutSec <= 0 { errs = append(errs, errors.New("hmomarket.sub_request_timeout_sec must be positive")) }
    switch c.Secrets.Backend {
    case "env", "aws", "chain":
    default:
        errs = append(errs, fmt.Errorf("unknown secrets.backend %q", c.Secrets.Backend))
    }
    switch c.Cache.Backend {
    case "memory":
    case "redis":
        if c.Cache.RedisURL == "" { errs = append(errs, errors.New("cache.redis_url is required for the redis backend")) }
    default:
        errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
    }
    switch c.Ledger.Driver {
    case "memory":
    case "postgres":
        if c.Ledger.DatabaseURL == "" { errs = append(errs, errors.New("ledger.database_url is required for the postgres driver")) }
    default:
        errs = append(errs, fmt.Errorf("unknown ledger.driver %q", c.Ledger.Driver))
    }
    return errors.Join(errs...)
}

func splitCSV(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, p) }
    }
    return out
}
