// Package config loads sentinel settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends for audit records.
const (
	StorageCSV        = "csv"
	StoragePostgres   = "postgres"
	StorageClickHouse = "clickhouse"
	StorageMemory     = "memory"
)

// Dedup backends for the seen set.
const (
	DedupMemory   = "memory"
	DedupRedis    = "redis"
	DedupPostgres = "postgres"
)

// Event sources.
const (
	SourcePumpPortal = "pumpportal"
	SourceLogs       = "logs"
)

// Config is the full sentinel configuration.
type Config struct {
	Thresholds ThresholdsConfig
	OneShot    OneShotConfig
	Bundle     BundleConfig
	Limits     LimitsConfig
	Endpoints  EndpointsConfig
	Keys       KeysConfig
	Storage    StorageConfig
	Notify     NotifyConfig
	Server     ServerConfig
}

// ThresholdsConfig bounds the fused checks.
type ThresholdsConfig struct {
	MinMarketCapUSD float64
	MaxMarketCapUSD float64
	MaxGasSOL       float64
	MinBundleRatio  float64
	// Unknown* are "pass" or "fail".
	UnknownMarketCap string
	UnknownGas       string
	UnknownBundle    string
	SuppressOneShot  bool
}

type OneShotConfig struct {
	Window      time.Duration
	MinTipSOL   float64
	MinSpendSOL float64
	MinHolding  float64
	ScanLimit   int
	// Marker overrides the bundle log marker; empty keeps the detector default.
	Marker string
}

type BundleConfig struct {
	MinSignersPerSlot int
	Window            time.Duration
}

// LimitsConfig holds concurrency, retry and timeout limits.
type LimitsConfig struct {
	MaxConcurrent    int64
	HandleDelay      time.Duration
	PoolRetries      int
	PoolRetryDelay   time.Duration
	HTTPTimeout      time.Duration
	PriceTimeout     time.Duration
	AnalyticsTimeout time.Duration
	Pacing           time.Duration
	// RPCRate caps node requests per second; zero is unlimited.
	RPCRate          float64
	TopHolders       int
	SupplyCacheTTL   time.Duration
}

type EndpointsConfig struct {
	RPCURL         string
	WSURL          string
	PumpPortalURL  string
	DexScreenerURL string
	BirdeyeURL     string
	BitqueryURL    string
	// LogsProgram is the program watched by the logs source.
	LogsProgram string
}

// KeysConfig holds optional provider credentials. Empty disables the provider.
type KeysConfig struct {
	Birdeye    string
	Bitquery   string
	ServerChan string
	PumpPortal string
}

type StorageConfig struct {
	Backend       string
	CSVPath       string
	PostgresDSN   string
	ClickHouseDSN string
	Dedup         string
	RedisURL      string
	DedupTTL      time.Duration
	DedupCapacity int
}

type NotifyConfig struct {
	// Policy is "pass-only" or "all".
	Policy       string
	WebhookURL   string
	KafkaBrokers []string
	KafkaTopic   string
}

type ServerConfig struct {
	HTTPAddr string
	Sources  []string
}

// Default returns the production defaults.
func Default() *Config {
	return &Config{
		Thresholds: ThresholdsConfig{
			MinMarketCapUSD:  100_000,
			MaxMarketCapUSD:  250_000,
			MaxGasSOL:        10.0,
			MinBundleRatio:   0.20,
			UnknownMarketCap: "fail",
			UnknownGas:       "fail",
			UnknownBundle:    "pass",
			SuppressOneShot:  true,
		},
		OneShot: OneShotConfig{
			Window:      5 * time.Second,
			MinTipSOL:   0.01,
			MinSpendSOL: 1.0,
			MinHolding:  0.10,
			ScanLimit:   50,
		},
		Bundle: BundleConfig{
			MinSignersPerSlot: 4,
			Window:            8 * time.Hour,
		},
		Limits: LimitsConfig{
			MaxConcurrent:    2,
			HandleDelay:      1 * time.Second,
			PoolRetries:      3,
			PoolRetryDelay:   5 * time.Second,
			HTTPTimeout:      15 * time.Second,
			PriceTimeout:     10 * time.Second,
			AnalyticsTimeout: 45 * time.Second,
			Pacing:           40 * time.Millisecond,
			TopHolders:       10,
			SupplyCacheTTL:   10 * time.Minute,
		},
		Endpoints: EndpointsConfig{
			PumpPortalURL: "wss://pumpportal.fun/api/data",
			LogsProgram:   "dbcij3LWUppWqq96dh6gJWwBifmcGfLSB5D4DuSMaqN",
		},
		Storage: StorageConfig{
			Backend:       StorageCSV,
			CSVPath:       "migrations.csv",
			Dedup:         DedupMemory,
			DedupCapacity: 100_000,
		},
		Notify: NotifyConfig{
			Policy:     "pass-only",
			KafkaTopic: "migration-verdicts",
		},
		Server: ServerConfig{
			HTTPAddr: ":9090",
			Sources:  []string{SourcePumpPortal},
		},
	}
}

// Load reads .env (if present, never overriding real env vars), then the
// environment over Default, and validates the result.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads ./.env into the environment. A missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// FromEnv builds an unvalidated Config from the current environment.
func FromEnv() *Config {
	d := Default()
	cfg := &Config{
		Thresholds: ThresholdsConfig{
			MinMarketCapUSD:  getEnvFloat("MIN_MCAP_USD", d.Thresholds.MinMarketCapUSD),
			MaxMarketCapUSD:  getEnvFloat("MAX_MCAP_USD", d.Thresholds.MaxMarketCapUSD),
			MaxGasSOL:        getEnvFloat("MAX_GAS_SOL", d.Thresholds.MaxGasSOL),
			MinBundleRatio:   getEnvFloat("MIN_BUNDLE_RATIO", d.Thresholds.MinBundleRatio),
			UnknownMarketCap: getEnv("UNKNOWN_MCAP_POLICY", d.Thresholds.UnknownMarketCap),
			UnknownGas:       getEnv("UNKNOWN_GAS_POLICY", d.Thresholds.UnknownGas),
			UnknownBundle:    getEnv("UNKNOWN_BUNDLE_POLICY", d.Thresholds.UnknownBundle),
			SuppressOneShot:  getEnvBool("SUPPRESS_ONE_SHOT", d.Thresholds.SuppressOneShot),
		},
		OneShot: OneShotConfig{
			Window:      getEnvDuration("ONESHOT_WINDOW", d.OneShot.Window),
			MinTipSOL:   getEnvFloat("ONESHOT_MIN_TIP_SOL", d.OneShot.MinTipSOL),
			MinSpendSOL: getEnvFloat("ONESHOT_MIN_SPEND_SOL", d.OneShot.MinSpendSOL),
			MinHolding:  getEnvFloat("ONESHOT_MIN_HOLDING", d.OneShot.MinHolding),
			ScanLimit:   getEnvInt("ONESHOT_SCAN_LIMIT", d.OneShot.ScanLimit),
			Marker:      getEnv("ONESHOT_MARKER", d.OneShot.Marker),
		},
		Bundle: BundleConfig{
			MinSignersPerSlot: getEnvInt("BUNDLE_MIN_SIGNERS", d.Bundle.MinSignersPerSlot),
			Window:            getEnvDuration("BUNDLE_WINDOW", d.Bundle.Window),
		},
		Limits: LimitsConfig{
			MaxConcurrent:    int64(getEnvInt("MAX_CONCURRENT", int(d.Limits.MaxConcurrent))),
			HandleDelay:      getEnvDuration("HANDLE_DELAY", d.Limits.HandleDelay),
			PoolRetries:      getEnvInt("POOL_RETRIES", d.Limits.PoolRetries),
			PoolRetryDelay:   getEnvDuration("POOL_RETRY_DELAY", d.Limits.PoolRetryDelay),
			HTTPTimeout:      getEnvDuration("HTTP_TIMEOUT", d.Limits.HTTPTimeout),
			PriceTimeout:     getEnvDuration("PRICE_TIMEOUT", d.Limits.PriceTimeout),
			AnalyticsTimeout: getEnvDuration("ANALYTICS_TIMEOUT", d.Limits.AnalyticsTimeout),
			Pacing:           getEnvDuration("TX_PACING", d.Limits.Pacing),
			RPCRate:          getEnvFloat("RPC_RPS", d.Limits.RPCRate),
			TopHolders:       getEnvInt("TOP_HOLDERS", d.Limits.TopHolders),
			SupplyCacheTTL:   getEnvDuration("SUPPLY_CACHE_TTL", d.Limits.SupplyCacheTTL),
		},
		Endpoints: EndpointsConfig{
			RPCURL:         getEnv("RPC_URL", ""),
			WSURL:          getEnv("WS_URL", ""),
			PumpPortalURL:  getEnv("PUMPPORTAL_URL", d.Endpoints.PumpPortalURL),
			DexScreenerURL: getEnv("DEXSCREENER_URL", ""),
			BirdeyeURL:     getEnv("BIRDEYE_URL", ""),
			BitqueryURL:    getEnv("BITQUERY_URL", ""),
			LogsProgram:    getEnv("LOGS_PROGRAM", d.Endpoints.LogsProgram),
		},
		Keys: KeysConfig{
			Birdeye:    getEnv("BIRDEYE_API_KEY", ""),
			Bitquery:   getEnv("BITQUERY_API_KEY", ""),
			ServerChan: getEnv("SERVERCHAN_KEY", ""),
			PumpPortal: getEnv("PUMPPORTAL_API_KEY", ""),
		},
		Storage: StorageConfig{
			Backend:       getEnv("STORAGE", d.Storage.Backend),
			CSVPath:       getEnv("CSV_PATH", d.Storage.CSVPath),
			PostgresDSN:   getEnv("POSTGRES_DSN", ""),
			ClickHouseDSN: getEnv("CLICKHOUSE_DSN", ""),
			Dedup:         getEnv("DEDUP", d.Storage.Dedup),
			RedisURL:      getEnv("REDIS_URL", ""),
			DedupTTL:      getEnvDuration("DEDUP_TTL", d.Storage.DedupTTL),
			DedupCapacity: getEnvInt("DEDUP_CAPACITY", d.Storage.DedupCapacity),
		},
		Notify: NotifyConfig{
			Policy:       getEnv("DISPATCH_POLICY", d.Notify.Policy),
			WebhookURL:   getEnv("WEBHOOK_URL", ""),
			KafkaBrokers: getEnvList("KAFKA_BROKERS", nil),
			KafkaTopic:   getEnv("KAFKA_TOPIC", d.Notify.KafkaTopic),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", d.Server.HTTPAddr),
			Sources:  getEnvList("SOURCES", d.Server.Sources),
		},
	}

	if cfg.Endpoints.WSURL == "" {
		cfg.Endpoints.WSURL = WSFromRPC(cfg.Endpoints.RPCURL)
	}
	return cfg
}

// Validate checks required settings and cross-field constraints.
func (c *Config) Validate() error {
	if c.Endpoints.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.Thresholds.MinMarketCapUSD > c.Thresholds.MaxMarketCapUSD {
		return fmt.Errorf("MIN_MCAP_USD %.0f exceeds MAX_MCAP_USD %.0f",
			c.Thresholds.MinMarketCapUSD, c.Thresholds.MaxMarketCapUSD)
	}
	if c.Thresholds.MinBundleRatio < 0 || c.Thresholds.MinBundleRatio > 1 {
		return fmt.Errorf("MIN_BUNDLE_RATIO must be in [0, 1], got %g", c.Thresholds.MinBundleRatio)
	}
	for name, p := range map[string]string{
		"UNKNOWN_MCAP_POLICY":   c.Thresholds.UnknownMarketCap,
		"UNKNOWN_GAS_POLICY":    c.Thresholds.UnknownGas,
		"UNKNOWN_BUNDLE_POLICY": c.Thresholds.UnknownBundle,
	} {
		if p != "pass" && p != "fail" {
			return fmt.Errorf("%s must be pass or fail, got %q", name, p)
		}
	}
	if c.Notify.Policy != "pass-only" && c.Notify.Policy != "all" {
		return fmt.Errorf("DISPATCH_POLICY must be pass-only or all, got %q", c.Notify.Policy)
	}

	switch c.Storage.Backend {
	case StorageCSV:
		if c.Storage.CSVPath == "" {
			return fmt.Errorf("CSV_PATH is required for csv storage")
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for postgres storage")
		}
	case StorageClickHouse:
		if c.Storage.ClickHouseDSN == "" {
			return fmt.Errorf("CLICKHOUSE_DSN is required for clickhouse storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage.Backend)
	}

	switch c.Storage.Dedup {
	case DedupMemory:
	case DedupRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for redis dedup")
		}
	case DedupPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for postgres dedup")
		}
	default:
		return fmt.Errorf("unknown DEDUP %q", c.Storage.Dedup)
	}

	if len(c.Server.Sources) == 0 {
		return fmt.Errorf("SOURCES must name at least one source")
	}
	for _, s := range c.Server.Sources {
		switch s {
		case SourcePumpPortal:
		case SourceLogs:
			if c.Endpoints.WSURL == "" {
				return fmt.Errorf("WS_URL is required for the logs source")
			}
		default:
			return fmt.Errorf("unknown source %q", s)
		}
	}
	return nil
}

// WSFromRPC derives the websocket endpoint from an http(s) RPC URL.
func WSFromRPC(rpc string) string {
	switch {
	case strings.HasPrefix(rpc, "https://"):
		return "wss://" + strings.TrimPrefix(rpc, "https://")
	case strings.HasPrefix(rpc, "http://"):
		return "ws://" + strings.TrimPrefix(rpc, "http://")
	}
	return ""
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("1500ms") or plain seconds ("5").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if s, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(s * float64(time.Second))
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
