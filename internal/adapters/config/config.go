package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"vanna/pkg/errors"
)

type Config struct {
	App           AppConfig
	Server        ServerConfig
	Redis         RedisConfig
	Broker        BrokerConfig
	Feed          FeedConfig
	Chain         ChainConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"vanna"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type ServerConfig struct {
	Host         string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `envconfig:"SERVER_PORT" default:"8000"`
	ReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BrokerConfig holds Angel One SmartAPI settings. The API key identifies the
// application; per-client credentials arrive via the login endpoint.
type BrokerConfig struct {
	APIKey         string        `envconfig:"ANGEL_API_KEY"`
	APIBaseURL     string        `envconfig:"ANGEL_API_BASE_URL" default:"https://apiconnect.angelbroking.com"`
	ScripMasterURL string        `envconfig:"ANGEL_SCRIP_MASTER_URL" default:"https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"`
	QuoteTimeout   time.Duration `envconfig:"BROKER_QUOTE_TIMEOUT" default:"3s"`
	QuoteRPM       int           `envconfig:"BROKER_QUOTE_RPM" default:"180"` // REST quote calls per minute
}

// FeedConfig holds the broker push-feed (market data WebSocket) settings.
// The feed token is issued by the login handshake; when set here the feed
// link starts at boot, otherwise assembly relies on REST point-queries.
type FeedConfig struct {
	Enabled      bool          `envconfig:"FEED_ENABLED" default:"true"`
	URL          string        `envconfig:"FEED_WS_URL" default:"wss://smartapisocket.angelone.in/smart-stream"`
	ClientCode   string        `envconfig:"FEED_CLIENT_CODE"`
	FeedToken    string        `envconfig:"FEED_TOKEN"`
	AuthToken    string        `envconfig:"FEED_AUTH_TOKEN"`
	MinBackoff   time.Duration `envconfig:"FEED_MIN_BACKOFF" default:"1s"`
	MaxBackoff   time.Duration `envconfig:"FEED_MAX_BACKOFF" default:"2m"`
	MaxReconnect int           `envconfig:"FEED_MAX_RECONNECT" default:"10"`
	BufferSize   int           `envconfig:"FEED_BUFFER_SIZE" default:"1024"`
}

type ChainConfig struct {
	Underlyings      []string          `envconfig:"CHAIN_UNDERLYINGS" default:"NIFTY,BANKNIFTY"`
	SpotTokens       map[string]string `envconfig:"CHAIN_SPOT_TOKENS" default:"NIFTY:99926000,BANKNIFTY:99926009"`
	TickTTL          time.Duration     `envconfig:"CHAIN_TICK_TTL" default:"10s"`
	SnapshotInterval time.Duration     `envconfig:"CHAIN_SNAPSHOT_INTERVAL" default:"1s"`
	ErrorBackoff     time.Duration     `envconfig:"CHAIN_ERROR_BACKOFF" default:"5s"`
	AssembleTimeout  time.Duration     `envconfig:"CHAIN_ASSEMBLE_TIMEOUT" default:"10s"`
	SessionTTL       time.Duration     `envconfig:"CHAIN_SESSION_TTL" default:"24h"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	CatalogReloadInterval time.Duration `envconfig:"WORKER_CATALOG_RELOAD_INTERVAL" default:"24h"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
