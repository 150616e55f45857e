package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/geotask/task-service/internal/core/geo"
)

type Config struct {
	Port      string        `env:"PORT,      default=8080"`
	Env       string        `env:"ENV,       default=development"`
	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL,   default=24h"`
	LogLevel  string        `env:"LOG_LEVEL, default=info"`

	Mongo MongoConfig
	Redis RedisConfig
	Geo   GeoConfig
	Queue QueueConfig
	NATS  NATSConfig
	MQTT  MQTTConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=geotask"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

// GeoConfig tunes map framing and how long a reported location stays usable.
type GeoConfig struct {
	MapPadding     float64       `env:"MAP_PADDING_FACTOR,    default=1.2"`
	DefaultLat     float64       `env:"MAP_DEFAULT_LAT,       default=37.78825"`
	DefaultLng     float64       `env:"MAP_DEFAULT_LNG,       default=-122.4324"`
	DefaultLatSpan float64       `env:"MAP_DEFAULT_LAT_DELTA, default=0.0922"`
	DefaultLngSpan float64       `env:"MAP_DEFAULT_LNG_DELTA, default=0.0421"`
	LocationMaxAge time.Duration `env:"LOCATION_MAX_AGE,      default=10m"`
	LocationTTL    time.Duration `env:"LOCATION_TTL,          default=24h"`
	PresenceTTL    time.Duration `env:"PRESENCE_TTL,          default=24h"`
}

// DefaultRegion is the viewport used when there is nothing to frame.
func (g GeoConfig) DefaultRegion() geo.MapBounds {
	return geo.MapBounds{
		CenterLatitude:  g.DefaultLat,
		CenterLongitude: g.DefaultLng,
		LatitudeSpan:    g.DefaultLatSpan,
		LongitudeSpan:   g.DefaultLngSpan,
	}
}

type QueueConfig struct {
	Workers int `env:"LOCATION_WORKERS, default=8"`
}

// NATSConfig is optional; an empty URL disables event publishing.
type NATSConfig struct {
	URL          string        `env:"NATS_URL"`
	StreamMaxAge time.Duration `env:"NATS_STREAM_MAX_AGE, default=72h"`
}

func (n NATSConfig) Enabled() bool { return n.URL != "" }

// MQTTConfig is optional; an empty broker URL disables device ingestion.
type MQTTConfig struct {
	BrokerURL string `env:"MQTT_BROKER_URL"`
	ClientID  string `env:"MQTT_CLIENT_ID, default=geotask-api"`
	Username  string `env:"MQTT_USERNAME"`
	Password  string `env:"MQTT_PASSWORD"`
	QoS       int    `env:"MQTT_QOS,       default=1"`
}

func (m MQTTConfig) Enabled() bool { return m.BrokerURL != "" }

// IsDevelopment reports whether the service runs on a developer machine.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads an optional .env file, then configuration from environment
// variables using go-envconfig.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Sprintf("config: failed to read .env: %v", err))
	}
	cfg, err := LoadFrom(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadFrom processes configuration from the given lookuper and validates it.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		if !c.IsDevelopment() {
			return errors.New("JWT_SECRET is required outside development")
		}
		c.JWTSecret = "dev-secret-change-me"
	}
	if c.Geo.MapPadding <= 0 {
		return fmt.Errorf("MAP_PADDING_FACTOR must be positive, got %v", c.Geo.MapPadding)
	}
	if c.Geo.DefaultLatSpan <= 0 || c.Geo.DefaultLngSpan <= 0 {
		return errors.New("default map region spans must be positive")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}
