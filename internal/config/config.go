package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Nominatim NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	WFS       WFSConfig       `yaml:"wfs" mapstructure:"wfs"`
	GPU       GPUConfig       `yaml:"gpu" mapstructure:"gpu"`
	Mapillary MapillaryConfig `yaml:"mapillary" mapstructure:"mapillary"`
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Imagery   ImageryConfig   `yaml:"imagery" mapstructure:"imagery"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Kafka     KafkaConfig     `yaml:"kafka" mapstructure:"kafka"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// NominatimConfig configures the OpenStreetMap geocoder.
type NominatimConfig struct {
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	UserAgent  string        `yaml:"user_agent" mapstructure:"user_agent"`
	RPS        float64       `yaml:"rps" mapstructure:"rps"`
	Retries    int           `yaml:"retries" mapstructure:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// WFSConfig configures the IGN Géoplateforme WFS endpoint.
type WFSConfig struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// GPUConfig configures the Géoportail de l'Urbanisme document links.
type GPUConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

type MapillaryConfig struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Token   string        `yaml:"token" mapstructure:"token"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type GoogleConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// ImageryConfig holds the default street imagery settings.
type ImageryConfig struct {
	Provider   string  `yaml:"provider" mapstructure:"provider"`
	RadiusM    float64 `yaml:"radius_m" mapstructure:"radius_m"`
	PreferPano bool    `yaml:"prefer_pano" mapstructure:"prefer_pano"`
}

// CacheConfig configures the valkey lookup cache. An empty address disables it.
type CacheConfig struct {
	Address string   `yaml:"address" mapstructure:"address"`
	TTL     CacheTTL `yaml:"ttl" mapstructure:"ttl"`
}

type CacheTTL struct {
	Geocode time.Duration `yaml:"geocode" mapstructure:"geocode"`
	Parcel  time.Duration `yaml:"parcel" mapstructure:"parcel"`
	Zoning  time.Duration `yaml:"zoning" mapstructure:"zoning"`
}

// DatabaseConfig configures the Postgres history store. An empty URL disables it.
type DatabaseConfig struct {
	URL        string        `yaml:"url" mapstructure:"url"`
	GeocodeTTL time.Duration `yaml:"geocode_ttl" mapstructure:"geocode_ttl"`
}

// StorageConfig configures the S3-compatible archive.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	Region    string `yaml:"region" mapstructure:"region"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
}

// Enabled reports whether enough settings are present to connect.
func (c StorageConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != ""
}

// KafkaConfig configures the request queue.
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers" mapstructure:"brokers"`
	Topic        string   `yaml:"topic" mapstructure:"topic"`
	ResultsTopic string   `yaml:"results_topic" mapstructure:"results_topic"`
	GroupID      string   `yaml:"group_id" mapstructure:"group_id"`
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.Brokers[0] != ""
}

// BatchConfig configures multi-address lookups.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("URBANLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets and endpoints also answer to the plain names used in deployments.
	_ = v.BindEnv("mapillary.token", "URBANLENS_MAPILLARY_TOKEN", "MAPILLARY_TOKEN")
	_ = v.BindEnv("google.api_key", "URBANLENS_GOOGLE_API_KEY", "GOOGLE_MAPS_API_KEY")
	_ = v.BindEnv("storage.endpoint", "URBANLENS_STORAGE_ENDPOINT", "MINIO_ENDPOINT")
	_ = v.BindEnv("storage.access_key", "URBANLENS_STORAGE_ACCESS_KEY", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "URBANLENS_STORAGE_SECRET_KEY", "MINIO_SECRET_KEY")
	_ = v.BindEnv("storage.use_ssl", "URBANLENS_STORAGE_USE_SSL", "MINIO_USE_SSL")
	_ = v.BindEnv("kafka.brokers", "URBANLENS_KAFKA_BROKERS", "KAFKA_BROKER")
	_ = v.BindEnv("database.url", "URBANLENS_DATABASE_URL", "DATABASE_URL")

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.user_agent", "MapExplorer/1.0 (educational-demo)")
	v.SetDefault("nominatim.rps", 1.0)
	v.SetDefault("nominatim.retries", 3)
	v.SetDefault("nominatim.retry_delay", "1s")
	v.SetDefault("nominatim.timeout", "20s")
	v.SetDefault("wfs.base_url", "https://data.geopf.fr/wfs/ows")
	v.SetDefault("wfs.timeout", "20s")
	v.SetDefault("gpu.base_url", "https://www.geoportail-urbanisme.gouv.fr")
	v.SetDefault("mapillary.base_url", "https://graph.mapillary.com")
	v.SetDefault("mapillary.timeout", "20s")
	v.SetDefault("imagery.provider", "auto")
	v.SetDefault("imagery.radius_m", 150)
	v.SetDefault("imagery.prefer_pano", true)
	v.SetDefault("cache.ttl.geocode", "1h")
	v.SetDefault("cache.ttl.parcel", "30m")
	v.SetDefault("cache.ttl.zoning", "10m")
	v.SetDefault("database.geocode_ttl", "720h")
	v.SetDefault("storage.bucket", "urbanlens")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "urbanlens-requests")
	v.SetDefault("kafka.results_topic", "urbanlens-results")
	v.SetDefault("kafka.group_id", "urbanlens-worker")
	v.SetDefault("batch.concurrency", 4)

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

	// URBANLENS_KAFKA_BROKERS arrives as a single comma separated string.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	return &cfg, nil
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

// Validate checks the settings a command needs. Mode is one of "lookup",
// "serve", "submit" or "worker".
func (c *Config) Validate(mode string) error {
	var missing []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			missing = append(missing, "server.port must be between 1 and 65535")
		}
	case "submit":
		if !c.Storage.Enabled() {
			missing = append(missing, "storage.endpoint, storage.access_key and storage.secret_key are required")
		}
	case "worker":
		if !c.Storage.Enabled() {
			missing = append(missing, "storage.endpoint, storage.access_key and storage.secret_key are required")
		}
		if !c.Kafka.Enabled() {
			missing = append(missing, "kafka.brokers is required")
		}
		if c.Kafka.GroupID == "" {
			missing = append(missing, "kafka.group_id is required")
		}
	}

	if c.Imagery.RadiusM < 0 {
		missing = append(missing, "imagery.radius_m must not be negative")
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}
