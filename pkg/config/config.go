// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, LSH, Corpus, Report, etc.).
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	LSH      LSHConfig      `yaml:"lsh"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Report   ReportConfig   `yaml:"report"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	RateLimit       int           `yaml:"rateLimit"` // requests per minute per client, 0 disables
	// TrustedProxies lists the addresses or CIDR ranges whose
	// X-Forwarded-For header names the real client.
	TrustedProxies  []string      `yaml:"trustedProxies"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DuplicatePairs string `yaml:"duplicatePairs"`
	IndexComplete  string `yaml:"indexComplete"`
	QueryEvents    string `yaml:"queryEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LSHConfig fixes the shingle width and the MinHash / banding parameters.
// NumHashes must be a multiple of RowsPerBand; the band count is derived.
type LSHConfig struct {
	ShingleSize int       `yaml:"shingleSize"`
	NumHashes   int       `yaml:"numHashes"`
	RowsPerBand int       `yaml:"rowsPerBand"`
	Prime       uint64    `yaml:"prime"`
	BandPrime   uint64    `yaml:"bandPrime"`
	Seeds       HashSeeds `yaml:"seeds"`
	Threshold   float64   `yaml:"threshold"`
	Workers     int       `yaml:"workers"`
}

// HashSeeds seed the four coefficient tables.
type HashSeeds struct {
	SignatureA int64 `yaml:"signatureA"`
	SignatureB int64 `yaml:"signatureB"`
	BandA      int64 `yaml:"bandA"`
	BandB      int64 `yaml:"bandB"`
}

// Bands returns NumHashes / RowsPerBand.
func (l LSHConfig) Bands() int {
	if l.RowsPerBand <= 0 {
		return 0
	}
	return l.NumHashes / l.RowsPerBand
}

// CorpusConfig selects where the indexer reads documents from.
type CorpusConfig struct {
	Source    string `yaml:"source"` // "jsonl" or "postgres"
	Path      string `yaml:"path"`
	IDField   string `yaml:"idField"`
	TextField string `yaml:"textField"`
	Query     string `yaml:"query"`
}

// ReportConfig controls where duplicate pairs are written.
type ReportConfig struct {
	CSVPath      string `yaml:"csvPath"`
	IncludeText  bool   `yaml:"includeText"`
	Postgres     bool   `yaml:"postgres"`
	Kafka        bool   `yaml:"kafka"`
	SampleSize   int    `yaml:"sampleSize"`
	SampleSeed   int64  `yaml:"sampleSeed"`
	PublishBatch int    `yaml:"publishBatch"`
}

// SnapshotConfig holds the location of the persisted index.
type SnapshotConfig struct {
	DataDir string `yaml:"dataDir"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	QueryTimeout    time.Duration `yaml:"queryTimeout"`
	MaxTextLength   int           `yaml:"maxTextLength"`
	AllowInsert     bool          `yaml:"allowInsert"`
	AnalyticsBuffer int           `yaml:"analyticsBuffer"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values, or an error wrapping ErrConfiguration when validation fails.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

// Validate checks the LSH parameters and search limits.
func (c *Config) Validate() error {
	l := c.LSH
	switch {
	case l.ShingleSize < 1 || l.ShingleSize > 12:
		return fmt.Errorf("%w: shingleSize %d outside [1, 12]", apperrors.ErrConfiguration, l.ShingleSize)
	case l.NumHashes <= 0 || l.RowsPerBand <= 0:
		return fmt.Errorf("%w: numHashes and rowsPerBand must be positive", apperrors.ErrConfiguration)
	case l.NumHashes%l.RowsPerBand != 0:
		return fmt.Errorf("%w: numHashes %d not divisible by rowsPerBand %d",
			apperrors.ErrConfiguration, l.NumHashes, l.RowsPerBand)
	case l.Prime < 2 || l.Prime > 1<<32-1:
		return fmt.Errorf("%w: prime %d must fit in 32 bits", apperrors.ErrConfiguration, l.Prime)
	case l.BandPrime < 2:
		return fmt.Errorf("%w: bandPrime %d too small", apperrors.ErrConfiguration, l.BandPrime)
	case l.Threshold <= 0 || l.Threshold > 1:
		return fmt.Errorf("%w: threshold %.3f outside (0, 1]", apperrors.ErrConfiguration, l.Threshold)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("%w: rateLimit %d must not be negative", apperrors.ErrConfiguration, c.Server.RateLimit)
	}
	for _, p := range c.Server.TrustedProxies {
		if !validProxy(p) {
			return fmt.Errorf("%w: trustedProxies entry %q is not an IP or CIDR", apperrors.ErrConfiguration, p)
		}
	}
	if c.Corpus.Source != "jsonl" && c.Corpus.Source != "postgres" {
		return fmt.Errorf("%w: unknown corpus source %q", apperrors.ErrConfiguration, c.Corpus.Source)
	}
	return nil
}

// defaultConfig returns a Config with the reference shingle/MinHash
// parameters (k=4, 30 bands of 10 rows) and local development endpoints.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "neardup",
			User:            "neardup",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "neardup-searcher",
			Topics: KafkaTopics{
				DuplicatePairs: "duplicate-pairs",
				IndexComplete:  "index.complete",
				QueryEvents:    "query-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		LSH: LSHConfig{
			ShingleSize: 4,
			NumHashes:   300,
			RowsPerBand: 10,
			Prime:       2147482949,
			BandPrime:   2000001,
			Seeds: HashSeeds{
				SignatureA: 10,
				SignatureB: 11,
				BandA:      1,
				BandB:      7,
			},
			Threshold: 0.2,
			Workers:   0,
		},
		Corpus: CorpusConfig{
			Source:    "jsonl",
			Path:      "amazonReviews.json",
			IDField:   "reviewerID",
			TextField: "reviewText",
			Query:     "SELECT id, body FROM documents ORDER BY id",
		},
		Report: ReportConfig{
			CSVPath:      "result.csv",
			IncludeText:  true,
			SampleSize:   10000,
			SampleSeed:   0,
			PublishBatch: 500,
		},
		Snapshot: SnapshotConfig{
			DataDir: "data/snapshots",
		},
		Search: SearchConfig{
			QueryTimeout:    5 * time.Second,
			MaxTextLength:   1 << 20,
			AnalyticsBuffer: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

func validProxy(s string) bool {
	s = strings.TrimSpace(s)
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

// applyEnvOverrides reads ND_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ND_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ND_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("ND_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("ND_SERVER_TRUSTED_PROXIES"); v != "" {
		cfg.Server.TrustedProxies = strings.Split(v, ",")
	}
	if v := os.Getenv("ND_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = parseBool(v, cfg.Postgres.Enabled)
	}
	if v := os.Getenv("ND_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("ND_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("ND_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("ND_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("ND_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("ND_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v, cfg.Kafka.Enabled)
	}
	if v := os.Getenv("ND_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ND_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v, cfg.Redis.Enabled)
	}
	if v := os.Getenv("ND_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("ND_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ND_LSH_THRESHOLD"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LSH.Threshold = t
		}
	}
	if v := os.Getenv("ND_LSH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LSH.Workers = n
		}
	}
	if v := os.Getenv("ND_CORPUS_SOURCE"); v != "" {
		cfg.Corpus.Source = v
	}
	if v := os.Getenv("ND_CORPUS_PATH"); v != "" {
		cfg.Corpus.Path = v
	}
	if v := os.Getenv("ND_SNAPSHOT_DIR"); v != "" {
		cfg.Snapshot.DataDir = v
	}
	if v := os.Getenv("ND_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ND_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
