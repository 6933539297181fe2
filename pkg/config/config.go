// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Corpus, Retrieval, Semantic, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Semantic  SemanticConfig  `yaml:"semantic"`
	Search    SearchConfig    `yaml:"search"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
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
	CorpusUpdated   string `yaml:"corpusUpdated"`
	IndexComplete   string `yaml:"indexComplete"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
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

// CorpusConfig selects where passages come from and how raw text is chunked.
type CorpusConfig struct {
	// Source is one of "file", "textdir" or "postgres".
	Source         string        `yaml:"source"`
	Path           string        `yaml:"path"`
	Table          string        `yaml:"table"`
	ChunkSize      int           `yaml:"chunkSize"`
	ChunkOverlap   int           `yaml:"chunkOverlap"`
	StopwordsPath  string        `yaml:"stopwordsPath"`
	RebuildOnStart bool          `yaml:"rebuildOnStart"`
	LoadTimeout    time.Duration `yaml:"loadTimeout"`
}

// Writable reports whether passages can be added through the API. Only the
// postgres source persists them.
func (c CorpusConfig) Writable() bool {
	return c.Source == "postgres"
}

// RetrievalConfig carries the tunables of the retrieval core. Zero values
// fall back to the defaults of the corresponding package.
type RetrievalConfig struct {
	BuildWorkers int               `yaml:"buildWorkers"`
	Competitions []CompetitionSpec `yaml:"competitions"`
	Tokenizer    TokenizerConfig   `yaml:"tokenizer"`
	Scorer       ScorerConfig      `yaml:"scorer"`
	Router       RouterConfig      `yaml:"router"`
	Confidence   ConfidenceConfig  `yaml:"confidence"`
	// Synonyms maps a head term to its synonyms and replaces the built-in
	// table when set.
	Synonyms map[string][]string `yaml:"synonyms"`
	// InfoTypes replaces the built-in question classification when set.
	InfoTypes []InfoTypeSpec `yaml:"infoTypes"`
}

// InfoTypeSpec is one kind of information a question can ask for.
type InfoTypeSpec struct {
	Name     string   `yaml:"name"`
	Cues     []string `yaml:"cues"`
	Patterns []string `yaml:"patterns"`
}

// CompetitionSpec names a competition tag and the aliases that resolve to it.
type CompetitionSpec struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

type TokenizerConfig struct {
	MinTokenLength     int      `yaml:"minTokenLength"`
	HeadWindow         int      `yaml:"headWindow"`
	HeadBonus          float64  `yaml:"headBonus"`
	TermBonus          float64  `yaml:"termBonus"`
	SynonymWeight      float64  `yaml:"synonymWeight"`
	QueryMaxKeywords   int      `yaml:"queryMaxKeywords"`
	PassageMaxKeywords int      `yaml:"passageMaxKeywords"`
	Lexicon            []string `yaml:"lexicon"`
}

type ScorerConfig struct {
	LeadWindow   int                `yaml:"leadWindow"`
	LeadBonus    float64            `yaml:"leadBonus"`
	PhraseBoosts map[string]float64 `yaml:"phraseBoosts"`
	// InfoTypeBoost multiplies passages holding the requested info type.
	InfoTypeBoost float64 `yaml:"infoTypeBoost"`
}

type RouterConfig struct {
	MinScore float64 `yaml:"minScore"`
	// RelaxFactor scales MinScore for the retry after a weak full-corpus
	// search.
	RelaxFactor float64 `yaml:"relaxFactor"`
}

type ConfidenceConfig struct {
	MinScore             float64  `yaml:"minScore"`
	SourceSaturation     int      `yaml:"sourceSaturation"`
	QualityWeight        float64  `yaml:"qualityWeight"`
	SourceWeight         float64  `yaml:"sourceWeight"`
	SpreadWeight         float64  `yaml:"spreadWeight"`
	OverlapFloor         float64  `yaml:"overlapFloor"`
	FabricationThreshold float64  `yaml:"fabricationThreshold"`
	FabricationPenalty   float64  `yaml:"fabricationPenalty"`
	RejectionCap         float64  `yaml:"rejectionCap"`
	RejectionPhrases     []string `yaml:"rejectionPhrases"`
}

// SemanticConfig controls the optional embedding-similarity blend.
type SemanticConfig struct {
	Enabled bool          `yaml:"enabled"`
	Host    string        `yaml:"host"`
	Model   string        `yaml:"model"`
	Token   string        `yaml:"token"`
	Weight  float64       `yaml:"weight"`
	Timeout time.Duration `yaml:"timeout"`

	// BreakerThreshold consecutive embedding failures open the circuit
	// for BreakerReset; searches score lexically meanwhile.
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// SearchConfig controls request limits.
type SearchConfig struct {
	MaxResults   int           `yaml:"maxResults"`
	DefaultLimit int           `yaml:"defaultLimit"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AnalyticsConfig controls search-event batching and how often aggregated
// stats are persisted to PostgreSQL.
type AnalyticsConfig struct {
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	// MaxQuestions bounds the distinct questions the aggregator tracks.
	MaxQuestions int `yaml:"maxQuestions"`
}

// AuthConfig controls API keys, per-client rate limits and CORS. Reads stay
// anonymous; writes, rebuilds and cache invalidation need a key when
// Enabled. AnonymousRateLimit applies per client IP and 0 disables it.
type AuthConfig struct {
	Enabled            bool          `yaml:"enabled"`
	AdminToken         string        `yaml:"adminToken"`
	AnonymousRateLimit int           `yaml:"anonymousRateLimit"`
	RateWindow         time.Duration `yaml:"rateWindow"`
	CORSOrigins        []string      `yaml:"corsOrigins"`
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
// missing values.
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

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Corpus.Source {
	case "file", "textdir":
		if c.Corpus.Path == "" {
			return fmt.Errorf("corpus.path is required for source %q", c.Corpus.Source)
		}
	case "postgres":
		if !c.Postgres.Enabled {
			return fmt.Errorf("corpus source postgres requires postgres.enabled")
		}
	default:
		return fmt.Errorf("unknown corpus source %q", c.Corpus.Source)
	}
	if f := c.Retrieval.Router.RelaxFactor; f < 0 || f > 1 {
		return fmt.Errorf("retrieval.router.relaxFactor must be within [0, 1], got %v", f)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search limits invalid: default=%d max=%d", c.Search.DefaultLimit, c.Search.MaxResults)
	}
	if c.Auth.Enabled && !c.Postgres.Enabled {
		return fmt.Errorf("auth.enabled requires postgres.enabled for the api_keys table")
	}
	if c.Semantic.Enabled && c.Semantic.Host == "" {
		return fmt.Errorf("semantic.host is required when semantic scoring is enabled")
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
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
			Database:        "competitions",
			User:            "competitions",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "competition-retrieval",
			Topics: KafkaTopics{
				CorpusUpdated:   "corpus.updated",
				IndexComplete:   "index.complete",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Corpus: CorpusConfig{
			Source:         "textdir",
			Path:           "data/knowledge",
			Table:          "passages",
			ChunkSize:      1500,
			ChunkOverlap:   400,
			RebuildOnStart: true,
			LoadTimeout:    2 * time.Minute,
		},
		Semantic: SemanticConfig{
			Model:   "text-embedding-3-small",
			Weight:  0.5,
			Timeout: 10 * time.Second,

			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Search: SearchConfig{
			MaxResults:   50,
			DefaultLimit: 10,
			Timeout:      5 * time.Second,
		},
		Analytics: AnalyticsConfig{
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
			MaxQuestions:     5000,
		},
		Auth: AuthConfig{
			AnonymousRateLimit: 120,
			RateWindow:         time.Minute,
			CORSOrigins:        []string{"*"},
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

// applyEnvOverrides reads CR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CR_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CR_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("CR_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("CR_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CR_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("CR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CR_CORPUS_SOURCE"); v != "" {
		cfg.Corpus.Source = v
	}
	if v := os.Getenv("CR_CORPUS_PATH"); v != "" {
		cfg.Corpus.Path = v
	}
	if v := os.Getenv("CR_STOPWORDS_PATH"); v != "" {
		cfg.Corpus.StopwordsPath = v
	}
	if v := os.Getenv("CR_SEMANTIC_HOST"); v != "" {
		cfg.Semantic.Host = v
	}
	if v := os.Getenv("CR_SEMANTIC_TOKEN"); v != "" {
		cfg.Semantic.Token = v
	}
	if v := os.Getenv("CR_SEMANTIC_MODEL"); v != "" {
		cfg.Semantic.Model = v
	}
	if v := os.Getenv("CR_AUTH_ADMIN_TOKEN"); v != "" {
		cfg.Auth.AdminToken = v
	}
	if v := os.Getenv("CR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
