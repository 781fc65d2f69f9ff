package domain

import "time"

// Config holds the complete StrideWatch configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Analysis pipeline tuning
	Detection  DetectionConfig  `json:"detection"`
	Validation ValidationConfig `json:"validation"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// DetectionConfig tunes the batch anomaly ensemble.
type DetectionConfig struct {
	// Contamination is the expected anomaly fraction. For batches smaller
	// than SmallBatchSize the effective value is max(1/n, Contamination).
	Contamination  float64 `json:"contamination"`
	SmallBatchSize int     `json:"smallBatchSize"`

	// MinVotes is the number of agreeing detectors required to flag a record.
	MinVotes int `json:"minVotes"`

	// Isolation forest
	Trees int   `json:"trees"`
	Seed  int64 `json:"seed"`

	// Neighbors cap for the local outlier factor detector.
	LOFNeighbors int `json:"lofNeighbors"`

	// Cluster cap for the distance-to-centroid detector.
	KMeansMaxClusters int `json:"kmeansMaxClusters"`
}

// ValidationConfig tunes the online record validator.
type ValidationConfig struct {
	// Risk thresholds mapping to REJECTED and PENDING.
	RejectThreshold float64 `json:"rejectThreshold"`
	ReviewThreshold float64 `json:"reviewThreshold"`

	// DeviationSigma is the baseline deviation cutoff for history checks.
	DeviationSigma float64 `json:"deviationSigma"`

	// Contamination used by the per-user online detectors.
	Contamination float64 `json:"contamination"`

	// MinHistoryForDetectors is the row count (history plus the new record)
	// required before online anomaly detectors run.
	MinHistoryForDetectors int `json:"minHistoryForDetectors"`

	// HistoryLimit caps how many prior activities are loaded per user.
	HistoryLimit int `json:"historyLimit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./stridewatch.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Detection: DetectionConfig{
			Contamination:     0.05,
			SmallBatchSize:    20,
			MinVotes:          2,
			Trees:             100,
			Seed:              42,
			LOFNeighbors:      20,
			KMeansMaxClusters: 4,
		},
		Validation: ValidationConfig{
			RejectThreshold:        70,
			ReviewThreshold:        40,
			DeviationSigma:         3,
			Contamination:          0.1,
			MinHistoryForDetectors: 5,
			HistoryLimit:           100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "stridewatch",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "stridewatch",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
