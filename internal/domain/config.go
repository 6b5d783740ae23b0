package domain

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Detector holds the model and adaptive-threshold settings.
	Detector DetectorConfig `json:"detector"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// DetectorConfig holds model loading and adaptive-threshold settings.
type DetectorConfig struct {
	// ModelPath is the location of the trained model artifact.
	ModelPath string `json:"modelPath"`

	// CalibrationSize is the number of scores collected before the initial
	// threshold calibration completes.
	CalibrationSize int `json:"calibrationSize"`

	// WindowSize is the capacity of the rolling window of recent scores.
	WindowSize int `json:"windowSize"`

	// TargetFlagRate is the desired fraction of transactions flagged.
	TargetFlagRate float64 `json:"targetFlagRate"`

	// MinConfidence is the minimum confidence required to flag.
	MinConfidence float64 `json:"minConfidence"`

	// RecalibrationTolerance is the allowed deviation between the empirical
	// flag rate and the target before the threshold is recalibrated.
	RecalibrationTolerance float64 `json:"recalibrationTolerance"`

	// SmoothingWeight is the fraction of the old threshold kept when a
	// recalibration blends in a new candidate.
	SmoothingWeight float64 `json:"smoothingWeight"`

	// ThresholdMultiplier scales the trained threshold before the online
	// calibration takes over. 1.0 means use the trained threshold as-is.
	ThresholdMultiplier float64 `json:"thresholdMultiplier"`

	// RecalibrationInterval is the number of processed transactions between
	// recalibration checks.
	RecalibrationInterval int `json:"recalibrationInterval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
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

	// TierEnterprise includes multi-node, SSO, etc.
	TierEnterprise Tier = "enterprise"
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
		Detector: DetectorConfig{
			ModelPath:              "./harrier_model.gob",
			CalibrationSize:        50,
			WindowSize:             100,
			TargetFlagRate:         0.15,
			MinConfidence:          0.3,
			RecalibrationTolerance: 0.10,
			SmoothingWeight:        0.7,
			ThresholdMultiplier:    1.0,
			RecalibrationInterval:  100,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
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
		PostgresDB:   "harrier",
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
