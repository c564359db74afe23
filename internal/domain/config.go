package domain

import (
	"time"
)

// Config holds the complete LSP analytics service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" koanf:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier" koanf:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" koanf:"repository"`
	Cache      CacheConfig      `json:"cache" koanf:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" koanf:"eventbus"`

	// Analytics tuning
	Analytics AnalyticsConfig `json:"analytics" koanf:"analytics"`
	Scheduler SchedulerConfig `json:"scheduler" koanf:"scheduler"`

	// Observability
	Logging LoggingConfig `json:"logging" koanf:"logging"`
	Tracing TracingConfig `json:"tracing" koanf:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" koanf:"host"`
	Port         int    `json:"port" koanf:"port"`
	ReadTimeout  int    `json:"readTimeout" koanf:"readtimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" koanf:"writetimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" koanf:"level"`   // debug, info, warn, error
	Format string `json:"format" koanf:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" koanf:"enabled"`
	ServiceName  string `json:"serviceName" koanf:"servicename"`
	ExporterType string `json:"exporterType" koanf:"exportertype"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint" koanf:"endpoint"`
}

// AnalyticsConfig groups the tuning of every analytics component.
type AnalyticsConfig struct {
	Fraud      FraudConfig      `json:"fraud" koanf:"fraud"`
	Discovery  DiscoveryConfig  `json:"discovery" koanf:"discovery"`
	Validation ValidationConfig `json:"validation" koanf:"validation"`
	Wellbeing  WellbeingConfig  `json:"wellbeing" koanf:"wellbeing"`

	// RecentWindow is the span of the per-user activity counter exposed to alert rules.
	RecentWindow time.Duration `json:"recentWindow" koanf:"recentwindow"`

	// ResultTTL bounds how long pattern and wellbeing results stay cached.
	ResultTTL time.Duration `json:"resultTtl" koanf:"resultttl"`
}

// FraudConfig holds the fraud detector thresholds.
type FraudConfig struct {
	MinActivityDuration    time.Duration `json:"minActivityDuration" koanf:"minactivityduration"`
	RegularityMinIntervals int           `json:"regularityMinIntervals" koanf:"regularitymininterval"`
	RegularityWindow       int           `json:"regularityWindow" koanf:"regularitywindow"`
	RegularityCVThreshold  float64       `json:"regularityCvThreshold" koanf:"regularitycvthreshold"`
	MouseMinPoints         int           `json:"mouseMinPoints" koanf:"mouseminpoints"`
	MouseStraightnessMax   float64       `json:"mouseStraightnessMax" koanf:"mousestraightnessmax"`
	TypingMinIntervals     int           `json:"typingMinIntervals" koanf:"typingmininterval"`
	TypingCVThreshold      float64       `json:"typingCvThreshold" koanf:"typingcvthreshold"`
	TemporalMinSamples     int           `json:"temporalMinSamples" koanf:"temporalminsamples"`
	TypicalHourFraction    float64       `json:"typicalHourFraction" koanf:"typicalhourfraction"`
	RareHourFraction       float64       `json:"rareHourFraction" koanf:"rarehourfraction"`
	DeviceSharingUsers     int           `json:"deviceSharingUsers" koanf:"devicesharingusers"`
	ReviewThreshold        float64       `json:"reviewThreshold" koanf:"reviewthreshold"`
	BlockThreshold         float64       `json:"blockThreshold" koanf:"blockthreshold"`
}

// DiscoveryConfig holds the clustering parameters.
type DiscoveryConfig struct {
	Clusters int    `json:"clusters" koanf:"clusters"`
	Seed     uint64 `json:"seed" koanf:"seed"`
	Inits    int    `json:"inits" koanf:"inits"`
	MaxIter  int    `json:"maxIter" koanf:"maxiter"`
}

// ValidationConfig holds the pattern acceptance criteria.
type ValidationConfig struct {
	MinSampleSize        int     `json:"minSampleSize" koanf:"minsamplesize"`
	ConfidenceLevel      float64 `json:"confidenceLevel" koanf:"confidencelevel"`
	StabilityMin         float64 `json:"stabilityMin" koanf:"stabilitymin"`
	DistinctivenessMin   float64 `json:"distinctivenessMin" koanf:"distinctivenessmin"`
	PredictiveMin        float64 `json:"predictiveMin" koanf:"predictivemin"`
	ReferenceDimension   string  `json:"referenceDimension" koanf:"referencedimension"`
	PredictiveMinEvents  int     `json:"predictiveMinEvents" koanf:"predictiveminevents"`
	PredictiveWindowSize int     `json:"predictiveWindowSize" koanf:"predictivewindowsize"`
}

// WellbeingConfig holds the overuse thresholds.
type WellbeingConfig struct {
	MaxDailyHours float64 `json:"maxDailyHours" koanf:"maxdailyhours"`
	WindowDays    int     `json:"windowDays" koanf:"windowdays"`
}

// SchedulerConfig controls the periodic batch jobs.
type SchedulerConfig struct {
	Enabled           bool          `json:"enabled" koanf:"enabled"`
	Tenants           []string      `json:"tenants" koanf:"tenants"`
	DiscoveryInterval time.Duration `json:"discoveryInterval" koanf:"discoveryinterval"`
	WellbeingInterval time.Duration `json:"wellbeingInterval" koanf:"wellbeinginterval"`
	SweepConcurrency  int           `json:"sweepConcurrency" koanf:"sweepconcurrency"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process LRU
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultAnalyticsConfig returns the stock analytics thresholds.
func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		Fraud: FraudConfig{
			MinActivityDuration:    time.Second,
			RegularityMinIntervals: 10,
			RegularityWindow:       20,
			RegularityCVThreshold:  0.15,
			MouseMinPoints:         5,
			MouseStraightnessMax:   0.95,
			TypingMinIntervals:     10,
			TypingCVThreshold:      0.2,
			TemporalMinSamples:     20,
			TypicalHourFraction:    0.10,
			RareHourFraction:       0.05,
			DeviceSharingUsers:     3,
			ReviewThreshold:        0.5,
			BlockThreshold:         0.8,
		},
		Discovery: DiscoveryConfig{
			Clusters: 5,
			Seed:     42,
			Inits:    10,
			MaxIter:  300,
		},
		Validation: ValidationConfig{
			MinSampleSize:        30,
			ConfidenceLevel:      0.95,
			StabilityMin:         0.7,
			DistinctivenessMin:   0.8,
			PredictiveMin:        0.6,
			ReferenceDimension:   "creativity",
			PredictiveMinEvents:  10,
			PredictiveWindowSize: 5,
		},
		Wellbeing: WellbeingConfig{
			MaxDailyHours: 4.0,
			WindowDays:    7,
		},
		RecentWindow: time.Hour,
		ResultTTL:    10 * time.Minute,
	}
}

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
			SQLitePath: "./lsp.db",
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
		Analytics: DefaultAnalyticsConfig(),
		Scheduler: SchedulerConfig{
			Enabled:           false,
			DiscoveryInterval: time.Hour,
			WellbeingInterval: 6 * time.Hour,
			SweepConcurrency:  8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "lsp-analytics",
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
		PostgresDB:   "lsp",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Scheduler.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
