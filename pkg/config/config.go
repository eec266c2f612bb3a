package config

// Config represents the top-level service configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Queue     QueueConfig     `yaml:"queue"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Intel     IntelConfig     `yaml:"intel"`
	Publisher PublisherConfig `yaml:"publisher"`
	Events    EventsConfig    `yaml:"events"`
	Risk      RiskConfig      `yaml:"risk"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// APIConfig holds the HTTP listener settings.
type APIConfig struct {
	Host            string   `yaml:"host"`
	Port            string   `yaml:"port"`
	DebugHost       string   `yaml:"debug_host"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// PostgresConfig holds the connection pool settings. An empty DSN disables
// durable storage and the service falls back to in-memory stores.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MinConns int32  `yaml:"min_conns"`
	MaxConns int32  `yaml:"max_conns"`
}

// TierConfig describes one plan tier's scheduling parameters.
type TierConfig struct {
	// Weight is the tier's share in weighted round-robin admission.
	Weight int `yaml:"weight"`
	// MaxRunning caps how many jobs of this tier run simultaneously.
	MaxRunning int `yaml:"max_running"`
	// PerUserLimit caps one user's live (queued or running) jobs.
	PerUserLimit int `yaml:"per_user_limit"`
}

// QueueConfig holds the admission queue settings.
type QueueConfig struct {
	GlobalConcurrency  int                   `yaml:"global_concurrency"`
	MaxQueueDepth      int                   `yaml:"max_queue_depth"`
	SchedulerTick      Duration              `yaml:"scheduler_tick"`
	MetricsWindow      Duration              `yaml:"metrics_window"`
	DefaultRunEstimate Duration              `yaml:"default_run_estimate"`
	Tiers              map[string]TierConfig `yaml:"tiers"`
}

// ScannerConfig holds the orchestrator's execution settings.
type ScannerConfig struct {
	ConfidenceFloor      int      `yaml:"confidence_floor"`
	MaxResultsPerKeyword int      `yaml:"max_results_per_keyword"`
	ExcludeDomains       []string `yaml:"exclude_domains"`
	SearchRPS            float64  `yaml:"search_rps"`
	SearchBurst          int      `yaml:"search_burst"`
	RunTimeout           Duration `yaml:"run_timeout"`
	Retention            Duration `yaml:"retention"`
	AnalyzingThreshold   int      `yaml:"analyzing_threshold"`
	VerifyingThreshold   int      `yaml:"verifying_threshold"`
	SaveRetryMaxElapsed  Duration `yaml:"save_retry_max_elapsed"`
}

// IntelConfig points the run pipeline at its external collaborators. Empty
// base URLs select the built-in dev stand-ins, so a bare config still yields
// a fully runnable service.
type IntelConfig struct {
	// ProfilesBaseURL is the brand profile service resolving keyword plans.
	ProfilesBaseURL string `yaml:"profiles_base_url"`
	// ProfilesFixture is a yaml fixture used instead of the profile service.
	ProfilesFixture string `yaml:"profiles_fixture"`
	// SearchBaseURL is the multi-engine search service.
	SearchBaseURL string `yaml:"search_base_url"`
	// HTTPTimeout bounds one call to either service.
	HTTPTimeout Duration `yaml:"http_timeout"`
}

// PublisherConfig holds the progress fan-out settings.
type PublisherConfig struct {
	// SubscriberBuffer is the per-subscriber channel depth before the
	// oldest snapshot is dropped.
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// EventsConfig selects the domain event transport.
type EventsConfig struct {
	// Transport is either "memory" or "kafka".
	Transport string      `yaml:"transport"`
	Kafka     KafkaConfig `yaml:"kafka"`
}

// KafkaConfig holds broker and topic settings for the kafka event
// transport. Events are routed onto four topics by lifecycle concern.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`

	JobLifecycleTopic  string `yaml:"job_lifecycle_topic"`
	ScanLifecycleTopic string `yaml:"scan_lifecycle_topic"`
	ScanProgressTopic  string `yaml:"scan_progress_topic"`
	DetectionsTopic    string `yaml:"detections_topic"`

	GroupID  string `yaml:"group_id"`
	ClientID string `yaml:"client_id"`
}

// RiskConfig points at the risk policy rule file.
type RiskConfig struct {
	PolicyFile string `yaml:"policy_file"`
}

// TelemetryConfig holds the OTLP exporter settings.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Probability float64 `yaml:"probability"`
}
