package config

import (
	"fmt"
	"time"
)

// Default constructs a Config populated with the values a single-node
// deployment starts from. Loaded files override these field by field.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			DebugHost:       "localhost:6060",
			ReadTimeout:     Duration(5 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(20 * time.Second),
		},
		Postgres: PostgresConfig{MinConns: 2, MaxConns: 10},
		Queue: QueueConfig{
			GlobalConcurrency:  8,
			MaxQueueDepth:      256,
			SchedulerTick:      Duration(2 * time.Second),
			MetricsWindow:      Duration(time.Hour),
			DefaultRunEstimate: Duration(90 * time.Second),
			Tiers: map[string]TierConfig{
				"FREE":       {Weight: 1, MaxRunning: 2, PerUserLimit: 1},
				"BASIC":      {Weight: 2, MaxRunning: 4, PerUserLimit: 2},
				"PRO":        {Weight: 4, MaxRunning: 6, PerUserLimit: 3},
				"ENTERPRISE": {Weight: 8, MaxRunning: 8, PerUserLimit: 5},
			},
		},
		Scanner: ScannerConfig{
			ConfidenceFloor:      40,
			MaxResultsPerKeyword: 25,
			SearchRPS:            5,
			SearchBurst:          10,
			RunTimeout:           Duration(30 * time.Minute),
			Retention:            Duration(15 * time.Minute),
			AnalyzingThreshold:   60,
			VerifyingThreshold:   85,
			SaveRetryMaxElapsed:  Duration(10 * time.Second),
		},
		Intel:     IntelConfig{HTTPTimeout: Duration(15 * time.Second)},
		Publisher: PublisherConfig{SubscriberBuffer: 16},
		Events: EventsConfig{
			Transport: "memory",
			Kafka: KafkaConfig{
				JobLifecycleTopic:  "scan-job-lifecycle",
				ScanLifecycleTopic: "scan-run-lifecycle",
				ScanProgressTopic:  "scan-run-progress",
				DetectionsTopic:    "scan-detections",
				GroupID:            "brandscan-server",
				ClientID:           "brandscan-server",
			},
		},
		Telemetry: TelemetryConfig{Probability: 0.05},
	}
}

// Validate rejects configurations the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.Queue.GlobalConcurrency <= 0 {
		return fmt.Errorf("queue.global_concurrency must be positive, got %d", c.Queue.GlobalConcurrency)
	}
	if c.Queue.MaxQueueDepth <= 0 {
		return fmt.Errorf("queue.max_queue_depth must be positive, got %d", c.Queue.MaxQueueDepth)
	}
	if len(c.Queue.Tiers) == 0 {
		return fmt.Errorf("queue.tiers must define at least one plan tier")
	}
	for name, tier := range c.Queue.Tiers {
		if tier.Weight <= 0 {
			return fmt.Errorf("queue.tiers.%s.weight must be positive, got %d", name, tier.Weight)
		}
		if tier.MaxRunning <= 0 {
			return fmt.Errorf("queue.tiers.%s.max_running must be positive, got %d", name, tier.MaxRunning)
		}
		if tier.PerUserLimit <= 0 {
			return fmt.Errorf("queue.tiers.%s.per_user_limit must be positive, got %d", name, tier.PerUserLimit)
		}
	}
	if c.Scanner.ConfidenceFloor < 0 || c.Scanner.ConfidenceFloor > 100 {
		return fmt.Errorf("scanner.confidence_floor must be within [0,100], got %d", c.Scanner.ConfidenceFloor)
	}
	if c.Scanner.AnalyzingThreshold <= 0 || c.Scanner.VerifyingThreshold >= 100 ||
		c.Scanner.AnalyzingThreshold >= c.Scanner.VerifyingThreshold {
		return fmt.Errorf("scanner phase thresholds must satisfy 0 < analyzing < verifying < 100, got %d/%d",
			c.Scanner.AnalyzingThreshold, c.Scanner.VerifyingThreshold)
	}
	switch c.Events.Transport {
	case "memory":
	case "kafka":
		if len(c.Events.Kafka.Brokers) == 0 {
			return fmt.Errorf("events.kafka.brokers required when transport is kafka")
		}
	default:
		return fmt.Errorf("events.transport must be memory or kafka, got %q", c.Events.Transport)
	}
	return nil
}
