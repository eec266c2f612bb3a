package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentryline/brandscan/internal/domain/events"
	"github.com/sentryline/brandscan/pkg/common/logger"
)

const (
	sessionTimeout    = 20 * time.Second
	heartbeatInterval = 6 * time.Second

	connectInitialInterval = 5 * time.Second
	connectMaxElapsed      = 5 * time.Minute
)

// ClientConfig identifies the service to the brokers. One client backs both
// the producing and consuming halves of the bus.
type ClientConfig struct {
	Brokers  []string
	GroupID  string
	ClientID string
}

// NewClient dials the brokers with the settings the bus depends on: hashed
// partitioning with full acks on the producer side, and manual offset
// commits on the consumer side so an envelope is only committed once its
// handler acked it.
func NewClient(cfg *ClientConfig) (sarama.Client, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Version = sarama.V3_6_0_0

	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Offsets.AutoCommit.Enable = false
	sc.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	sc.Consumer.Group.Session.Timeout = sessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = heartbeatInterval
	sc.Consumer.Group.Member.UserData = []byte(cfg.ClientID)

	return sarama.NewClient(cfg.Brokers, sc)
}

// ConnectEventBus builds the bus on top of client, retrying with exponential
// backoff while the brokers come up. Useful when the service and Kafka start
// together.
func ConnectEventBus(
	cfg *Config,
	client sarama.Client,
	log *logger.Logger,
	metrics EventBusMetrics,
	tracer trace.Tracer,
) (events.EventBus, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = connectInitialInterval
	policy.MaxElapsedTime = connectMaxElapsed

	var bus events.EventBus
	connect := func() error {
		producer, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			return fmt.Errorf("creating producer: %w", err)
		}

		group, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, client)
		if err != nil {
			producer.Close()
			return fmt.Errorf("creating consumer group: %w", err)
		}

		bus, err = NewEventBus(producer, group, cfg, log, metrics, tracer)
		if err != nil {
			producer.Close()
			group.Close()
			return fmt.Errorf("creating event bus: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(connect, policy); err != nil {
		return nil, fmt.Errorf("failed to connect event bus after retries: %w", err)
	}
	return bus, nil
}
