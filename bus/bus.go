// Package bus provides the per-agent message bus client on Kafka.
//
// Each agent owns exactly one topic, named from its identifier, and consumes
// only from it with a single logical consumer. Publishing is fire-and-forget
// with an asynchronous delivery report used only for logging; the consume
// loop polls with a bounded timeout and retry count, and any consumer-side
// error triggers a full reconnect of both consumer and producer rather than
// fine-grained recovery.
package bus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/swarmflow/swarmflow/internal/metrics"
	"github.com/swarmflow/swarmflow/types"
)

// Config holds the Kafka connection settings for an agent's bus client.
type Config struct {
	Brokers []string `yaml:"brokers" json:"brokers"`
	GroupID string   `yaml:"group_id" json:"group_id"`

	// PollTimeout bounds a single fetch attempt.
	PollTimeout time.Duration `yaml:"poll_timeout" json:"poll_timeout"`
	// PollRetries is how many fetch attempts are made before the loop
	// gives up on "no message" and starts over.
	PollRetries int `yaml:"poll_retries" json:"poll_retries"`
	// PollDelay is the wait between fetch attempts.
	PollDelay time.Duration `yaml:"poll_delay" json:"poll_delay"`
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() Config {
	return Config{
		Brokers:     []string{"localhost:9092"},
		GroupID:     "node-1-group",
		PollTimeout: 1 * time.Second,
		PollRetries: 15,
		PollDelay:   3 * time.Second,
	}
}

// errNoMessage reports an exhausted poll cycle. It is not a failure: the
// consume loop just starts a fresh cycle.
var errNoMessage = errors.New("no message available")

// consumer is the slice of the kafka.Reader surface the consume loop needs.
// Narrowed to an interface so the loop is testable without a broker.
type consumer interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// producer is the slice of the kafka.Writer surface publish needs.
type producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler receives the raw payload of a consumed message. The message is
// committed only after the handler returns.
type Handler func(ctx context.Context, payload []byte)

// Client is a per-agent bus client: one owned topic, one consumer, one
// producer.
type Client struct {
	agentID string
	topic   string
	config  Config
	logger  *zap.Logger
	metrics *metrics.Collector

	reader consumer
	writer producer

	// seams for tests
	newConsumer func() consumer
	newProducer func() producer
	ensureTopic func(ctx context.Context, topic string) error
}

// New creates a bus client for the given agent. No connection is made until
// Connect.
func New(agentID string, config Config, logger *zap.Logger, collector *metrics.Collector) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		agentID: agentID,
		topic:   types.TopicName(agentID),
		config:  config,
		metrics: collector,
		logger:  logger.With(zap.String("component", "bus"), zap.String("agent", agentID)),
	}
	c.newConsumer = c.kafkaConsumer
	c.newProducer = c.kafkaProducer
	c.ensureTopic = c.kafkaEnsureTopic
	return c
}

// Connect ensures the agent's topic exists and creates the consumer and
// producer. Safe to call again after teardown.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.ensureTopic(ctx, c.topic); err != nil {
		return fmt.Errorf("ensure topic %q: %w", c.topic, err)
	}
	c.reader = c.newConsumer()
	c.writer = c.newProducer()
	c.logger.Info("bus client connected", zap.String("topic", c.topic))
	return nil
}

// Publish sends an envelope to the target agent's topic. Delivery is
// asynchronous; failures surface only in the delivery report and are not
// retried at this layer.
func (c *Client) Publish(ctx context.Context, targetIdentifier string, payload []byte) error {
	if c.writer == nil {
		return errors.New("bus producer is not initialized")
	}
	topic := types.TopicName(targetIdentifier)
	c.logger.Info("publishing message",
		zap.String("target_topic", topic),
	)
	if err := c.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Value: payload}); err != nil {
		// Async mode only errors on unserializable input or a closed writer.
		return fmt.Errorf("publish to %q: %w", topic, err)
	}
	if c.metrics != nil {
		c.metrics.MessagesPublished.WithLabelValues(c.agentID, topic).Inc()
	}
	return nil
}

// Run consumes the agent's topic until the context is cancelled, handing
// each payload to handler strictly in arrival order. A message is committed
// only after the handler returns. Consumer errors tear down and recreate the
// whole client; the loop itself retries indefinitely.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	if c.reader == nil {
		return errors.New("bus consumer is not initialized")
	}
	for {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("shutting down consume loop")
			return err
		}

		msg, err := c.poll(ctx)
		switch {
		case errors.Is(err, errNoMessage):
			c.logger.Debug("no message while consuming")
			continue
		case errors.Is(err, context.Canceled):
			continue
		case err != nil:
			c.logger.Error("polling error, reconnecting", zap.Error(err))
			c.reconnect(ctx)
			continue
		}

		if c.metrics != nil {
			c.metrics.MessagesConsumed.WithLabelValues(c.agentID).Inc()
		}
		handler(ctx, msg.Value)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("commit error, reconnecting", zap.Error(err))
			c.reconnect(ctx)
		}
	}
}

// poll attempts up to PollRetries bounded fetches, waiting PollDelay between
// attempts. It returns errNoMessage after exhausting the retries, or the
// first real consumer error.
func (c *Client) poll(ctx context.Context) (kafka.Message, error) {
	for attempt := 0; attempt < c.config.PollRetries; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, c.config.PollTimeout)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()

		if err == nil {
			return msg, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return kafka.Message{}, ctxErr
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return kafka.Message{}, err
		}

		if attempt < c.config.PollRetries-1 {
			c.logger.Debug("retrying poll",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", c.config.PollDelay),
			)
			select {
			case <-ctx.Done():
				return kafka.Message{}, ctx.Err()
			case <-time.After(c.config.PollDelay):
			}
		}
	}
	return kafka.Message{}, errNoMessage
}

// reconnect tears down consumer and producer and rebuilds both, re-ensuring
// the topic. It keeps trying until it succeeds or the context is cancelled.
func (c *Client) reconnect(ctx context.Context) {
	c.teardown()
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.Connect(ctx); err == nil {
			if c.metrics != nil {
				c.metrics.BusReconnects.WithLabelValues(c.agentID).Inc()
			}
			return
		} else {
			c.logger.Error("reconnect failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.config.PollDelay):
		}
	}
}

func (c *Client) teardown() {
	if c.reader != nil {
		_ = c.reader.Close()
		c.reader = nil
	}
	if c.writer != nil {
		_ = c.writer.Close()
		c.writer = nil
	}
}

// Close releases the consumer and producer.
func (c *Client) Close() error {
	c.teardown()
	return nil
}

func (c *Client) kafkaConsumer() consumer {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.config.Brokers,
		GroupID:     c.config.GroupID,
		Topic:       c.topic,
		StartOffset: kafka.FirstOffset,
		MaxWait:     c.config.PollTimeout,
	})
}

func (c *Client) kafkaProducer() producer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(c.config.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion:             c.deliveryReport,
	}
}

// deliveryReport is the async publish callback. Logging only: a lost publish
// is not retried.
func (c *Client) deliveryReport(msgs []kafka.Message, err error) {
	for _, msg := range msgs {
		if err != nil {
			c.logger.Error("message delivery failed",
				zap.String("topic", msg.Topic),
				zap.Error(err),
			)
		} else {
			c.logger.Debug("message delivered",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
			)
		}
	}
}

// kafkaEnsureTopic creates the topic when it does not exist yet: one
// partition, replication factor 1. Existing topics are left untouched.
func (c *Client) kafkaEnsureTopic(ctx context.Context, topic string) error {
	conn, err := kafka.DialContext(ctx, "tcp", c.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	if partitions, err := conn.ReadPartitions(topic); err == nil && len(partitions) > 0 {
		c.logger.Info("topic already exists", zap.String("topic", topic))
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	c.logger.Info("topic created", zap.String("topic", topic))
	return nil
}
