// Package kafka consumes score records from a Kafka topic and feeds them to
// the ingestion pipeline. Messages are processed concurrently, but a
// partition's offset is stored only once every earlier message on it has been
// processed or dead-lettered, so delivery is at least once; replays are
// harmless because ingestion keeps the maximum score.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"golang.org/x/sync/semaphore"

	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

// Consumer message results reported to metrics.
const (
	ResultProcessed    = "processed"
	ResultDeadLettered = "dead_lettered"
	ResultDropped      = "dropped"
	ResultRetry        = "retry"
)

const errorHeader = "x-error"

type offsetStore interface {
	StoreOffsets(offsets []ckafka.TopicPartition) ([]ckafka.TopicPartition, error)
}

type deadLetters interface {
	Produce(ctx context.Context, msg Msg) error
}

// Consumer polls one topic and processes messages with bounded concurrency.
type Consumer struct {
	cfg       Config
	consumer  *ckafka.Consumer
	offsets   offsetStore
	window    *offsetWindow
	storeMu   sync.Mutex // keeps stored positions increasing
	producer  *Producer
	dlq       deadLetters
	processor Processor
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
	errCh     chan error
	logger    logger.Logger
}

// NewConsumer connects to the brokers in cfg. A DLQ producer is created only
// when cfg.DLQTopic is set.
func NewConsumer(ctx context.Context, cfg Config, proc Processor, opts ...Option) (*Consumer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kc, err := ckafka.NewConsumer(&ckafka.ConfigMap{
		"bootstrap.servers":             cfg.BootstrapServers,
		"group.id":                      cfg.GroupID,
		"auto.offset.reset":             cfg.AutoOffsetReset,
		"enable.auto.commit":            true,
		"enable.auto.offset.store":      false,
		"session.timeout.ms":            int(cfg.SessionTimeout.Milliseconds()),
		"partition.assignment.strategy": "roundrobin",
		"go.logs.channel.enable":        cfg.EnableLogs,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	c := newConsumer(cfg, proc, kc, nil, opts...)
	c.consumer = kc

	if cfg.DLQTopic != "" {
		p, err := NewProducer(ctx, cfg, c.logger.Named("dlq"))
		if err != nil {
			_ = kc.Close()
			return nil, err
		}
		c.producer = p
		c.dlq = p
	}
	return c, nil
}

func newConsumer(cfg Config, proc Processor, offsets offsetStore, dlq deadLetters, opts ...Option) *Consumer {
	c := &Consumer{
		cfg:       cfg,
		offsets:   offsets,
		window:    newOffsetWindow(),
		dlq:       dlq,
		processor: proc,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrency),
		errCh:     make(chan error, 1),
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run subscribes and polls until ctx is done or a fatal error occurs. It
// waits for in-flight messages before closing the client.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.consumer.SubscribeTopics([]string{c.cfg.Topic}, c.rebalance); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.Topic, err)
	}
	c.logger.Info(ctx, "kafka consumer started",
		logger.String("topic", c.cfg.Topic),
		logger.String("group_id", c.cfg.GroupID),
		logger.Int64("max_concurrency", c.cfg.MaxConcurrency))

	if c.cfg.EnableLogs {
		go c.printClientLogs(ctx)
	}

	// In-flight work outlives shutdown so a started ingestion can finish.
	work := context.WithoutCancel(ctx)

	runErr := c.poll(ctx, work)
	c.wg.Wait()

	var closeErr error
	if c.producer != nil {
		c.producer.Close(c.cfg.FlushTimeout)
	}
	if err := c.consumer.Close(); err != nil {
		closeErr = fmt.Errorf("close kafka consumer: %w", err)
	}
	c.logger.Info(ctx, "kafka consumer stopped")
	return errors.Join(runErr, closeErr)
}

func (c *Consumer) poll(ctx, work context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-c.errCh:
			return err
		case err := <-c.producerErrors():
			return err
		default:
		}

		switch ev := c.consumer.Poll(pollTimeoutMs).(type) {
		case nil:
		case *ckafka.Message:
			if ev.TopicPartition.Error != nil {
				c.logger.Warn(ctx, "kafka message error", logger.Error(ev.TopicPartition.Error))
				continue
			}
			if err := c.dispatch(ctx, work, ev); err != nil {
				return nil
			}
		case ckafka.Error:
			if ev.IsFatal() {
				c.logger.Error(ctx, "fatal kafka error", logger.Error(ev))
				return fmt.Errorf("kafka consumer: %w", ev)
			}
			c.logger.Warn(ctx, "kafka error", logger.Error(ev))
		default:
			c.logger.Debug(ctx, "ignoring kafka event", logger.String("event", ev.String()))
		}
	}
}

// rebalance drops window state for revoked partitions; their uncommitted
// messages are redelivered to the new owner.
func (c *Consumer) rebalance(_ *ckafka.Consumer, ev ckafka.Event) error {
	switch e := ev.(type) {
	case ckafka.AssignedPartitions:
		c.logger.Info(context.Background(), "partitions assigned", logger.Int("count", len(e.Partitions)))
	case ckafka.RevokedPartitions:
		c.logger.Info(context.Background(), "partitions revoked", logger.Int("count", len(e.Partitions)))
		c.window.revoke(e.Partitions)
	}
	return nil
}

func (c *Consumer) producerErrors() <-chan error {
	if c.producer == nil {
		return nil
	}
	return c.producer.Errors()
}

// dispatch blocks while MaxConcurrency messages are in flight. It only fails
// when ctx is done.
func (c *Consumer) dispatch(ctx, work context.Context, msg *ckafka.Message) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if n := c.window.track(msg.TopicPartition); n > windowWarnThreshold {
		c.logger.Warn(ctx, "offset window growing; an earlier message has not completed",
			logger.Int("partition", int(msg.TopicPartition.Partition)), logger.Int("pending", n))
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.sem.Release(1)
		c.handle(work, msg)
	}()
	return nil
}

// handle processes msg and marks it complete unless the dead letter publish
// failed, in which case the consumer is stopped and the message is replayed
// after restart. A message left incomplete holds back the stored offset of
// every later message on its partition.
func (c *Consumer) handle(ctx context.Context, msg *ckafka.Message) {
	metrics.AddConsumerInFlight(1)
	defer metrics.AddConsumerInFlight(-1)

	result := ResultProcessed
	if err := c.processor.Process(ctx, msg); err != nil {
		result = c.deadLetter(ctx, msg, err)
	}
	metrics.RecordConsumerMessage(result)
	if result == ResultRetry {
		return
	}

	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	next, ok := c.window.complete(msg.TopicPartition)
	if !ok {
		return
	}
	if _, err := c.offsets.StoreOffsets([]ckafka.TopicPartition{next}); err != nil {
		c.logger.Warn(ctx, "store offset failed", logger.Error(err), logger.String("offset", next.Offset.String()))
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg *ckafka.Message, cause error) string {
	log := c.logger.With(logger.String("key", string(msg.Key)), logger.Error(cause))

	err := c.publishToDLQ(ctx, msg, cause)
	switch {
	case err == nil:
		log.Warn(ctx, "message sent to dlq", logger.String("dlq_topic", c.cfg.DLQTopic))
		return ResultDeadLettered
	case errors.Is(err, ErrDLQNotConfigured):
		log.Warn(ctx, "message dropped")
		return ResultDropped
	default:
		log.Error(ctx, "dlq publish failed", logger.String("dlq_error", err.Error()))
		select {
		case c.errCh <- fmt.Errorf("dlq publish: %w", err):
		default:
		}
		return ResultRetry
	}
}

func (c *Consumer) publishToDLQ(ctx context.Context, msg *ckafka.Message, cause error) error {
	if c.cfg.DLQTopic == "" || c.dlq == nil {
		return ErrDLQNotConfigured
	}
	headers := map[string]string{errorHeader: cause.Error()}
	if tp := msg.TopicPartition; tp.Topic != nil {
		headers["x-source-topic"] = *tp.Topic
		headers["x-source-offset"] = tp.Offset.String()
	}
	return c.dlq.Produce(ctx, Msg{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
}

func (c *Consumer) printClientLogs(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-c.consumer.Logs():
			if !ok {
				return
			}
			c.logger.Debug(ctx, entry.Message, logger.String("tag", entry.Tag), logger.Int("level", entry.Level))
		}
	}
}
