package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/okian/scoreboard/pkg/logger"
)

const queueFullRetryDelay = time.Second

// Msg is an outgoing message.
type Msg struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Producer publishes messages synchronously: Produce waits for the delivery
// report. Close must be called to flush and stop the event monitor.
type Producer struct {
	producer   *ckafka.Producer
	logger     logger.Logger
	errCh      chan error
	closedCh   chan struct{}
	eventsDone chan struct{}
	once       sync.Once
}

// NewProducer connects an idempotent producer to the brokers in cfg.
func NewProducer(ctx context.Context, cfg Config, log logger.Logger) (*Producer, error) {
	p, err := ckafka.NewProducer(&ckafka.ConfigMap{
		"bootstrap.servers":  cfg.BootstrapServers,
		"acks":               "all",
		"linger.ms":          5,
		"compression.type":   "lz4",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}

	q := &Producer{
		producer:   p,
		logger:     log,
		errCh:      make(chan error, 1),
		closedCh:   make(chan struct{}),
		eventsDone: make(chan struct{}),
	}
	go q.monitorEvents(ctx)
	return q, nil
}

// Produce blocks until msg is acknowledged or ctx is done. The message may
// still be delivered after a context error.
func (q *Producer) Produce(ctx context.Context, msg Msg) error {
	deliveryCh := make(chan ckafka.Event, 1)

	km := &ckafka.Message{
		TopicPartition: ckafka.TopicPartition{Topic: &msg.Topic, Partition: ckafka.PartitionAny},
		Key:            msg.Key,
		Value:          msg.Value,
	}
	for k, v := range msg.Headers {
		km.Headers = append(km.Headers, ckafka.Header{Key: k, Value: []byte(v)})
	}

	for {
		err := q.producer.Produce(km, deliveryCh)
		if err == nil {
			break
		}
		var kerr ckafka.Error
		if !errors.As(err, &kerr) || kerr.Code() != ckafka.ErrQueueFull {
			return fmt.Errorf("produce to %s: %w", msg.Topic, err)
		}
		q.logger.Warn(ctx, "producer queue full, retrying", logger.Duration("delay", queueFullRetryDelay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(queueFullRetryDelay):
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-deliveryCh:
		m, ok := ev.(*ckafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %T", ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery to %s failed: %w", msg.Topic, m.TopicPartition.Error)
		}
		return nil
	}
}

// Errors delivers at most one fatal producer error.
func (q *Producer) Errors() <-chan error { return q.errCh }

// Close flushes pending messages for up to timeout and releases the client.
// Calling it more than once is a no-op.
func (q *Producer) Close(timeout time.Duration) {
	q.once.Do(func() {
		close(q.closedCh)
		<-q.eventsDone
		if pending := q.producer.Flush(int(timeout.Milliseconds())); pending > 0 {
			q.logger.Warn(context.Background(), "producer flush incomplete", logger.Int("pending", pending))
		}
		q.producer.Close()
	})
}

func (q *Producer) monitorEvents(ctx context.Context) {
	defer close(q.eventsDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closedCh:
			return
		case ev, ok := <-q.producer.Events():
			if !ok {
				return
			}
			e, isErr := ev.(ckafka.Error)
			if !isErr {
				continue
			}
			if e.IsFatal() || e.Code() == ckafka.ErrAllBrokersDown {
				select {
				case q.errCh <- fmt.Errorf("kafka producer: %w", e):
				default:
				}
				return
			}
			q.logger.Warn(ctx, "kafka producer error", logger.Error(e))
		}
	}
}
