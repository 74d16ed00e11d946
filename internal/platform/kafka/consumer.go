package kafka

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"
)

// attemptHeader counts deliveries of one logical event across republishes.
const attemptHeader = "dirsync-attempt"

// Handler processes one record. A retryable error requeues the record (up to
// the attempt limit); any other error drops it after logging.
type Handler func(ctx context.Context, record *kgo.Record) error

// EventObserver counts consumed events. Result is one of ok, retried,
// dropped.
type EventObserver interface {
	EventHandled(topic, result string)
}

// ConsumerConfig tunes redelivery.
type ConsumerConfig struct {
	// MaxAttempts bounds total deliveries of one logical event. Zero
	// means 5.
	MaxAttempts int
	// Retryable classifies handler errors. Nil means nothing is retried.
	Retryable func(error) bool
}

// Consumer runs the poll loop. Failed-but-retryable records are requeued by
// republishing to the same topic with an incremented attempt header, and the
// original is committed either way, so one poisoned event cannot wedge a
// partition.
type Consumer struct {
	client    *kgo.Client
	handler   Handler
	cfg       ConsumerConfig
	logger    *slog.Logger
	observer  EventObserver
	commit    func(ctx context.Context, record *kgo.Record) error
	republish func(ctx context.Context, record *kgo.Record) error
}

type ConsumerOption func(*Consumer)

func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = logger }
}

func WithConsumerObserver(observer EventObserver) ConsumerOption {
	return func(c *Consumer) { c.observer = observer }
}

func NewConsumer(client *kgo.Client, handler Handler, cfg ConsumerConfig, opts ...ConsumerOption) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	c := &Consumer{
		client:  client,
		handler: handler,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	c.commit = func(ctx context.Context, record *kgo.Record) error {
		return client.CommitRecords(ctx, record)
	}
	c.republish = func(ctx context.Context, record *kgo.Record) error {
		return client.ProduceSync(ctx, record).FirstErr()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run polls until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("fetch error", "topic", topic, "partition", partition, "error", err)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			c.process(ctx, record)
		})
	}
}

func (c *Consumer) process(ctx context.Context, record *kgo.Record) {
	result := "ok"
	if err := c.handler(ctx, record); err != nil {
		attempt := recordAttempt(record)
		if c.cfg.Retryable != nil && c.cfg.Retryable(err) && attempt+1 < c.cfg.MaxAttempts {
			if repubErr := c.republish(ctx, requeued(record, attempt+1)); repubErr != nil {
				// Leave the record uncommitted; the group will
				// redeliver it.
				c.logger.Error("requeue failed", "topic", record.Topic, "error", repubErr)
				return
			}
			result = "retried"
			c.logger.Warn("event requeued",
				"topic", record.Topic,
				"key", string(record.Key),
				"attempt", attempt+1,
				"error", err,
			)
		} else {
			result = "dropped"
			c.logger.Error("event dropped",
				"topic", record.Topic,
				"key", string(record.Key),
				"attempt", attempt,
				"error", err,
			)
		}
	}

	if err := c.commit(ctx, record); err != nil {
		c.logger.Error("commit failed", "topic", record.Topic, "error", err)
		return
	}
	if c.observer != nil {
		c.observer.EventHandled(record.Topic, result)
	}
}

func recordAttempt(record *kgo.Record) int {
	for _, header := range record.Headers {
		if header.Key == attemptHeader {
			if n, err := strconv.Atoi(string(header.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}

// requeued copies the record payload onto a fresh record carrying the next
// attempt count.
func requeued(record *kgo.Record, attempt int) *kgo.Record {
	headers := make([]kgo.RecordHeader, 0, len(record.Headers))
	for _, header := range record.Headers {
		if header.Key != attemptHeader {
			headers = append(headers, header)
		}
	}
	headers = append(headers, kgo.RecordHeader{
		Key:   attemptHeader,
		Value: []byte(strconv.Itoa(attempt)),
	})
	return &kgo.Record{
		Topic:   record.Topic,
		Key:     record.Key,
		Value:   record.Value,
		Headers: headers,
	}
}
