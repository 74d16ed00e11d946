package kafka

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

var errRetryable = errors.New("try again")

func newTestConsumer(handler Handler, committed, republished *[]*kgo.Record) *Consumer {
	c := NewConsumer(nil, handler, ConsumerConfig{
		MaxAttempts: 3,
		Retryable:   func(err error) bool { return errors.Is(err, errRetryable) },
	})
	c.commit = func(_ context.Context, record *kgo.Record) error {
		*committed = append(*committed, record)
		return nil
	}
	c.republish = func(_ context.Context, record *kgo.Record) error {
		*republished = append(*republished, record)
		return nil
	}
	return c
}

func TestProcessCommitsOnSuccess(t *testing.T) {
	var committed, republished []*kgo.Record
	c := newTestConsumer(func(context.Context, *kgo.Record) error { return nil }, &committed, &republished)

	c.process(context.Background(), &kgo.Record{Topic: "person-events", Key: []byte("p1")})

	assert.Len(t, committed, 1)
	assert.Empty(t, republished)
}

func TestProcessRequeuesRetryableFailure(t *testing.T) {
	var committed, republished []*kgo.Record
	c := newTestConsumer(func(context.Context, *kgo.Record) error { return errRetryable }, &committed, &republished)

	c.process(context.Background(), &kgo.Record{Topic: "person-events", Key: []byte("p1"), Value: []byte("{}")})

	require.Len(t, republished, 1)
	assert.Equal(t, "person-events", republished[0].Topic)
	assert.Equal(t, []byte("{}"), republished[0].Value)
	assert.Equal(t, 1, recordAttempt(republished[0]))
	assert.Len(t, committed, 1, "the original must be committed after requeue")
}

func TestProcessDropsAfterMaxAttempts(t *testing.T) {
	var committed, republished []*kgo.Record
	c := newTestConsumer(func(context.Context, *kgo.Record) error { return errRetryable }, &committed, &republished)

	record := &kgo.Record{
		Topic:   "person-events",
		Key:     []byte("p1"),
		Headers: []kgo.RecordHeader{{Key: attemptHeader, Value: []byte(strconv.Itoa(2))}},
	}
	c.process(context.Background(), record)

	assert.Empty(t, republished)
	assert.Len(t, committed, 1)
}

func TestProcessDropsTerminalFailure(t *testing.T) {
	var committed, republished []*kgo.Record
	c := newTestConsumer(func(context.Context, *kgo.Record) error { return errors.New("bad payload") }, &committed, &republished)

	c.process(context.Background(), &kgo.Record{Topic: "entry-events"})

	assert.Empty(t, republished)
	assert.Len(t, committed, 1)
}

func TestProcessLeavesUncommittedWhenRequeueFails(t *testing.T) {
	var committed []*kgo.Record
	c := NewConsumer(nil, func(context.Context, *kgo.Record) error { return errRetryable }, ConsumerConfig{
		MaxAttempts: 3,
		Retryable:   func(error) bool { return true },
	})
	c.commit = func(_ context.Context, record *kgo.Record) error {
		committed = append(committed, record)
		return nil
	}
	c.republish = func(context.Context, *kgo.Record) error { return errors.New("broker down") }

	c.process(context.Background(), &kgo.Record{Topic: "person-events"})

	assert.Empty(t, committed)
}
