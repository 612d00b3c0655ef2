// Package consumer runs the durable JetStream pull loop that feeds the
// scoring pipeline. An event is acknowledged only after the pipeline has
// terminally handled it, so a crash mid-event leads to redelivery, never
// loss.
package consumer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/fraudhawk/internal/logging"
	"github.com/telhawk-systems/fraudhawk/internal/models"
	"github.com/telhawk-systems/fraudhawk/internal/stream"
)

// State is the consumer lifecycle phase.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Message is the slice of a stream message the loop needs.
type Message interface {
	Data() []byte
	Ack() error
	Nak() error
}

// Source yields batches of messages. An empty batch with a nil error means
// nothing arrived before the fetch wait expired.
type Source interface {
	Fetch(ctx context.Context, batch int) ([]Message, error)
}

// Processor terminally handles one event payload.
type Processor interface {
	Process(ctx context.Context, payload []byte) (*models.ScoredTransaction, error)
}

// Config holds consumer loop settings.
type Config struct {
	// Durable is the durable consumer name on the transaction stream.
	Durable string `mapstructure:"durable"`

	// BatchSize is the number of messages fetched per pull.
	BatchSize int `mapstructure:"batch_size"`

	// FetchWait bounds how long a pull blocks when the stream is idle.
	FetchWait time.Duration `mapstructure:"fetch_wait"`
}

// DefaultConfig returns sensible consumer defaults.
func DefaultConfig() Config {
	return Config{
		Durable:   "fraud-detector",
		BatchSize: 16,
		FetchWait: 2 * time.Second,
	}
}

// Consumer drives the fetch/process/ack loop.
type Consumer struct {
	source    Source
	processor Processor
	cfg       Config
	logger    *logging.Logger
	state     atomic.Int32
}

// New creates a consumer over an arbitrary message source.
func New(source Source, processor Processor, cfg Config, logger *logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = DefaultConfig().FetchWait
	}
	c := &Consumer{
		source:    source,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
	c.state.Store(int32(StateStarting))
	return c
}

// NewJetStream ensures the transaction stream and durable consumer exist and
// returns a consumer reading from them.
func NewJetStream(ctx context.Context, client *stream.Client, processor Processor, cfg Config, logger *logging.Logger) (*Consumer, error) {
	if _, err := client.CreateOrUpdateStream(ctx, stream.TransactionsStream); err != nil {
		return nil, err
	}

	durable, err := client.CreateOrUpdateConsumer(ctx, stream.TransactionsStream.Name,
		stream.DefaultConsumerConfig(cfg.Durable, stream.TransactionsStream.Subjects[0]))
	if err != nil {
		return nil, err
	}

	src := &jetStreamSource{consumer: durable, wait: cfg.FetchWait}
	return New(src, processor, cfg, logger), nil
}

// State returns the current lifecycle phase.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

// Run blocks, pulling and processing events until ctx is cancelled. On
// cancellation the loop finishes the event in hand, leaves the rest of the
// fetched batch unacknowledged for redelivery, and returns nil.
func (c *Consumer) Run(ctx context.Context) error {
	c.state.Store(int32(StateRunning))
	c.logger.Info("consumer running", "durable", c.cfg.Durable, "batch_size", c.cfg.BatchSize)
	defer c.state.Store(int32(StateStopped))

	for {
		if ctx.Err() != nil {
			c.drain()
			return nil
		}

		msgs, err := c.source.Fetch(ctx, c.cfg.BatchSize)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.drain()
				return nil
			}
			c.logger.Error("fetch failed", logging.Error(err))
			// Back off briefly so a down broker does not spin the loop.
			select {
			case <-ctx.Done():
				c.drain()
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for i, msg := range msgs {
			// Shutdown lands between events: everything not yet acked
			// redelivers to the next instance.
			if ctx.Err() != nil {
				c.drain()
				c.logger.Info("shutdown mid-batch", "unacked", len(msgs)-i)
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg Message) {
	_, err := c.processor.Process(ctx, msg.Data())
	if err != nil {
		c.logger.Error("event unhandled, leaving on stream", logging.Error(err))
		if nakErr := msg.Nak(); nakErr != nil {
			c.logger.Warn("nak failed", logging.Error(nakErr))
		}
		return
	}

	if ackErr := msg.Ack(); ackErr != nil {
		// The event is already persisted or dead-lettered; a failed ack
		// means a redelivery the idempotent upsert will absorb.
		c.logger.Warn("ack failed", logging.Error(ackErr))
	}
}

func (c *Consumer) drain() {
	c.state.Store(int32(StateDraining))
	c.logger.Info("consumer draining")
}

// jetStreamSource adapts a durable pull consumer to the Source interface.
type jetStreamSource struct {
	consumer jetstream.Consumer
	wait     time.Duration
}

func (s *jetStreamSource) Fetch(ctx context.Context, batch int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := s.consumer.Fetch(batch, jetstream.FetchMaxWait(s.wait))
	if err != nil {
		return nil, err
	}

	var msgs []Message
	for msg := range res.Messages() {
		msgs = append(msgs, jsMessage{msg})
	}
	if res.Error() != nil && len(msgs) == 0 {
		return nil, res.Error()
	}
	return msgs, nil
}

// jsMessage narrows jetstream.Msg to the loop's Message interface.
type jsMessage struct {
	msg jetstream.Msg
}

func (m jsMessage) Data() []byte { return m.msg.Data() }
func (m jsMessage) Ack() error   { return m.msg.Ack() }
func (m jsMessage) Nak() error   { return m.msg.Nak() }
