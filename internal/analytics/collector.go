package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/kafka"
)

// Sink receives flushed batches.
type Sink interface {
	Deliver(ctx context.Context, batch []Event) error
}

// BatchPublisher is implemented by kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// KafkaSink publishes batches to the analytics topic, keyed by event kind.
type KafkaSink struct {
	publisher BatchPublisher
}

func NewKafkaSink(publisher BatchPublisher) *KafkaSink {
	return &KafkaSink{publisher: publisher}
}

func (s *KafkaSink) Deliver(ctx context.Context, batch []Event) error {
	events := make([]kafka.Event, len(batch))
	for i, e := range batch {
		events[i] = kafka.Event{Key: string(e.Kind()), Type: string(e.Kind()), Value: e}
	}
	return s.publisher.PublishBatch(ctx, events)
}

// LocalSink feeds an in-process Aggregator when Kafka is disabled.
type LocalSink struct {
	aggregator *Aggregator
}

func NewLocalSink(agg *Aggregator) *LocalSink {
	return &LocalSink{aggregator: agg}
}

func (s *LocalSink) Deliver(ctx context.Context, batch []Event) error {
	for _, e := range batch {
		s.aggregator.Record(e)
	}
	return nil
}

// Collector buffers events and flushes them to a Sink when the batch fills
// up or the flush interval passes, whichever comes first. Track never
// blocks the request path.
type Collector struct {
	sink          Sink
	mu            sync.Mutex
	buffer        []Event
	batchSize     int
	flushInterval time.Duration
	flushMu       sync.Mutex
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(sink Sink, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		sink:          sink,
		buffer:        make([]Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop. It returns immediately; the
// loop exits with a final flush once ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.Flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track buffers an event. A full batch triggers an asynchronous flush.
func (c *Collector) Track(event Event) {
	c.mu.Lock()
	c.buffer = append(c.buffer, event)
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if full {
		go c.Flush(context.Background())
	}
}

// Close waits for the flush loop started by Start to finish.
func (c *Collector) Close() {
	<-c.done
}

func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Flush delivers the buffered events. A failed batch is put back in front
// of newer events, bounded to three batches.
func (c *Collector) Flush(ctx context.Context) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.sink.Deliver(ctx, batch); err != nil {
		c.logger.Error("analytics flush failed", "batch_size", len(batch), "error", err)
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if limit := c.batchSize * 3; len(c.buffer) > limit {
			dropped := len(c.buffer) - limit
			c.buffer = c.buffer[:limit]
			c.logger.Warn("analytics buffer overflow, events dropped", "dropped", dropped)
		}
		c.mu.Unlock()
		return
	}
	c.logger.Debug("analytics batch flushed", "events", len(batch))
}
