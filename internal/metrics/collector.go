package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventAttemptCompleted EventType = "attempt_completed"
	EventRetryScheduled   EventType = "retry_scheduled"
	EventCallCompleted    EventType = "call_completed"
	EventForwardCompleted EventType = "forward_completed"
	EventHealthChanged    EventType = "health_changed"
)

// MetricEvent is emitted by the executor, the forwarder and the health checker.
// Target is the endpoint path for client calls and the upstream URL for the proxy.
type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Target     string
	Attempt    int
	Outcome    string
	Duration   time.Duration
	StatusCode int
	Success    bool
	Healthy    bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit queues an event without blocking. Events are dropped when the buffer is full.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("Metrics buffer full, dropping event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.Run(ctx)
}

// Run processes events until ctx is done, then drains what is left.
func (c *Collector) Run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventAttemptCompleted:
		c.metrics.RecordAttempt(event.Target, event.Duration, event.StatusCode)

	case EventRetryScheduled:
		c.metrics.RecordRetry(event.Target)

	case EventCallCompleted:
		c.metrics.RecordCall(event.Target, event.Success)

	case EventForwardCompleted:
		c.metrics.RecordCall(event.Target, event.Success)
		c.metrics.RecordAttempt(event.Target, event.Duration, event.StatusCode)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Target, event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(component string) Snapshot {
	return c.metrics.Snapshot(component)
}
