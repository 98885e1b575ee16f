package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyperdatalab/gateway/internal/metrics"
)

const (
	DefaultMaxRetries = 3
	DefaultTimeout    = 30 * time.Second
	DefaultRetryDelay = time.Second
)

// Config is the retry policy and target of an Executor.
type Config struct {
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
	RetryDelay time.Duration
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Option func(*Executor)

// WithHTTPClient replaces the HTTP client. Its transport is used as is; the
// per-attempt timeout is applied through the request context.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(sleep SleepFunc) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithCollector sends attempt and call events to a metrics collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(e *Executor) {
		e.collector = collector
	}
}

// Executor performs requests against one base URL. It holds no per-call state
// and is safe for concurrent use.
type Executor struct {
	baseURL    string
	maxRetries int
	timeout    time.Duration
	retryDelay time.Duration
	client     *http.Client
	sleep      SleepFunc
	logger     *slog.Logger
	collector  *metrics.Collector
}

// New creates an Executor. Zero values in cfg fall back to the defaults, except
// MaxRetries where zero means a single attempt.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.Timeout,
		retryDelay: cfg.RetryDelay,
		client:     &http.Client{},
		sleep:      sleepContext,
		logger:     logger.With(slog.String("component", "executor")),
	}

	if e.maxRetries < 0 {
		e.maxRetries = 0
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.retryDelay <= 0 {
		e.retryDelay = DefaultRetryDelay
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// BaseURL returns the normalized base URL requests are resolved against.
func (e *Executor) BaseURL() string {
	return e.baseURL
}

// Execute runs d with the executor's retry policy.
func (e *Executor) Execute(ctx context.Context, d RequestDescriptor) Result {
	return e.ExecuteWith(ctx, d, e.maxRetries, e.timeout)
}

// attemptResult is what a single round trip produced.
type attemptResult struct {
	outcome Outcome
	status  int
	data    any
	failure *Failure
}

// ExecuteWith runs d allowing maxRetries retries, each attempt bounded by timeout.
func (e *Executor) ExecuteWith(ctx context.Context, d RequestDescriptor, maxRetries int, timeout time.Duration) Result {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if timeout <= 0 {
		timeout = e.timeout
	}

	log := e.logger.With(
		slog.String("call_id", uuid.NewString()),
		slog.String("method", d.method()),
		slog.String("endpoint", d.Path),
	)

	start := time.Now()

	if e.baseURL == "" {
		log.Error("Base URL not configured")
		return e.finish(log, d, start, failed(&Failure{
			Kind:    KindConfiguration,
			Message: "Base URL not configured",
		}))
	}

	target := e.baseURL + d.Path

	var last *Failure

attempts:
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(attempt, e.retryDelay)
			log.Warn("Retrying request",
				slog.Int("attempt", attempt),
				slog.Int("max_retries", maxRetries),
				slog.Duration("delay", delay))
			e.emit(metrics.MetricEvent{
				Type:    metrics.EventRetryScheduled,
				Target:  d.Path,
				Attempt: attempt,
			})

			if err := e.sleep(ctx, delay); err != nil {
				last = &Failure{Kind: KindUnrecognized, Message: err.Error()}
				break attempts
			}
		}

		res := e.attempt(ctx, log, d, target, attempt, timeout)

		switch Next(attempt, maxRetries, res.outcome) {
		case StateSucceeded:
			return e.finish(log, d, start, succeeded(res.status, res.data))

		case StateFailedTerminal:
			if res.outcome == OutcomeClientError {
				return e.finish(log, d, start, failed(res.failure))
			}
			last = res.failure
			break attempts

		case StateFailedExhausted:
			last = res.failure
			break attempts

		case StateBackoff:
			last = res.failure
		}
	}

	final := &Failure{
		Kind:    KindUnrecognized,
		Message: defaultFailureMessage,
		Retries: maxRetries,
	}
	if last != nil {
		final.Kind = last.Kind
		final.Status = last.Status
		final.Body = last.Body
		if last.Message != "" {
			final.Message = last.Message
		}
	}

	return e.finish(log, d, start, failed(final))
}

func (e *Executor) attempt(ctx context.Context, log *slog.Logger, d RequestDescriptor, target string, attempt int, timeout time.Duration) attemptResult {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	res := e.roundTrip(ctx, attemptCtx, d, target)
	elapsed := time.Since(started)

	e.emit(metrics.MetricEvent{
		Type:       metrics.EventAttemptCompleted,
		Target:     d.Path,
		Attempt:    attempt,
		Outcome:    res.outcome.String(),
		Duration:   elapsed,
		StatusCode: res.status,
	})

	attrs := []any{
		slog.Int("attempt", attempt),
		slog.String("outcome", res.outcome.String()),
		slog.Int("status", res.status),
		slog.Duration("duration", elapsed),
	}
	if res.failure != nil {
		attrs = append(attrs, slog.String("error", res.failure.Message))
		log.Warn("Attempt failed", attrs...)
	} else {
		log.Debug("Attempt completed", attrs...)
	}

	return res
}

func (e *Executor) roundTrip(parent, ctx context.Context, d RequestDescriptor, target string) attemptResult {
	var body io.Reader
	if len(d.Body) > 0 {
		body = bytes.NewReader(d.Body)
	}

	req, err := http.NewRequestWithContext(ctx, d.method(), target, body)
	if err != nil {
		return attemptResult{
			outcome: OutcomeUnrecognized,
			failure: &Failure{Kind: KindUnrecognized, Message: fmt.Sprintf("create request: %v", err)},
		}
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return transportFailure(parent, ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportFailure(parent, ctx, err)
	}

	res := attemptResult{
		outcome: ClassifyStatus(resp.StatusCode),
		status:  resp.StatusCode,
	}

	switch res.outcome {
	case OutcomeSuccess:
		res.data = decodeSuccess(resp.Header, payload)

	case OutcomeClientError, OutcomeServerError:
		kind := KindClientError
		if res.outcome == OutcomeServerError {
			kind = KindServerError
		}
		errBody := decodeError(resp, payload)
		res.failure = &Failure{
			Kind:    kind,
			Message: errorMessage(resp.StatusCode, statusText(resp), errBody),
			Status:  resp.StatusCode,
			Body:    errBody,
		}

	default:
		res.failure = &Failure{
			Kind:    KindUnrecognized,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}

	return res
}

func transportFailure(parent, ctx context.Context, err error) attemptResult {
	outcome := classifyError(parent, ctx, err)

	f := &Failure{Message: err.Error()}
	switch outcome {
	case OutcomeTimeout:
		f.Kind = KindTimeout
		f.Message = timeoutMessage
	case OutcomeNetworkFailure:
		f.Kind = KindNetwork
	default:
		f.Kind = KindUnrecognized
	}

	return attemptResult{outcome: outcome, failure: f}
}

func (e *Executor) finish(log *slog.Logger, d RequestDescriptor, start time.Time, res Result) Result {
	e.emit(metrics.MetricEvent{
		Type:       metrics.EventCallCompleted,
		Target:     d.Path,
		Duration:   time.Since(start),
		StatusCode: resultStatus(res),
		Success:    res.OK,
	})

	if res.OK {
		log.Info("Request succeeded",
			slog.Int("status", res.Status),
			slog.Duration("duration", time.Since(start)))
		return res
	}

	log.Error("Request failed",
		slog.String("kind", string(res.Failure.Kind)),
		slog.Int("status", res.Failure.Status),
		slog.Int("retries", res.Failure.Retries),
		slog.String("error", res.Failure.Message),
		slog.Duration("duration", time.Since(start)))
	return res
}

func (e *Executor) emit(event metrics.MetricEvent) {
	if e.collector == nil {
		return
	}
	e.collector.Emit(event)
}

func resultStatus(res Result) int {
	if res.OK {
		return res.Status
	}
	return res.Failure.Status
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
