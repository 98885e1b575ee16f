package forwarder

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hyperdatalab/gateway/internal/circuitbreaker"
	"github.com/hyperdatalab/gateway/internal/executor"
	"github.com/hyperdatalab/gateway/internal/metrics"
	"github.com/hyperdatalab/gateway/internal/upstream"
)

const (
	DefaultPrefix = "/api/v1"

	ModeJSONEnvelope = "json_envelope"
	ModePassthrough  = "passthrough"
)

const (
	errNotConfigured = "Backend URL not configured"
	errProxy         = "Proxy error"
	errUnavailable   = "Upstream unavailable"
)

// Config controls path rewriting and how non-JSON upstream bodies are relayed.
type Config struct {
	Prefix       string
	ResponseMode string
}

// Response is what the caller receives for one forwarded request.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// ErrorBody is the JSON shape of every response the forwarder produces itself.
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type Option func(*Forwarder)

func WithHTTPClient(client *http.Client) Option {
	return func(f *Forwarder) {
		if client != nil {
			f.client = client
		}
	}
}

func WithCollector(collector *metrics.Collector) Option {
	return func(f *Forwarder) {
		f.collector = collector
	}
}

// WithCircuitBreaker refuses traffic with 503 while cb is open.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(f *Forwarder) {
		f.breaker = cb
	}
}

func WithHeaderPipeline(p HeaderPipeline) Option {
	return func(f *Forwarder) {
		f.headers = p
	}
}

type Forwarder struct {
	target    *upstream.Upstream
	prefix    string
	mode      string
	headers   HeaderPipeline
	client    *http.Client
	breaker   *circuitbreaker.CircuitBreaker
	collector *metrics.Collector
	logger    *slog.Logger
}

// New creates a Forwarder for target. A nil target is allowed: every request
// is then answered with a configuration error and no network call is made.
func New(target *upstream.Upstream, cfg Config, logger *slog.Logger, opts ...Option) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}

	f := &Forwarder{
		target:  target,
		prefix:  strings.TrimRight(cfg.Prefix, "/"),
		mode:    cfg.ResponseMode,
		headers: DefaultHeaderPipeline(),
		client:  &http.Client{},
		logger:  logger.With(slog.String("component", "forwarder")),
	}

	if cfg.Prefix == "" {
		f.prefix = DefaultPrefix
	}
	if f.mode == "" {
		f.mode = ModeJSONEnvelope
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := f.Forward(r)

	for name, values := range res.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(res.Status)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(res.Body); err != nil {
		f.logger.Debug("Writing response failed", slog.Any("err", err))
	}
}

// Forward relays r to the upstream and always returns a response; failures are
// converted to a JSON error body with a 5xx status.
func (f *Forwarder) Forward(r *http.Request) *Response {
	log := f.logger.With(
		slog.String("from", extractClientIP(r)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	if f.target == nil {
		log.Error("Upstream not configured", slog.String("kind", string(executor.KindConfiguration)))
		return errorResponse(http.StatusInternalServerError, errNotConfigured,
			"set BACKEND_URL to the public URL of the backend tunnel")
	}

	if f.breaker != nil && !f.breaker.Allow() {
		wait := f.breaker.RetryAfter()
		log.Warn("Circuit open, refusing request", slog.Duration("retry_after", wait))
		res := errorResponse(http.StatusServiceUnavailable, errUnavailable,
			fmt.Sprintf("circuit breaker is %s", f.breaker.State()))
		if seconds := int(wait.Round(time.Second) / time.Second); seconds > 0 {
			res.Header.Set("Retry-After", strconv.Itoa(seconds))
		}
		return res
	}

	target := f.target.Resolve(f.prefix+StripPrefix(r.URL.EscapedPath(), f.prefix), r.URL.RawQuery)
	log = log.With(slog.String("target", target))
	log.Info("Forwarding request")

	start := time.Now()
	f.target.Acquire()
	res, err := f.roundTrip(r, target)
	f.target.Release()
	elapsed := time.Since(start)

	f.record(err == nil && res.Status < http.StatusInternalServerError, elapsed, res)

	if err != nil {
		log.Error("Proxy error",
			slog.String("kind", string(executor.KindProxy)),
			slog.Duration("duration", elapsed),
			slog.Any("err", err))
		return errorResponse(http.StatusInternalServerError, errProxy, err.Error())
	}

	log.Info("Upstream responded",
		slog.Int("status", res.Status),
		slog.Duration("duration", elapsed))

	return res
}

func (f *Forwarder) roundTrip(r *http.Request, target string) (*Response, error) {
	var body io.Reader
	if hasBody(r.Method) && r.Body != nil {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if len(payload) > 0 {
			body = bytes.NewReader(payload)
		}
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	req.Header = f.headers.Apply(r.Header)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, decoded, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	return f.relay(resp, payload, decoded)
}

// relay builds the caller-facing response. JSON is decoded and re-encoded;
// other text is wrapped as a JSON string unless the passthrough mode is set.
func (f *Forwarder) relay(resp *http.Response, payload []byte, decoded bool) (*Response, error) {
	header := responseHeader(resp.Header, decoded)
	contentType := resp.Header.Get("Content-Type")

	res := &Response{Status: resp.StatusCode, Header: header}

	// A body we could not decode is relayed as is.
	if !decoded {
		res.Body = payload
		return res, nil
	}

	if len(bytes.TrimSpace(payload)) == 0 {
		return res, nil
	}

	if executor.IsJSONContentType(contentType) {
		var data any
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(&data); err != nil {
			return nil, fmt.Errorf("decode upstream json: %w", err)
		}

		body, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode upstream json: %w", err)
		}
		res.Header.Set("Content-Type", "application/json")
		res.Body = body
		return res, nil
	}

	if f.mode == ModePassthrough {
		res.Body = payload
		return res, nil
	}

	body, err := json.Marshal(string(payload))
	if err != nil {
		return nil, fmt.Errorf("encode upstream text: %w", err)
	}
	res.Header.Set("Content-Type", "application/json")
	res.Body = body
	return res, nil
}

func (f *Forwarder) record(success bool, elapsed time.Duration, res *Response) {
	status := 0
	if res != nil {
		status = res.Status
	}

	f.target.RecordResponse(elapsed)

	if f.breaker != nil {
		if success {
			f.breaker.RecordSuccess()
		} else {
			f.breaker.RecordFailure()
		}
	}

	if f.collector != nil {
		f.collector.Emit(metrics.MetricEvent{
			Type:       metrics.EventForwardCompleted,
			Target:     f.target.String(),
			Duration:   elapsed,
			StatusCode: status,
			Success:    success,
		})
	}
}

// StripPrefix removes prefix from path on a segment boundary. An empty result
// becomes "/".
func StripPrefix(path, prefix string) string {
	if prefix != "" && strings.HasPrefix(path, prefix) {
		rest := path[len(prefix):]
		if rest == "" || strings.HasPrefix(rest, "/") {
			path = rest
		}
	}

	if path == "" {
		return "/"
	}
	return path
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// readBody returns the upstream body and whether it is in plain form. Gzip is
// decoded; any other content coding is returned untouched.
func readBody(resp *http.Response) ([]byte, bool, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	switch encoding {
	case "", "identity":
		payload, err := io.ReadAll(resp.Body)
		return payload, true, err

	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, false, err
		}
		defer zr.Close()
		payload, err := io.ReadAll(zr)
		return payload, true, err

	default:
		payload, err := io.ReadAll(resp.Body)
		return payload, false, err
	}
}

// Hop-by-hop headers per RFC 7230 section 6.1, plus the length of a body we re-encode.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

func responseHeader(in http.Header, decoded bool) http.Header {
	out := in.Clone()
	if out == nil {
		out = make(http.Header)
	}

	for _, name := range hopHeaders {
		out.Del(name)
	}
	if decoded {
		out.Del("Content-Encoding")
	}

	return out
}

func errorResponse(status int, msg, detail string) *Response {
	body, _ := json.Marshal(ErrorBody{Error: msg, Detail: detail})

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	return &Response{Status: status, Header: header, Body: body}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
