package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hyperdatalab/gateway/internal/executor"
)

const (
	APIPrefix   = "/api/v1"
	reportsPath = APIPrefix + "/financial/reports"
	// DefaultHealthPath is the health route as exposed by the gateway. The
	// backend itself serves health at /health.
	DefaultHealthPath = APIPrefix + "/health"
)

// Executor is the part of *executor.Executor the client needs.
type Executor interface {
	Execute(ctx context.Context, d executor.RequestDescriptor) executor.Result
}

// ReportFilter narrows a report listing. Zero fields are left out of the query.
type ReportFilter struct {
	Symbol string
	Type   string
	Year   int
	Limit  int
	Offset int
}

// Query encodes the filter. The symbol is lower-cased to match how reports are stored.
func (f ReportFilter) Query() url.Values {
	q := url.Values{}

	if s := strings.ToLower(strings.TrimSpace(f.Symbol)); s != "" {
		q.Set("symbol", s)
	}
	if t := strings.TrimSpace(f.Type); t != "" {
		q.Set("type", t)
	}
	if f.Year > 0 {
		q.Set("year", strconv.Itoa(f.Year))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	return q
}

type Option func(*Client)

// WithHealthPath points Health at path, e.g. "/health" when talking to the
// backend directly. An empty path keeps the default.
func WithHealthPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.healthPath = path
		}
	}
}

type Client struct {
	exec       Executor
	healthPath string
}

func New(exec Executor, opts ...Option) *Client {
	c := &Client{exec: exec, healthPath: DefaultHealthPath}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListReports(ctx context.Context, filter ReportFilter) executor.Result {
	path := reportsPath
	if q := filter.Query(); len(q) > 0 {
		path += "?" + q.Encode()
	}

	return c.exec.Execute(ctx, executor.RequestDescriptor{Path: path, Method: http.MethodGet})
}

func (c *Client) GetReport(ctx context.Context, id int) executor.Result {
	if res, ok := invalidID(id); !ok {
		return res
	}

	return c.exec.Execute(ctx, executor.RequestDescriptor{Path: reportPath(id), Method: http.MethodGet})
}

func (c *Client) DeleteReport(ctx context.Context, id int) executor.Result {
	if res, ok := invalidID(id); !ok {
		return res
	}

	return c.exec.Execute(ctx, executor.RequestDescriptor{Path: reportPath(id), Method: http.MethodDelete})
}

func (c *Client) Health(ctx context.Context) executor.Result {
	return c.exec.Execute(ctx, executor.RequestDescriptor{Path: c.healthPath, Method: http.MethodGet})
}

func reportPath(id int) string {
	return fmt.Sprintf("%s/%d", reportsPath, id)
}

func invalidID(id int) (executor.Result, bool) {
	if id > 0 {
		return executor.Result{}, true
	}

	return executor.Result{Failure: &executor.Failure{
		Kind:    executor.KindClientError,
		Message: fmt.Sprintf("invalid report id %d: must be positive", id),
	}}, false
}
