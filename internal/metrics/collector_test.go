package metrics_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hyperdatalab/gateway/internal/metrics"
	"github.com/hyperdatalab/gateway/pkg/logger"
)

var _ = Describe("Collector", func() {
	const upstream = "https://x.test"

	var (
		collector *metrics.Collector
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, logger.Nop())
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Emit", func() {
		It("should be a no-op on a nil collector", func() {
			var c *metrics.Collector
			Expect(func() {
				c.Emit(metrics.MetricEvent{Type: metrics.EventCallCompleted})
			}).NotTo(Panic())
		})

		It("should drop events instead of blocking when the buffer is full", func() {
			small := metrics.NewCollector(1, logger.Nop())

			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 10; i++ {
					small.Emit(metrics.MetricEvent{Type: metrics.EventRetryScheduled, Target: upstream})
				}
			}()

			Eventually(done).Should(BeClosed())
		})
	})

	Describe("event processing", func() {
		BeforeEach(func() {
			collector.Start(ctx)
		})

		It("should process forward events", func() {
			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventForwardCompleted,
				Target:     upstream,
				Duration:   40 * time.Millisecond,
				StatusCode: 502,
				Success:    false,
			})

			Eventually(func() int64 {
				return collector.Snapshot("proxy").Targets[upstream].Requests
			}).Should(Equal(int64(1)))

			tm := collector.Snapshot("proxy").Targets[upstream]
			Expect(tm.Failures).To(Equal(int64(1)))
			Expect(tm.StatusCodes[502]).To(Equal(int64(1)))
		})

		It("should process a client call with retries", func() {
			events := []metrics.MetricEvent{
				{Type: metrics.EventAttemptCompleted, Target: "/health", Attempt: 0, StatusCode: 503},
				{Type: metrics.EventRetryScheduled, Target: "/health", Attempt: 1},
				{Type: metrics.EventAttemptCompleted, Target: "/health", Attempt: 1, StatusCode: 200},
				{Type: metrics.EventCallCompleted, Target: "/health", Success: true},
			}
			for _, e := range events {
				collector.Emit(e)
			}

			Eventually(func() int64 {
				return collector.Snapshot("client").Targets["/health"].Requests
			}).Should(Equal(int64(1)))

			tm := collector.Snapshot("client").Targets["/health"]
			Expect(tm.Attempts).To(Equal(int64(2)))
			Expect(tm.Retries).To(Equal(int64(1)))
			Expect(tm.Failures).To(BeZero())
		})

		It("should process health changes", func() {
			collector.Emit(metrics.MetricEvent{Type: metrics.EventHealthChanged, Target: upstream, Healthy: true})

			Eventually(func() *bool {
				return collector.Snapshot("proxy").Targets[upstream].Healthy
			}).Should(HaveValue(BeTrue()))
		})
	})

	Describe("Run", func() {
		It("should drain queued events on cancellation", func() {
			for i := 0; i < 5; i++ {
				collector.Emit(metrics.MetricEvent{Type: metrics.EventCallCompleted, Target: upstream, Success: true})
			}

			cancel()
			collector.Run(ctx)

			Expect(collector.Snapshot("proxy").Targets[upstream].Requests).To(Equal(int64(5)))
		})
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventCallCompleted, Target: upstream, Success: true})
			Eventually(func() int64 {
				return collector.Snapshot("proxy").TotalRequests
			}).Should(Equal(int64(1)))

			rec := httptest.NewRecorder()
			collector.Handler("proxy")(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap metrics.Snapshot
			Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(Succeed())
			Expect(snap.Component).To(Equal("proxy"))
			Expect(snap.TotalRequests).To(Equal(int64(1)))
		})
	})
})
