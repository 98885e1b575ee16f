package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hyperdatalab/gateway/internal/metrics"
)

var _ = Describe("Metrics", func() {
	const endpoint = "/api/v1/financial/reports"

	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("RecordCall", func() {
		It("should count requests and failures per target", func() {
			m.RecordCall(endpoint, true)
			m.RecordCall(endpoint, false)
			m.RecordCall("/api/v1/health", true)

			snap := m.Snapshot("client")
			Expect(snap.TotalRequests).To(Equal(int64(3)))
			Expect(snap.TotalFailures).To(Equal(int64(1)))
			Expect(snap.Targets[endpoint].Requests).To(Equal(int64(2)))
			Expect(snap.Targets[endpoint].Failures).To(Equal(int64(1)))
		})
	})

	Describe("RecordAttempt", func() {
		It("should record latency and status codes", func() {
			m.RecordAttempt(endpoint, 100*time.Millisecond, 503)
			m.RecordAttempt(endpoint, 200*time.Millisecond, 200)

			tm := m.Snapshot("client").Targets[endpoint]
			Expect(tm.Attempts).To(Equal(int64(2)))
			Expect(tm.AvgResponse).To(Equal(150 * time.Millisecond))
			Expect(tm.StatusCodes).To(HaveKeyWithValue(503, int64(1)))
			Expect(tm.StatusCodes).To(HaveKeyWithValue(200, int64(1)))
		})

		It("should not record a status code for attempts without a response", func() {
			m.RecordAttempt(endpoint, 30*time.Second, 0)

			tm := m.Snapshot("client").Targets[endpoint]
			Expect(tm.Attempts).To(Equal(int64(1)))
			Expect(tm.StatusCodes).To(BeEmpty())
		})

		It("should calculate percentiles", func() {
			for i := 1; i <= 100; i++ {
				m.RecordAttempt(endpoint, time.Duration(i)*time.Millisecond, 200)
			}

			tm := m.Snapshot("client").Targets[endpoint]
			Expect(tm.P50Response).To(BeNumerically("~", 50*time.Millisecond, time.Millisecond))
			Expect(tm.P95Response).To(BeNumerically("~", 95*time.Millisecond, time.Millisecond))
			Expect(tm.P99Response).To(BeNumerically("~", 99*time.Millisecond, time.Millisecond))
		})

		It("should keep only the most recent samples", func() {
			for i := 1; i <= 1500; i++ {
				m.RecordAttempt(endpoint, time.Duration(i)*time.Millisecond, 200)
			}

			tm := m.Snapshot("client").Targets[endpoint]
			Expect(tm.AvgResponse).To(BeNumerically(">", 500*time.Millisecond))
		})
	})

	Describe("RecordRetry", func() {
		It("should count retries", func() {
			m.RecordRetry(endpoint)
			m.RecordRetry(endpoint)

			Expect(m.Snapshot("client").Targets[endpoint].Retries).To(Equal(int64(2)))
		})
	})

	Describe("UpdateHealthStatus", func() {
		It("should only report health for probed targets", func() {
			m.RecordCall(endpoint, true)
			m.UpdateHealthStatus("https://x.test", false)

			snap := m.Snapshot("proxy")
			Expect(snap.Targets[endpoint].Healthy).To(BeNil())
			Expect(snap.Targets["https://x.test"].Healthy).To(HaveValue(BeFalse()))
		})
	})

	Describe("Snapshot", func() {
		It("should carry the component name and uptime", func() {
			time.Sleep(5 * time.Millisecond)

			snap := m.Snapshot("proxy")
			Expect(snap.Component).To(Equal("proxy"))
			Expect(snap.Uptime).To(BeNumerically(">", 0))
		})

		It("should handle empty metrics", func() {
			snap := m.Snapshot("proxy")
			Expect(snap.TotalRequests).To(BeZero())
			Expect(snap.Targets).To(BeEmpty())
		})

		It("should return an independent copy of status codes", func() {
			m.RecordAttempt(endpoint, time.Millisecond, 200)
			snap := m.Snapshot("client")

			m.RecordAttempt(endpoint, time.Millisecond, 200)
			Expect(snap.Targets[endpoint].StatusCodes[200]).To(Equal(int64(1)))
		})
	})
})
