package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	requests      map[string]int64
	failures      map[string]int64
	attempts      map[string]int64
	retries       map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	healthStatus  map[string]bool
	startTime     time.Time
}

type Snapshot struct {
	Component     string                   `json:"component"`
	TotalRequests int64                    `json:"total_requests"`
	TotalFailures int64                    `json:"total_failures"`
	Uptime        time.Duration            `json:"uptime"`
	Targets       map[string]TargetMetrics `json:"targets"`
}

type TargetMetrics struct {
	Requests    int64         `json:"requests"`
	Failures    int64         `json:"failures"`
	Attempts    int64         `json:"attempts"`
	Retries     int64         `json:"retries"`
	Healthy     *bool         `json:"healthy,omitempty"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes,omitempty"`
}

// RecordCall counts one logical request and whether it ended in failure.
func (m *Metrics) RecordCall(target string, success bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.requests[target]++
	if !success {
		m.failures[target]++
	}
}

// RecordAttempt records one network round trip. A zero status code means no
// response was received.
func (m *Metrics) RecordAttempt(target string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.attempts[target]++

	m.responseTimes[target] = append(m.responseTimes[target], duration)
	if len(m.responseTimes[target]) > maxSamples {
		m.responseTimes[target] = m.responseTimes[target][1:]
	}

	if statusCode == 0 {
		return
	}

	if m.statusCodes[target] == nil {
		m.statusCodes[target] = make(map[int]int64)
	}
	m.statusCodes[target][statusCode]++
}

func (m *Metrics) RecordRetry(target string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.retries[target]++
}

func (m *Metrics) UpdateHealthStatus(target string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[target] = healthy
}

func (m *Metrics) Snapshot(component string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Component: component,
		Uptime:    time.Since(m.startTime),
		Targets:   make(map[string]TargetMetrics),
	}

	allTargets := make(map[string]bool)
	for target := range m.requests {
		allTargets[target] = true
	}
	for target := range m.attempts {
		allTargets[target] = true
	}
	for target := range m.retries {
		allTargets[target] = true
	}
	for target := range m.healthStatus {
		allTargets[target] = true
	}

	for target := range allTargets {
		snap.TotalRequests += m.requests[target]
		snap.TotalFailures += m.failures[target]

		tm := TargetMetrics{
			Requests: m.requests[target],
			Failures: m.failures[target],
			Attempts: m.attempts[target],
			Retries:  m.retries[target],
		}

		if healthy, ok := m.healthStatus[target]; ok {
			tm.Healthy = &healthy
		}

		if codes := m.statusCodes[target]; len(codes) > 0 {
			tm.StatusCodes = make(map[int]int64, len(codes))
			for code, n := range codes {
				tm.StatusCodes[code] = n
			}
		}

		durations := m.responseTimes[target]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			tm.AvgResponse = average(sorted)
			tm.P50Response = percentile(sorted, 0.50)
			tm.P95Response = percentile(sorted, 0.95)
			tm.P99Response = percentile(sorted, 0.99)
		}

		snap.Targets[target] = tm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[string]int64),
		failures:      make(map[string]int64),
		attempts:      make(map[string]int64),
		retries:       make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		healthStatus:  make(map[string]bool),
		startTime:     time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
