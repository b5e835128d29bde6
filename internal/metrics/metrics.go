package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Names of the counters and timers recorded by the workflow
const (
	ScanOutcomePrefix   = "scan_outcome:"
	TransitionPrefix    = "transition:"
	DBQueryPrefix       = "db_query:"
	KPIWriteFailures    = "kpi_write_failures"
	FeedPublishFailures = "feed_publish_failures"
	ActiveSessions      = "active_sessions"
	FeedSubscribers     = "feed_subscribers"
)

// TimerMetric captures timing information
type TimerMetric struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MinTimeMs     int64   `json:"min_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

// ErrorRateMetric captures error rates
type ErrorRateMetric struct {
	Total     int64   `json:"total"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

type timer struct {
	count       int64
	totalTimeMs int64
	minTimeMs   int64
	maxTimeMs   int64
}

type errorRate struct {
	total  int64
	errors int64
}

// Metrics is an in-process collector for counters, gauges, timers, error rates and health
type Metrics struct {
	mu           sync.RWMutex
	counters     map[string]*int64
	gauges       map[string]*int64
	timers       map[string]*timer
	errorRates   map[string]*errorRate
	healthChecks map[string]*int64
	startTime    time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]*int64),
		gauges:       make(map[string]*int64),
		timers:       make(map[string]*timer),
		errorRates:   make(map[string]*errorRate),
		healthChecks: make(map[string]*int64),
		startTime:    time.Now(),
	}
}

func int64Cell(m *Metrics, cells map[string]*int64, name string) *int64 {
	m.mu.RLock()
	cell, ok := cells[name]
	m.mu.RUnlock()
	if ok {
		return cell
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cell, ok = cells[name]; !ok {
		cell = new(int64)
		cells[name] = cell
	}
	return cell
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by the specified value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	if m == nil {
		return
	}
	atomic.AddInt64(int64Cell(m, m.counters, name), value)
}

// SetGauge sets a gauge to a specific value
func (m *Metrics) SetGauge(name string, value int64) {
	if m == nil {
		return
	}
	atomic.StoreInt64(int64Cell(m, m.gauges, name), value)
}

// SetHealth sets the health status of a component
func (m *Metrics) SetHealth(component string, healthy bool) {
	if m == nil {
		return
	}
	var value int64
	if healthy {
		value = 1
	}
	atomic.StoreInt64(int64Cell(m, m.healthChecks, component), value)
}

// RecordTimer records a timing measurement
func (m *Metrics) RecordTimer(name string, d time.Duration) {
	if m == nil {
		return
	}
	ms := d.Milliseconds()

	m.mu.RLock()
	t, ok := m.timers[name]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if t, ok = m.timers[name]; !ok {
			t = &timer{minTimeMs: math.MaxInt64}
			m.timers[name] = t
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(&t.count, 1)
	atomic.AddInt64(&t.totalTimeMs, ms)

	for {
		cur := atomic.LoadInt64(&t.minTimeMs)
		if ms >= cur || atomic.CompareAndSwapInt64(&t.minTimeMs, cur, ms) {
			break
		}
	}
	for {
		cur := atomic.LoadInt64(&t.maxTimeMs)
		if ms <= cur || atomic.CompareAndSwapInt64(&t.maxTimeMs, cur, ms) {
			break
		}
	}
}

// RecordResult records a success or failure for error rate tracking
func (m *Metrics) RecordResult(name string, err error) {
	if m == nil {
		return
	}

	m.mu.RLock()
	er, ok := m.errorRates[name]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if er, ok = m.errorRates[name]; !ok {
			er = &errorRate{}
			m.errorRates[name] = er
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(&er.total, 1)
	if err != nil {
		atomic.AddInt64(&er.errors, 1)
	}
}

// RecordScan counts a scan by its classification outcome
func (m *Metrics) RecordScan(outcome string) {
	m.IncrementCounter(ScanOutcomePrefix + outcome)
}

// RecordTransition counts rows moved into a status
func (m *Metrics) RecordTransition(status string, rows int) {
	m.IncrementCounterBy(TransitionPrefix+status, int64(rows))
}

// RecordDBQuery records a query's latency and outcome
func (m *Metrics) RecordDBQuery(kind string, d time.Duration, err error) {
	m.RecordTimer(DBQueryPrefix+kind, d)
	m.RecordResult(DBQueryPrefix+kind, err)
}

// GetCounters returns all counters
func (m *Metrics) GetCounters() map[string]int64 {
	return snapshot(m, m.counters)
}

// GetGauges returns all gauges
func (m *Metrics) GetGauges() map[string]int64 {
	return snapshot(m, m.gauges)
}

func snapshot(m *Metrics, cells map[string]*int64) map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int64, len(cells))
	for name, cell := range cells {
		out[name] = atomic.LoadInt64(cell)
	}
	return out
}

// GetTimers returns all timers
func (m *Metrics) GetTimers() map[string]TimerMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]TimerMetric, len(m.timers))
	for name, t := range m.timers {
		count := atomic.LoadInt64(&t.count)
		total := atomic.LoadInt64(&t.totalTimeMs)

		var avg float64
		if count > 0 {
			avg = float64(total) / float64(count)
		}

		out[name] = TimerMetric{
			Count:         count,
			TotalTimeMs:   total,
			AverageTimeMs: avg,
			MinTimeMs:     atomic.LoadInt64(&t.minTimeMs),
			MaxTimeMs:     atomic.LoadInt64(&t.maxTimeMs),
		}
	}
	return out
}

// GetErrorRates returns all error rates as percentages
func (m *Metrics) GetErrorRates() map[string]ErrorRateMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ErrorRateMetric, len(m.errorRates))
	for name, er := range m.errorRates {
		total := atomic.LoadInt64(&er.total)
		errs := atomic.LoadInt64(&er.errors)

		var rate float64
		if total > 0 {
			rate = float64(errs) / float64(total) * 100.0
		}

		out[name] = ErrorRateMetric{Total: total, Errors: errs, ErrorRate: rate}
	}
	return out
}

// GetHealthChecks returns all health checks
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.healthChecks))
	for name, h := range m.healthChecks {
		out[name] = atomic.LoadInt64(h) > 0
	}
	return out
}

// GetUptimeSeconds returns the service uptime in seconds
func (m *Metrics) GetUptimeSeconds() int64 {
	return int64(time.Since(m.startTime).Seconds())
}

// GetAllMetrics returns all metrics in a structured format
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": m.GetUptimeSeconds(),
		"counters":       m.GetCounters(),
		"gauges":         m.GetGauges(),
		"timers":         m.GetTimers(),
		"error_rates":    m.GetErrorRates(),
		"health_checks":  m.GetHealthChecks(),
	}
}
