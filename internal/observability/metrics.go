package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for requests and scan runs.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64

	scanRuns      int64
	scanSkipped   int64
	escalations   int64
	scanFailures  int64
	lastScanAt    time.Time
	lastScanTook  time.Duration
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordScan captures the outcome of one escalation scan.
func (m *Metrics) RecordScan(escalated, failed int, took time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanRuns++
	m.escalations += int64(escalated)
	m.scanFailures += int64(failed)
	m.lastScanAt = time.Now()
	m.lastScanTook = took
}

// RecordScanSkipped counts ticks dropped by the single-flight guard.
func (m *Metrics) RecordScanSkipped() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanSkipped++
}

// ScanSnapshot reports scan counters for the health endpoint.
func (m *Metrics) ScanSnapshot() map[string]any {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"runs":         m.scanRuns,
		"skipped":      m.scanSkipped,
		"escalations":  m.escalations,
		"failures":     m.scanFailures,
		"last_scan_at": m.lastScanAt,
		"last_took_ms": m.lastScanTook.Milliseconds(),
	}
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
