// Package connectivity tracks the health of the remote endpoints the SDK talks to.
package connectivity

import (
	"sort"
	"sync"
	"time"
)

// Remote names used by the SDK.
const (
	Toggles  = "toggles"
	Events   = "events"
	Realtime = "realtime"
)

// Window is how long calls are kept for the statistics.
const Window = time.Hour

// Call represents a single call to a remote endpoint.
type Call struct {
	Timestamp time.Time
	Success   bool
	Latency   time.Duration
	Error     string
}

// connection tracks calls to a single remote endpoint.
type connection struct {
	service string
	url     string
	calls   []Call
}

// Status is the aggregated view of one remote endpoint over the last Window.
type Status struct {
	Service      string    `json:"service"`
	URL          string    `json:"url"`
	Status       string    `json:"status"` // healthy, degraded, unhealthy
	LastCall     time.Time `json:"last_call"`
	TotalCalls   int       `json:"total_calls_1h"`
	SuccessRate  float64   `json:"success_rate_1h"`
	LatencyP50   int64     `json:"latency_p50_ms"`
	LatencyP95   int64     `json:"latency_p95_ms"`
	LatencyP99   int64     `json:"latency_p99_ms"`
	RecentErrors []string  `json:"recent_errors"`
}

// Tracker tracks connectivity to multiple endpoints. The zero value is not usable; use NewTracker.
type Tracker struct {
	mu          sync.Mutex
	connections map[string]*connection
	now         func() time.Time
}

// NewTracker creates a new connectivity tracker.
func NewTracker() *Tracker {
	return &Tracker{
		connections: make(map[string]*connection),
		now:         time.Now,
	}
}

// TrackSuccess records a successful call.
func (t *Tracker) TrackSuccess(service, url string, latency time.Duration) {
	t.track(service, url, Call{Success: true, Latency: latency})
}

// TrackFailure records a failed call.
func (t *Tracker) TrackFailure(service, url string, latency time.Duration, errorMsg string) {
	t.track(service, url, Call{Success: false, Latency: latency, Error: errorMsg})
}

func (t *Tracker) track(service, url string, call Call) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	call.Timestamp = t.now().UTC()

	conn, ok := t.connections[service]
	if !ok {
		conn = &connection{service: service}
		t.connections[service] = conn
	}
	conn.url = url
	conn.calls = append(conn.calls, call)
	t.pruneOldCalls(conn)
}

// pruneOldCalls removes calls older than Window.
func (t *Tracker) pruneOldCalls(conn *connection) {
	cutoff := t.now().Add(-Window)
	for i, call := range conn.calls {
		if call.Timestamp.After(cutoff) {
			conn.calls = conn.calls[i:]
			return
		}
	}
	conn.calls = conn.calls[:0]
}

// Snapshot returns one Status per endpoint with at least one call, sorted by service.
func (t *Tracker) Snapshot() []Status {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Status, 0, len(t.connections))
	for _, conn := range t.connections {
		t.pruneOldCalls(conn)
		if len(conn.calls) == 0 {
			continue
		}

		var successCount int
		var lastCall time.Time
		latencies := make([]float64, 0, len(conn.calls))
		recentErrors := make([]string, 0)

		for _, call := range conn.calls {
			if call.Success {
				successCount++
			} else if len(recentErrors) < 5 {
				recentErrors = append(recentErrors, call.Error)
			}
			latencies = append(latencies, float64(call.Latency.Milliseconds()))
			if call.Timestamp.After(lastCall) {
				lastCall = call.Timestamp
			}
		}

		successRate := float64(successCount) / float64(len(conn.calls))
		sort.Float64s(latencies)

		status := "healthy"
		if successRate < 0.9 {
			status = "unhealthy"
		} else if successRate < 0.95 {
			status = "degraded"
		}

		out = append(out, Status{
			Service:      conn.service,
			URL:          conn.url,
			Status:       status,
			LastCall:     lastCall,
			TotalCalls:   len(conn.calls),
			SuccessRate:  successRate,
			LatencyP50:   int64(percentile(latencies, 0.50)),
			LatencyP95:   int64(percentile(latencies, 0.95)),
			LatencyP99:   int64(percentile(latencies, 0.99)),
			RecentErrors: recentErrors,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// percentile calculates the percentile of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}
