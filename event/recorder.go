package event

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/FeatureProbe/client-sdk-mobile/connectivity"
	"github.com/FeatureProbe/client-sdk-mobile/metrics"
	"github.com/FeatureProbe/client-sdk-mobile/transport"
)

// DefaultCapacity is the batch size that triggers an early flush.
const DefaultCapacity = 100

// Options configures a Recorder.
type Options struct {
	URL           string
	Auth          string
	HTTPClient    *http.Client
	FlushInterval time.Duration
	Capacity      int // flush threshold, default DefaultCapacity
	QueueLimit    int // max pending events, default 10 * Capacity
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	Connectivity  *connectivity.Tracker
}

// Recorder batches events in memory and uploads them from a background loop.
//
// Record only appends under a short lock; uploads run on a drained batch
// outside the lock, so recording never waits for the network. When the
// pending batch reaches QueueLimit the oldest events are dropped.
type Recorder struct {
	url           *url.URL
	auth          string
	http          *http.Client
	flushInterval time.Duration
	capacity      int
	queueLimit    int
	logger        *slog.Logger
	metrics       *metrics.Metrics
	connectivity  *connectivity.Tracker

	mu      sync.Mutex
	pending []Event
	closed  bool

	uploadMu sync.Mutex // serializes uploads (loop vs. explicit Flush)
	flushCh  chan struct{}
}

// New creates a Recorder. Call Run to start the flush loop.
func New(opts Options) (*Recorder, error) {
	u, err := transport.ParseURL("events url", opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.FlushInterval <= 0 {
		return nil, fmt.Errorf("FlushInterval required (must be > 0)")
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.QueueLimit < opts.Capacity {
		opts.QueueLimit = 10 * opts.Capacity
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}

	return &Recorder{
		url:           u,
		auth:          opts.Auth,
		http:          opts.HTTPClient,
		flushInterval: opts.FlushInterval,
		capacity:      opts.Capacity,
		queueLimit:    opts.QueueLimit,
		logger:        opts.Logger.With("component", "event-recorder"),
		metrics:       opts.Metrics,
		connectivity:  opts.Connectivity,
		pending:       make([]Event, 0, opts.Capacity),
		flushCh:       make(chan struct{}, 1),
	}, nil
}

// Record enqueues events. It never blocks on I/O and is a no-op after Close.
func (r *Recorder) Record(events ...Event) {
	if len(events) == 0 {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.pending = append(r.pending, events...)
	dropped := 0
	if over := len(r.pending) - r.queueLimit; over > 0 {
		// Keep only last N events (ringbuffer)
		r.pending = append(r.pending[:0], r.pending[over:]...)
		dropped = over
	}
	full := len(r.pending) >= r.capacity
	r.mu.Unlock()

	for _, e := range events {
		r.metrics.EventsRecorded.WithLabelValues(string(e.EventKind())).Inc()
	}
	if dropped > 0 {
		r.metrics.EventsDropped.Add(float64(dropped))
	}

	if full {
		// Non-blocking trigger
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of queued events.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Run flushes on every interval tick or when the batch reaches capacity,
// until ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-r.flushCh:
		}
		// Upload failures are logged in Flush; the loop keeps going.
		_ = r.Flush(ctx)
	}
}

// Flush uploads everything queued as one batch. The batch is cleared whether
// or not the upload succeeds.
func (r *Recorder) Flush(ctx context.Context) error {
	r.uploadMu.Lock()
	defer r.uploadMu.Unlock()

	batch := r.drain()
	if len(batch) == 0 {
		return nil
	}

	err := r.upload(ctx, batch)
	r.metrics.EventFlushes.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		r.logger.Warn("Event upload failed, batch discarded",
			"events", len(batch),
			"error", err,
		)
		return err
	}

	r.logger.Debug("Events uploaded", "events", len(batch))
	return nil
}

// Close disables recording and performs a final flush. Every event accepted
// before Close is part of that flush.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	return r.Flush(ctx)
}

// drain takes ownership of the pending batch.
func (r *Recorder) drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		return nil
	}
	batch := r.pending
	r.pending = make([]Event, 0, r.capacity)
	return batch
}

func (r *Recorder) upload(ctx context.Context, batch []Event) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return transport.JSONError("failed to marshal events", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url.String(), bytes.NewReader(body))
	if err != nil {
		return transport.URLError("events request", err)
	}
	transport.SetHeaders(req, r.auth)
	req.Header.Set("Content-Type", "application/json")

	// Track connectivity (start timer)
	startTime := time.Now()
	resp, err := r.http.Do(req)
	latency := time.Since(startTime)
	if err != nil {
		r.connectivity.TrackFailure(connectivity.Events, r.url.String(), latency, err.Error())
		return transport.HTTPError("events request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		errorMsg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(msg))
		r.connectivity.TrackFailure(connectivity.Events, r.url.String(), latency, errorMsg)
		return transport.HTTPError(errorMsg, nil)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	r.connectivity.TrackSuccess(connectivity.Events, r.url.String(), latency)
	return nil
}
