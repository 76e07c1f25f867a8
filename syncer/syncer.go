// Package syncer keeps the repository cache fresh: a polling loop with a
// bounded-wait startup, plus on-demand syncs triggered by realtime pushes.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/FeatureProbe/client-sdk-mobile/connectivity"
	"github.com/FeatureProbe/client-sdk-mobile/metrics"
	"github.com/FeatureProbe/client-sdk-mobile/repository"
	"github.com/FeatureProbe/client-sdk-mobile/transport"
)

// TriggerKind tells why a sync ran.
type TriggerKind int

const (
	Polling TriggerKind = iota
	Realtime
)

// String returns string representation.
func (k TriggerKind) String() string {
	switch k {
	case Polling:
		return "polling"
	case Realtime:
		return "realtime"
	default:
		return fmt.Sprintf("TriggerKind(%d)", int(k))
	}
}

var (
	// ErrStartTimeout is returned by Start when the first sync did not
	// complete within the start wait.
	ErrStartTimeout = errors.New("first sync did not complete before start wait elapsed")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("synchronizer already started")
)

// Options configures a Synchronizer.
type Options struct {
	TogglesURL   string // toggles endpoint without the user parameter
	UserParam    string // base64 user, sent as ?user=
	Interval     time.Duration
	Auth         string
	HTTPClient   *http.Client
	Cache        *repository.Cache
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Connectivity *connectivity.Tracker
}

// Synchronizer polls the toggles endpoint and swaps complete snapshots into the cache.
type Synchronizer struct {
	url          *url.URL
	interval     time.Duration
	auth         string
	http         *http.Client
	cache        *repository.Cache
	logger       *slog.Logger
	metrics      *metrics.Metrics
	connectivity *connectivity.Tracker
	flight       singleflight.Group

	mu       sync.Mutex
	started  bool
	checksum string // checksum of the last applied body
	lastErr  error  // outcome of the most recent sync

	// Realtime syncs run one at a time. requested counts SyncNow(Realtime)
	// calls; covered is the request count observed when the last completed
	// realtime sync started, so any request <= covered was served by a GET
	// issued after it arrived.
	realtimeMu  sync.Mutex
	requested   atomic.Uint64
	covered     uint64
	realtimeErr error

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a Synchronizer. A malformed toggles URL is a transport URL error.
func New(opts Options) (*Synchronizer, error) {
	u, err := transport.ParseURL("toggles url", opts.TogglesURL)
	if err != nil {
		return nil, err
	}
	if opts.UserParam != "" {
		q := u.Query()
		q.Set("user", opts.UserParam)
		u.RawQuery = q.Encode()
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("Interval required (must be > 0)")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("Cache required")
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

	return &Synchronizer{
		url:          u,
		interval:     opts.Interval,
		auth:         opts.Auth,
		http:         opts.HTTPClient,
		cache:        opts.Cache,
		logger:       opts.Logger.With("component", "syncer"),
		metrics:      opts.Metrics,
		connectivity: opts.Connectivity,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// URL returns the full toggles URL including the user parameter.
func (s *Synchronizer) URL() string {
	return s.url.String()
}

// Start spawns the polling loop: sync, then wait one interval, until Stop.
//
// With startWait > 0 the call blocks until the first successful sync, or
// until a failed sync leaves no room for another attempt within startWait
// (returning that failure). If startWait elapses first the result wraps
// ErrStartTimeout together with the last sync error, if any. Only the first
// outcome resolves the wait. With startWait == 0 it returns at once.
func (s *Synchronizer) Start(startWait time.Duration) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	first := newOneShot()
	go s.loop(first, time.Now().Add(startWait))

	if startWait <= 0 {
		return nil
	}

	timer := time.NewTimer(startWait)
	defer timer.Stop()

	select {
	case err := <-first.C():
		return err
	case <-timer.C:
		// The watchdog claims the slot; a sync finishing now is ignored.
		timeoutErr := fmt.Errorf("%w (start wait %s)", ErrStartTimeout, startWait)
		if last := s.lastError(); last != nil {
			timeoutErr = fmt.Errorf("%w: %w", timeoutErr, last)
		}
		first.resolve(timeoutErr)
		return <-first.C()
	}
}

// loop is the polling goroutine. A failure only resolves first when the
// next attempt would land after deadline.
func (s *Synchronizer) loop(first *oneShot, deadline time.Time) {
	defer close(s.done)

	for {
		select {
		case <-s.stopCh:
			s.logger.Info("Polling stopped")
			return
		default:
		}

		err := s.SyncNow(context.Background(), Polling)
		if err == nil || time.Now().Add(s.interval).After(deadline) {
			first.resolve(err)
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-s.stopCh:
			timer.Stop()
			s.logger.Info("Polling stopped")
			return
		case <-timer.C:
		}
	}
}

// Stop asks the loop to exit at its next iteration boundary. An in-flight
// sync is allowed to finish. Safe to call more than once.
func (s *Synchronizer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Done is closed when the polling loop has exited. It never closes if Start was not called.
func (s *Synchronizer) Done() <-chan struct{} {
	return s.done
}

// SyncNow performs one GET of the toggles endpoint and, on success, replaces
// the cached repository. On any failure the cache is left untouched.
//
// Safe for concurrent use. Concurrent polling calls share one request.
// Realtime calls never join a request that was already in flight when they
// arrived: they queue behind it and are served by the next GET, which also
// covers every other realtime call queued meanwhile. Polling and Realtime
// syncs may race; every response is a complete snapshot.
func (s *Synchronizer) SyncNow(ctx context.Context, kind TriggerKind) error {
	if kind == Realtime {
		return s.syncRealtime(ctx)
	}
	_, err, _ := s.flight.Do(kind.String(), func() (any, error) {
		return nil, s.syncOnce(ctx, kind)
	})
	return err
}

func (s *Synchronizer) syncRealtime(ctx context.Context) error {
	ticket := s.requested.Add(1)

	s.realtimeMu.Lock()
	defer s.realtimeMu.Unlock()

	if s.covered >= ticket {
		return s.realtimeErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	upTo := s.requested.Load()
	err := s.syncOnce(ctx, Realtime)
	s.covered, s.realtimeErr = upTo, err
	return err
}

func (s *Synchronizer) lastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Synchronizer) syncOnce(ctx context.Context, kind TriggerKind) error {
	startTime := time.Now()
	err := s.fetch(ctx)
	latency := time.Since(startTime)

	s.metrics.SyncTotal.WithLabelValues(kind.String(), metrics.Result(err)).Inc()
	s.metrics.SyncDuration.WithLabelValues(kind.String()).Observe(latency.Seconds())

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.connectivity.TrackFailure(connectivity.Toggles, s.url.String(), latency, err.Error())
		s.logger.Warn("Sync failed, keeping previous repository",
			"trigger", kind.String(),
			"error", err,
			"latency_ms", latency.Milliseconds(),
		)
		return err
	}

	s.connectivity.TrackSuccess(connectivity.Toggles, s.url.String(), latency)
	s.metrics.Toggles.Set(float64(s.cache.Len()))
	return nil
}

func (s *Synchronizer) fetch(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url.String(), nil)
	if err != nil {
		return transport.URLError("toggles request", err)
	}
	transport.SetHeaders(req, s.auth)

	resp, err := s.http.Do(req)
	if err != nil {
		return transport.HTTPError("sync request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return transport.HTTPError(fmt.Sprintf("sync http failed: status code %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transport.HTTPError("failed to read sync body", err)
	}

	repo, err := repository.Parse(body)
	if err != nil {
		return transport.JSONError("failed to decode repository", err)
	}

	checksum := repository.Checksum(body)
	s.mu.Lock()
	changed := checksum != s.checksum
	s.checksum = checksum
	s.mu.Unlock()

	s.cache.Replace(repo)

	if changed {
		s.logger.Debug("Repository updated", "toggles", len(repo), "checksum", checksum)
	}
	return nil
}
