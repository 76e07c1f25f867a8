package featureprobe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/FeatureProbe/client-sdk-mobile/connectivity"
	"github.com/FeatureProbe/client-sdk-mobile/event"
	"github.com/FeatureProbe/client-sdk-mobile/metrics"
	"github.com/FeatureProbe/client-sdk-mobile/realtime"
	"github.com/FeatureProbe/client-sdk-mobile/repository"
	"github.com/FeatureProbe/client-sdk-mobile/runner"
	"github.com/FeatureProbe/client-sdk-mobile/syncer"
	"github.com/FeatureProbe/client-sdk-mobile/transport"
	"github.com/FeatureProbe/client-sdk-mobile/user"
)

// Detail is the result of a detail lookup.
type Detail[T any] = repository.Detail[T]

// Reasons reported by detail lookups that fall back to the default.
const (
	ReasonTypeMismatch = "Value type mismatch"
)

// closeTimeout bounds the final event flush in Close.
const closeTimeout = 5 * time.Second

// Client is the evaluation facade. It is safe for concurrent use.
type Client struct {
	user         *user.User
	cache        *repository.Cache
	syncer       *syncer.Synchronizer
	notifier     *realtime.Notifier
	recorder     *event.Recorder
	runner       *runner.Runner
	connectivity *connectivity.Tracker
	logger       *slog.Logger
	now          func() time.Time

	startErr error

	closeOnce sync.Once
	closeErr  error
}

// New creates a client for u and starts its background systems. The returned
// error only reports invalid configuration; the outcome of the first sync is
// available from StartError. Cancelling ctx stops the background systems like
// Close does, without the final flush.
func New(ctx context.Context, config Config, u *user.User) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config = config.withDefaults()

	if u == nil {
		u = user.New("")
	}
	u = u.Clone()

	httpClient := config.HTTPClient
	if httpClient == nil {
		var err error
		httpClient, err = transport.NewHTTPClient(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to build HTTP client: %w", err)
		}
	}

	logger := config.Logger
	m := metrics.New(config.Registerer)
	tracker := connectivity.NewTracker()
	cache := repository.NewCache(nil)
	urls := config.URLs()

	recorder, err := event.New(event.Options{
		URL:           urls.Events,
		Auth:          config.ClientSDKKey,
		HTTPClient:    httpClient,
		FlushInterval: config.RefreshInterval,
		Capacity:      config.EventCapacity,
		QueueLimit:    config.EventQueueLimit,
		Logger:        logger,
		Metrics:       m,
		Connectivity:  tracker,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event recorder: %w", err)
	}

	synchronizer, err := syncer.New(syncer.Options{
		TogglesURL:   urls.Toggles,
		UserParam:    u.Base64(),
		Interval:     config.RefreshInterval,
		Auth:         config.ClientSDKKey,
		HTTPClient:   httpClient,
		Cache:        cache,
		Logger:       logger,
		Metrics:      m,
		Connectivity: tracker,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create synchronizer: %w", err)
	}

	var notifier *realtime.Notifier
	if !config.RealtimeDisabled {
		notifier, err = realtime.New(realtime.Options{
			URL:          urls.Realtime,
			ClientSDKKey: config.ClientSDKKey,
			Syncer:       synchronizer,
			Logger:       logger,
			Metrics:      m,
			Connectivity: tracker,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create realtime notifier: %w", err)
		}
	}

	c := &Client{
		user:         u,
		cache:        cache,
		syncer:       synchronizer,
		notifier:     notifier,
		recorder:     recorder,
		runner:       runner.New(ctx, logger),
		connectivity: tracker,
		logger:       logger.With("component", "client"),
		now:          time.Now,
	}

	c.runner.Go("event-recorder", recorder.Run)
	if notifier != nil {
		c.runner.Go("realtime", notifier.Run)
	}
	c.runner.Go("syncer-stop", func(ctx context.Context) error {
		<-ctx.Done()
		synchronizer.Stop()
		return nil
	})

	c.startErr = synchronizer.Start(config.StartWait)
	if c.startErr != nil {
		c.logger.Warn("First sync failed, serving defaults until the next successful sync",
			"error", c.startErr,
		)
	}

	c.logger.Info("FeatureProbe client initialized",
		"user", u.Key(),
		"toggles_url", urls.Toggles,
		"realtime", notifier != nil,
		"refresh_interval", config.RefreshInterval.String(),
		"toggles", cache.Len(),
	)
	return c, nil
}

// NewWithRepository creates an offline client serving repo. It never syncs
// and records no events. Intended for tests and benchmarks.
func NewWithRepository(repo repository.Repository) *Client {
	return &Client{
		user:   user.New(""),
		cache:  repository.NewCache(repo),
		logger: slog.Default().With("component", "client"),
		now:    time.Now,
	}
}

// NewForTest creates an offline client whose toggles hold the given raw values.
func NewForTest(toggles map[string]any) *Client {
	repo := make(repository.Repository, len(toggles))
	for key, v := range toggles {
		repo[key] = repository.Detail[repository.Value]{Value: repository.FromAny(v)}
	}
	return NewWithRepository(repo)
}

// StartError returns the outcome of the bounded startup wait: nil, the failure
// of the last attempt that fit in StartWait, or an error wrapping
// syncer.ErrStartTimeout and the last sync failure seen.
func (c *Client) StartError() error {
	return c.startErr
}

// User returns a copy of the client's user.
func (c *Client) User() *user.User {
	return c.user.Clone()
}

// Connectivity returns the health of the remote endpoints.
func (c *Client) Connectivity() []connectivity.Status {
	return c.connectivity.Snapshot()
}

// BoolValue returns the toggle's bool value, or def.
func (c *Client) BoolValue(key string, def bool) bool {
	return c.BoolDetail(key, def).Value
}

// BoolDetail returns the toggle's bool value with evaluation metadata.
func (c *Client) BoolDetail(key string, def bool) Detail[bool] {
	return evaluate(c, key, def, repository.Value.AsBool)
}

// StringValue returns the toggle's string value, or def.
func (c *Client) StringValue(key string, def string) string {
	return c.StringDetail(key, def).Value
}

// StringDetail returns the toggle's string value with evaluation metadata.
func (c *Client) StringDetail(key string, def string) Detail[string] {
	return evaluate(c, key, def, repository.Value.AsString)
}

// NumberValue returns the toggle's number value, or def.
func (c *Client) NumberValue(key string, def float64) float64 {
	return c.NumberDetail(key, def).Value
}

// NumberDetail returns the toggle's number value with evaluation metadata.
func (c *Client) NumberDetail(key string, def float64) Detail[float64] {
	return evaluate(c, key, def, repository.Value.AsNumber)
}

// JSONValue returns the toggle's value as a decoded JSON document, or def.
func (c *Client) JSONValue(key string, def any) any {
	return c.JSONDetail(key, def).Value
}

// JSONDetail returns the toggle's JSON value with evaluation metadata.
func (c *Client) JSONDetail(key string, def any) Detail[any] {
	return evaluate(c, key, def, repository.Value.AsJSON)
}

// evaluate looks key up and narrows its value. Any found key is recorded,
// whether or not the value has the requested type.
func evaluate[T any](c *Client, key string, def T, coerce func(repository.Value) (T, bool)) Detail[T] {
	d, ok := c.cache.Get(key)
	if !ok {
		return Detail[T]{
			Value:  def,
			Reason: fmt.Sprintf("Toggle %s not found", key),
		}
	}

	c.record(key, d)

	v, ok := coerce(d.Value)
	if !ok {
		return Detail[T]{
			Value:  def,
			Reason: ReasonTypeMismatch,
		}
	}
	return repository.Convert(d, v)
}

func (c *Client) record(key string, d repository.Detail[repository.Value]) {
	if c.recorder == nil {
		return
	}
	now := event.UnixMillis(c.now())
	c.recorder.Record(event.ForEvaluation(now, key, c.user, d)...)
}

// Track records a custom event. value may be nil.
func (c *Client) Track(name string, value *float64) {
	if c.recorder == nil {
		return
	}
	c.recorder.Record(event.NewCustom(event.UnixMillis(c.now()), c.user, name, value))
}

// TrackValue records a custom event with a numeric value.
func (c *Client) TrackValue(name string, value float64) {
	c.Track(name, &value)
}

// Close flushes pending events and stops every background system. Lookups
// keep working against the last snapshot. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		var errs []error

		if c.recorder != nil {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			if err := c.recorder.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("final event flush failed: %w", err))
			}
			cancel()
		}
		if c.syncer != nil {
			c.syncer.Stop()
		}
		if c.runner != nil {
			if err := c.runner.Shutdown(); err != nil {
				errs = append(errs, err)
			}
		}
		if c.notifier != nil {
			c.notifier.Wait()
		}

		c.closeErr = errors.Join(errs...)
		c.logger.Info("FeatureProbe client closed", "user", c.user.Key())
	})
	return c.closeErr
}
