// Package realtime keeps a push subscription open and turns "update" signals
// into immediate out-of-band syncs.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FeatureProbe/client-sdk-mobile/backoff"
	"github.com/FeatureProbe/client-sdk-mobile/connectivity"
	"github.com/FeatureProbe/client-sdk-mobile/metrics"
	"github.com/FeatureProbe/client-sdk-mobile/syncer"
	"github.com/FeatureProbe/client-sdk-mobile/transport"
)

// Message names on the realtime channel.
const (
	EventRegister = "register"
	EventUpdate   = "update"
	EventError    = "error"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Message is the JSON envelope of every frame.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RegisterData is the payload of the register message.
type RegisterData struct {
	Key string `json:"key"`
}

// Syncer is what the notifier drives on an update signal.
type Syncer interface {
	SyncNow(ctx context.Context, kind syncer.TriggerKind) error
}

// Options configures a Notifier.
type Options struct {
	URL          string // http(s) or ws(s); http is mapped to ws
	ClientSDKKey string
	Syncer       Syncer
	Dialer       *websocket.Dialer
	Backoff      *backoff.Sequence
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Connectivity *connectivity.Tracker
}

// Notifier maintains the subscription. Reconnects follow the backoff sequence,
// which resets after every successful register.
type Notifier struct {
	url          *url.URL
	key          string
	syncer       Syncer
	dialer       *websocket.Dialer
	backoff      *backoff.Sequence
	logger       *slog.Logger
	metrics      *metrics.Metrics
	connectivity *connectivity.Tracker

	syncs sync.WaitGroup
}

// New creates a Notifier. Call Run to connect.
func New(opts Options) (*Notifier, error) {
	u, err := transport.ParseURL("realtime url", opts.URL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if opts.Syncer == nil {
		return nil, fmt.Errorf("Syncer required")
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Backoff == nil {
		opts.Backoff = backoff.New(time.Second, backoff.DefaultMax)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}

	return &Notifier{
		url:          u,
		key:          opts.ClientSDKKey,
		syncer:       opts.Syncer,
		dialer:       opts.Dialer,
		backoff:      opts.Backoff,
		logger:       opts.Logger.With("component", "realtime"),
		metrics:      opts.Metrics,
		connectivity: opts.Connectivity,
	}, nil
}

// URL returns the websocket URL.
func (n *Notifier) URL() string {
	return n.url.String()
}

// Run connects, registers and listens until ctx is done, reconnecting after
// every failure. It always returns ctx.Err().
func (n *Notifier) Run(ctx context.Context) error {
	for {
		err := n.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := n.backoff.Next()
		n.logger.Warn("Realtime connection lost, reconnecting",
			"error", err,
			"retry_in", delay.String(),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Wait blocks until every sync started by an update signal has returned.
// Call it after cancelling Run's context.
func (n *Notifier) Wait() {
	n.syncs.Wait()
}

// session runs one connection until it drops or ctx is done.
func (n *Notifier) session(ctx context.Context) error {
	startTime := time.Now()
	conn, _, err := n.dialer.DialContext(ctx, n.url.String(), nil)
	latency := time.Since(startTime)
	if err != nil {
		n.metrics.RealtimeConnects.WithLabelValues(metrics.ResultFailure).Inc()
		n.connectivity.TrackFailure(connectivity.Realtime, n.url.String(), latency, err.Error())
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	if err := n.register(conn); err != nil {
		n.metrics.RealtimeConnects.WithLabelValues(metrics.ResultFailure).Inc()
		n.connectivity.TrackFailure(connectivity.Realtime, n.url.String(), latency, err.Error())
		return err
	}
	n.metrics.RealtimeConnects.WithLabelValues(metrics.ResultSuccess).Inc()
	n.connectivity.TrackSuccess(connectivity.Realtime, n.url.String(), latency)
	n.backoff.Reset()
	n.logger.Info("Realtime connected", "url", n.url.String())

	// Closing the socket unblocks ReadMessage on cancellation.
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-sessionDone:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		n.handle(ctx, data)
	}
}

func (n *Notifier) register(conn *websocket.Conn) error {
	data, err := json.Marshal(RegisterData{Key: n.key})
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Message{Event: EventRegister, Data: data}); err != nil {
		return fmt.Errorf("register failed: %w", err)
	}
	return nil
}

// handle reacts to one frame. Syncs it starts are bound to ctx, so they are
// aborted when the notifier stops.
func (n *Notifier) handle(ctx context.Context, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		n.logger.Warn("Ignoring malformed realtime message", "error", err)
		return
	}
	label := msg.Event
	if label != EventUpdate && label != EventError {
		label = "other"
	}
	n.metrics.RealtimeMessages.WithLabelValues(label).Inc()

	switch msg.Event {
	case EventUpdate:
		n.logger.Debug("Realtime update received")
		n.syncs.Add(1)
		go func() {
			defer n.syncs.Done()
			// Failures are logged by the syncer.
			if err := n.syncer.SyncNow(ctx, syncer.Realtime); err != nil && !errors.Is(err, context.Canceled) {
				n.logger.Debug("Realtime-triggered sync failed", "error", err)
			}
		}()
	case EventError:
		n.logger.Warn("Realtime server error", "data", string(msg.Data))
	default:
		n.logger.Debug("Ignoring realtime message", "event", msg.Event)
	}
}
