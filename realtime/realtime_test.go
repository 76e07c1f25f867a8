package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeatureProbe/client-sdk-mobile/backoff"
	"github.com/FeatureProbe/client-sdk-mobile/metrics"
	"github.com/FeatureProbe/client-sdk-mobile/syncer"
	"github.com/FeatureProbe/client-sdk-mobile/transport"
)

type fakeSyncer struct {
	calls chan syncer.TriggerKind
}

func (f *fakeSyncer) SyncNow(_ context.Context, kind syncer.TriggerKind) error {
	f.calls <- kind
	return nil
}

// pushServer accepts websocket connections, records register messages and
// lets the test push frames or drop the connection.
type pushServer struct {
	*httptest.Server
	upgrader  websocket.Upgrader
	registers chan RegisterData
	conns     chan *websocket.Conn

	mu    sync.Mutex
	alive []*websocket.Conn
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{
		registers: make(chan RegisterData, 8),
		conns:     make(chan *websocket.Conn, 8),
	}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ps.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil || msg.Event != EventRegister {
			conn.Close()
			return
		}
		var reg RegisterData
		_ = json.Unmarshal(msg.Data, &reg)

		ps.mu.Lock()
		ps.alive = append(ps.alive, conn)
		ps.mu.Unlock()

		ps.registers <- reg
		ps.conns <- conn
	}))
	t.Cleanup(func() {
		ps.mu.Lock()
		for _, c := range ps.alive {
			c.Close()
		}
		ps.mu.Unlock()
		ps.Close()
	})
	return ps
}

func (ps *pushServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ps.URL, "http") + "/realtime"
}

func waitConn(t *testing.T, ps *pushServer) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ps.conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("no realtime connection")
		return nil
	}
}

func startNotifier(t *testing.T, url string, s Syncer, m *metrics.Metrics) (context.CancelFunc, chan error) {
	t.Helper()
	n, err := New(Options{
		URL:          url,
		ClientSDKKey: "client-sdk-key",
		Syncer:       s,
		Backoff:      backoff.New(10*time.Millisecond, 50*time.Millisecond),
		Metrics:      m,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel, done
}

func TestRegisterAndUpdateTriggersRealtimeSync(t *testing.T) {
	ps := newPushServer(t)
	fs := &fakeSyncer{calls: make(chan syncer.TriggerKind, 4)}
	m := metrics.New(nil)
	startNotifier(t, ps.wsURL(), fs, m)

	conn := waitConn(t, ps)
	reg := <-ps.registers
	assert.Equal(t, "client-sdk-key", reg.Key)

	require.NoError(t, conn.WriteJSON(Message{Event: EventUpdate, Data: json.RawMessage(`{"any":"payload"}`)}))

	select {
	case kind := <-fs.calls:
		assert.Equal(t, syncer.Realtime, kind)
	case <-time.After(2 * time.Second):
		t.Fatal("update did not trigger a sync")
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RealtimeMessages.WithLabelValues(EventUpdate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RealtimeConnects.WithLabelValues(metrics.ResultSuccess)))
}

func TestErrorAndUnknownMessagesDoNotSync(t *testing.T) {
	ps := newPushServer(t)
	fs := &fakeSyncer{calls: make(chan syncer.TriggerKind, 4)}
	m := metrics.New(nil)
	startNotifier(t, ps.wsURL(), fs, m)

	conn := waitConn(t, ps)
	require.NoError(t, conn.WriteJSON(Message{Event: EventError, Data: json.RawMessage(`"bad key"`)}))
	require.NoError(t, conn.WriteJSON(Message{Event: "hello"}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RealtimeMessages.WithLabelValues("other")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RealtimeMessages.WithLabelValues(EventError)))
	assert.Empty(t, fs.calls)
}

func TestReconnectsAfterDrop(t *testing.T) {
	ps := newPushServer(t)
	fs := &fakeSyncer{calls: make(chan syncer.TriggerKind, 4)}
	startNotifier(t, ps.wsURL(), fs, metrics.New(nil))

	first := waitConn(t, ps)
	<-ps.registers
	first.Close()

	second := waitConn(t, ps)
	reg := <-ps.registers
	assert.Equal(t, "client-sdk-key", reg.Key)

	require.NoError(t, second.WriteJSON(Message{Event: EventUpdate}))
	select {
	case <-fs.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("update after reconnect did not trigger a sync")
	}
}

func TestRetriesWhileServerUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	m := metrics.New(nil)
	cancel, done := startNotifier(t, url, &fakeSyncer{calls: make(chan syncer.TriggerKind, 1)}, m)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RealtimeConnects.WithLabelValues(metrics.ResultFailure)) >= 2
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewMapsHTTPScheme(t *testing.T) {
	n, err := New(Options{URL: "https://fp.example.com/realtime", Syncer: &fakeSyncer{}})
	require.NoError(t, err)
	assert.Equal(t, "wss://fp.example.com/realtime", n.URL())

	_, err = New(Options{URL: "ftp://fp", Syncer: &fakeSyncer{}})
	assert.ErrorIs(t, err, transport.ErrURL)

	_, err = New(Options{URL: "ws://fp"})
	assert.Error(t, err)
}
