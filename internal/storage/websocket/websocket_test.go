package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navbridge/extension/pkg/core"
	"github.com/navbridge/extension/pkg/streaming"
)

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and acks hello. The returned func drops every
// open connection.
func testServer(t *testing.T, ackHello bool) (*httptest.Server, *messageLog, func()) {
	t.Helper()
	ml := &messageLog{}

	var mu sync.Mutex
	var conns []*ws.Conn

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.addSecret(r.URL.Query().Get("secret"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()
		mu.Lock()
		conns = append(conns, c)
		mu.Unlock()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				if ws.IsCloseError(err, ws.CloseNormalClosure) {
					ml.addNormalClose()
				}
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			if env.Type == streaming.TypeHello && ackHello {
				ack := streaming.AckMessage{Type: "ack", For: env.Type}
				data, _ := json.Marshal(ack)
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	drop := func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
		conns = nil
	}
	return srv, ml, drop
}

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
	secrets  []string
	closes   int
}

func (m *messageLog) addNormalClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
}

func (m *messageLog) normalCloses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) addSecret(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets = append(m.secrets, s)
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func (m *messageLog) count(msgType string) int {
	n := 0
	for _, env := range m.all() {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestInit_SendsHelloAndWaitsForAck(t *testing.T) {
	srv, ml, _ := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "test", Service: "navbridge", Instance: "i-1"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	msgs := ml.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, streaming.TypeHello, msgs[0].Type)

	var hello streaming.HelloPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &hello))
	assert.Equal(t, streaming.HelloPayload{Service: "navbridge", Instance: "i-1"}, hello)
	assert.Equal(t, []string{"test"}, ml.secrets)
}

func TestInit_AckTimeout(t *testing.T) {
	srv, _, _ := testServer(t, false)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), AckTimeout: 50 * time.Millisecond}, nil)
	err := b.Init()
	assert.ErrorContains(t, err, "timeout waiting for ack")
	b.Close()
}

func TestInit_DialFailure(t *testing.T) {
	b := New(Config{URL: "ws://127.0.0.1:1/journal"}, nil)
	assert.ErrorContains(t, b.Init(), "websocket dial failed")
}

func TestRecordsAreForwarded(t *testing.T) {
	srv, ml, _ := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "s"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	now := time.Now()
	require.NoError(t, b.RecordMarkerTap(&core.MarkerTap{MarkerID: "a", Time: now, Latitude: 1, Longitude: 2}))
	require.NoError(t, b.RecordNavigationEvent(&core.NavigationEvent{Type: "ROUTE_BUILT", Time: now, Data: json.RawMessage(`[]`)}))
	require.NoError(t, b.RecordSceneSnapshot(&core.SceneSnapshot{Annotations: 2, Time: now}))

	assert.Eventually(t, func() bool { return len(ml.all()) == 4 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, ml.count(streaming.TypeMarkerTap))
	assert.Equal(t, 1, ml.count(streaming.TypeNavigationEvent))
	assert.Equal(t, 1, ml.count(streaming.TypeSceneSnapshot))

	for _, env := range ml.all() {
		if env.Type != streaming.TypeMarkerTap {
			continue
		}
		var tap streaming.MarkerTapPayload
		require.NoError(t, json.Unmarshal(env.Payload, &tap))
		assert.Equal(t, "a", tap.MarkerID)
		assert.Equal(t, now.UnixMilli(), tap.Time)
	}
}

func TestReconnectReplaysHello(t *testing.T) {
	srv, ml, drop := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)}, nil)
	b.conn.reconnectBackoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 20)
	}
	require.NoError(t, b.Init())
	defer b.Close()

	drop()

	assert.Eventually(t, func() bool { return ml.count(streaming.TypeHello) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.RecordNavigationEvent(&core.NavigationEvent{Type: "ON_ARRIVAL"}))
	assert.Eventually(t, func() bool { return ml.count(streaming.TypeNavigationEvent) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	srv, _, _ := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())
	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}

func TestClose_WhileForwarding(t *testing.T) {
	srv, ml, _ := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = b.RecordNavigationEvent(&core.NavigationEvent{Type: "PROGRESS_CHANGE", Time: time.Now()})
		}
	}()

	assert.Eventually(t, func() bool { return ml.count(streaming.TypeNavigationEvent) > 10 }, 2*time.Second, time.Millisecond)
	assert.NoError(t, b.Close())
	close(stop)
	wg.Wait()

	assert.Eventually(t, func() bool { return ml.normalCloses() == 1 }, 2*time.Second, 10*time.Millisecond)
}
