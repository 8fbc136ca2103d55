package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pushServer is a minimal websocket endpoint feeding canned envelopes.
type pushServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	accepts  atomic.Int32
	refuse   atomic.Bool
	send     chan map[string]any
	drop     chan struct{}
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()

	ps := &pushServer{
		send: make(chan map[string]any, 16),
		drop: make(chan struct{}, 1),
	}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ps.refuse.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := ps.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.accepts.Add(1)
		defer conn.Close()

		clientGone := make(chan struct{})
		go func() {
			defer close(clientGone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case msg := <-ps.send:
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-ps.drop:
				return
			case <-clientGone:
				return
			}
		}
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *pushServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http")
}

func newTestPush(ps *pushServer) *Push {
	return NewPush(PushConfig{
		URL:         ps.wsURL(),
		BackoffBase: 20 * time.Millisecond,
		BackoffMax:  100 * time.Millisecond,
	}, nil, nil)
}

func TestPushDeliversPayloads(t *testing.T) {
	ps := newPushServer(t)
	p := newTestPush(ps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	ps.send <- map[string]any{"success": true, "version": "3"}

	select {
	case raw := <-p.Payloads():
		assert.Equal(t, true, raw["success"])
	case <-time.After(2 * time.Second):
		t.Fatal("no payload delivered")
	}

	session := p.Session()
	assert.Equal(t, ModePush, session.Mode)
	assert.Equal(t, StatusActive, session.Status)
	assert.NotEmpty(t, session.ID)
}

func TestPushReconnectsAfterDrop(t *testing.T) {
	ps := newPushServer(t)
	p := newTestPush(ps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	ps.send <- map[string]any{"success": true}
	select {
	case <-p.Payloads():
	case <-time.After(2 * time.Second):
		t.Fatal("no payload before drop")
	}
	firstSession := p.Session().ID

	ps.drop <- struct{}{}

	select {
	case f := <-p.Failures():
		assert.Equal(t, ModePush, f.Mode)
		assert.Equal(t, 1, f.Consecutive)
	case <-time.After(2 * time.Second):
		t.Fatal("no failure signal after drop")
	}

	// A new session replaces the dropped one and payloads flow again.
	require.Eventually(t, func() bool { return ps.accepts.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
	ps.send <- map[string]any{"success": true}
	select {
	case <-p.Payloads():
	case <-time.After(2 * time.Second):
		t.Fatal("no payload after reconnect")
	}
	assert.NotEqual(t, firstSession, p.Session().ID)
}

func TestPushAccumulatesConsecutiveFailures(t *testing.T) {
	ps := newPushServer(t)
	ps.refuse.Store(true)
	p := newTestPush(ps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	var last Failure
	deadline := time.After(3 * time.Second)
	for last.Consecutive < 3 {
		select {
		case last = <-p.Failures():
		case <-deadline:
			t.Fatalf("expected 3 consecutive failures, got %d", last.Consecutive)
		}
	}

	assert.Equal(t, ModePush, last.Mode)
	assert.Equal(t, StatusFailing, p.Session().Status)
}

func TestPushTeardownReachesIdle(t *testing.T) {
	ps := newPushServer(t)
	p := newTestPush(ps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	ps.send <- map[string]any{"success": true}
	select {
	case <-p.Payloads():
	case <-time.After(2 * time.Second):
		t.Fatal("no payload delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on cancellation")
	}
	assert.Equal(t, StatusIdle, p.Session().Status)
}
