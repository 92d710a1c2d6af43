package realtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnetto23/OmniStack-08/internal/models"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

var fastConfig = Config{
	InitialDelay: 5 * time.Millisecond,
	MaxDelay:     20 * time.Millisecond,
	MaxJitter:    time.Millisecond,
	PingInterval: time.Second,
	ReadTimeout:  5 * time.Second,
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// hold keeps the server side open until the client goes away.
func hold(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type subscription struct {
	queryUser  string
	headerUser string
	auth       string
}

type harness struct {
	t       *testing.T
	srv     *httptest.Server
	mu      sync.Mutex
	subs    []subscription
	matches chan models.Profile
	cancel  context.CancelFunc
	runErr  chan error
	ch      *Channel
}

func newHarness(t *testing.T, handler func(n int, w http.ResponseWriter, r *http.Request)) *harness {
	t.Helper()
	h := &harness{t: t, matches: make(chan models.Profile, 8), runErr: make(chan error, 1)}

	var n int32
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.subs = append(h.subs, subscription{
			queryUser:  r.URL.Query().Get("user"),
			headerUser: r.Header.Get("user"),
			auth:       r.Header.Get("Authorization"),
		})
		h.mu.Unlock()
		handler(int(atomic.AddInt32(&n, 1)), w, r)
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) start(user models.User, opts ...Option) {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	opts = append([]Option{WithConfig(fastConfig), WithLogger(quietLogger())}, opts...)
	h.ch = New(wsURL(h.srv), user, func(p models.Profile) { h.matches <- p }, opts...)
	go func() { h.runErr <- h.ch.Run(ctx) }()
	h.t.Cleanup(cancel)
}

func (h *harness) nextMatch() models.Profile {
	h.t.Helper()
	select {
	case p := <-h.matches:
		return p
	case <-time.After(3 * time.Second):
		h.t.Fatal("timed out waiting for a match")
		return models.Profile{}
	}
}

func (h *harness) stop() error {
	h.t.Helper()
	h.cancel()
	select {
	case err := <-h.runErr:
		return err
	case <-time.After(3 * time.Second):
		h.t.Fatal("Run did not return after cancel")
		return nil
	}
}

func (h *harness) subscriptions() []subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]subscription, len(h.subs))
	copy(out, h.subs)
	return out
}

// sendMatch runs on the server goroutine, so it must not touch t.
func sendMatch(conn *websocket.Conn, id, name string) {
	_ = conn.WriteJSON(map[string]any{
		"type": "match",
		"data": map[string]any{"_id": id, "name": name, "bio": "", "avatar": ""},
	})
}

func TestChannel(t *testing.T) {
	me := models.User{ID: "u1", Username: "maria", Token: "tok"}

	t.Run("Delivers matches keyed by user", func(t *testing.T) {
		h := newHarness(t, func(_ int, w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			sendMatch(conn, "b", "Bruno")
			hold(conn)
		})
		h.start(me)

		p := h.nextMatch()
		assert.Equal(t, "b", p.ID)
		assert.Equal(t, "Bruno", p.Name)

		subs := h.subscriptions()
		require.Len(t, subs, 1)
		assert.Equal(t, "u1", subs[0].queryUser)
		assert.Equal(t, "u1", subs[0].headerUser)
		assert.Equal(t, "Bearer tok", subs[0].auth)

		assert.ErrorIs(t, h.stop(), context.Canceled)
		assert.Equal(t, Disconnected, h.ch.State())
	})

	t.Run("Ignores unknown and malformed messages", func(t *testing.T) {
		h := newHarness(t, func(_ int, w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			_ = conn.WriteJSON(map[string]any{"type": "info", "data": "connected"})
			_ = conn.WriteJSON(map[string]any{"type": "typing"})
			_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
			_ = conn.WriteJSON(map[string]any{"type": "match", "data": map[string]any{"_id": "x"}})
			sendMatch(conn, "c", "Carla")
			hold(conn)
		})
		h.start(me)

		assert.Equal(t, "c", h.nextMatch().ID)
		_ = h.stop()
	})

	t.Run("Resubscribes after a drop", func(t *testing.T) {
		h := newHarness(t, func(n int, w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			if n == 1 {
				sendMatch(conn, "a", "Ana")
				return
			}
			sendMatch(conn, "b", "Bruno")
			hold(conn)
		})
		h.start(me)

		assert.Equal(t, "a", h.nextMatch().ID)
		assert.Equal(t, "b", h.nextMatch().ID)

		subs := h.subscriptions()
		require.Len(t, subs, 2)
		for _, s := range subs {
			assert.Equal(t, "u1", s.queryUser)
		}
		assert.Equal(t, 1, h.ch.Reconnects())
		_ = h.stop()
	})

	t.Run("Backs off when the server drops right after accepting", func(t *testing.T) {
		h := newHarness(t, func(_ int, w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			_ = conn.Close()
		})
		h.start(me, WithConfig(Config{
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			MaxJitter:    time.Millisecond,
			PingInterval: time.Second,
			ReadTimeout:  5 * time.Second,
		}))

		// waits of 100ms, 200ms, 400ms leave room for three or four dials
		time.Sleep(600 * time.Millisecond)
		n := len(h.subscriptions())
		assert.GreaterOrEqual(t, n, 2)
		assert.LessOrEqual(t, n, 6)
		assert.ErrorIs(t, h.stop(), context.Canceled)
	})

	t.Run("Backs off while the server rejects", func(t *testing.T) {
		h := newHarness(t, func(n int, w http.ResponseWriter, r *http.Request) {
			if n <= 2 {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			sendMatch(conn, "b", "Bruno")
			hold(conn)
		})
		h.start(me)

		assert.Equal(t, "b", h.nextMatch().ID)
		assert.Len(t, h.subscriptions(), 3)
		assert.Equal(t, 0, h.ch.Reconnects())
		_ = h.stop()
	})

	t.Run("Reports state transitions", func(t *testing.T) {
		var mu sync.Mutex
		var seen []State
		subscribed := make(chan struct{}, 1)

		h := newHarness(t, func(_ int, w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			hold(conn)
		})
		h.start(me, OnStateChange(func(s State) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
			if s == Subscribed {
				select {
				case subscribed <- struct{}{}:
				default:
				}
			}
		}))

		select {
		case <-subscribed:
		case <-time.After(3 * time.Second):
			t.Fatal("never subscribed")
		}
		assert.Equal(t, Subscribed, h.ch.State())
		_ = h.stop()

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []State{Connecting, Subscribed, Disconnected}, seen)
	})
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{InitialDelay: 10 * time.Millisecond}.withDefaults()
	assert.Equal(t, 10*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxDelay)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.ReadTimeout)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "subscribed", Subscribed.String())
}
