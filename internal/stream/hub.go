package stream

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"arblog/internal/model"
)

const (
	subscriberBuffer = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
)

// Reconnect backoff for the notification feed and the tail client.
var (
	minBackoff = time.Second
	maxBackoff = 16 * time.Second
)

// sleep waits for d or until ctx ends, reporting whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// Source delivers the id of every committed append until ctx ends.
type Source interface {
	Listen(ctx context.Context, fn func(id int64)) error
}

// Loader fetches a committed attempt by id.
type Loader interface {
	Get(ctx context.Context, id int64) (model.ArbitrageAttempt, error)
}

// Hub fans appended attempts out to websocket subscribers.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[chan model.ArbitrageAttempt]struct{}
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[chan model.ArbitrageAttempt]struct{}),
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be called
// once the subscriber is done.
func (h *Hub) Subscribe() (<-chan model.ArbitrageAttempt, func()) {
	ch := make(chan model.ArbitrageAttempt, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers the attempt to every subscriber without blocking; a
// subscriber whose buffer is full misses it.
func (h *Hub) Publish(a model.ArbitrageAttempt) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- a:
		default:
			h.logger.Warn("Hub: subscriber too slow, dropping attempt", "id", a.ID)
		}
	}
}

// Run forwards every append reported by src to the subscribers until ctx ends.
// A broken feed is re-subscribed with capped exponential backoff; Run only
// returns, with nil, once ctx is cancelled.
func (h *Hub) Run(ctx context.Context, src Source, loader Loader) error {
	backoff := minBackoff
	for {
		h.logger.Info("Hub: listening for appended attempts")
		err := src.Listen(ctx, func(id int64) {
			// A delivered notification proves the feed is healthy.
			backoff = minBackoff
			a, err := loader.Get(ctx, id)
			if err != nil {
				h.logger.Error("Hub: failed to load appended attempt", "id", id, "error", err)
				return
			}
			h.Publish(a)
		})
		if ctx.Err() != nil {
			h.logger.Info("Hub: stopped listening")
			return nil
		}
		h.logger.Error("Hub: notification feed lost, retrying", "error", err, "backoff", backoff)
		if !sleep(ctx, backoff) {
			h.logger.Info("Hub: stopped listening")
			return nil
		}
		backoff = nextBackoff(backoff)
	}
}

// ServeWS upgrades the request and streams attempts as JSON text frames until
// the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Hub: websocket upgrade failed", "error", err)
		return
	}
	defer c.Close()

	attempts, cancel := h.Subscribe()
	defer cancel()
	h.logger.Debug("Hub: subscriber connected", "remote", r.RemoteAddr)

	// Reader: only needed to process control frames and notice the close.
	closed := make(chan struct{})
	c.SetReadLimit(512)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			h.logger.Debug("Hub: subscriber disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case a := <-attempts:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteJSON(a); err != nil {
				h.logger.Warn("Hub: failed to write attempt", "id", a.ID, "error", err)
				return
			}
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
