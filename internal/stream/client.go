package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"arblog/internal/model"
)

// Tail connects to a stream endpoint and calls fn for every attempt received.
// Lost or refused connections are retried with capped exponential backoff.
// It returns nil once ctx is cancelled.
func Tail(ctx context.Context, logger *slog.Logger, url string, fn func(model.ArbitrageAttempt)) error {
	backoff := minBackoff
	for {
		received, err := tailOnce(ctx, logger, url, fn)
		if ctx.Err() != nil {
			logger.Info("Tail: stream closed")
			return nil
		}
		if received {
			backoff = minBackoff
		}
		logger.Error("Tail: stream lost, reconnecting", "error", err, "backoff", backoff)
		if !sleep(ctx, backoff) {
			logger.Info("Tail: stream closed")
			return nil
		}
		backoff = nextBackoff(backoff)
	}
}

// tailOnce reads one connection until it fails, reporting whether any attempt
// was delivered on it.
func tailOnce(ctx context.Context, logger *slog.Logger, url string, fn func(model.ArbitrageAttempt)) (bool, error) {
	logger.Info("Tail: connecting to WebSocket", "url", url)
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", url, err)
	}
	defer c.Close()
	logger.Info("Tail: connected successfully")

	// Unblock ReadMessage when the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.Close()
	})
	defer stop()

	received := false
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("read message: %w", err)
		}

		var a model.ArbitrageAttempt
		if err := json.Unmarshal(message, &a); err != nil {
			logger.Warn("Tail: failed to parse message", "error", err)
			continue
		}
		received = true
		fn(a)
	}
}
