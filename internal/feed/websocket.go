package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	gosync "sync"
	"time"

	log "github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

// maxFrame bounds one websocket event message.
const maxFrame = 1 << 20

// WebsocketSource reads events from a realtime websocket endpoint. The
// scope is sent as workspace_id and user_id query parameters.
type WebsocketSource struct {
	endpoint string
	token    string
	logger   log.FieldLogger

	// reconnectDelay is the pause before redialing a dropped connection.
	reconnectDelay time.Duration
}

var _ Source = (*WebsocketSource)(nil)

// NewWebsocketSource returns a source dialing endpoint with a bearer token.
func NewWebsocketSource(endpoint, token string, logger log.FieldLogger) *WebsocketSource {
	return &WebsocketSource{
		endpoint:       strings.TrimSpace(endpoint),
		token:          strings.TrimSpace(token),
		logger:         loggerOrStd(logger).WithField("feed", "websocket"),
		reconnectDelay: time.Second,
	}
}

func (w *WebsocketSource) dial(ctx context.Context, scope Scope) (*websocket.Conn, error) {
	u, err := url.Parse(w.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing realtime url: %w", err)
	}
	q := u.Query()
	q.Set("workspace_id", scope.WorkspaceID)
	q.Set("user_id", scope.UserID)
	u.RawQuery = q.Encode()

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if w.token != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+w.token)
	}
	conn, _, err := websocket.Dial(ctx, u.String(), opts)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", w.endpoint, err)
	}
	conn.SetReadLimit(maxFrame)
	return conn, nil
}

// Subscribe dials the endpoint. The first dial must succeed; later drops
// are redialed and followed by a resync event.
func (w *WebsocketSource) Subscribe(ctx context.Context, scope Scope) (Subscription, error) {
	conn, err := w.dial(ctx, scope)
	if err != nil {
		return nil, err
	}

	var mu gosync.Mutex
	current := conn

	s, sctx := newStream(ctx, DefaultBuffer)
	s.release = func() error {
		mu.Lock()
		c := current
		mu.Unlock()
		// Close reports an error when the read loop already tore the
		// connection down; that is the expected outcome here.
		_ = c.Close(websocket.StatusNormalClosure, "")
		return nil
	}
	s.run(sctx, w.logger, scope, func(ctx context.Context) ([]byte, error) {
		mu.Lock()
		c := current
		mu.Unlock()

		_, payload, err := c.Read(ctx)
		if err == nil {
			return payload, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		w.logger.WithError(err).Warn("realtime connection lost, redialing")
		for {
			if waitErr := sleepContext(ctx, w.reconnectDelay); waitErr != nil {
				return nil, waitErr
			}
			next, dialErr := w.dial(ctx, scope)
			if dialErr != nil {
				w.logger.WithError(dialErr).Debug("redial failed")
				continue
			}
			mu.Lock()
			current = next
			mu.Unlock()
			return resyncPayload, nil
		}
	})
	return s, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
