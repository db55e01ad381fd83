package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"nhooyr.io/websocket"

	"github.com/nhle/workera/internal/feed"
)

const writeTimeout = 10 * time.Second

// realtime streams the change events of one workspace session as JSON text
// frames. The user scope always comes from the token.
func (s *Server) realtime(w http.ResponseWriter, r *http.Request) {
	scope := feed.Scope{
		WorkspaceID: r.URL.Query().Get("workspace_id"),
		UserID:      userFrom(r.Context()),
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.logger.WithError(err).Debug("websocket accept failed")
		return
	}
	logger := s.logger.WithFields(log.Fields{"workspace": scope.WorkspaceID, "user": scope.UserID})

	// Clients never send; CloseRead cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	sub, err := s.feed.Subscribe(ctx, scope)
	if err != nil {
		logger.WithError(err).Warn("realtime subscribe failed")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer sub.Close()
	logger.Debug("realtime client attached")

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "feed closed")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				logger.WithError(err).Debug("realtime write failed")
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev feed.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
