package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// maxNotifyPayload stays under the 8000 byte limit of NOTIFY payloads.
const maxNotifyPayload = 7900

// PostgresPublisher publishes events with pg_notify.
type PostgresPublisher struct {
	db      *sqlx.DB
	channel string
}

var _ Publisher = (*PostgresPublisher)(nil)

// NewPostgresPublisher returns a publisher notifying channel on db.
func NewPostgresPublisher(db *sqlx.DB, channel string) *PostgresPublisher {
	return &PostgresPublisher{db: db, channel: channel}
}

// Publish notifies e. Row images too large for a notification are replaced
// by a resync event so listeners reload instead.
func (p *PostgresPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding feed event: %w", err)
	}
	if len(payload) > maxNotifyPayload {
		payload, _ = json.Marshal(Event{
			Table:       e.Table,
			Type:        EventResync,
			WorkspaceID: e.WorkspaceID,
			UserID:      e.UserID,
		})
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", p.channel, string(payload)); err != nil {
		return fmt.Errorf("notifying %s: %w", p.channel, err)
	}
	return nil
}

// PostgresSource listens on a postgres notification channel. Each
// subscription holds its own listener connection.
type PostgresSource struct {
	dsn     string
	channel string
	logger  log.FieldLogger
}

var _ Source = (*PostgresSource)(nil)

// NewPostgresSource returns a source listening on channel.
func NewPostgresSource(dsn, channel string, logger log.FieldLogger) *PostgresSource {
	return &PostgresSource{
		dsn:     dsn,
		channel: channel,
		logger:  loggerOrStd(logger).WithFields(log.Fields{"feed": "postgres", "channel": channel}),
	}
}

var resyncPayload = []byte(`{"type":"resync"}`)

// Subscribe starts a listener. After a reconnect the listener delivers a
// resync event since notifications sent while disconnected are lost.
func (p *PostgresSource) Subscribe(ctx context.Context, scope Scope) (Subscription, error) {
	logger := p.logger
	listener := pq.NewListener(p.dsn, 100*time.Millisecond, 10*time.Second, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			logger.WithError(err).Warn("postgres listener disconnected")
		case pq.ListenerEventReconnected:
			logger.Info("postgres listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			logger.WithError(err).Debug("postgres listener connection attempt failed")
		}
	})
	if err := listener.Listen(p.channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listening on %s: %w", p.channel, err)
	}

	s, sctx := newStream(ctx, DefaultBuffer)
	s.release = listener.Close
	s.run(sctx, logger, scope, func(ctx context.Context) ([]byte, error) {
		for {
			select {
			case n, ok := <-listener.Notify:
				if !ok {
					return nil, fmt.Errorf("listener on %s closed", p.channel)
				}
				if n == nil {
					return resyncPayload, nil
				}
				return []byte(n.Extra), nil
			case <-time.After(90 * time.Second):
				// Detect dead connections the server never reported.
				go func() { _ = listener.Ping() }()
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	})
	return s, nil
}
