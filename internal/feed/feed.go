// Package feed carries row-level change events from the persistence layer
// to sync sessions.
//
// A Publisher emits one Event per committed row change. A Source opens a
// Subscription scoped to one workspace session. Transports: an in-process
// Hub, redis pub/sub, postgres LISTEN/NOTIFY and a websocket client.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nhle/workera/internal/model"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"

	// EventResync is emitted by a transport after it reconnected and may
	// have missed events.
	EventResync EventType = "resync"
)

// Event is one row change. New holds the full row image for insert and
// update; Old holds at least the row id for delete.
type Event struct {
	Table       string          `json:"table"`
	Type        EventType       `json:"type"`
	New         json.RawMessage `json:"new,omitempty"`
	Old         json.RawMessage `json:"old,omitempty"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	UserID      string          `json:"user_id,omitempty"`

	// ReceivedAt is stamped by the receiving transport.
	ReceivedAt time.Time `json:"-"`
}

// Scope selects the events delivered to a session: rows of the active
// workspace, plus the user's own notifications and workspaces.
type Scope struct {
	WorkspaceID string
	UserID      string
}

// Matches reports whether e belongs to the scope.
func (s Scope) Matches(e Event) bool {
	switch e.Table {
	case model.TableNotifications:
		return s.UserID != "" && e.UserID == s.UserID
	case model.TableWorkspaces:
		return (s.WorkspaceID != "" && e.WorkspaceID == s.WorkspaceID) ||
			(s.UserID != "" && e.UserID == s.UserID)
	}
	return s.WorkspaceID != "" && e.WorkspaceID == s.WorkspaceID
}

// Publisher emits change events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Source opens scoped subscriptions.
type Source interface {
	Subscribe(ctx context.Context, scope Scope) (Subscription, error)
}

// Subscription is a live stream of events. Events is closed after Close.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }

// NewRowEvent builds an event carrying the JSON image of row.
func NewRowEvent(table string, typ EventType, row any, workspaceID, userID string) (Event, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return Event{}, fmt.Errorf("encoding %s row: %w", table, err)
	}
	e := Event{Table: table, Type: typ, WorkspaceID: workspaceID, UserID: userID}
	if typ == EventDelete {
		e.Old = raw
	} else {
		e.New = raw
	}
	return e, nil
}

// RowID extracts the "id" field of the event's row image.
func (e Event) RowID() string {
	var row struct {
		ID string `json:"id"`
	}
	src := e.New
	if len(src) == 0 {
		src = e.Old
	}
	_ = json.Unmarshal(src, &row)
	return row.ID
}

// stream is the Subscription shared by the transports. The transport's
// reader goroutine owns events and closes it when it returns.
type stream struct {
	events  chan Event
	cancel  context.CancelFunc
	done    chan struct{}
	release func() error

	once gosync.Once
	err  error
}

func newStream(parent context.Context, buffer int) (*stream, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &stream{
		events: make(chan Event, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

func (s *stream) Events() <-chan Event { return s.events }

func (s *stream) Close() error {
	s.once.Do(func() {
		s.cancel()
		if s.release != nil {
			s.err = s.release()
		}
		<-s.done
	})
	return s.err
}

// run starts the reader goroutine. read blocks until the next payload or
// returns an error when the transport is gone.
func (s *stream) run(ctx context.Context, logger log.FieldLogger, scope Scope, read func(context.Context) ([]byte, error)) {
	go func() {
		defer close(s.done)
		defer close(s.events)
		for {
			payload, err := read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.WithError(err).Warn("feed transport closed")
				}
				return
			}
			s.deliver(ctx, logger, scope, payload)
		}
	}()
}

// deliver decodes one payload and forwards it when it matches the scope.
func (s *stream) deliver(ctx context.Context, logger log.FieldLogger, scope Scope, payload []byte) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		logger.WithError(err).Debug("dropping malformed feed event")
		return
	}
	unscoped := e.Type == EventResync && e.WorkspaceID == "" && e.UserID == ""
	if !unscoped && !scope.Matches(e) {
		return
	}
	s.emit(ctx, e)
}

func (s *stream) emit(ctx context.Context, e Event) {
	e.ReceivedAt = time.Now()
	select {
	case s.events <- e:
	case <-ctx.Done():
	}
}

func loggerOrStd(l log.FieldLogger) log.FieldLogger {
	if l == nil {
		return log.StandardLogger()
	}
	return l
}
