// Package store is the SQL implementation of the remote persistence port.
//
// SQLStore runs on sqlite (modernc.org/sqlite) for local and development use
// and on postgres (lib/pq). There are no foreign keys; deletes cascade in
// code inside one transaction. After every commit the changed rows are
// published to a feed.Publisher.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/remote"
)

// SQL table names differ from the feed table names where the latter are
// SQL keywords.
const (
	sqlGroups  = "board_groups"
	sqlColumns = "board_columns"
)

// SQLStore implements remote.Remote on a SQL database.
type SQLStore struct {
	db        *sqlx.DB
	publisher feed.Publisher
	logger    log.FieldLogger

	// now returns the commit time stamped into updated_at.
	now func() time.Time
}

var _ remote.Remote = (*SQLStore)(nil)

// Option configures a SQLStore.
type Option func(*SQLStore)

// WithPublisher sets the publisher receiving committed row changes.
func WithPublisher(p feed.Publisher) Option {
	return func(s *SQLStore) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(s *SQLStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the commit clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) { s.now = now }
}

// Open opens a store on driver ("sqlite" or "postgres") and applies any
// pending migrations.
func Open(driver, dsn string, opts ...Option) (*SQLStore, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteStore(dsn, opts...)
	case "postgres":
		return NewPostgresStore(dsn, opts...)
	}
	return nil, fmt.Errorf("unsupported sql driver %q", driver)
}

func newSQLStore(db *sqlx.DB, opts ...Option) (*SQLStore, error) {
	s := &SQLStore{
		db:        db,
		publisher: feed.Discard,
		logger:    log.StandardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.runMigrations(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle, used to share it with a postgres feed
// publisher.
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLStore) runMigrations() error {
	if _, err := s.db.Exec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	currentVersion := 0
	if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// q rebinds "?" placeholders for the store's driver.
func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

func (s *SQLStore) nowMillis() int64 {
	return s.now().UnixMilli()
}

// publish emits committed changes. Failures are logged; the write itself
// already succeeded.
func (s *SQLStore) publish(ctx context.Context, events ...feed.Event) {
	for _, e := range events {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{"table": e.Table, "event": e.Type}).Warn("publishing change failed")
		}
	}
}

// rowEvent builds a feed event, logging encoding failures.
func (s *SQLStore) rowEvent(table string, typ feed.EventType, row any, workspaceID, userID string) []feed.Event {
	e, err := feed.NewRowEvent(table, typ, row, workspaceID, userID)
	if err != nil {
		s.logger.WithError(err).Warn("building change event failed")
		return nil
	}
	return []feed.Event{e}
}

// exists reports whether a row with id is present in table.
func exists(ctx context.Context, tx *sqlx.Tx, table, id string) (bool, error) {
	var n int
	if err := tx.GetContext(ctx, &n, tx.Rebind("SELECT COUNT(*) FROM "+table+" WHERE id = ?"), id); err != nil {
		return false, fmt.Errorf("checking %s %s: %w", table, id, err)
	}
	return n > 0, nil
}

// notFound wraps remote.ErrNotFound with the row identity.
func notFound(table, id string) error {
	return fmt.Errorf("%s %s: %w", table, id, remote.ErrNotFound)
}

// conflict wraps remote.ErrConflict with the row identity.
func conflict(table, id string) error {
	return fmt.Errorf("%s %s already exists: %w", table, id, remote.ErrConflict)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeJSON(v any) (string, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return "", nil
		}
		return string(raw), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(text string, v any) error {
	if text == "" {
		return nil
	}
	return json.Unmarshal([]byte(text), v)
}

// isNoRows reports whether err means an empty single-row result.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
