package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
)

func (s *SQLStore) getNotification(ctx context.Context, q sqlx.QueryerContext, id string) (model.Notification, error) {
	var row notificationRow
	err := sqlx.GetContext(ctx, q, &row, s.q("SELECT "+notificationCols+" FROM notifications WHERE id = ?"), id)
	if isNoRows(err) {
		return model.Notification{}, notFound(model.TableNotifications, id)
	}
	if err != nil {
		return model.Notification{}, fmt.Errorf("getting notification %s: %w", id, err)
	}
	return row.toModel()
}

// ListNotifications returns the notifications of a user, newest first.
func (s *SQLStore) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows,
		s.q("SELECT "+notificationCols+" FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id"), userID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications of %s: %w", userID, err)
	}
	out := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// CreateNotification inserts a notification. CreatedAt is kept when set.
func (s *SQLStore) CreateNotification(ctx context.Context, n model.Notification) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		found, err := exists(ctx, tx, "notifications", n.ID)
		if err != nil {
			return nil, err
		}
		if found {
			return nil, conflict(model.TableNotifications, n.ID)
		}
		n.UpdatedAt = s.nowMillis()
		if n.CreatedAt == 0 {
			n.CreatedAt = n.UpdatedAt
		}
		args, err := notificationArgs(n)
		if err != nil {
			return nil, fmt.Errorf("encoding notification %s: %w", n.ID, err)
		}
		_, err = tx.ExecContext(ctx, s.q("INSERT INTO notifications ("+notificationCols+") VALUES ("+placeholders(len(args))+")"), args...)
		if err != nil {
			return nil, fmt.Errorf("creating notification: %w", err)
		}
		return s.rowEvent(model.TableNotifications, feed.EventInsert, n, "", n.UserID), nil
	})
}

// UpdateNotification applies a partial update to a notification.
func (s *SQLStore) UpdateNotification(ctx context.Context, id string, patch remote.Patch) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		if err := s.patchRow(ctx, tx, "notifications", id, patch); err != nil {
			return nil, err
		}
		n, err := s.getNotification(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return s.rowEvent(model.TableNotifications, feed.EventUpdate, n, "", n.UserID), nil
	})
}

// DeleteNotification removes a notification.
func (s *SQLStore) DeleteNotification(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		n, err := s.getNotification(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM notifications WHERE id = ?"), id); err != nil {
			return nil, fmt.Errorf("deleting notification %s: %w", id, err)
		}
		return s.rowEvent(model.TableNotifications, feed.EventDelete,
			map[string]string{"id": id, "user_id": n.UserID}, "", n.UserID), nil
	})
}

// FindMembership returns the membership of userID in the entity, or
// remote.ErrNotFound.
func (s *SQLStore) FindMembership(ctx context.Context, kind, entityID, userID string) (*model.Membership, error) {
	var m model.Membership
	err := s.db.GetContext(ctx, &m,
		s.q("SELECT "+membershipCols+" FROM memberships WHERE kind = ? AND entity_id = ? AND user_id = ?"),
		kind, entityID, userID)
	if isNoRows(err) {
		return nil, fmt.Errorf("membership %s/%s/%s: %w", kind, entityID, userID, remote.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding membership: %w", err)
	}
	return &m, nil
}

// CreateMembership inserts a membership. A second membership for the same
// user and entity is a conflict.
func (s *SQLStore) CreateMembership(ctx context.Context, m model.Membership) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		var n int
		err := tx.GetContext(ctx, &n,
			s.q("SELECT COUNT(*) FROM memberships WHERE id = ? OR (kind = ? AND entity_id = ? AND user_id = ?)"),
			m.ID, m.Kind, m.EntityID, m.UserID)
		if err != nil {
			return nil, fmt.Errorf("checking membership: %w", err)
		}
		if n > 0 {
			return nil, conflict(model.TableMemberships, m.ID)
		}
		if m.Role == "" {
			m.Role = model.RoleEditor
		}
		if m.CreatedAt == 0 {
			m.CreatedAt = s.nowMillis()
		}
		_, err = tx.ExecContext(ctx, s.q("INSERT INTO memberships ("+membershipCols+") VALUES (?, ?, ?, ?, ?, ?)"),
			m.ID, m.Kind, m.EntityID, m.UserID, m.Role, m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("creating membership: %w", err)
		}
		ws := m.EntityID
		if m.Kind == model.MembershipBoard {
			if ws, err = s.boardWorkspace(ctx, tx, m.EntityID); err != nil {
				return nil, err
			}
		}
		return s.rowEvent(model.TableMemberships, feed.EventInsert, m, ws, m.UserID), nil
	})
}

// AppendActivity records an audit-log entry. Activity is not published.
func (s *SQLStore) AppendActivity(ctx context.Context, a model.Activity) error {
	if a.CreatedAt == 0 {
		a.CreatedAt = s.nowMillis()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO activity_log (id, board_id, item_id, user_id, entity_type, action, field, before_value, after_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.BoardID, a.ItemID, a.UserID, a.EntityType, a.Action, a.Field,
		string(a.Before), string(a.After), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending activity: %w", err)
	}
	return nil
}

// ListActivity returns the audit log of a board, newest first.
func (s *SQLStore) ListActivity(ctx context.Context, boardID string, limit int) ([]model.Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []struct {
		model.Activity
		BeforeValue string `db:"before_value"`
		AfterValue  string `db:"after_value"`
	}
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT id, board_id, item_id, user_id, entity_type, action, field, before_value, after_value, created_at
		FROM activity_log WHERE board_id = ? ORDER BY created_at DESC, id LIMIT ?`), boardID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing activity of board %s: %w", boardID, err)
	}
	out := make([]model.Activity, 0, len(rows))
	for _, r := range rows {
		a := r.Activity
		if r.BeforeValue != "" {
			a.Before = []byte(r.BeforeValue)
		}
		if r.AfterValue != "" {
			a.After = []byte(r.AfterValue)
		}
		out = append(out, a)
	}
	return out, nil
}
