package sync

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/permission"
	"github.com/nhle/workera/internal/remote"
)

func (e *Engine) notificationModel(id string) (model.Notification, error) {
	if err := model.ValidateID(id); err != nil {
		return model.Notification{}, err
	}
	n, ok := e.store.Notification(id)
	if !ok {
		return model.Notification{}, fmt.Errorf("%w: notification %s", ErrNotFound, id)
	}
	return n, nil
}

// resolve moves an invite to a terminal status and marks it read.
func (e *Engine) resolve(n model.Notification, status string) model.Notification {
	n.Data.Status = status
	n.IsRead = true
	_ = e.store.PatchNotification(n.ID, func(stored *model.Notification) {
		stored.Data.Status = status
		stored.IsRead = true
	})
	e.touch(n.ID, "data", "is_read")
	return n
}

// AcceptNotification accepts a pending invite: the membership is inserted
// unless one already exists, the invite is marked accepted and read, and
// the session reloads. Accepting a resolved invite does nothing.
func (e *Engine) AcceptNotification(ctx context.Context, id string) error {
	n, err := e.notificationModel(id)
	if err != nil {
		return err
	}
	if !n.Type.IsInvite() {
		return fmt.Errorf("%w: notification %s is not an invite", ErrInvalidInput, id)
	}
	if n.Resolved() {
		return nil
	}

	n = e.resolve(n, model.InviteStatusAccepted)
	role := n.Data.Role
	if role == "" {
		role = model.RoleEditor
	}
	m := model.Membership{
		ID:        model.NewID(),
		Kind:      n.Type.MembershipKind(),
		EntityID:  n.EntityID,
		UserID:    e.userID,
		Role:      role,
		CreatedAt: e.now().UnixMilli(),
	}
	e.enqueue(write{
		op: "accept_invite",
		run: func(ctx context.Context, r remote.Remote) error {
			if err := ensureMembership(ctx, r, m); err != nil {
				return err
			}
			return r.UpdateNotification(ctx, n.ID, remote.Patch{"data": n.Data, "is_read": true})
		},
	})

	if err := e.Reload(ctx); err != nil {
		e.logger.WithError(err).WithField("notification", id).Warn("reload after accepting invite failed")
	}
	return nil
}

// ensureMembership inserts m unless the user already holds a membership
// of the same kind on the entity.
func ensureMembership(ctx context.Context, r remote.Remote, m model.Membership) error {
	_, err := r.FindMembership(ctx, m.Kind, m.EntityID, m.UserID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("looking up membership: %w", err)
	}
	if err := r.CreateMembership(ctx, m); err != nil && !errors.Is(err, remote.ErrConflict) {
		return fmt.Errorf("creating membership: %w", err)
	}
	return nil
}

// DeclineNotification declines a pending invite without granting access.
func (e *Engine) DeclineNotification(id string) error {
	n, err := e.notificationModel(id)
	if err != nil {
		return err
	}
	if !n.Type.IsInvite() {
		return fmt.Errorf("%w: notification %s is not an invite", ErrInvalidInput, id)
	}
	if n.Resolved() {
		return nil
	}
	n = e.resolve(n, model.InviteStatusDeclined)
	e.remoteNotificationPatch("decline_invite", id, remote.Patch{"data": n.Data, "is_read": true})
	return nil
}

// DismissNotification deletes a notification in any status.
func (e *Engine) DismissNotification(id string) error {
	if _, err := e.notificationModel(id); err != nil {
		return err
	}
	_ = e.store.RemoveNotification(id)
	e.optimistic.forget(id)
	e.enqueue(write{
		op: "dismiss_notification",
		run: func(ctx context.Context, r remote.Remote) error {
			return r.DeleteNotification(ctx, id)
		},
	})
	return nil
}

// MarkNotificationRead flags a notification as seen.
func (e *Engine) MarkNotificationRead(id string) error {
	n, err := e.notificationModel(id)
	if err != nil {
		return err
	}
	if n.IsRead {
		return nil
	}
	_ = e.store.PatchNotification(id, func(n *model.Notification) { n.IsRead = true })
	e.touch(id, "is_read")
	e.remoteNotificationPatch("mark_read", id, remote.Patch{"is_read": true})
	return nil
}

func (e *Engine) remoteNotificationPatch(op, id string, patch remote.Patch) {
	e.enqueue(write{op: op, run: func(ctx context.Context, r remote.Remote) error {
		return r.UpdateNotification(ctx, id, patch)
	}})
}

// UnreadFeed returns the unread notifications that still need a decision,
// newest first.
func (e *Engine) UnreadFeed() []model.Notification {
	var out []model.Notification
	for _, n := range e.store.Notifications() {
		if n.IsRead || n.Resolved() {
			continue
		}
		out = append(out, n)
	}
	return out
}

// NotificationHistory returns every notification, resolved ones included,
// newest first.
func (e *Engine) NotificationHistory() []model.Notification {
	return e.store.Notifications()
}

// SendInvite creates a pending invite for another user to a workspace or a
// board. An empty role invites an editor.
func (e *Engine) SendInvite(kind, entityID, inviteeID, role string) (model.Notification, error) {
	if err := model.ValidateIDs(entityID, inviteeID); err != nil {
		return model.Notification{}, err
	}
	if inviteeID == e.userID {
		return model.Notification{}, fmt.Errorf("%w: cannot invite yourself", ErrInvalidInput)
	}
	if role == "" {
		role = model.RoleEditor
	}
	if !permission.ValidRole(role) {
		return model.Notification{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	var (
		typ   model.NotificationType
		title string
	)
	switch kind {
	case model.MembershipWorkspace:
		ws, err := e.workspaceModel(entityID)
		if err != nil {
			return model.Notification{}, err
		}
		typ, title = model.NotificationWorkspaceInvite, ws.Title
	case model.MembershipBoard:
		b, err := e.boardModel(entityID)
		if err != nil {
			return model.Notification{}, err
		}
		typ, title = model.NotificationBoardInvite, b.Title
	default:
		return model.Notification{}, fmt.Errorf("%w: unknown membership kind %q", ErrInvalidInput, kind)
	}

	n := model.Notification{
		ID:       model.NewID(),
		Type:     typ,
		UserID:   inviteeID,
		EntityID: entityID,
		Data: model.NotificationData{
			Status:      model.InviteStatusPending,
			InviterID:   e.userID,
			EntityTitle: title,
			Role:        role,
		},
		CreatedAt: e.now().UnixMilli(),
	}
	e.enqueue(write{
		op: "send_invite",
		run: func(ctx context.Context, r remote.Remote) error {
			return r.CreateNotification(ctx, n)
		},
	})
	e.logger.WithFields(log.Fields{"kind": kind, "entity": entityID, "invitee": inviteeID}).Debug("invite queued")
	return n, nil
}
