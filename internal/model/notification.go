package model

// NotificationType identifies what a notification is about.
type NotificationType string

const (
	NotificationWorkspaceInvite NotificationType = "workspace_invite"
	NotificationBoardInvite     NotificationType = "board_invite"
	NotificationAssignment      NotificationType = "assignment"
	NotificationMention         NotificationType = "mention"
)

// IsInvite reports whether the notification carries a membership invite.
func (t NotificationType) IsInvite() bool {
	return t == NotificationWorkspaceInvite || t == NotificationBoardInvite
}

// MembershipKind returns the membership kind an invite grants.
func (t NotificationType) MembershipKind() string {
	if t == NotificationBoardInvite {
		return MembershipBoard
	}
	return MembershipWorkspace
}

// Invite status constants. Accepted and declined are terminal.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusDeclined = "declined"
)

// NotificationData is the type-specific payload of a notification.
type NotificationData struct {
	Status      string `json:"status,omitempty"`
	InviterID   string `json:"inviter_id,omitempty"`
	EntityTitle string `json:"entity_title,omitempty"`
	Message     string `json:"message,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Notification represents an alert surfaced to a user, including
// workspace and board invites.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id" db:"id"`

	// Type identifies the notification kind.
	Type NotificationType `json:"type" db:"type"`

	// UserID is the recipient.
	UserID string `json:"user_id" db:"user_id"`

	// EntityID is the workspace, board or item the notification refers to.
	EntityID string `json:"entity_id" db:"entity_id"`

	// Data holds the type-specific payload, including invite status.
	Data NotificationData `json:"data" db:"-"`

	// IsRead indicates whether the user has seen this notification.
	IsRead bool `json:"is_read" db:"-"`

	// CreatedAt is when the notification was generated, in unix milliseconds.
	CreatedAt int64 `json:"created_at" db:"created_at"`

	// UpdatedAt is the server commit time in unix milliseconds.
	UpdatedAt int64 `json:"updated_at" db:"updated_at"`
}

// Resolved reports whether an invite reached a terminal status.
func (n Notification) Resolved() bool {
	return IsTerminalStatus(n.Data.Status)
}

// IsTerminalStatus reports whether status is accepted or declined.
func IsTerminalStatus(status string) bool {
	return status == InviteStatusAccepted || status == InviteStatusDeclined
}
