package model

// Workspace is a top-level container of boards owned by one user.
type Workspace struct {
	// ID is the unique identifier for this workspace.
	ID string `json:"id" db:"id"`

	// Title is the user-visible name.
	Title string `json:"title" db:"title"`

	// Position is the dense zero-based rank among the owner's workspaces.
	Position int `json:"position" db:"position"`

	// OwnerID is the user that owns the workspace.
	OwnerID string `json:"owner_id" db:"owner_id"`

	// UpdatedAt is the server commit time in unix milliseconds.
	UpdatedAt int64 `json:"updated_at" db:"updated_at"`
}

// Membership kinds.
const (
	MembershipWorkspace = "workspace"
	MembershipBoard     = "board"
)

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Membership grants a user access to a workspace or a single board.
type Membership struct {
	ID        string `json:"id" db:"id"`
	Kind      string `json:"kind" db:"kind"`
	EntityID  string `json:"entity_id" db:"entity_id"`
	UserID    string `json:"user_id" db:"user_id"`
	Role      string `json:"role" db:"role"`
	CreatedAt int64  `json:"created_at" db:"created_at"`
}
