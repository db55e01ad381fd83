package model

// Table names shared by the remote store, its REST surface and the change
// feed.
const (
	TableWorkspaces    = "workspaces"
	TableBoards        = "boards"
	TableGroups        = "groups"
	TableColumns       = "columns"
	TableItems         = "items"
	TableNotifications = "notifications"
	TableMemberships   = "memberships"
	TableActivity      = "activity_log"
)
