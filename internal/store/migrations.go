package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1. The SQL is
// shared by sqlite and postgres, so it sticks to TEXT, INTEGER and BIGINT
// columns. Timestamps are unix milliseconds; booleans are 0/1 integers.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS workspaces (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	position    INTEGER NOT NULL DEFAULT 0,
	owner_id    TEXT NOT NULL,
	updated_at  BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS boards (
	id                 TEXT PRIMARY KEY,
	workspace_id       TEXT NOT NULL,
	title              TEXT NOT NULL,
	position           INTEGER NOT NULL DEFAULT 0,
	item_column_title  TEXT NOT NULL DEFAULT 'Item',
	item_column_width  INTEGER NOT NULL DEFAULT 320,
	sort               TEXT NOT NULL DEFAULT '',
	filters            TEXT NOT NULL DEFAULT '[]',
	updated_at         BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS board_groups (
	id          TEXT PRIMARY KEY,
	board_id    TEXT NOT NULL,
	title       TEXT NOT NULL,
	color       TEXT NOT NULL DEFAULT '',
	position    INTEGER NOT NULL DEFAULT 0,
	collapsed   INTEGER NOT NULL DEFAULT 0,
	updated_at  BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS board_columns (
	id           TEXT PRIMARY KEY,
	board_id     TEXT NOT NULL,
	title        TEXT NOT NULL,
	type         TEXT NOT NULL,
	options      TEXT NOT NULL DEFAULT '[]',
	width        INTEGER NOT NULL DEFAULT 150,
	position     INTEGER NOT NULL DEFAULT 0,
	aggregation  TEXT NOT NULL DEFAULT '',
	updated_at   BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS items (
	id           TEXT PRIMARY KEY,
	board_id     TEXT NOT NULL,
	group_id     TEXT NOT NULL,
	title        TEXT NOT NULL,
	cell_values  TEXT NOT NULL DEFAULT '{}',
	updates      TEXT NOT NULL DEFAULT '[]',
	files        TEXT NOT NULL DEFAULT '[]',
	is_hidden    INTEGER NOT NULL DEFAULT 0,
	position     INTEGER NOT NULL DEFAULT 0,
	updated_at   BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	entity_id   TEXT NOT NULL DEFAULT '',
	data        TEXT NOT NULL DEFAULT '{}',
	is_read     INTEGER NOT NULL DEFAULT 0,
	created_at  BIGINT NOT NULL DEFAULT 0,
	updated_at  BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS memberships (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	role        TEXT NOT NULL DEFAULT 'editor',
	created_at  BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS activity_log (
	id            TEXT PRIMARY KEY,
	board_id      TEXT NOT NULL,
	item_id       TEXT NOT NULL DEFAULT '',
	user_id       TEXT NOT NULL DEFAULT '',
	entity_type   TEXT NOT NULL,
	action        TEXT NOT NULL,
	field         TEXT NOT NULL DEFAULT '',
	before_value  TEXT NOT NULL DEFAULT '',
	after_value   TEXT NOT NULL DEFAULT '',
	created_at    BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_workspaces_owner ON workspaces(owner_id);
CREATE INDEX IF NOT EXISTS idx_boards_workspace ON boards(workspace_id);
CREATE INDEX IF NOT EXISTS idx_groups_board ON board_groups(board_id);
CREATE INDEX IF NOT EXISTS idx_columns_board ON board_columns(board_id);
CREATE INDEX IF NOT EXISTS idx_items_board ON items(board_id);
CREATE INDEX IF NOT EXISTS idx_items_group ON items(group_id);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_memberships_unique ON memberships(kind, entity_id, user_id);
CREATE INDEX IF NOT EXISTS idx_activity_board ON activity_log(board_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
