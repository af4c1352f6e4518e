package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create network cursors",
		SQL: `
			CREATE TABLE network_cursor (
				user        TEXT NOT NULL,
				network_id  INTEGER NOT NULL,
				last_msg_id INTEGER NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (user, network_id)
			);
		`,
	},
	{
		Version: 2,
		Name:    "create buffers",
		SQL: `
			CREATE TABLE buffers (
				user        TEXT NOT NULL,
				buffer_id   INTEGER NOT NULL,
				network_id  INTEGER NOT NULL,
				name        TEXT NOT NULL DEFAULT '',
				type        INTEGER NOT NULL,
				group_id    INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (user, buffer_id)
			);

			CREATE INDEX idx_buffers_network ON buffers (user, network_id);
		`,
	},
	{
		Version: 3,
		Name:    "create session log",
		SQL: `
			CREATE TABLE sessions (
				id          TEXT PRIMARY KEY,
				user        TEXT NOT NULL,
				remote      TEXT NOT NULL DEFAULT '',
				status      TEXT NOT NULL,
				protocol    TEXT NOT NULL DEFAULT '',
				network_id  INTEGER NOT NULL DEFAULT 0,
				last_error  TEXT NOT NULL DEFAULT '',
				started_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_sessions_user ON sessions (user, started_at);
		`,
	},
}
