package db

// SchemaVersion is the current database schema version
const SchemaVersion = 2

const schema = `
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Migration defines a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	{
		Version:     1,
		Description: "pending operation queue",
		SQL: `
CREATE TABLE IF NOT EXISTS pending_operations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    data TEXT NOT NULL,
    timestamp INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "diagnostic event log",
		SQL: `
CREATE TABLE IF NOT EXISTS event_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    time TEXT NOT NULL,
    kind TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_event_log_kind ON event_log(kind);
`,
	},
}
