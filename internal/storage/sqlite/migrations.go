package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// IMPORTANT: lists must be created BEFORE every table that references it.
// deletion_requests deliberately has no foreign key to lists so that decided
// requests survive the deletion they approved.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS lists (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    owner TEXT NOT NULL,
    currency TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS list_members (
    list_id TEXT NOT NULL,
    kind TEXT NOT NULL CHECK (kind IN ('registered', 'guest')),
    name TEXT NOT NULL,
    PRIMARY KEY (list_id, kind, name),
    FOREIGN KEY (list_id) REFERENCES lists(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expenses (
    id TEXT PRIMARY KEY,
    list_id TEXT NOT NULL,
    payer_kind TEXT NOT NULL,
    payer_name TEXT NOT NULL,
    amount INTEGER NOT NULL CHECK (amount > 0),
    currency TEXT NOT NULL,
    description TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    date TEXT NOT NULL,
    created_by TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    deleted_at INTEGER,
    FOREIGN KEY (list_id) REFERENCES lists(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expense_participants (
    expense_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    PRIMARY KEY (expense_id, kind, name),
    FOREIGN KEY (expense_id) REFERENCES expenses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS categories (
    id TEXT PRIMARY KEY,
    list_id TEXT NOT NULL,
    name TEXT NOT NULL,
    created_by TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (list_id, name),
    FOREIGN KEY (list_id) REFERENCES lists(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS share_requests (
    id TEXT PRIMARY KEY,
    list_id TEXT NOT NULL,
    from_user TEXT NOT NULL,
    to_user TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    resolved_at INTEGER,
    FOREIGN KEY (list_id) REFERENCES lists(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS deletion_requests (
    id TEXT PRIMARY KEY,
    list_id TEXT NOT NULL,
    list_name TEXT NOT NULL,
    requested_by TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    resolved_at INTEGER
);

CREATE TABLE IF NOT EXISTS deletion_approvers (
    request_id TEXT NOT NULL,
    username TEXT NOT NULL,
    PRIMARY KEY (request_id, username),
    FOREIGN KEY (request_id) REFERENCES deletion_requests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS deletion_approvals (
    request_id TEXT NOT NULL,
    username TEXT NOT NULL,
    approve INTEGER NOT NULL,
    responded_at INTEGER NOT NULL,
    PRIMARY KEY (request_id, username),
    FOREIGN KEY (request_id) REFERENCES deletion_requests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS changelog (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    list_id TEXT NOT NULL,
    username TEXT NOT NULL,
    action TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    FOREIGN KEY (list_id) REFERENCES lists(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_list_members_name ON list_members(kind, name);
CREATE INDEX IF NOT EXISTS idx_expenses_list_id ON expenses(list_id, deleted_at);
CREATE INDEX IF NOT EXISTS idx_expense_participants_expense_id ON expense_participants(expense_id);
CREATE INDEX IF NOT EXISTS idx_share_requests_to_user ON share_requests(to_user);
CREATE INDEX IF NOT EXISTS idx_share_requests_from_user ON share_requests(from_user);
CREATE INDEX IF NOT EXISTS idx_deletion_requests_list_id ON deletion_requests(list_id);
CREATE INDEX IF NOT EXISTS idx_changelog_list_id ON changelog(list_id, id);

CREATE UNIQUE INDEX IF NOT EXISTS uniq_pending_share
    ON share_requests(list_id, to_user) WHERE status = 'pending';
CREATE UNIQUE INDEX IF NOT EXISTS uniq_pending_deletion
    ON deletion_requests(list_id) WHERE status = 'pending';
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
