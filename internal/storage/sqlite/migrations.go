package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Amounts are stored as INTEGER minor units; dates as YYYY-MM-DD text so
// they compare lexically; timestamps as Unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS clients (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    birth_date TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    balance INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS account_access (
    client_username TEXT NOT NULL,
    account_id INTEGER NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('OWNER', 'MANAGER')),
    granted_at INTEGER NOT NULL,
    PRIMARY KEY (client_username, account_id),
    FOREIGN KEY (client_username) REFERENCES clients(username) ON DELETE CASCADE,
    FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS credentials (
    username TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_account_access_one_owner
    ON account_access(account_id) WHERE role = 'OWNER';
CREATE INDEX IF NOT EXISTS idx_account_access_account_id ON account_access(account_id);
CREATE INDEX IF NOT EXISTS idx_clients_birth_date ON clients(birth_date);
CREATE INDEX IF NOT EXISTS idx_accounts_balance ON accounts(balance);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
