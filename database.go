package main

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection. Only cross-match data lives
// here — accounts, career stats, match history, analytics events. Room
// state is never persisted.
type DB struct {
	conn *sql.DB
}

// AccountRow represents an account record
type AccountRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// StatsRow represents a player's career stats
type StatsRow struct {
	AccountID int64
	Hits      int
	Wins      int
	Losses    int
	Matches   int
}

// MatchResult is one authenticated member's outcome in a finished match.
type MatchResult struct {
	AccountID int64
	Hits      int
	Won       bool
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stats (
		account_id INTEGER PRIMARY KEY REFERENCES accounts(id),
		hits INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		matches INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_code TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		duration REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		account_id INTEGER NOT NULL DEFAULT 0,
		room_code TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// UsernameExists checks whether a username is taken.
func (db *DB) UsernameExists(username string) (bool, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM accounts WHERE username = ?", username).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateAccount inserts an account with an empty stats row.
func (db *DB) CreateAccount(username, passHash string) (int64, error) {
	res, err := db.conn.Exec("INSERT INTO accounts (username, pass_hash) VALUES (?, ?)", username, passHash)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := db.conn.Exec("INSERT INTO stats (account_id) VALUES (?)", id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetAccountByUsername returns the account, or nil if none exists.
func (db *DB) GetAccountByUsername(username string) (*AccountRow, error) {
	row := db.conn.QueryRow("SELECT id, username, pass_hash FROM accounts WHERE username = ?", username)
	var a AccountRow
	if err := row.Scan(&a.ID, &a.Username, &a.PassHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// GetStats returns career stats for an account, or nil if none exist.
func (db *DB) GetStats(accountID int64) (*StatsRow, error) {
	row := db.conn.QueryRow(
		"SELECT account_id, hits, wins, losses, matches FROM stats WHERE account_id = ?", accountID)
	var s StatsRow
	if err := row.Scan(&s.AccountID, &s.Hits, &s.Wins, &s.Losses, &s.Matches); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// RecordMatchResult appends a match-history row and folds each
// authenticated member's outcome into their career stats.
func (db *DB) RecordMatchResult(roomCode, reason string, duration time.Duration, results []MatchResult) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO matches (room_code, reason, duration) VALUES (?, ?, ?)",
		roomCode, reason, duration.Seconds()); err != nil {
		return err
	}

	for _, res := range results {
		win, loss := 0, 1
		if res.Won {
			win, loss = 1, 0
		}
		if _, err := tx.Exec(`
			INSERT INTO stats (account_id, hits, wins, losses, matches)
			VALUES (?, ?, ?, ?, 1)
			ON CONFLICT(account_id) DO UPDATE SET
				hits = hits + excluded.hits,
				wins = wins + excluded.wins,
				losses = losses + excluded.losses,
				matches = matches + 1`,
			res.AccountID, res.Hits, win, loss); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// InsertEvents writes a batch of analytics events in one transaction.
func (db *DB) InsertEvents(events []AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		"INSERT INTO events (type, account_id, room_code, data, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.Exec(ev.Type, ev.AccountID, ev.RoomCode, ev.Data, ev.Timestamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetSetting returns a settings value, or "" if absent.
func (db *DB) GetSetting(key string) string {
	var v string
	if err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v); err != nil {
		return ""
	}
	return v
}

// SetSetting upserts a settings value.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}
