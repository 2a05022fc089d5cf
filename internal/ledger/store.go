// SPDX-License-Identifier: MIT

// Package ledger persists stations, videos, balances and the transaction log,
// and provides the atomic commit that settles a finished upload.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stationcast/stationcast/internal/persistence/sqlite"
)

const schemaVersion = 1

// Store provides SQLite persistence for the coin ledger and video catalog.
type Store struct {
	db *sql.DB
}

// NewStore initializes the ledger store and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: migration failed: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var currentVersion int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0 CHECK(balance >= 0),
		balance_updated_at TEXT
	);

	CREATE TABLE IF NOT EXISTS stations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		station_id INTEGER NOT NULL REFERENCES stations(id),
		filename TEXT NOT NULL UNIQUE,
		size_bytes INTEGER NOT NULL,
		title TEXT NOT NULL,
		content_type TEXT NOT NULL,
		priority INTEGER NOT NULL,
		status TEXT NOT NULL CHECK(status IN ('ready')),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_videos_station ON videos(station_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		video_id INTEGER NOT NULL REFERENCES videos(id),
		amount INTEGER NOT NULL,
		balance_before INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		description TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);

	CREATE TABLE IF NOT EXISTS action_prices (
		action TEXT PRIMARY KEY,
		coins INTEGER NOT NULL CHECK(coins >= 0)
	);

	INSERT OR IGNORE INTO action_prices (action, coins) VALUES ('video_upload', 10);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Station resolves a station and its owning user.
func (s *Store) Station(ctx context.Context, id int64) (Station, error) {
	var st Station
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name FROM stations WHERE id = ?`, id).
		Scan(&st.ID, &st.UserID, &st.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Station{}, ErrStationNotFound
	}
	if err != nil {
		return Station{}, err
	}
	return st, nil
}

// VideoCount returns the number of videos a station currently owns.
// The init-time cap check built on it is advisory only.
func (s *Store) VideoCount(ctx context.Context, stationID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM videos WHERE station_id = ?`, stationID).Scan(&n)
	return n, err
}

// ActionPrice returns the configured coin cost for an action.
func (s *Store) ActionPrice(ctx context.Context, action string) (int64, error) {
	var coins int64
	err := s.db.QueryRowContext(ctx,
		`SELECT coins FROM action_prices WHERE action = ?`, action).Scan(&coins)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrPriceNotConfigured, action)
	}
	return coins, err
}

// SetActionPrice upserts the coin cost for an action.
func (s *Store) SetActionPrice(ctx context.Context, action string, coins int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_prices (action, coins) VALUES (?, ?)
		 ON CONFLICT(action) DO UPDATE SET coins = excluded.coins`, action, coins)
	return err
}

// Balance returns the user's current coin balance.
func (s *Store) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM users WHERE id = ?`, userID).Scan(&balance)
	return balance, err
}

// CreateUser inserts a user with an initial balance.
func (s *Store) CreateUser(ctx context.Context, name string, balance int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, balance, balance_updated_at) VALUES (?, ?, ?)`,
		name, balance, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateStation inserts a station owned by the given user.
func (s *Store) CreateStation(ctx context.Context, userID int64, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stations (user_id, name) VALUES (?, ?)`, userID, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SeedDemo creates a demo user and station when the database holds no
// stations yet. Intended for local development only.
func (s *Store) SeedDemo(ctx context.Context) (int64, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stations`).Scan(&n); err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	userID, err := s.CreateUser(ctx, "demo", 100)
	if err != nil {
		return 0, err
	}
	return s.CreateStation(ctx, userID, "demo-station")
}

// Video retrieves a single video row.
func (s *Store) Video(ctx context.Context, id int64) (Video, error) {
	var v Video
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, station_id, filename, size_bytes, title, content_type, priority, status, created_at
		 FROM videos WHERE id = ?`, id).
		Scan(&v.ID, &v.StationID, &v.Filename, &v.SizeBytes, &v.Title, &v.ContentType, &v.Priority, &v.Status, &createdAt)
	if err != nil {
		return Video{}, err
	}
	if t, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
		v.CreatedAt = t
	}
	return v, nil
}

// TransactionsForVideo returns the ledger entries referencing a video.
func (s *Store) TransactionsForVideo(ctx context.Context, videoID int64) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, video_id, amount, balance_before, balance_after, description, created_at
		 FROM transactions WHERE video_id = ? ORDER BY id`, videoID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Transaction
	for rows.Next() {
		var t Transaction
		var createdAt string
		if err := rows.Scan(&t.ID, &t.UserID, &t.VideoID, &t.Amount, &t.BalanceBefore,
			&t.BalanceAfter, &t.Description, &createdAt); err != nil {
			return nil, err
		}
		if ts, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
			t.CreatedAt = ts
		}
		entries = append(entries, t)
	}
	return entries, rows.Err()
}
