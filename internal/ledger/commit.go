// SPDX-License-Identifier: MIT

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	xglog "github.com/stationcast/stationcast/internal/log"
)

// CommitUpload settles a finished upload in one database transaction: it
// inserts the video row (status ready), debits the station owner's balance by
// the configured price, and appends the transaction log entry referencing the
// new video. Either all three effects become visible or none do.
//
// The debit is conditional (balance >= cost) inside the UPDATE itself, so two
// concurrent commits for the same user cannot drive the balance negative even
// though the preceding SELECT is only advisory.
func (s *Store) CommitUpload(ctx context.Context, req CommitRequest) (CommitResult, error) {
	logger := xglog.WithComponentFromContext(ctx, "ledger")

	cost, err := s.ActionPrice(ctx, ActionVideoUpload)
	if err != nil {
		return CommitResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CommitResult{}, fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var userID int64
	err = tx.QueryRowContext(ctx,
		`SELECT user_id FROM stations WHERE id = ?`, req.StationID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return CommitResult{}, ErrStationNotFound
	}
	if err != nil {
		return CommitResult{}, err
	}

	var balanceBefore int64
	if err := tx.QueryRowContext(ctx,
		`SELECT balance FROM users WHERE id = ?`, userID).Scan(&balanceBefore); err != nil {
		return CommitResult{}, err
	}
	if balanceBefore < cost {
		return CommitResult{}, ErrInsufficientFunds
	}

	now := time.Now().UTC().Format(time.RFC3339)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO videos (station_id, filename, size_bytes, title, content_type, priority, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'ready', ?)`,
		req.StationID, req.Filename, req.SizeBytes, req.Title, req.ContentType, req.Priority, now)
	if err != nil {
		return CommitResult{}, fmt.Errorf("insert video: %w", err)
	}
	videoID, err := res.LastInsertId()
	if err != nil {
		return CommitResult{}, err
	}

	// The WHERE guard is the authoritative funds check; the earlier SELECT
	// only provides balance_before for the log entry.
	res, err = tx.ExecContext(ctx,
		`UPDATE users SET balance = balance - ?, balance_updated_at = ?
		 WHERE id = ? AND balance >= ?`,
		cost, now, userID, cost)
	if err != nil {
		return CommitResult{}, fmt.Errorf("debit balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return CommitResult{}, err
	}
	if affected == 0 {
		return CommitResult{}, ErrInsufficientFunds
	}

	balanceAfter := balanceBefore - cost
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, video_id, amount, balance_before, balance_after, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, videoID, cost, balanceBefore, balanceAfter,
		fmt.Sprintf("video upload: %s", req.Filename), now); err != nil {
		return CommitResult{}, fmt.Errorf("append transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return CommitResult{}, fmt.Errorf("commit upload: %w", err)
	}

	logger.Info().
		Int64(xglog.FieldVideoID, videoID).
		Int64(xglog.FieldStationID, req.StationID).
		Int64(xglog.FieldCoins, cost).
		Int64(xglog.FieldBalanceBefore, balanceBefore).
		Int64(xglog.FieldBalanceAfter, balanceAfter).
		Msg("upload settled")

	return CommitResult{
		VideoID:       videoID,
		Cost:          cost,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
	}, nil
}
