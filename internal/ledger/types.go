// SPDX-License-Identifier: MIT

package ledger

import (
	"errors"
	"time"
)

// ActionVideoUpload is the priced action charged on a successful finalize.
const ActionVideoUpload = "video_upload"

var (
	// ErrInsufficientFunds is returned when the owner's balance cannot cover
	// the configured action price. Nothing is written when it is returned.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrStationNotFound is returned for unknown station IDs.
	ErrStationNotFound = errors.New("station not found")

	// ErrPriceNotConfigured is returned when no price row exists for an action.
	ErrPriceNotConfigured = errors.New("action price not configured")
)

// Station is a tenant owned by exactly one user.
type Station struct {
	ID     int64
	UserID int64
	Name   string
}

// Video is the durable product of a successful upload.
type Video struct {
	ID          int64
	StationID   int64
	Filename    string
	SizeBytes   int64
	Title       string
	ContentType string
	Priority    int
	Status      string
	CreatedAt   time.Time
}

// Transaction is one immutable ledger entry. Amount is the number of coins
// charged; BalanceBefore/After bracket the debit.
type Transaction struct {
	ID            int64
	UserID        int64
	VideoID       int64
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	Description   string
	CreatedAt     time.Time
}

// CommitRequest carries everything the coordinator needs to settle an upload.
type CommitRequest struct {
	StationID   int64
	Filename    string
	SizeBytes   int64
	Title       string
	ContentType string
	Priority    int
}

// CommitResult reports the outcome of a successful commit.
type CommitResult struct {
	VideoID       int64
	Cost          int64
	BalanceBefore int64
	BalanceAfter  int64
}
