// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldUploadID  = "upload_id"
	FieldStationID = "station_id"
	FieldUserID    = "user_id"
	FieldVideoID   = "video_id"

	// Process fields
	FieldComponent = "component"
	FieldAction    = "action"

	// Upload fields
	FieldChunkIndex  = "chunk_index"
	FieldTotalChunks = "total_chunks"
	FieldSizeBytes   = "size_bytes"
	FieldFilename    = "filename"

	// Ledger fields
	FieldCoins         = "coins"
	FieldBalanceBefore = "balance_before"
	FieldBalanceAfter  = "balance_after"

	// Path fields
	FieldPath = "path"
)
