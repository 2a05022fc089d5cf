// SPDX-License-Identifier: MIT

package upload

import (
	"errors"
	"fmt"
)

// Validation errors. None of these mutate state.
var (
	ErrInvalidSessionID    = errors.New("invalid upload id")
	ErrSessionNotFound     = errors.New("unknown upload session")
	ErrFilenameRequired    = errors.New("filename is required")
	ErrTitleRequired       = errors.New("title is required")
	ErrSizeRequired        = errors.New("file size must be positive")
	ErrTooLarge            = errors.New("file too large")
	ErrExtensionNotAllowed = errors.New("file type not allowed")
	ErrVideoCapReached     = errors.New("station video limit reached")
	ErrInvalidChunkIndex   = errors.New("chunk index must not be negative")
	ErrInvalidTotalChunks  = errors.New("total chunks must be positive")
	ErrChunkTooLarge       = errors.New("chunk exceeds maximum size")
	ErrNoSpace             = errors.New("no space left on device")
	ErrRateLimited         = errors.New("too many chunks, slow down")
)

// MissingChunksError rejects a premature finalize: the received counter does
// not match the declared chunk count.
type MissingChunksError struct {
	Received int
	Total    int
}

func (e *MissingChunksError) Error() string {
	return fmt.Sprintf("missing chunks, received %d of %d", e.Received, e.Total)
}

// MissingChunkFileError aborts assembly when an expected chunk file is absent
// on disk even though the counters matched.
type MissingChunkFileError struct {
	Index int
}

func (e *MissingChunkFileError) Error() string {
	return fmt.Sprintf("chunk %d missing during assembly", e.Index)
}

// SizeMismatchError aborts assembly when the concatenated output deviates
// from the declared size beyond the configured tolerance.
type SizeMismatchError struct {
	Expected  int64
	Actual    int64
	Tolerance int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("assembled size mismatch: expected %d bytes, got %d (tolerance %d)",
		e.Expected, e.Actual, e.Tolerance)
}
