// SPDX-License-Identifier: MIT

package upload

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/stationcast/stationcast/internal/fsutil"
	"github.com/stationcast/stationcast/internal/ledger"
	xglog "github.com/stationcast/stationcast/internal/log"
	"github.com/stationcast/stationcast/internal/metrics"
)

// Ledger is the slice of the coin ledger the upload pipeline consumes.
type Ledger interface {
	Station(ctx context.Context, id int64) (ledger.Station, error)
	VideoCount(ctx context.Context, stationID int64) (int, error)
	CommitUpload(ctx context.Context, req ledger.CommitRequest) (ledger.CommitResult, error)
}

// Options bound the upload pipeline.
type Options struct {
	MaxVideoBytes     int64
	MaxChunkBytes     int64
	SizeTolerance     int64
	StationVideoCap   int
	AllowedExtensions []string
}

// InitRequest carries the client-declared upload metadata.
type InitRequest struct {
	StationID   int64
	Filename    string
	Size        int64
	Title       string
	ContentType string
	Priority    int
}

// Progress reports chunk receipt state back to the client.
type Progress struct {
	ChunkIndex     int
	ChunksReceived int
	TotalChunks    int
}

// Status is the read-only view of a staged session.
type Status struct {
	UploadID       string
	Filename       string
	ChunksReceived int
	TotalChunks    int
	MissingChunks  []int
	DeclaredSize   int64
	CreatedAt      time.Time
}

// FinalizeResult is returned once assembly and settlement both succeeded.
type FinalizeResult struct {
	VideoID       int64
	Filename      string
	CoinsDeducted int64
	NewBalance    int64
}

// Manager drives the upload pipeline: session creation, chunk receipt,
// serialized finalize+commit, cancel and status.
type Manager struct {
	store   *Store
	ledger  Ledger
	limiter *StationLimiter
	opts    Options

	// locks serializes finalize-and-commit (and cancel) per session ID, so
	// concurrent retries from a flaky client settle exactly one video.
	locks sync.Map // session ID -> *sync.Mutex
}

// NewManager wires the pipeline together. limiter may be nil.
func NewManager(store *Store, l Ledger, limiter *StationLimiter, opts Options) *Manager {
	return &Manager{store: store, ledger: l, limiter: limiter, opts: opts}
}

func (m *Manager) lock(id string) *sync.Mutex {
	v, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (m *Manager) extensionAllowed(ext string) bool {
	for _, allowed := range m.opts.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Init validates the declared metadata and stages a fresh session.
// Classification and priority are normalised, never rejected; everything
// else fails with a distinct validation error and no state change.
func (m *Manager) Init(ctx context.Context, req InitRequest) (string, error) {
	logger := xglog.WithComponentFromContext(ctx, "upload")

	station, err := m.ledger.Station(ctx, req.StationID)
	if err != nil {
		return "", err
	}

	// Advisory cap check: read-then-create, a concurrent overshoot is accepted.
	count, err := m.ledger.VideoCount(ctx, station.ID)
	if err != nil {
		return "", err
	}
	if count >= m.opts.StationVideoCap {
		return "", ErrVideoCapReached
	}

	filename := strings.TrimSpace(req.Filename)
	title := strings.TrimSpace(req.Title)
	switch {
	case filename == "":
		return "", ErrFilenameRequired
	case title == "":
		return "", ErrTitleRequired
	case req.Size <= 0:
		return "", ErrSizeRequired
	case req.Size > m.opts.MaxVideoBytes:
		return "", ErrTooLarge
	}
	if ext := fsutil.Ext(filename); !m.extensionAllowed(ext) {
		return "", ErrExtensionNotAllowed
	}

	id, err := NewSessionID()
	if err != nil {
		return "", err
	}

	sess := &Session{
		ID:           id,
		StationID:    station.ID,
		Filename:     filename,
		DeclaredSize: req.Size,
		Title:        title,
		ContentType:  NormalizeContentType(strings.ToLower(strings.TrimSpace(req.ContentType))),
		Priority:     NormalizePriority(req.Priority),
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.store.Create(sess); err != nil {
		return "", err
	}

	metrics.SessionInitiated()
	logger.Info().
		Str(xglog.FieldUploadID, id).
		Int64(xglog.FieldStationID, station.ID).
		Str(xglog.FieldFilename, filename).
		Int64(xglog.FieldSizeBytes, req.Size).
		Msg("upload session created")

	return id, nil
}

// ReceiveChunk persists one chunk and advances the session counters. Chunks
// may arrive out of order and concurrently; re-uploading an index overwrites
// without double-counting. TotalChunks is client-declared, last writer wins.
func (m *Manager) ReceiveChunk(ctx context.Context, id string, index, total int, r io.Reader) (Progress, error) {
	if index < 0 {
		return Progress{}, ErrInvalidChunkIndex
	}
	if total < 1 {
		return Progress{}, ErrInvalidTotalChunks
	}

	sess, err := m.store.Load(id)
	if err != nil {
		return Progress{}, err
	}

	if !m.limiter.Allow(sess.StationID) {
		metrics.RateLimitExceeded("station")
		return Progress{}, ErrRateLimited
	}

	written, err := m.store.WriteChunk(id, index, r, m.opts.MaxChunkBytes)
	if err != nil {
		return Progress{}, err
	}

	// Counter update under the session lock; the received count is derived
	// from the chunk set on disk, so overwrites cannot inflate it.
	mu := m.lock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err = m.store.Load(id)
	if err != nil {
		return Progress{}, err
	}
	indices, err := m.store.ChunkIndices(id)
	if err != nil {
		return Progress{}, err
	}
	sess.ChunksReceived = len(indices)
	sess.TotalChunks = total
	if err := m.store.SaveMeta(sess); err != nil {
		return Progress{}, err
	}

	metrics.ChunkReceived(written)
	logger := xglog.WithComponentFromContext(ctx, "upload")
	logger.Debug().
		Str(xglog.FieldUploadID, id).
		Int(xglog.FieldChunkIndex, index).
		Int(xglog.FieldTotalChunks, total).
		Int64(xglog.FieldSizeBytes, written).
		Msg("chunk received")

	return Progress{ChunkIndex: index, ChunksReceived: sess.ChunksReceived, TotalChunks: sess.TotalChunks}, nil
}

// Finalize assembles the chunks and settles the upload. The session lock is
// held across the completeness check, assembly and ledger commit. On any
// failure the filesystem and ledger are left exactly as they were.
func (m *Manager) Finalize(ctx context.Context, id string) (FinalizeResult, error) {
	logger := xglog.WithComponentFromContext(ctx, "upload")

	mu := m.lock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := m.store.Load(id)
	if err != nil {
		metrics.FinalizeOutcome("error")
		return FinalizeResult{}, err
	}

	if sess.TotalChunks < 1 || sess.ChunksReceived != sess.TotalChunks {
		metrics.FinalizeOutcome("missing_chunks")
		return FinalizeResult{}, &MissingChunksError{Received: sess.ChunksReceived, Total: sess.TotalChunks}
	}

	asm, err := assemble(ctx, m.store, sess, m.opts.SizeTolerance)
	if err != nil {
		metrics.FinalizeOutcome(finalizeOutcome(err))
		return FinalizeResult{}, err
	}

	res, err := m.ledger.CommitUpload(ctx, ledger.CommitRequest{
		StationID:   sess.StationID,
		Filename:    asm.Filename,
		SizeBytes:   asm.Size,
		Title:       sess.Title,
		ContentType: sess.ContentType,
		Priority:    sess.Priority,
	})
	if err != nil {
		// No partial charge, no orphaned media: the staged file goes away
		// and the rolled-back transaction left the ledger untouched.
		asm.Discard()
		metrics.FinalizeOutcome(finalizeOutcome(err))
		return FinalizeResult{}, err
	}

	if err := asm.Publish(); err != nil {
		// The ledger already settled; a failed rename on the same filesystem
		// is the one inconsistency this pipeline cannot roll back on its own.
		logger.Error().Err(err).
			Str(xglog.FieldUploadID, id).
			Int64(xglog.FieldVideoID, res.VideoID).
			Msg("publishing assembled file failed after ledger commit")
		metrics.FinalizeOutcome("error")
		return FinalizeResult{}, err
	}

	if err := m.store.Remove(id); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldUploadID, id).Msg("failed to remove session directory")
	}
	m.locks.Delete(id)

	metrics.SessionFinalized()
	metrics.FinalizeOutcome("success")
	logger.Info().
		Str(xglog.FieldUploadID, id).
		Int64(xglog.FieldVideoID, res.VideoID).
		Str(xglog.FieldFilename, asm.Filename).
		Int64(xglog.FieldCoins, res.Cost).
		Msg("upload finalized")

	return FinalizeResult{
		VideoID:       res.VideoID,
		Filename:      asm.Filename,
		CoinsDeducted: res.Cost,
		NewBalance:    res.BalanceAfter,
	}, nil
}

func finalizeOutcome(err error) string {
	var missFile *MissingChunkFileError
	var mismatch *SizeMismatchError
	switch {
	case errors.As(err, &missFile):
		return "missing_chunks"
	case errors.As(err, &mismatch):
		return "size_mismatch"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "error"
	}
}

// Cancel removes a session's staged state. Idempotent: cancelling an unknown
// or already-cleaned session succeeds. The ledger is never touched.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	if !ValidSessionID(id) {
		return ErrInvalidSessionID
	}

	mu := m.lock(id)
	mu.Lock()
	defer mu.Unlock()

	existed := m.store.Exists(id)
	if err := m.store.Remove(id); err != nil {
		return err
	}
	m.locks.Delete(id)

	if existed {
		metrics.SessionCancelled()
		logger := xglog.WithComponentFromContext(ctx, "upload")
		logger.Info().
			Str(xglog.FieldUploadID, id).
			Msg("upload session cancelled")
	}
	return nil
}

// Status reports progress and missing chunk indices for a staged session.
func (m *Manager) Status(ctx context.Context, id string) (Status, error) {
	sess, err := m.store.Load(id)
	if err != nil {
		return Status{}, err
	}
	missing, err := m.store.MissingChunks(id, sess.TotalChunks)
	if err != nil {
		return Status{}, err
	}
	return Status{
		UploadID:       sess.ID,
		Filename:       sess.Filename,
		ChunksReceived: sess.ChunksReceived,
		TotalChunks:    sess.TotalChunks,
		MissingChunks:  missing,
		DeclaredSize:   sess.DeclaredSize,
		CreatedAt:      sess.CreatedAt,
	}, nil
}
