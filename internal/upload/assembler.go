// SPDX-License-Identifier: MIT

package upload

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/stationcast/stationcast/internal/fsutil"
	xglog "github.com/stationcast/stationcast/internal/log"
)

// assembly is the staged result of concatenating all chunks: a pending file
// that is invisible until Publish and guaranteed to vanish on Discard. The
// ledger commit happens between assembly and publication, so a failed commit
// never leaves a visible media file.
type assembly struct {
	Filename string // final base name, unique within the station directory
	DestPath string
	Size     int64
	pending  *renameio.PendingFile
}

// Publish makes the assembled file durably visible (fsync + atomic rename).
func (a *assembly) Publish() error {
	return a.pending.CloseAtomicallyReplace()
}

// Discard removes the staged bytes. Safe to call after Publish.
func (a *assembly) Discard() {
	_ = a.pending.Cleanup()
}

// assemble concatenates chunks 0..total-1 in index order into a pending file
// in the station's video directory and verifies the result against the
// declared size. Any error path cleans up the staged bytes before returning.
//
// Chunk presence is re-checked lazily here, not only via the counters, to
// guard against counter/chunk-set divergence.
func assemble(ctx context.Context, store *Store, sess *Session, tolerance int64) (*assembly, error) {
	logger := xglog.WithComponentFromContext(ctx, "assembler")

	destDir := store.Layout().StationVideoDir(sess.StationID)
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("create station video directory: %w", err)
	}

	filename, err := uniqueVideoName(destDir, sess.Filename)
	if err != nil {
		return nil, err
	}
	destPath := filepath.Join(destDir, filename)

	pending, err := renameio.NewPendingFile(destPath, renameio.WithPermissions(0o640))
	if err != nil {
		return nil, fmt.Errorf("open assembly target: %w", err)
	}

	var total int64
	for i := 0; i < sess.TotalChunks; i++ {
		n, err := appendChunk(store, sess.ID, i, pending)
		if err != nil {
			_ = pending.Cleanup()
			return nil, err
		}
		total += n
	}

	if diff := total - sess.DeclaredSize; diff > tolerance || diff < -tolerance {
		_ = pending.Cleanup()
		return nil, &SizeMismatchError{Expected: sess.DeclaredSize, Actual: total, Tolerance: tolerance}
	}

	logger.Debug().
		Str(xglog.FieldFilename, filename).
		Int64(xglog.FieldSizeBytes, total).
		Int(xglog.FieldTotalChunks, sess.TotalChunks).
		Msg("chunks assembled")

	return &assembly{Filename: filename, DestPath: destPath, Size: total, pending: pending}, nil
}

func appendChunk(store *Store, id string, index int, w io.Writer) (int64, error) {
	path, err := store.ChunkPath(id, index)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path) // #nosec G304 -- path confined by the store
	if err != nil {
		if os.IsNotExist(err) {
			return 0, &MissingChunkFileError{Index: index}
		}
		return 0, fmt.Errorf("open chunk %d: %w", index, err)
	}
	defer func() { _ = f.Close() }()

	n, err := io.Copy(w, f)
	if err != nil {
		return 0, fmt.Errorf("append chunk %d: %w", index, err)
	}
	return n, nil
}

// uniqueVideoName derives a collision-resistant final name from the
// sanitised original base name plus a timestamp, escalating to an added
// random suffix while a collision persists.
func uniqueVideoName(destDir, original string) (string, error) {
	base := fsutil.SanitizeBaseName(original)
	ext := fsutil.Ext(original)

	name := fmt.Sprintf("%s_%d%s", base, time.Now().Unix(), ext)
	for {
		if _, err := os.Stat(filepath.Join(destDir, name)); os.IsNotExist(err) {
			return name, nil
		} else if err != nil {
			return "", fmt.Errorf("probe video name: %w", err)
		}
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("generate name suffix: %w", err)
		}
		name = fmt.Sprintf("%s_%d_%s%s", base, time.Now().Unix(), hex.EncodeToString(buf[:]), ext)
	}
}
