// SPDX-License-Identifier: MIT

package upload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/renameio/v2"

	"github.com/stationcast/stationcast/internal/fsutil"
)

const metaFileName = "session.json"

// Store persists upload sessions on the filesystem: one directory per
// session holding the chunk files and the session.json metadata record.
// All methods validate the session ID before touching any path.
type Store struct {
	layout Layout
}

// NewStore creates the staging directories and returns a session store.
func NewStore(layout Layout) (*Store, error) {
	for _, dir := range []string{layout.TmpDir(), layout.VideosDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return &Store{layout: layout}, nil
}

// Layout exposes the store's directory layout.
func (s *Store) Layout() Layout {
	return s.layout
}

// sessionDir resolves and confines the session directory. The pattern check
// is the primary defense; confinement guards against symlink tricks inside
// the staging area.
func (s *Store) sessionDir(id string) (string, error) {
	if !ValidSessionID(id) {
		return "", ErrInvalidSessionID
	}
	dir, err := fsutil.ConfineRelPath(s.layout.TmpDir(), id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionID, err)
	}
	return dir, nil
}

// Create materialises a fresh session: directory plus initial metadata.
// If the metadata write fails the directory is removed again, so a failed
// create leaves no partial state behind.
func (s *Store) Create(sess *Session) error {
	dir, err := s.sessionDir(sess.ID)
	if err != nil {
		return err
	}
	if err := os.Mkdir(dir, 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	if err := s.saveMeta(dir, sess); err != nil {
		_ = os.RemoveAll(dir)
		return err
	}
	return nil
}

// Load reads a session's metadata record.
func (s *Store) Load(id string) (*Session, error) {
	dir, err := s.sessionDir(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, metaFileName)) // #nosec G304 -- path confined above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("read session metadata: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session metadata: %w", err)
	}
	return &sess, nil
}

// SaveMeta atomically rewrites a session's metadata record.
func (s *Store) SaveMeta(sess *Session) error {
	dir, err := s.sessionDir(sess.ID)
	if err != nil {
		return err
	}
	return s.saveMeta(dir, sess)
}

func (s *Store) saveMeta(dir string, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session metadata: %w", err)
	}
	// renameio gives atomic replace: a crash mid-write never leaves a
	// truncated metadata record.
	if err := renameio.WriteFile(filepath.Join(dir, metaFileName), data, 0o600); err != nil {
		return fmt.Errorf("write session metadata: %w", err)
	}
	return nil
}

// WriteChunk persists one chunk under its zero-padded name. Re-uploading an
// index overwrites the previous bytes. maxBytes bounds the copy; exceeding
// it removes the partial file and returns ErrChunkTooLarge.
func (s *Store) WriteChunk(id string, index int, r io.Reader, maxBytes int64) (int64, error) {
	dir, err := s.sessionDir(id)
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(filepath.Join(dir, metaFileName)); err != nil {
		if os.IsNotExist(err) {
			return 0, ErrSessionNotFound
		}
		return 0, err
	}

	path := filepath.Join(dir, chunkFileName(index))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304 -- path confined above
	if err != nil {
		return 0, fmt.Errorf("create chunk file: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(r, maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, syscall.ENOSPC) {
			return 0, ErrNoSpace
		}
		return 0, fmt.Errorf("write chunk: %w", err)
	}
	if written > maxBytes {
		_ = os.Remove(path)
		return 0, ErrChunkTooLarge
	}
	return written, nil
}

// ChunkPath returns the on-disk path of one chunk.
func (s *Store) ChunkPath(id string, index int) (string, error) {
	dir, err := s.sessionDir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, chunkFileName(index)), nil
}

// ChunkIndices lists the chunk indices currently on disk, ascending.
func (s *Store) ChunkIndices(id string) ([]int, error) {
	dir, err := s.sessionDir(id)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var indices []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "chunk_") {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(name, "chunk_"))
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}

// MissingChunks returns the indices in [0,total) that have no chunk file.
func (s *Store) MissingChunks(id string, total int) ([]int, error) {
	present, err := s.ChunkIndices(id)
	if err != nil {
		return nil, err
	}
	have := make(map[int]struct{}, len(present))
	for _, idx := range present {
		have[idx] = struct{}{}
	}
	var missing []int
	for i := 0; i < total; i++ {
		if _, ok := have[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing, nil
}

// Exists reports whether a staged session directory is present for id.
func (s *Store) Exists(id string) bool {
	dir, err := s.sessionDir(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Remove deletes a session's entire staging directory, chunks and metadata.
// Removing a session that is already gone is not an error.
func (s *Store) Remove(id string) error {
	dir, err := s.sessionDir(id)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// SessionIDs lists the IDs of all staged sessions. Entries that do not match
// the session ID pattern are ignored.
func (s *Store) SessionIDs() ([]string, error) {
	entries, err := os.ReadDir(s.layout.TmpDir())
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && ValidSessionID(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
