// SPDX-License-Identifier: MIT

package upload

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(NewLayout(t.TempDir()))
	require.NoError(t, err)
	return store
}

func testSession(t *testing.T, store *Store) *Session {
	t.Helper()
	id, err := NewSessionID()
	require.NoError(t, err)
	sess := &Session{
		ID:           id,
		StationID:    1,
		Filename:     "show.mp4",
		DeclaredSize: 2048,
		Title:        "Show",
		ContentType:  "general",
		Priority:     5,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Create(sess))
	return sess
}

func TestCreateLoadRoundtrip(t *testing.T) {
	store := newTestStore(t)
	sess := testSession(t, store)

	got, err := store.Load(sess.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(sess, got); diff != "" {
		t.Fatalf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadUnknownSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load("0123456789abcdef0123456789abcdef")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInvalidIDsRejectedBeforePathUse(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"", "../../etc", "0123456789ABCDEF0123456789ABCDEF", "xyz"} {
		_, err := store.Load(id)
		assert.ErrorIs(t, err, ErrInvalidSessionID, "id %q", id)

		_, err = store.WriteChunk(id, 0, bytes.NewReader([]byte("x")), 10)
		assert.ErrorIs(t, err, ErrInvalidSessionID, "id %q", id)

		err = store.Remove(id)
		assert.ErrorIs(t, err, ErrInvalidSessionID, "id %q", id)
	}
}

func TestWriteChunkAndIndices(t *testing.T) {
	store := newTestStore(t)
	sess := testSession(t, store)

	// Out-of-order receipt is fine.
	for _, idx := range []int{2, 0} {
		n, err := store.WriteChunk(sess.ID, idx, bytes.NewReader([]byte("abcd")), 1024)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	}

	indices, err := store.ChunkIndices(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, indices)

	missing, err := store.MissingChunks(sess.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, missing)
}

func TestWriteChunkOverwrites(t *testing.T) {
	store := newTestStore(t)
	sess := testSession(t, store)

	_, err := store.WriteChunk(sess.ID, 0, bytes.NewReader([]byte("first")), 1024)
	require.NoError(t, err)
	n, err := store.WriteChunk(sess.ID, 0, bytes.NewReader([]byte("second!")), 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	path, err := store.ChunkPath(sess.ID, 0)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second!", string(data))

	indices, err := store.ChunkIndices(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, indices)
}

func TestWriteChunkTooLarge(t *testing.T) {
	store := newTestStore(t)
	sess := testSession(t, store)

	_, err := store.WriteChunk(sess.ID, 0, bytes.NewReader(bytes.Repeat([]byte("a"), 100)), 64)
	require.ErrorIs(t, err, ErrChunkTooLarge)

	// The oversized partial is removed again.
	path, err := store.ChunkPath(sess.ID, 0)
	require.NoError(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteChunkUnknownSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.WriteChunk("0123456789abcdef0123456789abcdef", 0, bytes.NewReader([]byte("x")), 10)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	sess := testSession(t, store)

	require.NoError(t, store.Remove(sess.ID))
	assert.False(t, store.Exists(sess.ID))
	require.NoError(t, store.Remove(sess.ID))
}

func TestSessionIDsIgnoresJunk(t *testing.T) {
	store := newTestStore(t)
	sess := testSession(t, store)

	// A stray directory that does not look like a session ID is ignored.
	require.NoError(t, os.Mkdir(filepath.Join(store.Layout().TmpDir(), "not-a-session"), 0o700))

	ids, err := store.SessionIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{sess.ID}, ids)
}

func TestCreateFailsCleanlyOnDuplicate(t *testing.T) {
	store := newTestStore(t)
	sess := testSession(t, store)

	err := store.Create(sess)
	assert.Error(t, err)
	// The original session is untouched.
	_, err = store.Load(sess.ID)
	assert.NoError(t, err)
}
