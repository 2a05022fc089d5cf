// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationcast/stationcast/internal/config"
	"github.com/stationcast/stationcast/internal/ledger"
	"github.com/stationcast/stationcast/internal/upload"
)

type testEnv struct {
	router    http.Handler
	ledger    *ledger.Store
	store     *upload.Store
	stationID int64
	userID    int64
}

// newTestEnv wires the real pipeline end to end: SQLite ledger, on-disk
// session store, manager, chi router.
func newTestEnv(t *testing.T, balance int64) *testEnv {
	t.Helper()
	dir := t.TempDir()

	ls, err := ledger.NewStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ls.Close() })

	ctx := context.Background()
	userID, err := ls.CreateUser(ctx, "alice", balance)
	require.NoError(t, err)
	stationID, err := ls.CreateStation(ctx, userID, "fm-one")
	require.NoError(t, err)

	store, err := upload.NewStore(upload.NewLayout(dir))
	require.NoError(t, err)

	cfg := config.Config{MaxChunkBytes: 32 << 20}
	manager := upload.NewManager(store, ls, nil, upload.Options{
		MaxVideoBytes:     500 << 20,
		MaxChunkBytes:     cfg.MaxChunkBytes,
		SizeTolerance:     1024,
		StationVideoCap:   20,
		AllowedExtensions: []string{".mp4", ".mov", ".avi", ".mkv", ".webm"},
	})

	return &testEnv{
		router:    NewServer(cfg, manager).Router(),
		ledger:    ls,
		store:     store,
		stationID: stationID,
		userID:    userID,
	}
}

// postForm sends a url-encoded action request and decodes the JSON reply.
func (e *testEnv) postForm(t *testing.T, fields url.Values) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(fields.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(t, req)
}

// postChunk sends a multipart upload_chunk request carrying the chunk payload.
func (e *testEnv) postChunk(t *testing.T, uploadID string, index, total int, data []byte) (int, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("action", "upload_chunk"))
	require.NoError(t, mw.WriteField("upload_id", uploadID))
	require.NoError(t, mw.WriteField("chunk_index", strconv.Itoa(index)))
	require.NoError(t, mw.WriteField("total_chunks", strconv.Itoa(total)))
	part, err := mw.CreateFormFile("chunk", "blob")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(t, req)
}

func (e *testEnv) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var payload map[string]any
	raw, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &payload), "body: %s", raw)
	return rec.Code, payload
}

func (e *testEnv) initSession(t *testing.T, size int64) string {
	t.Helper()
	code, resp := e.postForm(t, url.Values{
		"action":       {"init"},
		"station_id":   {strconv.FormatInt(e.stationID, 10)},
		"filename":     {"morning show.mp4"},
		"filesize":     {strconv.FormatInt(size, 10)},
		"title":        {"Morning Show"},
		"content_type": {"music"},
		"priority":     {"3"},
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, resp["success"], "init failed: %v", resp["error"])
	return resp["upload_id"].(string)
}

func TestUploadEndToEnd(t *testing.T) {
	env := newTestEnv(t, 50)

	chunkA := bytes.Repeat([]byte("a"), 1024)
	chunkB := bytes.Repeat([]byte("b"), 512)
	declared := int64(len(chunkA) + len(chunkB))

	id := env.initSession(t, declared)

	code, resp := env.postChunk(t, id, 0, 2, chunkA)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, float64(1), resp["chunks_received"])

	code, resp = env.postChunk(t, id, 1, 2, chunkB)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), resp["chunks_received"])
	assert.Equal(t, float64(2), resp["total_chunks"])

	code, resp = env.postForm(t, url.Values{"action": {"status"}, "upload_id": {id}})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, float64(2), resp["chunks_received"])
	assert.Nil(t, resp["missing_chunks"])

	code, resp = env.postForm(t, url.Values{"action": {"finalize"}, "upload_id": {id}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, resp["success"], "finalize failed: %v", resp["error"])
	assert.Equal(t, float64(10), resp["coins_deducted"])
	assert.Equal(t, float64(40), resp["new_balance"])

	// The assembled file is visible under the station's video directory.
	filename := resp["filename"].(string)
	published := filepath.Join(env.store.Layout().StationVideoDir(env.stationID), filename)
	info, err := os.Stat(published)
	require.NoError(t, err)
	assert.Equal(t, declared, info.Size())

	// Catalog row and ledger entry exist and agree.
	ctx := context.Background()
	videoID := int64(resp["video_id"].(float64))
	video, err := env.ledger.Video(ctx, videoID)
	require.NoError(t, err)
	assert.Equal(t, filename, video.Filename)
	assert.Equal(t, "music", video.ContentType)
	assert.Equal(t, 3, video.Priority)
	assert.Equal(t, "ready", video.Status)

	entries, err := env.ledger.TransactionsForVideo(ctx, videoID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].Amount)
	assert.Equal(t, int64(50), entries[0].BalanceBefore)
	assert.Equal(t, int64(40), entries[0].BalanceAfter)

	// The session is gone; a second finalize reports that in-band.
	code, resp = env.postForm(t, url.Values{"action": {"finalize"}, "upload_id": {id}})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "unknown upload session")
}

func TestUploadRejectsMalformedSessionIDs(t *testing.T) {
	env := newTestEnv(t, 50)

	for _, action := range []string{"finalize", "cancel", "status"} {
		for _, id := range []string{"../../etc", "0123456789ABCDEF0123456789ABCDEF", "short"} {
			code, resp := env.postForm(t, url.Values{"action": {action}, "upload_id": {id}})
			require.Equal(t, http.StatusOK, code)
			assert.Equal(t, false, resp["success"], "action %s id %q", action, id)
			assert.Contains(t, resp["error"], "invalid", "action %s id %q", action, id)
		}
	}

	code, resp := env.postChunk(t, "../../etc", 0, 1, []byte("x"))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "invalid")
}

func TestUploadUnknownAction(t *testing.T) {
	env := newTestEnv(t, 50)

	code, resp := env.postForm(t, url.Values{"action": {"transmogrify"}})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "unknown action")
}

func TestInitErrorsReportedInBand(t *testing.T) {
	env := newTestEnv(t, 50)

	// Missing station_id.
	code, resp := env.postForm(t, url.Values{"action": {"init"}})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "station_id")

	// Disallowed extension.
	code, resp = env.postForm(t, url.Values{
		"action":     {"init"},
		"station_id": {strconv.FormatInt(env.stationID, 10)},
		"filename":   {"malware.exe"},
		"filesize":   {"1024"},
		"title":      {"Nope"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "file type not allowed")
}

func TestCancelIsIdempotentOverHTTP(t *testing.T) {
	env := newTestEnv(t, 50)
	id := env.initSession(t, 1024)

	for i := 0; i < 2; i++ {
		code, resp := env.postForm(t, url.Values{"action": {"cancel"}, "upload_id": {id}})
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, resp["success"], "attempt %d", i)
	}
	assert.False(t, env.store.Exists(id))
}

func TestFinalizeInsufficientFundsOverHTTP(t *testing.T) {
	env := newTestEnv(t, 5) // upload costs 10

	data := []byte("payload")
	id := env.initSession(t, int64(len(data)))

	code, _ := env.postChunk(t, id, 0, 1, data)
	require.Equal(t, http.StatusOK, code)

	code, resp := env.postForm(t, url.Values{"action": {"finalize"}, "upload_id": {id}})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "insufficient")

	// Nothing was published and the balance is untouched.
	entries, err := os.ReadDir(env.store.Layout().StationVideoDir(env.stationID))
	if err != nil {
		assert.True(t, os.IsNotExist(err))
	} else {
		assert.Empty(t, entries)
	}
	balance, err := env.ledger.Balance(context.Background(), env.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
	assert.True(t, env.store.Exists(id))
}

func TestStatusReportsMissingChunksOverHTTP(t *testing.T) {
	env := newTestEnv(t, 50)
	id := env.initSession(t, 1024)

	code, _ := env.postChunk(t, id, 2, 4, []byte("c"))
	require.Equal(t, http.StatusOK, code)

	code, resp := env.postForm(t, url.Values{"action": {"status"}, "upload_id": {id}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, resp["success"])
	assert.Equal(t, []any{float64(0), float64(1), float64(3)}, resp["missing_chunks"])
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 0)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
