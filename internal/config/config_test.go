// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, int64(500<<20), cfg.MaxVideoBytes)
	assert.Equal(t, int64(1024), cfg.SizeTolerance)
	assert.Equal(t, 20, cfg.StationVideoCap)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Contains(t, cfg.AllowedExtensions, ".mp4")
	assert.Equal(t, cfg.DataDir+"/stationcast.db", cfg.DBPath)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STATIONCAST_LISTEN", ":9999")
	t.Setenv("STATIONCAST_MAX_VIDEO_BYTES", "1048576")
	t.Setenv("STATIONCAST_SESSION_TTL", "2h")
	t.Setenv("STATIONCAST_ALLOWED_EXTENSIONS", "mp4, .mkv")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, int64(1<<20), cfg.MaxVideoBytes)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, []string{".mp4", ".mkv"}, cfg.AllowedExtensions)
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":7070\"\nstation_video_cap: 5\n"), 0o600))
	t.Setenv("STATIONCAST_LISTEN", ":6060")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Environment beats the file; the file beats defaults.
	assert.Equal(t, ":6060", cfg.ListenAddr)
	assert.Equal(t, 5, cfg.StationVideoCap)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsNonsense(t *testing.T) {
	cfg := defaults()
	cfg.MaxVideoBytes = 0
	cfg.StationVideoCap = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max video size")
	assert.Contains(t, err.Error(), "station video cap")
}

func TestParseHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("STATIONCAST_TEST_INT", "not-a-number")
	assert.Equal(t, 7, ParseInt("STATIONCAST_TEST_INT", 7))

	t.Setenv("STATIONCAST_TEST_DUR", "soon")
	assert.Equal(t, time.Minute, ParseDuration("STATIONCAST_TEST_DUR", time.Minute))

	t.Setenv("STATIONCAST_TEST_BOOL", "sure")
	assert.True(t, ParseBool("STATIONCAST_TEST_BOOL", true))
}
