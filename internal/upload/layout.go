// SPDX-License-Identifier: MIT

package upload

import (
	"fmt"
	"path/filepath"
)

// Layout maps the upload subsystem onto one data directory:
//
//	<root>/tmp/<upload_id>/      staged chunks + session.json
//	<root>/videos/<station_id>/  published media
//
// Everything takes paths from here; nothing else constructs them.
type Layout struct {
	root string
}

// NewLayout roots a layout at dataDir.
func NewLayout(dataDir string) Layout {
	return Layout{root: filepath.Clean(dataDir)}
}

// Root returns the data directory.
func (l Layout) Root() string {
	return l.root
}

// TmpDir returns the staging area for all upload sessions.
func (l Layout) TmpDir() string {
	return filepath.Join(l.root, "tmp")
}

// SessionDir returns the staging directory of one session. The caller must
// have validated id against the session ID pattern.
func (l Layout) SessionDir(id string) string {
	return filepath.Join(l.TmpDir(), id)
}

// VideosDir returns the published media root.
func (l Layout) VideosDir() string {
	return filepath.Join(l.root, "videos")
}

// StationVideoDir returns the published media directory for one station.
func (l Layout) StationVideoDir(stationID int64) string {
	return filepath.Join(l.VideosDir(), fmt.Sprintf("%d", stationID))
}
