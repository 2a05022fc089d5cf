// SPDX-License-Identifier: MIT

// Package upload implements the chunked video upload pipeline: session
// staging, chunk receipt, ordered assembly and coin-settled finalize.
package upload

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// Session IDs are 128-bit random tokens rendered as 32 hex characters. The
// ID doubles as a directory name, so the pattern check below is the primary
// path-traversal defense and runs before any path construction.
var sessionIDPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// ContentTypeDefault is assigned when the client's classification is not in
// the fixed enumeration. Classification is normalised, never rejected.
const ContentTypeDefault = "general"

var contentTypes = map[string]struct{}{
	"general": {},
	"music":   {},
	"news":    {},
	"sport":   {},
	"talk":    {},
}

// Priority bounds. Out-of-range values reset to the default, never reject.
const (
	PriorityMin     = 1
	PriorityMax     = 10
	PriorityDefault = 5
)

// Session is the per-upload metadata record, persisted as session.json
// inside the session's chunk directory.
type Session struct {
	ID             string    `json:"id"`
	StationID      int64     `json:"station_id"`
	Filename       string    `json:"filename"`
	DeclaredSize   int64     `json:"declared_size"`
	Title          string    `json:"title"`
	ContentType    string    `json:"content_type"`
	Priority       int       `json:"priority"`
	ChunksReceived int       `json:"chunks_received"`
	TotalChunks    int       `json:"total_chunks"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewSessionID mints an unguessable 32-hex session identifier.
func NewSessionID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate upload id: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// ValidSessionID reports whether id matches the strict hex-32 pattern.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// NormalizeContentType maps arbitrary client input into the fixed
// classification enumeration, falling back to the default.
func NormalizeContentType(ct string) string {
	if _, ok := contentTypes[ct]; ok {
		return ct
	}
	return ContentTypeDefault
}

// NormalizePriority resets out-of-range priorities to the default.
func NormalizePriority(p int) int {
	if p < PriorityMin || p > PriorityMax {
		return PriorityDefault
	}
	return p
}

// chunkFileName renders a zero-padded, fixed-width chunk name so lexical and
// numeric ordering coincide.
func chunkFileName(index int) string {
	return fmt.Sprintf("chunk_%06d", index)
}
