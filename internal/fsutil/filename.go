// SPDX-License-Identifier: MIT

package fsutil

import (
	"path/filepath"
	"strings"
)

// SanitizeBaseName reduces a client-supplied filename to a safe base name
// without extension: directory components are stripped, and anything outside
// [a-zA-Z0-9._-] is replaced with an underscore. Returns "upload" when
// nothing usable remains.
func SanitizeBaseName(name string) string {
	// Strip any directory part, including Windows-style separators.
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), "._-")
	if out == "" {
		return "upload"
	}
	// Keep final names short enough for any sane filesystem.
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

// Ext returns the lower-cased extension of name, including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
