// SPDX-License-Identifier: MIT

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfineRelPathRejectsTraversal(t *testing.T) {
	root := t.TempDir()

	for _, target := range []string{
		"..",
		"../etc",
		"../../etc/passwd",
		"a/../../etc",
		"/etc/passwd",
		"a\\..\\b",
	} {
		_, err := ConfineRelPath(root, target)
		assert.Error(t, err, "target %q must be rejected", target)
	}
}

func TestConfineRelPathAllowsChildren(t *testing.T) {
	root := t.TempDir()

	got, err := ConfineRelPath(root, "abc123")
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolved, "abc123"), got)

	// Inner ".." that stays inside the root is fine.
	got, err = ConfineRelPath(root, "a/../b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolved, "b"), got)
}

func TestConfineRelPathRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(root, "escape")
	require.NoError(t, os.Symlink(outside, link))

	_, err := ConfineRelPath(root, "escape/file")
	assert.Error(t, err)
}

func TestIsRegularFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	assert.NoError(t, IsRegularFile(file))
	assert.Error(t, IsRegularFile(dir))
	assert.Error(t, IsRegularFile(filepath.Join(dir, "missing")))
}

func TestSanitizeBaseName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"show.mp4", "show"},
		{"My Show (final).mp4", "My_Show__final"},
		{"../../etc/passwd", "passwd"},
		{"..\\..\\windows\\system32.mp4", "system32"},
		{"ünïcode.mp4", "n_code"},
		{"....", "upload"},
		{"", "upload"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeBaseName(tc.in), "input %q", tc.in)
	}
}

func TestExt(t *testing.T) {
	assert.Equal(t, ".mp4", Ext("Show.MP4"))
	assert.Equal(t, "", Ext("noext"))
}
