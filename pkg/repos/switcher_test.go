package repos

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/containerbox/boxprov/pkg/release"
)

const testMirror = "https://dl-cdn.alpinelinux.org/alpine"

func newTestSwitcher(t *testing.T) *Switcher {
	t.Helper()
	return NewSwitcher(filepath.Join(t.TempDir(), "repositories"), testMirror)
}

func TestRender(t *testing.T) {
	s := newTestSwitcher(t)
	rendered := s.Render(release.Release{Major: 3, Minor: 20, Patch: 3})

	g := goldie.New(t)
	g.Assert(t, "repositories", []byte(rendered))
}

func TestRender_TrailingMirrorSlash(t *testing.T) {
	s := NewSwitcher("unused", testMirror+"/")
	assert.Equal(t,
		testMirror+"/v3.19/main\n"+testMirror+"/v3.19/community\n",
		s.Render(release.Release{Major: 3, Minor: 19, Patch: 0}))
}

func TestBackupAndRollback(t *testing.T) {
	s := newTestSwitcher(t)
	original := "https://mirror.example/alpine/v3.19/main\nhttps://mirror.example/alpine/v3.19/community\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(original), 0o644))

	require.NoError(t, s.Backup())
	require.NoError(t, s.Write(s.Render(release.Release{Major: 3, Minor: 20, Patch: 0})))

	switched, err := s.Current()
	require.NoError(t, err)
	assert.Contains(t, switched, "/v3.20/main")

	require.NoError(t, s.Rollback())

	restored, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, original, string(restored), "rollback must restore the list byte for byte")

	_, err = os.Stat(s.BackupPath())
	assert.NoError(t, err, "rollback must leave the backup in place")
}

func TestBackup_Overwrites(t *testing.T) {
	s := newTestSwitcher(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("first\n"), 0o644))
	require.NoError(t, s.Backup())

	require.NoError(t, os.WriteFile(s.Path(), []byte("second\n"), 0o644))
	require.NoError(t, s.Backup())

	backup, err := os.ReadFile(s.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(backup))
}

func TestBackup_MissingList(t *testing.T) {
	s := newTestSwitcher(t)

	err := s.Backup()
	require.Error(t, err)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "backup", writeErr.Op)
}

func TestRollback_NoBackup(t *testing.T) {
	s := newTestSwitcher(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("content\n"), 0o644))
	assert.True(t, IsWriteError(s.Rollback()))
}
