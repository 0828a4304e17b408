package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskforge/deskforge/pkg/observability"
)

func TestSuperRoleSetContains(t *testing.T) {
	s := NewSuperRoleSet([]string{"admin", "owner", " "})
	defer s.Close()

	assert.True(t, s.Contains("admin"))
	assert.True(t, s.Contains("owner"))
	assert.False(t, s.Contains("staff"))
	assert.False(t, s.Contains(""))
}

func TestSuperRoleSetLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "super_roles")
	require.NoError(t, os.WriteFile(path, []byte("# reserved roles\nadmin\n\nroot\n"), 0644))

	s := NewSuperRoleSet([]string{"owner"})
	defer s.Close()

	require.NoError(t, s.LoadFromFile(path))
	assert.True(t, s.Contains("admin"))
	assert.True(t, s.Contains("root"))
	assert.False(t, s.Contains("owner"), "file load replaces the seed set")
}

func TestSuperRoleSetLoadFromFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "super_roles")
	require.NoError(t, os.WriteFile(path, []byte("# only comments\n"), 0644))

	s := NewSuperRoleSet([]string{"admin"})
	defer s.Close()

	assert.Error(t, s.LoadFromFile(path))
	assert.True(t, s.Contains("admin"), "failed load keeps previous set")
}

func TestSuperRoleSetWatchReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "super_roles")
	require.NoError(t, os.WriteFile(path, []byte("admin\n"), 0644))

	s := NewSuperRoleSet(nil)
	defer s.Close()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	require.NoError(t, s.Watch(path, logger))
	assert.True(t, s.Contains("admin"))

	require.NoError(t, os.WriteFile(path, []byte("admin\nroot\n"), 0644))

	deadline := time.After(3 * time.Second)
	for !s.Contains("root") {
		select {
		case <-deadline:
			t.Fatal("watcher never picked up the new role")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
