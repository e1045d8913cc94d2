package filestore_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jrsteele09/go-card-console/credentials"
	"github.com/jrsteele09/go-card-console/credentials/filestore"
	"github.com/jrsteele09/go-card-console/identity"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *filestore.Store {
	t.Helper()
	s, err := filestore.New(filepath.Join(t.TempDir(), "credentials"))
	require.NoError(t, err)
	return s
}

func testRecord() credentials.SessionRecord {
	return credentials.SessionRecord{
		Identity: identity.Identity{
			ID:          "u-1",
			Username:    "admin",
			DisplayName: "Administrator",
			Role:        identity.RoleAdmin,
			Permissions: identity.PermissionsForRole(identity.RoleAdmin),
		},
		Tokens: identity.TokenPair{
			AccessToken:      "access",
			RefreshToken:     "refresh",
			TokenType:        "Bearer",
			ExpiresInSeconds: 3600,
			IssuedAt:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := filestore.New("")
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := setupStore(t)

	_, ok := s.Load()
	require.False(t, ok)

	require.NoError(t, s.Save(testRecord()))
	got, ok := s.Load()
	require.True(t, ok)
	require.Equal(t, testRecord(), *got)
}

func TestFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	s := setupStore(t)
	require.NoError(t, s.Save(testRecord()))

	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0700), info.Mode().Perm())

	for _, name := range credentials.Entries {
		info, err := os.Stat(filepath.Join(s.Dir(), name))
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0600), info.Mode().Perm(), name)
	}
}

func TestClearRemovesEveryEntry(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Save(testRecord()))

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	for _, name := range credentials.Entries {
		_, err := os.Stat(filepath.Join(s.Dir(), name))
		require.True(t, os.IsNotExist(err))
	}
	_, ok := s.Load()
	require.False(t, ok)
}

func TestCorruptEntryIsAbsent(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Save(testRecord()))

	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), credentials.EntryProfile), []byte("not json"), 0600))
	_, ok := s.Load()
	require.False(t, ok)
}

func TestMissingEntryIsAbsent(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Save(testRecord()))

	require.NoError(t, os.Remove(filepath.Join(s.Dir(), credentials.EntryAccessToken)))
	_, ok := s.Load()
	require.False(t, ok)
}
