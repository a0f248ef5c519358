package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "app", "theme_mode")
	require.NoError(t, err)
	assert.False(t, ok, "missing key should report absent")

	require.NoError(t, store.Set(ctx, "app", "theme_mode", "dark"))
	v, ok, err := store.Get(ctx, "app", "theme_mode")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	require.NoError(t, store.Set(ctx, "app", "theme_mode", "light"), "overwrite")
	v, _, err = store.Get(ctx, "app", "theme_mode")
	require.NoError(t, err)
	assert.Equal(t, "light", v)

	require.NoError(t, store.Set(ctx, "permission_denials", "theme_mode", "2"))
	v, _, err = store.Get(ctx, "app", "theme_mode")
	require.NoError(t, err)
	assert.Equal(t, "light", v, "namespaces must not collide")

	require.NoError(t, store.Delete(ctx, "app", "theme_mode"))
	_, ok, err = store.Get(ctx, "app", "theme_mode")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, store.Delete(ctx, "app", "never_set"), "deleting a missing key")

	_, _, err = store.Get(ctx, "", "x")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, store.Set(ctx, "app", " ", "x"), ErrInvalidKey)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)

	require.NoError(t, store.Close())
	_, _, err := store.Get(context.Background(), "app", "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	store, err := OpenFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.yaml")

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, Namespace(store, "permission_denials").SetInt(ctx, "camera", 2))
	require.NoError(t, store.Close())

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	n, err := Namespace(reopened, "permission_denials").Int(ctx, "camera", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "permission_denials:")
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app: [unclosed"), 0o644))
	_, err := OpenFileStore(path)
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	exerciseStore(t, store)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, Namespace(store, "app").SetBool(ctx, "auto_zoom", true))
	require.NoError(t, store.Close())

	_, _, err = store.Get(ctx, "app", "auto_zoom")
	assert.ErrorIs(t, err, ErrClosed)

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })
	b, err := Namespace(reopened, "app").Bool(ctx, "auto_zoom", false)
	require.NoError(t, err)
	assert.True(t, b)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("DRIFTSCAN_TEST_REDIS_URL")
	if url == "" {
		t.Skip("DRIFTSCAN_TEST_REDIS_URL not set")
	}
	store, err := OpenRedisStore(context.Background(), url, WithKeyPrefix("driftscan:test:"+t.Name()+":"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	exerciseStore(t, store)
}

func TestScopeTypedAccessors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	scope := Namespace(store, "app")
	assert.Equal(t, "app", scope.Name())

	n, err := scope.Int(ctx, "count", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n, "default when absent")

	require.NoError(t, scope.SetInt(ctx, "count", 3))
	n, err = scope.Int(ctx, "count", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, scope.SetString(ctx, "count", "three"))
	n, err = scope.Int(ctx, "count", 1)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, 1, n)

	s, err := scope.String(ctx, "missing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", s)

	require.NoError(t, scope.SetBool(ctx, "torch", true))
	b, err := scope.Bool(ctx, "torch", false)
	require.NoError(t, err)
	assert.True(t, b)

	require.NoError(t, scope.Delete(ctx, "torch"))
	b, err = scope.Bool(ctx, "torch", false)
	require.NoError(t, err)
	assert.False(t, b)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default memory", cfg: Config{}},
		{name: "file", cfg: Config{Backend: "file", Path: filepath.Join(dir, "s.yaml")}},
		{name: "sqlite", cfg: Config{Backend: "SQLite", Path: filepath.Join(dir, "s.db")}},
		{name: "file without path", cfg: Config{Backend: "file"}, wantErr: true},
		{name: "unknown", cfg: Config{Backend: "etcd"}, wantErr: true},
		{name: "bad redis url", cfg: Config{Backend: "redis", RedisURL: "::"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(ctx, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, store.Set(ctx, "app", "k", "v"))
			require.NoError(t, store.Close())
		})
	}
}
