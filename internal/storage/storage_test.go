package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

func sampleDraft(key, vendor string) models.Draft {
	return models.Draft{
		Key:      key,
		Payload:  json.RawMessage(`{"vendor":"` + vendor + `"}`),
		Revision: "rev-" + vendor,
		SavedAt:  time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Get(ctx, "nothing-here")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, sampleDraft("po-creation-form", "Acme")))
		got, err := s.Get(ctx, "po-creation-form")
		require.NoError(t, err)
		assert.JSONEq(t, `{"vendor":"Acme"}`, string(got.Payload))
		assert.Equal(t, "rev-Acme", got.Revision)
		assert.True(t, got.SavedAt.Equal(sampleDraft("", "").SavedAt))
	})

	t.Run("last write wins", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, sampleDraft("ticket", "first")))
		require.NoError(t, s.Set(ctx, sampleDraft("ticket", "second")))
		got, err := s.Get(ctx, "ticket")
		require.NoError(t, err)
		assert.JSONEq(t, `{"vendor":"second"}`, string(got.Payload))
	})

	t.Run("list ordered by key", func(t *testing.T) {
		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "po-creation-form", list[0].Key)
		assert.Equal(t, "ticket", list[1].Key)
		assert.Equal(t, len(`{"vendor":"second"}`), list[1].Size)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "ticket"))
		require.NoError(t, s.Delete(ctx, "ticket"))
		_, err := s.Get(ctx, "ticket")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("invalid keys", func(t *testing.T) {
		for _, key := range []string{"", "../escape", "a/b", ".hidden"} {
			_, err := s.Get(ctx, key)
			assert.ErrorIs(t, err, apperr.ErrInvalidKey, "key %q", key)
			assert.ErrorIs(t, s.Set(ctx, sampleDraft(key, "x")), apperr.ErrInvalidKey, "key %q", key)
		}
	})
}

func TestFS(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFS(dir)
	require.NoError(t, err)
	exerciseStore(t, s)

	_, err = os.Stat(filepath.Join(dir, "po-creation-form.json"))
	assert.NoError(t, err)
}

func TestFSNoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFS(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), sampleDraft("k", "v")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "k.json", entries[0].Name())
}

func TestFSListSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFS(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNewFSRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err := NewFS(f)
	assert.Error(t, err)
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "drafts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	exerciseStore(t, s)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drafts.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), sampleDraft("po", "Acme")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	got, err := s.Get(context.Background(), "po")
	require.NoError(t, err)
	assert.Equal(t, "rev-Acme", got.Revision)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory(0))
}

func TestMemoryCopiesPayload(t *testing.T) {
	s := NewMemory(0)
	d := sampleDraft("k", "v")
	require.NoError(t, s.Set(context.Background(), d))
	d.Payload[0] = 'X'

	got, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"vendor":"v"}`, string(got.Payload))
}

func TestRedis(t *testing.T) {
	url := os.Getenv("RAIDO_TEST_REDIS_URL")
	if url == "" {
		t.Skip("RAIDO_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := OpenRedis(ctx, url)
	require.NoError(t, err)
	s.prefix = "raido-test-" + t.Name() + ":"
	t.Cleanup(func() {
		for _, k := range []string{"po-creation-form", "ticket"} {
			_ = s.Delete(ctx, k)
		}
		s.Close()
	})
	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, Options{Backend: BackendSQLite, Path: filepath.Join(dir, "db", "drafts.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	s.Close()

	s, err = Open(ctx, Options{Backend: BackendFS, Path: filepath.Join(dir, "files")})
	require.NoError(t, err)
	assert.IsType(t, &FS{}, s)

	s, err = Open(ctx, Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open(ctx, Options{Backend: "tape"})
	assert.Error(t, err)
}
