package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/erp/platform/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add activations table", "add_activations_table"},
		{"Add-Module-Settings", "add_module_settings"},
		{"add__module__index", "add_module_index"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "migrations")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mf, err := CreateMigration(dir, "add module settings index", "speed up settings lookups", now)
	require.NoError(t, err)

	assert.Equal(t, "20260301090000", mf.Version)
	assert.Equal(t, filepath.Join(dir, "20260301090000_add_module_settings_index.up.sql"), mf.UpPath)
	assert.Equal(t, filepath.Join(dir, "20260301090000_add_module_settings_index.down.sql"), mf.DownPath)

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "speed up settings lookups")

	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "Rollback")

	t.Run("refuses to overwrite an existing pair", func(t *testing.T) {
		_, err := CreateMigration(dir, "add module settings index", "", now)
		assert.Error(t, err)
	})

	t.Run("rejects unusable names", func(t *testing.T) {
		_, err := CreateMigration(dir, "!!!", "", now)
		assert.Error(t, err)
	})
}

func TestListMigrations(t *testing.T) {
	t.Run("lists up files sorted and ignores the rest", func(t *testing.T) {
		fsys := fstest.MapFS{
			"002_b.up.sql":      {Data: []byte("--")},
			"002_b.down.sql":    {Data: []byte("--")},
			"001_a.up.sql":      {Data: []byte("--")},
			"001_a.down.sql":    {Data: []byte("--")},
			"README.md":         {Data: []byte("x")},
			"nested/003.up.sql": {Data: []byte("--")},
		}

		names, err := ListMigrations(fsys)
		require.NoError(t, err)
		assert.Equal(t, []string{"001_a", "002_b"}, names)
	})

	t.Run("missing directory yields empty list", func(t *testing.T) {
		names, err := ListMigrations(os.DirFS(filepath.Join(t.TempDir(), "missing")))
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("embedded migrations include the activations table", func(t *testing.T) {
		names, err := ListMigrations(migrations.FS)
		require.NoError(t, err)
		assert.Contains(t, names, "20260301090000_create_company_module_activations")
	})
}
