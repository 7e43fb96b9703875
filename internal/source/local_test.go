package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bq-viewsync/internal/domain"
)

// writeTree creates files (relative path -> contents) under a temp root.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func TestLocal_ListDatasets(t *testing.T) {
	root := writeTree(t, map[string]string{
		"sales/a.sql": "SELECT 1",
		"README.md":   "not a dataset",
	})
	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))

	entries, err := NewLocal(root).ListDatasets(context.Background())
	require.NoError(t, err)

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	assert.Equal(t, []domain.SourceEntry{
		{Name: "README.md", IsDir: false},
		{Name: "empty", IsDir: true},
		{Name: "sales", IsDir: true},
	}, entries)
}

func TestLocal_ListDatasets_MissingRoot(t *testing.T) {
	_, err := NewLocal(filepath.Join(t.TempDir(), "nope")).ListDatasets(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read sql root")
}

func TestLocal_WalkSQL(t *testing.T) {
	root := writeTree(t, map[string]string{
		"sales/orders.sql":               "SELECT * FROM raw.orders",
		"sales/nested/deeper/refunds.sql": "SELECT * FROM raw.refunds",
		"sales/notes.txt":                "ignored",
		"sales/v2.orders.sql":            "SELECT 2",
		"other/x.sql":                    "SELECT 3",
	})

	files, err := NewLocal(root).WalkSQL(context.Background(), "sales")
	require.NoError(t, err)

	got := map[string]string{}
	for _, f := range files {
		assert.Equal(t, "sales", f.DatasetID)
		assert.FileExists(t, f.Path)
		got[f.ViewID] = f.SQL
	}
	assert.Equal(t, map[string]string{
		"orders":    "SELECT * FROM raw.orders",
		"refunds":   "SELECT * FROM raw.refunds",
		"v2.orders": "SELECT 2",
	}, got)
}

func TestLocal_WalkSQL_EmptyDataset(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))

	files, err := NewLocal(root).WalkSQL(context.Background(), "empty")

	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLocal_WalkSQL_MissingDataset(t *testing.T) {
	_, err := NewLocal(t.TempDir()).WalkSQL(context.Background(), "ghost")

	require.Error(t, err)
}

func TestOpen_LocalRoot(t *testing.T) {
	root := t.TempDir()

	tree, err := Open(context.Background(), root)

	require.NoError(t, err)
	assert.IsType(t, &Local{}, tree)
	assert.Equal(t, root, tree.Root())
}

func TestViewID(t *testing.T) {
	tests := map[string]string{
		"a.sql":           "a",
		"x/y/z/b.sql":     "b",
		"dir/v2.orders.sql": "v2.orders",
		`win\path\c.sql`:  "c",
	}
	for in, want := range tests {
		assert.Equal(t, want, viewID(in), in)
	}
}
