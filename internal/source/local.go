package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"bq-viewsync/internal/domain"
)

// Compile-time check: Local implements SourceTree.
var _ domain.SourceTree = (*Local)(nil)

// Local is a SQL tree on the local filesystem.
type Local struct {
	root string
}

// NewLocal returns a tree rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// Root implements domain.SourceTree.
func (l *Local) Root() string { return l.root }

// ListDatasets implements domain.SourceTree. Symlinks are followed when
// deciding whether an entry is a directory.
func (l *Local) ListDatasets(_ context.Context) ([]domain.SourceEntry, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("read sql root %q: %w", l.root, err)
	}
	out := make([]domain.SourceEntry, 0, len(entries))
	for _, e := range entries {
		isDir := e.IsDir()
		if e.Type()&fs.ModeSymlink != 0 {
			if fi, err := os.Stat(filepath.Join(l.root, e.Name())); err == nil {
				isDir = fi.IsDir()
			}
		}
		out = append(out, domain.SourceEntry{Name: e.Name(), IsDir: isDir})
	}
	return out, nil
}

// WalkSQL implements domain.SourceTree.
func (l *Local) WalkSQL(ctx context.Context, datasetID string) ([]domain.SQLFile, error) {
	dir := filepath.Join(l.root, datasetID)
	var files []domain.SQLFile
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !isSQL(d.Name()) {
			return nil
		}
		data, err := os.ReadFile(p) //nolint:gosec // path comes from walking the configured root
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, domain.SQLFile{
			DatasetID: datasetID,
			ViewID:    viewID(d.Name()),
			SQL:       string(data),
			Path:      p,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}
