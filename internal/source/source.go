// Package source reads the desired-state tree of SQL view definitions.
//
// The tree has one top-level directory per dataset; every file ending in
// .sql below a dataset directory, at any depth, defines one view named after
// the file's base name.
package source

import (
	"context"
	"path"
	"strings"

	"google.golang.org/api/option"

	"bq-viewsync/internal/domain"
)

// SQLSuffix marks view definition files.
const SQLSuffix = ".sql"

// Open returns the SourceTree for root: a gs://bucket/prefix URI selects the
// GCS tree, anything else is a local directory.
func Open(ctx context.Context, root string, opts ...option.ClientOption) (domain.SourceTree, error) {
	if strings.HasPrefix(root, "gs://") {
		return NewGCS(ctx, root, opts...)
	}
	return NewLocal(root), nil
}

// viewID derives a view name from a file path: the base name without its
// final extension.
func viewID(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// isSQL reports whether name is a view definition file.
func isSQL(name string) bool {
	return strings.HasSuffix(name, SQLSuffix)
}
