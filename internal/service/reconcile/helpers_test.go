package reconcile

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bq-viewsync/internal/deps"
	"bq-viewsync/internal/domain"
	"bq-viewsync/internal/source"
	"bq-viewsync/internal/testutil"
)

const project = "proj"

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// writeTree lays out a source tree. Keys are slash paths relative to the
// root; a key ending in "/" creates an empty directory.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if rel[len(rel)-1] == '/' {
			require.NoError(t, os.MkdirAll(p, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func newTestOrchestrator(cat domain.Catalog, root string, concurrency int) *Orchestrator {
	return NewOrchestrator(OrchestratorDeps{
		Catalog:     cat,
		Source:      source.NewLocal(root),
		Extractor:   deps.RegexExtractor{},
		ProjectID:   project,
		Concurrency: concurrency,
		Logger:      discardLogger(),
	})
}

func newTestPropagator(cat domain.Catalog) *Propagator {
	return NewPropagator(cat, deps.RegexExtractor{}, NewKeyedMutex(), discardLogger())
}

func viewEntry(datasetID, viewID string) domain.AccessEntry {
	return domain.ViewAccessEntry(domain.TableRef{ProjectID: project, DatasetID: datasetID, TableID: viewID})
}

// countAccess counts entries in the catalog's ACL equal to e.
func countAccess(fake *testutil.FakeCatalog, datasetID string, e domain.AccessEntry) int {
	n := 0
	for _, x := range fake.Access(project, datasetID) {
		if x.Equal(e) {
			n++
		}
	}
	return n
}
