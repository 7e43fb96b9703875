package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"bq-viewsync/internal/domain"
)

// Compile-time check: GCS implements SourceTree.
var _ domain.SourceTree = (*GCS)(nil)

// GCS is a SQL tree stored under a Cloud Storage prefix. Object names are
// treated as slash-separated paths.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string // always empty or ending in "/"
	uri    string
}

// NewGCS creates a tree for a "gs://bucket/prefix" URI.
func NewGCS(ctx context.Context, uri string, opts ...option.ClientOption) (*GCS, error) {
	bucket, prefix, err := parseGCSPath(uri)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return newGCSWithClient(client, bucket, prefix, uri), nil
}

func newGCSWithClient(client *storage.Client, bucket, prefix, uri string) *GCS {
	return &GCS{client: client, bucket: bucket, prefix: prefix, uri: uri}
}

// Root implements domain.SourceTree.
func (g *GCS) Root() string { return g.uri }

// Close releases the storage client.
func (g *GCS) Close() error { return g.client.Close() }

// ListDatasets implements domain.SourceTree. Common prefixes are reported
// as directories, objects directly under the prefix as files.
func (g *GCS) ListDatasets(ctx context.Context) ([]domain.SourceEntry, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: g.prefix, Delimiter: "/"})
	var out []domain.SourceEntry
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, domain.ErrRemoteIO("list "+g.uri, false, err)
		}
		if attrs.Prefix != "" {
			name := strings.TrimSuffix(strings.TrimPrefix(attrs.Prefix, g.prefix), "/")
			if name != "" {
				out = append(out, domain.SourceEntry{Name: name, IsDir: true})
			}
			continue
		}
		name := strings.TrimPrefix(attrs.Name, g.prefix)
		if name != "" {
			out = append(out, domain.SourceEntry{Name: name})
		}
	}
	return out, nil
}

// WalkSQL implements domain.SourceTree.
func (g *GCS) WalkSQL(ctx context.Context, datasetID string) ([]domain.SQLFile, error) {
	bkt := g.client.Bucket(g.bucket)
	it := bkt.Objects(ctx, &storage.Query{Prefix: g.prefix + datasetID + "/"})
	var files []domain.SQLFile
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, domain.ErrRemoteIO("list "+g.uri+datasetID, false, err)
		}
		if !isSQL(attrs.Name) {
			continue
		}
		data, err := g.read(ctx, bkt, attrs.Name)
		if err != nil {
			return nil, err
		}
		files = append(files, domain.SQLFile{
			DatasetID: datasetID,
			ViewID:    viewID(attrs.Name),
			SQL:       string(data),
			Path:      "gs://" + g.bucket + "/" + attrs.Name,
		})
	}
	return files, nil
}

func (g *GCS) read(ctx context.Context, bkt *storage.BucketHandle, name string) ([]byte, error) {
	r, err := bkt.Object(name).NewReader(ctx)
	if err != nil {
		return nil, domain.ErrRemoteIO("open gs://"+g.bucket+"/"+name, false, err)
	}
	defer r.Close() //nolint:errcheck
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, domain.ErrRemoteIO("read gs://"+g.bucket+"/"+name, false, err)
	}
	return data, nil
}

// parseGCSPath extracts bucket and directory prefix from a "gs://bucket/dir" URI.
// The prefix is empty for a bucket root, otherwise it ends in "/".
func parseGCSPath(path string) (bucket, prefix string, err error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", fmt.Errorf("parse GCS path %q: %w", path, err)
	}
	if u.Scheme != "gs" {
		return "", "", fmt.Errorf("expected gs:// scheme, got %q in %q", u.Scheme, path)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("empty bucket in GCS path %q", path)
	}
	prefix = strings.Trim(u.Path, "/")
	if prefix != "" {
		prefix += "/"
	}
	return u.Host, prefix, nil
}
