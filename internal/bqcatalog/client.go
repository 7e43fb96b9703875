// Package bqcatalog implements domain.Catalog on top of BigQuery.
//
// Every call runs under a per-operation timeout and is retried with
// exponential backoff while the failure is transient (throttling, 5xx,
// timeout). Mutating calls additionally pass through a token-bucket limiter
// so a large tree does not trip the dataset metadata update quota.
package bqcatalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"
	"golang.org/x/time/rate"
	bqv2 "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"bq-viewsync/internal/domain"
)

// Options tunes the client's timeout, retry, and write-rate behavior.
type Options struct {
	OpTimeout      time.Duration // per remote call; <= 0 means 30s
	MaxRetries     uint64        // retries after the first attempt for transient failures
	RetryBaseDelay time.Duration // first backoff step; <= 0 means 250ms
	WriteRPS       float64       // mutating calls per second; <= 0 disables limiting
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.OpTimeout <= 0 {
		o.OpTimeout = 30 * time.Second
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 250 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Client is a BigQuery-backed domain.Catalog.
type Client struct {
	bq      *bigquery.Client
	raw     *bqv2.Service
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Compile-time check.
var _ domain.Catalog = (*Client)(nil)

// New dials BigQuery for projectID. clientOpts are passed to both the
// high-level client and the raw REST service (credentials, endpoint).
func New(ctx context.Context, projectID string, opts Options, clientOpts ...option.ClientOption) (*Client, error) {
	bq, err := bigquery.NewClient(ctx, projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	raw, err := bqv2.NewService(ctx, clientOpts...)
	if err != nil {
		_ = bq.Close()
		return nil, fmt.Errorf("create bigquery service: %w", err)
	}
	return newClient(bq, raw, opts), nil
}

func newClient(bq *bigquery.Client, raw *bqv2.Service, opts Options) *Client {
	opts = opts.withDefaults()
	c := &Client{
		bq:     bq,
		raw:    raw,
		opts:   opts,
		logger: opts.Logger.With("component", "bqcatalog"),
	}
	if opts.WriteRPS > 0 {
		burst := int(opts.WriteRPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.WriteRPS), burst)
	}
	return c
}

// Close releases the underlying client.
func (c *Client) Close() error {
	if c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

// === Datasets ===

// GetDataset implements domain.Catalog.
func (c *Client) GetDataset(ctx context.Context, projectID, datasetID string) (*domain.Dataset, error) {
	var md *bigquery.DatasetMetadata
	err := c.do(ctx, "get dataset "+projectID+"."+datasetID, false, func(ctx context.Context) error {
		var err error
		md, err = c.bq.DatasetInProject(projectID, datasetID).Metadata(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return datasetFromBQ(projectID, datasetID, md), nil
}

// CreateDataset implements domain.Catalog.
func (c *Client) CreateDataset(ctx context.Context, projectID, datasetID, location string) (*domain.Dataset, error) {
	err := c.create(ctx, "create dataset "+projectID+"."+datasetID, func(ctx context.Context) error {
		return c.bq.DatasetInProject(projectID, datasetID).Create(ctx, &bigquery.DatasetMetadata{Location: location})
	})
	if err != nil {
		return nil, err
	}
	return &domain.Dataset{ProjectID: projectID, DatasetID: datasetID, Location: location, CreatedAt: time.Now()}, nil
}

// ListDatasets implements domain.Catalog.
func (c *Client) ListDatasets(ctx context.Context, projectID string) ([]domain.Dataset, error) {
	var out []domain.Dataset
	err := c.do(ctx, "list datasets "+projectID, false, func(ctx context.Context) error {
		out = out[:0]
		it := c.bq.Datasets(ctx)
		it.ProjectID = projectID
		for {
			ds, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return err
			}
			out = append(out, domain.Dataset{ProjectID: ds.ProjectID, DatasetID: ds.DatasetID})
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDataset implements domain.Catalog. A dataset that is already gone
// counts as deleted.
func (c *Client) DeleteDataset(ctx context.Context, projectID, datasetID string, deleteContents bool) error {
	err := c.do(ctx, "delete dataset "+projectID+"."+datasetID, true, func(ctx context.Context) error {
		ds := c.bq.DatasetInProject(projectID, datasetID)
		if deleteContents {
			return ds.DeleteWithContents(ctx)
		}
		return ds.Delete(ctx)
	})
	if domain.IsNotFound(err) {
		return nil
	}
	return err
}

// === Tables ===

// GetTable implements domain.Catalog.
func (c *Client) GetTable(ctx context.Context, projectID, datasetID, tableID string) (*domain.Table, error) {
	var md *bigquery.TableMetadata
	err := c.do(ctx, "get table "+projectID+"."+datasetID+"."+tableID, false, func(ctx context.Context) error {
		var err error
		md, err = c.bq.DatasetInProject(projectID, datasetID).Table(tableID).Metadata(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &domain.Table{
		ProjectID: projectID,
		DatasetID: datasetID,
		TableID:   tableID,
		TableType: string(md.Type),
		ViewQuery: md.ViewQuery,
	}, nil
}

// CreateView implements domain.Catalog. Views are always created with
// standard SQL.
func (c *Client) CreateView(ctx context.Context, projectID, datasetID, tableID, viewQuery string) (*domain.Table, error) {
	err := c.create(ctx, "create view "+projectID+"."+datasetID+"."+tableID, func(ctx context.Context) error {
		return c.bq.DatasetInProject(projectID, datasetID).Table(tableID).Create(ctx, &bigquery.TableMetadata{
			ViewQuery:    viewQuery,
			UseLegacySQL: false,
		})
	})
	if err != nil {
		return nil, err
	}
	return &domain.Table{
		ProjectID: projectID,
		DatasetID: datasetID,
		TableID:   tableID,
		TableType: domain.TableTypeView,
		ViewQuery: viewQuery,
	}, nil
}

// UpdateViewQuery implements domain.Catalog.
func (c *Client) UpdateViewQuery(ctx context.Context, projectID, datasetID, tableID, viewQuery string) error {
	return c.do(ctx, "update view "+projectID+"."+datasetID+"."+tableID, true, func(ctx context.Context) error {
		_, err := c.bq.DatasetInProject(projectID, datasetID).Table(tableID).Update(ctx, bigquery.TableMetadataToUpdate{
			ViewQuery:    viewQuery,
			UseLegacySQL: false,
		}, "")
		return err
	})
}

// ListTables implements domain.Catalog. It goes through the REST service
// because its list response carries each table's type.
func (c *Client) ListTables(ctx context.Context, projectID, datasetID string) ([]domain.Table, error) {
	var out []domain.Table
	err := c.do(ctx, "list tables "+projectID+"."+datasetID, false, func(ctx context.Context) error {
		out = out[:0]
		return c.raw.Tables.List(projectID, datasetID).Pages(ctx, func(page *bqv2.TableList) error {
			for _, t := range page.Tables {
				if t == nil || t.TableReference == nil {
					continue
				}
				out = append(out, domain.Table{
					ProjectID: t.TableReference.ProjectId,
					DatasetID: t.TableReference.DatasetId,
					TableID:   t.TableReference.TableId,
					TableType: t.Type,
				})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteTable implements domain.Catalog.
func (c *Client) DeleteTable(ctx context.Context, projectID, datasetID, tableID string, notFoundOK bool) error {
	err := c.do(ctx, "delete table "+projectID+"."+datasetID+"."+tableID, true, func(ctx context.Context) error {
		return c.bq.DatasetInProject(projectID, datasetID).Table(tableID).Delete(ctx)
	})
	if notFoundOK && domain.IsNotFound(err) {
		return nil
	}
	return err
}

// === Access ===

// GetAccess implements domain.Catalog.
func (c *Client) GetAccess(ctx context.Context, projectID, datasetID string) ([]domain.AccessEntry, error) {
	ds, err := c.GetDataset(ctx, projectID, datasetID)
	if err != nil {
		return nil, err
	}
	return ds.Access, nil
}

// SetAccess implements domain.Catalog. The list is written as a blind
// replace with no etag check.
func (c *Client) SetAccess(ctx context.Context, projectID, datasetID string, entries []domain.AccessEntry) error {
	access := make([]*bigquery.AccessEntry, 0, len(entries))
	for _, e := range entries {
		access = append(access, accessToBQ(e))
	}
	return c.do(ctx, "set access "+projectID+"."+datasetID, true, func(ctx context.Context) error {
		_, err := c.bq.DatasetInProject(projectID, datasetID).Update(ctx, bigquery.DatasetMetadataToUpdate{Access: access}, "")
		return err
	})
}

func datasetFromBQ(projectID, datasetID string, md *bigquery.DatasetMetadata) *domain.Dataset {
	ds := &domain.Dataset{
		ProjectID: projectID,
		DatasetID: datasetID,
		Location:  md.Location,
		CreatedAt: md.CreationTime,
	}
	for _, e := range md.Access {
		if e != nil {
			ds.Access = append(ds.Access, accessFromBQ(e))
		}
	}
	return ds
}
