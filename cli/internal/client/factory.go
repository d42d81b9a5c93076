package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/grafana/nanofetch"
	"github.com/grafana/nanofetch/config"
	"github.com/grafana/nanofetch/log"
	"github.com/grafana/nanofetch/metrics"
	"github.com/grafana/nanofetch/pipeline"
	"github.com/grafana/nanofetch/sink/csvfile"
	"github.com/grafana/nanofetch/sink/objectstore"
	"github.com/grafana/nanofetch/sink/sqlstore"
)

// NewFetcher creates a fetcher from the API section of cfg.
func NewFetcher(cfg *config.Config, logger log.Logger, m *metrics.Metrics) (*nanofetch.Fetcher, error) {
	opts := cfg.FetcherOptions()
	opts = append(opts, nanofetch.WithLogger(logger))
	if m != nil {
		opts = append(opts, nanofetch.WithObserver(m))
	}
	return nanofetch.NewFetcher(opts...)
}

// OpenStore opens the configured database, or returns nil when no DSN is set.
func OpenStore(ctx context.Context, cfg *config.Config, logger log.Logger) (*sqlstore.Store, error) {
	if cfg.Database.DSN == "" {
		return nil, nil
	}
	return sqlstore.Open(ctx, sqlstore.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	}, logger)
}

// NewUploader creates the configured uploader, or returns nil when no bucket is set.
func NewUploader(cfg *config.Config, logger log.Logger) (objectstore.Uploader, error) {
	if cfg.Storage.Bucket == "" {
		return nil, nil
	}
	return objectstore.NewOSSUploader(objectstore.Config{
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		AccessKeySecret: cfg.Storage.AccessKeySecret,
		Gzip:            cfg.Storage.Gzip,
	}, logger)
}

// Job bundles a pipeline with the resources it holds open.
type Job struct {
	*pipeline.Job
	store *sqlstore.Store
}

// Close releases the database connection, if any.
func (j *Job) Close() error {
	if j.store == nil {
		return nil
	}
	return j.store.Close()
}

// NewJob wires the fetcher, CSV writer, database and uploader described by cfg.
// The API key is not checked here so that servers can start without one.
func NewJob(ctx context.Context, cfg *config.Config, logger log.Logger, m *metrics.Metrics) (*Job, error) {
	fetcher, err := NewFetcher(cfg, logger, m)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if m != nil {
		opts = append(opts, pipeline.WithObserver(m))
	}

	uploader, err := NewUploader(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create uploader: %w", err)
	}
	if uploader != nil {
		opts = append(opts, pipeline.WithUploader(uploader, cfg.Storage.Bucket, cfg.Storage.Key))
	}

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if store != nil {
		opts = append(opts, pipeline.WithStore(store))
	}

	job, err := pipeline.New(fetcher, csvfile.NewWriter(cfg.Output.CSVPath, logger), opts...)
	if err != nil {
		if store != nil {
			err = errors.Join(err, store.Close())
		}
		return nil, err
	}

	return &Job{Job: job, store: store}, nil
}
