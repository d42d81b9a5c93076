// Package pipeline runs one fetch-and-persist job: fetch a record, append it
// to the CSV file, then store it and upload the file in parallel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/nanofetch"
	"github.com/grafana/nanofetch/log"
	"github.com/grafana/nanofetch/sink/objectstore"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Fetcher performs one fetch call.
type Fetcher interface {
	Fetch(ctx context.Context, req nanofetch.FetchRequest) nanofetch.Result
}

// Appender appends records to a local file.
type Appender interface {
	Append(ctx context.Context, record nanofetch.Record) error
	Path() string
}

// RecordSaver stores a record in a database.
type RecordSaver interface {
	SaveRecord(ctx context.Context, record nanofetch.Record) error
}

// RunObserver is notified of every finished run.
type RunObserver interface {
	ObserveRun(status string)
}

// Report describes one run.
type Report struct {
	RunID      string
	Query      string
	Record     nanofetch.Record
	Attempts   int
	CSVPath    string
	Stored     bool
	ObjectPath string
	Duration   time.Duration
}

// Option configures a Job.
type Option func(*Job) error

// Job wires a fetcher to its sinks.
type Job struct {
	fetcher  Fetcher
	csv      Appender
	store    RecordSaver
	uploader objectstore.Uploader
	bucket   string
	key      string
	observer RunObserver
	logger   log.Logger
}

// New creates a job that appends every fetched record to csv.
func New(fetcher Fetcher, csv Appender, options ...Option) (*Job, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}
	if csv == nil {
		return nil, errors.New("csv appender is nil")
	}

	job := &Job{
		fetcher: fetcher,
		csv:     csv,
		logger:  log.Noop(),
	}

	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(job); err != nil {
			return nil, err
		}
	}

	return job, nil
}

// WithStore saves every fetched record to store.
func WithStore(store RecordSaver) Option {
	return func(j *Job) error {
		if store == nil {
			return errors.New("store is nil")
		}
		j.store = store
		return nil
	}
}

// WithUploader uploads the CSV file to bucket/key after every append.
func WithUploader(uploader objectstore.Uploader, bucket, key string) Option {
	return func(j *Job) error {
		if uploader == nil {
			return errors.New("uploader is nil")
		}
		if bucket == "" || key == "" {
			return errors.New("bucket and key are required for uploads")
		}
		j.uploader = uploader
		j.bucket = bucket
		j.key = key
		return nil
	}
}

// WithObserver reports run outcomes to observer.
func WithObserver(observer RunObserver) Option {
	return func(j *Job) error {
		if observer == nil {
			return errors.New("observer is nil")
		}
		j.observer = observer
		return nil
	}
}

// WithLogger sets the logger used when the context carries none.
func WithLogger(logger log.Logger) Option {
	return func(j *Job) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		j.logger = logger
		return nil
	}
}

// Run fetches req and persists the record. A failed fetch is returned as the
// *nanofetch.FetchError from the result so callers can classify it.
func (j *Job) Run(ctx context.Context, req nanofetch.FetchRequest) (report Report, err error) {
	start := time.Now()
	report = Report{
		RunID:   uuid.NewString(),
		Query:   req.Query,
		CSVPath: j.csv.Path(),
	}

	logger := log.FromContextOr(ctx, j.logger)
	logger.Info("Run started", "run_id", report.RunID, "query", req.Query)

	defer func() {
		report.Duration = time.Since(start)
		status := statusSuccess
		if err != nil {
			status = statusFailure
			logger.Error("Run failed", "run_id", report.RunID, "query", req.Query, "error", err)
		} else {
			logger.Info("Run completed", "run_id", report.RunID, "query", req.Query,
				"stored", report.Stored, "object", report.ObjectPath, "duration", report.Duration)
		}
		if j.observer != nil {
			j.observer.ObserveRun(status)
		}
	}()

	result := j.fetcher.Fetch(ctx, req)
	report.Attempts = result.Attempts
	if !result.OK() {
		return report, result.AsError()
	}
	report.Record = result.Record

	if err := j.csv.Append(ctx, result.Record); err != nil {
		return report, fmt.Errorf("append csv: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if j.store != nil {
		g.Go(func() error {
			if err := j.store.SaveRecord(gctx, result.Record); err != nil {
				return fmt.Errorf("save record: %w", err)
			}
			report.Stored = true
			return nil
		})
	}

	if j.uploader != nil {
		g.Go(func() error {
			path, err := j.uploader.Upload(gctx, report.CSVPath, j.bucket, j.key)
			if err != nil {
				return fmt.Errorf("upload csv: %w", err)
			}
			report.ObjectPath = path
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	return report, nil
}
