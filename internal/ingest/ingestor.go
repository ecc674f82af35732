// Package ingest bulk-loads CSV files into a feature group's online store.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/caldew/loom/internal/catalog"
)

var (
	recordsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_ingest_records_total",
			Help: "Total number of records written to the online store.",
		},
		[]string{"group"},
	)

	ingestFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_ingest_failures_total",
			Help: "Total number of records that failed to ingest.",
		},
		[]string{"group"},
	)
)

func init() {
	prometheus.MustRegister(recordsIngested)
	prometheus.MustRegister(ingestFailures)
}

// Catalog is the slice of the feature-store client that ingestion needs.
type Catalog interface {
	PutRecord(ctx context.Context, group string, rec catalog.Record) error
}

const defaultWorkers = 4

// Ingestor streams CSV rows into a feature group as individual record puts.
type Ingestor struct {
	Catalog Catalog
	Workers int // concurrent puts; defaults to 4
	Logger  *slog.Logger
}

// Result summarizes a completed ingestion run.
type Result struct {
	Records int
	Elapsed time.Duration
}

func (ing *Ingestor) workers() int {
	if ing.Workers > 0 {
		return ing.Workers
	}
	return defaultWorkers
}

func (ing *Ingestor) logger() *slog.Logger {
	if ing.Logger != nil {
		return ing.Logger
	}
	return slog.Default()
}

// IngestCSV reads r as a headered CSV and writes one record per row. The
// header must map onto the group's schema: unknown columns are an error and
// the record identifier column is required. When the event-time column is
// absent, every record is stamped with the run's start time. The first remote
// failure cancels the remaining puts and is returned.
func (ing *Ingestor) IngestCSV(ctx context.Context, group *catalog.FeatureGroup, r io.Reader) (Result, error) {
	start := time.Now()

	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return Result{}, fmt.Errorf("csv has no header row")
	}
	if err != nil {
		return Result{}, fmt.Errorf("reading header: %w", err)
	}

	schema := group.Schema
	hasID, hasEventTime := false, false
	for _, col := range header {
		if !schema.HasFeature(col) {
			return Result{}, fmt.Errorf("csv column %q is not in the schema of group %q", col, group.Name)
		}
		switch col {
		case schema.RecordIdentifier:
			hasID = true
		case schema.EventTimeFeature:
			hasEventTime = true
		}
	}
	if !hasID {
		return Result{}, fmt.Errorf("csv is missing the record identifier column %q", schema.RecordIdentifier)
	}

	// All records of a run without an event-time column share one stamp, so
	// re-running the same file replaces rather than duplicates versions.
	stamp := start.UTC().Format(time.RFC3339)

	ing.logger().Debug("ingesting csv", "group", group.Name, "workers", ing.workers())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.workers())

	rows := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("reading csv: %w", err)
		}
		rows++
		if ctx.Err() != nil {
			break
		}

		rec := make(catalog.Record, 0, len(header)+1)
		for i, col := range header {
			if row[i] == "" {
				continue
			}
			rec = append(rec, catalog.FeatureValue{Name: col, Value: row[i]})
		}
		if !hasEventTime {
			rec = append(rec, catalog.FeatureValue{Name: schema.EventTimeFeature, Value: stamp})
		}

		n := rows
		g.Go(func() error {
			if err := ing.Catalog.PutRecord(ctx, group.Name, rec); err != nil {
				ingestFailures.WithLabelValues(group.Name).Inc()
				return fmt.Errorf("row %d: %w", n, err)
			}
			recordsIngested.WithLabelValues(group.Name).Inc()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Records: rows, Elapsed: time.Since(start)}
	ing.logger().Info("ingest complete", "group", group.Name, "records", res.Records, "elapsed", res.Elapsed)
	return res, nil
}
