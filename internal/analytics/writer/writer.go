// Package writer batches mission_events rows into BigQuery streaming inserts.
package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/maiyom-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/maiyom-backend/pkg/bigquery"
)

// Inserter is satisfied by *bigquery.Client.
type Inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type Config struct {
	MissionEventsTable string
	// BatchSize rows are buffered before an insert; 1 inserts every row.
	BatchSize   int
	MaxAttempts int
	// Backoff is the first retry delay; it doubles up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 250 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	c.MaxBackoff = max(c.MaxBackoff, c.Backoff)
	return c
}

type BigQueryWriter struct {
	client Inserter
	table  string
	cfg    Config

	mu      sync.Mutex
	pending []types.MissionEventRow
}

func New(client Inserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.MissionEventsTable)
	if table == "" {
		return nil, errors.New("mission events table is required")
	}
	return &BigQueryWriter{client: client, table: table, cfg: cfg.withDefaults()}, nil
}

// InsertMissionEvent queues row and inserts the batch once it is full. On
// failure the rows stay queued for the next attempt.
func (w *BigQueryWriter) InsertMissionEvent(ctx context.Context, row types.MissionEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, row)
	if len(w.pending) < w.cfg.BatchSize {
		return nil
	}
	return w.flush(ctx)
}

// Flush inserts whatever is queued.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush(ctx)
}

func (w *BigQueryWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := make([]any, len(w.pending))
	for i := range w.pending {
		// The event id doubles as insert id so redelivered events dedupe.
		rows[i] = &cbigquery.StructSaver{Struct: &w.pending[i], InsertID: w.pending[i].EventID}
	}
	if err := w.insert(ctx, rows); err != nil {
		return err
	}
	w.pending = w.pending[:0]
	return nil
}

func (w *BigQueryWriter) insert(ctx context.Context, rows []any) error {
	delay := w.cfg.Backoff
	for attempt := 1; ; attempt++ {
		err := w.client.InsertRows(ctx, w.table, rows)
		if err == nil {
			return nil
		}
		if attempt >= w.cfg.MaxAttempts || !pkgbigquery.Retryable(err) {
			return fmt.Errorf("insert %d rows into %s (attempt %d): %w", len(rows), w.table, attempt, err)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay = min(delay*2, w.cfg.MaxBackoff)
	}
}
