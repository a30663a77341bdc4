package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

const defaultRetention = 30 * 24 * time.Hour

// PurgeFunc deletes at most limit rows older than cutoff, oldest first, and
// reports how many went.
type PurgeFunc func(ctx context.Context, cutoff time.Time, limit int) (int64, error)

type RetentionJobParams struct {
	Name      string
	Logger    *logger.Logger
	Purge     PurgeFunc
	Retention time.Duration
	BatchSize int
}

// NewRetentionJob prunes one table in batches until a short batch comes back.
// Notification cleanup and published outbox pruning both run through it.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	switch {
	case params.Name == "":
		return nil, errors.New("retention job name required")
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Purge == nil:
		return nil, fmt.Errorf("%s: purge func required", params.Name)
	}
	job := &retentionJob{
		name:      params.Name,
		logg:      params.Logger,
		purge:     params.Purge,
		retention: params.Retention,
		batchSize: params.BatchSize,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultRetention
	}
	if job.batchSize <= 0 {
		job.batchSize = defaultBatchSize
	}
	return job, nil
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	purge     PurgeFunc
	retention time.Duration
	batchSize int
	now       func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	// One cutoff per run so rows aging in mid-drain wait for the next cycle.
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := drainBatches(ctx, j.batchSize, func(ctx context.Context) (int64, error) {
		return j.purge(ctx, cutoff, j.batchSize)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"job":          j.name,
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "retention sweep complete")
	return nil
}
