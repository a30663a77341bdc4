package cron

import "context"

const (
	defaultBatchSize = 500
	maxBatchesPerRun = 50
)

// drainBatches calls step until it reports fewer rows than the batch size or
// the per-run cap is reached.
func drainBatches(ctx context.Context, batchSize int, step func(ctx context.Context) (int64, error)) (int64, error) {
	var total int64
	for i := 0; i < maxBatchesPerRun; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := step(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(batchSize) {
			return total, nil
		}
	}
	return total, nil
}
