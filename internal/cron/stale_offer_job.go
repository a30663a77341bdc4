package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

type StaleOfferJobParams struct {
	Logger    *logger.Logger
	Offers    staleOfferReconciler
	BatchSize int
}

type staleOfferReconciler interface {
	RejectStaleOffers(ctx context.Context, limit int) (int, error)
}

// NewStaleOfferJob closes live offers whose mission already moved past bidding.
func NewStaleOfferJob(params StaleOfferJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Offers == nil {
		return nil, fmt.Errorf("offers service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &staleOfferJob{
		logg:      params.Logger,
		offers:    params.Offers,
		batchSize: batch,
	}, nil
}

type staleOfferJob struct {
	logg      *logger.Logger
	offers    staleOfferReconciler
	batchSize int
}

func (j *staleOfferJob) Name() string { return "stale-offer-reconcile" }

func (j *staleOfferJob) Run(ctx context.Context) error {
	closed, err := drainBatches(ctx, j.batchSize, func(ctx context.Context) (int64, error) {
		n, err := j.offers.RejectStaleOffers(ctx, j.batchSize)
		return int64(n), err
	})
	if err != nil {
		return fmt.Errorf("stale offer reconcile: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "offers_closed", closed), "stale offer reconcile complete")
	return nil
}
