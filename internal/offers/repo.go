package offers

import (
	"context"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/db"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	liveOfferConstraint = db.UniqueIndex{
		Name:    "ux_offers_live_per_runner",
		Table:   "offers",
		Columns: []string{"mission_id", "runner_id"},
	}
	acceptedOfferConstraint = db.UniqueIndex{
		Name:    "ux_offers_one_accepted_per_mission",
		Table:   "offers",
		Columns: []string{"mission_id"},
	}
)

// Repository defines persistence operations for offers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, offer *models.Offer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	// ListByMission returns a mission's offers; a non-nil runnerID narrows
	// the page to that runner's bids.
	ListByMission(ctx context.Context, missionID uuid.UUID, runnerID *uuid.UUID, params pagination.Params) ([]models.Offer, error)
	ListByRunner(ctx context.Context, runnerID uuid.UUID, status *enums.OfferStatus, params pagination.Params) ([]models.Offer, error)
	// UpdateIf applies fields only while the offer status is one of `from`.
	UpdateIf(ctx context.Context, id uuid.UUID, from []enums.OfferStatus, fields map[string]any) (bool, error)
	CountLive(ctx context.Context, missionID uuid.UUID) (int64, error)
	// RejectSiblings closes every live offer on the mission except keepID and
	// returns the offers it closed.
	RejectSiblings(ctx context.Context, missionID, keepID uuid.UUID, at time.Time) ([]models.Offer, error)
	// ListStale returns live offers whose mission already left open/offered.
	ListStale(ctx context.Context, limit int) ([]models.Offer, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an offers repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, offer *models.Offer) error {
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	now := time.Now().UTC()
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = now
	}
	offer.UpdatedAt = now
	return r.db.WithContext(ctx).Create(offer).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&offer).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *repository) ListByMission(ctx context.Context, missionID uuid.UUID, runnerID *uuid.UUID, params pagination.Params) ([]models.Offer, error) {
	page, err := pagination.Newest(params)
	if err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Where("mission_id = ?", missionID)
	if runnerID != nil {
		query = query.Where("runner_id = ?", *runnerID)
	}

	var offers []models.Offer
	if err := query.Scopes(page).Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}

func (r *repository) ListByRunner(ctx context.Context, runnerID uuid.UUID, status *enums.OfferStatus, params pagination.Params) ([]models.Offer, error) {
	page, err := pagination.Newest(params)
	if err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Where("runner_id = ?", runnerID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var offers []models.Offer
	if err := query.Scopes(page).Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}

func (r *repository) UpdateIf(ctx context.Context, id uuid.UUID, from []enums.OfferStatus, fields map[string]any) (bool, error) {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ?", id).
		Where("status IN ?", from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CountLive(ctx context.Context, missionID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("mission_id = ?", missionID).
		Where("status IN ?", enums.LiveOfferStatuses).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) RejectSiblings(ctx context.Context, missionID, keepID uuid.UUID, at time.Time) ([]models.Offer, error) {
	var siblings []models.Offer
	if err := r.db.WithContext(ctx).
		Where("mission_id = ?", missionID).
		Where("id <> ?", keepID).
		Where("status IN ?", enums.LiveOfferStatuses).
		Find(&siblings).Error; err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(siblings))
	for _, o := range siblings {
		ids = append(ids, o.ID)
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id IN ?", ids).
		Where("status IN ?", enums.LiveOfferStatuses).
		Updates(map[string]any{
			"status":      enums.OfferStatusRejected,
			"resolved_at": at,
			"updated_at":  at,
		}).Error; err != nil {
		return nil, err
	}
	for i := range siblings {
		siblings[i].Status = enums.OfferStatusRejected
		siblings[i].ResolvedAt = &at
	}
	return siblings, nil
}

func (r *repository) ListStale(ctx context.Context, limit int) ([]models.Offer, error) {
	var offers []models.Offer
	if err := r.db.WithContext(ctx).
		Select("offers.*").
		Joins("JOIN missions ON missions.id = offers.mission_id").
		Where("offers.status IN ?", enums.LiveOfferStatuses).
		Where("missions.status NOT IN ?", []enums.MissionStatus{enums.MissionStatusOpen, enums.MissionStatusOffered}).
		Order("offers.created_at ASC").
		Limit(limit).
		Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}
