package missions

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for missions and their costs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, mission *models.Mission) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Mission, error)
	ListFeed(ctx context.Context, params pagination.Params, filters FeedFilters) ([]models.Mission, error)
	ListBoosted(ctx context.Context, filters FeedFilters, limit int) ([]models.Mission, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID, templates bool, params pagination.Params) ([]models.Mission, error)
	ListByRunner(ctx context.Context, runnerID uuid.UUID, params pagination.Params) ([]models.Mission, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Mission, error)
	// UpdateStatus moves the mission to `to` only while its status is one of
	// `from`. It reports whether a row changed.
	UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.MissionStatus, to enums.MissionStatus, fields map[string]any) (bool, error)
	// UpdateIf applies fields only while the status is one of `from`.
	UpdateIf(ctx context.Context, id uuid.UUID, from []enums.MissionStatus, fields map[string]any, extra ...Condition) (bool, error)
	InsertCost(ctx context.Context, cost *models.MissionCost) error
	ListCosts(ctx context.Context, missionID uuid.UUID) ([]models.MissionCost, error)
}

// Condition is an extra guard appended to a conditional update.
type Condition struct {
	Query string
	Args  []any
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a missions repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, mission *models.Mission) error {
	if mission.ID == uuid.Nil {
		mission.ID = uuid.New()
	}
	now := time.Now().UTC()
	if mission.CreatedAt.IsZero() {
		mission.CreatedAt = now
	}
	mission.UpdatedAt = now
	return r.db.WithContext(ctx).Omit("AdditionalCosts").Create(mission).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	var mission models.Mission
	if err := r.db.WithContext(ctx).
		Preload("AdditionalCosts", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("id = ?", id).
		First(&mission).Error; err != nil {
		return nil, err
	}
	return &mission, nil
}

func (r *repository) feedQuery(ctx context.Context, filters FeedFilters) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.Mission{}).
		Where("status IN ?", []enums.MissionStatus{enums.MissionStatusOpen, enums.MissionStatusOffered}).
		Where("is_template = ?", false)
	if filters.Scenario != nil {
		query = query.Where("scenario = ?", *filters.Scenario)
	}
	if category := strings.TrimSpace(filters.Category); category != "" {
		query = query.Where("LOWER(category) = ?", strings.ToLower(category))
	}
	if filters.ExcludeRequester != uuid.Nil {
		query = query.Where("requester_id <> ?", filters.ExcludeRequester)
	}
	if len(filters.ExcludeIDs) > 0 {
		query = query.Where("id NOT IN ?", filters.ExcludeIDs)
	}
	return query
}

func (r *repository) ListFeed(ctx context.Context, params pagination.Params, filters FeedFilters) ([]models.Mission, error) {
	page, err := pagination.Newest(params)
	if err != nil {
		return nil, err
	}
	query := r.feedQuery(ctx, filters)

	var missions []models.Mission
	if err := query.Scopes(page).Find(&missions).Error; err != nil {
		return nil, err
	}
	return missions, nil
}

func (r *repository) ListBoosted(ctx context.Context, filters FeedFilters, limit int) ([]models.Mission, error) {
	var missions []models.Mission
	if err := r.feedQuery(ctx, filters).
		Where("is_boosted = ?", true).
		Order("boosted_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&missions).Error; err != nil {
		return nil, err
	}
	return missions, nil
}

func (r *repository) ListByRequester(ctx context.Context, requesterID uuid.UUID, templates bool, params pagination.Params) ([]models.Mission, error) {
	page, err := pagination.Newest(params)
	if err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Where("is_template = ?", templates)

	var missions []models.Mission
	if err := query.Scopes(page).Find(&missions).Error; err != nil {
		return nil, err
	}
	return missions, nil
}

func (r *repository) ListByRunner(ctx context.Context, runnerID uuid.UUID, params pagination.Params) ([]models.Mission, error) {
	page, err := pagination.Newest(params)
	if err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Where("runner_id = ?", runnerID)

	var missions []models.Mission
	if err := query.Scopes(page).Find(&missions).Error; err != nil {
		return nil, err
	}
	return missions, nil
}

func (r *repository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Mission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var missions []models.Mission
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&missions).Error; err != nil {
		return nil, err
	}
	return missions, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.MissionStatus, to enums.MissionStatus, fields map[string]any) (bool, error) {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	return r.UpdateIf(ctx, id, from, updates)
}

func (r *repository) UpdateIf(ctx context.Context, id uuid.UUID, from []enums.MissionStatus, fields map[string]any, extra ...Condition) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Mission{}).
		Where("id = ?", id).
		Where("status IN ?", from)
	for _, cond := range extra {
		query = query.Where(cond.Query, cond.Args...)
	}
	res := query.Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertCost(ctx context.Context, cost *models.MissionCost) error {
	if cost.ID == uuid.Nil {
		cost.ID = uuid.New()
	}
	if cost.CreatedAt.IsZero() {
		cost.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(cost).Error
}

func (r *repository) ListCosts(ctx context.Context, missionID uuid.UUID) ([]models.MissionCost, error) {
	var costs []models.MissionCost
	if err := r.db.WithContext(ctx).
		Where("mission_id = ?", missionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&costs).Error; err != nil {
		return nil, err
	}
	return costs, nil
}
