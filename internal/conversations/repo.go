package conversations

import (
	"context"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for chat messages.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, msg *models.Message) error
	// List returns a page of a thread, newest first. Mission threads match on
	// missionID; channel threads optionally narrow to one sender.
	List(ctx context.Context, thread Thread, params pagination.Params) ([]models.Message, error)
	LatestByMission(ctx context.Context, missionIDs []uuid.UUID) (map[uuid.UUID]models.Message, error)
	Latest(ctx context.Context, thread Thread) (*models.Message, error)
	// ConversationMissionIDs returns the missions the user negotiated to an
	// accepted offer on either side.
	ConversationMissionIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Thread addresses one message stream.
type Thread struct {
	Channel   enums.MessageChannel
	MissionID *uuid.UUID
	SenderID  *uuid.UUID
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a messages repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *repository) threadQuery(ctx context.Context, thread Thread) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Message{}).Where("channel = ?", thread.Channel)
	if thread.MissionID != nil {
		query = query.Where("mission_id = ?", *thread.MissionID)
	}
	if thread.SenderID != nil {
		query = query.Where("sender_id = ?", *thread.SenderID)
	}
	return query
}

func (r *repository) List(ctx context.Context, thread Thread, params pagination.Params) ([]models.Message, error) {
	page, err := pagination.Newest(params)
	if err != nil {
		return nil, err
	}
	query := r.threadQuery(ctx, thread)

	var messages []models.Message
	if err := query.Scopes(page).Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *repository) LatestByMission(ctx context.Context, missionIDs []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	out := make(map[uuid.UUID]models.Message, len(missionIDs))
	if len(missionIDs) == 0 {
		return out, nil
	}
	latest := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Select("mission_id, MAX(created_at)").
		Where("channel = ?", enums.MessageChannelMission).
		Where("mission_id IN ?", missionIDs).
		Group("mission_id")

	var rows []models.Message
	if err := r.db.WithContext(ctx).
		Where("channel = ?", enums.MessageChannelMission).
		Where("(mission_id, created_at) IN (?)", latest).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, msg := range rows {
		if msg.MissionID == nil {
			continue
		}
		if _, seen := out[*msg.MissionID]; !seen {
			out[*msg.MissionID] = msg
		}
	}
	return out, nil
}

func (r *repository) Latest(ctx context.Context, thread Thread) (*models.Message, error) {
	var rows []models.Message
	if err := r.threadQuery(ctx, thread).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repository) ConversationMissionIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var asRequester []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Mission{}).
		Where("requester_id = ?", userID).
		Where("accepted_offer_id IS NOT NULL").
		Pluck("id", &asRequester).Error; err != nil {
		return nil, err
	}
	var asRunner []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("runner_id = ?", userID).
		Where("status = ?", enums.OfferStatusAccepted).
		Pluck("mission_id", &asRunner).Error; err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(asRequester)+len(asRunner))
	ids := make([]uuid.UUID, 0, len(asRequester)+len(asRunner))
	for _, id := range append(asRequester, asRunner...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
