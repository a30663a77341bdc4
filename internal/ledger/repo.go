package ledger

import (
	"context"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository manages persistence for mission ledger transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	ListByMission(ctx context.Context, missionID uuid.UUID) ([]models.Transaction, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Transaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListByMission(ctx context.Context, missionID uuid.UUID) ([]models.Transaction, error) {
	var txns []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("mission_id = ?", missionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Transaction, error) {
	page, err := pagination.Newest(params)
	if err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).
		Where("(payer_id = ? OR payee_id = ?)", userID, userID)

	var txns []models.Transaction
	if err := query.Scopes(page).Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
