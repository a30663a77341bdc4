package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/maiyom-backend/pkg/enums"
)

// Offer is a runner's priced bid against a mission.
type Offer struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MissionID    uuid.UUID           `gorm:"column:mission_id;type:uuid;not null"`
	RunnerID     uuid.UUID           `gorm:"column:runner_id;type:uuid;not null"`
	Price        decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	CounterPrice decimal.NullDecimal `gorm:"column:counter_price;type:numeric(12,2)"`
	Note         *string             `gorm:"column:note"`
	PhotoURL     *string             `gorm:"column:photo_url"`
	Status       enums.OfferStatus   `gorm:"column:status;type:offer_status;not null;default:pending"`
	CounteredAt  *time.Time          `gorm:"column:countered_at"`
	ResolvedAt   *time.Time          `gorm:"column:resolved_at"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
