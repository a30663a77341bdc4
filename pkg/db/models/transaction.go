package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/maiyom-backend/pkg/enums"
)

// Transaction is an immutable ledger row tied to a mission's bill.
type Transaction struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MissionID   uuid.UUID             `gorm:"column:mission_id;type:uuid;not null"`
	PayerID     uuid.UUID             `gorm:"column:payer_id;type:uuid;not null"`
	PayeeID     uuid.UUID             `gorm:"column:payee_id;type:uuid;not null"`
	ActorUserID uuid.UUID             `gorm:"column:actor_user_id;type:uuid;not null"`
	Type        enums.TransactionType `gorm:"column:type;type:transaction_type;not null"`
	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Description *string               `gorm:"column:description"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}
