package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/maiyom-backend/pkg/enums"
)

// Profile is the marketplace persona of an authenticated user. The same
// profile acts as requester or runner depending on the active role.
type Profile struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	FullName       string          `gorm:"column:full_name;not null"`
	Phone          *string         `gorm:"column:phone"`
	AvatarURL      *string         `gorm:"column:avatar_url"`
	City           *string         `gorm:"column:city"`
	DefaultRole    enums.Role      `gorm:"column:default_role;type:user_role;not null;default:requester"`
	AadhaarLast4   *string         `gorm:"column:aadhaar_last4"`
	PAN            *string         `gorm:"column:pan"`
	KYCStatus      enums.KYCStatus `gorm:"column:kyc_status;type:kyc_status;not null;default:none"`
	KYCSubmittedAt *time.Time      `gorm:"column:kyc_submitted_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
