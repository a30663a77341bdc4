package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/types"
)

// Mission is a requester's delivery request and the state machine it moves through.
type Mission struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RequesterID     uuid.UUID           `gorm:"column:requester_id;type:uuid;not null"`
	Title           string              `gorm:"column:title;not null"`
	Description     *string             `gorm:"column:description"`
	Category        string              `gorm:"column:category;not null"`
	Scenario        enums.Scenario      `gorm:"column:scenario;type:mission_scenario;not null"`
	BudgetMin       decimal.Decimal     `gorm:"column:budget_min;type:numeric(12,2);not null"`
	BudgetMax       decimal.Decimal     `gorm:"column:budget_max;type:numeric(12,2);not null"`
	PickupLocation  string              `gorm:"column:pickup_location;not null"`
	DropoffLocation string              `gorm:"column:dropoff_location;not null"`
	PickupLat       *float64            `gorm:"column:pickup_lat"`
	PickupLng       *float64            `gorm:"column:pickup_lng"`
	DropoffLat      *float64            `gorm:"column:dropoff_lat"`
	DropoffLng      *float64            `gorm:"column:dropoff_lng"`
	Stops           types.Stops         `gorm:"column:stops;type:jsonb;not null;default:'[]'"`
	VehicleType     enums.VehicleType   `gorm:"column:vehicle_type;not null;default:any"`
	PackageSize     enums.PackageSize   `gorm:"column:package_size;not null;default:small"`
	ScheduledFor    *time.Time          `gorm:"column:scheduled_for"`
	IsBoosted       bool                `gorm:"column:is_boosted;not null;default:false"`
	BoostedAt       *time.Time          `gorm:"column:boosted_at"`
	IsTemplate      bool                `gorm:"column:is_template;not null;default:false"`
	TemplateID      *uuid.UUID          `gorm:"column:template_id;type:uuid"`
	Status          enums.MissionStatus `gorm:"column:status;type:mission_status;not null;default:open"`

	AcceptedOfferID *uuid.UUID          `gorm:"column:accepted_offer_id;type:uuid"`
	RunnerID        *uuid.UUID          `gorm:"column:runner_id;type:uuid"`
	AgreedPrice     decimal.NullDecimal `gorm:"column:agreed_price;type:numeric(12,2)"`
	PickupOTP       string              `gorm:"column:pickup_otp"`
	DeliveryOTP     string              `gorm:"column:delivery_otp"`

	PickupPhotoURL   *string `gorm:"column:pickup_photo_url"`
	DeliveryPhotoURL *string `gorm:"column:delivery_photo_url"`

	AcceptedAt          *time.Time           `gorm:"column:accepted_at"`
	PickedUpAt          *time.Time           `gorm:"column:picked_up_at"`
	DeliveredAt         *time.Time           `gorm:"column:delivered_at"`
	DisputedAt          *time.Time           `gorm:"column:disputed_at"`
	DisputedBy          *uuid.UUID           `gorm:"column:disputed_by;type:uuid"`
	DisputeReason       *string              `gorm:"column:dispute_reason"`
	StatusBeforeDispute *enums.MissionStatus `gorm:"column:status_before_dispute;type:mission_status"`
	ReceiptConfirmedAt  *time.Time           `gorm:"column:receipt_confirmed_at"`

	AdditionalCosts []MissionCost `gorm:"foreignKey:MissionID;references:ID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// IsParticipant reports whether userID is the requester or the accepted runner.
func (m *Mission) IsParticipant(userID uuid.UUID) bool {
	if m == nil || userID == uuid.Nil {
		return false
	}
	return m.RequesterID == userID || m.IsRunner(userID)
}

// IsRunner reports whether userID holds the accepted offer.
func (m *Mission) IsRunner(userID uuid.UUID) bool {
	return m != nil && m.RunnerID != nil && *m.RunnerID == userID
}

// AdditionalTotal sums every additional cost appended to the mission.
func (m *Mission) AdditionalTotal() decimal.Decimal {
	total := decimal.Zero
	if m == nil {
		return total
	}
	for _, cost := range m.AdditionalCosts {
		total = total.Add(cost.Amount)
	}
	return total
}

// MissionCost is one append-only additional cost line on a mission's bill.
type MissionCost struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MissionID   uuid.UUID       `gorm:"column:mission_id;type:uuid;not null"`
	AddedBy     uuid.UUID       `gorm:"column:added_by;type:uuid;not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Description string          `gorm:"column:description;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (MissionCost) TableName() string {
	return "mission_additional_costs"
}
