package missions

import (
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/angelmondragon/maiyom-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxStops          = 3
	maxTitleLength    = 120
	maxDescLength     = 2000
	maxReasonLength   = 1000
	boostedFeedSlots  = 5
	scheduleClockSkew = time.Minute
)

// FeedFilters narrow the open missions feed.
type FeedFilters struct {
	Scenario *enums.Scenario
	Category string
	// ExcludeRequester hides the caller's own missions from the runner feed.
	ExcludeRequester uuid.UUID
	// ExcludeIDs keeps missions pinned above the feed out of keyset pages.
	ExcludeIDs []uuid.UUID
}

// CreateMissionInput carries the requester's mission draft.
type CreateMissionInput struct {
	Title           string
	Description     string
	Category        string
	Scenario        enums.Scenario
	BudgetMin       decimal.Decimal
	BudgetMax       decimal.Decimal
	PickupLocation  string
	DropoffLocation string
	PickupLat       *float64
	PickupLng       *float64
	DropoffLat      *float64
	DropoffLng      *float64
	Stops           []types.Stop
	VehicleType     enums.VehicleType
	PackageSize     enums.PackageSize
	ScheduledFor    *time.Time
	IsBoosted       bool
	SaveAsTemplate  bool
}

// CreateFromTemplateInput reposts a saved template as a fresh mission.
type CreateFromTemplateInput struct {
	TemplateID   uuid.UUID
	ScheduledFor *time.Time
}

// ConfirmStepInput is the runner's OTP entry for pickup or delivery.
type ConfirmStepInput struct {
	MissionID uuid.UUID
	OTP       string
	PhotoURL  *string
}

// RaiseDisputeInput records why a participant froze the mission.
type RaiseDisputeInput struct {
	MissionID uuid.UUID
	Reason    string
}

// AddCostInput appends one line to the mission bill.
type AddCostInput struct {
	MissionID   uuid.UUID
	Amount      decimal.Decimal
	Description string
}

// Coordinates is an optional lat/lng pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CostView is one additional cost line.
type CostView struct {
	ID          uuid.UUID       `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	AddedBy     uuid.UUID       `json:"added_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MissionView is the API shape of a mission. OTPs are only populated for
// the requester.
type MissionView struct {
	ID                 uuid.UUID           `json:"id"`
	RequesterID        uuid.UUID           `json:"requester_id"`
	Title              string              `json:"title"`
	Description        *string             `json:"description,omitempty"`
	Category           string              `json:"category"`
	Scenario           enums.Scenario      `json:"scenario"`
	BudgetMin          decimal.Decimal     `json:"budget_min"`
	BudgetMax          decimal.Decimal     `json:"budget_max"`
	PickupLocation     string              `json:"pickup_location"`
	DropoffLocation    string              `json:"dropoff_location"`
	PickupCoords       *Coordinates        `json:"pickup_coords,omitempty"`
	DropoffCoords      *Coordinates        `json:"dropoff_coords,omitempty"`
	Stops              types.Stops         `json:"stops"`
	VehicleType        enums.VehicleType   `json:"vehicle_type"`
	PackageSize        enums.PackageSize   `json:"package_size"`
	ScheduledFor       *time.Time          `json:"scheduled_for,omitempty"`
	IsBoosted          bool                `json:"is_boosted"`
	IsTemplate         bool                `json:"is_template"`
	TemplateID         *uuid.UUID          `json:"template_id,omitempty"`
	Status             enums.MissionStatus `json:"status"`
	AcceptedOfferID    *uuid.UUID          `json:"accepted_offer_id,omitempty"`
	RunnerID           *uuid.UUID          `json:"runner_id,omitempty"`
	AgreedPrice        *decimal.Decimal    `json:"agreed_price,omitempty"`
	PickupOTP          string              `json:"pickup_otp,omitempty"`
	DeliveryOTP        string              `json:"delivery_otp,omitempty"`
	PickupPhotoURL     *string             `json:"pickup_photo_url,omitempty"`
	DeliveryPhotoURL   *string             `json:"delivery_photo_url,omitempty"`
	AdditionalCosts    []CostView          `json:"additional_costs"`
	AdditionalTotal    decimal.Decimal     `json:"additional_total"`
	AcceptedAt         *time.Time          `json:"accepted_at,omitempty"`
	PickedUpAt         *time.Time          `json:"picked_up_at,omitempty"`
	DeliveredAt        *time.Time          `json:"delivered_at,omitempty"`
	DisputedAt         *time.Time          `json:"disputed_at,omitempty"`
	DisputeReason      *string             `json:"dispute_reason,omitempty"`
	ReceiptConfirmedAt *time.Time          `json:"receipt_confirmed_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// MissionList wraps a page of missions plus the next page cursor.
type MissionList struct {
	Missions   []MissionView `json:"missions"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

func toView(m *models.Mission) MissionView {
	view := MissionView{
		ID:                 m.ID,
		RequesterID:        m.RequesterID,
		Title:              m.Title,
		Description:        m.Description,
		Category:           m.Category,
		Scenario:           m.Scenario,
		BudgetMin:          m.BudgetMin,
		BudgetMax:          m.BudgetMax,
		PickupLocation:     m.PickupLocation,
		DropoffLocation:    m.DropoffLocation,
		PickupCoords:       coords(m.PickupLat, m.PickupLng),
		DropoffCoords:      coords(m.DropoffLat, m.DropoffLng),
		Stops:              m.Stops,
		VehicleType:        m.VehicleType,
		PackageSize:        m.PackageSize,
		ScheduledFor:       m.ScheduledFor,
		IsBoosted:          m.IsBoosted,
		IsTemplate:         m.IsTemplate,
		TemplateID:         m.TemplateID,
		Status:             m.Status,
		AcceptedOfferID:    m.AcceptedOfferID,
		RunnerID:           m.RunnerID,
		PickupPhotoURL:     m.PickupPhotoURL,
		DeliveryPhotoURL:   m.DeliveryPhotoURL,
		AdditionalCosts:    make([]CostView, 0, len(m.AdditionalCosts)),
		AdditionalTotal:    m.AdditionalTotal(),
		AcceptedAt:         m.AcceptedAt,
		PickedUpAt:         m.PickedUpAt,
		DeliveredAt:        m.DeliveredAt,
		DisputedAt:         m.DisputedAt,
		DisputeReason:      m.DisputeReason,
		ReceiptConfirmedAt: m.ReceiptConfirmedAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
	if view.Stops == nil {
		view.Stops = types.Stops{}
	}
	if m.AgreedPrice.Valid {
		price := m.AgreedPrice.Decimal
		view.AgreedPrice = &price
	}
	for _, cost := range m.AdditionalCosts {
		view.AdditionalCosts = append(view.AdditionalCosts, CostView{
			ID:          cost.ID,
			Amount:      cost.Amount,
			Description: cost.Description,
			AddedBy:     cost.AddedBy,
			CreatedAt:   cost.CreatedAt,
		})
	}
	return view
}

func coords(lat, lng *float64) *Coordinates {
	if lat == nil || lng == nil {
		return nil
	}
	return &Coordinates{Lat: *lat, Lng: *lng}
}

func toViews(rows []models.Mission) []MissionView {
	views := make([]MissionView, 0, len(rows))
	for i := range rows {
		views = append(views, toView(&rows[i]))
	}
	return views
}

func missionCursor(m models.Mission) pagination.Cursor {
	return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}
