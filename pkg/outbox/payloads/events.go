package payloads

import (
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MissionCreatedEvent is emitted when a requester posts a mission.
type MissionCreatedEvent struct {
	MissionID   uuid.UUID       `json:"mission_id" validate:"required"`
	RequesterID uuid.UUID       `json:"requester_id"`
	Title       string          `json:"title"`
	Category    string          `json:"category"`
	Scenario    enums.Scenario  `json:"scenario"`
	BudgetMin   decimal.Decimal `json:"budget_min"`
	BudgetMax   decimal.Decimal `json:"budget_max"`
	IsBoosted   bool            `json:"is_boosted"`
	TemplateID  *uuid.UUID      `json:"template_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MissionBoostedEvent is emitted when a requester boosts an open mission.
type MissionBoostedEvent struct {
	MissionID   uuid.UUID `json:"mission_id" validate:"required"`
	RequesterID uuid.UUID `json:"requester_id"`
	BoostedAt   time.Time `json:"boosted_at"`
}

// OfferSubmittedEvent is emitted when a runner bids on a mission.
type OfferSubmittedEvent struct {
	OfferID     uuid.UUID       `json:"offer_id" validate:"required"`
	MissionID   uuid.UUID       `json:"mission_id" validate:"required"`
	RequesterID uuid.UUID       `json:"requester_id"`
	RunnerID    uuid.UUID       `json:"runner_id"`
	Price       decimal.Decimal `json:"price"`
}

// OfferCounteredEvent is emitted when the requester proposes a different price.
type OfferCounteredEvent struct {
	OfferID      uuid.UUID       `json:"offer_id" validate:"required"`
	MissionID    uuid.UUID       `json:"mission_id" validate:"required"`
	RequesterID  uuid.UUID       `json:"requester_id"`
	RunnerID     uuid.UUID       `json:"runner_id"`
	Price        decimal.Decimal `json:"price"`
	CounterPrice decimal.Decimal `json:"counter_price"`
}

// Offer rejection reasons.
const (
	RejectReasonRequester      = "requester_rejected"
	RejectReasonRunnerDecline  = "runner_declined"
	RejectReasonRunnerWithdraw = "runner_withdrew"
	RejectReasonMissionClosed  = "mission_closed"
)

// OfferRejectedEvent is emitted for every offer that leaves negotiation
// without being accepted, except siblings closed by an acceptance.
type OfferRejectedEvent struct {
	OfferID     uuid.UUID  `json:"offer_id" validate:"required"`
	MissionID   uuid.UUID  `json:"mission_id" validate:"required"`
	RequesterID uuid.UUID  `json:"requester_id"`
	RunnerID    uuid.UUID  `json:"runner_id"`
	RejectedBy  *uuid.UUID `json:"rejected_by,omitempty"`
	Reason      string     `json:"reason"`
}

// RejectedOfferRef identifies a sibling offer closed by an acceptance.
type RejectedOfferRef struct {
	OfferID  uuid.UUID `json:"offer_id" validate:"required"`
	RunnerID uuid.UUID `json:"runner_id"`
}

// OfferAcceptedEvent is emitted once per mission when an offer wins.
type OfferAcceptedEvent struct {
	OfferID        uuid.UUID          `json:"offer_id" validate:"required"`
	MissionID      uuid.UUID          `json:"mission_id" validate:"required"`
	RequesterID    uuid.UUID          `json:"requester_id"`
	RunnerID       uuid.UUID          `json:"runner_id"`
	AgreedPrice    decimal.Decimal    `json:"agreed_price"`
	ViaCounter     bool               `json:"via_counter"`
	RejectedOffers []RejectedOfferRef `json:"rejected_offers"`
	AcceptedAt     time.Time          `json:"accepted_at"`
}

// MissionProgressEvent covers the OTP-verified pickup and delivery steps.
type MissionProgressEvent struct {
	MissionID   uuid.UUID           `json:"mission_id" validate:"required"`
	RequesterID uuid.UUID           `json:"requester_id"`
	RunnerID    uuid.UUID           `json:"runner_id"`
	Status      enums.MissionStatus `json:"status"`
	PhotoURL    *string             `json:"photo_url,omitempty"`
	At          time.Time           `json:"at"`
}

// MissionDisputedEvent is emitted when either participant raises a dispute.
type MissionDisputedEvent struct {
	MissionID    uuid.UUID           `json:"mission_id" validate:"required"`
	RequesterID  uuid.UUID           `json:"requester_id"`
	RunnerID     uuid.UUID           `json:"runner_id"`
	DisputedBy   uuid.UUID           `json:"disputed_by"`
	Reason       string              `json:"reason"`
	StatusBefore enums.MissionStatus `json:"status_before"`
	DisputedAt   time.Time           `json:"disputed_at"`
}

// MissionCostAddedEvent is emitted when the runner appends an additional cost.
type MissionCostAddedEvent struct {
	MissionID   uuid.UUID       `json:"mission_id" validate:"required"`
	CostID      uuid.UUID       `json:"cost_id"`
	RequesterID uuid.UUID       `json:"requester_id"`
	RunnerID    uuid.UUID       `json:"runner_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// MissionReceiptConfirmedEvent is emitted when the requester releases escrow.
type MissionReceiptConfirmedEvent struct {
	MissionID      uuid.UUID       `json:"mission_id" validate:"required"`
	RequesterID    uuid.UUID       `json:"requester_id"`
	RunnerID       uuid.UUID       `json:"runner_id"`
	ReleasedAmount decimal.Decimal `json:"released_amount"`
	ConfirmedAt    time.Time       `json:"confirmed_at"`
}
