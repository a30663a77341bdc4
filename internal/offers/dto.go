package offers

import (
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxNoteLength = 500

// SubmitOfferInput is a runner's bid.
type SubmitOfferInput struct {
	MissionID uuid.UUID
	Price     decimal.Decimal
	Note      string
	PhotoURL  *string
}

// CounterOfferInput is the requester's price proposal on a pending bid.
type CounterOfferInput struct {
	OfferID      uuid.UUID
	CounterPrice decimal.Decimal
}

// OfferView is the API shape of an offer.
type OfferView struct {
	ID           uuid.UUID         `json:"id"`
	MissionID    uuid.UUID         `json:"mission_id"`
	RunnerID     uuid.UUID         `json:"runner_id"`
	Price        decimal.Decimal   `json:"price"`
	CounterPrice *decimal.Decimal  `json:"counter_price,omitempty"`
	Note         *string           `json:"note,omitempty"`
	PhotoURL     *string           `json:"photo_url,omitempty"`
	Status       enums.OfferStatus `json:"status"`
	CounteredAt  *time.Time        `json:"countered_at,omitempty"`
	ResolvedAt   *time.Time        `json:"resolved_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// OfferList wraps a page of offers.
type OfferList struct {
	Offers     []OfferView `json:"offers"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func toView(o *models.Offer) OfferView {
	view := OfferView{
		ID:          o.ID,
		MissionID:   o.MissionID,
		RunnerID:    o.RunnerID,
		Price:       o.Price,
		Note:        o.Note,
		PhotoURL:    o.PhotoURL,
		Status:      o.Status,
		CounteredAt: o.CounteredAt,
		ResolvedAt:  o.ResolvedAt,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	if o.CounterPrice.Valid {
		counter := o.CounterPrice.Decimal
		view.CounterPrice = &counter
	}
	return view
}

func toViews(rows []models.Offer) []OfferView {
	views := make([]OfferView, 0, len(rows))
	for i := range rows {
		views = append(views, toView(&rows[i]))
	}
	return views
}

func offerCursor(o models.Offer) pagination.Cursor {
	return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
}
