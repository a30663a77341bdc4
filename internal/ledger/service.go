package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/db"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var escrowOnceConstraint = db.UniqueIndex{
	Name:    "ux_transactions_escrow_once",
	Table:   "transactions",
	Columns: []string{"mission_id", "type"},
}

// Service records and reads the append-only mission ledger.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.Transaction, error)
	ListForMission(ctx context.Context, missionID uuid.UUID) ([]models.Transaction, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionList, error)
	MissionTotals(ctx context.Context, missionID uuid.UUID) (*Totals, error)
}

type service struct {
	repo Repository
}

// RecordInput captures the immutable data a ledger row requires.
type RecordInput struct {
	MissionID   uuid.UUID
	PayerID     uuid.UUID
	PayeeID     uuid.UUID
	ActorUserID uuid.UUID
	Type        enums.TransactionType
	Amount      decimal.Decimal
	Description string
}

// TransactionList wraps a page of ledger rows plus the next page cursor.
type TransactionList struct {
	Transactions []models.Transaction `json:"transactions"`
	NextCursor   string               `json:"next_cursor,omitempty"`
}

// Totals summarises the money movement recorded against one mission.
type Totals struct {
	MissionID       uuid.UUID       `json:"mission_id"`
	Held            decimal.Decimal `json:"held"`
	AdditionalCosts decimal.Decimal `json:"additional_costs"`
	Released        decimal.Decimal `json:"released"`
	Outstanding     decimal.Decimal `json:"outstanding"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// Record appends one row. When tx is non-nil the insert joins the caller's
// transaction so the ledger commits together with the state change.
func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.Transaction, error) {
	if err := validateRecord(input); err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		ID:          uuid.New(),
		MissionID:   input.MissionID,
		PayerID:     input.PayerID,
		PayeeID:     input.PayeeID,
		ActorUserID: input.ActorUserID,
		Type:        input.Type,
		Amount:      input.Amount.Round(2),
		CreatedAt:   time.Now().UTC(),
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		txn.Description = &desc
	}

	if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
		if db.IsUniqueViolation(err, escrowOnceConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("%s already recorded for mission", input.Type))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record ledger transaction")
	}
	return txn, nil
}

func validateRecord(input RecordInput) error {
	if input.MissionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "mission id is required")
	}
	if input.PayerID == uuid.Nil || input.PayeeID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payer and payee are required")
	}
	if input.ActorUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor user id is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", input.Type))
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return nil
}

func (s *service) ListForMission(ctx context.Context, missionID uuid.UUID) ([]models.Transaction, error) {
	if missionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mission id is required")
	}
	txns, err := s.repo.ListByMission(ctx, missionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list mission transactions")
	}
	return txns, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListForUser(ctx, userID, params)
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list user transactions")
	}
	page, next := pagination.Trim(rows, params.Limit, func(t models.Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return &TransactionList{Transactions: page, NextCursor: next}, nil
}

func (s *service) MissionTotals(ctx context.Context, missionID uuid.UUID) (*Totals, error) {
	txns, err := s.ListForMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	return Summarize(missionID, txns), nil
}

// Summarize folds ledger rows into totals. Outstanding is what is still
// held for the runner: escrow plus extra costs minus releases.
func Summarize(missionID uuid.UUID, txns []models.Transaction) *Totals {
	totals := &Totals{
		MissionID:       missionID,
		Held:            decimal.Zero,
		AdditionalCosts: decimal.Zero,
		Released:        decimal.Zero,
	}
	for _, txn := range txns {
		switch txn.Type {
		case enums.TransactionEscrowHold:
			totals.Held = totals.Held.Add(txn.Amount)
		case enums.TransactionAdditionalCost:
			totals.AdditionalCosts = totals.AdditionalCosts.Add(txn.Amount)
		case enums.TransactionEscrowRelease:
			totals.Released = totals.Released.Add(txn.Amount)
		}
	}
	totals.Outstanding = totals.Held.Add(totals.AdditionalCosts).Sub(totals.Released)
	return totals
}
