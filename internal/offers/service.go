package offers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/maiyom-backend/internal/ledger"
	"github.com/angelmondragon/maiyom-backend/internal/missions"
	"github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/db"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/metrics"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/angelmondragon/maiyom-backend/pkg/security"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ledgerRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, input ledger.RecordInput) (*models.Transaction, error)
}

// Service exposes offer negotiation.
type Service interface {
	SubmitOffer(ctx context.Context, actor auth.Actor, input SubmitOfferInput) (*OfferView, error)
	CounterOffer(ctx context.Context, actor auth.Actor, input CounterOfferInput) (*OfferView, error)
	RejectOffer(ctx context.Context, actor auth.Actor, offerID uuid.UUID) (*OfferView, error)
	AcceptOffer(ctx context.Context, actor auth.Actor, offerID uuid.UUID) (*OfferView, error)
	AcceptCounter(ctx context.Context, actor auth.Actor, offerID uuid.UUID) (*OfferView, error)
	ListMissionOffers(ctx context.Context, actor auth.Actor, missionID uuid.UUID, params pagination.Params) (*OfferList, error)
	ListRunnerOffers(ctx context.Context, actor auth.Actor, status *enums.OfferStatus, params pagination.Params) (*OfferList, error)
	// RejectStaleOffers closes live offers left on missions that moved past
	// negotiation and returns how many it closed.
	RejectStaleOffers(ctx context.Context, limit int) (int, error)
}

// ServiceParams wires the offer service.
type ServiceParams struct {
	Repo     Repository
	Missions missions.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Ledger   ledgerRecorder
	Sealer   *security.Sealer
	Metrics  *metrics.MissionMetrics
	Logger   *logger.Logger
	Now      func() time.Time
	// NewOTPPair mints the pickup and delivery codes; defaults to
	// security.GenerateOTPPair.
	NewOTPPair func() (string, string, error)
}

type service struct {
	repo       Repository
	missions   missions.Repository
	tx         txRunner
	outbox     outboxPublisher
	ledger     ledgerRecorder
	sealer     *security.Sealer
	metrics    *metrics.MissionMetrics
	logg       *logger.Logger
	now        func() time.Time
	newOTPPair func() (string, string, error)
}

var errLostRace = errors.New("offer changed concurrently")

// NewService builds the offer service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("offers repository required")
	}
	if params.Missions == nil {
		return nil, fmt.Errorf("missions repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger recorder required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	mint := params.NewOTPPair
	if mint == nil {
		mint = security.GenerateOTPPair
	}
	return &service{
		repo:       params.Repo,
		missions:   params.Missions,
		tx:         params.Tx,
		outbox:     params.Outbox,
		ledger:     params.Ledger,
		sealer:     params.Sealer,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        now,
		newOTPPair: mint,
	}, nil
}

func (s *service) SubmitOffer(ctx context.Context, actor auth.Actor, input SubmitOfferInput) (*OfferView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if input.MissionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mission id is required")
	}
	price := input.Price.Round(2)
	if !price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}
	note := strings.TrimSpace(input.Note)
	if len(note) > maxNoteLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("note must be at most %d characters", maxNoteLength))
	}

	mission, err := s.loadMission(ctx, input.MissionID)
	if err != nil {
		return nil, err
	}
	if mission.IsTemplate {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "mission not found")
	}
	if mission.RequesterID == actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "requesters cannot bid on their own missions")
	}
	if !mission.Status.IsBiddable() {
		return nil, stateConflict("mission is no longer accepting offers", string(mission.Status))
	}

	offer := &models.Offer{
		ID:        uuid.New(),
		MissionID: mission.ID,
		RunnerID:  actor.UserID,
		Price:     price,
		PhotoURL:  trimmedPtr(input.PhotoURL),
		Status:    enums.OfferStatusPending,
		CreatedAt: s.now().UTC(),
	}
	if note != "" {
		offer.Note = &note
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		missionRepo := s.missions.WithTx(tx)
		// open -> offered on the first bid; later bids only need the mission to still be biddable
		moved, err := missionRepo.UpdateStatus(ctx, mission.ID, []enums.MissionStatus{enums.MissionStatusOpen}, enums.MissionStatusOffered, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark mission offered")
		}
		if !moved {
			ok, err := missionRepo.UpdateIf(ctx, mission.ID, []enums.MissionStatus{enums.MissionStatusOffered}, map[string]any{"updated_at": offer.CreatedAt})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock mission")
			}
			if !ok {
				return errLostRace
			}
		}
		if err := s.repo.WithTx(tx).Create(ctx, offer); err != nil {
			if db.IsUniqueViolation(err, liveOfferConstraint) {
				return pkgerrors.New(pkgerrors.CodeConflict, "you already have a live offer on this mission")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create offer")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOfferSubmitted,
			AggregateType: enums.AggregateOffer,
			AggregateID:   offer.ID,
			Actor:         actorRef(actor),
			Data: payloads.OfferSubmittedEvent{
				OfferID:     offer.ID,
				MissionID:   mission.ID,
				RequesterID: mission.RequesterID,
				RunnerID:    actor.UserID,
				Price:       price,
			},
		})
	})
	if errors.Is(err, errLostRace) {
		return nil, stateConflict("mission is no longer accepting offers", "")
	}
	if err != nil {
		return nil, err
	}
	if mission.Status == enums.MissionStatusOpen {
		s.metrics.ObserveTransition(string(enums.MissionStatusOpen), string(enums.MissionStatusOffered))
	}
	view := toView(offer)
	return &view, nil
}

func (s *service) CounterOffer(ctx context.Context, actor auth.Actor, input CounterOfferInput) (*OfferView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	counter := input.CounterPrice.Round(2)
	if !counter.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "counter price must be greater than zero")
	}
	offer, mission, err := s.loadOffer(ctx, input.OfferID)
	if err != nil {
		return nil, err
	}
	if mission.RequesterID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the requester can counter an offer")
	}
	if offer.Status == enums.OfferStatusCountered && decimalEqual(offer.CounterPrice, counter) {
		return viewOf(offer), nil
	}
	if offer.Status != enums.OfferStatusPending {
		return nil, stateConflict("only pending offers can be countered", string(offer.Status))
	}
	if !mission.Status.IsBiddable() {
		return nil, stateConflict("mission is no longer accepting offers", string(mission.Status))
	}

	at := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateIf(ctx, offer.ID, []enums.OfferStatus{enums.OfferStatusPending}, map[string]any{
			"status":        enums.OfferStatusCountered,
			"counter_price": counter,
			"countered_at":  at,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counter offer")
		}
		if !ok {
			return errLostRace
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOfferCountered,
			AggregateType: enums.AggregateOffer,
			AggregateID:   offer.ID,
			Actor:         actorRef(actor),
			Data: payloads.OfferCounteredEvent{
				OfferID:      offer.ID,
				MissionID:    mission.ID,
				RequesterID:  mission.RequesterID,
				RunnerID:     offer.RunnerID,
				Price:        offer.Price,
				CounterPrice: counter,
			},
		})
	})
	if errors.Is(err, errLostRace) {
		return nil, s.conflictFromCurrent(ctx, offer.ID, "only pending offers can be countered")
	}
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, offer.ID)
}

func (s *service) RejectOffer(ctx context.Context, actor auth.Actor, offerID uuid.UUID) (*OfferView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	offer, mission, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	var reason string
	var from []enums.OfferStatus
	switch {
	case mission.RequesterID == actor.UserID:
		reason = payloads.RejectReasonRequester
		from = enums.LiveOfferStatuses
	case offer.RunnerID == actor.UserID && offer.Status == enums.OfferStatusCountered:
		reason = payloads.RejectReasonRunnerDecline
		from = []enums.OfferStatus{enums.OfferStatusCountered}
	case offer.RunnerID == actor.UserID:
		reason = payloads.RejectReasonRunnerWithdraw
		from = []enums.OfferStatus{enums.OfferStatusPending}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "offer belongs to another runner")
	}
	if offer.Status == enums.OfferStatusRejected {
		return viewOf(offer), nil
	}
	if !offer.Status.IsLive() {
		return nil, stateConflict("accepted offers cannot be rejected", string(offer.Status))
	}

	at := s.now().UTC()
	reopened := false
	rejectedBy := actor.UserID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateIf(ctx, offer.ID, from, map[string]any{
			"status":      enums.OfferStatusRejected,
			"resolved_at": at,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject offer")
		}
		if !ok {
			return errLostRace
		}
		live, err := repo.CountLive(ctx, mission.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count live offers")
		}
		if live == 0 {
			reopened, err = s.missions.WithTx(tx).UpdateStatus(ctx, mission.ID, []enums.MissionStatus{enums.MissionStatusOffered}, enums.MissionStatusOpen, nil)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen mission")
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOfferRejected,
			AggregateType: enums.AggregateOffer,
			AggregateID:   offer.ID,
			Actor:         actorRef(actor),
			Data: payloads.OfferRejectedEvent{
				OfferID:     offer.ID,
				MissionID:   mission.ID,
				RequesterID: mission.RequesterID,
				RunnerID:    offer.RunnerID,
				RejectedBy:  &rejectedBy,
				Reason:      reason,
			},
		})
	})
	if errors.Is(err, errLostRace) {
		current, loadErr := s.findOffer(ctx, offer.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.Status == enums.OfferStatusRejected {
			return viewOf(current), nil
		}
		return nil, stateConflict("offer can no longer be rejected", string(current.Status))
	}
	if err != nil {
		return nil, err
	}
	if reopened {
		s.metrics.ObserveTransition(string(enums.MissionStatusOffered), string(enums.MissionStatusOpen))
	}
	return s.reload(ctx, offer.ID)
}

func (s *service) AcceptOffer(ctx context.Context, actor auth.Actor, offerID uuid.UUID) (*OfferView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	offer, mission, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if mission.RequesterID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the requester can accept an offer")
	}
	return s.accept(ctx, actor, offer, mission, enums.OfferStatusPending)
}

func (s *service) AcceptCounter(ctx context.Context, actor auth.Actor, offerID uuid.UUID) (*OfferView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	offer, mission, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.RunnerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the offering runner can accept a counter")
	}
	return s.accept(ctx, actor, offer, mission, enums.OfferStatusCountered)
}

// accept runs the whole acceptance in one transaction: the offer CAS, the
// sibling rejections, OTP minting, the mission CAS, the escrow hold and the
// event.
func (s *service) accept(ctx context.Context, actor auth.Actor, offer *models.Offer, mission *models.Mission, expected enums.OfferStatus) (*OfferView, error) {
	if offer.Status == enums.OfferStatusAccepted && mission.AcceptedOfferID != nil && *mission.AcceptedOfferID == offer.ID {
		return viewOf(offer), nil
	}
	if offer.Status != expected {
		return nil, stateConflict(fmt.Sprintf("only %s offers can be accepted here", expected), string(offer.Status))
	}
	if !mission.Status.IsBiddable() {
		return nil, stateConflict("mission already has an accepted offer", string(mission.Status))
	}

	price := offer.Price
	viaCounter := expected == enums.OfferStatusCountered
	if viaCounter {
		if !offer.CounterPrice.Valid {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "countered offer has no counter price")
		}
		price = offer.CounterPrice.Decimal
	}

	pickup, delivery, err := s.newOTPPair()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint verification codes")
	}
	sealedPickup, err := s.sealer.Seal(pickup)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal pickup code")
	}
	sealedDelivery, err := s.sealer.Seal(delivery)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal delivery code")
	}

	at := s.now().UTC()
	runnerID := offer.RunnerID
	offerID := offer.ID
	before := mission.Status
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateIf(ctx, offer.ID, []enums.OfferStatus{expected}, map[string]any{
			"status":      enums.OfferStatusAccepted,
			"price":       price,
			"resolved_at": at,
		})
		if err != nil {
			if db.IsUniqueViolation(err, acceptedOfferConstraint) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "mission already has an accepted offer")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept offer")
		}
		if !ok {
			return errLostRace
		}

		siblings, err := repo.RejectSiblings(ctx, mission.ID, offer.ID, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject sibling offers")
		}

		moved, err := s.missions.WithTx(tx).UpdateStatus(ctx, mission.ID, missions.AcceptableFrom, enums.MissionStatusAccepted, map[string]any{
			"accepted_offer_id": offerID,
			"runner_id":         runnerID,
			"agreed_price":      price,
			"pickup_otp":        sealedPickup,
			"delivery_otp":      sealedDelivery,
			"accepted_at":       at,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept mission")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "mission already has an accepted offer")
		}

		if _, err := s.ledger.Record(ctx, tx, ledger.RecordInput{
			MissionID:   mission.ID,
			PayerID:     mission.RequesterID,
			PayeeID:     runnerID,
			ActorUserID: actor.UserID,
			Type:        enums.TransactionEscrowHold,
			Amount:      price,
			Description: "offer accepted",
		}); err != nil {
			return err
		}

		refs := make([]payloads.RejectedOfferRef, 0, len(siblings))
		for _, sib := range siblings {
			refs = append(refs, payloads.RejectedOfferRef{OfferID: sib.ID, RunnerID: sib.RunnerID})
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOfferAccepted,
			AggregateType: enums.AggregateMission,
			AggregateID:   mission.ID,
			Actor:         actorRef(actor),
			Data: payloads.OfferAcceptedEvent{
				OfferID:        offerID,
				MissionID:      mission.ID,
				RequesterID:    mission.RequesterID,
				RunnerID:       runnerID,
				AgreedPrice:    price,
				ViaCounter:     viaCounter,
				RejectedOffers: refs,
				AcceptedAt:     at,
			},
		})
	})
	if errors.Is(err, errLostRace) {
		current, loadErr := s.findOffer(ctx, offer.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.Status == enums.OfferStatusAccepted {
			return viewOf(current), nil
		}
		return nil, stateConflict("offer can no longer be accepted", string(current.Status))
	}
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(before), string(enums.MissionStatusAccepted))
	return s.reload(ctx, offer.ID)
}

func (s *service) ListMissionOffers(ctx context.Context, actor auth.Actor, missionID uuid.UUID, params pagination.Params) (*OfferList, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	mission, err := s.loadMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	var runnerFilter *uuid.UUID
	if mission.RequesterID != actor.UserID {
		runner := actor.UserID
		runnerFilter = &runner
	}
	rows, err := s.repo.ListByMission(ctx, mission.ID, runnerFilter, params)
	if err != nil {
		return nil, listError(err, "list mission offers")
	}
	page, next := pagination.Trim(rows, params.Limit, offerCursor)
	return &OfferList{Offers: toViews(page), NextCursor: next}, nil
}

func (s *service) ListRunnerOffers(ctx context.Context, actor auth.Actor, status *enums.OfferStatus, params pagination.Params) (*OfferList, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid offer status %q", *status))
	}
	rows, err := s.repo.ListByRunner(ctx, actor.UserID, status, params)
	if err != nil {
		return nil, listError(err, "list runner offers")
	}
	page, next := pagination.Trim(rows, params.Limit, offerCursor)
	return &OfferList{Offers: toViews(page), NextCursor: next}, nil
}

func (s *service) RejectStaleOffers(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	stale, err := s.repo.ListStale(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale offers")
	}

	closed := 0
	for i := range stale {
		offer := stale[i]
		at := s.now().UTC()
		rejected := false
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.repo.WithTx(tx).UpdateIf(ctx, offer.ID, enums.LiveOfferStatuses, map[string]any{
				"status":      enums.OfferStatusRejected,
				"resolved_at": at,
			})
			if err != nil || !ok {
				return err
			}
			mission, err := s.missions.WithTx(tx).FindByID(ctx, offer.MissionID)
			if err != nil {
				return err
			}
			rejected = true
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOfferRejected,
				AggregateType: enums.AggregateOffer,
				AggregateID:   offer.ID,
				Data: payloads.OfferRejectedEvent{
					OfferID:     offer.ID,
					MissionID:   offer.MissionID,
					RequesterID: mission.RequesterID,
					RunnerID:    offer.RunnerID,
					Reason:      payloads.RejectReasonMissionClosed,
				},
			})
		})
		if err != nil {
			if s.logg != nil {
				s.logg.Error(s.logg.WithField(ctx, "offer_id", offer.ID.String()), "reject stale offer failed", err)
			}
			return closed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject stale offer")
		}
		if rejected {
			closed++
		}
	}
	return closed, nil
}

func (s *service) loadMission(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mission id is required")
	}
	mission, err := s.missions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "mission not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load mission")
	}
	return mission, nil
}

func (s *service) findOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id is required")
	}
	offer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
	}
	return offer, nil
}

func (s *service) loadOffer(ctx context.Context, id uuid.UUID) (*models.Offer, *models.Mission, error) {
	offer, err := s.findOffer(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	mission, err := s.loadMission(ctx, offer.MissionID)
	if err != nil {
		return nil, nil, err
	}
	return offer, mission, nil
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*OfferView, error) {
	offer, err := s.findOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	return viewOf(offer), nil
}

func (s *service) conflictFromCurrent(ctx context.Context, id uuid.UUID, msg string) error {
	current, err := s.findOffer(ctx, id)
	if err != nil {
		return err
	}
	return stateConflict(msg, string(current.Status))
}

func viewOf(offer *models.Offer) *OfferView {
	v := toView(offer)
	return &v
}

func requireActor(actor auth.Actor) error {
	if !actor.Valid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return nil
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

func stateConflict(msg, status string) error {
	err := pkgerrors.New(pkgerrors.CodeStateConflict, msg)
	if status == "" {
		return err
	}
	return err.WithDetails(map[string]any{"status": status})
}

func listError(err error, msg string) error {
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// decimalEqual reports whether two optional amounts are the same.
func decimalEqual(a decimal.NullDecimal, b decimal.Decimal) bool {
	return a.Valid && a.Decimal.Equal(b)
}
