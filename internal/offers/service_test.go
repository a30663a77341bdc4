package offers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/maiyom-backend/internal/ledger"
	"github.com/angelmondragon/maiyom-backend/internal/missions"
	"github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/angelmondragon/maiyom-backend/pkg/security"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc      Service
	offers   *stubOfferRepo
	missions *stubMissionRepo
	outbox   *stubOutbox
	ledger   *stubLedger
	mission  *models.Mission
	owner    auth.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	owner := auth.Actor{UserID: uuid.New(), Role: enums.RoleRequester}
	mission := &models.Mission{
		ID:          uuid.New(),
		RequesterID: owner.UserID,
		Title:       "Collect parcel",
		Status:      enums.MissionStatusOpen,
	}
	f := &fixture{
		offers:   &stubOfferRepo{rows: map[uuid.UUID]*models.Offer{}},
		missions: &stubMissionRepo{rows: map[uuid.UUID]*models.Mission{mission.ID: mission}},
		outbox:   &stubOutbox{},
		ledger:   &stubLedger{},
		mission:  mission,
		owner:    owner,
	}
	svc, err := NewService(ServiceParams{
		Repo:       f.offers,
		Missions:   f.missions,
		Tx:         stubTxRunner{},
		Outbox:     f.outbox,
		Ledger:     f.ledger,
		Now:        func() time.Time { return fixedNow },
		NewOTPPair: func() (string, string, error) { return "4821", "7310", nil },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) submit(t *testing.T, runner auth.Actor, price int64) *OfferView {
	t.Helper()
	view, err := f.svc.SubmitOffer(context.Background(), runner, SubmitOfferInput{MissionID: f.mission.ID, Price: decimal.NewFromInt(price)})
	if err != nil {
		t.Fatalf("submit offer: %v", err)
	}
	return view
}

func TestSubmitOfferMovesMissionToOffered(t *testing.T) {
	f := newFixture(t)
	view := f.submit(t, newRunner(), 250)

	if view.Status != enums.OfferStatusPending {
		t.Fatalf("expected pending offer, got %s", view.Status)
	}
	if f.mission.Status != enums.MissionStatusOffered {
		t.Fatalf("expected mission offered, got %s", f.mission.Status)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventOfferSubmitted {
		t.Fatalf("expected offer_submitted event")
	}

	f.submit(t, newRunner(), 260)
	if f.mission.Status != enums.MissionStatusOffered {
		t.Fatalf("second bid keeps mission offered")
	}
}

func TestSubmitOfferGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitOffer(ctx, newRunner(), SubmitOfferInput{MissionID: f.mission.ID, Price: decimal.Zero})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.SubmitOffer(ctx, auth.Actor{UserID: f.owner.UserID, Role: enums.RoleRunner}, SubmitOfferInput{MissionID: f.mission.ID, Price: decimal.NewFromInt(10)})
	assertCode(t, err, pkgerrors.CodeForbidden)

	f.offers.createErr = errors.New("UNIQUE constraint failed: index 'ux_offers_live_per_runner'")
	_, err = f.svc.SubmitOffer(ctx, newRunner(), SubmitOfferInput{MissionID: f.mission.ID, Price: decimal.NewFromInt(10)})
	assertCode(t, err, pkgerrors.CodeConflict)
	f.offers.createErr = nil

	f.mission.Status = enums.MissionStatusAccepted
	_, err = f.svc.SubmitOffer(ctx, newRunner(), SubmitOfferInput{MissionID: f.mission.ID, Price: decimal.NewFromInt(10)})
	assertCode(t, err, pkgerrors.CodeStateConflict)

	f.mission.Status = enums.MissionStatusOpen
	f.mission.IsTemplate = true
	_, err = f.svc.SubmitOffer(ctx, newRunner(), SubmitOfferInput{MissionID: f.mission.ID, Price: decimal.NewFromInt(10)})
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestCounterOfferSetsCounterPrice(t *testing.T) {
	f := newFixture(t)
	offer := f.submit(t, newRunner(), 300)

	view, err := f.svc.CounterOffer(context.Background(), f.owner, CounterOfferInput{OfferID: offer.ID, CounterPrice: decimal.NewFromInt(240)})
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if view.Status != enums.OfferStatusCountered || view.CounterPrice == nil || !view.CounterPrice.Equal(decimal.NewFromInt(240)) {
		t.Fatalf("unexpected countered offer %+v", view)
	}

	// same counter again is a no-op
	if _, err := f.svc.CounterOffer(context.Background(), f.owner, CounterOfferInput{OfferID: offer.ID, CounterPrice: decimal.NewFromInt(240)}); err != nil {
		t.Fatalf("repeat counter: %v", err)
	}
	_, err = f.svc.CounterOffer(context.Background(), f.owner, CounterOfferInput{OfferID: offer.ID, CounterPrice: decimal.NewFromInt(200)})
	assertCode(t, err, pkgerrors.CodeStateConflict)

	_, err = f.svc.CounterOffer(context.Background(), newRunner(), CounterOfferInput{OfferID: offer.ID, CounterPrice: decimal.NewFromInt(200)})
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestRejectLastOfferReopensMission(t *testing.T) {
	f := newFixture(t)
	runner := newRunner()
	offer := f.submit(t, runner, 300)

	view, err := f.svc.RejectOffer(context.Background(), runner, offer.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if view.Status != enums.OfferStatusRejected {
		t.Fatalf("expected rejected, got %s", view.Status)
	}
	if f.mission.Status != enums.MissionStatusOpen {
		t.Fatalf("expected mission reopened, got %s", f.mission.Status)
	}
	data := f.outbox.events[len(f.outbox.events)-1].Data.(payloads.OfferRejectedEvent)
	if data.Reason != payloads.RejectReasonRunnerWithdraw {
		t.Fatalf("expected withdraw reason, got %s", data.Reason)
	}

	// rejecting twice is a no-op
	if _, err := f.svc.RejectOffer(context.Background(), runner, offer.ID); err != nil {
		t.Fatalf("repeat reject: %v", err)
	}
}

func TestRejectKeepsMissionOfferedWhileBidsRemain(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t, newRunner(), 300)
	f.submit(t, newRunner(), 280)

	if _, err := f.svc.RejectOffer(context.Background(), f.owner, first.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if f.mission.Status != enums.MissionStatusOffered {
		t.Fatalf("expected mission to stay offered, got %s", f.mission.Status)
	}
	data := f.outbox.events[len(f.outbox.events)-1].Data.(payloads.OfferRejectedEvent)
	if data.Reason != payloads.RejectReasonRequester || data.RejectedBy == nil || *data.RejectedBy != f.owner.UserID {
		t.Fatalf("unexpected reject payload %+v", data)
	}

	_, err := f.svc.RejectOffer(context.Background(), newRunner(), first.ID)
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestRunnerDeclinesCounter(t *testing.T) {
	f := newFixture(t)
	runner := newRunner()
	offer := f.submit(t, runner, 300)
	if _, err := f.svc.CounterOffer(context.Background(), f.owner, CounterOfferInput{OfferID: offer.ID, CounterPrice: decimal.NewFromInt(200)}); err != nil {
		t.Fatalf("counter: %v", err)
	}
	if _, err := f.svc.RejectOffer(context.Background(), runner, offer.ID); err != nil {
		t.Fatalf("decline: %v", err)
	}
	data := f.outbox.events[len(f.outbox.events)-1].Data.(payloads.OfferRejectedEvent)
	if data.Reason != payloads.RejectReasonRunnerDecline {
		t.Fatalf("expected decline reason, got %s", data.Reason)
	}
}

func TestAcceptOfferClosesNegotiation(t *testing.T) {
	f := newFixture(t)
	winner := newRunner()
	loser := newRunner()
	chosen := f.submit(t, winner, 300)
	other := f.submit(t, loser, 280)

	view, err := f.svc.AcceptOffer(context.Background(), f.owner, chosen.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if view.Status != enums.OfferStatusAccepted {
		t.Fatalf("expected accepted, got %s", view.Status)
	}
	if f.offers.rows[other.ID].Status != enums.OfferStatusRejected {
		t.Fatalf("expected sibling rejected")
	}
	if f.mission.Status != enums.MissionStatusAccepted || f.mission.RunnerID == nil || *f.mission.RunnerID != winner.UserID {
		t.Fatalf("expected mission accepted by winner, got %+v", f.mission)
	}
	if f.mission.PickupOTP != "4821" || f.mission.DeliveryOTP != "7310" {
		t.Fatalf("expected minted OTPs on mission")
	}
	if len(f.ledger.recorded) != 1 || f.ledger.recorded[0].Type != enums.TransactionEscrowHold || !f.ledger.recorded[0].Amount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected escrow hold of 300, got %+v", f.ledger.recorded)
	}
	if len(f.outbox.idempotent) != 1 {
		t.Fatalf("expected offer_accepted event")
	}
	accepted := f.outbox.idempotent[0].Data.(payloads.OfferAcceptedEvent)
	if len(accepted.RejectedOffers) != 1 || accepted.RejectedOffers[0].RunnerID != loser.UserID {
		t.Fatalf("expected sibling listed in event, got %+v", accepted.RejectedOffers)
	}

	// replay is a no-op
	if _, err := f.svc.AcceptOffer(context.Background(), f.owner, chosen.ID); err != nil {
		t.Fatalf("replay accept: %v", err)
	}
	if len(f.ledger.recorded) != 1 {
		t.Fatalf("replay must not hold escrow again")
	}

	_, err = f.svc.AcceptOffer(context.Background(), f.owner, other.ID)
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestAcceptCounterUsesCounterPrice(t *testing.T) {
	f := newFixture(t)
	runner := newRunner()
	offer := f.submit(t, runner, 300)
	if _, err := f.svc.CounterOffer(context.Background(), f.owner, CounterOfferInput{OfferID: offer.ID, CounterPrice: decimal.NewFromInt(220)}); err != nil {
		t.Fatalf("counter: %v", err)
	}

	_, err := f.svc.AcceptOffer(context.Background(), f.owner, offer.ID)
	assertCode(t, err, pkgerrors.CodeStateConflict)

	view, err := f.svc.AcceptCounter(context.Background(), runner, offer.ID)
	if err != nil {
		t.Fatalf("accept counter: %v", err)
	}
	if !view.Price.Equal(decimal.NewFromInt(220)) {
		t.Fatalf("expected price to take the counter, got %s", view.Price)
	}
	if !f.mission.AgreedPrice.Decimal.Equal(decimal.NewFromInt(220)) {
		t.Fatalf("expected agreed price 220")
	}
}

func TestAcceptSealsCodesWhenKeyConfigured(t *testing.T) {
	f := newFixture(t)
	sealer, err := security.NewSealer(make([]byte, 32))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	f.svc.(*service).sealer = sealer
	offer := f.submit(t, newRunner(), 300)

	if _, err := f.svc.AcceptOffer(context.Background(), f.owner, offer.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if f.mission.PickupOTP == "4821" {
		t.Fatalf("expected sealed pickup code at rest")
	}
	ok, err := security.VerifyOTP(sealer, f.mission.PickupOTP, "4821")
	if err != nil || !ok {
		t.Fatalf("expected sealed code to verify, ok=%v err=%v", ok, err)
	}
}

func TestListMissionOffersScopesRunners(t *testing.T) {
	f := newFixture(t)
	runner := newRunner()
	f.submit(t, runner, 300)
	f.submit(t, newRunner(), 280)

	all, err := f.svc.ListMissionOffers(context.Background(), f.owner, f.mission.ID, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all.Offers) != 2 {
		t.Fatalf("requester sees every offer, got %d", len(all.Offers))
	}

	own, err := f.svc.ListMissionOffers(context.Background(), runner, f.mission.ID, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("list own: %v", err)
	}
	if len(own.Offers) != 1 || own.Offers[0].RunnerID != runner.UserID {
		t.Fatalf("runner sees only own offers, got %+v", own.Offers)
	}
}

func TestRejectStaleOffers(t *testing.T) {
	f := newFixture(t)
	offer := f.submit(t, newRunner(), 300)
	f.offers.stale = []models.Offer{*f.offers.rows[offer.ID]}

	closed, err := f.svc.RejectStaleOffers(context.Background(), 10)
	if err != nil {
		t.Fatalf("reject stale: %v", err)
	}
	if closed != 1 || f.offers.rows[offer.ID].Status != enums.OfferStatusRejected {
		t.Fatalf("expected stale offer rejected, closed=%d", closed)
	}
	data := f.outbox.events[len(f.outbox.events)-1].Data.(payloads.OfferRejectedEvent)
	if data.Reason != payloads.RejectReasonMissionClosed || data.RejectedBy != nil {
		t.Fatalf("unexpected stale payload %+v", data)
	}
}

func TestRejectStaleOffersCountsOnlyCommitted(t *testing.T) {
	f := newFixture(t)
	offer := f.submit(t, newRunner(), 300)
	f.offers.stale = []models.Offer{*f.offers.rows[offer.ID]}
	f.outbox.err = errors.New("outbox insert failed")

	closed, err := f.svc.RejectStaleOffers(context.Background(), 10)
	assertCode(t, err, pkgerrors.CodeDependency)
	if closed != 0 {
		t.Fatalf("expected rolled back offer not counted, closed=%d", closed)
	}
}

func newRunner() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.RoleRunner}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOutbox struct {
	events     []outbox.DomainEvent
	idempotent []outbox.DomainEvent
	err        error
}

func (s *stubOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutbox) EmitIfNotExists(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	s.idempotent = append(s.idempotent, event)
	return nil
}

type stubLedger struct {
	recorded []ledger.RecordInput
}

func (s *stubLedger) Record(_ context.Context, _ *gorm.DB, input ledger.RecordInput) (*models.Transaction, error) {
	s.recorded = append(s.recorded, input)
	return &models.Transaction{ID: uuid.New()}, nil
}

type stubOfferRepo struct {
	rows      map[uuid.UUID]*models.Offer
	order     []uuid.UUID
	stale     []models.Offer
	createErr error
}

func (r *stubOfferRepo) WithTx(*gorm.DB) Repository { return r }

func (r *stubOfferRepo) Create(_ context.Context, offer *models.Offer) error {
	if r.createErr != nil {
		return r.createErr
	}
	copied := *offer
	r.rows[offer.ID] = &copied
	r.order = append(r.order, offer.ID)
	return nil
}

func (r *stubOfferRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Offer, error) {
	offer, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *offer
	return &copied, nil
}

func (r *stubOfferRepo) ListByMission(_ context.Context, missionID uuid.UUID, runnerID *uuid.UUID, _ pagination.Params) ([]models.Offer, error) {
	var out []models.Offer
	for _, id := range r.order {
		o := r.rows[id]
		if o.MissionID != missionID || (runnerID != nil && o.RunnerID != *runnerID) {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (r *stubOfferRepo) ListByRunner(context.Context, uuid.UUID, *enums.OfferStatus, pagination.Params) ([]models.Offer, error) {
	return nil, nil
}

func (r *stubOfferRepo) UpdateIf(_ context.Context, id uuid.UUID, from []enums.OfferStatus, fields map[string]any) (bool, error) {
	offer, ok := r.rows[id]
	if !ok || !statusIn(offer.Status, from) {
		return false, nil
	}
	for key, value := range fields {
		switch key {
		case "status":
			offer.Status = value.(enums.OfferStatus)
		case "counter_price":
			offer.CounterPrice = decimal.NewNullDecimal(value.(decimal.Decimal))
		case "price":
			offer.Price = value.(decimal.Decimal)
		}
	}
	return true, nil
}

func (r *stubOfferRepo) CountLive(_ context.Context, missionID uuid.UUID) (int64, error) {
	var n int64
	for _, o := range r.rows {
		if o.MissionID == missionID && o.Status.IsLive() {
			n++
		}
	}
	return n, nil
}

func (r *stubOfferRepo) RejectSiblings(_ context.Context, missionID, keepID uuid.UUID, at time.Time) ([]models.Offer, error) {
	var out []models.Offer
	for _, id := range r.order {
		o := r.rows[id]
		if o.MissionID != missionID || o.ID == keepID || !o.Status.IsLive() {
			continue
		}
		o.Status = enums.OfferStatusRejected
		o.ResolvedAt = &at
		out = append(out, *o)
	}
	return out, nil
}

func (r *stubOfferRepo) ListStale(context.Context, int) ([]models.Offer, error) {
	return r.stale, nil
}

func statusIn(status enums.OfferStatus, set []enums.OfferStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// stubMissionRepo implements the mission calls offers make; the embedded
// interface panics on anything else.
type stubMissionRepo struct {
	missions.Repository
	rows map[uuid.UUID]*models.Mission
}

func (r *stubMissionRepo) WithTx(*gorm.DB) missions.Repository { return r }

func (r *stubMissionRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Mission, error) {
	mission, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *mission
	return &copied, nil
}

func (r *stubMissionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.MissionStatus, to enums.MissionStatus, fields map[string]any) (bool, error) {
	mission, ok := r.rows[id]
	if !ok || !missionStatusIn(mission.Status, from) {
		return false, nil
	}
	mission.Status = to
	for key, value := range fields {
		switch key {
		case "runner_id":
			v := value.(uuid.UUID)
			mission.RunnerID = &v
		case "accepted_offer_id":
			v := value.(uuid.UUID)
			mission.AcceptedOfferID = &v
		case "agreed_price":
			mission.AgreedPrice = decimal.NewNullDecimal(value.(decimal.Decimal))
		case "pickup_otp":
			mission.PickupOTP = value.(string)
		case "delivery_otp":
			mission.DeliveryOTP = value.(string)
		}
	}
	return true, nil
}

func (r *stubMissionRepo) UpdateIf(_ context.Context, id uuid.UUID, from []enums.MissionStatus, _ map[string]any, _ ...missions.Condition) (bool, error) {
	mission, ok := r.rows[id]
	return ok && missionStatusIn(mission.Status, from), nil
}

func missionStatusIn(status enums.MissionStatus, set []enums.MissionStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
