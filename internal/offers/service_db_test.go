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
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type gormTx struct {
	db *gorm.DB
}

func (g gormTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type failingOutbox struct {
	*outbox.Service
}

func (failingOutbox) EmitIfNotExists(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

func newDBService(t *testing.T, gdb *gorm.DB, pub outboxPublisher) Service {
	t.Helper()
	led, err := ledger.NewService(ledger.NewRepository(gdb))
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:       NewRepository(gdb),
		Missions:   missions.NewRepository(gdb),
		Tx:         gormTx{db: gdb},
		Outbox:     pub,
		Ledger:     led,
		Now:        func() time.Time { return fixedNow },
		NewOTPPair: func() (string, string, error) { return "4821", "7310", nil },
	})
	require.NoError(t, err)
	return svc
}

func seedBids(t *testing.T, gdb *gorm.DB) (*models.Mission, *models.Offer, *models.Offer) {
	t.Helper()
	mission := seedOpenMission(t, gdb, enums.MissionStatusOffered)
	repo := NewRepository(gdb)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	winner := newOffer(mission.ID, uuid.New(), base)
	loser := newOffer(mission.ID, uuid.New(), base.Add(time.Minute))
	require.NoError(t, repo.Create(context.Background(), winner))
	require.NoError(t, repo.Create(context.Background(), loser))
	return mission, winner, loser
}

func TestAcceptOfferCommitsThroughRepositories(t *testing.T) {
	gdb := setupOffersTestDB(t)
	svc := newDBService(t, gdb, outbox.NewService(outbox.NewRepository(gdb), nil))
	ctx := context.Background()
	mission, winner, loser := seedBids(t, gdb)
	requester := auth.Actor{UserID: mission.RequesterID, Role: enums.RoleRequester}

	view, err := svc.AcceptOffer(ctx, requester, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusAccepted, view.Status)

	offers := NewRepository(gdb)
	gotLoser, err := offers.FindByID(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusRejected, gotLoser.Status)

	gotMission, err := missions.NewRepository(gdb).FindByID(ctx, mission.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MissionStatusAccepted, gotMission.Status)
	require.NotNil(t, gotMission.RunnerID)
	assert.Equal(t, winner.RunnerID, *gotMission.RunnerID)
	assert.Equal(t, "4821", gotMission.PickupOTP)

	var holds int64
	require.NoError(t, gdb.Model(&models.Transaction{}).
		Where("mission_id = ? AND type = ?", mission.ID, enums.TransactionEscrowHold).
		Count(&holds).Error)
	assert.EqualValues(t, 1, holds)

	var events int64
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventOfferAccepted, mission.ID).
		Count(&events).Error)
	assert.EqualValues(t, 1, events)

	late := auth.Actor{UserID: uuid.New(), Role: enums.RoleRunner}
	_, err = svc.SubmitOffer(ctx, late, SubmitOfferInput{MissionID: mission.ID, Price: winner.Price})
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestAcceptOfferRollsBackWhenEventFails(t *testing.T) {
	gdb := setupOffersTestDB(t)
	svc := newDBService(t, gdb, failingOutbox{outbox.NewService(outbox.NewRepository(gdb), nil)})
	ctx := context.Background()
	mission, winner, loser := seedBids(t, gdb)
	requester := auth.Actor{UserID: mission.RequesterID, Role: enums.RoleRequester}

	_, err := svc.AcceptOffer(ctx, requester, winner.ID)
	require.Error(t, err)

	offers := NewRepository(gdb)
	for _, id := range []uuid.UUID{winner.ID, loser.ID} {
		got, err := offers.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, enums.OfferStatusPending, got.Status, "offer %s", id)
	}

	gotMission, err := missions.NewRepository(gdb).FindByID(ctx, mission.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MissionStatusOffered, gotMission.Status)
	assert.Nil(t, gotMission.RunnerID)
	assert.Empty(t, gotMission.PickupOTP)

	var holds int64
	require.NoError(t, gdb.Model(&models.Transaction{}).Where("mission_id = ?", mission.ID).Count(&holds).Error)
	assert.Zero(t, holds)
}

func TestSubmitOfferDuplicateIsConflictOnSQLite(t *testing.T) {
	gdb := setupOffersTestDB(t)
	svc := newDBService(t, gdb, outbox.NewService(outbox.NewRepository(gdb), nil))
	ctx := context.Background()
	mission := seedOpenMission(t, gdb, enums.MissionStatusOpen)
	runner := auth.Actor{UserID: uuid.New(), Role: enums.RoleRunner}

	input := SubmitOfferInput{MissionID: mission.ID, Price: decimal.NewFromInt(180)}
	_, err := svc.SubmitOffer(ctx, runner, input)
	require.NoError(t, err)

	_, err = svc.SubmitOffer(ctx, runner, input)
	assertCode(t, err, pkgerrors.CodeConflict)
}
