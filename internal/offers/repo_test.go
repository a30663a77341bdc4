package offers

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/maiyom-backend/internal/missions"
	"github.com/angelmondragon/maiyom-backend/pkg/db"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/migrate"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/angelmondragon/maiyom-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOffersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migrate.ApplySQLiteSchema(context.Background(), gdb))
	return gdb
}

func seedOpenMission(t *testing.T, gdb *gorm.DB, status enums.MissionStatus) *models.Mission {
	t.Helper()
	mission := &models.Mission{
		RequesterID:     uuid.New(),
		Title:           "Collect parcel",
		Category:        "parcel",
		Scenario:        enums.ScenarioUrgent,
		BudgetMin:       decimal.NewFromInt(100),
		BudgetMax:       decimal.NewFromInt(300),
		PickupLocation:  "A",
		DropoffLocation: "B",
		Stops:           types.Stops{},
		VehicleType:     enums.VehicleAny,
		PackageSize:     enums.PackageSmall,
		Status:          status,
	}
	require.NoError(t, missions.NewRepository(gdb).Create(context.Background(), mission))
	return mission
}

func newOffer(missionID, runnerID uuid.UUID, at time.Time) *models.Offer {
	return &models.Offer{
		MissionID: missionID,
		RunnerID:  runnerID,
		Price:     decimal.NewFromInt(200),
		Status:    enums.OfferStatusPending,
		CreatedAt: at,
	}
}

func TestRepositoryOneLiveOfferPerRunner(t *testing.T) {
	gdb := setupOffersTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	mission := seedOpenMission(t, gdb, enums.MissionStatusOpen)
	runner := uuid.New()
	first := newOffer(mission.ID, runner, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, newOffer(mission.ID, runner, time.Now().UTC()))
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, liveOfferConstraint))

	ok, err := repo.UpdateIf(ctx, first.ID, enums.LiveOfferStatuses, map[string]any{"status": enums.OfferStatusRejected})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.Create(ctx, newOffer(mission.ID, runner, time.Now().UTC())))
}

func TestRepositoryRejectSiblingsAndCountLive(t *testing.T) {
	gdb := setupOffersTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	mission := seedOpenMission(t, gdb, enums.MissionStatusOffered)
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	keep := newOffer(mission.ID, uuid.New(), base)
	require.NoError(t, repo.Create(ctx, keep))
	for i := 1; i <= 2; i++ {
		require.NoError(t, repo.Create(ctx, newOffer(mission.ID, uuid.New(), base.Add(time.Duration(i)*time.Minute))))
	}

	live, err := repo.CountLive(ctx, mission.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), live)

	rejected, err := repo.RejectSiblings(ctx, mission.ID, keep.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, rejected, 2)

	live, err = repo.CountLive(ctx, mission.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), live)

	ok, err := repo.UpdateIf(ctx, keep.ID, []enums.OfferStatus{enums.OfferStatusPending}, map[string]any{"status": enums.OfferStatusAccepted})
	require.NoError(t, err)
	require.True(t, ok)

	other := newOffer(mission.ID, uuid.New(), base.Add(2*time.Hour))
	require.NoError(t, repo.Create(ctx, other))
	_, err = repo.UpdateIf(ctx, other.ID, []enums.OfferStatus{enums.OfferStatusPending}, map[string]any{"status": enums.OfferStatusAccepted})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, acceptedOfferConstraint))
}

func TestRepositoryListStale(t *testing.T) {
	gdb := setupOffersTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	closedMission := seedOpenMission(t, gdb, enums.MissionStatusAccepted)
	openMission := seedOpenMission(t, gdb, enums.MissionStatusOffered)
	stale := newOffer(closedMission.ID, uuid.New(), time.Now().UTC())
	require.NoError(t, repo.Create(ctx, stale))
	require.NoError(t, repo.Create(ctx, newOffer(openMission.ID, uuid.New(), time.Now().UTC())))

	rows, err := repo.ListStale(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)
}

func TestRepositoryListByMissionPaginates(t *testing.T) {
	gdb := setupOffersTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	mission := seedOpenMission(t, gdb, enums.MissionStatusOffered)
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	runner := uuid.New()
	for i := 0; i < 3; i++ {
		o := newOffer(mission.ID, uuid.New(), base.Add(time.Duration(i)*time.Minute))
		if i == 0 {
			o.RunnerID = runner
		}
		require.NoError(t, repo.Create(ctx, o))
	}

	rows, err := repo.ListByMission(ctx, mission.ID, nil, pagination.Params{Limit: 2})
	require.NoError(t, err)
	page, next := pagination.Trim(rows, 2, offerCursor)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)

	rows, err = repo.ListByMission(ctx, mission.ID, nil, pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	own, err := repo.ListByMission(ctx, mission.ID, &runner, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, runner, own[0].RunnerID)
}
