package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`).Error)
	require.NoError(t, db.Exec(`
CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`).Error)
	return db
}

func TestServiceEmitWritesEnvelope(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)
	missionID := uuid.New()
	actor := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventMissionCreated,
			AggregateType: enums.AggregateMission,
			AggregateID:   missionID,
			Actor:         &ActorRef{UserID: actor, Role: "requester"},
			Data:          map[string]string{"title": "groceries"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, missionID, rows[0].AggregateID)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	assert.Equal(t, 1, env.Version)
	assert.NotEmpty(t, env.EventID)
	require.NotNil(t, env.Actor)
	assert.Equal(t, actor, env.Actor.UserID)
	assert.JSONEq(t, `{"title":"groceries"}`, string(env.Data))
}

func TestServiceEmitRequiresTx(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventMissionCreated})
	require.Error(t, err)
}

func TestServiceEmitRejectsMalformedEvents(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	cases := map[string]DomainEvent{
		"unknown type":      {EventType: "order_created", AggregateType: enums.AggregateMission, AggregateID: uuid.New()},
		"unknown aggregate": {EventType: enums.EventMissionCreated, AggregateType: "order", AggregateID: uuid.New()},
		"nil aggregate id":  {EventType: enums.EventMissionCreated, AggregateType: enums.AggregateMission},
		"unencodable data":  {EventType: enums.EventMissionCreated, AggregateType: enums.AggregateMission, AggregateID: uuid.New(), Data: func() {}},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			err := db.Transaction(func(tx *gorm.DB) error {
				return svc.Emit(context.Background(), tx, event)
			})
			assert.Error(t, err)
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestServiceEmitIfNotExistsSkipsDuplicates(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)
	missionID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventOfferAccepted,
		AggregateType: enums.AggregateMission,
		AggregateID:   missionID,
		Data:          map[string]string{},
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		}))
	}

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	older := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOfferSubmitted,
		AggregateType: enums.AggregateOffer,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		CreatedAt:     time.Now().Add(-time.Minute),
	}
	newer := older
	newer.ID = uuid.New()
	newer.CreatedAt = time.Now()
	exhausted := older
	exhausted.ID = uuid.New()
	exhausted.AttemptCount = 5

	for _, row := range []models.OutboxEvent{newer, older, exhausted} {
		require.NoError(t, repo.Insert(db, row))
	}

	rows, err := repo.ClaimBatchTx(db, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, older.ID, rows[0].ID)
	assert.Equal(t, newer.ID, rows[1].ID)

	require.NoError(t, repo.MarkFailedTx(db, older.ID, errors.New("unavailable")))
	require.NoError(t, repo.MarkPublishedTx(db, newer.ID))

	rows, err = repo.ClaimBatchTx(db, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "unavailable", *rows[0].LastError)

	require.NoError(t, repo.DeadLetterTx(db, rows[0], enums.OutboxDLQReasonMaxAttempts, errors.New("gave up"), 5))
	rows, err = repo.ClaimBatchTx(db, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, rows)

	var dead []models.OutboxDLQ
	require.NoError(t, db.Find(&dead).Error)
	require.Len(t, dead, 1)
	assert.Equal(t, older.ID, dead[0].EventID)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dead[0].ErrorReason)
	assert.Equal(t, 1, dead[0].AttemptCount)
	require.NotNil(t, dead[0].ErrorMessage)
	assert.Equal(t, "gave up", *dead[0].ErrorMessage)

	var quarantined int64
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM outbox_dlq WHERE event_id = ?", older.ID).Scan(&quarantined).Error)
	assert.EqualValues(t, 1, quarantined)
}

func TestRepositoryRequiresTx(t *testing.T) {
	repo := NewRepository(nil)
	assert.ErrorIs(t, repo.Insert(nil, models.OutboxEvent{}), errTxRequired)
	assert.ErrorIs(t, repo.MarkPublishedTx(nil, uuid.New()), errTxRequired)
	assert.ErrorIs(t, repo.DeadLetterTx(nil, models.OutboxEvent{}, enums.OutboxDLQReasonNonRetryable, nil, 1), errTxRequired)
}

func TestErrorTextKeepsRunesWhole(t *testing.T) {
	assert.Empty(t, errorText(nil))
	assert.Equal(t, "short", errorText(errors.New("short")))

	long := strings.Repeat("a", maxErrorBytes-1) + "é" + "tail"
	got := errorText(errors.New(long))
	assert.Len(t, got, maxErrorBytes-1)
	assert.True(t, utf8.ValidString(got))
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	old := time.Now().Add(-48 * time.Hour)
	published := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventMissionCreated,
		AggregateType: enums.AggregateMission,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		PublishedAt:   &old,
	}
	older := published
	older.ID = uuid.New()
	earlier := old.Add(-time.Hour)
	older.PublishedAt = &earlier
	pending := published
	pending.ID = uuid.New()
	pending.PublishedAt = nil

	require.NoError(t, repo.Insert(db, published))
	require.NoError(t, repo.Insert(db, older))
	require.NoError(t, repo.Insert(db, pending))

	cutoff := time.Now().Add(-24 * time.Hour)
	deleted, err := repo.DeletePublishedBefore(context.Background(), cutoff, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, db.Order("published_at DESC").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.Equal(t, published.ID, remaining[0].ID, "oldest published row goes first")

	deleted, err = repo.DeletePublishedBefore(context.Background(), cutoff, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, pending.ID, remaining[0].ID)
}
