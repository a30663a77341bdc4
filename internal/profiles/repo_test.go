package profiles

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/migrate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupProfilesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migrate.ApplySQLiteSchema(context.Background(), db))
	return db
}

func TestRepositoryUpsertKeepsKYC(t *testing.T) {
	db := setupProfilesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, repo.Upsert(ctx, &models.Profile{ID: id, FullName: "Asha", DefaultRole: enums.RoleRequester, KYCStatus: enums.KYCStatusNone}))
	ok, err := repo.UpdateKYC(ctx, id, "0123", "ABCDE1234F", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.Upsert(ctx, &models.Profile{ID: id, FullName: "Asha Rao", DefaultRole: enums.RoleRunner, KYCStatus: enums.KYCStatusNone}))

	stored, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", stored.FullName)
	assert.Equal(t, enums.RoleRunner, stored.DefaultRole)
	assert.Equal(t, enums.KYCStatusSubmitted, stored.KYCStatus)
	require.NotNil(t, stored.AadhaarLast4)
	assert.Equal(t, "0123", *stored.AadhaarLast4)
}

func TestRepositoryUpdateKYCMissingProfile(t *testing.T) {
	db := setupProfilesTestDB(t)
	repo := NewRepository(db)

	ok, err := repo.UpdateKYC(context.Background(), uuid.New(), "0123", "ABCDE1234F", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)
}
