package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -4: DefaultLimit, 1: 1, 10: 10, MaxLimit: MaxLimit, 500: MaxLimit}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeLimit(in), "limit %d", in)
	}
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorTokens(t *testing.T) {
	original := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 30, 0, 123, time.UTC), ID: uuid.New()}

	token := EncodeCursor(original)
	assert.NotContains(t, token, "=")
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")

	parsed, err := ParseCursor(token)
	require.NoError(t, err)
	assert.True(t, parsed.CreatedAt.Equal(original.CreatedAt))
	assert.Equal(t, original.ID, parsed.ID)

	blank, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, blank)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	b64 := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	for name, token := range map[string]string{
		"not base64":    "not-base64!",
		"no separator":  b64("2026-03-01T10:30:00Z"),
		"bad timestamp": b64("yesterday|" + uuid.NewString()),
		"bad id":        b64("2026-03-01T10:30:00Z|nope"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCursor(token)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

func TestTrim(t *testing.T) {
	type row struct {
		id uuid.UUID
		at time.Time
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{{uuid.New(), base}, {uuid.New(), base.Add(-time.Minute)}, {uuid.New(), base.Add(-2 * time.Minute)}}
	cursorOf := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := Trim(rows, 2, cursorOf)
	require.Len(t, page, 2)
	decoded, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, rows[1].id, decoded.ID)

	page, next = Trim(rows, 5, cursorOf)
	assert.Len(t, page, 3)
	assert.Empty(t, next)
}

type item struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
}

func TestNewestWalksAllPages(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:pagination_newest?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&item{}))

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Create(&item{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i) * time.Minute)}).Error)
	}
	// Same timestamp as the newest row; id breaks the tie.
	require.NoError(t, db.Create(&item{ID: uuid.New(), CreatedAt: base.Add(4 * time.Minute)}).Error)

	seen := map[uuid.UUID]bool{}
	params := Params{Limit: 2}
	for pages := 0; ; pages++ {
		require.Less(t, pages, 10)
		scope, err := Newest(params)
		require.NoError(t, err)

		var rows []item
		require.NoError(t, db.Scopes(scope).Find(&rows).Error)
		page, next := Trim(rows, params.Limit, func(it item) Cursor { return Cursor{CreatedAt: it.CreatedAt, ID: it.ID} })
		for _, it := range page {
			assert.False(t, seen[it.ID], "row %s returned twice", it.ID)
			seen[it.ID] = true
		}
		if next == "" {
			break
		}
		params.Cursor = next
	}
	assert.Len(t, seen, 6)

	_, err = Newest(Params{Cursor: "%%%"})
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
