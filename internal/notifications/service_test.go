package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/angelmondragon/maiyom-backend/pkg/realtime"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeRepository struct {
	listFn        func(userID uuid.UUID, unreadOnly bool, page pagination.Params) ([]models.Notification, error)
	unreadFn      func(ctx context.Context, userID uuid.UUID) (int64, error)
	markReadFn    func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (bool, error)
	markAllReadFn func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Insert(ctx context.Context, notification *models.Notification) (bool, error) {
	return true, nil
}

func (f *fakeRepository) List(_ context.Context, userID uuid.UUID, unreadOnly bool, page pagination.Params) ([]models.Notification, error) {
	if _, err := pagination.Newest(page); err != nil {
		return nil, err
	}
	if f.listFn != nil {
		return f.listFn(userID, unreadOnly, page)
	}
	return nil, nil
}

func (f *fakeRepository) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if f.unreadFn != nil {
		return f.unreadFn(ctx, userID)
	}
	return 0, nil
}

func (f *fakeRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (bool, error) {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, userID, notificationID, now)
	}
	return false, nil
}

func (f *fakeRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	if f.markAllReadFn != nil {
		return f.markAllReadFn(ctx, userID, now)
	}
	return 0, nil
}

func (f *fakeRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return 0, nil
}

func newServiceWithRepo(t *testing.T, repo Repository) Service {
	t.Helper()
	broker := realtime.NewMemoryBroker()
	t.Cleanup(func() { _ = broker.Close() })
	svc, err := NewService(repo, broker)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func testActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.RoleRunner}
}

func TestService_ListNotifications(t *testing.T) {
	actor := testActor()
	base := time.Now().UTC()
	newest := models.Notification{ID: uuid.New(), UserID: actor.UserID, Title: "Offer accepted", CreatedAt: base}
	older := models.Notification{ID: uuid.New(), UserID: actor.UserID, Title: "Mission posted", CreatedAt: base.Add(-time.Minute)}

	repo := &fakeRepository{
		listFn: func(userID uuid.UUID, unreadOnly bool, page pagination.Params) ([]models.Notification, error) {
			if userID != actor.UserID {
				t.Fatalf("expected list scoped to actor, got %s", userID)
			}
			if page.Limit != 1 || !unreadOnly {
				t.Fatalf("unexpected params %+v unread=%v", page, unreadOnly)
			}
			return []models.Notification{newest, older}, nil
		},
	}

	svc := newServiceWithRepo(t, repo)
	result, err := svc.List(context.Background(), actor, ListParams{Limit: 1, UnreadOnly: true})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Title != "Offer accepted" {
		t.Fatalf("unexpected items %+v", result.Items)
	}
	decoded, err := pagination.ParseCursor(result.Cursor)
	if err != nil {
		t.Fatalf("invalid cursor %q: %v", result.Cursor, err)
	}
	if decoded.ID != newest.ID {
		t.Fatalf("expected cursor id %s got %s", newest.ID, decoded.ID)
	}
}

func TestService_ListNotificationsInvalidCursor(t *testing.T) {
	svc := newServiceWithRepo(t, &fakeRepository{})
	_, err := svc.List(context.Background(), testActor(), ListParams{Cursor: "bad"})
	if err == nil {
		t.Fatal("expected error for invalid cursor")
	}
	errCode := pkgerrors.As(err).Code()
	if errCode != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %s", errCode)
	}
}

func TestService_RequiresActor(t *testing.T) {
	svc := newServiceWithRepo(t, &fakeRepository{})
	if _, err := svc.UnreadCount(context.Background(), auth.Actor{}); err == nil || pkgerrors.As(err).Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestService_UnreadCount(t *testing.T) {
	repo := &fakeRepository{
		unreadFn: func(ctx context.Context, userID uuid.UUID) (int64, error) {
			return 7, nil
		},
	}
	svc := newServiceWithRepo(t, repo)
	count, err := svc.UnreadCount(context.Background(), testActor())
	if err != nil {
		t.Fatalf("unexpected unread count error: %v", err)
	}
	if count != 7 {
		t.Fatalf("expected 7 unread, got %d", count)
	}
}

func TestService_MarkRead(t *testing.T) {
	actor := testActor()
	repo := &fakeRepository{
		markReadFn: func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (bool, error) {
			if userID != actor.UserID {
				t.Fatalf("expected actor scope")
			}
			return true, nil
		},
	}
	svc := newServiceWithRepo(t, repo)
	if err := svc.MarkRead(context.Background(), actor, uuid.New()); err != nil {
		t.Fatalf("unexpected mark read error: %v", err)
	}
}

func TestService_MarkReadNotFound(t *testing.T) {
	repo := &fakeRepository{
		markReadFn: func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (bool, error) {
			return false, nil
		},
	}
	svc := newServiceWithRepo(t, repo)
	if err := svc.MarkRead(context.Background(), testActor(), uuid.New()); err == nil {
		t.Fatal("expected not found error")
	} else if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestService_MarkAllRead(t *testing.T) {
	repo := &fakeRepository{
		markAllReadFn: func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
			return 3, nil
		},
	}
	svc := newServiceWithRepo(t, repo)
	count, err := svc.MarkAllRead(context.Background(), testActor())
	if err != nil {
		t.Fatalf("unexpected mark all read error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 updated rows, got %d", count)
	}
}

func TestService_MarkAllReadError(t *testing.T) {
	repo := &fakeRepository{
		markAllReadFn: func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
			return 0, errors.New("boom")
		},
	}
	svc := newServiceWithRepo(t, repo)
	if _, err := svc.MarkAllRead(context.Background(), testActor()); err == nil {
		t.Fatal("expected error")
	} else if pkgerrors.As(err).Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
