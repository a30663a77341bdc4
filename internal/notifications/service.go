package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/angelmondragon/maiyom-backend/pkg/realtime"
	"github.com/google/uuid"
)

// Service defines notification list/read operations.
type Service interface {
	List(ctx context.Context, actor auth.Actor, params ListParams) (*ListResult, error)
	UnreadCount(ctx context.Context, actor auth.Actor) (int64, error)
	MarkRead(ctx context.Context, actor auth.Actor, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, actor auth.Actor) (int64, error)
	Subscribe(ctx context.Context, actor auth.Actor) (*realtime.Subscription, error)
}

type service struct {
	repo   Repository
	broker realtime.Broker
	now    func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// NotificationView is the API and realtime shape of a notification.
type NotificationView struct {
	ID        uuid.UUID              `json:"id"`
	MissionID *uuid.UUID             `json:"mission_id,omitempty"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Link      *string                `json:"link,omitempty"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []NotificationView `json:"items"`
	Cursor string             `json:"cursor"`
}

// Topic returns the realtime topic a user's notifications are published on.
func Topic(userID uuid.UUID) string {
	return realtime.RowInserted("notifications", "user_id", userID.String())
}

// NewService wires notifications dependencies.
func NewService(repo Repository, broker realtime.Broker) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if broker == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "realtime broker required")
	}
	return &service{repo: repo, broker: broker, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, params ListParams) (*ListResult, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	rows, err := s.repo.List(ctx, actor.UserID, params.UnreadOnly, pagination.Params{Limit: params.Limit, Cursor: params.Cursor})
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	page, cursor := pagination.Trim(rows, params.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})

	items := make([]NotificationView, 0, len(page))
	for i := range page {
		items = append(items, toView(&page[i]))
	}
	return &ListResult{
		Items:  items,
		Cursor: cursor,
	}, nil
}

func (s *service) UnreadCount(ctx context.Context, actor auth.Actor) (int64, error) {
	if !actor.Valid() {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	count, err := s.repo.UnreadCount(ctx, actor.UserID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}
	return count, nil
}

func (s *service) MarkRead(ctx context.Context, actor auth.Actor, notificationID uuid.UUID) error {
	if !actor.Valid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	found, err := s.repo.MarkRead(ctx, actor.UserID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, actor auth.Actor) (int64, error) {
	if !actor.Valid() {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	count, err := s.repo.MarkAllRead(ctx, actor.UserID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) Subscribe(ctx context.Context, actor auth.Actor) (*realtime.Subscription, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	sub, err := s.broker.Subscribe(ctx, Topic(actor.UserID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe to notifications")
	}
	return sub, nil
}

func toView(n *models.Notification) NotificationView {
	return NotificationView{
		ID:        n.ID,
		MissionID: n.MissionID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}
