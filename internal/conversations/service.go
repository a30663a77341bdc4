package conversations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/maiyom-backend/internal/profiles"
	"github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/angelmondragon/maiyom-backend/pkg/realtime"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type missionLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Mission, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Mission, error)
}

type profileLookup interface {
	Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]profiles.PublicProfile, error)
}

// Service exposes the inbox projection, chat history and live message streams.
type Service interface {
	ListConversations(ctx context.Context, actor auth.Actor) ([]Conversation, error)
	SendMessage(ctx context.Context, actor auth.Actor, input SendMessageInput) (*MessageView, error)
	ListMessages(ctx context.Context, actor auth.Actor, channel enums.MessageChannel, missionID *uuid.UUID, params pagination.Params) (*MessageList, error)
	Subscribe(ctx context.Context, actor auth.Actor, channel enums.MessageChannel, missionID *uuid.UUID) (*realtime.Subscription, error)
	PostSupportTx(ctx context.Context, tx *gorm.DB, msg *models.Message) error
	Broadcast(ctx context.Context, msg *models.Message)
}

type service struct {
	repo     Repository
	missions missionLookup
	profiles profileLookup
	broker   realtime.Broker
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the conversations service.
func NewService(repo Repository, missions missionLookup, profiles profileLookup, broker realtime.Broker, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("messages repository required")
	}
	if missions == nil {
		return nil, fmt.Errorf("missions lookup required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("profiles lookup required")
	}
	if broker == nil {
		return nil, fmt.Errorf("realtime broker required")
	}
	return &service{
		repo:     repo,
		missions: missions,
		profiles: profiles,
		broker:   broker,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// Topic returns the realtime topic a thread's inserts are published on.
// Support threads are private to their sender.
func Topic(thread Thread) string {
	switch thread.Channel {
	case enums.MessageChannelMission:
		if thread.MissionID != nil {
			return realtime.RowInserted("messages", "mission_id", thread.MissionID.String())
		}
	case enums.MessageChannelSupport:
		sender := uuid.Nil
		if thread.SenderID != nil {
			sender = *thread.SenderID
		}
		return realtime.RowInserted("messages", "sender_id", sender.String())
	}
	return realtime.RowInserted("messages", "channel", string(thread.Channel))
}

// threadFor scopes a thread to what actor may read.
func threadFor(actor auth.Actor, channel enums.MessageChannel, missionID *uuid.UUID) Thread {
	thread := Thread{Channel: channel, MissionID: missionID}
	if channel == enums.MessageChannelSupport {
		sender := actor.UserID
		thread.SenderID = &sender
	}
	return thread
}

func (s *service) ListConversations(ctx context.Context, actor auth.Actor) ([]Conversation, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	ids, err := s.repo.ConversationMissionIDs(ctx, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load conversation missions")
	}
	missionRows, err := s.missions.ListByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load missions")
	}
	latest, err := s.repo.LatestByMission(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load last messages")
	}

	counterpartIDs := make([]uuid.UUID, 0, len(missionRows))
	for i := range missionRows {
		if other := counterpartOf(&missionRows[i], actor.UserID); other != uuid.Nil {
			counterpartIDs = append(counterpartIDs, other)
		}
	}
	people, err := s.profiles.Lookup(ctx, counterpartIDs)
	if err != nil {
		return nil, err
	}

	missionConvos := make([]Conversation, 0, len(missionRows))
	for i := range missionRows {
		m := &missionRows[i]
		missionID := m.ID
		status := m.Status
		convo := Conversation{
			ID:            missionID.String(),
			Channel:       enums.MessageChannelMission,
			MissionID:     &missionID,
			Title:         m.Title,
			MissionStatus: &status,
		}
		if p, ok := people[counterpartOf(m, actor.UserID)]; ok {
			profile := p
			convo.Counterpart = &profile
		}
		if msg, ok := latest[m.ID]; ok {
			text := preview(msg.Body)
			at := msg.CreatedAt
			convo.LastMessage = &text
			convo.LastMessageAt = &at
		} else {
			at := m.UpdatedAt
			convo.LastMessageAt = &at
		}
		missionConvos = append(missionConvos, convo)
	}
	sort.SliceStable(missionConvos, func(i, j int) bool {
		return missionConvos[i].LastMessageAt.After(*missionConvos[j].LastMessageAt)
	})

	sender := actor.UserID
	support := Conversation{ID: SupportConversationID, Channel: enums.MessageChannelSupport, Title: "Maiyom Support"}
	group := Conversation{ID: GroupConversationID, Channel: enums.MessageChannelGroup, Title: "Community"}
	if err := s.fillLatest(ctx, &support, Thread{Channel: enums.MessageChannelSupport, SenderID: &sender}); err != nil {
		return nil, err
	}
	if err := s.fillLatest(ctx, &group, Thread{Channel: enums.MessageChannelGroup}); err != nil {
		return nil, err
	}

	out := make([]Conversation, 0, len(missionConvos)+2)
	out = append(out, support, group)
	return append(out, missionConvos...), nil
}

func (s *service) fillLatest(ctx context.Context, convo *Conversation, thread Thread) error {
	msg, err := s.repo.Latest(ctx, thread)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load last message")
	}
	if msg != nil {
		text := preview(msg.Body)
		at := msg.CreatedAt
		convo.LastMessage = &text
		convo.LastMessageAt = &at
	}
	return nil
}

func (s *service) SendMessage(ctx context.Context, actor auth.Actor, input SendMessageInput) (*MessageView, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	body := strings.TrimSpace(input.Body)
	photo := trimmedPtr(input.PhotoURL)
	if body == "" && photo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message body or photo is required")
	}
	if len(body) > maxBodyLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("message must be at most %d characters", maxBodyLength))
	}
	if err := s.authorizeThread(ctx, actor, input.Channel, input.MissionID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:        uuid.New(),
		Channel:   input.Channel,
		SenderID:  actor.UserID,
		Body:      body,
		PhotoURL:  photo,
		CreatedAt: s.now().UTC(),
	}
	if input.Channel == enums.MessageChannelMission {
		missionID := *input.MissionID
		msg.MissionID = &missionID
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save message")
	}
	s.Broadcast(ctx, msg)

	view := toMessageView(msg)
	return &view, nil
}

func (s *service) ListMessages(ctx context.Context, actor auth.Actor, channel enums.MessageChannel, missionID *uuid.UUID, params pagination.Params) (*MessageList, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := s.authorizeThread(ctx, actor, channel, missionID); err != nil {
		return nil, err
	}
	rows, err := s.repo.List(ctx, threadFor(actor, channel, missionID), params)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list messages")
	}
	page, next := pagination.Trim(rows, params.Limit, messageCursor)
	views := make([]MessageView, 0, len(page))
	for i := range page {
		views = append(views, toMessageView(&page[i]))
	}
	return &MessageList{Messages: views, NextCursor: next}, nil
}

func (s *service) Subscribe(ctx context.Context, actor auth.Actor, channel enums.MessageChannel, missionID *uuid.UUID) (*realtime.Subscription, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := s.authorizeThread(ctx, actor, channel, missionID); err != nil {
		return nil, err
	}
	sub, err := s.broker.Subscribe(ctx, Topic(threadFor(actor, channel, missionID)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe to messages")
	}
	return sub, nil
}

// PostSupportTx inserts a support message inside the caller's transaction.
// Callers broadcast it after commit.
func (s *service) PostSupportTx(ctx context.Context, tx *gorm.DB, msg *models.Message) error {
	if msg == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "message required")
	}
	msg.Channel = enums.MessageChannelSupport
	msg.MissionID = nil
	if err := s.repo.WithTx(tx).Create(ctx, msg); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save support message")
	}
	return nil
}

// Broadcast publishes a stored message to live subscribers. Failures are
// logged; the row is already durable.
func (s *service) Broadcast(ctx context.Context, msg *models.Message) {
	if msg == nil {
		return
	}
	thread := Thread{Channel: msg.Channel, MissionID: msg.MissionID, SenderID: &msg.SenderID}
	if err := s.broker.Publish(ctx, Topic(thread), toMessageView(msg)); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "realtime message publish failed")
	}
}

func (s *service) authorizeThread(ctx context.Context, actor auth.Actor, channel enums.MessageChannel, missionID *uuid.UUID) error {
	if !channel.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid channel %q", channel))
	}
	if channel != enums.MessageChannelMission {
		if missionID != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "mission id is only allowed on mission chats")
		}
		return nil
	}
	if missionID == nil || *missionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "mission id is required for mission chats")
	}
	mission, err := s.missions.FindByID(ctx, *missionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "mission not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load mission")
	}
	if mission.RunnerID == nil || !mission.IsParticipant(actor.UserID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "mission chat is limited to the requester and the accepted runner")
	}
	return nil
}

func counterpartOf(m *models.Mission, userID uuid.UUID) uuid.UUID {
	if m.RequesterID == userID {
		if m.RunnerID != nil {
			return *m.RunnerID
		}
		return uuid.Nil
	}
	return m.RequesterID
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
