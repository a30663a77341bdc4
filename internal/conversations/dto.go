package conversations

import (
	"time"

	"github.com/angelmondragon/maiyom-backend/internal/profiles"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/google/uuid"
)

const (
	maxBodyLength = 2000
	previewLength = 80
)

// Synthetic conversation ids for the channels every user sees.
const (
	SupportConversationID = "support"
	GroupConversationID   = "group"
)

// SendMessageInput is one outgoing chat line.
type SendMessageInput struct {
	Channel   enums.MessageChannel
	MissionID *uuid.UUID
	Body      string
	PhotoURL  *string
}

// MessageView is the API and realtime shape of a message.
type MessageView struct {
	ID        uuid.UUID            `json:"id"`
	Channel   enums.MessageChannel `json:"channel"`
	MissionID *uuid.UUID           `json:"mission_id,omitempty"`
	SenderID  uuid.UUID            `json:"sender_id"`
	Body      string               `json:"body"`
	PhotoURL  *string              `json:"photo_url,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// MessageList wraps a page of messages.
type MessageList struct {
	Messages   []MessageView `json:"messages"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// Conversation is one entry of the user's inbox.
type Conversation struct {
	ID            string                  `json:"id"`
	Channel       enums.MessageChannel    `json:"channel"`
	MissionID     *uuid.UUID              `json:"mission_id,omitempty"`
	Title         string                  `json:"title"`
	MissionStatus *enums.MissionStatus    `json:"mission_status,omitempty"`
	Counterpart   *profiles.PublicProfile `json:"counterpart,omitempty"`
	LastMessage   *string                 `json:"last_message,omitempty"`
	LastMessageAt *time.Time              `json:"last_message_at,omitempty"`
}

func toMessageView(m *models.Message) MessageView {
	return MessageView{
		ID:        m.ID,
		Channel:   m.Channel,
		MissionID: m.MissionID,
		SenderID:  m.SenderID,
		Body:      m.Body,
		PhotoURL:  m.PhotoURL,
		CreatedAt: m.CreatedAt,
	}
}

func messageCursor(m models.Message) pagination.Cursor {
	return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLength {
		return body
	}
	return string(runes[:previewLength]) + "…"
}
