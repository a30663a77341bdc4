package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/maiyom-backend/pkg/enums"
)

// Message is a chat line in a mission, support or community channel.
type Message struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Channel   enums.MessageChannel `gorm:"column:channel;type:message_channel;not null"`
	MissionID *uuid.UUID           `gorm:"column:mission_id;type:uuid"`
	SenderID  uuid.UUID            `gorm:"column:sender_id;type:uuid;not null"`
	Body      string               `gorm:"column:body;not null"`
	PhotoURL  *string              `gorm:"column:photo_url"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
}
