package enums

import "fmt"

// MessageChannel separates mission chats from the support and community threads.
type MessageChannel string

const (
	MessageChannelMission MessageChannel = "mission"
	MessageChannelSupport MessageChannel = "support"
	MessageChannelGroup   MessageChannel = "group"
)

var validMessageChannels = []MessageChannel{
	MessageChannelMission,
	MessageChannelSupport,
	MessageChannelGroup,
}

func (m MessageChannel) IsValid() bool {
	for _, candidate := range validMessageChannels {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMessageChannel converts raw input into a MessageChannel.
func ParseMessageChannel(value string) (MessageChannel, error) {
	for _, candidate := range validMessageChannels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid message channel %q", value)
}
