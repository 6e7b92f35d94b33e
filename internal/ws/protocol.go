package ws

import (
	"time"

	"github.com/google/uuid"

	"github.com/metal-pod/backend/internal/achievement"
	"github.com/metal-pod/backend/internal/event"
)

type MessageType string

const (
	MsgSnapshot            MessageType = "snapshot"
	MsgAchievementUnlocked MessageType = "achievement_unlocked"
	MsgCurrencyChanged     MessageType = "currency_changed"
	MsgError               MessageType = "error"
)

type WSMessage struct {
	ID      string      `json:"id"`
	Type    MessageType `json:"type"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

func newMessage(t MessageType, at time.Time, payload interface{}) WSMessage {
	if at.IsZero() {
		at = time.Now()
	}
	return WSMessage{ID: uuid.NewString(), Type: t, At: at.UTC(), Payload: payload}
}

type SnapshotPayload struct {
	Achievements []achievement.Status `json:"achievements"`
	Currency     int                  `json:"currency"`
}

type AchievementUnlockedPayload struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Reward int    `json:"reward,omitempty"`
}

type CurrencyChangedPayload struct {
	Total int `json:"total"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// messageFor maps an outbound notification to its wire message.
func messageFor(ev event.Event) (WSMessage, bool) {
	switch ev.Type {
	case event.AchievementUnlocked:
		return newMessage(MsgAchievementUnlocked, ev.At, AchievementUnlockedPayload{
			ID:     ev.AchievementID,
			Title:  ev.Title,
			Reward: ev.Reward,
		}), true
	case event.CurrencyChanged:
		return newMessage(MsgCurrencyChanged, ev.At, CurrencyChangedPayload{Total: ev.Total}), true
	default:
		return WSMessage{}, false
	}
}
