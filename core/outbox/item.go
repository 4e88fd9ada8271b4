package outbox

import (
	"time"

	"github.com/openviking/membridge/core/events"
)

// Item is a persisted Outbox Item (spec §3).
type Item struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Attempts      int            `json:"attempts"`
	NextAttemptAt time.Time      `json:"next_attempt_at"`
	SessionKey    string         `json:"session_key"`
	SessionID     string         `json:"session_id"`
	Events        []events.Event `json:"events"`
}

func (it *Item) ready(now time.Time) bool {
	return !it.NextAttemptAt.After(now)
}
