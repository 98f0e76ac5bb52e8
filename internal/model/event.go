package model

import (
	"encoding/json"
	"time"
)

// RawEvent is one event from the upstream activity feed, newest first.
// The payload schema varies per event type, so it is kept opaque and
// decoded only by the consumers that need specific fields.
type RawEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     *Subject        `json:"actor,omitempty"`
	Repo      *Subject        `json:"repo,omitempty"`
	Org       *Subject        `json:"org,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
}

// Subject identifies an actor, repository, or organization attached to an event.
type Subject struct {
	ID    int64  `json:"id,omitempty"`
	Login string `json:"login,omitempty"`
	Name  string `json:"name,omitempty"`
	URL   string `json:"url,omitempty"`
}

// FlaggedEvent pairs a raw event with the risk category assigned by the
// flagging engine. An event carries exactly one category per poll cycle.
type FlaggedEvent struct {
	Event    RawEvent
	Category string
}
