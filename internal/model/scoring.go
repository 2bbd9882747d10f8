package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScoringEventType discriminates the payload of a scoring event.
type ScoringEventType string

const (
	// EventHoleScored records a hole outcome (HoleScoredPayload).
	EventHoleScored ScoringEventType = "holeScored"
	// EventHoleAmended records a correction to an earlier hole
	// (HoleScoredPayload with the replacement outcome).
	EventHoleAmended ScoringEventType = "holeAmended"
	// EventMatchStatusChanged records a match lifecycle transition
	// (MatchStatusPayload).
	EventMatchStatusChanged ScoringEventType = "matchStatusChanged"
)

// ValidScoringEventType reports whether t is a known event type.
func ValidScoringEventType(t ScoringEventType) bool {
	switch t {
	case EventHoleScored, EventHoleAmended, EventMatchStatusChanged:
		return true
	}
	return false
}

// ScoringEvent is an append-only fact describing a scoring action. Events
// are never updated after insertion; the store only flips Synced once the
// effects of the event have been confirmed at the remote.
//
// Seq is a local monotonic sequence number assigned by the store at
// append time. It gives a deterministic replay order that is independent
// of wall-clock skew between devices; Timestamp is display-only.
type ScoringEvent struct {
	ID      string `json:"id"`
	TripID  string `json:"tripId"`
	MatchID string `json:"matchId"`

	Seq  int64            `json:"seq"`
	Type ScoringEventType `json:"type"`

	// Payload holds the type-specific body, one of the *Payload structs.
	Payload json.RawMessage `json:"payload"`

	Timestamp time.Time `json:"timestamp"`
	Synced    bool      `json:"synced"`
}

// HoleScoredPayload is the body of EventHoleScored and EventHoleAmended.
type HoleScoredPayload struct {
	HoleNumber int        `json:"holeNumber"`
	Winner     HoleWinner `json:"winner"`
	RecordedBy string     `json:"recordedBy,omitempty"`
}

// MatchStatusPayload is the body of EventMatchStatusChanged.
type MatchStatusPayload struct {
	Old MatchStatus `json:"old"`
	New MatchStatus `json:"new"`
	// Result carries the final match summary when New is MatchFinal.
	Result string `json:"result,omitempty"`
}

// NewHoleScoredEvent builds a holeScored event for a match. Seq is zero
// until the store assigns it at append time.
func NewHoleScoredEvent(tripID, matchID string, p HoleScoredPayload) (*ScoringEvent, error) {
	return newEvent(tripID, matchID, EventHoleScored, p)
}

// NewHoleAmendedEvent builds a holeAmended event for a match.
func NewHoleAmendedEvent(tripID, matchID string, p HoleScoredPayload) (*ScoringEvent, error) {
	return newEvent(tripID, matchID, EventHoleAmended, p)
}

// NewMatchStatusEvent builds a matchStatusChanged event.
func NewMatchStatusEvent(tripID, matchID string, p MatchStatusPayload) (*ScoringEvent, error) {
	return newEvent(tripID, matchID, EventMatchStatusChanged, p)
}

func newEvent(tripID, matchID string, typ ScoringEventType, payload interface{}) (*ScoringEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return &ScoringEvent{
		ID:        NewID(),
		TripID:    tripID,
		MatchID:   matchID,
		Type:      typ,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Validate checks required event fields.
func (e *ScoringEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.TripID == "" {
		return fmt.Errorf("tripId is required")
	}
	if e.MatchID == "" {
		return fmt.Errorf("matchId is required")
	}
	if !ValidScoringEventType(e.Type) {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// HoleScored decodes the payload of a holeScored or holeAmended event.
func (e *ScoringEvent) HoleScored() (HoleScoredPayload, error) {
	var p HoleScoredPayload
	if e.Type != EventHoleScored && e.Type != EventHoleAmended {
		return p, fmt.Errorf("event %s is %s, not a hole event", e.ID, e.Type)
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return p, nil
}

// MatchStatus decodes the payload of a matchStatusChanged event.
func (e *ScoringEvent) MatchStatus() (MatchStatusPayload, error) {
	var p MatchStatusPayload
	if e.Type != EventMatchStatusChanged {
		return p, fmt.Errorf("event %s is %s, not a status event", e.ID, e.Type)
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return p, nil
}
