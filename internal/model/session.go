package model

import (
	"fmt"
	"time"
)

// HolesPerRound is the number of holes in a full round. Nine-hole
// sessions are out of scope for now; the cascade and scoring paths only
// need an upper bound.
const HolesPerRound = 18

// SessionFormat describes how matches in a session are played.
type SessionFormat string

const (
	FormatFourball  SessionFormat = "fourball"
	FormatFoursomes SessionFormat = "foursomes"
	FormatSingles   SessionFormat = "singles"
	FormatScramble  SessionFormat = "scramble"
)

// ValidSessionFormat reports whether f is a known session format.
func ValidSessionFormat(f SessionFormat) bool {
	switch f {
	case FormatFourball, FormatFoursomes, FormatSingles, FormatScramble:
		return true
	}
	return false
}

// Session is a scheduled block of play within a trip (e.g. "Saturday AM
// Fourball") containing one or more matches.
type Session struct {
	ID     string        `json:"id"`
	TripID string        `json:"tripId"`
	Name   string        `json:"name"`
	Format SessionFormat `json:"format"`

	// TeeTime is the scheduled first tee time, nil if unscheduled.
	TeeTime *time.Time `json:"teeTime,omitempty"`

	// CourseID/TeeSetID reference the course catalog; empty until a
	// course is assigned.
	CourseID string `json:"courseId,omitempty"`
	TeeSetID string `json:"teeSetId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks required session fields.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.TripID == "" {
		return fmt.Errorf("tripId is required")
	}
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !ValidSessionFormat(s.Format) {
		return fmt.Errorf("unknown session format %q", s.Format)
	}
	return nil
}

// MatchStatus tracks the lifecycle of a match.
type MatchStatus string

const (
	MatchScheduled  MatchStatus = "scheduled"
	MatchInProgress MatchStatus = "inProgress"
	MatchFinal      MatchStatus = "final"
)

// ValidMatchStatus reports whether s is a known match status.
func ValidMatchStatus(s MatchStatus) bool {
	switch s {
	case MatchScheduled, MatchInProgress, MatchFinal:
		return true
	}
	return false
}

// Match is a single head-to-head competition within a session, scored
// hole by hole as match play between side A and side B.
//
// HolesRemaining plus the number of recorded hole results never exceeds
// HolesPerRound; the store enforces this when recording results.
type Match struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	TripID    string `json:"tripId"`

	TeamAID string `json:"teamAId"`
	TeamBID string `json:"teamBId"`

	Status         MatchStatus `json:"status"`
	HolesRemaining int         `json:"holesRemaining"`

	// Result is the finished-match summary ("3&2", "1 UP", "AS"); empty
	// until the match is final.
	Result string `json:"result,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks required match fields.
func (m *Match) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if m.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if m.TripID == "" {
		return fmt.Errorf("tripId is required")
	}
	if m.TeamAID == "" || m.TeamBID == "" {
		return fmt.Errorf("both team ids are required")
	}
	if m.TeamAID == m.TeamBID {
		return fmt.Errorf("a match needs two distinct sides")
	}
	if !ValidMatchStatus(m.Status) {
		return fmt.Errorf("unknown match status %q", m.Status)
	}
	if m.HolesRemaining < 0 || m.HolesRemaining > HolesPerRound {
		return fmt.Errorf("holesRemaining must be between 0 and %d (got %d)", HolesPerRound, m.HolesRemaining)
	}
	return nil
}

// Touch sets UpdatedAt to the current time.
func (m *Match) Touch() {
	m.UpdatedAt = time.Now().UTC()
}

// HoleWinner identifies which side took a hole.
type HoleWinner string

const (
	HoleTeamA  HoleWinner = "teamA"
	HoleTeamB  HoleWinner = "teamB"
	HoleHalved HoleWinner = "halved"
)

// ValidHoleWinner reports whether w is a known hole outcome.
func ValidHoleWinner(w HoleWinner) bool {
	switch w {
	case HoleTeamA, HoleTeamB, HoleHalved:
		return true
	}
	return false
}

// HoleResult records the outcome of one hole within one match. Exactly
// one result exists per (matchId, holeNumber); re-recording a hole
// overwrites the earlier result.
type HoleResult struct {
	ID         string     `json:"id"`
	MatchID    string     `json:"matchId"`
	TripID     string     `json:"tripId"`
	HoleNumber int        `json:"holeNumber"`
	Winner     HoleWinner `json:"winner"`

	// RecordedBy is the player id of whoever entered the score, for the
	// audit trail; empty when entered by a non-player organizer.
	RecordedBy string `json:"recordedBy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks required hole result fields.
func (h *HoleResult) Validate() error {
	if h.ID == "" {
		return fmt.Errorf("id is required")
	}
	if h.MatchID == "" {
		return fmt.Errorf("matchId is required")
	}
	if h.TripID == "" {
		return fmt.Errorf("tripId is required")
	}
	if h.HoleNumber < 1 || h.HoleNumber > HolesPerRound {
		return fmt.Errorf("holeNumber must be between 1 and %d (got %d)", HolesPerRound, h.HoleNumber)
	}
	if !ValidHoleWinner(h.Winner) {
		return fmt.Errorf("unknown hole winner %q", h.Winner)
	}
	return nil
}
