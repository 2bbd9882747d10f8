package model

import (
	"fmt"
	"time"
)

// Player is a person on a trip's roster.
type Player struct {
	ID     string `json:"id"`
	TripID string `json:"tripId"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`

	// Handicap is the player's course handicap for this trip.
	Handicap float64 `json:"handicap"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks required player fields.
func (p *Player) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.TripID == "" {
		return fmt.Errorf("tripId is required")
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Handicap < -10 || p.Handicap > 54 {
		return fmt.Errorf("handicap must be between -10 and 54 (got %g)", p.Handicap)
	}
	return nil
}

// Team is a named side within a trip (e.g. "USA" / "Europe").
type Team struct {
	ID     string `json:"id"`
	TripID string `json:"tripId"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks required team fields.
func (t *Team) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.TripID == "" {
		return fmt.Errorf("tripId is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// TeamMember links a player to a team. It carries the trip id so trip
// cascades can remove memberships without joining through teams.
type TeamMember struct {
	ID       string `json:"id"`
	TeamID   string `json:"teamId"`
	PlayerID string `json:"playerId"`
	TripID   string `json:"tripId"`

	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks required membership fields.
func (m *TeamMember) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if m.TeamID == "" {
		return fmt.Errorf("teamId is required")
	}
	if m.PlayerID == "" {
		return fmt.Errorf("playerId is required")
	}
	if m.TripID == "" {
		return fmt.Errorf("tripId is required")
	}
	return nil
}

// PaymentMethod describes how a payment was made.
type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentVenmo PaymentMethod = "venmo"
	PaymentOther PaymentMethod = "other"
)

// DuesLineItem is a charge owed by a player for a trip (greens fees,
// lodging share, side-game buy-in). Amounts are integer cents.
type DuesLineItem struct {
	ID          string `json:"id"`
	TripID      string `json:"tripId"`
	PlayerID    string `json:"playerId"`
	Description string `json:"description"`
	AmountCents int64  `json:"amountCents"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks required dues fields.
func (d *DuesLineItem) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if d.TripID == "" {
		return fmt.Errorf("tripId is required")
	}
	if d.PlayerID == "" {
		return fmt.Errorf("playerId is required")
	}
	if d.Description == "" {
		return fmt.Errorf("description is required")
	}
	if d.AmountCents <= 0 {
		return fmt.Errorf("amountCents must be positive (got %d)", d.AmountCents)
	}
	return nil
}

// PaymentRecord is a payment made by a player against their dues.
type PaymentRecord struct {
	ID          string        `json:"id"`
	TripID      string        `json:"tripId"`
	PlayerID    string        `json:"playerId"`
	AmountCents int64         `json:"amountCents"`
	Method      PaymentMethod `json:"method"`
	Note        string        `json:"note,omitempty"`
	PaidAt      time.Time     `json:"paidAt"`

	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks required payment fields.
func (p *PaymentRecord) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.TripID == "" {
		return fmt.Errorf("tripId is required")
	}
	if p.PlayerID == "" {
		return fmt.Errorf("playerId is required")
	}
	if p.AmountCents <= 0 {
		return fmt.Errorf("amountCents must be positive (got %d)", p.AmountCents)
	}
	switch p.Method {
	case PaymentCash, PaymentVenmo, PaymentOther:
	default:
		return fmt.Errorf("unknown payment method %q", p.Method)
	}
	if p.PaidAt.IsZero() {
		return fmt.Errorf("paidAt is required")
	}
	return nil
}
