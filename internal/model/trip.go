package model

import (
	"fmt"
	"time"
)

// DateFormat is the layout for trip start/end dates. Dates are stored as
// plain calendar days, not instants, because a trip spans days in the
// course's local timezone regardless of which device created it.
const DateFormat = "2006-01-02"

// Trip is the root aggregate: a multi-day competition event. It owns the
// roster (players, teams), the schedule (sessions), and the dues ledger.
// Deleting a trip cascades to everything scoped to it, including any
// pending sync queue items.
type Trip struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`

	// StartDate and EndDate are inclusive calendar days (DateFormat).
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`

	// ShareCode is the join token other devices use to pull this trip
	// from the remote store.
	ShareCode string `json:"shareCode"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewTrip creates a trip with a fresh id and share code.
func NewTrip(name, location, startDate, endDate string) *Trip {
	now := time.Now().UTC()
	return &Trip{
		ID:        NewID(),
		Name:      name,
		Location:  location,
		StartDate: startDate,
		EndDate:   endDate,
		ShareCode: NewShareCode(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks that the trip has valid field values.
func (t *Trip) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(t.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(t.Name))
	}
	start, err := time.Parse(DateFormat, t.StartDate)
	if err != nil {
		return fmt.Errorf("start date must be YYYY-MM-DD (got %q)", t.StartDate)
	}
	end, err := time.Parse(DateFormat, t.EndDate)
	if err != nil {
		return fmt.Errorf("end date must be YYYY-MM-DD (got %q)", t.EndDate)
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s is before start date %s", t.EndDate, t.StartDate)
	}
	if err := ValidateShareCode(t.ShareCode); err != nil {
		return fmt.Errorf("share code: %w", err)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("createdAt is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updatedAt is required")
	}
	return nil
}

// Touch sets UpdatedAt to the current time. Call after mutating any field.
func (t *Trip) Touch() {
	t.UpdatedAt = time.Now().UTC()
}

// Days returns the number of calendar days the trip spans, inclusive.
// Returns 0 if either date is unparseable.
func (t *Trip) Days() int {
	start, err := time.Parse(DateFormat, t.StartDate)
	if err != nil {
		return 0
	}
	end, err := time.Parse(DateFormat, t.EndDate)
	if err != nil {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}
