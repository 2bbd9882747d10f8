package model

import "fmt"

// Standing is the derived state of a match after some holes have been
// decided. It is recomputed from hole results, never stored, so every
// write path (local edits, remote-origin updates, archive imports)
// produces the same view.
type Standing struct {
	WinsA  int  `json:"winsA"`
	WinsB  int  `json:"winsB"`
	Halved int  `json:"halved"`
	Thru   int  `json:"thru"`
	Lead   int  `json:"lead"` // positive: A up, negative: B up, zero: all square
	Dormie bool `json:"dormie"`
	Final  bool `json:"final"`
}

// ComputeStanding derives the match-play standing from hole results.
// Results for the same hole number are counted once (the store enforces
// uniqueness, but remote-origin rows are applied as-is).
func ComputeStanding(results []HoleResult) Standing {
	seen := make(map[int]HoleWinner, len(results))
	for _, r := range results {
		seen[r.HoleNumber] = r.Winner
	}

	var s Standing
	for _, w := range seen {
		switch w {
		case HoleTeamA:
			s.WinsA++
		case HoleTeamB:
			s.WinsB++
		case HoleHalved:
			s.Halved++
		}
	}
	s.Thru = len(seen)
	s.Lead = s.WinsA - s.WinsB

	remaining := HolesPerRound - s.Thru
	lead := s.Lead
	if lead < 0 {
		lead = -lead
	}
	// The match is over when the lead exceeds the holes left, or when
	// all holes are played.
	s.Final = lead > remaining || remaining == 0
	s.Dormie = !s.Final && remaining > 0 && lead == remaining
	return s
}

// Text renders the standing the way golfers say it: "2 UP", "AS",
// "3&2" once the match is decided early.
func (s Standing) Text() string {
	lead := s.Lead
	side := "A"
	if lead < 0 {
		lead = -lead
		side = "B"
	}
	remaining := HolesPerRound - s.Thru
	switch {
	case s.Final && lead == 0:
		return "AS"
	case s.Final && remaining > 0:
		return fmt.Sprintf("%s %d&%d", side, lead, remaining)
	case s.Final:
		return fmt.Sprintf("%s %d UP", side, lead)
	case lead == 0:
		return "AS"
	default:
		return fmt.Sprintf("%s %d UP", side, lead)
	}
}
