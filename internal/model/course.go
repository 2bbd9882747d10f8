package model

import (
	"fmt"
	"time"
)

// Course is a catalog entry describing where a session is played. Hole
// pars and stroke indexes are stored positionally: Pars[0] is hole 1.
// Courses are trip-independent; they survive trip cascades.
type Course struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`

	Pars []int `json:"pars"`
	// StrokeIndexes ranks holes by difficulty, 1 (hardest) to 18.
	// Empty when the course file does not list them.
	StrokeIndexes []int `json:"strokeIndexes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the course definition.
func (c *Course) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(c.Pars) != HolesPerRound {
		return fmt.Errorf("expected %d hole pars (got %d)", HolesPerRound, len(c.Pars))
	}
	for i, par := range c.Pars {
		if par < 3 || par > 6 {
			return fmt.Errorf("hole %d par must be between 3 and 6 (got %d)", i+1, par)
		}
	}
	if len(c.StrokeIndexes) != 0 && len(c.StrokeIndexes) != HolesPerRound {
		return fmt.Errorf("expected 0 or %d stroke indexes (got %d)", HolesPerRound, len(c.StrokeIndexes))
	}
	seen := make(map[int]bool, HolesPerRound)
	for i, idx := range c.StrokeIndexes {
		if idx < 1 || idx > HolesPerRound {
			return fmt.Errorf("hole %d stroke index must be between 1 and %d (got %d)", i+1, HolesPerRound, idx)
		}
		if seen[idx] {
			return fmt.Errorf("stroke index %d appears twice", idx)
		}
		seen[idx] = true
	}
	return nil
}

// TotalPar sums the hole pars.
func (c *Course) TotalPar() int {
	total := 0
	for _, p := range c.Pars {
		total += p
	}
	return total
}

// TeeSet is one set of tees on a course ("Blue", "White") with its
// rating and slope.
type TeeSet struct {
	ID       string `json:"id"`
	CourseID string `json:"courseId"`
	Name     string `json:"name"`

	Rating float64 `json:"rating"`
	Slope  int     `json:"slope"`

	// Yardages are per-hole, positional like Course.Pars. Optional.
	Yardages []int `json:"yardages,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the tee set definition.
func (t *TeeSet) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.CourseID == "" {
		return fmt.Errorf("courseId is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.Rating < 55 || t.Rating > 85 {
		return fmt.Errorf("rating must be between 55 and 85 (got %g)", t.Rating)
	}
	if t.Slope < 55 || t.Slope > 155 {
		return fmt.Errorf("slope must be between 55 and 155 (got %d)", t.Slope)
	}
	if len(t.Yardages) != 0 && len(t.Yardages) != HolesPerRound {
		return fmt.Errorf("expected 0 or %d yardages (got %d)", HolesPerRound, len(t.Yardages))
	}
	return nil
}
