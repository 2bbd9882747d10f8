// Package course loads golf course definitions from TOML files into
// the local catalog.
//
// Each file defines one course and its tee sets. Imports go through
// the same store upsert path as every other entity, so imported rows
// are queued for the remote like any local edit. Re-importing a file
// converges: ids are derived from names, so the same file always
// targets the same rows.
package course

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/fairwaylabs/caddie/internal/model"
)

// Definition is one course file as authored: the course plus its tees.
type Definition struct {
	ID            string          `toml:"id"`
	Name          string          `toml:"name"`
	Location      string          `toml:"location"`
	Pars          []int           `toml:"pars"`
	StrokeIndexes []int           `toml:"stroke_indexes"`
	Tees          []TeeDefinition `toml:"tees"`
}

// TeeDefinition is one tee set within a course file.
type TeeDefinition struct {
	ID       string  `toml:"id"`
	Name     string  `toml:"name"`
	Rating   float64 `toml:"rating"`
	Slope    int     `toml:"slope"`
	Yardages []int   `toml:"yardages"`
}

// Load parses and validates a single course file.
func Load(path string) (*Definition, error) {
	var def Definition
	if _, err := toml.DecodeFile(path, &def); err != nil {
		return nil, fmt.Errorf("failed to parse course file %s: %w", path, err)
	}

	def.applyDefaults()
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid course file %s: %w", path, err)
	}
	return &def, nil
}

// LoadDir loads every .toml file in a directory, sorted by filename.
// Any invalid file fails the whole load; use Importer.ImportDir for
// the resilient variant.
func LoadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	defs := make([]*Definition, 0, len(names))
	for _, name := range names {
		def, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// applyDefaults derives missing ids from names so re-imports hit the
// same rows.
func (d *Definition) applyDefaults() {
	if d.ID == "" {
		d.ID = Slug(d.Name)
	}
	for i := range d.Tees {
		if d.Tees[i].ID == "" {
			d.Tees[i].ID = d.ID + "-" + Slug(d.Tees[i].Name)
		}
	}
}

// Validate checks the definition by building its catalog rows. Tee
// names must be unique within the course.
func (d *Definition) Validate() error {
	now := time.Now().UTC()
	if err := d.Course(now).Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(d.Tees))
	for _, tee := range d.TeeSets(now) {
		if err := tee.Validate(); err != nil {
			return fmt.Errorf("tee %q: %w", tee.Name, err)
		}
		if seen[tee.Name] {
			return fmt.Errorf("tee %q defined twice", tee.Name)
		}
		seen[tee.Name] = true
	}
	return nil
}

// Course builds the catalog row for this definition.
func (d *Definition) Course(now time.Time) *model.Course {
	return &model.Course{
		ID:            d.ID,
		Name:          d.Name,
		Location:      d.Location,
		Pars:          d.Pars,
		StrokeIndexes: d.StrokeIndexes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TeeSets builds the tee rows for this definition.
func (d *Definition) TeeSets(now time.Time) []*model.TeeSet {
	sets := make([]*model.TeeSet, len(d.Tees))
	for i, tee := range d.Tees {
		sets[i] = &model.TeeSet{
			ID:        tee.ID,
			CourseID:  d.ID,
			Name:      tee.Name,
			Rating:    tee.Rating,
			Slope:     tee.Slope,
			Yardages:  tee.Yardages,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return sets
}

// Slug lowercases a name and collapses everything that is not a letter
// or digit into single hyphens: "Pacific Dunes" -> "pacific-dunes".
func Slug(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
