package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fairwaylabs/caddie/internal/model"
)

// UpsertCourse inserts or updates a catalog course keyed by id.
func (db *DB) UpsertCourse(ctx context.Context, c *model.Course) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid course: %w", err)
	}

	pars, err := json.Marshal(c.Pars)
	if err != nil {
		return fmt.Errorf("failed to encode pars: %w", err)
	}
	indexes, err := json.Marshal(c.StrokeIndexes)
	if err != nil {
		return fmt.Errorf("failed to encode stroke indexes: %w", err)
	}

	query := `
	INSERT INTO courses (id, name, location, pars, stroke_indexes, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		location = excluded.location,
		pars = excluded.pars,
		stroke_indexes = excluded.stroke_indexes,
		updated_at = excluded.updated_at
	`

	_, err = db.conn.ExecContext(ctx, query,
		c.ID,
		c.Name,
		stringToNullString(c.Location),
		string(pars),
		string(indexes),
		timeToString(c.CreatedAt),
		timeToString(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert course: %w", err)
	}
	return nil
}

// GetCourse retrieves a course by id.
func (db *DB) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, name, location, pars, stroke_indexes, created_at, updated_at
	FROM courses WHERE id = ?`, id)
	return scanCourse(row)
}

// ListCourses returns the whole catalog ordered by name.
func (db *DB) ListCourses(ctx context.Context) ([]*model.Course, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, name, location, pars, stroke_indexes, created_at, updated_at
	FROM courses ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	var courses []*model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating courses: %w", err)
	}
	return courses, nil
}

func scanCourse(s scanner) (*model.Course, error) {
	var c model.Course
	var location sql.NullString
	var pars, indexes string
	var createdAt, updatedAt string

	err := s.Scan(&c.ID, &c.Name, &location, &pars, &indexes, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFoundScan(err, "course", c.ID)
	}

	if err := json.Unmarshal([]byte(pars), &c.Pars); err != nil {
		return nil, fmt.Errorf("failed to decode pars for course %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(indexes), &c.StrokeIndexes); err != nil {
		return nil, fmt.Errorf("failed to decode stroke indexes for course %s: %w", c.ID, err)
	}

	c.Location = location.String
	c.CreatedAt = stringToTime(createdAt)
	c.UpdatedAt = stringToTime(updatedAt)
	return &c, nil
}

// UpsertTeeSet inserts or updates a tee set keyed by id.
func (db *DB) UpsertTeeSet(ctx context.Context, t *model.TeeSet) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid tee set: %w", err)
	}

	var yardages sql.NullString
	if len(t.Yardages) > 0 {
		encoded, err := json.Marshal(t.Yardages)
		if err != nil {
			return fmt.Errorf("failed to encode yardages: %w", err)
		}
		yardages = sql.NullString{String: string(encoded), Valid: true}
	}

	query := `
	INSERT INTO tee_sets (id, course_id, name, rating, slope, yardages, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		course_id = excluded.course_id,
		name = excluded.name,
		rating = excluded.rating,
		slope = excluded.slope,
		yardages = excluded.yardages,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		t.ID,
		t.CourseID,
		t.Name,
		t.Rating,
		t.Slope,
		yardages,
		timeToString(t.CreatedAt),
		timeToString(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tee set: %w", err)
	}
	return nil
}

// GetTeeSet retrieves a tee set by id.
func (db *DB) GetTeeSet(ctx context.Context, id string) (*model.TeeSet, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, course_id, name, rating, slope, yardages, created_at, updated_at
	FROM tee_sets WHERE id = ?`, id)
	return scanTeeSet(row)
}

// ListTeeSetsByCourse returns a course's tee sets ordered by name.
func (db *DB) ListTeeSetsByCourse(ctx context.Context, courseID string) ([]*model.TeeSet, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, course_id, name, rating, slope, yardages, created_at, updated_at
	FROM tee_sets WHERE course_id = ? ORDER BY name ASC`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tee sets: %w", err)
	}
	defer rows.Close()

	var sets []*model.TeeSet
	for rows.Next() {
		t, err := scanTeeSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tee sets: %w", err)
	}
	return sets, nil
}

func scanTeeSet(s scanner) (*model.TeeSet, error) {
	var t model.TeeSet
	var yardages sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&t.ID, &t.CourseID, &t.Name, &t.Rating, &t.Slope, &yardages, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFoundScan(err, "tee set", t.ID)
	}

	if yardages.Valid && yardages.String != "" {
		if err := json.Unmarshal([]byte(yardages.String), &t.Yardages); err != nil {
			return nil, fmt.Errorf("failed to decode yardages for tee set %s: %w", t.ID, err)
		}
	}

	t.CreatedAt = stringToTime(createdAt)
	t.UpdatedAt = stringToTime(updatedAt)
	return &t, nil
}
