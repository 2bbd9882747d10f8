package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fairwaylabs/caddie/internal/model"
)

// Row is one remote record: snake_case column names mapped to SQL-ready
// values. The remote layout differs from the local one in more than
// casing: timestamps are integer epoch milliseconds, and positional int
// arrays (pars, yardages) are JSON text columns.
type Row map[string]interface{}

// ToRemote converts a local entity to its remote row. The kind switch is
// exhaustive over model.EntityKinds; an unknown kind or a mismatched
// value is a TranslationError, never a partial row.
func ToRemote(kind model.EntityKind, v interface{}) (Row, error) {
	switch kind {
	case model.EntityTrip:
		if t, ok := v.(*model.Trip); ok {
			return tripToRemote(t), nil
		}
	case model.EntityPlayer:
		if p, ok := v.(*model.Player); ok {
			return playerToRemote(p), nil
		}
	case model.EntityTeam:
		if t, ok := v.(*model.Team); ok {
			return teamToRemote(t), nil
		}
	case model.EntityTeamMember:
		if m, ok := v.(*model.TeamMember); ok {
			return teamMemberToRemote(m), nil
		}
	case model.EntitySession:
		if s, ok := v.(*model.Session); ok {
			return sessionToRemote(s), nil
		}
	case model.EntityMatch:
		if m, ok := v.(*model.Match); ok {
			return matchToRemote(m), nil
		}
	case model.EntityHoleResult:
		if h, ok := v.(*model.HoleResult); ok {
			return holeResultToRemote(h), nil
		}
	case model.EntityCourse:
		if c, ok := v.(*model.Course); ok {
			return courseToRemote(c)
		}
	case model.EntityTeeSet:
		if t, ok := v.(*model.TeeSet); ok {
			return teeSetToRemote(t)
		}
	case model.EntityDuesLineItem:
		if d, ok := v.(*model.DuesLineItem); ok {
			return duesToRemote(d), nil
		}
	case model.EntityPaymentRecord:
		if p, ok := v.(*model.PaymentRecord); ok {
			return paymentToRemote(p), nil
		}
	default:
		return nil, &TranslationError{Entity: kind, Err: fmt.Errorf("unknown entity kind")}
	}
	return nil, &TranslationError{Entity: kind, Err: fmt.Errorf("unexpected value type %T", v)}
}

// FromRemote converts a remote row back to its local entity. The result
// is validated; a row the client cannot represent locally is a
// TranslationError.
func FromRemote(kind model.EntityKind, row Row) (interface{}, error) {
	switch kind {
	case model.EntityTrip:
		return tripFromRemote(row)
	case model.EntityPlayer:
		return playerFromRemote(row)
	case model.EntityTeam:
		return teamFromRemote(row)
	case model.EntityTeamMember:
		return teamMemberFromRemote(row)
	case model.EntitySession:
		return sessionFromRemote(row)
	case model.EntityMatch:
		return matchFromRemote(row)
	case model.EntityHoleResult:
		return holeResultFromRemote(row)
	case model.EntityCourse:
		return courseFromRemote(row)
	case model.EntityTeeSet:
		return teeSetFromRemote(row)
	case model.EntityDuesLineItem:
		return duesFromRemote(row)
	case model.EntityPaymentRecord:
		return paymentFromRemote(row)
	}
	return nil, &TranslationError{Entity: kind, Err: fmt.Errorf("unknown entity kind")}
}

func timeToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// optString maps the local empty string to remote NULL.
func optString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func optMillis(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return timeToMillis(*t)
}

func tripToRemote(t *model.Trip) Row {
	return Row{
		"id":         t.ID,
		"name":       t.Name,
		"location":   optString(t.Location),
		"start_date": t.StartDate,
		"end_date":   t.EndDate,
		"share_code": t.ShareCode,
		"created_at": timeToMillis(t.CreatedAt),
		"updated_at": timeToMillis(t.UpdatedAt),
	}
}

func tripFromRemote(row Row) (*model.Trip, error) {
	r := newRowReader(model.EntityTrip, row)
	t := &model.Trip{
		ID:        r.str("id"),
		Name:      r.str("name"),
		Location:  r.optStr("location"),
		StartDate: r.str("start_date"),
		EndDate:   r.str("end_date"),
		ShareCode: r.str("share_code"),
		CreatedAt: r.time("created_at"),
		UpdatedAt: r.time("updated_at"),
	}
	return t, r.finish(t)
}

func playerToRemote(p *model.Player) Row {
	return Row{
		"id":         p.ID,
		"trip_id":    p.TripID,
		"name":       p.Name,
		"email":      optString(p.Email),
		"handicap":   p.Handicap,
		"created_at": timeToMillis(p.CreatedAt),
		"updated_at": timeToMillis(p.UpdatedAt),
	}
}

func playerFromRemote(row Row) (*model.Player, error) {
	r := newRowReader(model.EntityPlayer, row)
	p := &model.Player{
		ID:        r.str("id"),
		TripID:    r.str("trip_id"),
		Name:      r.str("name"),
		Email:     r.optStr("email"),
		Handicap:  r.f64("handicap"),
		CreatedAt: r.time("created_at"),
		UpdatedAt: r.time("updated_at"),
	}
	return p, r.finish(p)
}

func teamToRemote(t *model.Team) Row {
	return Row{
		"id":         t.ID,
		"trip_id":    t.TripID,
		"name":       t.Name,
		"color":      optString(t.Color),
		"created_at": timeToMillis(t.CreatedAt),
		"updated_at": timeToMillis(t.UpdatedAt),
	}
}

func teamFromRemote(row Row) (*model.Team, error) {
	r := newRowReader(model.EntityTeam, row)
	t := &model.Team{
		ID:        r.str("id"),
		TripID:    r.str("trip_id"),
		Name:      r.str("name"),
		Color:     r.optStr("color"),
		CreatedAt: r.time("created_at"),
		UpdatedAt: r.time("updated_at"),
	}
	return t, r.finish(t)
}

func teamMemberToRemote(m *model.TeamMember) Row {
	return Row{
		"id":         m.ID,
		"team_id":    m.TeamID,
		"player_id":  m.PlayerID,
		"trip_id":    m.TripID,
		"created_at": timeToMillis(m.CreatedAt),
	}
}

func teamMemberFromRemote(row Row) (*model.TeamMember, error) {
	r := newRowReader(model.EntityTeamMember, row)
	m := &model.TeamMember{
		ID:        r.str("id"),
		TeamID:    r.str("team_id"),
		PlayerID:  r.str("player_id"),
		TripID:    r.str("trip_id"),
		CreatedAt: r.time("created_at"),
	}
	return m, r.finish(m)
}

func sessionToRemote(s *model.Session) Row {
	return Row{
		"id":         s.ID,
		"trip_id":    s.TripID,
		"name":       s.Name,
		"format":     string(s.Format),
		"tee_time":   optMillis(s.TeeTime),
		"course_id":  optString(s.CourseID),
		"tee_set_id": optString(s.TeeSetID),
		"created_at": timeToMillis(s.CreatedAt),
		"updated_at": timeToMillis(s.UpdatedAt),
	}
}

func sessionFromRemote(row Row) (*model.Session, error) {
	r := newRowReader(model.EntitySession, row)
	s := &model.Session{
		ID:        r.str("id"),
		TripID:    r.str("trip_id"),
		Name:      r.str("name"),
		Format:    model.SessionFormat(r.str("format")),
		TeeTime:   r.optTime("tee_time"),
		CourseID:  r.optStr("course_id"),
		TeeSetID:  r.optStr("tee_set_id"),
		CreatedAt: r.time("created_at"),
		UpdatedAt: r.time("updated_at"),
	}
	return s, r.finish(s)
}

func matchToRemote(m *model.Match) Row {
	return Row{
		"id":              m.ID,
		"session_id":      m.SessionID,
		"trip_id":         m.TripID,
		"team_a_id":       m.TeamAID,
		"team_b_id":       m.TeamBID,
		"status":          string(m.Status),
		"holes_remaining": int64(m.HolesRemaining),
		"result":          optString(m.Result),
		"created_at":      timeToMillis(m.CreatedAt),
		"updated_at":      timeToMillis(m.UpdatedAt),
	}
}

func matchFromRemote(row Row) (*model.Match, error) {
	r := newRowReader(model.EntityMatch, row)
	m := &model.Match{
		ID:             r.str("id"),
		SessionID:      r.str("session_id"),
		TripID:         r.str("trip_id"),
		TeamAID:        r.str("team_a_id"),
		TeamBID:        r.str("team_b_id"),
		Status:         model.MatchStatus(r.str("status")),
		HolesRemaining: r.intVal("holes_remaining"),
		Result:         r.optStr("result"),
		CreatedAt:      r.time("created_at"),
		UpdatedAt:      r.time("updated_at"),
	}
	return m, r.finish(m)
}

func holeResultToRemote(h *model.HoleResult) Row {
	return Row{
		"id":          h.ID,
		"match_id":    h.MatchID,
		"trip_id":     h.TripID,
		"hole_number": int64(h.HoleNumber),
		"winner":      string(h.Winner),
		"recorded_by": optString(h.RecordedBy),
		"created_at":  timeToMillis(h.CreatedAt),
		"updated_at":  timeToMillis(h.UpdatedAt),
	}
}

func holeResultFromRemote(row Row) (*model.HoleResult, error) {
	r := newRowReader(model.EntityHoleResult, row)
	h := &model.HoleResult{
		ID:         r.str("id"),
		MatchID:    r.str("match_id"),
		TripID:     r.str("trip_id"),
		HoleNumber: r.intVal("hole_number"),
		Winner:     model.HoleWinner(r.str("winner")),
		RecordedBy: r.optStr("recorded_by"),
		CreatedAt:  r.time("created_at"),
		UpdatedAt:  r.time("updated_at"),
	}
	return h, r.finish(h)
}

func courseToRemote(c *model.Course) (Row, error) {
	pars, err := encodeInts(model.EntityCourse, c.ID, "pars", c.Pars)
	if err != nil {
		return nil, err
	}
	indexes, err := encodeInts(model.EntityCourse, c.ID, "stroke_indexes", c.StrokeIndexes)
	if err != nil {
		return nil, err
	}
	return Row{
		"id":             c.ID,
		"name":           c.Name,
		"location":       optString(c.Location),
		"pars":           pars,
		"stroke_indexes": indexes,
		"created_at":     timeToMillis(c.CreatedAt),
		"updated_at":     timeToMillis(c.UpdatedAt),
	}, nil
}

func courseFromRemote(row Row) (*model.Course, error) {
	r := newRowReader(model.EntityCourse, row)
	c := &model.Course{
		ID:            r.str("id"),
		Name:          r.str("name"),
		Location:      r.optStr("location"),
		Pars:          r.ints("pars"),
		StrokeIndexes: r.ints("stroke_indexes"),
		CreatedAt:     r.time("created_at"),
		UpdatedAt:     r.time("updated_at"),
	}
	return c, r.finish(c)
}

func teeSetToRemote(t *model.TeeSet) (Row, error) {
	var yardages interface{}
	if len(t.Yardages) > 0 {
		encoded, err := encodeInts(model.EntityTeeSet, t.ID, "yardages", t.Yardages)
		if err != nil {
			return nil, err
		}
		yardages = encoded
	}
	return Row{
		"id":         t.ID,
		"course_id":  t.CourseID,
		"name":       t.Name,
		"rating":     t.Rating,
		"slope":      int64(t.Slope),
		"yardages":   yardages,
		"created_at": timeToMillis(t.CreatedAt),
		"updated_at": timeToMillis(t.UpdatedAt),
	}, nil
}

func teeSetFromRemote(row Row) (*model.TeeSet, error) {
	r := newRowReader(model.EntityTeeSet, row)
	t := &model.TeeSet{
		ID:        r.str("id"),
		CourseID:  r.str("course_id"),
		Name:      r.str("name"),
		Rating:    r.f64("rating"),
		Slope:     r.intVal("slope"),
		Yardages:  r.optInts("yardages"),
		CreatedAt: r.time("created_at"),
		UpdatedAt: r.time("updated_at"),
	}
	return t, r.finish(t)
}

func duesToRemote(d *model.DuesLineItem) Row {
	return Row{
		"id":           d.ID,
		"trip_id":      d.TripID,
		"player_id":    d.PlayerID,
		"description":  d.Description,
		"amount_cents": d.AmountCents,
		"created_at":   timeToMillis(d.CreatedAt),
		"updated_at":   timeToMillis(d.UpdatedAt),
	}
}

func duesFromRemote(row Row) (*model.DuesLineItem, error) {
	r := newRowReader(model.EntityDuesLineItem, row)
	d := &model.DuesLineItem{
		ID:          r.str("id"),
		TripID:      r.str("trip_id"),
		PlayerID:    r.str("player_id"),
		Description: r.str("description"),
		AmountCents: r.i64("amount_cents"),
		CreatedAt:   r.time("created_at"),
		UpdatedAt:   r.time("updated_at"),
	}
	return d, r.finish(d)
}

func paymentToRemote(p *model.PaymentRecord) Row {
	return Row{
		"id":           p.ID,
		"trip_id":      p.TripID,
		"player_id":    p.PlayerID,
		"amount_cents": p.AmountCents,
		"method":       string(p.Method),
		"note":         optString(p.Note),
		"paid_at":      timeToMillis(p.PaidAt),
		"created_at":   timeToMillis(p.CreatedAt),
	}
}

func paymentFromRemote(row Row) (*model.PaymentRecord, error) {
	r := newRowReader(model.EntityPaymentRecord, row)
	p := &model.PaymentRecord{
		ID:          r.str("id"),
		TripID:      r.str("trip_id"),
		PlayerID:    r.str("player_id"),
		AmountCents: r.i64("amount_cents"),
		Method:      model.PaymentMethod(r.str("method")),
		Note:        r.optStr("note"),
		PaidAt:      r.time("paid_at"),
		CreatedAt:   r.time("created_at"),
	}
	return p, r.finish(p)
}

func encodeInts(entity model.EntityKind, id, field string, values []int) (string, error) {
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", &TranslationError{Entity: entity, ID: id, Field: field, Err: err}
	}
	return string(encoded), nil
}

// validator lets finish run the model's own checks on the rebuilt entity.
type validator interface {
	Validate() error
}

// rowReader accumulates field conversion errors while building a local
// entity from a remote row, so callers get one TranslationError naming
// the first offending field instead of a panic on a bad cell.
type rowReader struct {
	entity model.EntityKind
	row    Row
	err    *TranslationError
}

func newRowReader(entity model.EntityKind, row Row) *rowReader {
	return &rowReader{entity: entity, row: row}
}

func (r *rowReader) fail(field string, err error) {
	if r.err == nil {
		id, _ := r.row["id"].(string)
		r.err = &TranslationError{Entity: r.entity, ID: id, Field: field, Err: err}
	}
}

// finish returns the accumulated conversion error, or validates the
// rebuilt entity.
func (r *rowReader) finish(v validator) error {
	if r.err != nil {
		return r.err
	}
	if err := v.Validate(); err != nil {
		id, _ := r.row["id"].(string)
		return &TranslationError{Entity: r.entity, ID: id, Err: err}
	}
	return nil
}

func (r *rowReader) str(key string) string {
	v, ok := r.row[key]
	if !ok || v == nil {
		r.fail(key, fmt.Errorf("missing value"))
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, fmt.Errorf("expected text, got %T", v))
		return ""
	}
	return s
}

func (r *rowReader) optStr(key string) string {
	v, ok := r.row[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, fmt.Errorf("expected text, got %T", v))
		return ""
	}
	return s
}

// i64 accepts the integer shapes SQL drivers hand back.
func (r *rowReader) i64(key string) int64 {
	v, ok := r.row[key]
	if !ok || v == nil {
		r.fail(key, fmt.Errorf("missing value"))
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	r.fail(key, fmt.Errorf("expected integer, got %T", v))
	return 0
}

func (r *rowReader) intVal(key string) int {
	return int(r.i64(key))
}

func (r *rowReader) f64(key string) float64 {
	v, ok := r.row[key]
	if !ok || v == nil {
		r.fail(key, fmt.Errorf("missing value"))
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	r.fail(key, fmt.Errorf("expected number, got %T", v))
	return 0
}

func (r *rowReader) time(key string) time.Time {
	return millisToTime(r.i64(key))
}

func (r *rowReader) optTime(key string) *time.Time {
	v, ok := r.row[key]
	if !ok || v == nil {
		return nil
	}
	t := millisToTime(r.i64(key))
	return &t
}

func (r *rowReader) ints(key string) []int {
	v, ok := r.row[key]
	if !ok || v == nil {
		r.fail(key, fmt.Errorf("missing value"))
		return nil
	}
	return r.decodeInts(key, v)
}

func (r *rowReader) optInts(key string) []int {
	v, ok := r.row[key]
	if !ok || v == nil {
		return nil
	}
	return r.decodeInts(key, v)
}

func (r *rowReader) decodeInts(key string, v interface{}) []int {
	s, ok := v.(string)
	if !ok {
		r.fail(key, fmt.Errorf("expected JSON text, got %T", v))
		return nil
	}
	var values []int
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		r.fail(key, err)
		return nil
	}
	return values
}
