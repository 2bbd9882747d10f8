package model

import (
	"fmt"
	"time"
)

// EntityKind names a syncable table. The set is closed: the translation
// layer and the remote client both switch over it exhaustively, so a new
// kind cannot be added without also defining its field mapping.
type EntityKind string

const (
	EntityTrip          EntityKind = "trip"
	EntityPlayer        EntityKind = "player"
	EntityTeam          EntityKind = "team"
	EntityTeamMember    EntityKind = "teamMember"
	EntitySession       EntityKind = "session"
	EntityMatch         EntityKind = "match"
	EntityHoleResult    EntityKind = "holeResult"
	EntityCourse        EntityKind = "course"
	EntityTeeSet        EntityKind = "teeSet"
	EntityDuesLineItem  EntityKind = "duesLineItem"
	EntityPaymentRecord EntityKind = "paymentRecord"
)

// EntityKinds lists every syncable kind, in dependency order: parents
// before children, so replaying rows in this order never trips a foreign
// key.
func EntityKinds() []EntityKind {
	return []EntityKind{
		EntityCourse,
		EntityTeeSet,
		EntityTrip,
		EntityPlayer,
		EntityTeam,
		EntityTeamMember,
		EntitySession,
		EntityMatch,
		EntityHoleResult,
		EntityDuesLineItem,
		EntityPaymentRecord,
	}
}

// ValidEntityKind reports whether k names a syncable table.
func ValidEntityKind(k EntityKind) bool {
	switch k {
	case EntityTrip, EntityPlayer, EntityTeam, EntityTeamMember,
		EntitySession, EntityMatch, EntityHoleResult,
		EntityCourse, EntityTeeSet, EntityDuesLineItem, EntityPaymentRecord:
		return true
	}
	return false
}

// Operation is the remote mutation verb carried by a queue item.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ValidOperation reports whether op is a known operation.
func ValidOperation(op Operation) bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// SyncStatus is the state of a queue item: pending -> failed on a push
// error, failed -> pending on a retry sweep. Removal (push success or
// trip purge) is terminal from either state.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncFailed  SyncStatus = "failed"
)

// SyncQueueItem records intent to mutate the remote store. Items carry
// no row payload: a drain reads the current local row for create/update
// and pushes only the id for delete. That keeps retried pushes
// last-write-wins and makes items for since-deleted rows naturally inert.
type SyncQueueItem struct {
	ID       string     `json:"id"`
	Entity   EntityKind `json:"entity"`
	EntityID string     `json:"entityId"`
	Op       Operation  `json:"operation"`

	// TripID scopes the item for purge-on-trip-delete. Catalog entities
	// (course, teeSet) are trip-independent and leave it empty.
	TripID string `json:"tripId,omitempty"`

	Status     SyncStatus `json:"status"`
	RetryCount int        `json:"retryCount"`

	// LastError holds the most recent push failure, for `sync status`.
	LastError     string     `json:"lastError,omitempty"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewSyncQueueItem builds a pending queue item.
func NewSyncQueueItem(entity EntityKind, entityID string, op Operation, tripID string) *SyncQueueItem {
	return &SyncQueueItem{
		ID:        NewID(),
		Entity:    entity,
		EntityID:  entityID,
		Op:        op,
		TripID:    tripID,
		Status:    SyncPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks required queue item fields.
func (q *SyncQueueItem) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !ValidEntityKind(q.Entity) {
		return fmt.Errorf("unknown entity kind %q", q.Entity)
	}
	if q.EntityID == "" {
		return fmt.Errorf("entityId is required")
	}
	if !ValidOperation(q.Op) {
		return fmt.Errorf("unknown operation %q", q.Op)
	}
	if q.Status != SyncPending && q.Status != SyncFailed {
		return fmt.Errorf("unknown status %q", q.Status)
	}
	if q.RetryCount < 0 {
		return fmt.Errorf("retryCount cannot be negative (got %d)", q.RetryCount)
	}
	if q.CreatedAt.IsZero() {
		return fmt.Errorf("createdAt is required")
	}
	return nil
}

// QueueCounts summarizes the sync queue for observability.
type QueueCounts struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}
