package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/remote"
	"github.com/fairwaylabs/caddie/internal/store"
)

// ErrSyncBusy is returned by SyncPendingChanges when a drain is already
// in flight. The queue is untouched; call again once the first drain
// finishes.
var ErrSyncBusy = errors.New("sync not available: a drain is already running")

// errInert marks a queue item whose local row no longer exists. The
// intent has nothing left to push and is removed, not failed.
var errInert = errors.New("local row no longer exists")

// Result summarizes one push operation.
type Result struct {
	Success   bool      `json:"success"`
	Synced    int       `json:"synced"`
	Errors    []string  `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
}

// kindRank orders entity kinds parents-first for pushes.
var kindRank = func() map[model.EntityKind]int {
	ranks := make(map[model.EntityKind]int, len(model.EntityKinds()))
	for i, kind := range model.EntityKinds() {
		ranks[kind] = i
	}
	return ranks
}()

// syncer implements the Syncer interface.
type syncer struct {
	db      *store.DB
	remote  Remote
	version string
	logger  *log.Logger

	// draining serializes queue drains across goroutines.
	draining atomic.Bool
}

// New creates a Syncer over an open local store and a connected remote
// client.
//
// clientVersion is this build's version, checked against the remote's
// declared minimum before any remote operation; pass an empty string to
// skip the gate. If logger is nil, a default logger writing to stderr
// is used.
//
// Example:
//
//	database, err := store.Open(".caddie/caddie.db")
//	if err != nil {
//	    return err
//	}
//	client, err := remote.Connect(ctx, cfg.RemoteURL, cfg.AuthToken)
//	if err != nil {
//	    return err
//	}
//	syncer := sync.New(database, client, version, nil)
func New(database *store.DB, client Remote, clientVersion string, logger *log.Logger) Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{
		db:      database,
		remote:  client,
		version: clientVersion,
		logger:  logger,
	}
}

// gate refuses remote work when the client is older than the remote's
// declared minimum version.
func (s *syncer) gate(ctx context.Context) error {
	if s.version == "" {
		return nil
	}
	return s.remote.CheckClientVersion(ctx, s.version)
}

// QueueChange implements Syncer.QueueChange.
func (s *syncer) QueueChange(ctx context.Context, kind model.EntityKind, entityID string, op model.Operation, tripID string) error {
	item := model.NewSyncQueueItem(kind, entityID, op, tripID)
	if err := s.db.EnqueueSync(ctx, item); err != nil {
		return fmt.Errorf("failed to queue %s %s: %w", op, kind, err)
	}
	return nil
}

// QueueStatus implements Syncer.QueueStatus.
func (s *syncer) QueueStatus(ctx context.Context) (model.QueueCounts, error) {
	return s.db.SyncQueueStatus(ctx)
}

// PurgeTripQueue implements Syncer.PurgeTripQueue.
func (s *syncer) PurgeTripQueue(ctx context.Context, tripID string) (int64, error) {
	n, err := s.db.PurgeQueueForTrip(ctx, tripID)
	if err != nil {
		return 0, err
	}
	s.logger.Printf("Purged %d queue items for trip %s", n, tripID)
	return n, nil
}

// RetrySweep implements Syncer.RetrySweep.
func (s *syncer) RetrySweep(ctx context.Context) (int64, error) {
	n, err := s.db.RetrySweep(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Printf("Returned %d failed items to pending", n)
	}
	return n, nil
}

// SyncTripToCloud implements Syncer.SyncTripToCloud.
func (s *syncer) SyncTripToCloud(ctx context.Context, tripID string) (*Result, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}

	trip, err := s.db.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	result := &Result{Timestamp: time.Now().UTC()}
	matchOK := make(map[string]bool)

	push := func(kind model.EntityKind, id string, entity interface{}) bool {
		row, err := remote.ToRemote(kind, entity)
		if err == nil {
			err = s.remote.Upsert(ctx, kind, row)
		}
		if err != nil {
			s.logger.Printf("WARNING: Failed to push %s %s: %v", kind, id, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", kind, id, err))
			return false
		}
		result.Synced++
		return true
	}

	// Referenced catalog rows go up with the trip so a peer joining by
	// share code sees the courses its sessions name.
	sessions, err := s.db.ListSessionsByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	pushedCourses := make(map[string]bool)
	for _, session := range sessions {
		if session.CourseID == "" || pushedCourses[session.CourseID] {
			continue
		}
		pushedCourses[session.CourseID] = true
		course, err := s.db.GetCourse(ctx, session.CourseID)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if push(model.EntityCourse, course.ID, course) {
			teeSets, err := s.db.ListTeeSetsByCourse(ctx, course.ID)
			if err != nil {
				return nil, err
			}
			for _, tee := range teeSets {
				push(model.EntityTeeSet, tee.ID, tee)
			}
		}
	}

	push(model.EntityTrip, trip.ID, trip)

	players, err := s.db.ListPlayersByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, p := range players {
		push(model.EntityPlayer, p.ID, p)
	}

	teams, err := s.db.ListTeamsByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, t := range teams {
		push(model.EntityTeam, t.ID, t)
	}

	members, err := s.db.ListTeamMembersByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		push(model.EntityTeamMember, m.ID, m)
	}

	for _, session := range sessions {
		push(model.EntitySession, session.ID, session)
	}

	matches, err := s.db.ListMatchesByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		matchOK[m.ID] = push(model.EntityMatch, m.ID, m)

		holes, err := s.db.ListHoleResultsByMatch(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		for _, h := range holes {
			if !push(model.EntityHoleResult, h.ID, h) {
				matchOK[m.ID] = false
			}
		}
	}

	dues, err := s.db.ListDuesByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, d := range dues {
		push(model.EntityDuesLineItem, d.ID, d)
	}

	payments, err := s.db.ListPaymentsByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		push(model.EntityPaymentRecord, p.ID, p)
	}

	// Events become synced once their match's rows are confirmed remote.
	for matchID, ok := range matchOK {
		if !ok {
			continue
		}
		seq, err := s.db.LatestSeqForMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if seq > 0 {
			if _, err := s.db.MarkEventsSynced(ctx, matchID, seq); err != nil {
				return nil, err
			}
		}
	}

	result.Success = len(result.Errors) == 0
	if result.Success {
		// Everything the queue was holding for this trip just went up.
		purged, err := s.db.PurgeQueueForTrip(ctx, tripID)
		if err != nil {
			return nil, err
		}
		if err := s.db.SetLastPush(ctx, tripID, result.Timestamp); err != nil {
			return nil, err
		}
		s.logger.Printf("Synced trip %s: %d rows pushed, %d queue items satisfied", tripID, result.Synced, purged)
	} else {
		s.logger.Printf("Synced trip %s with errors: %d rows pushed, %d failed", tripID, result.Synced, len(result.Errors))
	}
	return result, nil
}

// JoinTripByShareCode implements Syncer.JoinTripByShareCode.
func (s *syncer) JoinTripByShareCode(ctx context.Context, shareCode string) (*model.Trip, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}

	bundle, err := s.remote.PullTrip(ctx, shareCode)
	if err != nil {
		return nil, err
	}

	entity, err := remote.FromRemote(model.EntityTrip, bundle.Trip)
	if err != nil {
		return nil, fmt.Errorf("failed to translate pulled trip: %w", err)
	}
	trip := entity.(*model.Trip)

	applied, skipped := 0, 0
	apply := func(kind model.EntityKind, rows []remote.Row) error {
		for _, row := range rows {
			entity, err := remote.FromRemote(kind, row)
			if err != nil {
				s.logger.Printf("WARNING: Skipping pulled %s row: %v", kind, err)
				skipped++
				continue
			}
			if err := s.applyLocal(ctx, kind, entity); err != nil {
				return fmt.Errorf("failed to apply pulled %s: %w", kind, err)
			}
			applied++
		}
		return nil
	}

	// Parents before children, catalog before the sessions that
	// reference it.
	if err := apply(model.EntityCourse, bundle.Courses); err != nil {
		return nil, err
	}
	if err := apply(model.EntityTeeSet, bundle.TeeSets); err != nil {
		return nil, err
	}
	if err := s.db.UpsertTrip(ctx, trip); err != nil {
		return nil, fmt.Errorf("failed to apply pulled trip: %w", err)
	}
	applied++
	if err := apply(model.EntityPlayer, bundle.Players); err != nil {
		return nil, err
	}
	if err := apply(model.EntityTeam, bundle.Teams); err != nil {
		return nil, err
	}
	if err := apply(model.EntityTeamMember, bundle.TeamMembers); err != nil {
		return nil, err
	}
	if err := apply(model.EntitySession, bundle.Sessions); err != nil {
		return nil, err
	}
	if err := apply(model.EntityMatch, bundle.Matches); err != nil {
		return nil, err
	}
	if err := apply(model.EntityHoleResult, bundle.HoleResults); err != nil {
		return nil, err
	}
	if err := apply(model.EntityDuesLineItem, bundle.Dues); err != nil {
		return nil, err
	}
	if err := apply(model.EntityPaymentRecord, bundle.Payments); err != nil {
		return nil, err
	}

	if err := s.db.SetLastPull(ctx, trip.ID, time.Now().UTC()); err != nil {
		return nil, err
	}

	s.logger.Printf("Joined trip %s (%s): %d rows applied, %d skipped", trip.Name, trip.ID, applied, skipped)
	return trip, nil
}

// PushHoleResult implements Syncer.PushHoleResult.
func (s *syncer) PushHoleResult(ctx context.Context, holeResultID string) error {
	hole, err := s.db.GetHoleResult(ctx, holeResultID)
	if err != nil {
		return err
	}
	match, err := s.db.GetMatch(ctx, hole.MatchID)
	if err != nil {
		return err
	}

	// Queue first so a failed push is retried by a later drain.
	matchItem := model.NewSyncQueueItem(model.EntityMatch, match.ID, model.OpUpdate, match.TripID)
	holeItem := model.NewSyncQueueItem(model.EntityHoleResult, hole.ID, model.OpUpdate, hole.TripID)
	for _, item := range []*model.SyncQueueItem{matchItem, holeItem} {
		if err := s.db.EnqueueSync(ctx, item); err != nil {
			return fmt.Errorf("failed to queue push: %w", err)
		}
	}

	pushErr := s.pushHolePair(ctx, match, hole)
	if pushErr != nil {
		now := time.Now().UTC()
		for _, item := range []*model.SyncQueueItem{matchItem, holeItem} {
			if err := s.db.MarkItemFailed(ctx, item.ID, pushErr.Error(), now); err != nil {
				s.logger.Printf("WARNING: Failed to mark queue item failed: %v", err)
			}
		}
		return pushErr
	}

	if err := s.db.RemoveQueueItems(ctx, matchItem.ID, holeItem.ID); err != nil {
		return err
	}
	seq, err := s.db.LatestSeqForMatch(ctx, match.ID)
	if err != nil {
		return err
	}
	if seq > 0 {
		if _, err := s.db.MarkEventsSynced(ctx, match.ID, seq); err != nil {
			return err
		}
	}
	if err := s.db.SetLastPush(ctx, match.TripID, time.Now().UTC()); err != nil {
		return err
	}

	s.logger.Printf("Pushed hole %d of match %s", hole.HoleNumber, match.ID)
	return nil
}

// pushHolePair pushes the match row, then the hole row, so the hole's
// foreign key holds remotely.
func (s *syncer) pushHolePair(ctx context.Context, match *model.Match, hole *model.HoleResult) error {
	if err := s.gate(ctx); err != nil {
		return err
	}

	matchRow, err := remote.ToRemote(model.EntityMatch, match)
	if err != nil {
		return err
	}
	if err := s.remote.Upsert(ctx, model.EntityMatch, matchRow); err != nil {
		return err
	}

	holeRow, err := remote.ToRemote(model.EntityHoleResult, hole)
	if err != nil {
		return err
	}
	return s.remote.Upsert(ctx, model.EntityHoleResult, holeRow)
}

// PushMatchUpdate implements Syncer.PushMatchUpdate.
func (s *syncer) PushMatchUpdate(ctx context.Context, matchID string) error {
	match, err := s.db.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}

	item := model.NewSyncQueueItem(model.EntityMatch, match.ID, model.OpUpdate, match.TripID)
	if err := s.db.EnqueueSync(ctx, item); err != nil {
		return fmt.Errorf("failed to queue push: %w", err)
	}

	pushErr := s.gate(ctx)
	if pushErr == nil {
		var row remote.Row
		row, pushErr = remote.ToRemote(model.EntityMatch, match)
		if pushErr == nil {
			pushErr = s.remote.Upsert(ctx, model.EntityMatch, row)
		}
	}
	if pushErr != nil {
		if err := s.db.MarkItemFailed(ctx, item.ID, pushErr.Error(), time.Now().UTC()); err != nil {
			s.logger.Printf("WARNING: Failed to mark queue item failed: %v", err)
		}
		return pushErr
	}

	if err := s.db.RemoveQueueItems(ctx, item.ID); err != nil {
		return err
	}
	seq, err := s.db.LatestSeqForMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if seq > 0 {
		if _, err := s.db.MarkEventsSynced(ctx, matchID, seq); err != nil {
			return err
		}
	}
	if err := s.db.SetLastPush(ctx, match.TripID, time.Now().UTC()); err != nil {
		return err
	}

	s.logger.Printf("Pushed match %s (%s)", match.ID, match.Status)
	return nil
}

// SyncPendingChanges implements Syncer.SyncPendingChanges.
func (s *syncer) SyncPendingChanges(ctx context.Context) (*Result, error) {
	if !s.draining.CompareAndSwap(false, true) {
		return nil, ErrSyncBusy
	}
	defer s.draining.Store(false)

	if err := s.gate(ctx); err != nil {
		return nil, err
	}

	items, err := s.db.ListPendingQueue(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{Success: true, Timestamp: time.Now().UTC()}
	if len(items) == 0 {
		return result, nil
	}

	// Collapse to the newest item per row. Pushes read the current
	// local row, so the elders carry nothing the winner does not; they
	// are removed together when the winner lands.
	type target struct {
		kind model.EntityKind
		id   string
	}
	winners := make(map[target]*model.SyncQueueItem)
	elders := make(map[target][]string)
	for _, item := range items {
		key := target{item.Entity, item.EntityID}
		if prev, ok := winners[key]; ok {
			elders[key] = append(elders[key], prev.ID)
		}
		winners[key] = item
	}

	order := make([]*model.SyncQueueItem, 0, len(winners))
	for _, item := range winners {
		order = append(order, item)
	}
	sort.Slice(order, func(i, j int) bool {
		ri, rj := kindRank[order[i].Entity], kindRank[order[j].Entity]
		if ri != rj {
			return ri < rj
		}
		if !order[i].CreatedAt.Equal(order[j].CreatedAt) {
			return order[i].CreatedAt.Before(order[j].CreatedAt)
		}
		return order[i].ID < order[j].ID
	})

	pushed, inert, failed := 0, 0, 0
	touched := make(map[string]bool)

	for _, item := range order {
		err := s.pushItem(ctx, item)
		if errors.Is(err, errInert) {
			s.logger.Printf("Dropping inert %s %s %s: local row gone", item.Op, item.Entity, item.EntityID)
			err = nil
			inert++
		} else if err == nil {
			pushed++
			result.Synced++
			if item.TripID != "" {
				touched[item.TripID] = true
			}
			if item.Entity == model.EntityMatch && item.Op != model.OpDelete {
				seq, seqErr := s.db.LatestSeqForMatch(ctx, item.EntityID)
				if seqErr != nil {
					return nil, seqErr
				}
				if seq > 0 {
					if _, seqErr := s.db.MarkEventsSynced(ctx, item.EntityID, seq); seqErr != nil {
						return nil, seqErr
					}
				}
			}
		}

		if err != nil {
			s.logger.Printf("WARNING: Failed to push %s %s %s: %v", item.Op, item.Entity, item.EntityID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s %s: %v", item.Op, item.Entity, item.EntityID, err))
			failed++
			if markErr := s.db.MarkItemFailed(ctx, item.ID, err.Error(), time.Now().UTC()); markErr != nil {
				return nil, markErr
			}
			continue
		}

		key := target{item.Entity, item.EntityID}
		remove := append([]string{item.ID}, elders[key]...)
		if err := s.db.RemoveQueueItems(ctx, remove...); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	for tripID := range touched {
		if err := s.db.SetLastPush(ctx, tripID, now); err != nil {
			s.logger.Printf("WARNING: Failed to bookmark trip %s: %v", tripID, err)
		}
	}

	result.Success = len(result.Errors) == 0
	s.logger.Printf("Drain complete: pushed=%d inert=%d failed=%d", pushed, inert, failed)
	return result, nil
}

// pushItem materializes one queue item from its local row and pushes it.
func (s *syncer) pushItem(ctx context.Context, item *model.SyncQueueItem) error {
	if item.Op == model.OpDelete {
		return s.remote.Delete(ctx, item.Entity, item.EntityID)
	}

	entity, err := s.readLocal(ctx, item.Entity, item.EntityID)
	if err != nil {
		if store.IsNotFound(err) {
			return errInert
		}
		return err
	}

	row, err := remote.ToRemote(item.Entity, entity)
	if err != nil {
		return err
	}
	return s.remote.Upsert(ctx, item.Entity, row)
}

// readLocal loads the current local row for a queue item.
func (s *syncer) readLocal(ctx context.Context, kind model.EntityKind, id string) (interface{}, error) {
	switch kind {
	case model.EntityTrip:
		return s.db.GetTrip(ctx, id)
	case model.EntityPlayer:
		return s.db.GetPlayer(ctx, id)
	case model.EntityTeam:
		return s.db.GetTeam(ctx, id)
	case model.EntityTeamMember:
		return s.db.GetTeamMember(ctx, id)
	case model.EntitySession:
		return s.db.GetSession(ctx, id)
	case model.EntityMatch:
		return s.db.GetMatch(ctx, id)
	case model.EntityHoleResult:
		return s.db.GetHoleResult(ctx, id)
	case model.EntityCourse:
		return s.db.GetCourse(ctx, id)
	case model.EntityTeeSet:
		return s.db.GetTeeSet(ctx, id)
	case model.EntityDuesLineItem:
		return s.db.GetDuesLineItem(ctx, id)
	case model.EntityPaymentRecord:
		return s.db.GetPaymentRecord(ctx, id)
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

// applyLocal writes one pulled entity through the store's upsert paths.
// Hole results take the plain put path: pulled rows carry their own
// match state and must not append local scoring events.
func (s *syncer) applyLocal(ctx context.Context, kind model.EntityKind, entity interface{}) error {
	switch kind {
	case model.EntityTrip:
		return s.db.UpsertTrip(ctx, entity.(*model.Trip))
	case model.EntityPlayer:
		return s.db.UpsertPlayer(ctx, entity.(*model.Player))
	case model.EntityTeam:
		return s.db.UpsertTeam(ctx, entity.(*model.Team))
	case model.EntityTeamMember:
		return s.db.UpsertTeamMember(ctx, entity.(*model.TeamMember))
	case model.EntitySession:
		return s.db.UpsertSession(ctx, entity.(*model.Session))
	case model.EntityMatch:
		return s.db.UpsertMatch(ctx, entity.(*model.Match))
	case model.EntityHoleResult:
		return s.db.UpsertHoleResult(ctx, entity.(*model.HoleResult))
	case model.EntityCourse:
		return s.db.UpsertCourse(ctx, entity.(*model.Course))
	case model.EntityTeeSet:
		return s.db.UpsertTeeSet(ctx, entity.(*model.TeeSet))
	case model.EntityDuesLineItem:
		return s.db.UpsertDuesLineItem(ctx, entity.(*model.DuesLineItem))
	case model.EntityPaymentRecord:
		return s.db.UpsertPaymentRecord(ctx, entity.(*model.PaymentRecord))
	}
	return fmt.Errorf("unknown entity kind %q", kind)
}

// DeleteMatch implements Syncer.DeleteMatch.
func (s *syncer) DeleteMatch(ctx context.Context, matchID string, syncNow bool) error {
	match, err := s.db.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}

	if err := s.db.DeleteMatchCascade(ctx, matchID); err != nil {
		return err
	}

	item := model.NewSyncQueueItem(model.EntityMatch, matchID, model.OpDelete, match.TripID)
	if err := s.db.EnqueueSync(ctx, item); err != nil {
		return fmt.Errorf("failed to queue remote delete: %w", err)
	}
	s.logger.Printf("Deleted match %s locally", matchID)

	if !syncNow {
		return nil
	}

	pushErr := s.gate(ctx)
	if pushErr == nil {
		pushErr = s.remote.Delete(ctx, model.EntityMatch, matchID)
	}
	if pushErr != nil {
		// The delete stays queued; a later drain finishes the job.
		s.logger.Printf("WARNING: Remote delete of match %s deferred: %v", matchID, pushErr)
		if err := s.db.MarkItemFailed(ctx, item.ID, pushErr.Error(), time.Now().UTC()); err != nil {
			s.logger.Printf("WARNING: Failed to mark queue item failed: %v", err)
		}
		return nil
	}

	if err := s.db.RemoveQueueItems(ctx, item.ID); err != nil {
		return err
	}
	s.logger.Printf("Deleted match %s remotely", matchID)
	return nil
}

// DeleteTrip implements Syncer.DeleteTrip.
func (s *syncer) DeleteTrip(ctx context.Context, tripID string) (*store.CascadeResult, error) {
	if _, err := s.db.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}

	// Best effort remote delete first. The remote schema cascades, so
	// one statement removes the trip's whole subtree. If the remote is
	// unreachable the local cascade still proceeds; the remote copy
	// stays behind for a connected peer to delete.
	remoteErr := s.gate(ctx)
	if remoteErr == nil {
		remoteErr = s.remote.Delete(ctx, model.EntityTrip, tripID)
	}
	if remoteErr != nil {
		s.logger.Printf("WARNING: Remote delete of trip %s failed, continuing locally: %v", tripID, remoteErr)
	}

	res, err := s.db.DeleteTripCascade(ctx, tripID)
	if err != nil {
		return nil, err
	}

	s.logger.Printf("Deleted trip %s: %d rows, %d events, %d queue items purged",
		tripID, res.Rows(), res.Events, res.QueuePurged)
	return res, nil
}
