package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/fairwaylabs/caddie/internal/model"
)

// Handler formats domain events as dashboard messages. It bridges
// between the daemon's loops, the live consumer, and the WebSocket
// server; callers hand it domain values and it does the wire shaping.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates an event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// OnQueueStatus broadcasts current sync queue counts
func (h *Handler) OnQueueStatus(counts model.QueueCounts) {
	data := QueueStatusData{
		Pending: counts.Pending,
		Failed:  counts.Failed,
		Total:   counts.Total,
	}
	h.broadcast(MessageTypeQueueStatus, data)
}

// OnScoringEvent broadcasts one appended scoring event. Hole events
// carry their hole number and winner; other payloads stay opaque.
func (h *Handler) OnScoringEvent(event *model.ScoringEvent) {
	data := ScoringEventData{
		Seq:     event.Seq,
		Type:    string(event.Type),
		TripID:  event.TripID,
		MatchID: event.MatchID,
	}
	if event.Type == model.EventHoleScored || event.Type == model.EventHoleAmended {
		if p, err := event.HoleScored(); err == nil {
			data.HoleNumber = p.HoleNumber
			data.Winner = string(p.Winner)
		}
	}
	h.broadcast(MessageTypeScoringEvent, data)
}

// OnSyncResult broadcasts the outcome of a drain or trip push. trigger
// names what started the sync: drain, sweep, manual, trip.
func (h *Handler) OnSyncResult(trigger string, synced, failed int, duration time.Duration, syncErr error) {
	data := SyncResultData{
		Trigger:  trigger,
		Synced:   synced,
		Failed:   failed,
		Duration: duration.Round(time.Millisecond).String(),
	}
	if syncErr != nil {
		data.Error = syncErr.Error()
	}
	h.broadcast(MessageTypeSyncResult, data)
}

// OnMatchScore broadcasts a derived match score snapshot
func (h *Handler) OnMatchScore(data MatchScoreData) {
	h.broadcast(MessageTypeMatchScore, data)
}

func (h *Handler) broadcast(typ MessageType, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
