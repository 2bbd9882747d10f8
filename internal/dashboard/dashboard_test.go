package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/fairwaylabs/caddie/internal/model"
)

func testConfig() *Config {
	return &Config{
		Port:   0, // Use random available port
		Logger: log.New(io.Discard, "", 0),
	}
}

func startTestServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(testConfig())
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	return server
}

// dialTestClient connects a websocket client and consumes the welcome
// message.
func dialTestClient(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	_, _, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := startTestServer(t)

	addr := server.GetAddr()
	if addr == "" {
		t.Fatal("Server address is empty")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := startTestServer(t)
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeWelcome {
		t.Errorf("Expected welcome message type %s, got %s", MessageTypeWelcome, msg.Type)
	}
}

func TestMultipleClients(t *testing.T) {
	server := startTestServer(t)
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	for i := 0; i < numClients; i++ {
		dialTestClient(t, ctx, server)
	}

	if count := server.ClientCount(); count != numClients {
		t.Errorf("Expected %d clients, got %d", numClients, count)
	}
}

func TestMessageBroadcast(t *testing.T) {
	server := startTestServer(t)
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	testData := MatchScoreData{
		MatchID:   "m1",
		SessionID: "s1",
		TripID:    "t1",
		Status:    "inProgress",
		Score:     "A 2 UP",
		Thru:      7,
		WinsA:     4,
		WinsB:     2,
		Halved:    1,
	}

	dataJSON, _ := json.Marshal(testData)
	server.Broadcast(Message{
		Type:      MessageTypeMatchScore,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})

	received := readMessage(t, ctx, conn)
	if received.Type != MessageTypeMatchScore {
		t.Errorf("Expected message type %s, got %s", MessageTypeMatchScore, received.Type)
	}

	var receivedData MatchScoreData
	if err := json.Unmarshal(received.Data, &receivedData); err != nil {
		t.Fatalf("Failed to unmarshal match data: %v", err)
	}
	if receivedData.MatchID != testData.MatchID {
		t.Errorf("Expected match ID %s, got %s", testData.MatchID, receivedData.MatchID)
	}
	if receivedData.Score != "A 2 UP" {
		t.Errorf("Expected score A 2 UP, got %s", receivedData.Score)
	}
}

func TestHandlerQueueStatus(t *testing.T) {
	server := startTestServer(t)
	defer server.Stop()

	handler := NewHandler(server, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	handler.OnQueueStatus(model.QueueCounts{Pending: 4, Failed: 1, Total: 5})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeQueueStatus {
		t.Errorf("Expected message type %s, got %s", MessageTypeQueueStatus, msg.Type)
	}

	var data QueueStatusData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal queue data: %v", err)
	}
	if data.Pending != 4 || data.Failed != 1 || data.Total != 5 {
		t.Errorf("Queue data mismatch: got %+v", data)
	}
}

func TestHandlerScoringEvent(t *testing.T) {
	server := startTestServer(t)
	defer server.Stop()

	handler := NewHandler(server, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	event, err := model.NewHoleScoredEvent("trip1", "match1", model.HoleScoredPayload{
		HoleNumber: 7,
		Winner:     model.HoleTeamB,
	})
	if err != nil {
		t.Fatalf("failed to build event: %v", err)
	}
	event.Seq = 12

	handler.OnScoringEvent(event)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeScoringEvent {
		t.Errorf("Expected message type %s, got %s", MessageTypeScoringEvent, msg.Type)
	}

	var data ScoringEventData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal event data: %v", err)
	}
	if data.Seq != 12 {
		t.Errorf("Expected seq 12, got %d", data.Seq)
	}
	if data.HoleNumber != 7 {
		t.Errorf("Expected hole 7, got %d", data.HoleNumber)
	}
	if data.Winner != string(model.HoleTeamB) {
		t.Errorf("Expected winner teamB, got %s", data.Winner)
	}
	if data.MatchID != "match1" {
		t.Errorf("Expected match1, got %s", data.MatchID)
	}
}

func TestHandlerSyncResult(t *testing.T) {
	server := startTestServer(t)
	defer server.Stop()

	handler := NewHandler(server, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)

	handler.OnSyncResult("drain", 9, 1, 1500*time.Millisecond, nil)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSyncResult {
		t.Errorf("Expected message type %s, got %s", MessageTypeSyncResult, msg.Type)
	}

	var data SyncResultData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal sync data: %v", err)
	}
	if data.Trigger != "drain" {
		t.Errorf("Expected trigger drain, got %s", data.Trigger)
	}
	if data.Synced != 9 || data.Failed != 1 {
		t.Errorf("Expected 9 synced / 1 failed, got %d / %d", data.Synced, data.Failed)
	}
	if data.Error != "" {
		t.Errorf("Expected no error, got %s", data.Error)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := startTestServer(t)
	defer server.Stop()

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("Failed to GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("Expected status ok, got %s", body.Status)
	}
	if body.Clients != 0 {
		t.Errorf("Expected 0 clients, got %d", body.Clients)
	}
}

func TestRootServesScoreboard(t *testing.T) {
	server := startTestServer(t)
	defer server.Stop()

	resp, err := http.Get("http://" + server.GetAddr() + "/")
	if err != nil {
		t.Fatalf("Failed to GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "Caddie Scoreboard") {
		t.Error("Expected scoreboard page in response")
	}
}
