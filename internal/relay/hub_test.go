package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"channel-chat/internal/config"
	"channel-chat/internal/directory"
	"channel-chat/internal/models"
	"channel-chat/internal/store"
)

func newTestRelay(t *testing.T, snapshotLimit int) (*httptest.Server, *directory.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.New(filepath.Join(t.TempDir(), "channels.json"))
	hub := NewHub(st, config.RelayConfig{MaxMessageSize: 1 << 20, SnapshotLimit: snapshotLimit})
	go hub.Run()
	t.Cleanup(hub.Stop)

	dir := directory.NewService(st, hub)

	engine := gin.New()
	engine.GET("/ws", ServeWS(hub, st, NewUpgrader(nil)))
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return srv, dir
}

func dialChannel(t *testing.T, srv *httptest.Server, channelID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?channelId=" + channelID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event EventType, data any) {
	t.Helper()
	payload, err := encodeEvent(event, data)
	if err != nil {
		t.Fatalf("encode %s: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func recvEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		t.Fatalf("decode event %s: %v", frame, err)
	}
	return ev
}

// requestSnapshot runs a getInitialData round trip. Because events are
// processed in order by the hub goroutine, a completed round trip also
// guarantees the session is fully registered.
func requestSnapshot(t *testing.T, conn *websocket.Conn) InitialData {
	t.Helper()
	sendEvent(t, conn, EventGetInitialData, nil)
	ev := recvEvent(t, conn)
	if ev.Event != EventInitialData {
		t.Fatalf("expected initialData, got %s", ev.Event)
	}
	var snap InitialData
	if err := json.Unmarshal(ev.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func textMessage(id, userID, content string) models.Message {
	return models.Message{
		ID:      id,
		Type:    models.MessageTypeText,
		Content: content,
		UserID:  userID,
	}
}

func TestUnknownChannelRejected(t *testing.T) {
	srv, _ := newTestRelay(t, 0)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?channelId=ZZZZZZ"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatalf("expected handshake rejection for unknown channel")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
}

func TestMissingChannelRejected(t *testing.T) {
	srv, _ := newTestRelay(t, 0)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatalf("expected handshake rejection without channelId")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 handshake response, got %+v", resp)
	}
}

func TestMessageFanout(t *testing.T) {
	srv, dir := newTestRelay(t, 0)
	ch, err := dir.Create("Team", models.User{ID: "u1", Username: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	connA := dialChannel(t, srv, ch.ID)
	connB := dialChannel(t, srv, ch.ID)
	requestSnapshot(t, connA)
	requestSnapshot(t, connB)

	sendEvent(t, connA, EventSendMessage, textMessage("m1", "u1", "hello"))

	for _, conn := range []*websocket.Conn{connA, connB} {
		ev := recvEvent(t, conn)
		if ev.Event != EventMessage {
			t.Fatalf("expected message event, got %s", ev.Event)
		}
		var msg models.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if msg.ID != "m1" || msg.Content != "hello" || msg.UserID != "u1" {
			t.Errorf("unexpected broadcast: %+v", msg)
		}
		if msg.Timestamp == 0 {
			t.Errorf("server must fill a missing timestamp")
		}
	}
}

// A snapshot requested after a broadcast was received must already
// contain the broadcast message: persistence precedes fan-out.
func TestWriteBeforeBroadcast(t *testing.T) {
	srv, dir := newTestRelay(t, 0)
	ch, err := dir.Create("Team", models.User{ID: "u1", Username: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	conn := dialChannel(t, srv, ch.ID)
	requestSnapshot(t, conn)

	sendEvent(t, conn, EventSendMessage, textMessage("m1", "u1", "hello"))
	if ev := recvEvent(t, conn); ev.Event != EventMessage {
		t.Fatalf("expected message event, got %s", ev.Event)
	}

	snap := requestSnapshot(t, conn)
	if len(snap.Messages) != 1 || snap.Messages[0].ID != "m1" {
		t.Fatalf("published message missing from snapshot: %+v", snap.Messages)
	}
}

func TestDuplicateMessageSuppressed(t *testing.T) {
	srv, dir := newTestRelay(t, 0)
	ch, err := dir.Create("Team", models.User{ID: "u1", Username: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	conn := dialChannel(t, srv, ch.ID)
	requestSnapshot(t, conn)

	sendEvent(t, conn, EventSendMessage, textMessage("m1", "u1", "hello"))
	sendEvent(t, conn, EventSendMessage, textMessage("m1", "u1", "hello"))

	if ev := recvEvent(t, conn); ev.Event != EventMessage {
		t.Fatalf("expected message event, got %s", ev.Event)
	}

	snap := requestSnapshot(t, conn)
	if len(snap.Messages) != 1 {
		t.Fatalf("duplicate message id must be suppressed, got %d messages", len(snap.Messages))
	}
}

func TestParticipantJoinedBroadcast(t *testing.T) {
	srv, dir := newTestRelay(t, 0)
	ch, err := dir.Create("Team", models.User{ID: "u1", Username: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	conn := dialChannel(t, srv, ch.ID)
	requestSnapshot(t, conn)

	if _, err := dir.Join(ch.Code, models.User{ID: "u2", Username: "Bob", Avatar: "b.png"}); err != nil {
		t.Fatalf("Join: %v", err)
	}

	ev := recvEvent(t, conn)
	if ev.Event != EventParticipantJoined {
		t.Fatalf("expected participantJoined, got %s", ev.Event)
	}
	var user models.User
	if err := json.Unmarshal(ev.Data, &user); err != nil {
		t.Fatalf("decode participant: %v", err)
	}
	if user.ID != "u2" || user.Username != "Bob" {
		t.Errorf("unexpected participant payload: %+v", user)
	}
}

func TestEditMessage(t *testing.T) {
	srv, dir := newTestRelay(t, 0)
	ch, err := dir.Create("Team", models.User{ID: "u1", Username: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	conn := dialChannel(t, srv, ch.ID)
	requestSnapshot(t, conn)

	sendEvent(t, conn, EventSendMessage, textMessage("m1", "u1", "hello"))
	recvEvent(t, conn)

	t.Run("author can edit", func(t *testing.T) {
		sendEvent(t, conn, EventEditMessage, EditMessageData{ID: "m1", UserID: "u1", Content: "hello, edited"})
		ev := recvEvent(t, conn)
		if ev.Event != EventMessageEdited {
			t.Fatalf("expected messageEdited, got %s", ev.Event)
		}
		var msg models.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			t.Fatalf("decode edited message: %v", err)
		}
		if msg.Content != "hello, edited" || !msg.Edited {
			t.Errorf("unexpected edited message: %+v", msg)
		}

		snap := requestSnapshot(t, conn)
		if snap.Messages[0].Content != "hello, edited" || !snap.Messages[0].Edited {
			t.Errorf("edit not persisted: %+v", snap.Messages[0])
		}
	})

	t.Run("non-author rejected", func(t *testing.T) {
		sendEvent(t, conn, EventEditMessage, EditMessageData{ID: "m1", UserID: "u2", Content: "hijacked"})
		ev := recvEvent(t, conn)
		if ev.Event != EventError {
			t.Fatalf("expected error event, got %s", ev.Event)
		}
	})
}

func TestDeleteMessage(t *testing.T) {
	srv, dir := newTestRelay(t, 0)
	ch, err := dir.Create("Team", models.User{ID: "u1", Username: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	conn := dialChannel(t, srv, ch.ID)
	requestSnapshot(t, conn)

	sendEvent(t, conn, EventSendMessage, textMessage("m1", "u1", "hello"))
	recvEvent(t, conn)

	sendEvent(t, conn, EventDeleteMessage, DeleteMessageData{ID: "m1", UserID: "u1"})
	ev := recvEvent(t, conn)
	if ev.Event != EventMessageDeleted {
		t.Fatalf("expected messageDeleted, got %s", ev.Event)
	}
	var del DeleteMessageData
	if err := json.Unmarshal(ev.Data, &del); err != nil {
		t.Fatalf("decode deletion: %v", err)
	}
	if del.ID != "m1" {
		t.Errorf("unexpected deletion payload: %+v", del)
	}

	snap := requestSnapshot(t, conn)
	if len(snap.Messages) != 0 {
		t.Fatalf("deleted message still in snapshot: %+v", snap.Messages)
	}
}

func TestSnapshotLimit(t *testing.T) {
	srv, dir := newTestRelay(t, 2)
	ch, err := dir.Create("Team", models.User{ID: "u1", Username: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	conn := dialChannel(t, srv, ch.ID)
	requestSnapshot(t, conn)

	for _, id := range []string{"m1", "m2", "m3"} {
		sendEvent(t, conn, EventSendMessage, textMessage(id, "u1", "msg "+id))
		recvEvent(t, conn)
	}

	snap := requestSnapshot(t, conn)
	if len(snap.Messages) != 2 {
		t.Fatalf("expected snapshot limited to 2 messages, got %d", len(snap.Messages))
	}
	if snap.Messages[0].ID != "m2" || snap.Messages[1].ID != "m3" {
		t.Errorf("expected the most recent messages, got %+v", snap.Messages)
	}
}

func TestInvalidMessageRejected(t *testing.T) {
	srv, dir := newTestRelay(t, 0)
	ch, err := dir.Create("Team", models.User{ID: "u1", Username: "Alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	conn := dialChannel(t, srv, ch.ID)
	requestSnapshot(t, conn)

	sendEvent(t, conn, EventSendMessage, map[string]any{"type": "carrier-pigeon", "content": "coo"})
	ev := recvEvent(t, conn)
	if ev.Event != EventError {
		t.Fatalf("expected error event for invalid type, got %s", ev.Event)
	}
	var errData ErrorData
	if err := json.Unmarshal(ev.Data, &errData); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if errData.Code != "INVALID_MESSAGE" {
		t.Errorf("unexpected error code %q", errData.Code)
	}
}
