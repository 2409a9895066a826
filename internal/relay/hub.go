package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"channel-chat/internal/config"
	"channel-chat/internal/models"
	"channel-chat/internal/store"
)

var (
	ErrClientDisconnected = errors.New("client disconnected")
	ErrChannelNotFound    = errors.New("channel not found")
)

// clientEvent pairs an inbound envelope with the session it came from.
type clientEvent struct {
	client *Client
	event  Event
}

// broadcastRequest carries a pre-encoded frame to every session of one
// channel. Used by out-of-band notifiers such as the directory's
// participantJoined.
type broadcastRequest struct {
	channelID string
	payload   []byte
}

// Hub tracks the live sessions of every channel and fans events out to
// them. All session bookkeeping happens on the Run goroutine, so the
// maps need no locking; store mutations additionally serialize on the
// store's own lock. Within one channel, broadcast order equals
// persistence order because both happen inline on this goroutine.
type Hub struct {
	store *store.Store
	cfg   config.RelayConfig

	// sessions maps channel id to the set of Active sessions. An
	// entry is removed when its set becomes empty; that is pure
	// bookkeeping and never deletes the channel itself.
	sessions map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	inbound    chan clientEvent
	broadcasts chan broadcastRequest

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub returns a hub reading and writing channel state through st.
func NewHub(st *store.Store, cfg config.RelayConfig) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		store:      st,
		cfg:        cfg,
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan clientEvent),
		broadcasts: make(chan broadcastRequest, 16),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run processes session registration and client events until Stop is
// called. Call it on its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case ev := <-h.inbound:
			h.handleEvent(ev)

		case req := <-h.broadcasts:
			h.broadcast(req.channelID, req.payload)

		case <-h.ctx.Done():
			slog.Info("relay hub shutting down")
			return
		}
	}
}

// Stop shuts the hub down and disconnects every session.
func (h *Hub) Stop() {
	h.cancel()
}

// ParticipantJoined broadcasts a membership change to the channel's
// live sessions. Called by the directory after a first-time join is
// persisted.
func (h *Hub) ParticipantJoined(channelID string, user models.User) {
	payload, err := encodeEvent(EventParticipantJoined, user)
	if err != nil {
		slog.Error("failed to encode participantJoined", "channelID", channelID, "error", err)
		return
	}
	select {
	case h.broadcasts <- broadcastRequest{channelID: channelID, payload: payload}:
	case <-h.ctx.Done():
	case <-time.After(5 * time.Second):
		slog.Warn("timeout queueing participantJoined broadcast", "channelID", channelID)
	}
}

func (h *Hub) registerClient(client *Client) {
	set := h.sessions[client.channelID]
	if set == nil {
		set = make(map[*Client]bool)
		h.sessions[client.channelID] = set
	}
	set[client] = true
	slog.Debug("session registered", "clientID", client.id, "channelID", client.channelID)
}

func (h *Hub) unregisterClient(client *Client) {
	set, ok := h.sessions[client.channelID]
	if !ok || !set[client] {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.sessions, client.channelID)
	}
	client.closeSendChannel()
	slog.Debug("session unregistered", "clientID", client.id, "channelID", client.channelID)
}

func (h *Hub) handleEvent(ev clientEvent) {
	switch ev.event.Event {
	case EventGetInitialData:
		h.sendInitialData(ev.client)
	case EventSendMessage:
		h.publish(ev.client, ev.event.Data)
	case EventEditMessage:
		h.editMessage(ev.client, ev.event.Data)
	case EventDeleteMessage:
		h.deleteMessage(ev.client, ev.event.Data)
	default:
		ev.client.sendError("UNKNOWN_EVENT", "unsupported event: "+ev.event.Event.String())
	}
}

// sendInitialData unicasts the channel's current snapshot to the
// requesting session only.
func (h *Hub) sendInitialData(client *Client) {
	ch, ok := h.store.Get(client.channelID)
	if !ok {
		client.sendError("CHANNEL_NOT_FOUND", "channel no longer exists")
		return
	}

	messages := ch.Messages
	if limit := h.cfg.SnapshotLimit; limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	payload, err := encodeEvent(EventInitialData, InitialData{
		Messages:     messages,
		Participants: ch.Participants,
	})
	if err != nil {
		slog.Error("failed to encode initialData", "channelID", client.channelID, "error", err)
		return
	}
	client.enqueue(payload)
}

// publish appends the message to the channel's persisted log, then
// broadcasts it to every live session. Persistence strictly precedes
// the broadcast so a snapshot requested after a broadcast always
// contains the message.
func (h *Hub) publish(client *Client, data json.RawMessage) {
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		client.sendError("INVALID_MESSAGE", "invalid message payload")
		return
	}
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}
	if err := msg.Validate(); err != nil {
		client.sendError("INVALID_MESSAGE", err.Error())
		return
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	duplicate := false
	err := h.store.Update(func(channels map[string]*models.Channel) error {
		ch, ok := channels[client.channelID]
		if !ok {
			return ErrChannelNotFound
		}
		if ch.FindMessage(msg.ID) >= 0 {
			duplicate = true
			return store.ErrNoChange
		}
		ch.Messages = append(ch.Messages, msg)
		return nil
	})
	if err != nil {
		slog.Error("failed to persist message", "channelID", client.channelID, "messageID", msg.ID, "error", err)
		client.sendError("STORAGE_FAILURE", "failed to save message")
		return
	}
	if duplicate {
		slog.Debug("duplicate message suppressed", "channelID", client.channelID, "messageID", msg.ID)
		return
	}

	payload, err := encodeEvent(EventMessage, msg)
	if err != nil {
		slog.Error("failed to encode message", "channelID", client.channelID, "error", err)
		return
	}
	h.broadcast(client.channelID, payload)
}

// editMessage replaces a message's content in the store and broadcasts
// the updated message. Only the author may edit.
func (h *Hub) editMessage(client *Client, data json.RawMessage) {
	var req EditMessageData
	if err := json.Unmarshal(data, &req); err != nil || req.ID == "" || req.Content == "" {
		client.sendError("INVALID_MESSAGE", "invalid edit payload")
		return
	}

	var edited models.Message
	err := h.store.Update(func(channels map[string]*models.Channel) error {
		ch, ok := channels[client.channelID]
		if !ok {
			return ErrChannelNotFound
		}
		i := ch.FindMessage(req.ID)
		if i < 0 {
			return errors.New("message not found")
		}
		if ch.Messages[i].UserID != req.UserID {
			return errors.New("only the author can edit a message")
		}
		ch.Messages[i].Content = req.Content
		ch.Messages[i].Edited = true
		edited = ch.Messages[i]
		return nil
	})
	if err != nil {
		client.sendError("EDIT_REJECTED", err.Error())
		return
	}

	payload, err := encodeEvent(EventMessageEdited, edited)
	if err != nil {
		slog.Error("failed to encode messageEdited", "channelID", client.channelID, "error", err)
		return
	}
	h.broadcast(client.channelID, payload)
}

// deleteMessage removes a message from the log and broadcasts the
// deletion. Only the author may delete.
func (h *Hub) deleteMessage(client *Client, data json.RawMessage) {
	var req DeleteMessageData
	if err := json.Unmarshal(data, &req); err != nil || req.ID == "" {
		client.sendError("INVALID_MESSAGE", "invalid delete payload")
		return
	}

	err := h.store.Update(func(channels map[string]*models.Channel) error {
		ch, ok := channels[client.channelID]
		if !ok {
			return ErrChannelNotFound
		}
		i := ch.FindMessage(req.ID)
		if i < 0 {
			return errors.New("message not found")
		}
		if ch.Messages[i].UserID != req.UserID {
			return errors.New("only the author can delete a message")
		}
		ch.Messages = append(ch.Messages[:i], ch.Messages[i+1:]...)
		return nil
	})
	if err != nil {
		client.sendError("DELETE_REJECTED", err.Error())
		return
	}

	payload, err := encodeEvent(EventMessageDeleted, DeleteMessageData{ID: req.ID, UserID: req.UserID})
	if err != nil {
		slog.Error("failed to encode messageDeleted", "channelID", client.channelID, "error", err)
		return
	}
	h.broadcast(client.channelID, payload)
}

// broadcast fans a frame out to every session Active on the channel.
// Delivery is best effort; a session whose send queue is full drops
// the frame rather than stalling the hub.
func (h *Hub) broadcast(channelID string, payload []byte) {
	for client := range h.sessions[channelID] {
		client.enqueue(payload)
	}
}
