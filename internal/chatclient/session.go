package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"market-chat/internal/transport/httpdto"
	"market-chat/internal/ws"
)

// State of a chat session's connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedIdle
	StateConnectedInRoom
)

var ErrNotConnected = errors.New("chatclient: not connected")

// Session owns one live connection and one (optional) open conversation
// view. It registers presence on connect, joins rooms on conversation
// selection and reconciles incoming events into the transcript.
type Session struct {
	api      *API
	wsURL    string
	userID   string
	userName string

	mu            sync.Mutex
	writeMu       sync.Mutex
	state         State
	conn          *websocket.Conn
	conversations []httpdto.ConversationResponse
	current       *httpdto.ConversationResponse
	input         string

	transcript *Transcript

	// onNotification fires for notifications that survive suppression,
	// i.e. alerts about conversations other than the one being viewed.
	onNotification func(ws.NotificationPayload)
}

func NewSession(api *API, wsURL, userID, userName string) *Session {
	return &Session{
		api:        api,
		wsURL:      wsURL,
		userID:     userID,
		userName:   userName,
		transcript: NewTranscript(),
	}
}

func (s *Session) OnNotification(fn func(ws.NotificationPayload)) {
	s.mu.Lock()
	s.onNotification = fn
	s.mu.Unlock()
}

func (s *Session) API() *API {
	return s.api
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Transcript() *Transcript {
	return s.transcript
}

func (s *Session) Conversations() []httpdto.ConversationResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]httpdto.ConversationResponse, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Connect dials the socket and registers presence for the session's user.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	dialURL := s.wsURL + "?token=" + s.api.Token
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnectedIdle
	s.mu.Unlock()

	if err := s.emit(ws.EventAddUser, ws.AddUserPayload{UserID: s.userID}); err != nil {
		s.Close()
		return err
	}

	go s.readLoop(conn)
	return nil
}

// LoadConversations refreshes the conversation list.
func (s *Session) LoadConversations(ctx context.Context) error {
	items, err := s.api.Conversations(ctx, s.userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conversations = items
	s.mu.Unlock()
	return nil
}

// Open selects a conversation (by list entry or deep link): joins its room
// and loads the full history into the transcript.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if s.state == StateDisconnected || s.state == StateConnecting {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.mu.Unlock()

	if err := s.emit(ws.EventJoinRoom, ws.JoinRoomPayload{ConversationID: conversationID}); err != nil {
		return err
	}

	history, err := s.api.Messages(ctx, conversationID)
	if err != nil {
		return err
	}
	s.transcript.Reset(history)

	s.mu.Lock()
	conv := s.findConversation(conversationID)
	if conv == nil {
		conv = &httpdto.ConversationResponse{ID: conversationID}
	}
	s.current = conv
	s.state = StateConnectedInRoom
	s.mu.Unlock()
	return nil
}

// SetInput stores the draft text.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

// Input returns the current draft text.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Send submits the current draft. The input clears immediately; if
// persistence fails the draft is restored so the user can retry, and
// nothing is echoed into the transcript. On success the persisted message
// is appended locally and broadcast to the room.
func (s *Session) Send(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnectedInRoom || s.current == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	text := s.input
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return nil
	}
	s.input = ""
	conv := *s.current
	s.mu.Unlock()

	saved, err := s.api.SendMessage(ctx, conv.ID, s.userID, text)
	if err != nil {
		s.mu.Lock()
		s.input = text
		s.mu.Unlock()
		return err
	}

	s.transcript.Add(saved)

	receiverID := ""
	for _, m := range conv.Members {
		if m != s.userID {
			receiverID = m
		}
	}

	return s.emit(ws.EventSendMessage, ws.MessagePayload{
		ID:             saved.ID,
		ConversationID: saved.ConversationID,
		Sender:         saved.Sender,
		Text:           saved.Text,
		ReceiverID:     receiverID,
		SenderName:     s.userName,
		CreatedAt:      saved.CreatedAt,
	})
}

// Leave exits the currently open conversation and drops it from the local
// list. Local state is only mutated once the server confirms.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	conversationID := s.current.ID
	s.mu.Unlock()

	if _, err := s.api.Leave(ctx, conversationID); err != nil {
		return err
	}

	s.mu.Lock()
	kept := s.conversations[:0]
	for _, c := range s.conversations {
		if c.ID != conversationID {
			kept = append(kept, c)
		}
	}
	s.conversations = kept
	s.current = nil
	if s.state == StateConnectedInRoom {
		s.state = StateConnectedIdle
	}
	s.mu.Unlock()
	return nil
}

// Close tears the connection down; the server unregisters presence on
// disconnect.
func (s *Session) Close() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.current = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Session) emit(event string, data any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	payload, err := ws.EncodeFrame(event, data)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame ws.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}

		switch frame.Event {
		case ws.EventReceiveMessage:
			var p ws.MessagePayload
			if err := json.Unmarshal(frame.Data, &p); err != nil {
				continue
			}
			s.handleReceiveMessage(p)
		case ws.EventNewNotification:
			var p ws.NotificationPayload
			if err := json.Unmarshal(frame.Data, &p); err != nil {
				continue
			}
			s.handleNotification(p)
		}
	}
}

func (s *Session) handleReceiveMessage(p ws.MessagePayload) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current == nil || current.ID != p.ConversationID {
		return
	}
	s.transcript.Add(httpdto.MessageResponse{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		Sender:         p.Sender,
		Text:           p.Text,
		CreatedAt:      p.CreatedAt,
	})
}

func (s *Session) handleNotification(p ws.NotificationPayload) {
	s.mu.Lock()
	current := s.current
	fn := s.onNotification
	s.mu.Unlock()

	// Already looking at that conversation; the room echo covers it.
	if current != nil && current.ID == p.ConversationID {
		return
	}
	if fn != nil {
		fn(p)
	}
}

// findConversation must be called with s.mu held.
func (s *Session) findConversation(id string) *httpdto.ConversationResponse {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			c := s.conversations[i]
			return &c
		}
	}
	return nil
}
