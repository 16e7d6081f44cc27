package ws

import (
	"encoding/json"
	"time"
)

// Wire event names. These are the published socket contract and match what
// the web client emits and listens for.
const (
	EventAddUser         = "addUser"
	EventJoinRoom        = "join_room"
	EventSendMessage     = "send_message"
	EventReceiveMessage  = "receive_message"
	EventNewNotification = "new_notification"
)

// Frame is the envelope for every socket message in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type AddUserPayload struct {
	UserID string `json:"userId"`
}

type JoinRoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// MessagePayload is the send_message/receive_message body. Field names keep
// the client contract; receiverId and senderName are routing metadata added
// by the sender on top of the persisted message.
type MessagePayload struct {
	ID             string    `json:"_id"`
	ConversationID string    `json:"conversationId"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	ReceiverID     string    `json:"receiverId,omitempty"`
	SenderName     string    `json:"senderName,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type NotificationPayload struct {
	SenderName     string    `json:"senderName"`
	Text           string    `json:"text"`
	ConversationID string    `json:"conversationId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// EncodeFrame marshals an event with its payload into a wire frame.
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
