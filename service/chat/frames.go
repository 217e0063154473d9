package chat

import (
	"encoding/json"
	"time"

	"ChatRelay/module/chat/model"
	"ChatRelay/tools/errs"
)

// Inbound event names.
const (
	EventRegisterPushToken = "registerPushToken"
	EventJoinRoom          = "joinRoom"
	EventSendMessage       = "sendMessage"
	EventTyping            = "typing"
)

// Outbound event names.
const (
	EventChatHistory = "chatHistory"
	EventMessage     = "message"
	EventOnlineUsers = "onlineUsers"
	EventUserTyping  = "userTyping"
)

// EventFrame is the wire unit in both directions: an event name plus its
// payload. Inbound payloads stay loosely typed until the handler decodes them.
type EventFrame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// ParseFrameJSON decodes one inbound frame. Unknown fields are dropped.
func ParseFrameJSON(raw []byte) (*EventFrame, error) {
	frame := &EventFrame{}
	if err := json.Unmarshal(raw, frame); err != nil {
		return nil, errs.WrapMsg(err, "unmarshal frame")
	}
	if frame.Event == "" {
		return nil, errs.ErrValidation.WrapMsg("missing event name")
	}
	return frame, nil
}

// ---- inbound payloads ----

type RegisterPushTokenPayload struct {
	PushToken string `json:"pushToken"`
}

type JoinRoomPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type SendMessagePayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	Message  string `json:"message"`
}

type TypingPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	IsTyping bool   `json:"isTyping"`
}

// ---- outbound payloads ----

type MessagePayload struct {
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	IsSystem  bool      `json:"isSystem,omitempty"`
}

type OnlineUser struct {
	Username     string `json:"username"`
	Room         string `json:"room"`
	ConnectionID string `json:"connectionId"`
}

type UserTypingPayload struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func marshalFrame(event string, data any) []byte {
	b, err := json.Marshal(outboundFrame{Event: event, Data: data})
	if err != nil {
		// Outbound payloads are plain structs; this cannot fail for them.
		return nil
	}
	return b
}

// BuildMessageFrame carries one room-wide chat or system message.
// The timestamp must be the store-assigned one, never a client clock.
func BuildMessageFrame(username, body string, ts time.Time, isSystem bool) []byte {
	return marshalFrame(EventMessage, MessagePayload{
		Username:  username,
		Message:   body,
		Timestamp: ts,
		IsSystem:  isSystem,
	})
}

// BuildOnlineUsersFrame carries the refreshed member view of a room.
func BuildOnlineUsersFrame(members []Session) []byte {
	users := make([]OnlineUser, 0, len(members))
	for _, s := range members {
		users = append(users, OnlineUser{
			Username:     s.Username,
			Room:         s.Room,
			ConnectionID: s.ConnID,
		})
	}
	return marshalFrame(EventOnlineUsers, users)
}

// BuildChatHistoryFrame carries the private backlog sent to a joiner,
// oldest first.
func BuildChatHistoryFrame(messages []model.ChatMessage) []byte {
	history := make([]MessagePayload, 0, len(messages))
	for _, m := range messages {
		history = append(history, MessagePayload{
			Username:  m.Username,
			Message:   m.Body,
			Timestamp: m.CreatedAt,
		})
	}
	return marshalFrame(EventChatHistory, history)
}

func BuildUserTypingFrame(username string, isTyping bool) []byte {
	return marshalFrame(EventUserTyping, UserTypingPayload{
		Username: username,
		IsTyping: isTyping,
	})
}
