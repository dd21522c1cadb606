package model

// ---- Inbound payloads ----

// JoinRoom is the payload of a join_room event.
type JoinRoom struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Language string `json:"language,omitempty"` // optional initial preference
}

// SendMessage is the payload of a send_message event.
type SendMessage struct {
	RoomID   string `json:"roomId"`
	Message  string `json:"message"`
	Language string `json:"language"`
}

// Typing is the payload of a typing event.
type Typing struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// UpdateLanguage is the payload of an update_language event.
type UpdateLanguage struct {
	Language string `json:"language"`
}

// LeaveRoom is the payload of a leave_room event.
type LeaveRoom struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// ---- Outbound payloads ----

// UserPresence is sent with user_joined and user_left.
type UserPresence struct {
	UserID string `json:"userId"`
}

// MessageReceived is sent with message_received.
type MessageReceived struct {
	Message    Message `json:"message"`
	Translated bool    `json:"translated"`
}

// TypingIndicator is sent with typing_indicator.
type TypingIndicator struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// ErrorEvent is sent with error.
type ErrorEvent struct {
	Message string `json:"message"`
}
