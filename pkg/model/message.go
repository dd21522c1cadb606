package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const MessageMaxContentLength = 2000

const MessageTypeText = "text"

var ErrMessageContentTooLong = fmt.Errorf("message exceeds %d characters", MessageMaxContentLength)
var ErrMessageContentEmpty = errors.New("message cannot be empty")

// Message is a chat message as relayed to room members. It is never persisted.
//
// The canonical Message built for a send is treated as immutable: per-recipient
// translation works on a copy returned by WithTranslation.
type Message struct {
	ID                    string    `json:"id"`
	RoomID                string    `json:"roomId"`
	SenderID              string    `json:"senderId"`
	Content               string    `json:"content"`
	OriginalLanguage      string    `json:"originalLanguage"`
	Timestamp             time.Time `json:"timestamp"`
	MessageType           string    `json:"messageType"`
	OriginalContent       string    `json:"originalContent,omitempty"`
	Translated            bool      `json:"translated"`
	TranslationConfidence float64   `json:"translationConfidence,omitempty"`
}

// WithTranslation returns a copy of m carrying text as its content, with the original
// content preserved.
func (m Message) WithTranslation(text string, confidence float64) Message {
	out := m
	out.OriginalContent = m.Content
	out.Content = text
	out.Translated = true
	out.TranslationConfidence = confidence
	return out
}

// Validate checks the content of a message about to be relayed.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Content) == "" {
		return ErrMessageContentEmpty
	} else if utf8.RuneCountInString(m.Content) > MessageMaxContentLength {
		return ErrMessageContentTooLong
	}
	return nil
}

// SanitizeText strips control characters from user-supplied text.
// Tabs and line breaks are kept; everything else is left untouched.
func SanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
