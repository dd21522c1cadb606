// Package model defines the core domain types for the mandi chat relay.
package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultLanguage is assigned to every session until the client says otherwise.
	DefaultLanguage = "en"

	// ConfidenceThreshold is the cutoff above which a translation replaces the original text.
	ConfidenceThreshold = 0.3

	MaxRoomIDLength = 128
	MaxUserIDLength = 128
)

var ErrRoomIDEmpty = errors.New("roomId must not be empty")
var ErrUserIDEmpty = errors.New("userId must not be empty")
var ErrRoomIDTooLong = fmt.Errorf("roomId must not exceed %d characters", MaxRoomIDLength)
var ErrUserIDTooLong = fmt.Errorf("userId must not exceed %d characters", MaxUserIDLength)

// ValidateRoomID checks that a room identifier is present and bounded.
func ValidateRoomID(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return ErrRoomIDEmpty
	}
	if utf8.RuneCountInString(roomID) > MaxRoomIDLength {
		return ErrRoomIDTooLong
	}
	return nil
}

// ValidateUserID checks that a caller-supplied user identity is present and bounded.
// Identities are not authenticated; they are trusted as given.
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserIDEmpty
	}
	if utf8.RuneCountInString(userID) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	return nil
}
