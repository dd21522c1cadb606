package relay

import (
	"sync"

	"github.com/NicolasHaas/mandichat/pkg/model"
)

// SessionManager maps connections to their user sessions.
type SessionManager struct {
	mu              sync.RWMutex
	sessions        map[ConnID]*model.UserSession
	defaultLanguage string
}

// NewSessionManager creates a session manager that assigns defaultLanguage to new sessions.
func NewSessionManager(defaultLanguage string) *SessionManager {
	return &SessionManager{
		sessions:        make(map[ConnID]*model.UserSession),
		defaultLanguage: model.LanguageOrDefault(defaultLanguage),
	}
}

// Open creates the session for conn, replacing any existing one.
// The language is reset to the default.
func (sm *SessionManager) Open(conn ConnID, userID, roomID string) model.UserSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sess := &model.UserSession{
		UserID:   userID,
		RoomID:   roomID,
		Language: sm.defaultLanguage,
	}
	sm.sessions[conn] = sess
	return *sess
}

// Get returns a copy of the session for conn.
func (sm *SessionManager) Get(conn ConnID) (model.UserSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[conn]
	if !ok {
		return model.UserSession{}, false
	}
	return *s, true
}

// SetLanguage updates the session language. It reports false when conn has no session.
func (sm *SessionManager) SetLanguage(conn ConnID, language string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[conn]
	if !ok {
		return false
	}
	s.Language = language
	return true
}

// ClearRoom forgets the session's current room if it is roomID.
func (sm *SessionManager) ClearRoom(conn ConnID, roomID string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[conn]
	if !ok || s.RoomID != roomID {
		return false
	}
	s.RoomID = ""
	return true
}

// Close removes and returns the session for conn.
func (sm *SessionManager) Close(conn ConnID) (model.UserSession, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[conn]
	if !ok {
		return model.UserSession{}, false
	}
	delete(sm.sessions, conn)
	return *s, true
}

// Count returns the number of active sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
