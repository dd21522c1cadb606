package relay

import (
	"sort"
	"sync"
)

// RoomManager tracks which user identities are present in each room.
// It is presence bookkeeping only; delivery goes by transport subscriptions.
type RoomManager struct {
	mu      sync.RWMutex
	members map[string]map[string]bool // roomID -> set of userIDs
}

// NewRoomManager creates an empty room manager.
func NewRoomManager() *RoomManager {
	return &RoomManager{
		members: make(map[string]map[string]bool),
	}
}

// AddMember adds userID to roomID, creating the room if needed.
func (rm *RoomManager) AddMember(roomID, userID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.members[roomID]; !ok {
		rm.members[roomID] = make(map[string]bool)
	}
	rm.members[roomID][userID] = true
}

// RemoveMember removes userID from roomID. The room is deleted once empty,
// and empty reports whether that happened.
func (rm *RoomManager) RemoveMember(roomID, userID string) (empty bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	users, ok := rm.members[roomID]
	if !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(rm.members, roomID)
		return true
	}
	return false
}

// Members returns the user IDs in a room, sorted.
func (rm *RoomManager) Members(roomID string) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	users := rm.members[roomID]
	result := make([]string, 0, len(users))
	for u := range users {
		result = append(result, u)
	}
	sort.Strings(result)
	return result
}

// Has reports whether the room currently exists.
func (rm *RoomManager) Has(roomID string) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, ok := rm.members[roomID]
	return ok
}

// Count returns the number of non-empty rooms.
func (rm *RoomManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members)
}
