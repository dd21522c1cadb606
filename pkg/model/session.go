package model

// UserSession is the relay's view of one joined connection (in-memory only).
type UserSession struct {
	UserID   string
	RoomID   string // room most recently joined; empty after leaving it
	Language string
}

// Joined reports whether the session currently tracks a room.
func (s UserSession) Joined() bool {
	return s.RoomID != ""
}
