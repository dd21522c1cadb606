package relay

// ConnID identifies one live connection. The transport assigns it.
type ConnID string

// Transport delivers events to connections and owns room subscriptions.
//
// Subscribers is the live view of who is in a room and is what the engine
// uses to pick message recipients. Emit and BroadcastExcept must not block.
type Transport interface {
	Subscribe(conn ConnID, roomID string)
	Unsubscribe(conn ConnID, roomID string)
	Subscribers(roomID string) []ConnID
	Emit(conn ConnID, event string, payload any)
	BroadcastExcept(roomID string, except ConnID, event string, payload any)
}
