package relay

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/NicolasHaas/mandichat/pkg/model"
	"github.com/NicolasHaas/mandichat/pkg/protocol"
)

type recorded struct {
	Event   string
	Payload any
}

// fakeTransport keeps room subscriptions in memory and records every emitted event.
type fakeTransport struct {
	mu     sync.Mutex
	rooms  map[string]map[ConnID]bool
	events map[ConnID][]recorded

	panicOnSubscribers bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		rooms:  make(map[string]map[ConnID]bool),
		events: make(map[ConnID][]recorded),
	}
}

func (f *fakeTransport) Subscribe(conn ConnID, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms[roomID] == nil {
		f.rooms[roomID] = make(map[ConnID]bool)
	}
	f.rooms[roomID][conn] = true
}

func (f *fakeTransport) Unsubscribe(conn ConnID, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms[roomID], conn)
	if len(f.rooms[roomID]) == 0 {
		delete(f.rooms, roomID)
	}
}

// drop simulates the socket going away: every subscription is removed.
func (f *fakeTransport) drop(conn ConnID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for roomID, subs := range f.rooms {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(f.rooms, roomID)
		}
	}
}

func (f *fakeTransport) Subscribers(roomID string) []ConnID {
	if f.panicOnSubscribers {
		panic("subscribers exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ConnID, 0, len(f.rooms[roomID]))
	for c := range f.rooms[roomID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeTransport) Emit(conn ConnID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[conn] = append(f.events[conn], recorded{Event: event, Payload: payload})
}

func (f *fakeTransport) BroadcastExcept(roomID string, except ConnID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.rooms[roomID] {
		if c == except {
			continue
		}
		f.events[c] = append(f.events[c], recorded{Event: event, Payload: payload})
	}
}

func (f *fakeTransport) eventsFor(conn ConnID) []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recorded, len(f.events[conn]))
	copy(out, f.events[conn])
	return out
}

func (f *fakeTransport) named(conn ConnID, event string) []recorded {
	var out []recorded
	for _, r := range f.eventsFor(conn) {
		if r.Event == event {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = make(map[ConnID][]recorded)
}

func (f *fakeTransport) messages(conn ConnID) []model.MessageReceived {
	var out []model.MessageReceived
	for _, r := range f.named(conn, protocol.EventMessageReceived) {
		out = append(out, r.Payload.(model.MessageReceived))
	}
	return out
}

// waitForEvents polls until conn has at least n events named event.
func waitForEvents(t *testing.T, f *fakeTransport, conn ConnID, event string, n int) []recorded {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := f.named(conn, event)
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("waitForEvents: conn %s got %d %s events, want %d", conn, len(got), event, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
