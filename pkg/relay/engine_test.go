package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/mandichat/pkg/lexicon"
	"github.com/NicolasHaas/mandichat/pkg/logging"
	"github.com/NicolasHaas/mandichat/pkg/model"
	"github.com/NicolasHaas/mandichat/pkg/protocol"
	"github.com/NicolasHaas/mandichat/pkg/translate"
)

var fixedTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, tr translate.Translator, typing time.Duration) (*Engine, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	var seq atomic.Int64
	e := New(ft, tr, Options{
		TypingTimeout: typing,
		Logger:        logging.Discard(),
		Now:           func() time.Time { return fixedTime },
		NewID: func() string {
			return "m" + string(rune('0'+seq.Add(1)))
		},
	})
	t.Cleanup(e.Close)
	return e, ft
}

// fixedTranslator answers every call with the same translation and confidence.
func fixedTranslator(text string, confidence float64, calls *atomic.Int64) translate.Translator {
	return translate.Func(func(_ context.Context, req translate.Request) (translate.Result, error) {
		if calls != nil {
			calls.Add(1)
		}
		return translate.Result{
			OriginalText:   req.Text,
			TranslatedText: text,
			Confidence:     confidence,
			From:           req.From,
			To:             req.To,
		}, nil
	})
}

func join(e *Engine, conn ConnID, room, user string) {
	e.JoinRoom(conn, model.JoinRoom{RoomID: room, UserID: user})
}

func TestJoinRoomNotifiesOthersOnly(t *testing.T) {
	e, ft := newTestEngine(t, nil, time.Second)

	join(e, "c1", "r1", "u1")
	join(e, "c2", "r1", "u2")

	got := ft.named("c1", protocol.EventUserJoined)
	want := []recorded{{Event: protocol.EventUserJoined, Payload: model.UserPresence{UserID: "u2"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("c1 user_joined mismatch (-want +got):\n%s", diff)
	}
	if n := len(ft.named("c2", protocol.EventUserJoined)); n != 0 {
		t.Fatalf("c2 received %d user_joined events for itself", n)
	}

	if diff := cmp.Diff([]string{"u1", "u2"}, e.RoomMembers("r1")); diff != "" {
		t.Fatalf("RoomMembers mismatch (-want +got):\n%s", diff)
	}
	sess, ok := e.Session("c2")
	if !ok {
		t.Fatalf("Session(c2): missing")
	}
	if diff := cmp.Diff(model.UserSession{UserID: "u2", RoomID: "r1", Language: "en"}, sess); diff != "" {
		t.Fatalf("Session(c2) mismatch (-want +got):\n%s", diff)
	}
}

func TestJoinRoomMissingFields(t *testing.T) {
	tests := []struct {
		name string
		req  model.JoinRoom
	}{
		{"no room", model.JoinRoom{UserID: "u1"}},
		{"no user", model.JoinRoom{RoomID: "r1"}},
		{"blank both", model.JoinRoom{RoomID: " ", UserID: "\t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ft := newTestEngine(t, nil, time.Second)
			e.JoinRoom("c1", tt.req)

			want := []recorded{{Event: protocol.EventError, Payload: model.ErrorEvent{Message: ErrMsgJoinFieldsRequired}}}
			if diff := cmp.Diff(want, ft.eventsFor("c1")); diff != "" {
				t.Fatalf("JoinRoom events mismatch (-want +got):\n%s", diff)
			}
			if e.SessionCount() != 0 || e.RoomCount() != 0 {
				t.Fatalf("JoinRoom: state mutated (sessions=%d rooms=%d)", e.SessionCount(), e.RoomCount())
			}
			if len(ft.Subscribers("r1")) != 0 {
				t.Fatalf("JoinRoom: transport subscription created")
			}
		})
	}
}

func TestJoinRoomWithLanguage(t *testing.T) {
	e, _ := newTestEngine(t, nil, time.Second)
	e.JoinRoom("c1", model.JoinRoom{RoomID: "r1", UserID: "u1", Language: "TA"})
	sess, _ := e.Session("c1")
	if sess.Language != "ta" {
		t.Fatalf("Session language = %q, want ta", sess.Language)
	}

	// Re-joining resets the language to the default.
	join(e, "c1", "r1", "u1")
	sess, _ = e.Session("c1")
	if sess.Language != model.DefaultLanguage {
		t.Fatalf("Session language after rejoin = %q, want %q", sess.Language, model.DefaultLanguage)
	}
}

func TestSendWithoutJoin(t *testing.T) {
	e, ft := newTestEngine(t, nil, time.Second)
	join(e, "c2", "r1", "u2")
	ft.reset()

	e.SendMessage("c1", model.SendMessage{RoomID: "r1", Message: "hello", Language: "en"})

	want := []recorded{{Event: protocol.EventError, Payload: model.ErrorEvent{Message: ErrMsgSessionNotFound}}}
	if diff := cmp.Diff(want, ft.eventsFor("c1")); diff != "" {
		t.Fatalf("c1 events mismatch (-want +got):\n%s", diff)
	}
	if n := len(ft.messages("c2")); n != 0 {
		t.Fatalf("c2 received %d messages from an unjoined sender", n)
	}
	if n := e.Metrics().MessagesSent.Load(); n != 0 {
		t.Fatalf("MessagesSent = %d, want 0", n)
	}
}

func TestSendSameLanguage(t *testing.T) {
	var calls atomic.Int64
	e, ft := newTestEngine(t, fixedTranslator("नमस्ते", 0.9, &calls), time.Second)
	join(e, "a", "r1", "ua")
	join(e, "b", "r1", "ub")

	e.SendMessage("a", model.SendMessage{RoomID: "r1", Message: "hello", Language: "en"})

	want := model.MessageReceived{
		Message: model.Message{
			ID:               "m1",
			RoomID:           "r1",
			SenderID:         "ua",
			Content:          "hello",
			OriginalLanguage: "en",
			Timestamp:        fixedTime,
			MessageType:      model.MessageTypeText,
		},
		Translated: false,
	}
	for _, c := range []ConnID{"a", "b"} {
		got := ft.messages(c)
		if diff := cmp.Diff([]model.MessageReceived{want}, got); diff != "" {
			t.Fatalf("%s messages mismatch (-want +got):\n%s", c, diff)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("translator called %d times for same-language recipients", calls.Load())
	}
}

func TestSendTranslatesPerRecipient(t *testing.T) {
	var calls atomic.Int64
	e, ft := newTestEngine(t, fixedTranslator("नमस्ते", 0.9, &calls), time.Second)
	join(e, "a", "r1", "ua")
	join(e, "b", "r1", "ub")
	e.UpdateLanguage("b", model.UpdateLanguage{Language: "hi"})

	e.SendMessage("a", model.SendMessage{RoomID: "r1", Message: "hello", Language: "en"})

	got := waitForEvents(t, ft, "b", protocol.EventMessageReceived, 1)
	mr := got[0].Payload.(model.MessageReceived)
	if !mr.Translated || !mr.Message.Translated {
		t.Fatalf("b: message not marked translated: %+v", mr)
	}
	if mr.Message.Content != "नमस्ते" || mr.Message.OriginalContent != "hello" {
		t.Fatalf("b: content=%q original=%q", mr.Message.Content, mr.Message.OriginalContent)
	}
	if mr.Message.TranslationConfidence != 0.9 {
		t.Fatalf("b: confidence = %v, want 0.9", mr.Message.TranslationConfidence)
	}

	own := ft.messages("a")
	if len(own) != 1 || own[0].Translated || own[0].Message.Content != "hello" || own[0].Message.OriginalContent != "" {
		t.Fatalf("a: sender copy affected by translation: %+v", own)
	}
	if calls.Load() != 1 {
		t.Fatalf("translator calls = %d, want 1", calls.Load())
	}
	if e.Metrics().TranslationsUsed.Load() != 1 {
		t.Fatalf("TranslationsUsed = %d, want 1", e.Metrics().TranslationsUsed.Load())
	}
}

func TestSendLowConfidenceDeliversOriginal(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		wantTrans  bool
	}{
		{"at threshold", 0.3, false},
		{"zero", 0, false},
		{"just above", 0.31, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ft := newTestEngine(t, fixedTranslator("xx", tt.confidence, nil), time.Second)
			join(e, "a", "r1", "ua")
			e.JoinRoom("b", model.JoinRoom{RoomID: "r1", UserID: "ub", Language: "ml"})

			e.SendMessage("a", model.SendMessage{RoomID: "r1", Message: "price", Language: "en"})
			got := waitForEvents(t, ft, "b", protocol.EventMessageReceived, 1)
			mr := got[0].Payload.(model.MessageReceived)
			if mr.Translated != tt.wantTrans {
				t.Fatalf("translated = %v, want %v", mr.Translated, tt.wantTrans)
			}
			if !tt.wantTrans && mr.Message.Content != "price" {
				t.Fatalf("content = %q, want original", mr.Message.Content)
			}
		})
	}
}

func TestSendTranslatorFailureFallsBack(t *testing.T) {
	tests := []struct {
		name string
		tr   translate.Translator
	}{
		{"error", translate.Func(func(context.Context, translate.Request) (translate.Result, error) {
			return translate.Result{}, errors.New("upstream down")
		})},
		{"panic", translate.Func(func(context.Context, translate.Request) (translate.Result, error) {
			panic("boom")
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ft := newTestEngine(t, tt.tr, time.Second)
			join(e, "a", "r1", "ua")
			e.JoinRoom("b", model.JoinRoom{RoomID: "r1", UserID: "ub", Language: "hi"})
			e.JoinRoom("c", model.JoinRoom{RoomID: "r1", UserID: "uc", Language: "ta"})

			e.SendMessage("a", model.SendMessage{RoomID: "r1", Message: "hello", Language: "en"})

			for _, c := range []ConnID{"b", "c"} {
				got := waitForEvents(t, ft, c, protocol.EventMessageReceived, 1)
				mr := got[0].Payload.(model.MessageReceived)
				if mr.Translated || mr.Message.Content != "hello" {
					t.Fatalf("%s: want untranslated fallback, got %+v", c, mr)
				}
			}
			if n := e.Metrics().TranslationsFailed.Load(); n != 2 {
				t.Fatalf("TranslationsFailed = %d, want 2", n)
			}
			if n := len(ft.named("a", protocol.EventError)); n != 0 {
				t.Fatalf("sender received %d error events for a collaborator failure", n)
			}
		})
	}
}

func TestSlowTranslationDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	tr := translate.Func(func(ctx context.Context, req translate.Request) (translate.Result, error) {
		if req.To == "ta" {
			select {
			case <-release:
			case <-ctx.Done():
				return translate.Untranslated(req), ctx.Err()
			}
		}
		return translate.Result{TranslatedText: req.To + ":" + req.Text, Confidence: 0.9}, nil
	})
	e, ft := newTestEngine(t, tr, time.Second)
	join(e, "a", "r1", "ua")
	e.JoinRoom("b", model.JoinRoom{RoomID: "r1", UserID: "ub", Language: "hi"})
	e.JoinRoom("c", model.JoinRoom{RoomID: "r1", UserID: "uc", Language: "ta"})

	e.SendMessage("a", model.SendMessage{RoomID: "r1", Message: "deal", Language: "en"})

	got := waitForEvents(t, ft, "b", protocol.EventMessageReceived, 1)
	if c := got[0].Payload.(model.MessageReceived).Message.Content; c != "hi:deal" {
		t.Fatalf("b content = %q", c)
	}
	if n := len(ft.messages("c")); n != 0 {
		t.Fatalf("c received a message before its translation finished")
	}

	close(release)
	got = waitForEvents(t, ft, "c", protocol.EventMessageReceived, 1)
	if c := got[0].Payload.(model.MessageReceived).Message.Content; c != "ta:deal" {
		t.Fatalf("c content = %q", c)
	}
}

func TestThreeUsersEachReceiveOnce(t *testing.T) {
	e, ft := newTestEngine(t, nil, time.Second)
	join(e, "c1", "r1", "u1")
	join(e, "c2", "r1", "u2")
	join(e, "c3", "r1", "u3")

	e.SendMessage("c1", model.SendMessage{RoomID: "r1", Message: "fresh tomatoes", Language: "en"})

	for _, c := range []ConnID{"c2", "c3"} {
		if n := len(ft.messages(c)); n != 1 {
			t.Fatalf("%s received %d messages, want exactly 1", c, n)
		}
	}
}

func TestSendFallsBackToSessionRoomAndLanguage(t *testing.T) {
	e, ft := newTestEngine(t, nil, time.Second)
	e.JoinRoom("a", model.JoinRoom{RoomID: "r1", UserID: "ua", Language: "hi"})

	e.SendMessage("a", model.SendMessage{Message: "नमस्ते"})

	got := ft.messages("a")
	if len(got) != 1 {
		t.Fatalf("messages = %d, want 1", len(got))
	}
	if got[0].Message.RoomID != "r1" || got[0].Message.OriginalLanguage != "hi" {
		t.Fatalf("room=%q lang=%q, want r1/hi", got[0].Message.RoomID, got[0].Message.OriginalLanguage)
	}
}

func TestSendKeepsTextAsSent(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"multi-line", "hello\nworld"},
		{"crlf", "onion\r\ntomato"},
		{"tab", "a\tb"},
		{"padded", "  price?  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ft := newTestEngine(t, fixedTranslator("नमस्ते", 0.9, nil), time.Second)
			join(e, "a", "r1", "ua")
			join(e, "b", "r1", "ub")
			e.JoinRoom("c", model.JoinRoom{RoomID: "r1", UserID: "uc", Language: "hi"})

			e.SendMessage("a", model.SendMessage{RoomID: "r1", Message: tt.text, Language: "en"})

			same := ft.messages("b")
			if len(same) != 1 || same[0].Message.Content != tt.text {
				t.Fatalf("same-language content = %+v, want %q", same, tt.text)
			}
			got := waitForEvents(t, ft, "c", protocol.EventMessageReceived, 1)
			mr := got[0].Payload.(model.MessageReceived)
			if !mr.Translated || mr.Message.OriginalContent != tt.text {
				t.Fatalf("translated originalContent = %q, want %q", mr.Message.OriginalContent, tt.text)
			}
		})
	}
}

func TestSendTranslatesForRegionalLanguageTag(t *testing.T) {
	st := lexicon.NewMemory()
	if _, err := lexicon.Seed(context.Background(), st); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	e, ft := newTestEngine(t, translate.NewLexicon(st), time.Second)
	join(e, "c1", "r1", "u1")
	e.JoinRoom("c2", model.JoinRoom{RoomID: "r1", UserID: "u2", Language: "hi"})
	e.JoinRoom("c3", model.JoinRoom{RoomID: "r1", UserID: "u3", Language: "hi-IN"})

	if sess, _ := e.Session("c3"); sess.Language != "hi" {
		t.Fatalf("c3 language = %q, want hi", sess.Language)
	}

	e.SendMessage("c1", model.SendMessage{RoomID: "r1", Message: "hello", Language: "en-US"})

	for _, c := range []ConnID{"c2", "c3"} {
		got := waitForEvents(t, ft, c, protocol.EventMessageReceived, 1)
		mr := got[0].Payload.(model.MessageReceived)
		if !mr.Translated || mr.Message.Content != "नमस्ते" || mr.Message.TranslationConfidence != translate.ConfidencePhrase {
			t.Fatalf("%s received %+v, want नमस्ते at %v", c, mr, translate.ConfidencePhrase)
		}
	}
}

func TestSendRejectsBadContent(t *testing.T) {
	e, ft := newTestEngine(t, nil, time.Second)
	join(e, "a", "r1", "ua")
	ft.reset()

	e.SendMessage("a", model.SendMessage{RoomID: "r1", Message: "\x00\x07  ", Language: "en"})

	want := []recorded{{Event: protocol.EventError, Payload: model.ErrorEvent{Message: model.ErrMessageContentEmpty.Error()}}}
	if diff := cmp.Diff(want, ft.eventsFor("a")); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestLeaveRoom(t *testing.T) {
	e, ft := newTestEngine(t, nil, time.Second)
	join(e, "c1", "r1", "u1")
	join(e, "c2", "r1", "u2")
	ft.reset()

	e.LeaveRoom("c2", model.LeaveRoom{RoomID: "r1", UserID: "u2"})

	want := []recorded{{Event: protocol.EventUserLeft, Payload: model.UserPresence{UserID: "u2"}}}
	if diff := cmp.Diff(want, ft.eventsFor("c1")); diff != "" {
		t.Fatalf("c1 events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"u1"}, e.RoomMembers("r1")); diff != "" {
		t.Fatalf("RoomMembers mismatch (-want +got):\n%s", diff)
	}

	// Later traffic never references u2 and never reaches c2.
	ft.reset()
	e.SendMessage("c1", model.SendMessage{RoomID: "r1", Message: "still there?", Language: "en"})
	for _, r := range ft.eventsFor("c1") {
		if r.Event == protocol.EventUserJoined || r.Event == protocol.EventUserLeft {
			t.Fatalf("c1 got presence artifact %+v after u2 left", r)
		}
	}
	if n := len(ft.eventsFor("c2")); n != 0 {
		t.Fatalf("c2 received %d events after leaving", n)
	}

	// Disconnect after leave announces nothing further.
	e.Disconnect("c2")
	if n := len(ft.named("c1", protocol.EventUserLeft)); n != 0 {
		t.Fatalf("c1 got %d extra user_left events after disconnect", n)
	}
}

func TestDisconnectLastMemberDeletesRoom(t *testing.T) {
	e, ft := newTestEngine(t, nil, time.Second)
	join(e, "c1", "r1", "u1")
	join(e, "c2", "r1", "u2")

	ft.drop("c1")
	e.Disconnect("c1")
	if got := ft.named("c2", protocol.EventUserLeft); len(got) != 1 {
		t.Fatalf("c2 user_left events = %d, want 1", len(got))
	}

	ft.drop("c2")
	e.Disconnect("c2")
	if e.HasRoom("r1") {
		t.Fatalf("room r1 survived its last member")
	}
	if e.SessionCount() != 0 {
		t.Fatalf("SessionCount = %d, want 0", e.SessionCount())
	}

	join(e, "c3", "r1", "u3")
	if diff := cmp.Diff([]string{"u3"}, e.RoomMembers("r1")); diff != "" {
		t.Fatalf("recreated room mismatch (-want +got):\n%s", diff)
	}
}

func TestDisconnectUnknownIsSilent(t *testing.T) {
	e, ft := newTestEngine(t, nil, time.Second)
	join(e, "c1", "r1", "u1")
	ft.reset()

	e.Disconnect("ghost")
	if n := len(ft.eventsFor("c1")); n != 0 {
		t.Fatalf("c1 received %d events for an unknown disconnect", n)
	}
}

func TestUpdateLanguageWithoutSession(t *testing.T) {
	e, ft := newTestEngine(t, nil, time.Second)
	e.UpdateLanguage("c1", model.UpdateLanguage{Language: "hi"})
	if e.SessionCount() != 0 {
		t.Fatalf("UpdateLanguage created a session")
	}
	if n := len(ft.eventsFor("c1")); n != 0 {
		t.Fatalf("UpdateLanguage emitted %d events", n)
	}
}

func TestTypingIndicator(t *testing.T) {
	e, ft := newTestEngine(t, nil, 100*time.Millisecond)
	join(e, "c1", "r1", "u1")
	join(e, "c2", "r1", "u2")
	ft.reset()

	e.Typing("c1", model.Typing{RoomID: "r1", UserID: "u1"})
	e.Typing("c1", model.Typing{RoomID: "r1", UserID: "u1"})

	got := ft.named("c2", protocol.EventTypingIndicator)
	if len(got) != 2 {
		t.Fatalf("typing starts = %d, want 2", len(got))
	}

	got = waitForEvents(t, ft, "c2", protocol.EventTypingIndicator, 4)
	want := []recorded{
		{Event: protocol.EventTypingIndicator, Payload: model.TypingIndicator{UserID: "u1", IsTyping: true}},
		{Event: protocol.EventTypingIndicator, Payload: model.TypingIndicator{UserID: "u1", IsTyping: true}},
		{Event: protocol.EventTypingIndicator, Payload: model.TypingIndicator{UserID: "u1", IsTyping: false}},
		{Event: protocol.EventTypingIndicator, Payload: model.TypingIndicator{UserID: "u1", IsTyping: false}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("typing events mismatch (-want +got):\n%s", diff)
	}
	if n := len(ft.named("c1", protocol.EventTypingIndicator)); n != 0 {
		t.Fatalf("typist received %d of its own indicators", n)
	}
}

func TestCloseCancelsPendingTyping(t *testing.T) {
	ft := newFakeTransport()
	e := New(ft, nil, Options{TypingTimeout: time.Hour, Logger: logging.Discard()})
	join(e, "c1", "r1", "u1")
	join(e, "c2", "r1", "u2")
	e.Typing("c1", model.Typing{RoomID: "r1", UserID: "u1"})

	done := make(chan struct{})
	go func() {
		e.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not return while a typing stop was pending")
	}

	for _, r := range ft.named("c2", protocol.EventTypingIndicator) {
		if !r.Payload.(model.TypingIndicator).IsTyping {
			t.Fatalf("stop notice sent after Close")
		}
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	e, ft := newTestEngine(t, nil, time.Second)
	join(e, "c1", "r1", "u1")
	ft.panicOnSubscribers = true

	e.SendMessage("c1", model.SendMessage{RoomID: "r1", Message: "hi", Language: "en"})

	if n := e.Metrics().HandlerPanics.Load(); n != 1 {
		t.Fatalf("HandlerPanics = %d, want 1", n)
	}

	ft.panicOnSubscribers = false
	join(e, "c2", "r1", "u2")
	if n := len(ft.named("c1", protocol.EventUserJoined)); n != 1 {
		t.Fatalf("engine stopped handling events after a panic")
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	e, _ := newTestEngine(t, nil, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := ConnID("c" + string(rune('A'+i)))
			user := "u" + string(rune('A'+i))
			join(e, conn, "busy", user)
			e.SendMessage(conn, model.SendMessage{Message: "hello"})
			e.LeaveRoom(conn, model.LeaveRoom{})
			e.Disconnect(conn)
		}(i)
	}
	wg.Wait()

	if e.HasRoom("busy") {
		t.Fatalf("room busy still has members %v", e.RoomMembers("busy"))
	}
	if e.SessionCount() != 0 {
		t.Fatalf("SessionCount = %d, want 0", e.SessionCount())
	}
}
