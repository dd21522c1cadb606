// Package relay implements the chat relay engine: sessions, room presence,
// per-recipient translated message fan-out and typing indicators.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/mandichat/pkg/model"
	"github.com/NicolasHaas/mandichat/pkg/protocol"
	"github.com/NicolasHaas/mandichat/pkg/translate"
)

// Error texts sent to callers.
const (
	ErrMsgJoinFieldsRequired = "roomId and userId are required"
	ErrMsgSessionNotFound    = "User session not found"
	ErrMsgRoomRequired       = "roomId is required"
)

const (
	DefaultTypingTimeout    = 3 * time.Second
	DefaultTranslateTimeout = 5 * time.Second
)

// Options configures an Engine.
type Options struct {
	DefaultLanguage  string        // language of new sessions (default "en")
	TypingTimeout    time.Duration // delay before the typing stop notice (default 3s)
	TranslateTimeout time.Duration // bound on each collaborator call (0 = unbounded)

	Logger  *slog.Logger
	Metrics *Metrics
	Now     func() time.Time
	NewID   func() string
}

// DefaultOptions returns the options used by the server.
func DefaultOptions() Options {
	return Options{
		DefaultLanguage:  model.DefaultLanguage,
		TypingTimeout:    DefaultTypingTimeout,
		TranslateTimeout: DefaultTranslateTimeout,
	}
}

// Engine handles relay events for every connection. It is safe for
// concurrent use; each connection's events may arrive on its own goroutine.
type Engine struct {
	transport  Transport
	translator translate.Translator
	sessions   *SessionManager
	rooms      *RoomManager
	metrics    *Metrics
	log        *slog.Logger

	typingTimeout time.Duration
	now           func() time.Time
	newID         func() string

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup
}

// New creates an Engine delivering through t and translating with tr.
// A nil tr delivers every message untranslated.
func New(t Transport, tr translate.Translator, opts Options) *Engine {
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = DefaultTypingTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "relay")
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	if tr == nil {
		tr = translate.Func(func(_ context.Context, req translate.Request) (translate.Result, error) {
			return translate.Untranslated(req), nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		transport:     t,
		translator:    translate.WithTimeout(tr, opts.TranslateTimeout),
		sessions:      NewSessionManager(opts.DefaultLanguage),
		rooms:         NewRoomManager(),
		metrics:       opts.Metrics,
		log:           opts.Logger,
		typingTimeout: opts.TypingTimeout,
		now:           opts.Now,
		newID:         opts.NewID,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Session returns a snapshot of the session bound to conn.
func (e *Engine) Session(conn ConnID) (model.UserSession, bool) { return e.sessions.Get(conn) }

// SessionCount returns the number of live sessions.
func (e *Engine) SessionCount() int { return e.sessions.Count() }

// RoomMembers returns the user IDs present in roomID.
func (e *Engine) RoomMembers(roomID string) []string { return e.rooms.Members(roomID) }

// HasRoom reports whether roomID has at least one member.
func (e *Engine) HasRoom(roomID string) bool { return e.rooms.Has(roomID) }

// RoomCount returns the number of non-empty rooms.
func (e *Engine) RoomCount() int { return e.rooms.Count() }

// Close cancels pending typing notices and in-flight translations and waits
// for them to finish. Events handled after Close start no background work.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

// spawn runs fn on a tracked goroutine. It returns false once the engine is closed.
func (e *Engine) spawn(conn ConnID, op string, fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.recoverPanic(conn, op)
		fn()
	}()
	return true
}

func (e *Engine) recoverPanic(conn ConnID, op string) {
	if r := recover(); r != nil {
		e.metrics.HandlerPanics.Add(1)
		e.log.Error("handler panic recovered", "op", op, "conn", conn, "panic", fmt.Sprint(r))
	}
}

func (e *Engine) callerError(conn ConnID, message string) {
	e.metrics.CallerErrors.Add(1)
	e.log.Debug("caller error", "conn", conn, "message", message)
	e.transport.Emit(conn, protocol.EventError, model.ErrorEvent{Message: message})
}

// JoinRoom subscribes conn to the room, opens its session and announces the
// user to the other subscribers.
func (e *Engine) JoinRoom(conn ConnID, req model.JoinRoom) {
	defer e.recoverPanic(conn, protocol.EventJoinRoom)

	roomID := strings.TrimSpace(req.RoomID)
	userID := strings.TrimSpace(req.UserID)
	if roomID == "" || userID == "" {
		e.callerError(conn, ErrMsgJoinFieldsRequired)
		return
	}
	if err := model.ValidateRoomID(roomID); err != nil {
		e.callerError(conn, err.Error())
		return
	}
	if err := model.ValidateUserID(userID); err != nil {
		e.callerError(conn, err.Error())
		return
	}

	e.transport.Subscribe(conn, roomID)
	e.sessions.Open(conn, userID, roomID)
	if lang := model.NormalizeLanguage(req.Language); lang != "" {
		e.sessions.SetLanguage(conn, lang)
	}
	e.rooms.AddMember(roomID, userID)
	e.transport.BroadcastExcept(roomID, conn, protocol.EventUserJoined, model.UserPresence{UserID: userID})

	e.metrics.Joins.Add(1)
	e.log.Info("user joined", "conn", conn, "user", userID, "room", roomID)
}

// SendMessage relays a chat message to every subscriber of the room,
// translating it per recipient. The sender receives its own message.
func (e *Engine) SendMessage(conn ConnID, req model.SendMessage) {
	defer e.recoverPanic(conn, protocol.EventSendMessage)

	sess, ok := e.sessions.Get(conn)
	if !ok {
		e.callerError(conn, ErrMsgSessionNotFound)
		return
	}

	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		roomID = sess.RoomID
	}
	if roomID == "" {
		e.callerError(conn, ErrMsgRoomRequired)
		return
	}
	lang := model.NormalizeLanguage(req.Language)
	if lang == "" {
		lang = model.LanguageOrDefault(sess.Language)
	}

	msg := model.Message{
		ID:               e.newID(),
		RoomID:           roomID,
		SenderID:         sess.UserID,
		Content:          model.SanitizeText(req.Message),
		OriginalLanguage: lang,
		Timestamp:        e.now().UTC(),
		MessageType:      model.MessageTypeText,
	}
	if err := msg.Validate(); err != nil {
		e.callerError(conn, err.Error())
		return
	}
	e.metrics.MessagesSent.Add(1)

	recipients := e.transport.Subscribers(roomID)
	e.log.Debug("message", "conn", conn, "user", sess.UserID, "room", roomID, "recipients", len(recipients))

	for _, rc := range recipients {
		target, ok := e.sessions.Get(rc)
		if !ok {
			continue
		}
		if target.Language == "" || target.Language == lang {
			e.deliver(rc, msg)
			continue
		}
		to := target.Language
		e.spawn(rc, "translate", func() {
			e.translateAndDeliver(rc, msg, to)
		})
	}
}

func (e *Engine) translateAndDeliver(conn ConnID, msg model.Message, to string) {
	out := msg
	res, err := e.translate(translate.Request{Text: msg.Content, From: msg.OriginalLanguage, To: to})
	switch {
	case err != nil:
		e.metrics.TranslationsFailed.Add(1)
		e.log.Warn("translation failed, delivering original", "conn", conn, "from", msg.OriginalLanguage, "to", to, "err", err)
	case res.Confidence > model.ConfidenceThreshold:
		out = msg.WithTranslation(res.TranslatedText, res.Confidence)
		e.metrics.TranslationsUsed.Add(1)
	}

	if e.ctx.Err() != nil {
		return
	}
	e.deliver(conn, out)
}

// translate calls the collaborator, turning a panic into an error.
func (e *Engine) translate(req translate.Request) (res translate.Result, err error) {
	e.metrics.TranslationsTried.Add(1)
	defer func() {
		if r := recover(); r != nil {
			res = translate.Untranslated(req)
			err = fmt.Errorf("relay: translator panic: %v", r)
		}
	}()
	return e.translator.Translate(e.ctx, req)
}

func (e *Engine) deliver(conn ConnID, msg model.Message) {
	e.transport.Emit(conn, protocol.EventMessageReceived, model.MessageReceived{
		Message:    msg,
		Translated: msg.Translated,
	})
	e.metrics.MessagesDelivered.Add(1)
}

// Typing tells the other subscribers that the user is typing, then schedules
// an independent stop notice after the typing timeout.
func (e *Engine) Typing(conn ConnID, req model.Typing) {
	defer e.recoverPanic(conn, protocol.EventTyping)

	roomID, userID := strings.TrimSpace(req.RoomID), strings.TrimSpace(req.UserID)
	if roomID == "" || userID == "" {
		if sess, ok := e.sessions.Get(conn); ok {
			if roomID == "" {
				roomID = sess.RoomID
			}
			if userID == "" {
				userID = sess.UserID
			}
		}
	}
	if roomID == "" || userID == "" {
		e.log.Debug("typing without room or user dropped", "conn", conn)
		return
	}

	e.metrics.TypingEvents.Add(1)
	e.transport.BroadcastExcept(roomID, conn, protocol.EventTypingIndicator, model.TypingIndicator{UserID: userID, IsTyping: true})

	e.spawn(conn, "typing_stop", func() {
		timer := time.NewTimer(e.typingTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			e.transport.BroadcastExcept(roomID, conn, protocol.EventTypingIndicator, model.TypingIndicator{UserID: userID, IsTyping: false})
		case <-e.ctx.Done():
		}
	})
}

// UpdateLanguage changes the session's preferred language. Without a session it does nothing.
func (e *Engine) UpdateLanguage(conn ConnID, req model.UpdateLanguage) {
	defer e.recoverPanic(conn, protocol.EventUpdateLanguage)

	lang := model.NormalizeLanguage(req.Language)
	if lang == "" {
		return
	}
	if e.sessions.SetLanguage(conn, lang) {
		e.log.Debug("language updated", "conn", conn, "language", lang)
	}
}

// LeaveRoom unsubscribes conn from the room and announces the departure.
// Missing fields fall back to the session.
func (e *Engine) LeaveRoom(conn ConnID, req model.LeaveRoom) {
	defer e.recoverPanic(conn, protocol.EventLeaveRoom)

	roomID, userID := strings.TrimSpace(req.RoomID), strings.TrimSpace(req.UserID)
	if sess, ok := e.sessions.Get(conn); ok {
		if roomID == "" {
			roomID = sess.RoomID
		}
		if userID == "" {
			userID = sess.UserID
		}
	}
	if roomID == "" {
		return
	}

	e.transport.Unsubscribe(conn, roomID)
	// The room is forgotten so a later disconnect does not announce a second user_left.
	e.sessions.ClearRoom(conn, roomID)
	if userID == "" {
		return
	}
	e.rooms.RemoveMember(roomID, userID)
	e.transport.BroadcastExcept(roomID, conn, protocol.EventUserLeft, model.UserPresence{UserID: userID})

	e.metrics.Leaves.Add(1)
	e.log.Info("user left", "conn", conn, "user", userID, "room", roomID)
}

// Disconnect closes the session for conn and, if it was in a room, cleans
// up presence and announces the departure. Unknown connections are ignored.
func (e *Engine) Disconnect(conn ConnID) {
	defer e.recoverPanic(conn, "disconnect")

	sess, ok := e.sessions.Close(conn)
	if !ok {
		return
	}
	if !sess.Joined() {
		e.log.Debug("session closed", "conn", conn, "user", sess.UserID)
		return
	}

	e.transport.Unsubscribe(conn, sess.RoomID)
	e.rooms.RemoveMember(sess.RoomID, sess.UserID)
	e.transport.BroadcastExcept(sess.RoomID, conn, protocol.EventUserLeft, model.UserPresence{UserID: sess.UserID})

	e.metrics.Leaves.Add(1)
	e.log.Info("user disconnected", "conn", conn, "user", sess.UserID, "room", sess.RoomID)
}
