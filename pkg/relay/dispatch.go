package relay

import (
	"github.com/NicolasHaas/mandichat/pkg/model"
	"github.com/NicolasHaas/mandichat/pkg/protocol"
)

// HandleFrame decodes one inbound websocket frame and dispatches it.
// Malformed frames and unknown events are answered with an error event.
func (e *Engine) HandleFrame(conn ConnID, raw []byte) {
	defer e.recoverPanic(conn, "frame")

	f, err := protocol.Decode(raw)
	if err != nil {
		e.log.Debug("bad frame", "conn", conn, "err", err)
		e.callerError(conn, "invalid frame")
		return
	}

	switch f.Event {
	case protocol.EventJoinRoom:
		var p model.JoinRoom
		if e.decodePayload(conn, f, &p) {
			e.JoinRoom(conn, p)
		}

	case protocol.EventSendMessage:
		var p model.SendMessage
		if e.decodePayload(conn, f, &p) {
			e.SendMessage(conn, p)
		}

	case protocol.EventTyping:
		var p model.Typing
		if e.decodePayload(conn, f, &p) {
			e.Typing(conn, p)
		}

	case protocol.EventUpdateLanguage:
		var p model.UpdateLanguage
		if e.decodePayload(conn, f, &p) {
			e.UpdateLanguage(conn, p)
		}

	case protocol.EventLeaveRoom:
		var p model.LeaveRoom
		if e.decodePayload(conn, f, &p) {
			e.LeaveRoom(conn, p)
		}

	default:
		e.callerError(conn, "unknown event: "+f.Event)
	}
}

func (e *Engine) decodePayload(conn ConnID, f protocol.Frame, v any) bool {
	if err := protocol.DecodeData(f, v); err != nil {
		e.log.Debug("bad payload", "conn", conn, "event", f.Event, "err", err)
		e.callerError(conn, "invalid "+f.Event+" payload")
		return false
	}
	return true
}
