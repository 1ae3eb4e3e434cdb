package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/openfroyo/descriptions/pkg/descriptions"
	"github.com/openfroyo/descriptions/pkg/fetch"
	"github.com/openfroyo/descriptions/pkg/telemetry"
)

// LiveMessage is one frame of the live stream.
type LiveMessage struct {
	Type    string             `json:"type"`
	Session string             `json:"session"`
	Event   *telemetry.Event   `json:"event,omitempty"`
	View    *descriptions.View `json:"view"`
}

const liveWriteTimeout = 5 * time.Second

// handleLive streams a View snapshot on connect and after every event
// concerning the session's view and entity.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.CloseNow()

	// The client only listens; reads are discarded and a close frame
	// cancels ctx.
	ctx := conn.CloseRead(r.Context())

	updates := make(chan telemetry.Event, 1)
	unsubscribe := s.tel.Events.Subscribe(func(ev telemetry.Event) {
		select {
		case updates <- ev:
		default:
		}
	}, liveFilter(sess))
	defer unsubscribe()

	logger := s.logger.With().Str("session", sess.ID).Logger()
	logger.Debug().Msg("Live stream opened")

	if err := s.push(ctx, conn, sess, "snapshot", nil); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Live stream closed")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-updates:
			sess.touch()
			settle(ctx, sess.Descriptions)
			if err := s.push(ctx, conn, sess, "update", &ev); err != nil {
				logger.Debug().Err(err).Msg("Live stream write failed")
				return
			}
		}
	}
}

func (s *Server) push(ctx context.Context, conn *websocket.Conn, sess *Session, typ string, ev *telemetry.Event) error {
	view := sess.Descriptions.Render(ctx)
	wctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, LiveMessage{Type: typ, Session: sess.ID, Event: ev, View: &view})
}

// settle waits briefly for an in-flight request to commit. Fetch events
// are published before the loader updates its state.
func settle(ctx context.Context, d *descriptions.Descriptions) {
	deadline := time.Now().Add(time.Second)
	for d.State().Status == fetch.StatusLoading && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// liveFilter passes events of the session's entity, and schema reloads of
// its view.
func liveFilter(sess *Session) telemetry.EventFilter {
	byEntity := telemetry.FilterByEntity(sess.View, sess.EntityID)
	return func(ev telemetry.Event) bool {
		if ev.Type == telemetry.EventTypeSchemaReloaded {
			return ev.View == sess.View
		}
		return byEntity(ev)
	}
}
