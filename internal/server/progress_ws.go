package server

import (
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// progressPushInterval paces websocket progress updates.
const progressPushInterval = time.Second

// handleProgressWS streams progress snapshots over a websocket while a
// collection runs. The final snapshot after completion is pushed once, then
// the connection closes.
func (s *Server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	ticker := time.NewTicker(progressPushInterval)
	defer ticker.Stop()

	for {
		snapshot := s.collector.Progress().Snapshot()
		if err := wsjson.Write(ctx, conn, snapshot); err != nil {
			return
		}
		if !snapshot.Running && snapshot.CompletedAt != nil {
			conn.Close(websocket.StatusNormalClosure, "collection complete")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
