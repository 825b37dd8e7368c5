package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"nhooyr.io/websocket"

	"anchorledger/core/events"
	"anchorledger/observability"
)

const wsWriteTimeout = 5 * time.Second

type streamMessage struct {
	Type  string                   `json:"type"`
	Event events.PortfolioAnchored `json:"event"`
}

// handleStream upgrades to a websocket and pushes PortfolioAnchored events as
// they commit. ?user= narrows the stream to one address. Slow clients lose
// events instead of stalling the ledger.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeJSONError(w, http.StatusNotFound, "NotFound", "event stream disabled")
		return
	}
	var filterUser *common.Address
	if raw := strings.TrimSpace(r.URL.Query().Get("user")); raw != "" {
		user, err := parseUser(raw)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		filterUser = &user
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, cancel := s.feed.Subscribe(func(evt events.Event) bool {
		anchored, ok := evt.(events.PortfolioAnchored)
		if !ok {
			return false
		}
		return filterUser == nil || anchored.User == *filterUser
	})
	defer cancel()
	observability.Events().SetSubscribers(s.feed.Subscribers())
	defer func() { observability.Events().SetSubscribers(s.feed.Subscribers() - 1) }()

	// Reads are only needed to observe the client closing.
	ctx := conn.CloseRead(r.Context())
	if err := s.pump(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Warn("event stream failed", slog.String("error", err.Error()))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) pump(ctx context.Context, conn *websocket.Conn, updates <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			anchored := evt.(events.PortfolioAnchored)
			if err := writeStreamMessage(ctx, conn, anchored); err != nil {
				return err
			}
		}
	}
}

func writeStreamMessage(ctx context.Context, conn *websocket.Conn, evt events.PortfolioAnchored) error {
	data, err := json.Marshal(streamMessage{Type: evt.EventType(), Event: evt})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
