package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/partyround/game-rooms-backend/internal/hub"
	"github.com/partyround/game-rooms-backend/pkg/types"
)

const writeTimeout = 3 * time.Second

// Handler upgrades the connection, registers a player with the hub,
// and pumps messages both ways until the connection dies. The deferred
// Unregister is the disconnect path: it runs leave-room (with host
// failover and broadcasts) and removes the player record.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "Player"
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := randID(8)
		out := make(chan types.ServerMessage, 16)

		h.Inbox() <- hub.Register{ConnID: connID, Name: name, Outbox: out}
		defer func() { h.Inbox() <- hub.Unregister{ConnID: connID} }()

		// Writer goroutine: drains the outbox until the hub closes it.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				payload, err := json.Marshal(msg)
				if err != nil {
					log.Error("marshal server message", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop. Turn-based sessions idle for long stretches, so
		// reads block on the connection context rather than a deadline.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				reply, _ := json.Marshal(types.ServerMessage{
					Type:    types.MsgError,
					Reason:  types.ReasonBadRequest,
					Message: "bad json",
				})
				_ = conn.Write(r.Context(), websocket.MessageText, reply)
				continue
			}

			h.Inbox() <- hub.FromClient{ConnID: connID, Req: cm}
		}
	}
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
