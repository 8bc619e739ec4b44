package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/partyround/game-rooms-backend/internal/hub"
	"github.com/partyround/game-rooms-backend/pkg/types"
)

// RoomInfo serves the serialized room over plain HTTP. The read goes
// through the hub inbox so it is serialized with room mutations.
func RoomInfo(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		reply := make(chan types.ServerMessage, 1)
		h.Inbox() <- hub.RoomInfo{Code: code, Reply: reply}
		msg := <-reply

		w.Header().Set("Content-Type", "application/json")
		if !msg.Success {
			w.WriteHeader(http.StatusNotFound)
		}
		_ = json.NewEncoder(w).Encode(msg)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
