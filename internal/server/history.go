package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"cryptalk/internal/server/middleware"
)

// historyHandler returns the stored messages between the authenticated
// user and the peer named in the path, in insertion order. Ciphertext is
// returned exactly as stored; only the two participants can decrypt it.
func (a *App) historyHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok || reqMeta.Identity.UserID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	peer := mux.Vars(r)["peer"]
	if peer == "" {
		http.Error(w, "missing peer", http.StatusBadRequest)
		return
	}

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	msgs, err := a.store.ListMessages(reqMeta.Identity.UserID, peer, limit)
	if err != nil {
		a.logger.Error("failed to list messages", slog.String("peer", peer), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(msgs); err != nil {
		a.logger.Error("failed to write history response", slog.Any("error", err))
	}
}
