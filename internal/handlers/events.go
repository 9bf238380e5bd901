package handlers

import (
	"net/http"
	"strings"

	"splitledger/internal/auth"
	"splitledger/internal/websocket"
)

// WSEvents upgrades the connection and subscribes the caller to their own
// bill and reminder events. Browsers cannot set headers on websocket
// upgrades, so the token may arrive as a query parameter instead.
func (h *Handler) WSEvents(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
