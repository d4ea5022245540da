// Package net exposes the HTTP surface: health and status endpoints, the
// public leaderboard, and the websocket handshake that hands connections to
// the hub.
package net

import (
	"encoding/base64"
	"encoding/json"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bridge-and-breach/server"
	"bridge-and-breach/server/internal/game"
	"bridge-and-breach/server/internal/store"
)

// Deps carries the collaborators the routes read from. Nothing here is
// mutated by the handlers except through the hub.
type Deps struct {
	Hub    *server.Hub
	Store  store.Store
	Rank   *game.RankEngine
	Leak   *game.LeakScheduler
	Logger *zap.Logger
}

// NewRouter builds the full HTTP surface.
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealth).Methods(nethttp.MethodGet)
	r.HandleFunc("/api/status", handleStatus(deps)).Methods(nethttp.MethodGet)
	r.HandleFunc("/api/leaderboard", handleLeaderboard(deps)).Methods(nethttp.MethodGet)
	r.HandleFunc("/ws", handleSocket(deps))
	return r
}

func handleHealth(w nethttp.ResponseWriter, _ *nethttp.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// statusResponse is the public observability snapshot.
type statusResponse struct {
	Status     string          `json:"status"`
	ServerTime int64           `json:"serverTime"`
	Sessions   int             `json:"sessions"`
	Systems    game.ShipState  `json:"systems"`
	Leak       game.LeakStatus `json:"leak"`
}

func handleStatus(deps Deps) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ship, err := game.LoadShip(r.Context(), deps.Store)
		if err != nil {
			deps.Logger.Error("status snapshot failed", zap.Error(err))
			nethttp.Error(w, "state store unavailable", nethttp.StatusServiceUnavailable)
			return
		}
		leak, err := deps.Leak.Status(r.Context())
		if err != nil {
			deps.Logger.Error("status snapshot failed", zap.Error(err))
			nethttp.Error(w, "state store unavailable", nethttp.StatusServiceUnavailable)
			return
		}

		writeJSON(w, deps.Logger, statusResponse{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Sessions:   deps.Hub.SessionCount(),
			Systems:    ship,
			Leak:       leak,
		})
	}
}

func handleLeaderboard(deps Deps) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		limit := int64(10)
		if raw := r.URL.Query().Get("n"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed <= 0 {
				nethttp.Error(w, "invalid limit", nethttp.StatusBadRequest)
				return
			}
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}

		entries, err := deps.Rank.Leaderboard(r.Context(), limit)
		if err != nil {
			deps.Logger.Error("leaderboard read failed", zap.Error(err))
			nethttp.Error(w, "state store unavailable", nethttp.StatusServiceUnavailable)
			return
		}

		writeJSON(w, deps.Logger, struct {
			Officers []game.LeaderboardEntry `json:"officers"`
		}{Officers: entries})
	}
}

func handleSocket(deps Deps) nethttp.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		officerID := r.URL.Query().Get("officer")
		location := decodeLocation(r.URL.Query().Get("location"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			deps.Logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		sess, err := deps.Hub.Connect(r.Context(), conn, officerID, location)
		if err != nil {
			deps.Logger.Error("handshake failed",
				zap.String("officer", officerID),
				zap.Error(err))
			message := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "handshake failed")
			conn.WriteMessage(websocket.CloseMessage, message)
			conn.Close()
			return
		}

		deps.Hub.Serve(r.Context(), sess)
	}
}

// decodeLocation resolves the base64 location token from the handshake query.
// Anything unreadable anchors the session to the Bridge.
func decodeLocation(token string) game.Location {
	if token == "" {
		return game.LocationBridge
	}
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return game.LocationBridge
	}
	return game.ParseLocation(string(decoded))
}

func writeJSON(w nethttp.ResponseWriter, logger *zap.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("response encode failed", zap.Error(err))
		nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
