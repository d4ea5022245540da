// Package server owns the live websocket sessions and fans game outcomes out
// to the crew. All shared game state lives in the store; the hub holds only
// connection bookkeeping.
package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bridge-and-breach/server/internal/game"
	"bridge-and-breach/server/internal/store"
)

const (
	// writeWait bounds a single websocket write before the session is pruned.
	writeWait = 10 * time.Second
	// maxFrameBytes bounds inbound frames; utterances are truncated later
	// anyway, this just stops hostile frames early.
	maxFrameBytes = 8192
)

// Session is one live websocket connection anchored to an officer and a
// location. The officer identity outlives the session; the location does not.
type Session struct {
	ID        string
	OfficerID string
	Location  game.Location

	conn *websocket.Conn
	mu   sync.Mutex
}

// send marshals and writes one frame under the session's write mutex.
func (s *Session) send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.write(data)
}

func (s *Session) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub registers sessions, runs their read loops, and broadcasts shared state.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Session

	store     store.Store
	processor *game.Processor
	leak      *game.LeakScheduler
	logger    *zap.Logger
}

// NewHub wires a hub over the shared store and command pipeline.
func NewHub(st store.Store, processor *game.Processor, leak *game.LeakScheduler, logger *zap.Logger) *Hub {
	return &Hub{
		sessions:  make(map[string]*Session),
		store:     st,
		processor: processor,
		leak:      leak,
		logger:    logger,
	}
}

// Connect registers a new session and sends the welcome frame. An empty
// officerID mints a fresh identity; returning clients supply their stored one
// so XP and rank resume.
func (h *Hub) Connect(ctx context.Context, conn *websocket.Conn, officerID string, location game.Location) (*Session, error) {
	if officerID == "" {
		officerID = uuid.NewString()
	}

	profile, err := game.LoadProfile(ctx, h.store, officerID)
	if err != nil {
		return nil, err
	}
	ship, err := game.LoadShip(ctx, h.store)
	if err != nil {
		return nil, err
	}
	leakStatus, err := h.leak.Status(ctx)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        uuid.NewString(),
		OfficerID: officerID,
		Location:  location,
		conn:      conn,
	}

	h.mu.Lock()
	h.sessions[sess.ID] = sess
	count := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info("officer connected",
		zap.String("session", sess.ID),
		zap.String("officer", officerID),
		zap.String("location", string(location)),
		zap.Int("sessions", count))

	welcome := welcomeMessage{
		Type:       "welcome",
		SessionID:  sess.ID,
		OfficerID:  profile.OfficerID,
		Name:       profile.Name,
		Rank:       profile.Rank.String(),
		XP:         profile.XP,
		Location:   location,
		Systems:    ship,
		ServerTime: time.Now().UnixMilli(),
	}
	if leakStatus.Active {
		welcome.Leak = &leakStatus
	}
	if err := sess.send(welcome); err != nil {
		h.Unregister(sess.ID)
		return nil, err
	}
	return sess, nil
}

// Serve runs the session's read loop until the connection drops or the
// context is cancelled.
func (h *Hub) Serve(ctx context.Context, sess *Session) {
	defer h.Unregister(sess.ID)

	sess.conn.SetReadLimit(maxFrameBytes)
	for {
		if ctx.Err() != nil {
			return
		}

		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("session read failed",
					zap.String("session", sess.ID),
					zap.Error(err))
			}
			return
		}

		var msg commandMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "command" {
			h.trySend(sess, replyMessage{Type: "reply", Text: "Unrecognized transmission. Send a command frame."})
			continue
		}
		h.handleCommand(ctx, sess, msg.Text)
	}
}

// handleCommand runs one utterance through the pipeline and routes the
// outcome: the reply to the issuer, everything else to the crew.
func (h *Hub) handleCommand(ctx context.Context, sess *Session, text string) {
	outcome, err := h.processor.HandleCommand(ctx, sess.OfficerID, sess.Location, text)
	if err != nil {
		h.logger.Error("command processing failed",
			zap.String("session", sess.ID),
			zap.String("officer", sess.OfficerID),
			zap.Error(err))
		h.trySend(sess, replyMessage{Type: "reply", Text: "The computer does not respond. Try again."})
		return
	}

	if outcome.Rejection != "" {
		h.trySend(sess, authErrorMessage{Type: "auth_error", Reason: outcome.Rejection})
	}
	if outcome.Pending != nil {
		h.trySend(sess, authPendingMessage{
			Type:      "auth_pending",
			AuthID:    outcome.Pending.ID,
			Action:    string(outcome.Pending.Action),
			ExpiresAt: outcome.Pending.ExpiresAt.UnixMilli(),
		})
	}
	if outcome.Reply != "" {
		h.trySend(sess, replyMessage{Type: "reply", Text: outcome.Reply})
	}

	for _, promo := range outcome.Promotions {
		h.Broadcast(promotionMessage{
			Type:      "promotion",
			OfficerID: promo.OfficerID,
			Name:      promo.Name,
			NewRank:   promo.NewTitle,
		})
	}
	if outcome.Leak != nil {
		h.Broadcast(leakEventMessage{
			Type:         "leak_event",
			Active:       outcome.Leak.Active,
			Progress:     outcome.Leak.Progress,
			RequiredTaps: outcome.Leak.RequiredTaps,
		})
	}
	if outcome.StateChanged {
		h.BroadcastState(ctx)
	}
}

// BroadcastState reads the shared ship snapshot and fans it out.
func (h *Hub) BroadcastState(ctx context.Context) {
	ship, err := game.LoadShip(ctx, h.store)
	if err != nil {
		h.logger.Error("state broadcast failed", zap.Error(err))
		return
	}
	h.Broadcast(stateMessage{
		Type:       "state_update",
		Systems:    ship,
		ServerTime: time.Now().UnixMilli(),
	})
}

// Broadcast marshals the payload once and writes it to every session. A
// failed write prunes that session; the rest are unaffected.
func (h *Hub) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("broadcast marshal failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		targets = append(targets, sess)
	}
	h.mu.Unlock()

	for _, sess := range targets {
		if err := sess.write(data); err != nil {
			h.logger.Warn("broadcast write failed, pruning session",
				zap.String("session", sess.ID),
				zap.Error(err))
			h.Unregister(sess.ID)
		}
	}
}

// trySend writes to one session, pruning it on failure.
func (h *Hub) trySend(sess *Session, payload any) {
	if err := sess.send(payload); err != nil {
		h.logger.Warn("session write failed, pruning session",
			zap.String("session", sess.ID),
			zap.Error(err))
		h.Unregister(sess.ID)
	}
}

// Unregister drops a session and closes its connection. Safe to call twice.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	sess, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	count := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return
	}
	sess.conn.Close()
	h.logger.Info("officer disconnected",
		zap.String("session", sess.ID),
		zap.String("officer", sess.OfficerID),
		zap.Int("sessions", count))
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// LeakStarted implements game.LeakAnnouncer.
func (h *Hub) LeakStarted(status game.LeakStatus) {
	h.Broadcast(leakEventMessage{
		Type:         "leak_event",
		Active:       true,
		Progress:     status.Progress,
		RequiredTaps: status.RequiredTaps,
	})
}

// LeakCleared implements game.LeakAnnouncer.
func (h *Hub) LeakCleared(status game.LeakStatus, resolvedBy string) {
	h.Broadcast(leakEventMessage{
		Type:         "leak_event",
		Active:       false,
		Progress:     status.Progress,
		RequiredTaps: status.RequiredTaps,
		ResolvedBy:   resolvedBy,
	})
}
