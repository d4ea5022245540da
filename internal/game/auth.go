package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bridge-and-breach/server/internal/config"
	"bridge-and-breach/server/internal/store"
)

// AuthSession is one pending dead-drop confirmation. It is stored under its
// OMEGA token with a TTL; expiry is additionally checked against the stored
// timestamp at confirmation time, so a store that outlives its TTL contract
// still rejects stale sessions.
type AuthSession struct {
	ID          string    `json:"id"`
	InitiatorID string    `json:"initiatorId"`
	Action      Action    `json:"action"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// AuthCoordinator enforces the command gates and runs the two-party
// dead-drop protocol for the dual-auth command set.
type AuthCoordinator struct {
	store  store.Store
	logger *zap.Logger
	cfg    config.GameConfig
	now    func() time.Time
}

// NewAuthCoordinator wires the coordinator over the shared store.
func NewAuthCoordinator(st store.Store, logger *zap.Logger, cfg config.GameConfig) *AuthCoordinator {
	return &AuthCoordinator{store: st, logger: logger, cfg: cfg, now: time.Now}
}

func authKey(id string) string { return "auth:" + id }

const authSeqKey = "auth:seq"

// Decision is the outcome of gating one command.
type Decision struct {
	// Execute is true when the command may run immediately.
	Execute bool
	// Pending is set instead when a dual-auth session was opened.
	Pending *AuthSession
}

// Gate applies the location gate, then the rank gate, then the dual-auth
// gate, in that order. A gate failure returns a rejection error and has no
// side effects.
func (c *AuthCoordinator) Gate(ctx context.Context, officer Profile, location Location, action Action) (Decision, error) {
	minRank, requiredLoc, dualAuth := GateFor(action)

	if requiredLoc != "" && location != requiredLoc {
		c.logger.Info("command rejected",
			zap.String("officer", officer.OfficerID),
			zap.String("action", string(action)),
			zap.String("gate", "location"),
			zap.String("required", string(requiredLoc)),
			zap.String("actual", string(location)))
		return Decision{}, fmt.Errorf("%w: %s requires presence in %s", ErrLocationDenied, action, requiredLoc)
	}

	if officer.Rank < minRank {
		c.logger.Info("command rejected",
			zap.String("officer", officer.OfficerID),
			zap.String("action", string(action)),
			zap.String("gate", "rank"),
			zap.String("required", minRank.String()),
			zap.String("actual", officer.Rank.String()))
		return Decision{}, fmt.Errorf("%w: %s requires rank %s or higher", ErrInsufficientRank, action, minRank)
	}

	if dualAuth {
		session, err := c.initiate(ctx, officer.OfficerID, action)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Pending: session}, nil
	}

	return Decision{Execute: true}, nil
}

// initiate opens a Pending AuthSession and returns it to the initiator. The
// command does not execute until a distinct officer confirms.
func (c *AuthCoordinator) initiate(ctx context.Context, initiatorID string, action Action) (*AuthSession, error) {
	seq, err := c.store.Incr(ctx, authSeqKey, 1)
	if err != nil {
		return nil, fmt.Errorf("initiate auth: %w", err)
	}

	now := c.now()
	session := AuthSession{
		ID:          fmt.Sprintf("OMEGA-%d", seq),
		InitiatorID: initiatorID,
		Action:      action,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.cfg.AuthSessionTTL),
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("initiate auth: %w", err)
	}
	if err := c.store.Set(ctx, authKey(session.ID), string(payload), c.cfg.AuthSessionTTL); err != nil {
		return nil, fmt.Errorf("initiate auth: %w", err)
	}

	c.logger.Info("auth session opened",
		zap.String("id", session.ID),
		zap.String("initiator", initiatorID),
		zap.String("action", string(action)))
	return &session, nil
}

// Confirm completes the dead-drop handshake. The confirming officer must be
// distinct from the initiator and must arrive before expiry. Deletion of the
// stored session is the linearization point: whichever caller removes the key
// wins, so a session executes exactly once.
func (c *AuthCoordinator) Confirm(ctx context.Context, confirmer Profile, id string) (*AuthSession, error) {
	raw, err := c.store.Get(ctx, authKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAuthSessionExpired, id)
		}
		return nil, fmt.Errorf("confirm auth %s: %w", id, err)
	}

	var session AuthSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("confirm auth %s: corrupt session: %w", id, err)
	}

	if c.now().After(session.ExpiresAt) {
		c.store.Delete(ctx, authKey(id))
		c.logger.Info("auth session expired",
			zap.String("id", id),
			zap.String("confirmer", confirmer.OfficerID))
		return nil, fmt.Errorf("%w: %s", ErrAuthSessionExpired, id)
	}

	if session.InitiatorID == confirmer.OfficerID {
		c.logger.Info("auth self-confirm rejected",
			zap.String("id", id),
			zap.String("officer", confirmer.OfficerID))
		return nil, fmt.Errorf("%w: %s", ErrAuthSessionSelfConfirm, id)
	}

	removed, err := c.store.Delete(ctx, authKey(id))
	if err != nil {
		return nil, fmt.Errorf("confirm auth %s: %w", id, err)
	}
	if removed == 0 {
		// A concurrent confirmation got there first.
		return nil, fmt.Errorf("%w: %s", ErrAuthSessionExpired, id)
	}

	c.logger.Info("auth session confirmed",
		zap.String("id", id),
		zap.String("initiator", session.InitiatorID),
		zap.String("confirmer", confirmer.OfficerID),
		zap.String("action", string(session.Action)))
	return &session, nil
}
