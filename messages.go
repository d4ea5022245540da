package server

import "bridge-and-breach/server/internal/game"

// commandMessage is the only frame clients send: one natural-language
// utterance per frame.
type commandMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// welcomeMessage is the first frame after a successful handshake. It carries
// everything a client needs to render without waiting for a broadcast.
type welcomeMessage struct {
	Type       string           `json:"type"`
	SessionID  string           `json:"sessionId"`
	OfficerID  string           `json:"officerId"`
	Name       string           `json:"name"`
	Rank       string           `json:"rank"`
	XP         int64            `json:"xp"`
	Location   game.Location    `json:"location"`
	Systems    game.ShipState   `json:"systems"`
	Leak       *game.LeakStatus `json:"leak,omitempty"`
	ServerTime int64            `json:"serverTime"`
}

// replyMessage is the computer's spoken answer, sent to the issuing session
// only.
type replyMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// stateMessage is the shared ship snapshot broadcast after any mutation.
type stateMessage struct {
	Type       string         `json:"type"`
	Systems    game.ShipState `json:"systems"`
	ServerTime int64          `json:"serverTime"`
}

// leakEventMessage announces radiation leak lifecycle and repair progress.
type leakEventMessage struct {
	Type         string `json:"type"`
	Active       bool   `json:"active"`
	Progress     int64  `json:"progress"`
	RequiredTaps int64  `json:"requiredTaps"`
	ResolvedBy   string `json:"resolvedBy,omitempty"`
}

// promotionMessage announces a rank change to the whole crew.
type promotionMessage struct {
	Type      string `json:"type"`
	OfficerID string `json:"officerId"`
	Name      string `json:"name"`
	NewRank   string `json:"newRank"`
}

// authPendingMessage tells the initiator their dual-auth session is open.
// The OMEGA token travels only to the initiator; relaying it to a senior
// officer is the players' problem.
type authPendingMessage struct {
	Type      string `json:"type"`
	AuthID    string `json:"id"`
	Action    string `json:"action"`
	ExpiresAt int64  `json:"expiresAt"`
}

// authErrorMessage reports a gate rejection to the offending session.
type authErrorMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
