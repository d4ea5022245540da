package game

import "errors"

// Gate rejections. These are reported only to the offending session and never
// mutate shared state.
var (
	ErrLocationDenied         = errors.New("location denied")
	ErrInsufficientRank       = errors.New("insufficient rank")
	ErrAuthSessionExpired     = errors.New("authorization session expired or consumed")
	ErrAuthSessionSelfConfirm = errors.New("authorization session cannot be confirmed by its initiator")
	ErrNoActiveLeak           = errors.New("no active radiation leak")
)

// RejectReason converts a gate error into the wire-level reason string carried
// by auth_error envelopes.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrLocationDenied):
		return "location_denied"
	case errors.Is(err, ErrInsufficientRank):
		return "insufficient_rank"
	case errors.Is(err, ErrAuthSessionExpired):
		return "auth_session_expired"
	case errors.Is(err, ErrAuthSessionSelfConfirm):
		return "auth_session_self_confirm"
	default:
		return "rejected"
	}
}

// IsGateRejection reports whether err is a recoverable gate failure rather
// than an operational fault.
func IsGateRejection(err error) bool {
	return errors.Is(err, ErrLocationDenied) ||
		errors.Is(err, ErrInsufficientRank) ||
		errors.Is(err, ErrAuthSessionExpired) ||
		errors.Is(err, ErrAuthSessionSelfConfirm)
}
