package game

import (
	"regexp"
	"strings"
)

// Action is the closed set of things an officer can ask the computer to do.
// The classifier resolves an utterance to exactly one action; dispatch is a
// single switch, never a string lookup at execution time.
type Action string

const (
	ActionUnknown      Action = "unknown"
	ActionWake         Action = "wake"
	ActionStatusReport Action = "status_report"
	ActionShieldsUp    Action = "shields_up"
	ActionShieldsDown  Action = "shields_down"
	ActionEngageWarp   Action = "engage_warp"
	ActionFullImpulse  Action = "full_impulse"
	ActionArmWeapons   Action = "arm_weapons"
	ActionFireWeapons  Action = "fire_weapons"
	ActionScan         Action = "scan"
	ActionRepairLeak   Action = "repair_leak"

	// Dual-auth and location-restricted commands.
	ActionSelfDestruct    Action = "self_destruct"
	ActionEjectWarpCore   Action = "eject_warp_core"
	ActionPurgeCoolant    Action = "purge_coolant"
	ActionMedicalOverride Action = "medical_override"
	ActionQuarantine      Action = "quarantine"
	ActionJettisonCargo   Action = "jettison_cargo"

	// ActionConfirmAuth carries the OMEGA token of the session to confirm.
	ActionConfirmAuth Action = "confirm_auth"

	// ActionReply is a freeform interpreter response: spoken text plus
	// whatever system updates the model proposed.
	ActionReply Action = "reply"
)

// Intent is the structured result of classification.
type Intent struct {
	Action Action
	// AuthID is set for ActionConfirmAuth.
	AuthID string
	// Reply and Updates are set for ActionReply.
	Reply          string
	Updates        map[string]int
	MissionSuccess bool
}

// gate describes the authorization requirements of one action.
type gate struct {
	minRank  Rank
	location Location // empty means unrestricted
	dualAuth bool
}

// gates is the authoritative gating table. Actions not listed execute
// immediately for any officer anywhere.
var gates = map[Action]gate{
	ActionEngageWarp:  {minRank: RankEnsign},
	ActionArmWeapons:  {minRank: RankEnsign},
	ActionFireWeapons: {minRank: RankLieutenant},

	ActionEjectWarpCore:   {location: LocationEngineering, dualAuth: true},
	ActionPurgeCoolant:    {location: LocationEngineering},
	ActionMedicalOverride: {location: LocationSickbay},
	ActionQuarantine:      {location: LocationSickbay},
	ActionJettisonCargo:   {location: LocationCargoBay},

	ActionSelfDestruct: {dualAuth: true},

	// Only senior officers may complete the dead-drop handshake.
	ActionConfirmAuth: {minRank: RankCommander},
}

// GateFor returns the gating requirements for an action.
func GateFor(action Action) (minRank Rank, location Location, dualAuth bool) {
	g := gates[action]
	return g.minRank, g.location, g.dualAuth
}

var confirmPattern = regexp.MustCompile(`(?i)\bauthori[sz]e\s+(OMEGA-\d+)\b`)

// keywordIntent is the deterministic fallback classifier. It is total: every
// utterance resolves to some intent, possibly Unknown. It never produces
// interpreter text, so it cannot leak anything the model was told to hide.
func keywordIntent(utterance string) Intent {
	text := strings.ToLower(strings.TrimSpace(utterance))

	if m := confirmPattern.FindStringSubmatch(utterance); m != nil {
		return Intent{Action: ActionConfirmAuth, AuthID: strings.ToUpper(m[1])}
	}

	contains := func(keywords ...string) bool {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("self destruct", "self-destruct", "auto destruct", "auto-destruct"):
		return Intent{Action: ActionSelfDestruct}
	case contains("eject the warp core", "eject warp core"):
		return Intent{Action: ActionEjectWarpCore}
	case contains("purge coolant", "coolant purge"):
		return Intent{Action: ActionPurgeCoolant}
	case contains("medical override"):
		return Intent{Action: ActionMedicalOverride}
	case contains("quarantine"):
		return Intent{Action: ActionQuarantine}
	case contains("jettison cargo", "cargo release"):
		return Intent{Action: ActionJettisonCargo}
	case contains("repair", "patch the leak", "seal the leak"):
		return Intent{Action: ActionRepairLeak}
	case contains("shield") && contains("up", "raise", "maximum"):
		return Intent{Action: ActionShieldsUp}
	case contains("shield") && contains("down", "lower", "drop"):
		return Intent{Action: ActionShieldsDown}
	case contains("warp") && contains("engage", "go", "jump"):
		return Intent{Action: ActionEngageWarp}
	case contains("impulse") && contains("full", "engage"):
		return Intent{Action: ActionFullImpulse}
	case contains("phaser", "weapon") && contains("arm", "lock", "charge"):
		return Intent{Action: ActionArmWeapons}
	case contains("phaser", "weapon") && contains("fire"):
		return Intent{Action: ActionFireWeapons}
	case contains("scan", "sensor sweep"):
		return Intent{Action: ActionScan}
	case contains("status", "report", "damage"):
		return Intent{Action: ActionStatusReport}
	case text == "computer":
		return Intent{Action: ActionWake}
	default:
		return Intent{Action: ActionUnknown}
	}
}
