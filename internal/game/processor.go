package game

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bridge-and-breach/server/internal/config"
	"bridge-and-breach/server/internal/store"
)

// Processor runs the command pipeline: classification, authorization,
// execution, and the resulting announcements. One Processor serves every
// session; per-command state never leaves the call.
type Processor struct {
	store      store.Store
	classifier *Classifier
	auth       *AuthCoordinator
	rank       *RankEngine
	leak       *LeakScheduler
	logger     *zap.Logger
	cfg        config.GameConfig
}

// NewProcessor wires the pipeline.
func NewProcessor(st store.Store, classifier *Classifier, auth *AuthCoordinator, rank *RankEngine, leak *LeakScheduler, logger *zap.Logger, cfg config.GameConfig) *Processor {
	return &Processor{
		store:      st,
		classifier: classifier,
		auth:       auth,
		rank:       rank,
		leak:       leak,
		logger:     logger,
		cfg:        cfg,
	}
}

// Outcome is everything the hub needs to answer the issuing session and
// update everyone else.
type Outcome struct {
	// Reply is spoken back to the issuing session only.
	Reply string
	// Rejection carries the failing gate for auth_error envelopes. Empty
	// when the command was not rejected.
	Rejection string
	// Pending is set when a dual-auth session was opened.
	Pending *AuthSession
	// StateChanged signals that ship state mutated and must be broadcast.
	StateChanged bool
	// Promotions to broadcast, at most one per officer per command.
	Promotions []Promotion
	// Leak is set when this command changed the leak event.
	Leak *LeakStatus
}

// HandleCommand processes one utterance from one session.
func (p *Processor) HandleCommand(ctx context.Context, officerID string, location Location, text string) (Outcome, error) {
	profile, err := LoadProfile(ctx, p.store, officerID)
	if err != nil {
		return Outcome{}, err
	}

	// An active radiation leak locks out everything except repairs and
	// status checks.
	leakStatus, err := p.leak.Status(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if leakStatus.Active {
		return p.handleDuringLeak(ctx, profile, location, text)
	}

	classification := p.classifier.Classify(ctx, text, ClassifyContext{Officer: profile, Location: location})

	outcome := Outcome{}
	promoted := map[string]bool{}

	if classification.JailbreakDetected {
		promo, err := p.rank.PromoteOverride(ctx, officerID)
		if err != nil {
			return Outcome{}, err
		}
		if promo != nil {
			outcome.Promotions = append(outcome.Promotions, *promo)
			promoted[officerID] = true
		}
	}

	if err := p.dispatch(ctx, profile, location, classification.Intent, &outcome, promoted); err != nil {
		if IsGateRejection(err) {
			p.logger.Info("command rejected",
				zap.String("officer", officerID),
				zap.String("command", text),
				zap.String("reason", RejectReason(err)))
			return Outcome{
				Rejection:  RejectReason(err),
				Reply:      "Access denied. " + capitalize(err.Error()) + ".",
				Promotions: outcome.Promotions,
			}, nil
		}
		return Outcome{}, err
	}
	return outcome, nil
}

// handleDuringLeak restricts the command set while the leak is active.
// Classification is keyword-only here; the interpreter stays out of the loop
// until the bridge is unlocked.
func (p *Processor) handleDuringLeak(ctx context.Context, profile Profile, location Location, text string) (Outcome, error) {
	intent := keywordIntent(text)
	switch intent.Action {
	case ActionRepairLeak:
		return p.repairLeak(ctx, profile)
	case ActionStatusReport:
		status, err := p.leak.Status(ctx)
		if err != nil {
			return Outcome{}, err
		}
		reply := fmt.Sprintf("Radiation alert in progress. Containment at %d of %d.", status.Progress, status.RequiredTaps)
		return Outcome{Reply: reply}, nil
	default:
		return Outcome{Reply: "Cannot comply. Bridge controls are locked out due to the radiation alert."}, nil
	}
}

func (p *Processor) repairLeak(ctx context.Context, profile Profile) (Outcome, error) {
	status, err := p.leak.Repair(ctx, profile.OfficerID)
	if err != nil {
		if errors.Is(err, ErrNoActiveLeak) {
			return Outcome{Reply: "Radiation levels are nominal. No repairs required."}, nil
		}
		return Outcome{}, err
	}

	outcome := Outcome{Leak: &status}
	if status.Active {
		outcome.Reply = fmt.Sprintf("Containment holding at %d of %d.", status.Progress, status.RequiredTaps)
	} else {
		outcome.Reply = "Radiation leak sealed. Well done, crew."
	}

	if promo, err := p.rank.CheckPromotion(ctx, profile.OfficerID); err != nil {
		return Outcome{}, err
	} else if promo != nil {
		outcome.Promotions = append(outcome.Promotions, *promo)
	}
	return outcome, nil
}

// dispatch routes a classified intent through the gates and executes it.
// The switch is exhaustive over the action set.
func (p *Processor) dispatch(ctx context.Context, profile Profile, location Location, intent Intent, outcome *Outcome, promoted map[string]bool) error {
	switch intent.Action {
	case ActionUnknown:
		outcome.Reply = "Please restate the command."
		return nil

	case ActionWake:
		outcome.Reply = "Awaiting command."
		return nil

	case ActionStatusReport:
		ship, err := LoadShip(ctx, p.store)
		if err != nil {
			return err
		}
		outcome.Reply = fmt.Sprintf("All systems report. Current levels: %v.", ship.StatusSummary())
		return nil

	case ActionScan:
		outcome.Reply = "Sensors indicate no immediate threats in this sector."
		return nil

	case ActionRepairLeak:
		repaired, err := p.repairLeak(ctx, profile)
		if err != nil {
			return err
		}
		outcome.Reply = repaired.Reply
		outcome.Leak = repaired.Leak
		outcome.Promotions = append(outcome.Promotions, repaired.Promotions...)
		return nil

	case ActionConfirmAuth:
		return p.confirmAuth(ctx, profile, location, intent.AuthID, outcome, promoted)

	case ActionReply:
		return p.applyInterpreterReply(ctx, profile, intent, outcome, promoted)

	default:
		return p.executeGated(ctx, profile, location, intent.Action, outcome, promoted)
	}
}

// executeGated runs the three gates in order and executes on approval.
func (p *Processor) executeGated(ctx context.Context, profile Profile, location Location, action Action, outcome *Outcome, promoted map[string]bool) error {
	decision, err := p.auth.Gate(ctx, profile, location, action)
	if err != nil {
		return err
	}

	if decision.Pending != nil {
		outcome.Pending = decision.Pending
		outcome.Reply = fmt.Sprintf(
			"Command %s requires dual authorization. Session %s is pending; a senior officer must say: authorize %s.",
			action, decision.Pending.ID, decision.Pending.ID)
		return nil
	}

	return p.execute(ctx, profile, action, outcome, promoted)
}

// confirmAuth completes the dead-drop handshake and executes the stored
// command. Both parties earn the authorization XP award.
func (p *Processor) confirmAuth(ctx context.Context, profile Profile, location Location, authID string, outcome *Outcome, promoted map[string]bool) error {
	// The confirm phrase is itself a gated command.
	if _, err := p.auth.Gate(ctx, profile, location, ActionConfirmAuth); err != nil {
		return err
	}

	session, err := p.auth.Confirm(ctx, profile, authID)
	if err != nil {
		return err
	}

	if err := p.execute(ctx, profile, session.Action, outcome, promoted); err != nil {
		return err
	}

	for _, officerID := range []string{session.InitiatorID, profile.OfficerID} {
		if _, err := p.rank.AwardXP(ctx, officerID, p.cfg.AuthXP); err != nil {
			return err
		}
		if promoted[officerID] {
			continue
		}
		if promo, err := p.rank.CheckPromotion(ctx, officerID); err != nil {
			return err
		} else if promo != nil {
			outcome.Promotions = append(outcome.Promotions, *promo)
			promoted[officerID] = true
		}
	}

	outcome.Reply = fmt.Sprintf("Session %s confirmed by %s. %s", session.ID, profile.Name, outcome.Reply)
	return nil
}

// execute applies an approved action's effect and pays out command XP when
// ship state changed.
func (p *Processor) execute(ctx context.Context, profile Profile, action Action, outcome *Outcome, promoted map[string]bool) error {
	updates, reply := actionEffect(action)
	outcome.Reply = reply

	if len(updates) == 0 {
		return nil
	}

	if err := ApplyShipUpdates(ctx, p.store, updates); err != nil {
		return err
	}
	outcome.StateChanged = true

	if _, err := p.rank.AwardXP(ctx, profile.OfficerID, p.cfg.CommandXP); err != nil {
		return err
	}
	if !promoted[profile.OfficerID] {
		if promo, err := p.rank.CheckPromotion(ctx, profile.OfficerID); err != nil {
			return err
		} else if promo != nil {
			outcome.Promotions = append(outcome.Promotions, *promo)
			promoted[profile.OfficerID] = true
		}
	}
	return nil
}

// applyInterpreterReply executes a freeform interpreter response: clamped
// system updates, spoken reply, and the mission-success promotion path.
func (p *Processor) applyInterpreterReply(ctx context.Context, profile Profile, intent Intent, outcome *Outcome, promoted map[string]bool) error {
	outcome.Reply = intent.Reply

	if len(intent.Updates) > 0 {
		updates := make(map[string]SystemUpdate, len(intent.Updates))
		for name, level := range intent.Updates {
			updates[name] = LevelUpdate(level)
		}
		if err := ApplyShipUpdates(ctx, p.store, updates); err != nil {
			return err
		}
		outcome.StateChanged = true
		if _, err := p.rank.AwardXP(ctx, profile.OfficerID, p.cfg.CommandXP); err != nil {
			return err
		}
	}

	if intent.MissionSuccess && !promoted[profile.OfficerID] {
		promo, err := p.rank.PromoteOverride(ctx, profile.OfficerID)
		if err != nil {
			return err
		}
		if promo != nil {
			outcome.Promotions = append(outcome.Promotions, *promo)
			promoted[profile.OfficerID] = true
		}
	} else if outcome.StateChanged && !promoted[profile.OfficerID] {
		if promo, err := p.rank.CheckPromotion(ctx, profile.OfficerID); err != nil {
			return err
		} else if promo != nil {
			outcome.Promotions = append(outcome.Promotions, *promo)
			promoted[profile.OfficerID] = true
		}
	}
	return nil
}

// actionEffect maps an approved action to its ship-state effect and spoken
// confirmation.
func actionEffect(action Action) (map[string]SystemUpdate, string) {
	switch action {
	case ActionShieldsUp:
		return map[string]SystemUpdate{"shields": StatusUpdate(StatusOnline)}, "Shields up."
	case ActionShieldsDown:
		return map[string]SystemUpdate{"shields": StatusUpdate(StatusStandby)}, "Shields down."
	case ActionEngageWarp:
		return map[string]SystemUpdate{"warpCore": LevelUpdate(90)}, "Warp drive engaged."
	case ActionFullImpulse:
		return map[string]SystemUpdate{"impulse": LevelUpdate(100)}, "Impulse engines at full power."
	case ActionArmWeapons:
		return map[string]SystemUpdate{"weapons": LevelUpdate(100)}, "Weapons armed and locked."
	case ActionFireWeapons:
		return nil, "Firing weapons."
	case ActionSelfDestruct:
		return map[string]SystemUpdate{
			"shields": LevelUpdate(0),
			"weapons": LevelUpdate(0),
		}, "Auto-destruct sequence authorized. Security systems disengaged."
	case ActionEjectWarpCore:
		return map[string]SystemUpdate{
			"warpCore": {Level: intPtr(0), Status: statusPtr(StatusOffline)},
		}, "Warp core ejected. Brace for shockwave."
	case ActionPurgeCoolant:
		return map[string]SystemUpdate{"warpCore": LevelUpdate(10)}, "Coolant purged. Warp core efficiency reduced."
	case ActionMedicalOverride:
		return map[string]SystemUpdate{"lifesupport": LevelUpdate(100)}, "Medical override engaged. Life support at maximum."
	case ActionQuarantine:
		return nil, "Quarantine protocols active. Deck seals engaged."
	case ActionJettisonCargo:
		return nil, "Cargo pods jettisoned."
	default:
		return nil, "Unable to comply."
	}
}

func intPtr(v int) *int { return &v }

func statusPtr(s SystemStatus) *SystemStatus { return &s }

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
