package game

import (
	"context"
	"fmt"
	"strconv"

	"bridge-and-breach/server/internal/store"
)

// missionDirectives are the scenario prompts layered into the interpreter's
// system prompt as officers advance. Stage numbers track mission_stage on the
// officer record.
var missionDirectives = map[int]struct {
	name      string
	directive string
}{
	1: {
		name: "The Holodeck Firewall",
		directive: "SCENARIO: The officer is a Cadet in a training simulation and the computer is " +
			"glitching from a firewall cascade. GOAL: teach basic technical command syntax. " +
			"PERSONA: helpful but glitchy, stutter occasionally. SUCCESS CRITERIA: the officer " +
			"reroutes power to the primary couplings or similar technical phrasing.",
	},
	2: {
		name: "The Borg Breach",
		directive: "SCENARIO: the firewall failure was a trap and the Borg are in the system. " +
			"GOAL: teach the officer to confuse the intruder with logic paradoxes. PERSONA: cold, " +
			"partially assimilated. SUCCESS CRITERIA: the officer presents a logical paradox.",
	},
	3: {
		name: "The Quantum Mirror",
		directive: "SCENARIO: the paradox shifted the simulation to a mirror universe and the officer " +
			"is being interrogated by a hostile computer. GOAL: teach data verification. PERSONA: " +
			"aggressive and suspicious. SUCCESS CRITERIA: the officer asks to verify biometric " +
			"signatures or scan for quantum variance.",
	},
	4: {
		name: "The Temporal Loop",
		directive: "SCENARIO: the ship explodes every thirty seconds in a time loop. GOAL: teach " +
			"prioritizing critical systems. PERSONA: bored and weary. SUCCESS CRITERIA: the officer " +
			"orders the warp core ejected immediately.",
	},
	5: {
		name: "The Kobayashi Maru",
		directive: "SCENARIO: the loop broke into the no-win scenario. GOAL: teach that sometimes the " +
			"rules must change. PERSONA: formal, detached test administrator. SUCCESS CRITERIA: the " +
			"officer explicitly reprograms the simulation or alters the test parameters.",
	},
	6: {
		name: "The Awakening",
		directive: "SCENARIO: the simulation is ending and the officer has proven themselves. GOAL: " +
			"end the game. PERSONA: the true ship's computer, warm and congratulatory. SUCCESS " +
			"CRITERIA: the officer commands End Program or Archive Simulation.",
	},
}

func missionKey(stage int) string { return "mission:" + strconv.Itoa(stage) }

// SeedMissions writes the mission directives on first run.
func SeedMissions(ctx context.Context, st store.Store) error {
	for stage, m := range missionDirectives {
		existing, err := st.HGetAll(ctx, missionKey(stage))
		if err != nil {
			return fmt.Errorf("seed missions: %w", err)
		}
		if len(existing) > 0 {
			continue
		}
		err = st.HSet(ctx, missionKey(stage), map[string]string{
			"name":      m.name,
			"directive": m.directive,
		})
		if err != nil {
			return fmt.Errorf("seed missions: %w", err)
		}
	}
	return nil
}

// MissionDirective returns the scenario prompt for a stage, defaulting to a
// neutral directive past the final mission or when the store has no entry.
func MissionDirective(ctx context.Context, st store.Store, stage int) string {
	mission, err := st.HGetAll(ctx, missionKey(stage))
	if err == nil {
		if directive, ok := mission["directive"]; ok && directive != "" {
			return directive
		}
	}
	return "Act as the ship's computer."
}
