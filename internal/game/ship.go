package game

import (
	"context"
	"fmt"
	"strconv"

	"bridge-and-breach/server/internal/store"
)

// SystemStatus is the operational state of one subsystem.
type SystemStatus string

const (
	StatusOnline   SystemStatus = "online"
	StatusStandby  SystemStatus = "standby"
	StatusOffline  SystemStatus = "offline"
	StatusCritical SystemStatus = "critical"
)

// Subsystem pairs a status with a 0..100 level. The level's meaning depends
// on the subsystem: shield strength, warp core efficiency, weapons power,
// sensor range, life support efficiency, impulse power.
type Subsystem struct {
	Status SystemStatus `json:"status"`
	Level  int          `json:"level"`
	Ready  bool         `json:"ready"`
}

// ShipState is the single shared world snapshot broadcast to every session.
type ShipState struct {
	WarpCore    Subsystem `json:"warpCore"`
	Shields     Subsystem `json:"shields"`
	Weapons     Subsystem `json:"weapons"`
	Sensors     Subsystem `json:"sensors"`
	LifeSupport Subsystem `json:"lifesupport"`
	Impulse     Subsystem `json:"impulse"`
}

// systemNames enumerates the stored subsystem field prefixes.
var systemNames = []string{"warpCore", "shields", "weapons", "sensors", "lifesupport", "impulse"}

const shipKey = "ship:systems"

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

// normalize enforces the subsystem invariants: levels clamped to [0,100] and
// ready never true while offline or critical.
func (s Subsystem) normalize() Subsystem {
	s.Level = clampLevel(s.Level)
	switch s.Status {
	case StatusOnline, StatusStandby, StatusOffline, StatusCritical:
	default:
		s.Status = StatusStandby
	}
	s.Ready = s.Status == StatusOnline
	return s
}

func defaultShipState() ShipState {
	return ShipState{
		WarpCore:    Subsystem{Status: StatusStandby, Level: 0},
		Shields:     Subsystem{Status: StatusOnline, Level: 100},
		Weapons:     Subsystem{Status: StatusStandby, Level: 0},
		Sensors:     Subsystem{Status: StatusOnline, Level: 80},
		LifeSupport: Subsystem{Status: StatusOnline, Level: 100},
		Impulse:     Subsystem{Status: StatusOnline, Level: 25},
	}
}

// SeedShip writes the default subsystem values on first run. Subsequent runs
// leave existing state untouched.
func SeedShip(ctx context.Context, st store.Store) error {
	existing, err := st.HGetAll(ctx, shipKey)
	if err != nil {
		return fmt.Errorf("seed ship: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	fields := make(map[string]string)
	state := defaultShipState()
	for name, sys := range state.byName() {
		fields[name] = strconv.Itoa(sys.Level)
		fields[name+"_status"] = string(sys.Status)
	}
	if err := st.HSet(ctx, shipKey, fields); err != nil {
		return fmt.Errorf("seed ship: %w", err)
	}
	return nil
}

func (s *ShipState) byName() map[string]*Subsystem {
	return map[string]*Subsystem{
		"warpCore":    &s.WarpCore,
		"shields":     &s.Shields,
		"weapons":     &s.Weapons,
		"sensors":     &s.Sensors,
		"lifesupport": &s.LifeSupport,
		"impulse":     &s.Impulse,
	}
}

// LoadShip reads and normalizes the shared ship state.
func LoadShip(ctx context.Context, st store.Store) (ShipState, error) {
	raw, err := st.HGetAll(ctx, shipKey)
	if err != nil {
		return ShipState{}, fmt.Errorf("load ship: %w", err)
	}

	state := defaultShipState()
	for name, sys := range state.byName() {
		if levelRaw, ok := raw[name]; ok {
			if level, err := strconv.Atoi(levelRaw); err == nil {
				sys.Level = level
			}
		}
		if statusRaw, ok := raw[name+"_status"]; ok {
			sys.Status = SystemStatus(statusRaw)
		}
		*sys = sys.normalize()
	}
	return state, nil
}

// SystemUpdate adjusts one subsystem. Nil fields leave the current value in
// place.
type SystemUpdate struct {
	Level  *int
	Status *SystemStatus
}

// ApplyShipUpdates writes a batch of subsystem changes. Unknown system names
// are dropped, levels are clamped, and a level change without an explicit
// status flips the subsystem online (level > 0) or standby (level == 0),
// matching how the interpreter's freeform updates behaved originally.
func ApplyShipUpdates(ctx context.Context, st store.Store, updates map[string]SystemUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	fields := make(map[string]string)
	for name, update := range updates {
		if !knownSystem(name) {
			continue
		}
		if update.Level != nil {
			level := clampLevel(*update.Level)
			fields[name] = strconv.Itoa(level)
			if update.Status == nil {
				status := StatusOnline
				if level == 0 {
					status = StatusStandby
				}
				fields[name+"_status"] = string(status)
			}
		}
		if update.Status != nil {
			fields[name+"_status"] = string(*update.Status)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	if err := st.HSet(ctx, shipKey, fields); err != nil {
		return fmt.Errorf("apply ship updates: %w", err)
	}
	return nil
}

func knownSystem(name string) bool {
	for _, known := range systemNames {
		if name == known {
			return true
		}
	}
	return false
}

// LevelUpdate is shorthand for a level-only SystemUpdate.
func LevelUpdate(level int) SystemUpdate {
	return SystemUpdate{Level: &level}
}

// StatusUpdate is shorthand for a status-only SystemUpdate.
func StatusUpdate(status SystemStatus) SystemUpdate {
	return SystemUpdate{Status: &status}
}

// StatusSummary renders the ship state as a compact map for prompts and
// spoken status reports.
func (s ShipState) StatusSummary() map[string]int {
	summary := make(map[string]int, len(systemNames))
	for name, sys := range s.byName() {
		summary[name] = sys.Level
	}
	return summary
}
