package game

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"bridge-and-breach/server/internal/store"
)

// Rank is the officer's display role. Ordering matters: gates compare ranks
// numerically.
type Rank int

const (
	RankCadet Rank = iota
	RankEnsign
	RankLieutenant
	RankCommander
	RankAdmiral
)

func (r Rank) String() string {
	switch r {
	case RankCadet:
		return "Cadet"
	case RankEnsign:
		return "Ensign"
	case RankLieutenant:
		return "Lieutenant"
	case RankCommander:
		return "Commander"
	case RankAdmiral:
		return "Admiral"
	default:
		return "Unknown"
	}
}

// MaxRank is the ceiling for promotions.
const MaxRank = RankAdmiral

// Location is where an officer's session is physically anchored. It is fixed
// at handshake time unless the client re-supplies a location token.
type Location string

const (
	LocationBridge        Location = "Bridge"
	LocationEngineering   Location = "Engineering"
	LocationSickbay       Location = "Sickbay"
	LocationCargoBay      Location = "Cargo Bay"
	LocationJefferiesTube Location = "Jefferies Tube"
)

// ParseLocation resolves a decoded location token. Unrecognized tokens fall
// back to the Bridge rather than failing the handshake.
func ParseLocation(name string) Location {
	switch Location(name) {
	case LocationBridge, LocationEngineering, LocationSickbay, LocationCargoBay, LocationJefferiesTube:
		return Location(name)
	default:
		return LocationBridge
	}
}

// Profile is the persistent officer record, keyed by a stable client-supplied
// identifier so reconnects resume progress. Session-scoped fields (location,
// connection time) live on the hub session, not here.
type Profile struct {
	OfficerID    string
	Name         string
	Rank         Rank
	XP           int64
	MissionStage int
}

func officerKey(officerID string) string { return "user:" + officerID }

// LoadProfile fetches an officer's stored record, creating a fresh Cadet
// record when none exists yet.
func LoadProfile(ctx context.Context, st store.Store, officerID string) (Profile, error) {
	raw, err := st.HGetAll(ctx, officerKey(officerID))
	if err != nil {
		return Profile{}, fmt.Errorf("load officer %s: %w", officerID, err)
	}
	if len(raw) == 0 {
		profile := Profile{
			OfficerID:    officerID,
			Name:         defaultName(officerID),
			Rank:         RankCadet,
			MissionStage: 1,
		}
		if err := saveProfile(ctx, st, profile); err != nil {
			return Profile{}, err
		}
		return profile, nil
	}

	profile := Profile{
		OfficerID:    officerID,
		Name:         raw["name"],
		MissionStage: 1,
	}
	if level, err := strconv.Atoi(raw["rank_level"]); err == nil {
		profile.Rank = clampRank(Rank(level))
	}
	if xp, err := strconv.ParseInt(raw["xp"], 10, 64); err == nil && xp > 0 {
		profile.XP = xp
	}
	if stage, err := strconv.Atoi(raw["mission_stage"]); err == nil && stage > 0 {
		profile.MissionStage = stage
	}
	if profile.Name == "" {
		profile.Name = defaultName(officerID)
	}
	return profile, nil
}

func saveProfile(ctx context.Context, st store.Store, p Profile) error {
	err := st.HSet(ctx, officerKey(p.OfficerID), map[string]string{
		"name":          p.Name,
		"rank":          p.Rank.String(),
		"rank_level":    strconv.Itoa(int(p.Rank)),
		"xp":            strconv.FormatInt(p.XP, 10),
		"mission_stage": strconv.Itoa(p.MissionStage),
	})
	if err != nil {
		return fmt.Errorf("save officer %s: %w", p.OfficerID, err)
	}
	return nil
}

func defaultName(officerID string) string {
	prefix := officerID
	if len(prefix) > 5 {
		prefix = prefix[:5]
	}
	return "Cadet " + prefix
}

func clampRank(r Rank) Rank {
	if r < RankCadet {
		return RankCadet
	}
	if r > MaxRank {
		return MaxRank
	}
	return r
}

// RenameOfficer updates the stored display name.
func RenameOfficer(ctx context.Context, st store.Store, officerID, name string) error {
	if name == "" {
		return errors.New("empty officer name")
	}
	return st.HSet(ctx, officerKey(officerID), map[string]string{"name": name})
}
