package race

import (
	"fmt"
	"math/rand"

	"github.com/decred/slog"

	"github.com/johntylernyc/heatline/pkg/track"
)

// Serializable snapshots of the authoritative state. The server never
// persists these (all state is in-memory), but snapshots back the
// round-trip law tests and give invariant checks a stable shape.

// DeckState is the serializable form of a deck.
type DeckState struct {
	Draw    []Card `json:"draw"`
	Discard []Card `json:"discard"`
}

// PlayerSnapshot is the serializable form of a player.
type PlayerSnapshot struct {
	ID                 string    `json:"id"`
	Slot               int       `json:"slot"`
	Gear               int       `json:"gear"`
	Hand               []Card    `json:"hand"`
	Engine             []Card    `json:"engine"`
	Played             []Card    `json:"played"`
	Deck               DeckState `json:"deck"`
	Position           int       `json:"position"`
	PrevPosition       int       `json:"prevPosition"`
	Laps               int       `json:"laps"`
	Speed              int       `json:"speed"`
	HasBoosted         bool      `json:"hasBoosted"`
	AdrenalineCooldown int       `json:"adrenalineCooldown"`
	CooldownUsed       int       `json:"cooldownUsed"`
	ClutteredHand      bool      `json:"clutteredHand"`
	SpunOut            bool      `json:"spunOut"`
}

// MatchSnapshot is the serializable form of a match.
type MatchSnapshot struct {
	TrackID        string           `json:"trackId"`
	LapTarget      int              `json:"lapTarget"`
	Weather        Weather          `json:"weather,omitempty"`
	RoadConditions []RoadCondition  `json:"roadConditions,omitempty"`
	Players        []PlayerSnapshot `json:"players"`
	Round          int              `json:"round"`
	Phase          Phase            `json:"phase"`
	TurnOrder      []int            `json:"turnOrder"`
	TurnIndex      int              `json:"turnIndex"`
	Status         RaceStatus       `json:"status"`
}

// Snapshot captures the full authoritative state.
func (m *Match) Snapshot() *MatchSnapshot {
	snap := &MatchSnapshot{
		TrackID:   m.track.ID,
		LapTarget: m.lapTarget,
		Weather:   m.weather,
		Round:     m.Round,
		Phase:     m.Phase,
		TurnOrder: append([]int(nil), m.TurnOrder...),
		TurnIndex: m.turnIdx,
		Status:    m.Status,
	}
	for _, rc := range m.roads {
		snap.RoadConditions = append(snap.RoadConditions, rc)
	}
	for _, p := range m.Players {
		snap.Players = append(snap.Players, PlayerSnapshot{
			ID:                 p.ID,
			Slot:               p.Slot,
			Gear:               p.Gear,
			Hand:               append([]Card(nil), p.Hand...),
			Engine:             append([]Card(nil), p.Engine...),
			Played:             append([]Card(nil), p.Played...),
			Deck:               DeckState{Draw: p.Deck.drawCards(), Discard: p.Deck.DiscardCards()},
			Position:           p.Position,
			PrevPosition:       p.PrevPosition,
			Laps:               p.Laps,
			Speed:              p.Speed,
			HasBoosted:         p.HasBoosted,
			AdrenalineCooldown: p.AdrenalineCooldown,
			CooldownUsed:       p.CooldownUsed,
			ClutteredHand:      p.ClutteredHand,
			SpunOut:            p.SpunOut,
		})
	}
	return snap
}

// MatchFromSnapshot rebuilds a match from a snapshot. The RNG is re-seeded;
// reproducibility across a restore holds for the card layout, which the
// snapshot carries verbatim.
func MatchFromSnapshot(snap *MatchSnapshot, tr *track.Track, seed int64, log slog.Logger) (*Match, error) {
	if snap == nil {
		return nil, fmt.Errorf("match snapshot is nil")
	}
	if tr == nil || tr.ID != snap.TrackID {
		return nil, fmt.Errorf("snapshot was taken on track %q", snap.TrackID)
	}
	if log == nil {
		log = slog.Disabled
	}

	rng := rand.New(rand.NewSource(seed))
	m := &Match{
		track:     tr,
		lapTarget: snap.LapTarget,
		weather:   snap.Weather,
		roads:     make(map[int]RoadCondition, len(snap.RoadConditions)),
		log:       log,
		rng:       rng,
		Round:     snap.Round,
		Phase:     snap.Phase,
		TurnOrder: append([]int(nil), snap.TurnOrder...),
		Status:    snap.Status,
		turnIdx:   snap.TurnIndex,
	}
	for _, rc := range snap.RoadConditions {
		m.roads[rc.CornerID] = rc
	}
	for _, ps := range snap.Players {
		p := &Player{
			ID:                 ps.ID,
			Slot:               ps.Slot,
			Gear:               ps.Gear,
			Hand:               append([]Card(nil), ps.Hand...),
			Engine:             append([]Card(nil), ps.Engine...),
			Played:             append([]Card(nil), ps.Played...),
			Deck:               NewDeckFromState(ps.Deck, rng),
			Position:           ps.Position,
			PrevPosition:       ps.PrevPosition,
			Laps:               ps.Laps,
			Speed:              ps.Speed,
			HasBoosted:         ps.HasBoosted,
			AdrenalineCooldown: ps.AdrenalineCooldown,
			CooldownUsed:       ps.CooldownUsed,
			ClutteredHand:      ps.ClutteredHand,
			SpunOut:            ps.SpunOut,
		}
		m.Players = append(m.Players, p)
	}
	return m, nil
}
