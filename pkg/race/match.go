package race

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/decred/slog"

	"github.com/johntylernyc/heatline/pkg/track"
)

// Phase names the nine stages of a round plus the terminal state.
type Phase string

const (
	PhaseGearShift     Phase = "gear-shift"
	PhasePlayCards     Phase = "play-cards"
	PhaseRevealAndMove Phase = "reveal-and-move"
	PhaseAdrenaline    Phase = "adrenaline"
	PhaseReact         Phase = "react"
	PhaseSlipstream    Phase = "slipstream"
	PhaseCheckCorner   Phase = "check-corner"
	PhaseDiscard       Phase = "discard"
	PhaseReplenish     Phase = "replenish"
	PhaseFinished      Phase = "finished"
)

// PhaseClass describes who acts during a phase.
type PhaseClass string

const (
	// ClassSimultaneous collects one action from every player.
	ClassSimultaneous PhaseClass = "simultaneous"
	// ClassSequentialInput walks turn order waiting for player input.
	ClassSequentialInput PhaseClass = "sequential-input"
	// ClassSequentialAuto walks turn order with engine-driven steps.
	ClassSequentialAuto PhaseClass = "sequential-auto"
	// ClassAutomatic runs entirely inside the engine.
	ClassAutomatic PhaseClass = "automatic"
	// ClassTerminal is the finished state.
	ClassTerminal PhaseClass = "terminal"
)

// Class returns the phase's class.
func (p Phase) Class() PhaseClass {
	switch p {
	case PhaseGearShift, PhasePlayCards, PhaseDiscard:
		return ClassSimultaneous
	case PhaseReact, PhaseSlipstream:
		return ClassSequentialInput
	case PhaseRevealAndMove, PhaseCheckCorner:
		return ClassSequentialAuto
	case PhaseAdrenaline, PhaseReplenish:
		return ClassAutomatic
	default:
		return ClassTerminal
	}
}

// RaceStatus is the match-level progress marker.
type RaceStatus string

const (
	StatusRacing   RaceStatus = "racing"
	StatusFinished RaceStatus = "finished"
	// No intermediate final-round status: the winning lap is banked at
	// replenish, after every player has completed the round, so the race
	// goes straight from racing to finished.
)

// Weather is the optional race-wide weather token. Rain starts engines one
// heat short (damp engines); a heat wave adds a stress card to every
// starting deck.
type Weather string

const (
	WeatherNone     Weather = ""
	WeatherRain     Weather = "rain"
	WeatherHeatWave Weather = "heat-wave"
)

// RoadCondition is an optional per-corner placement. LimitDelta adjusts the
// corner's speed limit; FreeBoost marks the sector following the corner as
// a free-boost stretch where boosting costs no engine heat.
type RoadCondition struct {
	CornerID   int  `json:"cornerId"`
	LimitDelta int  `json:"limitDelta"`
	FreeBoost  bool `json:"freeBoost"`
}

// Seat describes one roster entry when creating a match.
type Seat struct {
	ID   string
	Slot int
}

// MatchConfig holds everything needed to build a reproducible match. The
// same config, seed and action log always produce the same final state.
type MatchConfig struct {
	Track          *track.Track
	LapTarget      int
	Seats          []Seat
	Seed           int64
	StressCount    int // 0 means DefaultStressCount
	Weather        Weather
	RoadConditions []RoadCondition
	Log            slog.Logger
}

// Match is the authoritative state of one race. It is a pure state machine
// over its inputs: no locks, no timers, no I/O beyond the injected logger.
type Match struct {
	track     *track.Track
	lapTarget int
	weather   Weather
	roads     map[int]RoadCondition // keyed by corner id
	log       slog.Logger
	rng       *rand.Rand

	Players   []*Player
	Round     int
	Phase     Phase
	TurnOrder []int
	Status    RaceStatus

	// turnIdx indexes TurnOrder during sequential phases.
	turnIdx int
}

// NewMatch builds the initial match state: shuffled starting decks, engines
// loaded with heat, opening hands of seven, everyone in first gear on the
// start/finish line.
func NewMatch(cfg MatchConfig) (*Match, error) {
	if cfg.Track == nil {
		return nil, fmt.Errorf("match requires a track")
	}
	if len(cfg.Seats) < 1 {
		return nil, fmt.Errorf("match requires at least one seat")
	}
	if cfg.LapTarget < 1 {
		return nil, fmt.Errorf("lap target must be at least 1, got %d", cfg.LapTarget)
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}

	stress := cfg.StressCount
	if stress == 0 {
		stress = DefaultStressCount
	}
	engineHeat := StartingEngineHeat
	switch cfg.Weather {
	case WeatherRain:
		engineHeat--
	case WeatherHeatWave:
		stress++
	}

	roads := make(map[int]RoadCondition, len(cfg.RoadConditions))
	for _, rc := range cfg.RoadConditions {
		if _, ok := cfg.Track.CornerByID(rc.CornerID); !ok {
			return nil, fmt.Errorf("road condition references unknown corner %d", rc.CornerID)
		}
		roads[rc.CornerID] = rc
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	m := &Match{
		track:     cfg.Track,
		lapTarget: cfg.LapTarget,
		weather:   cfg.Weather,
		roads:     roads,
		log:       log,
		rng:       rng,
		Round:     1,
		Phase:     PhaseGearShift,
		Status:    StatusRacing,
	}

	seats := append([]Seat(nil), cfg.Seats...)
	sort.Slice(seats, func(i, j int) bool { return seats[i].Slot < seats[j].Slot })
	for i, seat := range seats {
		if seat.Slot != i {
			return nil, fmt.Errorf("seats must occupy slots 0..n-1, got slot %d at index %d", seat.Slot, i)
		}
		p := &Player{
			ID:           seat.ID,
			Slot:         seat.Slot,
			Gear:         MinGear,
			Deck:         NewDeck(StartingDeck(stress), rng),
			Position:     cfg.Track.StartFinishLine,
			PrevPosition: cfg.Track.StartFinishLine,
		}
		for h := 0; h < engineHeat; h++ {
			p.Engine = append(p.Engine, HeatCard())
		}
		p.Hand = p.Deck.DrawN(HandSize)
		m.Players = append(m.Players, p)
	}

	m.TurnOrder = m.computeTurnOrder()
	log.Debugf("match created: %d players, %d laps on %s (seed %d)",
		len(m.Players), cfg.LapTarget, cfg.Track.ID, cfg.Seed)
	return m, nil
}

// Track returns the match's track.
func (m *Match) Track() *track.Track {
	return m.track
}

// LapTarget returns the number of laps needed to finish.
func (m *Match) LapTarget() int {
	return m.lapTarget
}

// Weather returns the weather token.
func (m *Match) Weather() Weather {
	return m.weather
}

// PlayerBySlot returns the player in the given slot.
func (m *Match) PlayerBySlot(slot int) (*Player, error) {
	if slot < 0 || slot >= len(m.Players) {
		return nil, fmt.Errorf("slot %d out of range", slot)
	}
	return m.Players[slot], nil
}

// ActiveSlot returns the acting slot during sequential phases, -1 in
// simultaneous, automatic and terminal phases.
func (m *Match) ActiveSlot() int {
	switch m.Phase.Class() {
	case ClassSequentialInput, ClassSequentialAuto:
		if m.turnIdx < len(m.TurnOrder) {
			return m.TurnOrder[m.turnIdx]
		}
	}
	return -1
}

// computeTurnOrder returns the slot permutation with the race leader first:
// highest absolute position, ties broken by lower slot index. The source
// track layout has a richer race-line tie-break marked as a placeholder;
// slot index stands in for it.
func (m *Match) computeTurnOrder() []int {
	order := make([]int, len(m.Players))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := m.Players[order[a]], m.Players[order[b]]
		if pa.Position != pb.Position {
			return pa.Position > pb.Position
		}
		return pa.Slot < pb.Slot
	})
	return order
}

// advanceTurn moves the sequential pointer to the next entry in turn order
// and transitions to next after the last player.
func (m *Match) advanceTurn(next Phase) {
	m.turnIdx++
	if m.turnIdx >= len(m.TurnOrder) {
		m.turnIdx = 0
		m.Phase = next
	}
}

// effectiveSpeedLimit applies any road condition to a corner's base limit.
// The limit never drops below 1.
func (m *Match) effectiveSpeedLimit(c track.Corner) int {
	limit := c.SpeedLimit
	if rc, ok := m.roads[c.ID]; ok {
		limit += rc.LimitDelta
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// inFreeBoostSector reports whether the player's current sector is flagged
// as a free-boost stretch.
func (m *Match) inFreeBoostSector(p *Player) bool {
	if len(m.roads) == 0 {
		return false
	}
	sec, err := m.track.SectorAt(p.LoopPosition(m.track.TotalSpaces))
	if err != nil {
		return false
	}
	rc, ok := m.roads[sec.From.ID]
	return ok && rc.FreeBoost
}

// absoluteBehind returns the largest absolute position not exceeding from
// whose loop position equals targetLoop. Used by spinouts, the only source
// of backward motion.
func (m *Match) absoluteBehind(from, targetLoop int) int {
	n := m.track.TotalSpaces
	fromLoop := ((from % n) + n) % n
	delta := ((fromLoop - targetLoop) % n + n) % n
	return from - delta
}
