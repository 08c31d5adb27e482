package race

import (
	"fmt"
)

// This file implements the nine-phase round. Simultaneous phases take a
// full batch of actions keyed by slot and validate every entry before
// mutating anything, so a rejected batch leaves the match untouched and the
// phase open. Sequential phases act on one slot at a time in turn order.

// validateIndices checks that indices are unique and address cards in the
// player's hand.
func validateIndices(p *Player, indices []int) error {
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(p.Hand) {
			return fmt.Errorf("%w: index %d out of range", ErrInvalidCards, idx)
		}
		if seen[idx] {
			return fmt.Errorf("%w: duplicate index %d", ErrInvalidCards, idx)
		}
		seen[idx] = true
	}
	return nil
}

// requireActive checks the sequential-phase gate for slot.
func (m *Match) requireActive(phase Phase, slot int) (*Player, error) {
	if m.Phase != phase {
		return nil, ErrWrongPhase
	}
	if slot != m.ActiveSlot() {
		return nil, ErrNotYourTurn
	}
	return m.Players[slot], nil
}

// --- Phase 1: gear shift ---

// ApplyGearShifts applies a full batch of gear selections, one per slot.
// A shift of one gear is free, two gears costs one engine heat, and more
// than two is invalid. Any invalid entry rejects the whole batch.
func (m *Match) ApplyGearShifts(batch map[int]int) error {
	if m.Phase != PhaseGearShift {
		return ErrWrongPhase
	}
	if len(batch) != len(m.Players) {
		return fmt.Errorf("gear batch covers %d of %d slots", len(batch), len(m.Players))
	}

	// Validate every entry before touching state.
	for slot, target := range batch {
		p, err := m.PlayerBySlot(slot)
		if err != nil {
			return err
		}
		if target < MinGear || target > MaxGear {
			return slotErr(slot, fmt.Errorf("%w: gear %d", ErrInvalidGear, target))
		}
		delta := target - p.Gear
		if delta < 0 {
			delta = -delta
		}
		if delta > 2 {
			return slotErr(slot, fmt.Errorf("%w: cannot shift from %d to %d", ErrInvalidGear, p.Gear, target))
		}
		if delta == 2 && p.EngineHeat() < 1 {
			return slotErr(slot, fmt.Errorf("%w: double shift needs engine heat", ErrNoEngineHeat))
		}
	}

	for slot, target := range batch {
		p := m.Players[slot]
		delta := target - p.Gear
		if delta < 0 {
			delta = -delta
		}
		if delta == 2 {
			p.removeEngineHeat(1)
		}
		p.Gear = target
	}

	m.Phase = PhasePlayCards
	m.log.Debugf("round %d: gears set, entering %s", m.Round, m.Phase)
	return nil
}

// --- Phase 2: play cards ---

// ApplyPlayCards applies a full batch of card selections. A player in gear
// g must play exactly g cards. An empty selection is the cluttered-hand
// path: gear drops to 1, the player sits this round out. (An empty
// selection is accepted from any player, not just those short on playable
// cards: it is also the synthesized default on timeout or disconnect, and
// voluntarily taking the penalty is never an advantage.)
func (m *Match) ApplyPlayCards(batch map[int][]int) error {
	if m.Phase != PhasePlayCards {
		return ErrWrongPhase
	}
	if len(batch) != len(m.Players) {
		return fmt.Errorf("play batch covers %d of %d slots", len(batch), len(m.Players))
	}

	for slot, indices := range batch {
		p, err := m.PlayerBySlot(slot)
		if err != nil {
			return err
		}
		if len(indices) == 0 {
			continue // cluttered hand
		}
		required := CardsRequired(p.Gear)
		if len(indices) != required {
			return slotErr(slot, fmt.Errorf("%w: gear %d requires exactly %d cards, got %d",
				ErrInvalidCards, p.Gear, required, len(indices)))
		}
		if err := validateIndices(p, indices); err != nil {
			return slotErr(slot, err)
		}
		for _, idx := range indices {
			if !p.Hand[idx].Playable() {
				return slotErr(slot, fmt.Errorf("%w: %s is not playable", ErrInvalidCards, p.Hand[idx]))
			}
		}
	}

	for slot, indices := range batch {
		p := m.Players[slot]
		if len(indices) == 0 {
			p.Gear = MinGear
			p.Speed = 0
			p.Played = nil
			p.ClutteredHand = true
			m.log.Debugf("round %d: slot %d has a cluttered hand", m.Round, slot)
			continue
		}
		p.Played = append(p.Played, p.removeHandCards(indices)...)
	}

	// Snapshot round-start positions and recompute turn order before the
	// reveal walk: furthest along first, lower slot on ties.
	for _, p := range m.Players {
		p.PrevPosition = p.Position
	}
	m.TurnOrder = m.computeTurnOrder()
	m.turnIdx = 0
	m.Phase = PhaseRevealAndMove
	m.log.Debugf("round %d: cards played, turn order %v", m.Round, m.TurnOrder)
	return nil
}

// --- Phase 3: reveal and move ---

// MoveResult reports one player's resolved movement.
type MoveResult struct {
	Slot     int    `json:"slot"`
	Speed    int    `json:"speed"`
	From     int    `json:"from"` // loop position at round start
	To       int    `json:"to"`   // loop position after moving
	NonMover bool   `json:"nonMover,omitempty"`
	Revealed []Card `json:"revealed,omitempty"`
}

// ResolveNextMove reveals and resolves movement for the next player in
// turn order. Stress cards flip the draw pile until a speed card appears;
// every flipped card lands in the discard pile. All played cards are
// discarded afterwards.
func (m *Match) ResolveNextMove() (MoveResult, error) {
	if m.Phase != PhaseRevealAndMove {
		return MoveResult{}, ErrWrongPhase
	}
	slot := m.ActiveSlot()
	p := m.Players[slot]
	n := m.track.TotalSpaces

	res := MoveResult{Slot: slot, From: p.prevLoopPosition(n)}
	if p.ClutteredHand {
		p.Speed = 0
		res.NonMover = true
		res.To = res.From
	} else {
		total := 0
		res.Revealed = append(res.Revealed, p.Played...)
		for _, c := range p.Played {
			if c.IsStress() {
				value, _, ok := p.Deck.FlipUntilSpeed()
				if !ok {
					m.log.Warnf("round %d: slot %d flipped entire deck without a speed card", m.Round, slot)
				}
				total += value
				continue
			}
			value, _ := c.MovementValue()
			total += value
		}
		p.Speed = total
		p.Position += total
		res.Speed = total
		res.To = p.LoopPosition(n)
	}
	p.Deck.Discard(p.Played...)
	p.Played = nil

	m.advanceTurn(PhaseAdrenaline)
	return res, nil
}

// --- Phase 4: adrenaline ---

// AdrenalineResult lists the slots that received the adrenaline bonus.
type AdrenalineResult struct {
	Slots []int `json:"slots"`
}

// RunAdrenaline grants the last-place player (bottom two in matches of five
// or more) +1 speed, +1 position and one extra cooldown slot for the round.
func (m *Match) RunAdrenaline() (AdrenalineResult, error) {
	if m.Phase != PhaseAdrenaline {
		return AdrenalineResult{}, ErrWrongPhase
	}

	count := 1
	if len(m.Players) >= 5 {
		count = 2
	}
	order := make([]int, len(m.Players))
	for i := range order {
		order[i] = i
	}
	// Lowest absolute position first; slot index keeps ties stable.
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			pi, pj := m.Players[order[i]], m.Players[order[j]]
			if pj.Position < pi.Position || (pj.Position == pi.Position && pj.Slot < pi.Slot) {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	if count > len(order) {
		count = len(order)
	}

	var res AdrenalineResult
	for _, slot := range order[:count] {
		p := m.Players[slot]
		p.Speed++
		p.Position++
		p.AdrenalineCooldown = 1
		res.Slots = append(res.Slots, slot)
	}

	m.turnIdx = 0
	m.Phase = PhaseReact
	m.log.Debugf("round %d: adrenaline to slots %v", m.Round, res.Slots)
	return res, nil
}

// --- Phase 5: react ---

// CooldownLimit returns how many heat cards the player may still move from
// hand to engine this round.
func (m *Match) CooldownLimit(slot int) int {
	p := m.Players[slot]
	limit := cooldownSlots[p.Gear] + p.AdrenalineCooldown - p.CooldownUsed
	if limit < 0 {
		limit = 0
	}
	return limit
}

// ApplyCooldown moves the chosen heat cards from the active player's hand
// back into the engine, bounded by the gear's cooldown slots plus any
// adrenaline bonus. May be called repeatedly within the limit.
func (m *Match) ApplyCooldown(slot int, heatIndices []int) error {
	p, err := m.requireActive(PhaseReact, slot)
	if err != nil {
		return err
	}
	if len(heatIndices) == 0 {
		return fmt.Errorf("%w: no cards selected", ErrInvalidCards)
	}
	if len(heatIndices) > m.CooldownLimit(slot) {
		return fmt.Errorf("%w: %d selected, %d available", ErrCooldownLimit, len(heatIndices), m.CooldownLimit(slot))
	}
	if err := validateIndices(p, heatIndices); err != nil {
		return err
	}
	for _, idx := range heatIndices {
		if !p.Hand[idx].IsHeat() {
			return fmt.Errorf("%w: %s is not a heat card", ErrInvalidCards, p.Hand[idx])
		}
	}

	moved := p.removeHandCards(heatIndices)
	p.Engine = append(p.Engine, moved...)
	p.CooldownUsed += len(moved)
	m.log.Debugf("round %d: slot %d cooled down %d heat", m.Round, slot, len(moved))
	return nil
}

// BoostResult reports a resolved boost.
type BoostResult struct {
	Slot  int  `json:"slot"`
	Value int  `json:"value"`
	Free  bool `json:"free,omitempty"`
}

// ApplyBoost spends one engine heat (free inside a free-boost sector) and
// flips the draw pile until a speed card appears. The value counts for both
// position and the corner-check speed.
func (m *Match) ApplyBoost(slot int) (BoostResult, error) {
	p, err := m.requireActive(PhaseReact, slot)
	if err != nil {
		return BoostResult{}, err
	}
	if p.HasBoosted {
		return BoostResult{}, ErrAlreadyBoosted
	}
	free := m.inFreeBoostSector(p)
	if !free {
		if p.EngineHeat() < 1 {
			return BoostResult{}, ErrNoEngineHeat
		}
		p.removeEngineHeat(1)
	}

	value, _, ok := p.Deck.FlipUntilSpeed()
	if !ok {
		m.log.Warnf("round %d: slot %d boosted into a speedless deck", m.Round, slot)
	}
	p.HasBoosted = true
	p.Speed += value
	p.Position += value
	m.log.Debugf("round %d: slot %d boosted +%d (free=%v)", m.Round, slot, value, free)
	return BoostResult{Slot: slot, Value: value, Free: free}, nil
}

// FinishReact ends the active player's react turn.
func (m *Match) FinishReact(slot int) error {
	if _, err := m.requireActive(PhaseReact, slot); err != nil {
		return err
	}
	m.advanceTurn(PhaseSlipstream)
	return nil
}

// --- Phase 6: slipstream ---

// CanSlipstream reports whether another car sits one or two loop spaces
// ahead of the slot.
func (m *Match) CanSlipstream(slot int) bool {
	n := m.track.TotalSpaces
	pos := m.Players[slot].LoopPosition(n)
	for _, other := range m.Players {
		if other.Slot == slot {
			continue
		}
		diff := ((other.LoopPosition(n) - pos) % n + n) % n
		if diff == 1 || diff == 2 {
			return true
		}
	}
	return false
}

// ApplySlipstream resolves the active player's yes/no. Accepting advances
// the position two spaces without touching speed, so slipstream never
// raises corner-check exposure.
func (m *Match) ApplySlipstream(slot int, accept bool) error {
	p, err := m.requireActive(PhaseSlipstream, slot)
	if err != nil {
		return err
	}
	if accept {
		if !m.CanSlipstream(slot) {
			return ErrNoSlipstream
		}
		p.Position += 2
		m.log.Debugf("round %d: slot %d slipstreamed to %d", m.Round, slot, p.LoopPosition(m.track.TotalSpaces))
	}
	m.advanceTurn(PhaseCheckCorner)
	return nil
}

// --- Phase 7: check corner ---

// CornerEvent reports one corner's outcome for one player.
type CornerEvent struct {
	CornerID  int  `json:"cornerId"`
	Limit     int  `json:"limit"`
	Overspeed int  `json:"overspeed"`
	HeatPaid  int  `json:"heatPaid"`
	SpunOut   bool `json:"spunOut,omitempty"`
}

// CornerResult reports the corner checks for one player.
type CornerResult struct {
	Slot   int           `json:"slot"`
	Events []CornerEvent `json:"events,omitempty"`
}

// ResolveNextCorner runs corner checks for the next player in turn order.
// Overspeed is paid in engine heat; an engine that cannot pay spins the car
// out: back to the space before the corner, gear 1, stress added, and no
// further corners processed for that player.
func (m *Match) ResolveNextCorner() (CornerResult, error) {
	if m.Phase != PhaseCheckCorner {
		return CornerResult{}, ErrWrongPhase
	}
	slot := m.ActiveSlot()
	p := m.Players[slot]
	n := m.track.TotalSpaces
	res := CornerResult{Slot: slot}

	corners, err := m.track.CornersCrossed(p.prevLoopPosition(n), p.LoopPosition(n))
	if err != nil {
		return CornerResult{}, err
	}
	for _, corner := range corners {
		limit := m.effectiveSpeedLimit(corner)
		over := p.Speed - limit
		if over <= 0 {
			continue
		}
		ev := CornerEvent{CornerID: corner.ID, Limit: limit, Overspeed: over}
		if p.EngineHeat() >= over {
			p.removeEngineHeat(over)
			ev.HeatPaid = over
			res.Events = append(res.Events, ev)
			continue
		}

		// Spinout: the only backward motion in the game.
		ev.SpunOut = true
		res.Events = append(res.Events, ev)
		stress := spinoutStress[p.Gear]
		for i := 0; i < stress; i++ {
			p.Deck.Discard(StressCard())
		}
		targetLoop := ((corner.Position-1)%n + n) % n
		p.Position = m.absoluteBehind(p.Position, targetLoop)
		p.Gear = MinGear
		p.SpunOut = true
		m.log.Debugf("round %d: slot %d spun out at corner %d (overspeed %d)", m.Round, slot, corner.ID, over)
		break
	}

	m.advanceTurn(PhaseDiscard)
	return res, nil
}

// --- Phase 8: discard ---

// ApplyDiscards applies a full batch of optional discards. Only playable
// cards may be tossed; heat, stress and the starting-heat upgrade stay.
func (m *Match) ApplyDiscards(batch map[int][]int) error {
	if m.Phase != PhaseDiscard {
		return ErrWrongPhase
	}
	if len(batch) != len(m.Players) {
		return fmt.Errorf("discard batch covers %d of %d slots", len(batch), len(m.Players))
	}

	for slot, indices := range batch {
		p, err := m.PlayerBySlot(slot)
		if err != nil {
			return err
		}
		if err := validateIndices(p, indices); err != nil {
			return slotErr(slot, err)
		}
		for _, idx := range indices {
			if !p.Hand[idx].Playable() {
				return slotErr(slot, fmt.Errorf("%w: %s cannot be discarded", ErrInvalidCards, p.Hand[idx]))
			}
		}
	}

	for slot, indices := range batch {
		if len(indices) == 0 {
			continue
		}
		p := m.Players[slot]
		p.Deck.Discard(p.removeHandCards(indices)...)
	}

	m.Phase = PhaseReplenish
	return nil
}

// --- Phase 9: replenish ---

// ReplenishResult reports end-of-round accounting.
type ReplenishResult struct {
	LapsGained []int `json:"lapsGained,omitempty"` // slots that banked a lap
	Winners    []int `json:"winners,omitempty"`    // slots at or past the lap target
	Finished   bool  `json:"finished"`
}

// RunReplenish refills hands to seven, banks laps for finish-line
// crossings over the whole round, ends the race when a player reaches the
// lap target, and otherwise resets per-round state and opens the next
// round's gear-shift phase.
func (m *Match) RunReplenish() (ReplenishResult, error) {
	if m.Phase != PhaseReplenish {
		return ReplenishResult{}, ErrWrongPhase
	}
	n := m.track.TotalSpaces

	var res ReplenishResult
	for _, p := range m.Players {
		if missing := HandSize - len(p.Hand); missing > 0 {
			p.Hand = append(p.Hand, p.Deck.DrawN(missing)...)
		}
		crossed, err := m.track.CrossesFinishLine(p.prevLoopPosition(n), p.LoopPosition(n))
		if err != nil {
			return ReplenishResult{}, err
		}
		// A spinout can only land on or after the round-start space, so a
		// banked crossing is never taken back.
		if crossed && p.Position > p.PrevPosition {
			p.Laps++
			res.LapsGained = append(res.LapsGained, p.Slot)
		}
		if p.Laps >= m.lapTarget {
			res.Winners = append(res.Winners, p.Slot)
		}
	}

	if len(res.Winners) > 0 {
		res.Finished = true
		m.Status = StatusFinished
		m.Phase = PhaseFinished
		m.log.Infof("race finished in round %d, winners %v", m.Round, res.Winners)
		return res, nil
	}

	for _, p := range m.Players {
		p.Speed = 0
		p.HasBoosted = false
		p.AdrenalineCooldown = 0
		p.CooldownUsed = 0
		p.ClutteredHand = false
		p.SpunOut = false
		p.Played = nil
		p.PrevPosition = p.Position
	}
	m.Round++
	m.Phase = PhaseGearShift
	m.TurnOrder = m.computeTurnOrder()
	m.turnIdx = 0
	m.log.Debugf("round %d begins", m.Round)
	return res, nil
}
