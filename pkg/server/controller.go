package server

import (
	"errors"
	"time"

	"github.com/johntylernyc/heatline/pkg/race"
)

// The match controller: everything below runs under the room mutex. The
// rules engine is a pure state machine; this layer feeds it batches for
// simultaneous phases, walks sequential turns, synthesizes defaults for
// timeouts and disconnected seats, and pushes partitioned state out.

// pendingAction is one collected simultaneous-phase submission.
type pendingAction struct {
	gear  int
	cards []int
}

// defaultActionLocked is what a seat does when it cannot or will not act:
// keep the current gear, play nothing, discard nothing.
func (r *Room) defaultActionLocked(slot int) pendingAction {
	if r.match.Phase == race.PhaseGearShift {
		return pendingAction{gear: r.match.Players[slot].Gear}
	}
	return pendingAction{}
}

// applySequentialDefaultLocked resolves the active seat's turn the passive
// way: end the react turn, decline the slipstream.
func (r *Room) applySequentialDefaultLocked(slot int) {
	var err error
	switch r.match.Phase {
	case race.PhaseReact:
		err = r.match.FinishReact(slot)
	case race.PhaseSlipstream:
		err = r.match.ApplySlipstream(slot, false)
	}
	if err != nil {
		r.closeRoomLocked("sequential default rejected: " + err.Error())
	}
}

// progressLocked drives the match forward until it needs player input or
// the race ends. Engine results accumulate into ev and go out with the
// state broadcast at the pause point.
func (r *Room) progressLocked(ev *PhaseEvents) {
	m := r.match
	for {
		switch m.Phase.Class() {
		case race.ClassSimultaneous:
			if r.pendingPhase != m.Phase {
				r.pendingPhase = m.Phase
				r.pending = make(map[int]pendingAction)
				for slot, p := range r.players {
					if !p.Connected {
						r.pending[slot] = r.defaultActionLocked(slot)
					}
				}
			}
			if len(r.pending) == len(m.Players) {
				if err := r.applyPendingLocked(); err != nil {
					// Offender notified, their entry cleared, phase
					// stays open for a corrected submission.
					r.startTurnTimerLocked()
					r.broadcastStateLocked(ev)
					r.broadcastActionRequiredLocked()
					return
				}
				continue
			}
			r.startTurnTimerLocked()
			r.broadcastStateLocked(ev)
			r.broadcastActionRequiredLocked()
			return

		case race.ClassSequentialAuto:
			switch m.Phase {
			case race.PhaseRevealAndMove:
				res, err := m.ResolveNextMove()
				if err != nil {
					r.closeRoomLocked("reveal failed: " + err.Error())
					return
				}
				ev.Moves = append(ev.Moves, res)
			case race.PhaseCheckCorner:
				res, err := m.ResolveNextCorner()
				if err != nil {
					r.closeRoomLocked("corner check failed: " + err.Error())
					return
				}
				ev.Corners = append(ev.Corners, res)
			}

		case race.ClassAutomatic:
			switch m.Phase {
			case race.PhaseAdrenaline:
				res, err := m.RunAdrenaline()
				if err != nil {
					r.closeRoomLocked("adrenaline failed: " + err.Error())
					return
				}
				ev.Adrenaline = &res
			case race.PhaseReplenish:
				res, err := m.RunReplenish()
				if err != nil {
					r.closeRoomLocked("replenish failed: " + err.Error())
					return
				}
				ev.Replenish = &res
				if res.Finished {
					r.finishLocked(ev)
					return
				}
			}

		case race.ClassSequentialInput:
			slot := m.ActiveSlot()
			if slot < 0 {
				r.closeRoomLocked("no active slot in sequential phase")
				return
			}
			if !r.players[slot].Connected {
				r.applySequentialDefaultLocked(slot)
				continue
			}
			r.startTurnTimerLocked()
			r.broadcastStateLocked(ev)
			r.broadcastActionRequiredLocked()
			return

		default:
			return
		}
	}
}

// applyPendingLocked hands the collected batch to the engine. A rejected
// batch clears only the offending seat's entry and tells them why; the
// other submissions stand and are retried together with the corrected
// one. The engine guarantees nothing mutated on rejection, so the
// surviving entries remain valid.
func (r *Room) applyPendingLocked() error {
	m := r.match
	var err error
	switch m.Phase {
	case race.PhaseGearShift:
		batch := make(map[int]int, len(r.pending))
		for slot, a := range r.pending {
			batch[slot] = a.gear
		}
		err = m.ApplyGearShifts(batch)
	case race.PhasePlayCards:
		batch := make(map[int][]int, len(r.pending))
		for slot, a := range r.pending {
			batch[slot] = a.cards
		}
		err = m.ApplyPlayCards(batch)
	case race.PhaseDiscard:
		batch := make(map[int][]int, len(r.pending))
		for slot, a := range r.pending {
			batch[slot] = a.cards
		}
		err = m.ApplyDiscards(batch)
	}
	if err == nil {
		r.pending = nil
		r.pendingPhase = ""
		r.stopTurnTimerLocked()
		return nil
	}

	var se *race.SlotError
	if errors.As(err, &se) {
		delete(r.pending, se.Slot)
		r.sendErrorLocked(se.Slot, se.Err.Error())
		return err
	}
	r.closeRoomLocked("batch rejected: " + err.Error())
	return err
}

// --- inbound actions ---

// submitLocked records a simultaneous-phase submission and applies the
// batch once everyone is in.
func (r *Room) submitLocked(slot int, a pendingAction) {
	if r.pendingPhase != r.match.Phase {
		return
	}
	r.pending[slot] = a
	if len(r.pending) == len(r.match.Players) {
		r.progressLocked(&PhaseEvents{})
	}
}

// requireActionLocked resolves the sender's seat for an in-game action.
// Actions for phases that have already moved on are dropped without a
// reply; they are almost always a race against the turn timer.
func (r *Room) requireActionLocked(playerID string, phase race.Phase) (int, bool) {
	if !r.lifecycle.In(statePlaying) {
		return -1, false
	}
	slot := r.slotOfLocked(playerID)
	if slot < 0 {
		return -1, false
	}
	if r.match.Phase != phase {
		r.log.Debugf("room %s: slot %d sent %s during %s, dropped", r.Code, slot, phase, r.match.Phase)
		return -1, false
	}
	return slot, true
}

// HandleGearShift records a gear selection.
func (r *Room) HandleGearShift(playerID string, targetGear int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()
	slot, ok := r.requireActionLocked(playerID, race.PhaseGearShift)
	if !ok {
		return
	}
	r.submitLocked(slot, pendingAction{gear: targetGear})
}

// HandlePlayCards records a card selection. An empty selection is the
// cluttered-hand declaration.
func (r *Room) HandlePlayCards(playerID string, indices []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()
	slot, ok := r.requireActionLocked(playerID, race.PhasePlayCards)
	if !ok {
		return
	}
	r.submitLocked(slot, pendingAction{cards: indices})
}

// HandleDiscard records an end-of-round discard selection.
func (r *Room) HandleDiscard(playerID string, indices []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()
	slot, ok := r.requireActionLocked(playerID, race.PhaseDiscard)
	if !ok {
		return
	}
	r.submitLocked(slot, pendingAction{cards: indices})
}

// HandleCooldown moves heat cards from hand to engine during the sender's
// react turn. Does not end the turn.
func (r *Room) HandleCooldown(playerID string, heatIndices []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()
	slot, ok := r.requireActionLocked(playerID, race.PhaseReact)
	if !ok {
		return
	}
	if err := r.match.ApplyCooldown(slot, heatIndices); err != nil {
		r.sendErrorLocked(slot, err.Error())
		return
	}
	r.broadcastStateLocked(nil)
}

// HandleBoost spends engine heat for extra speed during the sender's react
// turn. Does not end the turn.
func (r *Room) HandleBoost(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()
	slot, ok := r.requireActionLocked(playerID, race.PhaseReact)
	if !ok {
		return
	}
	res, err := r.match.ApplyBoost(slot)
	if err != nil {
		r.sendErrorLocked(slot, err.Error())
		return
	}
	r.broadcastStateLocked(&PhaseEvents{Boosts: []race.BoostResult{res}})
}

// HandleReactDone ends the sender's react turn.
func (r *Room) HandleReactDone(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()
	slot, ok := r.requireActionLocked(playerID, race.PhaseReact)
	if !ok {
		return
	}
	if err := r.match.FinishReact(slot); err != nil {
		r.sendErrorLocked(slot, err.Error())
		return
	}
	r.stopTurnTimerLocked()
	r.progressLocked(&PhaseEvents{})
}

// HandleSlipstream resolves the sender's slipstream decision.
func (r *Room) HandleSlipstream(playerID string, accept bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()
	slot, ok := r.requireActionLocked(playerID, race.PhaseSlipstream)
	if !ok {
		return
	}
	if err := r.match.ApplySlipstream(slot, accept); err != nil {
		r.sendErrorLocked(slot, err.Error())
		return
	}
	r.stopTurnTimerLocked()
	r.progressLocked(&PhaseEvents{})
}

// --- timers ---

func (r *Room) startTurnTimerLocked() {
	r.stopTurnTimerLocked()
	if r.config.TurnTimeout <= 0 {
		return
	}
	gen := r.timerGen
	roomID := r.ID
	srv := r.srv
	// The callback captures the room id, not the room: it re-resolves
	// through the server so a destroyed room cannot be revived.
	r.turnTimer = time.AfterFunc(r.config.TurnTimeout, func() {
		srv.onTurnTimeout(roomID, gen)
	})
}

func (r *Room) stopTurnTimerLocked() {
	r.timerGen++
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
}

// onTurnTimeout fires when a phase deadline passes. Stale generations are
// timers that lost the race against a completed phase.
func (r *Room) onTurnTimeout(gen int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.timerGen || !r.lifecycle.In(statePlaying) {
		return
	}
	m := r.match
	switch m.Phase.Class() {
	case race.ClassSimultaneous:
		if r.pendingPhase != m.Phase {
			return
		}
		for slot := range m.Players {
			if _, ok := r.pending[slot]; !ok {
				r.pending[slot] = r.defaultActionLocked(slot)
			}
		}
		r.log.Debugf("room %s: %s deadline passed, defaults applied", r.Code, m.Phase)
		r.progressLocked(&PhaseEvents{})
	case race.ClassSequentialInput:
		slot := m.ActiveSlot()
		if slot < 0 {
			return
		}
		r.log.Debugf("room %s: slot %d timed out in %s", r.Code, slot, m.Phase)
		r.applySequentialDefaultLocked(slot)
		r.progressLocked(&PhaseEvents{})
	}
}

// --- presence ---

// HandleDisconnect marks a seat disconnected and lets the match carry on
// with defaults where it was waiting on that seat.
func (r *Room) HandleDisconnect(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()
	slot := r.slotOfLocked(playerID)
	if slot < 0 {
		return
	}
	p := r.players[slot]
	if !p.Connected {
		return
	}
	p.Connected = false
	r.srv.events.Publish(PresenceMsg{Type: MsgPlayerDisconnected, Slot: slot, Name: p.Name}, r.connsLocked()...)
	if r.lifecycle.In(statePlaying) {
		r.handleGoneLocked(slot)
	}
	r.scheduleCleanupIfAbandonedLocked()
}

// handleGoneLocked unblocks whatever the match was waiting on from the
// given seat.
func (r *Room) handleGoneLocked(slot int) {
	m := r.match
	if m == nil || m.Status == race.StatusFinished {
		return
	}
	switch m.Phase.Class() {
	case race.ClassSimultaneous:
		if r.pendingPhase != m.Phase {
			return
		}
		if _, ok := r.pending[slot]; ok {
			return
		}
		r.pending[slot] = r.defaultActionLocked(slot)
		if len(r.pending) == len(m.Players) {
			r.progressLocked(&PhaseEvents{})
		}
	case race.ClassSequentialInput:
		if m.ActiveSlot() == slot {
			r.applySequentialDefaultLocked(slot)
			r.progressLocked(&PhaseEvents{})
		}
	}
}

// HandleReconnect marks the seat connected again and resyncs the client
// with the full current state.
func (r *Room) HandleReconnect(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()
	slot := r.slotOfLocked(playerID)
	if slot < 0 {
		return
	}
	p := r.players[slot]
	p.Connected = true
	if r.cleanupTimer != nil {
		r.cleanupTimer.Stop()
		r.cleanupTimer = nil
	}

	conn := r.connOfSlotLocked(slot)
	if r.lifecycle.In(statePlaying) {
		if view, err := r.recipientStateLocked(slot); err == nil {
			r.srv.events.Publish(PhaseChangedMsg{Type: MsgPhaseChanged, State: view}, conn)
		}
		m := r.match
		if m.Phase.Class() == race.ClassSequentialInput || m.Phase.Class() == race.ClassSimultaneous {
			r.srv.events.Publish(ActionRequiredMsg{
				Type:         MsgActionRequired,
				Phase:        m.Phase,
				ActivePlayer: m.ActiveSlot(),
				DeadlineMs:   int(r.config.TurnTimeout / time.Millisecond),
			}, conn)
		}
	} else {
		r.srv.events.Publish(LobbyStateMsg{Type: MsgLobbyState, Lobby: r.lobbyLocked()}, conn)
	}

	for i := range r.players {
		if i == slot {
			continue
		}
		r.srv.events.Publish(PresenceMsg{Type: MsgPlayerReconnected, Slot: slot, Name: p.Name}, r.connOfSlotLocked(i))
	}
}

// scheduleCleanupIfAbandonedLocked arms the grace-period destroy when a
// waiting room loses its last connection. A reconnect cancels it. Rooms
// that have started are never grace-destroyed; they stay around for
// reconnecting players until the inactivity sweep reclaims them.
func (r *Room) scheduleCleanupIfAbandonedLocked() {
	if !r.lifecycle.In(stateWaiting) {
		return
	}
	for _, p := range r.players {
		if p.Connected {
			return
		}
	}
	if r.cleanupTimer != nil {
		return
	}
	roomID := r.ID
	srv := r.srv
	r.cleanupTimer = time.AfterFunc(srv.cfg.GracePeriod, func() {
		srv.onRoomAbandoned(roomID)
	})
}

// onAbandoned destroys the room if the grace period passed with nobody
// coming back.
func (r *Room) onAbandoned() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lifecycle.In(stateWaiting) {
		return
	}
	for _, p := range r.players {
		if p.Connected {
			return
		}
	}
	r.destroyLocked("abandoned")
}

// --- outbound ---

// recipientStateLocked builds the partitioned view for a seat, decorated
// with roster display info.
func (r *Room) recipientStateLocked(slot int) (race.ClientGameState, error) {
	view, err := race.PartitionFor(r.match, slot)
	if err != nil {
		return race.ClientGameState{}, err
	}
	for i, p := range r.players {
		view.Players = append(view.Players, race.PlayerInfo{
			Slot:      i,
			Name:      p.Name,
			Color:     p.Color,
			Connected: p.Connected,
		})
	}
	return view, nil
}

// broadcastStateLocked sends each connected seat its own partitioned view.
func (r *Room) broadcastStateLocked(ev *PhaseEvents) {
	if ev != nil && ev.Moves == nil && ev.Adrenaline == nil && ev.Boosts == nil && ev.Corners == nil && ev.Replenish == nil {
		ev = nil
	}
	for slot := range r.players {
		conn := r.connOfSlotLocked(slot)
		if conn == nil {
			continue
		}
		view, err := r.recipientStateLocked(slot)
		if err != nil {
			r.log.Errorf("room %s: partition slot %d: %v", r.Code, slot, err)
			continue
		}
		r.srv.events.Publish(PhaseChangedMsg{Type: MsgPhaseChanged, State: view, Events: ev}, conn)
	}
}

func (r *Room) broadcastActionRequiredLocked() {
	m := r.match
	r.srv.events.Publish(ActionRequiredMsg{
		Type:         MsgActionRequired,
		Phase:        m.Phase,
		ActivePlayer: m.ActiveSlot(),
		DeadlineMs:   int(r.config.TurnTimeout / time.Millisecond),
	}, r.connsLocked()...)
}

func (r *Room) sendErrorLocked(slot int, msg string) {
	if conn := r.connOfSlotLocked(slot); conn != nil {
		r.srv.events.Publish(ErrorMsg{Type: MsgError, Message: msg}, conn)
	}
}

// finishLocked closes out the race: final classification by laps, then
// distance, then seat order.
func (r *Room) finishLocked(ev *PhaseEvents) {
	r.stopTurnTimerLocked()
	m := r.match

	winners := make(map[int]bool)
	if ev.Replenish != nil {
		for _, slot := range ev.Replenish.Winners {
			winners[slot] = true
		}
	}
	order := make([]int, len(m.Players))
	for i := range order {
		order[i] = i
	}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			pi, pj := m.Players[order[i]], m.Players[order[j]]
			better := pj.Laps > pi.Laps ||
				(pj.Laps == pi.Laps && pj.Position > pi.Position) ||
				(pj.Laps == pi.Laps && pj.Position == pi.Position && pj.Slot < pi.Slot)
			if better {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	standings := make([]Standing, 0, len(order))
	for _, slot := range order {
		p := m.Players[slot]
		standings = append(standings, Standing{
			Slot:     slot,
			Name:     r.players[slot].Name,
			Laps:     p.Laps,
			Position: p.LoopPosition(m.Track().TotalSpaces),
			Winner:   winners[slot],
		})
	}

	r.lifecycle.Transition(stateFinished)
	for slot := range r.players {
		conn := r.connOfSlotLocked(slot)
		if conn == nil {
			continue
		}
		view, err := r.recipientStateLocked(slot)
		if err != nil {
			continue
		}
		r.srv.events.Publish(GameOverMsg{Type: MsgGameOver, Standings: standings, State: view}, conn)
	}
}

// closeRoomLocked is the invariant-violation escape hatch: the match can
// no longer be trusted, so the room is torn down rather than limped along.
func (r *Room) closeRoomLocked(reason string) {
	r.log.Errorf("room %s closed: %s", r.Code, reason)
	r.srv.events.Publish(ErrorMsg{Type: MsgError, Message: "internal error, room closed"}, r.connsLocked()...)
	r.destroyLocked(reason)
}
