package server

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/decred/slog"
	"github.com/google/uuid"

	"github.com/johntylernyc/heatline/pkg/race"
	"github.com/johntylernyc/heatline/pkg/statemachine"
	"github.com/johntylernyc/heatline/pkg/track"
)

// Room codes avoid the lookalike characters 0/O/1/I.
const (
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 6

	minPlayers = 2
	maxPlayers = 6

	minNameLen = 1
	maxNameLen = 20
)

// carColors is the assignment palette, handed out first-unused at join.
var carColors = []string{"red", "blue", "green", "yellow", "purple", "orange"}

// newRoomCode returns a random share code.
func newRoomCode() (string, error) {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("room code entropy: %w", err)
	}
	out := make([]byte, roomCodeLength)
	for i, b := range buf {
		out[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(out), nil
}

// RoomConfig is the host-adjustable room setup.
type RoomConfig struct {
	TrackID      string
	LapCount     int
	MaxPlayers   int
	TurnTimeout  time.Duration // 0 means untimed turns
	SoloPractice bool
}

func (c RoomConfig) validate() error {
	if _, err := track.Lookup(c.TrackID); err != nil {
		return err
	}
	if c.LapCount < 1 || c.LapCount > 3 {
		return fmt.Errorf("lap count must be 1..3, got %d", c.LapCount)
	}
	if c.MaxPlayers < minPlayers || c.MaxPlayers > maxPlayers {
		return fmt.Errorf("max players must be %d..%d, got %d", minPlayers, maxPlayers, c.MaxPlayers)
	}
	if c.TurnTimeout < 0 {
		return fmt.Errorf("turn timeout cannot be negative")
	}
	return nil
}

// RoomPlayer is one seat in a room. The slot is the index into the roster.
type RoomPlayer struct {
	PlayerID  string
	Token     string
	Name      string
	Color     string
	Ready     bool
	Connected bool
}

// Room is one game room: lobby roster, config and, once started, the match.
// Every mutation runs under mu; the match itself is lock-free and only ever
// touched while mu is held.
type Room struct {
	ID   string
	Code string

	srv *Server
	log slog.Logger

	mu        sync.Mutex
	lifecycle *statemachine.Machine[Room]
	config    RoomConfig
	hostSlot  int
	players   []*RoomPlayer
	match     *race.Match
	seed      int64

	// pending collects simultaneous-phase submissions keyed by slot.
	// pendingPhase marks which phase they belong to.
	pending      map[int]pendingAction
	pendingPhase race.Phase

	// timerGen invalidates turn timers that fire after the phase they
	// were armed for has moved on.
	timerGen     int
	turnTimer    *time.Timer
	cleanupTimer *time.Timer

	lastActivity time.Time
}

// Room lifecycle states. Each state logs on entry and returns itself: the
// machine stays resident until an explicit Transition under the room mutex.
// Returning nil would terminate the machine instead.

func stateWaiting(r *Room) statemachine.StateFn[Room] {
	r.log.Debugf("room %s waiting for players", r.Code)
	return stateWaiting
}

func statePlaying(r *Room) statemachine.StateFn[Room] {
	r.log.Infof("room %s: race started with %d players (seed %d)", r.Code, len(r.players), r.seed)
	return statePlaying
}

func stateFinished(r *Room) statemachine.StateFn[Room] {
	r.log.Infof("room %s: race finished", r.Code)
	return stateFinished
}

func stateClosed(r *Room) statemachine.StateFn[Room] {
	r.log.Debugf("room %s closed", r.Code)
	return stateClosed
}

func newRoom(srv *Server, code string, cfg RoomConfig, log slog.Logger) *Room {
	r := &Room{
		ID:           uuid.NewString(),
		Code:         code,
		srv:          srv,
		log:          log,
		config:       cfg,
		lastActivity: time.Now(),
	}
	r.lifecycle = statemachine.New(r, stateWaiting)
	r.lifecycle.Dispatch()
	return r
}

// statusLocked names the lifecycle state for the wire.
func (r *Room) statusLocked() string {
	switch {
	case r.lifecycle.In(stateWaiting):
		return "waiting"
	case r.lifecycle.In(statePlaying):
		return "playing"
	case r.lifecycle.In(stateFinished):
		return "finished"
	default:
		return "closed"
	}
}

func (r *Room) touchLocked() {
	r.lastActivity = time.Now()
}

// slotOfLocked returns the roster slot for a player id, -1 if absent.
func (r *Room) slotOfLocked(playerID string) int {
	for i, p := range r.players {
		if p.PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (r *Room) lobbyLocked() LobbyState {
	lobby := LobbyState{
		RoomID:        r.ID,
		RoomCode:      r.Code,
		Status:        r.statusLocked(),
		TrackID:       r.config.TrackID,
		LapCount:      r.config.LapCount,
		MaxPlayers:    r.config.MaxPlayers,
		TurnTimeoutMs: int(r.config.TurnTimeout / time.Millisecond),
		SoloPractice:  r.config.SoloPractice,
	}
	for i, p := range r.players {
		lobby.Players = append(lobby.Players, LobbyPlayer{
			Slot:      i,
			Name:      p.Name,
			Color:     p.Color,
			Ready:     p.Ready,
			Connected: p.Connected,
			Host:      i == r.hostSlot,
		})
	}
	return lobby
}

// connsLocked returns the live connections of all connected seats.
func (r *Room) connsLocked() []*Conn {
	var conns []*Conn
	for _, p := range r.players {
		if !p.Connected {
			continue
		}
		if c := r.srv.connOf(p.PlayerID); c != nil {
			conns = append(conns, c)
		}
	}
	return conns
}

func (r *Room) connOfSlotLocked(slot int) *Conn {
	if slot < 0 || slot >= len(r.players) || !r.players[slot].Connected {
		return nil
	}
	return r.srv.connOf(r.players[slot].PlayerID)
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minNameLen || n > maxNameLen {
		return fmt.Errorf("display name must be %d..%d characters", minNameLen, maxNameLen)
	}
	return nil
}

func (r *Room) unusedColorLocked() string {
	used := make(map[string]bool, len(r.players))
	for _, p := range r.players {
		used[p.Color] = true
	}
	for _, c := range carColors {
		if !used[c] {
			return c
		}
	}
	return carColors[0]
}

// Join adds a player to a waiting room. Returns the assigned slot.
func (r *Room) Join(sess *Session, name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()

	if !r.lifecycle.In(stateWaiting) {
		return -1, fmt.Errorf("room %s is not accepting players", r.Code)
	}
	if r.slotOfLocked(sess.PlayerID) >= 0 {
		return -1, fmt.Errorf("already in room %s", r.Code)
	}
	if len(r.players) >= r.config.MaxPlayers {
		return -1, fmt.Errorf("room %s is full", r.Code)
	}
	if err := validateName(name); err != nil {
		return -1, err
	}

	slot := len(r.players)
	r.players = append(r.players, &RoomPlayer{
		PlayerID:  sess.PlayerID,
		Token:     sess.Token,
		Name:      name,
		Color:     r.unusedColorLocked(),
		Connected: true,
	})
	r.srv.sessions.SetRoom(sess.Token, r.ID)

	r.srv.events.Publish(PlayerJoinedMsg{
		Type:  MsgPlayerJoined,
		Slot:  slot,
		Name:  name,
		Lobby: r.lobbyLocked(),
	}, r.connsLocked()...)
	return slot, nil
}

// SetPlayerInfo updates name and/or color. Any change drops the player's
// ready flag so the rest of the lobby re-confirms against what they see.
func (r *Room) SetPlayerInfo(playerID string, name, color *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()

	if !r.lifecycle.In(stateWaiting) {
		return fmt.Errorf("player info is fixed once the race starts")
	}
	slot := r.slotOfLocked(playerID)
	if slot < 0 {
		return fmt.Errorf("not in room %s", r.Code)
	}
	p := r.players[slot]

	if name != nil {
		if err := validateName(*name); err != nil {
			return err
		}
		p.Name = *name
	}
	if color != nil {
		valid := false
		for _, c := range carColors {
			if c == *color {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("unknown car color %q", *color)
		}
		for i, other := range r.players {
			if i != slot && other.Color == *color {
				return fmt.Errorf("car color %q is taken", *color)
			}
		}
		p.Color = *color
	}
	p.Ready = false

	r.broadcastLobbyLocked()
	return nil
}

// SetReady flips a player's ready flag.
func (r *Room) SetReady(playerID string, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()

	if !r.lifecycle.In(stateWaiting) {
		return fmt.Errorf("room %s already started", r.Code)
	}
	slot := r.slotOfLocked(playerID)
	if slot < 0 {
		return fmt.Errorf("not in room %s", r.Code)
	}
	r.players[slot].Ready = ready
	r.broadcastLobbyLocked()
	return nil
}

// UpdateConfig applies a partial config update. Host only, lobby only.
// Every player is un-readied so they confirm against the new setup.
func (r *Room) UpdateConfig(playerID string, req UpdateRoomConfigRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()

	if !r.lifecycle.In(stateWaiting) {
		return fmt.Errorf("config is fixed once the race starts")
	}
	slot := r.slotOfLocked(playerID)
	if slot < 0 {
		return fmt.Errorf("not in room %s", r.Code)
	}
	if slot != r.hostSlot {
		return fmt.Errorf("only the host can change the room config")
	}

	next := r.config
	if req.TrackID != nil {
		next.TrackID = *req.TrackID
	}
	if req.LapCount != nil {
		next.LapCount = *req.LapCount
	}
	if req.MaxPlayers != nil {
		next.MaxPlayers = *req.MaxPlayers
	}
	if req.TurnTimeoutMs != nil {
		next.TurnTimeout = time.Duration(*req.TurnTimeoutMs) * time.Millisecond
	}
	if req.SoloPractice != nil {
		next.SoloPractice = *req.SoloPractice
	}
	if err := next.validate(); err != nil {
		return err
	}
	if next.MaxPlayers < len(r.players) {
		return fmt.Errorf("room already has %d players", len(r.players))
	}

	r.config = next
	for _, p := range r.players {
		p.Ready = false
	}
	r.broadcastLobbyLocked()
	return nil
}

// Leave removes the player from a waiting room, transferring host if
// needed and destroying the room when it empties. Leaving a running race
// abandons the seat: the car stays and runs on defaults.
func (r *Room) Leave(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()

	slot := r.slotOfLocked(playerID)
	if slot < 0 {
		return fmt.Errorf("not in room %s", r.Code)
	}
	p := r.players[slot]
	r.srv.sessions.SetRoom(p.Token, "")

	if !r.lifecycle.In(stateWaiting) {
		p.Connected = false
		r.srv.events.Publish(PresenceMsg{Type: MsgPlayerDisconnected, Slot: slot, Name: p.Name}, r.connsLocked()...)
		r.handleGoneLocked(slot)
		r.scheduleCleanupIfAbandonedLocked()
		return nil
	}

	// Lobby roster stays contiguous: later seats shift down.
	r.players = append(r.players[:slot], r.players[slot+1:]...)
	if len(r.players) == 0 {
		r.destroyLocked("empty")
		return nil
	}
	if r.hostSlot == slot {
		r.hostSlot = 0
	} else if r.hostSlot > slot {
		r.hostSlot--
	}

	r.srv.events.Publish(PlayerLeftMsg{
		Type:  MsgPlayerLeft,
		Slot:  slot,
		Lobby: r.lobbyLocked(),
	}, r.connsLocked()...)
	return nil
}

// Start begins the race. Host only; needs every seat ready and at least
// two players, unless the room is flagged for solo practice.
func (r *Room) Start(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()

	if !r.lifecycle.In(stateWaiting) {
		return fmt.Errorf("room %s already started", r.Code)
	}
	slot := r.slotOfLocked(playerID)
	if slot < 0 {
		return fmt.Errorf("not in room %s", r.Code)
	}
	if slot != r.hostSlot {
		return fmt.Errorf("only the host can start the race")
	}
	min := minPlayers
	if r.config.SoloPractice {
		min = 1
	}
	if len(r.players) < min {
		return fmt.Errorf("need at least %d players", min)
	}
	for i, p := range r.players {
		if !p.Ready {
			return fmt.Errorf("%s (slot %d) is not ready", p.Name, i)
		}
	}

	tr, err := track.Lookup(r.config.TrackID)
	if err != nil {
		return err
	}
	seats := make([]race.Seat, len(r.players))
	for i, p := range r.players {
		seats[i] = race.Seat{ID: p.PlayerID, Slot: i}
	}
	r.seed = r.srv.newSeed()
	m, err := race.NewMatch(race.MatchConfig{
		Track:     tr,
		LapTarget: r.config.LapCount,
		Seats:     seats,
		Seed:      r.seed,
		Log:       r.log,
	})
	if err != nil {
		return fmt.Errorf("create match: %w", err)
	}
	r.match = m
	r.lifecycle.Transition(statePlaying)

	for i := range r.players {
		view, err := r.recipientStateLocked(i)
		if err != nil {
			continue
		}
		r.srv.events.Publish(GameStartedMsg{Type: MsgGameStarted, State: view}, r.connOfSlotLocked(i))
	}
	r.progressLocked(&PhaseEvents{})
	return nil
}

func (r *Room) broadcastLobbyLocked() {
	r.srv.events.Publish(LobbyStateMsg{Type: MsgLobbyState, Lobby: r.lobbyLocked()}, r.connsLocked()...)
}

// destroyLocked tears the room down: timers stopped, sessions unbound,
// server maps cleaned.
func (r *Room) destroyLocked(reason string) {
	r.log.Debugf("room %s destroyed (%s)", r.Code, reason)
	r.stopTurnTimerLocked()
	if r.cleanupTimer != nil {
		r.cleanupTimer.Stop()
		r.cleanupTimer = nil
	}
	for _, p := range r.players {
		r.srv.sessions.SetRoom(p.Token, "")
	}
	r.lifecycle.Transition(stateClosed)
	r.srv.removeRoom(r)
}

// Destroy is the exported form for the server's sweeper.
func (r *Room) Destroy(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyLocked(reason)
}

// IdleSince reports the last time anything happened in the room.
func (r *Room) IdleSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}
