// Package server implements the authoritative game server: rooms and
// lobbies, session registry, match controller and the websocket transport
// adapter. All state is in-memory; rooms are sharded behind per-room
// mutexes and the rules engine is only ever invoked under them.
package server

import (
	"encoding/json"
	"fmt"

	"github.com/johntylernyc/heatline/pkg/race"
)

// Inbound message types (client -> server).
const (
	MsgCreateRoom       = "create-room"
	MsgJoinRoom         = "join-room"
	MsgResumeSession    = "resume-session"
	MsgSetPlayerInfo    = "set-player-info"
	MsgSetReady         = "set-ready"
	MsgUpdateRoomConfig = "update-room-config"
	MsgLeaveRoom        = "leave-room"
	MsgStartGame        = "start-game"
	MsgGearShift        = "gear-shift"
	MsgPlayCards        = "play-cards"
	MsgReactCooldown    = "react-cooldown"
	MsgReactBoost       = "react-boost"
	MsgReactDone        = "react-done"
	MsgSlipstream       = "slipstream"
	MsgDiscard          = "discard"
	MsgPing             = "ping"
)

// Outbound message types (server -> client).
const (
	MsgSessionCreated     = "session-created"
	MsgRoomCreated        = "room-created"
	MsgPlayerJoined       = "player-joined"
	MsgPlayerLeft         = "player-left"
	MsgLobbyState         = "lobby-state"
	MsgGameStarted        = "game-started"
	MsgPhaseChanged       = "phase-changed"
	MsgActionRequired     = "action-required"
	MsgPlayerDisconnected = "player-disconnected"
	MsgPlayerReconnected  = "player-reconnected"
	MsgGameOver           = "game-over"
	MsgError              = "error"
	MsgPong               = "pong"
)

// Envelope is the discriminator read off every inbound frame before the
// payload is decoded.
type Envelope struct {
	Type string `json:"type"`
}

// Inbound payloads.

type CreateRoomRequest struct {
	TrackID       string `json:"trackId"`
	LapCount      int    `json:"lapCount"`
	MaxPlayers    int    `json:"maxPlayers"`
	TurnTimeoutMs int    `json:"turnTimeoutMs,omitempty"`
	SoloPractice  bool   `json:"soloPractice,omitempty"`
	DisplayName   string `json:"displayName"`
}

type JoinRoomRequest struct {
	RoomCode    string `json:"roomCode"`
	DisplayName string `json:"displayName"`
}

type ResumeSessionRequest struct {
	SessionToken string `json:"sessionToken"`
}

type SetPlayerInfoRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
	CarColor    *string `json:"carColor,omitempty"`
}

type SetReadyRequest struct {
	Ready bool `json:"ready"`
}

// UpdateRoomConfigRequest carries any subset of the room config; nil
// fields stay unchanged. Host only.
type UpdateRoomConfigRequest struct {
	TrackID       *string `json:"trackId,omitempty"`
	LapCount      *int    `json:"lapCount,omitempty"`
	MaxPlayers    *int    `json:"maxPlayers,omitempty"`
	TurnTimeoutMs *int    `json:"turnTimeoutMs,omitempty"`
	SoloPractice  *bool   `json:"soloPractice,omitempty"`
}

type GearShiftAction struct {
	TargetGear int `json:"targetGear"`
}

type PlayCardsAction struct {
	CardIndices []int `json:"cardIndices"`
}

type ReactCooldownAction struct {
	HeatIndices []int `json:"heatIndices"`
}

type SlipstreamAction struct {
	Accept bool `json:"accept"`
}

type DiscardAction struct {
	CardIndices []int `json:"cardIndices"`
}

// Outbound payloads. Every message is self-contained: the client can
// render from it without other context.

type SessionCreatedMsg struct {
	Type         string `json:"type"`
	SessionToken string `json:"sessionToken"`
	PlayerID     string `json:"playerId"`
}

// LobbyPlayer is one roster entry as shown in the lobby.
type LobbyPlayer struct {
	Slot      int    `json:"slot"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
	Host      bool   `json:"host"`
}

// LobbyState is the full lobby view of a room.
type LobbyState struct {
	RoomID        string        `json:"roomId"`
	RoomCode      string        `json:"roomCode"`
	Status        string        `json:"status"`
	TrackID       string        `json:"trackId"`
	LapCount      int           `json:"lapCount"`
	MaxPlayers    int           `json:"maxPlayers"`
	TurnTimeoutMs int           `json:"turnTimeoutMs"`
	SoloPractice  bool          `json:"soloPractice,omitempty"`
	Players       []LobbyPlayer `json:"players"`
}

type RoomCreatedMsg struct {
	Type  string     `json:"type"`
	Slot  int        `json:"slot"`
	Lobby LobbyState `json:"lobby"`
}

type PlayerJoinedMsg struct {
	Type  string     `json:"type"`
	Slot  int        `json:"slot"`
	Name  string     `json:"name"`
	Lobby LobbyState `json:"lobby"`
}

type PlayerLeftMsg struct {
	Type  string     `json:"type"`
	Slot  int        `json:"slot"`
	Lobby LobbyState `json:"lobby"`
}

type LobbyStateMsg struct {
	Type  string     `json:"type"`
	Lobby LobbyState `json:"lobby"`
}

type GameStartedMsg struct {
	Type  string               `json:"type"`
	State race.ClientGameState `json:"state"`
}

// PhaseEvents carries the engine results produced while the match advanced
// to the broadcast state.
type PhaseEvents struct {
	Moves      []race.MoveResult      `json:"moves,omitempty"`
	Adrenaline *race.AdrenalineResult `json:"adrenaline,omitempty"`
	Boosts     []race.BoostResult     `json:"boosts,omitempty"`
	Corners    []race.CornerResult    `json:"corners,omitempty"`
	Replenish  *race.ReplenishResult  `json:"replenish,omitempty"`
}

type PhaseChangedMsg struct {
	Type   string               `json:"type"`
	State  race.ClientGameState `json:"state"`
	Events *PhaseEvents         `json:"events,omitempty"`
}

type ActionRequiredMsg struct {
	Type         string     `json:"type"`
	Phase        race.Phase `json:"phase"`
	ActivePlayer int        `json:"activePlayer"` // -1 for simultaneous phases
	DeadlineMs   int        `json:"deadlineMs,omitempty"`
}

type PresenceMsg struct {
	Type string `json:"type"`
	Slot int    `json:"slot"`
	Name string `json:"name"`
}

// Standing is one row of the final classification.
type Standing struct {
	Slot     int    `json:"slot"`
	Name     string `json:"name"`
	Laps     int    `json:"laps"`
	Position int    `json:"position"`
	Winner   bool   `json:"winner,omitempty"`
}

type GameOverMsg struct {
	Type      string               `json:"type"`
	Standings []Standing           `json:"standings"`
	State     race.ClientGameState `json:"state"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type PongMsg struct {
	Type string `json:"type"`
}

// decodePayload decodes an inbound frame into the given payload struct.
func decodePayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}
