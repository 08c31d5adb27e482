package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(Config{SweepInterval: time.Hour, Seed: 1234})
	t.Cleanup(s.Stop)
	return s
}

func mustSession(t *testing.T, s *Server) *Session {
	t.Helper()
	sess, err := s.sessions.Create()
	require.NoError(t, err)
	return sess
}

func defaultRoomConfig() RoomConfig {
	return RoomConfig{TrackID: "gp-48", LapCount: 1, MaxPlayers: 4}
}

// newLobbyRoom creates a room and joins n players named racer-0..racer-n-1.
// No websockets are involved; deliveries to absent connections are skipped.
func newLobbyRoom(t *testing.T, s *Server, n int, cfg RoomConfig) (*Room, []*Session) {
	t.Helper()
	room, err := s.createRoom(cfg)
	require.NoError(t, err)
	sessions := make([]*Session, n)
	for i := 0; i < n; i++ {
		sessions[i] = mustSession(t, s)
		slot, err := room.Join(sessions[i], fmt.Sprintf("racer-%d", i))
		require.NoError(t, err)
		require.Equal(t, i, slot)
	}
	return room, sessions
}

// startedRoom readies everyone and starts the race.
func startedRoom(t *testing.T, s *Server, n int, cfg RoomConfig) (*Room, []*Session) {
	t.Helper()
	room, sessions := newLobbyRoom(t, s, n, cfg)
	for _, sess := range sessions {
		require.NoError(t, room.SetReady(sess.PlayerID, true))
	}
	require.NoError(t, room.Start(sessions[0].PlayerID))
	return room, sessions
}

func roomStatus(r *Room) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func TestNewRoomStartsWaiting(t *testing.T) {
	s := newTestServer(t)
	room, err := s.createRoom(defaultRoomConfig())
	require.NoError(t, err)

	// A fresh room must sit in the waiting state, not a terminated one,
	// or every status-gated operation would reject.
	require.Equal(t, "waiting", roomStatus(room))

	slot, err := room.Join(mustSession(t, s), "racer")
	require.NoError(t, err)
	require.Equal(t, 0, slot)
}

func TestJoinAssignsSlotsAndColors(t *testing.T) {
	s := newTestServer(t)
	room, sessions := newLobbyRoom(t, s, 3, defaultRoomConfig())

	require.Equal(t, "waiting", roomStatus(room))
	for _, sess := range sessions {
		require.Equal(t, room.ID, s.sessions.RoomOf(sess.Token))
	}

	room.mu.Lock()
	lobby := room.lobbyLocked()
	room.mu.Unlock()
	require.Len(t, lobby.Players, 3)
	require.True(t, lobby.Players[0].Host)
	colors := make(map[string]bool)
	for _, p := range lobby.Players {
		require.False(t, colors[p.Color], "duplicate color %s", p.Color)
		colors[p.Color] = true
		require.True(t, p.Connected)
		require.False(t, p.Ready)
	}
}

func TestJoinLimits(t *testing.T) {
	s := newTestServer(t)
	cfg := defaultRoomConfig()
	cfg.MaxPlayers = 2
	room, sessions := newLobbyRoom(t, s, 2, cfg)

	_, err := room.Join(mustSession(t, s), "late")
	require.ErrorContains(t, err, "full")

	_, err = room.Join(sessions[0], "again")
	require.ErrorContains(t, err, "already in room")
}

func TestJoinRejectsBadName(t *testing.T) {
	s := newTestServer(t)
	room, _ := newLobbyRoom(t, s, 1, defaultRoomConfig())

	_, err := room.Join(mustSession(t, s), "")
	require.Error(t, err)
	_, err = room.Join(mustSession(t, s), "this-name-is-far-too-long-to-accept")
	require.Error(t, err)
}

func TestSetPlayerInfo(t *testing.T) {
	s := newTestServer(t)
	room, sessions := newLobbyRoom(t, s, 2, defaultRoomConfig())

	require.NoError(t, room.SetReady(sessions[1].PlayerID, true))

	name := "The Stig"
	require.NoError(t, room.SetPlayerInfo(sessions[1].PlayerID, &name, nil))

	room.mu.Lock()
	p := room.players[1]
	takenColor := room.players[0].Color
	room.mu.Unlock()
	require.Equal(t, "The Stig", p.Name)
	// Changing info drops the ready flag.
	require.False(t, p.Ready)

	require.Error(t, room.SetPlayerInfo(sessions[1].PlayerID, nil, &takenColor))

	badColor := "chartreuse"
	require.Error(t, room.SetPlayerInfo(sessions[1].PlayerID, nil, &badColor))

	badName := ""
	require.Error(t, room.SetPlayerInfo(sessions[1].PlayerID, &badName, nil))
}

func TestUpdateConfig(t *testing.T) {
	s := newTestServer(t)
	room, sessions := newLobbyRoom(t, s, 3, defaultRoomConfig())

	for _, sess := range sessions {
		require.NoError(t, room.SetReady(sess.PlayerID, true))
	}

	laps := 3
	require.Error(t, room.UpdateConfig(sessions[1].PlayerID, UpdateRoomConfigRequest{LapCount: &laps}),
		"non-host must not change config")

	trackID := "endurance-60"
	require.NoError(t, room.UpdateConfig(sessions[0].PlayerID, UpdateRoomConfigRequest{
		TrackID:  &trackID,
		LapCount: &laps,
	}))

	room.mu.Lock()
	cfg := room.config
	allUnready := true
	for _, p := range room.players {
		if p.Ready {
			allUnready = false
		}
	}
	room.mu.Unlock()
	require.Equal(t, "endurance-60", cfg.TrackID)
	require.Equal(t, 3, cfg.LapCount)
	require.True(t, allUnready, "config change must un-ready everyone")

	shrink := 2
	require.Error(t, room.UpdateConfig(sessions[0].PlayerID, UpdateRoomConfigRequest{MaxPlayers: &shrink}),
		"cannot shrink below current player count")

	badTrack := "monaco"
	require.Error(t, room.UpdateConfig(sessions[0].PlayerID, UpdateRoomConfigRequest{TrackID: &badTrack}))
}

func TestLeaveTransfersHostAndDestroysEmptyRoom(t *testing.T) {
	s := newTestServer(t)
	room, sessions := newLobbyRoom(t, s, 3, defaultRoomConfig())

	require.NoError(t, room.Leave(sessions[0].PlayerID))
	require.Equal(t, "", s.sessions.RoomOf(sessions[0].Token))

	room.mu.Lock()
	require.Len(t, room.players, 2)
	require.Equal(t, 0, room.hostSlot)
	newHost := room.players[0].PlayerID
	room.mu.Unlock()
	require.Equal(t, sessions[1].PlayerID, newHost, "host transfers to the next seat")

	require.NoError(t, room.Leave(sessions[1].PlayerID))
	require.NoError(t, room.Leave(sessions[2].PlayerID))
	require.Equal(t, 0, s.RoomCount(), "empty room must be destroyed")
}

func TestStartGate(t *testing.T) {
	s := newTestServer(t)
	room, sessions := newLobbyRoom(t, s, 2, defaultRoomConfig())

	require.Error(t, room.Start(sessions[1].PlayerID), "only the host starts")
	require.Error(t, room.Start(sessions[0].PlayerID), "unready players block the start")

	require.NoError(t, room.SetReady(sessions[0].PlayerID, true))
	require.NoError(t, room.SetReady(sessions[1].PlayerID, true))
	require.NoError(t, room.Start(sessions[0].PlayerID))
	require.Equal(t, "playing", roomStatus(room))

	require.Error(t, room.Start(sessions[0].PlayerID), "cannot start twice")
}

func TestStartRequiresTwoUnlessSolo(t *testing.T) {
	s := newTestServer(t)

	room, sessions := newLobbyRoom(t, s, 1, defaultRoomConfig())
	require.NoError(t, room.SetReady(sessions[0].PlayerID, true))
	require.Error(t, room.Start(sessions[0].PlayerID))

	cfg := defaultRoomConfig()
	cfg.SoloPractice = true
	solo, soloSessions := newLobbyRoom(t, s, 1, cfg)
	require.NoError(t, solo.SetReady(soloSessions[0].PlayerID, true))
	require.NoError(t, solo.Start(soloSessions[0].PlayerID))
	require.Equal(t, "playing", roomStatus(solo))
}

func TestStartCreatesMatch(t *testing.T) {
	s := newTestServer(t)
	room, _ := startedRoom(t, s, 3, defaultRoomConfig())

	room.mu.Lock()
	defer room.mu.Unlock()
	require.NotNil(t, room.match)
	require.Len(t, room.match.Players, 3)
	require.Equal(t, 1, room.match.Round)
	// The first simultaneous phase is armed and collecting.
	require.Equal(t, room.match.Phase, room.pendingPhase)
	require.Empty(t, room.pending)
}
