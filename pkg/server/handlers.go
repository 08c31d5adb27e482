package server

import (
	"encoding/json"
	"time"
)

// handleMessage dispatches one inbound frame. Malformed frames are logged
// and dropped; a client that cannot produce JSON will not get far anyway.
func (s *Server) handleMessage(c *Conn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Debugf("conn %s: malformed frame dropped: %v", c.id, err)
		return
	}

	sess, ok := s.sessions.Lookup(c.Token())
	if !ok {
		s.sendError(c, "invalid session")
		return
	}

	switch env.Type {
	case MsgPing:
		s.events.Publish(PongMsg{Type: MsgPong}, c)

	case MsgResumeSession:
		var req ResumeSessionRequest
		if err := decodePayload(data, &req); err != nil {
			s.sendError(c, err.Error())
			return
		}
		s.handleResume(c, req.SessionToken)

	case MsgCreateRoom:
		var req CreateRoomRequest
		if err := decodePayload(data, &req); err != nil {
			s.sendError(c, err.Error())
			return
		}
		s.handleCreateRoom(c, sess, req)

	case MsgJoinRoom:
		var req JoinRoomRequest
		if err := decodePayload(data, &req); err != nil {
			s.sendError(c, err.Error())
			return
		}
		s.handleJoinRoom(c, sess, req)

	default:
		s.handleRoomMessage(c, sess, env.Type, data)
	}
}

// handleRoomMessage covers every message that only makes sense inside a
// room the sender already belongs to.
func (s *Server) handleRoomMessage(c *Conn, sess *Session, kind string, data []byte) {
	room := s.roomByID(s.sessions.RoomOf(sess.Token))
	if room == nil {
		s.sendError(c, "not in a room")
		return
	}

	switch kind {
	case MsgSetPlayerInfo:
		var req SetPlayerInfoRequest
		if err := decodePayload(data, &req); err != nil {
			s.sendError(c, err.Error())
			return
		}
		if err := room.SetPlayerInfo(sess.PlayerID, req.DisplayName, req.CarColor); err != nil {
			s.sendError(c, err.Error())
		}

	case MsgSetReady:
		var req SetReadyRequest
		if err := decodePayload(data, &req); err != nil {
			s.sendError(c, err.Error())
			return
		}
		if err := room.SetReady(sess.PlayerID, req.Ready); err != nil {
			s.sendError(c, err.Error())
		}

	case MsgUpdateRoomConfig:
		var req UpdateRoomConfigRequest
		if err := decodePayload(data, &req); err != nil {
			s.sendError(c, err.Error())
			return
		}
		if err := room.UpdateConfig(sess.PlayerID, req); err != nil {
			s.sendError(c, err.Error())
		}

	case MsgLeaveRoom:
		if err := room.Leave(sess.PlayerID); err != nil {
			s.sendError(c, err.Error())
		}

	case MsgStartGame:
		if err := room.Start(sess.PlayerID); err != nil {
			s.sendError(c, err.Error())
		}

	case MsgGearShift:
		var req GearShiftAction
		if err := decodePayload(data, &req); err != nil {
			s.sendError(c, err.Error())
			return
		}
		room.HandleGearShift(sess.PlayerID, req.TargetGear)

	case MsgPlayCards:
		var req PlayCardsAction
		if err := decodePayload(data, &req); err != nil {
			s.sendError(c, err.Error())
			return
		}
		room.HandlePlayCards(sess.PlayerID, req.CardIndices)

	case MsgReactCooldown:
		var req ReactCooldownAction
		if err := decodePayload(data, &req); err != nil {
			s.sendError(c, err.Error())
			return
		}
		room.HandleCooldown(sess.PlayerID, req.HeatIndices)

	case MsgReactBoost:
		room.HandleBoost(sess.PlayerID)

	case MsgReactDone:
		room.HandleReactDone(sess.PlayerID)

	case MsgSlipstream:
		var req SlipstreamAction
		if err := decodePayload(data, &req); err != nil {
			s.sendError(c, err.Error())
			return
		}
		room.HandleSlipstream(sess.PlayerID, req.Accept)

	case MsgDiscard:
		var req DiscardAction
		if err := decodePayload(data, &req); err != nil {
			s.sendError(c, err.Error())
			return
		}
		room.HandleDiscard(sess.PlayerID, req.CardIndices)

	default:
		s.sendError(c, "unknown message type "+kind)
	}
}

// handleResume rebinds the connection to an existing session, replacing
// the fresh one minted at connect time. Resuming the already-bound token
// is idempotent and only resyncs.
func (s *Server) handleResume(c *Conn, token string) {
	if token == c.Token() {
		sess, ok := s.sessions.Lookup(token)
		if !ok {
			s.sendError(c, "invalid session token")
			return
		}
		s.ackResume(c, sess)
		return
	}

	sess, ok := s.sessions.Lookup(token)
	if !ok {
		s.sendError(c, "invalid session token")
		return
	}

	// Detach the connection's previous identity before rebinding. An
	// auto-created session that never joined a room is discarded; one
	// that did join (join-then-resume is a legal order) goes through the
	// normal disconnect path so its seat stops pointing at this socket.
	oldToken := c.Token()
	if oldSess, ok := s.sessions.Lookup(oldToken); ok {
		s.mu.Lock()
		if s.conns[oldSess.PlayerID] == c {
			delete(s.conns, oldSess.PlayerID)
		}
		s.mu.Unlock()
		if roomID := s.sessions.RoomOf(oldToken); roomID != "" {
			if room := s.roomByID(roomID); room != nil {
				room.HandleDisconnect(oldSess.PlayerID)
			}
		} else {
			s.sessions.Remove(oldToken)
		}
	}
	c.bindToken(sess.Token)
	s.registerConn(sess.PlayerID, c)
	s.ackResume(c, sess)
}

func (s *Server) ackResume(c *Conn, sess *Session) {
	s.events.Publish(SessionCreatedMsg{
		Type:         MsgSessionCreated,
		SessionToken: sess.Token,
		PlayerID:     sess.PlayerID,
	}, c)
	if roomID := s.sessions.RoomOf(sess.Token); roomID != "" {
		if room := s.roomByID(roomID); room != nil {
			room.HandleReconnect(sess.PlayerID)
		}
	}
}

func (s *Server) handleCreateRoom(c *Conn, sess *Session, req CreateRoomRequest) {
	if s.sessions.RoomOf(sess.Token) != "" {
		s.sendError(c, "already in a room")
		return
	}

	cfg := RoomConfig{
		TrackID:      req.TrackID,
		LapCount:     req.LapCount,
		MaxPlayers:   req.MaxPlayers,
		TurnTimeout:  time.Duration(req.TurnTimeoutMs) * time.Millisecond,
		SoloPractice: req.SoloPractice,
	}
	if cfg.TrackID == "" {
		cfg.TrackID = "gp-48"
	}
	if cfg.LapCount == 0 {
		cfg.LapCount = 2
	}
	if cfg.MaxPlayers == 0 {
		cfg.MaxPlayers = maxPlayers
	}
	if req.TurnTimeoutMs == 0 {
		cfg.TurnTimeout = s.cfg.TurnTimeout
	}
	if err := cfg.validate(); err != nil {
		s.sendError(c, err.Error())
		return
	}

	room, err := s.createRoom(cfg)
	if err != nil {
		s.sendError(c, err.Error())
		return
	}
	slot, err := room.Join(sess, req.DisplayName)
	if err != nil {
		room.Destroy("host join failed")
		s.sendError(c, err.Error())
		return
	}
	room.mu.Lock()
	lobby := room.lobbyLocked()
	room.mu.Unlock()
	s.events.Publish(RoomCreatedMsg{Type: MsgRoomCreated, Slot: slot, Lobby: lobby}, c)
}

func (s *Server) handleJoinRoom(c *Conn, sess *Session, req JoinRoomRequest) {
	if s.sessions.RoomOf(sess.Token) != "" {
		s.sendError(c, "already in a room")
		return
	}
	room := s.roomByCode(req.RoomCode)
	if room == nil {
		s.sendError(c, "no room with code "+req.RoomCode)
		return
	}
	if _, err := room.Join(sess, req.DisplayName); err != nil {
		s.sendError(c, err.Error())
	}
}

// handleDisconnect runs when a connection's read loop exits. A connection
// superseded by a resume on a newer socket is ignored.
func (s *Server) handleDisconnect(c *Conn) {
	sess, ok := s.sessions.Lookup(c.Token())
	if !ok {
		return
	}
	s.mu.Lock()
	if s.conns[sess.PlayerID] != c {
		s.mu.Unlock()
		return
	}
	delete(s.conns, sess.PlayerID)
	s.mu.Unlock()

	if roomID := s.sessions.RoomOf(sess.Token); roomID != "" {
		if room := s.roomByID(roomID); room != nil {
			room.HandleDisconnect(sess.PlayerID)
		}
	}
}

func (s *Server) sendError(c *Conn, msg string) {
	s.events.Publish(ErrorMsg{Type: MsgError, Message: msg}, c)
}
