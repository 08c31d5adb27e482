package server

import (
	"fmt"
	mrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"
)

// Config tunes server-wide behavior. Zero values get sensible defaults.
type Config struct {
	// TurnTimeout is the default phase deadline for rooms that do not set
	// their own. Zero means untimed turns.
	TurnTimeout time.Duration
	// GracePeriod is how long a fully-disconnected room survives before
	// it is destroyed.
	GracePeriod time.Duration
	// RoomTTL is the idle age at which the sweeper reclaims a room.
	RoomTTL time.Duration
	// SweepInterval is how often the sweeper runs.
	SweepInterval time.Duration
	// Seed fixes match seeds for reproducible races; zero seeds from the
	// clock.
	Seed int64

	Log slog.Logger
}

func (c *Config) setDefaults() {
	if c.GracePeriod <= 0 {
		c.GracePeriod = 30 * time.Second
	}
	if c.RoomTTL <= 0 {
		c.RoomTTL = time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	if c.Log == nil {
		c.Log = slog.Disabled
	}
}

// Server owns every room, session and connection. Rooms serialize their own
// state; the server mutex only guards the lookup maps and is never held
// while calling into a room.
type Server struct {
	cfg      Config
	log      slog.Logger
	sessions *SessionRegistry
	events   *EventProcessor

	mu          sync.Mutex
	roomsByID   map[string]*Room
	roomsByCode map[string]*Room
	conns       map[string]*Conn // keyed by player id

	seedMu  sync.Mutex
	seedRng *mrand.Rand

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer builds a server and starts its room sweeper.
func NewServer(cfg Config) *Server {
	cfg.setDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Server{
		cfg:         cfg,
		log:         cfg.Log,
		sessions:    NewSessionRegistry(),
		events:      NewEventProcessor(1024, cfg.Log),
		roomsByID:   make(map[string]*Room),
		roomsByCode: make(map[string]*Room),
		conns:       make(map[string]*Conn),
		seedRng:     mrand.New(mrand.NewSource(seed)),
		quit:        make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop()
	return s
}

// Stop shuts down background work and flushes pending deliveries.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
	s.wg.Wait()
	s.events.Stop()
}

// newSeed returns the next match seed.
func (s *Server) newSeed() int64 {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	return s.seedRng.Int63()
}

// --- connection registry ---

func (s *Server) registerConn(playerID string, c *Conn) {
	s.mu.Lock()
	old := s.conns[playerID]
	s.conns[playerID] = c
	s.mu.Unlock()
	if old != nil && old != c {
		old.Close()
	}
}

func (s *Server) connOf(playerID string) *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[playerID]
}

// --- room registry ---

func (s *Server) roomByID(id string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomsByID[id]
}

func (s *Server) roomByCode(code string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomsByCode[strings.ToUpper(code)]
}

// createRoom allocates a room under a collision-checked share code.
func (s *Server) createRoom(cfg RoomConfig) (*Room, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := newRoomCode()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if _, taken := s.roomsByCode[code]; taken {
			s.mu.Unlock()
			continue
		}
		r := newRoom(s, code, cfg, s.log)
		s.roomsByID[r.ID] = r
		s.roomsByCode[code] = r
		s.mu.Unlock()
		s.log.Infof("room %s created (track %s, %d laps)", code, cfg.TrackID, cfg.LapCount)
		return r, nil
	}
	return nil, fmt.Errorf("could not allocate a room code")
}

func (s *Server) removeRoom(r *Room) {
	s.mu.Lock()
	delete(s.roomsByID, r.ID)
	delete(s.roomsByCode, r.Code)
	s.mu.Unlock()
}

// RoomCount reports the number of live rooms.
func (s *Server) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.roomsByID)
}

// --- timer and sweeper callbacks ---

func (s *Server) onTurnTimeout(roomID string, gen int) {
	if r := s.roomByID(roomID); r != nil {
		r.onTurnTimeout(gen)
	}
}

func (s *Server) onRoomAbandoned(roomID string) {
	if r := s.roomByID(roomID); r != nil {
		r.onAbandoned()
	}
}

func (s *Server) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepStaleRooms()
		case <-s.quit:
			return
		}
	}
}

func (s *Server) sweepStaleRooms() {
	cutoff := time.Now().Add(-s.cfg.RoomTTL)
	s.mu.Lock()
	var stale []*Room
	for _, r := range s.roomsByID {
		stale = append(stale, r)
	}
	s.mu.Unlock()
	for _, r := range stale {
		if r.IdleSince().Before(cutoff) {
			s.log.Debugf("sweeping stale room %s", r.Code)
			r.Destroy("stale")
		}
	}
}
