package server

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// tokenAlphabet is base62; 22 characters give a shade over 128 bits.
const (
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	tokenLength   = 22
)

// newToken returns an unguessable session token from the OS entropy pool.
func newToken() (string, error) {
	buf := make([]byte, tokenLength)
	out := make([]byte, tokenLength)
	filled := 0
	for filled < tokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("token entropy: %w", err)
		}
		for _, b := range buf {
			// Rejection sampling keeps the distribution uniform over the
			// 62-character alphabet.
			if b >= 248 {
				continue
			}
			out[filled] = tokenAlphabet[int(b)%len(tokenAlphabet)]
			filled++
			if filled == tokenLength {
				break
			}
		}
	}
	return string(out), nil
}

// Session is the durable identity that survives connection churn. A
// connection proves ownership of a session by presenting the bearer token;
// nothing else about the transport is trusted.
type Session struct {
	Token    string
	PlayerID string

	// RoomID is the room the session currently belongs to, empty when the
	// player is not in a room. Guarded by the registry mutex.
	RoomID string

	CreatedAt time.Time
	LastSeen  time.Time
}

// SessionRegistry maps bearer tokens to sessions. All methods are safe for
// concurrent use.
type SessionRegistry struct {
	mu      sync.RWMutex
	byToken map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{byToken: make(map[string]*Session)}
}

// Create mints a fresh session with a new player id.
func (r *SessionRegistry) Create() (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	s := &Session{
		Token:     token,
		PlayerID:  uuid.NewString(),
		CreatedAt: now,
		LastSeen:  now,
	}
	r.mu.Lock()
	r.byToken[token] = s
	r.mu.Unlock()
	return s, nil
}

// Lookup resolves a bearer token, refreshing its last-seen time.
func (r *SessionRegistry) Lookup(token string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byToken[token]
	if ok {
		s.LastSeen = time.Now()
	}
	return s, ok
}

// SetRoom records which room a session belongs to. An empty room id clears
// the binding.
func (r *SessionRegistry) SetRoom(token, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byToken[token]; ok {
		s.RoomID = roomID
	}
}

// RoomOf returns the session's current room id.
func (r *SessionRegistry) RoomOf(token string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byToken[token]; ok {
		return s.RoomID
	}
	return ""
}

// Remove drops a session. Used when an auto-created session is superseded
// by a resume, and when rooms are destroyed with no way back.
func (r *SessionRegistry) Remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byToken, token)
}

// Len reports the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byToken)
}
