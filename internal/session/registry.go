// ABOUTME: Registry of live realtime sessions keyed by participant
// ABOUTME: Supports multiple concurrent sessions per participant and snapshot reads for fan-out

package session

import (
	"log/slog"
	"sync"
)

// Session is one live realtime attachment for a participant. A participant
// may hold several sessions at once (multiple tabs or devices).
type Session interface {
	SessionID() string
	Participant() string
	Push(payload []byte) error
}

// Closer is implemented by sessions that can be shut down by the registry.
type Closer interface {
	Close(code int, reason string)
}

// Registry tracks live sessions per participant. All methods are safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byPart map[string]map[string]Session // participantID -> sessionID -> session
	logger *slog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byPart: make(map[string]map[string]Session),
		logger: logger.With("component", "session"),
	}
}

// Register adds a session. Registering never displaces existing sessions
// for the same participant.
func (r *Registry) Register(s Session) {
	r.mu.Lock()
	sessions := r.byPart[s.Participant()]
	if sessions == nil {
		sessions = make(map[string]Session)
		r.byPart[s.Participant()] = sessions
	}
	sessions[s.SessionID()] = s
	count := len(sessions)
	r.mu.Unlock()

	r.logger.Debug("session registered",
		"participant", s.Participant(),
		"session_id", s.SessionID(),
		"active_sessions", count)
}

// Unregister removes a session if it is still tracked. Unregistering an
// unknown session is a no-op.
func (r *Registry) Unregister(s Session) {
	r.mu.Lock()
	sessions, ok := r.byPart[s.Participant()]
	if ok {
		if _, tracked := sessions[s.SessionID()]; !tracked {
			ok = false
		} else {
			delete(sessions, s.SessionID())
			if len(sessions) == 0 {
				delete(r.byPart, s.Participant())
			}
		}
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debug("session unregistered",
			"participant", s.Participant(),
			"session_id", s.SessionID())
	}
}

// SessionsFor returns a snapshot of the participant's live sessions.
// The snapshot is safe to iterate without holding registry locks.
func (r *Registry) SessionsFor(participantID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.byPart[participantID]
	if len(sessions) == 0 {
		return nil
	}
	snapshot := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// Count returns the number of live sessions across all participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, sessions := range r.byPart {
		total += len(sessions)
	}
	return total
}

// Close shuts down every tracked session and clears the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	var all []Session
	for _, sessions := range r.byPart {
		for _, s := range sessions {
			all = append(all, s)
		}
	}
	r.byPart = make(map[string]map[string]Session)
	r.mu.Unlock()

	for _, s := range all {
		if closer, ok := s.(Closer); ok {
			closer.Close(1001, "server shutdown")
		}
	}
}
