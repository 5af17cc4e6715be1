package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/config"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/edit"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/segment"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/viewport"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session ids
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions is returned when the session limit is reached
	ErrTooManySessions = errors.New("too many open sessions")

	// ErrNoRoutes is returned by operations that need a computed route set
	ErrNoRoutes = errors.New("no routes computed")

	// ErrSuperseded is returned by a compute whose result was replaced by a
	// newer compute or a clear before it finished
	ErrSuperseded = errors.New("compute superseded by a newer request")

	// ErrEditActive is returned when selecting another route while editing
	ErrEditActive = errors.New("edit mode is active on another route")
)

// DefaultView is the Tel Aviv view new sessions start with
var DefaultView = viewport.WebMercator{
	Center: geo.Point{Longitude: 34.7818, Latitude: 32.0853},
	Zoom:   12,
	Width:  1280,
	Height: 800,
}

// LabService holds the lab sessions. Each session is one user's map state:
// the computed route triple, badges, the edit session and scoring categories.
type LabService struct {
	router   routing.Router
	planner  *routing.Planner
	splitter segment.Splitter
	cfg      *config.Config

	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewLabService creates a new LabService that resolves routes through router
func NewLabService(router routing.Router, cfg *config.Config) *LabService {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LabService{
		router:   router,
		planner:  routing.NewPlanner(router, cfg.Planner),
		splitter: segment.NewSplitter(cfg.Segment),
		cfg:      cfg,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// CreateSession opens a new session on view. A zero view uses DefaultView.
func (s *LabService) CreateSession(ctx context.Context, view viewport.WebMercator) (Snapshot, error) {
	if view == (viewport.WebMercator{}) {
		view = DefaultView
	}
	if err := view.Validate(); err != nil {
		return Snapshot{}, err
	}

	sess := &Session{
		ID:        uuid.NewString(),
		svc:       s,
		engine:    edit.NewEngine(s.router, s.cfg.Edit),
		view:      view,
		lastUsed:  s.now(),
		createdAt: s.now(),
	}

	s.mu.Lock()
	if limit := s.cfg.Session.MaxSessions; limit > 0 && len(s.sessions) >= limit {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: limit is %d", ErrTooManySessions, limit)
	}
	s.sessions[sess.ID] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	logging.Infow(ctx, "Lab session created", "session_id", sess.ID, "open_sessions", count)
	return sess.Snapshot(), nil
}

// GetSession returns the session with id and marks it as used
func (s *LabService) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	sess.mu.Lock()
	sess.lastUsed = s.now()
	sess.mu.Unlock()
	return sess, nil
}

// DeleteSession closes the session with id
func (s *LabService) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.Clear()
	logging.Infow(ctx, "Lab session deleted", "session_id", id)
	return nil
}

// SessionCount returns the number of open sessions
func (s *LabService) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ExpireIdle drops sessions unused for longer than ttl and returns how many were removed
func (s *LabService) ExpireIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.lastUsed.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Clear()
	}
	return len(expired)
}

// Config returns the service configuration
func (s *LabService) Config() *config.Config {
	return s.cfg
}
