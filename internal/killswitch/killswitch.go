// Package killswitch implements the hierarchical kill-switch plane: a
// global stop overrides everything, a user stop overrides that user's
// strategies, and a strategy stop overrides just that strategy. State
// changes are published on an events.Bus so the supervisor and any other
// interested component can react without polling.
package killswitch

import (
	"sync"
	"time"

	"github.com/aristath/sentinel/internal/events"
)

// MaxCacheAge is the staleness ceiling for a cached read of kill-switch
// state. The store itself is always consistent (protected by a mutex), and
// no caller in this module caches it: the runner calls IsStrategyActive for
// every order and the supervisor for every start, so neither reads stale
// state and nothing references this constant.
const MaxCacheAge = 1 * time.Second

// Record describes one active kill-switch scope.
type Record struct {
	Scope       string // "global", "user", or "strategy"
	ScopeID     string // user ID or strategy/subscription ID; empty for global
	Reason      string
	ActivatedBy string
	ActivatedAt time.Time
}

// Store is the hierarchical kill-switch state. Zero value is not usable;
// use New.
type Store struct {
	mu       sync.RWMutex
	global   *Record
	users    map[string]*Record
	strategies map[string]*Record
	manager  *events.Manager
}

// New creates an empty Store. manager may be nil if event propagation
// isn't needed (e.g. in tests).
func New(manager *events.Manager) *Store {
	return &Store{
		users:      make(map[string]*Record),
		strategies: make(map[string]*Record),
		manager:    manager,
	}
}

func (s *Store) emit(t events.EventType, r Record) {
	if s.manager == nil {
		return
	}
	s.manager.Emit(t, "killswitch", map[string]interface{}{
		"scope":        r.Scope,
		"scope_id":     r.ScopeID,
		"reason":       r.Reason,
		"activated_by": r.ActivatedBy,
		"activated_at": r.ActivatedAt,
	})
}

// ActivateGlobal stops every strategy across every user.
func (s *Store) ActivateGlobal(reason, activatedBy string) {
	r := Record{Scope: "global", Reason: reason, ActivatedBy: activatedBy, ActivatedAt: time.Now()}
	s.mu.Lock()
	s.global = &r
	s.mu.Unlock()
	s.emit(events.GlobalStop, r)
}

// DeactivateGlobal resumes trading globally (per-user/per-strategy switches
// still apply).
func (s *Store) DeactivateGlobal(deactivatedBy string) {
	s.mu.Lock()
	s.global = nil
	s.mu.Unlock()
	s.emit(events.GlobalResume, Record{Scope: "global", ActivatedBy: deactivatedBy, ActivatedAt: time.Now()})
}

// ActivateUser stops every strategy belonging to userID.
func (s *Store) ActivateUser(userID, reason string) {
	r := Record{Scope: "user", ScopeID: userID, Reason: reason, ActivatedAt: time.Now()}
	s.mu.Lock()
	s.users[userID] = &r
	s.mu.Unlock()
	s.emit(events.UserStop, r)
}

// DeactivateUser resumes trading for userID.
func (s *Store) DeactivateUser(userID string) {
	s.mu.Lock()
	delete(s.users, userID)
	s.mu.Unlock()
	s.emit(events.UserResume, Record{Scope: "user", ScopeID: userID, ActivatedAt: time.Now()})
}

// ActivateStrategy stops a single strategy/subscription.
func (s *Store) ActivateStrategy(subscriptionID, reason string) {
	r := Record{Scope: "strategy", ScopeID: subscriptionID, Reason: reason, ActivatedAt: time.Now()}
	s.mu.Lock()
	s.strategies[subscriptionID] = &r
	s.mu.Unlock()
	s.emit(events.StrategyStop, r)
}

// DeactivateStrategy resumes a single strategy/subscription.
func (s *Store) DeactivateStrategy(subscriptionID string) {
	s.mu.Lock()
	delete(s.strategies, subscriptionID)
	s.mu.Unlock()
	s.emit(events.StrategyResume, Record{Scope: "strategy", ScopeID: subscriptionID, ActivatedAt: time.Now()})
}

// IsGlobalActive reports whether the global kill switch is active.
func (s *Store) IsGlobalActive() (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.global == nil {
		return Record{}, false
	}
	return *s.global, true
}

// IsUserActive reports whether the global switch or userID's switch is
// active, checking the parent scope first.
func (s *Store) IsUserActive(userID string) (Record, bool) {
	if r, ok := s.IsGlobalActive(); ok {
		return r, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.users[userID]; ok {
		return *r, true
	}
	return Record{}, false
}

// IsStrategyActive reports whether the global switch, the owning user's
// switch, or the strategy's own switch is active, checking parent scopes
// first (global, then user, then strategy).
func (s *Store) IsStrategyActive(userID, subscriptionID string) (Record, bool) {
	if r, ok := s.IsUserActive(userID); ok {
		return r, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.strategies[subscriptionID]; ok {
		return *r, true
	}
	return Record{}, false
}
