// Package profile provides the per-tenant in-memory store of user analytics state.
//
// The online path (fraud detection and capability assessment) mutates a
// user's state while holding that user's lock, obtained through Store.Lock.
// The offline path reads deep copies through Store.Snapshot.
package profile

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Loofy147/Lsp/internal/domain"
)

// ErrDuplicateSequence is returned when a session already holds an event at
// the same sequence position.
var ErrDuplicateSequence = errors.New("duplicate sequence position in session")

// SeriesRetention bounds the interval and timestamp series kept per user.
// The series are trimmed back to this length once they reach twice it.
const SeriesRetention = 1024

// Store holds activity profiles, known devices and internal profiles for one tenant.
type Store struct {
	mu sync.RWMutex

	activity map[string]*domain.ActivityProfile
	hours    map[string]*hourCounts
	profiles map[string]*domain.InternalProfile

	// userDevices maps user -> fingerprint set; deviceUsers is the inverse index.
	userDevices map[string]map[string]struct{}
	deviceUsers map[string]map[string]struct{}

	// sequences maps user -> session -> seen positions.
	sequences map[string]map[string]map[int]struct{}

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		activity:    make(map[string]*domain.ActivityProfile),
		hours:       make(map[string]*hourCounts),
		profiles:    make(map[string]*domain.InternalProfile),
		userDevices: make(map[string]map[string]struct{}),
		deviceUsers: make(map[string]map[string]struct{}),
		sequences:   make(map[string]map[string]map[int]struct{}),
		locks:       make(map[string]*sync.Mutex),
	}
}

// Lock serializes work on a single user and returns the unlock function.
func (s *Store) Lock(userID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// ActivityProfile returns a copy of the user's activity profile.
func (s *Store) ActivityProfile(userID string) (*domain.ActivityProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.activity[userID]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// hourCounts tallies every recorded activity by UTC hour. It is not
// affected by pruning.
type hourCounts struct {
	byHour [24]int
	total  int
}

// RecordActivity appends ts to the user's activity profile, updating the
// interval series, the timestamp series, the hour distribution and the last
// activity time.
func (s *Store) RecordActivity(userID string, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.activity[userID]
	if !ok {
		p = &domain.ActivityProfile{
			UserID:           userID,
			HourDistribution: make(map[int]float64),
		}
		s.activity[userID] = p
		s.hours[userID] = &hourCounts{}
	}

	if !p.LastActivityTime.IsZero() {
		p.Intervals = append(p.Intervals, ts.Sub(p.LastActivityTime).Seconds())
	}
	p.ActivityTimes = append(p.ActivityTimes, ts)
	p.LastActivityTime = ts

	hc := s.hours[userID]
	hc.byHour[ts.UTC().Hour()]++
	hc.total++
	for h, c := range hc.byHour {
		if c > 0 {
			p.HourDistribution[h] = float64(c) / float64(hc.total)
		}
	}

	if len(p.ActivityTimes) >= 2*SeriesRetention {
		prune(p, SeriesRetention)
	}
}

// PruneActivityProfile keeps only the latest keep intervals and timestamps.
// The hour distribution still covers every recorded activity.
func (s *Store) PruneActivityProfile(userID string, keep int) {
	if keep < 0 {
		keep = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.activity[userID]; ok {
		prune(p, keep)
	}
}

func prune(p *domain.ActivityProfile, keep int) {
	if n := len(p.Intervals); n > keep {
		p.Intervals = append([]float64(nil), p.Intervals[n-keep:]...)
	}
	if n := len(p.ActivityTimes); n > keep {
		p.ActivityTimes = append([]time.Time(nil), p.ActivityTimes[n-keep:]...)
	}
}

// HasDevice reports whether fingerprint is already known for the user.
func (s *Store) HasDevice(userID, fingerprint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.userDevices[userID][fingerprint]
	return ok
}

// DeviceCount returns how many devices the user has been seen on.
func (s *Store) DeviceCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.userDevices[userID])
}

// OtherUsersOnDevice counts distinct users other than userID seen on fingerprint.
func (s *Store) OtherUsersOnDevice(userID, fingerprint string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for u := range s.deviceUsers[fingerprint] {
		if u != userID {
			n++
		}
	}
	return n
}

// AddDevice records fingerprint for the user.
func (s *Store) AddDevice(userID, fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userDevices[userID] == nil {
		s.userDevices[userID] = make(map[string]struct{})
	}
	s.userDevices[userID][fingerprint] = struct{}{}

	if s.deviceUsers[fingerprint] == nil {
		s.deviceUsers[fingerprint] = make(map[string]struct{})
	}
	s.deviceUsers[fingerprint][userID] = struct{}{}
}

// Profile returns the live internal profile for userID, creating it on first
// use. Callers must hold the user's lock while reading or mutating it.
func (s *Store) Profile(userID string) *domain.InternalProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		p = domain.NewInternalProfile(userID)
		s.profiles[userID] = p
	}
	return p
}

// AppendActivity adds ev to the user's history. Callers must hold the user's lock.
func (s *Store) AppendActivity(ev domain.ActivityEvent) error {
	if ev.SessionID != "" {
		s.mu.Lock()
		sessions := s.sequences[ev.UserID]
		if sessions == nil {
			sessions = make(map[string]map[int]struct{})
			s.sequences[ev.UserID] = sessions
		}
		seen := sessions[ev.SessionID]
		if seen == nil {
			seen = make(map[int]struct{})
			sessions[ev.SessionID] = seen
		}
		if _, dup := seen[ev.SequencePosition]; dup {
			s.mu.Unlock()
			return fmt.Errorf("session %s position %d: %w", ev.SessionID, ev.SequencePosition, ErrDuplicateSequence)
		}
		seen[ev.SequencePosition] = struct{}{}
		s.mu.Unlock()
	}

	p := s.Profile(ev.UserID)
	p.ActivityHistory = append(p.ActivityHistory, ev)
	p.UpdatedAt = ev.Timestamp
	return nil
}

// SequenceSeen reports whether the session already holds an event at position.
func (s *Store) SequenceSeen(userID, sessionID string, position int) bool {
	if sessionID == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sequences[userID][sessionID][position]
	return ok
}

// HasUser reports whether an internal profile exists for userID.
func (s *Store) HasUser(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.profiles[userID]
	return ok
}

// Users returns the known user ids in sorted order.
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns deep copies of every internal profile, ordered by user id.
func (s *Store) Snapshot() []*domain.InternalProfile {
	users := s.Users()
	out := make([]*domain.InternalProfile, 0, len(users))
	for _, id := range users {
		unlock := s.Lock(id)
		s.mu.RLock()
		p := s.profiles[id]
		var c *domain.InternalProfile
		if p != nil {
			c = p.Clone()
		}
		s.mu.RUnlock()
		unlock()
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Registry hands out one Store per tenant.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*Store)}
}

// For returns the store for tenantID, creating it on first use.
func (r *Registry) For(tenantID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stores[tenantID]
	if !ok {
		s = NewStore()
		r.stores[tenantID] = s
	}
	return s
}

// Tenants returns the tenants that have a store.
func (r *Registry) Tenants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.stores))
	for id := range r.stores {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
