// Package presence tracks per-user cursor, selection, and liveness within
// editing sessions. Presence is last-write-wins per user and never carries
// ordering or conflict semantics, unlike document changes.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/planforge/collabd/internal/logging"
	"github.com/planforge/collabd/internal/models"
)

// EvictFunc is called when the sweep removes a user whose activity timed
// out. Evictions behave exactly like an explicit leave.
type EvictFunc func(sessionID models.UUID, userID string)

// Config holds tracker tuning.
type Config struct {
	// Timeout is the inactivity window after which a user is evicted.
	Timeout time.Duration
	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration
}

// DefaultConfig returns the default presence tuning.
func DefaultConfig() Config {
	return Config{
		Timeout:       60 * time.Second,
		SweepInterval: 10 * time.Second,
	}
}

// Tracker owns all ephemeral presence records, keyed by session.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[models.UUID]map[string]*models.ActiveUser

	cfg     Config
	onEvict EvictFunc

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	runMu   sync.Mutex

	// now is swappable in tests.
	now func() time.Time
}

// NewTracker creates a Tracker. onEvict may be nil.
func NewTracker(cfg Config, onEvict EvictFunc) *Tracker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	return &Tracker{
		sessions: make(map[models.UUID]map[string]*models.ActiveUser),
		cfg:      cfg,
		onEvict:  onEvict,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Join registers a user in a session, refreshing the record if one already
// exists so a reconnect within the timeout window keeps cursor context.
func (t *Tracker) Join(sessionID models.UUID, userID, displayName string) *models.ActiveUser {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.sessions[sessionID]
	if !ok {
		users = make(map[string]*models.ActiveUser)
		t.sessions[sessionID] = users
	}

	if u, ok := users[userID]; ok {
		u.DisplayName = displayName
		u.LastActivity = t.now().Unix()
		u.Online = true
		return u.Clone()
	}

	u := &models.ActiveUser{
		UserID:       userID,
		DisplayName:  displayName,
		LastActivity: t.now().Unix(),
		Online:       true,
	}
	users[userID] = u
	return u.Clone()
}

// Known reports whether a user currently has a presence record.
func (t *Tracker) Known(sessionID models.UUID, userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.sessions[sessionID][userID]
	return ok
}

// Remove drops a user's presence. Idempotent.
func (t *Tracker) Remove(sessionID models.UUID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.sessions[sessionID]
	if !ok {
		return false
	}
	if _, ok := users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.sessions, sessionID)
	}
	return true
}

// UpdateCursor records a user's caret position. Last write wins.
func (t *Tracker) UpdateCursor(sessionID models.UUID, userID string, cursor models.Cursor) bool {
	return t.update(sessionID, userID, func(u *models.ActiveUser) {
		u.Cursor = cursor
	})
}

// UpdateSelection records a user's selected range. Last write wins.
func (t *Tracker) UpdateSelection(sessionID models.UUID, userID string, sel models.Selection) bool {
	return t.update(sessionID, userID, func(u *models.ActiveUser) {
		u.Selection = sel
	})
}

// Touch refreshes a user's activity clock, optionally recording where in
// the product they are.
func (t *Tracker) Touch(sessionID models.UUID, userID, location string) bool {
	return t.update(sessionID, userID, func(u *models.ActiveUser) {
		if location != "" {
			u.Location = location
		}
	})
}

// MarkOffline flags a user as transport-disconnected without evicting them,
// so a brief network blip does not churn membership.
func (t *Tracker) MarkOffline(sessionID models.UUID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.sessions[sessionID][userID]
	if !ok {
		return false
	}
	u.Online = false
	return true
}

func (t *Tracker) update(sessionID models.UUID, userID string, fn func(*models.ActiveUser)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.sessions[sessionID][userID]
	if !ok {
		return false
	}
	fn(u)
	u.LastActivity = t.now().Unix()
	u.Online = true
	return true
}

// List returns a stable-ordered copy of a session's presence records.
func (t *Tracker) List(sessionID models.UUID) []*models.ActiveUser {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := t.sessions[sessionID]
	out := make([]*models.ActiveUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Count returns the number of active users in a session.
func (t *Tracker) Count(sessionID models.UUID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions[sessionID])
}

// Start launches the background sweep. Safe to call once.
func (t *Tracker) Start(ctx context.Context) {
	t.runMu.Lock()
	if t.running {
		t.runMu.Unlock()
		return
	}
	t.running = true
	t.runMu.Unlock()

	t.wg.Add(1)
	go t.sweepLoop(ctx)
	logging.Info("presence sweep started", logging.Fields{
		"timeout_s":  t.cfg.Timeout.Seconds(),
		"interval_s": t.cfg.SweepInterval.Seconds(),
	})
}

// Stop halts the background sweep and waits for it to exit.
func (t *Tracker) Stop() {
	t.runMu.Lock()
	if !t.running {
		t.runMu.Unlock()
		return
	}
	t.running = false
	t.runMu.Unlock()

	close(t.stopCh)
	t.wg.Wait()
}

func (t *Tracker) sweepLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Sweep()
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		}
	}
}

// Sweep evicts every user whose last activity exceeds the timeout and
// reports evictions through the EvictFunc. Exported so tests and the
// registry can force a pass.
func (t *Tracker) Sweep() {
	type eviction struct {
		sessionID models.UUID
		userID    string
	}
	cutoff := t.now().Add(-t.cfg.Timeout).Unix()

	t.mu.Lock()
	var evicted []eviction
	for sessionID, users := range t.sessions {
		for userID, u := range users {
			if u.LastActivity < cutoff {
				delete(users, userID)
				evicted = append(evicted, eviction{sessionID, userID})
			}
		}
		if len(users) == 0 {
			delete(t.sessions, sessionID)
		}
	}
	t.mu.Unlock()

	for _, e := range evicted {
		logging.Info("presence timed out", logging.Fields{
			"session_id": e.sessionID,
			"user_id":    e.userID,
		})
		if t.onEvict != nil {
			t.onEvict(e.sessionID, e.userID)
		}
	}
}
