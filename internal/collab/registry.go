// Package collab provides the session registry: the single owner of all
// collaborative editing session state. Every mutation of a session's
// document, history, membership, or conflicts goes through the registry.
package collab

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/planforge/collabd/internal/apperr"
	"github.com/planforge/collabd/internal/collab/conflict"
	"github.com/planforge/collabd/internal/collab/presence"
	"github.com/planforge/collabd/internal/logging"
	"github.com/planforge/collabd/internal/models"
	"github.com/planforge/collabd/internal/uuid"
)

// Config holds registry tuning.
type Config struct {
	// IdleGrace is how long an empty session keeps its active state before
	// the reaper marks it idle, so briefly-disconnected users resume
	// without losing context.
	IdleGrace time.Duration
	// ReapInterval is how often the idle reaper runs.
	ReapInterval time.Duration
	// Presence tunes the inactivity sweep.
	Presence presence.Config
}

// DefaultConfig returns the default registry tuning.
func DefaultConfig() Config {
	return Config{
		IdleGrace:    2 * time.Minute,
		ReapInterval: 30 * time.Second,
		Presence:     presence.DefaultConfig(),
	}
}

// Registry owns session lifecycle, document snapshots, and membership, and
// mediates the change log, conflict detector/resolver, and presence
// tracker. Sessions are fully independent serialization domains.
type Registry struct {
	mu    sync.RWMutex
	byKey map[models.SessionKey]*session
	byID  map[models.UUID]*session

	presence *presence.Tracker
	detector *conflict.Detector
	resolver *conflict.Resolver

	cfg     Config
	publish Publisher
	store   Store // optional

	stopCh  chan struct{}
	wg      sync.WaitGroup
	runMu   sync.Mutex
	running bool

	now func() time.Time
}

// NewRegistry creates a Registry. publish must not be nil; store may be.
func NewRegistry(cfg Config, publish Publisher, store Store) *Registry {
	if cfg.IdleGrace <= 0 {
		cfg.IdleGrace = DefaultConfig().IdleGrace
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultConfig().ReapInterval
	}
	r := &Registry{
		byKey:    make(map[models.SessionKey]*session),
		byID:     make(map[models.UUID]*session),
		detector: conflict.NewDetector(),
		resolver: conflict.NewResolver(),
		cfg:      cfg,
		publish:  publish,
		store:    store,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
	r.presence = presence.NewTracker(cfg.Presence, r.onPresenceEvict)
	return r
}

// Start launches the presence sweep and the idle reaper.
func (r *Registry) Start(ctx context.Context) {
	r.runMu.Lock()
	if r.running {
		r.runMu.Unlock()
		return
	}
	r.running = true
	r.runMu.Unlock()

	r.presence.Start(ctx)
	r.wg.Add(1)
	go r.reapLoop(ctx)
}

// Stop halts background work and waits for it to exit.
func (r *Registry) Stop() {
	r.runMu.Lock()
	if !r.running {
		r.runMu.Unlock()
		return
	}
	r.running = false
	r.runMu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
	r.presence.Stop()
}

// Join adds a user to the session for (projectID, documentID), creating it
// on first join with an empty document at sequence 0. It returns the full
// snapshot the client needs to render: document, members, open conflicts.
func (r *Registry) Join(projectID, documentID, userID, displayName string) (*models.SessionSnapshot, error) {
	for _, id := range []string{projectID, documentID, userID} {
		if err := validateIdentifier(id); err != nil {
			return nil, err
		}
	}

	key := models.SessionKey{ProjectID: projectID, DocumentID: documentID}

	r.mu.Lock()
	s, ok := r.byKey[key]
	if !ok {
		s = newSession(models.UUID(uuid.New()), key, r.now())
		r.byKey[key] = s
		r.byID[s.info.ID] = s
		logging.Info("session created", logging.Fields{
			"session_id":  s.info.ID,
			"project_id":  projectID,
			"document_id": documentID,
		})
	}
	r.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info.State == models.SessionClosed {
		return nil, apperr.Newf(apperr.ErrSessionClosed, "session %s is closed", s.info.ID)
	}

	rejoin := r.presence.Known(s.info.ID, userID)
	user := r.presence.Join(s.info.ID, userID, displayName)
	s.emptySince = time.Time{}
	s.info.State = models.SessionActive
	s.touch(r.now())
	r.persistSession(s)

	if !rejoin {
		r.publish(Event{
			Type:          EventUserJoined,
			SessionID:     s.info.ID,
			ExcludeUserID: userID,
			Data:          map[string]interface{}{"user": user},
		})
	}

	return r.snapshotLocked(s, 0), nil
}

// Leave removes a user's presence. Idempotent. Session state and history
// are retained; the reaper marks the session idle after the grace period.
func (r *Registry) Leave(sessionID models.UUID, userID string) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !r.presence.Remove(s.info.ID, userID) {
		return nil
	}
	s.touch(r.now())
	if r.presence.Count(s.info.ID) == 0 {
		s.emptySince = r.now()
	}

	r.publish(Event{
		Type:          EventUserLeft,
		SessionID:     s.info.ID,
		ExcludeUserID: userID,
		Data:          map[string]interface{}{"user_id": userID},
	})
	return nil
}

// SubmitChange runs the commit algorithm: validate the target, assign the
// next sequence number, detect divergence, then either apply the change to
// the document or hold it behind a new conflict. Either way the change
// enters the log and is broadcast to every member.
func (r *Registry) SubmitChange(sessionID models.UUID, proposed *models.ProposedChange) (*models.Change, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.State == models.SessionClosed {
		return nil, apperr.Newf(apperr.ErrSessionClosed, "session %s is closed", s.info.ID)
	}
	if err := validateTargetPath(proposed.TargetPath); err != nil {
		return nil, err
	}
	latest := s.log.Latest()
	if proposed.BaseSequence > latest {
		return nil, apperr.Newf(apperr.ErrStaleDependency,
			"base sequence %d is beyond the log (latest %d): re-sync and retry", proposed.BaseSequence, latest)
	}
	for _, dep := range proposed.DependsOn {
		if dep < 1 || dep > latest {
			return nil, apperr.Newf(apperr.ErrStaleDependency,
				"dependency %d is beyond the log (latest %d): re-sync and retry", dep, latest)
		}
	}

	change := &models.Change{
		ID:           models.UUID(uuid.New()),
		SessionID:    s.info.ID,
		AuthorID:     proposed.AuthorID,
		ClientID:     proposed.ClientID,
		Operation:    proposed.Operation,
		TargetPath:   proposed.TargetPath,
		OldValue:     proposed.OldValue,
		NewValue:     proposed.NewValue,
		SubmittedAt:  proposed.SubmittedAt,
		Sequence:     latest + 1,
		BaseSequence: proposed.BaseSequence,
		DependsOn:    proposed.DependsOn,
	}

	hits := r.detector.Detect(change, s.log)
	if len(hits) == 0 {
		change.Resolution = models.ResolutionAuto
		change.Applied = true
		if err := s.log.Append(change); err != nil {
			return nil, err
		}
		s.applyToDocument(change)
	} else {
		change.Resolution = models.ResolutionPending
		if err := s.log.Append(change); err != nil {
			return nil, err
		}
		r.openConflictLocked(s, change, hits)
	}

	s.info.Sequence = s.log.Latest()
	s.touch(r.now())
	r.presence.Touch(s.info.ID, change.AuthorID, "")
	r.persistChange(s, change)

	r.publish(Event{
		Type:      EventDocumentChange,
		SessionID: s.info.ID,
		Data:      map[string]interface{}{"change": change},
	})
	return change, nil
}

// openConflictLocked flips the counterparties to pending and either grows
// the existing open conflict on the target or opens a new one. Conflicts
// are reported to every member, not just the two authors.
func (r *Registry) openConflictLocked(s *session, change *models.Change, hits []*models.Change) {
	for _, h := range hits {
		h.Resolution = models.ResolutionPending
	}

	ec := s.openConflictOnTarget(change.TargetPath)
	if ec != nil {
		if !ec.References(change.ID) {
			ec.ChangeIDs = append(ec.ChangeIDs, change.ID)
		}
		for _, h := range hits {
			if !ec.References(h.ID) {
				ec.ChangeIDs = append(ec.ChangeIDs, h.ID)
			}
		}
	} else {
		ec = conflict.NewEditConflict(change, hits)
		s.conflicts[ec.ID] = ec
	}
	change.ConflictsWith = nil
	for _, h := range hits {
		change.ConflictsWith = append(change.ConflictsWith, h.ID)
	}
	r.persistConflict(s, ec)

	r.publish(Event{
		Type:      EventConflictDetected,
		SessionID: s.info.ID,
		Data:      map[string]interface{}{"conflict": ec},
	})
}

// Resolve closes an open conflict with a participant-chosen strategy and
// converges the document. The outcome is broadcast to every member.
func (r *Registry) Resolve(sessionID models.UUID, conflictID models.UUID, req *conflict.Request) (*models.EditConflict, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ec, ok := s.conflicts[conflictID]
	if !ok {
		return nil, apperr.Newf(apperr.ErrConflictNotFound, "conflict %s not found", conflictID)
	}

	res, err := r.resolver.Resolve(ec, req, s.log)
	if err != nil {
		return nil, err
	}

	var applied *models.Change
	if res.Winner != nil {
		applied = res.Winner
	}
	if res.Merged != nil {
		merged := &models.Change{
			ID:           conflict.NewChangeID(),
			SessionID:    s.info.ID,
			AuthorID:     res.Merged.AuthorID,
			ClientID:     res.Merged.ClientID,
			Operation:    res.Merged.Operation,
			TargetPath:   res.Merged.TargetPath,
			OldValue:     res.Merged.OldValue,
			NewValue:     res.Merged.NewValue,
			SubmittedAt:  res.Merged.SubmittedAt,
			Sequence:     s.log.Latest() + 1,
			BaseSequence: s.log.Latest(),
			DependsOn:    res.Merged.DependsOn,
			Resolution:   models.ResolutionAuto,
			Applied:      true,
		}
		if err := s.log.Append(merged); err != nil {
			return nil, err
		}
		s.info.Sequence = s.log.Latest()
		r.persistChange(s, merged)
		applied = merged
	}

	// Replay is the arbiter of document state: a winner may have been
	// superseded by a later applied change on its target, so the document
	// is rebuilt from the log rather than patched in place.
	s.doc = s.log.Replay()

	// Resolution mutates the applied/resolution flags of every member;
	// all of them must reach the store or a restart rebuilds the
	// pre-resolution document.
	for _, id := range ec.ChangeIDs {
		if ch := s.log.GetByID(id); ch != nil {
			r.persistChange(s, ch)
		}
	}

	s.touch(r.now())
	r.presence.Touch(s.info.ID, req.ResolverID, "")
	r.persistConflict(s, ec)

	r.publish(Event{
		Type:      EventConflictResolved,
		SessionID: s.info.ID,
		Data:      map[string]interface{}{"conflict": ec},
	})
	if applied != nil {
		r.publish(Event{
			Type:      EventDocumentChange,
			SessionID: s.info.ID,
			Data:      map[string]interface{}{"change": applied},
		})
	}
	return ec, nil
}

// GetSnapshot returns read-only session state for reconnect catch-up.
// sinceSequence > 0 limits the change list to the delta the client missed.
func (r *Registry) GetSnapshot(sessionID models.UUID, sinceSequence int64) (*models.SessionSnapshot, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return r.snapshotLocked(s, sinceSequence), nil
}

// Close archives a session on behalf of an external collaborator, e.g.
// when the owning document is deleted. Members are evicted.
func (r *Registry) Close(sessionID models.UUID) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.State == models.SessionClosed {
		return nil
	}
	for _, u := range r.presence.List(s.info.ID) {
		r.presence.Remove(s.info.ID, u.UserID)
		r.publish(Event{
			Type:      EventUserLeft,
			SessionID: s.info.ID,
			Data:      map[string]interface{}{"user_id": u.UserID},
		})
	}
	s.info.State = models.SessionClosed
	s.touch(r.now())
	r.persistSession(s)

	logging.Info("session closed", logging.Fields{"session_id": s.info.ID})
	return nil
}

// UpdateCursor records a member's caret position and fans it out.
func (r *Registry) UpdateCursor(sessionID models.UUID, userID string, cursor models.Cursor) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	if !r.presence.UpdateCursor(s.info.ID, userID, cursor) {
		return apperr.Newf(apperr.ErrNotJoined, "user %s is not in session %s", userID, sessionID)
	}
	r.publish(Event{
		Type:          EventCursorUpdate,
		SessionID:     s.info.ID,
		ExcludeUserID: userID,
		Data:          map[string]interface{}{"user_id": userID, "cursor": cursor},
	})
	return nil
}

// UpdateSelection records a member's selected range and fans it out.
func (r *Registry) UpdateSelection(sessionID models.UUID, userID string, sel models.Selection) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	if !r.presence.UpdateSelection(s.info.ID, userID, sel) {
		return apperr.Newf(apperr.ErrNotJoined, "user %s is not in session %s", userID, sessionID)
	}
	r.publish(Event{
		Type:          EventSelectionUpdate,
		SessionID:     s.info.ID,
		ExcludeUserID: userID,
		Data:          map[string]interface{}{"user_id": userID, "selection": sel},
	})
	return nil
}

// TouchActivity refreshes a member's liveness clock and fans it out.
func (r *Registry) TouchActivity(sessionID models.UUID, userID, location string) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	if !r.presence.Touch(s.info.ID, userID, location) {
		return apperr.Newf(apperr.ErrNotJoined, "user %s is not in session %s", userID, sessionID)
	}
	r.publish(Event{
		Type:          EventUserActivity,
		SessionID:     s.info.ID,
		ExcludeUserID: userID,
		Data: map[string]interface{}{
			"user_id":       userID,
			"last_activity": r.now().Unix(),
			"location":      location,
		},
	})
	return nil
}

// MarkDisconnected flags a member as transport-disconnected without
// evicting them: the inactivity sweep decides whether they left for good,
// so brief network blips cause no presence churn or spurious conflicts.
func (r *Registry) MarkDisconnected(sessionID models.UUID, userID string) {
	if _, err := r.lookup(sessionID); err != nil {
		return
	}
	r.presence.MarkOffline(sessionID, userID)
}

// Users returns the current presence list for a session.
func (r *Registry) Users(sessionID models.UUID) []*models.ActiveUser {
	return r.presence.List(sessionID)
}

// onPresenceEvict handles inactivity timeouts: the user leaves exactly as
// if they had disconnected explicitly.
func (r *Registry) onPresenceEvict(sessionID models.UUID, userID string) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return
	}

	s.mu.Lock()
	if r.presence.Count(s.info.ID) == 0 && s.emptySince.IsZero() {
		s.emptySince = r.now()
	}
	s.mu.Unlock()

	r.publish(Event{
		Type:      EventUserLeft,
		SessionID: sessionID,
		Data:      map[string]interface{}{"user_id": userID},
	})
}

func (r *Registry) reapLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.ReapIdle()
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		}
	}
}

// ReapIdle marks sessions idle once they have been empty past the grace
// period. History is retained; a later join reactivates the session.
func (r *Registry) ReapIdle() {
	r.mu.RLock()
	sessions := make([]*session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	cutoff := r.now().Add(-r.cfg.IdleGrace)
	for _, s := range sessions {
		s.mu.Lock()
		if s.info.State == models.SessionActive &&
			!s.emptySince.IsZero() && s.emptySince.Before(cutoff) &&
			r.presence.Count(s.info.ID) == 0 {
			s.info.State = models.SessionIdle
			r.persistSession(s)
			logging.Info("session idle", logging.Fields{"session_id": s.info.ID})
		}
		s.mu.Unlock()
	}
}

func (r *Registry) lookup(sessionID models.UUID) (*session, error) {
	r.mu.RLock()
	s, ok := r.byID[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.Newf(apperr.ErrSessionNotFound, "session %s not found", sessionID)
	}
	return s, nil
}

func (r *Registry) snapshotLocked(s *session, since int64) *models.SessionSnapshot {
	return &models.SessionSnapshot{
		SessionID:  s.info.ID,
		ProjectID:  s.info.ProjectID,
		DocumentID: s.info.DocumentID,
		State:      s.info.State,
		Sequence:   s.log.Latest(),
		Document:   s.doc.Clone(),
		Users:      r.presence.List(s.info.ID),
		Conflicts:  s.openConflicts(),
		Changes:    s.log.Since(since),
	}
}

func (r *Registry) persistSession(s *session) {
	if r.store == nil {
		return
	}
	info := s.info
	if err := r.store.SaveSession(&info); err != nil {
		logging.Error("session persistence failed", err, logging.Fields{"session_id": s.info.ID})
	}
}

func (r *Registry) persistChange(s *session, c *models.Change) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveChange(c); err != nil {
		logging.Error("change persistence failed", err, logging.Fields{
			"session_id": s.info.ID,
			"change_id":  c.ID,
		})
	}
}

func (r *Registry) persistConflict(s *session, c *models.EditConflict) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveConflict(c); err != nil {
		logging.Error("conflict persistence failed", err, logging.Fields{
			"session_id":  s.info.ID,
			"conflict_id": c.ID,
		})
	}
}

// validateIdentifier rejects empty, oversized, or non-printable ids.
func validateIdentifier(id string) error {
	if id == "" || len(id) > 128 {
		return apperr.Newf(apperr.ErrInvalidIdentifier, "identifier must be 1-128 characters")
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return apperr.Newf(apperr.ErrInvalidIdentifier, "identifier %q contains whitespace or control characters", id)
		}
	}
	return nil
}

// validateTargetPath checks that a change addresses a well-formed logical
// location: dot-separated segments of word characters, e.g. "content" or
// "metadata.tags".
func validateTargetPath(path string) error {
	if path == "" || len(path) > 256 {
		return apperr.Newf(apperr.ErrInvalidTarget, "target path must be 1-256 characters")
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return apperr.Newf(apperr.ErrInvalidTarget, "target path %q has an empty segment", path)
		}
		for _, r := range seg {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
				return apperr.Newf(apperr.ErrInvalidTarget, "target path %q contains invalid character %q", path, r)
			}
		}
	}
	return nil
}
