package collab

import (
	"github.com/planforge/collabd/internal/apperr"
	"github.com/planforge/collabd/internal/logging"
	"github.com/planforge/collabd/internal/models"
)

// Restore rebuilds one session from persisted state: the change history is
// replayed against an empty document, which by the idempotent-replay
// property reproduces the last known-good snapshot exactly. A history that
// fails gapless validation is log corruption and the session is refused.
func (r *Registry) Restore(info *models.SessionInfo, changes []*models.Change, conflicts []*models.EditConflict) error {
	if err := validateIdentifier(info.ProjectID); err != nil {
		return err
	}
	if err := validateIdentifier(info.DocumentID); err != nil {
		return err
	}

	key := models.SessionKey{ProjectID: info.ProjectID, DocumentID: info.DocumentID}
	s := newSession(info.ID, key, r.now())
	s.info = *info
	// Restored sessions come back without members.
	if s.info.State == models.SessionActive {
		s.info.State = models.SessionIdle
	}

	for _, c := range changes {
		if err := s.log.Append(c); err != nil {
			return apperr.Wrap(apperr.ErrLogCorrupted, "restore refused", err)
		}
	}
	s.doc = s.log.Replay()
	s.info.Sequence = s.log.Latest()

	for _, c := range conflicts {
		s.conflicts[c.ID] = c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[key]; exists {
		return apperr.Newf(apperr.ErrValidation, "session for %s/%s already registered", key.ProjectID, key.DocumentID)
	}
	r.byKey[key] = s
	r.byID[s.info.ID] = s

	logging.Info("session restored", logging.Fields{
		"session_id": s.info.ID,
		"sequence":   s.info.Sequence,
		"conflicts":  len(conflicts),
	})
	return nil
}
