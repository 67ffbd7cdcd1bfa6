// Package conflict provides divergence detection and participant-driven
// resolution for concurrent edits to a session document.
package conflict

import (
	"time"

	"github.com/planforge/collabd/internal/collab/changelog"
	"github.com/planforge/collabd/internal/logging"
	"github.com/planforge/collabd/internal/models"
	"github.com/planforge/collabd/internal/uuid"
)

// Detector inspects incoming changes against the session log and raises
// conflicts when dependency chains diverge on the same target.
type Detector struct{}

// NewDetector creates a Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns the committed changes the incoming change conflicts with.
// A committed change C' conflicts with incoming C when both target the same
// path, C' is newer than the highest sequence the submitting client had
// observed, and C does not declare C' as a satisfied dependency. Discarded
// changes never conflict; they are no longer part of the live document.
func (d *Detector) Detect(incoming *models.Change, log *changelog.Log) []*models.Change {
	var hits []*models.Change
	for seq := incoming.BaseSequence + 1; seq <= log.Latest(); seq++ {
		prior := log.Get(seq)
		if prior == nil || prior.TargetPath != incoming.TargetPath {
			continue
		}
		if !prior.Applied && prior.Resolution != models.ResolutionPending {
			continue
		}
		if incoming.DependsOnSeq(prior.Sequence) {
			continue
		}
		hits = append(hits, prior)
	}

	if len(hits) > 0 {
		logging.Warn("concurrent edit conflict detected", logging.Fields{
			"session_id":  incoming.SessionID,
			"target_path": incoming.TargetPath,
			"change_id":   incoming.ID,
			"against":     len(hits),
		})
	}
	return hits
}

// NewEditConflict groups an incoming change and the committed changes it
// diverged from into a single conflict record on their shared target.
func NewEditConflict(incoming *models.Change, against []*models.Change) *models.EditConflict {
	ids := make([]models.UUID, 0, len(against)+1)
	for _, c := range against {
		ids = append(ids, c.ID)
	}
	ids = append(ids, incoming.ID)

	return &models.EditConflict{
		ID:         models.UUID(uuid.New()),
		SessionID:  incoming.SessionID,
		TargetPath: incoming.TargetPath,
		ChangeIDs:  ids,
		DetectedAt: time.Now().Unix(),
		Status:     models.ConflictPending,
	}
}
