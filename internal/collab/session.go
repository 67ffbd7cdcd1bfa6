package collab

import (
	"sort"
	"sync"
	"time"

	"github.com/planforge/collabd/internal/collab/changelog"
	"github.com/planforge/collabd/internal/models"
)

// session is the registry-owned state for one collaboratively edited
// document. All access is serialized through mu: one serialization domain
// per session, so sequence assignment and conflict detection cannot race.
type session struct {
	// mu guards every field below. The registry's maps are guarded
	// separately, so independent sessions proceed concurrently.
	mu sync.Mutex

	key  models.SessionKey
	info models.SessionInfo

	doc       models.Document
	log       *changelog.Log
	conflicts map[models.UUID]*models.EditConflict

	// emptySince is set when the last user leaves; after the idle grace
	// period the reaper marks the session idle. Zero while occupied.
	emptySince time.Time
}

func newSession(id models.UUID, key models.SessionKey, now time.Time) *session {
	return &session{
		key: key,
		info: models.SessionInfo{
			ID:           id,
			ProjectID:    key.ProjectID,
			DocumentID:   key.DocumentID,
			State:        models.SessionCreated,
			CreatedAt:    now.Unix(),
			LastActivity: now.Unix(),
		},
		doc:       make(models.Document),
		log:       changelog.New(),
		conflicts: make(map[models.UUID]*models.EditConflict),
	}
}

// openConflicts returns the session's pending conflicts in detection order.
func (s *session) openConflicts() []*models.EditConflict {
	out := make([]*models.EditConflict, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		if c.Open() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt == out[j].DetectedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].DetectedAt < out[j].DetectedAt
	})
	return out
}

// openConflictOnTarget returns the pending conflict for a target path, if
// one exists. Simultaneous divergences on a shared target group into it.
func (s *session) openConflictOnTarget(path string) *models.EditConflict {
	for _, c := range s.conflicts {
		if c.Open() && c.TargetPath == path {
			return c
		}
	}
	return nil
}

// applyToDocument folds one applied change into the snapshot.
func (s *session) applyToDocument(c *models.Change) {
	switch c.Operation {
	case models.OpDelete:
		delete(s.doc, c.TargetPath)
	default:
		s.doc[c.TargetPath] = c.NewValue
	}
}

func (s *session) touch(now time.Time) {
	s.info.LastActivity = now.Unix()
}
