package conflict

import (
	"time"

	"github.com/planforge/collabd/internal/apperr"
	"github.com/planforge/collabd/internal/collab/changelog"
	"github.com/planforge/collabd/internal/logging"
	"github.com/planforge/collabd/internal/models"
	"github.com/planforge/collabd/internal/uuid"
)

// Request is a participant's resolution choice for one open conflict.
type Request struct {
	Strategy    models.Strategy
	ResolverID  string
	ClientID    string
	MergedValue *string // required for merge
}

// Result is the outcome of resolving a conflict. The registry applies it
// under the session lock: Winner (if any) is written to the document,
// Discarded changes leave the live document but stay in history, and
// Merged (merge strategy only) is committed as a fresh change.
type Result struct {
	Conflict  *models.EditConflict
	Winner    *models.Change
	Discarded []*models.Change
	Merged    *models.ProposedChange
}

// Resolver applies participant-chosen strategies to open conflicts.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve closes the conflict with the requested strategy. It mutates the
// conflict record and the resolution state of the referenced changes; the
// caller converges the document from the returned Result.
func (r *Resolver) Resolve(c *models.EditConflict, req *Request, log *changelog.Log) (*Result, error) {
	if !c.Open() {
		return nil, apperr.Newf(apperr.ErrConflictClosed, "conflict %s is %s", c.ID, c.Status)
	}

	members := make([]*models.Change, 0, len(c.ChangeIDs))
	for _, id := range c.ChangeIDs {
		ch := log.GetByID(id)
		if ch == nil {
			return nil, apperr.Newf(apperr.ErrLogCorrupted, "conflict %s references unknown change %s", c.ID, id)
		}
		members = append(members, ch)
	}

	var res *Result
	var err error
	switch req.Strategy {
	case models.StrategyAcceptMine:
		res, err = r.accept(c, members, req, true)
	case models.StrategyAcceptTheirs:
		res, err = r.accept(c, members, req, false)
	case models.StrategyMerge:
		res, err = r.merge(c, members, req)
	case models.StrategyIgnore:
		res, err = r.ignore(c, members, req)
	default:
		return nil, apperr.Newf(apperr.ErrUnknownStrategy, "unknown resolution strategy %q", req.Strategy)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	c.Resolution = req.Strategy
	c.ResolvedBy = req.ResolverID
	c.ResolvedAt = now
	if req.Strategy == models.StrategyIgnore {
		c.Status = models.ConflictIgnored
	} else {
		c.Status = models.ConflictResolved
	}

	logging.Info("conflict resolved", logging.Fields{
		"conflict_id": c.ID,
		"session_id":  c.SessionID,
		"target_path": c.TargetPath,
		"strategy":    req.Strategy,
		"resolved_by": req.ResolverID,
	})
	return res, nil
}

// accept applies either the resolver's own change (mine=true) or the
// newest counterparty change (mine=false); every other member is marked
// manual and discarded from the live document.
func (r *Resolver) accept(c *models.EditConflict, members []*models.Change, req *Request, mine bool) (*Result, error) {
	var winner *models.Change
	for _, ch := range members {
		owned := ch.AuthorID == req.ResolverID
		if owned != mine {
			continue
		}
		if winner == nil || ch.Sequence > winner.Sequence {
			winner = ch
		}
	}
	if winner == nil {
		side := "own"
		if !mine {
			side = "counterparty"
		}
		return nil, apperr.Newf(apperr.ErrValidation,
			"conflict %s has no %s change for resolver %s", c.ID, side, req.ResolverID)
	}

	res := &Result{Conflict: c, Winner: winner}
	winner.Resolution = models.ResolutionManual
	winner.Applied = true
	for _, ch := range members {
		if ch == winner {
			continue
		}
		ch.Resolution = models.ResolutionManual
		ch.Applied = false
		res.Discarded = append(res.Discarded, ch)
	}
	return res, nil
}

// merge commits a synthetic change carrying the participant-supplied value,
// depending on every conflicting sequence; the originals are resolved
// without being independently applied.
func (r *Resolver) merge(c *models.EditConflict, members []*models.Change, req *Request) (*Result, error) {
	if req.MergedValue == nil {
		return nil, apperr.New(apperr.ErrMergeValueRequired, "merge strategy requires a merged value")
	}

	deps := make([]int64, 0, len(members))
	var oldValue string
	for _, ch := range members {
		deps = append(deps, ch.Sequence)
		if ch.Applied {
			oldValue = ch.NewValue
		}
	}

	res := &Result{
		Conflict: c,
		Merged: &models.ProposedChange{
			AuthorID:    req.ResolverID,
			ClientID:    req.ClientID,
			Operation:   models.OpUpdate,
			TargetPath:  c.TargetPath,
			OldValue:    oldValue,
			NewValue:    *req.MergedValue,
			SubmittedAt: time.Now().Unix(),
			DependsOn:   deps,
		},
	}
	for _, ch := range members {
		ch.Resolution = models.ResolutionManual
		ch.Applied = false
		res.Discarded = append(res.Discarded, ch)
	}
	return res, nil
}

// ignore defers convergence: the document keeps whichever state was last
// applied opportunistically. An escape hatch, not a guarantee.
func (r *Resolver) ignore(c *models.EditConflict, members []*models.Change, req *Request) (*Result, error) {
	res := &Result{Conflict: c}
	for _, ch := range members {
		if ch.Resolution == models.ResolutionPending {
			ch.Resolution = models.ResolutionManual
		}
	}
	return res, nil
}

// NewChangeID mints an id for a synthetic merge commit.
func NewChangeID() models.UUID {
	return models.UUID(uuid.New())
}
