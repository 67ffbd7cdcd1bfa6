// Package collab provides unit tests for the session registry.
package collab

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/planforge/collabd/internal/apperr"
	"github.com/planforge/collabd/internal/collab/conflict"
	"github.com/planforge/collabd/internal/models"
)

// recorder captures published events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestRegistry() (*Registry, *recorder) {
	rec := &recorder{}
	r := NewRegistry(DefaultConfig(), rec.publish, nil)
	return r, rec
}

func join(t *testing.T, r *Registry, user string) *models.SessionSnapshot {
	t.Helper()
	snap, err := r.Join("proj-1", "doc-1", user, user)
	if err != nil {
		t.Fatalf("Join(%s) failed: %v", user, err)
	}
	return snap
}

func propose(author, path, value string, base int64, deps []int64) *models.ProposedChange {
	return &models.ProposedChange{
		AuthorID:     author,
		ClientID:     author + "-client",
		Operation:    models.OpUpdate,
		TargetPath:   path,
		NewValue:     value,
		SubmittedAt:  time.Now().Unix(),
		BaseSequence: base,
		DependsOn:    deps,
	}
}

// TestJoinCreatesSession tests first-join creation with an empty document
// at sequence 0, and that a second join returns the existing state.
func TestJoinCreatesSession(t *testing.T) {
	r, rec := newTestRegistry()

	snap := join(t, r, "alice")
	if snap.Sequence != 0 || len(snap.Document) != 0 {
		t.Errorf("new session: sequence=%d document=%v, want empty at 0", snap.Sequence, snap.Document)
	}
	if snap.State != models.SessionActive {
		t.Errorf("state = %s, want active", snap.State)
	}

	snap2 := join(t, r, "bob")
	if snap2.SessionID != snap.SessionID {
		t.Error("second join must return the same session")
	}
	if len(snap2.Users) != 2 {
		t.Errorf("snapshot lists %d users, want 2", len(snap2.Users))
	}

	joined := rec.ofType(EventUserJoined)
	if len(joined) != 2 {
		t.Errorf("user-joined events = %d, want 2", len(joined))
	}
	if joined[1].ExcludeUserID != "bob" {
		t.Error("user-joined must exclude the joiner")
	}
}

// TestJoinRejectsMalformedIdentifiers tests the only failure mode of join.
func TestJoinRejectsMalformedIdentifiers(t *testing.T) {
	r, _ := newTestRegistry()

	cases := []struct{ project, doc, user string }{
		{"", "doc-1", "alice"},
		{"proj 1", "doc-1", "alice"},
		{"proj-1", "doc\x00", "alice"},
		{"proj-1", "doc-1", ""},
	}
	for _, c := range cases {
		if _, err := r.Join(c.project, c.doc, c.user, "name"); !apperr.Is(err, apperr.ErrInvalidIdentifier) {
			t.Errorf("Join(%q,%q,%q): got %v, want INVALID_IDENTIFIER", c.project, c.doc, c.user, err)
		}
	}
}

// TestSubmitChangeCommitPath tests the no-conflict commit: applied, auto,
// sequenced, and broadcast.
func TestSubmitChangeCommitPath(t *testing.T) {
	r, rec := newTestRegistry()
	snap := join(t, r, "alice")

	c, err := r.SubmitChange(snap.SessionID, propose("alice", "content", "hello", 0, nil))
	if err != nil {
		t.Fatalf("SubmitChange failed: %v", err)
	}
	if c.Sequence != 1 || c.Resolution != models.ResolutionAuto || !c.Applied {
		t.Errorf("committed change = seq:%d res:%s applied:%v", c.Sequence, c.Resolution, c.Applied)
	}

	got, err := r.GetSnapshot(snap.SessionID, 0)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if got.Document["content"] != "hello" {
		t.Errorf("document = %v, want content=hello", got.Document)
	}
	if len(rec.ofType(EventDocumentChange)) != 1 {
		t.Error("expected one document-change broadcast")
	}
}

// TestSubmitChangeInvalidTarget tests target path validation.
func TestSubmitChangeInvalidTarget(t *testing.T) {
	r, _ := newTestRegistry()
	snap := join(t, r, "alice")

	for _, path := range []string{"", "a b", "content..x", ".content", "con/tent"} {
		_, err := r.SubmitChange(snap.SessionID, propose("alice", path, "v", 0, nil))
		if !apperr.Is(err, apperr.ErrInvalidTarget) {
			t.Errorf("path %q: got %v, want INVALID_TARGET", path, err)
		}
	}
}

// TestSubmitChangeStaleDependency tests rejection when declared
// dependencies or the base sequence run past the log.
func TestSubmitChangeStaleDependency(t *testing.T) {
	r, _ := newTestRegistry()
	snap := join(t, r, "alice")

	_, err := r.SubmitChange(snap.SessionID, propose("alice", "content", "v", 0, []int64{5}))
	if !apperr.Is(err, apperr.ErrStaleDependency) {
		t.Errorf("deps past log: got %v, want STALE_DEPENDENCY", err)
	}
	_, err = r.SubmitChange(snap.SessionID, propose("alice", "content", "v", 9, nil))
	if !apperr.Is(err, apperr.ErrStaleDependency) {
		t.Errorf("base past log: got %v, want STALE_DEPENDENCY", err)
	}
}

// TestDisjointTargetsNeverConflict tests the commutativity property: three
// users editing disjoint paths commit with consecutive sequence numbers in
// arrival order and raise no conflicts.
func TestDisjointTargetsNeverConflict(t *testing.T) {
	r, rec := newTestRegistry()
	snap := join(t, r, "alice")
	join(t, r, "bob")
	join(t, r, "carol")

	edits := []struct{ author, path, value string }{
		{"alice", "title", "Q3 Roadmap"},
		{"bob", "body", "We will ship."},
		{"carol", "tags", "roadmap,q3"},
	}
	for i, e := range edits {
		c, err := r.SubmitChange(snap.SessionID, propose(e.author, e.path, e.value, 0, nil))
		if err != nil {
			t.Fatalf("SubmitChange(%s) failed: %v", e.author, err)
		}
		if c.Sequence != int64(i+1) {
			t.Errorf("%s committed at sequence %d, want %d", e.author, c.Sequence, i+1)
		}
	}

	if got := rec.ofType(EventConflictDetected); len(got) != 0 {
		t.Fatalf("conflicts raised for disjoint targets: %d", len(got))
	}

	final, _ := r.GetSnapshot(snap.SessionID, 0)
	want := models.Document{"title": "Q3 Roadmap", "body": "We will ship.", "tags": "roadmap,q3"}
	if !reflect.DeepEqual(final.Document, want) {
		t.Errorf("document = %v, want %v", final.Document, want)
	}
}

// TestArrivalOrderIndependenceForDisjointTargets tests that the final
// document for non-overlapping changes does not depend on arrival order.
func TestArrivalOrderIndependenceForDisjointTargets(t *testing.T) {
	run := func(order []int) models.Document {
		r, _ := newTestRegistry()
		snap := join(t, r, "alice")
		edits := []*models.ProposedChange{
			propose("alice", "title", "T", 0, nil),
			propose("alice", "body", "B", 0, nil),
			propose("alice", "tags", "G", 0, nil),
		}
		for _, i := range order {
			if _, err := r.SubmitChange(snap.SessionID, edits[i]); err != nil {
				t.Fatalf("SubmitChange failed: %v", err)
			}
		}
		got, _ := r.GetSnapshot(snap.SessionID, 0)
		return got.Document
	}

	a := run([]int{0, 1, 2})
	b := run([]int{2, 0, 1})
	c := run([]int{1, 2, 0})
	if !reflect.DeepEqual(a, b) || !reflect.DeepEqual(b, c) {
		t.Errorf("final documents differ by arrival order: %v %v %v", a, b, c)
	}
}

// TestConflictDetectedOnSameTarget tests the iff property: same path, no
// declared dependency, not observed ⇒ exactly one conflict referencing
// both changes; the second change is held.
func TestConflictDetectedOnSameTarget(t *testing.T) {
	r, rec := newTestRegistry()
	snap := join(t, r, "alice")
	join(t, r, "bob")

	a, err := r.SubmitChange(snap.SessionID, propose("alice", "content", "alice version", 0, nil))
	if err != nil {
		t.Fatalf("SubmitChange(alice) failed: %v", err)
	}
	b, err := r.SubmitChange(snap.SessionID, propose("bob", "content", "bob version", 0, nil))
	if err != nil {
		t.Fatalf("SubmitChange(bob) failed: %v", err)
	}

	detected := rec.ofType(EventConflictDetected)
	if len(detected) != 1 {
		t.Fatalf("conflict-detected events = %d, want exactly 1", len(detected))
	}

	got, _ := r.GetSnapshot(snap.SessionID, 0)
	if len(got.Conflicts) != 1 {
		t.Fatalf("open conflicts = %d, want 1", len(got.Conflicts))
	}
	ec := got.Conflicts[0]
	if !ec.References(a.ID) || !ec.References(b.ID) {
		t.Error("conflict must reference both changes")
	}
	if a.Resolution != models.ResolutionPending || b.Resolution != models.ResolutionPending {
		t.Errorf("resolutions = %s,%s; want pending,pending", a.Resolution, b.Resolution)
	}
	if got.Document["content"] != "alice version" {
		t.Errorf("held change leaked into the document: %v", got.Document)
	}
	// Gapless even across the conflict.
	if a.Sequence != 1 || b.Sequence != 2 {
		t.Errorf("sequences = %d,%d; want 1,2", a.Sequence, b.Sequence)
	}
}

// TestNoConflictWithDeclaredDependency tests the other half of the iff:
// declaring the prior change as a dependency commits cleanly.
func TestNoConflictWithDeclaredDependency(t *testing.T) {
	r, rec := newTestRegistry()
	snap := join(t, r, "alice")
	join(t, r, "bob")

	a, err := r.SubmitChange(snap.SessionID, propose("alice", "content", "v1", 0, nil))
	if err != nil {
		t.Fatalf("SubmitChange failed: %v", err)
	}
	b, err := r.SubmitChange(snap.SessionID, propose("bob", "content", "v2", a.Sequence, []int64{a.Sequence}))
	if err != nil {
		t.Fatalf("SubmitChange failed: %v", err)
	}
	if !b.Applied || b.Resolution != models.ResolutionAuto {
		t.Errorf("dependent change = applied:%v res:%s, want applied auto", b.Applied, b.Resolution)
	}
	if len(rec.ofType(EventConflictDetected)) != 0 {
		t.Error("no conflict expected with a declared dependency")
	}

	got, _ := r.GetSnapshot(snap.SessionID, 0)
	if got.Document["content"] != "v2" {
		t.Errorf("document = %v, want content=v2", got.Document)
	}
}

// TestResolveAcceptMine tests that accept-mine leaves the document equal to
// the resolver's pending value and closes the conflict.
func TestResolveAcceptMine(t *testing.T) {
	r, rec := newTestRegistry()
	snap := join(t, r, "alice")
	join(t, r, "bob")

	r.SubmitChange(snap.SessionID, propose("alice", "content", "alice version", 0, nil))
	r.SubmitChange(snap.SessionID, propose("bob", "content", "bob version", 0, nil))

	got, _ := r.GetSnapshot(snap.SessionID, 0)
	ec := got.Conflicts[0]

	resolved, err := r.Resolve(snap.SessionID, ec.ID, &conflict.Request{
		Strategy:   models.StrategyAcceptMine,
		ResolverID: "bob",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != models.ConflictResolved {
		t.Errorf("status = %s, want resolved", resolved.Status)
	}

	after, _ := r.GetSnapshot(snap.SessionID, 0)
	if after.Document["content"] != "bob version" {
		t.Errorf("document = %v, want the resolver's value", after.Document)
	}
	if len(after.Conflicts) != 0 {
		t.Error("resolved conflict should leave the open set")
	}
	if len(rec.ofType(EventConflictResolved)) != 1 {
		t.Error("expected one conflict-resolved broadcast")
	}
}

// TestResolveMergeCommitsSyntheticChange tests that merge commits a new
// change depending on both original sequence numbers.
func TestResolveMergeCommitsSyntheticChange(t *testing.T) {
	r, _ := newTestRegistry()
	snap := join(t, r, "alice")
	join(t, r, "bob")

	a, _ := r.SubmitChange(snap.SessionID, propose("alice", "content", "alice version", 0, nil))
	b, _ := r.SubmitChange(snap.SessionID, propose("bob", "content", "bob version", 0, nil))

	got, _ := r.GetSnapshot(snap.SessionID, 0)
	merged := "both versions"
	if _, err := r.Resolve(snap.SessionID, got.Conflicts[0].ID, &conflict.Request{
		Strategy:    models.StrategyMerge,
		ResolverID:  "bob",
		MergedValue: &merged,
	}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	after, _ := r.GetSnapshot(snap.SessionID, 0)
	if after.Document["content"] != "both versions" {
		t.Errorf("document = %v, want the merged value", after.Document)
	}
	if after.Sequence != 3 {
		t.Fatalf("sequence = %d, want 3 after the synthetic commit", after.Sequence)
	}
	synthetic := after.Changes[2]
	if !synthetic.DependsOnSeq(a.Sequence) || !synthetic.DependsOnSeq(b.Sequence) {
		t.Errorf("synthetic deps = %v, want both %d and %d", synthetic.DependsOn, a.Sequence, b.Sequence)
	}
}

// TestSnapshotCatchUpDelta tests reconnect catch-up: sinceSequence bounds
// the returned change list.
func TestSnapshotCatchUpDelta(t *testing.T) {
	r, _ := newTestRegistry()
	snap := join(t, r, "alice")

	for i, path := range []string{"title", "body", "tags"} {
		if _, err := r.SubmitChange(snap.SessionID, propose("alice", path, "v", int64(i), nil)); err != nil {
			t.Fatalf("SubmitChange failed: %v", err)
		}
	}

	delta, err := r.GetSnapshot(snap.SessionID, 2)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if len(delta.Changes) != 1 || delta.Changes[0].Sequence != 3 {
		t.Errorf("delta = %v, want the single change at sequence 3", delta.Changes)
	}
	if delta.Sequence != 3 {
		t.Errorf("snapshot sequence = %d, want 3", delta.Sequence)
	}
}

// TestLeaveAndIdleTransition tests the lifecycle: active with users, empty
// past the grace period becomes idle, and a join reactivates.
func TestLeaveAndIdleTransition(t *testing.T) {
	r, rec := newTestRegistry()
	base := time.Unix(1_700_000_000, 0)
	now := base
	r.now = func() time.Time { return now }

	snap := join(t, r, "alice")
	if err := r.Leave(snap.SessionID, "alice"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if len(rec.ofType(EventUserLeft)) != 1 {
		t.Error("expected one user-left broadcast")
	}

	// Within the grace period the session stays active.
	now = base.Add(30 * time.Second)
	r.ReapIdle()
	got, _ := r.GetSnapshot(snap.SessionID, 0)
	if got.State != models.SessionActive {
		t.Errorf("state = %s inside grace period, want active", got.State)
	}

	now = base.Add(5 * time.Minute)
	r.ReapIdle()
	got, _ = r.GetSnapshot(snap.SessionID, 0)
	if got.State != models.SessionIdle {
		t.Errorf("state = %s after grace period, want idle", got.State)
	}

	// History survives idling and a rejoin reactivates.
	rejoin := join(t, r, "alice")
	if rejoin.State != models.SessionActive {
		t.Errorf("state after rejoin = %s, want active", rejoin.State)
	}
}

// TestLeaveIdempotent tests that repeated leaves do not emit extra events.
func TestLeaveIdempotent(t *testing.T) {
	r, rec := newTestRegistry()
	snap := join(t, r, "alice")

	r.Leave(snap.SessionID, "alice")
	r.Leave(snap.SessionID, "alice")

	if got := len(rec.ofType(EventUserLeft)); got != 1 {
		t.Errorf("user-left events = %d, want 1", got)
	}
}

// TestCloseArchivesSession tests external archival: members evicted,
// further writes rejected.
func TestCloseArchivesSession(t *testing.T) {
	r, _ := newTestRegistry()
	snap := join(t, r, "alice")

	if err := r.Close(snap.SessionID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_, err := r.SubmitChange(snap.SessionID, propose("alice", "content", "v", 0, nil))
	if !apperr.Is(err, apperr.ErrSessionClosed) {
		t.Errorf("write to closed session: got %v, want SESSION_CLOSED", err)
	}
	if _, err := r.Join("proj-1", "doc-1", "bob", "Bob"); !apperr.Is(err, apperr.ErrSessionClosed) {
		t.Errorf("join on closed session: got %v, want SESSION_CLOSED", err)
	}
}

// TestPresencePassthrough tests cursor/selection/activity fan-out with the
// origin excluded.
func TestPresencePassthrough(t *testing.T) {
	r, rec := newTestRegistry()
	snap := join(t, r, "alice")

	if err := r.UpdateCursor(snap.SessionID, "alice", models.Cursor{Line: 2, Column: 7}); err != nil {
		t.Fatalf("UpdateCursor failed: %v", err)
	}
	if err := r.UpdateSelection(snap.SessionID, "alice", models.Selection{StartLine: 1, EndLine: 3}); err != nil {
		t.Fatalf("UpdateSelection failed: %v", err)
	}
	if err := r.TouchActivity(snap.SessionID, "alice", "editor"); err != nil {
		t.Fatalf("TouchActivity failed: %v", err)
	}

	for _, typ := range []EventType{EventCursorUpdate, EventSelectionUpdate, EventUserActivity} {
		events := rec.ofType(typ)
		if len(events) != 1 {
			t.Fatalf("%s events = %d, want 1", typ, len(events))
		}
		if events[0].ExcludeUserID != "alice" {
			t.Errorf("%s must exclude the origin UserID", typ)
		}
	}

	if err := r.UpdateCursor(snap.SessionID, "ghost", models.Cursor{}); !apperr.Is(err, apperr.ErrNotJoined) {
		t.Errorf("cursor for non-member: got %v, want NOT_JOINED", err)
	}
}

// TestConcurrentDisjointSessions tests that independent sessions commit in
// parallel without interference.
func TestConcurrentDisjointSessions(t *testing.T) {
	r, _ := newTestRegistry()

	const sessions = 8
	const changes = 25
	ids := make([]models.UUID, sessions)
	for i := 0; i < sessions; i++ {
		snap, err := r.Join("proj-1", "doc-"+string(rune('a'+i)), "alice", "Alice")
		if err != nil {
			t.Fatalf("Join failed: %v", err)
		}
		ids[i] = snap.SessionID
	}

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(id models.UUID) {
			defer wg.Done()
			for j := 0; j < changes; j++ {
				base := int64(j)
				if _, err := r.SubmitChange(id, propose("alice", "content", "v", base, nil)); err != nil {
					t.Errorf("SubmitChange failed: %v", err)
					return
				}
			}
		}(ids[i])
	}
	wg.Wait()

	for _, id := range ids {
		got, err := r.GetSnapshot(id, 0)
		if err != nil {
			t.Fatalf("GetSnapshot failed: %v", err)
		}
		if got.Sequence != changes {
			t.Errorf("session %s sequence = %d, want %d", id, got.Sequence, changes)
		}
		for i, c := range got.Changes {
			if c.Sequence != int64(i+1) {
				t.Errorf("session %s change %d carries sequence %d", id, i, c.Sequence)
			}
		}
	}
}

// TestResolveDoesNotClobberLaterAppliedChange tests that resolving a
// conflict converges the document by replay: a winner whose sequence
// precedes a later applied change on the same target must not overwrite it.
func TestResolveDoesNotClobberLaterAppliedChange(t *testing.T) {
	r, _ := newTestRegistry()
	snap := join(t, r, "alice")
	join(t, r, "bob")
	join(t, r, "carol")

	a, err := r.SubmitChange(snap.SessionID, propose("alice", "content", "alice version", 0, nil))
	if err != nil {
		t.Fatalf("SubmitChange(alice) failed: %v", err)
	}
	b, err := r.SubmitChange(snap.SessionID, propose("bob", "content", "bob version", 0, nil))
	if err != nil {
		t.Fatalf("SubmitChange(bob) failed: %v", err)
	}
	// Carol has observed both prior changes, so she commits cleanly on
	// the same target while the alice/bob conflict is still open.
	c, err := r.SubmitChange(snap.SessionID, propose("carol", "content", "carol version", b.Sequence, nil))
	if err != nil {
		t.Fatalf("SubmitChange(carol) failed: %v", err)
	}
	if !c.Applied || a.Sequence != 1 || b.Sequence != 2 || c.Sequence != 3 {
		t.Fatalf("setup: sequences %d,%d,%d applied(carol)=%v", a.Sequence, b.Sequence, c.Sequence, c.Applied)
	}

	got, _ := r.GetSnapshot(snap.SessionID, 0)
	if _, err := r.Resolve(snap.SessionID, got.Conflicts[0].ID, &conflict.Request{
		Strategy:   models.StrategyAcceptMine,
		ResolverID: "bob",
	}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	after, _ := r.GetSnapshot(snap.SessionID, 0)
	if after.Document["content"] != "carol version" {
		t.Errorf("document = %v, want carol's later applied value", after.Document)
	}
	if !b.Applied || b.Resolution != models.ResolutionManual {
		t.Errorf("winner = applied:%v res:%s, want applied manual", b.Applied, b.Resolution)
	}

	// The live document and a fold of the applied history must agree.
	replayed := make(models.Document)
	for _, ch := range after.Changes {
		if ch.Applied {
			replayed[ch.TargetPath] = ch.NewValue
		}
	}
	if !reflect.DeepEqual(after.Document, replayed) {
		t.Errorf("live document %v diverges from replay %v", after.Document, replayed)
	}
}

// captureStore records the state of every saved change at call time.
type captureStore struct {
	mu      sync.Mutex
	changes map[models.UUID]models.Change
}

func newCaptureStore() *captureStore {
	return &captureStore{changes: make(map[models.UUID]models.Change)}
}

func (s *captureStore) SaveSession(info *models.SessionInfo) error { return nil }

func (s *captureStore) SaveChange(c *models.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes[c.ID] = *c
	return nil
}

func (s *captureStore) SaveConflict(c *models.EditConflict) error { return nil }

func (s *captureStore) get(id models.UUID) (models.Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.changes[id]
	return c, ok
}

// TestResolvePersistsMemberState tests that resolution writes the
// post-resolution flags of every conflict member to the store, so a
// restart rebuilds the resolved document rather than the pre-resolution
// one.
func TestResolvePersistsMemberState(t *testing.T) {
	rec := &recorder{}
	store := newCaptureStore()
	r := NewRegistry(DefaultConfig(), rec.publish, store)

	snap := join(t, r, "alice")
	join(t, r, "bob")
	a, _ := r.SubmitChange(snap.SessionID, propose("alice", "content", "alice version", 0, nil))
	b, _ := r.SubmitChange(snap.SessionID, propose("bob", "content", "bob version", 0, nil))

	got, _ := r.GetSnapshot(snap.SessionID, 0)
	if _, err := r.Resolve(snap.SessionID, got.Conflicts[0].ID, &conflict.Request{
		Strategy:   models.StrategyAcceptMine,
		ResolverID: "bob",
	}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	winner, ok := store.get(b.ID)
	if !ok {
		t.Fatal("winner never reached the store")
	}
	if !winner.Applied || winner.Resolution != models.ResolutionManual {
		t.Errorf("stored winner = applied:%v res:%s, want applied manual", winner.Applied, winner.Resolution)
	}
	loser, ok := store.get(a.ID)
	if !ok {
		t.Fatal("discarded member never reached the store")
	}
	if loser.Applied || loser.Resolution != models.ResolutionManual {
		t.Errorf("stored loser = applied:%v res:%s, want held manual", loser.Applied, loser.Resolution)
	}
}

// TestResolveIgnorePersistsMemberState tests the same property for the
// ignore strategy, which flips member resolutions without a winner.
func TestResolveIgnorePersistsMemberState(t *testing.T) {
	rec := &recorder{}
	store := newCaptureStore()
	r := NewRegistry(DefaultConfig(), rec.publish, store)

	snap := join(t, r, "alice")
	join(t, r, "bob")
	a, _ := r.SubmitChange(snap.SessionID, propose("alice", "content", "alice version", 0, nil))
	b, _ := r.SubmitChange(snap.SessionID, propose("bob", "content", "bob version", 0, nil))

	got, _ := r.GetSnapshot(snap.SessionID, 0)
	if _, err := r.Resolve(snap.SessionID, got.Conflicts[0].ID, &conflict.Request{
		Strategy:   models.StrategyIgnore,
		ResolverID: "bob",
	}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Applied flags are untouched by ignore: alice committed before the
	// conflict opened, bob's change was held.
	for _, member := range []struct {
		id      models.UUID
		applied bool
	}{{a.ID, true}, {b.ID, false}} {
		stored, ok := store.get(member.id)
		if !ok {
			t.Fatalf("member %s never reached the store", member.id)
		}
		if stored.Resolution != models.ResolutionManual {
			t.Errorf("stored member %s resolution = %s, want manual", member.id, stored.Resolution)
		}
		if stored.Applied != member.applied {
			t.Errorf("stored member %s applied = %v, want %v", member.id, stored.Applied, member.applied)
		}
	}
}
