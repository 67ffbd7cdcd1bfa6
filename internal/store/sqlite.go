package store

import (
	"encoding/json"

	"github.com/planforge/collabd/internal/apperr"
	"github.com/planforge/collabd/internal/models"
)

// SQLiteStore persists sessions, changes, and conflicts. Writes are
// upserts: a change is re-saved when a resolution flips its state.
type SQLiteStore struct {
	db *DB
}

// NewSQLiteStore creates a store over an opened, migrated database.
func NewSQLiteStore(db *DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// SaveSession upserts session metadata.
func (s *SQLiteStore) SaveSession(info *models.SessionInfo) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, project_id, document_id, state, sequence, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			sequence = excluded.sequence,
			last_activity = excluded.last_activity`,
		info.ID, info.ProjectID, info.DocumentID, info.State, info.Sequence,
		info.CreatedAt, info.LastActivity)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, "save session", err)
	}
	return nil
}

// SaveChange upserts a change. Sequence, identity, and content never move
// after commit; only resolution state and the applied flag may change.
func (s *SQLiteStore) SaveChange(c *models.Change) error {
	deps, err := json.Marshal(c.DependsOn)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, "encode dependencies", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO changes (id, session_id, author_id, client_id, operation, target_path,
			old_value, new_value, submitted_at, sequence, base_sequence, depends_on, resolution, applied)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			resolution = excluded.resolution,
			applied = excluded.applied`,
		c.ID, c.SessionID, c.AuthorID, c.ClientID, c.Operation, c.TargetPath,
		c.OldValue, c.NewValue, c.SubmittedAt, c.Sequence, c.BaseSequence,
		string(deps), c.Resolution, boolToInt(c.Applied))
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, "save change", err)
	}
	return nil
}

// SaveConflict upserts a conflict record.
func (s *SQLiteStore) SaveConflict(c *models.EditConflict) error {
	ids, err := json.Marshal(c.ChangeIDs)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, "encode change ids", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO edit_conflicts (id, session_id, target_path, change_ids, detected_at, status, resolution, resolved_by, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			change_ids = excluded.change_ids,
			status = excluded.status,
			resolution = excluded.resolution,
			resolved_by = excluded.resolved_by,
			resolved_at = excluded.resolved_at`,
		c.ID, c.SessionID, c.TargetPath, string(ids), c.DetectedAt,
		c.Status, c.Resolution, c.ResolvedBy, c.ResolvedAt)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, "save conflict", err)
	}
	return nil
}

// LoadSessions returns all persisted sessions for recovery.
func (s *SQLiteStore) LoadSessions() ([]*models.SessionInfo, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, document_id, state, sequence, created_at, last_activity
		FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, "load sessions", err)
	}
	defer rows.Close()

	var out []*models.SessionInfo
	for rows.Next() {
		var info models.SessionInfo
		if err := rows.Scan(&info.ID, &info.ProjectID, &info.DocumentID, &info.State,
			&info.Sequence, &info.CreatedAt, &info.LastActivity); err != nil {
			return nil, apperr.Wrap(apperr.ErrDatabase, "scan session", err)
		}
		out = append(out, &info)
	}
	return out, rows.Err()
}

// LoadChanges returns a session's full change history in sequence order.
func (s *SQLiteStore) LoadChanges(sessionID models.UUID) ([]*models.Change, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, author_id, client_id, operation, target_path,
			old_value, new_value, submitted_at, sequence, base_sequence, depends_on, resolution, applied
		FROM changes WHERE session_id = ? ORDER BY sequence`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, "load changes", err)
	}
	defer rows.Close()

	var out []*models.Change
	for rows.Next() {
		var c models.Change
		var deps string
		var applied int
		if err := rows.Scan(&c.ID, &c.SessionID, &c.AuthorID, &c.ClientID, &c.Operation,
			&c.TargetPath, &c.OldValue, &c.NewValue, &c.SubmittedAt, &c.Sequence,
			&c.BaseSequence, &deps, &c.Resolution, &applied); err != nil {
			return nil, apperr.Wrap(apperr.ErrDatabase, "scan change", err)
		}
		if err := json.Unmarshal([]byte(deps), &c.DependsOn); err != nil {
			return nil, apperr.Wrap(apperr.ErrDatabase, "decode dependencies", err)
		}
		c.Applied = applied != 0
		out = append(out, &c)
	}
	return out, rows.Err()
}

// LoadConflicts returns a session's conflict records.
func (s *SQLiteStore) LoadConflicts(sessionID models.UUID) ([]*models.EditConflict, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, target_path, change_ids, detected_at, status, resolution, resolved_by, resolved_at
		FROM edit_conflicts WHERE session_id = ? ORDER BY detected_at`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, "load conflicts", err)
	}
	defer rows.Close()

	var out []*models.EditConflict
	for rows.Next() {
		var c models.EditConflict
		var ids string
		if err := rows.Scan(&c.ID, &c.SessionID, &c.TargetPath, &ids, &c.DetectedAt,
			&c.Status, &c.Resolution, &c.ResolvedBy, &c.ResolvedAt); err != nil {
			return nil, apperr.Wrap(apperr.ErrDatabase, "scan conflict", err)
		}
		if err := json.Unmarshal([]byte(ids), &c.ChangeIDs); err != nil {
			return nil, apperr.Wrap(apperr.ErrDatabase, "decode change ids", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
