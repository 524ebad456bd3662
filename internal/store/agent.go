// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// shortSuffix returns the first 8 hex characters of a fresh UUID, used to
// disambiguate agent ids created within the same millisecond.
func shortSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Mode mirrors the durable Agent's mode field (§3).
type Mode string

const (
	ModeRegular Mode = "regular"
	ModeAuto    Mode = "auto"
	ModePlan    Mode = "plan"
)

// Permission mirrors one element of the durable Agent's permission set.
type Permission string

const (
	PermissionRead    Permission = "read"
	PermissionWrite   Permission = "write"
	PermissionExecute Permission = "execute"
)

// Status mirrors the durable Agent's last-observed status (§3).
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusWaiting Status = "waiting"
	StatusError   Status = "error"
)

// Agent is the durable row described in §3.
type Agent struct {
	ID            string
	WorktreeID    string
	Name          string
	Status        Status
	ContextLevel  int
	Mode          Mode
	Permissions   []Permission
	DisplayOrder  int
	PID           *int
	SessionToken  *string
	ParentAgentID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	StoppedAt     *time.Time
	DeletedAt     *time.Time
}

// ErrNotFound is returned when an agent id has no durable row.
var ErrNotFound = errors.New("store: agent not found")

// AgentStore is the narrow persistence surface the request-routing layer
// (out of scope for this repo) needs on top of the agents table.
type AgentStore struct {
	db *sql.DB
}

// NewAgentStore wraps db.
func NewAgentStore(db *sql.DB) *AgentStore {
	return &AgentStore{db: db}
}

// Create inserts a new Idle agent row with display_order 0 within its
// worktree, matching the original's "reorder is a separate explicit
// operation" design.
func (s *AgentStore) Create(worktreeID, name string, mode Mode, perms []Permission) (*Agent, error) {
	now := time.Now().UTC()
	permJSON, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}
	a := &Agent{
		ID:           fmt.Sprintf("ag_%d%s", now.UnixMilli(), shortSuffix()),
		WorktreeID:   worktreeID,
		Name:         name,
		Status:       StatusIdle,
		Mode:         mode,
		Permissions:  perms,
		DisplayOrder: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = s.db.Exec(`
		INSERT INTO agents (id, worktree_id, name, status, context_level, mode, permissions, display_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		a.ID, a.WorktreeID, a.Name, string(a.Status), string(a.Mode), string(permJSON), a.DisplayOrder,
		a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert agent: %w", err)
	}
	return a, nil
}

// Fork creates a new agent row copying the parent's mode, permissions, and
// session token, with parent_agent_id set to parent and display_order set
// to parent's display_order + 1 (§3 Lifecycle, scenario 5). An empty name
// defaults to "<parent name> (fork)".
func (s *AgentStore) Fork(parentID, name string) (*Agent, error) {
	parent, err := s.Get(parentID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = parent.Name + " (fork)"
	}

	now := time.Now().UTC()
	permJSON, err := json.Marshal(parent.Permissions)
	if err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}
	a := &Agent{
		ID:            fmt.Sprintf("ag_%d%s", now.UnixMilli(), shortSuffix()),
		WorktreeID:    parent.WorktreeID,
		Name:          name,
		Status:        StatusIdle,
		Mode:          parent.Mode,
		Permissions:   parent.Permissions,
		DisplayOrder:  parent.DisplayOrder + 1,
		SessionToken:  parent.SessionToken,
		ParentAgentID: &parent.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err = s.db.Exec(`
		INSERT INTO agents (id, worktree_id, name, status, context_level, mode, permissions, display_order, session_id, parent_agent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.WorktreeID, a.Name, string(a.Status), string(a.Mode), string(permJSON), a.DisplayOrder,
		a.SessionToken, a.ParentAgentID, a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert forked agent: %w", err)
	}

	if a.SessionToken != nil {
		_, err = s.db.Exec(`
			INSERT INTO agent_sessions (agent_id, session_token, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(agent_id) DO UPDATE SET session_token = excluded.session_token, updated_at = excluded.updated_at`,
			a.ID, *a.SessionToken, a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339))
		if err != nil {
			return nil, fmt.Errorf("copy session token: %w", err)
		}
	}

	return a, nil
}

// Get returns the agent row for id, including soft-deleted rows.
func (s *AgentStore) Get(id string) (*Agent, error) {
	row := s.db.QueryRow(`
		SELECT id, worktree_id, name, status, context_level, mode, permissions, display_order,
		       pid, session_id, parent_agent_id, created_at, updated_at, started_at, stopped_at, deleted_at
		FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// List returns agents for worktreeID, ordered by display_order. Soft-
// deleted rows are excluded unless includeDeleted is true.
func (s *AgentStore) List(worktreeID string, includeDeleted bool) ([]*Agent, error) {
	query := `
		SELECT id, worktree_id, name, status, context_level, mode, permissions, display_order,
		       pid, session_id, parent_agent_id, created_at, updated_at, started_at, stopped_at, deleted_at
		FROM agents WHERE worktree_id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY display_order ASC`

	rows, err := s.db.Query(query, worktreeID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateStatus sets status and the pid column; a nil pid stores NULL.
func (s *AgentStore) UpdateStatus(id string, status Status, pid *int) error {
	_, err := s.db.Exec(`UPDATE agents SET status = ?, pid = ?, updated_at = ? WHERE id = ?`,
		string(status), pid, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

// UpdateSessionToken persists the session token assigned at first spawn.
func (s *AgentStore) UpdateSessionToken(id, token string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`UPDATE agents SET session_id = ?, updated_at = ? WHERE id = ?`, token, now, id)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO agent_sessions (agent_id, session_token, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET session_token = excluded.session_token, updated_at = excluded.updated_at`,
		id, token, now, now)
	return err
}

// SoftDelete marks deleted_at, leaving the row in place.
func (s *AgentStore) SoftDelete(id string) error {
	_, err := s.db.Exec(`UPDATE agents SET deleted_at = ?, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), id)
	return err
}

// Restore clears deleted_at.
func (s *AgentStore) Restore(id string) error {
	_, err := s.db.Exec(`UPDATE agents SET deleted_at = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
	return err
}

// HardDelete removes the row (and, via cascade, its session) permanently.
func (s *AgentStore) HardDelete(id string) error {
	_, err := s.db.Exec(`DELETE FROM agents WHERE id = ?`, id)
	return err
}

// Reorder assigns display_order values equal to the position of each id
// in agentIDs, forming a permutation of [0, len(agentIDs)).
func (s *AgentStore) Reorder(worktreeID string, agentIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for i, id := range agentIDs {
		res, err := tx.Exec(`UPDATE agents SET display_order = ?, updated_at = ? WHERE id = ? AND worktree_id = ?`,
			i, now, id, worktreeID)
		if err != nil {
			return fmt.Errorf("reorder agent %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("reorder agent %s: %w", id, ErrNotFound)
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (*Agent, error) {
	var (
		a                                        Agent
		status, mode, permJSON                   string
		createdAt, updatedAt                     string
		pid                                       sql.NullInt64
		sessionID, parentID                       sql.NullString
		startedAt, stoppedAt, deletedAt           sql.NullString
	)
	if err := row.Scan(&a.ID, &a.WorktreeID, &a.Name, &status, &a.ContextLevel, &mode, &permJSON, &a.DisplayOrder,
		&pid, &sessionID, &parentID, &createdAt, &updatedAt, &startedAt, &stoppedAt, &deletedAt); err != nil {
		return nil, err
	}

	a.Status = Status(status)
	a.Mode = Mode(mode)
	if err := json.Unmarshal([]byte(permJSON), &a.Permissions); err != nil {
		a.Permissions = []Permission{PermissionRead}
	}
	if pid.Valid {
		v := int(pid.Int64)
		a.PID = &v
	}
	if sessionID.Valid {
		a.SessionToken = &sessionID.String
	}
	if parentID.Valid {
		a.ParentAgentID = &parentID.String
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if startedAt.Valid {
		t, _ := time.Parse(time.RFC3339, startedAt.String)
		a.StartedAt = &t
	}
	if stoppedAt.Valid {
		t, _ := time.Parse(time.RFC3339, stoppedAt.String)
		a.StoppedAt = &t
	}
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339, deletedAt.String)
		a.DeletedAt = &t
	}
	return &a, nil
}
