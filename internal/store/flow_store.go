package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatflow-works/engine/internal/models"
)

// Collaborator roles. Owners are implicit and never stored in the
// collaborators table.
const (
	RoleAdmin        = "admin"
	RoleCollaborator = "collaborator"
)

// FlowRecord is a stored chatbot flow. Nodes and Edges hold the raw JSON
// arrays exactly as the builder saved them.
type FlowRecord struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Name          string          `json:"name"`
	WebsiteDomain string          `json:"websiteDomain"`
	Nodes         json.RawMessage `json:"nodes"`
	Edges         json.RawMessage `json:"edges"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// ParseFlow decodes the stored node and edge arrays into a traversable flow.
func (r *FlowRecord) ParseFlow() (*models.Flow, error) {
	f := &models.Flow{
		ID:            r.ID,
		UserID:        r.UserID,
		Name:          r.Name,
		WebsiteDomain: r.WebsiteDomain,
	}
	if len(r.Nodes) > 0 {
		if err := json.Unmarshal(r.Nodes, &f.Nodes); err != nil {
			return nil, fmt.Errorf("parse flow %s nodes: %w", r.ID, err)
		}
	}
	if len(r.Edges) > 0 {
		if err := json.Unmarshal(r.Edges, &f.Edges); err != nil {
			return nil, fmt.Errorf("parse flow %s edges: %w", r.ID, err)
		}
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("parse flow %s: %w", r.ID, err)
	}
	return f, nil
}

// Access describes what a user may do with a flow.
type Access struct {
	HasAccess bool   `json:"hasAccess"`
	IsOwner   bool   `json:"isOwner"`
	Role      string `json:"role,omitempty"`
}

// Invite is a shareable invitation code for a flow.
type Invite struct {
	Code      string    `json:"code"`
	FlowID    string    `json:"flowId"`
	CreatedBy string    `json:"createdBy"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// CollaboratorRecord is one user's membership on a flow.
type CollaboratorRecord struct {
	FlowID  string    `json:"flowId"`
	UserID  string    `json:"userId"`
	Role    string    `json:"role"`
	AddedAt time.Time `json:"addedAt"`
}

// FlowStore persists flows and their sharing state in PostgreSQL.
type FlowStore struct {
	db *sql.DB
}

func NewFlowStore(db *sql.DB) *FlowStore {
	return &FlowStore{db: db}
}

const flowColumns = `id, user_id, name, website_domain, nodes, edges, created_at, updated_at`

func scanFlow(row interface{ Scan(...interface{}) error }) (*FlowRecord, error) {
	var r FlowRecord
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.WebsiteDomain,
		&r.Nodes, &r.Edges, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create saves a new flow. If the user already owns a flow with the same
// name the stored name gets a timestamp suffix so saves never fail on a
// duplicate name.
func (s *FlowStore) Create(ctx context.Context, userID, name, websiteDomain string, nodes, edges json.RawMessage) (*FlowRecord, error) {
	available, _, err := s.NameAvailable(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if !available {
		name = fmt.Sprintf("%s (%d)", name, time.Now().Unix())
	}
	if nodes == nil {
		nodes = json.RawMessage("[]")
	}
	if edges == nil {
		edges = json.RawMessage("[]")
	}

	id := uuid.NewString()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO flows (id, user_id, name, website_domain, nodes, edges, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING `+flowColumns,
		id, userID, name, websiteDomain, []byte(nodes), []byte(edges))
	return scanFlow(row)
}

// Update replaces the flow's content and bumps updated_at.
func (s *FlowStore) Update(ctx context.Context, flowID, name, websiteDomain string, nodes, edges json.RawMessage) (*FlowRecord, error) {
	if nodes == nil {
		nodes = json.RawMessage("[]")
	}
	if edges == nil {
		edges = json.RawMessage("[]")
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE flows
		SET name = $2, website_domain = $3, nodes = $4, edges = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+flowColumns,
		flowID, name, websiteDomain, []byte(nodes), []byte(edges))
	rec, err := scanFlow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

// Get loads one flow by id.
func (s *FlowStore) Get(ctx context.Context, flowID string) (*FlowRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+flowColumns+` FROM flows WHERE id = $1`, flowID)
	rec, err := scanFlow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

// Delete removes a flow together with its collaborators and invites.
func (s *FlowStore) Delete(ctx context.Context, flowID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM collaborators WHERE flow_id = $1`, flowID); err != nil {
		return fmt.Errorf("delete collaborators for flow %s: %w", flowID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM invites WHERE flow_id = $1`, flowID); err != nil {
		return fmt.Errorf("delete invites for flow %s: %w", flowID, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM flows WHERE id = $1`, flowID)
	if err != nil {
		return fmt.Errorf("delete flow %s: %w", flowID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ListForUser returns flows the user owns plus flows shared with them,
// newest first. A flow appears once even when both apply.
func (s *FlowStore) ListForUser(ctx context.Context, userID string) ([]*FlowRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT f.id, f.user_id, f.name, f.website_domain, f.nodes, f.edges, f.created_at, f.updated_at
		FROM flows f
		LEFT JOIN collaborators c ON c.flow_id = f.id
		WHERE f.user_id = $1 OR c.user_id = $1
		ORDER BY f.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FlowRecord
	for rows.Next() {
		rec, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// NameAvailable reports whether the user can still use name for a new flow.
// When taken it also returns a free suggestion.
func (s *FlowStore) NameAvailable(ctx context.Context, userID, name string) (bool, string, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM flows WHERE user_id = $1 AND name = $2`,
		userID, name).Scan(&n)
	if err != nil {
		return false, "", err
	}
	if n == 0 {
		return true, "", nil
	}
	return false, fmt.Sprintf("%s (%d)", name, time.Now().Unix()), nil
}

// CheckAccess resolves what userID may do with flowID. Owners outrank
// admins, admins outrank collaborators.
func (s *FlowStore) CheckAccess(ctx context.Context, flowID, userID string) (Access, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM flows WHERE id = $1`, flowID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return Access{}, ErrNotFound
	}
	if err != nil {
		return Access{}, err
	}
	if ownerID == userID {
		return Access{HasAccess: true, IsOwner: true, Role: "owner"}, nil
	}

	var role string
	err = s.db.QueryRowContext(ctx,
		`SELECT role FROM collaborators WHERE flow_id = $1 AND user_id = $2`,
		flowID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return Access{}, nil
	}
	if err != nil {
		return Access{}, err
	}
	return Access{HasAccess: true, Role: role}, nil
}

// CreateInvite mints a one-use invitation code for a flow.
func (s *FlowStore) CreateInvite(ctx context.Context, flowID, createdBy, role string) (*Invite, error) {
	if role != RoleAdmin && role != RoleCollaborator {
		return nil, fmt.Errorf("invalid invite role %q", role)
	}
	inv := &Invite{
		Code:      uuid.NewString(),
		FlowID:    flowID,
		CreatedBy: createdBy,
		Role:      role,
		Active:    true,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO invites (code, flow_id, created_by, role, active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		RETURNING created_at`,
		inv.Code, inv.FlowID, inv.CreatedBy, inv.Role).Scan(&inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create invite for flow %s: %w", flowID, err)
	}
	return inv, nil
}

// AcceptInvite redeems an active invite code: the user becomes a
// collaborator with the invite's role and the code is deactivated.
func (s *FlowStore) AcceptInvite(ctx context.Context, code, userID string) (*CollaboratorRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var inv Invite
	err = tx.QueryRowContext(ctx, `
		SELECT code, flow_id, created_by, role, active, created_at
		FROM invites WHERE code = $1 FOR UPDATE`,
		code).Scan(&inv.Code, &inv.FlowID, &inv.CreatedBy, &inv.Role, &inv.Active, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !inv.Active {
		return nil, fmt.Errorf("invite %s is no longer active", code)
	}

	rec := &CollaboratorRecord{FlowID: inv.FlowID, UserID: userID, Role: inv.Role}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO collaborators (flow_id, user_id, role, added_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (flow_id, user_id) DO UPDATE SET role = EXCLUDED.role
		RETURNING added_at`,
		rec.FlowID, rec.UserID, rec.Role).Scan(&rec.AddedAt)
	if err != nil {
		return nil, fmt.Errorf("add collaborator: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE invites SET active = FALSE WHERE code = $1`, code); err != nil {
		return nil, fmt.Errorf("deactivate invite %s: %w", code, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeactivateInvite revokes an invite code without deleting its history.
func (s *FlowStore) DeactivateInvite(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invites SET active = FALSE WHERE code = $1`, code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListInvites returns all invites for a flow, newest first.
func (s *FlowStore) ListInvites(ctx context.Context, flowID string) ([]*Invite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, flow_id, created_by, role, active, created_at
		FROM invites WHERE flow_id = $1 ORDER BY created_at DESC`, flowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Invite
	for rows.Next() {
		var inv Invite
		if err := rows.Scan(&inv.Code, &inv.FlowID, &inv.CreatedBy, &inv.Role, &inv.Active, &inv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &inv)
	}
	return out, rows.Err()
}

// ListCollaborators returns the flow's collaborators ordered by join time.
func (s *FlowStore) ListCollaborators(ctx context.Context, flowID string) ([]*CollaboratorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_id, user_id, role, added_at
		FROM collaborators WHERE flow_id = $1 ORDER BY added_at`, flowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CollaboratorRecord
	for rows.Next() {
		var c CollaboratorRecord
		if err := rows.Scan(&c.FlowID, &c.UserID, &c.Role, &c.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// RemoveCollaborator takes a user off a flow.
func (s *FlowStore) RemoveCollaborator(ctx context.Context, flowID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM collaborators WHERE flow_id = $1 AND user_id = $2`, flowID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
