package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatflow-works/engine/internal/engine"
)

// Interaction is one persisted conversation transcript.
type Interaction struct {
	UniqueID    string          `json:"uniqueId"`
	UserID      string          `json:"userId"`
	FlowID      string          `json:"flowId"`
	Date        string          `json:"date"`
	ClientIP    string          `json:"ipAddress"`
	ChatHistory json.RawMessage `json:"chatHistory"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// InteractionGroup bundles the interactions recorded on one calendar day.
type InteractionGroup struct {
	Date         string         `json:"date"`
	Interactions []*Interaction `json:"interactions"`
}

// FormResponse is one persisted form submission.
type FormResponse struct {
	ID         string          `json:"id"`
	UserEmail  string          `json:"userEmail"`
	UserID     string          `json:"userId"`
	FlowID     string          `json:"flowId"`
	FormID     string          `json:"formId"`
	FormName   string          `json:"formName"`
	Date       string          `json:"date"`
	SubmitDate time.Time       `json:"submitDate"`
	Response   json.RawMessage `json:"response"`
}

// FormResponseGroup bundles the responses submitted on one calendar day.
type FormResponseGroup struct {
	Date      string          `json:"date"`
	Responses []*FormResponse `json:"responses"`
}

// Statistics counts distinct visitor IPs per time window for one flow.
type Statistics struct {
	Day     int `json:"day"`
	Week    int `json:"week"`
	Month   int `json:"month"`
	Year    int `json:"year"`
	AllTime int `json:"allTime"`
}

// InteractionStore persists conversation transcripts and form responses.
// It satisfies the traversal engine's Recorder interface.
type InteractionStore struct {
	db *sql.DB
}

func NewInteractionStore(db *sql.DB) *InteractionStore {
	return &InteractionStore{db: db}
}

var _ engine.Recorder = (*InteractionStore)(nil)

// RecordInteraction stores a completed transcript and returns its unique id.
func (s *InteractionStore) RecordInteraction(ctx context.Context, rec engine.InteractionRecord) (string, error) {
	history, err := json.Marshal(rec.Transcript)
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions (unique_id, user_id, flow_id, date, ip_address, chat_history, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		id, rec.UserID, rec.FlowID, rec.Date, rec.ClientIP, history)
	if err != nil {
		return "", fmt.Errorf("save interaction for flow %s: %w", rec.FlowID, err)
	}
	return id, nil
}

// RecordFormSubmission stores one submitted form.
func (s *InteractionStore) RecordFormSubmission(ctx context.Context, rec engine.FormRecord) error {
	response, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode form fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO form_responses (id, user_email, user_id, flow_id, form_id, form_name, date, submit_date, response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.NewString(), rec.UserEmail, rec.UserID, rec.FlowID, rec.FormID, rec.FormName,
		rec.Date, rec.SubmitDate, response)
	if err != nil {
		return fmt.Errorf("save form response for flow %s: %w", rec.FlowID, err)
	}
	return nil
}

// ListInteractions returns a flow's transcripts grouped by day, newest day
// first, newest transcript first within each day.
func (s *InteractionStore) ListInteractions(ctx context.Context, flowID, userID string) ([]*InteractionGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unique_id, user_id, flow_id, date, ip_address, chat_history, created_at
		FROM interactions
		WHERE flow_id = $1 AND user_id = $2
		ORDER BY date DESC, created_at DESC`, flowID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*InteractionGroup
	for rows.Next() {
		var it Interaction
		if err := rows.Scan(&it.UniqueID, &it.UserID, &it.FlowID, &it.Date,
			&it.ClientIP, &it.ChatHistory, &it.CreatedAt); err != nil {
			return nil, err
		}
		if len(groups) == 0 || groups[len(groups)-1].Date != it.Date {
			groups = append(groups, &InteractionGroup{Date: it.Date})
		}
		g := groups[len(groups)-1]
		g.Interactions = append(g.Interactions, &it)
	}
	return groups, rows.Err()
}

// FlowStatistics counts distinct visitor IPs for the flow over the trailing
// day, week, month and year, plus all time.
func (s *InteractionStore) FlowStatistics(ctx context.Context, flowID string) (*Statistics, error) {
	var st Statistics
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT ip_address) FILTER (WHERE created_at >= NOW() - INTERVAL '1 day'),
			COUNT(DISTINCT ip_address) FILTER (WHERE created_at >= NOW() - INTERVAL '7 days'),
			COUNT(DISTINCT ip_address) FILTER (WHERE created_at >= NOW() - INTERVAL '30 days'),
			COUNT(DISTINCT ip_address) FILTER (WHERE created_at >= NOW() - INTERVAL '365 days'),
			COUNT(DISTINCT ip_address)
		FROM interactions WHERE flow_id = $1`,
		flowID).Scan(&st.Day, &st.Week, &st.Month, &st.Year, &st.AllTime)
	if err != nil {
		return nil, fmt.Errorf("statistics for flow %s: %w", flowID, err)
	}
	return &st, nil
}

// ListFormResponses returns a flow's form submissions grouped by day, newest
// day first, newest submission first within each day.
func (s *InteractionStore) ListFormResponses(ctx context.Context, flowID, userID string) ([]*FormResponseGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_email, user_id, flow_id, form_id, form_name, date, submit_date, response
		FROM form_responses
		WHERE flow_id = $1 AND user_id = $2
		ORDER BY date DESC, submit_date DESC`, flowID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*FormResponseGroup
	for rows.Next() {
		var fr FormResponse
		if err := rows.Scan(&fr.ID, &fr.UserEmail, &fr.UserID, &fr.FlowID,
			&fr.FormID, &fr.FormName, &fr.Date, &fr.SubmitDate, &fr.Response); err != nil {
			return nil, err
		}
		if len(groups) == 0 || groups[len(groups)-1].Date != fr.Date {
			groups = append(groups, &FormResponseGroup{Date: fr.Date})
		}
		g := groups[len(groups)-1]
		g.Responses = append(g.Responses, &fr)
	}
	return groups, rows.Err()
}

// GetFormResponse loads one form submission by id.
func (s *InteractionStore) GetFormResponse(ctx context.Context, id string) (*FormResponse, error) {
	var fr FormResponse
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_email, user_id, flow_id, form_id, form_name, date, submit_date, response
		FROM form_responses WHERE id = $1`,
		id).Scan(&fr.ID, &fr.UserEmail, &fr.UserID, &fr.FlowID,
		&fr.FormID, &fr.FormName, &fr.Date, &fr.SubmitDate, &fr.Response)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &fr, nil
}
