package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatflow-works/engine/internal/models"
)

type fakeRecorder struct {
	forms        []FormRecord
	interactions []InteractionRecord
	formErr      error
}

func (r *fakeRecorder) RecordFormSubmission(_ context.Context, rec FormRecord) error {
	if r.formErr != nil {
		return r.formErr
	}
	r.forms = append(r.forms, rec)
	return nil
}

func (r *fakeRecorder) RecordInteraction(_ context.Context, rec InteractionRecord) (string, error) {
	r.interactions = append(r.interactions, rec)
	return "uid-1", nil
}

type fakeMailer struct {
	owner   string
	sent    []string // "<kind>-><to>"
	sendErr error
}

func (m *fakeMailer) OwnerAddress(context.Context, string) (string, error) {
	return m.owner, nil
}

func (m *fakeMailer) Send(_ context.Context, _, to, _, html, kind string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	if html == "" {
		return fmt.Errorf("empty body")
	}
	m.sent = append(m.sent, kind+"->"+to)
	return nil
}

func completedSession(t *testing.T) (*Session, []Effect) {
	t.Helper()
	eng := newTestEngine(t, contactFlow())
	s, _ := eng.StartSession(StartOptions{UserID: "owner-1"})
	_, err := eng.HandleInteraction(s, Interaction{NodeID: "B", Input: "hello"})
	require.NoError(t, err)
	effects, err := eng.HandleInteraction(s, Interaction{
		NodeID: "C",
		Input:  map[string]interface{}{"email": "x@y.com"},
	})
	require.NoError(t, err)
	return s, effects
}

func TestDispatcher_AppliesCompletionEffects(t *testing.T) {
	s, effects := completedSession(t)

	rec := &fakeRecorder{}
	mail := &fakeMailer{owner: "owner@smtp.example.com"}
	d := NewDispatcher(rec, mail)

	warnings := d.Apply(context.Background(), s, effects)
	assert.Empty(t, warnings)

	require.Len(t, rec.forms, 1)
	assert.Equal(t, "x@y.com", rec.forms[0].UserEmail)
	assert.Equal(t, "flow-1", rec.forms[0].FlowID)
	assert.Equal(t, "owner-1", rec.forms[0].UserID)
	assert.NotEmpty(t, rec.forms[0].Date)

	require.Len(t, rec.interactions, 1)
	assert.Equal(t, "flow-1", rec.interactions[0].FlowID)

	// Exactly two emails: the form confirmation and the owner summary.
	assert.Equal(t, []string{"form->x@y.com", "completion->owner@smtp.example.com"}, mail.sent)
}

func TestDispatcher_FailuresAreSoft(t *testing.T) {
	s, effects := completedSession(t)

	rec := &fakeRecorder{formErr: fmt.Errorf("db down")}
	mail := &fakeMailer{owner: "owner@smtp.example.com", sendErr: fmt.Errorf("smtp down")}
	d := NewDispatcher(rec, mail)

	warnings := d.Apply(context.Background(), s, effects)
	// Form record, form email and summary email all failed; transcript record succeeded.
	assert.Len(t, warnings, 3)
	assert.Len(t, rec.interactions, 1)
	// Traversal state is untouched by dispatch failures.
	assert.True(t, s.Completed)
	assert.True(t, s.NotificationSent)
}

func TestDispatcher_NilCollaboratorsWarnInsteadOfPanic(t *testing.T) {
	s, effects := completedSession(t)
	d := NewDispatcher(nil, nil)

	warnings := d.Apply(context.Background(), s, effects)
	assert.Len(t, warnings, len(effects))
}

func TestDispatcher_SummaryUsesFlowName(t *testing.T) {
	eng := newTestEngine(t, &models.Flow{
		ID:   "f",
		Name: "Support Intake",
		Nodes: []models.Node{
			{ID: "q", Type: models.NodeSingleInput, Data: models.NodeData{SendEmailOnCompletion: true}},
		},
	})
	s, _ := eng.StartSession(StartOptions{UserID: "u"})
	effects, err := eng.HandleInteraction(s, Interaction{NodeID: "q", Input: "bye"})
	require.NoError(t, err)

	var gotSubject string
	mail := &subjectMailer{owner: "o@x.com", subject: &gotSubject}
	warnings := NewDispatcher(&fakeRecorder{}, mail).Apply(context.Background(), s, effects)
	assert.Empty(t, warnings)
	assert.Equal(t, "Conversation Summary: Support Intake", gotSubject)
}

type subjectMailer struct {
	owner   string
	subject *string
}

func (m *subjectMailer) OwnerAddress(context.Context, string) (string, error) { return m.owner, nil }
func (m *subjectMailer) Send(_ context.Context, _, _, subject, _, _ string) error {
	*m.subject = subject
	return nil
}
