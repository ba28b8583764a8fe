package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatflow-works/engine/internal/models"
)

func newTestEngine(t *testing.T, flow *models.Flow) *Engine {
	t.Helper()
	eng, err := New(flow)
	require.NoError(t, err)
	return eng
}

func intPtr(i int) *int { return &i }

func transcriptIDs(s *Session) []string {
	ids := make([]string, 0, len(s.Transcript))
	for _, e := range s.Transcript {
		ids = append(ids, e.Node.ID)
	}
	return ids
}

// contactFlow is the end-to-end scenario: A:text -> B:singleInput -> C:form.
func contactFlow() *models.Flow {
	return &models.Flow{
		ID:   "flow-1",
		Name: "Contact Form",
		Nodes: []models.Node{
			{ID: "A", Type: models.NodeText, Data: models.NodeData{Label: "Welcome"}},
			{ID: "B", Type: models.NodeSingleInput, Data: models.NodeData{Label: "Say something"}},
			{ID: "C", Type: models.NodeForm, Data: models.NodeData{Label: "Your details", Fields: []models.FormField{
				{Key: "email", Label: "Email", Type: "email", Required: true},
			}}},
		},
		Edges: []models.Edge{
			{Source: "A", Target: "B"},
			{Source: "B", Target: "C"},
		},
	}
}

func TestNew_RejectsMalformedFlow(t *testing.T) {
	_, err := New(&models.Flow{})
	assert.Error(t, err)

	_, err = New(nil)
	assert.Error(t, err)
}

func TestStartSession_AutoAdvancesThroughTextNodes(t *testing.T) {
	eng := newTestEngine(t, contactFlow())

	s, effects := eng.StartSession(StartOptions{UserID: "u1"})
	assert.Empty(t, effects)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "B", s.CurrentNodeID)
	assert.Equal(t, []string{"A", "B"}, transcriptIDs(s))
	assert.Nil(t, s.Transcript[0].UserInput)
	assert.False(t, s.Completed)
}

func TestAutoAdvance_TerminatesOnTextCycle(t *testing.T) {
	flow := &models.Flow{
		ID: "cyclic",
		Nodes: []models.Node{
			{ID: "a", Type: models.NodeText, Data: models.NodeData{Label: "one"}},
			{ID: "b", Type: models.NodeText, Data: models.NodeData{Label: "two"}},
		},
		Edges: []models.Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}
	eng := newTestEngine(t, flow)

	s, effects := eng.StartSession(StartOptions{})
	// Revisiting a node within one pass is treated as flow completion.
	assert.True(t, s.Completed)
	assert.Empty(t, effects, "no form answered and no completion-email flag")
	assert.Equal(t, []string{"a", "b", "a"}, transcriptIDs(s))
}

func TestAutoAdvance_DeadEndTextCompletesFlow(t *testing.T) {
	flow := &models.Flow{
		ID:    "single",
		Nodes: []models.Node{{ID: "only", Type: models.NodeText, Data: models.NodeData{Label: "bye"}}},
	}
	eng := newTestEngine(t, flow)

	s, _ := eng.StartSession(StartOptions{})
	assert.True(t, s.Completed)
	assert.Equal(t, []string{"only"}, transcriptIDs(s))
}

func TestCondition_BranchesOnLastRecordedInput(t *testing.T) {
	flow := &models.Flow{
		ID: "branching",
		Nodes: []models.Node{
			{ID: "ask", Type: models.NodeSingleInput, Data: models.NodeData{Label: "How many?"}},
			{ID: "check", Type: models.NodeCondition, Data: models.NodeData{Label: "user_input>3"}},
			{ID: "big", Type: models.NodeText, Data: models.NodeData{Label: "That is a lot"}},
			{ID: "small", Type: models.NodeText, Data: models.NodeData{Label: "Just a few"}},
		},
		Edges: []models.Edge{
			{Source: "ask", Target: "check"},
			{Source: "check", Target: "big", SourceHandle: "yes"},
			{Source: "check", Target: "small", SourceHandle: "no"},
		},
	}
	eng := newTestEngine(t, flow)

	s, _ := eng.StartSession(StartOptions{})
	require.Equal(t, "ask", s.CurrentNodeID)

	_, err := eng.HandleInteraction(s, Interaction{NodeID: "ask", Input: "5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ask", "check", "big"}, transcriptIDs(s))
	assert.True(t, s.Completed, "big has no outgoing edge")
}

func TestCondition_NoMatchingEdgeCompletesFlow(t *testing.T) {
	flow := &models.Flow{
		ID: "half-wired",
		Nodes: []models.Node{
			{ID: "ask", Type: models.NodeSingleInput},
			{ID: "check", Type: models.NodeCondition, Data: models.NodeData{Label: "user_input==\"yes\""}},
			{ID: "onyes", Type: models.NodeText, Data: models.NodeData{Label: "Great"}},
		},
		Edges: []models.Edge{
			{Source: "ask", Target: "check"},
			{Source: "check", Target: "onyes", SourceHandle: "yes"},
		},
	}
	eng := newTestEngine(t, flow)

	s, _ := eng.StartSession(StartOptions{})
	_, err := eng.HandleInteraction(s, Interaction{NodeID: "ask", Input: "no"})
	require.NoError(t, err)
	assert.True(t, s.Completed, "missing \"no\" edge treats the flow as complete")
}

func TestCustomNode_RoutesByOptionHandle(t *testing.T) {
	flow := &models.Flow{
		ID: "options",
		Nodes: []models.Node{
			{ID: "pick", Type: models.NodeCustom, Data: models.NodeData{
				Label:   "Choose one",
				Options: []string{"red", "green", "blue"},
			}},
			{ID: "r", Type: models.NodeText, Data: models.NodeData{Label: "red it is"}},
			{ID: "g", Type: models.NodeText, Data: models.NodeData{Label: "green it is"}},
			{ID: "bl", Type: models.NodeText, Data: models.NodeData{Label: "blue it is"}},
		},
		// Declaration order deliberately scrambled: routing must go by handle.
		Edges: []models.Edge{
			{Source: "pick", Target: "bl", SourceHandle: "option-2"},
			{Source: "pick", Target: "r", SourceHandle: "option-0"},
			{Source: "pick", Target: "g", SourceHandle: "option-1"},
		},
	}
	eng := newTestEngine(t, flow)

	s, _ := eng.StartSession(StartOptions{})
	_, err := eng.HandleInteraction(s, Interaction{NodeID: "pick", Input: "green", OptionIndex: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"pick", "g"}, transcriptIDs(s))
	assert.Equal(t, "green", s.Transcript[0].UserInput)
}

func TestEndNodeFlag_WinsOverOutgoingEdges(t *testing.T) {
	flow := &models.Flow{
		ID: "flagged",
		Nodes: []models.Node{
			{ID: "last", Type: models.NodeSingleInput, Data: models.NodeData{IsEndNode: true}},
			{ID: "unreachable", Type: models.NodeText},
		},
		Edges: []models.Edge{{Source: "last", Target: "unreachable"}},
	}
	eng := newTestEngine(t, flow)

	s, _ := eng.StartSession(StartOptions{})
	_, err := eng.HandleInteraction(s, Interaction{NodeID: "last", Input: "done"})
	require.NoError(t, err)
	assert.True(t, s.Completed)
	assert.Equal(t, []string{"last"}, transcriptIDs(s))
}

func TestHandleInteraction_UnknownNodeLeavesCursorUnchanged(t *testing.T) {
	eng := newTestEngine(t, contactFlow())
	s, _ := eng.StartSession(StartOptions{})

	_, err := eng.HandleInteraction(s, Interaction{NodeID: "nope", Input: "x"})
	assert.Error(t, err)
	assert.Equal(t, "B", s.CurrentNodeID)
	assert.Equal(t, []string{"A", "B"}, transcriptIDs(s))
}

func TestEndToEnd_ContactFlow(t *testing.T) {
	eng := newTestEngine(t, contactFlow())

	s, effects := eng.StartSession(StartOptions{UserID: "owner-1"})
	assert.Empty(t, effects)
	assert.Equal(t, []string{"A", "B"}, transcriptIDs(s))

	effects, err := eng.HandleInteraction(s, Interaction{NodeID: "B", Input: "hello"})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, []string{"A", "B", "C"}, transcriptIDs(s))
	assert.Equal(t, "hello", s.Transcript[1].UserInput)
	assert.Equal(t, "C", s.CurrentNodeID)

	effects, err = eng.HandleInteraction(s, Interaction{
		NodeID: "C",
		Input:  map[string]interface{}{"email": "x@y.com"},
	})
	require.NoError(t, err)
	assert.True(t, s.Completed)

	require.Len(t, effects, 4)
	form, ok := effects[0].(RecordFormSubmission)
	require.True(t, ok)
	assert.Equal(t, "x@y.com", form.UserEmail)
	assert.Equal(t, "C", form.FormID)
	assert.Equal(t, "Contact Form", form.FormName)

	_, ok = effects[1].(RecordTranscript)
	require.True(t, ok)
	mail, ok := effects[2].(SendFormEmail)
	require.True(t, ok)
	assert.Equal(t, "x@y.com", mail.To)
	_, ok = effects[3].(SendSummaryEmail)
	require.True(t, ok)
}

func TestCompletion_OneShotFlagHolds(t *testing.T) {
	eng := newTestEngine(t, contactFlow())
	s, _ := eng.StartSession(StartOptions{})

	_, err := eng.HandleInteraction(s, Interaction{NodeID: "B", Input: "hi"})
	require.NoError(t, err)
	effects, err := eng.HandleInteraction(s, Interaction{
		NodeID: "C",
		Input:  map[string]interface{}{"email": "x@y.com"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, effects)
	assert.True(t, s.NotificationSent)

	// A repeated interaction after completion must not mutate the transcript
	// or re-trigger notification.
	before := len(s.Transcript)
	effects, err = eng.HandleInteraction(s, Interaction{
		NodeID: "C",
		Input:  map[string]interface{}{"email": "x@y.com"},
	})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Len(t, s.Transcript, before)
}

func TestCompletion_SkippedWithoutFormsOrFlag(t *testing.T) {
	flow := &models.Flow{
		ID: "plain",
		Nodes: []models.Node{
			{ID: "q", Type: models.NodeSingleInput},
		},
	}
	eng := newTestEngine(t, flow)

	s, _ := eng.StartSession(StartOptions{})
	effects, err := eng.HandleInteraction(s, Interaction{NodeID: "q", Input: "bye"})
	require.NoError(t, err)
	assert.True(t, s.Completed)
	assert.Empty(t, effects)
	assert.False(t, s.NotificationSent)
}

func TestCompletion_SendEmailOnCompletionFlag(t *testing.T) {
	flow := &models.Flow{
		ID: "flag-only",
		Nodes: []models.Node{
			{ID: "q", Type: models.NodeSingleInput, Data: models.NodeData{SendEmailOnCompletion: true}},
		},
	}
	eng := newTestEngine(t, flow)

	s, _ := eng.StartSession(StartOptions{UserEmail: "fallback@example.com"})
	effects, err := eng.HandleInteraction(s, Interaction{NodeID: "q", Input: "bye"})
	require.NoError(t, err)
	// No form was answered: transcript is persisted and only the owner
	// summary goes out.
	require.Len(t, effects, 2)
	_, ok := effects[0].(RecordTranscript)
	assert.True(t, ok)
	_, ok = effects[1].(SendSummaryEmail)
	assert.True(t, ok)
}

func TestReset_MatchesFreshSessionAndClearsFlag(t *testing.T) {
	eng := newTestEngine(t, contactFlow())

	s, _ := eng.StartSession(StartOptions{})
	_, err := eng.HandleInteraction(s, Interaction{NodeID: "B", Input: "hi"})
	require.NoError(t, err)
	_, err = eng.HandleInteraction(s, Interaction{NodeID: "C", Input: map[string]interface{}{"email": "x@y.com"}})
	require.NoError(t, err)
	require.True(t, s.NotificationSent)

	eng.Reset(s)

	fresh, _ := eng.StartSession(StartOptions{})
	assert.Equal(t, transcriptIDs(fresh), transcriptIDs(s))
	assert.Equal(t, fresh.CurrentNodeID, s.CurrentNodeID)
	assert.False(t, s.Completed)
	assert.False(t, s.NotificationSent)
}

func TestFormEmail_FallsBackToSessionEmail(t *testing.T) {
	flow := contactFlow()
	eng := newTestEngine(t, flow)

	s, _ := eng.StartSession(StartOptions{UserEmail: "session@example.com"})
	_, err := eng.HandleInteraction(s, Interaction{NodeID: "B", Input: "hi"})
	require.NoError(t, err)

	effects, err := eng.HandleInteraction(s, Interaction{
		NodeID: "C",
		Input:  map[string]interface{}{"name": "no email field"},
	})
	require.NoError(t, err)

	var mail *SendFormEmail
	for _, ef := range effects {
		if m, ok := ef.(SendFormEmail); ok {
			mail = &m
		}
	}
	require.NotNil(t, mail)
	assert.Equal(t, "session@example.com", mail.To)
}
