// Package engine implements the conversation traversal state machine: given a
// flow graph, a transcript and a user action it computes the next node,
// applies auto-advance and branching rules, and decides when the conversation
// has terminated.
package engine

import (
	"fmt"

	"github.com/google/uuid"

	"chatflow-works/engine/internal/models"
)

// Engine traverses a single flow. The flow is validated once at construction
// and treated as immutable afterwards, so one Engine can serve any number of
// concurrent sessions.
type Engine struct {
	flow *models.Flow
}

// New validates the flow graph and returns an engine for it. Malformed graphs
// (empty node list, duplicate ids) are session-fatal and rejected here.
func New(flow *models.Flow) (*Engine, error) {
	if flow == nil {
		return nil, fmt.Errorf("engine: nil flow")
	}
	if err := flow.Validate(); err != nil {
		return nil, err
	}
	return &Engine{flow: flow}, nil
}

// Flow returns the graph this engine traverses.
func (e *Engine) Flow() *models.Flow { return e.flow }

// StartOptions carries the caller-supplied identity of a new session.
type StartOptions struct {
	SessionID string // generated when empty
	UserID    string
	UserEmail string // session-level fallback for form confirmation mail
	ClientIP  string
}

// Interaction is one user action against the current node.
type Interaction struct {
	NodeID string
	// Input is the captured value: a string for singleInput/aiinput and
	// custom options, a map of field values for forms, nil for bare advances.
	Input interface{}
	// OptionIndex selects the "option-<i>" edge of a custom node.
	OptionIndex *int
}

// StartSession creates a fresh session positioned at the flow's start node and
// runs the auto-advance pass. The returned effects are non-empty only when the
// flow completes immediately (a graph of nothing but text nodes, say).
func (e *Engine) StartSession(opt StartOptions) (*Session, []Effect) {
	id := opt.SessionID
	if id == "" {
		id = uuid.New().String()
	}
	start := e.flow.StartNode()
	s := &Session{
		ID:            id,
		FlowID:        e.flow.ID,
		UserID:        opt.UserID,
		FlowName:      e.flow.Name,
		UserEmail:     opt.UserEmail,
		ClientIP:      opt.ClientIP,
		CurrentNodeID: start.ID,
		Transcript:    []models.TranscriptEntry{{Node: *start}},
	}
	return s, e.autoAdvance(s)
}

// Reset rebuilds the session from scratch: fresh transcript at the start
// node, completion and one-shot notification flags cleared, auto-advance
// re-run. The returned effects follow the same rules as StartSession.
func (e *Engine) Reset(s *Session) []Effect {
	start := e.flow.StartNode()
	s.Completed = false
	s.NotificationSent = false
	s.CurrentNodeID = start.ID
	s.Transcript = []models.TranscriptEntry{{Node: *start}}
	return e.autoAdvance(s)
}

// HandleInteraction processes a user response to the node identified by
// in.NodeID: it fills the pending transcript entry, emits a form-recording
// effect when applicable, detects end-of-flow, resolves the next edge and
// re-runs the auto-advance pass. On error the cursor is left unchanged; the
// effects accumulated so far are still returned since the recorder must see
// a form submission even when the graph turns out to be inconsistent.
func (e *Engine) HandleInteraction(s *Session, in Interaction) ([]Effect, error) {
	if s.Completed {
		return nil, nil
	}

	node, ok := e.flow.FindNode(in.NodeID)
	if !ok {
		return nil, fmt.Errorf("engine: node %q not found", in.NodeID)
	}

	// Fill the pending entry for this node; append defensively when the
	// transcript has none (should not normally occur).
	filled := false
	for i := range s.Transcript {
		if s.Transcript[i].Node.ID == in.NodeID && !s.Transcript[i].Answered() {
			s.Transcript[i].UserInput = in.Input
			filled = true
			break
		}
	}
	if !filled {
		s.Transcript = append(s.Transcript, models.TranscriptEntry{Node: *node, UserInput: in.Input})
	}

	var effects []Effect
	if node.Type == models.NodeForm {
		fields, _ := in.Input.(map[string]interface{})
		effects = append(effects, RecordFormSubmission{
			UserEmail: formEmail(fields, s.UserEmail),
			FormID:    node.ID,
			FormName:  s.FlowName,
			Fields:    fields,
		})
	}

	if node.Data.IsEndNode || len(e.flow.OutgoingEdges(node.ID)) == 0 {
		return append(effects, e.complete(s, node)...), nil
	}

	edge := e.resolveNextEdge(s, node, in)
	if edge == nil {
		return append(effects, e.complete(s, node)...), nil
	}
	next, ok := e.flow.FindNode(edge.Target)
	if !ok {
		return effects, fmt.Errorf("engine: edge target %q not found", edge.Target)
	}

	s.CurrentNodeID = next.ID
	s.Transcript = append(s.Transcript, models.TranscriptEntry{Node: *next})
	if next.AutoAdvances() {
		effects = append(effects, e.autoAdvance(s)...)
	}
	return effects, nil
}

// resolveNextEdge picks the outgoing edge a user response routes through.
func (e *Engine) resolveNextEdge(s *Session, node *models.Node, in Interaction) *models.Edge {
	if node.Type == models.NodeCustom && in.OptionIndex != nil {
		return e.flow.EdgeFrom(node.ID, fmt.Sprintf("option-%d", *in.OptionIndex))
	}
	if node.Type == models.NodeCondition {
		return e.conditionEdge(s, node)
	}
	edge := e.flow.FirstEdgeFrom(node.ID)
	if edge == nil {
		return nil
	}
	if _, ok := e.flow.FindNode(edge.Target); !ok {
		return nil
	}
	return edge
}

// conditionEdge evaluates the node's expression against the last recorded
// input and selects the "yes" or "no" edge.
func (e *Engine) conditionEdge(s *Session, node *models.Node) *models.Edge {
	expr := node.Data.Label
	if expr == "" {
		expr = "false"
	}
	handle := "no"
	if Evaluate(expr, s.lastRecordedInput()) {
		handle = "yes"
	}
	return e.flow.EdgeFrom(node.ID, handle)
}

// autoAdvance steps through text and condition nodes until a node requires
// input, no edge resolves, or the node was already answered. The pass is a
// bounded synchronous loop: a per-pass visited set treats revisiting a node
// as flow completion, so even a pathological text→text cycle terminates.
func (e *Engine) autoAdvance(s *Session) []Effect {
	visited := make(map[string]bool)
	cur, ok := e.flow.FindNode(s.CurrentNodeID)
	for ok && cur.AutoAdvances() && !s.hasAnswered(cur.ID) {
		if visited[cur.ID] {
			return e.complete(s, cur)
		}
		visited[cur.ID] = true

		var edge *models.Edge
		if cur.Type == models.NodeCondition {
			edge = e.conditionEdge(s, cur)
		} else {
			edge = e.flow.FirstEdgeFrom(cur.ID)
		}
		if edge == nil {
			return e.complete(s, cur)
		}
		next, found := e.flow.FindNode(edge.Target)
		if !found {
			return e.complete(s, cur)
		}

		s.CurrentNodeID = next.ID
		s.Transcript = append(s.Transcript, models.TranscriptEntry{Node: *next})
		cur = next
	}
	return nil
}

// complete transitions the session to the terminal state and, once per
// session, emits the completion effects: persist the transcript, mail the
// form confirmation to the captured address and the conversation summary to
// the flow owner. Notification fires only when at least one form was answered
// or the terminal node carries the sendEmailOnCompletion flag.
func (e *Engine) complete(s *Session, terminal *models.Node) []Effect {
	s.Completed = true

	forms := s.answeredFormEntries()
	if s.NotificationSent {
		return nil
	}
	if len(forms) == 0 && !terminal.Data.SendEmailOnCompletion {
		return nil
	}
	s.NotificationSent = true

	effects := []Effect{RecordTranscript{}}
	if len(forms) > 0 {
		fields, _ := forms[len(forms)-1].UserInput.(map[string]interface{})
		if to := formEmail(fields, s.UserEmail); to != "" {
			effects = append(effects, SendFormEmail{To: to})
		}
	}
	return append(effects, SendSummaryEmail{})
}

// formEmail extracts the email field of a form submission, falling back to
// the session-level address.
func formEmail(fields map[string]interface{}, fallback string) string {
	if v, ok := fields["email"].(string); ok && v != "" {
		return v
	}
	return fallback
}
