package engine

import (
	"chatflow-works/engine/internal/models"
)

// Session is the per-widget traversal state: the cursor, the transcript and
// the one-shot completion flag. One session is processed one user action at a
// time; independent sessions never share state beyond the read-only flow.
// The struct is JSON-serializable so session stores can persist it between
// HTTP requests.
type Session struct {
	ID            string                   `json:"id"`
	FlowID        string                   `json:"flowId"`
	UserID        string                   `json:"userId"`
	FlowName      string                   `json:"flowName"`
	UserEmail     string                   `json:"userEmail,omitempty"`
	ClientIP      string                   `json:"clientIp,omitempty"`
	CurrentNodeID string                   `json:"currentNodeId"`
	Transcript    []models.TranscriptEntry `json:"transcript"`
	Completed     bool                     `json:"completed"`
	// NotificationSent guards completion handling: it is set the first time
	// completion effects are emitted and cleared only by Reset.
	NotificationSent bool `json:"notificationSent"`
}

// hasAnswered reports whether the transcript records a non-null input for nodeID.
func (s *Session) hasAnswered(nodeID string) bool {
	for i := range s.Transcript {
		if s.Transcript[i].Node.ID == nodeID && s.Transcript[i].Answered() {
			return true
		}
	}
	return false
}

// lastRecordedInput scans the transcript backward for the most recent answered
// singleInput/aiinput entry. Condition nodes evaluate against this value, or
// nil when the user has not typed anything yet.
func (s *Session) lastRecordedInput() interface{} {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		e := &s.Transcript[i]
		if !e.Answered() {
			continue
		}
		if e.Node.Type == models.NodeSingleInput || e.Node.Type == models.NodeAIInput {
			return e.UserInput
		}
	}
	return nil
}

// answeredFormEntries returns the transcript entries of form nodes that were
// submitted, in traversal order.
func (s *Session) answeredFormEntries() []models.TranscriptEntry {
	var out []models.TranscriptEntry
	for _, e := range s.Transcript {
		if e.Node.Type == models.NodeForm && e.Answered() {
			out = append(out, e)
		}
	}
	return out
}
