package engine

// The traversal engine never performs I/O itself. Transitions return a list
// of effects — side-effecting intents the caller executes against the
// interaction recorder and the completion notifier. This keeps transitions
// deterministic and unit-testable without network behavior.

// Effect is a side-effecting intent produced by a transition.
type Effect interface {
	effect()
}

// RecordFormSubmission asks the caller to persist one submitted form. Emitted
// before the traversal continues past the form node.
type RecordFormSubmission struct {
	UserEmail string
	FormID    string
	FormName  string
	Fields    map[string]interface{}
}

// RecordTranscript asks the caller to persist the session's full transcript.
// Emitted once, at flow completion.
type RecordTranscript struct{}

// SendFormEmail asks the caller to mail a form-submission confirmation to the
// address captured in the most recent form.
type SendFormEmail struct {
	To string
}

// SendSummaryEmail asks the caller to mail the full conversation summary to
// the flow owner's configured SMTP address.
type SendSummaryEmail struct{}

func (RecordFormSubmission) effect() {}
func (RecordTranscript) effect()     {}
func (SendFormEmail) effect()        {}
func (SendSummaryEmail) effect()     {}
