package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"chatflow-works/engine/internal/notify"
)

// FormRecord is one submitted form handed to the interaction recorder.
type FormRecord struct {
	UserEmail  string
	FormID     string
	FormName   string
	FlowID     string
	UserID     string
	Date       string // YYYY-MM-DD bucket
	SubmitDate time.Time
	Fields     map[string]interface{}
}

// InteractionRecord is a full transcript snapshot persisted at completion.
type InteractionRecord struct {
	UserID     string
	FlowID     string
	ClientIP   string
	Date       string // YYYY-MM-DD bucket
	Transcript interface{}
}

// Recorder persists transcript snapshots and individual form submissions.
type Recorder interface {
	RecordFormSubmission(ctx context.Context, rec FormRecord) error
	RecordInteraction(ctx context.Context, rec InteractionRecord) (uniqueID string, err error)
}

// Mailer dispatches completion emails on behalf of a flow owner.
type Mailer interface {
	OwnerAddress(ctx context.Context, userID string) (string, error)
	Send(ctx context.Context, userID, to, subject, html, kind string) error
}

// DefaultEffectTimeout bounds each recorder/notifier call so a slow
// collaborator cannot stall the render loop.
const DefaultEffectTimeout = 15 * time.Second

// Dispatcher executes the effects a transition produced. Failures are
// collected and returned as soft warnings: persistence and email errors are
// reported to the caller but never roll back traversal state.
type Dispatcher struct {
	recorder Recorder
	mailer   Mailer
	timeout  time.Duration
}

// NewDispatcher wires a dispatcher to its recorder and mailer. Either may be
// nil, in which case the corresponding effects are skipped with a warning.
func NewDispatcher(recorder Recorder, mailer Mailer) *Dispatcher {
	return &Dispatcher{recorder: recorder, mailer: mailer, timeout: DefaultEffectTimeout}
}

// Apply runs every effect in order against the session it belongs to.
// Completion-email dispatch is awaited here, before the caller declares the
// flow finished, so the one-shot notification flag cannot race a retry.
func (d *Dispatcher) Apply(ctx context.Context, s *Session, effects []Effect) []error {
	var warnings []error
	for _, ef := range effects {
		if err := d.apply(ctx, s, ef); err != nil {
			log.Printf("dispatcher: session %s: %v", s.ID, err)
			warnings = append(warnings, err)
		}
	}
	return warnings
}

func (d *Dispatcher) apply(ctx context.Context, s *Session, ef Effect) error {
	opCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch ev := ef.(type) {
	case RecordFormSubmission:
		if d.recorder == nil {
			return fmt.Errorf("form submission for %s dropped: no recorder configured", ev.FormID)
		}
		now := time.Now()
		err := d.recorder.RecordFormSubmission(opCtx, FormRecord{
			UserEmail:  ev.UserEmail,
			FormID:     ev.FormID,
			FormName:   ev.FormName,
			FlowID:     s.FlowID,
			UserID:     s.UserID,
			Date:       now.Format("2006-01-02"),
			SubmitDate: now,
			Fields:     ev.Fields,
		})
		if err != nil {
			return fmt.Errorf("record form submission: %w", err)
		}

	case RecordTranscript:
		if d.recorder == nil {
			return fmt.Errorf("transcript for flow %s dropped: no recorder configured", s.FlowID)
		}
		_, err := d.recorder.RecordInteraction(opCtx, InteractionRecord{
			UserID:     s.UserID,
			FlowID:     s.FlowID,
			ClientIP:   s.ClientIP,
			Date:       time.Now().Format("2006-01-02"),
			Transcript: s.Transcript,
		})
		if err != nil {
			return fmt.Errorf("record interaction: %w", err)
		}

	case SendFormEmail:
		if d.mailer == nil {
			return fmt.Errorf("form email to %s dropped: no mailer configured", ev.To)
		}
		html := notify.BuildFormConfirmationHTML(s.Transcript)
		if err := d.mailer.Send(opCtx, s.UserID, ev.To, "Form Submission Confirmation", html, "form"); err != nil {
			return fmt.Errorf("send form email: %w", err)
		}

	case SendSummaryEmail:
		if d.mailer == nil {
			return fmt.Errorf("summary email dropped: no mailer configured")
		}
		to, err := d.mailer.OwnerAddress(opCtx, s.UserID)
		if err != nil {
			return fmt.Errorf("resolve owner address: %w", err)
		}
		name := s.FlowName
		if name == "" {
			name = "Chat"
		}
		html := notify.BuildSummaryHTML(s.FlowName, s.Transcript)
		if err := d.mailer.Send(opCtx, s.UserID, to, "Conversation Summary: "+name, html, "completion"); err != nil {
			return fmt.Errorf("send summary email: %w", err)
		}

	default:
		return fmt.Errorf("unknown effect %T", ef)
	}
	return nil
}
