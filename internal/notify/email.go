// Package notify composes and dispatches the completion emails: a form
// submission confirmation to the visitor and a conversation summary to the
// flow owner, both rendered from the session transcript.
package notify

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"

	"chatflow-works/engine/internal/models"
)

var addressRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidAddress reports whether s looks like a deliverable email address.
func ValidAddress(s string) bool {
	return addressRe.MatchString(s)
}

// BuildSummaryHTML renders the full conversation for the owner's summary
// email. Entries of bot-originated nodes (text/custom/condition with no
// recorded input) are labeled "Assistant", everything else "You"; object
// inputs are rendered as key/value lists.
func BuildSummaryHTML(flowName string, transcript []models.TranscriptEntry) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial; max-width: 600px; margin: auto; padding: 20px;">`)
	b.WriteString("<h2>Conversation Summary</h2>")
	if flowName != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(flowName))
	}
	b.WriteString(`<div style="background: #f8f9fa; padding: 15px; border-radius: 8px; margin-top: 15px;">`)
	for i := range transcript {
		writeEntry(&b, &transcript[i])
	}
	b.WriteString("</div>")
	writeFormDetails(&b, transcript)
	b.WriteString("</div>")
	return b.String()
}

// BuildFormConfirmationHTML renders the confirmation mail sent to the address
// captured in the most recent form. It carries the same conversation body as
// the owner summary plus the form submission details.
func BuildFormConfirmationHTML(transcript []models.TranscriptEntry) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial; max-width: 600px; margin: auto; padding: 20px;">`)
	b.WriteString("<h2>Conversation Summary</h2>")
	b.WriteString(`<div style="background: #f8f9fa; padding: 15px; border-radius: 8px; margin-top: 15px;">`)
	for i := range transcript {
		writeEntry(&b, &transcript[i])
	}
	b.WriteString("</div>")
	writeFormDetails(&b, transcript)
	b.WriteString("</div>")
	return b.String()
}

// isBotEntry reports whether the entry renders under the "Assistant" label.
func isBotEntry(e *models.TranscriptEntry) bool {
	switch e.Node.Type {
	case models.NodeText, models.NodeCustom, models.NodeCondition:
		return !e.Answered()
	}
	return false
}

func writeEntry(b *strings.Builder, e *models.TranscriptEntry) {
	speaker := "You"
	if isBotEntry(e) {
		speaker = "Assistant"
	}
	b.WriteString(`<div style="margin-bottom: 10px; padding: 10px; background: white; border-radius: 4px;">`)
	fmt.Fprintf(b, "<strong>%s:</strong> ", speaker)
	if e.Answered() {
		b.WriteString(renderInput(e.UserInput))
	} else if e.Node.Data.Label != "" {
		b.WriteString(html.EscapeString(e.Node.Data.Label))
	} else {
		b.WriteString("No message")
	}
	b.WriteString("</div>")
}

func writeFormDetails(b *strings.Builder, transcript []models.TranscriptEntry) {
	var forms []*models.TranscriptEntry
	for i := range transcript {
		if transcript[i].Node.Type == models.NodeForm && transcript[i].Answered() {
			forms = append(forms, &transcript[i])
		}
	}
	if len(forms) == 0 {
		return
	}
	b.WriteString(`<div style="margin-top: 20px;"><h3>Form Submission Details</h3>`)
	for _, e := range forms {
		b.WriteString(`<div style="background: #e9ecef; padding: 10px; border-radius: 4px; margin-top: 10px;">`)
		if fields, ok := e.UserInput.(map[string]interface{}); ok {
			for _, k := range sortedKeys(fields) {
				fmt.Fprintf(b, "<div><strong>%s:</strong> %s</div>",
					html.EscapeString(k), html.EscapeString(fmt.Sprint(fields[k])))
			}
		} else {
			b.WriteString(html.EscapeString(fmt.Sprint(e.UserInput)))
		}
		b.WriteString("</div>")
	}
	b.WriteString("</div>")
}

// renderInput formats a captured input: object values become key/value lists,
// scalars are escaped verbatim.
func renderInput(v interface{}) string {
	fields, ok := v.(map[string]interface{})
	if !ok {
		return html.EscapeString(fmt.Sprint(v))
	}
	var b strings.Builder
	b.WriteString(`<ul style="list-style: none; padding: 0; margin: 8px 0 0 0;">`)
	for _, k := range sortedKeys(fields) {
		fmt.Fprintf(&b, "<li><strong>%s:</strong> %s</li>",
			html.EscapeString(k), html.EscapeString(fmt.Sprint(fields[k])))
	}
	b.WriteString("</ul>")
	return b.String()
}

// sortedKeys keeps field rendering deterministic.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
