package export

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/caseflow/internal/caseapi"
)

// lifecycle lists the forward edges of the case lifecycle.
var lifecycle = [][2]caseapi.Status{
	{caseapi.StatusDraft, caseapi.StatusUploaded},
	{caseapi.StatusUploaded, caseapi.StatusExtracting},
	{caseapi.StatusExtracting, caseapi.StatusExtracted},
	{caseapi.StatusExtracted, caseapi.StatusValidating},
	{caseapi.StatusValidating, caseapi.StatusValidated},
	{caseapi.StatusValidated, caseapi.StatusGenerating},
	{caseapi.StatusGenerating, caseapi.StatusCompleted},
}

// GenerateMermaid produces a Mermaid stateDiagram-v2 of the case lifecycle.
// When c is non-nil, statuses whose artifacts exist are styled as done and
// the case's current status is highlighted.
func GenerateMermaid(c *caseapi.Case) string {
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")
	sb.WriteString(fmt.Sprintf("  [*] --> %s\n", caseapi.StatusDraft))

	for _, e := range lifecycle {
		sb.WriteString(fmt.Sprintf("  %s --> %s\n", e[0], e[1]))
	}
	sb.WriteString(fmt.Sprintf("  %s --> [*]\n", caseapi.StatusCompleted))

	// Failure edges: any non-terminal status may fail.
	for _, s := range caseapi.AllStatuses() {
		if s.IsTerminal() {
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s --> %s\n", s, caseapi.StatusError))
	}

	// Retry re-entry edges.
	sb.WriteString(fmt.Sprintf("  %s --> %s : resume\n", caseapi.StatusError, caseapi.StatusExtracting))
	sb.WriteString(fmt.Sprintf("  %s --> %s : resume\n", caseapi.StatusError, caseapi.StatusValidating))

	if c == nil {
		return sb.String()
	}

	sb.WriteString("  classDef done fill:#d4edda,stroke:#28a745\n")
	sb.WriteString("  classDef current fill:#fff3cd,stroke:#ffc107,stroke-width:3px\n")
	sb.WriteString("  classDef failed fill:#f8d7da,stroke:#dc3545,stroke-width:3px\n")

	var done []string
	for _, s := range reached(c) {
		if s != c.Status {
			done = append(done, string(s))
		}
	}
	if len(done) > 0 {
		sb.WriteString(fmt.Sprintf("  class %s done\n", strings.Join(done, ",")))
	}

	class := "current"
	if c.Status == caseapi.StatusError {
		class = "failed"
	}
	if c.Status.Valid() {
		sb.WriteString(fmt.Sprintf("  class %s %s\n", c.Status, class))
	}

	return sb.String()
}

// reached returns the settled statuses whose artifacts exist on c.
func reached(c *caseapi.Case) []caseapi.Status {
	out := []caseapi.Status{caseapi.StatusDraft}
	if c.HasUploads() {
		out = append(out, caseapi.StatusUploaded)
	}
	if c.ExtractedAt != nil {
		out = append(out, caseapi.StatusExtracted)
	}
	if c.ValidatedAt != nil {
		out = append(out, caseapi.StatusValidated)
	}
	if c.GeneratedAt != nil || c.Status == caseapi.StatusCompleted {
		out = append(out, caseapi.StatusCompleted)
	}
	return out
}
