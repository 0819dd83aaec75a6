package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/dusk-indust/caseflow/internal/caseapi"
	"github.com/dusk-indust/caseflow/internal/orchestrator"
	"github.com/dusk-indust/caseflow/internal/status"
)

const timeLayout = "2006-01-02 15:04:05"

func colorStatus(s caseapi.Status) string {
	switch s {
	case caseapi.StatusCompleted:
		return color.GreenString(string(s))
	case caseapi.StatusError:
		return color.RedString(string(s))
	case caseapi.StatusExtracting, caseapi.StatusValidating, caseapi.StatusGenerating:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func renderStatus(w io.Writer, cs status.CaseStatus, c *caseapi.Case) {
	fmt.Fprintln(w, orchestrator.FormatCaseHeader(caseapi.Summarize(c).Label, cs.ID))
	fmt.Fprintf(w, "Status: %s\n\n", colorStatus(cs.Status))

	table := newTable(w, []string{"", "Stage", "State", "Completed"})
	for _, si := range cs.Stages {
		marker := ""
		state := "pending"
		if si.Complete {
			state = "complete"
		}
		if si.Stage == cs.NextStage {
			marker = "->"
			state = "next"
			if cs.Failed {
				state = "failed"
			}
		}
		at := ""
		if si.CompletedAt != nil {
			at = si.CompletedAt.Local().Format(timeLayout)
		}
		table.Append([]string{marker, si.Name, state, at})
	}
	table.Render()

	if cs.NextStage == "" {
		fmt.Fprintln(w, "All stages complete.")
	}
	if cs.Failed {
		if cs.ErrorContext != "" {
			fmt.Fprintf(w, "Error: %s\n", cs.ErrorContext)
		}
		if stage, ok := status.ResumePoint(c); ok {
			fmt.Fprintf(w, "Resume with 'caseflow resume %s' (restarts at %s).\n", cs.ID, status.Label(stage))
		} else {
			fmt.Fprintln(w, "Nothing to retry: no files were uploaded.")
		}
	}
}

func renderRecent(w io.Writer, recent []caseapi.CaseSummary, currentID string) {
	table := newTable(w, []string{"", "ID", "Label", "Status", "Locations", "Errors", "Warnings", "Updated"})
	for _, s := range recent {
		marker := ""
		if s.ID == currentID {
			marker = "*"
		}
		updated := ""
		if !s.UpdatedAt.IsZero() {
			updated = s.UpdatedAt.Local().Format(timeLayout)
		}
		table.Append([]string{
			marker,
			s.ID,
			s.Label,
			colorStatus(s.Status),
			strconv.Itoa(s.LocationCount),
			strconv.Itoa(s.ErrorCount),
			strconv.Itoa(s.WarningCount),
			updated,
		})
	}
	table.Render()
}

func renderOutcomes(w io.Writer, outcomes []orchestrator.ResumeOutcome) {
	table := newTable(w, []string{"Case", "Result", "Detail"})
	for _, o := range outcomes {
		result := color.GreenString("resumed")
		detail := ""
		if o.Case != nil {
			detail = string(o.Case.Status)
		}
		if o.Err != nil {
			result = color.RedString("failed")
			detail = o.Err.Error()
		}
		table.Append([]string{o.CaseID, result, detail})
	}
	table.Render()
}

func renderPackage(w io.Writer, pkg *caseapi.DownloadPackage) {
	fmt.Fprintf(w, "Case %s: %d generated files\n", pkg.CaseID, pkg.TotalFiles)
	if len(pkg.Files) == 0 {
		return
	}
	table := newTable(w, []string{"Form", "Filename", "Size", "URL"})
	for _, f := range pkg.Files {
		size := ""
		if f.SizeBytes > 0 {
			size = strconv.FormatInt(f.SizeBytes, 10)
		}
		table.Append([]string{f.FormType, f.Filename, size, f.URL})
	}
	table.Render()
}

func renderReport(w io.Writer, r *caseapi.CaseReport) {
	fmt.Fprintln(w, orchestrator.FormatCaseHeader(r.Summary().Label, r.ID))
	valid := color.GreenString("yes")
	if !r.IsValid {
		valid = color.RedString("no")
	}
	table := newTable(w, []string{"Field", "Value"})
	table.AppendBulk([][]string{
		{"Status", colorStatus(r.Status)},
		{"Locations", strconv.Itoa(r.TotalLocations)},
		{"Losses", strconv.Itoa(r.TotalLosses)},
		{"Total TIV", strconv.FormatFloat(r.TotalTIV, 'f', 2, 64)},
		{"Completeness", strconv.FormatFloat(r.Completeness, 'f', 1, 64) + "%"},
		{"Valid", valid},
		{"Errors", strconv.Itoa(r.ErrorCount)},
		{"Warnings", strconv.Itoa(r.WarningCount)},
		{"Created", formatTime(r.CreatedAt)},
		{"Updated", formatTime(r.UpdatedAt)},
	})
	table.Render()
}

// renderStatistics lists counts in pipeline order, then any status the
// client does not know, then the total.
func renderStatistics(w io.Writer, st *caseapi.Statistics) {
	table := newTable(w, []string{"Status", "Cases"})
	seen := make(map[caseapi.Status]bool, len(st.ByStatus))
	for _, s := range caseapi.AllStatuses() {
		seen[s] = true
		n, ok := st.ByStatus[s]
		if !ok {
			continue
		}
		table.Append([]string{colorStatus(s), strconv.Itoa(n)})
	}
	var other []string
	for s := range st.ByStatus {
		if !seen[s] {
			other = append(other, string(s))
		}
	}
	sort.Strings(other)
	for _, s := range other {
		table.Append([]string{s, strconv.Itoa(st.ByStatus[caseapi.Status(s)])})
	}
	table.SetFooter([]string{"Total", strconv.Itoa(st.Total)})
	table.Render()
	if !st.Timestamp.IsZero() {
		fmt.Fprintf(w, "As of %s\n", formatTime(st.Timestamp))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(timeLayout)
}

// printFailure explains a pipeline error, listing validation issues when
// validation blocked generation.
func printFailure(w io.Writer, err error) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %v\n", color.RedString("FAILED"), err)

	var vbe *orchestrator.ValidationBlockedError
	if !errors.As(err, &vbe) {
		return
	}
	for _, is := range vbe.Issues {
		sev := string(is.Severity)
		if is.Blocking {
			sev = color.RedString("blocking")
		}
		fmt.Fprintf(w, "  - [%s] %s: %s\n", sev, is.FieldPath, is.Message)
		if is.SuggestedFix != "" {
			fmt.Fprintf(w, "      fix: %s\n", is.SuggestedFix)
		}
	}
}

// cutAssignment splits "key=value".
func cutAssignment(s string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(s, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return "", "", false
	}
	return strings.TrimSpace(key), value, true
}

// parseAssignments turns key=value arguments into an update payload. Values
// that parse as JSON keep their JSON type.
func parseAssignments(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := cutAssignment(arg)
		if !ok {
			return nil, fmt.Errorf("invalid assignment %q: want key=value", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		fields[key] = v
	}
	return fields, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
