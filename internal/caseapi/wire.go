package caseapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// wireTimeLayouts are tried in order. The service emits naive UTC ISO-8601
// timestamps (no zone designator), which time.Time's own decoder rejects.
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// wireTime decodes the timestamp formats the service emits.
type wireTime struct {
	time.Time
}

func (t *wireTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range wireTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("caseapi: unrecognised timestamp %q", s)
}

func (t *wireTime) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// UnmarshalJSON decodes a case document, accepting naive timestamps.
func (c *Case) UnmarshalJSON(data []byte) error {
	type alias Case
	aux := struct {
		*alias
		CreatedAt   wireTime  `json:"created_at"`
		UpdatedAt   wireTime  `json:"updated_at"`
		ExtractedAt *wireTime `json:"extracted_at"`
		ValidatedAt *wireTime `json:"validated_at"`
		GeneratedAt *wireTime `json:"generated_at"`
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.CreatedAt = aux.CreatedAt.Time
	c.UpdatedAt = aux.UpdatedAt.Time
	c.ExtractedAt = aux.ExtractedAt.ptr()
	c.ValidatedAt = aux.ValidatedAt.ptr()
	c.GeneratedAt = aux.GeneratedAt.ptr()
	return nil
}

// UnmarshalJSON decodes the create response, accepting naive timestamps.
func (r *CreateResponse) UnmarshalJSON(data []byte) error {
	type alias CreateResponse
	aux := struct {
		*alias
		CreatedAt wireTime `json:"created_at"`
	}{alias: (*alias)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.CreatedAt = aux.CreatedAt.Time
	return nil
}

// UnmarshalJSON decodes the download package, accepting naive timestamps.
func (p *DownloadPackage) UnmarshalJSON(data []byte) error {
	type alias DownloadPackage
	aux := struct {
		*alias
		CompletedAt *wireTime `json:"completed_at"`
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.CompletedAt = aux.CompletedAt.ptr()
	return nil
}

// summaryDoc is the list-endpoint shape of a case summary.
type summaryDoc struct {
	ID                      string   `json:"id"`
	Status                  Status   `json:"status"`
	ClientName              string   `json:"client_name"`
	ApplicantName           string   `json:"applicant_name"`
	TotalLocations          int      `json:"total_locations"`
	ValidationErrorsCount   int      `json:"validation_errors_count"`
	ValidationWarningsCount int      `json:"validation_warnings_count"`
	CreatedAt               wireTime `json:"created_at"`
	UpdatedAt               wireTime `json:"updated_at"`
}

func (d summaryDoc) summary() CaseSummary {
	var applicant *Applicant
	if d.ApplicantName != "" {
		applicant = &Applicant{BusinessName: d.ApplicantName}
	}
	return CaseSummary{
		ID:            d.ID,
		Status:        d.Status,
		Label:         label(d.ClientName, applicant, d.ID),
		LocationCount: d.TotalLocations,
		ErrorCount:    d.ValidationErrorsCount,
		WarningCount:  d.ValidationWarningsCount,
		CreatedAt:     d.CreatedAt.Time,
		UpdatedAt:     d.UpdatedAt.Time,
	}
}

// listDoc is the list-endpoint body. Older deployments name the array
// "submissions".
type listDoc struct {
	Cases       []summaryDoc `json:"cases"`
	Submissions []summaryDoc `json:"submissions"`
	Total       int          `json:"total"`
	Limit       int          `json:"limit"`
}

func (d listDoc) response() *ListResponse {
	docs := d.Cases
	if len(docs) == 0 {
		docs = d.Submissions
	}
	out := &ListResponse{
		Cases: make([]CaseSummary, 0, len(docs)),
		Total: d.Total,
		Limit: d.Limit,
	}
	for _, doc := range docs {
		out.Cases = append(out.Cases, doc.summary())
	}
	return out
}

// unwrapResult returns the "result" member of a {message, result} envelope,
// or body unchanged when there is no envelope.
func unwrapResult(body []byte) []byte {
	var env struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return body
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return body
	}
	return env.Result
}

// UnmarshalJSON decodes a case report, accepting naive timestamps.
func (r *CaseReport) UnmarshalJSON(data []byte) error {
	type alias CaseReport
	aux := struct {
		*alias
		CreatedAt wireTime `json:"created_at"`
		UpdatedAt wireTime `json:"updated_at"`
	}{alias: (*alias)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.CreatedAt = aux.CreatedAt.Time
	r.UpdatedAt = aux.UpdatedAt.Time
	return nil
}

// statisticsDoc is the statistics-endpoint body.
type statisticsDoc struct {
	Statistics struct {
		Total    int            `json:"total"`
		ByStatus map[Status]int `json:"by_status"`
	} `json:"statistics"`
	Timestamp wireTime `json:"timestamp"`
}

func (d statisticsDoc) statistics() *Statistics {
	by := d.Statistics.ByStatus
	if by == nil {
		by = map[Status]int{}
	}
	return &Statistics{
		Total:     d.Statistics.Total,
		ByStatus:  by,
		Timestamp: d.Timestamp.Time,
	}
}
