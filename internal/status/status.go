package status

import (
	"time"

	"github.com/dusk-indust/caseflow/internal/caseapi"
)

// StageInfo describes the completion state of a single stage.
type StageInfo struct {
	Stage       caseapi.Stage
	Name        string // human-readable name (e.g. "Extraction")
	Complete    bool
	CompletedAt *time.Time // nil when incomplete or when the service keeps no timestamp
}

// CaseStatus holds the derived stage view of one case.
type CaseStatus struct {
	ID           string
	Status       caseapi.Status
	Stages       []StageInfo
	NextStage    caseapi.Stage // empty if all complete
	Failed       bool
	ErrorContext string
}

// pipelineStages are the stages that leave an artifact on the case.
var pipelineStages = []caseapi.Stage{
	caseapi.StageUpload,
	caseapi.StageExtract,
	caseapi.StageValidate,
	caseapi.StageGenerate,
}

var stageLabels = map[caseapi.Stage]string{
	caseapi.StageUpload:   "Upload",
	caseapi.StageExtract:  "Extraction",
	caseapi.StageValidate: "Validation",
	caseapi.StageGenerate: "Generation",
}

// Label returns the human-readable name of stage.
func Label(stage caseapi.Stage) string {
	if l, ok := stageLabels[stage]; ok {
		return l
	}
	return string(stage)
}

// Describe derives per-stage completion from artifact presence. Status alone
// is not enough: a case in error may have finished several stages.
func Describe(c *caseapi.Case) CaseStatus {
	cs := CaseStatus{
		ID:           c.ID,
		Status:       c.Status,
		Failed:       c.Status == caseapi.StatusError,
		ErrorContext: c.ErrorContext(),
	}

	for _, stage := range pipelineStages {
		done, at := completion(c, stage)
		cs.Stages = append(cs.Stages, StageInfo{
			Stage:       stage,
			Name:        Label(stage),
			Complete:    done,
			CompletedAt: at,
		})
		if !done && cs.NextStage == "" {
			cs.NextStage = stage
		}
	}
	return cs
}

func completion(c *caseapi.Case, stage caseapi.Stage) (bool, *time.Time) {
	switch stage {
	case caseapi.StageUpload:
		return c.HasUploads(), nil
	case caseapi.StageExtract:
		return c.ExtractedAt != nil, c.ExtractedAt
	case caseapi.StageValidate:
		return c.ValidatedAt != nil, c.ValidatedAt
	case caseapi.StageGenerate:
		return c.GeneratedAt != nil || c.Status == caseapi.StatusCompleted, c.GeneratedAt
	}
	return false, nil
}

// ResumePoint returns the first stage a retry must re-run, judged by artifact
// presence in this order: an extraction timestamp means validation onwards,
// uploaded files mean extraction onwards. ok is false when nothing was ever
// uploaded. The case status is not consulted.
func ResumePoint(c *caseapi.Case) (stage caseapi.Stage, ok bool) {
	switch {
	case c.ExtractedAt != nil:
		return caseapi.StageValidate, true
	case c.HasUploads():
		return caseapi.StageExtract, true
	default:
		return "", false
	}
}

// StagesFrom returns the pipeline stages from stage through generation.
// Upload is never returned because a retry cannot re-send files.
func StagesFrom(stage caseapi.Stage) []caseapi.Stage {
	for i, s := range pipelineStages {
		if s == stage && s != caseapi.StageUpload {
			return append([]caseapi.Stage(nil), pipelineStages[i:]...)
		}
	}
	return nil
}
