package jobs

import (
	"strings"
	"time"
)

// Stage is a job lifecycle state.
type Stage string

const (
	StageQueued        Stage = "queued"
	StageTranscribing  Stage = "transcribing"
	StageSummarizing   Stage = "summarizing"
	StageGeneratingPDF Stage = "generating_pdf"
	StageCompleted     Stage = "completed"
	StageError         Stage = "error"
)

// Source identifies the ingestion channel that produced a job.
type Source string

const (
	SourceWeb       Source = "web"
	SourceBluetooth Source = "bluetooth"
	SourceCLI       Source = "cli"
)

// InterruptedReason is recorded on jobs that were running when the daemon stopped.
const InterruptedReason = "interrupted by restart"

var allStages = []Stage{
	StageQueued,
	StageTranscribing,
	StageSummarizing,
	StageGeneratingPDF,
	StageCompleted,
	StageError,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

// allowed lists forward transitions. Staying in the same stage is always
// permitted (progress updates within a stage).
var allowed = map[Stage][]Stage{
	StageQueued:        {StageTranscribing, StageError},
	StageTranscribing:  {StageSummarizing, StageError},
	StageSummarizing:   {StageGeneratingPDF, StageError},
	StageGeneratingPDF: {StageCompleted, StageError},
	StageCompleted:     {},
	StageError:         {StageQueued},
}

// ParseStage normalizes user input into a Stage.
func ParseStage(value string) (Stage, bool) {
	stage := Stage(strings.ToLower(strings.TrimSpace(value)))
	_, ok := stageSet[stage]
	return stage, ok
}

// AllStages returns every known stage in lifecycle order.
func AllStages() []Stage {
	out := make([]Stage, len(allStages))
	copy(out, allStages)
	return out
}

// IsTerminal reports whether no further transitions are expected.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageError
}

// CanTransition reports whether a job may move from one stage to another.
func CanTransition(from, to Stage) bool {
	if from == to {
		return true
	}
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job is one audio file's traversal through the pipeline.
type Job struct {
	ID             string // base identifier: <uid8>_<stem>
	Source         Source
	OriginalName   string
	RawPath        string
	AudioPath      string
	Stage          Stage
	Progress       int
	Message        string
	Language       string
	ErrorMessage   string
	FailureKind    string
	TranscriptPath string
	SummaryPath    string
	ReportPath     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// QuarantineState describes where a quarantined file is in its retry cycle.
type QuarantineState string

const (
	QuarantinePending   QuarantineState = "pending"
	QuarantineRetrying  QuarantineState = "retrying"
	QuarantineAbandoned QuarantineState = "abandoned"
)

// QuarantineEntry records a failed drop-directory job awaiting retry.
type QuarantineEntry struct {
	ID           int64
	JobID        string
	OriginalName string
	IntakePath   string
	Attempts     int
	LastError    string
	State        QuarantineState
	NextRetryAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Failure describes one failed run being recorded in quarantine.
type Failure struct {
	JobID        string
	OriginalName string
	IntakePath   string
	Error        string
}
