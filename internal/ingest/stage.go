package ingest

import (
	"fmt"
	"slices"
)

// Stage is the lifecycle state of a job executor.
type Stage int

const (
	StagePipelinesStartUp Stage = iota
	// StageStreamedFileAnalysisOnly is used by streaming jobs until the
	// producer closes the stream.
	StageStreamedFileAnalysisOnly
	StageFileAndHighPriorityDataSourceAnalysis
	StageLowPriorityDataSourceAnalysis
	StagePipelinesShutDown
)

func (s Stage) String() string {
	switch s {
	case StagePipelinesStartUp:
		return "pipelines_start_up"
	case StageStreamedFileAnalysisOnly:
		return "streamed_file_analysis_only"
	case StageFileAndHighPriorityDataSourceAnalysis:
		return "file_and_high_priority_data_source_analysis"
	case StageLowPriorityDataSourceAnalysis:
		return "low_priority_data_source_analysis"
	case StagePipelinesShutDown:
		return "pipelines_shut_down"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

var stageTransitions = map[Stage][]Stage{
	StagePipelinesStartUp: {
		StageStreamedFileAnalysisOnly,
		StageFileAndHighPriorityDataSourceAnalysis,
		StageLowPriorityDataSourceAnalysis,
		StagePipelinesShutDown,
	},
	StageStreamedFileAnalysisOnly: {
		StageFileAndHighPriorityDataSourceAnalysis,
	},
	StageFileAndHighPriorityDataSourceAnalysis: {
		StageLowPriorityDataSourceAnalysis,
		StagePipelinesShutDown,
	},
	StageLowPriorityDataSourceAnalysis: {
		StagePipelinesShutDown,
	},
}

func isValidTransition(from, to Stage) bool {
	return slices.Contains(stageTransitions[from], to)
}

// Mode selects how files enter a job.
type Mode int

const (
	ModeBatch Mode = iota
	ModeStreaming
)

func (m Mode) String() string {
	if m == ModeStreaming {
		return "streaming"
	}
	return "batch"
}

type CancelReason int

const (
	NotCancelled CancelReason = iota
	UserCancelled
	ModulesStartUpFailed
	ServicesDown
	CaseClosed
)

func (r CancelReason) String() string {
	switch r {
	case NotCancelled:
		return "not_cancelled"
	case UserCancelled:
		return "user_cancelled"
	case ModulesStartUpFailed:
		return "modules_start_up_failed"
	case ServicesDown:
		return "services_down"
	case CaseClosed:
		return "case_closed"
	default:
		return fmt.Sprintf("CancelReason(%d)", int(r))
	}
}

type JobStatus int

const (
	StatusPending JobStatus = iota
	StatusStarted
	StatusCompleted
	StatusCancelled
)

func (s JobStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStarted:
		return "started"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("JobStatus(%d)", int(s))
	}
}
