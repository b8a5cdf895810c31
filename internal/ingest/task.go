package ingest

import "fmt"

type TaskKind int

const (
	DataSourceTask TaskKind = iota
	FileTask
	DataArtifactTask
	numTaskKinds
)

func (k TaskKind) String() string {
	switch k {
	case DataSourceTask:
		return "data_source"
	case FileTask:
		return "file"
	case DataArtifactTask:
		return "data_artifact"
	default:
		return fmt.Sprintf("TaskKind(%d)", int(k))
	}
}

// taskOwner is the executor a task belongs to.
type taskOwner interface {
	JobID() int64
	acceptFile(f *File) bool
	execute(t *Task)
}

// Task is one unit of work of one job. Which payload fields are set
// depends on the kind. Streamed file tasks carry only the file id.
type Task struct {
	kind     TaskKind
	owner    taskOwner
	fileID   int64
	file     *File
	artifact DataArtifact
}

func newDataSourceTask(owner taskOwner) *Task {
	return &Task{kind: DataSourceTask, owner: owner}
}

func newFileTask(owner taskOwner, f *File) *Task {
	return &Task{kind: FileTask, owner: owner, fileID: f.ID, file: f}
}

func newStreamedFileTask(owner taskOwner, id int64) *Task {
	return &Task{kind: FileTask, owner: owner, fileID: id}
}

func newDataArtifactTask(owner taskOwner, a DataArtifact) *Task {
	return &Task{kind: DataArtifactTask, owner: owner, artifact: a}
}

func (t *Task) Kind() TaskKind {
	return t.kind
}

func (t *Task) JobID() int64 {
	return t.owner.JobID()
}

// FileID is the id of the file of a file task.
func (t *Task) FileID() int64 {
	return t.fileID
}

// Artifact is the payload of a data artifact task.
func (t *Task) Artifact() DataArtifact {
	return t.artifact
}

// Execute runs the task on its owning job. Modules run with the context of
// the job.
func (t *Task) Execute() {
	t.owner.execute(t)
}
