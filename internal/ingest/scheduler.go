package ingest

import (
	"context"
	"sync"
)

type taskCounts struct {
	pending [numTaskKinds]int
	running [numTaskKinds]int
}

func (c *taskCounts) zero() bool {
	for k := range numTaskKinds {
		if c.pending[k] != 0 || c.running[k] != 0 {
			return false
		}
	}
	return true
}

// TasksSnapshot are the task counts of one job.
type TasksSnapshot struct {
	DataSourceQueued    int
	DataSourceRunning   int
	FileQueued          int
	FileRunning         int
	DataArtifactQueued  int
	DataArtifactRunning int
}

// Scheduler queues the tasks of all running jobs. Workers take tasks of one
// kind in round robin order across jobs and every taken task must be
// reported back with NotifyTaskCompleted.
type Scheduler struct {
	mu     sync.Mutex
	queues [numTaskKinds]*fairQueue
	counts map[int64]*taskCounts
	ready  [numTaskKinds]chan struct{}
}

func NewScheduler() *Scheduler {
	s := &Scheduler{counts: make(map[int64]*taskCounts)}
	for k := range numTaskKinds {
		s.queues[k] = newFairQueue()
		s.ready[k] = make(chan struct{}, 1)
	}
	return s
}

func (s *Scheduler) countsLocked(jobID int64) *taskCounts {
	c, ok := s.counts[jobID]
	if !ok {
		c = &taskCounts{}
		s.counts[jobID] = c
	}
	return c
}

func (s *Scheduler) signal(kind TaskKind) {
	select {
	case s.ready[kind] <- struct{}{}:
	default:
	}
}

func (s *Scheduler) enqueue(kind TaskKind, jobID int64, tasks []*Task, front bool) {
	if len(tasks) == 0 {
		return
	}
	s.mu.Lock()
	if front {
		s.queues[kind].pushFront(jobID, tasks)
	} else {
		for _, t := range tasks {
			s.queues[kind].push(t)
		}
	}
	s.countsLocked(jobID).pending[kind] += len(tasks)
	s.mu.Unlock()
	s.signal(kind)
}

func fileTasks(owner taskOwner, files []*File) []*Task {
	tasks := make([]*Task, 0, len(files))
	for _, f := range files {
		if f == nil || !owner.acceptFile(f) {
			continue
		}
		tasks = append(tasks, newFileTask(owner, f))
	}
	return tasks
}

// ScheduleDataSourceTask queues the data source task of the job.
func (s *Scheduler) ScheduleDataSourceTask(owner taskOwner) {
	s.enqueue(DataSourceTask, owner.JobID(), []*Task{newDataSourceTask(owner)}, false)
}

// ScheduleFileTasks queues the files accepted by the job and returns how
// many were queued.
func (s *Scheduler) ScheduleFileTasks(owner taskOwner, files []*File) int {
	tasks := fileTasks(owner, files)
	s.enqueue(FileTask, owner.JobID(), tasks, false)
	return len(tasks)
}

// ScheduleStreamedFileTasks queues files known only by id. They are
// resolved and filtered when executed.
func (s *Scheduler) ScheduleStreamedFileTasks(owner taskOwner, ids []int64) int {
	tasks := make([]*Task, len(ids))
	for i, id := range ids {
		tasks[i] = newStreamedFileTask(owner, id)
	}
	s.enqueue(FileTask, owner.JobID(), tasks, false)
	return len(tasks)
}

// FastTrackFileTasks queues files ahead of the job's other queued files.
func (s *Scheduler) FastTrackFileTasks(owner taskOwner, files []*File) int {
	tasks := fileTasks(owner, files)
	s.enqueue(FileTask, owner.JobID(), tasks, true)
	return len(tasks)
}

func (s *Scheduler) ScheduleDataArtifactTasks(owner taskOwner, artifacts []DataArtifact) int {
	tasks := make([]*Task, len(artifacts))
	for i, a := range artifacts {
		tasks[i] = newDataArtifactTask(owner, a)
	}
	s.enqueue(DataArtifactTask, owner.JobID(), tasks, false)
	return len(tasks)
}

// CancelPendingFileTasks drops the job's file tasks not taken yet.
func (s *Scheduler) CancelPendingFileTasks(jobID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.queues[FileTask].removeJob(jobID)
	if c, ok := s.counts[jobID]; ok {
		c.pending[FileTask] -= n
		if c.zero() {
			delete(s.counts, jobID)
		}
	}
	return n
}

// CurrentTasksAreCompleted reports whether the job has no queued and no
// running tasks.
func (s *Scheduler) CurrentTasksAreCompleted(jobID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counts[jobID]
	return !ok || c.zero()
}

func (s *Scheduler) NotifyTaskCompleted(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := t.JobID()
	c, ok := s.counts[id]
	if !ok || c.running[t.kind] == 0 {
		return
	}
	c.running[t.kind]--
	if c.zero() {
		delete(s.counts, id)
	}
}

// Take blocks until a task of kind is available or ctx is done.
func (s *Scheduler) Take(ctx context.Context, kind TaskKind) (*Task, error) {
	for {
		s.mu.Lock()
		t, ok := s.queues[kind].pop()
		var more bool
		if ok {
			c := s.countsLocked(t.JobID())
			c.pending[kind]--
			c.running[kind]++
			more = s.queues[kind].len() > 0
		}
		s.mu.Unlock()
		if ok {
			if more {
				s.signal(kind)
			}
			return t, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.ready[kind]:
		}
	}
}

func (s *Scheduler) TasksSnapshot(jobID int64) TasksSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counts[jobID]
	if !ok {
		return TasksSnapshot{}
	}
	return TasksSnapshot{
		DataSourceQueued:    c.pending[DataSourceTask],
		DataSourceRunning:   c.running[DataSourceTask],
		FileQueued:          c.pending[FileTask],
		FileRunning:         c.running[FileTask],
		DataArtifactQueued:  c.pending[DataArtifactTask],
		DataArtifactRunning: c.running[DataArtifactTask],
	}
}
