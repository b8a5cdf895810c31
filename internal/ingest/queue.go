package ingest

import "slices"

// fairQueue serves tasks round robin across jobs, FIFO within a job.
type fairQueue struct {
	byJob map[int64][]*Task
	order []int64
	next  int
	n     int
}

func newFairQueue() *fairQueue {
	return &fairQueue{byJob: make(map[int64][]*Task)}
}

func (q *fairQueue) len() int {
	return q.n
}

func (q *fairQueue) jobLen(jobID int64) int {
	return len(q.byJob[jobID])
}

func (q *fairQueue) push(t *Task) {
	id := t.JobID()
	if _, ok := q.byJob[id]; !ok {
		q.order = append(q.order, id)
	}
	q.byJob[id] = append(q.byJob[id], t)
	q.n++
}

// pushFront puts tasks ahead of the job's queued tasks keeping their order.
func (q *fairQueue) pushFront(jobID int64, tasks []*Task) {
	if len(tasks) == 0 {
		return
	}
	if _, ok := q.byJob[jobID]; !ok {
		q.order = append(q.order, jobID)
	}
	q.byJob[jobID] = append(slices.Clone(tasks), q.byJob[jobID]...)
	q.n += len(tasks)
}

func (q *fairQueue) pop() (*Task, bool) {
	if len(q.order) == 0 {
		return nil, false
	}
	i := q.next % len(q.order)
	id := q.order[i]
	tasks := q.byJob[id]
	t := tasks[0]
	tasks[0] = nil
	tasks = tasks[1:]
	q.n--
	if len(tasks) == 0 {
		delete(q.byJob, id)
		q.order = slices.Delete(q.order, i, i+1)
		q.next = i
	} else {
		q.byJob[id] = tasks
		q.next = i + 1
	}
	return t, true
}

// removeJob drops every queued task of the job and returns how many.
func (q *fairQueue) removeJob(jobID int64) int {
	tasks, ok := q.byJob[jobID]
	if !ok {
		return 0
	}
	delete(q.byJob, jobID)
	i := slices.Index(q.order, jobID)
	q.order = slices.Delete(q.order, i, i+1)
	if q.next > i {
		q.next--
	}
	q.n -= len(tasks)
	return len(tasks)
}
