package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CZERTAINLY/Ingestor/internal/log"
)

// TaskError is a module failure together with the task it failed on.
type TaskError struct {
	Kind    TaskKind
	Subject string
	FileID  int64
	ModuleError
}

func (e TaskError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Subject, e.ModuleError)
}

// JobExecutor owns the pipelines of one job and drives it through its
// stages. Stage and the current data source pipeline change only with
// stageMu held. Methods ending in Locked expect stageMu held and report
// whether the job reached shut down, the caller notifies the job after
// unlocking.
type JobExecutor struct {
	job        *Job
	sched      *Scheduler
	svc        Services
	templates  pipelineTemplates
	createTime time.Time

	ctx       context.Context
	cancelCtx context.CancelFunc
	jc        *JobContext

	stageMu      sync.Mutex
	stage        Stage
	stages       []Stage
	currentDS    *Pipeline[DataSource]
	finalStatus  JobStatus
	shuttingDown atomic.Bool

	highDS     *Pipeline[DataSource]
	lowDS      *Pipeline[DataSource]
	files      *pipelinePool[*File]
	artifactMu sync.Mutex
	artifacts  *Pipeline[DataArtifact]

	cancelled atomic.Bool
	cancelCh  chan struct{}
	reasonMu  sync.Mutex
	reason    CancelReason

	dsModMu            sync.Mutex
	dsModCancel        context.CancelFunc
	dsModCancelled     bool
	cancelledDSModules []string

	processed atomic.Int64
	estimated atomic.Int64
	progress  *progressReporter

	errMu sync.Mutex
	errs  []TaskError
}

func newJobExecutor(ctx context.Context, job *Job, sched *Scheduler, svc Services, classify Classifier, fileWorkers int) (*JobExecutor, error) {
	ds := job.ds
	jobCtx := log.ContextAttrs(context.WithoutCancel(ctx), slog.Group("ingest",
		slog.Int64("job_id", job.id),
		slog.String("data_source", ds.Name()),
		slog.Int64("data_source_id", ds.ID()),
	))

	e := &JobExecutor{
		job:        job,
		sched:      sched,
		svc:        svc,
		createTime: time.Now(),
		stage:      StagePipelinesStartUp,
		stages:     []Stage{StagePipelinesStartUp},
		templates:  sortTemplates(job.settings.Templates, job.settings.Pipelines, classify),
		cancelCh:   make(chan struct{}),
	}
	e.ctx, e.cancelCtx = context.WithCancel(jobCtx)
	e.jc = &JobContext{e: e}

	if err := e.buildPipelines(max(fileWorkers, 1)); err != nil {
		e.cancelCtx()
		return nil, err
	}
	if svc.Progress != nil {
		e.progress = newProgressReporter(svc.Progress(ds.Name()))
	}
	return e, nil
}

func newDataSourceModule(t Template) (DataSourceModule, error) {
	return t.Factory.(DataSourceModuleFactory).NewDataSourceModule()
}

func newFileModule(t Template) (FileModule, error) {
	return t.Factory.(FileModuleFactory).NewFileModule()
}

func newDataArtifactModule(t Template) (DataArtifactModule, error) {
	return t.Factory.(DataArtifactModuleFactory).NewDataArtifactModule()
}

func buildModules[P any](templates []Template, create func(Template) (Processor[P], error)) ([]namedModule[P], error) {
	ret := make([]namedModule[P], 0, len(templates))
	for _, t := range templates {
		m, err := create(t)
		if err != nil {
			return nil, fmt.Errorf("creating ingest module %s: %w", t.Name(), err)
		}
		ret = append(ret, namedModule[P]{name: t.Name(), module: m})
	}
	return ret, nil
}

func (e *JobExecutor) buildPipelines(fileWorkers int) error {
	high, err := buildModules(e.templates.highPriorityDataSource, newDataSourceModule)
	if err != nil {
		return err
	}
	low, err := buildModules(e.templates.lowPriorityDataSource, newDataSourceModule)
	if err != nil {
		return err
	}
	artifacts, err := buildModules(e.templates.dataArtifact, newDataArtifactModule)
	if err != nil {
		return err
	}

	filePipelines := make([]*Pipeline[*File], 0, fileWorkers)
	for range fileWorkers {
		mods, err := buildModules(e.templates.file, newFileModule)
		if err != nil {
			return err
		}
		filePipelines = append(filePipelines, newPipeline("file", e.jc, mods, e.cancelled.Load))
	}

	e.highDS = newPipeline("high priority data source", e.jc, high, e.cancelled.Load)
	e.highDS.scope = e.dataSourceModuleScope
	e.lowDS = newPipeline("low priority data source", e.jc, low, e.cancelled.Load)
	e.lowDS.scope = e.dataSourceModuleScope
	e.files = newPipelinePool(filePipelines)
	e.artifacts = newPipeline("data artifact", e.jc, artifacts, e.cancelled.Load)
	return nil
}

func (e *JobExecutor) JobID() int64 {
	return e.job.id
}

func (e *JobExecutor) hasHighPriorityDataSourceModules() bool {
	return !e.highDS.IsEmpty()
}

func (e *JobExecutor) hasLowPriorityDataSourceModules() bool {
	return !e.lowDS.IsEmpty()
}

func (e *JobExecutor) hasFileModules() bool {
	return !e.files.isEmpty()
}

func (e *JobExecutor) hasDataArtifactModules() bool {
	return !e.artifacts.IsEmpty()
}

func (e *JobExecutor) acceptFile(f *File) bool {
	if f.Unallocated && !e.job.settings.ProcessUnallocated {
		return false
	}
	if e.job.settings.Filter != nil && !e.job.settings.Filter.Match(f) {
		return false
	}
	return true
}

// startUp starts every pipeline and begins the first stage. When a
// pipeline fails all pipelines are shut down, the job finishes cancelled and
// every start up failure is returned.
func (e *JobExecutor) startUp() error {
	if errs := e.startUpPipelines(); len(errs) > 0 {
		e.setCancelled(ModulesStartUpFailed)
		e.cancelCtx()
		e.stageMu.Lock()
		shut := e.shutDownLocked(false)
		e.stageMu.Unlock()
		if shut {
			e.notifyJob()
		}
		return &StartUpError{Errs: errs}
	}

	e.recordStart()
	e.job.setStatus(StatusStarted)

	switch {
	case e.hasHighPriorityDataSourceModules() || e.hasFileModules() || e.hasDataArtifactModules():
		if e.job.mode == ModeStreaming && e.startStreaming() {
			break
		}
		e.startBatch()
	case e.hasLowPriorityDataSourceModules():
		e.stageMu.Lock()
		e.startLowPriorityLocked()
		e.stageMu.Unlock()
	default:
		e.stageMu.Lock()
		shut := e.shutDownLocked(true)
		e.stageMu.Unlock()
		if shut {
			e.notifyJob()
		}
	}
	return nil
}

func startUpPipeline[P any](e *JobExecutor, p *Pipeline[P]) []error {
	errs := p.StartUp(e.ctx)
	if len(errs) > 0 {
		shutDownPipeline(e, p)
		for _, err := range errs {
			slog.ErrorContext(e.ctx, "ingest pipeline start up failed", "pipeline", p.Name(), "error", err)
		}
	}
	return errs
}

func shutDownPipeline[P any](e *JobExecutor, p *Pipeline[P]) {
	e.shuttingDown.Store(true)
	defer e.shuttingDown.Store(false)
	p.ShutDown(context.WithoutCancel(e.ctx))
}

func (e *JobExecutor) startUpPipelines() []error {
	var errs []error
	errs = append(errs, startUpPipeline(e, e.highDS)...)
	errs = append(errs, startUpPipeline(e, e.lowDS)...)
	for _, p := range e.files.pipelines() {
		if perrs := startUpPipeline(e, p); len(perrs) > 0 {
			errs = append(errs, perrs...)
			break
		}
	}
	errs = append(errs, startUpPipeline(e, e.artifacts)...)
	if len(errs) > 0 {
		e.shutDownAllPipelines()
	}
	return errs
}

func (e *JobExecutor) shutDownAllPipelines() {
	shutDownPipeline(e, e.highDS)
	shutDownPipeline(e, e.lowDS)
	for _, p := range e.files.pipelines() {
		shutDownPipeline(e, p)
	}
	shutDownPipeline(e, e.artifacts)
}

func (e *JobExecutor) transitionLocked(to Stage) bool {
	if !isValidTransition(e.stage, to) {
		slog.ErrorContext(e.ctx, "invalid ingest stage transition", "from", e.stage.String(), "to", to.String())
		return false
	}
	slog.DebugContext(e.ctx, "ingest stage transition", "from", e.stage.String(), "to", to.String())
	e.stage = to
	e.stages = append(e.stages, to)
	return true
}

func (e *JobExecutor) countFiles() int64 {
	n, err := e.svc.Content.CountFiles(e.ctx, e.job.ds.ID())
	if err != nil {
		slog.ErrorContext(e.ctx, "counting data source files failed", "error", err)
		return 0
	}
	return n
}

func (e *JobExecutor) scheduleExistingArtifacts() {
	artifacts, err := e.svc.Blackboard.Artifacts(e.ctx, e.job.ds.ID())
	if err != nil {
		slog.ErrorContext(e.ctx, "reading data artifacts failed", "error", err)
		return
	}
	e.sched.ScheduleDataArtifactTasks(e, artifacts)
}

func (e *JobExecutor) startFileAndHighPriorityProgressLocked() {
	if e.hasHighPriorityDataSourceModules() {
		e.progress.start(BarDataSource, e.job.ds.Name()+" (data source analysis)", e.cancelModuleAsync)
	}
	if e.hasFileModules() {
		e.progress.start(BarFile, e.job.ds.Name()+" (file analysis)", e.cancelAsync)
		e.progress.determinate(BarFile, e.estimated.Load())
	}
	if e.hasDataArtifactModules() {
		e.progress.start(BarDataArtifact, e.job.ds.Name()+" (data artifact analysis)", e.cancelAsync)
	}
}

func (e *JobExecutor) startBatch() {
	e.stageMu.Lock()
	e.transitionLocked(StageFileAndHighPriorityDataSourceAnalysis)
	e.currentDS = e.highDS

	subset := e.job.files
	if len(subset) > 0 {
		e.estimated.Store(int64(len(subset)))
	} else {
		e.estimated.Store(e.countFiles())
	}
	e.startFileAndHighPriorityProgressLocked()

	// a job cancelled while starting up schedules nothing and finishes below
	cancelled := e.cancelled.Load()
	if e.hasHighPriorityDataSourceModules() && !cancelled {
		e.sched.ScheduleDataSourceTask(e)
	}
	if e.hasFileModules() && !cancelled {
		files := subset
		if len(files) == 0 {
			var err error
			files, err = e.svc.Content.Files(e.ctx, e.job.ds.ID())
			if err != nil {
				slog.ErrorContext(e.ctx, "listing data source files failed", "error", err)
			}
		}
		n := e.sched.ScheduleFileTasks(e, files)
		slog.DebugContext(e.ctx, "file tasks scheduled", "count", n)
	}
	if e.hasDataArtifactModules() && len(subset) == 0 && !cancelled {
		e.scheduleExistingArtifacts()
	}

	shut := e.checkForStageCompletedLocked()
	e.stageMu.Unlock()
	if shut {
		e.notifyJob()
	}
}

// startStreaming enters the streaming stage. A job cancelled before it
// got here is not streamed and startStreaming reports false.
func (e *JobExecutor) startStreaming() bool {
	e.stageMu.Lock()
	defer e.stageMu.Unlock()
	if e.cancelled.Load() {
		return false
	}
	e.transitionLocked(StageStreamedFileAnalysisOnly)
	e.estimated.Store(0)
	if e.hasFileModules() {
		e.progress.start(BarFile, e.job.ds.Name()+" (file analysis)", e.cancelAsync)
	}
	if e.hasDataArtifactModules() {
		e.progress.start(BarDataArtifact, e.job.ds.Name()+" (data artifact analysis)", e.cancelAsync)
		e.scheduleExistingArtifacts()
	}
	return true
}

func (e *JobExecutor) startLowPriorityLocked() {
	if !e.transitionLocked(StageLowPriorityDataSourceAnalysis) {
		return
	}
	e.currentDS = e.lowDS
	e.progress.start(BarDataSource, e.job.ds.Name()+" (data source analysis)", e.cancelModuleAsync)
	e.sched.ScheduleDataSourceTask(e)
}

// AddStreamedFiles queues files of a streaming job by id.
func (e *JobExecutor) AddStreamedFiles(ids []int64) error {
	e.stageMu.Lock()
	defer e.stageMu.Unlock()
	if e.cancelled.Load() {
		return nil
	}
	if e.stage != StageStreamedFileAnalysisOnly {
		slog.ErrorContext(e.ctx, "adding streamed files not supported", "stage", e.stage.String())
		return fmt.Errorf("adding streamed files in stage %s: %w", e.stage, ErrUnexpectedStage)
	}
	if !e.hasFileModules() {
		return nil
	}
	e.sched.ScheduleStreamedFileTasks(e, ids)
	return nil
}

// AddStreamedDataSource ends the streaming stage and schedules the data
// source task.
func (e *JobExecutor) AddStreamedDataSource() error {
	e.stageMu.Lock()
	if e.stage != StageStreamedFileAnalysisOnly {
		stage := e.stage
		e.stageMu.Unlock()
		if e.cancelled.Load() {
			// never streamed, or already past streaming
			return nil
		}
		slog.ErrorContext(e.ctx, "adding streamed data source not supported", "stage", stage.String())
		return fmt.Errorf("adding streamed data source in stage %s: %w", stage, ErrUnexpectedStage)
	}
	e.transitionLocked(StageFileAndHighPriorityDataSourceAnalysis)
	e.currentDS = e.highDS
	e.estimated.Store(e.countFiles())
	if e.hasHighPriorityDataSourceModules() {
		e.progress.start(BarDataSource, e.job.ds.Name()+" (data source analysis)", e.cancelModuleAsync)
	}
	e.progress.determinate(BarFile, e.estimated.Load())
	if e.hasHighPriorityDataSourceModules() && !e.cancelled.Load() {
		e.sched.ScheduleDataSourceTask(e)
	}
	shut := e.checkForStageCompletedLocked()
	e.stageMu.Unlock()
	if shut {
		e.notifyJob()
	}
	return nil
}

// AddFiles queues derived files ahead of the job's other files.
func (e *JobExecutor) AddFiles(files []*File) error {
	e.stageMu.Lock()
	var err error
	switch e.stage {
	case StageStreamedFileAnalysisOnly, StageFileAndHighPriorityDataSourceAnalysis:
		if e.hasFileModules() && !e.cancelled.Load() {
			n := e.sched.FastTrackFileTasks(e, files)
			if e.stage == StageFileAndHighPriorityDataSourceAnalysis && n > 0 {
				e.progress.determinate(BarFile, e.estimated.Add(int64(n)))
			}
		}
	default:
		slog.ErrorContext(e.ctx, "adding files not supported", "stage", e.stage.String(), "count", len(files))
		err = fmt.Errorf("adding files in stage %s: %w", e.stage, ErrUnexpectedStage)
	}
	shut := e.checkForStageCompletedLocked()
	e.stageMu.Unlock()
	if shut {
		e.notifyJob()
	}
	return err
}

// AddDataArtifacts queues artifacts for the data artifact pipeline.
func (e *JobExecutor) AddDataArtifacts(artifacts []DataArtifact) error {
	e.stageMu.Lock()
	var err error
	switch e.stage {
	case StageStreamedFileAnalysisOnly, StageFileAndHighPriorityDataSourceAnalysis, StageLowPriorityDataSourceAnalysis:
		if e.hasDataArtifactModules() && !e.cancelled.Load() {
			e.sched.ScheduleDataArtifactTasks(e, artifacts)
		}
	default:
		slog.ErrorContext(e.ctx, "adding data artifacts not supported", "stage", e.stage.String(), "count", len(artifacts))
		err = fmt.Errorf("adding data artifacts in stage %s: %w", e.stage, ErrUnexpectedStage)
	}
	shut := e.checkForStageCompletedLocked()
	e.stageMu.Unlock()
	if shut {
		e.notifyJob()
	}
	return err
}

func (e *JobExecutor) execute(t *Task) {
	defer e.taskCompleted(t)
	switch t.kind {
	case DataSourceTask:
		e.executeDataSourceTask()
	case FileTask:
		e.executeFileTask(t)
	case DataArtifactTask:
		e.executeDataArtifactTask(t)
	}
}

func (e *JobExecutor) taskCompleted(t *Task) {
	e.sched.NotifyTaskCompleted(t)
	e.checkForStageCompleted()
}

func (e *JobExecutor) executeDataSourceTask() {
	if e.cancelled.Load() {
		return
	}
	e.stageMu.Lock()
	p := e.currentDS
	e.stageMu.Unlock()
	if p == nil || p.IsEmpty() {
		return
	}
	errs := p.PerformTask(e.ctx, e.job.ds)
	e.recordErrors(e.ctx, DataSourceTask, e.job.ds.Name(), 0, errs)
}

func (e *JobExecutor) executeFileTask(t *Task) {
	if e.cancelled.Load() {
		return
	}
	p, release, err := e.files.borrow(e.ctx)
	if err != nil {
		slog.WarnContext(e.ctx, "file task abandoned", "file_id", t.fileID, "error", err)
		return
	}
	defer release()
	if p.IsEmpty() {
		return
	}

	f := t.file
	if f == nil {
		f, err = e.svc.Content.File(e.ctx, t.fileID)
		if err != nil {
			slog.ErrorContext(e.ctx, "resolving file failed", "file_id", t.fileID, "error", err)
			return
		}
		if !e.acceptFile(f) {
			return
		}
	}

	ctx := log.ContextAttrs(e.ctx, slog.Group("file",
		slog.Int64("id", f.ID),
		slog.String("path", f.Path),
	))
	e.progress.fileStarted(f.Path, e.processed.Add(1), e.estimated.Load())
	errs := p.PerformTask(ctx, f)
	e.progress.fileFinished(f.Path)
	e.recordErrors(ctx, FileTask, f.Path, f.ID, errs)
}

func (e *JobExecutor) executeDataArtifactTask(t *Task) {
	if e.cancelled.Load() {
		return
	}
	e.artifactMu.Lock()
	defer e.artifactMu.Unlock()
	if e.artifacts.IsEmpty() {
		return
	}
	ctx := log.ContextAttrs(e.ctx, slog.Group("artifact",
		slog.Int64("id", t.artifact.ID),
		slog.String("type", t.artifact.Type),
	))
	errs := e.artifacts.PerformTask(ctx, t.artifact)
	e.recordErrors(ctx, DataArtifactTask, t.artifact.Type, t.artifact.FileID, errs)
}

func (e *JobExecutor) recordErrors(ctx context.Context, kind TaskKind, subject string, fileID int64, errs []error) {
	if len(errs) == 0 {
		return
	}
	e.errMu.Lock()
	defer e.errMu.Unlock()
	for _, err := range errs {
		if errors.Is(err, ErrJobCancelled) {
			continue
		}
		var me ModuleError
		if !errors.As(err, &me) {
			me = ModuleError{Err: err}
		}
		slog.ErrorContext(ctx, "ingest module failed", "module", me.Module, "error", me.Err)
		e.errs = append(e.errs, TaskError{
			Kind:        kind,
			Subject:     subject,
			FileID:      fileID,
			ModuleError: me,
		})
	}
}

func (e *JobExecutor) checkForStageCompleted() {
	e.stageMu.Lock()
	shut := e.checkForStageCompletedLocked()
	e.stageMu.Unlock()
	if shut {
		e.notifyJob()
	}
}

// checkForStageCompletedLocked advances the job when the scheduler has no
// outstanding task for it. Nothing happens while files are streamed in.
func (e *JobExecutor) checkForStageCompletedLocked() bool {
	switch e.stage {
	case StageFileAndHighPriorityDataSourceAnalysis, StageLowPriorityDataSourceAnalysis:
	default:
		return false
	}
	if !e.sched.CurrentTasksAreCompleted(e.job.id) {
		return false
	}
	if e.stage == StageFileAndHighPriorityDataSourceAnalysis {
		return e.finishFileAndHighPriorityLocked()
	}
	return e.shutDownLocked(true)
}

func (e *JobExecutor) finishFileAndHighPriorityLocked() bool {
	shutDownPipeline(e, e.highDS)
	for _, p := range e.files.pipelines() {
		shutDownPipeline(e, p)
	}
	e.progress.finish(BarDataSource)
	e.progress.finish(BarFile)
	if e.hasLowPriorityDataSourceModules() && !e.cancelled.Load() {
		e.startLowPriorityLocked()
		return false
	}
	return e.shutDownLocked(true)
}

// shutDownLocked shuts down what is still running and records the end of
// the job. No task of the job runs once the scheduler reported completion,
// so the artifact pipeline is shut down without its lock.
func (e *JobExecutor) shutDownLocked(record bool) bool {
	if !e.transitionLocked(StagePipelinesShutDown) {
		return false
	}
	e.currentDS = nil
	e.shutDownAllPipelines()

	e.finalStatus = StatusCompleted
	if e.cancelled.Load() {
		e.finalStatus = StatusCancelled
	}
	if record {
		e.recordEnd(e.finalStatus)
	}
	slog.InfoContext(e.ctx, "ingest job finished",
		"status", e.finalStatus.String(),
		"processed", e.processed.Load(),
		"errors", len(e.Errors()),
	)
	return true
}

func (e *JobExecutor) notifyJob() {
	e.progress.close()
	e.cancelCtx()
	e.job.finish(e.finalStatus)
}

func (e *JobExecutor) recordStart() {
	if e.svc.Recorder == nil {
		return
	}
	info := JobInfo{
		ID:           e.job.id,
		DataSourceID: e.job.ds.ID(),
		Context:      e.job.settings.Context,
	}
	seen := make(map[string]struct{})
	for _, list := range [][]Template{
		e.templates.highPriorityDataSource,
		e.templates.lowPriorityDataSource,
		e.templates.file,
		e.templates.dataArtifact,
	} {
		for _, t := range list {
			if _, ok := seen[t.Name()]; ok {
				continue
			}
			seen[t.Name()] = struct{}{}
			info.Modules = append(info.Modules, ModuleInfo{
				Name:    t.Name(),
				Version: t.Factory.Version(),
				Type:    t.Type(),
			})
		}
	}
	if err := e.svc.Recorder.RecordJobStart(e.ctx, info, time.Now()); err != nil {
		slog.ErrorContext(e.ctx, "recording ingest job start failed", "error", err)
	}
}

func (e *JobExecutor) recordEnd(status JobStatus) {
	if e.svc.Recorder == nil {
		return
	}
	ctx := context.WithoutCancel(e.ctx)
	if err := e.svc.Recorder.RecordJobEnd(ctx, e.job.id, status, time.Now()); err != nil {
		slog.ErrorContext(ctx, "recording ingest job end failed", "error", err)
	}
}

func (e *JobExecutor) setCancelled(reason CancelReason) {
	if e.cancelled.CompareAndSwap(false, true) {
		e.reasonMu.Lock()
		e.reason = reason
		e.reasonMu.Unlock()
		close(e.cancelCh)
	}
}

// Cancel stops the job. Queued files are dropped and low priority analysis
// is skipped. Running module calls are not interrupted, they finish and the
// pipeline stops before its next module. Paused modules wake up. The first
// reason given is kept.
func (e *JobExecutor) Cancel(reason CancelReason) {
	e.setCancelled(reason)
	e.progress.cancelling(e.CancelReason())
	if n := e.sched.CancelPendingFileTasks(e.job.id); n > 0 {
		slog.InfoContext(e.ctx, "pending file tasks cancelled", "count", n)
	}
	e.checkForStageCompleted()
}

func (e *JobExecutor) cancelAsync() {
	go e.Cancel(UserCancelled)
}

func (e *JobExecutor) cancelModuleAsync() {
	go e.CancelCurrentDataSourceModule()
}

func (e *JobExecutor) IsCancelled() bool {
	return e.cancelled.Load()
}

func (e *JobExecutor) CancelReason() CancelReason {
	e.reasonMu.Lock()
	defer e.reasonMu.Unlock()
	return e.reason
}

// CancelCurrentDataSourceModule cancels the context of the data source
// module being run, if any.
func (e *JobExecutor) CancelCurrentDataSourceModule() {
	e.dsModMu.Lock()
	defer e.dsModMu.Unlock()
	if e.dsModCancel == nil {
		return
	}
	e.dsModCancelled = true
	e.dsModCancel()
}

func (e *JobExecutor) dataSourceModuleCancelled() bool {
	e.dsModMu.Lock()
	defer e.dsModMu.Unlock()
	return e.dsModCancelled
}

func (e *JobExecutor) dataSourceModuleScope(ctx context.Context, module string) (context.Context, func()) {
	mctx, cancel := context.WithCancel(ctx)
	e.dsModMu.Lock()
	e.dsModCancel = cancel
	e.dsModCancelled = false
	e.dsModMu.Unlock()
	return mctx, func() {
		e.dsModMu.Lock()
		if e.dsModCancelled && !e.cancelled.Load() {
			e.cancelledDSModules = append(e.cancelledDSModules, module)
			slog.InfoContext(ctx, "data source module cancelled", "module", module)
		}
		e.dsModCancel = nil
		e.dsModCancelled = false
		e.dsModMu.Unlock()
		cancel()
	}
}

func (e *JobExecutor) Stage() Stage {
	e.stageMu.Lock()
	defer e.stageMu.Unlock()
	return e.stage
}

func (e *JobExecutor) Stages() []Stage {
	e.stageMu.Lock()
	defer e.stageMu.Unlock()
	return slices.Clone(e.stages)
}

func (e *JobExecutor) Errors() []TaskError {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return slices.Clone(e.errs)
}

func (e *JobExecutor) modules() PipelineModules {
	ret := PipelineModules{
		HighPriorityDataSource: e.highDS.ModuleNames(),
		LowPriorityDataSource:  e.lowDS.ModuleNames(),
		DataArtifact:           e.artifacts.ModuleNames(),
	}
	if ps := e.files.pipelines(); len(ps) > 0 {
		ret.File = ps[0].ModuleNames()
	}
	return ret
}

func (e *JobExecutor) Snapshot(withTasks bool) Snapshot {
	e.stageMu.Lock()
	stage := e.stage
	ds := e.currentDS
	e.stageMu.Unlock()

	s := Snapshot{
		JobID:          e.job.id,
		DataSource:     e.job.ds.Name(),
		Mode:           e.job.mode,
		Stage:          stage,
		CreateTime:     e.createTime,
		SnapshotTime:   time.Now(),
		Cancelled:      e.cancelled.Load(),
		CancelReason:   e.CancelReason(),
		ProcessedFiles: e.processed.Load(),
		EstimatedFiles: e.estimated.Load(),
		Errors:         len(e.Errors()),
	}
	if ds != nil {
		if name, since, ok := ds.CurrentModule(); ok {
			s.CurrentDataSourceModule = name
			s.CurrentDataSourceModuleStart = since
		}
	}
	if e.hasFileModules() {
		for _, p := range e.files.pipelines() {
			if !p.IsRunning() {
				continue
			}
			s.FileIngestRunning = true
			if st := p.StartTime(); s.FileIngestStartTime.IsZero() || st.Before(s.FileIngestStartTime) {
				s.FileIngestStartTime = st
			}
		}
	}
	e.dsModMu.Lock()
	s.CancelledDataSourceModules = slices.Clone(e.cancelledDSModules)
	e.dsModMu.Unlock()
	if withTasks {
		t := e.sched.TasksSnapshot(e.job.id)
		s.Tasks = &t
	}
	return s
}
