package sources

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"communitybot/pkg/logx"
	"communitybot/pkg/persistence"
)

// batchUploader ships collected documents to storage.
type batchUploader interface {
	UploadBatch(ctx context.Context, docs []Document) []string
}

// RunRecorder persists the outcome of an agent run. The persistence
// store satisfies it; a nil recorder disables run history.
type RunRecorder interface {
	RecordSourceRun(ctx context.Context, run *persistence.SourceRun) error
}

// RunResult summarizes one agent execution.
type RunResult struct {
	AgentID   string
	Success   bool
	Documents int
	Uploaded  int
	Err       string
	Duration  time.Duration
}

// Scheduler runs source agents on their cron schedules and on demand.
type Scheduler struct {
	registry *Registry
	uploader batchUploader
	recorder RunRecorder
	cron     *cron.Cron
	logger   *logx.Logger
}

// NewScheduler wires a scheduler. recorder may be nil.
func NewScheduler(registry *Registry, uploader batchUploader, recorder RunRecorder) *Scheduler {
	return &Scheduler{
		registry: registry,
		uploader: uploader,
		recorder: recorder,
		cron:     cron.New(),
		logger:   logx.NewLogger("scheduler"),
	}
}

// RunAgent executes one collection cycle: health check, collect,
// upload, record. Collection failures are reported in the result, not
// returned; the error return is reserved for unknown agent IDs.
func (s *Scheduler) RunAgent(ctx context.Context, agentID string) (RunResult, error) {
	agent := s.registry.Get(agentID)
	if agent == nil {
		return RunResult{}, logx.Errorf("agent %s not found", agentID)
	}

	s.logger.Info("running agent %s", agentID)
	start := time.Now()

	result := RunResult{AgentID: agentID}
	if err := agent.HealthCheck(ctx); err != nil {
		result.Err = "health check failed: " + err.Error()
	} else if docs, err := agent.Collect(ctx); err != nil {
		result.Err = err.Error()
	} else {
		result.Documents = len(docs)
		if len(docs) > 0 {
			keys := s.uploader.UploadBatch(ctx, docs)
			result.Uploaded = len(keys)
		}
		result.Success = true
	}
	result.Duration = time.Since(start)

	if result.Success {
		s.logger.Info("agent %s collected %d documents, uploaded %d", agentID, result.Documents, result.Uploaded)
	} else {
		s.logger.Error("agent %s failed: %s", agentID, result.Err)
	}
	s.record(ctx, start, result)
	return result, nil
}

func (s *Scheduler) record(ctx context.Context, start time.Time, result RunResult) {
	if s.recorder == nil {
		return
	}
	status := "success"
	if !result.Success {
		status = "error"
	}
	run := &persistence.SourceRun{
		AgentName:  result.AgentID,
		Status:     status,
		Documents:  result.Documents,
		Uploaded:   result.Uploaded,
		Error:      result.Err,
		StartedAt:  start,
		FinishedAt: start.Add(result.Duration),
	}
	if err := s.recorder.RecordSourceRun(ctx, run); err != nil {
		s.logger.Warn("failed to record run for %s: %v", result.AgentID, err)
	}
}

// RunAll executes every registered agent once. One agent failing never
// stops the rest.
func (s *Scheduler) RunAll(ctx context.Context) []RunResult {
	ids := s.registry.IDs()
	results := make([]RunResult, 0, len(ids))
	for _, id := range ids {
		result, err := s.RunAgent(ctx, id)
		if err != nil {
			result = RunResult{AgentID: id, Err: err.Error()}
		}
		results = append(results, result)
	}
	success := 0
	for _, r := range results {
		if r.Success {
			success++
		}
	}
	s.logger.Info("scheduler cycle complete: %d/%d agents succeeded", success, len(results))
	return results
}

// Start registers cron entries for every agent and begins scheduling.
func (s *Scheduler) Start() error {
	for _, id := range s.registry.IDs() {
		agentID := id
		schedule := s.registry.Schedule(agentID)
		if _, err := s.cron.AddFunc(schedule, func() {
			if _, err := s.RunAgent(context.Background(), agentID); err != nil {
				s.logger.Error("scheduled run of %s: %v", agentID, err)
			}
		}); err != nil {
			return logx.Wrap(err, "invalid schedule for agent "+agentID)
		}
	}
	s.cron.Start()
	s.logger.Info("agent scheduler started with %d agents", s.registry.Len())
	return nil
}

// Stop halts scheduling and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("agent scheduler stopped")
}
