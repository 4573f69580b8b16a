package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/http/middleware"
	"github.com/xavierca1/leadflow/internal/usecase"
)

const (
	JobInitialMessages = "initial_messages"
	JobFollowups       = "followups"
)

// LeadProcessor is the part of usecase.LeadLifecycle the scheduler drives.
type LeadProcessor interface {
	SendInitialMessage(ctx context.Context, lead *entity.Lead) (usecase.SendOutcome, error)
	ProcessFollowup(ctx context.Context, lead *entity.Lead) (usecase.SendOutcome, error)
	RetryLater(ctx context.Context, lead *entity.Lead, kind entity.DueKind)
}

type Config struct {
	Interval   time.Duration
	BatchLimit int
	Window     SendWindow
}

type BatchResult struct {
	Job     string `json:"job"`
	Skipped bool   `json:"skipped"`
	Found   int    `json:"found"`
	Sent    int    `json:"sent"`
	Aborted int    `json:"aborted"`
	Failed  int    `json:"failed"`
}

// Scheduler polls the store for due leads and hands them to the lifecycle.
// Ticks, admin triggers and the CLI all go through RunInitialMessages and
// RunFollowups, and runs never overlap.
type Scheduler struct {
	repo      entity.LeadRepositoryInterface
	lifecycle LeadProcessor
	cfg       Config
	now       func() time.Time
	log       *zap.Logger

	runMu sync.Mutex

	stateMu sync.Mutex
	cancel  context.CancelFunc
}

func NewScheduler(repo entity.LeadRepositoryInterface, lifecycle LeadProcessor, cfg Config, now func() time.Time, log *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	if cfg.Window.Location == nil {
		cfg.Window.Location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{repo: repo, lifecycle: lifecycle, cfg: cfg, now: now, log: log}
}

// Start launches the periodic jobs. Calling it while running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.loop(runCtx)

	s.log.Info("scheduler_started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("window_start_hour", s.cfg.Window.StartHour),
		zap.Int("window_end_hour", s.cfg.Window.EndHour),
		zap.String("timezone", s.cfg.Window.Location.String()),
	)
}

// Stop cancels the periodic jobs without waiting for an in-flight run.
func (s *Scheduler) Stop() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.log.Info("scheduler_stopped")
}

func (s *Scheduler) Running() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context) {
	initialTicker := time.NewTicker(s.cfg.Interval)
	defer initialTicker.Stop()
	followupTicker := time.NewTicker(s.cfg.Interval)
	defer followupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-initialTicker.C:
			s.tick(ctx, JobInitialMessages, s.RunInitialMessages)
		case <-followupTicker.C:
			s.tick(ctx, JobFollowups, s.RunFollowups)
		}
	}
}

// Gateway calls of a started run are not cut short by Stop.
func (s *Scheduler) tick(ctx context.Context, job string, run func(context.Context) (BatchResult, error)) {
	if _, err := run(context.WithoutCancel(ctx)); err != nil {
		s.log.Error("scheduler_tick_failed", zap.String("job", job), zap.Error(err))
	}
}

func (s *Scheduler) RunInitialMessages(ctx context.Context) (BatchResult, error) {
	return s.run(ctx, JobInitialMessages, entity.DueInitialMessage, s.lifecycle.SendInitialMessage)
}

func (s *Scheduler) RunFollowups(ctx context.Context) (BatchResult, error) {
	return s.run(ctx, JobFollowups, entity.DueFollowup, s.lifecycle.ProcessFollowup)
}

type processFunc func(context.Context, *entity.Lead) (usecase.SendOutcome, error)

func (s *Scheduler) run(ctx context.Context, job string, kind entity.DueKind, process processFunc) (BatchResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	result := BatchResult{Job: job}
	now := s.now()

	if !s.cfg.Window.Contains(now) {
		result.Skipped = true
		s.log.Info("scheduler_outside_send_window",
			zap.String("job", job),
			zap.Int("local_hour", now.In(s.cfg.Window.Location).Hour()),
		)
		middleware.RecordSchedulerRun(job, "skipped", time.Since(start))
		return result, nil
	}

	leads, err := s.repo.ListDue(ctx, kind, now, s.cfg.BatchLimit)
	if err != nil {
		middleware.RecordSchedulerRun(job, "error", time.Since(start))
		return result, eris.Wrapf(err, "scheduler: list due leads for %s", job)
	}
	result.Found = len(leads)

	for _, lead := range leads {
		if ctx.Err() != nil {
			break
		}

		outcome, err := s.processOne(ctx, kind, process, lead)
		if err != nil {
			result.Failed++
			s.log.Error("scheduler_lead_failed",
				zap.String("job", job),
				zap.String("lead_id", lead.ID),
				zap.String("external_id", lead.ExternalID),
				zap.String("kind", usecase.KindOf(err).String()),
				zap.Error(err),
			)
			middleware.RecordLeadTransition(job, "failed")
			continue
		}

		switch outcome {
		case usecase.OutcomeSent:
			result.Sent++
		case usecase.OutcomeAborted:
			result.Aborted++
		}
		middleware.RecordLeadTransition(job, string(outcome))
	}

	s.log.Info("scheduler_run_finished",
		zap.String("job", job),
		zap.Int("found", result.Found),
		zap.Int("sent", result.Sent),
		zap.Int("aborted", result.Aborted),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	middleware.RecordSchedulerRun(job, "completed", time.Since(start))
	return result, nil
}

// processOne turns a panic on a single lead into an error so the batch
// continues. The lead is pushed back so it does not panic at the head of
// every following batch.
func (s *Scheduler) processOne(ctx context.Context, kind entity.DueKind, process processFunc, lead *entity.Lead) (outcome usecase.SendOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("panic processing lead %s: %v", lead.ID, r)
			s.lifecycle.RetryLater(ctx, lead, kind)
		}
	}()
	return process(ctx, lead)
}
