package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mbergh0930/create3x/internal/models"
	"github.com/mbergh0930/create3x/internal/repository"
	"github.com/mbergh0930/create3x/internal/services"
)

const (
	popTimeout  = 5 * time.Second
	lockTTL     = 10 * time.Minute
	baseBackoff = time.Second
)

type JobStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
}

type HistorySource interface {
	CompletedHistory(ctx context.Context, userID string) ([]repository.CompletedSession, error)
}

type ProfileStore interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
	SaveProfileStats(ctx context.Context, p *models.UserProfile) error
}

// Pool runs background jobs pulled from the queue by a fixed number of
// goroutines.
type Pool struct {
	queue       Queue
	jobs        JobStore
	history     HistorySource
	profiles    ProfileStore
	events      services.Publisher
	logger      *zap.Logger
	workerCount int
	backoff     time.Duration
	now         func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(
	queue Queue,
	jobs JobStore,
	history HistorySource,
	profiles ProfileStore,
	events services.Publisher,
	logger *zap.Logger,
	workerCount int,
) *Pool {
	return &Pool{
		queue:       queue,
		jobs:        jobs,
		history:     history,
		profiles:    profiles,
		events:      events,
		logger:      logger,
		workerCount: workerCount,
		backoff:     baseBackoff,
		now:         time.Now,
	}
}

func queues() []string {
	return []string{services.QueueName(models.JobTypeSessionCompleted)}
}

// Start launches the workers. They run until Stop is called or ctx ends.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("worker pool started", zap.Int("workers", p.workerCount))
}

// Stop cancels the workers and waits for in-progress jobs to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))

	for {
		if ctx.Err() != nil {
			log.Debug("worker shutting down")
			return
		}

		payload, err := p.queue.Pop(ctx, popTimeout, queues()...)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("queue pop failed", zap.Error(err))
				p.sleep(ctx, time.Second)
			}
			continue
		}
		if payload == "" {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			log.Error("failed to parse job", zap.Error(err))
			continue
		}

		p.run(ctx, log, &job)
	}
}

// run executes one job under its lock. The job's own work uses a context
// detached from shutdown so a claimed job is not abandoned halfway.
func (p *Pool) run(ctx context.Context, log *zap.Logger, job *models.Job) {
	jobCtx := context.WithoutCancel(ctx)
	lockKey := fmt.Sprintf("job_lock:%s", job.ID)

	locked, err := p.queue.Lock(jobCtx, lockKey, lockTTL)
	if err != nil || !locked {
		return
	}
	defer func() {
		if err := p.queue.Unlock(jobCtx, lockKey); err != nil {
			log.Warn("failed to release job lock", zap.Stringer("job_id", job.ID), zap.Error(err))
		}
	}()

	log.Info("processing job", zap.Stringer("job_id", job.ID), zap.String("type", job.Type))
	if err := p.jobs.UpdateStatus(jobCtx, job.ID, models.JobStatusProcessing); err != nil {
		log.Warn("failed to mark job processing", zap.Stringer("job_id", job.ID), zap.Error(err))
	}

	var processErr error
	switch job.Type {
	case models.JobTypeSessionCompleted:
		processErr = p.processSessionCompleted(jobCtx, job)
	default:
		processErr = fmt.Errorf("unknown job type: %s", job.Type)
	}

	if processErr != nil {
		p.handleFailure(ctx, log, job, processErr)
		return
	}
	p.handleSuccess(jobCtx, log, job)
}

// processSessionCompleted recomputes the user's profile statistics from
// their full session history.
func (p *Pool) processSessionCompleted(ctx context.Context, job *models.Job) error {
	history, err := p.history.CompletedHistory(ctx, job.UserID.String())
	if err != nil {
		return fmt.Errorf("failed to load session history: %w", err)
	}

	stats := services.ComputeProfileStats(history, p.now())

	profile, err := p.profiles.GetProfile(ctx, job.UserID)
	if err != nil {
		profile = &models.UserProfile{UserID: job.UserID, DisplayName: models.DefaultDisplayName}
	}
	profile.CompletedSessions = stats.CompletedSessions
	profile.TotalTurns = stats.TotalTurns
	profile.CurrentStreak = stats.CurrentStreak
	profile.LongestStreak = stats.LongestStreak
	profile.FavoriteMode = stats.FavoriteMode
	profile.LastSessionDate = stats.LastSessionDate

	if err := p.profiles.SaveProfileStats(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	if err := p.events.Publish(ctx, job.UserID, models.WSMessage{
		Type:    models.WSProfileUpdated,
		Payload: models.ProfileUpdatedEvent{JobID: job.ID, Profile: *profile},
	}); err != nil {
		p.logger.Warn("failed to publish profile update", zap.Stringer("user_id", job.UserID), zap.Error(err))
	}
	return nil
}

func (p *Pool) handleSuccess(ctx context.Context, log *zap.Logger, job *models.Job) {
	if err := p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusCompleted); err != nil {
		log.Warn("failed to mark job completed", zap.Stringer("job_id", job.ID), zap.Error(err))
	}
	log.Info("job completed", zap.Stringer("job_id", job.ID))
}

func (p *Pool) handleFailure(ctx context.Context, log *zap.Logger, job *models.Job, err error) {
	jobCtx := context.WithoutCancel(ctx)
	job.RetryCount++
	errMsg := err.Error()

	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	if err := p.jobs.UpdateError(jobCtx, job.ID, errMsg, job.RetryCount); err != nil {
		log.Warn("failed to record job error", zap.Stringer("job_id", job.ID), zap.Error(err))
	}

	if job.RetryCount < maxRetries {
		log.Warn("job failed, retrying", zap.Stringer("job_id", job.ID), zap.Int("attempt", job.RetryCount), zap.String("error", errMsg))
		_ = p.jobs.UpdateStatus(jobCtx, job.ID, models.JobStatusPending)

		jobBytes, _ := json.Marshal(job)
		backoff := p.backoff * time.Duration(1<<uint(job.RetryCount))

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			// On shutdown the job is requeued immediately rather than lost.
			p.sleep(ctx, backoff)
			if err := p.queue.Push(jobCtx, services.QueueName(job.Type), string(jobBytes)); err != nil {
				log.Error("failed to requeue job", zap.Stringer("job_id", job.ID), zap.Error(err))
			}
		}()
		return
	}

	log.Error("job failed permanently", zap.Stringer("job_id", job.ID), zap.String("error", errMsg))
	_ = p.jobs.UpdateStatus(jobCtx, job.ID, models.JobStatusFailed)

	if err := p.events.Publish(jobCtx, job.UserID, models.WSMessage{
		Type: models.WSJobFailed,
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    "JOB_FAILED",
			ErrorMessage: errMsg,
		},
	}); err != nil {
		log.Warn("failed to publish job failure", zap.Stringer("job_id", job.ID), zap.Error(err))
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
