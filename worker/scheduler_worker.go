package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"mailsequence/models"
	"mailsequence/utils"

	"github.com/google/uuid"
)

type Config struct {
	WorkerID     string
	PollInterval time.Duration
	BatchSize    int
	StaleAfter   time.Duration
}

// SchedulerWorker runs durable jobs once their run time has passed. Jobs are
// claimed from the store, so any number of workers may poll the same table.
type SchedulerWorker struct {
	Store   JobStore
	Mailer  utils.MailServiceInterface
	Logger  *log.Logger
	Config  Config
	Wakeups <-chan struct{}

	now func() time.Time
}

func NewSchedulerWorker(store JobStore, mailer utils.MailServiceInterface, logger *log.Logger, cfg Config) *SchedulerWorker {
	if cfg.WorkerID == "" {
		cfg.WorkerID = "worker-" + uuid.New().String()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	return &SchedulerWorker{
		Store:  store,
		Mailer: mailer,
		Logger: logger,
		Config: cfg,
		now:    time.Now,
	}
}

func (sw *SchedulerWorker) Start(ctx context.Context) {
	sw.Logger.Printf("Scheduler worker %s started", sw.Config.WorkerID)

	ticker := time.NewTicker(sw.Config.PollInterval)
	defer ticker.Stop()

	sw.requeueStale(ctx)
	sw.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			sw.Logger.Println("Scheduler worker shutting down...")
			return
		case <-ticker.C:
			sw.requeueStale(ctx)
			sw.RunOnce(ctx)
		case <-sw.Wakeups:
			sw.RunOnce(ctx)
		}
	}
}

// RunOnce executes every job that is due now and returns how many ran. Once
// ctx is done the jobs claimed but not yet started go back to the queue.
func (sw *SchedulerWorker) RunOnce(ctx context.Context) int {
	processed := 0
	for ctx.Err() == nil {
		jobs, err := sw.Store.ClaimDue(ctx, sw.Config.WorkerID, sw.now(), sw.Config.BatchSize)
		if err != nil {
			sw.Logger.Printf("Error claiming due jobs: %v", err)
			return processed
		}

		for i, job := range jobs {
			if ctx.Err() != nil {
				sw.release(ctx, jobs[i:])
				return processed
			}
			sw.execute(ctx, job)
			processed++
		}

		if len(jobs) < sw.Config.BatchSize {
			break
		}
	}
	return processed
}

func (sw *SchedulerWorker) execute(ctx context.Context, job models.ScheduledJob) {
	switch job.Kind {
	case models.JobKindSendEmail:
		sw.sendEmail(ctx, job)
	default:
		sw.fail(ctx, job, fmt.Sprintf("unknown job kind %q", job.Kind))
	}
}

func (sw *SchedulerWorker) sendEmail(ctx context.Context, job models.ScheduledJob) {
	result := sw.Mailer.Send(ctx, utils.Email{
		To:      job.Payload.To,
		Subject: job.Payload.Subject,
		Body:    job.Payload.Body,
	})

	if errors.Is(result.Err, utils.ErrDeliveryNotAttempted) {
		sw.release(ctx, []models.ScheduledJob{job})
		return
	}
	if !result.Success() {
		utils.LogError("email_delivery_failed", result.Err, map[string]interface{}{
			"job_id":      job.ID,
			"sequence_id": job.SequenceID,
			"step":        job.Step,
			"to":          job.Payload.To,
			"transient":   utils.IsTemporaryError(result.Err),
		})
		sw.fail(ctx, job, result.Err.Error())
		return
	}

	bctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if err := sw.Store.Complete(bctx, job.ID, result.MessageID, sw.now()); err != nil {
		sw.Logger.Printf("Failed to mark job %d done: %v", job.ID, err)
		return
	}
	utils.LogEvent("email_sent", map[string]interface{}{
		"job_id":      job.ID,
		"sequence_id": job.SequenceID,
		"step":        job.Step,
		"message_id":  result.MessageID,
		"took":        utils.FormatDuration(result.Duration),
	})
}

func (sw *SchedulerWorker) fail(ctx context.Context, job models.ScheduledJob, reason string) {
	bctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if err := sw.Store.Fail(bctx, job.ID, reason, sw.now()); err != nil {
		sw.Logger.Printf("Failed to mark job %d failed: %v", job.ID, err)
	}
}

func (sw *SchedulerWorker) release(ctx context.Context, jobs []models.ScheduledJob) {
	ids := make([]uint, len(jobs))
	for i := range jobs {
		ids[i] = jobs[i].ID
	}

	bctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if err := sw.Store.Release(bctx, ids); err != nil {
		sw.Logger.Printf("Failed to release %d jobs: %v", len(ids), err)
		return
	}
	sw.Logger.Printf("Released %d unstarted jobs", len(ids))
}

// bookkeepingContext outlives a cancelled ctx so a job's outcome is still
// recorded during shutdown.
func bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

func (sw *SchedulerWorker) requeueStale(ctx context.Context) {
	n, err := sw.Store.RequeueStale(ctx, sw.now().Add(-sw.Config.StaleAfter))
	if err != nil {
		sw.Logger.Printf("Error requeueing stale jobs: %v", err)
		return
	}
	if n > 0 {
		sw.Logger.Printf("Requeued %d stale jobs", n)
	}
}
