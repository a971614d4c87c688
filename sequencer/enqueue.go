package sequencer

import (
	"context"
	"fmt"

	"mailsequence/models"
)

// JobQueue is the submission side of the durable scheduler
type JobQueue interface {
	Enqueue(ctx context.Context, job *models.ScheduledJob) error
}

// DedupKey identifies the job of one step of one sequence
func DedupKey(sequenceID uint, step int) string {
	return fmt.Sprintf("seq:%d:step:%d", sequenceID, step)
}

// Enqueue submits one send email job per action, in order. The first failed
// submission stops the batch; the returned SchedulerError says which step
// failed and how many jobs went in before it.
func Enqueue(ctx context.Context, queue JobQueue, actions []ScheduledAction) ([]models.ScheduledJob, error) {
	jobs := make([]models.ScheduledJob, 0, len(actions))

	for i, a := range actions {
		if err := ctx.Err(); err != nil {
			return jobs, &SchedulerError{Step: a.Step, Submitted: i, Err: err}
		}

		job := models.ScheduledJob{
			SequenceID: a.SequenceID,
			Kind:       models.JobKindSendEmail,
			Step:       a.Step,
			Payload:    a.Payload(),
			DedupKey:   DedupKey(a.SequenceID, a.Step),
			RunAt:      a.FireAt,
			Status:     models.JobStatusQueued,
		}
		if err := queue.Enqueue(ctx, &job); err != nil {
			return jobs, &SchedulerError{Step: a.Step, Submitted: i, Err: err}
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}
