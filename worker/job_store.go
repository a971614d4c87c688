package worker

import (
	"context"
	"time"

	"mailsequence/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobStore is the persistence side of the durable scheduler
type JobStore interface {
	Enqueue(ctx context.Context, job *models.ScheduledJob) error
	// ClaimDue locks up to limit queued jobs whose run time has passed and
	// marks them running for workerID.
	ClaimDue(ctx context.Context, workerID string, now time.Time, limit int) ([]models.ScheduledJob, error)
	Complete(ctx context.Context, jobID uint, messageID string, at time.Time) error
	Fail(ctx context.Context, jobID uint, reason string, at time.Time) error
	// Release hands claimed jobs that never ran back to the queue
	Release(ctx context.Context, jobIDs []uint) error
	// RequeueStale puts back jobs left running by a worker that died before
	// finishing them.
	RequeueStale(ctx context.Context, lockedBefore time.Time) (int64, error)
}

type GormJobStore struct {
	db *gorm.DB
}

func NewGormJobStore(db *gorm.DB) *GormJobStore {
	return &GormJobStore{db: db}
}

func (s *GormJobStore) Enqueue(ctx context.Context, job *models.ScheduledJob) error {
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *GormJobStore) ClaimDue(ctx context.Context, workerID string, now time.Time, limit int) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND run_at <= ?", models.JobStatusQueued, now).
			Order("run_at asc").Order("id asc").
			Limit(limit).
			Find(&jobs).Error; err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}

		ids := make([]uint, len(jobs))
		for i := range jobs {
			ids[i] = jobs[i].ID
		}
		if err := tx.Model(&models.ScheduledJob{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":    models.JobStatusRunning,
				"locked_by": workerID,
				"locked_at": now,
				"attempts":  gorm.Expr("attempts + ?", 1),
			}).Error; err != nil {
			return err
		}

		for i := range jobs {
			jobs[i].Status = models.JobStatusRunning
			jobs[i].LockedBy = &workerID
			jobs[i].LockedAt = &now
			jobs[i].Attempts++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *GormJobStore) Complete(ctx context.Context, jobID uint, messageID string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":      models.JobStatusDone,
			"message_id":  messageID,
			"finished_at": at,
			"last_error":  nil,
		}).Error
}

func (s *GormJobStore) Fail(ctx context.Context, jobID uint, reason string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":      models.JobStatusFailed,
			"last_error":  reason,
			"finished_at": at,
		}).Error
}

func (s *GormJobStore) Release(ctx context.Context, jobIDs []uint) error {
	if len(jobIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id IN ? AND status = ?", jobIDs, models.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":    models.JobStatusQueued,
			"locked_by": nil,
			"locked_at": nil,
			"attempts":  gorm.Expr("attempts - ?", 1),
		}).Error
}

func (s *GormJobStore) RequeueStale(ctx context.Context, lockedBefore time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("status = ? AND locked_at < ?", models.JobStatusRunning, lockedBefore).
		Updates(map[string]interface{}{
			"status":    models.JobStatusQueued,
			"locked_by": nil,
			"locked_at": nil,
		})
	return res.RowsAffected, res.Error
}
