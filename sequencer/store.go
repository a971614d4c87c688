package sequencer

import (
	"context"
	"errors"
	"time"

	"mailsequence/models"
	"mailsequence/worker"

	"gorm.io/gorm"
)

// Store persists sequences and owns their status transitions. Every
// operation is keyed by an explicit sequence id.
type Store interface {
	Create(ctx context.Context, seq *models.Sequence) error
	Get(ctx context.Context, id uint) (*models.Sequence, error)
	List(ctx context.Context) ([]models.Sequence, error)
	Jobs(ctx context.Context, sequenceID uint) ([]models.ScheduledJob, error)

	// MarkProcessing moves a sequence from pending to processing and stamps
	// scheduledAt. It reports false when the sequence was not pending.
	MarkProcessing(ctx context.Context, id uint, at time.Time) (bool, error)

	// Transaction runs fn against a store and job queue that commit or roll
	// back together.
	Transaction(ctx context.Context, fn func(tx Store, queue JobQueue) error) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, seq *models.Sequence) error {
	if seq.Status == "" {
		seq.Status = models.SequenceStatusPending
	}
	if err := s.db.WithContext(ctx).Create(seq).Error; err != nil {
		return persistenceError("create sequence", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id uint) (*models.Sequence, error) {
	var seq models.Sequence
	if err := s.db.WithContext(ctx).First(&seq, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistenceError("fetch sequence", err)
	}
	return &seq, nil
}

func (s *GormStore) List(ctx context.Context) ([]models.Sequence, error) {
	var sequences []models.Sequence
	if err := s.db.WithContext(ctx).Order("created_at desc").Order("id desc").Find(&sequences).Error; err != nil {
		return nil, persistenceError("list sequences", err)
	}
	return sequences, nil
}

func (s *GormStore) Jobs(ctx context.Context, sequenceID uint) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	if err := s.db.WithContext(ctx).
		Where("sequence_id = ?", sequenceID).
		Order("step asc").Order("id asc").
		Find(&jobs).Error; err != nil {
		return nil, persistenceError("list jobs", err)
	}
	return jobs, nil
}

func (s *GormStore) MarkProcessing(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Sequence{}).
		Where("id = ? AND status = ?", id, models.SequenceStatusPending).
		Updates(map[string]interface{}{
			"status":       models.SequenceStatusProcessing,
			"scheduled_at": at,
		})
	if res.Error != nil {
		return false, persistenceError("mark sequence processing", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store, queue JobQueue) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx}, worker.NewGormJobStore(tx))
	})
	if err != nil && !isEngineError(err) {
		return persistenceError("commit schedule", err)
	}
	return err
}

func isEngineError(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrMissingLeadSource, ErrMalformedLabel, ErrNotFound,
		ErrAlreadyScheduled, ErrPersistence, ErrScheduler,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
