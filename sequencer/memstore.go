package sequencer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mailsequence/models"
)

// MemoryStore is an in-process Store and JobQueue. It keeps the same
// contracts as GormStore, including dedup keys and transaction rollback.
type MemoryStore struct {
	mu        sync.Mutex
	txMu      sync.Mutex
	nextID    uint
	nextJobID uint
	seqs      map[uint]models.Sequence
	jobs      []models.ScheduledJob

	// EnqueueHook, when set, runs before each job is stored. A non-nil
	// return fails that submission.
	EnqueueHook func(job *models.ScheduledJob) error
	// Unavailable makes every operation fail as if the backing store were down
	Unavailable bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seqs: make(map[uint]models.Sequence)}
}

func (m *MemoryStore) Create(_ context.Context, seq *models.Sequence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return persistenceError("create sequence", fmt.Errorf("connection refused"))
	}

	m.nextID++
	now := time.Now()
	seq.ID = m.nextID
	if seq.Status == "" {
		seq.Status = models.SequenceStatusPending
	}
	if seq.CreatedAt.IsZero() {
		seq.CreatedAt = now
	}
	seq.UpdatedAt = now
	m.seqs[seq.ID] = copySequence(*seq)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uint) (*models.Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return nil, persistenceError("fetch sequence", fmt.Errorf("connection refused"))
	}

	seq, ok := m.seqs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copySequence(seq)
	return &out, nil
}

func (m *MemoryStore) List(_ context.Context) ([]models.Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return nil, persistenceError("list sequences", fmt.Errorf("connection refused"))
	}

	out := make([]models.Sequence, 0, len(m.seqs))
	for _, seq := range m.seqs {
		out = append(out, copySequence(seq))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Jobs(_ context.Context, sequenceID uint) ([]models.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return nil, persistenceError("list jobs", fmt.Errorf("connection refused"))
	}

	var out []models.ScheduledJob
	for _, job := range m.jobs {
		if job.SequenceID == sequenceID {
			out = append(out, job)
		}
	}
	return out, nil
}

// AllJobs returns every stored job in submission order
func (m *MemoryStore) AllJobs() []models.ScheduledJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ScheduledJob(nil), m.jobs...)
}

func (m *MemoryStore) MarkProcessing(_ context.Context, id uint, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return false, persistenceError("mark sequence processing", fmt.Errorf("connection refused"))
	}

	seq, ok := m.seqs[id]
	if !ok || seq.Status != models.SequenceStatusPending {
		return false, nil
	}
	seq.Status = models.SequenceStatusProcessing
	seq.ScheduledAt = &at
	seq.UpdatedAt = time.Now()
	m.seqs[id] = seq
	return true, nil
}

func (m *MemoryStore) Enqueue(_ context.Context, job *models.ScheduledJob) error {
	if m.EnqueueHook != nil {
		if err := m.EnqueueHook(job); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.jobs {
		if existing.DedupKey == job.DedupKey {
			return fmt.Errorf("duplicate job %s", job.DedupKey)
		}
	}
	m.nextJobID++
	job.ID = m.nextJobID
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	m.jobs = append(m.jobs, *job)
	return nil
}

// Transaction rolls back only the writes made through its own tx and
// queue. Writes other callers make meanwhile are kept.
func (m *MemoryStore) Transaction(ctx context.Context, fn func(tx Store, queue JobQueue) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memoryTx{MemoryStore: m, prior: make(map[uint]models.Sequence)}
	if err := fn(tx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memoryTx records what a transaction wrote so it can be undone
type memoryTx struct {
	*MemoryStore
	prior  map[uint]models.Sequence
	jobIDs map[uint]struct{}
}

func (tx *memoryTx) MarkProcessing(ctx context.Context, id uint, at time.Time) (bool, error) {
	tx.mu.Lock()
	before, ok := tx.seqs[id]
	tx.mu.Unlock()

	changed, err := tx.MemoryStore.MarkProcessing(ctx, id, at)
	if changed && ok {
		if _, seen := tx.prior[id]; !seen {
			tx.prior[id] = copySequence(before)
		}
	}
	return changed, err
}

func (tx *memoryTx) Enqueue(ctx context.Context, job *models.ScheduledJob) error {
	if err := tx.MemoryStore.Enqueue(ctx, job); err != nil {
		return err
	}
	if tx.jobIDs == nil {
		tx.jobIDs = make(map[uint]struct{})
	}
	tx.jobIDs[job.ID] = struct{}{}
	return nil
}

func (tx *memoryTx) rollback() {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if len(tx.jobIDs) > 0 {
		kept := tx.jobs[:0]
		for _, job := range tx.jobs {
			if _, ours := tx.jobIDs[job.ID]; !ours {
				kept = append(kept, job)
			}
		}
		tx.jobs = kept
	}
	for id, seq := range tx.prior {
		if _, ok := tx.seqs[id]; ok {
			tx.seqs[id] = seq
		}
	}
}

func copySequence(seq models.Sequence) models.Sequence {
	if seq.ScheduledAt != nil {
		at := *seq.ScheduledAt
		seq.ScheduledAt = &at
	}
	return seq
}
