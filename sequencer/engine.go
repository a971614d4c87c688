package sequencer

import (
	"context"
	"errors"
	"log"
	"time"

	"mailsequence/models"
)

// Notifier wakes the scheduler worker after new jobs are committed
type Notifier interface {
	Notify(ctx context.Context) error
}

// Result is the outcome of a successful scheduling run
type Result struct {
	Sequence *models.Sequence
	Actions  []ScheduledAction
	Jobs     []models.ScheduledJob
}

type Engine struct {
	Store    Store
	Locker   Locker
	Notifier Notifier
	Options  Options
	Logger   *log.Logger

	now func() time.Time
}

func NewEngine(store Store, locker Locker, notifier Notifier, opts Options, logger *log.Logger) *Engine {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Engine{
		Store:    store,
		Locker:   locker,
		Notifier: notifier,
		Options:  opts,
		Logger:   logger,
		now:      time.Now,
	}
}

// Submit stores a new pending sequence and schedules it. Structural errors
// reject the graph before anything is stored. Any later failure leaves the
// stored sequence pending and is returned together with it.
func (e *Engine) Submit(ctx context.Context, nodes []models.SequenceNode, edges []models.SequenceEdge) (*models.Sequence, *Result, error) {
	if _, err := ParseGraph(nodes, edges, e.Options); errors.Is(err, ErrValidation) {
		return nil, nil, err
	}

	seq := &models.Sequence{
		Nodes:  nodes,
		Edges:  edges,
		Status: models.SequenceStatusPending,
	}
	if err := e.Store.Create(ctx, seq); err != nil {
		return nil, nil, err
	}
	e.Logger.Printf("Sequence %d saved with %d nodes and %d edges", seq.ID, len(nodes), len(edges))

	res, err := e.Schedule(ctx, seq.ID)
	if err != nil {
		return seq, nil, err
	}
	return res.Sequence, res, nil
}

// Schedule turns a pending sequence into durable send email jobs and moves it
// to processing. Jobs and the status change commit together; a sequence that
// is already processing is refused with ErrAlreadyScheduled.
func (e *Engine) Schedule(ctx context.Context, sequenceID uint) (*Result, error) {
	unlock, err := e.Locker.Lock(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	seq, err := e.Store.Get(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	if !seq.IsPending() {
		return nil, ErrAlreadyScheduled
	}

	plan, err := ParseGraph(seq.Nodes, seq.Edges, e.Options)
	if err != nil {
		e.Logger.Printf("Sequence %d rejected: %v", seq.ID, err)
		return nil, err
	}

	now := e.now()
	actions, err := Accumulate(plan, seq.ID, now, e.Options)
	if err != nil {
		e.Logger.Printf("Sequence %d rejected: %v", seq.ID, err)
		return nil, err
	}

	var jobs []models.ScheduledJob
	err = e.Store.Transaction(ctx, func(tx Store, queue JobQueue) error {
		var err error
		if jobs, err = Enqueue(ctx, queue, actions); err != nil {
			return err
		}
		ok, err := tx.MarkProcessing(ctx, seq.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyScheduled
		}
		return nil
	})
	if err != nil {
		e.Logger.Printf("Sequence %d not scheduled: %v", seq.ID, err)
		return nil, err
	}

	seq.Status = models.SequenceStatusProcessing
	seq.ScheduledAt = &now

	for _, a := range actions {
		e.Logger.Printf("Email scheduled with subject %q to %s with delay %v", a.Subject, a.To, a.Offset)
	}

	if e.Notifier != nil {
		if err := e.Notifier.Notify(ctx); err != nil {
			e.Logger.Printf("Failed to wake scheduler worker: %v", err)
		}
	}

	return &Result{Sequence: seq, Actions: actions, Jobs: jobs}, nil
}
