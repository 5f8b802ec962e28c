package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rivwidthcloud/internal/domain"
)

// Dispatcher runs a batch of tasks through a Submitter with a bounded number of workers.
type Dispatcher struct {
	logger   *zap.Logger
	guard    *SessionGuard
	recorder domain.OutcomeRecorder
}

func NewDispatcher(logger *zap.Logger, guard *SessionGuard, recorder domain.OutcomeRecorder) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		guard:    guard,
		recorder: recorder,
	}
}

// Run submits batch.Tasks[batch.StartIndex:] and returns one outcome per task in
// completion order. Per-task failures never abort the batch. When ctx is cancelled no
// new task is handed out; the remaining tasks are reported as failed.
func (d *Dispatcher) Run(ctx context.Context, batch domain.BatchRequest, submit domain.Submitter) ([]domain.TaskOutcome, error) {
	if batch.ConcurrencyLimit <= 0 {
		return nil, fmt.Errorf("%w: concurrency limit must be positive, got %d", domain.ErrInvalidBatch, batch.ConcurrencyLimit)
	}
	if batch.StartIndex < 0 {
		return nil, fmt.Errorf("%w: start index must not be negative, got %d", domain.ErrInvalidBatch, batch.StartIndex)
	}
	if submit == nil {
		return nil, fmt.Errorf("%w: submitter is nil", domain.ErrInvalidBatch)
	}
	if batch.StartIndex >= len(batch.Tasks) {
		d.logger.Info("Nothing to dispatch",
			zap.Int("tasks", len(batch.Tasks)),
			zap.Int("start_index", batch.StartIndex))
		return []domain.TaskOutcome{}, nil
	}

	pending := batch.Tasks[batch.StartIndex:]
	workers := min(batch.ConcurrencyLimit, len(pending))

	d.logger.Info("Starting dispatch",
		zap.Int("tasks", len(pending)),
		zap.Int("start_index", batch.StartIndex),
		zap.Int("workers", workers))

	var wg sync.WaitGroup
	taskChan := make(chan domain.TaskSpec)
	resultChan := make(chan domain.TaskOutcome, len(pending))

	// Запускаем воркеры
	for i := range workers {
		wg.Add(1)
		go d.worker(ctx, i, submit, taskChan, resultChan, &wg)
	}

	// Отправляем задачи в порядке входной последовательности
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(taskChan)
		for i, task := range pending {
			if ctx.Err() != nil {
				d.cancelRemaining(ctx, pending[i:], resultChan)
				return
			}
			select {
			case taskChan <- task:
			case <-ctx.Done():
				d.cancelRemaining(ctx, pending[i:], resultChan)
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	outcomes := make([]domain.TaskOutcome, 0, len(pending))
	for outcome := range resultChan {
		if d.recorder != nil {
			d.recorder.Record(outcome)
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

func (d *Dispatcher) worker(ctx context.Context, id int, submit domain.Submitter, tasks <-chan domain.TaskSpec, results chan<- domain.TaskOutcome, wg *sync.WaitGroup) {
	defer wg.Done()

	for task := range tasks {
		d.logger.Debug("Submitting task",
			zap.Int("worker", id),
			zap.Int("index", task.Index),
			zap.String("id", task.Identifier))

		outcome := d.process(ctx, submit, task)
		d.logOutcome(id, outcome)
		results <- outcome
	}
}

// process allows exactly one session renewal and retry per task.
func (d *Dispatcher) process(ctx context.Context, submit domain.Submitter, task domain.TaskSpec) domain.TaskOutcome {
	start := time.Now()
	outcome := domain.TaskOutcome{Task: task, Attempts: 1}

	seen := d.generation()
	receipt, err := safeSubmit(ctx, submit, task)
	if errors.Is(err, domain.ErrSessionExpired) {
		d.logger.Warn("Remote session expired, renewing",
			zap.Int("index", task.Index),
			zap.String("id", task.Identifier))

		if rerr := d.renew(ctx, seen); rerr != nil {
			err = fmt.Errorf("%w: renewal failed: %v", domain.ErrSessionExpired, rerr)
		} else {
			outcome.Attempts = 2
			receipt, err = safeSubmit(ctx, submit, task)
		}
	}
	outcome.Duration = time.Since(start)

	if err != nil {
		outcome.Status = domain.StatusFailed
		outcome.Detail = err.Error()
		return outcome
	}

	outcome.Status = domain.StatusSubmitted
	outcome.Receipt = &receipt
	outcome.Detail = receipt.Description
	if receipt.OperationName != "" {
		outcome.Detail = receipt.Description + ": " + receipt.OperationName
	}
	return outcome
}

func (d *Dispatcher) generation() uint64 {
	if d.guard == nil {
		return 0
	}
	return d.guard.Generation()
}

func (d *Dispatcher) renew(ctx context.Context, seen uint64) error {
	if d.guard == nil {
		return nil
	}
	return d.guard.Renew(ctx, seen)
}

func (d *Dispatcher) cancelRemaining(ctx context.Context, tasks []domain.TaskSpec, results chan<- domain.TaskOutcome) {
	d.logger.Warn("Dispatch cancelled", zap.Int("remaining", len(tasks)), zap.Error(ctx.Err()))
	for _, task := range tasks {
		results <- domain.TaskOutcome{
			Task:   task,
			Status: domain.StatusFailed,
			Detail: fmt.Sprintf("not submitted: %v", ctx.Err()),
		}
	}
}

func (d *Dispatcher) logOutcome(worker int, outcome domain.TaskOutcome) {
	fields := []zap.Field{
		zap.Int("worker", worker),
		zap.Int("index", outcome.Task.Index),
		zap.String("id", outcome.Task.Identifier),
		zap.Int("attempts", outcome.Attempts),
		zap.Duration("duration", outcome.Duration),
	}
	if outcome.Status == domain.StatusFailed {
		d.logger.Warn("Task failed", append(fields, zap.String("error", outcome.Detail))...)
		return
	}
	d.logger.Info("Task submitted", append(fields, zap.String("detail", outcome.Detail))...)
}

// safeSubmit turns a panicking submitter into a failed task.
func safeSubmit(ctx context.Context, submit domain.Submitter, task domain.TaskSpec) (receipt domain.Receipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: submitter panic: %v", domain.ErrRemoteSubmission, r)
		}
	}()
	return submit.Submit(ctx, task)
}

// ResumePosition converts a row-based resume offset into a position in tasks.
func ResumePosition(tasks []domain.TaskSpec, startNumber int) int {
	pos := 0
	for _, task := range tasks {
		if task.Index < startNumber {
			pos++
		}
	}
	return pos
}
