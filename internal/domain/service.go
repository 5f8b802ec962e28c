package domain

import (
	"context"
)

// Submitter performs one remote submission. It may be called twice for the same task.
type Submitter interface {
	Submit(ctx context.Context, task TaskSpec) (Receipt, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, task TaskSpec) (Receipt, error)

func (f SubmitterFunc) Submit(ctx context.Context, task TaskSpec) (Receipt, error) {
	return f(ctx, task)
}

// SessionRefresher re-acquires the remote session.
type SessionRefresher interface {
	Refresh(ctx context.Context) error
}

// OutcomeRecorder получает каждый результат диспетчера
type OutcomeRecorder interface {
	Record(outcome TaskOutcome)
}
