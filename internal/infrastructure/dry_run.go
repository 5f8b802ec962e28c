package infrastructure

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rivwidthcloud/internal/domain"
)

// DryRunSubmitter accepts every task locally without calling the remote service.
type DryRunSubmitter struct {
	logger    *zap.Logger
	export    domain.ExportConfig
	namespace uuid.UUID
	out       io.Writer
}

func NewDryRunSubmitter(logger *zap.Logger, export domain.ExportConfig, runID uuid.UUID, out io.Writer) *DryRunSubmitter {
	return &DryRunSubmitter{logger: logger, export: export, namespace: runID, out: out}
}

func (s *DryRunSubmitter) Submit(ctx context.Context, task domain.TaskSpec) (domain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.Receipt{}, err
	}
	if task.Params == nil {
		return domain.Receipt{}, &domain.ValidationError{Field: "parameters", Reason: "are missing"}
	}

	requestID := RequestID(s.namespace, task)
	prefix := task.ExportPrefix()
	s.logger.Debug("Dry run, export not started",
		zap.String("id", task.Identifier),
		zap.String("request_id", requestID))
	printConfirmation(s.out, prefix, exportDestination(s.export, task.Params), task.Params.OutputFormat)

	return domain.Receipt{
		OperationName: "dry-run/" + requestID,
		Description:   prefix,
		RequestID:     requestID,
		AcceptedAt:    time.Now(),
	}, nil
}
