package service

import (
	"context"
	"log/slog"

	"github.com/panjf2000/ants/v2"

	"github.com/dalasi-wallet-core/internal/domain/shared"
)

// WorkerPoolProcessingService implements the ProcessingService interface
type WorkerPoolProcessingService struct {
	baseService ProcessingService
	pool        *ants.Pool
	logger      *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolProcessingService(
	baseService ProcessingService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolProcessingService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolProcessingService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
	}, nil
}

// ProcessTask submits a settlement task to the worker pool and blocks until
// the worker finishes, so the Kafka offset is committed only after the task
// has actually been processed.
func (s *WorkerPoolProcessingService) ProcessTask(ctx context.Context, task *shared.SettlementTask) error {
	logger := s.logger
	if task.CorrelationID != "" {
		logger = s.logger.With("correlation_id", task.CorrelationID)
	}

	logger.Info("Submitting settlement task to worker pool",
		"transaction_id", task.TransactionID.String(),
		"kind", string(task.Kind),
	)

	resultChan := make(chan error, 1)

	// Copy the task to avoid data races with the caller
	taskCopy := *task

	err := s.pool.Submit(func() {
		resultChan <- s.baseService.ProcessTask(ctx, &taskCopy)
	})
	if err != nil {
		logger.Error("Failed to submit settlement task to worker pool",
			"transaction_id", task.TransactionID.String(),
			"error", err,
		)
		return err
	}

	return <-resultChan
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolProcessingService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolProcessingService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolProcessingService) Capacity() int {
	return s.pool.Cap()
}
