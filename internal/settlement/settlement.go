// Package settlement converts a user's generation request into funded,
// durable work. It is the only writer allowed to pair a funding event
// with a new task, and the only component that reverses funding when a
// task fails.
package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pitchbot/internal/models"
	"pitchbot/internal/storage"
)

// ErrInsufficientFunds is returned when neither a free credit nor the
// balance can cover the quoted price. No partial state is left behind.
var ErrInsufficientFunds = storage.ErrInsufficientFunds

// Service couples funding reservation with task creation.
type Service struct {
	ledger storage.Ledger
	tasks  storage.Tasks
	logger *zap.Logger
}

// New creates a settlement service over the given stores.
func New(ledger storage.Ledger, tasks storage.Tasks, logger *zap.Logger) *Service {
	return &Service{ledger: ledger, tasks: tasks, logger: logger}
}

// RequestGeneration reserves funding (a free credit if one is available,
// otherwise a balance debit of price) and creates the task record. The
// two steps either both happen or neither does: if task creation fails
// after funds were reserved, the reservation is restored before the
// error is returned.
func (s *Service) RequestGeneration(ctx context.Context, ownerID int64, kind models.TaskKind, payload []byte, slideCount int, price int64) (string, error) {
	if err := s.ledger.EnsureAccount(ctx, ownerID); err != nil {
		return "", err
	}

	free, err := s.ledger.GetFreeCredits(ctx, ownerID)
	if err != nil {
		return "", err
	}

	if free >= 1 {
		consumed, err := s.ledger.TryConsumeFreeCredit(ctx, ownerID)
		if err != nil {
			return "", err
		}
		if consumed {
			taskID, err := s.createTask(ctx, ownerID, kind, payload, slideCount, 0)
			if err != nil {
				// Compensate: give the credit back before surfacing the error.
				if restoreErr := s.ledger.AddFreeCredits(ctx, ownerID, 1); restoreErr != nil {
					s.logger.Error("Failed to restore free credit after task creation failure",
						zap.Int64("owner_id", ownerID), zap.Error(restoreErr))
				}
				return "", err
			}
			s.logger.Info("Task funded by free credit",
				zap.String("task_id", taskID),
				zap.Int64("owner_id", ownerID),
				zap.String("kind", string(kind)),
			)
			return taskID, nil
		}
		// A concurrent request consumed the last credit between the read
		// and the conditional update; fall through to the paid path.
	}

	debited, err := s.ledger.TryDebit(ctx, ownerID, price)
	if err != nil {
		return "", err
	}
	if !debited {
		return "", ErrInsufficientFunds
	}

	taskID, err := s.createTask(ctx, ownerID, kind, payload, slideCount, price)
	if err != nil {
		// Compensate: the user must never stay charged for work that
		// does not exist.
		if restoreErr := s.ledger.Credit(ctx, ownerID, price); restoreErr != nil {
			s.logger.Error("Failed to restore balance after task creation failure",
				zap.Int64("owner_id", ownerID),
				zap.Int64("amount", price),
				zap.Error(restoreErr))
		}
		return "", err
	}

	if _, err := s.ledger.AppendLedgerEntry(ctx, models.LedgerEntry{
		TelegramID:  ownerID,
		Type:        models.EntryWithdrawal,
		Amount:      price,
		Status:      models.EntryApproved,
		Description: fmt.Sprintf("Charge for %s task %s", kind, taskID),
	}); err != nil {
		// The charge and the task both exist; a missing audit row is a
		// log-level problem, not a settlement failure.
		s.logger.Warn("Failed to append withdrawal ledger entry",
			zap.String("task_id", taskID), zap.Error(err))
	}

	s.logger.Info("Task funded by balance debit",
		zap.String("task_id", taskID),
		zap.Int64("owner_id", ownerID),
		zap.String("kind", string(kind)),
		zap.Int64("amount", price),
	)
	return taskID, nil
}

// Refund reverses a task's funding event. Idempotent per task: the
// refunded flag is flipped atomically, so calling Refund any number of
// times restores the money or credit exactly once.
func (s *Service) Refund(ctx context.Context, taskID string) error {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	first, err := s.tasks.MarkTaskRefunded(ctx, taskID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	if task.AmountCharged > 0 {
		if err := s.ledger.Credit(ctx, task.OwnerID, task.AmountCharged); err != nil {
			return fmt.Errorf("refund task %s: %w", taskID, err)
		}
		if _, err := s.ledger.AppendLedgerEntry(ctx, models.LedgerEntry{
			TelegramID:  task.OwnerID,
			Type:        models.EntryRefund,
			Amount:      task.AmountCharged,
			Status:      models.EntryApproved,
			Description: fmt.Sprintf("Refund for %s task %s", task.Kind, taskID),
		}); err != nil {
			s.logger.Warn("Failed to append refund ledger entry",
				zap.String("task_id", taskID), zap.Error(err))
		}
	} else {
		if err := s.ledger.AddFreeCredits(ctx, task.OwnerID, 1); err != nil {
			return fmt.Errorf("restore free credit for task %s: %w", taskID, err)
		}
	}

	s.logger.Info("Task refunded",
		zap.String("task_id", taskID),
		zap.Int64("owner_id", task.OwnerID),
		zap.Int64("amount", task.AmountCharged),
	)
	return nil
}

func (s *Service) createTask(ctx context.Context, ownerID int64, kind models.TaskKind, payload []byte, slideCount int, amountCharged int64) (string, error) {
	task := models.GenerationTask{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		Kind:          kind,
		Payload:       payload,
		SlideCount:    slideCount,
		AmountCharged: amountCharged,
		Status:        models.TaskPending,
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	return task.ID, nil
}
