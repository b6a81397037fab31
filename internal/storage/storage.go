package storage

import (
	"context"
	"errors"
	"time"

	"pitchbot/internal/models"
)

// ErrInsufficientFunds is returned when a balance cannot cover a charge.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrTaskNotFound is returned when a task id does not exist.
var ErrTaskNotFound = errors.New("task not found")

// ErrAccountNotFound is returned when an account lookup misses and
// auto-provisioning is not wanted.
var ErrAccountNotFound = errors.New("account not found")

// Ledger owns accounts and the append-only transaction log.
//
// TryDebit and TryConsumeFreeCredit must be single atomic conditional
// updates; two concurrent calls against the same account must never
// drive the balance or the free-credit counter negative.
type Ledger interface {
	// EnsureAccount provisions an account on first contact. Idempotent.
	EnsureAccount(ctx context.Context, telegramID int64) error
	GetAccount(ctx context.Context, telegramID int64) (models.Account, error)
	GetBalance(ctx context.Context, telegramID int64) (int64, error)
	GetFreeCredits(ctx context.Context, telegramID int64) (int, error)

	// TryDebit decrements the balance only if balance >= amount.
	// Returns false with no side effects otherwise.
	TryDebit(ctx context.Context, telegramID int64, amount int64) (bool, error)

	// Credit unconditionally increments the balance. Used for deposits
	// and refunds; idempotency of the triggering event is the caller's job.
	Credit(ctx context.Context, telegramID int64, amount int64) error

	// TryConsumeFreeCredit decrements free_credits by one only if at
	// least one is available.
	TryConsumeFreeCredit(ctx context.Context, telegramID int64) (bool, error)
	AddFreeCredits(ctx context.Context, telegramID int64, n int) error

	// AppendLedgerEntry inserts a transaction-log row and returns its id.
	AppendLedgerEntry(ctx context.Context, entry models.LedgerEntry) (int64, error)

	// ResolveDeposit transitions a pending deposit to approved or
	// rejected exactly once, crediting the account on approval.
	// Returns false with no side effects if the entry is not pending.
	ResolveDeposit(ctx context.Context, entryID int64, approve bool, resolvedBy int64) (bool, error)
	GetLedgerEntry(ctx context.Context, entryID int64) (models.LedgerEntry, error)
	ListPendingDeposits(ctx context.Context, limit int) ([]models.LedgerEntry, error)
}

// Tasks owns generation task rows. The settlement service is the only
// creator; the worker is the only mutator after creation. Status moves
// pending -> processing -> completed|failed and never leaves a terminal
// state; progress only moves forward. A non-forward transition is a
// no-op that returns false.
type Tasks interface {
	CreateTask(ctx context.Context, task models.GenerationTask) error
	GetTask(ctx context.Context, taskID string) (models.GenerationTask, error)

	// ListPendingTasks returns pending tasks oldest first.
	ListPendingTasks(ctx context.Context) ([]models.GenerationTask, error)

	// MarkProcessing claims a pending task. Exactly one caller wins.
	MarkProcessing(ctx context.Context, taskID string, progress int) (bool, error)

	// SetProgress bumps progress while processing; lower values are ignored.
	SetProgress(ctx context.Context, taskID string, progress int) error

	CompleteTask(ctx context.Context, taskID string, resultRef string) (bool, error)
	FailTask(ctx context.Context, taskID string, errorDetail string) (bool, error)

	// MarkTaskRefunded flips the refunded flag exactly once; the first
	// caller gets true, every later caller false.
	MarkTaskRefunded(ctx context.Context, taskID string) (bool, error)

	// StaleProcessingTasks returns processing tasks untouched for longer
	// than maxAge, so a restarted worker can fail them deterministically.
	StaleProcessingTasks(ctx context.Context, maxAge time.Duration) ([]models.GenerationTask, error)
}

// Pricing owns the admin-editable price list.
type Pricing interface {
	// GetPrice returns the active price for a service type.
	GetPrice(ctx context.Context, serviceType string) (int64, error)
	ListPrices(ctx context.Context) ([]models.Price, error)
	SetPrice(ctx context.Context, serviceType string, amount int64, updatedBy int64) (bool, error)
}

// Storage is the full persistence surface the application wires up.
type Storage interface {
	Ledger
	Tasks
	Pricing

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
