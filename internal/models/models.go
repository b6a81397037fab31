package models

import "time"

// Account holds a user's balance and free-presentation allotment.
// Balance is stored in so'm (whole currency units) and never goes negative.
type Account struct {
	TelegramID  int64
	Balance     int64
	FreeCredits int
	CreatedAt   time.Time
}

// LedgerEntryType classifies a money movement.
type LedgerEntryType string

const (
	EntryDeposit    LedgerEntryType = "deposit"
	EntryWithdrawal LedgerEntryType = "withdrawal"
	EntryRefund     LedgerEntryType = "refund"
)

// LedgerEntryStatus is the resolution state of a ledger entry.
// Deposits start pending and are resolved exactly once by an admin;
// withdrawals and refunds are created already approved.
type LedgerEntryStatus string

const (
	EntryPending  LedgerEntryStatus = "pending"
	EntryApproved LedgerEntryStatus = "approved"
	EntryRejected LedgerEntryStatus = "rejected"
)

// LedgerEntry is one row in the append-only transaction log.
type LedgerEntry struct {
	ID            int64
	TelegramID    int64
	Type          LedgerEntryType
	Amount        int64
	Status        LedgerEntryStatus
	ReceiptFileID string
	Description   string
	ResolvedBy    *int64
	CreatedAt     time.Time
}

// TaskKind identifies which generation flow produced a task.
type TaskKind string

const (
	KindPitchDeck    TaskKind = "pitch_deck"
	KindPresentation TaskKind = "presentation"
	KindWeeklyReport TaskKind = "weekly_report"
)

// TaskStatus is the lifecycle state of a generation task.
// completed and failed are terminal.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// GenerationTask is one unit of requested work, from funding through
// delivery or failure. Created atomically with its funding event;
// AmountCharged is 0 when a free credit paid for it.
type GenerationTask struct {
	ID            string
	OwnerID       int64
	Kind          TaskKind
	Payload       []byte
	SlideCount    int
	AmountCharged int64
	Status        TaskStatus
	Progress      int
	Refunded      bool
	ResultRef     string
	ErrorDetail   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Terminal reports whether the task can no longer change status.
func (t *GenerationTask) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

// Price is an admin-editable price for one service type.
type Price struct {
	ServiceType string
	Amount      int64
	Description string
	IsActive    bool
	UpdatedBy   int64
	UpdatedAt   time.Time
}

// Service types used by the pricing table. The presentation price is
// per slide; the other two are flat.
const (
	ServicePitchDeck         = "pitch_deck"
	ServicePresentationSlide = "presentation_slide"
	ServiceWeeklyReport      = "weekly_report"
)
