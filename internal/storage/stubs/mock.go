package stubs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pitchbot/internal/models"
	"pitchbot/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for
// testing and local development without a database file.
type MockDB struct {
	mu       sync.Mutex
	accounts map[int64]models.Account
	entries  map[int64]models.LedgerEntry
	tasks    map[string]models.GenerationTask
	prices   map[string]models.Price
	nextID   int64
}

// NewMockDB creates a new mock database.
func NewMockDB() *MockDB {
	return &MockDB{
		accounts: make(map[int64]models.Account),
		entries:  make(map[int64]models.LedgerEntry),
		tasks:    make(map[string]models.GenerationTask),
		prices:   make(map[string]models.Price),
		nextID:   1,
	}
}

// Initialize seeds the default price list.
func (m *MockDB) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for service, amount := range map[string]int64{
		models.ServicePitchDeck:         50000,
		models.ServicePresentationSlide: 3000,
		models.ServiceWeeklyReport:      5000,
	} {
		m.prices[service] = models.Price{
			ServiceType: service,
			Amount:      amount,
			IsActive:    true,
			UpdatedAt:   now,
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MockDB) Close() error {
	return nil
}

func (m *MockDB) EnsureAccount(ctx context.Context, telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureAccountLocked(telegramID)
	return nil
}

func (m *MockDB) ensureAccountLocked(telegramID int64) models.Account {
	acc, ok := m.accounts[telegramID]
	if !ok {
		acc = models.Account{
			TelegramID: telegramID,
			CreatedAt:  time.Now().UTC(),
		}
		m.accounts[telegramID] = acc
	}
	return acc
}

func (m *MockDB) GetAccount(ctx context.Context, telegramID int64) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[telegramID]
	if !ok {
		return models.Account{}, storage.ErrAccountNotFound
	}
	return acc, nil
}

func (m *MockDB) GetBalance(ctx context.Context, telegramID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[telegramID].Balance, nil
}

func (m *MockDB) GetFreeCredits(ctx context.Context, telegramID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[telegramID].FreeCredits, nil
}

func (m *MockDB) TryDebit(ctx context.Context, telegramID int64, amount int64) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[telegramID]
	if !ok || acc.Balance < amount {
		return false, nil
	}
	acc.Balance -= amount
	m.accounts[telegramID] = acc
	return true, nil
}

func (m *MockDB) Credit(ctx context.Context, telegramID int64, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.ensureAccountLocked(telegramID)
	acc.Balance += amount
	m.accounts[telegramID] = acc
	return nil
}

func (m *MockDB) TryConsumeFreeCredit(ctx context.Context, telegramID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[telegramID]
	if !ok || acc.FreeCredits < 1 {
		return false, nil
	}
	acc.FreeCredits--
	m.accounts[telegramID] = acc
	return true, nil
}

func (m *MockDB) AddFreeCredits(ctx context.Context, telegramID int64, n int) error {
	if n <= 0 {
		return fmt.Errorf("free credit count must be positive, got %d", n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.ensureAccountLocked(telegramID)
	acc.FreeCredits += n
	m.accounts[telegramID] = acc
	return nil
}

func (m *MockDB) AppendLedgerEntry(ctx context.Context, entry models.LedgerEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = m.nextID
	m.nextID++
	if entry.Status == "" {
		entry.Status = models.EntryApproved
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.entries[entry.ID] = entry
	return entry.ID, nil
}

func (m *MockDB) ResolveDeposit(ctx context.Context, entryID int64, approve bool, resolvedBy int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[entryID]
	if !ok || entry.Type != models.EntryDeposit || entry.Status != models.EntryPending {
		return false, nil
	}

	if approve {
		entry.Status = models.EntryApproved
		acc := m.ensureAccountLocked(entry.TelegramID)
		acc.Balance += entry.Amount
		m.accounts[entry.TelegramID] = acc
	} else {
		entry.Status = models.EntryRejected
	}
	entry.ResolvedBy = &resolvedBy
	m.entries[entryID] = entry
	return true, nil
}

func (m *MockDB) GetLedgerEntry(ctx context.Context, entryID int64) (models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[entryID]
	if !ok {
		return models.LedgerEntry{}, fmt.Errorf("ledger entry %d not found", entryID)
	}
	return entry, nil
}

func (m *MockDB) ListPendingDeposits(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []models.LedgerEntry
	for _, entry := range m.entries {
		if entry.Type == models.EntryDeposit && entry.Status == models.EntryPending {
			pending = append(pending, entry)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].ID < pending[j].ID
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (m *MockDB) CreateTask(ctx context.Context, task models.GenerationTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	now := time.Now().UTC()
	task.Status = models.TaskPending
	task.Progress = 0
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	m.tasks[task.ID] = task
	return nil
}

func (m *MockDB) GetTask(ctx context.Context, taskID string) (models.GenerationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return models.GenerationTask{}, storage.ErrTaskNotFound
	}
	return task, nil
}

func (m *MockDB) ListPendingTasks(ctx context.Context) ([]models.GenerationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []models.GenerationTask
	for _, task := range m.tasks {
		if task.Status == models.TaskPending {
			pending = append(pending, task)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (m *MockDB) MarkProcessing(ctx context.Context, taskID string, progress int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok || task.Status != models.TaskPending {
		return false, nil
	}
	task.Status = models.TaskProcessing
	task.Progress = progress
	task.UpdatedAt = time.Now().UTC()
	m.tasks[taskID] = task
	return true, nil
}

func (m *MockDB) SetProgress(ctx context.Context, taskID string, progress int) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("progress must be within 0..100, got %d", progress)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok || task.Status != models.TaskProcessing || task.Progress >= progress {
		return nil
	}
	task.Progress = progress
	task.UpdatedAt = time.Now().UTC()
	m.tasks[taskID] = task
	return nil
}

func (m *MockDB) CompleteTask(ctx context.Context, taskID, resultRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok || task.Status != models.TaskProcessing {
		return false, nil
	}
	task.Status = models.TaskCompleted
	task.Progress = 100
	task.ResultRef = resultRef
	task.UpdatedAt = time.Now().UTC()
	m.tasks[taskID] = task
	return true, nil
}

func (m *MockDB) FailTask(ctx context.Context, taskID, errorDetail string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok || task.Status != models.TaskProcessing {
		return false, nil
	}
	task.Status = models.TaskFailed
	task.ErrorDetail = errorDetail
	task.UpdatedAt = time.Now().UTC()
	m.tasks[taskID] = task
	return true, nil
}

func (m *MockDB) MarkTaskRefunded(ctx context.Context, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok || task.Refunded {
		return false, nil
	}
	task.Refunded = true
	task.UpdatedAt = time.Now().UTC()
	m.tasks[taskID] = task
	return true, nil
}

func (m *MockDB) StaleProcessingTasks(ctx context.Context, maxAge time.Duration) ([]models.GenerationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	var stale []models.GenerationTask
	for _, task := range m.tasks {
		if task.Status == models.TaskProcessing && task.UpdatedAt.Before(cutoff) {
			stale = append(stale, task)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].UpdatedAt.Before(stale[j].UpdatedAt)
	})
	return stale, nil
}

func (m *MockDB) GetPrice(ctx context.Context, serviceType string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	price, ok := m.prices[serviceType]
	if !ok || !price.IsActive {
		return 0, fmt.Errorf("no active price for service %q", serviceType)
	}
	return price.Amount, nil
}

func (m *MockDB) ListPrices(ctx context.Context) ([]models.Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prices := make([]models.Price, 0, len(m.prices))
	for _, price := range m.prices {
		prices = append(prices, price)
	}
	sort.Slice(prices, func(i, j int) bool {
		return prices[i].ServiceType < prices[j].ServiceType
	})
	return prices, nil
}

func (m *MockDB) SetPrice(ctx context.Context, serviceType string, amount, updatedBy int64) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("price must be positive, got %d", amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	price, ok := m.prices[serviceType]
	if !ok {
		return false, nil
	}
	price.Amount = amount
	price.UpdatedBy = updatedBy
	price.UpdatedAt = time.Now().UTC()
	m.prices[serviceType] = price
	return true, nil
}
