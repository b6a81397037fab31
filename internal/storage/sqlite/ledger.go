package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pitchbot/internal/models"
	"pitchbot/internal/storage"
)

// EnsureAccount provisions an account row on first contact. Safe to call
// on every interaction.
func (s *Store) EnsureAccount(ctx context.Context, telegramID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (telegram_id, balance, free_credits, created_at)
		 VALUES (?, 0, 0, ?)
		 ON CONFLICT(telegram_id) DO NOTHING`,
		telegramID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("ensure account %d: %w", telegramID, err)
	}
	return nil
}

// GetAccount returns the full account row.
func (s *Store) GetAccount(ctx context.Context, telegramID int64) (models.Account, error) {
	var (
		acc       models.Account
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT telegram_id, balance, free_credits, created_at FROM accounts WHERE telegram_id = ?`,
		telegramID,
	).Scan(&acc.TelegramID, &acc.Balance, &acc.FreeCredits, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, storage.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("get account %d: %w", telegramID, err)
	}
	acc.CreatedAt = parseTime(createdAt)
	return acc, nil
}

// GetBalance returns the current balance; unknown accounts read as 0.
func (s *Store) GetBalance(ctx context.Context, telegramID int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE telegram_id = ?`, telegramID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance %d: %w", telegramID, err)
	}
	return balance, nil
}

// GetFreeCredits returns the free-presentation counter; unknown accounts read as 0.
func (s *Store) GetFreeCredits(ctx context.Context, telegramID int64) (int, error) {
	var credits int
	err := s.db.QueryRowContext(ctx,
		`SELECT free_credits FROM accounts WHERE telegram_id = ?`, telegramID,
	).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get free credits %d: %w", telegramID, err)
	}
	return credits, nil
}

// TryDebit decrements the balance in a single conditional update.
// The WHERE clause is the whole race-safety story: two concurrent debits
// can never both pass the balance check.
func (s *Store) TryDebit(ctx context.Context, telegramID int64, amount int64) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET balance = balance - ? WHERE telegram_id = ? AND balance >= ?`,
		amount, telegramID, amount)
	if err != nil {
		return false, fmt.Errorf("debit %d from %d: %w", amount, telegramID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("debit rows affected: %w", err)
	}
	return rows > 0, nil
}

// Credit unconditionally increments the balance, provisioning the
// account if needed.
func (s *Store) Credit(ctx context.Context, telegramID int64, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	if err := s.EnsureAccount(ctx, telegramID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + ? WHERE telegram_id = ?`,
		amount, telegramID)
	if err != nil {
		return fmt.Errorf("credit %d to %d: %w", amount, telegramID, err)
	}
	return nil
}

// TryConsumeFreeCredit decrements free_credits by one, conditionally and
// atomically, mirroring TryDebit.
func (s *Store) TryConsumeFreeCredit(ctx context.Context, telegramID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET free_credits = free_credits - 1 WHERE telegram_id = ? AND free_credits >= 1`,
		telegramID)
	if err != nil {
		return false, fmt.Errorf("consume free credit for %d: %w", telegramID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume free credit rows affected: %w", err)
	}
	return rows > 0, nil
}

// AddFreeCredits grants free presentations to an account.
func (s *Store) AddFreeCredits(ctx context.Context, telegramID int64, n int) error {
	if n <= 0 {
		return fmt.Errorf("free credit count must be positive, got %d", n)
	}
	if err := s.EnsureAccount(ctx, telegramID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET free_credits = free_credits + ? WHERE telegram_id = ?`,
		n, telegramID)
	if err != nil {
		return fmt.Errorf("add %d free credits to %d: %w", n, telegramID, err)
	}
	return nil
}

// AppendLedgerEntry inserts a transaction-log row and returns its id.
func (s *Store) AppendLedgerEntry(ctx context.Context, entry models.LedgerEntry) (int64, error) {
	if entry.Status == "" {
		entry.Status = models.EntryApproved
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (telegram_id, type, amount, status, receipt_file_id, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.TelegramID, string(entry.Type), entry.Amount, string(entry.Status),
		entry.ReceiptFileID, entry.Description, formatTime(createdAt))
	if err != nil {
		return 0, fmt.Errorf("append ledger entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger entry id: %w", err)
	}
	return id, nil
}

// GetLedgerEntry returns a single transaction-log row.
func (s *Store) GetLedgerEntry(ctx context.Context, entryID int64) (models.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, type, amount, status, receipt_file_id, description, resolved_by, created_at
		 FROM ledger_entries WHERE id = ?`, entryID)
	entry, err := scanLedgerEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerEntry{}, fmt.Errorf("ledger entry %d not found", entryID)
	}
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("get ledger entry %d: %w", entryID, err)
	}
	return entry, nil
}

// ResolveDeposit transitions a pending deposit exactly once, crediting
// the account inside the same transaction when approved. Returns false
// with no side effects if the entry was already resolved.
func (s *Store) ResolveDeposit(ctx context.Context, entryID int64, approve bool, resolvedBy int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin resolve deposit: %w", err)
	}
	defer tx.Rollback()

	var (
		telegramID int64
		amount     int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT telegram_id, amount FROM ledger_entries
		 WHERE id = ? AND type = 'deposit' AND status = 'pending'`,
		entryID,
	).Scan(&telegramID, &amount)
	if errors.Is(err, sql.ErrNoRows) {
		// Not a pending deposit: already resolved or never existed.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load pending deposit %d: %w", entryID, err)
	}

	status := models.EntryRejected
	if approve {
		status = models.EntryApproved
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE ledger_entries SET status = ?, resolved_by = ? WHERE id = ? AND status = 'pending'`,
		string(status), resolvedBy, entryID)
	if err != nil {
		return false, fmt.Errorf("resolve deposit %d: %w", entryID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve deposit rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if approve {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (telegram_id, balance, free_credits, created_at)
			 VALUES (?, 0, 0, ?) ON CONFLICT(telegram_id) DO NOTHING`,
			telegramID, formatTime(time.Now())); err != nil {
			return false, fmt.Errorf("ensure account for deposit %d: %w", entryID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance = balance + ? WHERE telegram_id = ?`,
			amount, telegramID); err != nil {
			return false, fmt.Errorf("credit deposit %d: %w", entryID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit resolve deposit %d: %w", entryID, err)
	}

	s.logger.Info("Deposit resolved",
		zap.Int64("entry_id", entryID),
		zap.Int64("telegram_id", telegramID),
		zap.Int64("amount", amount),
		zap.String("status", string(status)),
		zap.Int64("resolved_by", resolvedBy),
	)
	return true, nil
}

// ListPendingDeposits returns unresolved deposits, oldest first.
func (s *Store) ListPendingDeposits(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, telegram_id, type, amount, status, receipt_file_id, description, resolved_by, created_at
		 FROM ledger_entries
		 WHERE type = 'deposit' AND status = 'pending'
		 ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending deposits: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending deposit: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedgerEntry(row rowScanner) (models.LedgerEntry, error) {
	var (
		entry      models.LedgerEntry
		entryType  string
		status     string
		resolvedBy sql.NullInt64
		createdAt  string
	)
	err := row.Scan(&entry.ID, &entry.TelegramID, &entryType, &entry.Amount, &status,
		&entry.ReceiptFileID, &entry.Description, &resolvedBy, &createdAt)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	entry.Type = models.LedgerEntryType(entryType)
	entry.Status = models.LedgerEntryStatus(status)
	if resolvedBy.Valid {
		entry.ResolvedBy = &resolvedBy.Int64
	}
	entry.CreatedAt = parseTime(createdAt)
	return entry, nil
}
