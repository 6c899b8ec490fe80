package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/walaka/erp/invoicing"
)

// RunMaintenance executes housekeeping tasks. Tasks are idempotent and safe
// to run multiple times. sweeper may be nil.
func RunMaintenance(ctx context.Context, s *Store, sweeper *invoicing.OverdueSweeper) error {
	start := time.Now()
	slog.Info("maintenance: start")

	// Try to acquire a DB-level singleton lock (Postgres only).
	unlock, err := tryAcquireLock(ctx, s)
	if err != nil {
		return err
	}
	if unlock != nil {
		defer unlock()
	}

	// 1) Move open invoices past their due date to overdue
	if sweeper != nil {
		if _, err := sweeper.Run(ctx); err != nil {
			return fmt.Errorf("overdue sweep: %w", err)
		}
	}

	// 2) Delete API tokens that are either disabled or expired
	if err := deleteInvalidAPITokens(ctx, s); err != nil {
		return fmt.Errorf("delete invalid API tokens: %w", err)
	}

	// 3) Run VACUUM/ANALYZE depending on the DB engine
	if err := vacuumAnalyze(ctx, s); err != nil {
		return fmt.Errorf("vacuum/analyze: %w", err)
	}

	slog.Info("maintenance: done", "duration", time.Since(start).Truncate(time.Millisecond).String())
	return nil
}

const maintenanceLockID = 73310042

func tryAcquireLock(ctx context.Context, s *Store) (func(), error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, err
	}

	switch s.db.Dialector.Name() {
	case "postgres":
		var got bool
		if err := sqlDB.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", maintenanceLockID).Scan(&got); err != nil {
			return nil, err
		}
		if !got {
			return nil, errors.New("another maintenance run is in progress")
		}
		return func() {
			_, _ = sqlDB.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", maintenanceLockID)
		}, nil
	default:
		// No locking available in SQLite
		return nil, nil
	}
}

// deleteInvalidAPITokens removes tokens that are explicitly disabled
// or past their expiration date.
func deleteInvalidAPITokens(ctx context.Context, s *Store) error {
	return s.db.WithContext(ctx).Unscoped().
		Where("disabled = ? OR (expires_at IS NOT NULL AND expires_at < ?)", true, time.Now()).
		Delete(&APIToken{}).Error
}

// vacuumAnalyze runs database cleanup commands depending on DB engine.
func vacuumAnalyze(ctx context.Context, s *Store) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	switch s.db.Dialector.Name() {
	case "postgres":
		_, err = sqlDB.ExecContext(ctx, "VACUUM (ANALYZE)")
	case "sqlite":
		_, err = sqlDB.ExecContext(ctx, "VACUUM")
		if err == nil {
			_, _ = sqlDB.ExecContext(ctx, "PRAGMA optimize")
		}
	}
	return err
}
