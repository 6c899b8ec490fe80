package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/walaka/erp/invoicing"
)

// LastInvoiceNumber returns the numerically greatest number with the given
// prefix, including soft deleted invoices. Ordering by length first keeps
// INV-2025-100000 above INV-2025-99999.
func (s *Store) LastInvoiceNumber(ctx context.Context, env, prefix string) (string, error) {
	var numbers []string
	err := s.db.WithContext(ctx).Unscoped().Model(&Invoice{}).
		Where("environment_id = ? AND number LIKE ? ESCAPE '\\'", env, likeEscape(prefix)+"%").
		Order("LENGTH(number) DESC").Order("number DESC").
		Limit(1).
		Pluck("number", &numbers).Error
	if err != nil {
		return "", fmt.Errorf("last invoice number: %w", err)
	}
	if len(numbers) == 0 {
		return "", nil
	}
	return numbers[0], nil
}

// InvoiceNumberExists reports whether number is taken, including by soft
// deleted invoices.
func (s *Store) InvoiceNumberExists(ctx context.Context, env, number string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Unscoped().Model(&Invoice{}).
		Where("environment_id = ? AND number = ?", env, number).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check invoice number: %w", err)
	}
	return n > 0, nil
}

// LoadInvoiceStatus returns the stored status of an invoice.
func (s *Store) LoadInvoiceStatus(ctx context.Context, env, number string) (invoicing.Status, error) {
	var inv Invoice
	err := s.db.WithContext(ctx).Select("id", "status").
		Where("environment_id = ? AND number = ?", env, number).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", &invoicing.NotFoundError{EnvironmentID: env, InvoiceNumber: number}
		}
		return "", fmt.Errorf("load invoice status: %w", err)
	}
	return inv.Status, nil
}

// ApplyStatusChange updates the status only if it still equals change.From
// and appends the timeline entry, both in one transaction.
func (s *Store) ApplyStatusChange(ctx context.Context, change invoicing.StatusChange) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Invoice{}).
			Where("environment_id = ? AND number = ? AND status = ?", change.EnvironmentID, change.InvoiceNumber, change.From).
			Updates(change.Fields())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&Invoice{}).
				Where("environment_id = ? AND number = ?", change.EnvironmentID, change.InvoiceNumber).
				Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return &invoicing.NotFoundError{EnvironmentID: change.EnvironmentID, InvoiceNumber: change.InvoiceNumber}
			}
			return invoicing.ErrStatusConflict
		}

		ev, err := newTimelineEvent(change.EnvironmentID, change.Event)
		if err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
}

// DueInvoices lists invoices of all environments in one of statuses whose
// due date lies before the cutoff.
func (s *Store) DueInvoices(ctx context.Context, before time.Time, statuses []invoicing.Status) ([]invoicing.InvoiceRef, error) {
	var rows []Invoice
	err := s.db.WithContext(ctx).Select("environment_id", "number").
		Where("status IN ? AND due_date < ?", statuses, before).
		Order("environment_id").Order("number").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("due invoices: %w", err)
	}
	refs := make([]invoicing.InvoiceRef, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, invoicing.InvoiceRef{EnvironmentID: r.EnvironmentID, Number: r.Number})
	}
	return refs, nil
}

var (
	_ invoicing.NumberStore      = (*Store)(nil)
	_ invoicing.StatusStore      = (*Store)(nil)
	_ invoicing.DueInvoiceFinder = (*Store)(nil)
)
