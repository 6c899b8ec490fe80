// model/invoice_service.go
package model

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/walaka/erp/invoicing"
)

// CreateInvoice inserts inv with its items and the "Invoice Created" timeline
// entry in one transaction. A taken number is reported as
// invoicing.ErrUniquenessConflict so that the caller can allocate again.
func (s *Store) CreateInvoice(ctx context.Context, inv *Invoice) error {
	inv.RecomputeTotals()
	if inv.Status == "" {
		inv.Status = invoicing.StatusPending
	}
	if inv.DocumentType == "" {
		inv.DocumentType = DocumentInvoice
	}
	if err := inv.Validate(); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if inv.ClientID != 0 {
			var n int64
			if err := tx.Model(&Client{}).
				Where("environment_id = ? AND id = ?", inv.EnvironmentID, inv.ClientID).
				Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrClientNotFound
			}
		}

		// ids may be left over from a failed attempt
		inv.ID = 0
		if err := checkRelatedInvoice(tx, inv); err != nil {
			return err
		}
		for i := range inv.Items {
			inv.Items[i].ID = 0
			inv.Items[i].InvoiceID = 0
		}
		if err := tx.Omit("Client").Create(inv).Error; err != nil {
			return err
		}

		ev, err := newTimelineEvent(inv.EnvironmentID, invoicing.TimelineEntry{
			InvoiceNumber: inv.Number,
			Title:         invoicing.TitleInvoiceCreated,
			Active:        true,
			Date:          inv.CreatedAt,
			Status:        inv.Status,
			ActorID:       inv.CreatedBy,
			Metadata: map[string]string{
				"user_id": inv.CreatedBy,
				"date":    inv.CreatedAt.UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return fmt.Errorf("create invoice %s: %w", inv.Number, invoicing.ErrUniquenessConflict)
	default:
		return fmt.Errorf("create invoice %s: %w", inv.Number, err)
	}
}

// LoadInvoice loads an invoice with its client and items.
func (s *Store) LoadInvoice(ctx context.Context, env, number string) (*Invoice, error) {
	var inv Invoice
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Client").
		Where("environment_id = ? AND number = ?", env, number).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &invoicing.NotFoundError{EnvironmentID: env, InvoiceNumber: number}
		}
		return nil, fmt.Errorf("load invoice %s: %w", number, err)
	}
	inv.RecomputeTotals()
	return &inv, nil
}

// UpdateInvoice replaces the editable fields and all items of an invoice.
// Only invoices whose status view allows editing can be changed.
func (s *Store) UpdateInvoice(ctx context.Context, inv *Invoice, table invoicing.TransitionTable) error {
	inv.RecomputeTotals()
	if err := inv.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur Invoice
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("environment_id = ? AND number = ?", inv.EnvironmentID, inv.Number).
			First(&cur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &invoicing.NotFoundError{EnvironmentID: inv.EnvironmentID, InvoiceNumber: inv.Number}
			}
			return err
		}
		if !table.View(cur.Status).CanEdit {
			return fmt.Errorf("%w: status %s", ErrInvoiceLocked, cur.Status)
		}
		if inv.ClientID != 0 && inv.ClientID != cur.ClientID {
			var n int64
			if err := tx.Model(&Client{}).
				Where("environment_id = ? AND id = ?", inv.EnvironmentID, inv.ClientID).
				Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrClientNotFound
			}
		}

		inv.ID = cur.ID
		inv.DocumentType = cur.DocumentType
		inv.RelatedInvoiceNumber = cur.RelatedInvoiceNumber
		if err := checkRelatedInvoice(tx, inv); err != nil {
			return err
		}

		updates := map[string]any{
			"reason":           inv.Reason,
			"client_id":        inv.ClientID,
			"currency":         inv.Currency,
			"issue_date":       inv.IssueDate,
			"due_date":         inv.DueDate,
			"notes":            inv.Notes,
			"exemption_reason": inv.ExemptionReason,
			"subtotal":         inv.Subtotal,
			"total_vat":        inv.TotalVAT,
			"total":            inv.Total,
		}
		if err := tx.Model(&Invoice{}).Where("id = ?", cur.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		if err := tx.Where("invoice_id = ?", cur.ID).Delete(&InvoiceItem{}).Error; err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		if len(inv.Items) > 0 {
			for i := range inv.Items {
				inv.Items[i].ID = 0
				inv.Items[i].InvoiceID = cur.ID
			}
			if err := tx.Omit("ID").Create(&inv.Items).Error; err != nil {
				return fmt.Errorf("recreate items: %w", err)
			}
		}
		inv.ID = cur.ID
		inv.Status = cur.Status
		return nil
	})
}

// DeleteInvoice soft deletes an invoice whose status view allows deleting.
// The status is checked and the row deleted in one transaction. The number
// stays reserved.
func (s *Store) DeleteInvoice(ctx context.Context, env, number, actorID string, table invoicing.TransitionTable) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur Invoice
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id", "status").
			Where("environment_id = ? AND number = ?", env, number).
			First(&cur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &invoicing.NotFoundError{EnvironmentID: env, InvoiceNumber: number}
			}
			return fmt.Errorf("delete invoice %s: %w", number, err)
		}
		if !table.View(cur.Status).CanDelete {
			return fmt.Errorf("%w: status %s", ErrInvoiceLocked, cur.Status)
		}
		// sqlite ignores FOR UPDATE, the status condition catches a concurrent change
		res := tx.Where("id = ? AND status = ?", cur.ID, cur.Status).Delete(&Invoice{})
		if res.Error != nil {
			return fmt.Errorf("delete invoice %s: %w", number, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("delete invoice %s: %w", number, invoicing.ErrStatusConflict)
		}
		now := time.Now()
		ev, err := newTimelineEvent(env, invoicing.TimelineEntry{
			InvoiceNumber: number,
			Title:         "Invoice Deleted",
			Date:          now,
			Status:        cur.Status,
			ActorID:       actorID,
			Metadata:      map[string]string{"user_id": actorID, "date": now.UTC().Format(time.RFC3339)},
		})
		if err != nil {
			return err
		}
		return tx.Create(ev).Error
	})
}

// checkRelatedInvoice verifies the invoice a credit or debit note refers
// to. Credit notes of one invoice may not add up to more than its total.
func checkRelatedInvoice(tx *gorm.DB, inv *Invoice) error {
	if !inv.DocumentType.IsNote() {
		return nil
	}
	var orig Invoice
	err := tx.Select("id", "document_type", "status", "total").
		Where("environment_id = ? AND number = ?", inv.EnvironmentID, inv.RelatedInvoiceNumber).
		First(&orig).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s does not exist", ErrRelatedInvoice, inv.RelatedInvoiceNumber)
	}
	if err != nil {
		return err
	}
	if orig.DocumentType != DocumentInvoice {
		return fmt.Errorf("%w: %s is a %s", ErrRelatedInvoice, inv.RelatedInvoiceNumber, orig.DocumentType)
	}
	if orig.Status == invoicing.StatusCancelled {
		return fmt.Errorf("%w: %s is cancelled", ErrRelatedInvoice, inv.RelatedInvoiceNumber)
	}
	if inv.DocumentType != DocumentCreditNote {
		return nil
	}

	var totals []decimal.Decimal
	if err := tx.Model(&Invoice{}).
		Where("environment_id = ? AND related_invoice_number = ? AND document_type = ? AND status <> ? AND id <> ?",
			inv.EnvironmentID, inv.RelatedInvoiceNumber, DocumentCreditNote, invoicing.StatusCancelled, inv.ID).
		Pluck("total", &totals).Error; err != nil {
		return err
	}
	credited := inv.Total
	for _, t := range totals {
		credited = credited.Add(t)
	}
	if credited.GreaterThan(orig.Total) {
		return fmt.Errorf("%w: %s credited %s of %s", ErrCreditExceedsInvoice,
			inv.RelatedInvoiceNumber, credited.StringFixed(2), orig.Total.StringFixed(2))
	}
	return nil
}

// Duplicate returns an unsaved copy of inv in pending state. Number, dates
// of sending and payment are not copied.
func (inv *Invoice) Duplicate(issueDate time.Time) *Invoice {
	cp := &Invoice{
		EnvironmentID:   inv.EnvironmentID,
		DocumentType:    inv.DocumentType,
		ClientID:        inv.ClientID,
		Currency:        inv.Currency,
		IssueDate:       issueDate,
		Status:          invoicing.StatusPending,
		Notes:           inv.Notes,
		ExemptionReason: inv.ExemptionReason,

		RelatedInvoiceNumber: inv.RelatedInvoiceNumber,
		Reason:               inv.Reason,
	}
	if !inv.DueDate.IsZero() && !inv.IssueDate.IsZero() {
		cp.DueDate = issueDate.Add(inv.DueDate.Sub(inv.IssueDate))
	}
	for _, it := range inv.Items {
		cp.Items = append(cp.Items, InvoiceItem{
			ProductID:   it.ProductID,
			Position:    it.Position,
			Description: it.Description,
			UnitCode:    it.UnitCode,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			VATRate:     it.VATRate,
		})
	}
	cp.RecomputeTotals()
	return cp
}

// InvoiceListQuery captures filter, paging, and sorting options for listing invoices.
type InvoiceListQuery struct {
	Status       string    `form:"status"`
	ClientID     uint      `form:"client_id"`
	DocumentType string    `form:"document_type"`
	Related      string    `form:"related_invoice"` // notes correcting this invoice
	From         time.Time `form:"from"`
	To           time.Time `form:"to"`
	Limit        int       `form:"limit"`  // 1–200, defaults to 50
	Cursor       string    `form:"cursor"` // offset encoded as a string
	Sort         string    `form:"sort"`   // "date_desc" (default), "date_asc", "number_desc", "created_desc"
}

// ListInvoices returns a page of invoices for the given environment along
// with the next cursor. It fetches Limit+1 rows to know whether there is a
// next page.
func (s *Store) ListInvoices(ctx context.Context, env string, q InvoiceListQuery) (items []Invoice, nextCursor string, err error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	offset := 0
	if q.Cursor != "" {
		if n, e := strconv.Atoi(q.Cursor); e == nil && n >= 0 {
			offset = n
		}
	}

	db := s.db.WithContext(ctx).Model(&Invoice{}).Preload("Client").Where("environment_id = ?", env)
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.ClientID != 0 {
		db = db.Where("client_id = ?", q.ClientID)
	}
	if q.DocumentType != "" {
		db = db.Where("document_type = ?", q.DocumentType)
	}
	if q.Related != "" {
		db = db.Where("related_invoice_number = ?", q.Related)
	}
	if !q.From.IsZero() {
		db = db.Where("issue_date >= ?", q.From)
	}
	if !q.To.IsZero() {
		db = db.Where("issue_date < ?", q.To)
	}

	switch q.Sort {
	case "date_asc":
		db = db.Order("issue_date asc").Order("id asc")
	case "number_desc":
		db = db.Order("LENGTH(number) desc").Order("number desc")
	case "created_desc":
		db = db.Order("created_at desc")
	default:
		db = db.Order("issue_date desc").Order("id desc")
	}

	var invs []Invoice
	if err = db.Offset(offset).Limit(q.Limit + 1).Find(&invs).Error; err != nil {
		return nil, "", fmt.Errorf("list invoices: %w", err)
	}
	if len(invs) > q.Limit {
		invs = invs[:q.Limit]
		nextCursor = strconv.Itoa(offset + q.Limit)
	}
	return invs, nextCursor, nil
}

// InvoicesInPeriod returns all invoices issued in [from, to) with items and
// clients, ordered by issue date. Used by the exports.
func (s *Store) InvoicesInPeriod(ctx context.Context, env string, from, to time.Time) ([]Invoice, error) {
	var invs []Invoice
	db := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Client").
		Where("environment_id = ?", env)
	if !from.IsZero() {
		db = db.Where("issue_date >= ?", from)
	}
	if !to.IsZero() {
		db = db.Where("issue_date < ?", to)
	}
	if err := db.Order("issue_date asc").Order("id asc").Find(&invs).Error; err != nil {
		return nil, fmt.Errorf("invoices in period: %w", err)
	}
	for i := range invs {
		invs[i].RecomputeTotals()
	}
	return invs, nil
}

// StatusMetric aggregates the invoices of one status.
type StatusMetric struct {
	Status invoicing.Status
	Count  int64
	Total  decimal.Decimal
}

// InvoiceMetrics counts and sums the invoices of an environment per status.
func (s *Store) InvoiceMetrics(ctx context.Context, env string) ([]StatusMetric, error) {
	var rows []StatusMetric
	err := s.db.WithContext(ctx).Model(&Invoice{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total), 0) AS total").
		Where("environment_id = ?", env).
		Group("status").
		Order("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("invoice metrics: %w", err)
	}
	return rows, nil
}
