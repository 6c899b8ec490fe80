package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/walaka/erp/invoicing"
)

// DefaultReceiptPrefix starts receipt numbers, REC-2025-00001.
const DefaultReceiptPrefix = "REC"

// Receipt acknowledges a payment of a paid invoice. An invoice may have
// several receipts as long as they do not exceed its total.
type Receipt struct {
	gorm.Model
	EnvironmentID string          `gorm:"size:64;not null;uniqueIndex:ux_receipts_env_number,priority:1"`
	Number        string          `gorm:"size:64;not null;uniqueIndex:ux_receipts_env_number,priority:2"`
	InvoiceID     uint            `gorm:"index;not null"`
	Invoice       Invoice         `gorm:"constraint:OnDelete:RESTRICT"`
	InvoiceNumber string          `gorm:"size:64;not null;index"`
	ClientID      uint            `gorm:"index"`
	PaymentDate   time.Time       `gorm:"index"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,8)"`
	Currency      string          `gorm:"size:3"`
	PaymentMethod string          `gorm:"size:50"`
	Reference     string          `gorm:"size:100"`
	Notes         string
	CreatedBy     string `gorm:"size:64"`
}

// ReceiptNumbers is the number sequence of receipts. It satisfies
// invoicing.NumberStore so that receipts are allocated like invoices.
type ReceiptNumbers struct{ s *Store }

// ReceiptNumbers returns the receipt number sequence of s.
func (s *Store) ReceiptNumbers() ReceiptNumbers { return ReceiptNumbers{s: s} }

func (r ReceiptNumbers) LastInvoiceNumber(ctx context.Context, env, prefix string) (string, error) {
	var numbers []string
	err := r.s.db.WithContext(ctx).Unscoped().Model(&Receipt{}).
		Where("environment_id = ? AND number LIKE ? ESCAPE '\\'", env, likeEscape(prefix)+"%").
		Order("LENGTH(number) DESC").Order("number DESC").
		Limit(1).
		Pluck("number", &numbers).Error
	if err != nil {
		return "", fmt.Errorf("last receipt number: %w", err)
	}
	if len(numbers) == 0 {
		return "", nil
	}
	return numbers[0], nil
}

func (r ReceiptNumbers) InvoiceNumberExists(ctx context.Context, env, number string) (bool, error) {
	var n int64
	err := r.s.db.WithContext(ctx).Unscoped().Model(&Receipt{}).
		Where("environment_id = ? AND number = ?", env, number).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check receipt number: %w", err)
	}
	return n > 0, nil
}

var _ invoicing.NumberStore = ReceiptNumbers{}

// CreateReceipt issues rc for the paid invoice rc.InvoiceNumber. A zero
// amount receipts the open balance; payment method and date default to the
// ones recorded on the invoice. The invoice timeline gets a
// "Receipt Issued" entry in the same transaction.
func (s *Store) CreateReceipt(ctx context.Context, rc *Receipt) error {
	if rc.EnvironmentID == "" {
		return fmt.Errorf("receipt: %w", invoicing.ErrNoEnvironment)
	}
	if rc.Number == "" {
		return fmt.Errorf("receipt: number missing")
	}
	if rc.Amount.IsNegative() {
		return fmt.Errorf("receipt %s: negative amount", rc.Number)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv Invoice
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("environment_id = ? AND number = ?", rc.EnvironmentID, rc.InvoiceNumber).
			First(&inv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &invoicing.NotFoundError{EnvironmentID: rc.EnvironmentID, InvoiceNumber: rc.InvoiceNumber}
			}
			return err
		}
		if inv.Status != invoicing.StatusPaid {
			return fmt.Errorf("receipt for %s: %w (status %s)", inv.Number, ErrInvoiceNotPaid, inv.Status)
		}

		var amounts []decimal.Decimal
		if err := tx.Model(&Receipt{}).Where("invoice_id = ?", inv.ID).Pluck("amount", &amounts).Error; err != nil {
			return err
		}
		receipted := decimal.Zero
		for _, a := range amounts {
			receipted = receipted.Add(a)
		}
		open := inv.Total.Sub(receipted)
		if rc.Amount.IsZero() {
			rc.Amount = open
		}
		if !rc.Amount.IsPositive() || rc.Amount.GreaterThan(open) {
			return fmt.Errorf("receipt for %s: %w: %s open", inv.Number, ErrReceiptExceedsBalance, open.StringFixed(2))
		}

		rc.ID = 0
		rc.InvoiceID = inv.ID
		rc.ClientID = inv.ClientID
		rc.Currency = inv.Currency
		if rc.PaymentMethod == "" {
			rc.PaymentMethod = inv.PaymentMethod
		}
		if rc.Reference == "" {
			rc.Reference = inv.PaymentReference
		}
		if rc.PaymentDate.IsZero() {
			rc.PaymentDate = time.Now()
			if inv.PaymentDate != nil {
				rc.PaymentDate = *inv.PaymentDate
			}
		}
		if err := tx.Omit("Invoice").Create(rc).Error; err != nil {
			return err
		}

		ev, err := newTimelineEvent(rc.EnvironmentID, invoicing.TimelineEntry{
			InvoiceNumber: inv.Number,
			Title:         "Receipt Issued",
			Active:        true,
			Date:          rc.CreatedAt,
			Status:        inv.Status,
			ActorID:       rc.CreatedBy,
			Metadata: map[string]string{
				"receipt_number": rc.Number,
				"amount":         rc.Amount.StringFixed(2),
				"payment_method": rc.PaymentMethod,
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
		return fmt.Errorf("create receipt %s: %w", rc.Number, invoicing.ErrUniquenessConflict)
	default:
		return fmt.Errorf("create receipt %s: %w", rc.Number, err)
	}
}

// LoadReceipt loads a receipt with its invoice and client.
func (s *Store) LoadReceipt(ctx context.Context, env, number string) (*Receipt, error) {
	var rc Receipt
	err := s.db.WithContext(ctx).Preload("Invoice.Client").
		Where("environment_id = ? AND number = ?", env, number).
		First(&rc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("load receipt %s: %w", number, err)
	}
	return &rc, nil
}

// ListReceipts returns the receipts of an environment, newest payment
// first. A non empty invoiceNumber restricts the list to that invoice.
func (s *Store) ListReceipts(ctx context.Context, env, invoiceNumber string) ([]Receipt, error) {
	receipts := make([]Receipt, 0)
	db := s.db.WithContext(ctx).Preload("Invoice.Client").Where("environment_id = ?", env)
	if invoiceNumber != "" {
		db = db.Where("invoice_number = ?", invoiceNumber)
	}
	if err := db.Order("payment_date desc").Order("id desc").Find(&receipts).Error; err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return receipts, nil
}

// ReceiptsInPeriod returns the receipts with a payment date in [from, to)
// for the SAF-T payments section.
func (s *Store) ReceiptsInPeriod(ctx context.Context, env string, from, to time.Time) ([]Receipt, error) {
	var receipts []Receipt
	err := s.db.WithContext(ctx).Preload("Invoice.Client").
		Where("environment_id = ? AND payment_date >= ? AND payment_date < ?", env, from, to).
		Order("payment_date asc").Order("id asc").
		Find(&receipts).Error
	if err != nil {
		return nil, fmt.Errorf("receipts in period: %w", err)
	}
	return receipts, nil
}
