package model

import "fmt"

var (
	ErrTokenExpired  = fmt.Errorf("token expired")
	ErrTokenInvalid  = fmt.Errorf("token invalid")
	ErrTokenNotFound = fmt.Errorf("token not found")
	ErrTokenDisabled = fmt.Errorf("token disabled")

	ErrClientNotFound = fmt.Errorf("client not found")
	ErrClientInUse    = fmt.Errorf("client still referenced by invoices")

	// ErrInvoiceLocked is returned when editing an invoice whose status
	// does not allow changes any more.
	ErrInvoiceLocked = fmt.Errorf("invoice can no longer be edited")

	// ErrRelatedInvoice is returned when a credit or debit note names no
	// invoice, an unknown one, or one it cannot correct.
	ErrRelatedInvoice = fmt.Errorf("related invoice invalid")
	// ErrCreditExceedsInvoice is returned when the credit notes of an
	// invoice would add up to more than the invoice itself.
	ErrCreditExceedsInvoice = fmt.Errorf("credit notes exceed the invoice total")

	ErrTimelineImmutable = fmt.Errorf("timeline events cannot be modified")

	ErrProductNotFound = fmt.Errorf("product not found")

	ErrReceiptNotFound = fmt.Errorf("receipt not found")
	// ErrInvoiceNotPaid is returned when a receipt is issued for an invoice
	// that is not marked paid.
	ErrInvoiceNotPaid = fmt.Errorf("invoice is not paid")
	// ErrReceiptExceedsBalance is returned when the receipts of an invoice
	// would add up to more than its total.
	ErrReceiptExceedsBalance = fmt.Errorf("receipt amount exceeds the open balance")

	ErrUserNotFound = fmt.Errorf("user not found")
	ErrUserDisabled = fmt.Errorf("user disabled")
	ErrUserExists   = fmt.Errorf("user already exists")
)
