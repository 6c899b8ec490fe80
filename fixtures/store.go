// Package fixtures provides test stores and builders for the model and
// controller tests.
package fixtures

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"

	"github.com/walaka/erp/invoicing"
	"github.com/walaka/erp/model"
)

const (
	// DefaultEnvironmentID is the tenant all seeded data belongs to.
	DefaultEnvironmentID = "7f1c2a9e-3b4d-4c5e-8f60-1a2b3c4d5e6f"
	// OtherEnvironmentID is a second tenant for isolation tests.
	OtherEnvironmentID = "0e9d8c7b-6a5f-4e3d-9c2b-1a0f9e8d7c6b"
	// DefaultUserID is the acting user of seeded data.
	DefaultUserID = "a3c5e7f9-1b2d-4f6a-8c0e-2d4f6a8c0e1b"
	DefaultEmail  = "ana@example.co.mz"
)

// TestConfig returns a configuration suitable for in-memory tests.
func TestConfig() *model.Config {
	return &model.Config{
		Mode: "test",
		Servers: map[string]model.ServerConfig{
			"test": {Database: "sqlite3", DBLogger: "silent"},
		},
	}
}

// NewTestStore opens a fresh in-memory sqlite database with the schema
// applied. The database is closed when the test ends.
func NewTestStore(t *testing.T) *model.Store {
	t.Helper()
	store, err := model.Open(sqlite.Open("file::memory:?_pragma=foreign_keys(1)"), TestConfig())
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	sqlDB, err := store.DB().DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// every connection would get its own in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// UserContext returns a context carrying the default user of env.
func UserContext(env string) context.Context {
	return invoicing.WithActor(context.Background(), invoicing.Actor{
		UserID:        DefaultUserID,
		Email:         DefaultEmail,
		EnvironmentID: env,
	})
}

// TestData is what SeedTestData inserted.
type TestData struct {
	User     *model.User
	Settings *model.Settings
	Client   *model.Client
	Invoice  *model.Invoice
}

// SeedTestData creates the admin user, settings, a client and one pending
// invoice in the default environment.
func SeedTestData(t *testing.T, store *model.Store) *TestData {
	t.Helper()
	ctx := context.Background()

	u := User()
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	st := Settings()
	if err := store.SaveSettings(ctx, st); err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	c := Client()
	if err := store.SaveClient(ctx, c); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	inv := Invoice(WithInvoiceClientID(c.ID), WithInvoiceItems(SampleItems()...))
	if err := store.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return &TestData{User: u, Settings: st, Client: c, Invoice: inv}
}

// User returns the admin of the default environment.
func User() *model.User {
	return &model.User{
		ID:            DefaultUserID,
		EnvironmentID: DefaultEnvironmentID,
		Email:         DefaultEmail,
		Username:      "ana",
		Role:          invoicing.RoleAdmin,
		Status:        model.UserActive,
	}
}

// Product returns an unsaved catalog entry of the default environment.
func Product() *model.Product {
	return &model.Product{
		EnvironmentID: DefaultEnvironmentID,
		Description:   "Consultoria",
		UnitCode:      "HUR",
		Price:         decimal.NewFromInt(1500),
		TaxRate:       decimal.NewFromInt(16),
		Industry:      "Serviços",
	}
}

// MarkPaid moves a pending invoice of the default environment to paid.
func MarkPaid(t *testing.T, store *model.Store, number string) {
	t.Helper()
	change := invoicing.BuildStatusChange(DefaultEnvironmentID, number,
		invoicing.StatusPending, invoicing.StatusPaid,
		invoicing.PaymentMetadata{PaymentMethod: "mpesa", PaymentReference: "MP250310.1200.A1"},
		invoicing.Actor{UserID: DefaultUserID}, time.Now())
	if err := store.ApplyStatusChange(context.Background(), change); err != nil {
		t.Fatalf("mark %s paid: %v", number, err)
	}
}

// Settings returns the seller settings of the default environment.
func Settings() *model.Settings {
	return &model.Settings{
		EnvironmentID:       DefaultEnvironmentID,
		CompanyName:         "Walaka Serviços Lda",
		TaxID:               "400123456",
		InvoiceContact:      "Ana Macuácua",
		InvoiceEMail:        "facturas@walaka.co.mz",
		Address1:            "Av. Julius Nyerere 1234",
		City:                "Maputo",
		ZIP:                 "1100",
		CountryCode:         "MZ",
		BankName:            "BCI",
		BankIBAN:            "MZ59000800000012345678901",
		BankBIC:             "CGDIMZMA",
		PaymentTermDays:     30,
		SoftwareCertificate: "0000/AT",
	}
}

// ClientOption modifies a client built by Client.
type ClientOption func(*model.Client)

func WithClientName(name string) ClientOption {
	return func(c *model.Client) { c.Name = name }
}

func WithClientEnvironment(env string) ClientOption {
	return func(c *model.Client) { c.EnvironmentID = env }
}

func WithClientEmail(email string) ClientOption {
	return func(c *model.Client) { c.Email = email }
}

// Client builds an unsaved client of the default environment.
func Client(opts ...ClientOption) *model.Client {
	c := &model.Client{
		EnvironmentID:  DefaultEnvironmentID,
		Name:           "Machava Comércio",
		CustomerNumber: "C-0001",
		TaxID:          "400987654",
		Email:          "contas@machava.co.mz",
		Phone:          "+258 84 123 4567",
		Address1:       "Rua da Resistência 55",
		City:           "Matola",
		ZIP:            "1114",
		Country:        "Mozambique",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// InvoiceOption modifies an invoice built by Invoice.
type InvoiceOption func(*model.Invoice)

func WithInvoiceNumber(n string) InvoiceOption {
	return func(inv *model.Invoice) { inv.Number = n }
}

func WithInvoiceClientID(id uint) InvoiceOption {
	return func(inv *model.Invoice) { inv.ClientID = id }
}

func WithInvoiceEnvironment(env string) InvoiceOption {
	return func(inv *model.Invoice) { inv.EnvironmentID = env }
}

func WithInvoiceStatus(s invoicing.Status) InvoiceOption {
	return func(inv *model.Invoice) { inv.Status = s }
}

func WithInvoiceDates(issue, due time.Time) InvoiceOption {
	return func(inv *model.Invoice) {
		inv.IssueDate = issue
		inv.DueDate = due
	}
}

func WithInvoiceType(dt model.DocumentType) InvoiceOption {
	return func(inv *model.Invoice) { inv.DocumentType = dt }
}

// WithRelatedInvoice turns the invoice into a note correcting number.
func WithRelatedInvoice(number, reason string) InvoiceOption {
	return func(inv *model.Invoice) {
		inv.RelatedInvoiceNumber = number
		inv.Reason = reason
	}
}

func WithInvoiceItems(items ...model.InvoiceItem) InvoiceOption {
	return func(inv *model.Invoice) { inv.Items = items }
}

// Invoice builds an unsaved invoice of the default environment.
func Invoice(opts ...InvoiceOption) *model.Invoice {
	issue := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	inv := &model.Invoice{
		EnvironmentID: DefaultEnvironmentID,
		Number:        "INV-2025-00001",
		DocumentType:  model.DocumentInvoice,
		Currency:      "MZN",
		IssueDate:     issue,
		DueDate:       issue.AddDate(0, 0, 30),
		Status:        invoicing.StatusPending,
		CreatedBy:     DefaultUserID,
	}
	for _, o := range opts {
		o(inv)
	}
	return inv
}

// Item returns an invoice line.
func Item(pos int, desc string, qty, price, vat float64) model.InvoiceItem {
	return model.InvoiceItem{
		Position:    pos,
		Description: desc,
		UnitCode:    "C62",
		Quantity:    decimal.NewFromFloat(qty),
		UnitPrice:   decimal.NewFromFloat(price),
		VATRate:     decimal.NewFromFloat(vat),
	}
}

// SampleItems are three lines at the standard rate of 16%.
func SampleItems() []model.InvoiceItem {
	return []model.InvoiceItem{
		Item(1, "Consultoria", 8, 1500, 16),
		Item(2, "Deslocação", 2, 750, 16),
		Item(3, "Licença anual", 1, 5000, 16),
	}
}

// ExemptItems are VAT exempt lines.
func ExemptItems() []model.InvoiceItem {
	return []model.InvoiceItem{
		Item(1, "Formação", 10, 150, 0),
		Item(2, "Material didáctico", 5, 200, 0),
	}
}
