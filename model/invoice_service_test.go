package model_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/walaka/erp/fixtures"
	"github.com/walaka/erp/invoicing"
	"github.com/walaka/erp/model"
)

func TestCreateInvoice_WritesTimeline(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	ctx := context.Background()

	loaded, err := store.LoadInvoice(ctx, fixtures.DefaultEnvironmentID, data.Invoice.Number)
	if err != nil {
		t.Fatalf("LoadInvoice failed: %v", err)
	}
	if loaded.Status != invoicing.StatusPending {
		t.Errorf("Status = %q, want pending", loaded.Status)
	}
	if len(loaded.Items) != 3 {
		t.Errorf("len(Items) = %d, want 3", len(loaded.Items))
	}
	if loaded.Client.Name != data.Client.Name {
		t.Errorf("Client.Name = %q, want %q", loaded.Client.Name, data.Client.Name)
	}

	events, err := store.LoadTimeline(ctx, fixtures.DefaultEnvironmentID, data.Invoice.Number)
	if err != nil {
		t.Fatalf("LoadTimeline failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Title != invoicing.TitleInvoiceCreated {
		t.Errorf("Title = %q, want %q", events[0].Title, invoicing.TitleInvoiceCreated)
	}
	if got := events[0].MetadataMap()["user_id"]; got != fixtures.DefaultUserID {
		t.Errorf("metadata user_id = %q, want %q", got, fixtures.DefaultUserID)
	}
}

func TestCreateInvoice_DuplicateNumber(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)

	dup := fixtures.Invoice(fixtures.WithInvoiceClientID(data.Client.ID))
	err := store.CreateInvoice(context.Background(), dup)
	if !errors.Is(err, invoicing.ErrUniquenessConflict) {
		t.Fatalf("CreateInvoice error = %v, want ErrUniquenessConflict", err)
	}
}

func TestCreateInvoice_SameNumberOtherEnvironment(t *testing.T) {
	store := fixtures.NewTestStore(t)
	fixtures.SeedTestData(t, store)
	ctx := context.Background()

	c := fixtures.Client(fixtures.WithClientEnvironment(fixtures.OtherEnvironmentID))
	if err := store.SaveClient(ctx, c); err != nil {
		t.Fatalf("SaveClient failed: %v", err)
	}
	inv := fixtures.Invoice(
		fixtures.WithInvoiceEnvironment(fixtures.OtherEnvironmentID),
		fixtures.WithInvoiceClientID(c.ID),
	)
	if err := store.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("CreateInvoice in other environment failed: %v", err)
	}
}

func TestCreateInvoice_ForeignClient(t *testing.T) {
	store := fixtures.NewTestStore(t)
	ctx := context.Background()

	c := fixtures.Client(fixtures.WithClientEnvironment(fixtures.OtherEnvironmentID))
	if err := store.SaveClient(ctx, c); err != nil {
		t.Fatalf("SaveClient failed: %v", err)
	}
	inv := fixtures.Invoice(fixtures.WithInvoiceClientID(c.ID))
	if err := store.CreateInvoice(ctx, inv); !errors.Is(err, model.ErrClientNotFound) {
		t.Fatalf("CreateInvoice error = %v, want ErrClientNotFound", err)
	}
}

func TestLoadInvoice_NotFound(t *testing.T) {
	store := fixtures.NewTestStore(t)
	fixtures.SeedTestData(t, store)

	_, err := store.LoadInvoice(context.Background(), fixtures.OtherEnvironmentID, "INV-2025-00001")
	var nf *invoicing.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("LoadInvoice error = %v, want NotFoundError", err)
	}
	if !errors.Is(err, invoicing.ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
}

func TestUpdateInvoice(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	ctx := context.Background()

	upd := fixtures.Invoice(
		fixtures.WithInvoiceClientID(data.Client.ID),
		fixtures.WithInvoiceItems(fixtures.Item(1, "Só uma linha", 2, 50, 16)),
	)
	upd.Notes = "Pagamento por M-Pesa"
	if err := store.UpdateInvoice(ctx, upd, invoicing.DefaultTransitions()); err != nil {
		t.Fatalf("UpdateInvoice failed: %v", err)
	}

	loaded, err := store.LoadInvoice(ctx, fixtures.DefaultEnvironmentID, upd.Number)
	if err != nil {
		t.Fatalf("LoadInvoice failed: %v", err)
	}
	if len(loaded.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(loaded.Items))
	}
	if loaded.Total.String() != "116" {
		t.Errorf("Total = %s, want 116", loaded.Total)
	}
	if loaded.Notes != "Pagamento por M-Pesa" {
		t.Errorf("Notes = %q", loaded.Notes)
	}
}

func TestUpdateInvoice_Locked(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	ctx := context.Background()

	paid := invoicing.BuildStatusChange(fixtures.DefaultEnvironmentID, data.Invoice.Number,
		invoicing.StatusPending, invoicing.StatusPaid, invoicing.PaymentMetadata{},
		invoicing.Actor{UserID: fixtures.DefaultUserID}, time.Now())
	if err := store.ApplyStatusChange(ctx, paid); err != nil {
		t.Fatalf("ApplyStatusChange failed: %v", err)
	}

	upd := fixtures.Invoice(fixtures.WithInvoiceClientID(data.Client.ID))
	err := store.UpdateInvoice(ctx, upd, invoicing.DefaultTransitions())
	if !errors.Is(err, model.ErrInvoiceLocked) {
		t.Fatalf("UpdateInvoice error = %v, want ErrInvoiceLocked", err)
	}
}

func TestDeleteInvoice_NumberStaysReserved(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	ctx := context.Background()
	env := fixtures.DefaultEnvironmentID

	if err := store.DeleteInvoice(ctx, env, data.Invoice.Number, fixtures.DefaultUserID, invoicing.DefaultTransitions()); err != nil {
		t.Fatalf("DeleteInvoice failed: %v", err)
	}
	if _, err := store.LoadInvoice(ctx, env, data.Invoice.Number); !errors.Is(err, invoicing.ErrNotFound) {
		t.Errorf("LoadInvoice after delete error = %v, want ErrNotFound", err)
	}

	exists, err := store.InvoiceNumberExists(ctx, env, data.Invoice.Number)
	if err != nil {
		t.Fatalf("InvoiceNumberExists failed: %v", err)
	}
	if !exists {
		t.Error("deleted number should still be reserved")
	}
	last, err := store.LastInvoiceNumber(ctx, env, "INV-2025-")
	if err != nil {
		t.Fatalf("LastInvoiceNumber failed: %v", err)
	}
	if last != data.Invoice.Number {
		t.Errorf("LastInvoiceNumber = %q, want %q", last, data.Invoice.Number)
	}

	events, _ := store.LoadTimeline(ctx, env, data.Invoice.Number)
	if len(events) != 2 || events[1].Title != "Invoice Deleted" {
		t.Errorf("timeline = %+v, want created and deleted entries", events)
	}

	if err := store.DeleteInvoice(ctx, env, data.Invoice.Number, fixtures.DefaultUserID, invoicing.DefaultTransitions()); !errors.Is(err, invoicing.ErrNotFound) {
		t.Errorf("second DeleteInvoice error = %v, want ErrNotFound", err)
	}
}

func TestDeleteInvoice_LockedAfterPayment(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	ctx := context.Background()
	env := fixtures.DefaultEnvironmentID
	fixtures.MarkPaid(t, store, data.Invoice.Number)

	err := store.DeleteInvoice(ctx, env, data.Invoice.Number, fixtures.DefaultUserID, invoicing.DefaultTransitions())
	if !errors.Is(err, model.ErrInvoiceLocked) {
		t.Fatalf("DeleteInvoice error = %v, want ErrInvoiceLocked", err)
	}
	if _, err := store.LoadInvoice(ctx, env, data.Invoice.Number); err != nil {
		t.Errorf("paid invoice should still load: %v", err)
	}
	events, _ := store.LoadTimeline(ctx, env, data.Invoice.Number)
	for _, ev := range events {
		if ev.Title == "Invoice Deleted" {
			t.Errorf("unexpected delete entry in timeline: %+v", ev)
		}
	}
}

func TestListInvoices(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	ctx := context.Background()

	for _, n := range []string{"INV-2025-00002", "INV-2025-00003", "INV-2025-00004"} {
		inv := fixtures.Invoice(fixtures.WithInvoiceNumber(n), fixtures.WithInvoiceClientID(data.Client.ID))
		if err := store.CreateInvoice(ctx, inv); err != nil {
			t.Fatalf("CreateInvoice %s failed: %v", n, err)
		}
	}

	page, next, err := store.ListInvoices(ctx, fixtures.DefaultEnvironmentID, model.InvoiceListQuery{Limit: 3, Sort: "number_desc"})
	if err != nil {
		t.Fatalf("ListInvoices failed: %v", err)
	}
	if len(page) != 3 || next != "3" {
		t.Fatalf("got %d items, next %q; want 3 items, next \"3\"", len(page), next)
	}
	if page[0].Number != "INV-2025-00004" {
		t.Errorf("first = %q, want INV-2025-00004", page[0].Number)
	}

	rest, next, err := store.ListInvoices(ctx, fixtures.DefaultEnvironmentID, model.InvoiceListQuery{Limit: 3, Cursor: next, Sort: "number_desc"})
	if err != nil {
		t.Fatalf("ListInvoices page 2 failed: %v", err)
	}
	if len(rest) != 1 || next != "" {
		t.Errorf("page 2: %d items, next %q; want 1 item, no cursor", len(rest), next)
	}

	paid, _, err := store.ListInvoices(ctx, fixtures.DefaultEnvironmentID, model.InvoiceListQuery{Status: "paid"})
	if err != nil {
		t.Fatalf("ListInvoices by status failed: %v", err)
	}
	if len(paid) != 0 {
		t.Errorf("len(paid) = %d, want 0", len(paid))
	}
}

func TestInvoiceMetrics(t *testing.T) {
	store := fixtures.NewTestStore(t)
	fixtures.SeedTestData(t, store)

	metrics, err := store.InvoiceMetrics(context.Background(), fixtures.DefaultEnvironmentID)
	if err != nil {
		t.Fatalf("InvoiceMetrics failed: %v", err)
	}
	if len(metrics) != 1 {
		t.Fatalf("len(metrics) = %d, want 1", len(metrics))
	}
	if metrics[0].Status != invoicing.StatusPending || metrics[0].Count != 1 {
		t.Errorf("metrics[0] = %+v", metrics[0])
	}
}

func TestCreateInvoice_CreditNoteRelation(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	ctx := context.Background()

	note := func(number, related string, price float64) *model.Invoice {
		return fixtures.Invoice(
			fixtures.WithInvoiceNumber(number),
			fixtures.WithInvoiceType(model.DocumentCreditNote),
			fixtures.WithRelatedInvoice(related, "Devolução"),
			fixtures.WithInvoiceClientID(data.Client.ID),
			fixtures.WithInvoiceItems(fixtures.Item(1, "Devolução", 1, price, 16)),
		)
	}

	missing := fixtures.Invoice(
		fixtures.WithInvoiceNumber("NC-2025-00001"),
		fixtures.WithInvoiceType(model.DocumentCreditNote),
		fixtures.WithInvoiceClientID(data.Client.ID),
	)
	if err := store.CreateInvoice(ctx, missing); !errors.Is(err, model.ErrRelatedInvoice) {
		t.Errorf("note without related invoice error = %v, want ErrRelatedInvoice", err)
	}
	if err := store.CreateInvoice(ctx, note("NC-2025-00001", "INV-2025-00404", 100)); !errors.Is(err, model.ErrRelatedInvoice) {
		t.Errorf("unknown related invoice error = %v, want ErrRelatedInvoice", err)
	}
	plain := fixtures.Invoice(
		fixtures.WithInvoiceNumber("INV-2025-00002"),
		fixtures.WithRelatedInvoice(data.Invoice.Number, "x"),
		fixtures.WithInvoiceClientID(data.Client.ID),
	)
	if err := store.CreateInvoice(ctx, plain); !errors.Is(err, model.ErrRelatedInvoice) {
		t.Errorf("invoice with related number error = %v, want ErrRelatedInvoice", err)
	}

	// 21460.00 invoiced, 11600.00 credited by the first note
	if err := store.CreateInvoice(ctx, note("NC-2025-00001", data.Invoice.Number, 10000)); err != nil {
		t.Fatalf("first credit note failed: %v", err)
	}
	if err := store.CreateInvoice(ctx, note("NC-2025-00002", data.Invoice.Number, 8500)); !errors.Is(err, model.ErrCreditExceedsInvoice) {
		t.Errorf("second credit note error = %v, want ErrCreditExceedsInvoice", err)
	}
	if err := store.CreateInvoice(ctx, note("NC-2025-00002", "NC-2025-00001", 10)); !errors.Is(err, model.ErrRelatedInvoice) {
		t.Errorf("note on a note error = %v, want ErrRelatedInvoice", err)
	}

	loaded, err := store.LoadInvoice(ctx, fixtures.DefaultEnvironmentID, "NC-2025-00001")
	if err != nil {
		t.Fatalf("LoadInvoice failed: %v", err)
	}
	if loaded.RelatedInvoiceNumber != data.Invoice.Number || loaded.Reason != "Devolução" {
		t.Errorf("relation = %q/%q", loaded.RelatedInvoiceNumber, loaded.Reason)
	}

	list, _, err := store.ListInvoices(ctx, fixtures.DefaultEnvironmentID, model.InvoiceListQuery{Related: data.Invoice.Number})
	if err != nil {
		t.Fatalf("ListInvoices failed: %v", err)
	}
	if len(list) != 1 || list[0].Number != "NC-2025-00001" {
		t.Errorf("notes of %s = %d", data.Invoice.Number, len(list))
	}
}
