package model_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/walaka/erp/fixtures"
	"github.com/walaka/erp/model"
)

func TestSaveProduct(t *testing.T) {
	store := fixtures.NewTestStore(t)
	ctx := context.Background()

	p := fixtures.Product()
	if err := store.SaveProduct(ctx, p); err != nil {
		t.Fatalf("SaveProduct failed: %v", err)
	}
	if p.TaxCode != "NOR" {
		t.Errorf("TaxCode = %q, want NOR", p.TaxCode)
	}

	p.Price = decimal.NewFromInt(1800)
	if err := store.SaveProduct(ctx, p); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, err := store.LoadProduct(ctx, fixtures.DefaultEnvironmentID, p.ID)
	if err != nil {
		t.Fatalf("LoadProduct failed: %v", err)
	}
	if !got.Price.Equal(decimal.NewFromInt(1800)) {
		t.Errorf("Price = %s, want 1800", got.Price)
	}

	if _, err := store.LoadProduct(ctx, fixtures.OtherEnvironmentID, p.ID); !errors.Is(err, model.ErrProductNotFound) {
		t.Errorf("cross environment load error = %v, want ErrProductNotFound", err)
	}
	foreign := *p
	foreign.EnvironmentID = fixtures.OtherEnvironmentID
	if err := store.SaveProduct(ctx, &foreign); !errors.Is(err, model.ErrProductNotFound) {
		t.Errorf("cross environment update error = %v, want ErrProductNotFound", err)
	}

	neg := fixtures.Product()
	neg.Price = decimal.NewFromInt(-1)
	if err := store.SaveProduct(ctx, neg); err == nil {
		t.Error("negative price should be rejected")
	}
}

func TestListProducts_Filters(t *testing.T) {
	store := fixtures.NewTestStore(t)
	ctx := context.Background()

	consult := fixtures.Product()
	book := &model.Product{
		EnvironmentID: fixtures.DefaultEnvironmentID,
		Description:   "Manual escolar",
		Price:         decimal.NewFromInt(350),
		Industry:      "Educação",
	}
	for _, p := range []*model.Product{consult, book} {
		if err := store.SaveProduct(ctx, p); err != nil {
			t.Fatalf("SaveProduct failed: %v", err)
		}
	}

	tests := []struct {
		name string
		q    model.ProductQuery
		want []uint
	}{
		{"all", model.ProductQuery{}, []uint{book.ID, consult.ID}},
		{"industry", model.ProductQuery{Industry: "educação"}, []uint{book.ID}},
		{"exempt rate", model.ProductQuery{TaxRate: "0"}, []uint{book.ID}},
		{"standard rate", model.ProductQuery{TaxRate: "16"}, []uint{consult.ID}},
		{"search", model.ProductQuery{Search: "consul"}, []uint{consult.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListProducts(ctx, fixtures.DefaultEnvironmentID, tt.q)
			if err != nil {
				t.Fatalf("ListProducts failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("[%d] = %d, want %d", i, got[i].ID, tt.want[i])
				}
			}
		})
	}

	if _, err := store.ListProducts(ctx, fixtures.DefaultEnvironmentID, model.ProductQuery{TaxRate: "abc"}); err == nil {
		t.Error("invalid vat_rate should fail")
	}

	if err := store.DeleteProduct(ctx, fixtures.DefaultEnvironmentID, book.ID); err != nil {
		t.Fatalf("DeleteProduct failed: %v", err)
	}
	if err := store.DeleteProduct(ctx, fixtures.DefaultEnvironmentID, book.ID); !errors.Is(err, model.ErrProductNotFound) {
		t.Errorf("second DeleteProduct error = %v, want ErrProductNotFound", err)
	}
}

func TestInvoiceItem_FillFromProduct(t *testing.T) {
	p := fixtures.Product()
	p.ID = 7

	it := model.InvoiceItem{Quantity: decimal.NewFromInt(2)}
	it.FillFromProduct(p, false)
	if it.Description != "Consultoria" || it.UnitCode != "HUR" || !it.UnitPrice.Equal(p.Price) || !it.VATRate.Equal(p.TaxRate) {
		t.Errorf("item = %+v", it)
	}
	if it.ProductID == nil || *it.ProductID != 7 {
		t.Errorf("ProductID = %v, want 7", it.ProductID)
	}

	own := model.InvoiceItem{Description: "Consultoria sénior", UnitPrice: decimal.NewFromInt(2000)}
	own.FillFromProduct(p, true)
	if own.Description != "Consultoria sénior" || !own.UnitPrice.Equal(decimal.NewFromInt(2000)) || !own.VATRate.IsZero() {
		t.Errorf("own values overwritten: %+v", own)
	}
}
