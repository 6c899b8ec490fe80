package model_test

import (
	"context"
	"errors"
	"testing"

	"github.com/walaka/erp/fixtures"
	"github.com/walaka/erp/model"
)

func TestClient_SaveAndList(t *testing.T) {
	store := fixtures.NewTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Zambeze Transportes", "Beira Pescas", "Nampula Agro"} {
		if err := store.SaveClient(ctx, fixtures.Client(fixtures.WithClientName(name))); err != nil {
			t.Fatalf("SaveClient %s failed: %v", name, err)
		}
	}
	if err := store.SaveClient(ctx, fixtures.Client(fixtures.WithClientEnvironment(fixtures.OtherEnvironmentID))); err != nil {
		t.Fatalf("SaveClient other env failed: %v", err)
	}

	all, err := store.ListClients(ctx, fixtures.DefaultEnvironmentID, "")
	if err != nil {
		t.Fatalf("ListClients failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	if all[0].Name != "Beira Pescas" {
		t.Errorf("first = %q, want Beira Pescas (sorted by name)", all[0].Name)
	}

	found, err := store.ListClients(ctx, fixtures.DefaultEnvironmentID, "pescas")
	if err != nil {
		t.Fatalf("ListClients search failed: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("len(found) = %d, want 1", len(found))
	}
}

func TestClient_Update(t *testing.T) {
	store := fixtures.NewTestStore(t)
	ctx := context.Background()

	c := fixtures.Client()
	if err := store.SaveClient(ctx, c); err != nil {
		t.Fatalf("SaveClient failed: %v", err)
	}
	c.Email = "novo@machava.co.mz"
	if err := store.SaveClient(ctx, c); err != nil {
		t.Fatalf("SaveClient update failed: %v", err)
	}
	loaded, err := store.LoadClient(ctx, fixtures.DefaultEnvironmentID, c.ID)
	if err != nil {
		t.Fatalf("LoadClient failed: %v", err)
	}
	if loaded.Email != "novo@machava.co.mz" {
		t.Errorf("Email = %q", loaded.Email)
	}

	// updates are scoped to the environment
	foreign := *c
	foreign.EnvironmentID = fixtures.OtherEnvironmentID
	if err := store.SaveClient(ctx, &foreign); !errors.Is(err, model.ErrClientNotFound) {
		t.Errorf("foreign update error = %v, want ErrClientNotFound", err)
	}
	if _, err := store.LoadClient(ctx, fixtures.OtherEnvironmentID, c.ID); !errors.Is(err, model.ErrClientNotFound) {
		t.Errorf("foreign load error = %v, want ErrClientNotFound", err)
	}
}

func TestClient_NameRequired(t *testing.T) {
	store := fixtures.NewTestStore(t)
	if err := store.SaveClient(context.Background(), fixtures.Client(fixtures.WithClientName("  "))); err == nil {
		t.Fatal("SaveClient without name should fail")
	}
}

func TestClient_DeleteInUse(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	ctx := context.Background()

	if err := store.DeleteClient(ctx, fixtures.DefaultEnvironmentID, data.Client.ID); !errors.Is(err, model.ErrClientInUse) {
		t.Fatalf("DeleteClient error = %v, want ErrClientInUse", err)
	}

	spare := fixtures.Client(fixtures.WithClientName("Sem facturas"))
	if err := store.SaveClient(ctx, spare); err != nil {
		t.Fatalf("SaveClient failed: %v", err)
	}
	if err := store.DeleteClient(ctx, fixtures.DefaultEnvironmentID, spare.ID); err != nil {
		t.Fatalf("DeleteClient failed: %v", err)
	}
	if err := store.DeleteClient(ctx, fixtures.DefaultEnvironmentID, spare.ID); !errors.Is(err, model.ErrClientNotFound) {
		t.Errorf("second DeleteClient error = %v, want ErrClientNotFound", err)
	}
}

func TestSettings_Defaults(t *testing.T) {
	store := fixtures.NewTestStore(t)
	ctx := context.Background()

	st, err := store.LoadSettings(ctx, fixtures.DefaultEnvironmentID)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if st.ID != 0 || st.EnvironmentID != fixtures.DefaultEnvironmentID {
		t.Errorf("new settings = %+v", st)
	}
	if st.PaymentTermDays != 30 {
		t.Errorf("PaymentTermDays = %d, want 30", st.PaymentTermDays)
	}

	st.CompanyName = "Walaka"
	if err := store.SaveSettings(ctx, st); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	again, err := store.LoadSettings(ctx, fixtures.DefaultEnvironmentID)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if again.CompanyName != "Walaka" || again.ID == 0 {
		t.Errorf("reloaded settings = %+v", again)
	}
}
