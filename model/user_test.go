package model_test

import (
	"context"
	"errors"
	"testing"

	"github.com/walaka/erp/fixtures"
	"github.com/walaka/erp/invoicing"
	"github.com/walaka/erp/model"
)

func TestMembership_ChildUsesCreatorEnvironment(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	ctx := context.Background()

	// the row says another environment, the creator decides
	parent := data.User.ID
	child := &model.User{
		ID:            "c1d2e3f4-0000-4000-8000-000000000001",
		EnvironmentID: fixtures.OtherEnvironmentID,
		CreatedBy:     &parent,
		Email:         "rui@example.co.mz",
		Role:          invoicing.RoleEditor,
	}
	if err := store.CreateUser(ctx, child); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	m, err := store.Membership(ctx, child.ID)
	if err != nil {
		t.Fatalf("Membership failed: %v", err)
	}
	if m.EnvironmentID != fixtures.DefaultEnvironmentID {
		t.Errorf("EnvironmentID = %q, want creator environment %q", m.EnvironmentID, fixtures.DefaultEnvironmentID)
	}
	if m.Role != invoicing.RoleEditor {
		t.Errorf("Role = %q, want editor", m.Role)
	}

	u, _ := store.LoadUser(ctx, child.ID)
	if u.Status != model.UserActive {
		t.Errorf("Status after first sign in = %q, want active", u.Status)
	}
}

func TestMembership_Rejects(t *testing.T) {
	store := fixtures.NewTestStore(t)
	fixtures.SeedTestData(t, store)
	ctx := context.Background()

	if _, err := store.Membership(ctx, "unknown"); !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("unknown user error = %v, want ErrUserNotFound", err)
	}

	if err := store.UpdateUserAccess(ctx, fixtures.DefaultEnvironmentID, fixtures.DefaultUserID, "", model.UserDisabled); err != nil {
		t.Fatalf("UpdateUserAccess failed: %v", err)
	}
	if _, err := store.Membership(ctx, fixtures.DefaultUserID); !errors.Is(err, model.ErrUserDisabled) {
		t.Errorf("disabled user error = %v, want ErrUserDisabled", err)
	}
}

func TestCreateUser(t *testing.T) {
	store := fixtures.NewTestStore(t)
	fixtures.SeedTestData(t, store)
	ctx := context.Background()

	u := &model.User{ID: "v-1", EnvironmentID: fixtures.DefaultEnvironmentID, Email: "leitor@example.co.mz"}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if u.Role != invoicing.RoleViewer || u.Status != model.UserPending {
		t.Errorf("defaults = %s/%s, want viewer/pending", u.Role, u.Status)
	}

	dup := fixtures.User()
	if err := store.CreateUser(ctx, dup); !errors.Is(err, model.ErrUserExists) {
		t.Errorf("duplicate error = %v, want ErrUserExists", err)
	}
	bad := &model.User{ID: "x", EnvironmentID: fixtures.DefaultEnvironmentID, Email: "x@example.co.mz", Role: "owner"}
	if err := store.CreateUser(ctx, bad); err == nil {
		t.Error("unknown role should be rejected")
	}

	users, err := store.ListUsers(ctx, fixtures.DefaultEnvironmentID)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 2 || users[0].Email != fixtures.DefaultEmail {
		t.Errorf("users = %+v, want 2 ordered by email", users)
	}
	if others, _ := store.ListUsers(ctx, fixtures.OtherEnvironmentID); len(others) != 0 {
		t.Errorf("other environment sees %d users", len(others))
	}

	if err := store.DeleteUser(ctx, fixtures.OtherEnvironmentID, u.ID); !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("cross environment delete error = %v, want ErrUserNotFound", err)
	}
	if err := store.DeleteUser(ctx, fixtures.DefaultEnvironmentID, u.ID); err != nil {
		t.Errorf("DeleteUser failed: %v", err)
	}
}
