package model_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/walaka/erp/fixtures"
	"github.com/walaka/erp/model"
)

func TestAPIToken_CreateValidateRevoke(t *testing.T) {
	store := fixtures.NewTestStore(t)
	ctx := context.Background()
	user := fixtures.DefaultUserID

	plain, rec, err := store.CreateAPIToken(ctx, fixtures.DefaultEnvironmentID, &user, "POS", "invoices", nil)
	if err != nil {
		t.Fatalf("CreateAPIToken failed: %v", err)
	}
	if rec.TokenHash == plain || rec.TokenPrefix != plain[:8] {
		t.Errorf("token stored in clear or wrong prefix: %+v", rec)
	}

	got, err := store.ValidateAPIToken(ctx, plain)
	if err != nil {
		t.Fatalf("ValidateAPIToken failed: %v", err)
	}
	if got.ID != rec.ID || got.UserID == nil || *got.UserID != user {
		t.Errorf("validated token = %+v", got)
	}

	tampered := plain[:len(plain)-1] + string(plain[len(plain)-1]^1)
	if _, err := store.ValidateAPIToken(ctx, tampered); err == nil {
		t.Error("tampered token should not validate")
	}
	if _, err := store.ValidateAPIToken(ctx, "short"); !errors.Is(err, model.ErrTokenInvalid) {
		t.Errorf("short token error = %v, want ErrTokenInvalid", err)
	}

	if err := store.RevokeAPIToken(ctx, fixtures.OtherEnvironmentID, rec.ID); !errors.Is(err, model.ErrTokenNotFound) {
		t.Errorf("foreign revoke error = %v, want ErrTokenNotFound", err)
	}
	if err := store.RevokeAPIToken(ctx, fixtures.DefaultEnvironmentID, rec.ID); err != nil {
		t.Fatalf("RevokeAPIToken failed: %v", err)
	}
	if _, err := store.ValidateAPIToken(ctx, plain); !errors.Is(err, model.ErrTokenDisabled) {
		t.Errorf("revoked token error = %v, want ErrTokenDisabled", err)
	}
}

func TestAPIToken_Expired(t *testing.T) {
	store := fixtures.NewTestStore(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	plain, _, err := store.CreateAPIToken(ctx, fixtures.DefaultEnvironmentID, nil, "old", "", &past)
	if err != nil {
		t.Fatalf("CreateAPIToken failed: %v", err)
	}
	if _, err := store.ValidateAPIToken(ctx, plain); !errors.Is(err, model.ErrTokenExpired) {
		t.Errorf("ValidateAPIToken error = %v, want ErrTokenExpired", err)
	}
}

func TestAPIToken_ListPaging(t *testing.T) {
	store := fixtures.NewTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := store.CreateAPIToken(ctx, fixtures.DefaultEnvironmentID, nil, "t", "", nil); err != nil {
			t.Fatalf("CreateAPIToken failed: %v", err)
		}
	}
	page, next, err := store.ListAPITokens(ctx, fixtures.DefaultEnvironmentID, 2, "")
	if err != nil {
		t.Fatalf("ListAPITokens failed: %v", err)
	}
	if len(page) != 2 || next != "2" {
		t.Fatalf("page = %d, next = %q", len(page), next)
	}
	rest, next, err := store.ListAPITokens(ctx, fixtures.DefaultEnvironmentID, 2, next)
	if err != nil {
		t.Fatalf("ListAPITokens failed: %v", err)
	}
	if len(rest) != 1 || next != "" {
		t.Errorf("rest = %d, next = %q", len(rest), next)
	}
}

func TestRunMaintenance_RemovesInvalidTokens(t *testing.T) {
	store := fixtures.NewTestStore(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	if _, _, err := store.CreateAPIToken(ctx, fixtures.DefaultEnvironmentID, nil, "expired", "", &past); err != nil {
		t.Fatal(err)
	}
	plain, _, err := store.CreateAPIToken(ctx, fixtures.DefaultEnvironmentID, nil, "valid", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := model.RunMaintenance(ctx, store, nil); err != nil {
		t.Fatalf("RunMaintenance failed: %v", err)
	}
	tokens, _, err := store.ListAPITokens(ctx, fixtures.DefaultEnvironmentID, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 {
		t.Fatalf("len(tokens) = %d, want 1", len(tokens))
	}
	if _, err := store.ValidateAPIToken(ctx, plain); err != nil {
		t.Errorf("valid token rejected after maintenance: %v", err)
	}
}
