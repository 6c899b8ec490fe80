package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/walaka/erp/invoicing"
)

// User status values.
const (
	UserPending  = "pending"
	UserActive   = "active"
	UserDisabled = "disabled"
)

// User links a Supabase account to an environment. Rows are written by the
// server only, so the environment of a user cannot be chosen by the user.
// A user created by another user (CreatedBy) works in the environment of
// its creator.
type User struct {
	ID            string  `gorm:"primaryKey;size:64"` // Supabase auth uid
	EnvironmentID string  `gorm:"size:64;not null;index"`
	CreatedBy     *string `gorm:"size:64;index"`
	Email         string  `gorm:"size:255;not null"`
	Username      string  `gorm:"size:100"`
	Role          string  `gorm:"size:20;not null;default:viewer;check:role IN ('admin','editor','viewer')"`
	Status        string  `gorm:"size:20;not null;default:pending"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	switch r {
	case invoicing.RoleAdmin, invoicing.RoleEditor, invoicing.RoleViewer:
		return true
	}
	return false
}

// CreateUser inserts u. The id must be the Supabase uid of the account.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	u.ID = strings.TrimSpace(u.ID)
	u.Email = strings.TrimSpace(u.Email)
	if u.ID == "" || u.Email == "" {
		return fmt.Errorf("user: id and email are required")
	}
	if u.EnvironmentID == "" {
		return fmt.Errorf("user: %w", invoicing.ErrNoEnvironment)
	}
	if u.Role == "" {
		u.Role = invoicing.RoleViewer
	}
	if !ValidRole(u.Role) {
		return fmt.Errorf("user: unknown role %q", u.Role)
	}
	if u.Status == "" {
		u.Status = UserPending
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.ID, ErrUserExists)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// LoadUser loads a user of any environment.
func (s *Store) LoadUser(ctx context.Context, id string) (*User, error) {
	u := &User{}
	if err := s.db.WithContext(ctx).First(u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// ListUsers returns the users of an environment ordered by email.
func (s *Store) ListUsers(ctx context.Context, env string) ([]User, error) {
	users := make([]User, 0)
	err := s.db.WithContext(ctx).Where("environment_id = ?", env).Order("email").Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateUserAccess changes role and status of a user of env.
func (s *Store) UpdateUserAccess(ctx context.Context, env, id, role, status string) error {
	updates := map[string]any{}
	if role != "" {
		if !ValidRole(role) {
			return fmt.Errorf("user: unknown role %q", role)
		}
		updates["role"] = role
	}
	if status != "" {
		switch status {
		case UserPending, UserActive, UserDisabled:
		default:
			return fmt.Errorf("user: unknown status %q", status)
		}
		updates["status"] = status
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&User{}).
		Where("environment_id = ? AND id = ?", env, id).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user from env. The account at Supabase stays.
func (s *Store) DeleteUser(ctx context.Context, env, id string) error {
	res := s.db.WithContext(ctx).Where("environment_id = ? AND id = ?", env, id).Delete(&User{})
	if res.Error != nil {
		return fmt.Errorf("delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Membership resolves the environment and role a user acts with. Users
// created by another user act in the environment of their creator.
func (s *Store) Membership(ctx context.Context, userID string) (invoicing.Membership, error) {
	u, err := s.LoadUser(ctx, userID)
	if err != nil {
		return invoicing.Membership{}, err
	}
	if u.Status == UserDisabled {
		return invoicing.Membership{}, fmt.Errorf("user %s: %w", userID, ErrUserDisabled)
	}
	env := u.EnvironmentID
	if u.CreatedBy != nil && *u.CreatedBy != "" && *u.CreatedBy != u.ID {
		parent, err := s.LoadUser(ctx, *u.CreatedBy)
		if err != nil {
			return invoicing.Membership{}, fmt.Errorf("creator of user %s: %w", userID, err)
		}
		env = parent.EnvironmentID
	}
	if env == "" {
		return invoicing.Membership{}, fmt.Errorf("user %s: %w", userID, invoicing.ErrNoEnvironment)
	}
	if u.Status == UserPending {
		// first sign in confirms the account
		s.db.WithContext(ctx).Model(&User{}).Where("id = ?", u.ID).Update("status", UserActive)
	}
	return invoicing.Membership{UserID: u.ID, EnvironmentID: env, Role: u.Role}, nil
}
