package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Client is a customer of the tenant.
type Client struct {
	gorm.Model
	EnvironmentID  string `gorm:"size:64;not null;index"`
	Name           string `gorm:"not null"`
	CustomerNumber string `gorm:"size:50"`
	TaxID          string `gorm:"size:50"` // NUIT
	Email          string
	Phone          string
	Address1       string
	Address2       string
	City           string
	ZIP            string
	Country        string
	Notes          string
}

// SaveClient creates c or updates it when c.ID is set. Updates are scoped
// to the environment of c.
func (s *Store) SaveClient(ctx context.Context, c *Client) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("client: name missing")
	}
	db := s.db.WithContext(ctx)
	if c.ID == 0 {
		return db.Create(c).Error
	}
	res := db.Model(&Client{}).
		Where("id = ? AND environment_id = ?", c.ID, c.EnvironmentID).
		Select("name", "customer_number", "tax_id", "email", "phone",
			"address1", "address2", "city", "zip", "country", "notes").
		Updates(c)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClientNotFound
	}
	return nil
}

// LoadClient loads one client of the environment.
func (s *Store) LoadClient(ctx context.Context, env string, id uint) (*Client, error) {
	c := &Client{}
	err := s.db.WithContext(ctx).First(c, "environment_id = ? AND id = ?", env, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListClients returns the clients of an environment ordered by name. A non
// empty search matches name, tax id or email case insensitively.
func (s *Store) ListClients(ctx context.Context, env, search string) ([]Client, error) {
	clients := make([]Client, 0)
	q := s.db.WithContext(ctx).Where("environment_id = ?", env)
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + likeEscape(search) + "%"
		q = q.Where("("+s.ciLike("name")+" OR "+s.ciLike("tax_id")+" OR "+s.ciLike("email")+")", like, like, like)
	}
	err := q.Order("name").Find(&clients).Error
	return clients, err
}

// DeleteClient removes a client that no invoice refers to.
func (s *Store) DeleteClient(ctx context.Context, env string, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Unscoped().Model(&Invoice{}).Where("client_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrClientInUse
		}
		res := tx.Where("environment_id = ? AND id = ?", env, id).Delete(&Client{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrClientNotFound
		}
		return nil
	})
}
