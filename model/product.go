package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a catalog entry of the tenant. Invoice lines may refer to it.
type Product struct {
	gorm.Model
	EnvironmentID string          `gorm:"size:64;not null;index"`
	Description   string          `gorm:"not null"`
	UnitCode      string          `gorm:"size:10"`
	Price         decimal.Decimal `gorm:"type:decimal(20,8)"`
	TaxRate       decimal.Decimal `gorm:"type:decimal(20,8)"` // percent, like InvoiceItem.VATRate
	TaxCode       string          `gorm:"size:10"`
	Industry      string          `gorm:"size:100;index"`
}

// ProductQuery filters the catalog. Empty fields do not filter.
type ProductQuery struct {
	Search   string `form:"q"`
	Industry string `form:"industry"`
	TaxRate  string `form:"vat_rate"`
}

// SaveProduct creates p or updates it when p.ID is set. The tax code is
// derived from the rate when left empty.
func (s *Store) SaveProduct(ctx context.Context, p *Product) error {
	p.Description = strings.TrimSpace(p.Description)
	if p.Description == "" {
		return fmt.Errorf("product: description missing")
	}
	if p.Price.IsNegative() || p.TaxRate.IsNegative() {
		return fmt.Errorf("product: negative price or tax rate")
	}
	if p.TaxCode == "" {
		p.TaxCode = saftTaxCode(p.TaxRate)
	}
	if p.UnitCode == "" {
		p.UnitCode = "C62"
	}
	db := s.db.WithContext(ctx)
	if p.ID == 0 {
		return db.Create(p).Error
	}
	res := db.Model(&Product{}).
		Where("id = ? AND environment_id = ?", p.ID, p.EnvironmentID).
		Select("description", "unit_code", "price", "tax_rate", "tax_code", "industry").
		Updates(p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// LoadProduct loads one product of the environment.
func (s *Store) LoadProduct(ctx context.Context, env string, id uint) (*Product, error) {
	p := &Product{}
	err := s.db.WithContext(ctx).First(p, "environment_id = ? AND id = ?", env, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListProducts returns the catalog of an environment, newest first.
func (s *Store) ListProducts(ctx context.Context, env string, q ProductQuery) ([]Product, error) {
	products := make([]Product, 0)
	db := s.db.WithContext(ctx).Where("environment_id = ?", env)
	if search := strings.TrimSpace(q.Search); search != "" {
		like := "%" + likeEscape(search) + "%"
		db = db.Where("("+s.ciLike("description")+" OR "+s.ciLike("industry")+" OR "+s.ciLike("tax_code")+")", like, like, like)
	}
	if q.Industry != "" {
		db = db.Where("LOWER(industry) = LOWER(?)", q.Industry)
	}
	if q.TaxRate != "" {
		rate, err := decimal.NewFromString(q.TaxRate)
		if err != nil {
			return nil, fmt.Errorf("vat_rate %q: %w", q.TaxRate, err)
		}
		db = db.Where("tax_rate = ?", rate)
	}
	if err := db.Order("created_at desc").Order("id desc").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// DeleteProduct removes a product. Invoice lines keep their copied values.
func (s *Store) DeleteProduct(ctx context.Context, env string, id uint) error {
	res := s.db.WithContext(ctx).Where("environment_id = ? AND id = ?", env, id).Delete(&Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// FillFromProduct completes an invoice line from the catalog: empty
// description, zero price and, when the line has no rate of its own, the
// tax rate are taken from p.
func (it *InvoiceItem) FillFromProduct(p *Product, keepRate bool) {
	id := p.ID
	it.ProductID = &id
	if strings.TrimSpace(it.Description) == "" {
		it.Description = p.Description
	}
	if it.UnitCode == "" {
		it.UnitCode = p.UnitCode
	}
	if it.UnitPrice.IsZero() {
		it.UnitPrice = p.Price
	}
	if !keepRate {
		it.VATRate = p.TaxRate
	}
}
