package model

import (
	"context"

	"gorm.io/gorm"
)

// Settings holds the seller data of an environment, printed on invoices
// and exports.
type Settings struct {
	gorm.Model
	EnvironmentID       string `gorm:"size:64;uniqueIndex;not null"`
	CompanyName         string
	TaxID               string // NUIT
	InvoiceContact      string
	InvoiceEMail        string
	ZIP                 string
	Address1            string
	Address2            string
	City                string
	CountryCode         string
	BankIBAN            string
	BankName            string
	BankBIC             string
	PaymentTermDays     int
	SoftwareCertificate string
}

// LoadSettings loads the settings of env, or blank settings for a new environment.
func (s *Store) LoadSettings(ctx context.Context, env string) (*Settings, error) {
	st := &Settings{}
	result := s.db.WithContext(ctx).Where(Settings{EnvironmentID: env}).FirstOrInit(st)
	if st.PaymentTermDays == 0 {
		st.PaymentTermDays = 30
	}
	return st, result.Error
}

// SaveSettings saves the settings.
func (s *Store) SaveSettings(ctx context.Context, st *Settings) error {
	return s.db.WithContext(ctx).Save(st).Error
}
