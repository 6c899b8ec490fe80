package model

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gorm.io/gorm"

	"github.com/walaka/erp/invoicing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TimelineEvent is one entry of an invoice history. Rows are only ever
// inserted; the hooks below reject updates.
type TimelineEvent struct {
	ID            uint `gorm:"primarykey"`
	CreatedAt     time.Time
	EnvironmentID string `gorm:"size:64;not null;index:idx_timeline_env_invoice,priority:1"`
	InvoiceNumber string `gorm:"size:64;not null;index:idx_timeline_env_invoice,priority:2"`
	Title         string `gorm:"not null"`
	Active        bool
	Date          time.Time
	Status        string `gorm:"size:20"`
	ActorID       string `gorm:"size:64"`
	Metadata      string // JSON object
}

func (TimelineEvent) TableName() string { return "invoice_timeline" }

// BeforeUpdate keeps the timeline append-only.
func (e *TimelineEvent) BeforeUpdate(tx *gorm.DB) error {
	return ErrTimelineImmutable
}

// MetadataMap decodes Metadata; broken JSON yields an empty map.
func (e *TimelineEvent) MetadataMap() map[string]string {
	m := map[string]string{}
	if e.Metadata == "" {
		return m
	}
	_ = json.UnmarshalFromString(e.Metadata, &m)
	return m
}

func newTimelineEvent(env string, entry invoicing.TimelineEntry) (*TimelineEvent, error) {
	meta := "{}"
	if len(entry.Metadata) > 0 {
		s, err := json.MarshalToString(entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode timeline metadata: %w", err)
		}
		meta = s
	}
	return &TimelineEvent{
		EnvironmentID: env,
		InvoiceNumber: entry.InvoiceNumber,
		Title:         entry.Title,
		Active:        entry.Active,
		Date:          entry.Date,
		Status:        string(entry.Status),
		ActorID:       entry.ActorID,
		Metadata:      meta,
	}, nil
}

// LoadTimeline returns the history of an invoice, oldest first.
func (s *Store) LoadTimeline(ctx context.Context, env, number string) ([]TimelineEvent, error) {
	var events []TimelineEvent
	err := s.db.WithContext(ctx).
		Where("environment_id = ? AND invoice_number = ?", env, number).
		Order("created_at ASC").Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("load timeline %s: %w", number, err)
	}
	return events, nil
}
