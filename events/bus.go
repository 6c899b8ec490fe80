// Package events distributes invoice domain events inside the process.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/walaka/erp/invoicing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TopicStatusChanged carries invoicing.StatusChanged payloads.
const TopicStatusChanged = "invoice.status_changed"

// StatusHandler consumes one status change.
type StatusHandler func(ctx context.Context, ev invoicing.StatusChanged) error

// Bus is an in-memory publish/subscribe hub backed by a watermill go channel.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewBus creates a bus. A nil logger uses slog.Default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
			},
			watermill.NewStdLogger(false, false),
		),
		logger: logger,
	}
}

// PublishStatusChanged implements invoicing.Publisher.
func (b *Bus) PublishStatusChanged(ctx context.Context, ev invoicing.StatusChanged) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode status change: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("environment_id", ev.EnvironmentID)
	msg.Metadata.Set("invoice_number", ev.InvoiceNumber)
	msg.SetContext(ctx)

	b.logger.Debug("publishing status change", "invoice", ev.InvoiceNumber, "to", ev.To, "message_id", msg.UUID)
	if err := b.pubsub.Publish(TopicStatusChanged, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TopicStatusChanged, err)
	}
	return nil
}

// Subscribe runs handler for every status change until ctx is done or the
// bus is closed. Handler errors are logged; the message is acknowledged
// either way, there is no redelivery.
func (b *Bus) Subscribe(ctx context.Context, name string, handler StatusHandler) error {
	msgs, err := b.pubsub.Subscribe(ctx, TopicStatusChanged)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", name, err)
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range msgs {
			b.handle(msg, name, handler)
		}
		b.logger.Debug("subscriber stopped", "subscriber", name)
	}()
	return nil
}

func (b *Bus) handle(msg *message.Message, name string, handler StatusHandler) {
	defer msg.Ack()

	var ev invoicing.StatusChanged
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		b.logger.Error("discarding malformed status change", "subscriber", name, "message_id", msg.UUID, "error", err)
		return
	}
	// the publishing request context may already be cancelled
	ctx := context.WithoutCancel(msg.Context())
	if err := handler(ctx, ev); err != nil {
		b.logger.Warn("status change handler failed",
			"subscriber", name, "invoice", ev.InvoiceNumber, "to", ev.To, "error", err)
	}
}

// Close stops all subscribers and waits for running handlers.
func (b *Bus) Close() error {
	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}

var _ invoicing.Publisher = (*Bus)(nil)
