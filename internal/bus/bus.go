// Package bus provides event bus implementations for the analytics pipeline.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Loofy147/Lsp/internal/domain"
)

var (
	// ErrTenantRequired is returned when a call carries no tenant.
	ErrTenantRequired = errors.New("tenantID is required")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bus is closed")

	// ErrWildcardPublish is returned when a message is published to AnyTenant.
	ErrWildcardPublish = errors.New("cannot publish to the wildcard tenant")
)

// AnyTenant subscribes to a topic across every tenant. Delivered messages
// keep the tenant they were published under.
const AnyTenant = "*"

// MetaReplyTo carries the reply topic of a request.
const MetaReplyTo = "reply_to"

// defaultRequestTimeout bounds Request when ctx has no deadline.
const defaultRequestTimeout = 30 * time.Second

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

func newMessage(tenantID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}

// PublishJSON encodes v and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, tenantID, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}
	return b.Publish(ctx, tenantID, topic, payload)
}

// Replier is implemented by buses that can answer a Request.
type Replier interface {
	Reply(ctx context.Context, req *domain.Message, payload []byte) error
}
