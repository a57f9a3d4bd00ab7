package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/ports"
)

const (
	// LoginTopic carries LoginEvent payloads
	LoginTopic = "chomp.auth.login"

	// LogoutTopic carries LogoutEvent payloads
	LogoutTopic = "chomp.auth.logout"
)

// LoginEvent is published after a session is stored
type LoginEvent struct {
	UserID    string    `json:"user_id"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// LogoutEvent is published after the local session is cleared
type LogoutEvent struct {
	UserID string `json:"user_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishLogin publishes a login event. The token itself never leaves the process.
func (p *WatermillPublisher) PublishLogin(ctx context.Context, session core.Session) error {
	return p.publish(ctx, LoginTopic, LoginEvent{
		UserID:    session.UserID,
		Method:    session.Method.String(),
		ExpiresAt: session.ExpiresAt,
	})
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, userID string) error {
	return p.publish(ctx, LogoutTopic, LogoutEvent{UserID: userID})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close closes the underlying publisher
func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}

// Nop discards every event
type Nop struct{}

func (Nop) PublishLogin(context.Context, core.Session) error { return nil }
func (Nop) PublishLogout(context.Context, string) error     { return nil }
