package ports

import (
	"context"

	"github.com/layer-3/chomp-auth/core"
)

// EventPublisher publishes session lifecycle events to other consumers
type EventPublisher interface {
	PublishLogin(ctx context.Context, session core.Session) error
	PublishLogout(ctx context.Context, userID string) error
}
