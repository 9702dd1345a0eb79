package ports

import (
	"context"
	"time"
)

// EventPublisher notifies other services about successful authentications
type EventPublisher interface {
	PublishAuthenticated(ctx context.Context, address string, at time.Time) error
}
