package providers

import (
	"context"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
)

// EventBus fans PatientEvents out to every subscriber of a channel. Events carry
// ids and counts only; subscribers reload the session for details.
type EventBus interface {
	Publish(ctx context.Context, channel string, event *entities.PatientEvent) error

	// Subscribe returns a channel that is closed when ctx ends, the channel is
	// unsubscribed or the bus is closed.
	Subscribe(ctx context.Context, channel string) (<-chan *entities.PatientEvent, error)

	// Unsubscribe closes every subscriber of channel
	Unsubscribe(ctx context.Context, channel string) error

	Close() error
}

const (
	EventChannelSessionPrefix = "session:"

	// EventChannelWarnings carries persistence warnings for operators
	EventChannelWarnings = "persistence:warnings"
)

// GetSessionChannel names the channel for one clinic day
func GetSessionChannel(sessionDate string) string {
	return EventChannelSessionPrefix + sessionDate
}
