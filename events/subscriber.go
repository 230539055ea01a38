package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

type HandlerFunc func(ctx context.Context, event BookingEvent) error

// Subscribe consumes topic until ctx is done. Handler errors are logged and
// the message is acked anyway: side effects are best effort and must not
// block the stream.
func Subscribe(ctx context.Context, sub message.Subscriber, topic string, log zerolog.Logger, handle HandlerFunc) error {
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	go func() {
		for msg := range messages {
			var event BookingEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.Error().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed booking event")
				msg.Ack()
				continue
			}
			if err := handle(ctx, event); err != nil {
				log.Error().Err(err).Str("event_id", event.ID).Str("event_type", string(event.Type)).Msg("booking event handler failed")
			}
			msg.Ack()
		}
	}()
	return nil
}
