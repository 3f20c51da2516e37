package notify

import (
	"context"
	"log/slog"

	"github.com/Domenick1991/roombooking/internal/kafka"
)

// Sender tells participants about changes to a booking they are part of.
type Sender struct {
	log *slog.Logger
}

func NewSender(log *slog.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	for _, name := range event.Participants {
		s.log.InfoContext(ctx, "notify participant",
			"participant", name,
			"event", event.Type,
			"booking_id", event.BookingID,
			"title", event.Title,
			"start_time", event.StartTime,
		)
	}
	return nil
}
