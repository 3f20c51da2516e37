package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/roombooking/internal/domain"
	"github.com/Domenick1991/roombooking/internal/service/booking"
)

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Creator interface {
	CreateBooking(ctx context.Context, input booking.BookingInput) (*domain.Booking, error)
}

// Samples returns the demo reservations relative to now.
func Samples(now time.Time) []booking.BookingInput {
	at := func(days, hour, minute int) time.Time {
		y, m, d := now.AddDate(0, 0, days).Date()
		return time.Date(y, m, d, hour, minute, 0, 0, now.Location())
	}

	teamSync := at(1, 9, 0)
	demo := at(2, 14, 30)
	workshop := at(5, 11, 0)

	return []booking.BookingInput{
		{
			Title:        "Team Sync Meeting",
			Location:     "Conference Room A",
			Description:  "Weekly project status update and planning",
			RoomNumber:   domain.RoomPtr(101),
			StartTime:    teamSync,
			EndTime:      teamSync.Add(time.Hour),
			AccessType:   domain.AccessPublic,
			Participants: []string{"Alice Johnson", "Bob Smith", "Carol White"},
		},
		{
			Title:        "Client Presentation",
			Location:     "Executive Boardroom",
			Description:  "Confidential product demo for a key client",
			RoomNumber:   domain.RoomPtr(102),
			StartTime:    demo,
			EndTime:      demo.Add(2 * time.Hour),
			AccessType:   domain.AccessPrivate,
			AccessCode:   "DEMO2024",
			Participants: []string{"Michael Brown", "Jürgen Müller"},
		},
		{
			Title:        "Training Workshop",
			Location:     "Training Center",
			Description:  "Hands on workshop for the new booking tools",
			RoomNumber:   domain.RoomPtr(103),
			StartTime:    workshop,
			EndTime:      workshop.Add(3 * time.Hour),
			AccessType:   domain.AccessPublic,
			Participants: []string{"Sarah Davis", "Tom Wilson", "Emma Taylor", "David Lee"},
		},
	}
}

// Run creates the sample bookings when the store is empty.
func Run(ctx context.Context, store Counter, svc Creator, now time.Time, log *slog.Logger) error {
	n, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count bookings: %w", err)
	}
	if n > 0 {
		log.Info("bookings present, skipping seed", "count", n)
		return nil
	}

	for _, input := range Samples(now) {
		b, err := svc.CreateBooking(ctx, input)
		if err != nil {
			return fmt.Errorf("seed %q: %w", input.Title, err)
		}
		log.Info("seeded booking", "id", b.ID, "title", b.Title)
	}
	return nil
}
