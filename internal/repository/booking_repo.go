package repository

import (
	"context"

	"github.com/Domenick1991/roombooking/internal/domain"
)

// BookingRepository is the durable store behind the booking use case.
// Lookups that miss return domain.ErrNotFound.
type BookingRepository interface {
	List(ctx context.Context) ([]domain.Booking, error)
	FindByID(ctx context.Context, id int64) (*domain.Booking, error)
	FindByPublicKey(ctx context.Context, key string) (*domain.Booking, error)
	FindByPrivateKey(ctx context.Context, key string) (*domain.Booking, error)
	FindInRoom(ctx context.Context, room int) ([]domain.Booking, error)
	KeyExists(ctx context.Context, key string) (bool, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, booking *domain.Booking) error
	Update(ctx context.Context, booking *domain.Booking) error
	Delete(ctx context.Context, id int64) error

	// LockRoom serialises writers for one room until the surrounding transaction ends.
	LockRoom(ctx context.Context, room int) error
	// RunInTx runs fn against a repository bound to a single transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo BookingRepository) error) error
}
