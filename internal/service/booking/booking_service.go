package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Domenick1991/roombooking/internal/domain"
	"github.com/Domenick1991/roombooking/internal/kafka"
	"github.com/Domenick1991/roombooking/internal/repository"
	"github.com/google/uuid"
)

const (
	maxKeyAttempts = 3

	lockRetryMin = 20 * time.Millisecond
	lockRetryMax = 250 * time.Millisecond
)

var ErrKeyGeneration = errors.New("could not generate unique booking keys")

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input BookingInput) (*domain.Booking, error)
	UpdateBooking(ctx context.Context, id int64, privateKey string, input BookingInput) (*domain.Booking, error)
	DeleteBooking(ctx context.Context, id int64, privateKey string) error
	ListBookings(ctx context.Context) ([]domain.BookingSummary, error)
	ResolveKey(ctx context.Context, key string) (Resolution, error)
	ViewBooking(ctx context.Context, key, code string) (*BookingView, error)
}

type Cache interface {
	AcquireRoomLock(ctx context.Context, room int, ttl time.Duration) (string, bool, error)
	ReleaseRoomLock(ctx context.Context, room int, token string) error
	// GetBookings returns nil summaries on a miss. The version is passed back to SetBookings
	// so a listing read before a write cannot overwrite the invalidation.
	GetBookings(ctx context.Context) ([]domain.BookingSummary, int64, error)
	SetBookings(ctx context.Context, version int64, bookings []domain.BookingSummary) error
	InvalidateBookings(ctx context.Context) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// BookingView is what a key holder gets to see. Owner views include keys and the access code.
type BookingView struct {
	Kind    ViewKind
	Booking *domain.Booking
}

type BookingService struct {
	bookings           repository.BookingRepository
	cache              Cache
	producer           Producer
	validator          *BookingValidator
	keys               *KeyGenerator
	access             *AccessResolver
	log                *slog.Logger
	bookingTopic       string
	notificationsTopic string
	roomLockTTL        time.Duration
	now                func() time.Time
}

type BookingServiceOption func(*BookingService)

func WithCache(cache Cache, roomLockTTL time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.cache = cache
		s.roomLockTTL = roomLockTTL
	}
}

func WithProducer(producer Producer, bookingTopic, notificationsTopic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = producer
		s.bookingTopic = bookingTopic
		s.notificationsTopic = notificationsTopic
	}
}

func WithKeyGenerator(keys *KeyGenerator) BookingServiceOption {
	return func(s *BookingService) {
		s.keys = keys
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func NewBookingService(bookings repository.BookingRepository, log *slog.Logger, opts ...BookingServiceOption) *BookingService {
	s := &BookingService{
		bookings: bookings,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.keys == nil {
		s.keys = NewKeyGenerator(nil, DefaultKeyBytes)
	}
	s.validator = NewBookingValidator(s.now)
	s.access = NewAccessResolver(bookings)
	return s
}

func (s *BookingService) CreateBooking(ctx context.Context, input BookingInput) (*domain.Booking, error) {
	release, err := s.lockRoom(ctx, input.RoomNumber)
	if err != nil {
		return nil, err
	}
	defer release()

	var created *domain.Booking
	err = s.bookings.RunInTx(ctx, func(ctx context.Context, repo repository.BookingRepository) error {
		existing, err := existingInRoom(ctx, repo, input.RoomNumber)
		if err != nil {
			return err
		}
		b, err := s.validator.ValidateCreate(input, existing)
		if err != nil {
			return err
		}
		if err := s.assignKeys(ctx, repo, b); err != nil {
			return err
		}
		if err := repo.Create(ctx, b); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		s.logRejection("create booking rejected", 0, err)
		return nil, err
	}

	s.log.InfoContext(ctx, "booking created", "id", created.ID, "room", roomAttr(created.RoomNumber), "start_time", created.StartTime)
	s.afterWrite(ctx, kafka.EventBookingCreated, created)
	return created, nil
}

func (s *BookingService) UpdateBooking(ctx context.Context, id int64, privateKey string, input BookingInput) (*domain.Booking, error) {
	current, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.access.AuthorizeOwner(current, privateKey) {
		s.log.WarnContext(ctx, "update booking unauthorized", "id", id)
		return nil, domain.ErrUnauthorized
	}

	release, err := s.lockRoom(ctx, input.RoomNumber)
	if err != nil {
		return nil, err
	}
	defer release()

	var updated *domain.Booking
	err = s.bookings.RunInTx(ctx, func(ctx context.Context, repo repository.BookingRepository) error {
		existing, err := existingInRoom(ctx, repo, input.RoomNumber)
		if err != nil {
			return err
		}
		b, err := s.validator.ValidateUpdate(id, input, existing)
		if err != nil {
			return err
		}
		b.PublicKey = current.PublicKey
		b.PrivateKey = current.PrivateKey
		b.CreatedAt = current.CreatedAt
		if err := repo.Update(ctx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		s.logRejection("update booking rejected", id, err)
		return nil, err
	}

	s.log.InfoContext(ctx, "booking updated", "id", id, "room", roomAttr(updated.RoomNumber), "start_time", updated.StartTime)
	s.afterWrite(ctx, kafka.EventBookingUpdated, updated)
	return updated, nil
}

func (s *BookingService) DeleteBooking(ctx context.Context, id int64, privateKey string) error {
	current, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.access.AuthorizeOwner(current, privateKey) {
		s.log.WarnContext(ctx, "delete booking unauthorized", "id", id)
		return domain.ErrUnauthorized
	}
	if err := s.bookings.Delete(ctx, id); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "booking deleted", "id", id)
	s.afterWrite(ctx, kafka.EventBookingDeleted, current)
	return nil
}

func (s *BookingService) ListBookings(ctx context.Context) ([]domain.BookingSummary, error) {
	var (
		version   int64
		cacheable bool
	)
	if s.cache != nil {
		cached, v, err := s.cache.GetBookings(ctx)
		switch {
		case err != nil:
			s.log.WarnContext(ctx, "read booking list cache", "error", err)
		case cached != nil:
			return cached, nil
		default:
			version, cacheable = v, true
		}
	}

	bookings, err := s.bookings.List(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.BookingSummary, 0, len(bookings))
	for i := range bookings {
		summaries = append(summaries, bookings[i].Summary())
	}
	if cacheable {
		if err := s.cache.SetBookings(ctx, version, summaries); err != nil {
			s.log.WarnContext(ctx, "fill booking list cache", "error", err)
		}
	}
	return summaries, nil
}

func (s *BookingService) ResolveKey(ctx context.Context, key string) (Resolution, error) {
	return s.access.Resolve(ctx, key)
}

// ViewBooking resolves a key and, for public access to a private booking, applies the access code gate.
func (s *BookingService) ViewBooking(ctx context.Context, key, code string) (*BookingView, error) {
	res, err := s.access.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	switch res.Kind {
	case ViewOwner:
		return &BookingView{Kind: ViewOwner, Booking: res.Booking}, nil
	case ViewPublic:
		switch s.access.AuthorizeViewer(res.Booking, code) {
		case ViewCodeRequired:
			return nil, domain.ErrAccessCodeRequired
		case ViewCodeIncorrect:
			s.log.WarnContext(ctx, "incorrect access code", "id", res.Booking.ID)
			return nil, domain.ErrAccessCodeIncorrect
		}
		return &BookingView{Kind: ViewPublic, Booking: res.Booking}, nil
	default:
		return nil, domain.ErrNotFound
	}
}

// lockRoom takes the cache room lock when one is configured, retrying with backoff for up to roomLockTTL.
// The returned release is always safe to call.
func (s *BookingService) lockRoom(ctx context.Context, room *int) (func(), error) {
	if s.cache == nil || room == nil {
		return func() {}, nil
	}

	deadline := time.Now().Add(s.roomLockTTL)
	wait := lockRetryMin
	for {
		token, ok, err := s.cache.AcquireRoomLock(ctx, *room, s.roomLockTTL)
		if err != nil {
			s.log.ErrorContext(ctx, "acquire room lock", "room", *room, "error", err)
			return nil, fmt.Errorf("acquire room lock: %w", err)
		}
		if ok {
			return func() {
				if err := s.cache.ReleaseRoomLock(context.WithoutCancel(ctx), *room, token); err != nil {
					s.log.WarnContext(ctx, "release room lock", "room", *room, "error", err)
				}
			}, nil
		}

		if !time.Now().Add(wait).Before(deadline) {
			s.log.WarnContext(ctx, "room lock still held, giving up", "room", *room)
			return nil, domain.ErrRoomBusy
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, lockRetryMax)
	}
}

func existingInRoom(ctx context.Context, repo repository.BookingRepository, room *int) ([]domain.Booking, error) {
	if room == nil {
		return nil, nil
	}
	if err := repo.LockRoom(ctx, *room); err != nil {
		return nil, err
	}
	return repo.FindInRoom(ctx, *room)
}

// assignKeys draws key pairs until one is distinct and unused, up to maxKeyAttempts.
func (s *BookingService) assignKeys(ctx context.Context, repo repository.BookingRepository, b *domain.Booking) error {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		public, private, err := s.keys.GenerateKeyPair()
		if err != nil {
			return err
		}
		if public == private {
			continue
		}
		taken, err := keyTaken(ctx, repo, public, private)
		if err != nil {
			return err
		}
		if taken {
			s.log.WarnContext(ctx, "generated booking key already in use, retrying", "attempt", attempt+1)
			continue
		}
		b.PublicKey = public
		b.PrivateKey = private
		return nil
	}
	return ErrKeyGeneration
}

func keyTaken(ctx context.Context, repo repository.BookingRepository, keys ...string) (bool, error) {
	for _, key := range keys {
		exists, err := repo.KeyExists(ctx, key)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

func (s *BookingService) afterWrite(ctx context.Context, eventType string, b *domain.Booking) {
	if s.cache != nil {
		if err := s.cache.InvalidateBookings(ctx); err != nil {
			s.log.WarnContext(ctx, "invalidate booking list cache", "error", err)
		}
	}
	if err := s.publish(ctx, eventType, b); err != nil {
		s.log.WarnContext(ctx, "failed to publish booking event", "type", eventType, "id", b.ID, "error", err)
	}
}

func (s *BookingService) publish(ctx context.Context, eventType string, b *domain.Booking) error {
	if s.producer == nil || s.bookingTopic == "" {
		return nil
	}
	event := kafka.BookingEvent{
		EventID:      uuid.NewString(),
		Type:         eventType,
		BookingID:    b.ID,
		Title:        b.Title,
		Location:     b.Location,
		RoomNumber:   b.RoomNumber,
		StartTime:    b.StartTime,
		EndTime:      b.EndTime,
		AccessType:   string(b.AccessType),
		Participants: b.ParticipantNames(),
		OccurredAt:   s.now(),
	}
	key := strconv.FormatInt(b.ID, 10)
	if err := s.producer.Publish(ctx, s.bookingTopic, key, event); err != nil {
		return err
	}
	if s.notificationsTopic != "" {
		return s.producer.Publish(ctx, s.notificationsTopic, key, event)
	}
	return nil
}

func (s *BookingService) logRejection(msg string, id int64, err error) {
	var v *domain.Violation
	if errors.As(err, &v) {
		s.log.Info(msg, "id", id, "rule", v.Rule, "reason", v.Message)
		return
	}
	s.log.Error(msg, "id", id, "error", err)
}

func roomAttr(room *int) any {
	if room == nil {
		return nil
	}
	return *room
}

var _ BookingUseCase = (*BookingService)(nil)
