package booking

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Domenick1991/roombooking/internal/domain"
	"github.com/Domenick1991/roombooking/internal/kafka"
	"github.com/Domenick1991/roombooking/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) List(ctx context.Context) ([]domain.Booking, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) FindByID(ctx context.Context, id int64) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) FindByPublicKey(ctx context.Context, key string) (*domain.Booking, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) FindByPrivateKey(ctx context.Context, key string) (*domain.Booking, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) FindInRoom(ctx context.Context, room int) ([]domain.Booking, error) {
	args := m.Called(ctx, room)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) KeyExists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

func (m *MockBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

func (m *MockBookingRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockBookingRepository) LockRoom(ctx context.Context, room int) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

// RunInTx records the call and runs fn against the mock itself.
func (m *MockBookingRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, repo repository.BookingRepository) error) error {
	m.Called(ctx)
	return fn(ctx, m)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) AcquireRoomLock(ctx context.Context, room int, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, room, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockCache) ReleaseRoomLock(ctx context.Context, room int, token string) error {
	args := m.Called(ctx, room, token)
	return args.Error(0)
}

func (m *MockCache) GetBookings(ctx context.Context) ([]domain.BookingSummary, int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]domain.BookingSummary), args.Get(1).(int64), args.Error(2)
}

func (m *MockCache) SetBookings(ctx context.Context, version int64, bookings []domain.BookingSummary) error {
	args := m.Called(ctx, version, bookings)
	return args.Error(0)
}

func (m *MockCache) InvalidateBookings(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sequentialKeys yields distinct deterministic keys: each draw is a run of one byte value.
func sequentialKeys() *KeyGenerator {
	var buf bytes.Buffer
	for i := 1; i <= 32; i++ {
		buf.Write(bytes.Repeat([]byte{byte(i)}, minKeyBytes))
	}
	return NewKeyGenerator(&buf, minKeyBytes)
}

func newTestService(repo *MockBookingRepository, cache *MockCache, producer *MockProducer) *BookingService {
	opts := []BookingServiceOption{
		WithClock(fixedClock),
		WithKeyGenerator(sequentialKeys()),
	}
	if cache != nil {
		opts = append(opts, WithCache(cache, 10*time.Second))
	}
	if producer != nil {
		opts = append(opts, WithProducer(producer, "booking_events", "booking_notifications"))
	}
	return NewBookingService(repo, discardLogger(), opts...)
}

func storedBooking(id int64) *domain.Booking {
	start := fixedNow.Add(48 * time.Hour)
	return &domain.Booking{
		ID:           id,
		Title:        "Client Presentation",
		Location:     "Executive Boardroom",
		RoomNumber:   domain.RoomPtr(102),
		StartTime:    start,
		EndTime:      start.Add(2 * time.Hour),
		AccessType:   domain.AccessPrivate,
		AccessCode:   "DEMO2024",
		PublicKey:    "pub-key",
		PrivateKey:   "priv-key",
		Participants: []domain.Participant{{ID: 1, Name: "Michael Brown"}},
		CreatedAt:    fixedNow.Add(-time.Hour),
	}
}

func TestBookingService_CreateBooking_Success(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	producer := &MockProducer{}
	service := newTestService(repo, cache, producer)

	ctx := context.Background()
	input := validInput()

	cache.On("AcquireRoomLock", ctx, 101, 10*time.Second).Return("token-1", true, nil).Once()
	cache.On("ReleaseRoomLock", mock.Anything, 101, "token-1").Return(nil).Once()
	repo.On("RunInTx", ctx).Once()
	repo.On("LockRoom", ctx, 101).Return(nil).Once()
	repo.On("FindInRoom", ctx, 101).Return([]domain.Booking{}, nil).Once()
	repo.On("KeyExists", ctx, mock.Anything).Return(false, nil).Twice()
	repo.On("Create", ctx, mock.AnythingOfType("*domain.Booking")).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Booking).ID = 42
	}).Return(nil).Once()
	cache.On("InvalidateBookings", ctx).Return(nil).Once()
	producer.On("Publish", ctx, "booking_events", "42", mock.AnythingOfType("kafka.BookingEvent")).Return(nil).Once()
	producer.On("Publish", ctx, "booking_notifications", "42", mock.AnythingOfType("kafka.BookingEvent")).Return(nil).Once()

	b, err := service.CreateBooking(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, int64(42), b.ID)
	assert.NotEmpty(t, b.PublicKey)
	assert.NotEmpty(t, b.PrivateKey)
	assert.NotEqual(t, b.PublicKey, b.PrivateKey)

	event := producer.Calls[0].Arguments.Get(3).(kafka.BookingEvent)
	assert.Equal(t, kafka.EventBookingCreated, event.Type)
	assert.Equal(t, []string{"Alice Johnson", "Bob Smith"}, event.Participants)
	assert.NotEmpty(t, event.EventID)

	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestBookingService_CreateBooking_WaitsForBusyRoomLock(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	service := newTestService(repo, cache, nil)

	ctx := context.Background()
	cache.On("AcquireRoomLock", ctx, 101, 10*time.Second).Return("", false, nil).Twice()
	cache.On("AcquireRoomLock", ctx, 101, 10*time.Second).Return("token-3", true, nil).Once()
	cache.On("ReleaseRoomLock", mock.Anything, 101, "token-3").Return(nil).Once()
	repo.On("RunInTx", ctx).Once()
	repo.On("LockRoom", ctx, 101).Return(nil).Once()
	repo.On("FindInRoom", ctx, 101).Return([]domain.Booking{}, nil).Once()
	repo.On("KeyExists", ctx, mock.Anything).Return(false, nil).Twice()
	repo.On("Create", ctx, mock.AnythingOfType("*domain.Booking")).Return(nil).Once()
	cache.On("InvalidateBookings", ctx).Return(nil).Once()

	b, err := service.CreateBooking(ctx, validInput())

	require.NoError(t, err)
	assert.NotNil(t, b)
	cache.AssertNumberOfCalls(t, "AcquireRoomLock", 3)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestBookingService_CreateBooking_RoomLockBusyIsNotConflict(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	service := NewBookingService(repo, discardLogger(),
		WithClock(fixedClock),
		WithCache(cache, 60*time.Millisecond),
	)

	ctx := context.Background()
	cache.On("AcquireRoomLock", ctx, 101, 60*time.Millisecond).Return("", false, nil)

	b, err := service.CreateBooking(ctx, validInput())

	assert.Nil(t, b)
	assert.ErrorIs(t, err, domain.ErrRoomBusy)
	assert.NotErrorIs(t, err, domain.ErrRoomConflict)
	var v *domain.Violation
	assert.False(t, errors.As(err, &v))
	repo.AssertNotCalled(t, "RunInTx", mock.Anything)
	cache.AssertNotCalled(t, "ReleaseRoomLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_CreateBooking_RoomLockWaitCanceled(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	service := newTestService(repo, cache, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cache.On("AcquireRoomLock", ctx, 101, 10*time.Second).Return("", false, nil).Run(func(mock.Arguments) {
		cancel()
	})

	_, err := service.CreateBooking(ctx, validInput())

	assert.ErrorIs(t, err, context.Canceled)
	repo.AssertNotCalled(t, "RunInTx", mock.Anything)
}

func TestBookingService_CreateBooking_LockError(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	service := newTestService(repo, cache, nil)

	ctx := context.Background()
	cache.On("AcquireRoomLock", ctx, 101, 10*time.Second).Return("", false, errors.New("redis down")).Once()

	_, err := service.CreateBooking(ctx, validInput())

	assert.ErrorContains(t, err, "redis down")
	repo.AssertNotCalled(t, "RunInTx", mock.Anything)
}

func TestBookingService_CreateBooking_Conflict(t *testing.T) {
	repo := &MockBookingRepository{}
	producer := &MockProducer{}
	service := newTestService(repo, nil, producer)

	ctx := context.Background()
	input := validInput()
	existing := []domain.Booking{
		{ID: 1, RoomNumber: domain.RoomPtr(101), StartTime: input.StartTime.Add(-30 * time.Minute), EndTime: input.StartTime.Add(30 * time.Minute)},
	}

	repo.On("RunInTx", ctx).Once()
	repo.On("LockRoom", ctx, 101).Return(nil).Once()
	repo.On("FindInRoom", ctx, 101).Return(existing, nil).Once()

	b, err := service.CreateBooking(ctx, input)

	assert.Nil(t, b)
	assert.ErrorIs(t, err, domain.ErrRoomConflict)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_CreateBooking_InvalidInput(t *testing.T) {
	repo := &MockBookingRepository{}
	service := newTestService(repo, nil, nil)

	ctx := context.Background()
	input := validInput()
	input.Participants = []string{"John123"}

	repo.On("RunInTx", ctx).Once()
	repo.On("LockRoom", ctx, 101).Return(nil).Once()
	repo.On("FindInRoom", ctx, 101).Return([]domain.Booking{}, nil).Once()

	_, err := service.CreateBooking(ctx, input)

	assert.ErrorIs(t, err, domain.ErrInvalidBooking)
	assert.EqualError(t, err, "Participant names may only contain letters and spaces")
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestBookingService_CreateBooking_WithoutRoom(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	service := newTestService(repo, cache, nil)

	ctx := context.Background()
	input := validInput()
	input.RoomNumber = nil

	repo.On("RunInTx", ctx).Once()
	repo.On("KeyExists", ctx, mock.Anything).Return(false, nil).Twice()
	repo.On("Create", ctx, mock.AnythingOfType("*domain.Booking")).Return(nil).Once()
	cache.On("InvalidateBookings", ctx).Return(nil).Once()

	b, err := service.CreateBooking(ctx, input)

	require.NoError(t, err)
	assert.Nil(t, b.RoomNumber)
	repo.AssertNotCalled(t, "LockRoom", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "FindInRoom", mock.Anything, mock.Anything)
	cache.AssertNotCalled(t, "AcquireRoomLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_CreateBooking_RetriesTakenKey(t *testing.T) {
	repo := &MockBookingRepository{}
	service := newTestService(repo, nil, nil)

	ctx := context.Background()
	repo.On("RunInTx", ctx).Once()
	repo.On("LockRoom", ctx, 101).Return(nil).Once()
	repo.On("FindInRoom", ctx, 101).Return([]domain.Booking{}, nil).Once()
	repo.On("KeyExists", ctx, mock.Anything).Return(true, nil).Once()
	repo.On("KeyExists", ctx, mock.Anything).Return(false, nil).Twice()
	repo.On("Create", ctx, mock.AnythingOfType("*domain.Booking")).Return(nil).Once()

	b, err := service.CreateBooking(ctx, validInput())

	require.NoError(t, err)
	// The first pair was rejected, so the accepted pair is the second draw.
	assert.Equal(t, "AwMDAwMDAwMDAwMD", b.PublicKey)
	assert.Equal(t, "BAQEBAQEBAQEBAQE", b.PrivateKey)
	repo.AssertNumberOfCalls(t, "KeyExists", 3)
}

func TestBookingService_CreateBooking_KeysExhausted(t *testing.T) {
	repo := &MockBookingRepository{}
	service := newTestService(repo, nil, nil)

	ctx := context.Background()
	repo.On("RunInTx", ctx).Once()
	repo.On("LockRoom", ctx, 101).Return(nil).Once()
	repo.On("FindInRoom", ctx, 101).Return([]domain.Booking{}, nil).Once()
	repo.On("KeyExists", ctx, mock.Anything).Return(true, nil)

	_, err := service.CreateBooking(ctx, validInput())

	assert.ErrorIs(t, err, ErrKeyGeneration)
	repo.AssertNumberOfCalls(t, "KeyExists", maxKeyAttempts)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestBookingService_UpdateBooking_Success(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	producer := &MockProducer{}
	service := newTestService(repo, cache, producer)

	ctx := context.Background()
	current := storedBooking(7)
	input := validInput()
	input.RoomNumber = domain.RoomPtr(102)
	input.StartTime = current.StartTime
	input.EndTime = current.EndTime
	input.Title = "Client Presentation v2"

	repo.On("FindByID", ctx, int64(7)).Return(current, nil).Once()
	cache.On("AcquireRoomLock", ctx, 102, 10*time.Second).Return("token-7", true, nil).Once()
	cache.On("ReleaseRoomLock", mock.Anything, 102, "token-7").Return(nil).Once()
	repo.On("RunInTx", ctx).Once()
	repo.On("LockRoom", ctx, 102).Return(nil).Once()
	repo.On("FindInRoom", ctx, 102).Return([]domain.Booking{*current}, nil).Once()
	repo.On("Update", ctx, mock.AnythingOfType("*domain.Booking")).Return(nil).Once()
	cache.On("InvalidateBookings", ctx).Return(nil).Once()
	producer.On("Publish", ctx, mock.Anything, "7", mock.AnythingOfType("kafka.BookingEvent")).Return(nil).Twice()

	b, err := service.UpdateBooking(ctx, 7, "priv-key", input)

	require.NoError(t, err)
	assert.Equal(t, int64(7), b.ID)
	assert.Equal(t, "Client Presentation v2", b.Title)
	assert.Equal(t, "pub-key", b.PublicKey)
	assert.Equal(t, "priv-key", b.PrivateKey)
	assert.Equal(t, current.CreatedAt, b.CreatedAt)
	assert.Equal(t, domain.AccessPublic, b.AccessType)
	assert.Empty(t, b.AccessCode)

	event := producer.Calls[0].Arguments.Get(3).(kafka.BookingEvent)
	assert.Equal(t, kafka.EventBookingUpdated, event.Type)

	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestBookingService_UpdateBooking_WrongKey(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	service := newTestService(repo, cache, nil)

	ctx := context.Background()
	repo.On("FindByID", ctx, int64(7)).Return(storedBooking(7), nil).Times(3)

	for _, key := range []string{"pub-key", "PRIV-KEY", ""} {
		b, err := service.UpdateBooking(ctx, 7, key, validInput())
		assert.Nil(t, b)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	}

	repo.AssertNotCalled(t, "RunInTx", mock.Anything)
	cache.AssertNotCalled(t, "AcquireRoomLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_UpdateBooking_NotFound(t *testing.T) {
	repo := &MockBookingRepository{}
	service := newTestService(repo, nil, nil)

	ctx := context.Background()
	repo.On("FindByID", ctx, int64(99)).Return(nil, domain.ErrNotFound).Once()

	_, err := service.UpdateBooking(ctx, 99, "priv-key", validInput())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBookingService_UpdateBooking_ConflictWithOther(t *testing.T) {
	repo := &MockBookingRepository{}
	service := newTestService(repo, nil, nil)

	ctx := context.Background()
	current := storedBooking(7)
	input := validInput()
	other := domain.Booking{ID: 8, RoomNumber: domain.RoomPtr(101), StartTime: input.StartTime, EndTime: input.EndTime}

	repo.On("FindByID", ctx, int64(7)).Return(current, nil).Once()
	repo.On("RunInTx", ctx).Once()
	repo.On("LockRoom", ctx, 101).Return(nil).Once()
	repo.On("FindInRoom", ctx, 101).Return([]domain.Booking{other}, nil).Once()

	_, err := service.UpdateBooking(ctx, 7, "priv-key", input)

	assert.ErrorIs(t, err, domain.ErrRoomConflict)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestBookingService_DeleteBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("owner deletes", func(t *testing.T) {
		repo := &MockBookingRepository{}
		cache := &MockCache{}
		producer := &MockProducer{}
		service := newTestService(repo, cache, producer)

		repo.On("FindByID", ctx, int64(7)).Return(storedBooking(7), nil).Once()
		repo.On("Delete", ctx, int64(7)).Return(nil).Once()
		cache.On("InvalidateBookings", ctx).Return(nil).Once()
		producer.On("Publish", ctx, mock.Anything, "7", mock.AnythingOfType("kafka.BookingEvent")).Return(nil).Twice()

		require.NoError(t, service.DeleteBooking(ctx, 7, "priv-key"))

		event := producer.Calls[0].Arguments.Get(3).(kafka.BookingEvent)
		assert.Equal(t, kafka.EventBookingDeleted, event.Type)
		repo.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("public key is rejected", func(t *testing.T) {
		repo := &MockBookingRepository{}
		service := newTestService(repo, nil, nil)

		repo.On("FindByID", ctx, int64(7)).Return(storedBooking(7), nil).Once()

		err := service.DeleteBooking(ctx, 7, "pub-key")

		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("missing booking", func(t *testing.T) {
		repo := &MockBookingRepository{}
		service := newTestService(repo, nil, nil)

		repo.On("FindByID", ctx, int64(3)).Return(nil, domain.ErrNotFound).Once()

		assert.ErrorIs(t, service.DeleteBooking(ctx, 3, "priv-key"), domain.ErrNotFound)
	})
}

func TestBookingService_DeleteBooking_PublishFailureIsNotFatal(t *testing.T) {
	repo := &MockBookingRepository{}
	producer := &MockProducer{}
	service := newTestService(repo, nil, producer)

	ctx := context.Background()
	repo.On("FindByID", ctx, int64(7)).Return(storedBooking(7), nil).Once()
	repo.On("Delete", ctx, int64(7)).Return(nil).Once()
	producer.On("Publish", ctx, "booking_events", "7", mock.Anything).Return(errors.New("broker unavailable")).Once()

	assert.NoError(t, service.DeleteBooking(ctx, 7, "priv-key"))
	producer.AssertNumberOfCalls(t, "Publish", 1)
}

func TestBookingService_ListBookings_CacheHit(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	service := newTestService(repo, cache, nil)

	ctx := context.Background()
	cached := []domain.BookingSummary{{ID: 1, Title: "Team Sync Meeting"}}
	cache.On("GetBookings", ctx).Return(cached, int64(3), nil).Once()

	list, err := service.ListBookings(ctx)

	require.NoError(t, err)
	assert.Equal(t, cached, list)
	repo.AssertNotCalled(t, "List", mock.Anything)
}

func TestBookingService_ListBookings_CacheMiss(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	service := newTestService(repo, cache, nil)

	ctx := context.Background()
	stored := []domain.Booking{*storedBooking(7)}
	cache.On("GetBookings", ctx).Return(nil, int64(7), nil).Once()
	repo.On("List", ctx).Return(stored, nil).Once()
	cache.On("SetBookings", ctx, int64(7), mock.AnythingOfType("[]domain.BookingSummary")).Return(nil).Once()

	list, err := service.ListBookings(ctx)

	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(7), list[0].ID)
	assert.Equal(t, "Client Presentation", list[0].Title)
	cache.AssertExpectations(t)
}

func TestBookingService_ViewBooking(t *testing.T) {
	ctx := context.Background()
	b := storedBooking(7)

	newService := func() (*BookingService, *MockBookingRepository) {
		repo := &MockBookingRepository{}
		repo.On("FindByPublicKey", ctx, "pub-key").Return(b, nil)
		repo.On("FindByPublicKey", ctx, mock.Anything).Return(nil, domain.ErrNotFound)
		repo.On("FindByPrivateKey", ctx, "priv-key").Return(b, nil)
		repo.On("FindByPrivateKey", ctx, mock.Anything).Return(nil, domain.ErrNotFound)
		return newTestService(repo, nil, nil), repo
	}

	t.Run("owner sees everything without code", func(t *testing.T) {
		service, _ := newService()
		view, err := service.ViewBooking(ctx, "priv-key", "")
		require.NoError(t, err)
		assert.Equal(t, ViewOwner, view.Kind)
		assert.Equal(t, "DEMO2024", view.Booking.AccessCode)
	})

	t.Run("public key needs code", func(t *testing.T) {
		service, _ := newService()
		_, err := service.ViewBooking(ctx, "pub-key", "")
		assert.ErrorIs(t, err, domain.ErrAccessCodeRequired)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("public key wrong code", func(t *testing.T) {
		service, _ := newService()
		_, err := service.ViewBooking(ctx, "pub-key", "wrong")
		assert.ErrorIs(t, err, domain.ErrAccessCodeIncorrect)
	})

	t.Run("public key right code", func(t *testing.T) {
		service, _ := newService()
		view, err := service.ViewBooking(ctx, "pub-key", "DEMO2024")
		require.NoError(t, err)
		assert.Equal(t, ViewPublic, view.Kind)
	})

	t.Run("unknown key", func(t *testing.T) {
		service, _ := newService()
		_, err := service.ViewBooking(ctx, "nope", "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestBookingService_ListBookings_CacheReadError(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	service := newTestService(repo, cache, nil)

	ctx := context.Background()
	cache.On("GetBookings", ctx).Return(nil, int64(0), errors.New("connection refused")).Once()
	repo.On("List", ctx).Return([]domain.Booking{*storedBooking(7)}, nil).Once()

	list, err := service.ListBookings(ctx)

	require.NoError(t, err)
	assert.Len(t, list, 1)
	cache.AssertNotCalled(t, "SetBookings", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_ListBookings_CacheWriteErrorIsNotFatal(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := &MockCache{}
	service := newTestService(repo, cache, nil)

	ctx := context.Background()
	cache.On("GetBookings", ctx).Return(nil, int64(1), nil).Once()
	repo.On("List", ctx).Return([]domain.Booking{*storedBooking(7)}, nil).Once()
	cache.On("SetBookings", ctx, int64(1), mock.Anything).Return(errors.New("READONLY")).Once()

	list, err := service.ListBookings(ctx)

	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// A write that commits while the listing is loaded must not be overwritten by the older listing.
func TestBookingService_ListBookings_ConcurrentWriteKeepsInvalidation(t *testing.T) {
	repo := &MockBookingRepository{}
	cache := newVersionedCache()
	service := newTestService(repo, nil, nil)
	service.cache = cache

	ctx := context.Background()
	repo.On("List", ctx).Return([]domain.Booking{*storedBooking(7)}, nil).Run(func(mock.Arguments) {
		_ = cache.InvalidateBookings(ctx)
	}).Once()

	list, err := service.ListBookings(ctx)

	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Nil(t, cache.listing)
}

// versionedCache mirrors the compare-and-set contract of the redis listing cache.
type versionedCache struct {
	version int64
	listing []domain.BookingSummary
}

func newVersionedCache() *versionedCache {
	return &versionedCache{}
}

func (c *versionedCache) AcquireRoomLock(context.Context, int, time.Duration) (string, bool, error) {
	return "token", true, nil
}

func (c *versionedCache) ReleaseRoomLock(context.Context, int, string) error { return nil }

func (c *versionedCache) GetBookings(context.Context) ([]domain.BookingSummary, int64, error) {
	return c.listing, c.version, nil
}

func (c *versionedCache) SetBookings(_ context.Context, version int64, bookings []domain.BookingSummary) error {
	if version == c.version {
		c.listing = bookings
	}
	return nil
}

func (c *versionedCache) InvalidateBookings(context.Context) error {
	c.version++
	c.listing = nil
	return nil
}
