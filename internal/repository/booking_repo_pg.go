package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/roombooking/internal/domain"
	"github.com/Domenick1991/roombooking/internal/repository/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"

	// advisory lock namespace for room locks
	roomLockClass int32 = 0x726d
)

var ErrDuplicateKey = errors.New("booking key already exists")

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGBookingRepository struct {
	pool *pgxpool.Pool
	db   pgQuerier
}

func NewBookingRepository(pool *pgxpool.Pool) *PGBookingRepository {
	return &PGBookingRepository{pool: pool, db: pool}
}

// Migrate applies the embedded schema. It is idempotent.
func (r *PGBookingRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, migrations.Postgres); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

const pgBookingColumns = `id, title, location, description, room_number, start_time, end_time, access_type, access_code, public_key, private_key, created_at, updated_at`

func (r *PGBookingRepository) List(ctx context.Context) ([]domain.Booking, error) {
	return r.queryBookings(ctx, `SELECT `+pgBookingColumns+` FROM bookings ORDER BY start_time, id`)
}

func (r *PGBookingRepository) FindByID(ctx context.Context, id int64) (*domain.Booking, error) {
	return r.queryOne(ctx, `SELECT `+pgBookingColumns+` FROM bookings WHERE id=$1`, id)
}

func (r *PGBookingRepository) FindByPublicKey(ctx context.Context, key string) (*domain.Booking, error) {
	return r.queryOne(ctx, `SELECT `+pgBookingColumns+` FROM bookings WHERE public_key=$1`, key)
}

func (r *PGBookingRepository) FindByPrivateKey(ctx context.Context, key string) (*domain.Booking, error) {
	return r.queryOne(ctx, `SELECT `+pgBookingColumns+` FROM bookings WHERE private_key=$1`, key)
}

func (r *PGBookingRepository) FindInRoom(ctx context.Context, room int) ([]domain.Booking, error) {
	return r.queryBookings(ctx, `SELECT `+pgBookingColumns+` FROM bookings WHERE room_number=$1 ORDER BY start_time, id`, room)
}

func (r *PGBookingRepository) KeyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE public_key=$1 OR private_key=$1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check booking key: %w", err)
	}
	return exists, nil
}

func (r *PGBookingRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM bookings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bookings: %w", err)
	}
	return n, nil
}

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	return r.RunInTx(ctx, func(ctx context.Context, repo BookingRepository) error {
		tx := repo.(*PGBookingRepository)
		err := tx.db.QueryRow(ctx, `INSERT INTO bookings (title, location, description, room_number, start_time, end_time, access_type, access_code, public_key, private_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id, created_at, updated_at`,
			booking.Title, booking.Location, booking.Description, booking.RoomNumber, booking.StartTime, booking.EndTime,
			booking.AccessType, booking.AccessCode, booking.PublicKey, booking.PrivateKey).
			Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
		if err != nil {
			return mapPgError("insert booking", err)
		}
		return tx.insertParticipants(ctx, booking)
	})
}

// Update replaces every mutable column and the whole participant list. Keys are never rewritten.
func (r *PGBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	return r.RunInTx(ctx, func(ctx context.Context, repo BookingRepository) error {
		tx := repo.(*PGBookingRepository)
		err := tx.db.QueryRow(ctx, `UPDATE bookings
			SET title=$1, location=$2, description=$3, room_number=$4, start_time=$5, end_time=$6, access_type=$7, access_code=$8, updated_at=now()
			WHERE id=$9
			RETURNING created_at, updated_at`,
			booking.Title, booking.Location, booking.Description, booking.RoomNumber, booking.StartTime, booking.EndTime,
			booking.AccessType, booking.AccessCode, booking.ID).
			Scan(&booking.CreatedAt, &booking.UpdatedAt)
		if err != nil {
			return mapPgError("update booking", err)
		}
		if _, err := tx.db.Exec(ctx, `DELETE FROM participants WHERE booking_id=$1`, booking.ID); err != nil {
			return fmt.Errorf("clear participants: %w", err)
		}
		return tx.insertParticipants(ctx, booking)
	})
}

func (r *PGBookingRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM bookings WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PGBookingRepository) LockRoom(ctx context.Context, room int) error {
	if _, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, roomLockClass, int32(room)); err != nil {
		return fmt.Errorf("lock room %d: %w", room, err)
	}
	return nil
}

func (r *PGBookingRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, repo BookingRepository) error) error {
	if r.pool == nil {
		// already inside a transaction
		return fn(ctx, r)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &PGBookingRepository{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError("commit", err)
	}
	return nil
}

func (r *PGBookingRepository) insertParticipants(ctx context.Context, booking *domain.Booking) error {
	for i := range booking.Participants {
		p := &booking.Participants[i]
		if err := r.db.QueryRow(ctx, `INSERT INTO participants (booking_id, position, name) VALUES ($1, $2, $3) RETURNING id`,
			booking.ID, i, p.Name).Scan(&p.ID); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return nil
}

func (r *PGBookingRepository) queryOne(ctx context.Context, sql string, arg any) (*domain.Booking, error) {
	bookings, err := r.queryBookings(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, domain.ErrNotFound
	}
	return &bookings[0], nil
}

func (r *PGBookingRepository) queryBookings(ctx context.Context, sql string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.Title, &b.Location, &b.Description, &b.RoomNumber, &b.StartTime, &b.EndTime,
			&b.AccessType, &b.AccessCode, &b.PublicKey, &b.PrivateKey, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	if err := r.loadParticipants(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *PGBookingRepository) loadParticipants(ctx context.Context, bookings []domain.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(bookings))
	index := make(map[int64]int, len(bookings))
	for i, b := range bookings {
		ids = append(ids, b.ID)
		index[b.ID] = i
	}

	rows, err := r.db.Query(ctx, `SELECT id, booking_id, name FROM participants WHERE booking_id = ANY($1) ORDER BY booking_id, position`, ids)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p         domain.Participant
			bookingID int64
		)
		if err := rows.Scan(&p.ID, &bookingID, &p.Name); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		if i, ok := index[bookingID]; ok {
			bookings[i].Participants = append(bookings[i].Participants, p)
		}
	}
	return rows.Err()
}

func mapPgError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return roomConflict()
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// roomConflict is what a storage-level overlap guard reports when it fires.
func roomConflict() error {
	return &domain.Violation{
		Rule:    domain.RuleRoomAvailable,
		Field:   "room_number",
		Message: "The selected room and time slot conflicts with an existing reservation",
	}
}

var _ BookingRepository = (*PGBookingRepository)(nil)
