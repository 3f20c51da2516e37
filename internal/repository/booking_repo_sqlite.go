package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Domenick1991/roombooking/internal/domain"
	"github.com/Domenick1991/roombooking/internal/repository/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteBookingRepository is the embedded store. Transactions start IMMEDIATE, so a
// read-validate-insert sequence holds the database write lock from its first statement.
type SQLiteBookingRepository struct {
	sqlDB *sql.DB
	db    sqlQuerier
	now   func() time.Time
}

func OpenSQLite(path string) (*SQLiteBookingRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(migrations.SQLite); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteBookingRepository{sqlDB: sqlDB, db: sqlDB, now: time.Now}, nil
}

func (r *SQLiteBookingRepository) Close() error {
	if r == nil || r.sqlDB == nil {
		return nil
	}
	return r.sqlDB.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

const sqliteBookingColumns = `id, title, location, description, room_number, start_time, end_time, access_type, access_code, public_key, private_key, created_at, updated_at`

func (r *SQLiteBookingRepository) List(ctx context.Context) ([]domain.Booking, error) {
	return r.queryBookings(ctx, `SELECT `+sqliteBookingColumns+` FROM bookings ORDER BY start_time, id`)
}

func (r *SQLiteBookingRepository) FindByID(ctx context.Context, id int64) (*domain.Booking, error) {
	return r.queryOne(ctx, `SELECT `+sqliteBookingColumns+` FROM bookings WHERE id = ?`, id)
}

func (r *SQLiteBookingRepository) FindByPublicKey(ctx context.Context, key string) (*domain.Booking, error) {
	return r.queryOne(ctx, `SELECT `+sqliteBookingColumns+` FROM bookings WHERE public_key = ?`, key)
}

func (r *SQLiteBookingRepository) FindByPrivateKey(ctx context.Context, key string) (*domain.Booking, error) {
	return r.queryOne(ctx, `SELECT `+sqliteBookingColumns+` FROM bookings WHERE private_key = ?`, key)
}

func (r *SQLiteBookingRepository) FindInRoom(ctx context.Context, room int) ([]domain.Booking, error) {
	return r.queryBookings(ctx, `SELECT `+sqliteBookingColumns+` FROM bookings WHERE room_number = ? ORDER BY start_time, id`, room)
}

func (r *SQLiteBookingRepository) KeyExists(ctx context.Context, key string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM bookings WHERE public_key = ? OR private_key = ?`, key, key).Scan(&n); err != nil {
		return false, fmt.Errorf("check booking key: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteBookingRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM bookings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bookings: %w", err)
	}
	return n, nil
}

func (r *SQLiteBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	return r.RunInTx(ctx, func(ctx context.Context, repo BookingRepository) error {
		tx := repo.(*SQLiteBookingRepository)
		now := tx.now().UTC().Truncate(time.Millisecond)
		res, err := tx.db.ExecContext(ctx, `INSERT INTO bookings (title, location, description, room_number, start_time, end_time, access_type, access_code, public_key, private_key, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			booking.Title, booking.Location, booking.Description, roomValue(booking.RoomNumber),
			toMillis(booking.StartTime), toMillis(booking.EndTime), string(booking.AccessType), booking.AccessCode,
			booking.PublicKey, booking.PrivateKey, toMillis(now), toMillis(now))
		if err != nil {
			return mapSQLiteError("insert booking", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read booking id: %w", err)
		}
		booking.ID = id
		booking.CreatedAt = now
		booking.UpdatedAt = now
		return tx.insertParticipants(ctx, booking)
	})
}

func (r *SQLiteBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	return r.RunInTx(ctx, func(ctx context.Context, repo BookingRepository) error {
		tx := repo.(*SQLiteBookingRepository)
		now := tx.now().UTC().Truncate(time.Millisecond)
		res, err := tx.db.ExecContext(ctx, `UPDATE bookings
			SET title = ?, location = ?, description = ?, room_number = ?, start_time = ?, end_time = ?, access_type = ?, access_code = ?, updated_at = ?
			WHERE id = ?`,
			booking.Title, booking.Location, booking.Description, roomValue(booking.RoomNumber),
			toMillis(booking.StartTime), toMillis(booking.EndTime), string(booking.AccessType), booking.AccessCode,
			toMillis(now), booking.ID)
		if err != nil {
			return mapSQLiteError("update booking", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("update booking: %w", err)
		} else if n == 0 {
			return domain.ErrNotFound
		}
		booking.UpdatedAt = now

		if _, err := tx.db.ExecContext(ctx, `DELETE FROM participants WHERE booking_id = ?`, booking.ID); err != nil {
			return fmt.Errorf("clear participants: %w", err)
		}
		return tx.insertParticipants(ctx, booking)
	})
}

func (r *SQLiteBookingRepository) Delete(ctx context.Context, id int64) error {
	return r.RunInTx(ctx, func(ctx context.Context, repo BookingRepository) error {
		tx := repo.(*SQLiteBookingRepository)
		if _, err := tx.db.ExecContext(ctx, `DELETE FROM participants WHERE booking_id = ?`, id); err != nil {
			return fmt.Errorf("delete participants: %w", err)
		}
		res, err := tx.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete booking: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete booking: %w", err)
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// LockRoom is a no-op: the IMMEDIATE transaction already excludes other writers.
func (r *SQLiteBookingRepository) LockRoom(ctx context.Context, room int) error {
	return ctx.Err()
}

func (r *SQLiteBookingRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, repo BookingRepository) error) error {
	if r.sqlDB == nil {
		return fn(ctx, r)
	}

	tx, err := r.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &SQLiteBookingRepository{db: tx, now: r.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *SQLiteBookingRepository) insertParticipants(ctx context.Context, booking *domain.Booking) error {
	for i := range booking.Participants {
		p := &booking.Participants[i]
		res, err := r.db.ExecContext(ctx, `INSERT INTO participants (booking_id, position, name) VALUES (?, ?, ?)`, booking.ID, i, p.Name)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("read participant id: %w", err)
		}
	}
	return nil
}

func (r *SQLiteBookingRepository) queryOne(ctx context.Context, query string, arg any) (*domain.Booking, error) {
	bookings, err := r.queryBookings(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, domain.ErrNotFound
	}
	return &bookings[0], nil
}

func (r *SQLiteBookingRepository) queryBookings(ctx context.Context, query string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		var (
			b          domain.Booking
			room       sql.NullInt64
			accessType string
		)
		var start, end, created, updated int64
		if err := rows.Scan(&b.ID, &b.Title, &b.Location, &b.Description, &room, &start, &end,
			&accessType, &b.AccessCode, &b.PublicKey, &b.PrivateKey, &created, &updated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		if room.Valid {
			b.RoomNumber = domain.RoomPtr(int(room.Int64))
		}
		b.StartTime = fromMillis(start)
		b.EndTime = fromMillis(end)
		b.CreatedAt = fromMillis(created)
		b.UpdatedAt = fromMillis(updated)
		b.AccessType = domain.AccessType(accessType)
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	// release the connection before the participant query
	rows.Close()

	for i := range bookings {
		if err := r.loadParticipants(ctx, &bookings[i]); err != nil {
			return nil, err
		}
	}
	return bookings, nil
}

func (r *SQLiteBookingRepository) loadParticipants(ctx context.Context, b *domain.Booking) error {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM participants WHERE booking_id = ? ORDER BY position`, b.ID)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		b.Participants = append(b.Participants, p)
	}
	return rows.Err()
}

func roomValue(room *int) any {
	if room == nil {
		return nil
	}
	return *room
}

func mapSQLiteError(op string, err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
	}
	if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
		return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ BookingRepository = (*SQLiteBookingRepository)(nil)
