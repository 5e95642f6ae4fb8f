package attendance

import (
	"context"
	"errors"
	"time"

	"timekeeping/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDailyExists is returned by CreateDaily when another writer created the
// row first. Callers re-read and continue.
var ErrDailyExists = errors.New("daily attendance already exists")

const pgUniqueViolation = "23505"

// StaleCursor pages ListStaleOpenSessions in (time_in, id) order. The zero
// value starts at the oldest row.
type StaleCursor struct {
	TimeIn time.Time
	ID     uuid.UUID
}

type Repository interface {
	// Transaction runs fn inside one transaction. Calling it on a
	// repository that is already transactional reuses the transaction.
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	FindOpenSession(ctx context.Context, userID uuid.UUID, since time.Time, forUpdate bool) (*models.AttendanceSession, error)
	ListSessionsByDate(ctx context.Context, userID uuid.UUID, date time.Time) ([]models.AttendanceSession, error)
	// ListStaleOpenSessions returns open sessions with time_in before the
	// cutoff that have not been reported yet, ordered after the cursor.
	ListStaleOpenSessions(ctx context.Context, before time.Time, after StaleCursor, limit int) ([]models.AttendanceSession, error)
	MarkStaleNotified(ctx context.Context, id uuid.UUID, at time.Time) error
	CreateSession(ctx context.Context, s *models.AttendanceSession) error
	UpdateSession(ctx context.Context, s *models.AttendanceSession) error
	UpdateSessionEvidence(ctx context.Context, id uuid.UUID, leg, state string, ref *string) error
	DeleteSessionsByDate(ctx context.Context, userID uuid.UUID, date time.Time) (int64, error)

	FindDaily(ctx context.Context, userID uuid.UUID, date time.Time) (*models.DailyAttendance, error)
	CreateDaily(ctx context.Context, d *models.DailyAttendance) error
	UpdateDaily(ctx context.Context, d *models.DailyAttendance) error
}

type repository struct {
	db   *gorm.DB
	inTx bool
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// NewTxRepository binds the repository to an open transaction.
func NewTxRepository(tx *gorm.DB) Repository {
	return &repository{db: tx, inTx: true}
}

func (r *repository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx, inTx: true})
	})
}

// FindOpenSession returns the latest session without a time-out whose
// time-in is at or after since. gorm.ErrRecordNotFound means none.
func (r *repository) FindOpenSession(ctx context.Context, userID uuid.UUID, since time.Time, forUpdate bool) (*models.AttendanceSession, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("time_out IS NULL").
		Where("time_in >= ?", since).
		Order("time_in DESC")
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var s models.AttendanceSession
	if err := q.First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListSessionsByDate(ctx context.Context, userID uuid.UUID, date time.Time) ([]models.AttendanceSession, error) {
	var rows []models.AttendanceSession
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("work_date = ?", date.Format(dateLayout)).
		Order("time_in ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListStaleOpenSessions(ctx context.Context, before time.Time, after StaleCursor, limit int) ([]models.AttendanceSession, error) {
	q := r.db.WithContext(ctx).
		Where("time_out IS NULL").
		Where("stale_notified_at IS NULL").
		Where("time_in < ?", before)
	if !after.TimeIn.IsZero() {
		q = q.Where("(time_in, id) > (?, ?)", after.TimeIn, after.ID)
	}

	var rows []models.AttendanceSession
	err := q.Order("time_in ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkStaleNotified leaves updated_at alone; the row itself did not change.
func (r *repository) MarkStaleNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.AttendanceSession{}).
		Where("id = ?", id).
		Where("stale_notified_at IS NULL").
		UpdateColumn("stale_notified_at", at).Error
}

func (r *repository) CreateSession(ctx context.Context, s *models.AttendanceSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *repository) UpdateSession(ctx context.Context, s *models.AttendanceSession) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// UpdateSessionEvidence touches only the evidence columns of one leg so it
// cannot clobber a concurrent time-out.
func (r *repository) UpdateSessionEvidence(ctx context.Context, id uuid.UUID, leg, state string, ref *string) error {
	prefix := "in_"
	if leg == models.LegOut {
		prefix = "out_"
	}
	return r.db.WithContext(ctx).
		Model(&models.AttendanceSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			prefix + "evidence_state": state,
			prefix + "evidence_ref":   ref,
		}).Error
}

func (r *repository) DeleteSessionsByDate(ctx context.Context, userID uuid.UUID, date time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("work_date = ?", date.Format(dateLayout)).
		Delete(&models.AttendanceSession{})
	return res.RowsAffected, res.Error
}

func (r *repository) FindDaily(ctx context.Context, userID uuid.UUID, date time.Time) (*models.DailyAttendance, error) {
	var d models.DailyAttendance
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("date = ?", date.Format(dateLayout)).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repository) CreateDaily(ctx context.Context, d *models.DailyAttendance) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	// Savepoint so a unique violation does not abort the caller's transaction.
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(d).Error
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDailyExists
	}
	return err
}

func (r *repository) UpdateDaily(ctx context.Context, d *models.DailyAttendance) error {
	return r.db.WithContext(ctx).Save(d).Error
}
