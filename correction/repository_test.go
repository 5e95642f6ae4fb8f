package correction

import (
	"context"
	"testing"
	"time"

	"timekeeping/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestRepository_FindByID(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("for update", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(`SELECT \* FROM "correction_requests" WHERE id = \$1 .* FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(id, models.CorrectionPending))

		c, err := NewRepository(db).FindByID(ctx, id, true)

		require.NoError(t, err)
		assert.Equal(t, id, c.ID)
		assert.True(t, c.IsPending())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(`SELECT \* FROM "correction_requests" WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := NewRepository(db).FindByID(ctx, id, false)

		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_ListByOrg(t *testing.T) {
	db, mock := newMockDB(t)
	orgID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "correction_requests" WHERE org_id = \$1 AND status = \$2 ORDER BY created_at DESC`).
		WithArgs(orgID, models.CorrectionApproved).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id"}).AddRow(uuid.New(), orgID))

	rows, err := NewRepository(db).ListByOrg(context.Background(), orgID, models.CorrectionApproved)

	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_TransactionSharesConnection(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "correction_requests" WHERE id = \$1`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "attendance_sessions" WHERE user_id = \$1 AND work_date = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := NewRepository(db).Transaction(context.Background(), func(tx Repository) error {
		if err := tx.Delete(context.Background(), id); err != nil {
			return err
		}
		n, err := tx.Sessions().DeleteSessionsByDate(context.Background(), uuid.New(), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, int64(2), n)
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
