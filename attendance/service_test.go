package attendance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"timekeeping/apperror"
	attendanceerrors "timekeeping/attendance/errors"
	"timekeeping/events"
	"timekeeping/geo"
	"timekeeping/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestService_TimeIn(t *testing.T) {
	ctx := context.Background()

	t.Run("on time first session", func(t *testing.T) {
		f := newFixture(t, morningShift())
		f.allowEvents()

		res, err := f.svc.TimeIn(ctx, f.capture())

		require.NoError(t, err)
		assert.Equal(t, 1, res.SessionNumber)
		assert.True(t, res.IsFirstSession)
		assert.False(t, res.IsLate)
		assert.Equal(t, "2024-05-01", res.WorkDate)
		assert.Equal(t, "UTC", res.Timezone)
		assert.Equal(t, geo.UnknownAddress, res.Address)
		assert.True(t, res.SideEffects.AggregateSynced)
		assert.True(t, res.SideEffects.LocationDegraded)
		assert.Equal(t, models.EvidenceNone, res.SideEffects.EvidenceState)
		assert.Equal(t, 2, res.SideEffects.EventsEmitted)

		rows := f.repo.Sessions()
		require.Len(t, rows, 1)
		assert.Equal(t, models.SessionStatusOpen, rows[0].Status)
		assert.Nil(t, rows[0].TimeOut)
		assert.Equal(t, "10.0.0.1", rows[0].Metadata.Data().In.IPAddress)

		daily, err := f.svc.GetDailyAggregate(ctx, f.userID, at(0, 0))
		require.NoError(t, err)
		assert.Equal(t, "08:55:00", *daily.FirstIn)
		assert.Nil(t, daily.LastOut)
		assert.Equal(t, 0.0, daily.TotalHours)
		assert.Equal(t, 1, daily.SessionCount)
	})

	t.Run("second time in while open is rejected", func(t *testing.T) {
		f := newFixture(t, morningShift())
		f.allowEvents()

		_, err := f.svc.TimeIn(ctx, f.capture())
		require.NoError(t, err)

		f.clock.Set(at(9, 30))
		_, err = f.svc.TimeIn(ctx, f.capture())

		assert.ErrorIs(t, err, attendanceerrors.ErrAlreadyOpen)
		assert.Equal(t, apperror.CodeAlreadyOpen, apperror.CodeOf(err))
		assert.Len(t, f.repo.Sessions(), 1)
	})

	t.Run("stale open session does not block", func(t *testing.T) {
		f := newFixture(t, nil)
		f.allowEvents()
		f.clock.Set(at(0, 30).Add(-24 * time.Hour))

		_, err := f.svc.TimeIn(ctx, f.capture())
		require.NoError(t, err)

		f.clock.Set(at(9, 0))
		_, err = f.svc.TimeIn(ctx, f.capture())

		require.NoError(t, err)
		assert.Equal(t, 1, f.repo.CountOpen(f.userID, at(9, 0).Add(-12*time.Hour)))
	})

	t.Run("late without reason writes nothing", func(t *testing.T) {
		f := newFixture(t, morningShift())
		f.clock.Set(at(9, 25))

		_, err := f.svc.TimeIn(ctx, f.capture())

		assert.ErrorIs(t, err, attendanceerrors.ErrLateReasonRequired)
		assert.Equal(t, apperror.CodeLateReasonRequired, apperror.CodeOf(err))
		assert.Empty(t, f.repo.Sessions())
	})

	t.Run("blank late reason is treated as missing", func(t *testing.T) {
		f := newFixture(t, morningShift())
		f.clock.Set(at(9, 25))
		in := f.capture()
		in.LateReason = str("   ")

		_, err := f.svc.TimeIn(ctx, in)

		assert.ErrorIs(t, err, attendanceerrors.ErrLateReasonRequired)
	})

	t.Run("accuracy wider than radius is a location violation", func(t *testing.T) {
		s := withEntry(morningShift(), models.Requirements{Geofence: true})
		f := newFixture(t, s)
		in := f.capture()
		in.Accuracy = f64(150)

		_, err := f.svc.TimeIn(ctx, in)

		require.Error(t, err)
		assert.Equal(t, apperror.CodePolicyViolation, apperror.CodeOf(err))
		assert.Equal(t, apperror.PolicyKindLocation, apperror.PolicyKind(err))
		assert.Empty(t, f.repo.Sessions())
	})

	t.Run("outside geofence is a location violation", func(t *testing.T) {
		s := withEntry(morningShift(), models.Requirements{Geofence: true})
		f := newFixture(t, s)
		in := f.capture()
		in.Latitude, in.Longitude = f64(-6.3), f64(106.9)

		_, err := f.svc.TimeIn(ctx, in)

		assert.Equal(t, apperror.PolicyKindLocation, apperror.PolicyKind(err))
		assert.Empty(t, f.repo.Sessions())
	})

	t.Run("missing required photo is an evidence violation", func(t *testing.T) {
		s := withEntry(morningShift(), models.Requirements{Photo: true})
		f := newFixture(t, s)

		_, err := f.svc.TimeIn(ctx, f.capture())

		assert.Equal(t, apperror.PolicyKindEvidence, apperror.PolicyKind(err))
		assert.Empty(t, f.repo.Sessions())
	})

	t.Run("invalid input", func(t *testing.T) {
		f := newFixture(t, nil)
		in := f.capture()
		in.Longitude = nil

		_, err := f.svc.TimeIn(ctx, in)
		assert.ErrorIs(t, err, attendanceerrors.ErrInvalidCoordinates)

		in = f.capture()
		in.OrgID = uuid.Nil
		_, err = f.svc.TimeIn(ctx, in)
		assert.ErrorIs(t, err, attendanceerrors.ErrInvalidOrgID)
	})
}

func TestService_Lateness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, morningShift())
	f.allowEvents()

	f.clock.Set(at(9, 25))
	in := f.capture()
	in.LateReason = str("traffic")
	res, err := f.svc.TimeIn(ctx, in)
	require.NoError(t, err)
	assert.True(t, res.IsLate)
	assert.Equal(t, 15, res.LateMinutes)

	f.clock.Set(at(12, 0))
	out, err := f.svc.TimeOut(ctx, f.capture())
	require.NoError(t, err)
	assert.Equal(t, models.StatusLate, out.DayStatus)
	assert.Equal(t, 2.58, out.SessionHours)

	f.clock.Set(at(13, 0))
	res, err = f.svc.TimeIn(ctx, f.capture())
	require.NoError(t, err)
	assert.False(t, res.IsLate)
	assert.Equal(t, 0, res.LateMinutes)
	assert.Equal(t, 2, res.SessionNumber)
	assert.False(t, res.IsFirstSession)
	assert.Equal(t, 2.58, res.TodayTotalHours)

	f.clock.Set(at(17, 0))
	out, err = f.svc.TimeOut(ctx, f.capture())
	require.NoError(t, err)
	assert.Equal(t, models.StatusLate, out.DayStatus)
	assert.Equal(t, 6.58, out.TodayTotalHours)

	daily, err := f.svc.GetDailyAggregate(ctx, f.userID, at(0, 0))
	require.NoError(t, err)
	assert.Equal(t, models.StatusLate, daily.Status)
	assert.Equal(t, 6.58, daily.TotalHours)
	assert.Equal(t, "09:25:00", *daily.FirstIn)
	assert.Equal(t, "17:00:00", *daily.LastOut)
	assert.Equal(t, 2, daily.SessionCount)

	rows, err := f.svc.ListSessions(ctx, f.userID, at(0, 0))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "traffic", *rows[0].LateReason)
	assert.Equal(t, models.StatusLate, rows[0].Status)
	assert.Equal(t, models.StatusPresent, rows[1].Status)
	assert.NotNil(t, rows[1].Metadata.Data().Out)
}

func TestService_TimeOut(t *testing.T) {
	ctx := context.Background()

	t.Run("no open session", func(t *testing.T) {
		f := newFixture(t, nil)

		_, err := f.svc.TimeOut(ctx, f.capture())

		assert.ErrorIs(t, err, attendanceerrors.ErrNoOpenSession)
		assert.Equal(t, apperror.CodeNoOpenSession, apperror.CodeOf(err))
	})

	t.Run("overtime past the default threshold", func(t *testing.T) {
		f := newFixture(t, nil)
		f.allowEvents()

		f.clock.Set(at(8, 0))
		_, err := f.svc.TimeIn(ctx, f.capture())
		require.NoError(t, err)

		f.clock.Set(at(18, 30))
		out, err := f.svc.TimeOut(ctx, f.capture())

		require.NoError(t, err)
		assert.Equal(t, 10.5, out.SessionHours)
		assert.Equal(t, 2.5, out.OvertimeHours)
		assert.Equal(t, models.StatusPresent, out.DayStatus)

		daily, err := f.svc.GetDailyAggregate(ctx, f.userID, at(0, 0))
		require.NoError(t, err)
		assert.Equal(t, 10.5, daily.TotalHours)
		assert.Equal(t, 0.0, daily.OvertimeHours, "no shift means no aggregate overtime")
	})

	t.Run("exit policy failure leaves session open", func(t *testing.T) {
		s := morningShift()
		s.ExitRequirements = withEntry(morningShift(), models.Requirements{Photo: true}).EntryRequirements
		f := newFixture(t, s)
		f.allowEvents()

		_, err := f.svc.TimeIn(ctx, f.capture())
		require.NoError(t, err)

		f.clock.Set(at(17, 0))
		_, err = f.svc.TimeOut(ctx, f.capture())

		assert.Equal(t, apperror.PolicyKindEvidence, apperror.PolicyKind(err))
		assert.Equal(t, 1, f.repo.CountOpen(f.userID, at(0, 0)))
	})
}

func TestService_Evidence(t *testing.T) {
	ctx := context.Background()
	photo := []byte("\xff\xd8\xff\xe0fakejpeg")

	t.Run("attached after commit", func(t *testing.T) {
		f := newFixture(t, withEntry(morningShift(), models.Requirements{Photo: true}))
		f.allowEvents()
		f.evidence.EXPECT().
			Upload(gomock.Any(), gomock.Any(), photo, "image/jpeg").
			DoAndReturn(func(_ context.Context, key string, _ []byte, _ string) (string, error) {
				rows := f.repo.Sessions()
				require.Len(t, rows, 1)
				assert.Equal(t, models.EvidencePending, rows[0].InEvidenceState)
				return key, nil
			})

		in := f.capture()
		in.Evidence = photo
		res, err := f.svc.TimeIn(ctx, in)

		require.NoError(t, err)
		assert.Equal(t, models.EvidenceAttached, res.SideEffects.EvidenceState)
		rows := f.repo.Sessions()
		assert.Equal(t, models.EvidenceAttached, rows[0].InEvidenceState)
		require.NotNil(t, rows[0].InEvidenceRef)
		assert.Contains(t, *rows[0].InEvidenceRef, "/2024-05-01/in-")
	})

	t.Run("upload failure keeps the session", func(t *testing.T) {
		f := newFixture(t, nil)
		f.allowEvents()
		f.evidence.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("bucket gone"))

		in := f.capture()
		in.Evidence = photo
		res, err := f.svc.TimeIn(ctx, in)

		require.NoError(t, err)
		assert.Equal(t, models.EvidenceFailed, res.SideEffects.EvidenceState)
		assert.Contains(t, res.SideEffects.EvidenceError, "bucket gone")
		rows := f.repo.Sessions()
		require.Len(t, rows, 1)
		assert.Equal(t, models.EvidenceFailed, rows[0].InEvidenceState)
		assert.Nil(t, rows[0].InEvidenceRef)
	})
}

func TestService_SideChannelFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("event failures are reported not returned", func(t *testing.T) {
		f := newFixture(t, nil)
		f.emitter.EXPECT().Emit(gomock.Any(), events.ChannelNotification, gomock.Any()).Return(errors.New("down"))
		f.emitter.EXPECT().Emit(gomock.Any(), events.ChannelActivity, gomock.Any()).Return(errors.New("down"))

		res, err := f.svc.TimeIn(ctx, f.capture())

		require.NoError(t, err)
		assert.Equal(t, 0, res.SideEffects.EventsEmitted)
		assert.Equal(t, 2, res.SideEffects.EventsFailed)
	})

	t.Run("aggregate failure does not fail time in", func(t *testing.T) {
		f := newFixture(t, nil)
		f.allowEvents()
		f.repo.FailOn("CreateDaily", errors.New("disk full"))

		res, err := f.svc.TimeIn(ctx, f.capture())

		require.NoError(t, err)
		assert.False(t, res.SideEffects.AggregateSynced)
		assert.Contains(t, res.SideEffects.AggregateError, "disk full")
		assert.Len(t, f.repo.Sessions(), 1)
	})

	t.Run("storage failure surfaces as internal error", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.FailOn("CreateSession", errors.New("connection reset"))

		_, err := f.svc.TimeIn(ctx, f.capture())

		assert.Equal(t, apperror.CodeInternalError, apperror.CodeOf(err))
	})
}

func TestService_ConcurrentTimeIn(t *testing.T) {
	f := newFixture(t, nil)
	f.allowEvents()

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		already int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.TimeIn(context.Background(), f.capture())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, attendanceerrors.ErrAlreadyOpen):
				already++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, already)
	assert.Equal(t, 1, f.repo.CountOpen(f.userID, at(0, 0)))
}

func TestService_GetDailyAggregate_NotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.GetDailyAggregate(context.Background(), f.userID, at(0, 0))

	assert.ErrorIs(t, err, attendanceerrors.ErrDailyNotFound)
}

func TestService_Today(t *testing.T) {
	ctx := context.Background()

	t.Run("shift timezone ahead of UTC", func(t *testing.T) {
		s := morningShift()
		s.WorkLocation.Timezone = "Asia/Jakarta"
		f := newFixture(t, s)
		// 18:30Z on Apr 30 is 01:30 on May 1 in Jakarta.
		f.clock.Set(time.Date(2024, 4, 30, 18, 30, 0, 0, time.UTC))

		assert.Equal(t, at(0, 0), f.svc.Today(ctx, f.userID))
	})

	t.Run("no shift falls back to UTC", func(t *testing.T) {
		f := newFixture(t, nil)
		f.clock.Set(time.Date(2024, 4, 30, 18, 30, 0, 0, time.UTC))

		assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), f.svc.Today(ctx, f.userID))
	})
}
