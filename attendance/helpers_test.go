package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"timekeeping/attendance"
	"timekeeping/attendance/attendancetest"
	eventsMock "timekeeping/events/mock"
	"timekeeping/geo"
	"timekeeping/lock"
	"timekeeping/models"
	storageMock "timekeeping/storage/mock"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	_ "time/tzdata"
)

type stubShifts struct {
	shift *models.Shift
}

func (s *stubShifts) GetShiftForUser(context.Context, uuid.UUID) *models.Shift {
	return s.shift
}

func (s *stubShifts) Invalidate(context.Context, uuid.UUID) {}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func at(hh, mm int) time.Time {
	return time.Date(2024, 5, 1, hh, mm, 0, 0, time.UTC)
}

func f64(v float64) *float64 { return &v }

func str(v string) *string { return &v }

// morningShift starts at 09:00 with a 10 minute grace in UTC.
func morningShift() *models.Shift {
	return &models.Shift{
		ID:                 uuid.New(),
		Name:               "Morning",
		StartTime:          "09:00",
		EndTime:            "17:00",
		GracePeriodMinutes: 10,
		WorkLocation: &models.WorkLocation{
			ID:           uuid.New(),
			Latitude:     -6.2000,
			Longitude:    106.8166,
			RadiusMeters: 100,
			Timezone:     "UTC",
		},
	}
}

func withEntry(s *models.Shift, req models.Requirements) *models.Shift {
	s.EntryRequirements = datatypes.NewJSONType(req)
	return s
}

type fixture struct {
	repo     *attendancetest.Memory
	svc      attendance.Service
	clock    *clock
	shifts   *stubShifts
	emitter  *eventsMock.MockEmitter
	evidence *storageMock.MockEvidenceStore
	userID   uuid.UUID
	orgID    uuid.UUID
}

func newFixture(t *testing.T, s *models.Shift) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		repo:     attendancetest.NewMemory(),
		clock:    &clock{now: at(8, 55)},
		shifts:   &stubShifts{shift: s},
		emitter:  eventsMock.NewMockEmitter(ctrl),
		evidence: storageMock.NewMockEvidenceStore(ctrl),
		userID:   uuid.New(),
		orgID:    uuid.New(),
	}

	logger := zap.NewNop()
	f.svc = attendance.NewService(attendance.Deps{
		Repo:       f.repo,
		Aggregator: attendance.NewAggregator(f.shifts, logger),
		Shifts:     f.shifts,
		Resolver:   geo.NewResolver(nil, "UTC", logger),
		Locker:     lock.NewLocal(),
		Evidence:   f.evidence,
		Emitter:    f.emitter,
		Logger:     logger,
	}, attendance.Options{
		Lookback: 12 * time.Hour,
		Now:      f.clock.Now,
	})
	return f
}

func (f *fixture) allowEvents() {
	f.emitter.EXPECT().Emit(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func (f *fixture) capture() attendance.CaptureInput {
	return attendance.CaptureInput{
		UserID:    f.userID,
		OrgID:     f.orgID,
		Latitude:  f64(-6.2001),
		Longitude: f64(106.8167),
		Accuracy:  f64(10),
		IPAddress: "10.0.0.1",
		UserAgent: "test",
	}
}
