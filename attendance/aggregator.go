package attendance

import (
	"context"
	"errors"
	"time"

	"timekeeping/geo"
	"timekeeping/models"
	"timekeeping/policy"
	"timekeeping/shift"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Overrides are applied after the recomputed fields and always win.
type Overrides struct {
	Status             *string
	IsManualAdjustment *bool
	AdjustmentReason   *string
}

// ManualDay is a reviewer supplied replacement for a day's derived fields.
type ManualDay struct {
	UserID  uuid.UUID
	OrgID   uuid.UUID
	Date    time.Time
	TimeIn  time.Time
	TimeOut time.Time
	Zone    *time.Location
	Reason  string
}

type Aggregator struct {
	shifts shift.Provider
	logger *zap.Logger
}

func NewAggregator(shifts shift.Provider, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.L()
	}
	return &Aggregator{shifts: shifts, logger: logger.Named("attendance.aggregator")}
}

// Sync recomputes the daily row for userID on date in its own transaction.
func (a *Aggregator) Sync(ctx context.Context, repo Repository, userID uuid.UUID, date time.Time, ov *Overrides) (*models.DailyAttendance, error) {
	var out *models.DailyAttendance
	err := repo.Transaction(ctx, func(tx Repository) error {
		var err error
		out, err = a.SyncTx(ctx, tx, userID, date, ov)
		return err
	})
	return out, err
}

// SyncTx rebuilds the daily row from the day's sessions using tx. It returns
// nil, nil when the day has no sessions. Repeated calls converge on the same
// values; only the manual adjustment flags survive from the previous row.
func (a *Aggregator) SyncTx(ctx context.Context, tx Repository, userID uuid.UUID, date time.Time, ov *Overrides) (*models.DailyAttendance, error) {
	date = WorkDate(date)

	sessions, err := tx.ListSessionsByDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	var s *models.Shift
	if a.shifts != nil {
		s = a.shifts.GetShiftForUser(ctx, userID)
	}

	daily, err := a.ensureDaily(ctx, tx, sessions[0].OrgID, userID, date, s)
	if err != nil {
		return nil, err
	}

	var worked time.Duration
	for i := range sessions {
		worked += sessions[i].Duration()
	}
	total := policy.Round2(worked.Hours())

	daily.TotalHours = total
	daily.SessionCount = len(sessions)
	daily.OvertimeHours = 0
	if s != nil {
		daily.OvertimeHours = policy.OvertimeHours(total, policy.RulesFromShift(s).OvertimeThresholdHours)
		daily.ShiftID = &s.ID
	}

	first := sessions[0]
	firstIn := ClockString(first.TimeIn, geo.LoadLocation(first.Timezone))
	daily.FirstIn = &firstIn
	daily.LastOut = nil
	for i := len(sessions) - 1; i >= 0; i-- {
		if out := sessions[i].TimeOut; out != nil {
			lastOut := ClockString(*out, geo.LoadLocation(sessions[i].Timezone))
			daily.LastOut = &lastOut
			break
		}
	}

	daily.Status = models.StatusPresent
	if first.IsLate() {
		daily.Status = models.StatusLate
	}

	if ov != nil {
		if ov.Status != nil {
			daily.Status = *ov.Status
		}
		if ov.IsManualAdjustment != nil {
			daily.IsManualAdjustment = *ov.IsManualAdjustment
		}
		if ov.AdjustmentReason != nil {
			daily.AdjustmentReason = ov.AdjustmentReason
		}
	}

	if err := tx.UpdateDaily(ctx, daily); err != nil {
		return nil, err
	}

	a.logger.Debug("daily attendance synced",
		zap.String("user_id", userID.String()),
		zap.String("date", date.Format(dateLayout)),
		zap.Float64("total_hours", daily.TotalHours),
		zap.Int("sessions", daily.SessionCount),
	)
	return daily, nil
}

// ApplyManual writes a reviewer's fixed times straight onto the daily row
// and flags it as a manual adjustment. Sessions are left untouched.
func (a *Aggregator) ApplyManual(ctx context.Context, tx Repository, m ManualDay) (*models.DailyAttendance, error) {
	if !m.TimeOut.After(m.TimeIn) {
		return nil, errors.New("time out must be after time in")
	}
	date := WorkDate(m.Date)
	zone := m.Zone
	if zone == nil {
		zone = time.UTC
	}

	var s *models.Shift
	if a.shifts != nil {
		s = a.shifts.GetShiftForUser(ctx, m.UserID)
	}

	daily, err := a.ensureDaily(ctx, tx, m.OrgID, m.UserID, date, s)
	if err != nil {
		return nil, err
	}

	total := policy.Round2(m.TimeOut.Sub(m.TimeIn).Hours())
	firstIn := ClockString(m.TimeIn, zone)
	lastOut := ClockString(m.TimeOut, zone)

	daily.FirstIn = &firstIn
	daily.LastOut = &lastOut
	daily.TotalHours = total
	daily.OvertimeHours = 0
	if s != nil {
		daily.OvertimeHours = policy.OvertimeHours(total, policy.RulesFromShift(s).OvertimeThresholdHours)
	}
	if daily.Status == "" {
		daily.Status = models.StatusPresent
	}
	daily.IsManualAdjustment = true
	reason := m.Reason
	daily.AdjustmentReason = &reason

	if err := tx.UpdateDaily(ctx, daily); err != nil {
		return nil, err
	}
	return daily, nil
}

// ensureDaily returns the day's row, creating a zeroed one when missing. A
// concurrent create is tolerated by re-reading.
func (a *Aggregator) ensureDaily(ctx context.Context, tx Repository, orgID, userID uuid.UUID, date time.Time, s *models.Shift) (*models.DailyAttendance, error) {
	daily, err := tx.FindDaily(ctx, userID, date)
	if err == nil {
		return daily, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	daily = &models.DailyAttendance{
		ID:     uuid.New(),
		UserID: userID,
		OrgID:  orgID,
		Date:   date,
		Status: models.StatusPresent,
	}
	if s != nil {
		daily.ShiftID = &s.ID
	}

	err = tx.CreateDaily(ctx, daily)
	if errors.Is(err, ErrDailyExists) {
		return tx.FindDaily(ctx, userID, date)
	}
	if err != nil {
		return nil, err
	}
	return daily, nil
}
