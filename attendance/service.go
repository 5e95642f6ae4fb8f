// Package attendance owns the per-user session lifecycle and the daily
// rollup derived from it.
package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"timekeeping/apperror"
	attendanceerrors "timekeeping/attendance/errors"
	"timekeeping/ctxutil"
	"timekeeping/events"
	"timekeeping/geo"
	"timekeeping/lock"
	"timekeeping/models"
	"timekeeping/policy"
	"timekeeping/shift"
	"timekeeping/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultLookback = 12 * time.Hour

type Service interface {
	TimeIn(ctx context.Context, in CaptureInput) (SessionResult, error)
	TimeOut(ctx context.Context, in CaptureInput) (SessionResult, error)
	GetDailyAggregate(ctx context.Context, userID uuid.UUID, date time.Time) (*models.DailyAttendance, error)
	ListSessions(ctx context.Context, userID uuid.UUID, date time.Time) ([]models.AttendanceSession, error)
	// Today is the current work date in the user's shift timezone.
	Today(ctx context.Context, userID uuid.UUID) time.Time
}

type Deps struct {
	Repo       Repository
	Aggregator *Aggregator
	Shifts     shift.Provider
	Resolver   geo.Resolver
	Locker     lock.Locker
	Evidence   storage.EvidenceStore
	Emitter    events.Emitter
	Logger     *zap.Logger
}

type Options struct {
	Lookback       time.Duration
	EvidencePrefix string
	Now            func() time.Time
}

type service struct {
	repo       Repository
	aggregator *Aggregator
	shifts     shift.Provider
	resolver   geo.Resolver
	locker     lock.Locker
	evidence   storage.EvidenceStore
	emitter    events.Emitter
	logger     *zap.Logger

	lookback time.Duration
	prefix   string
	now      func() time.Time
}

func NewService(d Deps, opt Options) Service {
	s := &service{
		repo:       d.Repo,
		aggregator: d.Aggregator,
		shifts:     d.Shifts,
		resolver:   d.Resolver,
		locker:     d.Locker,
		evidence:   d.Evidence,
		emitter:    d.Emitter,
		logger:     d.Logger,
		lookback:   opt.Lookback,
		prefix:     opt.EvidencePrefix,
		now:        opt.Now,
	}
	if s.logger == nil {
		s.logger = zap.L()
	}
	s.logger = s.logger.Named("attendance.service")
	if s.aggregator == nil {
		s.aggregator = NewAggregator(d.Shifts, d.Logger)
	}
	if s.resolver == nil {
		s.resolver = geo.NewResolver(nil, "", d.Logger)
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.evidence == nil {
		s.evidence = storage.NewUnavailable()
	}
	if s.emitter == nil {
		s.emitter = events.NewNoop()
	}
	if s.lookback <= 0 {
		s.lookback = DefaultLookback
	}
	if s.prefix == "" {
		s.prefix = "attendance"
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) TimeIn(ctx context.Context, in CaptureInput) (SessionResult, error) {
	log := s.log(ctx, in)
	if err := validateCapture(in); err != nil {
		return SessionResult{}, err
	}

	rules := s.rulesFor(ctx, in.UserID)
	now := s.now().UTC()
	lc := s.resolver.Resolve(ctx, in.Latitude, in.Longitude, now, rules.Timezone)
	workDate := WorkDate(lc.LocalTime)

	unlock, err := s.lockUser(ctx, in.UserID)
	if err != nil {
		return SessionResult{}, err
	}
	defer unlock()

	var (
		session    *models.AttendanceSession
		late       policy.Lateness
		priorTotal time.Duration
	)
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		_, err := tx.FindOpenSession(ctx, in.UserID, now.Add(-s.lookback), true)
		if err == nil {
			return attendanceerrors.ErrAlreadyOpen
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		today, err := tx.ListSessionsByDate(ctx, in.UserID, workDate)
		if err != nil {
			return err
		}
		for i := range today {
			priorTotal += today[i].Duration()
		}
		isFirst := len(today) == 0

		if err := checkCapture(in, rules.Entry, rules.Location); err != nil {
			return err
		}

		late = policy.CalculateLateArrival(lc.LocalTime, rules, isFirst)
		if late.IsLate && isBlank(in.LateReason) {
			return attendanceerrors.ErrLateReasonRequired
		}

		session = &models.AttendanceSession{
			ID:               uuid.New(),
			UserID:           in.UserID,
			OrgID:            in.OrgID,
			WorkDate:         workDate,
			Timezone:         lc.Timezone,
			TimeIn:           now,
			InLatitude:       in.Latitude,
			InLongitude:      in.Longitude,
			InAccuracy:       in.Accuracy,
			InAddress:        lc.Address,
			InEvidenceState:  pendingOrNone(in),
			OutEvidenceState: models.EvidenceNone,
			LateMinutes:      late.MinutesLate,
			Status:           models.SessionStatusOpen,
			Source:           models.SourceCapture,
			Metadata: datatypes.NewJSONType(models.SessionMetadata{
				SessionNumber:      len(today) + 1,
				IsFirstSession:     isFirst,
				IsLate:             late.IsLate,
				GracePeriodMinutes: late.GracePeriod,
				In:                 legMetadata(in, lc, now),
			}),
		}
		if late.IsLate {
			session.LateReason = trimmed(in.LateReason)
		}
		return tx.CreateSession(ctx, session)
	})
	if err != nil {
		return SessionResult{}, s.fail(log, "time in rejected", err)
	}

	meta := session.Metadata.Data()
	res := SessionResult{
		SessionID:       session.ID,
		SessionNumber:   meta.SessionNumber,
		IsFirstSession:  meta.IsFirstSession,
		WorkDate:        workDate.Format(dateLayout),
		LocalTime:       lc.LocalTime.Format(time.RFC3339),
		Timezone:        lc.Timezone,
		Address:         lc.Address,
		TimeIn:          session.TimeIn,
		IsLate:          late.IsLate,
		LateMinutes:     late.MinutesLate,
		TodayTotalHours: policy.Round2(priorTotal.Hours()),
		SideEffects: SideEffects{
			LocationDegraded: lc.Degraded,
			DegradedReason:   lc.DegradedReason,
		},
	}

	s.syncDay(ctx, log, in.UserID, workDate, nil, &res.SideEffects)
	unlock()

	s.attachEvidence(ctx, log, session, models.LegIn, in, &res.SideEffects)
	s.emit(ctx, log, &res.SideEffects, events.Event{
		EventType: events.TypeTimeIn,
		UserID:    in.UserID.String(),
		OrgID:     in.OrgID.String(),
		SubjectID: session.ID.String(),
		Message:   "Checked in at " + lc.LocalTime.Format("15:04") + " " + lc.Timezone,
		Data: map[string]any{
			"session_number": res.SessionNumber,
			"is_late":        res.IsLate,
			"late_minutes":   res.LateMinutes,
			"address":        res.Address,
		},
	})

	log.Info("time in recorded",
		zap.String("session_id", session.ID.String()),
		zap.Int("session_number", res.SessionNumber),
		zap.Bool("late", res.IsLate),
	)
	return res, nil
}

func (s *service) TimeOut(ctx context.Context, in CaptureInput) (SessionResult, error) {
	log := s.log(ctx, in)
	if err := validateCapture(in); err != nil {
		return SessionResult{}, err
	}

	rules := s.rulesFor(ctx, in.UserID)
	now := s.now().UTC()
	lc := s.resolver.Resolve(ctx, in.Latitude, in.Longitude, now, rules.Timezone)

	unlock, err := s.lockUser(ctx, in.UserID)
	if err != nil {
		return SessionResult{}, err
	}
	defer unlock()

	var (
		session    *models.AttendanceSession
		dayStatus  string
		todayTotal time.Duration
	)
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		open, err := tx.FindOpenSession(ctx, in.UserID, now.Add(-s.lookback), true)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return attendanceerrors.ErrNoOpenSession
		}
		if err != nil {
			return err
		}

		if err := checkCapture(in, rules.Exit, rules.Location); err != nil {
			return err
		}

		timeOut := now
		if timeOut.Before(open.TimeIn) {
			timeOut = open.TimeIn
		}
		hours := policy.Round2(timeOut.Sub(open.TimeIn).Hours())

		open.TimeOut = &timeOut
		open.OutLatitude = in.Latitude
		open.OutLongitude = in.Longitude
		open.OutAccuracy = in.Accuracy
		open.OutAddress = lc.Address
		open.OutEvidenceState = pendingOrNone(in)
		open.OvertimeHours = policy.OvertimeHours(hours, rules.OvertimeThresholdHours)
		open.Status = models.StatusPresent
		if open.IsLate() {
			open.Status = models.StatusLate
		}

		meta := open.Metadata.Data()
		meta.Out = legMetadata(in, lc, now)
		open.Metadata = datatypes.NewJSONType(meta)

		if err := tx.UpdateSession(ctx, open); err != nil {
			return err
		}

		day, err := tx.ListSessionsByDate(ctx, in.UserID, open.WorkDate)
		if err != nil {
			return err
		}
		dayStatus = models.StatusPresent
		if len(day) > 0 && day[0].IsLate() {
			dayStatus = models.StatusLate
		}
		for i := range day {
			todayTotal += day[i].Duration()
		}
		session = open
		return nil
	})
	if err != nil {
		return SessionResult{}, s.fail(log, "time out rejected", err)
	}

	meta := session.Metadata.Data()
	res := SessionResult{
		SessionID:       session.ID,
		SessionNumber:   meta.SessionNumber,
		IsFirstSession:  meta.IsFirstSession,
		WorkDate:        session.WorkDate.Format(dateLayout),
		LocalTime:       lc.LocalTime.Format(time.RFC3339),
		Timezone:        lc.Timezone,
		Address:         lc.Address,
		TimeIn:          session.TimeIn,
		TimeOut:         session.TimeOut,
		IsLate:          session.IsLate(),
		LateMinutes:     session.LateMinutes,
		SessionHours:    policy.Round2(session.Duration().Hours()),
		OvertimeHours:   session.OvertimeHours,
		TodayTotalHours: policy.Round2(todayTotal.Hours()),
		DayStatus:       dayStatus,
		SideEffects: SideEffects{
			LocationDegraded: lc.Degraded,
			DegradedReason:   lc.DegradedReason,
		},
	}

	s.syncDay(ctx, log, in.UserID, session.WorkDate, &Overrides{Status: &dayStatus}, &res.SideEffects)
	unlock()

	s.attachEvidence(ctx, log, session, models.LegOut, in, &res.SideEffects)
	s.emit(ctx, log, &res.SideEffects, events.Event{
		EventType: events.TypeTimeOut,
		UserID:    in.UserID.String(),
		OrgID:     in.OrgID.String(),
		SubjectID: session.ID.String(),
		Message:   "Checked out at " + lc.LocalTime.Format("15:04") + " " + lc.Timezone,
		Data: map[string]any{
			"session_hours":     res.SessionHours,
			"today_total_hours": res.TodayTotalHours,
			"overtime_hours":    res.OvertimeHours,
			"day_status":        dayStatus,
		},
	})

	log.Info("time out recorded",
		zap.String("session_id", session.ID.String()),
		zap.Float64("session_hours", res.SessionHours),
	)
	return res, nil
}

func (s *service) GetDailyAggregate(ctx context.Context, userID uuid.UUID, date time.Time) (*models.DailyAttendance, error) {
	if userID == uuid.Nil {
		return nil, attendanceerrors.ErrInvalidUserID
	}
	d, err := s.repo.FindDaily(ctx, userID, WorkDate(date))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, attendanceerrors.ErrDailyNotFound
	}
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	return d, nil
}

func (s *service) ListSessions(ctx context.Context, userID uuid.UUID, date time.Time) ([]models.AttendanceSession, error) {
	if userID == uuid.Nil {
		return nil, attendanceerrors.ErrInvalidUserID
	}
	rows, err := s.repo.ListSessionsByDate(ctx, userID, WorkDate(date))
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	return rows, nil
}

func (s *service) Today(ctx context.Context, userID uuid.UUID) time.Time {
	rules := s.rulesFor(ctx, userID)
	lc := s.resolver.Resolve(ctx, nil, nil, s.now().UTC(), rules.Timezone)
	return WorkDate(lc.LocalTime)
}

func (s *service) log(ctx context.Context, in CaptureInput) *zap.Logger {
	return ctxutil.Logger(ctx, s.logger).With(
		zap.String("user_id", in.UserID.String()),
		zap.String("org_id", in.OrgID.String()),
	)
}

func (s *service) rulesFor(ctx context.Context, userID uuid.UUID) policy.Rules {
	if s.shifts == nil {
		return policy.DefaultRules()
	}
	return policy.RulesFromShift(s.shifts.GetShiftForUser(ctx, userID))
}

func (s *service) lockUser(ctx context.Context, userID uuid.UUID) (func(), error) {
	unlock, err := lock.LockWithin(ctx, s.locker, lock.UserKey(userID.String()), lock.DefaultWait)
	if err != nil {
		return nil, apperror.Wrap(err, attendanceerrors.ErrBusy.Code, attendanceerrors.ErrBusy.Message, attendanceerrors.ErrBusy.HTTPStatus)
	}
	return unlock, nil
}

// fail logs err at a level matching its kind and makes sure only AppErrors
// leave the service.
func (s *service) fail(log *zap.Logger, msg string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		log.Warn(msg, zap.String("code", appErr.Code), zap.Error(err))
		return err
	}
	log.Error(msg, zap.Error(err))
	return apperror.Persistence(err)
}

func (s *service) syncDay(ctx context.Context, log *zap.Logger, userID uuid.UUID, date time.Time, ov *Overrides, fx *SideEffects) {
	if _, err := s.aggregator.Sync(ctx, s.repo, userID, date, ov); err != nil {
		log.Error("daily attendance sync failed", zap.String("date", date.Format(dateLayout)), zap.Error(err))
		fx.AggregateError = err.Error()
		return
	}
	fx.AggregateSynced = true
}

// attachEvidence is the second phase of the evidence write. The session is
// already committed with EvidencePending; this moves it to attached or
// failed.
func (s *service) attachEvidence(ctx context.Context, log *zap.Logger, session *models.AttendanceSession, leg string, in CaptureInput, fx *SideEffects) {
	if !in.HasEvidence() {
		fx.EvidenceState = models.EvidenceNone
		return
	}

	contentType := in.EvidenceContentType
	if contentType == "" {
		contentType = storage.DetectContentType(in.Evidence)
	}
	key := storage.EvidenceKey(s.prefix, session.OrgID, session.UserID, session.WorkDate, leg, contentType)

	state := models.EvidenceAttached
	var ref *string
	uploaded, err := s.evidence.Upload(ctx, key, in.Evidence, contentType)
	if err != nil {
		log.Warn("evidence upload failed", zap.String("session_id", session.ID.String()), zap.String("leg", leg), zap.Error(err))
		state = models.EvidenceFailed
		fx.EvidenceError = err.Error()
	} else {
		ref = &uploaded
	}

	if err := s.repo.UpdateSessionEvidence(ctx, session.ID, leg, state, ref); err != nil {
		log.Error("evidence state update failed", zap.String("session_id", session.ID.String()), zap.Error(err))
		fx.EvidenceError = err.Error()
		if state == models.EvidenceAttached {
			state = models.EvidencePending
		}
	}
	fx.EvidenceState = state
}

func (s *service) emit(ctx context.Context, log *zap.Logger, fx *SideEffects, ev events.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now().UTC()
	}
	for _, ch := range []string{events.ChannelNotification, events.ChannelActivity} {
		if err := s.emitter.Emit(ctx, ch, ev); err != nil {
			log.Warn("emit event failed", zap.String("channel", ch), zap.String("event_type", ev.EventType), zap.Error(err))
			fx.EventsFailed++
			continue
		}
		fx.EventsEmitted++
	}
}

func validateCapture(in CaptureInput) error {
	if in.UserID == uuid.Nil {
		return attendanceerrors.ErrInvalidUserID
	}
	if in.OrgID == uuid.Nil {
		return attendanceerrors.ErrInvalidOrgID
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return attendanceerrors.ErrInvalidCoordinates
	}
	if in.Latitude != nil && (*in.Latitude < -90 || *in.Latitude > 90 || *in.Longitude < -180 || *in.Longitude > 180) {
		return attendanceerrors.ErrInvalidCoordinates
	}
	return nil
}

func checkCapture(in CaptureInput, req models.Requirements, loc *policy.Location) error {
	if r := policy.CheckLocation(in.Latitude, in.Longitude, in.Accuracy, req, loc); !r.OK {
		return apperror.NewPolicyViolation(r.Kind, r.Error)
	}
	if r := policy.CheckEvidence(in.HasEvidence(), req); !r.OK {
		return apperror.NewPolicyViolation(r.Kind, r.Error)
	}
	return nil
}

func legMetadata(in CaptureInput, lc geo.LocalContext, at time.Time) *models.LegMetadata {
	return &models.LegMetadata{
		Accuracy:       in.Accuracy,
		IPAddress:      in.IPAddress,
		UserAgent:      in.UserAgent,
		Timezone:       lc.Timezone,
		LocalTime:      lc.LocalTime.Format(time.RFC3339),
		Degraded:       lc.Degraded,
		DegradedReason: lc.DegradedReason,
		CapturedAt:     at,
	}
}

func pendingOrNone(in CaptureInput) string {
	if in.HasEvidence() {
		return models.EvidencePending
	}
	return models.EvidenceNone
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
