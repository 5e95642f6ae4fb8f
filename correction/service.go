// Package correction implements the request, review and apply workflow for
// retroactive attendance changes. A request leaves pending exactly once,
// and an approval commits together with the data it rewrites.
package correction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"timekeeping/apperror"
	"timekeeping/attendance"
	attendanceerrors "timekeeping/attendance/errors"
	correctionerrors "timekeeping/correction/errors"
	"timekeeping/ctxutil"
	"timekeeping/events"
	"timekeeping/geo"
	"timekeeping/lock"
	"timekeeping/models"
	"timekeeping/policy"
	"timekeeping/rbac"
	"timekeeping/shift"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service interface {
	Submit(ctx context.Context, actor Actor, req SubmitRequest) (*models.CorrectionRequest, error)
	Review(ctx context.Context, id uuid.UUID, reviewer Actor, req ReviewRequest) (*models.CorrectionRequest, error)
	Get(ctx context.Context, id uuid.UUID, actor Actor) (*models.CorrectionRequest, error)
	ListByOrg(ctx context.Context, actor Actor, status string) ([]models.CorrectionRequest, error)
	ListMine(ctx context.Context, actor Actor) ([]models.CorrectionRequest, error)
	Withdraw(ctx context.Context, id uuid.UUID, actor Actor) error
}

type Deps struct {
	Repo       Repository
	Aggregator *attendance.Aggregator
	Shifts     shift.Provider
	Authorizer rbac.Authorizer
	Locker     lock.Locker
	Emitter    events.Emitter
	Validator  *validator.Validate
	Logger     *zap.Logger
}

type Options struct {
	DefaultTimezone string
	Now             func() time.Time
}

type service struct {
	repo       Repository
	aggregator *attendance.Aggregator
	shifts     shift.Provider
	authz      rbac.Authorizer
	locker     lock.Locker
	emitter    events.Emitter
	validate   *validator.Validate
	logger     *zap.Logger

	defaultTZ string
	now       func() time.Time
}

func NewService(d Deps, opt Options) Service {
	s := &service{
		repo:       d.Repo,
		aggregator: d.Aggregator,
		shifts:     d.Shifts,
		authz:      d.Authorizer,
		locker:     d.Locker,
		emitter:    d.Emitter,
		validate:   d.Validator,
		logger:     d.Logger,
		defaultTZ:  opt.DefaultTimezone,
		now:        opt.Now,
	}
	if s.logger == nil {
		s.logger = zap.L()
	}
	s.logger = s.logger.Named("correction.service")
	if s.aggregator == nil {
		s.aggregator = attendance.NewAggregator(d.Shifts, d.Logger)
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.emitter == nil {
		s.emitter = events.NewNoop()
	}
	if s.validate == nil {
		s.validate = apperror.NewValidator()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// NormalizeMethod maps any unrecognized method to fix.
func NormalizeMethod(m string) string {
	switch strings.ToLower(strings.TrimSpace(m)) {
	case models.MethodAddSession:
		return models.MethodAddSession
	case models.MethodReset:
		return models.MethodReset
	default:
		return models.MethodFix
	}
}

func (s *service) Submit(ctx context.Context, actor Actor, req SubmitRequest) (*models.CorrectionRequest, error) {
	log := ctxutil.Logger(ctx, s.logger).With(zap.String("user_id", actor.UserID.String()))

	if !s.can(actor, rbac.ActSubmit) {
		return nil, correctionerrors.ErrSubmitDenied
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, apperror.MapValidationError(err)
	}
	date, err := attendance.ParseDate(req.RequestDate)
	if err != nil {
		return nil, correctionerrors.ErrInvalidRequestDate
	}

	pairs := make(datatypes.JSONSlice[models.SessionPair], 0, len(req.Sessions))
	for _, p := range req.Sessions {
		pairs = append(pairs, models.SessionPair{TimeIn: p.TimeIn, TimeOut: p.TimeOut})
	}

	now := s.now().UTC()
	c := &models.CorrectionRequest{
		ID:               uuid.New(),
		UserID:           actor.UserID,
		OrgID:            actor.OrgID,
		CorrectionType:   strings.TrimSpace(req.CorrectionType),
		RequestDate:      date,
		Reason:           strings.TrimSpace(req.Reason),
		Method:           NormalizeMethod(req.Method),
		RequestedTimeIn:  req.RequestedTimeIn,
		RequestedTimeOut: req.RequestedTimeOut,
		Sessions:         pairs,
		Status:           models.CorrectionPending,
		AuditTrail: datatypes.JSONSlice[models.AuditEntry]{{
			Action:    models.AuditSubmitted,
			Actor:     actor.UserID.String(),
			Timestamp: now,
		}},
	}

	if err := s.repo.Create(ctx, c); err != nil {
		log.Error("create correction failed", zap.Error(err))
		return nil, apperror.Persistence(err)
	}

	s.emit(ctx, log, events.Event{
		EventType: events.TypeCorrectionSubmit,
		UserID:    c.UserID.String(),
		OrgID:     c.OrgID.String(),
		SubjectID: c.ID.String(),
		Message:   "Correction requested for " + req.RequestDate,
		Data:      map[string]any{"correction_method": c.Method, "correction_type": c.CorrectionType},
	})
	log.Info("correction submitted", zap.String("request_id", c.ID.String()), zap.String("method", c.Method))
	return c, nil
}

func (s *service) Review(ctx context.Context, id uuid.UUID, reviewer Actor, req ReviewRequest) (*models.CorrectionRequest, error) {
	log := ctxutil.Logger(ctx, s.logger).With(
		zap.String("request_id", id.String()),
		zap.String("reviewer_id", reviewer.UserID.String()),
	)

	if s.authz == nil || !s.authz.Can(reviewer.Role, rbac.ObjCorrection, rbac.ActReview) {
		return nil, correctionerrors.ErrAccessDenied
	}
	decision := strings.ToLower(strings.TrimSpace(req.Decision))
	if decision != models.CorrectionApproved && decision != models.CorrectionRejected {
		return nil, correctionerrors.ErrInvalidStatus
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, apperror.MapValidationError(err)
	}

	existing, err := s.findInOrg(ctx, s.repo, id, reviewer.OrgID, false)
	if err != nil {
		return nil, err
	}
	if !existing.IsPending() {
		return nil, correctionerrors.ErrAlreadyReviewed
	}

	unlock, err := lock.LockWithin(ctx, s.locker, lock.UserKey(existing.UserID.String()), lock.DefaultWait)
	if err != nil {
		busy := attendanceerrors.ErrBusy
		return nil, apperror.Wrap(err, busy.Code, busy.Message, busy.HTTPStatus)
	}
	defer unlock()

	var reviewed *models.CorrectionRequest
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		cur, err := s.findInOrg(ctx, tx, id, reviewer.OrgID, true)
		if err != nil {
			return err
		}
		if !cur.IsPending() {
			return correctionerrors.ErrAlreadyReviewed
		}

		now := s.now().UTC()
		comment := strings.TrimSpace(req.Comment)
		cur.AuditTrail = append(cur.AuditTrail, models.AuditEntry{
			Action:    decision,
			Actor:     reviewer.UserID.String(),
			Timestamp: now,
			Comment:   comment,
		})
		cur.Status = decision
		cur.ReviewedBy = &reviewer.UserID
		cur.ReviewedAt = &now
		if comment != "" {
			cur.ReviewComments = &comment
		}

		if err := tx.Update(ctx, cur); err != nil {
			return err
		}
		if decision == models.CorrectionApproved {
			if err := s.apply(ctx, tx, cur); err != nil {
				return err
			}
		}
		reviewed = cur
		return nil
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			log.Warn("review rejected", zap.String("code", appErr.Code), zap.Error(err))
			return nil, err
		}
		log.Error("review failed", zap.Error(err))
		return nil, apperror.Persistence(err)
	}
	unlock()

	s.emit(ctx, log, events.Event{
		EventType: events.TypeCorrectionReviewed,
		UserID:    reviewed.UserID.String(),
		OrgID:     reviewed.OrgID.String(),
		SubjectID: reviewed.ID.String(),
		Message:   "Correction request " + decision,
		Data:      map[string]any{"status": decision, "reviewed_by": reviewer.UserID.String()},
	})
	log.Info("correction reviewed", zap.String("status", decision))
	return reviewed, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, actor Actor) (*models.CorrectionRequest, error) {
	c, err := s.findInOrg(ctx, s.repo, id, actor.OrgID, false)
	if err != nil {
		return nil, err
	}
	if c.UserID != actor.UserID && !s.can(actor, rbac.ActReadAny) {
		return nil, correctionerrors.ErrNotFound
	}
	return c, nil
}

func (s *service) ListByOrg(ctx context.Context, actor Actor, status string) ([]models.CorrectionRequest, error) {
	if !s.can(actor, rbac.ActList) {
		return nil, correctionerrors.ErrAccessDenied
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", models.CorrectionPending, models.CorrectionApproved, models.CorrectionRejected:
	default:
		return nil, correctionerrors.ErrInvalidStatusFilter
	}
	rows, err := s.repo.ListByOrg(ctx, actor.OrgID, status)
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	return rows, nil
}

func (s *service) ListMine(ctx context.Context, actor Actor) ([]models.CorrectionRequest, error) {
	rows, err := s.repo.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	return rows, nil
}

func (s *service) Withdraw(ctx context.Context, id uuid.UUID, actor Actor) error {
	log := ctxutil.Logger(ctx, s.logger).With(zap.String("request_id", id.String()))

	err := s.repo.Transaction(ctx, func(tx Repository) error {
		c, err := s.findInOrg(ctx, tx, id, actor.OrgID, true)
		if err != nil {
			return err
		}
		if c.UserID != actor.UserID {
			return correctionerrors.ErrNotOwner
		}
		if !c.IsPending() {
			return correctionerrors.ErrAlreadyReviewed
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return err
		}
		log.Error("withdraw failed", zap.Error(err))
		return apperror.Persistence(err)
	}

	s.emit(ctx, log, events.Event{
		EventType: events.TypeCorrectionWithdraw,
		UserID:    actor.UserID.String(),
		OrgID:     actor.OrgID.String(),
		SubjectID: id.String(),
	})
	return nil
}

func (s *service) can(actor Actor, act string) bool {
	return s.authz != nil && s.authz.Can(actor.Role, rbac.ObjCorrection, act)
}

func (s *service) findInOrg(ctx context.Context, repo Repository, id, orgID uuid.UUID, forUpdate bool) (*models.CorrectionRequest, error) {
	c, err := repo.FindByID(ctx, id, forUpdate)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, correctionerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.OrgID != orgID {
		return nil, correctionerrors.ErrNotFound
	}
	return c, nil
}

// apply rewrites attendance for an approved request. Payload problems come
// back as PROCESSING_ERROR; the caller's transaction then rolls the review
// back too.
func (s *service) apply(ctx context.Context, tx Repository, c *models.CorrectionRequest) error {
	sessions := tx.Sessions()
	rules, zone := s.rulesFor(ctx, c.UserID)
	date := attendance.WorkDate(c.RequestDate)
	manual := true
	ov := &attendance.Overrides{IsManualAdjustment: &manual, AdjustmentReason: &c.Reason}

	switch c.Method {
	case models.MethodFix:
		in, out, err := requestedSpan(c, date, zone)
		if err != nil {
			return processing(err)
		}
		_, err = s.aggregator.ApplyManual(ctx, sessions, attendance.ManualDay{
			UserID:  c.UserID,
			OrgID:   c.OrgID,
			Date:    date,
			TimeIn:  in,
			TimeOut: out,
			Zone:    zone,
			Reason:  c.Reason,
		})
		return err

	case models.MethodAddSession:
		spans, err := parsePairs(c.Sessions, date, zone)
		if err != nil {
			return processing(err)
		}
		existing, err := sessions.ListSessionsByDate(ctx, c.UserID, date)
		if err != nil {
			return err
		}
		if err := checkOverlap(existing, spans); err != nil {
			return processing(err)
		}
		for i, sp := range spans {
			row := manualSession(c, date, zone, sp, len(existing)+i+1, models.SourceManualAddition, rules.OvertimeThresholdHours)
			if err := sessions.CreateSession(ctx, row); err != nil {
				return err
			}
		}
		_, err = s.aggregator.SyncTx(ctx, sessions, c.UserID, date, ov)
		return err

	case models.MethodReset:
		in, out, err := requestedSpan(c, date, zone)
		if err != nil {
			return processing(err)
		}
		if _, err := sessions.DeleteSessionsByDate(ctx, c.UserID, date); err != nil {
			return err
		}
		row := manualSession(c, date, zone, span{in: in, out: out}, 1, models.SourceCorrection, rules.OvertimeThresholdHours)
		if err := sessions.CreateSession(ctx, row); err != nil {
			return err
		}
		_, err = s.aggregator.SyncTx(ctx, sessions, c.UserID, date, ov)
		return err
	}
	return processing(fmt.Errorf("unknown correction method %q", c.Method))
}

// rulesFor returns the user's rules and the zone their wall-clock times are
// read in: the work location's zone, else the configured default.
func (s *service) rulesFor(ctx context.Context, userID uuid.UUID) (policy.Rules, *time.Location) {
	rules := policy.DefaultRules()
	if s.shifts != nil {
		rules = policy.RulesFromShift(s.shifts.GetShiftForUser(ctx, userID))
	}
	if rules.Timezone != "" {
		return rules, geo.LoadLocation(rules.Timezone)
	}
	return rules, geo.LoadLocation(s.defaultTZ)
}

func (s *service) emit(ctx context.Context, log *zap.Logger, ev events.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now().UTC()
	}
	for _, ch := range []string{events.ChannelNotification, events.ChannelActivity} {
		if err := s.emitter.Emit(ctx, ch, ev); err != nil {
			log.Warn("emit event failed", zap.String("channel", ch), zap.String("event_type", ev.EventType), zap.Error(err))
		}
	}
}

func processing(err error) error {
	return apperror.Processing(err, "Correction could not be applied: "+err.Error())
}

type span struct {
	in, out time.Time
}

func requestedSpan(c *models.CorrectionRequest, date time.Time, zone *time.Location) (time.Time, time.Time, error) {
	if c.RequestedTimeIn == nil || c.RequestedTimeOut == nil {
		return time.Time{}, time.Time{}, errors.New("requested time in and time out are required")
	}
	sp, err := parseSpan(*c.RequestedTimeIn, *c.RequestedTimeOut, date, zone)
	return sp.in, sp.out, err
}

func parsePairs(pairs []models.SessionPair, date time.Time, zone *time.Location) ([]span, error) {
	if len(pairs) == 0 {
		return nil, errors.New("at least one session is required")
	}
	out := make([]span, 0, len(pairs))
	for i, p := range pairs {
		sp, err := parseSpan(p.TimeIn, p.TimeOut, date, zone)
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", i+1, err)
		}
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].in.Before(out[j].in) })
	return out, nil
}

// parseSpan places HH:MM wall-clock times on date in zone. Overnight spans
// are not supported.
func parseSpan(in, out string, date time.Time, zone *time.Location) (span, error) {
	inMin, ok := policy.ParseClock(in)
	if !ok {
		return span{}, fmt.Errorf("invalid time in %q", in)
	}
	outMin, ok := policy.ParseClock(out)
	if !ok {
		return span{}, fmt.Errorf("invalid time out %q", out)
	}
	if outMin <= inMin {
		return span{}, fmt.Errorf("time out %s must be after time in %s", out, in)
	}
	y, m, d := date.Date()
	base := time.Date(y, m, d, 0, 0, 0, 0, zone)
	return span{
		in:  base.Add(time.Duration(inMin) * time.Minute).UTC(),
		out: base.Add(time.Duration(outMin) * time.Minute).UTC(),
	}, nil
}

func checkOverlap(existing []models.AttendanceSession, spans []span) error {
	for i := 1; i < len(spans); i++ {
		if spans[i].in.Before(spans[i-1].out) {
			return errors.New("requested sessions overlap each other")
		}
	}
	for _, e := range existing {
		for _, sp := range spans {
			endsAfter := e.TimeOut == nil || sp.in.Before(*e.TimeOut)
			if endsAfter && e.TimeIn.Before(sp.out) {
				return fmt.Errorf("requested session %s overlaps an existing session", sp.in.Format(time.RFC3339))
			}
		}
	}
	return nil
}

func manualSession(c *models.CorrectionRequest, date time.Time, zone *time.Location, sp span, number int, source string, threshold float64) *models.AttendanceSession {
	out := sp.out
	hours := policy.Round2(out.Sub(sp.in).Hours())
	return &models.AttendanceSession{
		ID:               uuid.New(),
		UserID:           c.UserID,
		OrgID:            c.OrgID,
		WorkDate:         date,
		Timezone:         zone.String(),
		TimeIn:           sp.in,
		TimeOut:          &out,
		InAddress:        models.ManualAddress,
		OutAddress:       models.ManualAddress,
		InEvidenceState:  models.EvidenceNone,
		OutEvidenceState: models.EvidenceNone,
		OvertimeHours:    policy.OvertimeHours(hours, threshold),
		Status:           models.StatusPresent,
		Source:           source,
		Metadata: datatypes.NewJSONType(models.SessionMetadata{
			SessionNumber:       number,
			IsFirstSession:      number == 1,
			ManualEntry:         true,
			CorrectionRequestID: c.ID.String(),
		}),
	}
}
