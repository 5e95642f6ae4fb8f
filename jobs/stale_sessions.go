// Package jobs holds the scheduled background work of the service.
package jobs

import (
	"context"
	"fmt"
	"time"

	"timekeeping/attendance"
	"timekeeping/events"
	"timekeeping/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	defaultBatchSize = 500
	runTimeout       = 4 * time.Minute
)

// StaleSessionSweeper reports open sessions that fell out of the time-in
// lookback. Sessions are left as they are; a person still has to close or
// correct them.
type StaleSessionSweeper struct {
	repo      attendance.Repository
	emitter   events.Emitter
	lookback  time.Duration
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
}

func NewStaleSessionSweeper(repo attendance.Repository, emitter events.Emitter, lookback time.Duration, logger *zap.Logger) *StaleSessionSweeper {
	if logger == nil {
		logger = zap.L()
	}
	if emitter == nil {
		emitter = events.NewNoop()
	}
	if lookback <= 0 {
		lookback = attendance.DefaultLookback
	}
	return &StaleSessionSweeper{
		repo:      repo,
		emitter:   emitter,
		lookback:  lookback,
		batchSize: defaultBatchSize,
		now:       time.Now,
		logger:    logger.Named("jobs.stale_sessions"),
	}
}

// Run emits one stale notification per open session older than the lookback
// and returns how many were reported. Reported sessions are marked so later
// runs skip them; a failed emit leaves the session for the next run.
func (s *StaleSessionSweeper) Run(ctx context.Context) (int, error) {
	now := s.now().UTC()
	cutoff := now.Add(-s.lookback)

	var (
		cursor   attendance.StaleCursor
		found    int
		reported int
	)
	for {
		rows, err := s.repo.ListStaleOpenSessions(ctx, cutoff, cursor, s.batchSize)
		if err != nil {
			return reported, fmt.Errorf("list stale sessions: %w", err)
		}
		found += len(rows)

		for i := range rows {
			if err := ctx.Err(); err != nil {
				return reported, err
			}
			if s.report(ctx, &rows[i], now) {
				reported++
			}
		}

		if len(rows) == 0 || len(rows) < s.batchSize {
			break
		}
		last := rows[len(rows)-1]
		cursor = attendance.StaleCursor{TimeIn: last.TimeIn, ID: last.ID}
	}

	if found > 0 {
		s.logger.Info("stale sessions reported",
			zap.Int("found", found),
			zap.Int("reported", reported),
			zap.Time("cutoff", cutoff),
		)
	}
	return reported, nil
}

func (s *StaleSessionSweeper) report(ctx context.Context, row *models.AttendanceSession, now time.Time) bool {
	log := s.logger.With(
		zap.String("session_id", row.ID.String()),
		zap.String("user_id", row.UserID.String()),
	)
	if err := s.emitter.Emit(ctx, events.ChannelNotification, staleEvent(row, now)); err != nil {
		log.Warn("emit stale session failed", zap.Error(err))
		return false
	}
	if err := s.repo.MarkStaleNotified(ctx, row.ID, now); err != nil {
		log.Warn("mark stale session failed, it will be reported again", zap.Error(err))
	}
	return true
}

func staleEvent(row *models.AttendanceSession, now time.Time) events.Event {
	return events.Event{
		EventType:  events.TypeSessionStale,
		UserID:     row.UserID.String(),
		OrgID:      row.OrgID.String(),
		SubjectID:  row.ID.String(),
		Message:    "You have an open session from " + row.TimeIn.Format(time.RFC3339) + " that was never closed",
		OccurredAt: now,
		Data: map[string]any{
			"work_date":  attendance.WorkDate(row.WorkDate).Format(time.DateOnly),
			"time_in":    row.TimeIn,
			"open_hours": now.Sub(row.TimeIn).Hours(),
		},
	}
}

// NewScheduler returns a cron scheduler that skips a tick while the previous
// run of the same job is still going.
func NewScheduler(logger *zap.Logger) *cron.Cron {
	if logger == nil {
		logger = zap.L()
	}
	cl := cron.PrintfLogger(zap.NewStdLog(logger.Named("jobs.cron")))
	return cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
}

// Schedule registers the sweeper on c with a cron expression.
func (s *StaleSessionSweeper) Schedule(c *cron.Cron, expr string) (cron.EntryID, error) {
	return c.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := s.Run(ctx); err != nil {
			s.logger.Error("stale session sweep failed", zap.Error(err))
		}
	})
}
