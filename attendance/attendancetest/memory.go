// Package attendancetest provides an in-memory attendance store for tests.
// Transactions snapshot the whole store and restore it when fn fails, so a
// rejected operation leaves nothing behind.
package attendancetest

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"timekeeping/attendance"
	"timekeeping/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type store struct {
	mu          sync.Mutex
	txMu        sync.Mutex
	sessions    map[uuid.UUID]models.AttendanceSession
	dailies     map[string]models.DailyAttendance
	corrections map[uuid.UUID]models.CorrectionRequest

	// FailOn makes the named operation return an error, for fault tests.
	failOn map[string]error
}

type Memory struct {
	s    *store
	inTx bool
}

var _ attendance.Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{s: &store{
		sessions:    map[uuid.UUID]models.AttendanceSession{},
		dailies:     map[string]models.DailyAttendance{},
		corrections: map[uuid.UUID]models.CorrectionRequest{},
		failOn:      map[string]error{},
	}}
}

// FailOn makes every later call to op return err. A nil err clears it.
func (m *Memory) FailOn(op string, err error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err == nil {
		delete(m.s.failOn, op)
		return
	}
	m.s.failOn[op] = err
}

func (m *Memory) fault(op string) error {
	return m.s.failOn[op]
}

func dailyKey(userID uuid.UUID, date time.Time) string {
	return userID.String() + "/" + date.Format("2006-01-02")
}

func (m *Memory) Transaction(ctx context.Context, fn func(tx attendance.Repository) error) error {
	return m.Tx(ctx, func(tx *Memory) error { return fn(tx) })
}

// Tx is Transaction typed to *Memory, for adapters built on top of it.
func (m *Memory) Tx(_ context.Context, fn func(tx *Memory) error) error {
	if m.inTx {
		return fn(m)
	}
	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(&Memory{s: m.s, inTx: true}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	sessions    map[uuid.UUID]models.AttendanceSession
	dailies     map[string]models.DailyAttendance
	corrections map[uuid.UUID]models.CorrectionRequest
}

func (m *Memory) snapshot() snapshot {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := snapshot{
		sessions:    make(map[uuid.UUID]models.AttendanceSession, len(m.s.sessions)),
		dailies:     make(map[string]models.DailyAttendance, len(m.s.dailies)),
		corrections: make(map[uuid.UUID]models.CorrectionRequest, len(m.s.corrections)),
	}
	for k, v := range m.s.sessions {
		out.sessions[k] = v
	}
	for k, v := range m.s.dailies {
		out.dailies[k] = v
	}
	for k, v := range m.s.corrections {
		out.corrections[k] = v
	}
	return out
}

func (m *Memory) restore(s snapshot) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.sessions = s.sessions
	m.s.dailies = s.dailies
	m.s.corrections = s.corrections
}

func (m *Memory) FindOpenSession(_ context.Context, userID uuid.UUID, since time.Time, _ bool) (*models.AttendanceSession, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.fault("FindOpenSession"); err != nil {
		return nil, err
	}

	var found *models.AttendanceSession
	for _, s := range m.s.sessions {
		if s.UserID != userID || s.TimeOut != nil || s.TimeIn.Before(since) {
			continue
		}
		if found == nil || s.TimeIn.After(found.TimeIn) {
			cp := s
			found = &cp
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (m *Memory) ListSessionsByDate(_ context.Context, userID uuid.UUID, date time.Time) ([]models.AttendanceSession, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.fault("ListSessionsByDate"); err != nil {
		return nil, err
	}

	var out []models.AttendanceSession
	for _, s := range m.s.sessions {
		if s.UserID == userID && s.WorkDate.Equal(date) {
			out = append(out, s)
		}
	}
	sortByTimeIn(out)
	return out, nil
}

func (m *Memory) ListStaleOpenSessions(_ context.Context, before time.Time, after attendance.StaleCursor, limit int) ([]models.AttendanceSession, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var out []models.AttendanceSession
	for _, s := range m.s.sessions {
		if s.TimeOut != nil || s.StaleNotifiedAt != nil || !s.TimeIn.Before(before) {
			continue
		}
		if !after.TimeIn.IsZero() && !afterCursor(s, after) {
			continue
		}
		out = append(out, s)
	}
	sortByTimeIn(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkStaleNotified(_ context.Context, id uuid.UUID, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.fault("MarkStaleNotified"); err != nil {
		return err
	}
	s, ok := m.s.sessions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if s.StaleNotifiedAt == nil {
		s.StaleNotifiedAt = &at
		m.s.sessions[id] = s
	}
	return nil
}

func (m *Memory) CreateSession(_ context.Context, s *models.AttendanceSession) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.fault("CreateSession"); err != nil {
		return err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if _, ok := m.s.sessions[s.ID]; ok {
		return errors.New("duplicate session id")
	}
	m.s.sessions[s.ID] = *s
	return nil
}

func (m *Memory) UpdateSession(_ context.Context, s *models.AttendanceSession) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.fault("UpdateSession"); err != nil {
		return err
	}
	m.s.sessions[s.ID] = *s
	return nil
}

func (m *Memory) UpdateSessionEvidence(_ context.Context, id uuid.UUID, leg, state string, ref *string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.fault("UpdateSessionEvidence"); err != nil {
		return err
	}
	s, ok := m.s.sessions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if leg == models.LegOut {
		s.OutEvidenceState, s.OutEvidenceRef = state, ref
	} else {
		s.InEvidenceState, s.InEvidenceRef = state, ref
	}
	m.s.sessions[id] = s
	return nil
}

func (m *Memory) DeleteSessionsByDate(_ context.Context, userID uuid.UUID, date time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.fault("DeleteSessionsByDate"); err != nil {
		return 0, err
	}
	var n int64
	for id, s := range m.s.sessions {
		if s.UserID == userID && s.WorkDate.Equal(date) {
			delete(m.s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) FindDaily(_ context.Context, userID uuid.UUID, date time.Time) (*models.DailyAttendance, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	d, ok := m.s.dailies[dailyKey(userID, date)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &d, nil
}

func (m *Memory) CreateDaily(_ context.Context, d *models.DailyAttendance) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.fault("CreateDaily"); err != nil {
		return err
	}
	key := dailyKey(d.UserID, d.Date)
	if _, ok := m.s.dailies[key]; ok {
		return attendance.ErrDailyExists
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.s.dailies[key] = *d
	return nil
}

func (m *Memory) UpdateDaily(_ context.Context, d *models.DailyAttendance) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.fault("UpdateDaily"); err != nil {
		return err
	}
	m.s.dailies[dailyKey(d.UserID, d.Date)] = *d
	return nil
}

// Sessions returns every stored session, ordered by time-in.
func (m *Memory) Sessions() []models.AttendanceSession {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]models.AttendanceSession, 0, len(m.s.sessions))
	for _, s := range m.s.sessions {
		out = append(out, s)
	}
	sortByTimeIn(out)
	return out
}

// CountOpen returns how many sessions of userID have no time-out and
// started at or after since.
func (m *Memory) CountOpen(userID uuid.UUID, since time.Time) int {
	n := 0
	for _, s := range m.Sessions() {
		if s.UserID == userID && s.TimeOut == nil && !s.TimeIn.Before(since) {
			n++
		}
	}
	return n
}

func (m *Memory) PutCorrection(_ context.Context, c *models.CorrectionRequest) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.fault("PutCorrection"); err != nil {
		return err
	}
	m.s.corrections[c.ID] = *c
	return nil
}

func (m *Memory) GetCorrection(_ context.Context, id uuid.UUID) (*models.CorrectionRequest, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.corrections[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (m *Memory) DeleteCorrection(_ context.Context, id uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.corrections, id)
	return nil
}

// ListCorrections returns the requests accepted by keep, newest first.
func (m *Memory) ListCorrections(keep func(models.CorrectionRequest) bool) []models.CorrectionRequest {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.CorrectionRequest
	for _, c := range m.s.corrections {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// sortByTimeIn breaks time_in ties on id, matching the database order.
func sortByTimeIn(rows []models.AttendanceSession) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].TimeIn.Equal(rows[j].TimeIn) {
			return rows[i].TimeIn.Before(rows[j].TimeIn)
		}
		return bytes.Compare(rows[i].ID[:], rows[j].ID[:]) < 0
	})
}

func afterCursor(s models.AttendanceSession, c attendance.StaleCursor) bool {
	if !s.TimeIn.Equal(c.TimeIn) {
		return s.TimeIn.After(c.TimeIn)
	}
	return bytes.Compare(s.ID[:], c.ID[:]) > 0
}
