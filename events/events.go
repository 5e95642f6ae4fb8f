// Package events publishes attendance side-channel events. Publishing is
// fire-and-forget from the caller's point of view: a failed emit is logged
// and never fails the operation that produced the event.
package events

import (
	"context"
	"time"
)

const (
	ChannelNotification = "notification"
	ChannelActivity     = "activity"
)

const (
	TypeTimeIn             = "attendance.time_in"
	TypeTimeOut            = "attendance.time_out"
	TypeSessionStale       = "attendance.session.stale"
	TypeCorrectionSubmit   = "attendance.correction.submitted"
	TypeCorrectionReviewed = "attendance.correction.reviewed"
	TypeCorrectionWithdraw = "attendance.correction.withdrawn"
)

type Event struct {
	EventType  string         `json:"event_type"`
	UserID     string         `json:"user_id"`
	OrgID      string         `json:"org_id"`
	SubjectID  string         `json:"subject_id,omitempty"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

//go:generate mockgen -source=events.go -destination=mock/emitter_mock.go -package=mock
type Emitter interface {
	Emit(ctx context.Context, channel string, event Event) error
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, string, Event) error {
	return nil
}

func NewNoop() Emitter {
	return noopEmitter{}
}
