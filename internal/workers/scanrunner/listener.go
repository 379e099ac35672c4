package scanrunner

import (
	"context"

	"croaudit/internal/domain"
)

// Listener observes one scheduler. Calls arrive in the order the scheduler
// produced them and never overlap. A listener must not call Start, Tick or
// Cancel on the same scheduler from inside a callback.
type Listener interface {
	OnProgress(state domain.SessionState)
	OnCompleted(report domain.AuditReport)
	OnFailed(err error)
	OnCancelled()
}

// Screenshotter returns an image reference for a site. Failures are ignored.
type Screenshotter interface {
	Capture(ctx context.Context, websiteURL string) (string, error)
}

type eventKind int

const (
	eventProgress eventKind = iota
	eventCompleted
	eventFailed
	eventCancelled
)

type event struct {
	kind   eventKind
	state  domain.SessionState
	report domain.AuditReport
	err    error
}

func (e event) deliver(l Listener) {
	switch e.kind {
	case eventProgress:
		l.OnProgress(e.state)
	case eventCompleted:
		l.OnCompleted(e.report)
	case eventFailed:
		l.OnFailed(e.err)
	case eventCancelled:
		l.OnCancelled()
	}
}
