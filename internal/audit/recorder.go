package audit

import (
	"context"

	"github.com/nerrad567/camgate/internal/auth"
)

// Logger is the subset of logging used by Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder adapts a Repository to auth.Recorder. Write failures are logged
// and never fail the authentication flow.
type Recorder struct {
	repo   Repository
	source string
	logger Logger
}

// NewRecorder returns a Recorder writing entries tagged with source.
func NewRecorder(repo Repository, source string) *Recorder {
	return &Recorder{repo: repo, source: source, logger: noopLogger{}}
}

// SetLogger sets the logger for write failures.
func (r *Recorder) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	r.logger = l
}

// RecordAuth implements auth.Recorder.
func (r *Recorder) RecordAuth(ctx context.Context, ev auth.Event) {
	err := r.repo.Create(ctx, &AuditLog{
		Action:    ev.Action,
		Principal: ev.Principal,
		Result:    ev.Result,
		Detail:    ev.Detail,
		Source:    r.source,
	})
	if err != nil {
		r.logger.Warn("audit write failed", "action", ev.Action, "error", err)
	}
}

var _ auth.Recorder = (*Recorder)(nil)
