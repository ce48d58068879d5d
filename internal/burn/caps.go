package burn

import (
	"context"

	"discburn/internal/media"
	"discburn/internal/pipeline"
	"discburn/internal/session"
)

// Caps builds task chains for a session and reports which burn flags the
// session's drive, medium and tools support.
type Caps interface {
	// NewTasks returns the tasks to run in order.
	NewTasks(s *session.Session) ([]*pipeline.Task, error)
	NewBlankingTask(s *session.Session) (*pipeline.Task, error)
	NewChecksummingTask(s *session.Session) (*pipeline.Task, error)
	// BurnFlags returns the supported and compulsory flags given the flags
	// currently set on s.
	BurnFlags(s *session.Session) (supported, compulsory session.Flags, err error)
	BlankFlags(s *session.Session) (supported, compulsory session.Flags, err error)
	// SupportsOutput reports whether the session input can be turned into
	// an image of type out.
	SupportsOutput(s *session.Session, out session.TrackType) bool
	// RequiredMedia is the medium status the destination must match.
	RequiredMedia(s *session.Session) media.Status
	// CanBurn returns nil when the destination medium can take the input.
	CanBurn(s *session.Session) error
}

// Journal records each operation, typically in the history database.
type Journal interface {
	Begin(ctx context.Context, kind, target, logPath string) (string, error)
	Finish(ctx context.Context, id string, result error, written int64) error
}
