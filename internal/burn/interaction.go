package burn

import (
	"context"
	"time"

	"discburn/internal/burnerr"
	"discburn/internal/media"
	"discburn/internal/pipeline"
	"discburn/internal/session"
)

// Answer is the caller's reply to a prompt.
type Answer int

const (
	AnswerOK Answer = iota
	AnswerCancel
	// AnswerRetry asks the controller to try again, or for the previous
	// session warning, to keep the previous session by merging.
	AnswerRetry
	// AnswerNeedReload asks for a different medium.
	AnswerNeedReload
)

func (a Answer) String() string {
	switch a {
	case AnswerOK:
		return "ok"
	case AnswerCancel:
		return "cancel"
	case AnswerRetry:
		return "retry"
	case AnswerNeedReload:
		return "need_reload"
	default:
		return "unknown"
	}
}

// Interaction is everything the controller may ask of, or report to, the
// application. Prompts block until answered and must return promptly once
// ctx is done.
type Interaction interface {
	AskDisableJoliet(ctx context.Context) Answer
	WarnDataLoss(ctx context.Context) Answer
	WarnPreviousSessionLoss(ctx context.Context) Answer
	WarnAudioToAppendable(ctx context.Context) Answer
	WarnRewritable(ctx context.Context) Answer
	// InsertMedia asks for a medium matching required in drive. reason is
	// why the current medium was refused.
	InsertMedia(ctx context.Context, drive media.Drive, required media.Status, reason burnerr.Kind) Answer
	// LocationRequest asks for another output location after cause. The
	// implementation updates s (temporary directory or output path).
	LocationRequest(ctx context.Context, s *session.Session, cause error, temporary bool) Answer
	DummySuccess(ctx context.Context) Answer
	EjectFailure(ctx context.Context, drive media.Drive) Answer
	BlankFailure(ctx context.Context) Answer
	InstallMissing(ctx context.Context, cause error) Answer

	// ProgressChanged reports overall and task fractions in [0,1] and the
	// estimated time left, -1 when unknown.
	ProgressChanged(overall, task float64, remaining time.Duration)
	ActionChanged(action pipeline.Action, label string)
}

// AutoInteraction accepts every warning, gives up on failures and ignores
// progress. Embed it to override single prompts.
type AutoInteraction struct{}

func (AutoInteraction) AskDisableJoliet(context.Context) Answer        { return AnswerOK }
func (AutoInteraction) WarnDataLoss(context.Context) Answer            { return AnswerOK }
func (AutoInteraction) WarnPreviousSessionLoss(context.Context) Answer { return AnswerOK }
func (AutoInteraction) WarnAudioToAppendable(context.Context) Answer   { return AnswerOK }
func (AutoInteraction) WarnRewritable(context.Context) Answer          { return AnswerOK }
func (AutoInteraction) DummySuccess(context.Context) Answer            { return AnswerOK }
func (AutoInteraction) BlankFailure(context.Context) Answer            { return AnswerCancel }
func (AutoInteraction) InstallMissing(context.Context, error) Answer   { return AnswerCancel }

func (AutoInteraction) InsertMedia(context.Context, media.Drive, media.Status, burnerr.Kind) Answer {
	return AnswerCancel
}

func (AutoInteraction) LocationRequest(context.Context, *session.Session, error, bool) Answer {
	return AnswerCancel
}

func (AutoInteraction) EjectFailure(context.Context, media.Drive) Answer { return AnswerOK }

func (AutoInteraction) ProgressChanged(float64, float64, time.Duration) {}

func (AutoInteraction) ActionChanged(pipeline.Action, string) {}
