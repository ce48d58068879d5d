package plugins

import "discburn/internal/pipeline"

// Reporter receives what tool output parsers learn. *pipeline.Job
// implements it.
type Reporter interface {
	SetCurrentAction(action pipeline.Action, label string, force bool)
	SetWrittenTrack(written int64)
	SetProgress(p float64)
	SetRate(rate int64)
	SetDangerous(on bool)
}

var _ Reporter = (*pipeline.Job)(nil)
