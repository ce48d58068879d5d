package burn

import (
	"context"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/media"
	"discburn/internal/session"
)

// checkSessionConsistency keeps the requested flags the backend supports,
// drops the others and adds the compulsory ones. A requested merge that
// cannot happen is an error. Running it twice yields the same flags.
func (b *Burn) checkSessionConsistency(s *session.Session) error {
	return b.applyFlags(s, "check session", b.caps.BurnFlags, true)
}

func (b *Burn) checkBlankConsistency(s *session.Session) error {
	return b.applyFlags(s, "check blank", b.caps.BlankFlags, false)
}

// applyFlags filters the flags of s through query. With strictMerge set an
// unsupported merge fails instead of being dropped.
func (b *Burn) applyFlags(s *session.Session, op string, query func(*session.Session) (session.Flags, session.Flags, error), strictMerge bool) error {
	requested := s.Flags()
	s.SetFlags(session.FlagNone)

	var compulsory session.Flags
	var failure error
	requested.Each(func(flag session.Flags) {
		if failure != nil {
			return
		}
		supported, required, err := query(s)
		if err != nil {
			failure = err
			return
		}
		compulsory = required
		if supported.Has(flag) {
			s.AddFlag(flag)
			return
		}
		if strictMerge && flag == session.FlagMerge {
			failure = burnerr.New(burnerr.KindGeneral, op, "merging data is not supported with this medium")
			return
		}
		b.logger.Info("flag not supported, dropped",
			logging.String("flag", flag.String()),
			logging.String(logging.FieldEventType, "flag_dropped"),
		)
	})
	if failure != nil {
		s.SetFlags(requested)
		return failure
	}
	if requested == session.FlagNone {
		_, required, err := query(s)
		if err != nil {
			return err
		}
		compulsory = required
	}
	if missing := compulsory &^ s.Flags(); missing != session.FlagNone {
		b.logger.Debug("adding compulsory flags", logging.String("flags", missing.String()))
		s.AddFlag(compulsory)
	}
	return nil
}

// checkDataLoss warns about anything on the destination the write would
// destroy. ErrRetry means a new medium was loaded and the checks must start
// over.
func (b *Burn) checkDataLoss(ctx context.Context) error {
	s := b.session
	if s.IsDestFile() {
		return nil
	}
	drive := s.Burner()
	if drive == nil {
		return nil
	}
	status := media.StatusOf(drive.Medium())
	flags := s.Flags()
	hasContent := status.Any(media.StatusHasData | media.StatusHasAudio)

	if hasContent {
		if flags.Has(session.FlagBlankBeforeWrite) {
			if err := b.handleWarning(ctx, "data loss", b.interaction.WarnDataLoss(ctx)); err != nil {
				return err
			}
		} else if !flags.Any(session.FlagMerge | session.FlagAppend) {
			answer := b.interaction.WarnPreviousSessionLoss(ctx)
			if answer == AnswerRetry {
				s.AddFlag(session.FlagMerge)
				return b.checkSessionConsistency(s)
			}
			if err := b.handleWarning(ctx, "previous session loss", answer); err != nil {
				return err
			}
		}
	}

	if status.Has(media.StatusHasAudio) && s.AppendOrMerge() {
		if err := b.handleWarning(ctx, "audio to appendable", b.interaction.WarnAudioToAppendable(ctx)); err != nil {
			return err
		}
	}

	if status.Has(media.StatusRewritable) && s.InputType().Kind == session.KindStream {
		if err := b.handleWarning(ctx, "rewritable", b.interaction.WarnRewritable(ctx)); err != nil {
			return err
		}
	}
	return nil
}

// handleWarning turns a warning answer into control flow.
func (b *Burn) handleWarning(ctx context.Context, warning string, answer Answer) error {
	b.logger.Debug("warning answered",
		logging.String("warning", warning),
		logging.String("answer", answer.String()),
	)
	switch answer {
	case AnswerCancel:
		return burnerr.Cancelled(warning)
	case AnswerNeedReload:
		if err := b.reloadDestMedia(ctx, burnerr.KindMediumInvalid); err != nil {
			return err
		}
		return burnerr.ErrRetry
	default:
		return nil
	}
}
