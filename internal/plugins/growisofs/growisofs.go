// Package growisofs records DVD and BD media with growisofs and blanks
// rewritable DVDs with dvd+rw-format.
package growisofs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/media"
	"discburn/internal/pipeline"
	"discburn/internal/plugins"
	"discburn/internal/procexec"
	"discburn/internal/session"
)

const stageName = "growisofs"

// Stage runs growisofs for record jobs and dvd+rw-format for erase jobs.
type Stage struct {
	plugins.Worker

	growisofs string
	format    string
	exec      procexec.Executor
}

// New returns the stage. Empty binary names use the defaults.
func New(growisofs, format string, exec procexec.Executor) *Stage {
	if growisofs == "" {
		growisofs = "growisofs"
	}
	if format == "" {
		format = "dvd+rw-format"
	}
	return &Stage{growisofs: growisofs, format: format, exec: exec}
}

func (s *Stage) Start(ctx context.Context, j *pipeline.Job) error {
	sess := j.Session()
	burner := j.Burner()
	if sess == nil || burner == nil {
		return burnerr.New(burnerr.KindOutputNone, stageName, "no burner selected")
	}
	status := media.StatusOf(burner.Medium())

	var cmd procexec.Command
	switch j.Action() {
	case pipeline.JobActionRecord:
		input := j.Input()
		source := ""
		var blocks int64
		if input == nil {
			tracks := sess.Tracks()
			if len(tracks) != 1 || tracks[0].Kind != session.KindImage || tracks[0].Format != session.FormatBIN {
				return burnerr.New(burnerr.KindGeneral, stageName, "growisofs records a single ISO image")
			}
			source = tracks[0].ImagePath
		} else {
			blocks, _ = j.Ctx().OutputSize()
		}
		cmd = procexec.Command{
			Binary: s.growisofs,
			Args:   RecordArgs(sess, burner.Device(), status, source, blocks),
			Stdin:  input,
		}
		j.SetCurrentAction(pipeline.ActionStartRecording, "", false)
	case pipeline.JobActionErase:
		cmd = procexec.Command{Binary: s.format, Args: BlankArgs(sess, burner.Device(), burner.Medium())}
		j.SetCurrentAction(pipeline.ActionBlanking, "", false)
	default:
		return burnerr.ErrNotSupported
	}

	parser := NewParser(j, status)
	cmd.OnStdout = parser.Line
	cmd.OnStderr = parser.Line
	logger := j.Logger()

	s.Go(ctx, j, func(ctx context.Context) error {
		defer parser.Done()
		logger.Info("starting recorder",
			logging.String(logging.FieldEventType, "recorder_start"),
			logging.String(logging.FieldDrive, burner.Device()),
			logging.String("command", cmd.String()),
		)
		if err := s.exec.Run(ctx, cmd); err != nil {
			return classify(err, parser, cmd.Binary)
		}
		j.SetProgress(1)
		return nil
	})
	return nil
}

func (s *Stage) Stop(*pipeline.Job) error {
	s.Worker.Stop()
	return nil
}

// RecordArgs builds the growisofs command line. An empty source reads the
// image from stdin; blocks then announces its size.
func RecordArgs(sess *session.Session, device string, status media.Status, source string, blocks int64) []string {
	flags := sess.Flags()
	args := []string{"-use-the-force-luke=tty"}
	if flags.Has(session.FlagDummy) {
		args = append(args, "-use-the-force-luke=dummy")
	}
	if flags.Has(session.FlagDAO) {
		args = append(args, "-use-the-force-luke=dao")
	}
	if rate := sess.Rate(); rate > 0 {
		speed := int(math.Floor(media.RateToSpeed(status, rate)))
		if speed < 1 {
			speed = 1
		}
		args = append(args, fmt.Sprintf("-speed=%d", speed))
	}
	if !flags.Has(session.FlagMulti) && !sess.AppendOrMerge() {
		args = append(args, "-dvd-compat")
	}

	mode := "-Z"
	if sess.AppendOrMerge() {
		mode = "-M"
	}
	if source == "" {
		if blocks > 0 {
			args = append(args, fmt.Sprintf("-use-the-force-luke=tracksize:%d", blocks))
		}
		source = "/dev/stdin"
	}
	return append(args, mode, device+"="+source)
}

// BlankArgs builds the dvd+rw-format command line. DVD-RW is blanked;
// DVD+RW and BD-RE are reformatted.
func BlankArgs(sess *session.Session, device string, m *media.Medium) []string {
	if m != nil && strings.HasPrefix(strings.ToUpper(m.Type), "DVD-RW") {
		if sess.HasFlag(session.FlagFastBlank) {
			return []string{"-blank", device}
		}
		return []string{"-blank=full", device}
	}
	return []string{"-force", device}
}

func classify(err error, parser *Parser, binary string) error {
	if errors.Is(err, context.Canceled) {
		return burnerr.Cancelled(stageName)
	}
	if kind, line, ok := parser.Failure(); ok {
		return burnerr.Wrap(kind, stageName, line, err)
	}
	var exitErr *procexec.ExitError
	if errors.As(err, &exitErr) {
		for _, line := range exitErr.Stderr {
			parser.Line(line)
		}
		if kind, line, ok := parser.Failure(); ok {
			return burnerr.Wrap(kind, stageName, line, err)
		}
	}
	return burnerr.Wrap(burnerr.KindGeneral, stageName, binary+" failed", err)
}
