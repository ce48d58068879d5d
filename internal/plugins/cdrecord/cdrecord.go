// Package cdrecord records and blanks CDs with wodim (or any cdrecord
// compatible binary).
package cdrecord

import (
	"context"
	"errors"
	"fmt"
	"math"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/media"
	"discburn/internal/pipeline"
	"discburn/internal/plugins"
	"discburn/internal/procexec"
	"discburn/internal/session"
)

const stageName = "cdrecord"

// Stage runs the recorder for a record or erase job.
type Stage struct {
	plugins.Worker

	binary string
	exec   procexec.Executor
}

// New returns a recorder using binary (normally "wodim").
func New(binary string, exec procexec.Executor) *Stage {
	if binary == "" {
		binary = "wodim"
	}
	return &Stage{binary: binary, exec: exec}
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
		var args []string
		var err error
		if input != nil {
			blocks, _ := j.Ctx().OutputSize()
			track := j.CurrentTrack()
			args, err = RecordArgs(sess, burner.Device(), status, nil, pipeTrack(track), blocks)
		} else {
			args, err = RecordArgs(sess, burner.Device(), status, sess.Tracks(), nil, 0)
		}
		if err != nil {
			return err
		}
		cmd = procexec.Command{Binary: s.binary, Args: args, Stdin: input}
		j.SetCurrentAction(pipeline.ActionStartRecording, "", false)
	case pipeline.JobActionErase:
		cmd = procexec.Command{Binary: s.binary, Args: BlankArgs(sess, burner.Device(), status)}
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
			return classify(err, parser)
		}
		if j.Action() == pipeline.JobActionErase {
			j.SetProgress(1)
		}
		return nil
	})
	return nil
}

func (s *Stage) Stop(*pipeline.Job) error {
	s.Worker.Stop()
	return nil
}

// pipeTrack is the track type announced for piped data.
func pipeTrack(track *session.Track) *session.Track {
	if track != nil && track.Kind == session.KindStream {
		return track
	}
	return &session.Track{Kind: session.KindData}
}

// RecordArgs builds the command line for writing tracks, or piped data of
// pipeBlocks sectors when piped is set.
func RecordArgs(sess *session.Session, device string, status media.Status, tracks []*session.Track, piped *session.Track, pipeBlocks int64) ([]string, error) {
	flags := sess.Flags()
	args := []string{"-v", "dev=" + device}
	if flags.Has(session.FlagNoGrace) {
		args = append(args, "gracetime=0")
	}
	if speed := speedArg(status, sess.Rate()); speed != "" {
		args = append(args, speed)
	}
	if flags.Has(session.FlagDummy) {
		args = append(args, "-dummy")
	}
	if flags.Has(session.FlagMulti) {
		args = append(args, "-multi")
	}
	if flags.Has(session.FlagOverburn) {
		args = append(args, "-overburn")
	}
	if flags.Has(session.FlagBurnProof) {
		args = append(args, "driveropts=burnfree")
	}

	mode := "-tao"
	switch {
	case flags.Has(session.FlagRaw):
		mode = "-raw96r"
	case flags.Has(session.FlagDAO):
		mode = "-dao"
	}

	if piped != nil {
		if pipeBlocks <= 0 {
			return nil, burnerr.New(burnerr.KindGeneral, stageName, "size of piped data is unknown")
		}
		kind := "-data"
		if piped.Kind == session.KindStream {
			kind = "-audio"
		}
		return append(args, mode, kind, fmt.Sprintf("tsize=%ds", pipeBlocks), "-"), nil
	}

	if len(tracks) == 0 {
		return nil, burnerr.New(burnerr.KindGeneral, stageName, "nothing to record")
	}
	if t := tracks[0]; t.Kind == session.KindImage && t.Format == session.FormatCUE {
		if t.TOCPath == "" {
			return nil, burnerr.New(burnerr.KindGeneral, stageName, "cue image without a cue sheet")
		}
		return append(args, "-dao", "cuefile="+t.TOCPath), nil
	}

	args = append(args, mode)
	current := ""
	for _, t := range tracks {
		var kind, path string
		switch {
		case t.Kind == session.KindImage && t.Format == session.FormatBIN:
			kind, path = "-data", t.ImagePath
		case t.Kind == session.KindStream:
			kind, path = "-audio", t.AudioPath
		default:
			return nil, burnerr.Newf(burnerr.KindGeneral, stageName, "cannot record a %s track", t.Type())
		}
		if kind != current {
			args = append(args, kind)
			if kind == "-audio" {
				args = append(args, "-pad")
			}
			current = kind
		}
		args = append(args, path)
	}
	return args, nil
}

// BlankArgs builds the command line for blanking a CD-RW.
func BlankArgs(sess *session.Session, device string, status media.Status) []string {
	mode := "blank=all"
	if sess.HasFlag(session.FlagFastBlank) {
		mode = "blank=fast"
	}
	args := []string{"-v", "dev=" + device, mode}
	if speed := speedArg(status, sess.Rate()); speed != "" {
		args = append(args, speed)
	}
	if sess.Dummy() {
		args = append(args, "-dummy")
	}
	return args
}

func speedArg(status media.Status, rate int64) string {
	if rate <= 0 {
		return ""
	}
	speed := int(math.Floor(media.RateToSpeed(status, rate)))
	if speed < 1 {
		speed = 1
	}
	return fmt.Sprintf("speed=%d", speed)
}

func classify(err error, parser *Parser) error {
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
	return burnerr.Wrap(burnerr.KindGeneral, stageName, "recorder failed", err)
}
