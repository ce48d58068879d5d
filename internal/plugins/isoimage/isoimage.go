// Package isoimage builds ISO9660 images from data tracks with xorriso in
// mkisofs emulation mode.
package isoimage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/pipeline"
	"discburn/internal/plugins"
	"discburn/internal/procexec"
	"discburn/internal/session"
)

const stageName = "isoimage"

// Stage runs xorriso for the current data track.
type Stage struct {
	plugins.Worker

	binary string
	exec   procexec.Executor
}

// New returns an imaging stage using binary (normally "xorriso").
func New(binary string, exec procexec.Executor) *Stage {
	if binary == "" {
		binary = "xorriso"
	}
	return &Stage{binary: binary, exec: exec}
}

// Start launches the size probe or the imaging run.
func (s *Stage) Start(ctx context.Context, j *pipeline.Job) error {
	track := j.CurrentTrack()
	if track == nil || track.Kind != session.KindData {
		return burnerr.New(burnerr.KindGeneral, stageName, "current track is not a data track")
	}
	if len(track.Roots) == 0 {
		return burnerr.New(burnerr.KindGeneral, stageName, "data track has no files")
	}
	label := ""
	if sess := j.Session(); sess != nil {
		label = sess.Label()
	}

	switch j.Action() {
	case pipeline.JobActionSize:
		j.SetCurrentAction(pipeline.ActionGettingSize, "", false)
		s.Go(ctx, j, func(ctx context.Context) error {
			return s.probeSize(ctx, j, track, label)
		})
		return nil
	case pipeline.JobActionImage:
		j.SetCurrentAction(pipeline.ActionCreatingImage, "", false)
		s.Go(ctx, j, func(ctx context.Context) error {
			return s.build(ctx, j, track, label)
		})
		return nil
	default:
		return burnerr.ErrNotSupported
	}
}

// Stop ends a running xorriso.
func (s *Stage) Stop(*pipeline.Job) error {
	s.Worker.Stop()
	return nil
}

func (s *Stage) probeSize(ctx context.Context, j *pipeline.Job, track *session.Track, label string) error {
	args := append(BuildArgs(track, label), "-print-size")
	out, err := s.exec.Output(ctx, s.binary, args...)
	if err != nil {
		return classify(err, nil)
	}
	blocks, err := ParsePrintSize(string(out))
	if err != nil {
		return burnerr.Wrap(burnerr.KindGeneral, stageName, "parse size", err)
	}
	j.Logger().Debug("image size probed", logging.Int64("blocks", blocks))
	j.SetOutputSize(blocks, 0)
	return nil
}

func (s *Stage) build(ctx context.Context, j *pipeline.Job, track *session.Track, label string) error {
	sink, err := plugins.OpenSink(j)
	if err != nil {
		return err
	}
	defer sink.Close()

	args := BuildArgs(track, label)
	if path := sink.Path(); path != "" {
		args = append(args, "-o", path)
	} else {
		args = append(args, "-o", "-")
	}
	logger := j.Logger()

	var mu sync.Mutex
	var stderr []string
	cmd := procexec.Command{
		Binary: s.binary,
		Args:   args,
		OnStderr: func(line string) {
			if pct, ok := ParseProgress(line); ok {
				j.SetProgress(pct / 100)
				return
			}
			mu.Lock()
			stderr = append(stderr, line)
			mu.Unlock()
			logger.Debug("xorriso", logging.String("line", line))
		},
	}
	var counter *plugins.CountingWriter
	if sink.Path() == "" {
		counter = plugins.NewCountingWriter(sink, j.SetWrittenTrack)
		cmd.Stdout = counter
	}

	logger.Info("creating image",
		logging.String(logging.FieldEventType, "image_start"),
		logging.String("command", cmd.String()),
	)
	if err := s.exec.Run(ctx, cmd); err != nil {
		mu.Lock()
		lines := append([]string(nil), stderr...)
		mu.Unlock()
		return classify(err, lines)
	}
	if counter != nil {
		j.SetOutputSize(0, counter.Written())
	}
	j.SetProgress(1)
	return nil
}

// BuildArgs returns the mkisofs-mode arguments for track, without output
// options.
func BuildArgs(track *session.Track, label string) []string {
	args := []string{"-as", "mkisofs"}
	if track.FS&session.FSRockRidge != 0 {
		args = append(args, "-r")
	}
	if track.FS&session.FSJoliet != 0 {
		args = append(args, "-J", "-joliet-long")
	}
	if track.FS&session.FSUDF != 0 {
		args = append(args, "-udf")
	}
	if label != "" {
		args = append(args, "-V", label)
	}
	return append(args, track.Roots...)
}

var progressPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*%\s*done`)

// ParseProgress extracts the percentage from a progress line such as
// "xorriso : UPDATE : 45.30% done".
func ParseProgress(line string) (float64, bool) {
	match := progressPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}

// ParsePrintSize reads the sector count printed by -print-size. Newer
// releases prefix it with "size=".
func ParsePrintSize(out string) (int64, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		field := strings.TrimSpace(lines[i])
		field = strings.TrimPrefix(field, "size=")
		if field == "" {
			continue
		}
		blocks, err := strconv.ParseInt(field, 10, 64)
		if err == nil && blocks > 0 {
			return blocks, nil
		}
	}
	return 0, fmt.Errorf("no sector count in %q", strings.TrimSpace(out))
}

// classify maps a failed run to an error kind using the collected stderr.
func classify(err error, stderr []string) error {
	if errors.Is(err, context.Canceled) {
		return burnerr.Cancelled(stageName)
	}
	var exitErr *procexec.ExitError
	if errors.As(err, &exitErr) {
		stderr = append(stderr, exitErr.Stderr...)
	}
	for _, line := range stderr {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "joliet") &&
			(strings.Contains(lower, "too long") || strings.Contains(lower, "collision") || strings.Contains(lower, "failure")):
			return burnerr.Wrap(burnerr.KindImageJoliet, stageName, strings.TrimSpace(line), err)
		case strings.Contains(lower, "no space left"):
			return burnerr.Wrap(burnerr.KindDiskSpace, stageName, "output location is full", err)
		case strings.Contains(lower, "permission denied"):
			return burnerr.Wrap(burnerr.KindPermission, stageName, strings.TrimSpace(line), err)
		}
	}
	return burnerr.Wrap(burnerr.KindGeneral, stageName, "xorriso failed", err)
}
