// Package imagefile copies an existing image, or the stream coming from the
// previous stage, into the next stage or the output file.
package imagefile

import (
	"context"
	"io"
	"os"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/pipeline"
	"discburn/internal/plugins"
	"discburn/internal/session"
)

const stageName = "imagefile"

// Stage is the in-process copier.
type Stage struct {
	plugins.Worker
}

func New() *Stage { return &Stage{} }

// Start copies the current image track, or the job input when the stage is
// fed by another one.
func (s *Stage) Start(ctx context.Context, j *pipeline.Job) error {
	switch j.Action() {
	case pipeline.JobActionSize:
		track := j.CurrentTrack()
		if j.Input() != nil || track == nil || track.Kind != session.KindImage {
			return burnerr.ErrNotSupported
		}
		blocks, bytes := track.Size()
		if bytes <= 0 {
			return burnerr.Newf(burnerr.KindGeneral, stageName, "image %s is empty or missing", track.ImagePath)
		}
		j.SetOutputSize(blocks, bytes)
		return burnerr.ErrNotRunning
	case pipeline.JobActionImage:
	default:
		return burnerr.ErrNotSupported
	}

	src, size, closeSrc, err := openSource(j)
	if err != nil {
		return err
	}
	if size > 0 {
		j.SetOutputSize(0, size)
	}
	j.SetCurrentAction(pipeline.ActionFileCopy, "", false)

	s.Go(ctx, j, func(ctx context.Context) error {
		defer closeSrc()
		sink, err := plugins.OpenSink(j)
		if err != nil {
			return err
		}
		defer sink.Close()

		written, err := plugins.Copy(ctx, sink, src, j.SetWrittenTrack)
		if err != nil {
			if ctx.Err() != nil {
				return burnerr.Cancelled(stageName)
			}
			return plugins.ClassifyFileError(stageName, "copy image", err)
		}
		if err := sink.Close(); err != nil {
			return plugins.ClassifyFileError(stageName, "close output", err)
		}
		j.Logger().Info("image copied",
			logging.String(logging.FieldEventType, "image_copied"),
			logging.Int64("bytes", written),
			logging.String("output", sink.Path()),
		)
		if size <= 0 {
			j.SetOutputSize(0, written)
		}
		return nil
	})
	return nil
}

func (s *Stage) Stop(*pipeline.Job) error {
	s.Worker.Stop()
	return nil
}

func openSource(j *pipeline.Job) (io.Reader, int64, func(), error) {
	if in := j.Input(); in != nil {
		return in, 0, func() {}, nil
	}
	track := j.CurrentTrack()
	if track == nil || track.Kind != session.KindImage {
		return nil, 0, nil, burnerr.New(burnerr.KindGeneral, stageName, "no image to copy")
	}
	f, err := os.Open(track.ImagePath)
	if err != nil {
		return nil, 0, nil, burnerr.Wrap(burnerr.KindGeneral, stageName, "open image", err)
	}
	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	return f, size, func() { _ = f.Close() }, nil
}
