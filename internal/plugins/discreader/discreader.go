// Package discreader reads the data extent of a source disc, sector by
// sector, into the next stage or an image file.
package discreader

import (
	"context"
	"io"
	"os"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/media"
	"discburn/internal/pipeline"
	"discburn/internal/plugins"
	"discburn/internal/session"
)

const stageName = "discreader"

// Stage copies a disc track.
type Stage struct {
	plugins.Worker
}

func New() *Stage { return &Stage{} }

// Extent returns the byte range of track to read: the tagged start and end
// addresses when present, otherwise the used space of the medium from its
// start.
func Extent(track *session.Track) (offset, length int64) {
	if start, ok := track.TagInt64(session.TagStartAddress); ok {
		if end, ok := track.TagInt64(session.TagEndAddress); ok && end > start {
			return start * media.SectorSize, (end - start) * media.SectorSize
		}
	}
	if track.Drive != nil {
		return 0, track.Drive.Medium().UsedSpace()
	}
	return 0, 0
}

func (s *Stage) Start(ctx context.Context, j *pipeline.Job) error {
	track := j.CurrentTrack()
	if track == nil || track.Kind != session.KindDisc || track.Drive == nil {
		return burnerr.New(burnerr.KindGeneral, stageName, "current track is not a disc")
	}
	offset, length := Extent(track)
	if length <= 0 {
		return burnerr.New(burnerr.KindMediumNoData, stageName, "source disc holds no data")
	}

	switch j.Action() {
	case pipeline.JobActionSize:
		j.SetOutputSize(0, length)
		return burnerr.ErrNotRunning
	case pipeline.JobActionImage:
		j.SetCurrentAction(pipeline.ActionDriveCopy, "", false)
	case pipeline.JobActionChecksum:
		j.SetCurrentAction(pipeline.ActionChecksum, "", false)
	default:
		return burnerr.ErrNotSupported
	}
	j.SetOutputSize(0, length)

	device := track.Drive.Device()
	f, err := os.Open(device)
	if err != nil {
		return burnerr.Wrap(burnerr.KindMediumNeedReloading, stageName, "open "+device, err)
	}

	s.Go(ctx, j, func(ctx context.Context) error {
		defer f.Close()
		sink, err := plugins.OpenSink(j)
		if err != nil {
			return err
		}
		defer sink.Close()

		j.Logger().Info("reading disc",
			logging.String(logging.FieldEventType, "disc_read_start"),
			logging.String(logging.FieldDrive, device),
			logging.Int64("offset", offset),
			logging.Int64("length", length),
		)
		section := io.NewSectionReader(f, offset, length)
		written, err := plugins.Copy(ctx, sink, section, j.SetWrittenTrack)
		if err != nil {
			if ctx.Err() != nil {
				return burnerr.Cancelled(stageName)
			}
			if sink.Path() != "" {
				return plugins.ClassifyFileError(stageName, "copy disc", err)
			}
			return burnerr.Wrap(burnerr.KindGeneral, stageName, "copy disc", err)
		}
		if written < length {
			return burnerr.Newf(burnerr.KindMediumNeedReloading, stageName,
				"short read: %d of %d bytes", written, length)
		}
		if err := sink.Close(); err != nil {
			return plugins.ClassifyFileError(stageName, "close output", err)
		}
		return nil
	})
	return nil
}

func (s *Stage) Stop(*pipeline.Job) error {
	s.Worker.Stop()
	return nil
}
