// Package checksum hashes the data flowing through a chain and verifies
// written tracks against a stored digest.
package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/pipeline"
	"discburn/internal/plugins"
	"discburn/internal/session"
)

const stageName = "checksum"

// NewHash returns the hash for typ.
func NewHash(typ session.ChecksumType) (hash.Hash, error) {
	switch typ {
	case session.ChecksumMD5:
		return md5.New(), nil
	case session.ChecksumSHA1:
		return sha1.New(), nil
	case session.ChecksumSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum type %s", typ)
	}
}

// Sum hashes everything r yields.
func Sum(ctx context.Context, typ session.ChecksumType, r io.Reader, progress func(int64)) (string, error) {
	h, err := NewHash(typ)
	if err != nil {
		return "", err
	}
	if _, err := plugins.Copy(ctx, h, r, progress); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Stage hashes the current track. In a normal run it passes the data on
// and records the digest on the track; in a checksum run it compares the
// digest with the one the track carries.
type Stage struct {
	plugins.Worker
}

func New() *Stage { return &Stage{} }

// Activate opts out when there is nothing to hash.
func (s *Stage) Activate(j *pipeline.Job) error {
	track := j.CurrentTrack()
	if track == nil || track.Checksum.Type == session.ChecksumNone {
		return burnerr.ErrNotRunning
	}
	if j.Action() == pipeline.JobActionSize {
		return burnerr.ErrNotRunning
	}
	return nil
}

func (s *Stage) Start(ctx context.Context, j *pipeline.Job) error {
	track := j.CurrentTrack()
	if track == nil {
		return burnerr.New(burnerr.KindGeneral, stageName, "no track to hash")
	}
	src, closeSrc, err := openSource(j, track)
	if err != nil {
		return err
	}

	switch j.Action() {
	case pipeline.JobActionChecksum:
		j.SetCurrentAction(pipeline.ActionChecksum, "", false)
		s.Go(ctx, j, func(ctx context.Context) error {
			defer closeSrc()
			return verify(ctx, j, track, src)
		})
	case pipeline.JobActionImage, pipeline.JobActionRecord:
		s.Go(ctx, j, func(ctx context.Context) error {
			defer closeSrc()
			return passThrough(ctx, j, track, src)
		})
	default:
		closeSrc()
		return burnerr.ErrNotSupported
	}
	return nil
}

func (s *Stage) Stop(*pipeline.Job) error {
	s.Worker.Stop()
	return nil
}

func openSource(j *pipeline.Job, track *session.Track) (io.Reader, func(), error) {
	if in := j.Input(); in != nil {
		return in, func() {}, nil
	}
	if track.Kind != session.KindImage {
		return nil, nil, burnerr.Newf(burnerr.KindGeneral, stageName, "cannot read a %s track directly", track.Kind)
	}
	f, err := os.Open(track.ImagePath)
	if err != nil {
		return nil, nil, burnerr.Wrap(burnerr.KindGeneral, stageName, "open image", err)
	}
	if info, err := f.Stat(); err == nil {
		j.SetOutputSize(0, info.Size())
	}
	return f, func() { _ = f.Close() }, nil
}

func passThrough(ctx context.Context, j *pipeline.Job, track *session.Track, src io.Reader) error {
	sink, err := plugins.OpenSink(j)
	if err != nil {
		return err
	}
	defer sink.Close()

	h, err := NewHash(track.Checksum.Type)
	if err != nil {
		return burnerr.Wrap(burnerr.KindGeneral, stageName, "create hash", err)
	}
	if _, err := plugins.Copy(ctx, io.MultiWriter(sink, h), src, j.SetWrittenTrack); err != nil {
		if ctx.Err() != nil {
			return burnerr.Cancelled(stageName)
		}
		return plugins.ClassifyFileError(stageName, "hash stream", err)
	}
	if err := sink.Close(); err != nil {
		return plugins.ClassifyFileError(stageName, "close output", err)
	}
	track.Checksum.Digest = hex.EncodeToString(h.Sum(nil))
	j.Logger().Info("checksum computed",
		logging.String(logging.FieldEventType, "checksum_computed"),
		logging.String("type", track.Checksum.Type.String()),
		logging.String("digest", track.Checksum.Digest),
	)
	return nil
}

func verify(ctx context.Context, j *pipeline.Job, track *session.Track, src io.Reader) error {
	digest, err := Sum(ctx, track.Checksum.Type, src, j.SetWrittenTrack)
	if err != nil {
		if ctx.Err() != nil {
			return burnerr.Cancelled(stageName)
		}
		return burnerr.Wrap(burnerr.KindGeneral, stageName, "read track", err)
	}
	logger := j.Logger()
	want := strings.ToLower(strings.TrimSpace(track.Checksum.Digest))
	if want == "" {
		track.Checksum.Digest = digest
		logger.Info("checksum computed",
			logging.String(logging.FieldEventType, "checksum_computed"),
			logging.String("digest", digest),
		)
		return nil
	}
	if digest != want {
		logging.WarnWithContext(logger, "checksum mismatch", "checksum_mismatch",
			logging.String("expected", want),
			logging.String("actual", digest),
			logging.String(logging.FieldErrorHint, "the written data is corrupt; burn again on another medium"),
		)
		return burnerr.Newf(burnerr.KindGeneral, stageName, "%s mismatch: expected %s, got %s", track.Checksum.Type, want, digest)
	}
	logger.Info("checksum verified",
		logging.String(logging.FieldEventType, "checksum_verified"),
		logging.String("digest", digest),
	)
	return nil
}
