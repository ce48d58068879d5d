// Package caps decides which stages can turn a session's input into its
// output and which burn flags the destination supports.
package caps

import (
	"log/slog"
	"os/exec"
	"strings"

	"discburn/internal/burnerr"
	"discburn/internal/config"
	"discburn/internal/deps"
	"discburn/internal/logging"
	"discburn/internal/media"
	"discburn/internal/pipeline"
	"discburn/internal/plugins/cdrecord"
	"discburn/internal/plugins/checksum"
	"discburn/internal/plugins/discreader"
	"discburn/internal/plugins/growisofs"
	"discburn/internal/plugins/imagefile"
	"discburn/internal/plugins/isoimage"
	"discburn/internal/procexec"
	"discburn/internal/session"
)

const opName = "caps"

// BurnCaps builds task chains from the tools configured on this host.
type BurnCaps struct {
	tools    config.Tools
	exec     procexec.Executor
	logger   *slog.Logger
	lookPath deps.LookPathFunc
}

// New returns caps running tools through exec.
func New(tools config.Tools, exec procexec.Executor, logger *slog.Logger) *BurnCaps {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BurnCaps{
		tools:    tools,
		exec:     exec,
		logger:   logging.NewComponentLogger(logger, "caps"),
		lookPath: lookPathDefault,
	}
}

var lookPathDefault deps.LookPathFunc = exec.LookPath

// require fails with MissingAppAndPlugin when a tool is not installed.
func (c *BurnCaps) require(name, command string) error {
	status := deps.CheckBinariesWith([]deps.Requirement{{Name: name, Command: command}}, c.lookPath)[0]
	if status.Available {
		return nil
	}
	return burnerr.Newf(burnerr.KindMissingAppAndPlugin, opName, "%s is required: %s", name, status.Detail)
}

func (c *BurnCaps) newTask(name string, s *session.Session, action pipeline.TaskAction, jobs ...*pipeline.Job) (*pipeline.Task, error) {
	task := pipeline.NewTask(name, s, action, c.logger)
	for _, j := range jobs {
		if err := task.AddItem(j); err != nil {
			return nil, burnerr.Wrap(burnerr.KindGeneral, opName, "build task "+name, err)
		}
	}
	return task, nil
}

func (c *BurnCaps) imager() (*pipeline.Job, error) {
	if err := c.require("xorriso", c.tools.Xorriso); err != nil {
		return nil, err
	}
	return pipeline.NewJob("isoimage", isoimage.New(c.tools.Xorriso, c.exec), session.ImageType(session.FormatBIN)), nil
}

func checksummer() *pipeline.Job {
	return pipeline.NewJob("checksum", checksum.New(), session.ImageType(session.FormatBIN))
}

// recorder returns the recording job for the medium in the burner.
func (c *BurnCaps) recorder(s *session.Session) (*pipeline.Job, error) {
	burner := s.Burner()
	if burner == nil {
		return nil, burnerr.New(burnerr.KindOutputNone, opName, "no burner selected")
	}
	status := media.StatusOf(burner.Medium())
	out := session.DiscType(status)
	switch {
	case status.Has(media.StatusCD):
		if err := c.require("wodim", c.tools.Wodim); err != nil {
			return nil, err
		}
		return pipeline.NewJob("cdrecord", cdrecord.New(c.tools.Wodim, c.exec), out), nil
	case status.Any(media.StatusDVD | media.StatusBD):
		if err := c.require("growisofs", c.tools.Growisofs); err != nil {
			return nil, err
		}
		return pipeline.NewJob("growisofs", growisofs.New(c.tools.Growisofs, c.tools.DVDRWFormat, c.exec), out), nil
	case status == media.StatusNone:
		return nil, burnerr.New(burnerr.KindMediumNone, opName, "no medium in burner")
	default:
		return nil, burnerr.Newf(burnerr.KindMediumInvalid, opName, "cannot record on %s", status)
	}
}

// eraser returns the blanking job for the medium in the burner.
func (c *BurnCaps) eraser(s *session.Session) (*pipeline.Job, error) {
	burner := s.Burner()
	if burner == nil {
		return nil, burnerr.New(burnerr.KindOutputNone, opName, "no burner selected")
	}
	status := media.StatusOf(burner.Medium())
	out := session.DiscType(status)
	switch {
	case status.Has(media.StatusCD):
		if err := c.require("wodim", c.tools.Wodim); err != nil {
			return nil, err
		}
		return pipeline.NewJob("cdrecord", cdrecord.New(c.tools.Wodim, c.exec), out), nil
	case status.Any(media.StatusDVD | media.StatusBD):
		if err := c.require("dvd+rw-format", c.tools.DVDRWFormat); err != nil {
			return nil, err
		}
		return pipeline.NewJob("dvd+rw-format", growisofs.New(c.tools.Growisofs, c.tools.DVDRWFormat, c.exec), out), nil
	case status == media.StatusNone:
		return nil, burnerr.New(burnerr.KindMediumNone, opName, "no medium in burner")
	default:
		return nil, burnerr.Newf(burnerr.KindMediumNotRewritable, opName, "cannot blank %s", status)
	}
}

func hasChecksum(s *session.Session) bool {
	for _, t := range s.Tracks() {
		if t.Checksum.Type != session.ChecksumNone {
			return true
		}
	}
	return false
}

// NewTasks returns the tasks that take the session input to its output.
func (c *BurnCaps) NewTasks(s *session.Session) ([]*pipeline.Task, error) {
	in := s.InputType()
	if in.IsNone() {
		return nil, burnerr.New(burnerr.KindGeneral, opName, "session has no tracks")
	}
	if s.IsDestFile() {
		task, err := c.imagingTask(s, in, s.OutputFormat())
		if err != nil {
			return nil, err
		}
		return []*pipeline.Task{task}, nil
	}

	var tasks []*pipeline.Task
	var recording []*pipeline.Job
	switch in.Kind {
	case session.KindData:
		if s.NoTmpFiles() {
			img, err := c.imager()
			if err != nil {
				return nil, err
			}
			recording = append(recording, img)
			if hasChecksum(s) {
				recording = append(recording, checksummer())
			}
		} else {
			task, err := c.imagingTask(s, in, session.FormatBIN)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	case session.KindDisc:
		if s.NoTmpFiles() {
			recording = append(recording, pipeline.NewJob("discreader", discreader.New(), session.ImageType(session.FormatBIN)))
		} else {
			task, err := c.imagingTask(s, in, session.FormatBIN)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	case session.KindImage:
		if in.Format != session.FormatBIN && in.Format != session.FormatCUE {
			return nil, burnerr.Newf(burnerr.KindGeneral, opName, "%s images cannot be recorded", in.Format)
		}
	case session.KindStream:
		status := media.StatusOf(s.Burner().Medium())
		if !status.Has(media.StatusCD) {
			return nil, burnerr.New(burnerr.KindMediumInvalid, opName, "audio can only be written to CDs")
		}
	}

	rec, err := c.recorder(s)
	if err != nil {
		return nil, err
	}
	if in.Kind == session.KindImage && in.Format == session.FormatCUE && rec.Name() != "cdrecord" {
		return nil, burnerr.New(burnerr.KindMediumInvalid, opName, "cue images can only be written to CDs")
	}

	if s.HasFlag(session.FlagBlankBeforeWrite) {
		blank, err := c.NewBlankingTask(s)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, blank)
	}

	recordTask, err := c.newTask("record", s, pipeline.TaskActionNormal, append(recording, rec)...)
	if err != nil {
		return nil, err
	}
	tasks = append(tasks, recordTask)

	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, t.Name())
	}
	c.logger.Debug("tasks built",
		logging.String("input", in.String()),
		logging.String("output", s.OutputType().String()),
		logging.String("tasks", strings.Join(names, ",")),
	)
	return tasks, nil
}

// imagingTask turns the input into an image of format.
func (c *BurnCaps) imagingTask(s *session.Session, in session.TrackType, format session.ImageFormat) (*pipeline.Task, error) {
	var jobs []*pipeline.Job
	switch in.Kind {
	case session.KindData:
		if format != session.FormatBIN {
			return nil, burnerr.Newf(burnerr.KindGeneral, opName, "data can only be imaged as ISO, not %s", format)
		}
		img, err := c.imager()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, img)
	case session.KindImage:
		if in.Format != format {
			return nil, burnerr.Newf(burnerr.KindGeneral, opName, "cannot convert %s images to %s", in.Format, format)
		}
		jobs = append(jobs, pipeline.NewJob("imagefile", imagefile.New(), session.ImageType(format)))
	case session.KindDisc:
		if format != session.FormatBIN {
			return nil, burnerr.Newf(burnerr.KindGeneral, opName, "discs can only be copied as ISO, not %s", format)
		}
		jobs = append(jobs, pipeline.NewJob("discreader", discreader.New(), session.ImageType(format)))
	default:
		return nil, burnerr.Newf(burnerr.KindGeneral, opName, "%s tracks cannot be written to an image", in)
	}
	if hasChecksum(s) {
		jobs = append(jobs, pipeline.NewJob("checksum", checksum.New(), session.ImageType(format)))
	}
	return c.newTask("image", s, pipeline.TaskActionNormal, jobs...)
}

// NewBlankingTask returns the erase task for the burner's medium.
func (c *BurnCaps) NewBlankingTask(s *session.Session) (*pipeline.Task, error) {
	job, err := c.eraser(s)
	if err != nil {
		return nil, err
	}
	return c.newTask("blank", s, pipeline.TaskActionErase, job)
}

// NewChecksummingTask returns a task hashing the session's single track and
// comparing it with the digest the track carries.
func (c *BurnCaps) NewChecksummingTask(s *session.Session) (*pipeline.Task, error) {
	tracks := s.Tracks()
	if len(tracks) != 1 {
		return nil, burnerr.Newf(burnerr.KindGeneral, opName, "checksumming needs exactly one track, got %d", len(tracks))
	}
	track := tracks[0]
	if track.Checksum.Type == session.ChecksumNone {
		return nil, burnerr.New(burnerr.KindGeneral, opName, "no checksum type set on the track")
	}
	switch track.Kind {
	case session.KindImage:
		return c.newTask("checksum", s, pipeline.TaskActionChecksum, checksummer())
	case session.KindDisc:
		return c.newTask("checksum", s, pipeline.TaskActionChecksum,
			pipeline.NewJob("discreader", discreader.New(), session.ImageType(session.FormatBIN)),
			checksummer(),
		)
	default:
		return nil, burnerr.Newf(burnerr.KindGeneral, opName, "%s tracks cannot be checksummed", track.Kind)
	}
}
