package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"discburn/internal/burn"
	"discburn/internal/burnerr"
	"discburn/internal/logging"
	"discburn/internal/media"
	"discburn/internal/pipeline"
	"discburn/internal/session"
)

const (
	progressUnits      = 1000
	mediaPollInterval  = 2 * time.Second
	progressLogPercent = 10
)

// consoleInteraction answers controller prompts on the terminal. Without a
// terminal it accepts warnings only when assumeYes is set and gives up on
// anything that needs a human.
type consoleInteraction struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
	assumeYes   bool
	showBar     bool
	watcher     *media.Watcher
	logger      *slog.Logger

	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	label   string
	sampler *logging.ProgressSampler
}

func newConsoleInteraction(in io.Reader, out io.Writer, assumeYes bool, watcher *media.Watcher, logger *slog.Logger) *consoleInteraction {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &consoleInteraction{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: isTerminal(in),
		assumeYes:   assumeYes,
		showBar:     isTerminal(out),
		watcher:     watcher,
		logger:      logger,
		sampler:     logging.NewProgressSampler(progressLogPercent),
	}
}

func isTerminal(v any) bool {
	file, ok := v.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// readLine returns one trimmed line, or an error once ctx is done.
func (c *consoleInteraction) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		ch <- result{strings.TrimSpace(line), err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && r.line == "" {
			return "", r.err
		}
		return r.line, nil
	}
}

// prompt prints question and returns the first letter of the reply,
// lowercased, or def for an empty reply.
func (c *consoleInteraction) prompt(ctx context.Context, question, choices string, def byte) byte {
	c.clearBar()
	fmt.Fprintf(c.out, "%s [%s] ", question, choices)
	line, err := c.readLine(ctx)
	if err != nil {
		fmt.Fprintln(c.out)
		return 0
	}
	if line == "" {
		return def
	}
	return strings.ToLower(line)[0]
}

// confirm asks a yes/no question that defaults to no.
func (c *consoleInteraction) confirm(ctx context.Context, question string) burn.Answer {
	if c.assumeYes {
		fmt.Fprintln(c.out, question+" yes")
		return burn.AnswerOK
	}
	if !c.interactive {
		fmt.Fprintln(c.out, question+" (no terminal, pass --yes to accept)")
		return burn.AnswerCancel
	}
	if c.prompt(ctx, question, "y/N", 'n') == 'y' {
		return burn.AnswerOK
	}
	return burn.AnswerCancel
}

func (c *consoleInteraction) AskDisableJoliet(ctx context.Context) burn.Answer {
	return c.confirm(ctx, "Some file names are not valid for Joliet. Continue without Windows-compatible names?")
}

func (c *consoleInteraction) WarnDataLoss(ctx context.Context) burn.Answer {
	return c.confirm(ctx, "The disc holds data that will be erased. Continue?")
}

func (c *consoleInteraction) WarnPreviousSessionLoss(ctx context.Context) burn.Answer {
	question := "The disc holds a previous session that will be hidden by this one."
	if c.assumeYes {
		fmt.Fprintln(c.out, question+" Overwriting.")
		return burn.AnswerOK
	}
	if !c.interactive {
		fmt.Fprintln(c.out, question+" (no terminal, pass --yes or --merge)")
		return burn.AnswerCancel
	}
	switch c.prompt(ctx, question+" Merge, overwrite or cancel?", "m/o/C", 'c') {
	case 'm':
		return burn.AnswerRetry
	case 'o':
		return burn.AnswerOK
	default:
		return burn.AnswerCancel
	}
}

func (c *consoleInteraction) WarnAudioToAppendable(ctx context.Context) burn.Answer {
	return c.confirm(ctx, "Audio written to an appendable disc may not play in CD players. Continue?")
}

func (c *consoleInteraction) WarnRewritable(ctx context.Context) burn.Answer {
	return c.confirm(ctx, "Rewritable discs may not play in CD players. Continue?")
}

// InsertMedia waits for the user to swap discs. The wait ends once the
// drive was seen empty and then holds a medium, or holds a medium that
// already matches.
func (c *consoleInteraction) InsertMedia(ctx context.Context, drive media.Drive, required media.Status, reason burnerr.Kind) burn.Answer {
	if !c.interactive {
		fmt.Fprintf(c.out, "%s: %s; insert a suitable disc and run again\n", drive.DisplayName(), describeReason(reason))
		return burn.AnswerCancel
	}
	c.clearBar()
	fmt.Fprintf(c.out, "%s: %s.\nInsert a %s disc (Ctrl-C to cancel)...\n", drive.DisplayName(), describeReason(reason), required)

	sawEmpty := drive.Medium() == nil
	present := func() bool {
		if err := drive.Reprobe(ctx); err != nil {
			c.logger.Debug("reprobe while waiting for media", logging.Error(err))
		}
		m := drive.Medium()
		if m == nil {
			sawEmpty = true
			return false
		}
		return sawEmpty || m.Status.Has(required)
	}
	if err := c.watcher.WaitForMedia(ctx, drive.Device(), mediaPollInterval, present); err != nil {
		return burn.AnswerCancel
	}
	return burn.AnswerOK
}

func describeReason(kind burnerr.Kind) string {
	switch kind {
	case burnerr.KindMediumNone:
		return "no disc"
	case burnerr.KindMediumSpace:
		return "not enough space on the disc"
	case burnerr.KindMediumNotRewritable:
		return "the disc is not rewritable"
	case burnerr.KindMediumNoData:
		return "the disc holds no data"
	case burnerr.KindMediumNeedReloading:
		return "the disc must be reloaded"
	case burnerr.KindMediumBusy:
		return "the disc is in use"
	default:
		return "the disc cannot be used"
	}
}

func (c *consoleInteraction) LocationRequest(ctx context.Context, s *session.Session, cause error, temporary bool) burn.Answer {
	c.clearBar()
	fmt.Fprintf(c.out, "Cannot write: %v\n", cause)
	if !c.interactive {
		return burn.AnswerCancel
	}
	what := "output image path"
	if temporary {
		what = "directory for temporary files"
	}
	fmt.Fprintf(c.out, "Enter another %s (empty to cancel): ", what)
	line, err := c.readLine(ctx)
	if err != nil || line == "" {
		return burn.AnswerCancel
	}
	if temporary {
		s.SetTmpDir(line)
	} else {
		_, toc := s.OutputPath()
		s.SetImageOutput(s.OutputFormat(), line, toc)
	}
	return burn.AnswerRetry
}

func (c *consoleInteraction) DummySuccess(ctx context.Context) burn.Answer {
	c.clearBar()
	fmt.Fprintln(c.out, "Simulation succeeded, starting the real write.")
	return burn.AnswerOK
}

func (c *consoleInteraction) EjectFailure(_ context.Context, drive media.Drive) burn.Answer {
	c.clearBar()
	fmt.Fprintf(c.out, "%s could not be ejected; remove the disc manually.\n", drive.DisplayName())
	return burn.AnswerOK
}

func (c *consoleInteraction) BlankFailure(ctx context.Context) burn.Answer {
	if !c.interactive {
		return burn.AnswerCancel
	}
	if c.prompt(ctx, "Blanking failed. Try again?", "y/N", 'n') == 'y' {
		return burn.AnswerRetry
	}
	return burn.AnswerCancel
}

func (c *consoleInteraction) InstallMissing(_ context.Context, cause error) burn.Answer {
	c.clearBar()
	fmt.Fprintf(c.out, "%v\nRun `discburn status` to see which tools are missing.\n", cause)
	return burn.AnswerCancel
}

func (c *consoleInteraction) ProgressChanged(overall, task float64, remaining time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.showBar {
		if c.sampler.ShouldLog(overall*100, c.label) {
			line := fmt.Sprintf("%3.0f%% %s", overall*100, c.label)
			if remaining > 0 {
				line += fmt.Sprintf(" (%s left)", remaining.Round(time.Second))
			}
			fmt.Fprintln(c.out, line)
		}
		return
	}
	bar := c.ensureBar()
	_ = bar.Set64(int64(overall * progressUnits))
}

func (c *consoleInteraction) ActionChanged(action pipeline.Action, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if label == "" {
		label = action.String()
	}
	c.label = label
	if !c.showBar {
		return
	}
	if action == pipeline.ActionFinished {
		if c.bar != nil {
			_ = c.bar.Finish()
			fmt.Fprintln(c.out)
			c.bar = nil
		}
		return
	}
	c.ensureBar().Describe(label)
}

// ensureBar must be called with c.mu held.
func (c *consoleInteraction) ensureBar() *progressbar.ProgressBar {
	if c.bar == nil {
		c.bar = progressbar.NewOptions64(progressUnits,
			progressbar.OptionSetWriter(c.out),
			progressbar.OptionSetDescription(c.label),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	return c.bar
}

func (c *consoleInteraction) clearBar() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		_ = c.bar.Clear()
	}
}
