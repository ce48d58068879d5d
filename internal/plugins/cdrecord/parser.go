package cdrecord

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"discburn/internal/burnerr"
	"discburn/internal/media"
	"discburn/internal/pipeline"
	"discburn/internal/plugins"
)

const mebibyte = 1024 * 1024

var (
	trackProgressPattern = regexp.MustCompile(`^Track\s+(\d+):\s+(\d+)\s+(?:of\s+(\d+)\s+)?MB written`)
	speedPattern         = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)x\.?\s*$`)
)

// Parser turns wodim output into progress reports and remembers the first
// failure it recognises. It is safe to feed from the stdout and stderr
// scanners at once.
type Parser struct {
	mu     sync.Mutex
	report plugins.Reporter
	status media.Status

	track      int
	trackBase  int64
	trackTotal int64
	dangerous  bool
	failure    burnerr.Kind
	failed     bool
	failLine   string
}

// NewParser reports to r. status selects the base rate for speed figures.
func NewParser(r plugins.Reporter, status media.Status) *Parser {
	return &Parser{report: r, status: status}
}

// Line consumes one line of stdout or stderr.
func (p *Parser) Line(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if m := trackProgressPattern.FindStringSubmatch(line); m != nil {
		p.progress(m, line)
		return
	}
	lower := strings.ToLower(line)
	switch {
	case strings.HasPrefix(lower, "fixating..."):
		p.setDangerous()
		p.report.SetCurrentAction(pipeline.ActionFixating, "", false)
	case strings.HasPrefix(lower, "starting new track"):
		p.setDangerous()
		p.report.SetCurrentAction(pipeline.ActionRecording, "", false)
	case strings.HasPrefix(lower, "writing pregap") || strings.HasPrefix(lower, "sending cue sheet"):
		p.setDangerous()
		p.report.SetCurrentAction(pipeline.ActionLeadin, "", false)
	case strings.HasPrefix(lower, "performing opc"):
		p.report.SetCurrentAction(pipeline.ActionPreparing, "", false)
	case strings.HasPrefix(lower, "last chance to quit"):
		p.report.SetCurrentAction(pipeline.ActionStartRecording, "", false)
	case strings.HasPrefix(lower, "blanking"):
		p.setDangerous()
		p.report.SetCurrentAction(pipeline.ActionBlanking, "", false)
	default:
		p.classify(line, lower)
	}
}

func (p *Parser) progress(m []string, line string) {
	p.setDangerous()
	track, _ := strconv.Atoi(m[1])
	written, _ := strconv.ParseInt(m[2], 10, 64)
	var total int64
	if m[3] != "" {
		total, _ = strconv.ParseInt(m[3], 10, 64)
	}
	if track != p.track {
		if p.track != 0 {
			p.trackBase += p.trackTotal
		}
		p.track = track
	}
	p.trackTotal = total * mebibyte
	p.report.SetCurrentAction(pipeline.ActionRecording, "", false)
	p.report.SetWrittenTrack(p.trackBase + written*mebibyte)
	if s := speedPattern.FindStringSubmatch(line); s != nil {
		if speed, err := strconv.ParseFloat(s[1], 64); err == nil {
			p.report.SetRate(media.SpeedToRate(p.status, speed))
		}
	}
}

func (p *Parser) setDangerous() {
	if p.dangerous {
		return
	}
	p.dangerous = true
	p.report.SetDangerous(true)
}

// Done ends any uninterruptible section the output opened.
func (p *Parser) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dangerous {
		p.dangerous = false
		p.report.SetDangerous(false)
	}
}

func (p *Parser) classify(line, lower string) {
	if p.failed {
		return
	}
	var kind burnerr.Kind
	switch {
	case strings.Contains(lower, "underrun") || strings.Contains(lower, "input buffer error"):
		kind = burnerr.KindSlowDMA
	case strings.Contains(lower, "no disk") || strings.Contains(lower, "wrong disk"):
		kind = burnerr.KindMediumNone
	case strings.Contains(lower, "may not fit") || strings.Contains(lower, "does not fit") ||
		strings.Contains(lower, "not enough space"):
		kind = burnerr.KindMediumSpace
	case strings.Contains(lower, "device or resource busy"):
		kind = burnerr.KindDriveBusy
	case strings.Contains(lower, "cannot blank disk"):
		kind = burnerr.KindMediumNotRewritable
	default:
		return
	}
	p.failed = true
	p.failure = kind
	p.failLine = line
}

// Failure returns the kind recognised in the output, if any.
func (p *Parser) Failure() (burnerr.Kind, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failure, p.failLine, p.failed
}
