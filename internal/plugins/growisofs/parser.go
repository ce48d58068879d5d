package growisofs

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

var (
	// " 1671168/4700372992 ( 0.0%) @0.0x, remaining ??:?? RBU 100.0% UBU   2.4%"
	writeProgressPattern = regexp.MustCompile(`^\s*(\d+)/(\d+)\s*\(\s*([0-9.]+)%\)\s*@([0-9.]+)x`)
	// "* blanking 23.4%" or "* formatting 23.4%"
	formatProgressPattern = regexp.MustCompile(`^\*\s*(?:blanking|formatting)\s+([0-9.]+)%`)
)

// Parser turns growisofs and dvd+rw-format output into progress reports and
// remembers the first failure it recognises.
type Parser struct {
	mu     sync.Mutex
	report plugins.Reporter
	status media.Status

	dangerous bool
	failure   burnerr.Kind
	failed    bool
	failLine  string
}

func NewParser(r plugins.Reporter, status media.Status) *Parser {
	return &Parser{report: r, status: status}
}

// Line consumes one output line.
func (p *Parser) Line(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if m := writeProgressPattern.FindStringSubmatch(line); m != nil {
		p.setDangerous()
		written, _ := strconv.ParseInt(m[1], 10, 64)
		p.report.SetCurrentAction(pipeline.ActionRecording, "", false)
		p.report.SetWrittenTrack(written)
		if speed, err := strconv.ParseFloat(m[4], 64); err == nil && speed > 0 {
			p.report.SetRate(media.SpeedToRate(p.status, speed))
		}
		return
	}
	if m := formatProgressPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
		p.setDangerous()
		p.report.SetCurrentAction(pipeline.ActionBlanking, "", false)
		if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.report.SetProgress(pct / 100)
		}
		return
	}

	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "flushing cache"):
		p.report.SetCurrentAction(pipeline.ActionFixating, "", false)
	case strings.Contains(lower, "writing lead-out") || strings.Contains(lower, "closing track") ||
		strings.Contains(lower, "closing session") || strings.Contains(lower, "closing disc"):
		p.report.SetCurrentAction(pipeline.ActionLeadout, "", false)
	case strings.Contains(lower, "restarting dvd+rw format") || strings.Contains(lower, "reserving"):
		p.report.SetCurrentAction(pipeline.ActionPreparing, "", false)
	default:
		p.classify(line, lower)
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
	case strings.Contains(lower, "underrun"):
		kind = burnerr.KindSlowDMA
	case strings.Contains(lower, "no media mounted") || strings.Contains(lower, "media is not recognized") ||
		strings.Contains(lower, "medium not present"):
		kind = burnerr.KindMediumNone
	case strings.Contains(lower, "is larger than") || strings.Contains(lower, "exceeds") ||
		strings.Contains(lower, "no space left") ||
		(strings.Contains(lower, "blocks are free") && strings.Contains(lower, "to be written")):
		kind = burnerr.KindMediumSpace
	case strings.Contains(lower, "device or resource busy"):
		kind = burnerr.KindDriveBusy
	case strings.Contains(lower, "media is not appendable") || strings.Contains(lower, "already carries isofs"):
		kind = burnerr.KindMediumInvalid
	default:
		return
	}
	p.failed = true
	p.failure = kind
	p.failLine = strings.TrimSpace(line)
}

// Failure returns the kind recognised in the output, if any.
func (p *Parser) Failure() (burnerr.Kind, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failure, p.failLine, p.failed
}
