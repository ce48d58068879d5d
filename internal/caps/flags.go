package caps

import (
	"strings"

	"discburn/internal/burnerr"
	"discburn/internal/media"
	"discburn/internal/session"
)

// flagsAlways are supported on every disc the recorders handle.
const flagsAlways = session.FlagEject | session.FlagNoGrace | session.FlagBurnProof |
	session.FlagDAO | session.FlagCheckSize | session.FlagNoTmpFiles

// BurnFlags reports the flags the destination supports and those it
// requires, given the flags already set on s.
func (c *BurnCaps) BurnFlags(s *session.Session) (supported, compulsory session.Flags, err error) {
	if s.IsDestFile() {
		return session.FlagCheckSize | session.FlagNoTmpFiles, session.FlagNone, nil
	}
	burner := s.Burner()
	if burner == nil {
		return session.FlagNone, session.FlagNone, burnerr.New(burnerr.KindOutputNone, opName, "no burner selected")
	}
	m := burner.Medium()
	status := media.StatusOf(m)
	in := s.InputType()
	current := s.Flags()

	supported = flagsAlways
	switch {
	case status.Has(media.StatusCD):
		supported |= session.FlagDummy | session.FlagOverburn | session.FlagMulti | session.FlagRaw
	case status.Has(media.StatusDVD):
		supported |= session.FlagMulti
		if m != nil && strings.HasPrefix(strings.ToUpper(m.Type), "DVD-R") {
			supported |= session.FlagDummy
		}
	case status.Has(media.StatusBD):
		supported |= session.FlagMulti
	}

	if status.Has(media.StatusAppendable) && !current.Has(session.FlagBlankBeforeWrite) {
		supported |= session.FlagAppend
		if in.Kind == session.KindData {
			supported |= session.FlagMerge
		}
	}
	if status.Has(media.StatusRewritable) && m.HasContent() && !current.Any(session.FlagAppend|session.FlagMerge) {
		supported |= session.FlagBlankBeforeWrite | session.FlagFastBlank
		if !m.CanBeWritten() {
			compulsory |= session.FlagBlankBeforeWrite
		}
	}

	if in.Kind == session.KindImage && in.Format == session.FormatCUE {
		supported &^= session.FlagRaw
		compulsory |= session.FlagDAO
	}
	if in.Kind == session.KindStream {
		supported &^= session.FlagMerge | session.FlagAppend
	}
	return supported, compulsory, nil
}

// BlankFlags reports the flags a blanking run supports.
func (c *BurnCaps) BlankFlags(s *session.Session) (supported, compulsory session.Flags, err error) {
	burner := s.Burner()
	if burner == nil {
		return session.FlagNone, session.FlagNone, burnerr.New(burnerr.KindOutputNone, opName, "no burner selected")
	}
	status := media.StatusOf(burner.Medium())
	supported = session.FlagEject | session.FlagNoGrace | session.FlagFastBlank
	if status.Has(media.StatusCD) {
		supported |= session.FlagDummy
	}
	return supported, session.FlagNone, nil
}

// SupportsOutput reports whether the input of s can be imaged as out.
func (c *BurnCaps) SupportsOutput(s *session.Session, out session.TrackType) bool {
	if out.Kind != session.KindImage {
		return false
	}
	in := s.InputType()
	switch in.Kind {
	case session.KindData, session.KindDisc:
		return out.Format == session.FormatBIN
	case session.KindImage:
		return in.Format == out.Format
	default:
		return false
	}
}

// RequiredMedia is the medium status to ask for when the burner holds an
// unusable disc.
func (c *BurnCaps) RequiredMedia(s *session.Session) media.Status {
	required := media.StatusWritable
	switch {
	case s.HasFlag(session.FlagBlankBeforeWrite):
		required |= media.StatusRewritable
	case s.AppendOrMerge():
		required |= media.StatusAppendable
	default:
		required |= media.StatusBlank
	}
	if s.InputType().Kind == session.KindStream {
		required |= media.StatusCD
	}
	return required
}

// CanBurn checks that the burner's medium can take the input.
func (c *BurnCaps) CanBurn(s *session.Session) error {
	burner := s.Burner()
	if burner == nil {
		return burnerr.New(burnerr.KindOutputNone, opName, "no burner selected")
	}
	m := burner.Medium()
	if m == nil {
		return burnerr.New(burnerr.KindMediumNone, opName, "no medium in burner")
	}
	status := m.Status
	if !status.Has(media.StatusWritable) {
		return burnerr.Newf(burnerr.KindMediumInvalid, opName, "%s is not writable", m.Type)
	}
	if !m.CanBeWritten() && !m.CanBeRewritten() {
		return burnerr.Newf(burnerr.KindMediumInvalid, opName, "%s is closed", m.Type)
	}
	if s.InputType().Kind == session.KindStream && !status.Has(media.StatusCD) {
		return burnerr.New(burnerr.KindMediumInvalid, opName, "audio can only be written to CDs")
	}
	if in := s.InputType(); in.Kind == session.KindImage && in.Format == session.FormatCUE && !status.Has(media.StatusCD) {
		return burnerr.New(burnerr.KindMediumInvalid, opName, "cue images can only be written to CDs")
	}
	return nil
}
