package pipeline

// TaskAction is what a whole task does. It is fixed for the task's lifetime.
type TaskAction int

const (
	TaskActionNone TaskAction = iota
	TaskActionErase
	TaskActionNormal
	TaskActionChecksum
)

func (a TaskAction) String() string {
	switch a {
	case TaskActionErase:
		return "erase"
	case TaskActionNormal:
		return "normal"
	case TaskActionChecksum:
		return "checksum"
	default:
		return "none"
	}
}

// JobAction is what a single job is asked to do during one run, derived from
// the task action, the run mode and the job's output type.
type JobAction int

const (
	JobActionNone JobAction = iota
	// JobActionSize only computes the eventual output size.
	JobActionSize
	JobActionImage
	JobActionRecord
	JobActionErase
	JobActionChecksum
)

func (a JobAction) String() string {
	switch a {
	case JobActionSize:
		return "size"
	case JobActionImage:
		return "image"
	case JobActionRecord:
		return "record"
	case JobActionErase:
		return "erase"
	case JobActionChecksum:
		return "checksum"
	default:
		return "none"
	}
}

// Action is the human-readable stage of a burn, reported through
// action-changed events.
type Action int

const (
	ActionNone Action = iota
	ActionGettingSize
	ActionCreatingImage
	ActionRecording
	ActionBlanking
	ActionChecksum
	ActionDriveCopy
	ActionFileCopy
	ActionAnalysing
	ActionTranscoding
	ActionPreparing
	ActionLeadin
	ActionFixating
	ActionLeadout
	ActionStartRecording
	ActionFinished
	ActionEjecting
)

var actionStrings = map[Action]string{
	ActionNone:           "",
	ActionGettingSize:    "Getting size",
	ActionCreatingImage:  "Creating image",
	ActionRecording:      "Writing",
	ActionBlanking:       "Blanking",
	ActionChecksum:       "Creating checksum",
	ActionDriveCopy:      "Copying disc",
	ActionFileCopy:       "Copying file",
	ActionAnalysing:      "Analysing audio files",
	ActionTranscoding:    "Transcoding songs",
	ActionPreparing:      "Preparing to write",
	ActionLeadin:         "Writing leadin",
	ActionFixating:       "Fixating",
	ActionLeadout:        "Writing leadout",
	ActionStartRecording: "Starting to record",
	ActionFinished:       "Success",
	ActionEjecting:       "Ejecting medium",
}

// String returns the label shown to users for a.
func (a Action) String() string {
	return actionStrings[a]
}
