package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType tags a log line with a stable machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint carries the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldErrorKind carries the burn error classification.
	FieldErrorKind = "error_kind"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDrive is the device path of the drive a line refers to.
	FieldDrive = "drive"
	// FieldTask names the pipeline task a line refers to.
	FieldTask = "task"
	// FieldJob names the pipeline stage a line refers to.
	FieldJob = "job"
	// FieldProgress is a 0..100 progress value.
	FieldProgress = "progress_percent"
	// FieldSessionID ties a line to the session log of one operation.
	FieldSessionID = "session_id"
)
