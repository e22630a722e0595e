package app

// StopReason is logged when the app stops.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopCompleted  StopReason = "completed"
	StopFatalError StopReason = "fatal_error"
)
