package types

// IsValidStatusTransition validates processing status transitions.
//
// Valid transitions:
//
//	received   -> processing
//	processing -> processed | error
//	error      -> processing          (retry)
//	processed  -> processing          (memo updated, full re-run)
//	processing -> processing          (only when the previous run's lease is stale)
//
// staleLease reports whether the current processing run is considered abandoned.
// It is ignored for every other current status.
func IsValidStatusTransition(current, next ProcessingStatus, staleLease bool) bool {
	switch current {
	case StatusReceived:
		return next == StatusProcessing

	case StatusProcessing:
		if next == StatusProcessing {
			return staleLease
		}
		return next == StatusProcessed || next == StatusError

	case StatusError:
		return next == StatusProcessing

	case StatusProcessed:
		return next == StatusProcessing

	default:
		return false
	}
}

// StartableStatuses lists the statuses a pipeline run may start from without
// a stale lease. Storage backends use it to build compare-and-set updates.
var StartableStatuses = []ProcessingStatus{
	StatusReceived,
	StatusError,
	StatusProcessed,
}
