package scheduler

// queueClosedError signals a submit attempt after the scheduler began
// shutting down.
type queueClosedError struct{}

func (queueClosedError) Error() string { return "task queue closed" }

// ErrQueueClosed constructs a queueClosedError.
func ErrQueueClosed() error { return queueClosedError{} }

// IsQueueClosed reports whether err indicates the queue no longer accepts
// submissions.
func IsQueueClosed(err error) bool {
	_, ok := err.(queueClosedError)
	return ok
}

// invalidTaskError signals a submission that failed validation.
type invalidTaskError struct{ reason string }

func (e invalidTaskError) Error() string { return "invalid task: " + e.reason }

// ErrInvalidTask constructs an invalidTaskError.
func ErrInvalidTask(reason string) error { return invalidTaskError{reason: reason} }

// IsInvalidTask reports whether err indicates a rejected submission payload.
func IsInvalidTask(err error) bool {
	_, ok := err.(invalidTaskError)
	return ok
}

// unknownModelError signals a submission naming a model absent from the
// registry. Caught at submit time so the queue never carries undispatchable
// work.
type unknownModelError struct{ id string }

func (e unknownModelError) Error() string { return "unknown model: " + e.id }

// ErrUnknownModel constructs an unknownModelError.
func ErrUnknownModel(id string) error { return unknownModelError{id: id} }

// IsUnknownModel reports whether err indicates a model id missing from the
// registry.
func IsUnknownModel(err error) bool {
	_, ok := err.(unknownModelError)
	return ok
}
