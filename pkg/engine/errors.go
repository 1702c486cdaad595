package engine

import "errors"

var (
	// ErrAlreadyActive is returned when the customer already has an active execution of the journey.
	ErrAlreadyActive = errors.New("customer already has an active execution of this journey")

	// ErrJourneyNotExecutable is returned when starting an execution of a journey that is not active.
	ErrJourneyNotExecutable = errors.New("journey is not executable")

	// ErrInvalidJourney is returned when a journey has no entry node to start from.
	ErrInvalidJourney = errors.New("invalid journey definition")

	// ErrNotRunning is returned when signalling an execution this engine does not run.
	ErrNotRunning = errors.New("execution is not running on this engine")

	// ErrNotAwaitingApproval is returned when approving an execution that is not parked on an approval.
	ErrNotAwaitingApproval = errors.New("execution is not awaiting approval")

	// ErrNotActive is returned when cancelling an execution that already reached a terminal status.
	ErrNotActive = errors.New("execution is not active")

	// errFinished stops the run loop after a terminal transition.
	errFinished = errors.New("execution finished")

	// errSuperseded stops the run loop when another writer already finished the execution.
	errSuperseded = errors.New("execution finished elsewhere")
)

// cancelled stops the run loop when a cancel request wins a suspension.
type cancelled struct {
	reason string
}

func (c *cancelled) Error() string {
	return "execution cancelled: " + c.reason
}
