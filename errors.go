package scheduler

import "errors"

// Errors observable at the scheduler boundary. Business errors raised
// by task bodies are the caller's responsibility and never wrapped here.
var (
	// ErrShuttingDown is returned when a submission arrives after
	// Shutdown has begun draining the scheduler.
	ErrShuttingDown = errors.New("scheduler: shutting down")

	// ErrCancelled is returned by Delay when its context is cancelled
	// before the delay fires.
	ErrCancelled = errors.New("scheduler: delayed task cancelled")

	// ErrQueueFull names the reason a bounded submission is rejected.
	// No function in this package returns it: TrySubmitBounded reports
	// a full queue as a false return.
	ErrQueueFull = errors.New("scheduler: queue full")

	// ErrNotRunning names the state of a scheduler that has not been
	// started. No function in this package returns it: Yield and Delay
	// report a scheduler that is not running as ErrShuttingDown, and
	// DetachSelf does not check.
	ErrNotRunning = errors.New("scheduler: not running")

	// ErrNotInWorker is returned by DetachSelf when called from a
	// goroutine that is not currently executing a dispatched task.
	ErrNotInWorker = errors.New("scheduler: not running inside a worker")
)
