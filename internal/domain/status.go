package domain

// WorkerState represents the lifecycle state of one pool worker
type WorkerState string

const (
	WorkerStateInitialization WorkerState = "INITIALIZATION"
	WorkerStateRunning        WorkerState = "RUNNING"
	WorkerStateCompleted      WorkerState = "COMPLETED"
	WorkerStateFailed         WorkerState = "FAILED"
)

// Terminal reports whether no further status follows this state
func (s WorkerState) Terminal() bool {
	return s == WorkerStateCompleted || s == WorkerStateFailed
}

// WorkerStatus is the progress message a pool worker posts to the watcher.
// Completed never decreases for a given pool.
type WorkerStatus struct {
	Pool      string
	Completed int
	Total     int
	State     WorkerState
}

// RunState represents the state machine of a calculation run
type RunState string

const (
	RunStateIdle         RunState = "IDLE"
	RunStateInitializing RunState = "INITIALIZING"
	RunStateRunning      RunState = "RUNNING"
	RunStateCompleted    RunState = "COMPLETED"
	RunStateFailed       RunState = "FAILED"
	RunStateCancelled    RunState = "CANCELLED"
)
