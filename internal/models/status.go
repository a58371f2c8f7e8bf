package models

// TaskStatus is the lifecycle status of a matching task. Transitions follow
// the edges in statusEdges only; the supervisor owns the normal path and the
// housekeeper owns the out-of-band recovery path.
type TaskStatus string

const (
	StatusInit        TaskStatus = "init"        // task created, not started
	StatusPreparing   TaskStatus = "preparing"   // start requested, validation running
	StatusLaunching   TaskStatus = "launching"   // worker creation in progress
	StatusReady       TaskStatus = "ready"       // realtime worker serving matches
	StatusTerminating TaskStatus = "terminating" // terminal condition being written back
	StatusComplete    TaskStatus = "complete"    // batch run finished successfully
	StatusStopped     TaskStatus = "stopped"     // user-initiated stop
	StatusTerminated  TaskStatus = "terminated"  // TTL expired
	StatusFailed      TaskStatus = "failed"      // worker exited non-zero, non-OOM
	StatusOOMKilled   TaskStatus = "out-of-memory"
)

var statusEdges = map[TaskStatus][]TaskStatus{
	StatusInit:        {StatusPreparing},
	StatusPreparing:   {StatusLaunching, StatusFailed, StatusInit},
	StatusLaunching:   {StatusReady, StatusTerminating, StatusComplete, StatusStopped, StatusTerminated, StatusFailed, StatusOOMKilled},
	StatusReady:       {StatusTerminating, StatusStopped, StatusTerminated, StatusFailed, StatusOOMKilled},
	StatusTerminating: {StatusComplete, StatusStopped, StatusTerminated, StatusFailed, StatusOOMKilled},
	// re-run of a finished task goes back through LAUNCHING
	StatusComplete:   {StatusPreparing},
	StatusStopped:    {StatusPreparing},
	StatusTerminated: {StatusPreparing},
	StatusFailed:     {StatusPreparing},
	StatusOOMKilled:  {StatusPreparing},
}

// IsTerminal reports whether s is one of the terminal lifecycle states.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusStopped, StatusTerminated, StatusFailed, StatusOOMKilled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next follows a lifecycle edge.
// A no-op transition (s == next) is always allowed so that terminal writes
// stay idempotent.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s == next {
		return true
	}
	for _, to := range statusEdges[s] {
		if to == next {
			return true
		}
	}
	return false
}

// RunStatus is the status of one physical worker launch.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "Running"
	RunStatusCompleted RunStatus = "Completed"
	RunStatusOOMKilled RunStatus = "OOMKilled"
	RunStatusDeleted   RunStatus = "Deleted"
)

// IsTerminal reports whether the run reached a final state.
func (s RunStatus) IsTerminal() bool {
	return s != RunStatusRunning
}
