package scheduler

// ExitStatus selects which terminal state of a dependency satisfies a wait condition.
type ExitStatus int

const (
	// CompletedSuccess waits for dependencies that exited with code zero.
	CompletedSuccess ExitStatus = iota
	// CompletedFailed waits for dependencies that failed.
	CompletedFailed
	// CompletedAny waits for dependencies to end regardless of outcome.
	CompletedAny
)

func (s ExitStatus) String() string {
	switch s {
	case CompletedSuccess:
		return "success"
	case CompletedFailed:
		return "failed"
	default:
		return "any"
	}
}

// lsfCondition maps to LSF dependency functions.
func (s ExitStatus) lsfCondition() string {
	switch s {
	case CompletedSuccess:
		return "done"
	case CompletedFailed:
		return "exit"
	default:
		return "ended"
	}
}

// dependCondition maps to the PBS and SLURM dependency types.
func (s ExitStatus) dependCondition() string {
	switch s {
	case CompletedSuccess:
		return "afterok"
	case CompletedFailed:
		return "afternotok"
	default:
		return "afterany"
	}
}
