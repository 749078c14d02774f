package run

// State is the lifecycle of a run. Transitions are monotonic:
// Pending -> Prepared -> Succeeded | Failed. Terminal states are set
// exactly once by the scheduler.
type State int32

const (
	Pending State = iota
	Prepared
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Prepared:
		return "prepared"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}
