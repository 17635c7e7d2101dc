package graph

// Where a converging loop stands. Running moves to Converged after a round with no work on any
// host; a loop cut short skips Converged. The driver returns in Terminated, whatever the path;
// ExitReason tells which.
type DriverState uint8

const (
	Running DriverState = iota
	Converged
	Terminated
)

func (s DriverState) String() string {
	switch s {
	case Converged:
		return "converged"
	case Terminated:
		return "terminated"
	}
	return "running"
}

type ExitReason uint8

const (
	ExitConverged ExitReason = iota
	ExitMaxIterations
	ExitCancelled
)

func (r ExitReason) String() string {
	switch r {
	case ExitMaxIterations:
		return "max-iterations"
	case ExitCancelled:
		return "cancelled"
	}
	return "converged"
}

// Each host's vote at the end of a round. Work is the number of local updates the round made;
// Stop is set by a host whose context is done. Hosts vote together, so all of them leave the
// loop after the same round.
type roundVote struct {
	Work uint64
	Stop bool
}

func roundVotes() Monoid[roundVote] {
	return Monoid[roundVote]{Name: "vote", Combine: func(a, b roundVote) roundVote {
		return roundVote{Work: a.Work + b.Work, Stop: a.Stop || b.Stop}
	}}
}

// Decides the outcome of a round from the combined vote.
func (res *DriverResult) tally(v roundVote, maxIterations uint32) {
	res.Work += v.Work
	switch {
	case v.Work == 0:
		res.State, res.Exit = Converged, ExitConverged
	case v.Stop:
		res.State, res.Exit = Terminated, ExitCancelled
	case maxIterations > 0 && res.Iterations >= maxIterations:
		res.State, res.Exit = Terminated, ExitMaxIterations
	}
}
