package process

// RunResult is the outcome of one supervised agent run. Produced by Monitor
// and consumed immediately by the orchestrator; never persisted.
type RunResult struct {
	ExitCode   int
	Hung       bool
	TimedOut   bool
	NoOutput   bool
	Incomplete bool
	ContextPct float64
}

// Clean reports a normal exit with none of the failure flags set.
func (r RunResult) Clean() bool {
	return r.ExitCode == 0 && !r.Hung && !r.TimedOut && !r.NoOutput && !r.Incomplete
}
