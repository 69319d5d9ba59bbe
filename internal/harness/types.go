package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Peer    string `json:"peer,omitempty"`
	Do      string `json:"do"`
	Outcome string `json:"outcome"`

	// Deltas is the number of deltas the step added across all replicas.
	Deltas int `json:"deltas"`

	// Detail carries the rejection reason for rejected edits.
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step met its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Bundle is the code generated from the first peer's program.
	Bundle string `json:"bundle"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
