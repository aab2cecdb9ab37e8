package harness

// TraceItem is the state of one item after a step.
type TraceItem struct {
	Name  string
	State string
	// Detail is the merge outcome, upload result or edit summary.
	Detail string
}

// TraceEvent is one executed step.
type TraceEvent struct {
	Seq   int
	Step  string
	Items []TraceItem
	// Error is the contract code of an expected failure.
	Error string
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool

	// Trace has one event per step.
	Trace []TraceEvent

	// Errors lists assertion failures.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(step string, items []TraceItem, code string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:   len(r.Trace) + 1,
		Step:  step,
		Items: items,
		Error: code,
	})
}
