package harness

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
)

// CaseOK is the completion case of a command that succeeded. Failed
// commands complete with their error code.
const CaseOK = "ok"

// TraceEvent is one entry in a scenario trace.
type TraceEvent struct {
	Type    string         `json:"type"`
	Command string         `json:"command,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Case    string         `json:"case,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Seq     int64          `json:"seq"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every invocation and completion in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expect and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Signals are the reminder signals delivered during the run.
	Signals []string `json:"signals,omitempty"`

	seq int64
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace appends an invocation.
func (r *Result) AddInvocationTrace(command string, args map[string]any) {
	r.seq++
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventInvocation,
		Command: command,
		Args:    args,
		Seq:     r.seq,
	})
}

// AddCompletionTrace appends a completion.
func (r *Result) AddCompletionTrace(outputCase string, result map[string]any) {
	r.seq++
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventCompletion,
		Case:   outputCase,
		Result: result,
		Seq:    r.seq,
	})
}
