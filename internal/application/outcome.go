package application

type Effect int

const (
	EffectStay Effect = iota
	EffectOpen
	EffectBack
	EffectReopen
	EffectClose
	EffectFail
)

func (e Effect) String() string {
	switch e {
	case EffectStay:
		return "stay"
	case EffectOpen:
		return "open"
	case EffectBack:
		return "back"
	case EffectReopen:
		return "reopen"
	case EffectClose:
		return "close"
	case EffectFail:
		return "fail"
	default:
		return "unknown"
	}
}

type FailureKind string

const (
	// FailValidation notifies the session and shows the same form again.
	FailValidation FailureKind = "validation"
	// FailRetry shows the same form again without a notice.
	FailRetry FailureKind = "retry"
	// FailAbort pops back to the previous screen.
	FailAbort FailureKind = "abort"
)

// Outcome is what a screen wants to happen after a response. The zero
// value is Stay.
type Outcome struct {
	effect  Effect
	next    Screen
	data    any
	kind    FailureKind
	err     error
	details []string
}

func Stay() Outcome {
	return Outcome{effect: EffectStay}
}

func Open(next Screen) Outcome {
	return Outcome{effect: EffectOpen, next: next}
}

func Back(data any) Outcome {
	return Outcome{effect: EffectBack, data: data}
}

func Reopen() Outcome {
	return Outcome{effect: EffectReopen}
}

// Close empties the session's stack and sends a closed notice. Workflow,
// mailbox, recovery and form state stay in the store so the session can
// pick them up when it opens a menu again; use Session.CancelAll or
// Session.CancelWorkflow to drop them.
func Close() Outcome {
	return Outcome{effect: EffectClose}
}

func Fail(kind FailureKind, err error) Outcome {
	return Outcome{effect: EffectFail, kind: kind, err: err}
}

// Invalid is a validation failure carrying one message per rejected field.
func Invalid(details ...string) Outcome {
	return Outcome{effect: EffectFail, kind: FailValidation, details: details}
}

func (o Outcome) Effect() Effect {
	return o.effect
}

func (o Outcome) Next() Screen {
	return o.next
}

func (o Outcome) Data() any {
	return o.data
}

func (o Outcome) Failure() FailureKind {
	return o.kind
}

func (o Outcome) Err() error {
	return o.err
}

func (o Outcome) Details() []string {
	return o.details
}
