package domain

type NoticeKind string

const (
	NoticeTimeout           NoticeKind = "timeout"
	NoticeLoading           NoticeKind = "loading"
	NoticeLoaded            NoticeKind = "loaded"
	NoticeLoadFailed        NoticeKind = "load_failed"
	NoticeValidation        NoticeKind = "validation"
	NoticeWorkflowCancelled NoticeKind = "workflow_cancelled"
	NoticeClosed            NoticeKind = "closed"
	NoticeUnavailable       NoticeKind = "unavailable"
)

// Notice is an out-of-band message to a session. Text is left to the
// transport; Message and Details carry whatever the emitter already has.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Seconds int        `json:"seconds,omitempty"`
	Message string     `json:"message,omitempty"`
	Details []string   `json:"details,omitempty"`
}
