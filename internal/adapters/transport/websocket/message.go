package websocket

import (
	"github.com/bnema/formflow/internal/domain"
)

const (
	typeHello    = "hello"
	typeForm     = "form"
	typeNotice   = "notice"
	typeError    = "error"
	typeResponse = "response"
)

// outbound is every message the hub writes; unused fields are omitted.
type outbound struct {
	Type    string           `json:"type"`
	Session domain.SessionID `json:"session,omitempty"`
	Frame   uint64           `json:"frame,omitempty"`
	Form    *domain.Form     `json:"form,omitempty"`
	Notice  *domain.Notice   `json:"notice,omitempty"`
	Error   string           `json:"error,omitempty"`
}

type inbound struct {
	Type string `json:"type"`
	domain.Response
}
