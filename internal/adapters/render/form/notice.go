package form

import (
	"fmt"
	"strings"

	"github.com/bnema/formflow/internal/domain"
)

// NoticeText is the human text shown for a notice.
func NoticeText(n domain.Notice) string {
	var text string
	switch n.Kind {
	case domain.NoticeTimeout:
		text = fmt.Sprintf("This menu closed after %d seconds without input.", n.Seconds)
	case domain.NoticeLoading:
		text = "Loading..."
	case domain.NoticeLoaded:
		text = "Loaded."
	case domain.NoticeLoadFailed:
		text = "This menu could not be loaded."
	case domain.NoticeValidation:
		text = "Please fix the following:"
	case domain.NoticeWorkflowCancelled:
		text = "The workflow was cancelled."
	case domain.NoticeClosed:
		text = "Menu closed."
	case domain.NoticeUnavailable:
		text = "This menu is unavailable right now."
	default:
		text = string(n.Kind)
	}

	if n.Message != "" && n.Kind != domain.NoticeLoadFailed {
		text += " " + n.Message
	}
	for _, detail := range n.Details {
		text += "\n  - " + detail
	}
	return text
}

// RenderNotice styles NoticeText for a terminal.
func RenderNotice(n domain.Notice) string {
	s := newStyles()
	text := NoticeText(n)
	switch n.Kind {
	case domain.NoticeValidation, domain.NoticeLoadFailed, domain.NoticeUnavailable, domain.NoticeTimeout:
		lines := strings.Split(text, "\n")
		lines[0] = s.warning.Render(lines[0])
		return strings.Join(lines, "\n")
	default:
		return s.info.Render(text)
	}
}
