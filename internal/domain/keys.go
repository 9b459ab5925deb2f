package domain

import "strings"

const (
	keySeparator       = ":"
	timeoutRecoveryKey = "timeout_recovery"
	workflowKey        = "workflow"
	mailboxKey         = "mailbox"
)

// SessionPrefix is the prefix shared by every state key owned by id.
func SessionPrefix(id SessionID) string {
	return string(id) + keySeparator
}

func ScopedKey(id SessionID, parts ...string) string {
	return SessionPrefix(id) + strings.Join(parts, keySeparator)
}

func RecoveryKey(id SessionID) string {
	return ScopedKey(id, timeoutRecoveryKey)
}

func WorkflowKey(id SessionID) string {
	return ScopedKey(id, workflowKey)
}

func MailboxKey(id SessionID, step string) string {
	return ScopedKey(id, mailboxKey, step)
}

func ForwardStateKey(id SessionID, screen string) string {
	return ScopedKey(id, screen, "forward")
}

func LastStateKey(id SessionID, screen string) string {
	return ScopedKey(id, screen, "last")
}

func OwnsKey(id SessionID, key string) bool {
	return strings.HasPrefix(key, SessionPrefix(id))
}
