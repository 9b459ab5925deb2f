package application

import (
	"sync"

	"github.com/bnema/formflow/internal/domain"
	"github.com/bnema/formflow/internal/ports"
	"go.uber.org/atomic"
)

// StackEntry pairs a frame with the screen it shows.
type StackEntry struct {
	Frame  domain.Frame
	Screen Screen
}

func (e StackEntry) IsZero() bool {
	return e.Frame.IsZero()
}

type navSession struct {
	mu    sync.Mutex
	stack domain.Stack[StackEntry]
	// dead is set once the session left the registry; a caller holding a
	// stale pointer must look it up again.
	dead bool
}

// Navigator keeps one screen stack per session. Sessions whose stack runs
// empty are dropped from the registry.
type Navigator struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]*navSession
	seq      *atomic.Uint64
	clock    ports.Clock
}

func NewNavigator(clock ports.Clock) *Navigator {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Navigator{
		sessions: make(map[domain.SessionID]*navSession),
		seq:      atomic.NewUint64(0),
		clock:    clock,
	}
}

// Push puts screen on top of the session's stack and returns its frame.
func (n *Navigator) Push(id domain.SessionID, screen Screen) domain.Frame {
	entry := StackEntry{Screen: screen}
	n.withSession(id, true, func(sess *navSession) {
		entry.Frame = n.newFrame(screen)
		sess.stack.Push(entry)
	})
	return entry.Frame
}

// Pop removes the top frame. A non-zero seq pops only if that frame is
// still on top, so stale timers and responses cannot pop someone else's
// frame. top is zero when the stack is now empty.
func (n *Navigator) Pop(id domain.SessionID, seq uint64) (popped, top StackEntry, ok bool) {
	n.withSession(id, false, func(sess *navSession) {
		current, has := sess.stack.Peek()
		if !has || (seq != 0 && current.Frame.Seq != seq) {
			return
		}
		popped, ok = sess.stack.Pop()
		top, _ = sess.stack.Peek()
	})
	return popped, top, ok
}

// Replace swaps the top frame for a fresh frame showing screen, provided
// the frame seq is still on top.
func (n *Navigator) Replace(id domain.SessionID, seq uint64, screen Screen) (StackEntry, bool) {
	var (
		entry    StackEntry
		replaced bool
	)
	n.withSession(id, false, func(sess *navSession) {
		current, has := sess.stack.Peek()
		if !has || current.Frame.Seq != seq {
			return
		}
		entry = StackEntry{Frame: n.newFrame(screen), Screen: screen}
		replaced = sess.stack.Replace(entry)
	})
	return entry, replaced
}

// Clear empties the session's stack and returns how many frames it held.
func (n *Navigator) Clear(id domain.SessionID) int {
	cleared := 0
	n.withSession(id, false, func(sess *navSession) {
		cleared = sess.stack.Clear()
	})
	return cleared
}

func (n *Navigator) Top(id domain.SessionID) (StackEntry, bool) {
	var (
		top StackEntry
		ok  bool
	)
	n.withSession(id, false, func(sess *navSession) {
		top, ok = sess.stack.Peek()
	})
	return top, ok
}

// IsTop reports whether seq is the frame currently on top.
func (n *Navigator) IsTop(id domain.SessionID, seq uint64) bool {
	top, ok := n.Top(id)
	return ok && top.Frame.Seq == seq
}

func (n *Navigator) Depth(id domain.SessionID) int {
	depth := 0
	n.withSession(id, false, func(sess *navSession) {
		depth = sess.stack.Len()
	})
	return depth
}

// Frames lists the session's frames bottom to top.
func (n *Navigator) Frames(id domain.SessionID) []domain.Frame {
	var frames []domain.Frame
	n.withSession(id, false, func(sess *navSession) {
		for _, entry := range sess.stack.Entries() {
			frames = append(frames, entry.Frame)
		}
	})
	return frames
}

// Sessions counts sessions with at least one frame.
func (n *Navigator) Sessions() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sessions)
}

func (n *Navigator) newFrame(screen Screen) domain.Frame {
	return domain.Frame{
		Seq:       n.seq.Inc(),
		Screen:    screen.Name(),
		EnteredAt: n.clock.Now(),
	}
}

// withSession runs fn under the session lock. With create unset, fn is
// skipped for unknown sessions. An empty stack afterwards removes the
// session from the registry.
func (n *Navigator) withSession(id domain.SessionID, create bool, fn func(*navSession)) {
	for {
		n.mu.Lock()
		sess, ok := n.sessions[id]
		if !ok {
			if !create {
				n.mu.Unlock()
				return
			}
			sess = &navSession{}
			n.sessions[id] = sess
		}
		n.mu.Unlock()

		sess.mu.Lock()
		if sess.dead {
			sess.mu.Unlock()
			continue
		}

		fn(sess)

		if sess.stack.IsEmpty() {
			sess.dead = true
			n.mu.Lock()
			if n.sessions[id] == sess {
				delete(n.sessions, id)
			}
			n.mu.Unlock()
		}
		sess.mu.Unlock()
		return
	}
}
