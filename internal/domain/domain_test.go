package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadMergeIsShallowAndDoesNotMutate(t *testing.T) {
	base := Payload{"key1": "value1", "key2": "value2"}

	merged := base.Merge(Payload{"key2": "updated", "key3": "new"})

	assert.Equal(t, Payload{"key1": "value1", "key2": "updated", "key3": "new"}, merged)
	assert.Equal(t, Payload{"key1": "value1", "key2": "value2"}, base)
}

func TestPayloadMergeOnNilBase(t *testing.T) {
	var base Payload

	assert.Equal(t, Payload{"name": "Oak"}, base.Merge(Payload{"name": "Oak"}))
}

func TestAsPayloadAcceptsDecodedMaps(t *testing.T) {
	p, ok := AsPayload(map[string]any{"x": 1})
	require.True(t, ok)
	assert.Equal(t, Payload{"x": 1}, p)

	_, ok = AsPayload("nope")
	assert.False(t, ok)
}

func TestStateEntryExpiry(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	entry := StateEntry{Key: "s1:k", Payload: Payload{"a": 1, "b": 2}, ExpiresAt: now.Add(time.Minute)}

	assert.False(t, entry.Expired(now))
	assert.False(t, entry.Expired(now.Add(time.Minute)))
	assert.True(t, entry.Expired(now.Add(time.Minute+time.Nanosecond)))

	meta := entry.Meta(now)
	assert.Equal(t, time.Minute, meta.ExpiresIn)
	assert.Equal(t, 2, meta.Size)
	assert.Equal(t, []string{"a", "b"}, meta.Fields)
}

func TestScopedKeys(t *testing.T) {
	id := SessionID("player-1")

	assert.Equal(t, "player-1:timeout_recovery", RecoveryKey(id))
	assert.Equal(t, "player-1:workflow", WorkflowKey(id))
	assert.Equal(t, "player-1:mailbox:picker", MailboxKey(id, "picker"))
	assert.Equal(t, "player-1:Menu:state", ScopedKey(id, "Menu", "state"))
	assert.True(t, OwnsKey(id, ForwardStateKey(id, "Menu")))
	assert.False(t, OwnsKey(id, "player-10:workflow"))
}

func TestSessionIDValid(t *testing.T) {
	tests := []struct {
		id   SessionID
		want bool
	}{
		{id: "a", want: true},
		{id: "3f2b6c1e-9a4d-4b1e-8c55-0d6f7a2e9b10", want: true},
		{id: "", want: false},
		{id: "  ", want: false},
		{id: "a:b", want: false},
		{id: "a:", want: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.Valid())
		})
	}
}

func TestStackDepthNeverGoesNegative(t *testing.T) {
	s := NewStack[int]()

	_, ok := s.Pop()
	assert.False(t, ok)
	assert.True(t, s.IsEmpty())

	s.Push(1)
	s.Push(2)
	top, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, 2, top)

	popped, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, popped)
	assert.Equal(t, 1, s.Len())

	assert.True(t, s.Replace(7))
	assert.Equal(t, []int{7}, s.Entries())
	assert.Equal(t, 1, s.Clear())
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Replace(1))
}

func TestStackMatchesPushPopArithmetic(t *testing.T) {
	ops := []bool{true, true, false, false, false, true, false, true, true, true, false}
	var s Stack[string]
	depth := 0

	for i, push := range ops {
		if push {
			s.Push(fmt.Sprintf("screen-%d", i))
			depth++
		} else {
			s.Pop()
			if depth > 0 {
				depth--
			}
		}
		require.Equal(t, depth, s.Len(), "after op %d", i)
	}
}

func TestFingerprintIncludesLocaleCanonically(t *testing.T) {
	a := NewFingerprint("GuildInfo").With("user1", 3).Locale("en_us")
	b := NewFingerprint("GuildInfo").With("user1", 3).Locale("EN-US")
	c := NewFingerprint("GuildInfo").With("user1", 4).Locale("en-US")

	assert.Equal(t, "GuildInfo:user1|3|en-US", a.String())
	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.String(), c.String())
	assert.Equal(t, "A:user1|null", NewFingerprint("A").With("user1", nil).String())
}

func TestFingerprintWithDoesNotAlias(t *testing.T) {
	base := NewFingerprint("Menu").With("a")
	left := base.With("b")
	right := base.With("c")

	assert.Equal(t, "Menu:a|b", left.String())
	assert.Equal(t, "Menu:a|c", right.String())
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("boom")
	buildErr := fmt.Errorf("open: %w", &BuildError{Fingerprint: "A:user1", Err: cause})
	deliveryErr := fmt.Errorf("open: %w", &DeliveryError{Session: "s1", Err: cause})

	assert.True(t, IsBuildFailure(buildErr))
	assert.False(t, IsDeliveryFailure(buildErr))
	assert.True(t, IsDeliveryFailure(deliveryErr))
	assert.False(t, IsBuildFailure(deliveryErr))
	assert.ErrorIs(t, buildErr, cause)
	assert.ErrorContains(t, buildErr, `build form "A:user1": boom`)
}
