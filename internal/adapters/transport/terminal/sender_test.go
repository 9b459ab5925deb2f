package terminal

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/formflow/internal/adapters/render/form"
	"github.com/bnema/formflow/internal/domain"
	"github.com/bnema/formflow/internal/ports/mocks"
)

func TestSenderDeliverWritesRenderedForm(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)
	clock := mocks.NewMockClock(t)
	clock.EXPECT().Now().Return(now)

	var out bytes.Buffer
	var seen form.RenderOptions
	sender := NewSender(&out, "local", func(f *domain.Form, opts form.RenderOptions) (string, error) {
		seen = opts
		return "rendered " + f.Title, nil
	}, clock)

	delivery := domain.Delivery{Session: "local", Frame: 2, Form: &domain.Form{Title: "Menu"}}
	require.NoError(t, sender.Deliver(context.Background(), delivery))

	assert.Contains(t, out.String(), "rendered Menu")
	assert.Equal(t, uint64(2), seen.Frame)
	assert.Equal(t, now, sender.DeliveredAt())

	last, ok := sender.Last()
	require.True(t, ok)
	assert.Equal(t, delivery, last)
}

func TestSenderChangedClosesOnEveryWrite(t *testing.T) {
	sender := NewSender(&bytes.Buffer{}, "local", func(*domain.Form, form.RenderOptions) (string, error) { return "form", nil }, nil)
	ctx := context.Background()

	changed := sender.Changed()
	select {
	case <-changed:
		t.Fatal("changed before anything was written")
	default:
	}

	require.NoError(t, sender.Notify(ctx, "local", domain.Notice{Kind: domain.NoticeLoading}))
	assert.True(t, isClosed(changed))

	next := sender.Changed()
	assert.False(t, isClosed(next))
	require.NoError(t, sender.Deliver(ctx, domain.Delivery{Session: "local", Frame: 3, Form: &domain.Form{}}))
	assert.True(t, isClosed(next))

	last := sender.Changed()
	sender.Close()
	assert.True(t, isClosed(last))
	sender.Close()
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestSenderRejectsOtherSessions(t *testing.T) {
	sender := NewSender(&bytes.Buffer{}, "local", nil, nil)

	require.Error(t, sender.Deliver(context.Background(), domain.Delivery{Session: "remote", Form: &domain.Form{}}))
	require.Error(t, sender.Notify(context.Background(), "remote", domain.Notice{Kind: domain.NoticeClosed}))
	assert.False(t, sender.IsReachable("remote"))
	assert.True(t, sender.IsReachable("local"))
}

func TestSenderNotifyClosedForgetsForm(t *testing.T) {
	var out bytes.Buffer
	sender := NewSender(&out, "local", func(*domain.Form, form.RenderOptions) (string, error) { return "form", nil }, nil)
	ctx := context.Background()

	require.NoError(t, sender.Deliver(ctx, domain.Delivery{Session: "local", Frame: 1, Form: &domain.Form{}}))
	require.NoError(t, sender.Notify(ctx, "local", domain.Notice{Kind: domain.NoticeClosed}))

	_, ok := sender.Last()
	assert.False(t, ok)
	assert.Contains(t, out.String(), "Menu closed.")
}

func TestSenderClosed(t *testing.T) {
	sender := NewSender(&bytes.Buffer{}, "local", nil, nil)
	sender.Close()

	assert.False(t, sender.IsReachable("local"))
	assert.ErrorIs(t, sender.Deliver(context.Background(), domain.Delivery{Session: "local", Form: &domain.Form{}}), errTerminalClosed)
}

func TestParseInput(t *testing.T) {
	menu := domain.Delivery{Frame: 3, Form: &domain.Form{
		Kind:    domain.FormKindSimple,
		Buttons: []domain.Button{{ID: "a", Label: "A"}, {ID: "b", Label: "B"}},
	}}
	custom := domain.Delivery{Frame: 4, Form: &domain.Form{
		Kind: domain.FormKindCustom,
		Components: []domain.Component{
			{ID: "name", Kind: domain.ComponentInput},
			{ID: "public", Kind: domain.ComponentToggle},
			{ID: "color", Kind: domain.ComponentDropdown, Options: []string{"red", "green"}},
			{ID: "size", Kind: domain.ComponentSlider},
		},
	}}

	tests := []struct {
		name     string
		delivery domain.Delivery
		line     string
		want     domain.Response
		wantErr  bool
	}{
		{name: "button", delivery: menu, line: "2", want: domain.Response{Frame: 3, Button: "b"}},
		{name: "button out of range", delivery: menu, line: "3", wantErr: true},
		{name: "empty closes", delivery: menu, line: "  ", want: domain.Response{Frame: 3, Closed: true}},
		{name: "back closes", delivery: custom, line: "BACK", want: domain.Response{Frame: 4, Closed: true}},
		{
			name:     "custom values",
			delivery: custom,
			line:     "name=Oak public=true color=green size=2.5",
			want: domain.Response{Frame: 4, Values: map[string]any{
				"name": "Oak", "public": true, "color": 1, "size": 2.5,
			}},
		},
		{name: "unknown field", delivery: custom, line: "owner=me", wantErr: true},
		{name: "not a pair", delivery: custom, line: "Oak", wantErr: true},
		{name: "bad toggle", delivery: custom, line: "public=maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInput(tt.delivery, tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
