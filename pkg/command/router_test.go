package command

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRouter_Dispatch(t *testing.T) {
	r := NewRouter(zap.NewNop())

	var got []Command
	r.Register("set-speed", func(cmd Command) error {
		got = append(got, cmd)
		return nil
	})

	r.Dispatch(Command{Name: "set-speed", Number: 4, HasValue: true})

	require.Len(t, got, 1)
	assert.Equal(t, 4.0, got[0].Number)
}

func TestRouter_UnregisteredIsNoOp(t *testing.T) {
	r := NewRouter(zap.NewNop())

	// A validated name with no handler must not panic or block the loop.
	assert.NotPanics(t, func() {
		r.Dispatch(Command{Name: "toggle-minimap"})
	})
	assert.False(t, r.Registered("toggle-minimap"))
}

func TestRouter_HandlerErrorIsContained(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register("play", func(Command) error {
		return fmt.Errorf("handler blew up")
	})

	assert.NotPanics(t, func() {
		r.Dispatch(Command{Name: "play"})
	})
}

func TestRouter_RegisterReplaces(t *testing.T) {
	r := NewRouter(zap.NewNop())

	calls := 0
	r.Register("pause", func(Command) error { calls += 10; return nil })
	r.Register("pause", func(Command) error { calls++; return nil })

	r.Dispatch(Command{Name: "pause"})
	assert.Equal(t, 1, calls)
	assert.True(t, r.Registered("pause"))
}
