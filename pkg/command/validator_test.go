package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdeck/promptdeck/pkg/errors"
	"github.com/promptdeck/promptdeck/pkg/protocol"
)

func frame(name string, value interface{}) protocol.CommandFrame {
	f := protocol.CommandFrame{Command: name}
	if value != nil {
		raw, _ := json.Marshal(value)
		f.Value = raw
	}
	return f
}

func TestValidate_ClampCorrectness(t *testing.T) {
	tests := []struct {
		name    string
		command string
		value   float64
		want    float64
	}{
		{"speed below min", protocol.CmdSetSpeed, -3, 0.1},
		{"speed above max", protocol.CmdSetSpeed, 999, 10},
		{"speed in range", protocol.CmdSetSpeed, 4.5, 4.5},
		{"speed exactly min", protocol.CmdSetSpeed, 0.1, 0.1},
		{"speed exactly max", protocol.CmdSetSpeed, 10, 10},
		{"font size below min", protocol.CmdSetFontSize, 1, 8},
		{"font size above max", protocol.CmdSetFontSize, 4000, 120},
		{"countdown negative", protocol.CmdSetCountdown, -10, 0},
		{"countdown above max", protocol.CmdSetCountdown, 99999, 3600},
		{"opacity above max", protocol.CmdSetOpacity, 2, 1},
		{"padding below min", protocol.CmdSetPadding, -1, 0},
		{"scroll-to above max", protocol.CmdScrollTo, 150, 100},
		{"line height below min", protocol.CmdSetLineHeight, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Validate(frame(tt.command, tt.value))
			require.NoError(t, err)
			assert.True(t, cmd.HasValue)
			assert.Equal(t, tt.want, cmd.Number)
		})
	}
}

func TestValidate_Idempotence(t *testing.T) {
	first, err := Validate(frame(protocol.CmdSetSpeed, 999.0))
	require.NoError(t, err)

	second, err := Validate(frame(protocol.CmdSetSpeed, first.Number))
	require.NoError(t, err)
	assert.Equal(t, first.Number, second.Number)

	strFirst, err := Validate(frame(protocol.CmdJumpToHeader, "<b>Intro</b>  "))
	require.NoError(t, err)

	strSecond, err := Validate(frame(protocol.CmdJumpToHeader, strFirst.Str))
	require.NoError(t, err)
	assert.Equal(t, strFirst.Str, strSecond.Str)
}

func TestValidate_UnknownCommand(t *testing.T) {
	_, err := Validate(frame("drop-table", nil))
	require.Error(t, err)
	assert.IsType(t, &errors.UnknownCommand{}, err)

	_, err = Validate(frame("", nil))
	require.Error(t, err)
}

func TestValidate_ValueRequirements(t *testing.T) {
	_, err := Validate(frame(protocol.CmdSetSpeed, nil))
	assert.IsType(t, &errors.MissingValue{}, err)

	_, err = Validate(frame(protocol.CmdSetSpeed, "fast"))
	assert.IsType(t, &errors.WrongValueType{}, err)

	_, err = Validate(frame(protocol.CmdJumpToHeader, 42))
	assert.IsType(t, &errors.WrongValueType{}, err)

	// A stray value on a parameterless command is dropped, not an error.
	cmd, err := Validate(frame(protocol.CmdTogglePlay, 7))
	require.NoError(t, err)
	assert.False(t, cmd.HasValue)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"strips markup", `<script>alert("x")</script>`, 64, "scriptalert(x)/script"},
		{"strips control chars", "intro\x00\x1b[31m", 64, "intro[31m"},
		{"strips quotes and backticks", "it's `done`", 64, "its done"},
		{"truncates", "abcdefgh", 4, "abcd"},
		{"plain text untouched", "Section Two", 64, "Section Two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in, tt.limit))
		})
	}
}

func TestNames_CoversVocabulary(t *testing.T) {
	names := Names()
	assert.Contains(t, names, protocol.CmdPlay)
	assert.Contains(t, names, protocol.CmdGetState)
	assert.Contains(t, names, protocol.CmdAuth)
	assert.GreaterOrEqual(t, len(names), 30)
}
