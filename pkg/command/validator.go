// Package command implements the inbound command pipeline: a pure
// validator that turns raw decoded frames into typed, clamped commands,
// and a router that maps command names to registered handlers.
package command

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/promptdeck/promptdeck/pkg/errors"
	"github.com/promptdeck/promptdeck/pkg/protocol"
	"github.com/promptdeck/promptdeck/pkg/state"
)

// ValueKind describes what a command's value parameter must be.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueNumber
	ValueString
)

// Spec declares one recognized command: its name, the value it takes,
// and the numeric domain values get clamped into.
type Spec struct {
	Name   string
	Kind   ValueKind
	Min    float64
	Max    float64
	MaxLen int
}

// Command is a validated, sanitized instruction ready for dispatch.
// Numeric values are already clamped and string values sanitized, so
// handlers never see raw client input.
type Command struct {
	Name     string
	Number   float64
	Str      string
	HasValue bool
	ConnID   string
}

// specs is the static allow-list. Unknown names are rejected; the list
// itself is never echoed to clients.
var specs = map[string]Spec{
	protocol.CmdPlay:       {Name: protocol.CmdPlay},
	protocol.CmdPause:      {Name: protocol.CmdPause},
	protocol.CmdTogglePlay: {Name: protocol.CmdTogglePlay},
	protocol.CmdResetToTop: {Name: protocol.CmdResetToTop},

	protocol.CmdIncreaseSpeed:    {Name: protocol.CmdIncreaseSpeed},
	protocol.CmdDecreaseSpeed:    {Name: protocol.CmdDecreaseSpeed},
	protocol.CmdSetSpeed:         {Name: protocol.CmdSetSpeed, Kind: ValueNumber, Min: state.MinSpeed, Max: state.MaxSpeed},
	protocol.CmdCycleSpeedPreset: {Name: protocol.CmdCycleSpeedPreset},

	protocol.CmdNextSection:      {Name: protocol.CmdNextSection},
	protocol.CmdPreviousSection:  {Name: protocol.CmdPreviousSection},
	protocol.CmdJumpToHeader:     {Name: protocol.CmdJumpToHeader, Kind: ValueString, MaxLen: state.MaxHeaderIdLength},
	protocol.CmdJumpToHeaderByID: {Name: protocol.CmdJumpToHeaderByID, Kind: ValueString, MaxLen: state.MaxHeaderIdLength},
	protocol.CmdScrollBy:         {Name: protocol.CmdScrollBy, Kind: ValueNumber, Min: state.MinScrollStep, Max: state.MaxScrollStep},
	protocol.CmdScrollTo:         {Name: protocol.CmdScrollTo, Kind: ValueNumber, Min: 0, Max: 100},

	protocol.CmdToggleFullscreen: {Name: protocol.CmdToggleFullscreen},
	protocol.CmdToggleMinimap:    {Name: protocol.CmdToggleMinimap},
	protocol.CmdToggleNavigation: {Name: protocol.CmdToggleNavigation},
	protocol.CmdToggleFlip:       {Name: protocol.CmdToggleFlip},
	protocol.CmdTogglePin:        {Name: protocol.CmdTogglePin},
	protocol.CmdCycleColorScheme: {Name: protocol.CmdCycleColorScheme},
	protocol.CmdCycleFont:        {Name: protocol.CmdCycleFont},
	protocol.CmdSetFontSize:      {Name: protocol.CmdSetFontSize, Kind: ValueNumber, Min: state.MinFontSize, Max: state.MaxFontSize},
	protocol.CmdIncreaseFontSize: {Name: protocol.CmdIncreaseFontSize},
	protocol.CmdDecreaseFontSize: {Name: protocol.CmdDecreaseFontSize},
	protocol.CmdSetPadding:       {Name: protocol.CmdSetPadding, Kind: ValueNumber, Min: state.MinPadding, Max: state.MaxPadding},
	protocol.CmdSetOpacity:       {Name: protocol.CmdSetOpacity, Kind: ValueNumber, Min: state.MinOpacity, Max: state.MaxOpacity},
	protocol.CmdSetLineHeight:    {Name: protocol.CmdSetLineHeight, Kind: ValueNumber, Min: state.MinLineHeight, Max: state.MaxLineHeight},

	protocol.CmdSetCountdown:      {Name: protocol.CmdSetCountdown, Kind: ValueNumber, Min: state.MinCountdown, Max: state.MaxCountdown},
	protocol.CmdStartCountdown:    {Name: protocol.CmdStartCountdown},
	protocol.CmdStopCountdown:     {Name: protocol.CmdStopCountdown},
	protocol.CmdIncreaseCountdown: {Name: protocol.CmdIncreaseCountdown},
	protocol.CmdDecreaseCountdown: {Name: protocol.CmdDecreaseCountdown},

	protocol.CmdGetState: {Name: protocol.CmdGetState},
	protocol.CmdAuth:     {Name: protocol.CmdAuth, Kind: ValueString, MaxLen: 512},
}

// Names returns the full recognized vocabulary, for handler-coverage
// checks at startup.
func Names() []string {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	return names
}

// Validate checks a decoded frame against the allow-list, clamps numeric
// values and sanitizes string values. It never mutates application state
// and is idempotent: validating an already-clamped command yields the
// same command.
func Validate(frame protocol.CommandFrame) (Command, error) {
	spec, ok := specs[frame.Command]
	if !ok {
		return Command{}, &errors.UnknownCommand{Name: frame.Command}
	}

	cmd := Command{Name: spec.Name}

	switch spec.Kind {
	case ValueNone:
		// A stray value on a parameterless command is dropped, not an error.
		return cmd, nil

	case ValueNumber:
		if len(frame.Value) == 0 {
			return Command{}, &errors.MissingValue{Command: spec.Name}
		}
		var n float64
		if err := json.Unmarshal(frame.Value, &n); err != nil {
			return Command{}, &errors.WrongValueType{Command: spec.Name, Expected: "numeric"}
		}
		cmd.Number = clamp(n, spec.Min, spec.Max)
		cmd.HasValue = true
		return cmd, nil

	case ValueString:
		if len(frame.Value) == 0 {
			return Command{}, &errors.MissingValue{Command: spec.Name}
		}
		var s string
		if err := json.Unmarshal(frame.Value, &s); err != nil {
			return Command{}, &errors.WrongValueType{Command: spec.Name, Expected: "string"}
		}
		cmd.Str = Sanitize(s, spec.MaxLen)
		cmd.HasValue = true
		return cmd, nil
	}

	return Command{}, &errors.UnknownCommand{Name: frame.Command}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Sanitize strips control characters and markup-significant characters
// from a string parameter and truncates it to maxLen runes. Values pass
// through here before they can reach any later-rendered surface.
func Sanitize(s string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(s))
	count := 0
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		switch r {
		case '<', '>', '&', '"', '\'', '`':
			continue
		}
		b.WriteRune(r)
		count++
		if maxLen > 0 && count >= maxLen {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
