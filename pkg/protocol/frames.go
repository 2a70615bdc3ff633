// Package protocol defines the JSON frame types and command vocabulary
// spoken over the control socket and the cross-window bus.
package protocol

import "encoding/json"

// Frame type discriminators for outbound and bus messages.
const (
	TypeState       = "state"
	TypeError       = "error"
	TypeStateUpdate = "state-update"
)

// CommandFrame is a single inbound instruction from a controller.
// Value is optional and may be a number or a string depending on the
// command; it is left raw here and interpreted by the validator.
type CommandFrame struct {
	Command string          `json:"command"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// StateFrame carries a full state snapshot to wire clients.
type StateFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ErrorFrame carries a generic, non-descriptive error reason. Internal
// detail (allow-lists, stack traces, expected secrets) never goes here.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// UpdateFrame carries a partial state patch on the cross-window bus.
type UpdateFrame struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Command names recognized by the control plane. The validator treats
// this set as the allow-list; anything else is rejected.
const (
	// Playback
	CmdPlay       = "play"
	CmdPause      = "pause"
	CmdTogglePlay = "toggle-play"
	CmdResetToTop = "reset-to-top"

	// Speed
	CmdIncreaseSpeed    = "increase-speed"
	CmdDecreaseSpeed    = "decrease-speed"
	CmdSetSpeed         = "set-speed"
	CmdCycleSpeedPreset = "cycle-speed-preset"

	// Navigation
	CmdNextSection      = "next-section"
	CmdPreviousSection  = "previous-section"
	CmdJumpToHeader     = "jump-to-header"
	CmdJumpToHeaderByID = "jump-to-header-by-id"
	CmdScrollBy         = "scroll-by"
	CmdScrollTo         = "scroll-to"

	// Display
	CmdToggleFullscreen = "toggle-fullscreen"
	CmdToggleMinimap    = "toggle-minimap"
	CmdToggleNavigation = "toggle-navigation"
	CmdToggleFlip       = "toggle-flip"
	CmdTogglePin        = "toggle-pin"
	CmdCycleColorScheme = "cycle-color-scheme"
	CmdCycleFont        = "cycle-font"
	CmdSetFontSize      = "set-font-size"
	CmdIncreaseFontSize = "increase-font-size"
	CmdDecreaseFontSize = "decrease-font-size"
	CmdSetPadding       = "set-padding"
	CmdSetOpacity       = "set-opacity"
	CmdSetLineHeight    = "set-line-height"

	// Countdown
	CmdSetCountdown      = "set-countdown"
	CmdStartCountdown    = "start-countdown"
	CmdStopCountdown     = "stop-countdown"
	CmdIncreaseCountdown = "increase-countdown"
	CmdDecreaseCountdown = "decrease-countdown"

	// Query + handshake
	CmdGetState = "get-state"
	CmdAuth     = "auth"
)

// ErrInvalidCommand is the only reason text ever echoed for a rejected
// command name.
const ErrInvalidCommand = "invalid command"
