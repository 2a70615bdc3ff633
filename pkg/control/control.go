// Package control binds the command vocabulary to state mutations. This
// is the single place a command name maps to an effect; the wire socket,
// the cross-window bus and local shortcuts all dispatch through the same
// router into these handlers.
package control

import (
	"sync"
	"time"

	"github.com/promptdeck/promptdeck/pkg/command"
	"github.com/promptdeck/promptdeck/pkg/protocol"
	"github.com/promptdeck/promptdeck/pkg/state"
	"go.uber.org/zap"
)

// Step sizes for the increment/decrement commands.
const (
	speedStep     = 0.5
	fontSizeStep  = 2
	countdownStep = 1
)

// Controller owns the countdown runner and implements every state
// mutating command against the store.
type Controller struct {
	store *state.Store

	mut           sync.Mutex
	countdownStop chan struct{}

	log *zap.Logger
}

func New(store *state.Store, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	return &Controller{
		store: store,
		log:   logger.With(zap.String("component", "Controller")),
	}
}

// RegisterHandlers binds the full mutating vocabulary to the router.
// The auth handshake and get-state query are transport concerns and are
// bound by the server wiring, not here.
func (c *Controller) RegisterHandlers(r *command.Router) {
	s := c.store

	r.Register(protocol.CmdPlay, func(command.Command) error { s.SetPlaying(true); return nil })
	r.Register(protocol.CmdPause, func(command.Command) error { s.SetPlaying(false); return nil })
	r.Register(protocol.CmdTogglePlay, func(command.Command) error { s.TogglePlay(); return nil })
	r.Register(protocol.CmdResetToTop, func(command.Command) error { s.ResetToTop(); return nil })

	r.Register(protocol.CmdIncreaseSpeed, func(command.Command) error { s.AdjustSpeed(speedStep); return nil })
	r.Register(protocol.CmdDecreaseSpeed, func(command.Command) error { s.AdjustSpeed(-speedStep); return nil })
	r.Register(protocol.CmdSetSpeed, func(cmd command.Command) error { s.SetSpeed(cmd.Number); return nil })
	r.Register(protocol.CmdCycleSpeedPreset, func(command.Command) error { s.CycleSpeedPreset(); return nil })

	r.Register(protocol.CmdNextSection, func(command.Command) error { s.NextSection(); return nil })
	r.Register(protocol.CmdPreviousSection, func(command.Command) error { s.PreviousSection(); return nil })
	r.Register(protocol.CmdJumpToHeader, func(cmd command.Command) error { s.JumpToHeaderText(cmd.Str); return nil })
	r.Register(protocol.CmdJumpToHeaderByID, func(cmd command.Command) error { s.JumpToHeaderID(cmd.Str); return nil })
	r.Register(protocol.CmdScrollBy, func(cmd command.Command) error { s.ScrollBy(cmd.Number); return nil })
	r.Register(protocol.CmdScrollTo, func(cmd command.Command) error { s.ScrollTo(cmd.Number); return nil })

	r.Register(protocol.CmdToggleFullscreen, func(command.Command) error { s.ToggleFullscreen(); return nil })
	r.Register(protocol.CmdToggleMinimap, func(command.Command) error { s.ToggleMinimap(); return nil })
	r.Register(protocol.CmdToggleNavigation, func(command.Command) error { s.ToggleNavigation(); return nil })
	r.Register(protocol.CmdToggleFlip, func(command.Command) error { s.ToggleFlip(); return nil })
	r.Register(protocol.CmdTogglePin, func(command.Command) error { s.TogglePin(); return nil })
	r.Register(protocol.CmdCycleColorScheme, func(command.Command) error { s.CycleColorScheme(); return nil })
	r.Register(protocol.CmdCycleFont, func(command.Command) error { s.CycleFont(); return nil })
	r.Register(protocol.CmdSetFontSize, func(cmd command.Command) error { s.SetFontSize(int(cmd.Number)); return nil })
	r.Register(protocol.CmdIncreaseFontSize, func(command.Command) error { s.AdjustFontSize(fontSizeStep); return nil })
	r.Register(protocol.CmdDecreaseFontSize, func(command.Command) error { s.AdjustFontSize(-fontSizeStep); return nil })
	r.Register(protocol.CmdSetPadding, func(cmd command.Command) error { s.SetPadding(cmd.Number); return nil })
	r.Register(protocol.CmdSetOpacity, func(cmd command.Command) error { s.SetOpacity(cmd.Number); return nil })
	r.Register(protocol.CmdSetLineHeight, func(cmd command.Command) error { s.SetLineHeight(cmd.Number); return nil })

	r.Register(protocol.CmdSetCountdown, func(cmd command.Command) error { s.SetCountdown(int(cmd.Number)); return nil })
	r.Register(protocol.CmdStartCountdown, func(command.Command) error { c.StartCountdown(); return nil })
	r.Register(protocol.CmdStopCountdown, func(command.Command) error { c.StopCountdown(); return nil })
	r.Register(protocol.CmdIncreaseCountdown, func(command.Command) error { s.AdjustCountdown(countdownStep); return nil })
	r.Register(protocol.CmdDecreaseCountdown, func(command.Command) error { s.AdjustCountdown(-countdownStep); return nil })
}

// StartCountdown begins the pre-roll countdown. When it reaches zero,
// playback starts. A zero-length countdown starts playback immediately.
// Restarting while a countdown is running resets it.
func (c *Controller) StartCountdown() {
	c.mut.Lock()
	if c.countdownStop != nil {
		close(c.countdownStop)
		c.countdownStop = nil
	}

	remaining := c.store.BeginCountdown()
	if remaining <= 0 {
		c.store.EndCountdown()
		c.mut.Unlock()
		c.store.SetPlaying(true)
		return
	}

	stop := make(chan struct{})
	c.countdownStop = stop
	c.mut.Unlock()

	go c.runCountdown(stop)
}

// StopCountdown cancels a running countdown without starting playback.
func (c *Controller) StopCountdown() {
	c.mut.Lock()
	if c.countdownStop != nil {
		close(c.countdownStop)
		c.countdownStop = nil
	}
	c.mut.Unlock()

	c.store.EndCountdown()
}

// CountdownRunning reports whether the countdown goroutine is live.
func (c *Controller) CountdownRunning() bool {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.countdownStop != nil
}

func (c *Controller) runCountdown(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_, done := c.store.CountdownTick()
			if done {
				c.mut.Lock()
				if c.countdownStop == stop {
					c.countdownStop = nil
				}
				c.mut.Unlock()

				c.store.SetPlaying(true)
				return
			}
		}
	}
}
