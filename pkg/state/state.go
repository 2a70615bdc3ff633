// Package state owns the in-memory teleprompter state. All mutation goes
// through Store methods (driven by the command router); all reads go
// through Snapshot(). Change listeners receive the partial patch of
// changed fields, which feeds both the wire broadcaster and the
// cross-window bus.
package state

import "sync"

// Numeric domains. Out-of-range input is clamped to these, never
// rejected, so an overshooting controller still produces a safe effect.
const (
	MinSpeed = 0.1
	MaxSpeed = 10.0

	MinFontSize = 8
	MaxFontSize = 120

	MinCountdown = 0
	MaxCountdown = 3600

	MinScrollStep = -5000.0
	MaxScrollStep = 5000.0

	MinPadding = 0.0
	MaxPadding = 40.0

	MinOpacity = 0.0
	MaxOpacity = 1.0

	MinLineHeight = 1.0
	MaxLineHeight = 3.0
)

// MaxHeaderIdLength caps sanitized header identifiers.
const MaxHeaderIdLength = 256

// Header is one outline entry of the loaded note.
type Header struct {
	ID      string  `json:"id"`
	Text    string  `json:"text"`
	Level   int     `json:"level"`
	Line    int     `json:"line"`
	Percent float64 `json:"percent"`
}

// Snapshot is the canonical, flat, fully self-describing view of
// teleprompter state. A fresh client must be able to reconstruct its UI
// from a single Snapshot; there are no incremental-only fields. Every
// numeric field is clamped before it gets here.
type Snapshot struct {
	Playing            bool     `json:"playing"`
	Speed              float64  `json:"speed"`
	FontSize           int      `json:"fontSize"`
	ScrollPosition     float64  `json:"scrollPosition"`
	ScrollPercent      float64  `json:"scrollPercent"`
	NotePath           string   `json:"notePath"`
	NoteName           string   `json:"noteName"`
	Headers            []Header `json:"headers"`
	ActiveHeaderID     string   `json:"activeHeaderId"`
	MinimapVisible     bool     `json:"minimapVisible"`
	NavigationVisible  bool     `json:"navigationVisible"`
	Fullscreen         bool     `json:"fullscreen"`
	CountdownSeconds   int      `json:"countdownSeconds"`
	CountdownRemaining int      `json:"countdownRemaining"`
	CountdownRunning   bool     `json:"countdownRunning"`
	Pinned             bool     `json:"pinned"`
	Flipped            bool     `json:"flipped"`
	Alignment          string   `json:"alignment"`
	ColorScheme        string   `json:"colorScheme"`
	FontFamily         string   `json:"fontFamily"`
	Padding            float64  `json:"padding"`
	Opacity            float64  `json:"opacity"`
	LineHeight         float64  `json:"lineHeight"`
}

// Patch is a partial state update: snapshot JSON field name -> new value.
// Used on the cross-window bus, where both sides share a baseline and
// only drift needs reconciling.
type Patch map[string]interface{}

// Listener receives the patch of changed fields after each mutation.
// Called synchronously, outside the store lock.
type Listener func(Patch)

var (
	defaultSpeedPresets = []float64{1, 2, 4, 6, 8}
	defaultColorSchemes = []string{"dark", "light", "sepia", "high-contrast"}
	defaultFonts        = []string{"sans-serif", "serif", "monospace"}
	defaultAlignments   = []string{"left", "center", "right"}
)

// Store is the single owner of teleprompter state.
type Store struct {
	mu sync.RWMutex

	snap      Snapshot
	maxScroll float64

	speedPresets []float64
	colorSchemes []string
	fonts        []string
	alignments   []string

	listenersMu sync.RWMutex
	listeners   []Listener
}

// NewStore returns a store with sane display defaults.
func NewStore() *Store {
	return &Store{
		snap: Snapshot{
			Speed:             2,
			FontSize:          32,
			Headers:           []Header{},
			MinimapVisible:    true,
			NavigationVisible: true,
			CountdownSeconds:  3,
			Alignment:         "center",
			ColorScheme:       "dark",
			FontFamily:        "sans-serif",
			Padding:           10,
			Opacity:           1,
			LineHeight:        1.5,
		},
		maxScroll:    0,
		speedPresets: defaultSpeedPresets,
		colorSchemes: defaultColorSchemes,
		fonts:        defaultFonts,
		alignments:   defaultAlignments,
	}
}

// OnChange registers a change listener.
func (s *Store) OnChange(fn Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(patch Patch) {
	if len(patch) == 0 {
		return
	}
	s.listenersMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(patch)
	}
}

// mutate runs fn under the write lock and notifies listeners with the
// patch it returns after the lock is released.
func (s *Store) mutate(fn func() Patch) {
	s.mu.Lock()
	patch := fn()
	s.mu.Unlock()
	s.notify(patch)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.Headers = make([]Header, len(s.snap.Headers))
	copy(snap.Headers, s.snap.Headers)
	return snap
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// SetPlaying sets playback state.
func (s *Store) SetPlaying(playing bool) {
	s.mutate(func() Patch {
		if s.snap.Playing == playing {
			return nil
		}
		s.snap.Playing = playing
		return Patch{"playing": playing}
	})
}

// TogglePlay flips playback state.
func (s *Store) TogglePlay() {
	s.mutate(func() Patch {
		s.snap.Playing = !s.snap.Playing
		return Patch{"playing": s.snap.Playing}
	})
}

// Playing reports current playback state.
func (s *Store) Playing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Playing
}

// ResetToTop stops nothing but rewinds the scroll position to zero.
func (s *Store) ResetToTop() {
	s.mutate(func() Patch {
		s.snap.ScrollPosition = 0
		s.snap.ScrollPercent = 0
		s.snap.ActiveHeaderID = ""
		if len(s.snap.Headers) > 0 {
			s.snap.ActiveHeaderID = s.snap.Headers[0].ID
		}
		return Patch{
			"scrollPosition": 0.0,
			"scrollPercent":  0.0,
			"activeHeaderId": s.snap.ActiveHeaderID,
		}
	})
}

// SetSpeed sets scroll speed, clamped to [MinSpeed, MaxSpeed].
func (s *Store) SetSpeed(v float64) {
	s.mutate(func() Patch {
		s.snap.Speed = clampFloat(v, MinSpeed, MaxSpeed)
		return Patch{"speed": s.snap.Speed}
	})
}

// AdjustSpeed nudges speed by delta, clamped.
func (s *Store) AdjustSpeed(delta float64) {
	s.mutate(func() Patch {
		s.snap.Speed = clampFloat(s.snap.Speed+delta, MinSpeed, MaxSpeed)
		return Patch{"speed": s.snap.Speed}
	})
}

// CycleSpeedPreset advances to the next configured speed preset.
func (s *Store) CycleSpeedPreset() {
	s.mutate(func() Patch {
		next := s.speedPresets[0]
		for i, preset := range s.speedPresets {
			if s.snap.Speed < preset {
				next = preset
				break
			}
			if i == len(s.speedPresets)-1 {
				next = s.speedPresets[0]
			}
		}
		s.snap.Speed = clampFloat(next, MinSpeed, MaxSpeed)
		return Patch{"speed": s.snap.Speed}
	})
}

// SetFontSize sets font size, clamped.
func (s *Store) SetFontSize(v int) {
	s.mutate(func() Patch {
		s.snap.FontSize = clampInt(v, MinFontSize, MaxFontSize)
		return Patch{"fontSize": s.snap.FontSize}
	})
}

// AdjustFontSize nudges font size by delta, clamped.
func (s *Store) AdjustFontSize(delta int) {
	s.mutate(func() Patch {
		s.snap.FontSize = clampInt(s.snap.FontSize+delta, MinFontSize, MaxFontSize)
		return Patch{"fontSize": s.snap.FontSize}
	})
}

// ScrollBy moves the scroll position by amount pixels, clamped to the
// document extent.
func (s *Store) ScrollBy(amount float64) {
	s.mutate(func() Patch {
		amount = clampFloat(amount, MinScrollStep, MaxScrollStep)
		s.snap.ScrollPosition = clampFloat(s.snap.ScrollPosition+amount, 0, s.maxScroll)
		s.recomputePercentLocked()
		return Patch{
			"scrollPosition": s.snap.ScrollPosition,
			"scrollPercent":  s.snap.ScrollPercent,
		}
	})
}

// ScrollTo jumps to a percentage through the document, clamped to [0,100].
func (s *Store) ScrollTo(percent float64) {
	s.mutate(func() Patch {
		s.snap.ScrollPercent = clampFloat(percent, 0, 100)
		s.snap.ScrollPosition = s.maxScroll * s.snap.ScrollPercent / 100
		return Patch{
			"scrollPosition": s.snap.ScrollPosition,
			"scrollPercent":  s.snap.ScrollPercent,
		}
	})
}

func (s *Store) recomputePercentLocked() {
	if s.maxScroll <= 0 {
		s.snap.ScrollPercent = 0
		return
	}
	s.snap.ScrollPercent = clampFloat(s.snap.ScrollPosition/s.maxScroll*100, 0, 100)
}

// SetNote loads a new note: identity, outline, and scrollable extent.
// Scroll position resets to the top.
func (s *Store) SetNote(path, name string, headers []Header, maxScroll float64) {
	s.mutate(func() Patch {
		s.snap.NotePath = path
		s.snap.NoteName = name
		s.snap.Headers = headers
		if s.snap.Headers == nil {
			s.snap.Headers = []Header{}
		}
		s.maxScroll = maxScroll
		s.snap.ScrollPosition = 0
		s.snap.ScrollPercent = 0
		s.snap.ActiveHeaderID = ""
		if len(s.snap.Headers) > 0 {
			s.snap.ActiveHeaderID = s.snap.Headers[0].ID
		}
		return Patch{
			"notePath":       s.snap.NotePath,
			"noteName":       s.snap.NoteName,
			"headers":        s.snap.Headers,
			"scrollPosition": 0.0,
			"scrollPercent":  0.0,
			"activeHeaderId": s.snap.ActiveHeaderID,
		}
	})
}

// NextSection advances the active header and scrolls to it.
func (s *Store) NextSection() {
	s.jumpRelative(1)
}

// PreviousSection rewinds the active header and scrolls to it.
func (s *Store) PreviousSection() {
	s.jumpRelative(-1)
}

func (s *Store) jumpRelative(offset int) {
	s.mutate(func() Patch {
		if len(s.snap.Headers) == 0 {
			return nil
		}
		idx := s.activeHeaderIndexLocked() + offset
		idx = clampInt(idx, 0, len(s.snap.Headers)-1)
		return s.jumpToIndexLocked(idx)
	})
}

func (s *Store) activeHeaderIndexLocked() int {
	for i, h := range s.snap.Headers {
		if h.ID == s.snap.ActiveHeaderID {
			return i
		}
	}
	return 0
}

func (s *Store) jumpToIndexLocked(idx int) Patch {
	h := s.snap.Headers[idx]
	s.snap.ActiveHeaderID = h.ID
	s.snap.ScrollPercent = clampFloat(h.Percent, 0, 100)
	s.snap.ScrollPosition = s.maxScroll * s.snap.ScrollPercent / 100
	return Patch{
		"activeHeaderId": s.snap.ActiveHeaderID,
		"scrollPosition": s.snap.ScrollPosition,
		"scrollPercent":  s.snap.ScrollPercent,
	}
}

// JumpToHeaderID jumps to the header with the given id. Unknown ids are
// a silent no-op; a stale controller outline must not move the prompter.
func (s *Store) JumpToHeaderID(id string) {
	s.mutate(func() Patch {
		for i, h := range s.snap.Headers {
			if h.ID == id {
				return s.jumpToIndexLocked(i)
			}
		}
		return nil
	})
}

// JumpToHeaderText jumps to the first header whose text matches.
func (s *Store) JumpToHeaderText(text string) {
	s.mutate(func() Patch {
		for i, h := range s.snap.Headers {
			if h.Text == text {
				return s.jumpToIndexLocked(i)
			}
		}
		return nil
	})
}

// ToggleMinimap flips minimap visibility.
func (s *Store) ToggleMinimap() {
	s.toggleBool("minimapVisible", &s.snap.MinimapVisible)
}

// ToggleNavigation flips the navigation pane.
func (s *Store) ToggleNavigation() {
	s.toggleBool("navigationVisible", &s.snap.NavigationVisible)
}

// ToggleFullscreen flips fullscreen state.
func (s *Store) ToggleFullscreen() {
	s.toggleBool("fullscreen", &s.snap.Fullscreen)
}

// ToggleFlip flips mirrored display.
func (s *Store) ToggleFlip() {
	s.toggleBool("flipped", &s.snap.Flipped)
}

// TogglePin flips the pinned-note state.
func (s *Store) TogglePin() {
	s.toggleBool("pinned", &s.snap.Pinned)
}

func (s *Store) toggleBool(field string, target *bool) {
	s.mutate(func() Patch {
		*target = !*target
		return Patch{field: *target}
	})
}

// CycleColorScheme advances to the next color scheme preset.
func (s *Store) CycleColorScheme() {
	s.mutate(func() Patch {
		s.snap.ColorScheme = nextPreset(s.colorSchemes, s.snap.ColorScheme)
		return Patch{"colorScheme": s.snap.ColorScheme}
	})
}

// CycleFont advances to the next font preset.
func (s *Store) CycleFont() {
	s.mutate(func() Patch {
		s.snap.FontFamily = nextPreset(s.fonts, s.snap.FontFamily)
		return Patch{"fontFamily": s.snap.FontFamily}
	})
}

// CycleAlignment advances to the next text alignment.
func (s *Store) CycleAlignment() {
	s.mutate(func() Patch {
		s.snap.Alignment = nextPreset(s.alignments, s.snap.Alignment)
		return Patch{"alignment": s.snap.Alignment}
	})
}

func nextPreset(presets []string, current string) string {
	for i, p := range presets {
		if p == current {
			return presets[(i+1)%len(presets)]
		}
	}
	return presets[0]
}

// SetPadding sets horizontal padding percent, clamped.
func (s *Store) SetPadding(v float64) {
	s.mutate(func() Patch {
		s.snap.Padding = clampFloat(v, MinPadding, MaxPadding)
		return Patch{"padding": s.snap.Padding}
	})
}

// SetOpacity sets overlay opacity, clamped.
func (s *Store) SetOpacity(v float64) {
	s.mutate(func() Patch {
		s.snap.Opacity = clampFloat(v, MinOpacity, MaxOpacity)
		return Patch{"opacity": s.snap.Opacity}
	})
}

// SetLineHeight sets line height, clamped.
func (s *Store) SetLineHeight(v float64) {
	s.mutate(func() Patch {
		s.snap.LineHeight = clampFloat(v, MinLineHeight, MaxLineHeight)
		return Patch{"lineHeight": s.snap.LineHeight}
	})
}

// SetCountdown sets the configured countdown seconds, clamped.
func (s *Store) SetCountdown(seconds int) {
	s.mutate(func() Patch {
		s.snap.CountdownSeconds = clampInt(seconds, MinCountdown, MaxCountdown)
		return Patch{"countdownSeconds": s.snap.CountdownSeconds}
	})
}

// AdjustCountdown nudges the configured countdown seconds, clamped.
func (s *Store) AdjustCountdown(delta int) {
	s.mutate(func() Patch {
		s.snap.CountdownSeconds = clampInt(s.snap.CountdownSeconds+delta, MinCountdown, MaxCountdown)
		return Patch{"countdownSeconds": s.snap.CountdownSeconds}
	})
}

// BeginCountdown marks the countdown running with the configured
// duration remaining. Returns the starting value.
func (s *Store) BeginCountdown() int {
	var remaining int
	s.mutate(func() Patch {
		s.snap.CountdownRunning = true
		s.snap.CountdownRemaining = s.snap.CountdownSeconds
		remaining = s.snap.CountdownRemaining
		return Patch{
			"countdownRunning":   true,
			"countdownRemaining": s.snap.CountdownRemaining,
		}
	})
	return remaining
}

// CountdownTick decrements the remaining countdown by one second.
// Returns the new remaining value and whether the countdown finished.
func (s *Store) CountdownTick() (remaining int, done bool) {
	s.mutate(func() Patch {
		if !s.snap.CountdownRunning {
			remaining, done = s.snap.CountdownRemaining, true
			return nil
		}
		s.snap.CountdownRemaining--
		if s.snap.CountdownRemaining <= 0 {
			s.snap.CountdownRemaining = 0
			s.snap.CountdownRunning = false
			done = true
		}
		remaining = s.snap.CountdownRemaining
		return Patch{
			"countdownRunning":   s.snap.CountdownRunning,
			"countdownRemaining": s.snap.CountdownRemaining,
		}
	})
	return remaining, done
}

// EndCountdown stops a running countdown without starting playback.
func (s *Store) EndCountdown() {
	s.mutate(func() Patch {
		if !s.snap.CountdownRunning {
			return nil
		}
		s.snap.CountdownRunning = false
		s.snap.CountdownRemaining = 0
		return Patch{
			"countdownRunning":   false,
			"countdownRemaining": 0,
		}
	})
}

// ApplyPatch applies a partial state patch received from a sibling
// window. Unknown fields are ignored; numeric fields are clamped on the
// way in, so a snapshot built afterwards is still fully pre-clamped.
// Per-field last-applied-wins; no ordering across windows is guaranteed.
func (s *Store) ApplyPatch(patch Patch) {
	s.mutate(func() Patch {
		applied := Patch{}
		for field, raw := range patch {
			// The stored value, not the incoming one: listeners must
			// never see an out-of-domain number the clamp rejected.
			if stored, ok := s.applyFieldLocked(field, raw); ok {
				applied[field] = stored
			}
		}
		return applied
	})
}

func (s *Store) applyFieldLocked(field string, raw interface{}) (interface{}, bool) {
	switch field {
	case "playing":
		if v, ok := raw.(bool); ok {
			s.snap.Playing = v
			return s.snap.Playing, true
		}
	case "speed":
		if v, ok := toFloat(raw); ok {
			s.snap.Speed = clampFloat(v, MinSpeed, MaxSpeed)
			return s.snap.Speed, true
		}
	case "fontSize":
		if v, ok := toFloat(raw); ok {
			s.snap.FontSize = clampInt(int(v), MinFontSize, MaxFontSize)
			return s.snap.FontSize, true
		}
	case "scrollPosition":
		if v, ok := toFloat(raw); ok {
			s.snap.ScrollPosition = clampFloat(v, 0, s.maxScroll)
			s.recomputePercentLocked()
			return s.snap.ScrollPosition, true
		}
	case "scrollPercent":
		if v, ok := toFloat(raw); ok {
			s.snap.ScrollPercent = clampFloat(v, 0, 100)
			s.snap.ScrollPosition = s.maxScroll * s.snap.ScrollPercent / 100
			return s.snap.ScrollPercent, true
		}
	case "activeHeaderId":
		if v, ok := raw.(string); ok {
			s.snap.ActiveHeaderID = v
			return s.snap.ActiveHeaderID, true
		}
	case "minimapVisible":
		if v, ok := raw.(bool); ok {
			s.snap.MinimapVisible = v
			return s.snap.MinimapVisible, true
		}
	case "navigationVisible":
		if v, ok := raw.(bool); ok {
			s.snap.NavigationVisible = v
			return s.snap.NavigationVisible, true
		}
	case "fullscreen":
		if v, ok := raw.(bool); ok {
			s.snap.Fullscreen = v
			return s.snap.Fullscreen, true
		}
	case "countdownSeconds":
		if v, ok := toFloat(raw); ok {
			s.snap.CountdownSeconds = clampInt(int(v), MinCountdown, MaxCountdown)
			return s.snap.CountdownSeconds, true
		}
	case "countdownRemaining":
		if v, ok := toFloat(raw); ok {
			s.snap.CountdownRemaining = clampInt(int(v), MinCountdown, MaxCountdown)
			return s.snap.CountdownRemaining, true
		}
	case "countdownRunning":
		if v, ok := raw.(bool); ok {
			s.snap.CountdownRunning = v
			return s.snap.CountdownRunning, true
		}
	case "pinned":
		if v, ok := raw.(bool); ok {
			s.snap.Pinned = v
			return s.snap.Pinned, true
		}
	case "flipped":
		if v, ok := raw.(bool); ok {
			s.snap.Flipped = v
			return s.snap.Flipped, true
		}
	case "alignment":
		if v, ok := raw.(string); ok {
			s.snap.Alignment = v
			return s.snap.Alignment, true
		}
	case "colorScheme":
		if v, ok := raw.(string); ok {
			s.snap.ColorScheme = v
			return s.snap.ColorScheme, true
		}
	case "fontFamily":
		if v, ok := raw.(string); ok {
			s.snap.FontFamily = v
			return s.snap.FontFamily, true
		}
	case "padding":
		if v, ok := toFloat(raw); ok {
			s.snap.Padding = clampFloat(v, MinPadding, MaxPadding)
			return s.snap.Padding, true
		}
	case "opacity":
		if v, ok := toFloat(raw); ok {
			s.snap.Opacity = clampFloat(v, MinOpacity, MaxOpacity)
			return s.snap.Opacity, true
		}
	case "lineHeight":
		if v, ok := toFloat(raw); ok {
			s.snap.LineHeight = clampFloat(v, MinLineHeight, MaxLineHeight)
			return s.snap.LineHeight, true
		}
	}
	return nil, false
}

// toFloat accepts the numeric types a JSON round-trip can produce.
func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
