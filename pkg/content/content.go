// Package content adapts the host application's document model to the
// control plane. The host (or a stand-in) is an opaque Provider of
// "current content"; this package turns that content into the outline
// the navigation commands operate on.
package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/promptdeck/promptdeck/pkg/state"
)

// Provider is the host-side collaborator: it knows which note is active
// and can read note text by path.
type Provider interface {
	ActivePath() (string, error)
	Read(path string) (string, error)
}

// DirProvider serves notes from a directory on disk, standing in for
// the host application's vault in the daemon.
type DirProvider struct {
	root string

	mut    sync.RWMutex
	active string
}

func NewDirProvider(root string) *DirProvider {
	return &DirProvider{root: root}
}

// SetActive marks a note (relative to the provider root) as active.
func (p *DirProvider) SetActive(path string) {
	p.mut.Lock()
	defer p.mut.Unlock()
	p.active = path
}

func (p *DirProvider) ActivePath() (string, error) {
	p.mut.RLock()
	defer p.mut.RUnlock()
	if p.active == "" {
		return "", fmt.Errorf("no active note")
	}
	return p.active, nil
}

func (p *DirProvider) Read(path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(p.root, filepath.Clean("/"+path)))
	if err != nil {
		return "", fmt.Errorf("failed to read note %q: %w", path, err)
	}
	return string(data), nil
}

// ParseOutline extracts markdown headings from note text. Each header
// gets a stable id derived from its text (deduplicated with a numeric
// suffix, the way rendered anchors are) and a percent-through-document
// used by section navigation. Returns the outline and total line count.
func ParseOutline(text string) ([]state.Header, int) {
	lines := strings.Split(text, "\n")
	total := len(lines)

	headers := []state.Header{}
	seen := map[string]int{}
	inFence := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		level := 0
		for level < len(trimmed) && trimmed[level] == '#' {
			level++
		}
		if level == 0 || level > 6 || level >= len(trimmed) || trimmed[level] != ' ' {
			continue
		}

		headerText := strings.TrimSpace(trimmed[level+1:])
		if headerText == "" {
			continue
		}

		id := slugify(headerText)
		if n := seen[id]; n > 0 {
			seen[id] = n + 1
			id = fmt.Sprintf("%s-%d", id, n)
		} else {
			seen[id] = 1
		}

		percent := 0.0
		if total > 1 {
			percent = float64(i) / float64(total-1) * 100
		}

		headers = append(headers, state.Header{
			ID:      id,
			Text:    headerText,
			Level:   level,
			Line:    i,
			Percent: percent,
		})
	}

	return headers, total
}

// slugify lowercases header text into a stable anchor-style id.
func slugify(text string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case r == ' ' || r == '-' || r == '_':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// LoadActive reads the provider's active note and installs its identity,
// outline and scrollable extent into the store.
func LoadActive(store *state.Store, provider Provider) error {
	path, err := provider.ActivePath()
	if err != nil {
		return err
	}

	text, err := provider.Read(path)
	if err != nil {
		return err
	}

	headers, total := ParseOutline(text)
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	maxScroll := float64(total - 1)
	if maxScroll < 0 {
		maxScroll = 0
	}

	store.SetNote(path, name, headers, maxScroll)
	return nil
}
