package content

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdeck/promptdeck/pkg/state"
)

func TestParseOutline(t *testing.T) {
	text := `# Intro

Some paragraph text.

## Details

### Deep dive

Regular # text that is not a heading.
#NotAHeading either.

## Details

# Outro`

	headers, total := ParseOutline(text)

	require.Len(t, headers, 5)
	assert.Equal(t, "intro", headers[0].ID)
	assert.Equal(t, 1, headers[0].Level)
	assert.Equal(t, "Details", headers[1].Text)
	assert.Equal(t, 2, headers[1].Level)
	assert.Equal(t, "deep-dive", headers[2].ID)

	// Duplicate header text gets a deduplicated id.
	assert.Equal(t, "details", headers[1].ID)
	assert.Equal(t, "details-1", headers[3].ID)

	assert.Equal(t, "outro", headers[4].ID)
	assert.Equal(t, 100.0, headers[4].Percent, "last line is 100%% through the document")
	assert.Greater(t, total, 10)
}

func TestParseOutline_SkipsCodeFences(t *testing.T) {
	text := "# Real\n```\n# not a heading\n```\n## Also real"

	headers, _ := ParseOutline(text)

	require.Len(t, headers, 2)
	assert.Equal(t, "Real", headers[0].Text)
	assert.Equal(t, "Also real", headers[1].Text)
}

func TestParseOutline_Empty(t *testing.T) {
	headers, total := ParseOutline("")
	assert.Empty(t, headers)
	assert.Equal(t, 1, total)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Intro", "intro"},
		{"Deep Dive", "deep-dive"},
		{"What's   Next?", "whats-next"},
		{"Q3 2025 — Plan", "q3-2025-plan"},
		{"Trailing ", "trailing"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, slugify(tt.in))
		})
	}
}

func TestDirProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "talk.md"), []byte("# Hello\nbody"), 0o644))

	p := NewDirProvider(dir)

	_, err := p.ActivePath()
	assert.Error(t, err, "no active note yet")

	p.SetActive("talk.md")
	path, err := p.ActivePath()
	require.NoError(t, err)
	assert.Equal(t, "talk.md", path)

	text, err := p.Read(path)
	require.NoError(t, err)
	assert.Contains(t, text, "# Hello")

	_, err = p.Read("missing.md")
	assert.Error(t, err)
}

func TestDirProvider_PathTraversalConfined(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inside.md"), []byte("ok"), 0o644))

	p := NewDirProvider(dir)

	// Traversal segments are cleaned away; reads stay under the root.
	_, err := p.Read("../../etc/passwd")
	assert.Error(t, err)
}

func TestLoadActive(t *testing.T) {
	dir := t.TempDir()
	note := "# One\nline\n## Two\nmore\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.md"), []byte(note), 0o644))

	p := NewDirProvider(dir)
	p.SetActive("demo.md")

	store := state.NewStore()
	require.NoError(t, LoadActive(store, p))

	snap := store.Snapshot()
	assert.Equal(t, "demo.md", snap.NotePath)
	assert.Equal(t, "demo", snap.NoteName)
	require.Len(t, snap.Headers, 2)
	assert.Equal(t, "one", snap.Headers[0].ID)
	assert.Equal(t, "one", snap.ActiveHeaderID)
	assert.Equal(t, 0.0, snap.ScrollPercent)
}

func TestLoadActive_NoActiveNote(t *testing.T) {
	p := NewDirProvider(t.TempDir())
	assert.Error(t, LoadActive(state.NewStore(), p))
}
