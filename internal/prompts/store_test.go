// ABOUTME: Tests for template parsing, directory loading, fallback and hot reload
// ABOUTME: Fixtures are written to t.TempDir()

package prompts

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guideYAML = `version: "1.2"
description: Guide agent prompt
model: gpt-5-mini
domain: guide
instructions: You are Dexi, a product guide. Answer with short steps.
input: "{{.message}} (role {{.role}})"
variables:
  - name: message
    type: string
    required: true
model_settings:
  reasoning:
    effort: low
  provider_data:
    prompt_cache_retention: in_memory
`

const exportTOML = `version = "2.0"
description = "Export agent prompt"
model = "gpt-5"
domain = "export"
instructions = "You prepare dataset exports and explain their contents."
input = "{{.message}}"

[[variables]]
name = "message"
type = "string"
required = true
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestParseYAML(t *testing.T) {
	tmpl, err := Parse("guide", "yaml", []byte(guideYAML))
	require.NoError(t, err)
	assert.Equal(t, "1.2", tmpl.Version)
	assert.Equal(t, "gpt-5-mini", tmpl.Model)
	require.Len(t, tmpl.Variables, 1)
	assert.True(t, tmpl.Variables[0].Required)

	reasoning, ok := tmpl.ModelSettings["reasoning"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "low", reasoning["effort"])

	rendered, err := tmpl.Render(map[string]any{"message": "hi", "role": "viewer"})
	require.NoError(t, err)
	assert.Equal(t, "hi (role viewer)", rendered)
}

func TestParseTOML(t *testing.T) {
	tmpl, err := Parse("export", "toml", []byte(exportTOML))
	require.NoError(t, err)
	assert.Equal(t, "2.0", tmpl.Version)
	assert.Equal(t, "export", tmpl.Domain)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"bad version", `version: "v1"
description: Guide agent prompt
model: m
domain: d
instructions: long enough instructions here
input: x
variables: []
`},
		{"short instructions", `version: "1.0"
description: Guide agent prompt
model: m
domain: d
instructions: too short
input: x
variables: []
`},
		{"missing variables", `version: "1.0"
description: Guide agent prompt
model: m
domain: d
instructions: long enough instructions here
input: x
`},
		{"numeric version", `version: 1.0
description: Guide agent prompt
model: m
domain: d
instructions: long enough instructions here
input: x
variables: []
`},
		{"broken input template", `version: "1.0"
description: Guide agent prompt
model: m
domain: d
instructions: long enough instructions here
input: "{{.message"
variables: []
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("guide", "yaml", []byte(tt.src))
			assert.ErrorIs(t, err, ErrInvalidTemplate)
		})
	}
}

func TestStoreLoadsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.yaml", guideYAML)
	writeFile(t, dir, "export.toml", exportTOML)
	writeFile(t, dir, "README.md", "not a prompt")

	store, err := NewStore(dir, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"export", "guide"}, store.Names())

	tmpl, err := store.Get("guide")
	require.NoError(t, err)
	assert.Equal(t, "1.2", tmpl.Version)

	_, err = store.Get("labeling")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestStoreRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.yaml", "version: nope\n")
	_, err := NewStore(dir, testLogger())
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestStoreRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.yaml", guideYAML)
	writeFile(t, dir, "guide.toml", exportTOML)
	_, err := NewStore(dir, testLogger())
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestResolveFallsBack(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "missing"), testLogger())
	require.NoError(t, err)

	tmpl := store.Resolve("trait")
	assert.True(t, tmpl.Builtin)
	assert.Equal(t, "unknown", tmpl.Version)
	assert.Contains(t, tmpl.Instructions, "trait")

	rendered, err := tmpl.Render(map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", rendered)
}

func TestReloadKeepsPreviousSetOnError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.yaml", guideYAML)
	store, err := NewStore(dir, testLogger())
	require.NoError(t, err)

	writeFile(t, dir, "guide.yaml", "version: broken\n")
	assert.Error(t, store.Reload())

	tmpl, err := store.Get("guide")
	require.NoError(t, err)
	assert.Equal(t, "1.2", tmpl.Version)
}

func TestWatchReloadsChangedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.yaml", guideYAML)
	store, err := NewStore(dir, testLogger())
	require.NoError(t, err)
	store.debounce = 10 * time.Millisecond

	require.NoError(t, store.Watch(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	writeFile(t, dir, "export.toml", exportTOML)

	assert.Eventually(t, func() bool {
		_, err := store.Get("export")
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
}
