package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPrompts_AllTemplatesPresent(t *testing.T) {
	p := testPrompts(t)

	for name, text := range map[string]string{
		"analysis":          p.Analysis,
		"chunk_framing":     p.ChunkFraming,
		"documents_framing": p.DocumentsFraming,
		"merge":             p.Merge,
		"merge_update":      p.MergeUpdate,
		"router":            p.Router,
	} {
		assert.NotEmpty(t, text, name)
	}
	assert.Contains(t, p.Analysis, `"company_name"`)
	assert.Contains(t, p.MergeUpdate, "## Change Log")
	assert.Contains(t, p.Router, "target_process_name")
}

func TestPrompts_UnitInstruction(t *testing.T) {
	p := testPrompts(t)

	text, err := p.UnitInstruction(2, 5, 3, "")
	require.NoError(t, err)

	assert.Contains(t, text, "PART 2 of 5")
	assert.Contains(t, text, "provided with 3 context files")
	assert.NotContains(t, text, "USER PROVIDED CONTEXT")
	assert.Contains(t, text, "Process Logic Analyzer")

	withNotes, err := p.UnitInstruction(1, 1, 0, "- a.pdf: pricing")
	require.NoError(t, err)
	assert.Contains(t, withNotes, "USER PROVIDED CONTEXT FOR ATTACHMENTS:\n- a.pdf: pricing")
}

func TestLoadPrompts_EmptyPathIsDefault(t *testing.T) {
	p, err := LoadPrompts("")

	require.NoError(t, err)
	assert.Equal(t, testPrompts(t).Merge, p.Merge)
}

func TestLoadPrompts_OverlaysGivenKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("merge: |\n  Custom merge\nchunk_framing: \"Segment {{.Part}}/{{.Parts}}\"\n"), 0o644))

	p, err := LoadPrompts(path)
	require.NoError(t, err)

	assert.Equal(t, "Custom merge\n", p.Merge)
	assert.Equal(t, testPrompts(t).Router, p.Router)

	text, err := p.UnitInstruction(3, 4, 0, "")
	require.NoError(t, err)
	assert.Contains(t, text, "Segment 3/4")
}

func TestLoadPrompts_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPrompts(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	badYAML := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badYAML, []byte("merge: [unterminated"), 0o644))
	_, err = LoadPrompts(badYAML)
	assert.Error(t, err)

	badTemplate := filepath.Join(dir, "tmpl.yaml")
	require.NoError(t, os.WriteFile(badTemplate, []byte("chunk_framing: \"{{.Part\"\n"), 0o644))
	_, err = LoadPrompts(badTemplate)
	assert.ErrorContains(t, err, "chunk_framing")
}

func TestRenderContext(t *testing.T) {
	notes := map[string]string{
		"zeta.pdf":  "last",
		"alpha.png": "  first  ",
		"empty.txt": "   ",
	}

	assert.Equal(t, "- alpha.png: first\n- zeta.pdf: last", RenderContext(notes))
	assert.Empty(t, RenderContext(nil))
}
