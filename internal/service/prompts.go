package service

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Prompts holds the instruction templates sent with each generation call
type Prompts struct {
	Analysis         string `yaml:"analysis"`
	ChunkFraming     string `yaml:"chunk_framing"`
	DocumentsFraming string `yaml:"documents_framing"`
	Merge            string `yaml:"merge"`
	MergeUpdate      string `yaml:"merge_update"`
	Router           string `yaml:"router"`

	chunkFraming     *template.Template
	documentsFraming *template.Template
}

// framing is the data available to the framing templates
type framing struct {
	Part         int
	Parts        int
	ContextFiles int
	Context      string
}

// DefaultPrompts returns the embedded templates
func DefaultPrompts() (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(defaultPromptsYAML, &p); err != nil {
		return nil, fmt.Errorf("failed to parse embedded prompts: %w", err)
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPrompts returns the embedded templates with any keys from path laid over
// them. An empty path yields the defaults.
func LoadPrompts(path string) (*Prompts, error) {
	p, err := DefaultPrompts()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file %s: %w", path, err)
	}

	overlay(&p.Analysis, override.Analysis)
	overlay(&p.ChunkFraming, override.ChunkFraming)
	overlay(&p.DocumentsFraming, override.DocumentsFraming)
	overlay(&p.Merge, override.Merge)
	overlay(&p.MergeUpdate, override.MergeUpdate)
	overlay(&p.Router, override.Router)

	if err := p.compile(); err != nil {
		return nil, fmt.Errorf("prompts file %s: %w", path, err)
	}
	return p, nil
}

func overlay(dst *string, value string) {
	if strings.TrimSpace(value) != "" {
		*dst = value
	}
}

func (p *Prompts) compile() error {
	var err error
	if p.chunkFraming, err = template.New("chunk_framing").Parse(p.ChunkFraming); err != nil {
		return fmt.Errorf("invalid chunk_framing template: %w", err)
	}
	if p.documentsFraming, err = template.New("documents_framing").Parse(p.DocumentsFraming); err != nil {
		return fmt.Errorf("invalid documents_framing template: %w", err)
	}
	return nil
}

// UnitInstruction is the analysis instruction followed by the unit's framing
func (p *Prompts) UnitInstruction(part, parts, contextFiles int, userContext string) (string, error) {
	return p.instruction(p.chunkFraming, framing{
		Part:         part,
		Parts:        parts,
		ContextFiles: contextFiles,
		Context:      userContext,
	})
}

// DocumentsInstruction frames an analysis call that carries no video
func (p *Prompts) DocumentsInstruction(contextFiles int, userContext string) (string, error) {
	return p.instruction(p.documentsFraming, framing{ContextFiles: contextFiles, Context: userContext})
}

func (p *Prompts) instruction(tmpl *template.Template, data framing) (string, error) {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Analysis))
	b.WriteString("\n\n")
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}

// RenderContext flattens the per-attachment notes into one block, ordered by filename.
func RenderContext(notes map[string]string) string {
	names := make([]string, 0, len(notes))
	for name, note := range notes {
		if strings.TrimSpace(note) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- %s: %s", name, strings.TrimSpace(notes[name])))
	}
	return strings.Join(lines, "\n")
}
