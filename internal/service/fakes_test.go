package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/cloo-solutions/procminer/internal/inference"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockGenerator is a mock for inference.Generator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, parts []inference.Part) (string, error) {
	args := m.Called(ctx, parts)
	return args.String(0), args.Error(1)
}

// fakeInference is a concurrency-safe inference.Client. Artifacts are keyed
// by the base name of the uploaded path.
type fakeInference struct {
	mu sync.Mutex

	nextID  int
	names   map[string]string
	uploads []string
	deleted []string
	calls   [][]inference.Part

	initial   map[string]inference.State
	sequence  map[string][]inference.State
	uploadErr map[string]error
	deleteErr error
	generate  func(parts []inference.Part) (string, error)
}

func newFakeInference() *fakeInference {
	return &fakeInference{
		names:     map[string]string{},
		initial:   map[string]inference.State{},
		sequence:  map[string][]inference.State{},
		uploadErr: map[string]error{},
	}
}

func (f *fakeInference) Upload(ctx context.Context, path, mimeType string) (*inference.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	base := filepath.Base(path)
	if err := f.uploadErr[base]; err != nil {
		return nil, err
	}

	f.nextID++
	name := fmt.Sprintf("files/%d", f.nextID)
	f.names[name] = base
	f.uploads = append(f.uploads, base)

	state, ok := f.initial[base]
	if !ok {
		state = inference.StateActive
	}
	return &inference.Artifact{
		Name:        name,
		DisplayName: base,
		URI:         "https://example.invalid/" + name,
		MIMEType:    mimeType,
		State:       state,
	}, nil
}

func (f *fakeInference) Status(ctx context.Context, name string) (*inference.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	base, ok := f.names[name]
	if !ok {
		return nil, errors.New("unknown file " + name)
	}
	state := inference.StateActive
	if seq := f.sequence[base]; len(seq) > 0 {
		state = seq[0]
		f.sequence[base] = seq[1:]
	}
	return &inference.Artifact{Name: name, DisplayName: base, State: state}, nil
}

func (f *fakeInference) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, f.names[name])
	return f.deleteErr
}

func (f *fakeInference) Generate(ctx context.Context, parts []inference.Part) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, parts)
	generate := f.generate
	f.mu.Unlock()

	if generate == nil {
		return "generated", nil
	}
	return generate(parts)
}

func (f *fakeInference) deletedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *fakeInference) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// videoOf returns the display name of the first artifact in parts
func videoOf(parts []inference.Part) string {
	for _, p := range parts {
		if p.Artifact != nil {
			return p.Artifact.DisplayName
		}
	}
	return ""
}

func joinedText(parts []inference.Part) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Artifact == nil {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// fakeTranscoder reports durations by base name and writes empty slice files
type fakeTranscoder struct {
	mu        sync.Mutex
	durations map[string]float64
	probeErr  error
	failCutAt int
	cuts      []Segment
	outputs   []string
}

func (f *fakeTranscoder) Probe(ctx context.Context, path string) (float64, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	d, ok := f.durations[filepath.Base(path)]
	if !ok {
		return 0, domain.ErrDurationProbe
	}
	return d, nil
}

func (f *fakeTranscoder) Cut(ctx context.Context, src, dst string, start, length float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCutAt > 0 && len(f.cuts)+1 == f.failCutAt {
		return domain.ErrSliceCut.Wrap(errors.New("exit status 1"))
	}
	f.cuts = append(f.cuts, Segment{Start: start, Length: length})
	f.outputs = append(f.outputs, dst)
	return os.WriteFile(dst, nil, 0o644)
}

func testPrompts(t *testing.T) *Prompts {
	t.Helper()
	p, err := DefaultPrompts()
	require.NoError(t, err)
	return p
}

func writeEvidence(t *testing.T, dir, name string) domain.EvidenceArtifact {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("evidence"), 0o644))
	return domain.NewEvidenceArtifact(path, name, "")
}
