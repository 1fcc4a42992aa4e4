// Package inference defines the contract the pipeline needs from an external
// multimodal model: artifact upload with an asynchronous readiness state, text
// generation over interleaved text and artifact parts, and best-effort deletion.
package inference

import (
	"context"
	"errors"
)

// State is the processing state reported for an uploaded artifact
type State string

const (
	StateProcessing State = "processing"
	StateActive     State = "active"
	StateFailed     State = "failed"
	StateUnknown    State = "unknown"
)

// ErrArtifactsUnsupported is returned by text-only generators given artifact parts
var ErrArtifactsUnsupported = errors.New("generator does not accept artifact parts")

// Artifact is a handle to evidence registered with the external capability
type Artifact struct {
	Name        string
	DisplayName string
	URI         string
	MIMEType    string
	State       State
}

// Part is one element of a generation request: either text or an artifact
type Part struct {
	Text     string
	Artifact *Artifact
}

// Text builds a text part
func Text(s string) Part {
	return Part{Text: s}
}

// File builds an artifact part
func File(a *Artifact) Part {
	return Part{Artifact: a}
}

// Files builds artifact parts in order
func Files(artifacts []*Artifact) []Part {
	parts := make([]Part, 0, len(artifacts))
	for _, a := range artifacts {
		parts = append(parts, File(a))
	}
	return parts
}

// Generator produces text from interleaved parts
type Generator interface {
	Generate(ctx context.Context, parts []Part) (string, error)
}

// FileAPI manages artifacts in the external namespace
type FileAPI interface {
	Upload(ctx context.Context, path, mimeType string) (*Artifact, error)
	Status(ctx context.Context, name string) (*Artifact, error)
	Delete(ctx context.Context, name string) error
}

// Client is the full multimodal capability
type Client interface {
	Generator
	FileAPI
}
