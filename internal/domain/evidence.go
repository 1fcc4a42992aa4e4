package domain

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// MediaKind classifies an evidence artifact
type MediaKind string

const (
	MediaKindVideo    MediaKind = "video"
	MediaKindDocument MediaKind = "document"
	MediaKindImage    MediaKind = "image"
	MediaKindAudio    MediaKind = "audio"
)

// DefaultMIMEType is used when neither the caller nor the file extension names a type
const DefaultMIMEType = "application/octet-stream"

// EvidenceArtifact is one attachment persisted to local scratch storage
type EvidenceArtifact struct {
	Path     string
	Filename string
	MIMEType string
	Kind     MediaKind
}

// NewEvidenceArtifact classifies a persisted attachment. declaredMIME may be empty.
func NewEvidenceArtifact(path, filename, declaredMIME string) EvidenceArtifact {
	mimeType := strings.TrimSpace(declaredMIME)
	if mimeType == "" || mimeType == DefaultMIMEType {
		mimeType = GuessMIMEType(filename)
	}
	return EvidenceArtifact{
		Path:     path,
		Filename: filename,
		MIMEType: mimeType,
		Kind:     KindForMIME(mimeType),
	}
}

// IsVideo reports whether the artifact takes the segmentation path
func (a EvidenceArtifact) IsVideo() bool {
	return a.Kind == MediaKindVideo
}

// GuessMIMEType infers a MIME type from the file extension
func GuessMIMEType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return DefaultMIMEType
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if base, _, err := mime.ParseMediaType(t); err == nil {
			return base
		}
		return t
	}
	switch ext {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".pdf":
		return "application/pdf"
	}
	return DefaultMIMEType
}

// KindForMIME maps a MIME type onto a MediaKind
func KindForMIME(mimeType string) MediaKind {
	switch {
	case strings.Contains(mimeType, "video"):
		return MediaKindVideo
	case strings.HasPrefix(mimeType, "image/"):
		return MediaKindImage
	case strings.HasPrefix(mimeType, "audio/"):
		return MediaKindAudio
	default:
		return MediaKindDocument
	}
}

// UnitKind distinguishes the schedulable work types
type UnitKind string

const (
	UnitKindVideo     UnitKind = "video"
	UnitKindChunk     UnitKind = "chunk"
	UnitKindDocuments UnitKind = "documents"
)

// AnalysisUnit is one schedulable piece of work sent to the inference capability
// in a single generation call.
type AnalysisUnit struct {
	Kind UnitKind
	// Paths holds the unit's own evidence; empty for documents-only units.
	Paths []string
	// Source is the original video the unit was cut from.
	Source   string
	MIMEType string
	// Sequence orders units across every video of a request.
	Sequence int
	// Part and Parts frame the unit within its own video (1-based).
	Part  int
	Parts int
	// StartSeconds and DurationSeconds locate a chunk inside its source.
	StartSeconds    float64
	DurationSeconds float64
	Context         string
}

// Label names the unit for logs
func (u AnalysisUnit) Label() string {
	name := filepath.Base(u.Source)
	if u.Source == "" && len(u.Paths) > 0 {
		name = filepath.Base(u.Paths[0])
	}
	if u.Parts > 1 {
		return fmt.Sprintf("%s part %d/%d", name, u.Part, u.Parts)
	}
	if name == "." || name == "" {
		return string(u.Kind)
	}
	return name
}

// PartialResult is the outcome of analysing one unit. OK is false for failed units,
// whose Text is empty.
type PartialResult struct {
	Sequence int
	Text     string
	OK       bool
}
