package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEvidenceArtifact_Classification(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		declared string
		kind     MediaKind
	}{
		{"Declared video", "clip.bin", "video/mp4", MediaKindVideo},
		{"Inferred video", "walkthrough.mp4", "", MediaKindVideo},
		{"PDF", "rate-card.pdf", "", MediaKindDocument},
		{"Image", "screen.png", "", MediaKindImage},
		{"Audio", "call.mp3", "audio/mpeg", MediaKindAudio},
		{"Unknown", "notes", "", MediaKindDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewEvidenceArtifact("/tmp/"+tt.filename, tt.filename, tt.declared)
			assert.Equal(t, tt.kind, a.Kind)
			assert.NotEmpty(t, a.MIMEType)
		})
	}
}

func TestGuessMIMEType_DefaultsToOctetStream(t *testing.T) {
	assert.Equal(t, DefaultMIMEType, GuessMIMEType("README"))
	assert.Equal(t, DefaultMIMEType, GuessMIMEType("archive.zzzunknown"))
}

func TestAnalysisUnit_Label(t *testing.T) {
	chunk := AnalysisUnit{Kind: UnitKindChunk, Source: "/x/long.mp4", Part: 2, Parts: 3}
	assert.Equal(t, "long.mp4 part 2/3", chunk.Label())

	whole := AnalysisUnit{Kind: UnitKindVideo, Source: "/x/short.mp4", Paths: []string{"/x/short.mp4"}, Part: 1, Parts: 1}
	assert.Equal(t, "short.mp4", whole.Label())

	docs := AnalysisUnit{Kind: UnitKindDocuments}
	assert.Equal(t, "documents", docs.Label())
}
