package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/cloo-solutions/procminer/internal/media"
)

// DefaultChunkSeconds is the longest stretch of video sent in one analysis call
const DefaultChunkSeconds = 1200.0

// Segment is one [Start, Start+Length) window of a video
type Segment struct {
	Start  float64
	Length float64
}

// PlanSegments cuts duration into budget-sized windows. A duration within the
// budget (or a non-positive budget) yields a single window covering the whole video.
func PlanSegments(duration, budget float64) []Segment {
	if budget <= 0 || duration <= budget {
		return []Segment{{Start: 0, Length: duration}}
	}

	count := int(math.Ceil(duration / budget))
	segments := make([]Segment, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * budget
		remaining := duration - start
		if remaining <= 0 {
			break
		}
		segments = append(segments, Segment{Start: start, Length: math.Min(budget, remaining)})
	}
	return segments
}

// Segmenter turns one video into analysis units
type Segmenter struct {
	transcoder media.Transcoder
	budget     float64
}

// NewSegmenter creates a Segmenter. A non-positive budget uses DefaultChunkSeconds.
func NewSegmenter(transcoder media.Transcoder, budgetSeconds float64) *Segmenter {
	if budgetSeconds <= 0 {
		budgetSeconds = DefaultChunkSeconds
	}
	return &Segmenter{transcoder: transcoder, budget: budgetSeconds}
}

// Budget returns the chunk duration in seconds
func (s *Segmenter) Budget() float64 {
	return s.budget
}

// Split probes the video and returns its units in order. Short videos become a
// single unit over the original file. Long videos are cut into
// <scratchDir>/<base>_part<i><ext>; the first failed cut aborts the split and
// leaves earlier slices on disk for the request cleanup to remove.
func (s *Segmenter) Split(ctx context.Context, video domain.EvidenceArtifact, scratchDir string) ([]domain.AnalysisUnit, error) {
	duration, err := s.transcoder.Probe(ctx, video.Path)
	if err != nil {
		return nil, err
	}

	segments := PlanSegments(duration, s.budget)
	if len(segments) == 1 {
		return []domain.AnalysisUnit{{
			Kind:            domain.UnitKindVideo,
			Paths:           []string{video.Path},
			Source:          video.Path,
			MIMEType:        video.MIMEType,
			Part:            1,
			Parts:           1,
			DurationSeconds: duration,
		}}, nil
	}

	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, domain.ErrSliceCut.Wrap(fmt.Errorf("create chunk dir: %w", err))
	}

	ext := filepath.Ext(video.Path)
	base := strings.TrimSuffix(filepath.Base(video.Path), ext)
	log.Printf("segmenter: splitting %s (%.1fs) into %d chunks", filepath.Base(video.Path), duration, len(segments))

	units := make([]domain.AnalysisUnit, 0, len(segments))
	for i, seg := range segments {
		dst := filepath.Join(scratchDir, fmt.Sprintf("%s_part%d%s", base, i+1, ext))
		if err := s.transcoder.Cut(ctx, video.Path, dst, seg.Start, seg.Length); err != nil {
			return nil, err
		}
		units = append(units, domain.AnalysisUnit{
			Kind:            domain.UnitKindChunk,
			Paths:           []string{dst},
			Source:          video.Path,
			MIMEType:        video.MIMEType,
			Part:            i + 1,
			Parts:           len(segments),
			StartSeconds:    seg.Start,
			DurationSeconds: seg.Length,
		})
	}

	return units, nil
}
