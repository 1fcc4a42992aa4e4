package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/cloo-solutions/procminer/internal/inference"
	"github.com/cloo-solutions/procminer/internal/metrics"
)

// UnitAnalyzer runs the generation call for a single analysis unit
type UnitAnalyzer struct {
	gen     inference.Generator
	gate    *ReadinessGate
	prompts *Prompts
	metrics *metrics.Metrics
}

// NewUnitAnalyzer creates a UnitAnalyzer
func NewUnitAnalyzer(gen inference.Generator, gate *ReadinessGate, prompts *Prompts, m *metrics.Metrics) *UnitAnalyzer {
	return &UnitAnalyzer{gen: gen, gate: gate, prompts: prompts, metrics: m}
}

// Analyze uploads the unit's own video, waits for it, and asks for a partial
// SOP framed by the unit's position. shared must already be gated and is never
// released here. Every failure is logged and reported as a result with OK unset.
func (a *UnitAnalyzer) Analyze(ctx context.Context, unit domain.AnalysisUnit, shared []*inference.Artifact) domain.PartialResult {
	start := time.Now()
	a.metrics.UnitStarted()

	text, err := a.analyze(ctx, unit, shared)

	a.metrics.UnitFinished(string(unit.Kind), err == nil, time.Since(start))
	if err != nil {
		log.Printf("analyzer: unit %d (%s) failed: %v", unit.Sequence, unit.Label(), domain.ErrUnitAnalysis.Wrap(err))
		return domain.PartialResult{Sequence: unit.Sequence}
	}

	log.Printf("analyzer: unit %d (%s) complete in %s", unit.Sequence, unit.Label(), time.Since(start).Round(time.Millisecond))
	return domain.PartialResult{Sequence: unit.Sequence, Text: text, OK: true}
}

func (a *UnitAnalyzer) analyze(ctx context.Context, unit domain.AnalysisUnit, shared []*inference.Artifact) (string, error) {
	if len(unit.Paths) == 0 {
		return "", errors.New("unit has no video")
	}

	instruction, err := a.prompts.UnitInstruction(unit.Part, unit.Parts, len(shared), unit.Context)
	if err != nil {
		return "", err
	}

	video, release, err := a.gate.Acquire(ctx, unit.Paths[0], unit.MIMEType)
	if err != nil {
		return "", err
	}
	defer release()

	parts := make([]inference.Part, 0, len(shared)+2)
	parts = append(parts, inference.Text(instruction), inference.File(video))
	parts = append(parts, inference.Files(shared)...)

	return a.gen.Generate(ctx, parts)
}

// AnalyzeDocuments builds a SOP from the shared artifacts alone. Unlike video
// units its failure is returned to the caller.
func (a *UnitAnalyzer) AnalyzeDocuments(ctx context.Context, shared []*inference.Artifact, userContext string) (string, error) {
	start := time.Now()
	a.metrics.UnitStarted()

	text, err := a.analyzeDocuments(ctx, shared, userContext)

	a.metrics.UnitFinished(string(domain.UnitKindDocuments), err == nil, time.Since(start))
	if err != nil {
		return "", domain.ErrGeneration.Wrap(err)
	}
	return text, nil
}

func (a *UnitAnalyzer) analyzeDocuments(ctx context.Context, shared []*inference.Artifact, userContext string) (string, error) {
	instruction, err := a.prompts.DocumentsInstruction(len(shared), userContext)
	if err != nil {
		return "", err
	}

	parts := make([]inference.Part, 0, len(shared)+1)
	parts = append(parts, inference.Text(instruction))
	parts = append(parts, inference.Files(shared)...)

	return a.gen.Generate(ctx, parts)
}
