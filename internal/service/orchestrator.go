package service

import (
	"context"
	"log"
	"sort"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/cloo-solutions/procminer/internal/inference"
	"github.com/cloo-solutions/procminer/internal/jobs"
)

// AllFailedText is the document produced when every video unit failed
const AllFailedText = "No videos were successfully processed. Check server logs."

// FanInStatus says how the orchestrator arrived at its text
type FanInStatus string

const (
	FanInDocumentsOnly FanInStatus = "documents_only"
	FanInSingle        FanInStatus = "single"
	FanInReduced       FanInStatus = "reduced"
	FanInAllFailed     FanInStatus = "all_failed"
)

// UnitRunner analyses one unit; it reports failure through PartialResult.OK
type UnitRunner interface {
	Analyze(ctx context.Context, unit domain.AnalysisUnit, shared []*inference.Artifact) domain.PartialResult
}

// Orchestration is the fan-in outcome
type Orchestration struct {
	Status    FanInStatus
	Text      string
	Succeeded int
	Attempted int
}

// Orchestrator fans units out over a bounded pool and folds the successes
type Orchestrator struct {
	runner  UnitRunner
	reducer *Reducer
	pool    *jobs.Pool
}

// NewOrchestrator creates an Orchestrator running at most maxConcurrent units at once
func NewOrchestrator(runner UnitRunner, reducer *Reducer, maxConcurrent int) *Orchestrator {
	return &Orchestrator{runner: runner, reducer: reducer, pool: jobs.NewPool(maxConcurrent)}
}

// Collect runs every unit and returns the successful results sorted by
// sequence. A failing or panicking unit is dropped without affecting siblings.
func (o *Orchestrator) Collect(ctx context.Context, units []domain.AnalysisUnit, shared []*inference.Artifact) []domain.PartialResult {
	results := make([]domain.PartialResult, len(units))
	tasks := make([]jobs.Task, len(units))
	for i, unit := range units {
		tasks[i] = func(ctx context.Context) error {
			results[i] = o.runner.Analyze(ctx, unit, shared)
			return nil
		}
	}

	for i, err := range o.pool.Run(ctx, tasks) {
		if err != nil {
			log.Printf("orchestrator: unit %d dropped: %v", units[i].Sequence, err)
		}
	}

	succeeded := make([]domain.PartialResult, 0, len(results))
	for _, r := range results {
		if r.OK {
			succeeded = append(succeeded, r)
		}
	}
	sort.SliceStable(succeeded, func(i, j int) bool {
		return succeeded[i].Sequence < succeeded[j].Sequence
	})
	return succeeded
}

// Run collects the units and decides whether reduction is needed. Only a
// failed reduction is returned as an error.
func (o *Orchestrator) Run(ctx context.Context, units []domain.AnalysisUnit, shared []*inference.Artifact) (*Orchestration, error) {
	if len(units) == 0 {
		return &Orchestration{Status: FanInDocumentsOnly}, nil
	}

	log.Printf("orchestrator: running %d units (limit %d)", len(units), o.pool.Limit())
	results := o.Collect(ctx, units, shared)
	log.Printf("orchestrator: %d/%d units succeeded", len(results), len(units))

	out := &Orchestration{Succeeded: len(results), Attempted: len(units)}
	switch len(results) {
	case 0:
		out.Status = FanInAllFailed
		out.Text = AllFailedText
	case 1:
		out.Status = FanInSingle
		out.Text = results[0].Text
	default:
		texts := make([]string, len(results))
		for i, r := range results {
			texts[i] = r.Text
		}
		merged, err := o.reducer.Reduce(ctx, texts)
		if err != nil {
			return nil, err
		}
		out.Status = FanInReduced
		out.Text = merged
	}
	return out, nil
}

// Sequence numbers units across all videos of a request: video order first,
// then chunk order within each video.
func Sequence(perVideo [][]domain.AnalysisUnit) []domain.AnalysisUnit {
	var all []domain.AnalysisUnit
	for _, units := range perVideo {
		for _, u := range units {
			u.Sequence = len(all)
			all = append(all, u)
		}
	}
	return all
}
