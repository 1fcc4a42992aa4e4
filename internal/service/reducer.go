package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/cloo-solutions/procminer/internal/inference"
	"github.com/cloo-solutions/procminer/internal/metrics"
)

// PartialSeparator sits between partial results in a merge request
const PartialSeparator = "\n\n=== NEXT PARTIAL SOP ===\n\n"

const (
	reductionMerge  = "merge"
	reductionUpdate = "update"
)

// Reducer merges partial results into one document
type Reducer struct {
	gen     inference.Generator
	prompts *Prompts
	metrics *metrics.Metrics
}

// NewReducer creates a Reducer
func NewReducer(gen inference.Generator, prompts *Prompts, m *metrics.Metrics) *Reducer {
	return &Reducer{gen: gen, prompts: prompts, metrics: m}
}

// Reduce merges inputs in the order given. Zero inputs give "" and a single
// input is returned unchanged; only two or more cost a generation call.
func (r *Reducer) Reduce(ctx context.Context, inputs []string) (string, error) {
	switch len(inputs) {
	case 0:
		return "", nil
	case 1:
		return inputs[0], nil
	}

	log.Printf("reducer: merging %d partial results", len(inputs))
	merged, err := r.gen.Generate(ctx, []inference.Part{
		inference.Text(r.prompts.Merge),
		inference.Text(strings.Join(inputs, PartialSeparator)),
	})
	r.metrics.Reduced(reductionMerge, err == nil)
	if err != nil {
		return "", domain.ErrReduction.Wrap(err)
	}
	return merged, nil
}

// MergeUpdate folds next into the stored previous version and appends a change log.
func (r *Reducer) MergeUpdate(ctx context.Context, previous, next string) (string, error) {
	merged, err := r.gen.Generate(ctx, []inference.Part{
		inference.Text(r.prompts.MergeUpdate),
		inference.Text(fmt.Sprintf("EXISTING SOP:\n%s", previous)),
		inference.Text(fmt.Sprintf("NEW INFO:\n%s", next)),
	})
	r.metrics.Reduced(reductionUpdate, err == nil)
	if err != nil {
		return "", domain.ErrReduction.Wrap(err)
	}
	return merged, nil
}
