package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/cloo-solutions/procminer/internal/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReducer_EmptyAndSingleMakeNoCall(t *testing.T) {
	gen := new(MockGenerator)
	r := NewReducer(gen, testPrompts(t), nil)

	empty, err := r.Reduce(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "", empty)

	single, err := r.Reduce(context.Background(), []string{"only partial"})
	require.NoError(t, err)
	assert.Equal(t, "only partial", single)

	gen.AssertNumberOfCalls(t, "Generate", 0)
}

func TestReducer_MergeKeepsEveryDisjointFact(t *testing.T) {
	prompts := testPrompts(t)
	var sent []inference.Part
	// echoes the joined partials back as the merge
	echo := generatorFunc(func(ctx context.Context, parts []inference.Part) (string, error) {
		sent = parts
		return parts[1].Text, nil
	})

	inputs := []string{"step MARKER_ALPHA", "step MARKER_BRAVO", "step MARKER_CHARLIE"}
	merged, err := NewReducer(echo, prompts, nil).Reduce(context.Background(), inputs)

	require.NoError(t, err)
	for _, marker := range []string{"MARKER_ALPHA", "MARKER_BRAVO", "MARKER_CHARLIE"} {
		assert.Contains(t, merged, marker)
	}
	require.Len(t, sent, 2)
	assert.Equal(t, prompts.Merge, sent[0].Text)
	assert.Equal(t, 2, strings.Count(sent[1].Text, PartialSeparator))
	assert.Less(t, strings.Index(sent[1].Text, "ALPHA"), strings.Index(sent[1].Text, "CHARLIE"))
}

func TestReducer_FailureIsFatal(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("timeout"))

	_, err := NewReducer(gen, testPrompts(t), nil).Reduce(context.Background(), []string{"a", "b"})

	assert.ErrorIs(t, err, domain.ErrReduction)
	gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestReducer_MergeUpdate(t *testing.T) {
	prompts := testPrompts(t)
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, []inference.Part{
		inference.Text(prompts.MergeUpdate),
		inference.Text("EXISTING SOP:\nold steps"),
		inference.Text("NEW INFO:\nnew steps"),
	}).Return("old and new steps\n\n## Change Log\n- added", nil)

	merged, err := NewReducer(gen, prompts, nil).MergeUpdate(context.Background(), "old steps", "new steps")

	require.NoError(t, err)
	assert.Contains(t, merged, "## Change Log")
	gen.AssertExpectations(t)
}

func TestReducer_MergeUpdateFailure(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("boom"))

	_, err := NewReducer(gen, testPrompts(t), nil).MergeUpdate(context.Background(), "a", "b")

	assert.ErrorIs(t, err, domain.ErrReduction)
}

type generatorFunc func(ctx context.Context, parts []inference.Part) (string, error)

func (f generatorFunc) Generate(ctx context.Context, parts []inference.Part) (string, error) {
	return f(ctx, parts)
}
