package media

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	name string
	args []string
}

func fakeRunner(output string, err error, calls *[]recordedCall) Runner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, recordedCall{name: name, args: args})
		return []byte(output), err
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected float64
		wantErr  bool
	}{
		{"Valid", `{"format":{"duration":"1500.250000"}}`, 1500.25, false},
		{"Missing", `{"format":{}}`, 0, true},
		{"NotAvailable", `{"format":{"duration":"N/A"}}`, 0, true},
		{"Garbage", `{"format":{"duration":"abc"}}`, 0, true},
		{"Negative", `{"format":{"duration":"-3"}}`, 0, true},
		{"NotJSON", `Invalid data found when processing input`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration([]byte(tt.output))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 0.0001)
		})
	}
}

func TestFFmpeg_Probe(t *testing.T) {
	var calls []recordedCall
	f := NewFFmpegWithRunner("", "", fakeRunner(`{"format":{"duration":"61.5"}}`, nil, &calls))

	seconds, err := f.Probe(context.Background(), "/tmp/in.mp4")

	require.NoError(t, err)
	assert.InDelta(t, 61.5, seconds, 0.0001)
	require.Len(t, calls, 1)
	assert.Equal(t, DefaultFFprobe, calls[0].name)
	assert.Equal(t, "/tmp/in.mp4", calls[0].args[len(calls[0].args)-1])
}

func TestFFmpeg_Probe_ToolFailure(t *testing.T) {
	var calls []recordedCall
	f := NewFFmpegWithRunner("/opt/ffprobe", "", fakeRunner("no such file", errors.New("exit status 1"), &calls))

	_, err := f.Probe(context.Background(), "/tmp/missing.mp4")

	assert.ErrorIs(t, err, domain.ErrDurationProbe)
	assert.Equal(t, "/opt/ffprobe", calls[0].name)
}

func TestFFmpeg_Probe_Unparsable(t *testing.T) {
	var calls []recordedCall
	f := NewFFmpegWithRunner("", "", fakeRunner(`{"format":{"duration":""}}`, nil, &calls))

	_, err := f.Probe(context.Background(), "/tmp/in.mp4")

	assert.ErrorIs(t, err, domain.ErrDurationProbe)
}

func TestFFmpeg_Probe_EmptyPath(t *testing.T) {
	var calls []recordedCall
	f := NewFFmpegWithRunner("", "", fakeRunner("", nil, &calls))

	_, err := f.Probe(context.Background(), "  ")

	assert.ErrorIs(t, err, domain.ErrDurationProbe)
	assert.Empty(t, calls)
}

func TestFFmpeg_Cut_StreamCopyArgs(t *testing.T) {
	var calls []recordedCall
	f := NewFFmpegWithRunner("", "/usr/bin/ffmpeg", fakeRunner("", nil, &calls))

	err := f.Cut(context.Background(), "in.mp4", "out_part2.mp4", 1200, 300.5)

	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "/usr/bin/ffmpeg", calls[0].name)
	assert.Equal(t, []string{
		"-v", "error",
		"-ss", "1200",
		"-i", "in.mp4",
		"-t", "300.5",
		"-c", "copy",
		"-y", "out_part2.mp4",
	}, calls[0].args)
}

func TestFFmpeg_Cut_NonZeroExit(t *testing.T) {
	var calls []recordedCall
	f := NewFFmpegWithRunner("", "", fakeRunner("boom", errors.New("exit status 1"), &calls))

	err := f.Cut(context.Background(), "in.mp4", "out.mp4", 0, 10)

	assert.ErrorIs(t, err, domain.ErrSliceCut)
	assert.Contains(t, err.Error(), "boom")
}
