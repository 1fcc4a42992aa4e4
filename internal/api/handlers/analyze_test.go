package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloo-solutions/procminer/internal/api/middleware"
	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/cloo-solutions/procminer/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, req service.Request) (*service.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Result), args.Error(1)
}

type upload struct {
	name        string
	contentType string
	body        string
}

func multipartRequest(t *testing.T, files []upload, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		if f.contentType != "" {
			header.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.body))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	ctx := context.WithValue(req.Context(), middleware.RequestIDKey, "req-123")
	return req.WithContext(ctx)
}

func TestAnalyzeHandler_Standard(t *testing.T) {
	uploadDir := t.TempDir()
	proc := new(MockProcessor)

	var seen service.Request
	proc.On("Process", mock.Anything, mock.AnythingOfType("service.Request")).
		Run(func(args mock.Arguments) {
			seen = args.Get(1).(service.Request)
			for _, e := range seen.Evidence {
				data, err := os.ReadFile(e.Path)
				require.NoError(t, err)
				assert.NotEmpty(t, data)
			}
		}).
		Return(&service.Result{
			SOP:               "# Billing",
			Identity:          domain.Identity{Organization: "Acme", Process: "Billing"},
			Status:            service.StatusCreated,
			Locator:           "knowledge_base/Acme/Acme_Billing_v1.md",
			ProcessingSeconds: 41.27,
		}, nil)

	req := multipartRequest(t, []upload{
		{name: "walkthrough.mp4", contentType: "video/mp4", body: "video bytes"},
		{name: "rates.pdf", contentType: "application/pdf", body: "pdf bytes"},
	}, map[string]string{"context": `{"rates.pdf": "2024 rate card"}`})

	w := httptest.NewRecorder()
	NewAnalyzeHandler(proc, uploadDir).Analyze(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"sop": "# Billing",
		"metadata": {"company_name": "Acme", "process_name": "Billing"},
		"status": "created",
		"file_path": "knowledge_base/Acme/Acme_Billing_v1.md",
		"processing_time": 41.27
	}`, w.Body.String())

	assert.Equal(t, "req-123", seen.ID)
	require.Len(t, seen.Evidence, 2)
	assert.Equal(t, domain.MediaKindVideo, seen.Evidence[0].Kind)
	assert.Equal(t, "rates.pdf", seen.Evidence[1].Filename)
	assert.Equal(t, domain.MediaKindDocument, seen.Evidence[1].Kind)
	assert.Equal(t, map[string]string{"rates.pdf": "2024 rate card"}, seen.Notes)
	assert.Empty(t, seen.SessionID)
	assert.Equal(t, filepath.Join(uploadDir, "req-123", "scratch"), seen.ScratchDir)

	_, err := os.Stat(filepath.Join(uploadDir, "req-123"))
	assert.True(t, os.IsNotExist(err), "request directory is removed afterwards")
	proc.AssertExpectations(t)
}

func TestAnalyzeHandler_Session(t *testing.T) {
	proc := new(MockProcessor)
	proc.On("Process", mock.Anything, mock.MatchedBy(func(r service.Request) bool {
		return r.SessionID == "abc123"
	})).Return(&service.Result{
		SOP:               "merged",
		Identity:          domain.SessionIdentity("abc123"),
		Status:            service.StatusUpdated,
		Locator:           "knowledge_base/Shadow_Sessions/Shadow_Sessions_Session_abc123_v2.md",
		ProcessingSeconds: 3.5,
		Session:           true,
	}, nil)

	req := multipartRequest(t, []upload{{name: "chunk.webm", contentType: "video/webm", body: "x"}},
		map[string]string{"session_id": " abc123 "})

	w := httptest.NewRecorder()
	NewAnalyzeHandler(proc, t.TempDir()).Analyze(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"sop": "merged",
		"status": "updated",
		"path": "knowledge_base/Shadow_Sessions/Shadow_Sessions_Session_abc123_v2.md",
		"processing_time": 3.5
	}`, w.Body.String())
	proc.AssertExpectations(t)
}

func TestAnalyzeHandler_DuplicateFilenames(t *testing.T) {
	proc := new(MockProcessor)
	var seen service.Request
	proc.On("Process", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { seen = args.Get(1).(service.Request) }).
		Return(&service.Result{Status: service.StatusCreated}, nil)

	req := multipartRequest(t, []upload{
		{name: "screen.png", body: "one"},
		{name: "screen.png", body: "two"},
		{name: "../../escape.png", body: "three"},
	}, nil)

	w := httptest.NewRecorder()
	NewAnalyzeHandler(proc, t.TempDir()).Analyze(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, seen.Evidence, 3)
	assert.NotEqual(t, seen.Evidence[0].Path, seen.Evidence[1].Path)
	assert.Equal(t, "screen.png", seen.Evidence[1].Filename)
	assert.Equal(t, "image/png", seen.Evidence[1].MIMEType)
	assert.Equal(t, "escape.png", seen.Evidence[2].Filename)
	assert.Equal(t, filepath.Dir(seen.Evidence[0].Path), filepath.Dir(seen.Evidence[2].Path))
}

func TestAnalyzeHandler_UnsafeRequestIDIsReplaced(t *testing.T) {
	uploadDir := t.TempDir()
	proc := new(MockProcessor)
	var seen service.Request
	proc.On("Process", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { seen = args.Get(1).(service.Request) }).
		Return(&service.Result{Status: service.StatusCreated}, nil)

	req := multipartRequest(t, []upload{{name: "a.pdf", body: "x"}}, nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "../../tmp"))

	w := httptest.NewRecorder()
	NewAnalyzeHandler(proc, uploadDir).Analyze(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, "../../tmp", seen.ID)
	assert.True(t, strings.HasPrefix(seen.ScratchDir, uploadDir))
}

type recordingTracker struct {
	active   map[string]int
	released []string
}

func (r *recordingTracker) Track(name string) func() {
	r.active[name]++
	return func() {
		r.active[name]--
		r.released = append(r.released, name)
	}
}

func TestAnalyzeHandler_TracksRequestWhileProcessing(t *testing.T) {
	uploadDir := t.TempDir()
	tracker := &recordingTracker{active: map[string]int{}}
	proc := new(MockProcessor)
	proc.On("Process", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			assert.Equal(t, 1, tracker.active["req-123"])
			assert.DirExists(t, filepath.Join(uploadDir, "req-123"))
		}).
		Return(&service.Result{Status: service.StatusCreated}, nil)

	req := multipartRequest(t, []upload{{name: "a.mp4", contentType: "video/mp4", body: "x"}}, nil)
	w := httptest.NewRecorder()
	NewAnalyzeHandler(proc, uploadDir).WithTracker(tracker).Analyze(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, tracker.active["req-123"])
	assert.Equal(t, []string{"req-123"}, tracker.released)
	proc.AssertExpectations(t)
}

func TestAnalyzeHandler_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		request func(t *testing.T) *http.Request
		want    string
	}{
		{
			name: "No files",
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, nil, map[string]string{"session_id": "abc"})
			},
			want: "no evidence files provided",
		},
		{
			name: "Invalid context",
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, []upload{{name: "a.pdf", body: "x"}}, map[string]string{"context": "not json"})
			},
			want: "invalid attachment context",
		},
		{
			name: "Not multipart",
			request: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"files": []}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			want: "invalid multipart upload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := new(MockProcessor)

			w := httptest.NewRecorder()
			NewAnalyzeHandler(proc, t.TempDir()).Analyze(w, tt.request(t))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
			proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
		})
	}
}

func TestAnalyzeHandler_PipelineFailure(t *testing.T) {
	proc := new(MockProcessor)
	proc.On("Process", mock.Anything, mock.Anything).
		Return(nil, domain.ErrReduction.Wrap(errors.New("model unavailable")))

	req := multipartRequest(t, []upload{{name: "a.mp4", contentType: "video/mp4", body: "x"}}, nil)
	w := httptest.NewRecorder()
	NewAnalyzeHandler(proc, t.TempDir()).Analyze(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "model unavailable")
}
