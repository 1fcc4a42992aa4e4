package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cloo-solutions/procminer/internal/api"
	"github.com/cloo-solutions/procminer/internal/api/middleware"
	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/cloo-solutions/procminer/internal/service"
	"github.com/cloo-solutions/procminer/internal/telemetry"
	"github.com/google/uuid"
)

const (
	fieldFiles     = "files"
	fieldContext   = "context"
	fieldSessionID = "session_id"

	// text fields are small; files are streamed to disk
	maxFieldBytes = 1 << 20
)

var safeDirName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type Processor interface {
	Process(ctx context.Context, req service.Request) (*service.Result, error)
}

// RequestTracker marks a request directory as in use so the scratch sweeper
// leaves it alone
type RequestTracker interface {
	Track(name string) func()
}

type AnalyzeHandler struct {
	pipeline  Processor
	uploadDir string
	tracker   RequestTracker
}

func NewAnalyzeHandler(pipeline Processor, uploadDir string) *AnalyzeHandler {
	return &AnalyzeHandler{pipeline: pipeline, uploadDir: uploadDir}
}

// WithTracker registers every request directory with t for the request's lifetime
func (h *AnalyzeHandler) WithTracker(t RequestTracker) *AnalyzeHandler {
	h.tracker = t
	return h
}

type MetadataResponse struct {
	CompanyName string `json:"company_name"`
	ProcessName string `json:"process_name"`
}

type AnalyzeResponse struct {
	SOP            string           `json:"sop"`
	Metadata       MetadataResponse `json:"metadata"`
	Status         string           `json:"status"`
	FilePath       string           `json:"file_path"`
	ProcessingTime float64          `json:"processing_time"`
}

type SessionResponse struct {
	SOP            string  `json:"sop"`
	Status         string  `json:"status"`
	Path           string  `json:"path"`
	ProcessingTime float64 `json:"processing_time"`
}

type intake struct {
	evidence  []domain.EvidenceArtifact
	notes     map[string]string
	sessionID string
}

// Analyze accepts a multipart batch of evidence, runs the pipeline and
// returns the filed document.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	if !safeDirName.MatchString(requestID) {
		requestID = uuid.NewString()
	}

	if h.tracker != nil {
		defer h.tracker.Track(requestID)()
	}

	dir := filepath.Join(h.uploadDir, requestID)
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("analyze: failed to remove %s: %v", dir, err)
		}
	}()

	in, err := h.receive(r, dir)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.HandleError(w, err)
		return
	}

	result, err := h.pipeline.Process(r.Context(), service.Request{
		ID:         requestID,
		Evidence:   in.evidence,
		Notes:      in.notes,
		SessionID:  in.sessionID,
		ScratchDir: filepath.Join(dir, "scratch"),
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoEvidence) {
			api.HandleError(w, err)
			return
		}
		log.Printf("analyze: request %s failed: %v", requestID, err)
		telemetry.CaptureError(r.Context(), err)
		api.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.Session {
		api.JSON(w, http.StatusOK, SessionResponse{
			SOP:            result.SOP,
			Status:         string(result.Status),
			Path:           result.Locator,
			ProcessingTime: result.ProcessingSeconds,
		})
		return
	}

	api.JSON(w, http.StatusOK, AnalyzeResponse{
		SOP: result.SOP,
		Metadata: MetadataResponse{
			CompanyName: result.Identity.Organization,
			ProcessName: result.Identity.Process,
		},
		Status:         string(result.Status),
		FilePath:       result.Locator,
		ProcessingTime: result.ProcessingSeconds,
	})
}

func (h *AnalyzeHandler) receive(r *http.Request, dir string) (*intake, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, domain.ErrInvalidUpload.Wrap(err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	in := &intake{}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, wrapUploadErr(err)
		}

		switch part.FormName() {
		case fieldFiles:
			if part.FileName() == "" {
				part.Close()
				continue
			}
			artifact, err := saveEvidence(part, dir, len(in.evidence))
			part.Close()
			if err != nil {
				return nil, err
			}
			in.evidence = append(in.evidence, artifact)
		case fieldContext:
			raw, err := readField(part)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(raw) == "" {
				continue
			}
			if err := json.Unmarshal([]byte(raw), &in.notes); err != nil {
				return nil, domain.ErrInvalidContext.Wrap(err)
			}
		case fieldSessionID:
			raw, err := readField(part)
			if err != nil {
				return nil, err
			}
			in.sessionID = strings.TrimSpace(raw)
		default:
			part.Close()
		}
	}

	if len(in.evidence) == 0 {
		return nil, domain.ErrNoEvidence
	}
	return in, nil
}

func readField(part *multipart.Part) (string, error) {
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", wrapUploadErr(err)
	}
	if len(data) > maxFieldBytes {
		return "", domain.ErrInvalidUpload.Wrap(fmt.Errorf("field %q exceeds %d bytes", part.FormName(), maxFieldBytes))
	}
	return string(data), nil
}

// saveEvidence streams one file part into dir. The artifact keeps the client's
// filename so attachment notes can refer to it; the on-disk name is made unique.
func saveEvidence(part *multipart.Part, dir string, index int) (domain.EvidenceArtifact, error) {
	filename := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(part.FileName(), `\`, "/")))
	if filename == "/" || filename == "." {
		filename = fmt.Sprintf("upload_%d", index+1)
	}

	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		path = filepath.Join(dir, fmt.Sprintf("%d_%s", index+1, filename))
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		return domain.EvidenceArtifact{}, fmt.Errorf("store upload %s: %w", filename, err)
	}

	if _, err := io.Copy(f, part); err != nil {
		f.Close()
		return domain.EvidenceArtifact{}, wrapUploadErr(err)
	}
	if err := f.Close(); err != nil {
		return domain.EvidenceArtifact{}, fmt.Errorf("store upload %s: %w", filename, err)
	}

	return domain.NewEvidenceArtifact(path, filename, part.Header.Get("Content-Type")), nil
}

func wrapUploadErr(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return domain.ErrInvalidUpload.Wrap(err)
}
