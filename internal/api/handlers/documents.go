package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloo-solutions/procminer/internal/api"
	"github.com/cloo-solutions/procminer/internal/domain"
)

const documentDateLayout = "2006-01-02 15:04"

type DocumentStore interface {
	ListAll(ctx context.Context) ([]domain.DocumentInfo, error)
	Read(ctx context.Context, locator string) (string, bool, error)
}

type DocumentHandler struct {
	store DocumentStore
}

func NewDocumentHandler(store DocumentStore) *DocumentHandler {
	return &DocumentHandler{store: store}
}

type DocumentResponse struct {
	ID             string  `json:"id"`
	Company        string  `json:"company"`
	Filename       string  `json:"filename"`
	Name           string  `json:"name"`
	Version        string  `json:"version"`
	Date           string  `json:"date"`
	ProcessingTime float64 `json:"processing_time"`
}

type DocumentListResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

type DocumentContentResponse struct {
	Content string `json:"content"`
}

func documentToResponse(d domain.DocumentInfo) DocumentResponse {
	return DocumentResponse{
		ID:             d.ID,
		Company:        d.Organization,
		Filename:       d.Filename,
		Name:           d.ProcessName,
		Version:        fmt.Sprintf("v%d", d.Version),
		Date:           d.CreatedAt.Local().Format(documentDateLayout),
		ProcessingTime: d.ProcessingSeconds,
	}
}

// List returns every stored version, newest first
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListAll(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := DocumentListResponse{Documents: make([]DocumentResponse, 0, len(docs))}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, documentToResponse(d))
	}

	api.JSON(w, http.StatusOK, resp)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		api.Error(w, http.StatusBadRequest, "path is required")
		return
	}

	content, found, err := h.store.Read(r.Context(), path)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if !found || content == "" {
		api.Error(w, http.StatusNotFound, "Document not found")
		return
	}

	api.JSON(w, http.StatusOK, DocumentContentResponse{Content: content})
}
