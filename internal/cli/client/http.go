package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envAPIURL = "PROCMINER_API_URL"

	defaultAPIURL = "http://localhost:8000"
)

// Where the API URL came from
const (
	SourceFlag         = "flag"
	SourceEnv          = "env"
	SourceGlobalConfig = "global_config"
	SourceDefault      = "default"
)

type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// ResolveAPIURL applies the cascade flag → env → global config → default
func ResolveAPIURL(cmd *cobra.Command) (string, string, error) {
	if cmd != nil {
		if flagURL, err := cmd.Flags().GetString("api-url"); err == nil && flagURL != "" {
			return flagURL, SourceFlag, nil
		}
	}

	_ = godotenv.Load()
	if envURL := os.Getenv(envAPIURL); envURL != "" {
		return envURL, SourceEnv, nil
	}

	globalConfig, err := LoadGlobalConfig()
	if err != nil {
		return "", "", err
	}
	if globalConfig != nil && globalConfig.APIURL != "" {
		return globalConfig.APIURL, SourceGlobalConfig, nil
	}

	return defaultAPIURL, SourceDefault, nil
}

func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	baseURL, _, err := ResolveAPIURL(cmd)
	if err != nil {
		return nil, err
	}
	return NewAPIClientWithConfig(baseURL), nil
}

// NewAPIClientWithConfig creates a client for baseURL. Requests carry no
// client-side timeout: analyses run for minutes, callers bound them with ctx.
func NewAPIClientWithConfig(baseURL string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

type Document struct {
	ID             string  `json:"id"`
	Company        string  `json:"company"`
	Filename       string  `json:"filename"`
	Name           string  `json:"name"`
	Version        string  `json:"version"`
	Date           string  `json:"date"`
	ProcessingTime float64 `json:"processing_time"`
}

type Metadata struct {
	CompanyName string `json:"company_name"`
	ProcessName string `json:"process_name"`
}

// AnalyzeResult covers both response shapes: standard requests fill Metadata
// and FilePath, session requests fill Path.
type AnalyzeResult struct {
	SOP            string    `json:"sop"`
	Metadata       *Metadata `json:"metadata,omitempty"`
	Status         string    `json:"status"`
	FilePath       string    `json:"file_path,omitempty"`
	Path           string    `json:"path,omitempty"`
	ProcessingTime float64   `json:"processing_time"`
}

// Locator returns where the server filed the document
func (r *AnalyzeResult) Locator() string {
	if r.FilePath != "" {
		return r.FilePath
	}
	return r.Path
}

type AnalyzeInput struct {
	Files     []string
	Notes     map[string]string
	SessionID string
}

func (c *APIClient) ListDocuments(ctx context.Context) ([]Document, error) {
	var resp struct {
		Documents []Document `json:"documents"`
	}
	if err := c.getJSON(ctx, "/documents", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

func (c *APIClient) GetDocument(ctx context.Context, path string) (string, error) {
	var resp struct {
		Content string `json:"content"`
	}
	if err := c.getJSON(ctx, "/document", url.Values{"path": {path}}, &resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Analyze streams the files to POST /analyze as multipart form data
func (c *APIClient) Analyze(ctx context.Context, input AnalyzeInput, onProgress ProgressFunc) (*AnalyzeResult, error) {
	if len(input.Files) == 0 {
		return nil, fmt.Errorf("at least one file is required")
	}

	var total int64
	for _, path := range input.Files {
		stat, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		total += stat.Size()
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeAnalyzeForm(mw, input, total, onProgress))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result AnalyzeResult
	if err := c.do(req, &result); err != nil {
		pr.Close()
		return nil, err
	}
	return &result, nil
}

func writeAnalyzeForm(mw *multipart.Writer, input AnalyzeInput, total int64, onProgress ProgressFunc) error {
	if len(input.Notes) > 0 {
		notes, err := json.Marshal(input.Notes)
		if err != nil {
			return fmt.Errorf("failed to encode context: %w", err)
		}
		if err := mw.WriteField("context", string(notes)); err != nil {
			return err
		}
	}
	if input.SessionID != "" {
		if err := mw.WriteField("session_id", input.SessionID); err != nil {
			return err
		}
	}

	var sent int64
	for _, path := range input.Files {
		if err := copyFilePart(mw, path, func(current, _ int64) {
			if onProgress != nil {
				onProgress(sent+current, total)
			}
		}); err != nil {
			return err
		}
		stat, err := os.Stat(path)
		if err == nil {
			sent += stat.Size()
		}
	}

	return mw.Close()
}

func copyFilePart(mw *multipart.Writer, path string, onProgress ProgressFunc) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}

	_, err = io.Copy(part, &progressReader{reader: file, onProgress: onProgress})
	return err
}

func (c *APIClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *APIClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		message := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			message = errResp.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// ProgressFunc is a callback for reporting upload progress.
type ProgressFunc func(current, total int64)

type progressReader struct {
	reader     io.Reader
	total      int64
	current    int64
	onProgress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	if pr.onProgress != nil {
		pr.onProgress(pr.current, pr.total)
	}
	return n, err
}
