package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloo-solutions/procminer/internal/inference"
	"google.golang.org/genai"
)

const (
	// DefaultModel is the model used for analysis, merge and routing calls
	DefaultModel = "gemini-2.5-pro"
)

var (
	// ErrNoAPIKey is returned when no Gemini API key is configured
	ErrNoAPIKey = errors.New("gemini api key not set")
	// ErrEmptyResponse is returned when the model produced no text
	ErrEmptyResponse = errors.New("gemini returned an empty response")
)

// API is the subset of the genai SDK the client relies on
type API interface {
	UploadFromPath(ctx context.Context, path string, cfg *genai.UploadFileConfig) (*genai.File, error)
	GetFile(ctx context.Context, name string) (*genai.File, error)
	DeleteFile(ctx context.Context, name string) error
	GenerateContent(ctx context.Context, model string, contents []*genai.Content) (string, error)
}

// SDKAdapter forwards API calls to a genai.Client
type SDKAdapter struct {
	client *genai.Client
}

// NewSDKAdapter creates a genai client for the Gemini Developer API
func NewSDKAdapter(ctx context.Context, apiKey string) (*SDKAdapter, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &SDKAdapter{client: client}, nil
}

func (a *SDKAdapter) UploadFromPath(ctx context.Context, path string, cfg *genai.UploadFileConfig) (*genai.File, error) {
	return a.client.Files.UploadFromPath(ctx, path, cfg)
}

func (a *SDKAdapter) GetFile(ctx context.Context, name string) (*genai.File, error) {
	return a.client.Files.Get(ctx, name, nil)
}

func (a *SDKAdapter) DeleteFile(ctx context.Context, name string) error {
	_, err := a.client.Files.Delete(ctx, name, nil)
	return err
}

func (a *SDKAdapter) GenerateContent(ctx context.Context, model string, contents []*genai.Content) (string, error) {
	resp, err := a.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Client implements inference.Client on top of Gemini
type Client struct {
	api   API
	model string
}

// Config configures a Client
type Config struct {
	APIKey string
	Model  string
}

// NewClient creates a Gemini-backed inference client
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	adapter, err := NewSDKAdapter(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return NewClientWithAPI(adapter, cfg.Model), nil
}

// NewClientWithAPI wraps an existing API implementation (used in tests)
func NewClientWithAPI(api API, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{api: api, model: model}
}

// Upload registers a local file with the Files API
func (c *Client) Upload(ctx context.Context, path, mimeType string) (*inference.Artifact, error) {
	log.Printf("gemini: uploading %s (%s)", path, mimeType)
	file, err := c.api.UploadFromPath(ctx, path, &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", path, err)
	}
	artifact := toArtifact(file)
	log.Printf("gemini: uploaded %s as %s", path, artifact.Name)
	return artifact, nil
}

// Status fetches the current processing state of an uploaded file
func (c *Client) Status(ctx context.Context, name string) (*inference.Artifact, error) {
	file, err := c.api.GetFile(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", name, err)
	}
	return toArtifact(file), nil
}

// Delete removes an uploaded file
func (c *Client) Delete(ctx context.Context, name string) error {
	if err := c.api.DeleteFile(ctx, name); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", name, err)
	}
	return nil
}

// Generate issues one generateContent call with the parts in order
func (c *Client) Generate(ctx context.Context, parts []inference.Part) (string, error) {
	contents := []*genai.Content{genai.NewContentFromParts(toParts(parts), genai.RoleUser)}
	text, err := c.api.GenerateContent(ctx, c.model, contents)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func toParts(parts []inference.Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.Artifact != nil {
			out = append(out, genai.NewPartFromURI(p.Artifact.URI, p.Artifact.MIMEType))
			continue
		}
		out = append(out, genai.NewPartFromText(p.Text))
	}
	return out
}

func toArtifact(file *genai.File) *inference.Artifact {
	if file == nil {
		return &inference.Artifact{State: inference.StateUnknown}
	}
	return &inference.Artifact{
		Name:        file.Name,
		DisplayName: file.DisplayName,
		URI:         file.URI,
		MIMEType:    file.MIMEType,
		State:       toState(file.State),
	}
}

func toState(state genai.FileState) inference.State {
	switch state {
	case genai.FileStateProcessing:
		return inference.StateProcessing
	case genai.FileStateActive:
		return inference.StateActive
	case genai.FileStateFailed:
		return inference.StateFailed
	default:
		return inference.StateUnknown
	}
}
