package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloo-solutions/procminer/internal/inference"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultChatModel is used for merge and routing calls when no model is configured
	DefaultChatModel = openai.GPT4o
)

var (
	// ErrEmptyPrompt is returned when no text parts were supplied
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	// ErrNoChoices is returned when the API answers without a completion
	ErrNoChoices = errors.New("no completion choices returned")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// ChatAPI defines the interface for chat completion
type ChatAPI interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client is a text-only inference.Generator backed by OpenAI chat completions.
// It serves the merge and routing stages, which never send artifacts.
type Client struct {
	api ChatAPI
}

type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

func NewOpenAIAdapter(apiKey string, model string) *OpenAIAdapter {
	if model == "" {
		model = DefaultChatModel
	}
	return &OpenAIAdapter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Complete calls the OpenAI chat completion API with a single user message
func (a *OpenAIAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}

type Config struct {
	APIKey string
	Model  string
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	return &Client{api: NewOpenAIAdapter(cfg.APIKey, cfg.Model)}
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// Generate joins the text parts into one prompt and returns the completion
func (c *Client) Generate(ctx context.Context, parts []inference.Part) (string, error) {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Artifact != nil {
			return "", inference.ErrArtifactsUnsupported
		}
		texts = append(texts, p.Text)
	}

	prompt := strings.TrimSpace(strings.Join(texts, "\n\n"))
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	text, err := c.api.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}

	return text, nil
}
