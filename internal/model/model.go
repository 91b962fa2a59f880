// Package model talks to the generative model that turns free text into a
// Result-shaped JSON document.
package model

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

//go:embed prompts/system.md
var defaultSystemPrompt string

// DefaultModel is used when Options.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// Extractor sends user text to the model and returns its raw text reply.
// Implementations must stop work when ctx is canceled.
type Extractor interface {
	Extract(ctx context.Context, text string) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, text string) (string, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Options configures a GeminiExtractor.
type Options struct {
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	SystemPrompt    string
	// BaseURL overrides the API endpoint. Empty means Google's default.
	BaseURL string
}

// GeminiExtractor calls Gemini with a fixed system instruction and a JSON
// response MIME type.
type GeminiExtractor struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// ErrNoAPIKey is returned by NewGemini when no credential is configured.
var ErrNoAPIKey = errors.New("model API key is not configured")

// NewGemini creates a Gemini-backed extractor. It does not contact the API.
func NewGemini(ctx context.Context, opts Options) (*GeminiExtractor, error) {
	if opts.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	return &GeminiExtractor{
		client: client,
		model:  model,
		config: generateConfig(opts),
	}, nil
}

func generateConfig(opts Options) *genai.GenerateContentConfig {
	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt()
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: prompt}},
		},
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(float32(opts.Temperature)),
	}
	if opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}
	return config
}

// Extract implements Extractor.
func (g *GeminiExtractor) Extract(ctx context.Context, text string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), g.config)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Model returns the model name requests are sent to.
func (g *GeminiExtractor) Model() string {
	return g.model
}

// DefaultSystemPrompt returns the built-in DJ instruction.
func DefaultSystemPrompt() string {
	return strings.TrimSpace(defaultSystemPrompt)
}

// LoadSystemPrompt reads an override prompt from path. An empty path
// returns the built-in prompt.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return DefaultSystemPrompt(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read system prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("system prompt %s is empty", path)
	}
	return prompt, nil
}

// IsRateLimited reports whether err is the model provider refusing the
// request for quota reasons.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := asAPIError(err); ok && apiErr.Code == 429 {
		return true
	}
	return strings.Contains(err.Error(), "429")
}

// Describe extracts the status and message worth logging from an upstream
// error. It never includes request content.
func Describe(err error) (status int, message string) {
	if err == nil {
		return 0, ""
	}
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Code, apiErr.Message
	}
	return 0, err.Error()
}

// asAPIError matches both the value form genai returns and a pointer form.
func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}
