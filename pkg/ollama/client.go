package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/siftkit/pkg/client"
	"github.com/menta2k/siftkit/pkg/types"
)

// DefaultTimeout applies when the caller's context has no deadline
const DefaultTimeout = 300 * time.Second

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
}

// NewClient creates a new Ollama client. Any path in ollamaURL is ignored.
func NewClient(ollamaURL string) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q needs scheme and host", ollamaURL)
	}
	baseURL := &url.URL{Scheme: parsedURL.Scheme, Host: parsedURL.Host}
	return &Client{client: api.NewClient(baseURL, http.DefaultClient)}, nil
}

// SimpleQuery asks a free-form question about an image
func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return c.chat(ctx, model, prompt, imgB64, nil)
}

// LocateSubject asks the model for the dominant subject of an image
func (c *Client) LocateSubject(ctx context.Context, model, prompt, imgB64 string) (*types.LocateResult, error) {
	content, err := c.chat(ctx, model, prompt, imgB64, modelOptions(model))
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}
	return client.ParseLocateResult(content), nil
}

func (c *Client) chat(ctx context.Context, model, prompt, imgB64 string, options map[string]any) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 image: %w", err)
	}

	stream := false
	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{{
			Role:    "user",
			Content: prompt,
			Images:  []api.ImageData{api.ImageData(imgBytes)},
		}},
		Stream:  &stream,
		Options: options,
	}

	var content string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content = resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}
	return content, nil
}

// modelOptions tunes sampling for models known to ramble on box queries
func modelOptions(model string) map[string]any {
	m := strings.ToLower(model)
	if strings.Contains(m, "minicpm-v4") || strings.Contains(m, "minicpm-v-4") || strings.Contains(m, "minicpmv4") {
		return map[string]any{"temperature": 0.7, "top_p": 0.8, "num_ctx": 4096}
	}
	return map[string]any{"temperature": 0.2}
}

var _ client.VisionClient = (*Client)(nil)
