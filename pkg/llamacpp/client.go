package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/siftkit/pkg/client"
	"github.com/menta2k/siftkit/pkg/types"
)

// DefaultURL is used when NewClient gets an empty server URL
const DefaultURL = "http://localhost:8080"

// Client talks to a llama.cpp server through its OpenAI-compatible API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Message is an OpenAI-compatible chat message. Content is a string or []ContentPart.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stream      bool      `json:"stream"`
}

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

func NewClient(serverURL string) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return c.complete(ctx, ChatCompletionRequest{
		Model:       model,
		Messages:    []Message{userMessage(prompt, imgB64)},
		Temperature: 0.7,
		MaxTokens:   2048,
		TopP:        0.9,
	})
}

func (c *Client) LocateSubject(ctx context.Context, model, prompt, imgB64 string) (*types.LocateResult, error) {
	text, err := c.complete(ctx, ChatCompletionRequest{
		Model:       model,
		Messages:    []Message{userMessage(prompt, imgB64)},
		Temperature: 0.2,
		MaxTokens:   1024,
		TopP:        0.8,
	})
	if err != nil {
		return nil, err
	}
	return client.ParseLocateResult(text), nil
}

func userMessage(prompt, imgB64 string) Message {
	parts := []ContentPart{{Type: "text", Text: prompt}}
	if imgB64 != "" {
		parts = append(parts, ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + imgB64},
		})
	}
	return Message{Role: "user", Content: parts}
}

// complete sends req and returns the text of the first choice
func (c *Client) complete(ctx context.Context, req ChatCompletionRequest) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	body, err := c.sendRequest(ctx, "/v1/chat/completions", req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	switch content := resp.Choices[0].Message.Content.(type) {
	case string:
		if content != "" {
			return content, nil
		}
	case []any:
		for _, item := range content {
			if part, ok := item.(map[string]any); ok {
				if text, ok := part["text"].(string); ok && text != "" {
					return text, nil
				}
			}
		}
	}
	return "", fmt.Errorf("no text content in response")
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

var _ client.VisionClient = (*Client)(nil)
