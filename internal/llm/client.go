package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/iksnae/chatstream/internal"
)

var (
	ErrRequestFailed = errors.New("API request failed")
	ErrStreamError   = errors.New("stream error")
)

// Client handles communication with an OpenAI-compatible completion API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new LLM client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// StreamCallback is called for each event in the stream
type StreamCallback func(event StreamEvent)

// ChatStream sends a chat request and streams the response.
// The callback is called for each content chunk and once on completion.
func (c *Client) ChatStream(ctx context.Context, model, systemPrompt string, maxTokens int, messages []Message, callback StreamCallback) error {
	allMessages := make([]Message, 0, len(messages)+1)
	if systemPrompt != "" {
		allMessages = append(allMessages, Message{Role: "system", Content: systemPrompt})
	}
	allMessages = append(allMessages, messages...)

	reqBody := ChatRequest{
		Model:         model,
		Messages:      allMessages,
		MaxTokens:     maxTokens,
		Stream:        true,
		StreamOptions: &StreamOptions{IncludeUsage: true},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	internal.LogDebug("HTTP POST %s/chat/completions (model: %s, messages: %d)", c.baseURL, model, len(allMessages))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		internal.LogError("HTTP request failed: %v", err)
		return err
	}
	defer resp.Body.Close()

	internal.LogDebug("HTTP response status: %d", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		internal.LogError("API error %d: %s", resp.StatusCode, string(body))
		return fmt.Errorf("%w: %d - %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return c.processStream(ctx, resp.Body, callback)
}

// processStream reads SSE events and calls the callback for each
func (c *Client) processStream(ctx context.Context, reader io.Reader, callback StreamCallback) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		lastUsage    *Usage
		finishReason string
	)
	done := func() {
		callback(StreamEvent{Type: "done", FinishReason: finishReason, Usage: lastUsage})
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()

		// SSE format: "data: {json}"
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		if data == "[DONE]" {
			done()
			return nil
		}

		var resp ChatResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			internal.LogDebug("Skipping malformed SSE chunk: %v", err)
			continue
		}

		if resp.Error != nil {
			callback(StreamEvent{Type: "error", Error: resp.Error.Message})
			return fmt.Errorf("%w: %s", ErrStreamError, resp.Error.Message)
		}

		if resp.Usage != nil {
			lastUsage = resp.Usage
		}

		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		delta := choice.Delta
		if delta == nil {
			delta = choice.Message
		}
		if delta != nil && delta.Content != "" {
			callback(StreamEvent{Type: "content", Content: delta.Content})
		}
	}

	if err := scanner.Err(); err != nil {
		// A canceled request closes the body under the scanner
		if ctx.Err() != nil {
			return ctx.Err()
		}
		internal.LogError("SSE scanner error: %v", err)
		return err
	}

	internal.LogDebug("SSE stream ended without [DONE]")
	done()
	return nil
}
