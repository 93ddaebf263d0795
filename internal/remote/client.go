package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iksnae/chatstream/internal"
)

// ErrRequestFailed is wrapped into TransportErrors for non-2xx responses
var ErrRequestFailed = errors.New("request failed")

const (
	chatPath     = "/api/chat"
	enhancerPath = "/api/enhancer"
	healthPath   = "/healthz"

	healthTimeout = 5 * time.Second
	// maxErrorBody caps how much of a failed response ends up in the error
	maxErrorBody = 4 << 10
)

// Client talks to a chatstream relay server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the relay at baseURL.
// A nil httpClient uses a client without timeout, since replies stream for minutes.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the relay address
func (c *Client) BaseURL() string {
	return c.baseURL
}

type chatRequest struct {
	Messages []internal.ChatMessage `json:"messages"`
}

// Stream posts the transcript to /api/chat and returns the frame stream body.
// The caller closes the body.
func (c *Client) Stream(ctx context.Context, messages []internal.ChatMessage) (io.ReadCloser, error) {
	if messages == nil {
		messages = []internal.ChatMessage{}
	}
	return c.post(ctx, chatPath, chatRequest{Messages: messages})
}

// Ping checks the relay's health endpoint
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	url := c.baseURL + healthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &internal.TransportError{URL: url, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &internal.TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	return checkStatus(url, resp)
}

func (c *Client) post(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	url := c.baseURL + path

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &internal.TransportError{URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	internal.LogDebug("HTTP POST %s (%d bytes)", url, len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		internal.LogError("HTTP request failed: %v", err)
		return nil, &internal.TransportError{URL: url, Err: err}
	}

	if err := checkStatus(url, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(url string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	internal.LogError("API error %d: %s", resp.StatusCode, msg)
	return &internal.TransportError{
		URL:        url,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("%w: %s", ErrRequestFailed, msg),
	}
}
