package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

var ErrNotConfigured = errors.New("llm not configured")

// Client talks to an OpenAI-compatible API. Settings can be swapped at runtime by
// the AI config endpoint while workers are using the client.
type Client struct {
	mu          sync.RWMutex
	baseURL     string
	apiKey      string
	model       string
	visionModel string
	embedModel  string
	HTTP        *http.Client
}

type Settings struct {
	BaseURL     string
	APIKey      string
	Model       string
	VisionModel string
	EmbedModel  string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewClient(s Settings, timeout time.Duration) *Client {
	c := &Client{HTTP: &http.Client{Timeout: timeout}}
	c.Configure(s)
	return c
}

// Configure replaces the non-empty fields of s.
func (c *Client) Configure(s Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.BaseURL != "" {
		c.baseURL = strings.TrimRight(s.BaseURL, "/")
	}
	if s.APIKey != "" {
		c.apiKey = s.APIKey
	}
	if s.Model != "" {
		c.model = s.Model
	}
	if s.VisionModel != "" {
		c.visionModel = s.VisionModel
	}
	if s.EmbedModel != "" {
		c.embedModel = s.EmbedModel
	}
}

func (c *Client) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Settings{BaseURL: c.baseURL, APIKey: c.apiKey, Model: c.model, VisionModel: c.visionModel, EmbedModel: c.embedModel}
}

func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	s := c.Settings()
	return s.BaseURL != "" && s.APIKey != "" && s.Model != ""
}

func (c *Client) ChatJSON(ctx context.Context, system, user string, temperature float64) (string, error) {
	return c.chat(ctx, c.Settings().Model, []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, temperature)
}

func (c *Client) chat(ctx context.Context, model string, messages []chatMessage, temperature float64) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	var res chatResponse
	if err := c.post(ctx, "/chat/completions", chatRequest{Model: model, Messages: messages, Temperature: temperature}, &res); err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", errors.New("llm empty response")
	}
	return strings.TrimSpace(res.Choices[0].Message.Content), nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	s := c.Settings()
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(s.BaseURL, path), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("llm error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func endpoint(base, path string) string {
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/chat/completions")
	if strings.HasSuffix(base, "/v1") {
		return base + path
	}
	return base + "/v1" + path
}

// ExtractJSON returns the outermost {...} span of a model reply.
func ExtractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func NormalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]bool{}
	for _, item := range items {
		v := strings.TrimSpace(item)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
