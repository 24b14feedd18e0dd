// Package extract implements the api.Extractor contract against an
// OpenAI-compatible chat-completions endpoint. Output is treated as
// unreliable by the caller; this package only enforces the JSON shape.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hisabi-bot/hisabi/pkg/api"
)

const defaultBaseURL = "https://api.openai.com/v1"

const systemPrompt = `You are an expense parser. Extract one expense from the user's text or receipt photo and return ONLY a JSON object, no markdown and no explanations:
{"item": "<short item name>", "price": <number>, "currency": "<3-letter ISO code or empty string>", "confidence": <0.0-1.0>}
Rules:
- price is the total amount paid, as a plain number.
- currency only when you actually see one; otherwise "".
- confidence reflects how sure you are about item AND price together. Blurry or partial receipts get low confidence.
- If the caption names the item, prefer it over the receipt text.
- If nothing extractable, return {"item": "", "price": 0, "currency": "", "confidence": 0}.`

// Config holds the extraction client settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Timeout bounds each API call. Defaults to 30s.
	Timeout time.Duration
}

// Client calls a chat-completions API for text and image extraction.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("extractor API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
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

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// FromText extracts an expense from free text.
func (c *Client) FromText(ctx context.Context, text string) (*api.Extraction, error) {
	return c.complete(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: text},
	})
}

// FromImage extracts an expense from a base64 data-URL image, with the
// caption (possibly empty) supplied as context.
func (c *Client) FromImage(ctx context.Context, imageDataURL, caption string) (*api.Extraction, error) {
	userText := "Extract the expense from this receipt photo."
	if caption != "" {
		userText += " Caption from the sender: " + caption
	}
	return c.complete(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: userText},
			{Type: "image_url", ImageURL: &imageURL{URL: imageDataURL}},
		}},
	})
}

func (c *Client) complete(ctx context.Context, messages []chatMessage) (*api.Extraction, error) {
	body, err := json.Marshal(chatRequest{Model: c.cfg.Model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling extraction API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction API returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("extraction API returned no choices")
	}

	return decodeExtraction(parsed.Choices[0].Message.Content)
}

// decodeExtraction parses the model's JSON, tolerating markdown fences the
// prompt forbids but models still emit.
func decodeExtraction(content string) (*api.Extraction, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var ext api.Extraction
	if err := json.Unmarshal([]byte(content), &ext); err != nil {
		return nil, fmt.Errorf("parsing extraction %q: %w", truncate(content, 120), err)
	}
	if ext.Confidence < 0 {
		ext.Confidence = 0
	}
	if ext.Confidence > 1 {
		ext.Confidence = 1
	}
	ext.Currency = strings.ToUpper(strings.TrimSpace(ext.Currency))
	return &ext, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
