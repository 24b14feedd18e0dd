// Package whatsapp is a WhatsApp Cloud API client. It implements
// api.Channel for outbound messages and exposes media download for
// inbound attachments.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/avast/retry-go"

	"github.com/hisabi-bot/hisabi/pkg/api"
)

const defaultBaseURL = "https://graph.facebook.com/v20.0"

// maxMediaBytes caps inbound media downloads. The Cloud API caps images
// at 5 MB; anything larger is not a receipt photo.
const maxMediaBytes = 16 << 20

type Config struct {
	Token         string
	PhoneNumberID string
	BaseURL       string
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Token == "" || cfg.PhoneNumberID == "" {
		return nil, errors.New("whatsapp token and phone number id are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}, nil
}

type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type documentMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Document         documentBody `json:"document"`
}

type documentBody struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	msg := textMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: text},
	}
	return c.sendMessage(ctx, msg)
}

// SendDocument uploads the document to the media endpoint and sends it
// as an attachment.
func (c *Client) SendDocument(ctx context.Context, to, filename, mimeType string, data []byte) error {
	mediaID, err := c.uploadMedia(ctx, filename, mimeType, data)
	if err != nil {
		return fmt.Errorf("uploading document: %w", err)
	}
	msg := documentMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "document",
		Document:         documentBody{ID: mediaID, Filename: filename},
	}
	return c.sendMessage(ctx, msg)
}

func (c *Client) sendMessage(ctx context.Context, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages", c.cfg.BaseURL, c.cfg.PhoneNumberID)

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

			resp, err := c.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return c.checkStatus(resp)
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying whatsapp send", "attempt", n+1, "error", err)
		}),
	)
}

// checkStatus turns non-2xx responses into errors, keeping only rate
// limits and server errors retryable.
func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("whatsapp API returned %d: %s", resp.StatusCode, raw)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return err
	}
	return retry.Unrecoverable(err)
}

type uploadResponse struct {
	ID string `json:"id"`
}

func (c *Client) uploadMedia(ctx context.Context, filename, mimeType string, data []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.WriteField("type", mimeType); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/media", c.cfg.BaseURL, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("media upload returned %d: %s", resp.StatusCode, raw)
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if parsed.ID == "" {
		return "", errors.New("media upload returned empty id")
	}
	return parsed.ID, nil
}

type mediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// DownloadMedia resolves a media ID to its temporary URL and fetches the
// bytes. The returned payload feeds the extraction pipeline.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) (*api.MediaPayload, error) {
	info, err := c.mediaInfo(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("resolving media %s: %w", mediaID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, err
	}
	// Media URLs require the bearer token even though they look public.
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media fetch returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, fmt.Errorf("reading media: %w", err)
	}
	return &api.MediaPayload{MimeType: info.MimeType, Data: data}, nil
}

func (c *Client) mediaInfo(ctx context.Context, mediaID string) (*mediaInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/"+mediaID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("media lookup returned %d: %s", resp.StatusCode, raw)
	}

	var info mediaInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	if info.URL == "" {
		return nil, errors.New("media lookup returned empty url")
	}
	return &info, nil
}
