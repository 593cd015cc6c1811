package telegram

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
)

const defaultAPIBase = "https://api.telegram.org"

const maxResponseSizeBytes = 1 << 20

type Config struct {
	Token         string        `split_words:"true" required:"true"`
	APIBase       string        `split_words:"true"`
	WebhookSecret string        `split_words:"true"`
	Timeout       time.Duration `split_words:"true" default:"10s"`
}

// Client sends messages through the Telegram Bot API.
type Client struct {
	baseURL       string
	token         string
	webhookSecret string
	httpClient    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if baseURL == "" {
		baseURL = defaultAPIBase
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:       baseURL,
		token:         token,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// VerifySecret checks the X-Telegram-Bot-Api-Secret-Token header value of a
// webhook request. With no secret configured every request passes.
func (c *Client) VerifySecret(header string) bool {
	if c.webhookSecret == "" {
		return true
	}
	return header == c.webhookSecret
}

// SendMessage delivers text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal sendMessage payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute sendMessage request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read sendMessage response: %w", err)
	}

	var parsed struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("decode sendMessage response (status=%d): %w", resp.StatusCode, err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram sendMessage failed: %s", parsed.Description)
	}
	return nil
}
