// Package telegram is a small Telegram Bot API client for sending replies.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wolfman30/booking-agent/pkg/logging"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	// MaxMessageLength leaves headroom under Telegram's 4096 character limit.
	MaxMessageLength = 4000
)

// Config controls how the client behaves.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client sends messages through one bot.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		token:      cfg.Token,
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
	}, nil
}

// SendMessageRequest is the sendMessage payload.
type SendMessageRequest struct {
	ChatID           string `json:"chat_id"`
	Text             string `json:"text"`
	ParseMode        string `json:"parse_mode,omitempty"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

// SendMessage posts one message. Text longer than the API limit is rejected
// by Telegram; use Reply to split.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) error {
	if strings.TrimSpace(req.ChatID) == "" {
		return errors.New("telegram: chat id required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return errors.New("telegram: text required")
	}
	err := c.call(ctx, "sendMessage", req)
	var apiErr *APIError
	if req.ParseMode != "" && errors.As(err, &apiErr) && apiErr.IsParseError() {
		// The model produced markdown Telegram cannot parse; send it plain.
		c.logger.Warn("telegram markdown rejected, resending as plain text", "chat_id", req.ChatID)
		req.ParseMode = ""
		return c.call(ctx, "sendMessage", req)
	}
	return err
}

// SendTyping shows the typing indicator in a chat.
func (c *Client) SendTyping(ctx context.Context, chatID string) error {
	return c.call(ctx, "sendChatAction", map[string]string{"chat_id": chatID, "action": "typing"})
}

// Reply sends text to a chat as a Markdown reply, split on line boundaries.
// A failed typing indicator is logged and ignored.
func (c *Client) Reply(ctx context.Context, chatID string, replyTo int64, text string) error {
	if err := c.SendTyping(ctx, chatID); err != nil {
		c.logger.Warn("telegram typing action failed", "chat_id", chatID, "error", err)
	}
	for i, chunk := range SplitMessage(text, MaxMessageLength) {
		req := SendMessageRequest{ChatID: chatID, Text: chunk, ParseMode: "Markdown"}
		if i == 0 {
			req.ReplyToMessageID = replyTo
		}
		if err := c.SendMessage(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// SplitMessage breaks text into chunks of at most limit characters, cutting
// on newlines where possible and hard-wrapping lines that are too long.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var (
		chunks  []string
		current []rune
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, string(current))
			current = current[:0]
		}
	}
	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		for len(runes) > limit {
			flush()
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}
		sep := 0
		if len(current) > 0 {
			sep = 1
		}
		if len(current)+sep+len(runes) > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			current = append(current, '\n')
		}
		current = append(current, runes...)
	}
	flush()
	return chunks
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// APIError is a Bot API failure.
type APIError struct {
	StatusCode  int
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram: %s (status=%d)", e.Description, e.StatusCode)
	}
	return fmt.Sprintf("telegram: http status %d", e.StatusCode)
}

// IsParseError reports whether Telegram rejected the message formatting.
func (e *APIError) IsParseError() bool {
	return e.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Description), "can't parse entities")
}

func (c *Client) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s body: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("telegram: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return fmt.Errorf("telegram: %s: %w", method, redact(err, c.token))
			}
			lastErr = redact(err, c.token)
			c.logRetry(method, attempt, 0, lastErr)
			if err := c.sleep(ctx, attempt, 0); err != nil {
				return err
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("telegram: read response: %w", readErr)
		}

		var parsed apiResponse
		_ = json.Unmarshal(data, &parsed)
		if resp.StatusCode >= 200 && resp.StatusCode < 300 && parsed.OK {
			return nil
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: parsed.ErrorCode, Description: parsed.Description}
		if parsed.Parameters != nil {
			apiErr.RetryAfter = time.Duration(parsed.Parameters.RetryAfter) * time.Second
		}
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(method, attempt, resp.StatusCode, apiErr)
			if err := c.sleep(ctx, attempt, apiErr.RetryAfter); err != nil {
				return err
			}
			continue
		}
		return apiErr
	}
	if lastErr != nil {
		return lastErr
	}
	return errors.New("telegram: request failed without response")
}

func (c *Client) sleep(ctx context.Context, attempt int, hint time.Duration) error {
	delay := c.backoff * time.Duration(1<<attempt)
	if hint > delay {
		delay = hint
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(method string, attempt, status int, err error) {
	c.logger.Warn("telegram retry",
		"method", method,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

// redact strips the bot token from transport errors, which embed the URL.
func redact(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}
