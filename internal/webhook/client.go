package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Webhook paths
const (
	pathCheckInReminder  = "/shield/check-in-reminder"
	pathGuardianAccess   = "/shield/guardian-access"
	pathVerificationCode = "/shield/verification-code"
)

// Client posts notification requests to the n8n webhook.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	stubMode   bool
}

// NewClient creates a new webhook client with the given configuration.
// In stub mode nothing is sent; payloads are logged instead.
func NewClient(baseURL, secret string, stubMode bool) *Client {
	return &Client{
		baseURL:    baseURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		stubMode:   stubMode,
	}
}

// SendCheckInReminder emails a check-in link to an inactive user.
func (c *Client) SendCheckInReminder(ctx context.Context, reminder CheckInReminder) error {
	if c.stubMode {
		slog.Info("Stub check-in reminder", "user_id", reminder.UserID, "check_in_url", reminder.CheckInURL)
		return nil
	}
	return c.post(ctx, pathCheckInReminder, reminder)
}

// SendGuardianAccess emails an emergency access link to a guardian.
func (c *Client) SendGuardianAccess(ctx context.Context, notice GuardianAccessNotice) error {
	if c.stubMode {
		slog.Info("Stub guardian access notice", "guardian_email", notice.GuardianEmail, "expires_at", notice.ExpiresAt)
		return nil
	}
	return c.post(ctx, pathGuardianAccess, notice)
}

// SendVerificationCode delivers a token's verification code to a guardian.
func (c *Client) SendVerificationCode(ctx context.Context, notice VerificationCodeNotice) error {
	if c.stubMode {
		slog.Info("Stub verification code notice", "guardian_email", notice.GuardianEmail)
		return nil
	}
	return c.post(ctx, pathVerificationCode, notice)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-N8N-SECRET", c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook %s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}
	return nil
}
