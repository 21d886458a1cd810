// Package whatsapp talks to the WhatsApp Cloud API: outbound text
// messages and inbound webhook parsing with signature verification.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aremu/jobalert/internal/pkg/logger"
)

// Send error kinds. Permanent errors (4xx) must not be retried;
// transient ones (5xx, transport) may be.
var (
	ErrPermanent = errors.New("permanent send failure")
	ErrTransient = errors.New("transient send failure")
)

// Client sends messages through the Cloud API.
type Client struct {
	baseURL       string
	accessToken   string
	phoneNumberID string
	httpClient    *http.Client
}

// NewClient creates a WhatsApp client. baseURL is the Graph API root,
// e.g. "https://graph.facebook.com/v18.0".
func NewClient(baseURL, accessToken, phoneNumberID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:       baseURL,
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

type textPayload struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText delivers a plain text message and returns the provider
// message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	payload := textPayload{MessagingProduct: "whatsapp", To: to, Type: "text"}
	payload.Text.Body = body

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshal: %v", ErrPermanent, err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	var out sendResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: parse response (status %d)", kindFor(resp.StatusCode), resp.StatusCode)
	}

	if resp.StatusCode >= 400 || out.Error != nil {
		msg := "unknown error"
		if out.Error != nil {
			msg = out.Error.Message
		}
		logger.Warn("whatsapp send failed", "recipient", to, "status", resp.StatusCode, "error", msg)
		return "", fmt.Errorf("%w: %s (status %d)", kindFor(resp.StatusCode), msg, resp.StatusCode)
	}

	if len(out.Messages) == 0 {
		return "", fmt.Errorf("%w: no message id in response", ErrTransient)
	}
	return out.Messages[0].ID, nil
}

// Ping checks Cloud API reachability and token validity by fetching
// the business phone number record.
func (c *Client) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("whatsapp: ping status %d", resp.StatusCode)
	}
	return nil
}

func kindFor(status int) error {
	if status >= 400 && status < 500 {
		return ErrPermanent
	}
	return ErrTransient
}
