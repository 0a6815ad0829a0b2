package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultGraphAPIURL = "https://graph.facebook.com/v18.0"

// Messenger sends messages through the Messenger platform's Send API.
type Messenger struct {
	httpClient  *http.Client
	apiURL      string
	accessToken string
}

// MessengerOption configures a Messenger client.
type MessengerOption func(*Messenger)

// WithAPIURL overrides the Graph API base URL. Used in tests.
func WithAPIURL(apiURL string) MessengerOption {
	return func(m *Messenger) {
		m.apiURL = apiURL
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) MessengerOption {
	return func(m *Messenger) {
		m.httpClient = client
	}
}

// NewMessenger creates a Send API client authenticated by a page access
// token.
func NewMessenger(accessToken string, opts ...MessengerOption) *Messenger {
	m := &Messenger{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		apiURL:      defaultGraphAPIURL,
		accessToken: accessToken,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type sendRequest struct {
	Recipient recipient `json:"recipient"`
	Message   message   `json:"message"`
}

type recipient struct {
	ID string `json:"id"`
}

type message struct {
	Text string `json:"text"`
}

// Send delivers a text message to a user. Non-2xx responses become a
// SendError carrying the status code's retryability verdict.
func (m *Messenger) Send(ctx context.Context, userID, text string) error {
	payload, err := json.Marshal(sendRequest{
		Recipient: recipient{ID: userID},
		Message:   message{Text: text},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal send request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", m.apiURL, url.QueryEscape(m.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &SendError{
		StatusCode: resp.StatusCode,
		Retryable:  retryableStatus[resp.StatusCode],
		Message:    string(body),
	}
}
