package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// HTTPDispatcher posts rendered messages as JSON to a transactional-email HTTP API.
type HTTPDispatcher struct {
	APIKey     string
	BaseURL    string
	From       string
	Templates  Templates
	HTTPClient *http.Client
}

var _ Dispatcher = (*HTTPDispatcher)(nil)

// NewHTTPDispatcher returns a dispatcher posting to baseURL with apiKey as bearer credentials.
func NewHTTPDispatcher(apiKey, baseURL, from string, templates Templates) *HTTPDispatcher {
	return &HTTPDispatcher{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		From:       from,
		Templates:  templates,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (d *HTTPDispatcher) SendConfirmationCode(ctx context.Context, email, code string) error {
	return d.send(ctx, d.Templates.Confirmation(email, code))
}

func (d *HTTPDispatcher) SendRecoveryCode(ctx context.Context, email, code string) error {
	return d.send(ctx, d.Templates.Recovery(email, code))
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// send does not log the body; it carries the code.
func (d *HTTPDispatcher) send(ctx context.Context, msg Message) error {
	if d.APIKey == "" || d.BaseURL == "" {
		return fmt.Errorf("mail: API not configured")
	}
	raw, err := json.Marshal(sendRequest{From: d.From, To: msg.To, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.APIKey)
	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mail: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
