package smsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	AfricasTalkingLiveURL    = "https://api.africastalking.com"
	AfricasTalkingSandboxURL = "https://api.sandbox.africastalking.com"

	// statusSuccess is the per-recipient code for an accepted message.
	statusSuccess = 101
)

// AfricasTalking is a client for the Africa's Talking bulk SMS API.
type AfricasTalking struct {
	baseURL    string
	username   string
	apiKey     string
	senderID   string
	httpClient *http.Client
}

// NewAfricasTalking creates a client. The sandbox username selects the sandbox host
// unless baseURL is given.
func NewAfricasTalking(baseURL, username, apiKey, senderID string) *AfricasTalking {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = AfricasTalkingLiveURL
		if username == "sandbox" {
			baseURL = AfricasTalkingSandboxURL
		}
	}
	return &AfricasTalking{
		baseURL:    baseURL,
		username:   username,
		apiKey:     apiKey,
		senderID:   strings.TrimSpace(senderID),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type atRecipient struct {
	StatusCode int    `json:"statusCode"`
	Number     string `json:"number"`
	Status     string `json:"status"`
	Cost       string `json:"cost"`
	MessageID  string `json:"messageId"`
}

type atResponse struct {
	SMSMessageData struct {
		Message    string        `json:"Message"`
		Recipients []atRecipient `json:"Recipients"`
	} `json:"SMSMessageData"`
}

func (c *AfricasTalking) Send(ctx context.Context, to, message string) (*Result, error) {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("to", to)
	form.Set("message", message)
	if c.senderID != "" {
		form.Set("from", c.senderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/version1/messaging", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to africa's talking: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("africa's talking returned error status %d", resp.StatusCode)
	}

	var body atResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(body.SMSMessageData.Recipients) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRejected, body.SMSMessageData.Message)
	}

	r := body.SMSMessageData.Recipients[0]
	if r.StatusCode != statusSuccess {
		return nil, fmt.Errorf("%w: %s (status %d)", ErrRejected, r.Status, r.StatusCode)
	}
	return &Result{MessageID: r.MessageID, Status: r.Status, Cost: r.Cost}, nil
}
