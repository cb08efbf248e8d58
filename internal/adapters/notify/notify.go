// Package notify posts formatted incident notifications to a Microsoft
// Teams incoming webhook. URL selection: an explicit webhook URL on
// the request wins, then a team+channel reference, then the configured
// default webhook. A team+channel message is posted to the channel API
// endpoint with the same JSON body as a webhook; the client attaches no
// credential to that request.
//
// Retry policy: exactly one retry, only on network-level errors or
// HTTP 5xx, with a fixed 2s backoff -- no retry on 4xx, since that
// reflects a misconfigured webhook URL rather than a transient
// condition.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinel-ops/incident-pilot/internal/errkind"
)

// Message is the notification payload.
type Message struct {
	Content    string `json:"content"`
	WebhookURL string `json:"-"`
	TeamID     string `json:"-"`
	ChannelID  string `json:"-"`
}

// SendResult reports whether delivery succeeded.
type SendResult struct {
	Success   bool
	MessageID string
}

// retryBackoff is the fixed delay before the single retry attempt.
// Overridable in tests to avoid slowing down the suite.
var retryBackoff = 2 * time.Second

// Client sends Teams webhook notifications.
type Client struct {
	defaultWebhookURL string
	channelAPIBaseURL string
	client            *http.Client
	logger            zerolog.Logger
}

// New builds a notification client with a configured default webhook.
// channelAPIBaseURL is used only when a message names a team+channel
// without an explicit webhook: the post goes to
// {channelAPIBaseURL}/teams/{team}/channels/{channel}/messages, without
// any authentication header.
func New(defaultWebhookURL, channelAPIBaseURL string, logger zerolog.Logger) *Client {
	return &Client{
		defaultWebhookURL: defaultWebhookURL,
		channelAPIBaseURL: channelAPIBaseURL,
		client:            &http.Client{Timeout: 15 * time.Second},
		logger:            logger.With().Str("component", "adapters.notify").Logger(),
	}
}

// SendMessage posts msg to the resolved destination: explicit webhook >
// team+channel > configured default webhook.
func (c *Client) SendMessage(ctx context.Context, msg Message) (SendResult, error) {
	webhookURL := msg.WebhookURL
	if webhookURL == "" && msg.TeamID != "" && msg.ChannelID != "" {
		return c.sendToChannel(ctx, msg)
	}
	if webhookURL == "" {
		webhookURL = c.defaultWebhookURL
	}
	if webhookURL == "" {
		return SendResult{}, errkind.NewConfiguration("no webhook URL resolved and no default configured", nil)
	}
	return c.postWebhook(ctx, webhookURL, msg.Content)
}

func (c *Client) sendToChannel(ctx context.Context, msg Message) (SendResult, error) {
	endpoint := fmt.Sprintf("%s/teams/%s/channels/%s/messages", c.channelAPIBaseURL, msg.TeamID, msg.ChannelID)
	return c.postWebhook(ctx, endpoint, msg.Content)
}

type webhookBody struct {
	Text string `json:"text"`
}

type webhookResponse struct {
	MessageID string `json:"messageId"`
}

func (c *Client) postWebhook(ctx context.Context, endpoint, content string) (SendResult, error) {
	body, err := json.Marshal(webhookBody{Text: content})
	if err != nil {
		return SendResult{}, errkind.NewProgrammer("marshal notification body", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBackoff)
		}

		result, retryable, err := c.attempt(ctx, endpoint, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return SendResult{}, lastErr
}

func (c *Client) attempt(ctx context.Context, endpoint string, body []byte) (SendResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, false, errkind.NewProgrammer("build notification request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return SendResult{}, isRetryableNetworkError(err), errkind.NewTransientExternal("notification request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return SendResult{}, true, errkind.NewTransientExternal(fmt.Sprintf("notification backend returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return SendResult{}, false, errkind.NewConfiguration(fmt.Sprintf("notification backend returned %d", resp.StatusCode), nil)
	}

	var wr webhookResponse
	_ = json.NewDecoder(resp.Body).Decode(&wr)
	return SendResult{Success: true, MessageID: wr.MessageID}, false, nil
}

// isRetryableNetworkError reports whether err is a timeout network
// error or wraps any *net.OpError (dial, read or write failure).
func isRetryableNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
