// Package cdp forwards customer lifecycle signals to a RudderStack-style
// customer data platform. Calls are best-effort with a bounded timeout;
// the write path never blocks on or fails because of the CDP.
package cdp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"bankos/internal/log"
)

// Client posts track and identify calls to a CDP data plane. An empty
// write key disables the client entirely, which is the expected state in
// local development.
type Client struct {
	dataPlaneURL string
	writeKey     string
	httpClient   *http.Client
	logger       *log.Logger
}

func NewClient(dataPlaneURL, writeKey string, timeout time.Duration, logger *log.Logger) *Client {
	return &Client{
		dataPlaneURL: dataPlaneURL,
		writeKey:     writeKey,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger.WithComponent(log.ComponentCDP),
	}
}

func (c *Client) enabled() bool {
	return c != nil && c.writeKey != "" && c.dataPlaneURL != ""
}

// Track reports a named event for a customer. Failures are logged and
// dropped.
func (c *Client) Track(ctx context.Context, userID, eventName string, properties map[string]any) {
	if !c.enabled() {
		return
	}
	body := map[string]any{
		"userId":     userID,
		"event":      eventName,
		"properties": properties,
		"messageId":  uuid.NewString(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.post(ctx, "/v1/track", body); err != nil {
		c.logger.WarnContext(ctx, "track event dropped",
			log.FieldCustomerID, userID,
			log.FieldEventType, eventName,
			log.FieldError, err.Error())
	}
}

// Identify reports customer traits. Failures are logged and dropped.
func (c *Client) Identify(ctx context.Context, userID string, traits map[string]any) {
	if !c.enabled() {
		return
	}
	body := map[string]any{
		"userId":    userID,
		"traits":    traits,
		"messageId": uuid.NewString(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.post(ctx, "/v1/identify", body); err != nil {
		c.logger.WarnContext(ctx, "identify call dropped",
			log.FieldCustomerID, userID,
			log.FieldError, err.Error())
	}
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.dataPlaneURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.writeKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call data plane: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("data plane returned %d", resp.StatusCode)
	}
	return nil
}
