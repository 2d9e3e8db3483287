// Package tracking reports observed decision outcomes to an MLflow tracking
// server, so model owners can line up what was recommended against what was
// written back. It is strictly fire-and-forget: the pipeline never waits on
// it and never fails because of it.
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"bankos/internal/log"
)

// Client talks to an MLflow tracking server over its REST API. The zero
// value is not usable; construct with NewClient.
type Client struct {
	baseURL    string
	experiment string
	httpClient *http.Client
	logger     *log.Logger

	mu           sync.Mutex
	experimentID string
}

func NewClient(baseURL, experiment string, timeout time.Duration, logger *log.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		experiment: experiment,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithComponent(log.ComponentTracking),
	}
}

// Notify records one observed outcome as an MLflow run tagged with the
// customer, domain and action. Every failure is logged and swallowed:
// tracking must never influence whether an outcome is acknowledged.
func (c *Client) Notify(ctx context.Context, customerID, domain, action string) {
	if c == nil || c.baseURL == "" {
		return
	}

	experimentID, err := c.resolveExperiment(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "resolve tracking experiment",
			log.FieldError, err.Error())
		return
	}

	if err := c.createRun(ctx, experimentID, customerID, domain, action); err != nil {
		c.logger.WarnContext(ctx, "record outcome run",
			log.FieldCustomerID, customerID,
			log.FieldDomain, domain,
			log.FieldError, err.Error())
		return
	}

	c.logger.DebugContext(ctx, "outcome run recorded",
		log.FieldCustomerID, customerID,
		log.FieldDomain, domain,
		log.FieldAction, action)
}

// resolveExperiment looks the configured experiment up by name, creating it
// on first use. The id is cached for the lifetime of the client.
func (c *Client) resolveExperiment(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.experimentID != "" {
		return c.experimentID, nil
	}

	var got struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	query := url.Values{"experiment_name": {c.experiment}}
	err := c.call(ctx, http.MethodGet, "/api/2.0/mlflow/experiments/get-by-name?"+query.Encode(), nil, &got)
	if err == nil && got.Experiment.ExperimentID != "" {
		c.experimentID = got.Experiment.ExperimentID
		return c.experimentID, nil
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	body := map[string]string{"name": c.experiment}
	if err := c.call(ctx, http.MethodPost, "/api/2.0/mlflow/experiments/create", body, &created); err != nil {
		return "", fmt.Errorf("create experiment %q: %w", c.experiment, err)
	}
	c.experimentID = created.ExperimentID
	return c.experimentID, nil
}

func (c *Client) createRun(ctx context.Context, experimentID, customerID, domain, action string) error {
	type tag struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	body := map[string]any{
		"experiment_id": experimentID,
		"start_time":    time.Now().UnixMilli(),
		"run_name":      domain + "/" + action,
		"tags": []tag{
			{Key: "customer_id", Value: customerID},
			{Key: "domain", Value: domain},
			{Key: "action", Value: action},
		},
	}
	return c.call(ctx, http.MethodPost, "/api/2.0/mlflow/runs/create", body, nil)
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call tracking server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tracking server returned %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
