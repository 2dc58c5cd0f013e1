// Package planner implements the HTTP client for the external planner
// service.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/wanderplan/planner-api/config"
	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/domain/model"
)

// Client submits planner work over HTTP. The planner acknowledges the
// submission and later POSTs the result to the callback URL included in the
// request, so this client never waits for job completion.
type Client struct {
	baseURL         string
	callbackBaseURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Config config.PlannerConfig
	// HTTPClient is optional; a client with the configured submit timeout is
	// used by default.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a planner Client.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Config.BaseURL == "" {
		return nil, errors.New("planner base URL is required")
	}
	if opts.Config.CallbackBaseURL == "" {
		return nil, errors.New("callback base URL is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Config.SubmitTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:         opts.Config.BaseURL,
		callbackBaseURL: opts.Config.CallbackBaseURL,
		httpClient:      httpClient,
		logger:          logger.With("component", "planner_client"),
	}, nil
}

var _ core.PlannerClient = (*Client)(nil)

// CallbackURLFor returns the callback URL the planner is asked to deliver
// the job's result to.
func (c *Client) CallbackURLFor(jobID string) string {
	return c.callbackBaseURL + "/api/jobs/" + jobID + "/result"
}

// Submit asks the planner to start working on a job. Any non-2xx response is
// an error; the caller decides whether to retry.
func (c *Client) Submit(ctx context.Context, req model.PlannerRequest) error {
	if req.CallbackURL == "" {
		req.CallbackURL = c.CallbackURLFor(req.JobID)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal planner request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/plans", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create planner request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("planner request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("planner rejected submission: status %d: %s", resp.StatusCode, string(snippet))
	}

	c.logger.DebugContext(ctx, "planner accepted submission", "job_id", req.JobID, "kind", req.Kind)
	return nil
}
