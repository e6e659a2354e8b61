package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/policydesk/api/internal/config"
	"github.com/policydesk/api/internal/identity"
	"github.com/policydesk/api/internal/model"
)

// RelayAPI defines the operations of the policy-table render relay
type RelayAPI interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	GetStatus(ctx context.Context, jobID string) (*StatusResponse, error)
	Register(ctx context.Context, artifactID string) (*RegisterResponse, error)
}

// RelayClient implements RelayAPI over HTTP
type RelayClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// GenerateRequest asks the relay to render one target
type GenerateRequest struct {
	TargetID       string   `json:"targetId"`
	ApplyDate      string   `json:"applyDate"`
	ApplyContent   string   `json:"applyContent"`
	AccessGroupIDs []string `json:"accessGroupIds"`
}

// RelayStatus is the relay's health block
type RelayStatus struct {
	IsAvailable      bool   `json:"isAvailable"`
	LastResponseTime int64  `json:"lastResponseTime"`
	LastError        string `json:"lastError"`
}

// GenerateResponse is the 200 answer to a generate request
type GenerateResponse struct {
	JobID             string       `json:"jobId"`
	Status            string       `json:"status"`
	Message           string       `json:"message"`
	QueuePosition     *int         `json:"queuePosition,omitempty"`
	QueueLength       *int         `json:"queueLength,omitempty"`
	EstimatedWaitTime *int         `json:"estimatedWaitTime,omitempty"`
	RelayStatus       *RelayStatus `json:"relayStatus,omitempty"`
	QueuedUserCount   *int         `json:"queuedUserCount,omitempty"`
}

// conflictResponse is the 409 answer to a generate request
type conflictResponse struct {
	Error         string `json:"error"`
	ExistingJobID string `json:"existingJobId"`
}

// ResultPayload points at the rendered artifact
type ResultPayload struct {
	ID       string `json:"id"`
	ImageURL string `json:"imageUrl"`
	ExcelURL string `json:"excelUrl,omitempty"`
}

// QueueInfoPayload is the queue block of a status response
type QueueInfoPayload struct {
	QueuePosition     int  `json:"queuePosition"`
	QueueLength       int  `json:"queueLength"`
	EstimatedWaitTime int  `json:"estimatedWaitTime"`
	IsProcessing      bool `json:"isProcessing"`
	QueuedUserCount   int  `json:"queuedUserCount"`
}

// StatusResponse is one status observation of a job
type StatusResponse struct {
	Status        string            `json:"status"`
	Progress      float64           `json:"progress"`
	Message       string            `json:"message"`
	Result        *ResultPayload    `json:"result,omitempty"`
	Error         string            `json:"error,omitempty"`
	FailureReason string            `json:"failureReason,omitempty"`
	QueueInfo     *QueueInfoPayload `json:"queueInfo,omitempty"`
	RelayStatus   *RelayStatus      `json:"relayStatus,omitempty"`
}

// RegisterResponse is the answer to a publish request
type RegisterResponse struct {
	AlreadyRegistered bool `json:"alreadyRegistered"`
}

// NewRelayClient creates a new relay API client
func NewRelayClient(cfg *config.RelayConfig) *RelayClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RelayClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

// Generate submits one render job. A 409 is returned as *ConflictError.
func (c *RelayClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	var result GenerateResponse
	err := c.post(ctx, "/generate", req, &result)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
			return nil, parseConflict(se.Body)
		}
		return nil, err
	}
	if result.JobID == "" {
		return nil, fmt.Errorf("relay returned no job id")
	}
	return &result, nil
}

// GetStatus retrieves the status of a render job
func (c *RelayClient) GetStatus(ctx context.Context, jobID string) (*StatusResponse, error) {
	endpoint := fmt.Sprintf("/generate/%s/status", url.PathEscape(jobID))
	var result StatusResponse
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Register publishes a rendered artifact as the official version
func (c *RelayClient) Register(ctx context.Context, artifactID string) (*RegisterResponse, error) {
	endpoint := fmt.Sprintf("/%s/register", url.PathEscape(artifactID))
	var result RegisterResponse
	if err := c.post(ctx, endpoint, struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsConfigured returns true if the client has a relay to talk to
func (c *RelayClient) IsConfigured() bool {
	return c.baseURL != ""
}

func parseConflict(body string) error {
	var conflict conflictResponse
	if err := json.Unmarshal([]byte(body), &conflict); err != nil || conflict.ExistingJobID == "" {
		return &StatusError{StatusCode: http.StatusConflict, Body: body}
	}
	return &ConflictError{ExistingJobID: conflict.ExistingJobID, Message: conflict.Error}
}

// post sends a POST request with JSON body
func (c *RelayClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *RelayClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request, classifies failures and parses the response
func (c *RelayClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if id, ok := identity.FromContext(req.Context()); ok {
		for k, v := range id.Headers() {
			req.Header.Set(k, v)
		}
	}

	log.Printf("[Relay] → %s %s", req.Method, req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		log.Printf("[Relay] ✗ %s %s: request failed: %v", req.Method, req.URL.Path, err)
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Relay] ✗ %s %s: failed to read response: %v", req.Method, req.URL.Path, err)
		return &TransientError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Relay] ← %d %s %s: %s", resp.StatusCode, req.Method, req.URL.Path, string(respBody))
		if isTransientStatus(resp.StatusCode) {
			return &TransientError{StatusCode: resp.StatusCode, Err: errors.New(string(respBody))}
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	log.Printf("[Relay] ← %d %s %s", resp.StatusCode, req.Method, req.URL.Path)

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[Relay] ✗ unmarshal error for %s %s: %v (body: %s)", req.Method, req.URL.Path, err, string(respBody))
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// ToJobStatus maps the submit answer into the initial queued observation
func (r *GenerateResponse) ToJobStatus() model.JobStatus {
	st := model.JobStatus{
		JobID:       r.JobID,
		Status:      model.ParseJobState(r.Status),
		Message:     r.Message,
		RelayHealth: r.RelayStatus.toModel(),
	}
	if r.QueuePosition != nil || r.QueueLength != nil || r.EstimatedWaitTime != nil || r.QueuedUserCount != nil {
		st.QueueInfo = &model.QueueInfo{
			QueuePosition:        derefInt(r.QueuePosition),
			QueueLength:          derefInt(r.QueueLength),
			EstimatedWaitSeconds: derefInt(r.EstimatedWaitTime),
			QueuedUserCount:      derefInt(r.QueuedUserCount),
		}
	}
	return st
}

// ToJobStatus maps a status observation of jobID into the model
func (s *StatusResponse) ToJobStatus(jobID string) model.JobStatus {
	st := model.JobStatus{
		JobID:         jobID,
		Status:        model.ParseJobState(s.Status),
		Progress:      clampProgress(s.Progress),
		Message:       s.Message,
		Error:         s.Error,
		FailureReason: s.FailureReason,
		RelayHealth:   s.RelayStatus.toModel(),
	}
	if s.QueueInfo != nil {
		st.QueueInfo = &model.QueueInfo{
			QueuePosition:        s.QueueInfo.QueuePosition,
			QueueLength:          s.QueueInfo.QueueLength,
			EstimatedWaitSeconds: s.QueueInfo.EstimatedWaitTime,
			QueuedUserCount:      s.QueueInfo.QueuedUserCount,
			IsProcessing:         s.QueueInfo.IsProcessing,
		}
	}
	if s.Result != nil {
		st.Result = &model.JobResult{
			ArtifactID:     s.Result.ID,
			ImageURL:       s.Result.ImageURL,
			SpreadsheetURL: s.Result.ExcelURL,
		}
	}
	if st.Status == model.JobStateCompleted {
		st.Progress = 100
	}
	return st
}

func (r *RelayStatus) toModel() *model.RelayHealth {
	if r == nil {
		return nil
	}
	return &model.RelayHealth{
		Available:          r.IsAvailable,
		LastResponseTimeMs: r.LastResponseTime,
		LastError:          r.LastError,
	}
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func clampProgress(p float64) int {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return int(math.Round(p))
	}
}
