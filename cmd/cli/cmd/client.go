package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"spinframe/pkg/api"
)

// SeqClient handles API calls to the spinframe controller.
type SeqClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSeqClient creates a new client for the given base URL.
func NewSeqClient(baseURL string) *SeqClient {
	return &SeqClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
	Body       api.ErrorResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// SubmitJob sends POST /jobs.
func (c *SeqClient) SubmitJob(req api.SubmitJobRequest) (*api.SubmitJobResponse, error) {
	var result api.SubmitJobResponse
	if err := c.do(http.MethodPost, "/jobs", req, &result, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob sends GET /jobs/{id}.
func (c *SeqClient) GetJob(jobID string) (*api.JobResponse, error) {
	var result api.JobResponse
	if err := c.do(http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListJobs sends GET /jobs.
func (c *SeqClient) ListJobs() (*api.JobListResponse, error) {
	var result api.JobListResponse
	if err := c.do(http.MethodGet, "/jobs", nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelJob sends POST /jobs/{id}/cancel.
func (c *SeqClient) CancelJob(jobID string) (*api.CancelJobResponse, error) {
	var result api.CancelJobResponse
	if err := c.do(http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/cancel", nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListModels sends GET /models.
func (c *SeqClient) ListModels() (*api.ModelListResponse, error) {
	var result api.ModelListResponse
	if err := c.do(http.MethodGet, "/models", nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteModel sends DELETE /models/{id}.
func (c *SeqClient) DeleteModel(modelID string) (*api.DeleteModelResponse, error) {
	var result api.DeleteModelResponse
	if err := c.do(http.MethodDelete, "/models/"+url.PathEscape(modelID), nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetResources sends GET /resources.
func (c *SeqClient) GetResources() (*api.ResourcesResponse, error) {
	var result api.ResourcesResponse
	if err := c.do(http.MethodGet, "/resources", nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *SeqClient) do(method, path string, body, out any, okStatus int) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != okStatus {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		if json.Unmarshal(respBody, &apiErr.Body) == nil && apiErr.Body.Error != "" {
			apiErr.Message = apiErr.Body.Error
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// printAPIError reports err the same way for every command.
func printAPIError(printf func(format string, args ...any), action string, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		printf("%s failed: %v\n", action, err)
		return
	}
	printf("%s failed (%d): %s\n", action, apiErr.StatusCode, apiErr.Message)
	if apiErr.Body.MemoryPressure != "" || apiErr.Body.DiskPressure != "" {
		printf("  memory pressure: %s, disk pressure: %s\n", apiErr.Body.MemoryPressure, apiErr.Body.DiskPressure)
	}
}
