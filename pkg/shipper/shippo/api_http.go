package shippo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tournevent/shipping/pkg/shipper"
)

const defaultBaseURL = "https://api.goshippo.com"

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &HTTPAPIClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateShipment creates a shipment and returns its rates.
// POST /shipments/ with async=false answers with the rates inline.
func (c *HTTPAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error) {
	req.Async = false

	var result ShipmentResponse
	if err := c.do(ctx, http.MethodPost, "/shipments/", req, &result, http.StatusOK, http.StatusCreated); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRate fetches a rate by id.
// GET /rates/{rate_id}
func (c *HTTPAPIClient) GetRate(ctx context.Context, rateID string) (*shipper.AggregatorRate, error) {
	var result shipper.AggregatorRate
	path := fmt.Sprintf("/rates/%s", url.PathEscape(rateID))
	if err := c.do(ctx, http.MethodGet, path, nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateTransaction purchases a label.
// POST /transactions/ - the status field carries SUCCESS or ERROR.
func (c *HTTPAPIClient) CreateTransaction(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error) {
	req.Async = false

	var result TransactionResponse
	if err := c.do(ctx, http.MethodPost, "/transactions/", req, &result, http.StatusOK, http.StatusCreated); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTrack retrieves tracking information.
// GET /tracks/{carrier}/{tracking_number}
func (c *HTTPAPIClient) GetTrack(ctx context.Context, carrier, trackingNumber string) (*TrackResponse, error) {
	var result TrackResponse
	path := fmt.Sprintf("/tracks/%s/%s", url.PathEscape(carrier), url.PathEscape(trackingNumber))
	if err := c.do(ctx, http.MethodGet, path, nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// RegisterTrack registers a tracking webhook.
// POST /tracks/
func (c *HTTPAPIClient) RegisterTrack(ctx context.Context, req *TrackRegistration) (*TrackResponse, error) {
	var result TrackResponse
	if err := c.do(ctx, http.MethodPost, "/tracks/", req, &result, http.StatusOK, http.StatusCreated); err != nil {
		return nil, err
	}
	return &result, nil
}

// do performs a request and decodes the JSON answer into out.
func (c *HTTPAPIClient) do(ctx context.Context, method, path string, body, out interface{}, expected ...int) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	ok := false
	for _, code := range expected {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		return c.parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// doRequest performs an HTTP request with proper headers and authentication.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "ShippoToken "+c.apiKey)
	req.Header.Set("User-Agent", "tournevent-shipping/1.0")

	return c.httpClient.Do(req)
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	// Try to parse as a simple error message
	var simpleErr struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &simpleErr); err == nil {
		msg := simpleErr.Detail
		if msg == "" {
			msg = simpleErr.Error
		}
		if msg == "" {
			msg = simpleErr.Message
		}
		if msg != "" {
			return &APIError{
				Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
				Message:    msg,
				StatusCode: resp.StatusCode,
			}
		}
	}

	return &APIError{
		Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
		Message:    string(body),
		StatusCode: resp.StatusCode,
	}
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
