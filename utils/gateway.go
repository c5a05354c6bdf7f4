package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// CollectionIntent describes a "collect funds" request to the mobile-money
// gateway. Reference is the locally generated correlation key; the gateway
// dedupes on it, which is what makes retrying the call safe.
type CollectionIntent struct {
	Phone       string
	Amount      int64
	Reference   string
	PlanName    string
	Description string
}

// CollectionResult carries the gateway's response to a collect request.
// Transaction and Collection hold the upstream payloads verbatim so callers
// can pass them through untouched.
type CollectionResult struct {
	TransactionID string
	Status        string
	Transaction   map[string]interface{}
	Collection    map[string]interface{}
}

// StatusResult carries the gateway's answer to a status query.
type StatusResult struct {
	Status      string
	Transaction map[string]interface{}
}

// GatewayError is a non-success response from the collector. Message holds
// the upstream-reported message when the collector sent one.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway returned %d", e.StatusCode)
}

type CollectionGateway interface {
	RequestCollection(ctx context.Context, intent CollectionIntent) (*CollectionResult, error)
	QueryStatus(ctx context.Context, gatewayID string) (*StatusResult, error)
}

type CollectionClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewCollectionClient(baseURL, apiKey string, logger *zap.Logger) *CollectionClient {
	return &CollectionClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type collectRequest struct {
	PhoneNumber string `json:"phone_number"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	Narrative   string `json:"narrative"`
}

type collectResponse struct {
	Success     bool                   `json:"success"`
	Message     string                 `json:"message"`
	Transaction map[string]interface{} `json:"transaction"`
	Collection  map[string]interface{} `json:"collection"`
}

type statusResponse struct {
	Success     bool                   `json:"success"`
	Message     string                 `json:"message"`
	Transaction map[string]interface{} `json:"transaction"`
}

// RequestCollection asks the collector to pull funds from the subscriber's
// mobile-money wallet.
func (c *CollectionClient) RequestCollection(ctx context.Context, intent CollectionIntent) (*CollectionResult, error) {
	narrative := intent.Description
	if narrative == "" {
		narrative = fmt.Sprintf("Payment for %s", intent.PlanName)
	}

	request := collectRequest{
		PhoneNumber: intent.Phone,
		Amount:      intent.Amount,
		Reference:   intent.Reference,
		Narrative:   narrative,
	}

	url := fmt.Sprintf("%s/v1/collections", c.baseURL)
	var response collectResponse
	if err := c.doJSON(ctx, http.MethodPost, url, request, &response); err != nil {
		return nil, err
	}

	transactionID := stringField(response.Transaction, "id")
	if transactionID == "" {
		return nil, &GatewayError{StatusCode: http.StatusOK, Message: response.Message}
	}

	return &CollectionResult{
		TransactionID: transactionID,
		Status:        stringField(response.Transaction, "status"),
		Transaction:   response.Transaction,
		Collection:    response.Collection,
	}, nil
}

// QueryStatus fetches the authoritative status of a previously initiated
// collection.
func (c *CollectionClient) QueryStatus(ctx context.Context, gatewayID string) (*StatusResult, error) {
	url := fmt.Sprintf("%s/v1/collections/%s/status", c.baseURL, gatewayID)
	var response statusResponse
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &response); err != nil {
		return nil, err
	}

	return &StatusResult{
		Status:      stringField(response.Transaction, "status"),
		Transaction: response.Transaction,
	}, nil
}

// doJSON performs one gateway call with bounded fibonacci-backoff retries.
// Only transport errors and 5xx responses are retried; the collector dedupes
// on the collection reference so replays cannot double-charge.
func (c *CollectionClient) doJSON(ctx context.Context, method, url string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode gateway request: %w", err)
		}
	}

	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("failed to build gateway request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("gateway request failed", zap.String("url", url), zap.Error(err))
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("failed to read gateway response: %w", err))
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			c.logger.Warn("gateway returned server error",
				zap.String("url", url), zap.Int("status", resp.StatusCode))
			return retry.RetryableError(&GatewayError{StatusCode: resp.StatusCode, Message: upstreamMessage(data)})
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return &GatewayError{StatusCode: resp.StatusCode, Message: upstreamMessage(data)}
		}

		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse gateway response: %w", err)
		}
		return nil
	})
}

func upstreamMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
