/**
 * @description
 * This package provides a client for the external customer service, used by
 * the registration activation saga to create the banking customer record.
 * Creation is idempotent per idempotency key, so a re-entered saga step that
 * already created the customer receives the same customer id back.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, net/http, time: Standard Go libraries.
 */
package customerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the customer service API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new customer service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateCustomerRequest is the payload for creating a customer.
type CreateCustomerRequest struct {
	ExternalRef string `json:"external_ref"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Country     string `json:"country"`
	TaxID       string `json:"tax_id,omitempty"`
	BirthDate   string `json:"birth_date,omitempty"`
}

type customerResponse struct {
	Data struct {
		CustomerID string `json:"customer_id"`
		Status     string `json:"status"`
	} `json:"data"`
}

// CreateCustomer creates a customer record and returns its id. The idempotency
// key is forwarded in the Idempotency-Key header so a retried call returns the
// customer created by the first one.
func (c *Client) CreateCustomer(ctx context.Context, idempotencyKey string, req CreateCustomerRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal customer request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/customers", c.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create customer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("customer creation request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read customer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("customer creation returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var customer customerResponse
	if err := json.Unmarshal(respBody, &customer); err != nil {
		return "", fmt.Errorf("failed to decode customer response: %w", err)
	}
	if customer.Data.CustomerID == "" {
		return "", fmt.Errorf("customer response missing customer id")
	}

	return customer.Data.CustomerID, nil
}
