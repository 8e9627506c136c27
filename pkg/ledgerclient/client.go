/**
 * @description
 * This package provides a client for the external ledger service. It
 * encapsulates the logic for making authenticated HTTP requests to the
 * ledger's credit endpoint, handling request body construction, and parsing
 * responses. The ledger guarantees at-most-once posting per idempotency key,
 * which the sagas rely on when a step is re-entered after a crash.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, net/http, time: Standard Go libraries.
 */
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the ledger service API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new ledger service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreditRequest is the payload for posting a credit journal.
type CreditRequest struct {
	AccountID   string `json:"account_id"`
	Currency    string `json:"currency"`
	Amount      int64  `json:"amount"`
	InitiatedBy string `json:"initiated_by"`
	ExternalRef string `json:"external_ref"`
	Reason      string `json:"reason"`
	CustomerID  string `json:"customer_id"`
}

// journalResponse is the expected response from the ledger's credit endpoint.
type journalResponse struct {
	Data struct {
		JournalID string `json:"journal_id"`
		Status    string `json:"status"`
	} `json:"data"`
}

// ErrorResponse represents an error returned by the ledger service.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("ledger api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown ledger api error"
}

// CreditAccount posts a credit for the given account and returns the journal
// id. The idempotency key is forwarded in the Idempotency-Key header: a
// retried call with the same key returns the journal created by the first
// call instead of posting again.
func (c *Client) CreditAccount(ctx context.Context, idempotencyKey string, req CreditRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credit request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/journals/credit", c.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create credit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ledger credit request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read ledger response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && len(apiErr.Errors) > 0 {
			return "", &apiErr
		}
		return "", fmt.Errorf("ledger credit returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var journal journalResponse
	if err := json.Unmarshal(respBody, &journal); err != nil {
		return "", fmt.Errorf("failed to decode ledger response: %w", err)
	}
	if journal.Data.JournalID == "" {
		return "", fmt.Errorf("ledger response missing journal id")
	}

	return journal.Data.JournalID, nil
}
