package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CreemClient initiates hosted checkout sessions with the Creem payments API.
// The subscription upgrade itself lands through the activation callback after
// the user completes payment on the hosted page.
type CreemClient interface {
	CreateCheckout(ctx context.Context, productID string) (string, error)
}

type creemClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewCreemClient(baseURL, apiKey string) CreemClient {
	return &creemClient{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type creemCheckoutRequest struct {
	ProductID string `json:"product_id"`
}

type creemCheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

// CreateCheckout creates a checkout session for the product and returns the
// hosted payment page URL.
func (c *creemClient) CreateCheckout(ctx context.Context, productID string) (string, error) {
	if productID == "" {
		return "", errors.New("product id cannot be empty")
	}

	bodyJSON, err := json.Marshal(creemCheckoutRequest{ProductID: productID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkouts", bytes.NewReader(bodyJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create checkout request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read checkout response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("Creem API request failed: %d %s - %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), string(body))
	}

	var result creemCheckoutResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode checkout response: %w", err)
	}
	if result.CheckoutURL == "" {
		return "", errors.New("checkout response missing checkout_url")
	}

	return result.CheckoutURL, nil
}
