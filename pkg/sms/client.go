// Package sms provides a client for an HTTP SMS gateway.
//
// The gateway contract is deliberately minimal: POST a phone number and a
// message, get back a delivery id. A provider-specific integration (Twilio
// and the like) slots in behind the same interface.
package sms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client represents an SMS gateway client used to send notifications.
type Client struct {
	gatewayURL string
	apiKey     string
	client     *http.Client
}

// NewClient creates a new SMS gateway client.
func NewClient(gatewayURL, apiKey string) *Client {
	return &Client{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		client:     &http.Client{},
	}
}

// sendMessageRequest represents the payload for the gateway's send endpoint.
type sendMessageRequest struct {
	To      string `json:"to"`      // recipient phone number
	Message string `json:"message"` // message text
}

// sendMessageResponse represents the gateway's reply.
type sendMessageResponse struct {
	DeliveryID string `json:"delivery_id"`
}

// Send submits a message to the gateway and returns its delivery id.
func (c *Client) Send(phone, msg string) (string, error) {
	reqBody := sendMessageRequest{
		To:      phone,
		Message: msg,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.gatewayURL, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sms gateway error: %s", resp.Status)
	}

	var result sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return result.DeliveryID, nil
}
