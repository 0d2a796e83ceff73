package apiclient

import (
	"context"
	"net/http"
	"strings"
)

// Push backend endpoints.
const (
	VapidPublicKeyPath = "/api/Notifications/vapidPublicKey"
	SubscribePath      = "/api/Notifications/subscribe"
	SubscriptionPath   = "/api/Notifications/subscription"
	SendPath           = "/api/Notifications/send"
)

// DispatchResponse is the response from POST /api/Notifications/send.
type DispatchResponse struct {
	Message     string `json:"message"`
	TotalSent   int    `json:"totalSent"`
	FailedCount int    `json:"failedCount"`
}

// SubscribeRequest is the body for POST /api/Notifications/subscribe.
type SubscribeRequest struct {
	Endpoint string        `json:"endpoint"`
	Keys     SubscribeKeys `json:"keys"`
}

// SubscribeKeys holds the client's push encryption keys.
type SubscribeKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// SubscribeResponse is the response from a subscribe request.
type SubscribeResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// SubscriptionResponse is one entry from GET /api/Notifications/subscription.
type SubscriptionResponse struct {
	ID        int64  `json:"id"`
	Endpoint  string `json:"endpoint"`
	P256dh    string `json:"p256dh"`
	Auth      string `json:"auth"`
	CreatedAt string `json:"createdAt"`
}

// SendNotification asks the backend to push message to the current
// subscriber. The body is sent as raw text.
func (c *Client) SendNotification(ctx context.Context, message string) (*DispatchResponse, error) {
	body, err := c.doRequest(ctx, http.MethodPost, SendPath, strings.NewReader(message), "text/plain; charset=utf-8")
	if err != nil {
		return nil, err
	}
	var resp DispatchResponse
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Subscribe registers a push endpoint with the backend.
func (c *Client) Subscribe(ctx context.Context, endpoint, p256dh, auth string) (*SubscribeResponse, error) {
	req := SubscribeRequest{Endpoint: endpoint, Keys: SubscribeKeys{P256dh: p256dh, Auth: auth}}
	var resp SubscribeResponse
	if err := c.doJSON(ctx, http.MethodPost, SubscribePath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Subscriptions lists registered subscriptions.
func (c *Client) Subscriptions(ctx context.Context) ([]SubscriptionResponse, error) {
	var resp []SubscriptionResponse
	if err := c.doJSON(ctx, http.MethodGet, SubscriptionPath, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// VapidPublicKey fetches the backend's VAPID public key.
func (c *Client) VapidPublicKey(ctx context.Context) (string, error) {
	var resp struct {
		PublicKey string `json:"publicKey"`
	}
	if err := c.doJSON(ctx, http.MethodGet, VapidPublicKeyPath, nil, &resp); err != nil {
		return "", err
	}
	return resp.PublicKey, nil
}
