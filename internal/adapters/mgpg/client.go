package mgpg

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kevin07696/purchase-gateway/internal/adapters/upstream"
)

// Client calls the MGPG payment-processing service
type Client struct {
	client *upstream.Client
}

// NewClient wraps an upstream client pointed at MGPG
func NewClient(client *upstream.Client) *Client {
	return &Client{client: client}
}

// Init opens an MGPG purchase
func (c *Client) Init(ctx context.Context, req InitRequest) (*InitResponse, error) {
	var resp InitResponse
	if err := c.client.Do(ctx, http.MethodPost, "/api/v1/payment/init", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Process pays for the MGPG purchase sessionID
func (c *Client) Process(ctx context.Context, sessionID string, req ProcessRequest) (*ProcessResponse, error) {
	var resp ProcessResponse
	path := "/api/v1/payment/" + url.PathEscape(sessionID) + "/process"
	if err := c.client.Do(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
