package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/radio-control/rfcontrol/internal/control"
)

// Client calls a remote JSON-RPC control endpoint.
type Client struct {
	url    string
	http   *http.Client
	nextID int64
}

var _ control.Controller = (*Client)(nil)

// NewClient creates a client for the server at baseURL, e.g. http://localhost:8080.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		url:  strings.TrimSuffix(baseURL, "/") + "/rpc",
		http: &http.Client{Timeout: timeout},
	}
}

// ApplySettings calls applySettings. A JSON-RPC error is returned as *Error
// together with the response carried in its data member, when present.
func (c *Client) ApplySettings(ctx context.Context, req control.SettingsRequest) (*control.SettingsResponse, error) {
	params := map[string]interface{}{
		"frequencyMHz": req.FrequencyMHz,
		"gainDB":       req.GainDB,
		"deviceId":     req.DeviceID,
	}

	var resp control.SettingsResponse
	if err := c.call(ctx, MethodApplySettings, params, &resp); err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) && len(rpcErr.Data) > 0 {
			var data control.SettingsResponse
			if json.Unmarshal(rpcErr.Data, &data) == nil {
				return &data, err
			}
		}
		return nil, err
	}
	return &resp, nil
}

// GetStatus calls getStatus.
func (c *Client) GetStatus(ctx context.Context, req control.StatusRequest) (*control.StatusResponse, error) {
	var resp control.StatusResponse
	if err := c.call(ctx, MethodGetStatus, map[string]interface{}{"deviceId": req.DeviceID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	body, err := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  rawParams,
		ID:      atomic.AddInt64(&c.nextID, 1),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s request failed: HTTP %d", method, httpResp.StatusCode)
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
