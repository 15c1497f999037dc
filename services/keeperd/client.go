package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal JSON-RPC client for the node's HTTP endpoint.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the given node URL. A nil http client falls
// back to a 15 second timeout default.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    httpClient,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
	ID      int           `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Call invokes a JSON-RPC method with a single parameter object and decodes
// the result into out when non-nil.
func (c *Client) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	payload := rpcRequest{JSONRPC: "2.0", Method: method, ID: 1}
	if params != nil {
		payload.Params = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("keeperd: encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("keeperd: build %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("keeperd: call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("keeperd: decode %s: %w", method, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("keeperd: %s failed: %s (code %d)", method, decoded.Error.Message, decoded.Error.Code)
	}
	if out != nil && decoded.Result != nil {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("keeperd: decode %s result: %w", method, err)
		}
	}
	return nil
}
