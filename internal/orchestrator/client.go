package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps the downstream home-automation orchestrator's REST surface.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a Client against baseURL, authenticating with token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransientError{Op: method + " " + path, Err: err}
	}
	return resp, nil
}

func decodeOrFail(op string, resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return &TransientError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return &PermanentError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// CheckAllowList reports a *PolicyRefusedError if serviceName is absent
// from allowList. Both the Rule Engine and the Management API's
// call-service handler must run this before ever reaching CallService.
func CheckAllowList(allowList []string, serviceName string) error {
	for _, s := range allowList {
		if s == serviceName {
			return nil
		}
	}
	return &PolicyRefusedError{ServiceName: serviceName}
}

// CallService invokes serviceName with target/data. Callers MUST run
// CheckAllowList first; this method performs no allow-list check of its
// own, so that the single source of truth for the policy lives at the
// call site that owns the configured allow-list.
func (c *Client) CallService(ctx context.Context, serviceName string, target, data map[string]interface{}) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/services/call/"+serviceName, map[string]interface{}{
		"target": target,
		"data":   data,
	})
	if err != nil {
		return err
	}
	return decodeOrFail("call_service", resp, nil)
}

// ListScripts returns the orchestrator's configured scripts.
func (c *Client) ListScripts(ctx context.Context) ([]Script, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/scripts", nil)
	if err != nil {
		return nil, err
	}
	var out []Script
	if err := decodeOrFail("list_scripts", resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAutomations returns the orchestrator's configured automations.
func (c *Client) ListAutomations(ctx context.Context) ([]Automation, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/automations", nil)
	if err != nil {
		return nil, err
	}
	var out []Automation
	if err := decodeOrFail("list_automations", resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEntities returns every entity the orchestrator knows about.
func (c *Client) ListEntities(ctx context.Context) ([]Entity, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/entities", nil)
	if err != nil {
		return nil, err
	}
	var out []Entity
	if err := decodeOrFail("list_entities", resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ServiceDetails describes the fields a given service expects.
func (c *Client) ServiceDetails(ctx context.Context, name string) (ServiceDetail, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/services/"+name, nil)
	if err != nil {
		return ServiceDetail{}, err
	}
	var out ServiceDetail
	if err := decodeOrFail("service_details", resp, &out); err != nil {
		return ServiceDetail{}, err
	}
	return out, nil
}

// Status reports the orchestrator's own health/version summary.
func (c *Client) Status(ctx context.Context) (Status, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/config", nil)
	if err != nil {
		return Status{}, err
	}
	var out Status
	if err := decodeOrFail("status", resp, &out); err != nil {
		return Status{}, err
	}
	return out, nil
}
