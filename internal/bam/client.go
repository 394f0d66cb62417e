package bam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Login exchanges credentials for a session token.
func Login(ctx context.Context, server, username, password string) (string, error) {
	c := NewClient(server, "")
	respBody, err := c.doRequest(ctx, http.MethodPost, c.BaseURL+"/login", loginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}
	var resp loginResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse login response: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login failed: %w", ErrUnauthorized)
	}
	return resp.Token, nil
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}
	return u
}

func newTransportBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = transportRetryMaxElapsed
	return bo
}

// isRetryableTransport returns true for connection-level errors worth
// retrying. Status-code errors never retry here: rate limits get exactly one
// engine-level retry, and everything else is a real answer from the server.
func isRetryableTransport(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection refused") {
		return true
	}
	if strings.Contains(errStr, "connection reset") {
		return true
	}
	if strings.Contains(errStr, "broken pipe") {
		return true
	}
	if strings.Contains(errStr, "i/o timeout") {
		return true
	}
	if strings.Contains(errStr, "unexpected eof") {
		return true
	}
	return false
}

// doRequest performs one authenticated request with transport retry and maps
// API status codes to typed errors.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		if jsonBody, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var respBody []byte
	bo := newTransportBackoff()
	err := backoff.Retry(func() error {
		var reqBody io.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if isRetryableTransport(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("request failed: %w", err))
		}

		respBody, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if apiErr := mapStatus(resp, respBody); apiErr != nil {
			return backoff.Permanent(apiErr)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

// mapStatus converts non-2xx responses into the package's typed errors.
func mapStatus(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(string(body)))
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, strings.TrimSpace(string(body)))
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := time.Second
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	case resp.StatusCode >= 500:
		return &ServerError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	default:
		return fmt.Errorf("API error: %s (status %d)", strings.TrimSpace(string(body)), resp.StatusCode)
	}
}

// CreateEntity creates a resource and returns its server-assigned identity.
func (c *Client) CreateEntity(ctx context.Context, objectType string, payload map[string]any) (*Entity, error) {
	body := map[string]any{"type": objectType}
	for k, v := range payload {
		body[k] = v
	}
	respBody, err := c.doRequest(ctx, http.MethodPost, c.buildURL("/entities", nil), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", objectType, err)
	}
	return parseEntity(respBody)
}

// UpdateEntityByID applies the payload to an existing resource.
func (c *Client) UpdateEntityByID(ctx context.Context, id int64, payload map[string]any) (*Entity, error) {
	respBody, err := c.doRequest(ctx, http.MethodPut, c.buildURL("/entities/"+strconv.FormatInt(id, 10), nil), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to update entity %d: %w", id, err)
	}
	return parseEntity(respBody)
}

// DeleteEntityByID removes a resource. allowDangerous permits deleting
// containers that still hold children.
func (c *Client) DeleteEntityByID(ctx context.Context, id int64, allowDangerous bool) error {
	params := map[string]string{}
	if allowDangerous {
		params["dangerous"] = "true"
	}
	_, err := c.doRequest(ctx, http.MethodDelete, c.buildURL("/entities/"+strconv.FormatInt(id, 10), params), nil)
	if err != nil {
		return fmt.Errorf("failed to delete entity %d: %w", id, err)
	}
	return nil
}

// GetEntityByID retrieves a single resource.
func (c *Client) GetEntityByID(ctx context.Context, id int64) (*Entity, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/entities/"+strconv.FormatInt(id, 10), nil), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entity %d: %w", id, err)
	}
	return parseEntity(respBody)
}

// lookup queries the entity search endpoint; exactly one match or ErrNotFound.
func (c *Client) lookup(ctx context.Context, params map[string]string) (*Entity, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/entities", params), nil)
	if err != nil {
		return nil, err
	}
	return parseEntity(respBody)
}

// BlockByCIDR finds an address block by CIDR within a configuration.
func (c *Client) BlockByCIDR(ctx context.Context, config, cidr string) (*Entity, error) {
	entity, err := c.lookup(ctx, map[string]string{"type": "ip4_block", "config": config, "cidr": cidr})
	if err != nil {
		return nil, fmt.Errorf("failed to look up block %s in %s: %w", cidr, config, err)
	}
	return entity, nil
}

// NetworkByCIDR finds a network by CIDR within a configuration.
func (c *Client) NetworkByCIDR(ctx context.Context, config, cidr string) (*Entity, error) {
	entity, err := c.lookup(ctx, map[string]string{"type": "ip4_network", "config": config, "cidr": cidr})
	if err != nil {
		return nil, fmt.Errorf("failed to look up network %s in %s: %w", cidr, config, err)
	}
	return entity, nil
}

// AddressByIP finds an assigned address within a configuration.
func (c *Client) AddressByIP(ctx context.Context, config, address string) (*Entity, error) {
	entity, err := c.lookup(ctx, map[string]string{"type": "ip4_address", "config": config, "address": address})
	if err != nil {
		return nil, fmt.Errorf("failed to look up address %s in %s: %w", address, config, err)
	}
	return entity, nil
}

// ZoneByFQDN finds a DNS zone by fully qualified name within a view path
// ("config/view").
func (c *Client) ZoneByFQDN(ctx context.Context, viewPath, fqdn string) (*Entity, error) {
	entity, err := c.lookup(ctx, map[string]string{"type": "dns_zone", "view": viewPath, "name": fqdn})
	if err != nil {
		return nil, fmt.Errorf("failed to look up zone %s in view %s: %w", fqdn, viewPath, err)
	}
	return entity, nil
}

// RecordByName finds a DNS record by name and record type within a zone.
func (c *Client) RecordByName(ctx context.Context, zoneFQDN, name, recordType string) (*Entity, error) {
	entity, err := c.lookup(ctx, map[string]string{"type": recordType, "zone": zoneFQDN, "name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s record %s in zone %s: %w", recordType, name, zoneFQDN, err)
	}
	return entity, nil
}

// EntityByName finds a resource by type and name, optionally scoped to a
// configuration. Covers devices, locations, device types, tag groups and the
// other name-keyed resources.
func (c *Client) EntityByName(ctx context.Context, objectType, config, name string) (*Entity, error) {
	params := map[string]string{"type": objectType, "name": name}
	if config != "" {
		params["config"] = config
	}
	entity, err := c.lookup(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s %q: %w", objectType, name, err)
	}
	return entity, nil
}

// Children lists a container's direct children of one type. Used by orphan
// scans; the empty list is not an error.
func (c *Client) Children(ctx context.Context, parentID int64, objectType string) ([]Entity, error) {
	params := map[string]string{}
	if objectType != "" {
		params["type"] = objectType
	}
	respBody, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/entities/"+strconv.FormatInt(parentID, 10)+"/children", params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %d: %w", parentID, err)
	}
	var children []Entity
	if err := json.Unmarshal(respBody, &children); err != nil {
		return nil, fmt.Errorf("failed to parse children response: %w", err)
	}
	return children, nil
}

func parseEntity(respBody []byte) (*Entity, error) {
	var entity Entity
	if err := json.Unmarshal(respBody, &entity); err != nil {
		return nil, fmt.Errorf("failed to parse entity response: %w", err)
	}
	return &entity, nil
}
