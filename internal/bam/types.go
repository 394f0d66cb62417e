// Package bam provides client and data types for the Address Manager REST
// API. It handles authentication, entity CRUD, and the natural-key lookups
// the reconciliation engine needs (CIDR within a configuration, FQDN within
// a view, record name within a zone). Transport errors are retried; API
// status codes map to the typed errors in errors.go.
package bam

import (
	"net/http"
	"time"

	"github.com/ipamtools/bamsync/internal/model"
)

// API configuration constants.
const (
	// APIPrefix is appended to the server address to form the base URL.
	APIPrefix = "/api/v1"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// transportRetryMaxElapsed bounds the transient-transport retry window.
	transportRetryMaxElapsed = 30 * time.Second

	// maxResponseSize caps response reads; entity payloads are small.
	maxResponseSize = 10 * 1024 * 1024
)

// Client provides methods to interact with the Address Manager REST API.
type Client struct {
	BaseURL    string       // API base URL including APIPrefix
	Token      string       // session token from Login
	HTTPClient *http.Client // optional custom HTTP client
}

// NewClient creates a client for the given server address, e.g.
// "https://bam.example.com".
func NewClient(server, token string) *Client {
	return &Client{
		BaseURL: trimSlash(server) + APIPrefix,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		BaseURL:    c.BaseURL,
		Token:      c.Token,
		HTTPClient: httpClient,
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Entity is one addressable resource as the API represents it.
type Entity struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// State converts the entity to the engine's resource-state snapshot. The
// name joins the property map so field diffs see it like any other field.
func (e *Entity) State() *model.ResourceState {
	props := make(map[string]any, len(e.Properties)+1)
	for k, v := range e.Properties {
		props[k] = v
	}
	if e.Name != "" {
		if _, ok := props["name"]; !ok {
			props["name"] = e.Name
		}
	}
	return &model.ResourceState{
		ID:         e.ID,
		Type:       e.Type,
		Properties: props,
	}
}

// loginRequest is the body of POST /login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse carries the session token.
type loginResponse struct {
	Token string `json:"token"`
}
