package bam

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestNewClient verifies the constructor creates a properly configured client.
func TestNewClient(t *testing.T) {
	client := NewClient("https://bam.example.com/", "test-token")

	if client.BaseURL != "https://bam.example.com"+APIPrefix {
		t.Errorf("BaseURL = %q, want server + %q", client.BaseURL, APIPrefix)
	}
	if client.Token != "test-token" {
		t.Errorf("Token = %q, want %q", client.Token, "test-token")
	}
	if client.HTTPClient == nil {
		t.Error("HTTPClient is nil, want non-nil default client")
	}
}

// TestLogin verifies the credential exchange.
func TestLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != APIPrefix+"/login" {
			t.Errorf("request = %s %s, want POST %s/login", r.Method, r.URL.Path, APIPrefix)
		}
		var req loginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "apiuser" || req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(loginResponse{Token: "session-token"})
	}))
	defer server.Close()

	token, err := Login(context.Background(), server.URL, "apiuser", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if token != "session-token" {
		t.Errorf("Login() token = %q, want %q", token, "session-token")
	}

	_, err = Login(context.Background(), server.URL, "apiuser", "wrong")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Login(bad password) error = %v, want ErrUnauthorized", err)
	}
}

// TestCreateEntity verifies entity creation and conflict mapping.
func TestCreateEntity(t *testing.T) {
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != APIPrefix+"/entities" {
			t.Errorf("request = %s %s, want POST %s/entities", r.Method, r.URL.Path, APIPrefix)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("Authorization header = %q, want Bearer prefix", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&capturedBody)
		if capturedBody["cidr"] == "10.0.0.0/8" {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(Entity{ID: 101, Type: "ip4_block", Name: "corp"})
			return
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`duplicate cidr`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token")
	ctx := context.Background()

	entity, err := client.CreateEntity(ctx, "ip4_block", map[string]any{"cidr": "10.0.0.0/8", "name": "corp"})
	if err != nil {
		t.Fatalf("CreateEntity() error = %v", err)
	}
	if entity.ID != 101 {
		t.Errorf("entity.ID = %d, want 101", entity.ID)
	}
	if capturedBody["type"] != "ip4_block" {
		t.Errorf("request body type = %v, want ip4_block", capturedBody["type"])
	}

	_, err = client.CreateEntity(ctx, "ip4_block", map[string]any{"cidr": "10.0.0.0/16"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("CreateEntity(duplicate) error = %v, want ErrAlreadyExists", err)
	}
}

// TestUpdateEntityByID verifies updates go to PUT /entities/{id}.
func TestUpdateEntityByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != APIPrefix+"/entities/42" {
			t.Errorf("request = %s %s, want PUT %s/entities/42", r.Method, r.URL.Path, APIPrefix)
		}
		_ = json.NewEncoder(w).Encode(Entity{ID: 42, Type: "ip4_network", Name: "renamed"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token")
	entity, err := client.UpdateEntityByID(context.Background(), 42, map[string]any{"name": "renamed"})
	if err != nil {
		t.Fatalf("UpdateEntityByID() error = %v", err)
	}
	if entity.Name != "renamed" {
		t.Errorf("entity.Name = %q, want %q", entity.Name, "renamed")
	}
}

// TestDeleteEntityByID verifies the dangerous flag reaches the query string.
func TestDeleteEntityByID(t *testing.T) {
	var capturedQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != APIPrefix+"/entities/7" {
			t.Errorf("request = %s %s, want DELETE %s/entities/7", r.Method, r.URL.Path, APIPrefix)
		}
		capturedQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "token")
	if err := client.DeleteEntityByID(context.Background(), 7, true); err != nil {
		t.Fatalf("DeleteEntityByID() error = %v", err)
	}
	if !strings.Contains(capturedQuery, "dangerous=true") {
		t.Errorf("query = %q, want dangerous=true", capturedQuery)
	}

	if err := client.DeleteEntityByID(context.Background(), 7, false); err != nil {
		t.Fatalf("DeleteEntityByID(safe) error = %v", err)
	}
	if strings.Contains(capturedQuery, "dangerous") {
		t.Errorf("query = %q, want no dangerous param", capturedQuery)
	}
}

// TestNaturalKeyLookups verifies the query parameters each lookup sends and
// the 404 → ErrNotFound mapping.
func TestNaturalKeyLookups(t *testing.T) {
	var capturedQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedQuery = map[string]string{}
		for k := range r.URL.Query() {
			capturedQuery[k] = r.URL.Query().Get(k)
		}
		if capturedQuery["name"] == "ghost" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(Entity{ID: 9, Type: capturedQuery["type"]})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token")
	ctx := context.Background()

	tests := []struct {
		name      string
		call      func() (*Entity, error)
		wantQuery map[string]string
	}{
		{
			name:      "block by cidr",
			call:      func() (*Entity, error) { return client.BlockByCIDR(ctx, "prod", "10.0.0.0/8") },
			wantQuery: map[string]string{"type": "ip4_block", "config": "prod", "cidr": "10.0.0.0/8"},
		},
		{
			name:      "network by cidr",
			call:      func() (*Entity, error) { return client.NetworkByCIDR(ctx, "prod", "10.1.0.0/24") },
			wantQuery: map[string]string{"type": "ip4_network", "config": "prod", "cidr": "10.1.0.0/24"},
		},
		{
			name:      "address by ip",
			call:      func() (*Entity, error) { return client.AddressByIP(ctx, "prod", "10.1.0.5") },
			wantQuery: map[string]string{"type": "ip4_address", "config": "prod", "address": "10.1.0.5"},
		},
		{
			name:      "zone by fqdn",
			call:      func() (*Entity, error) { return client.ZoneByFQDN(ctx, "prod/internal", "example.com") },
			wantQuery: map[string]string{"type": "dns_zone", "view": "prod/internal", "name": "example.com"},
		},
		{
			name:      "record by name",
			call:      func() (*Entity, error) { return client.RecordByName(ctx, "example.com", "web01", "host_record") },
			wantQuery: map[string]string{"type": "host_record", "zone": "example.com", "name": "web01"},
		},
		{
			name:      "entity by name",
			call:      func() (*Entity, error) { return client.EntityByName(ctx, "device", "prod", "router1") },
			wantQuery: map[string]string{"type": "device", "config": "prod", "name": "router1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entity, err := tt.call()
			if err != nil {
				t.Fatalf("lookup error = %v", err)
			}
			if entity.ID != 9 {
				t.Errorf("entity.ID = %d, want 9", entity.ID)
			}
			for k, v := range tt.wantQuery {
				if capturedQuery[k] != v {
					t.Errorf("query[%s] = %q, want %q", k, capturedQuery[k], v)
				}
			}
		})
	}

	_, err := client.EntityByName(ctx, "device", "", "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("lookup(missing) error = %v, want ErrNotFound", err)
	}
}

// TestChildren verifies the children listing used by orphan scans.
func TestChildren(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != APIPrefix+"/entities/5/children" {
			t.Errorf("URL path = %s, want %s/entities/5/children", r.URL.Path, APIPrefix)
		}
		if r.URL.Query().Get("type") != "ip4_network" {
			t.Errorf("type param = %q, want ip4_network", r.URL.Query().Get("type"))
		}
		_ = json.NewEncoder(w).Encode([]Entity{
			{ID: 51, Type: "ip4_network"},
			{ID: 52, Type: "ip4_network"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token")
	children, err := client.Children(context.Background(), 5, "ip4_network")
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}
	if len(children) != 2 || children[0].ID != 51 {
		t.Errorf("Children() = %v, want ids 51, 52", children)
	}
}

// TestRateLimitMapping verifies 429 produces a RateLimitError carrying the
// Retry-After hint, and defaults to one second without the header.
func TestRateLimitMapping(t *testing.T) {
	withHeader := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if withHeader {
			w.Header().Set("Retry-After", "7")
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, "token")
	ctx := context.Background()

	_, err := client.GetEntityByID(ctx, 1)
	retryAfter, ok := AsRateLimit(err)
	if !ok {
		t.Fatalf("GetEntityByID() error = %v, want RateLimitError", err)
	}
	if retryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %s, want 7s", retryAfter)
	}

	withHeader = false
	_, err = client.GetEntityByID(ctx, 1)
	if retryAfter, ok = AsRateLimit(err); !ok || retryAfter != time.Second {
		t.Errorf("RetryAfter without header = %s (%v), want 1s default", retryAfter, err)
	}
}

// TestServerErrorMapping verifies 5xx produces a typed ServerError without
// transport-level retries.
func TestServerErrorMapping(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token")
	_, err := client.GetEntityByID(context.Background(), 1)

	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("error = %v, want *ServerError", err)
	}
	if serverErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", serverErr.StatusCode)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (status errors must not retry)", attempts)
	}
}

// TestTransportRetry verifies connection-level failures are retried.
func TestTransportRetry(t *testing.T) {
	tests := []struct {
		err  string
		want bool
	}{
		{"dial tcp 127.0.0.1:1: connect: connection refused", true},
		{"read tcp: connection reset by peer", true},
		{"write: broken pipe", true},
		{"net/http: request canceled (Client.Timeout exceeded)", false},
		{"unsupported protocol scheme", false},
	}
	for _, tt := range tests {
		if got := isRetryableTransport(errors.New(tt.err)); got != tt.want {
			t.Errorf("isRetryableTransport(%q) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

// TestEntityState verifies the conversion to the engine's snapshot shape.
func TestEntityState(t *testing.T) {
	entity := &Entity{
		ID:   3,
		Type: "ip4_network",
		Name: "app-net",
		Properties: map[string]any{
			"cidr":    "10.1.0.0/24",
			"gateway": "10.1.0.1",
		},
	}
	state := entity.State()
	if state.ID != 3 || state.Type != "ip4_network" {
		t.Errorf("state identity = %d/%s", state.ID, state.Type)
	}
	if state.Properties["name"] != "app-net" {
		t.Errorf("state name property = %v, want app-net", state.Properties["name"])
	}
	if state.Properties["cidr"] != "10.1.0.0/24" {
		t.Errorf("state cidr = %v", state.Properties["cidr"])
	}
	// The entity's own property map must not alias the snapshot.
	state.Properties["cidr"] = "changed"
	if entity.Properties["cidr"] != "10.1.0.0/24" {
		t.Error("State() aliased the entity property map")
	}
}
