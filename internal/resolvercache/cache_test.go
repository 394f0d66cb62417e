package resolvercache

import (
	"sync"
	"testing"
)

func TestPutGet(t *testing.T) {
	c := New()

	if _, ok := c.Get("prod/10.0.0.0/8", "ip4_block"); ok {
		t.Error("Get on empty cache reported a hit")
	}

	c.Put("prod/10.0.0.0/8", "ip4_block", 101)
	c.Put("prod/10.0.0.0/8", "ip4_network", 102)

	id, ok := c.Get("prod/10.0.0.0/8", "ip4_block")
	if !ok || id != 101 {
		t.Errorf("Get(block) = %d, %v; want 101, true", id, ok)
	}
	id, ok = c.Get("prod/10.0.0.0/8", "ip4_network")
	if !ok || id != 102 {
		t.Errorf("Get(network) = %d, %v; want 102, true", id, ok)
	}
}

func TestParentPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "cidr in config: digit tail means the config is the parent",
			path: "prod/10.0.0.0/8",
			want: "prod",
		},
		{
			name: "plain hierarchy",
			path: "prod/internal/example.com",
			want: "prod/internal",
		},
		{
			name: "device path",
			path: "prod/router1",
			want: "prod",
		},
		{
			name: "no separator, no parent",
			path: "prod",
			want: "",
		},
		{
			name: "address path keeps non-digit tail rule",
			path: "prod/10.1.0.5",
			want: "prod",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParentPath(tt.path); got != tt.want {
				t.Errorf("ParentPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestInvalidateDropsPathAndParent(t *testing.T) {
	c := New()
	c.Put("prod", "configuration", 1)
	c.Put("prod/10.0.0.0/8", "ip4_block", 101)
	c.Put("prod/10.0.0.0/8", "ip4_network", 102)
	c.Put("prod/internal", "dns_view", 200)

	c.Invalidate("prod/10.0.0.0/8", "ip4_block")

	if _, ok := c.Get("prod/10.0.0.0/8", "ip4_block"); ok {
		t.Error("invalidated type still cached")
	}
	// Sibling type at the same path survives; only the named type goes.
	if _, ok := c.Get("prod/10.0.0.0/8", "ip4_network"); !ok {
		t.Error("sibling type at the path was dropped")
	}
	// Digit tail derives the config head as parent, which goes entirely.
	if _, ok := c.Get("prod", "configuration"); ok {
		t.Error("parent path survived invalidation")
	}
	// Unrelated paths stay.
	if _, ok := c.Get("prod/internal", "dns_view"); !ok {
		t.Error("unrelated path was dropped")
	}
}

func TestInvalidateUnknownPathIsNoop(t *testing.T) {
	c := New()
	c.Put("prod/web01", "device", 5)
	c.Invalidate("other/path", "device")
	if _, ok := c.Get("prod/web01", "device"); !ok {
		t.Error("unrelated invalidation dropped a cached entry")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put("prod/path", "device", int64(n*100+j))
				c.Get("prod/path", "device")
				if j%10 == 0 {
					c.Invalidate("prod/path", "device")
				}
			}
		}(i)
	}
	wg.Wait()
}
