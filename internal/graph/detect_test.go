package graph

import (
	"testing"

	"github.com/ipamtools/bamsync/internal/model"
)

func createOp(t model.ObjectType, rowID, config string, attrs map[string]string) *model.Operation {
	row := &model.Row{
		RowID:      rowID,
		ObjectType: t,
		Action:     model.ActionCreate,
		Config:     config,
		Attrs:      attrs,
	}
	return &model.Operation{
		RowID:      rowID,
		ObjectType: t,
		Type:       model.OpCreate,
		Status:     model.StatusPending,
		Row:        row,
	}
}

func deleteOp(t model.ObjectType, rowID, config string, attrs map[string]string) *model.Operation {
	o := createOp(t, rowID, config, attrs)
	o.Row.Action = model.ActionDelete
	o.Type = model.OpDelete
	return o
}

func dependsOn(t *testing.T, g *Graph, dependent, dependency string) bool {
	t.Helper()
	n, ok := g.Node(dependent)
	if !ok {
		t.Fatalf("node %s not in graph", dependent)
	}
	_, has := n.Dependencies[dependency]
	return has
}

// Mirrors the block/network/address happy path: the planner must see the
// block strictly before the network, and the network before the address.
func TestBuildBlockNetworkAddress(t *testing.T) {
	ops := []*model.Operation{
		createOp(model.ObjectIP4Block, "1", "Default", map[string]string{
			"cidr": "10.0.0.0/8", "name": "CorpBlock",
		}),
		createOp(model.ObjectIP4Network, "2", "Default", map[string]string{
			"parent": "10.0.0.0/8", "cidr": "10.1.0.0/24", "name": "CorpNetwork",
		}),
		createOp(model.ObjectIP4Address, "3", "Default", map[string]string{
			"name": "server1", "address": "10.1.0.10", "mac_address": "00:11:22:33:44:55", "state": "STATIC",
		}),
	}

	g, err := Build(ops)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !dependsOn(t, g, "ip4_network:2", "ip4_block:1") {
		t.Error("network does not depend on its block")
	}
	if !dependsOn(t, g, "ip4_address:3", "ip4_network:2") {
		t.Error("address does not depend on its containing network")
	}

	// Depths: block 0, network 1, phase-2 barrier 2, address 3.
	wantDepths := map[string]int{
		"ip4_block:1":             0,
		"ip4_network:2":           1,
		"system_barrier:create_2": 2,
		"ip4_address:3":           3,
	}
	for id, want := range wantDepths {
		n, ok := g.Node(id)
		if !ok {
			t.Fatalf("node %s missing", id)
		}
		if n.Depth != want {
			t.Errorf("depth(%s) = %d, want %d", id, n.Depth, want)
		}
	}

	batches, err := g.TopologicalBatches()
	if err != nil {
		t.Fatalf("TopologicalBatches() error = %v", err)
	}
	var order []string
	for _, batch := range batches {
		for _, n := range batch {
			if !n.Op.IsBarrier() {
				order = append(order, n.ID())
			}
		}
	}
	want := []string{"ip4_block:1", "ip4_network:2", "ip4_address:3"}
	if len(order) != len(want) {
		t.Fatalf("execution order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("execution order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

// A /80 "CIDR" must never satisfy a /8 parent-path match.
func TestBuildRejectsCIDRFalsePositive(t *testing.T) {
	ops := []*model.Operation{
		createOp(model.ObjectIP4Block, "blk80", "Default", map[string]string{
			"cidr": "10.0.0.0/80",
		}),
		createOp(model.ObjectIP4Network, "net", "Default", map[string]string{
			"parent": "/IPv4/10.0.0.0/8", "cidr": "10.1.0.0/24",
		}),
	}
	g, err := Build(ops)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if dependsOn(t, g, "ip4_network:net", "ip4_block:blk80") {
		t.Error("network depends on /80 block via substring match")
	}
}

func TestBuildDeleteOrdering(t *testing.T) {
	ops := []*model.Operation{
		deleteOp(model.ObjectIP4Block, "blk", "Default", map[string]string{
			"cidr": "10.0.0.0/8",
		}),
		deleteOp(model.ObjectIP4Network, "net", "Default", map[string]string{
			"parent": "10.0.0.0/8", "cidr": "10.1.0.0/24",
		}),
	}
	g, err := Build(ops)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !dependsOn(t, g, "ip4_block:blk", "ip4_network:net") {
		t.Error("block delete does not wait for child network delete")
	}
	if dependsOn(t, g, "ip4_network:net", "ip4_block:blk") {
		t.Error("delete edge points the wrong way")
	}
}

// Deletes run through reversed phases before creates run forward.
func TestBuildDeletesPrecedeCreates(t *testing.T) {
	ops := []*model.Operation{
		createOp(model.ObjectIP4Block, "newblk", "Default", map[string]string{
			"cidr": "172.16.0.0/12",
		}),
		deleteOp(model.ObjectHostRecord, "oldhost", "Default", map[string]string{
			"name": "legacy.example.com",
		}),
		deleteOp(model.ObjectDNSZone, "oldzone", "Default", map[string]string{
			"name": "legacy.example.com",
		}),
	}
	g, err := Build(ops)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	host, _ := g.Node("host_record:oldhost")
	zone, _ := g.Node("dns_zone:oldzone")
	blk, _ := g.Node("ip4_block:newblk")

	// Host record (phase 5) deletes before zone (phase 3): reversed order.
	if host.Depth >= zone.Depth {
		t.Errorf("host delete depth %d not before zone delete depth %d", host.Depth, zone.Depth)
	}
	// Every delete precedes the create.
	if zone.Depth >= blk.Depth {
		t.Errorf("zone delete depth %d not before create depth %d", zone.Depth, blk.Depth)
	}
}

func TestBuildZoneAndRecordReferences(t *testing.T) {
	ops := []*model.Operation{
		createOp(model.ObjectDNSZone, "z1", "Default", map[string]string{
			"view_path": "default", "name": "example.com",
		}),
		createOp(model.ObjectHostRecord, "h1", "Default", map[string]string{
			"view_path": "default", "zone_name": "example.com", "name": "web01.example.com",
		}),
		createOp(model.ObjectAliasRecord, "a1", "Default", map[string]string{
			"view_path": "default", "zone_name": "example.com",
			"name": "www.example.com", "linked_record_name": "web01.example.com",
		}),
		createOp(model.ObjectMXRecord, "m1", "Default", map[string]string{
			"view_path": "default", "zone_name": "example.com",
			"name": "example.com", "exchange": "web01.example.com",
		}),
	}
	g, err := Build(ops)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !dependsOn(t, g, "host_record:h1", "dns_zone:z1") {
		t.Error("host record missing zone dependency")
	}
	if !dependsOn(t, g, "alias_record:a1", "dns_zone:z1") {
		t.Error("alias record missing zone dependency")
	}
	if !dependsOn(t, g, "alias_record:a1", "host_record:h1") {
		t.Error("alias record missing linked-record dependency")
	}
	if !dependsOn(t, g, "mx_record:m1", "host_record:h1") {
		t.Error("mx record missing exchange dependency")
	}

	n, _ := g.Node("alias_record:a1")
	if kind := n.Dependencies["host_record:h1"]; kind != EdgeReference {
		t.Errorf("alias -> host edge kind = %s, want REFERENCE", kind)
	}
}

func TestBuildDeviceChain(t *testing.T) {
	ops := []*model.Operation{
		createOp(model.ObjectDeviceType, "dt", "", map[string]string{"name": "Switch"}),
		createOp(model.ObjectDeviceSubtype, "ds", "", map[string]string{
			"name": "Access", "device_type": "Switch",
		}),
		createOp(model.ObjectDevice, "dev", "Default", map[string]string{
			"name": "core-sw-01", "device_type": "Switch", "device_subtype": "Access",
		}),
		createOp(model.ObjectDeviceAddress, "da", "Default", map[string]string{
			"device_name": "core-sw-01", "address": "10.1.0.2",
		}),
	}
	g, err := Build(ops)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !dependsOn(t, g, "device_subtype:ds", "device_type:dt") {
		t.Error("subtype missing device_type dependency")
	}
	if !dependsOn(t, g, "device:dev", "device_type:dt") {
		t.Error("device missing device_type dependency")
	}
	if !dependsOn(t, g, "device:dev", "device_subtype:ds") {
		t.Error("device missing device_subtype dependency")
	}
	if !dependsOn(t, g, "device_address:da", "device:dev") {
		t.Error("device_address missing device dependency")
	}
}

func TestBuildDeferredEdges(t *testing.T) {
	rangeOp := createOp(model.ObjectIPv4DHCPRange, "r1", "Default", map[string]string{
		"start": "10.1.0.100", "end": "10.1.0.200",
	})
	rangeOp.Payload = map[string]any{model.MarkerNetworkCIDR: "10.1.0.0/24"}
	rangeOp.Deferred = model.ParseDeferred(rangeOp.Payload)

	locOp := createOp(model.ObjectLocation, "l2", "", map[string]string{
		"code": "US-NYC-DC2", "name": "DC2", "parent_code": "US-NYC",
	})

	ops := []*model.Operation{
		createOp(model.ObjectIP4Network, "n1", "Default", map[string]string{
			"cidr": "10.1.0.0/24",
		}),
		createOp(model.ObjectLocation, "l1", "", map[string]string{
			"code": "US-NYC", "name": "New York",
		}),
		rangeOp,
		locOp,
	}
	g, err := Build(ops)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !dependsOn(t, g, "ipv4_dhcp_range:r1", "ip4_network:n1") {
		t.Error("dhcp range missing deferred network dependency")
	}
	if !dependsOn(t, g, "location:l2", "location:l1") {
		t.Error("child location missing parent dependency")
	}
}

func TestBuildHostRecordAddressCoverage(t *testing.T) {
	ops := []*model.Operation{
		createOp(model.ObjectIP4Network, "n1", "Default", map[string]string{
			"cidr": "10.1.0.0/24",
		}),
		createOp(model.ObjectIP4Network, "n2", "Default", map[string]string{
			"cidr": "10.2.0.0/24",
		}),
		createOp(model.ObjectDNSZone, "z1", "Default", map[string]string{
			"view_path": "default", "name": "example.com",
		}),
		createOp(model.ObjectHostRecord, "h1", "Default", map[string]string{
			"view_path": "default", "zone_name": "example.com",
			"name": "dual.example.com", "addresses": "10.1.0.5|10.2.0.5",
		}),
	}
	g, err := Build(ops)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !dependsOn(t, g, "host_record:h1", "ip4_network:n1") {
		t.Error("host record missing first network coverage dependency")
	}
	if !dependsOn(t, g, "host_record:h1", "ip4_network:n2") {
		t.Error("host record missing second network coverage dependency")
	}
}

// Phase barriers alone must order cross-phase operations even with no
// detected edges between them.
func TestPhaseOrderingWithoutDirectEdges(t *testing.T) {
	ops := []*model.Operation{
		createOp(model.ObjectDeviceType, "dt", "", map[string]string{"name": "Router"}),
		createOp(model.ObjectIP4Block, "blk", "Default", map[string]string{"cidr": "10.0.0.0/8"}),
		createOp(model.ObjectDevice, "dev", "Default", map[string]string{"name": "edge-rtr"}),
	}
	g, err := Build(ops)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	dt, _ := g.Node("device_type:dt")
	blk, _ := g.Node("ip4_block:blk")
	dev, _ := g.Node("device:dev")

	if !(dt.Depth < blk.Depth && blk.Depth < dev.Depth) {
		t.Errorf("phase depths out of order: device_type=%d block=%d device=%d",
			dt.Depth, blk.Depth, dev.Depth)
	}
}
