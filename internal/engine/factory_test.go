package engine

import (
	"errors"
	"testing"

	"github.com/ipamtools/bamsync/internal/model"
)

func testRow(id string, t model.ObjectType, action model.Action, attrs map[string]string) *model.Row {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &model.Row{RowID: id, ObjectType: t, Action: action, Config: "Default", Attrs: attrs}
}

func TestFactoryCreateChainInjectsDeferredMarkers(t *testing.T) {
	rows := []*model.Row{
		testRow("1", model.ObjectIP4Block, model.ActionCreate, map[string]string{
			"cidr": "10.0.0.0/16", "name": "corp-block",
		}),
		testRow("2", model.ObjectIP4Network, model.ActionCreate, map[string]string{
			"cidr": "10.1.0.0/24", "parent": "10.0.0.0/16", "name": "web-tier",
		}),
		testRow("3", model.ObjectIP4Address, model.ActionCreate, map[string]string{
			"address": "10.1.0.10", "parent": "10.1.0.0/24", "name": "web-01",
		}),
	}
	f := NewFactory(rows)

	block := f.FromDiff(rows[0], nil, model.DiffResult{Operation: model.OpCreate})
	if block.Type != model.OpCreate {
		t.Fatalf("block op = %s, want CREATE", block.Type)
	}
	if got := block.Payload["cidr"]; got != "10.0.0.0/16" {
		t.Errorf("block payload cidr = %v", got)
	}
	if got := block.Payload["config"]; got != "Default" {
		t.Errorf("block payload config = %v", got)
	}
	if got := block.Payload[payloadPathKey]; got != "Default/10.0.0.0/16" {
		t.Errorf("block resource_path = %v", got)
	}
	if len(block.Deferred) != 0 {
		t.Errorf("block has %d deferred refs, want none", len(block.Deferred))
	}

	network := f.FromDiff(rows[1], nil, model.DiffResult{Operation: model.OpCreate})
	if got := network.Payload[model.MarkerBlockCIDR]; got != "10.0.0.0/16" {
		t.Errorf("network %s = %v, want parent block cidr", model.MarkerBlockCIDR, got)
	}
	if len(network.Deferred) != 1 || network.Deferred[0].Kind != model.DeferredBlockCIDR {
		t.Errorf("network deferred = %+v, want one block ref", network.Deferred)
	}

	address := f.FromDiff(rows[2], nil, model.DiffResult{Operation: model.OpCreate})
	if got := address.Payload[model.MarkerNetworkCIDR]; got != "10.1.0.0/24" {
		t.Errorf("address %s = %v, want parent network cidr", model.MarkerNetworkCIDR, got)
	}
}

func TestFactoryNoMarkerWhenParentNotCreatedThisRun(t *testing.T) {
	rows := []*model.Row{
		testRow("1", model.ObjectIP4Network, model.ActionCreate, map[string]string{
			"cidr": "10.1.0.0/24", "parent": "10.0.0.0/16",
		}),
	}
	op := NewFactory(rows).FromDiff(rows[0], nil, model.DiffResult{Operation: model.OpCreate})
	if _, ok := op.Payload[model.MarkerBlockCIDR]; ok {
		t.Error("marker injected for a parent that already exists on the server")
	}
	if len(op.Deferred) != 0 {
		t.Errorf("deferred refs = %+v, want none", op.Deferred)
	}
}

func TestFactoryContainerCIDRMatchesPathSegment(t *testing.T) {
	rows := []*model.Row{
		testRow("1", model.ObjectIP4Network, model.ActionCreate, map[string]string{
			"cidr": "10.1.0.0/24", "parent": "10.0.0.0/16",
		}),
		testRow("2", model.ObjectIP4Address, model.ActionCreate, map[string]string{
			"address": "10.1.0.10", "parent": "10.0.0.0/16/10.1.0.0/24",
		}),
	}
	op := NewFactory(rows).FromDiff(rows[1], nil, model.DiffResult{Operation: model.OpCreate})
	if got := op.Payload[model.MarkerNetworkCIDR]; got != "10.1.0.0/24" {
		t.Errorf("marker = %v, want network cidr extracted from parent path", got)
	}
}

func TestFactoryUpdateSendsOnlyChangedFields(t *testing.T) {
	row := testRow("7", model.ObjectIP4Network, model.ActionUpdate, map[string]string{
		"cidr": "10.1.0.0/24", "name": "web-tier", "vlan_id": "200",
	})
	changes := map[string]model.FieldChange{
		"vlan_id": {Field: "vlan_id", Old: "100", New: "200"},
		"name":    {Field: "name", Old: "old-tier", New: "web-tier"},
	}
	op := NewFactory(nil).FromDiff(row, nil, model.DiffResult{
		Operation:  model.OpUpdate,
		ResourceID: 42,
		Changes:    changes,
	})

	if op.ResourceID != 42 {
		t.Fatalf("ResourceID = %d, want 42", op.ResourceID)
	}
	if got := op.Payload["vlan_id"]; got != "200" {
		t.Errorf("payload vlan_id = %v", got)
	}
	if got := op.Payload["name"]; got != "web-tier" {
		t.Errorf("payload name = %v", got)
	}
	if _, ok := op.Payload["cidr"]; ok {
		t.Error("payload carries unchanged field cidr")
	}

	if len(op.Changes) != 2 || op.Changes[0].Field != "name" || op.Changes[1].Field != "vlan_id" {
		t.Errorf("Changes = %+v, want sorted [name vlan_id]", op.Changes)
	}

	if got := op.Before["vlan_id"]; got != "100" {
		t.Errorf("before vlan_id = %v, want old value", got)
	}
	if got := op.Before["id"]; got != int64(42) {
		t.Errorf("before id = %v", got)
	}
	if got := op.Before["type"]; got != "ip4_network" {
		t.Errorf("before type = %v", got)
	}
}

func TestFactoryDeleteSnapshotsFullState(t *testing.T) {
	row := testRow("9", model.ObjectIP4Address, model.ActionDelete, map[string]string{
		"address": "10.1.0.10",
	})
	current := &model.ResourceState{
		ID:   77,
		Type: "ip4_address",
		Properties: map[string]any{
			"address": "10.1.0.10",
			"name":    "web-01",
			"state":   "STATIC",
		},
	}
	op := NewFactory(nil).FromDiff(row, current, model.DiffResult{
		Operation:  model.OpDelete,
		ResourceID: 77,
	})

	if len(op.Payload) != 1 {
		t.Errorf("delete payload = %v, want only the resource path", op.Payload)
	}
	if got := op.Payload[payloadPathKey]; got != "Default/10.1.0.10" {
		t.Errorf("resource_path = %v", got)
	}
	if got := op.Before["name"]; got != "web-01" {
		t.Errorf("before name = %v", got)
	}
	if got := op.Before["id"]; got != int64(77) {
		t.Errorf("before id = %v", got)
	}
}

func TestFactoryRecordGetsZoneMarker(t *testing.T) {
	rows := []*model.Row{
		testRow("1", model.ObjectDNSZone, model.ActionCreate, map[string]string{
			"name": "example.com", "view_path": "default-view",
		}),
		testRow("2", model.ObjectHostRecord, model.ActionCreate, map[string]string{
			"name": "www", "zone_name": "example.com", "addresses": "10.1.0.10",
		}),
	}
	op := NewFactory(rows).FromDiff(rows[1], nil, model.DiffResult{Operation: model.OpCreate})
	if got := op.Payload[model.MarkerZoneName]; got != "example.com" {
		t.Errorf("%s = %v", model.MarkerZoneName, got)
	}
}

func TestFactoryDeviceGetsTypeAndSubtypeMarkers(t *testing.T) {
	rows := []*model.Row{
		testRow("1", model.ObjectDeviceType, model.ActionCreate, map[string]string{"name": "Router"}),
		testRow("2", model.ObjectDeviceSubtype, model.ActionCreate, map[string]string{"name": "Core"}),
		testRow("3", model.ObjectDevice, model.ActionCreate, map[string]string{
			"name": "rtr-01", "device_type": "Router", "device_subtype": "Core",
		}),
	}
	op := NewFactory(rows).FromDiff(rows[2], nil, model.DiffResult{Operation: model.OpCreate})
	if got := op.Payload[model.MarkerDeviceTypeName]; got != "Router" {
		t.Errorf("%s = %v", model.MarkerDeviceTypeName, got)
	}
	if got := op.Payload[model.MarkerDeviceSubtypeName]; got != "Core" {
		t.Errorf("%s = %v", model.MarkerDeviceSubtypeName, got)
	}
	if len(op.Deferred) != 2 {
		t.Errorf("deferred refs = %d, want 2", len(op.Deferred))
	}
}

func TestFactoryLocationMarkers(t *testing.T) {
	rows := []*model.Row{
		testRow("1", model.ObjectLocation, model.ActionCreate, map[string]string{"code": "DC1"}),
		testRow("2", model.ObjectLocation, model.ActionCreate, map[string]string{
			"code": "DC1-R1", "parent_code": "DC1",
		}),
		testRow("3", model.ObjectIP4Network, model.ActionCreate, map[string]string{
			"cidr": "10.2.0.0/24", "location_code": "DC1",
		}),
	}
	f := NewFactory(rows)

	child := f.FromDiff(rows[1], nil, model.DiffResult{Operation: model.OpCreate})
	if got := child.Payload[model.MarkerLocationCode]; got != "DC1" {
		t.Errorf("child location marker = %v", got)
	}

	network := f.FromDiff(rows[2], nil, model.DiffResult{Operation: model.OpCreate})
	if got := network.Payload[model.MarkerLocationCode]; got != "DC1" {
		t.Errorf("network location marker = %v", got)
	}
}

func TestFactoryConflictRecordedInMeta(t *testing.T) {
	row := testRow("5", model.ObjectIP4Network, model.ActionCreate, map[string]string{
		"cidr": "10.1.0.0/24",
	})
	op := NewFactory(nil).FromDiff(row, nil, model.DiffResult{
		Operation:        model.OpUpdate,
		ResourceID:       12,
		ConflictDetected: true,
		ConflictReason:   "create requested but resource exists",
	})
	if got := op.Meta["conflict"]; got != "create requested but resource exists" {
		t.Errorf("meta conflict = %v", got)
	}
}

func TestFactoryFromRowError(t *testing.T) {
	row := testRow("8", model.ObjectIP4Block, model.ActionCreate, nil)
	op := NewFactory(nil).FromRowError(row, errors.New("row 8: missing required attribute \"cidr\""))
	if op.Type != model.OpCreate {
		t.Errorf("op type = %s, want CREATE", op.Type)
	}
	msg, _ := op.Payload[payloadErrorKey].(string)
	if msg == "" {
		t.Fatal("payload error not set")
	}
}

func TestFactoryFromOrphan(t *testing.T) {
	op := NewFactory(nil).FromOrphan(model.DiffResult{
		Operation:  model.OpOrphan,
		ResourceID: 99,
		Metadata:   map[string]any{"resource_type": "ip4_network", "name": "stale-net"},
	})
	if op.RowID != "orphan-99" {
		t.Errorf("RowID = %s", op.RowID)
	}
	if op.ObjectType != model.ObjectIP4Network {
		t.Errorf("ObjectType = %s", op.ObjectType)
	}
	if op.Type != model.OpOrphan {
		t.Errorf("Type = %s", op.Type)
	}
}
