// Package model defines the core data structures shared across the bamsync
// reconciliation engine: CSV rows, server resource states, operations, diff
// results, and the object-type taxonomy with its phase ordering.
package model

import "fmt"

// ObjectType identifies one entry of the fixed IPAM/DNS resource taxonomy.
type ObjectType string

// The full taxonomy. These values match the object_type column of input CSVs
// and are the handler registry keys.
const (
	ObjectDeviceType    ObjectType = "device_type"
	ObjectTagGroup      ObjectType = "tag_group"
	ObjectUDFDefinition ObjectType = "udf_definition"
	ObjectUDLDefinition ObjectType = "udl_definition"
	ObjectMACPool       ObjectType = "mac_pool"

	ObjectDeviceSubtype ObjectType = "device_subtype"
	ObjectTag           ObjectType = "tag"

	ObjectLocation   ObjectType = "location"
	ObjectIP4Block   ObjectType = "ip4_block"
	ObjectIP4Network ObjectType = "ip4_network"
	ObjectIP6Block   ObjectType = "ip6_block"
	ObjectIP6Network ObjectType = "ip6_network"

	ObjectDNSZone ObjectType = "dns_zone"
	ObjectACL     ObjectType = "acl"

	ObjectExternalHostRecord ObjectType = "external_host_record"

	ObjectHostRecord ObjectType = "host_record"
	ObjectIP4Address ObjectType = "ip4_address"
	ObjectIP6Address ObjectType = "ip6_address"
	ObjectIP4Group   ObjectType = "ip4_group"
	ObjectMACAddress ObjectType = "mac_address"

	ObjectAliasRecord   ObjectType = "alias_record"
	ObjectMXRecord      ObjectType = "mx_record"
	ObjectSRVRecord     ObjectType = "srv_record"
	ObjectTXTRecord     ObjectType = "txt_record"
	ObjectGenericRecord ObjectType = "generic_record"

	ObjectDevice ObjectType = "device"

	ObjectIPv4DHCPRange            ObjectType = "ipv4_dhcp_range"
	ObjectIPv6DHCPRange            ObjectType = "ipv6_dhcp_range"
	ObjectDHCPv4ClientClass        ObjectType = "dhcpv4_client_class"
	ObjectDHCPDeploymentRole       ObjectType = "dhcp_deployment_role"
	ObjectDNSDeploymentRole        ObjectType = "dns_deployment_role"
	ObjectDHCPv4ClientDeployOption ObjectType = "dhcpv4_client_deployment_option"
	ObjectDHCPv4ServiceDeployOpt   ObjectType = "dhcpv4_service_deployment_option"
	ObjectDeviceAddress            ObjectType = "device_address"
	ObjectResourceTag              ObjectType = "resource_tag"
	ObjectUserDefinedLink          ObjectType = "user_defined_link"
	ObjectAccessRight              ObjectType = "access_right"

	// ObjectSystemBarrier is the synthetic NOOP node injected between phases.
	// It never appears in input CSVs and is filtered out of plans and results.
	ObjectSystemBarrier ObjectType = "system_barrier"
)

// Action is the requested action of a CSV row.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// OperationType classifies what the engine decided to do for a row.
type OperationType string

const (
	OpCreate OperationType = "CREATE"
	OpUpdate OperationType = "UPDATE"
	OpDelete OperationType = "DELETE"
	OpNoop   OperationType = "NOOP"
	OpOrphan OperationType = "ORPHAN"
)

// OperationStatus is the lifecycle state of an Operation. Terminal states are
// SUCCEEDED, FAILED, and SKIPPED.
type OperationStatus string

const (
	StatusPending    OperationStatus = "PENDING"
	StatusInProgress OperationStatus = "IN_PROGRESS"
	StatusSucceeded  OperationStatus = "SUCCEEDED"
	StatusFailed     OperationStatus = "FAILED"
	StatusSkipped    OperationStatus = "SKIPPED"
)

// IsTerminal reports whether the status is final.
func (s OperationStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// ResourceState is a snapshot of a resource as it currently exists on the
// server. Immutable per fetch.
type ResourceState struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// Property returns the named property, or nil when absent.
func (r *ResourceState) Property(name string) any {
	if r == nil || r.Properties == nil {
		return nil
	}
	return r.Properties[name]
}

// FieldChange is one field-level difference between desired and current state.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old_value"`
	New   any    `json:"new_value"`
}

// DiffResult is the outcome of reconciling one row against current state.
type DiffResult struct {
	Operation        OperationType          `json:"operation"`
	ResourceID       int64                  `json:"resource_id,omitempty"`
	Changes          map[string]FieldChange `json:"changes,omitempty"`
	ConflictDetected bool                   `json:"conflict_detected,omitempty"`
	ConflictReason   string                 `json:"conflict_reason,omitempty"`
	Metadata         map[string]any         `json:"metadata,omitempty"`
}

// SetMeta records a metadata key, allocating the map on first use.
func (d *DiffResult) SetMeta(key string, value any) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]any)
	}
	d.Metadata[key] = value
}

// ResourceClass names the kinds of created resources tracked for deferred
// resolution across batches and resume boundaries.
type ResourceClass string

const (
	ClassBlock         ResourceClass = "block"
	ClassNetwork       ResourceClass = "network"
	ClassZone          ResourceClass = "zone"
	ClassLocation      ResourceClass = "location"
	ClassDevice        ResourceClass = "device"
	ClassDeviceType    ResourceClass = "device_type"
	ClassDeviceSubtype ResourceClass = "device_subtype"
)

// NodeID builds the globally unique graph node id for an (object type, row id)
// pair: "{object_type}:{row_id}".
func NodeID(t ObjectType, rowID string) string {
	return fmt.Sprintf("%s:%s", t, rowID)
}
