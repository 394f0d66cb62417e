package model

import "strings"

// Reserved CSV columns. They steer the engine and never participate in
// field-level diffing.
const (
	ColRowID      = "row_id"
	ColObjectType = "object_type"
	ColAction     = "action"
	ColConfig     = "config"
	ColVersion    = "version"
)

// IsReservedField reports whether name is a scaffolding column rather than a
// desired attribute.
func IsReservedField(name string) bool {
	switch name {
	case ColRowID, ColObjectType, ColAction, ColConfig, ColVersion:
		return true
	}
	return false
}

// Row is one parsed CSV row: a desired-state declaration for a single
// resource. Scaffolding columns are lifted into struct fields; everything
// else stays in Attrs keyed by column name, with empty cells omitted.
type Row struct {
	RowID      string
	ObjectType ObjectType
	Action     Action
	Config     string
	Version    string

	// BAMID is the server-assigned id when the row addresses an existing
	// resource directly (updates and deletes). Zero when unset.
	BAMID int64

	Attrs map[string]string
}

// Attr returns the named attribute, or "" when the cell was empty or absent.
func (r *Row) Attr(name string) string {
	if r == nil || r.Attrs == nil {
		return ""
	}
	return r.Attrs[name]
}

// HasAttr reports whether the attribute was present and non-empty.
func (r *Row) HasAttr(name string) bool {
	if r == nil || r.Attrs == nil {
		return false
	}
	_, ok := r.Attrs[name]
	return ok
}

// Well-known attribute accessors. Handlers and the graph builder read these
// often enough that spelling the keys inline everywhere invites typos.

func (r *Row) CIDR() string     { return r.Attr("cidr") }
func (r *Row) Parent() string   { return r.Attr("parent") }
func (r *Row) Name() string     { return r.Attr("name") }
func (r *Row) Address() string  { return r.Attr("address") }
func (r *Row) ViewPath() string { return r.Attr("view_path") }
func (r *Row) ZoneName() string { return r.Attr("zone_name") }
func (r *Row) State() string    { return r.Attr("state") }
func (r *Row) MAC() string      { return r.Attr("mac_address") }

func (r *Row) DeviceName() string    { return r.Attr("device_name") }
func (r *Row) DeviceType() string    { return r.Attr("device_type") }
func (r *Row) DeviceSubtype() string { return r.Attr("device_subtype") }
func (r *Row) LocationCode() string  { return r.Attr("location_code") }
func (r *Row) ParentCode() string    { return r.Attr("parent_code") }
func (r *Row) Code() string          { return r.Attr("code") }

// LinkedRecord is the record another DNS record points at: the linked record
// name for aliases, the exchange host for MX, the target host for SRV.
func (r *Row) LinkedRecord() string {
	if r == nil {
		return ""
	}
	switch r.ObjectType {
	case ObjectAliasRecord:
		return r.Attr("linked_record_name")
	case ObjectMXRecord:
		return r.Attr("exchange")
	case ObjectSRVRecord:
		return r.Attr("target")
	}
	return ""
}

// Addresses splits the pipe-delimited multi-address cell used by host records
// and devices. Empty cells yield nil.
func (r *Row) Addresses() []string {
	raw := r.Attr("addresses")
	if raw == "" {
		if a := r.Address(); a != "" {
			return []string{a}
		}
		return nil
	}
	parts := strings.Split(raw, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NodeID returns the graph node id for this row.
func (r *Row) NodeID() string {
	return NodeID(r.ObjectType, r.RowID)
}

// NaturalKey returns the identity used for conflict fallback and the
// created-resource cache: the attribute that uniquely names this resource
// within its container.
func (r *Row) NaturalKey() string {
	switch r.ObjectType {
	case ObjectIP4Block, ObjectIP4Network, ObjectIP6Block, ObjectIP6Network:
		return r.CIDR()
	case ObjectLocation:
		if c := r.Code(); c != "" {
			return c
		}
		return r.Name()
	case ObjectIP4Address, ObjectIP6Address:
		return r.Address()
	default:
		return r.Name()
	}
}
