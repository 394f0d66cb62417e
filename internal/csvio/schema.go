package csvio

import (
	"fmt"
	"net"
	"net/netip"
	"regexp"

	"github.com/ipamtools/bamsync/internal/model"
)

// ValidationError is a row-level schema violation. It does not stop the run:
// the factory folds it into the operation payload and the executor fails just
// that row.
type ValidationError struct {
	RowID  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %s: %s", e.RowID, e.Reason)
	}
	return fmt.Sprintf("row %s: field %s: %s", e.RowID, e.Field, e.Reason)
}

func rowErr(rowID, field, reason string) *ValidationError {
	return &ValidationError{RowID: rowID, Field: field, Reason: reason}
}

// requiredOnCreate lists the attributes a create row must carry, per object
// type. Types not listed fall back to requiring a name.
var requiredOnCreate = map[model.ObjectType][]string{
	model.ObjectIP4Block:   {"cidr"},
	model.ObjectIP4Network: {"cidr"},
	model.ObjectIP6Block:   {"cidr"},
	model.ObjectIP6Network: {"cidr"},

	model.ObjectIP4Address: {"address"},
	model.ObjectIP6Address: {"address"},

	model.ObjectDNSZone:            {"name", "view_path"},
	model.ObjectHostRecord:         {"name", "view_path"},
	model.ObjectExternalHostRecord: {"name", "view_path"},

	model.ObjectAliasRecord: {"name", "view_path", "zone_name", "linked_record_name"},
	model.ObjectMXRecord:    {"name", "view_path", "zone_name", "exchange"},
	model.ObjectSRVRecord:   {"name", "view_path", "zone_name", "target"},
	model.ObjectTXTRecord:   {"name", "view_path", "zone_name"},

	model.ObjectGenericRecord: {"name", "view_path", "zone_name"},

	model.ObjectLocation:   {"code"},
	model.ObjectMACAddress: {"mac_address"},
}

// viewScoped are the DNS types whose update/delete rows need a view to
// resolve the target when no explicit id is given.
var viewScoped = map[model.ObjectType]bool{
	model.ObjectDNSZone:            true,
	model.ObjectHostRecord:         true,
	model.ObjectExternalHostRecord: true,
	model.ObjectAliasRecord:        true,
	model.ObjectMXRecord:           true,
	model.ObjectSRVRecord:          true,
	model.ObjectTXTRecord:          true,
	model.ObjectGenericRecord:      true,
}

// fqdnPattern accepts dotted DNS labels: letters, digits, hyphens not at
// label edges.
var fqdnPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?)*$`)

// ValidateRow checks a parsed row against the per-type schema and the format
// rules for well-known fields. The first violation wins.
func ValidateRow(row *model.Row) error {
	if row.RowID == "" {
		return rowErr(row.RowID, "row_id", "missing")
	}
	if !model.KnownType(row.ObjectType) {
		return rowErr(row.RowID, "object_type", fmt.Sprintf("unknown type %q", row.ObjectType))
	}
	switch row.Action {
	case model.ActionCreate, model.ActionUpdate, model.ActionDelete:
	default:
		return rowErr(row.RowID, "action", fmt.Sprintf("unknown action %q", row.Action))
	}

	if err := validateFormats(row); err != nil {
		return err
	}

	switch row.Action {
	case model.ActionCreate:
		required, ok := requiredOnCreate[row.ObjectType]
		if !ok {
			required = []string{"name"}
		}
		for _, field := range required {
			if !row.HasAttr(field) {
				return rowErr(row.RowID, field, "required for create")
			}
		}
	case model.ActionUpdate, model.ActionDelete:
		if row.BAMID == 0 && row.NaturalKey() == "" {
			return rowErr(row.RowID, "", "update/delete row addresses no resource: id or natural key required")
		}
		if row.BAMID == 0 && viewScoped[row.ObjectType] && row.ViewPath() == "" {
			return rowErr(row.RowID, "view_path", "required to resolve DNS resources without an explicit id")
		}
	}
	return nil
}

// validateFormats checks the syntax of well-known fields wherever present,
// regardless of whether the schema requires them.
func validateFormats(row *model.Row) error {
	if cidr := row.CIDR(); cidr != "" {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return rowErr(row.RowID, "cidr", fmt.Sprintf("invalid CIDR %q", cidr))
		}
	}
	if addr := row.Address(); addr != "" {
		if _, err := netip.ParseAddr(addr); err != nil {
			return rowErr(row.RowID, "address", fmt.Sprintf("invalid IP address %q", addr))
		}
	}
	for _, addr := range row.Addresses() {
		if _, err := netip.ParseAddr(addr); err != nil {
			return rowErr(row.RowID, "addresses", fmt.Sprintf("invalid IP address %q", addr))
		}
	}
	if mac := row.MAC(); mac != "" {
		if _, err := net.ParseMAC(mac); err != nil {
			return rowErr(row.RowID, "mac_address", fmt.Sprintf("invalid MAC address %q", mac))
		}
	}
	if row.ObjectType == model.ObjectDNSZone {
		if name := row.Name(); name != "" && !fqdnPattern.MatchString(name) {
			return rowErr(row.RowID, "name", fmt.Sprintf("invalid zone FQDN %q", name))
		}
	}
	if zone := row.ZoneName(); zone != "" && !fqdnPattern.MatchString(zone) {
		return rowErr(row.RowID, "zone_name", fmt.Sprintf("invalid zone FQDN %q", zone))
	}
	return nil
}
