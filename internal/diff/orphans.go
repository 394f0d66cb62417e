package diff

import (
	"fmt"

	"github.com/ipamtools/bamsync/internal/model"
)

// DetectOrphans scans current resources for entries the desired rows no
// longer reference. The caller must restrict current to the exact containers
// the CSV defines; this function never widens scope, because widening could
// sweep up unrelated resources.
func (e *Engine) DetectOrphans(desired []*model.Row, current []*model.ResourceState, scope string) []model.DiffResult {
	if !e.opts.OrphanDetection || len(current) == 0 {
		return nil
	}

	desiredIDs := make(map[int64]bool, len(desired))
	desiredKeys := make(map[string]bool, len(desired))
	for _, row := range desired {
		if row.BAMID != 0 {
			desiredIDs[row.BAMID] = true
		}
		desiredKeys[rowUniqueKey(row)] = true
	}

	var orphans []model.DiffResult
	for _, res := range current {
		if desiredIDs[res.ID] || desiredKeys[stateUniqueKey(res)] {
			continue
		}
		orphan := model.DiffResult{Operation: model.OpOrphan, ResourceID: res.ID}
		orphan.SetMeta("scope", scope)
		orphan.SetMeta("resource_type", res.Type)
		if name := res.Property("name"); name != nil {
			orphan.SetMeta("name", name)
		}
		if addr := res.Property("address"); addr != nil {
			orphan.SetMeta("address", addr)
		}
		if cidr := res.Property("cidr"); cidr != nil {
			orphan.SetMeta("cidr", cidr)
		}
		if e.opts.SafeMode {
			orphan.Operation = model.OpNoop
			orphan.SetMeta("orphan_safe_mode", true)
		}
		orphans = append(orphans, orphan)
	}
	return orphans
}

// rowUniqueKey derives the identity used to match desired rows against
// current resources during the orphan scan.
func rowUniqueKey(row *model.Row) string {
	switch row.ObjectType {
	case model.ObjectIP4Address, model.ObjectIP6Address:
		return "address:" + row.Address()
	case model.ObjectIP4Block, model.ObjectIP4Network, model.ObjectIP6Block, model.ObjectIP6Network:
		return "cidr:" + row.CIDR()
	case model.ObjectDNSZone, model.ObjectHostRecord, model.ObjectExternalHostRecord:
		return "name:" + row.Name()
	default:
		return fmt.Sprintf("id:%d", row.BAMID)
	}
}

// stateUniqueKey mirrors rowUniqueKey for server-side resources. It keys on
// the resource type first so a host record with both name and address
// properties matches its desired row; unknown types fall back to the most
// specific property available.
func stateUniqueKey(res *model.ResourceState) string {
	switch model.ObjectType(res.Type) {
	case model.ObjectIP4Address, model.ObjectIP6Address:
		if addr, ok := res.Property("address").(string); ok && addr != "" {
			return "address:" + addr
		}
	case model.ObjectIP4Block, model.ObjectIP4Network, model.ObjectIP6Block, model.ObjectIP6Network:
		if cidr, ok := res.Property("cidr").(string); ok && cidr != "" {
			return "cidr:" + cidr
		}
	case model.ObjectDNSZone, model.ObjectHostRecord, model.ObjectExternalHostRecord:
		if name, ok := res.Property("name").(string); ok && name != "" {
			return "name:" + name
		}
	default:
		if addr, ok := res.Property("address").(string); ok && addr != "" {
			return "address:" + addr
		}
		if cidr, ok := res.Property("cidr").(string); ok && cidr != "" {
			return "cidr:" + cidr
		}
		if name, ok := res.Property("name").(string); ok && name != "" {
			return "name:" + name
		}
	}
	return fmt.Sprintf("id:%d", res.ID)
}
