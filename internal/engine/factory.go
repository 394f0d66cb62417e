package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ipamtools/bamsync/internal/graph"
	"github.com/ipamtools/bamsync/internal/model"
)

// Factory turns diffed rows into executable operations. It knows which
// natural keys the run itself will create, so references to those resources
// become deferred markers instead of lookups that would miss.
type Factory struct {
	willCreate map[model.ResourceClass]map[string]bool
}

// NewFactory indexes the natural keys produced by the create rows of this
// run. Rows with other actions reference resources that already exist.
func NewFactory(rows []*model.Row) *Factory {
	f := &Factory{willCreate: make(map[model.ResourceClass]map[string]bool)}
	for _, row := range rows {
		if row.Action != model.ActionCreate {
			continue
		}
		class, keys, ok := createdKeys(row)
		if !ok {
			continue
		}
		if f.willCreate[class] == nil {
			f.willCreate[class] = make(map[string]bool)
		}
		for _, key := range keys {
			f.willCreate[class][key] = true
		}
	}
	return f
}

func (f *Factory) creates(class model.ResourceClass, key string) bool {
	return key != "" && f.willCreate[class][key]
}

// FromDiff builds the operation for one reconciled row. current is the
// resource's server state at diff time; nil when it does not exist.
func (f *Factory) FromDiff(row *model.Row, current *model.ResourceState, d model.DiffResult) *model.Operation {
	op := &model.Operation{
		RowID:      row.RowID,
		ObjectType: row.ObjectType,
		Type:       d.Operation,
		ResourceID: d.ResourceID,
		Row:        row,
		Status:     model.StatusPending,
		Meta:       d.Metadata,
	}
	if d.ConflictDetected {
		if op.Meta == nil {
			op.Meta = make(map[string]any)
		}
		op.Meta["conflict"] = d.ConflictReason
	}

	switch d.Operation {
	case model.OpCreate:
		op.Payload = f.createPayload(row)
	case model.OpUpdate:
		op.Payload = f.updatePayload(row, d.Changes)
		op.Changes = sortedChanges(d.Changes)
		op.Before = beforeFromChanges(d.ResourceID, row.ObjectType, d.Changes)
	case model.OpDelete:
		op.Payload = map[string]any{payloadPathKey: resourcePath(row)}
		op.Before = beforeFromState(current)
	}
	op.Deferred = model.ParseDeferred(op.Payload)
	return op
}

// FromRowError builds a short-circuit operation for a row the CSV layer
// rejected. The executor fails it without a server call and cascades.
func (f *Factory) FromRowError(row *model.Row, rowErr error) *model.Operation {
	opType := model.OpNoop
	switch row.Action {
	case model.ActionCreate:
		opType = model.OpCreate
	case model.ActionUpdate:
		opType = model.OpUpdate
	case model.ActionDelete:
		opType = model.OpDelete
	}
	return &model.Operation{
		RowID:      row.RowID,
		ObjectType: row.ObjectType,
		Type:       opType,
		Row:        row,
		Status:     model.StatusPending,
		Payload:    map[string]any{payloadErrorKey: rowErr.Error()},
	}
}

// FromOrphan wraps an orphan detection into a report-only operation.
func (f *Factory) FromOrphan(d model.DiffResult) *model.Operation {
	objectType := model.ObjectType("")
	if t, ok := d.Metadata["resource_type"].(string); ok {
		objectType = model.ObjectType(t)
	}
	return &model.Operation{
		RowID:      fmt.Sprintf("orphan-%d", d.ResourceID),
		ObjectType: objectType,
		Type:       d.Operation,
		ResourceID: d.ResourceID,
		Status:     model.StatusPending,
		Meta:       d.Metadata,
	}
}

// createPayload carries every desired attribute plus the scoping config and
// the cache-invalidation path, with deferred markers for references the run
// itself creates.
func (f *Factory) createPayload(row *model.Row) map[string]any {
	payload := make(map[string]any, len(row.Attrs)+3)
	for k, v := range row.Attrs {
		payload[k] = v
	}
	if row.Config != "" {
		payload["config"] = row.Config
	}
	payload[payloadPathKey] = resourcePath(row)
	f.injectDeferred(row, payload)
	return payload
}

// updatePayload sends exactly the changed fields.
func (f *Factory) updatePayload(row *model.Row, changes map[string]model.FieldChange) map[string]any {
	payload := make(map[string]any, len(changes)+1)
	for field, change := range changes {
		payload[field] = change.New
	}
	payload[payloadPathKey] = resourcePath(row)
	f.injectDeferred(row, payload)
	return payload
}

// injectDeferred adds a _deferred_* marker for each reference to a resource
// this run creates. The raw attribute stays in place; the resolver adds the
// id field next to it at dispatch time.
func (f *Factory) injectDeferred(row *model.Row, payload map[string]any) {
	switch row.ObjectType {
	case model.ObjectIP4Network, model.ObjectIP6Network:
		if cidr := f.containerCIDR(model.ClassBlock, row.Parent()); cidr != "" {
			payload[model.MarkerBlockCIDR] = cidr
		}
	case model.ObjectIP4Address, model.ObjectIP6Address,
		model.ObjectIPv4DHCPRange, model.ObjectIPv6DHCPRange:
		if cidr := f.containerCIDR(model.ClassNetwork, row.Parent()); cidr != "" {
			payload[model.MarkerNetworkCIDR] = cidr
		}
	case model.ObjectHostRecord, model.ObjectExternalHostRecord,
		model.ObjectAliasRecord, model.ObjectMXRecord, model.ObjectSRVRecord,
		model.ObjectTXTRecord, model.ObjectGenericRecord:
		if zone := row.ZoneName(); f.creates(model.ClassZone, zone) {
			payload[model.MarkerZoneName] = zone
		}
	case model.ObjectLocation:
		if code := row.ParentCode(); f.creates(model.ClassLocation, code) {
			payload[model.MarkerLocationCode] = code
		}
	case model.ObjectDevice:
		if name := row.DeviceType(); f.creates(model.ClassDeviceType, name) {
			payload[model.MarkerDeviceTypeName] = name
		}
		if name := row.DeviceSubtype(); f.creates(model.ClassDeviceSubtype, name) {
			payload[model.MarkerDeviceSubtypeName] = name
		}
	case model.ObjectDeviceAddress:
		name := row.DeviceName()
		if name == "" {
			name = row.Name()
		}
		scoped := name
		if row.Config != "" {
			scoped = row.Config + "/" + name
		}
		if f.creates(model.ClassDevice, scoped) || f.creates(model.ClassDevice, name) {
			payload[model.MarkerDeviceName] = name
			if row.Config != "" {
				payload[model.MarkerDeviceConfig] = row.Config
			}
		}
	}

	// Location association applies to any resource type.
	if row.ObjectType != model.ObjectLocation {
		if code := row.LocationCode(); f.creates(model.ClassLocation, code) {
			payload[model.MarkerLocationCode] = code
		}
	}
}

// containerCIDR finds the to-be-created container whose CIDR appears in the
// row's parent path, either as the whole path or as a segment pair.
func (f *Factory) containerCIDR(class model.ResourceClass, parentPath string) string {
	if parentPath == "" {
		return ""
	}
	if f.willCreate[class][parentPath] {
		return parentPath
	}
	for cidr := range f.willCreate[class] {
		if graph.CIDRInPath(cidr, parentPath) {
			return cidr
		}
	}
	return ""
}

// resourcePath is the slash-joined identity used for resolver-cache
// invalidation: config, view, parent path, then the natural key.
func resourcePath(row *model.Row) string {
	var segs []string
	for _, s := range []string{row.Config, row.ViewPath(), row.Parent(), row.NaturalKey()} {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return strings.Join(segs, "/")
}

func sortedChanges(changes map[string]model.FieldChange) []model.FieldChange {
	if len(changes) == 0 {
		return nil
	}
	out := make([]model.FieldChange, 0, len(changes))
	for _, c := range changes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// beforeFromChanges snapshots the old values of exactly the fields an UPDATE
// touches. Rollback restores these and nothing else.
func beforeFromChanges(id int64, t model.ObjectType, changes map[string]model.FieldChange) map[string]any {
	before := make(map[string]any, len(changes)+2)
	for field, change := range changes {
		before[field] = change.Old
	}
	before["id"] = id
	before["type"] = string(t)
	return before
}

// beforeFromState snapshots the full pre-image of a DELETE target so the log
// records enough to recreate it by hand.
func beforeFromState(current *model.ResourceState) map[string]any {
	if current == nil {
		return nil
	}
	before := make(map[string]any, len(current.Properties)+2)
	for k, v := range current.Properties {
		before[k] = v
	}
	before["id"] = current.ID
	before["type"] = current.Type
	return before
}
