package engine

import (
	"fmt"
	"strings"

	"github.com/ipamtools/bamsync/internal/model"
	"github.com/ipamtools/bamsync/internal/store"
)

// resolveDeferred substitutes created-resource ids for op's deferred markers.
// op must be a working copy: markers are deleted and id fields added in
// place, while the original operation keeps its markers for a clean retry.
// A marker whose key was never created fails fast without a server call.
func resolveDeferred(op *model.Operation, created store.CreatedResources) error {
	for _, ref := range op.Deferred {
		id := created.Get(ref.Class(), ref.CacheKey())
		if id == 0 && ref.Kind == model.DeferredDevice && ref.Config != "" {
			id = created.Get(model.ClassDevice, ref.Key)
		}
		if id == 0 {
			return &DeferredError{
				RowID:        op.RowID,
				ResourceType: string(op.ObjectType),
				Key:          markerKey(ref.Kind),
				Value:        ref.Key,
			}
		}
		applyResolved(op, ref.Kind, id)
	}
	op.Deferred = nil

	for key := range op.Payload {
		if strings.HasPrefix(key, model.DeferredPrefix) {
			return fmt.Errorf("row %s: unrecognized deferred marker %q", op.RowID, key)
		}
	}
	return nil
}

// applyResolved writes the id field a marker stands for and removes the
// marker (plus companions) from the payload.
func applyResolved(op *model.Operation, kind model.DeferredKind, id int64) {
	switch kind {
	case model.DeferredBlockCIDR:
		op.Payload["block_id"] = id
		delete(op.Payload, model.MarkerBlockCIDR)
	case model.DeferredNetworkCIDR:
		op.Payload["network_id"] = id
		delete(op.Payload, model.MarkerNetworkCIDR)
	case model.DeferredZoneName:
		op.Payload["zone_id"] = id
		delete(op.Payload, model.MarkerZoneName)
	case model.DeferredLocationCode:
		if op.ObjectType == model.ObjectLocation {
			op.Payload["parent_location_id"] = id
		} else {
			op.Payload["location"] = map[string]any{"id": id}
		}
		delete(op.Payload, model.MarkerLocationCode)
	case model.DeferredDeviceTypeName:
		op.Payload["device_type_id"] = id
		delete(op.Payload, model.MarkerDeviceTypeName)
	case model.DeferredDeviceSubtypeName:
		op.Payload["device_subtype_id"] = id
		delete(op.Payload, model.MarkerDeviceSubtypeName)
	case model.DeferredDevice:
		op.Payload["device_id"] = id
		delete(op.Payload, model.MarkerDeviceName)
		delete(op.Payload, model.MarkerDeviceConfig)
	}
}

func markerKey(kind model.DeferredKind) string {
	switch kind {
	case model.DeferredBlockCIDR:
		return model.MarkerBlockCIDR
	case model.DeferredNetworkCIDR:
		return model.MarkerNetworkCIDR
	case model.DeferredZoneName:
		return model.MarkerZoneName
	case model.DeferredLocationCode:
		return model.MarkerLocationCode
	case model.DeferredDeviceTypeName:
		return model.MarkerDeviceTypeName
	case model.DeferredDeviceSubtypeName:
		return model.MarkerDeviceSubtypeName
	case model.DeferredDevice:
		return model.MarkerDeviceName
	}
	return string(kind)
}
