package model

import "strings"

// DeferredPrefix marks payload keys whose values are forward references to
// resources created earlier in the same run (or a resumed one).
const DeferredPrefix = "_deferred_"

// Recognized deferred marker keys.
const (
	MarkerBlockCIDR         = "_deferred_block_cidr"
	MarkerNetworkCIDR       = "_deferred_network_cidr"
	MarkerZoneName          = "_deferred_zone_name"
	MarkerLocationCode      = "_deferred_location_code"
	MarkerDeviceTypeName    = "_deferred_device_type_name"
	MarkerDeviceSubtypeName = "_deferred_device_subtype_name"
	MarkerDeviceName        = "_deferred_device_name"
	// MarkerDeviceConfig is an auxiliary companion to MarkerDeviceName; it
	// never resolves on its own.
	MarkerDeviceConfig = "_deferred_device_config"
)

// DeferredKind tags the variants of a deferred reference.
type DeferredKind string

const (
	DeferredBlockCIDR         DeferredKind = "block_cidr"
	DeferredNetworkCIDR       DeferredKind = "network_cidr"
	DeferredZoneName          DeferredKind = "zone_name"
	DeferredLocationCode      DeferredKind = "location_code"
	DeferredDeviceTypeName    DeferredKind = "device_type_name"
	DeferredDeviceSubtypeName DeferredKind = "device_subtype_name"
	DeferredDevice            DeferredKind = "device"
)

// DeferredRef is a typed forward reference carried on an Operation alongside
// the raw payload marker. Key is the natural key to look up; Config narrows
// device lookups to a configuration.
type DeferredRef struct {
	Kind   DeferredKind `json:"kind"`
	Key    string       `json:"key"`
	Config string       `json:"config,omitempty"`
}

// Class returns the resolver-cache resource class this reference reads from.
func (d DeferredRef) Class() ResourceClass {
	switch d.Kind {
	case DeferredBlockCIDR:
		return ClassBlock
	case DeferredNetworkCIDR:
		return ClassNetwork
	case DeferredZoneName:
		return ClassZone
	case DeferredLocationCode:
		return ClassLocation
	case DeferredDeviceTypeName:
		return ClassDeviceType
	case DeferredDeviceSubtypeName:
		return ClassDeviceSubtype
	case DeferredDevice:
		return ClassDevice
	}
	return ""
}

// CacheKey returns the lookup key within the reference's class. Device
// references scoped to a config use "{config}/{name}".
func (d DeferredRef) CacheKey() string {
	if d.Kind == DeferredDevice && d.Config != "" {
		return d.Config + "/" + d.Key
	}
	return d.Key
}

var markerKinds = map[string]DeferredKind{
	MarkerBlockCIDR:         DeferredBlockCIDR,
	MarkerNetworkCIDR:       DeferredNetworkCIDR,
	MarkerZoneName:          DeferredZoneName,
	MarkerLocationCode:      DeferredLocationCode,
	MarkerDeviceTypeName:    DeferredDeviceTypeName,
	MarkerDeviceSubtypeName: DeferredDeviceSubtypeName,
	MarkerDeviceName:        DeferredDevice,
}

// ParseDeferred extracts the typed references implied by a payload's
// _deferred_* markers. Unrecognized markers are ignored here; the resolver
// rejects them at dispatch time so malformed payloads cannot slip through.
func ParseDeferred(payload map[string]any) []DeferredRef {
	if len(payload) == 0 {
		return nil
	}
	var refs []DeferredRef
	for key, val := range payload {
		kind, ok := markerKinds[key]
		if !ok {
			continue
		}
		s, _ := val.(string)
		ref := DeferredRef{Kind: kind, Key: s}
		if kind == DeferredDevice {
			if cfg, ok := payload[MarkerDeviceConfig].(string); ok {
				ref.Config = cfg
			}
		}
		refs = append(refs, ref)
	}
	return refs
}

// HasDeferredMarkers reports whether any payload key carries the deferred
// prefix, recognized or not.
func HasDeferredMarkers(payload map[string]any) bool {
	for key := range payload {
		if strings.HasPrefix(key, DeferredPrefix) {
			return true
		}
	}
	return false
}
