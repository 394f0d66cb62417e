package engine

import (
	"context"

	"github.com/ipamtools/bamsync/internal/bam"
	"github.com/ipamtools/bamsync/internal/model"
)

// Internal payload keys. They steer the executor and are stripped before any
// request body leaves the process.
const (
	payloadErrorKey     = "error"
	payloadTracebackKey = "traceback"
	payloadPathKey      = "resource_path"
)

// typeHandler binds one object type to its natural-key behavior: the
// created-resource class and key recorded after a successful CREATE, and the
// lookup used to recover the existing id when a CREATE hits a conflict.
type typeHandler struct {
	class  model.ResourceClass
	key    func(*model.Row) string
	lookup func(context.Context, Client, *model.Row) (*bam.Entity, error)
}

func lookupByName(objectType model.ObjectType, scoped bool) func(context.Context, Client, *model.Row) (*bam.Entity, error) {
	return func(ctx context.Context, c Client, row *model.Row) (*bam.Entity, error) {
		config := ""
		if scoped {
			config = row.Config
		}
		return c.EntityByName(ctx, string(objectType), config, row.NaturalKey())
	}
}

func lookupRecord(ctx context.Context, c Client, row *model.Row) (*bam.Entity, error) {
	if zone := row.ZoneName(); zone != "" {
		return c.RecordByName(ctx, zone, row.Name(), string(row.ObjectType))
	}
	return c.EntityByName(ctx, string(row.ObjectType), row.Config, row.Name())
}

var handlers = map[model.ObjectType]typeHandler{
	model.ObjectIP4Block: {
		class: model.ClassBlock,
		key:   (*model.Row).CIDR,
		lookup: func(ctx context.Context, c Client, row *model.Row) (*bam.Entity, error) {
			return c.BlockByCIDR(ctx, row.Config, row.CIDR())
		},
	},
	model.ObjectIP6Block: {
		class: model.ClassBlock,
		key:   (*model.Row).CIDR,
		lookup: func(ctx context.Context, c Client, row *model.Row) (*bam.Entity, error) {
			return c.BlockByCIDR(ctx, row.Config, row.CIDR())
		},
	},
	model.ObjectIP4Network: {
		class: model.ClassNetwork,
		key:   (*model.Row).CIDR,
		lookup: func(ctx context.Context, c Client, row *model.Row) (*bam.Entity, error) {
			return c.NetworkByCIDR(ctx, row.Config, row.CIDR())
		},
	},
	model.ObjectIP6Network: {
		class: model.ClassNetwork,
		key:   (*model.Row).CIDR,
		lookup: func(ctx context.Context, c Client, row *model.Row) (*bam.Entity, error) {
			return c.NetworkByCIDR(ctx, row.Config, row.CIDR())
		},
	},
	model.ObjectIP4Address: {
		lookup: func(ctx context.Context, c Client, row *model.Row) (*bam.Entity, error) {
			return c.AddressByIP(ctx, row.Config, row.Address())
		},
	},
	model.ObjectIP6Address: {
		lookup: func(ctx context.Context, c Client, row *model.Row) (*bam.Entity, error) {
			return c.AddressByIP(ctx, row.Config, row.Address())
		},
	},
	model.ObjectDNSZone: {
		class: model.ClassZone,
		key:   (*model.Row).Name,
		lookup: func(ctx context.Context, c Client, row *model.Row) (*bam.Entity, error) {
			return c.ZoneByFQDN(ctx, row.ViewPath(), row.Name())
		},
	},
	model.ObjectHostRecord:         {lookup: lookupRecord},
	model.ObjectExternalHostRecord: {lookup: lookupRecord},
	model.ObjectAliasRecord:        {lookup: lookupRecord},
	model.ObjectMXRecord:           {lookup: lookupRecord},
	model.ObjectSRVRecord:          {lookup: lookupRecord},
	model.ObjectTXTRecord:          {lookup: lookupRecord},
	model.ObjectGenericRecord:      {lookup: lookupRecord},
	model.ObjectLocation: {
		class:  model.ClassLocation,
		key:    (*model.Row).NaturalKey,
		lookup: lookupByName(model.ObjectLocation, false),
	},
	model.ObjectDeviceType: {
		class:  model.ClassDeviceType,
		key:    (*model.Row).Name,
		lookup: lookupByName(model.ObjectDeviceType, false),
	},
	model.ObjectDeviceSubtype: {
		class:  model.ClassDeviceSubtype,
		key:    (*model.Row).Name,
		lookup: lookupByName(model.ObjectDeviceSubtype, false),
	},
	model.ObjectDevice: {
		class:  model.ClassDevice,
		key:    deviceKey,
		lookup: lookupByName(model.ObjectDevice, true),
	},
}

// handlerFor returns the type's handler. Unregistered types fall back to a
// config-scoped name lookup and are not tracked for deferred resolution.
func handlerFor(t model.ObjectType) typeHandler {
	if h, ok := handlers[t]; ok {
		return h
	}
	return typeHandler{lookup: lookupByName(t, true)}
}

// deviceKey is the config-scoped device identity.
func deviceKey(row *model.Row) string {
	if row.Config == "" {
		return row.Name()
	}
	return row.Config + "/" + row.Name()
}

// createdKeys returns the created-resource entries recorded after a
// successful CREATE of this row: (class, keys). Devices get both the scoped
// and the bare name so unscoped references resolve too. ok is false for
// types that never feed deferred resolution.
func createdKeys(row *model.Row) (model.ResourceClass, []string, bool) {
	h := handlerFor(row.ObjectType)
	if h.class == "" || h.key == nil {
		return "", nil, false
	}
	key := h.key(row)
	if key == "" {
		return "", nil, false
	}
	keys := []string{key}
	if row.ObjectType == model.ObjectDevice && row.Name() != "" && row.Name() != key {
		keys = append(keys, row.Name())
	}
	return h.class, keys, true
}

// conflictLookup recovers the id of an already existing resource by its
// natural key. A miss returns bam.ErrNotFound.
func conflictLookup(ctx context.Context, c Client, row *model.Row) (*bam.Entity, error) {
	return handlerFor(row.ObjectType).lookup(ctx, c, row)
}

// sanitizePayload returns the request body for dispatch: the payload minus
// the engine's internal keys. The input map is not modified.
func sanitizePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch k {
		case payloadErrorKey, payloadTracebackKey, payloadPathKey:
			continue
		}
		out[k] = v
	}
	return out
}
