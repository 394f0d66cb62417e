// Package engine drives reconciliation plans to completion. It owns the
// operation factory (rows + diffs in, operations out), the per-type handler
// registry, the deferred-reference resolver, the concurrent state loader,
// and the batch executor with throttling, checkpointing, change logging,
// and failure cascade.
package engine

import (
	"context"

	"github.com/ipamtools/bamsync/internal/bam"
)

// Client is the handler-facing slice of the IPAM API. *bam.Client satisfies
// it; tests substitute fakes.
type Client interface {
	CreateEntity(ctx context.Context, objectType string, payload map[string]any) (*bam.Entity, error)
	UpdateEntityByID(ctx context.Context, id int64, payload map[string]any) (*bam.Entity, error)
	DeleteEntityByID(ctx context.Context, id int64, allowDangerous bool) error
	GetEntityByID(ctx context.Context, id int64) (*bam.Entity, error)

	BlockByCIDR(ctx context.Context, config, cidr string) (*bam.Entity, error)
	NetworkByCIDR(ctx context.Context, config, cidr string) (*bam.Entity, error)
	AddressByIP(ctx context.Context, config, address string) (*bam.Entity, error)
	ZoneByFQDN(ctx context.Context, viewPath, fqdn string) (*bam.Entity, error)
	RecordByName(ctx context.Context, zoneFQDN, name, recordType string) (*bam.Entity, error)
	EntityByName(ctx context.Context, objectType, config, name string) (*bam.Entity, error)
	Children(ctx context.Context, parentID int64, objectType string) ([]bam.Entity, error)
}

var _ Client = (*bam.Client)(nil)
