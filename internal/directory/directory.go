// Package directory mirrors this node's published endpoints into Redis so
// other tooling can see what every node serves. It is write-only from the
// point of view of the publisher: nothing is ever read back into it.
package directory

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/restpub/internal/endpoint"
	redisstore "github.com/MrSnakeDoc/restpub/internal/store/redis"
)

// Store is the subset of the Redis store the directory writes to.
type Store interface {
	SaveEndpoint(ctx context.Context, rec *redisstore.Record) error
	DeleteEndpoint(ctx context.Context, node, path string) error
}

// Directory publishes descriptors under a node identity.
type Directory struct {
	store Store
	node  string
	now   func() time.Time
}

func New(store Store, node string) *Directory {
	return &Directory{store: store, node: node, now: time.Now}
}

// Node returns the node identity records are written under.
func (d *Directory) Node() string { return d.node }

// Published records the endpoint described by desc.
func (d *Directory) Published(ctx context.Context, desc endpoint.Descriptor) error {
	now := d.now()
	return d.store.SaveEndpoint(ctx, &redisstore.Record{
		Node:         d.node,
		Path:         desc.Path,
		Type:         desc.Type,
		Publish:      desc.Publish,
		JobProducer:  desc.JobProducer,
		Module:       desc.Module,
		Impl:         desc.Impl,
		RegisteredAt: now,
		LastSeenAt:   now,
	})
}

// Withdrawn deletes the record of desc.
func (d *Directory) Withdrawn(ctx context.Context, desc endpoint.Descriptor) error {
	return d.store.DeleteEndpoint(ctx, d.node, desc.Path)
}
