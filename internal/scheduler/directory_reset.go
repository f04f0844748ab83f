package scheduler

import (
	"context"

	"github.com/MrSnakeDoc/restpub/internal/logger"
)

// NodeResetter deletes every directory record of a node.
type NodeResetter interface {
	DeleteNode(ctx context.Context, node string) (int, error)
}

// DirectoryReset clears this node's leftovers from a previous run before
// anything is published, so the directory only ever mirrors live state.
type DirectoryReset struct {
	store  NodeResetter
	node   string
	logger logger.Logger
}

// NewDirectoryReset creates a new directory reset
func NewDirectoryReset(store NodeResetter, node string, log logger.Logger) *DirectoryReset {
	return &DirectoryReset{
		store:  store,
		node:   node,
		logger: log,
	}
}

// Reset removes the node's records
func (dr *DirectoryReset) Reset(ctx context.Context) error {
	dr.logger.Info("clearing endpoint directory for node",
		logger.String("node", dr.node))

	n, err := dr.store.DeleteNode(ctx, dr.node)
	if err != nil {
		return err
	}

	if n == 0 {
		dr.logger.Info("no stale endpoint records found")
		return nil
	}

	dr.logger.Info("cleared stale endpoint records",
		logger.Int("count", n))

	return nil
}
