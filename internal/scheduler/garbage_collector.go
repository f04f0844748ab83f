package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/restpub/internal/endpoint"
	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/metrics"
	redisstore "github.com/MrSnakeDoc/restpub/internal/store/redis"
)

const (
	// DefaultGCThreshold is how long a foreign node's record may go unrefreshed
	DefaultGCThreshold = 10 * time.Minute
)

// DirectoryStore is what the collector needs from the endpoint directory.
type DirectoryStore interface {
	GetAllEndpoints(ctx context.Context) ([]*redisstore.Record, error)
	DeleteEndpoint(ctx context.Context, node, path string) error
	Touch(ctx context.Context, node, path string, now time.Time) error
}

// LiveEndpoints reports what this node currently publishes.
type LiveEndpoints interface {
	Get(path string) (*endpoint.Registration, bool)
}

// GarbageCollector keeps the endpoint directory honest: this node's live
// records are refreshed, its withdrawn ones deleted, and records of other
// nodes that stopped refreshing are deleted once older than the threshold.
type GarbageCollector struct {
	store     DirectoryStore
	live      LiveEndpoints
	node      string
	logger    logger.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	threshold time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewGarbageCollector creates a new garbage collector
func NewGarbageCollector(
	store DirectoryStore,
	live LiveEndpoints,
	node string,
	log logger.Logger,
	m *metrics.Metrics,
	interval time.Duration,
	threshold time.Duration,
) *GarbageCollector {
	if threshold == 0 {
		threshold = DefaultGCThreshold
	}

	return &GarbageCollector{
		store:     store,
		live:      live,
		node:      node,
		logger:    log,
		metrics:   m,
		interval:  interval,
		threshold: threshold,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic garbage collection process
func (gc *GarbageCollector) Start(ctx context.Context) error {
	// Run immediately on start
	if _, err := gc.Collect(ctx); err != nil {
		gc.logger.Warn("initial garbage collection failed",
			logger.Error(err))
	}

	// Start periodic collection
	ticker := time.NewTicker(gc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := gc.Collect(ctx); err != nil {
					gc.logger.Error("garbage collection failed",
						logger.Error(err))
				}
			case <-gc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the garbage collector
func (gc *GarbageCollector) Stop() {
	gc.stopOnce.Do(func() { close(gc.stopCh) })
}

// Collect runs one pass and returns the number of deleted records
func (gc *GarbageCollector) Collect(ctx context.Context) (int, error) {
	gc.logger.Debug("running endpoint directory garbage collection")

	records, err := gc.store.GetAllEndpoints(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list endpoint records: %w", err)
	}

	now := time.Now()
	deleted, refreshed := 0, 0

	for _, rec := range records {
		if rec.Node == gc.node {
			if _, ok := gc.live.Get(rec.Path); ok {
				if err := gc.store.Touch(ctx, rec.Node, rec.Path, now); err != nil {
					gc.logger.Warn("failed to refresh endpoint record",
						logger.String("path", rec.Path),
						logger.Error(err))
					continue
				}
				refreshed++
				continue
			}
		} else if now.Sub(rec.LastSeenAt) < gc.threshold {
			continue
		}

		if err := gc.store.DeleteEndpoint(ctx, rec.Node, rec.Path); err != nil {
			gc.logger.Warn("failed to delete endpoint record",
				logger.String("node", rec.Node),
				logger.String("path", rec.Path),
				logger.Error(err))
			continue
		}

		gc.logger.Info("garbage collected endpoint record",
			logger.String("node", rec.Node),
			logger.String("path", rec.Path),
			logger.String("stale_for", now.Sub(rec.LastSeenAt).String()))
		deleted++
	}

	gc.metrics.DirectoryDeleted(deleted)
	if deleted > 0 {
		gc.logger.Info("garbage collection completed",
			logger.Int("deleted", deleted),
			logger.Int("refreshed", refreshed))
	} else {
		gc.logger.Debug("no endpoint records to garbage collect",
			logger.Int("refreshed", refreshed))
	}

	return deleted, nil
}
