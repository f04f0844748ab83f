package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultEndpointTTL bounds how long a record survives without a refresh,
// even if every garbage collector is down.
const DefaultEndpointTTL = 48 * time.Hour

// ErrEndpointNotFound is returned when no record exists for a node/path.
var ErrEndpointNotFound = errors.New("endpoint record not found")

// Record is the directory entry for one published endpoint.
type Record struct {
	Node         string    `json:"node"`
	Path         string    `json:"path"`
	Type         string    `json:"type,omitempty"`
	Publish      bool      `json:"publish"`
	JobProducer  bool      `json:"job_producer"`
	Module       string    `json:"module"`
	Impl         string    `json:"impl"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// Store handles Redis operations for the endpoint directory
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SaveEndpoint stores a record and indexes it under its node
func (s *Store) SaveEndpoint(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal endpoint: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, EndpointKey(rec.Node, rec.Path), data, DefaultEndpointTTL)
	pipe.SAdd(ctx, NodeEndpointsKey(rec.Node), rec.Path)
	pipe.SAdd(ctx, AllNodesKey(), rec.Node)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save endpoint: %w", err)
	}

	return nil
}

// GetEndpoint retrieves the record published by node at path
func (s *Store) GetEndpoint(ctx context.Context, node, path string) (*Record, error) {
	data, err := s.client.Get(ctx, EndpointKey(node, path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s%s: %w", node, path, ErrEndpointNotFound)
		}
		return nil, fmt.Errorf("failed to get endpoint: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal endpoint: %w", err)
	}

	return &rec, nil
}

// GetNodeEndpoints retrieves every record published by node
func (s *Store) GetNodeEndpoints(ctx context.Context, node string) ([]*Record, error) {
	paths, err := s.client.SMembers(ctx, NodeEndpointsKey(node)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoint paths: %w", err)
	}

	records := make([]*Record, 0, len(paths))
	for _, path := range paths {
		rec, err := s.GetEndpoint(ctx, node, path)
		if err != nil {
			// Expired or half-written records are skipped
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// GetAllEndpoints retrieves the records of every node
func (s *Store) GetAllEndpoints(ctx context.Context) ([]*Record, error) {
	nodes, err := s.client.SMembers(ctx, AllNodesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get nodes: %w", err)
	}

	var all []*Record
	for _, node := range nodes {
		records, err := s.GetNodeEndpoints(ctx, node)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}

	return all, nil
}

// DeleteEndpoint removes a record and its index entry
func (s *Store) DeleteEndpoint(ctx context.Context, node, path string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, EndpointKey(node, path))
	pipe.SRem(ctx, NodeEndpointsKey(node), path)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}

	return nil
}

// DeleteNode removes every record of node. Returns the number of records removed.
func (s *Store) DeleteNode(ctx context.Context, node string) (int, error) {
	paths, err := s.client.SMembers(ctx, NodeEndpointsKey(node)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get endpoint paths: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, path := range paths {
		pipe.Del(ctx, EndpointKey(node, path))
	}
	pipe.Del(ctx, NodeEndpointsKey(node))
	pipe.SRem(ctx, AllNodesKey(), node)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete node: %w", err)
	}

	return len(paths), nil
}

// Touch refreshes LastSeenAt (and the TTL) of a record
func (s *Store) Touch(ctx context.Context, node, path string, now time.Time) error {
	rec, err := s.GetEndpoint(ctx, node, path)
	if err != nil {
		return err
	}

	rec.LastSeenAt = now
	return s.SaveEndpoint(ctx, rec)
}
