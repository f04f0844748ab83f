package redis

import (
	"fmt"
	"strings"
)

const (
	// KeyPrefixEndpoint is the prefix for endpoint records
	KeyPrefixEndpoint = "restpub:endpoint:"
	// KeyPrefixNode is the prefix for per-node endpoint sets
	KeyPrefixNode = "restpub:node:"
	// KeyAllNodes is the key for the set of every node that published something
	KeyAllNodes = "restpub:nodes"
)

// EndpointKey returns the Redis key for the endpoint published by node at path
func EndpointKey(node, path string) string {
	return KeyPrefixEndpoint + node + ":" + path
}

// NodeEndpointsKey returns the key for the set of paths published by node
func NodeEndpointsKey(node string) string {
	return KeyPrefixNode + node + ":endpoints"
}

// AllNodesKey returns the key for the set of all nodes
func AllNodesKey() string {
	return KeyAllNodes
}

// ExtractEndpointPath extracts the path from an endpoint key of a known node.
// Node URLs contain ':' themselves, so the node has to be given.
func ExtractEndpointPath(node, key string) (string, error) {
	prefix := KeyPrefixEndpoint + node + ":"
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return "", fmt.Errorf("invalid endpoint key for node %s: %s", node, key)
	}
	return key[len(prefix):], nil
}
