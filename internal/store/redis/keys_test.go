package redis

import "testing"

func TestEndpointKeys(t *testing.T) {
	node := "http://10.0.0.7:8080"

	key := EndpointKey(node, "/api/orders")
	if key != "restpub:endpoint:http://10.0.0.7:8080:/api/orders" {
		t.Errorf("EndpointKey() = %s", key)
	}
	if got := NodeEndpointsKey(node); got != "restpub:node:http://10.0.0.7:8080:endpoints" {
		t.Errorf("NodeEndpointsKey() = %s", got)
	}

	path, err := ExtractEndpointPath(node, key)
	if err != nil {
		t.Fatalf("ExtractEndpointPath() error = %v", err)
	}
	if path != "/api/orders" {
		t.Errorf("ExtractEndpointPath() = %s, want /api/orders", path)
	}

	if _, err := ExtractEndpointPath("http://other:8080", key); err == nil {
		t.Error("ExtractEndpointPath() with foreign node should fail")
	}
	if _, err := ExtractEndpointPath(node, EndpointKey(node, "")); err == nil {
		t.Error("ExtractEndpointPath() with empty path should fail")
	}
}
