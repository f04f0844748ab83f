// Package rest is the contract between restpub and the resources it publishes.
package rest

import (
	"errors"

	"github.com/go-chi/chi/v5"
)

// Service registration properties read by the service watcher.
const (
	ServicePathProperty        = "service.path"
	ServiceTypeProperty        = "service.type"
	ServicePublishProperty     = "service.publish"
	ServiceJobProducerProperty = "service.jobproducer"
)

// Raw handler services (mounted as-is, never dispatched through resources).
const (
	HandlerClass           = "http.Handler"
	HandlerPatternProperty = "http.pattern"
	HandlerNameProperty    = "http.name"
)

// ResourceClass is the capability resources are registered under.
const ResourceClass = "rest.Resource"

// Module manifest headers read by the static asset watcher.
const (
	HeaderClasspath   = "Http-Classpath"
	HeaderAlias       = "Http-Alias"
	HeaderWelcome     = "Http-Welcome"
	HeaderSPARedirect = "Http-Spa-Redirect"
)

// Resource is implemented by every publishable REST resource. Routes are
// declared relative to the resource's service path.
type Resource interface {
	Routes(r chi.Router)
}

// EndpointPublisher is an optional capability: resources implementing it are
// notified once their endpoint is live.
type EndpointPublisher interface {
	EndpointPublished()
}

var (
	// ErrNotFound is mapped to 404.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is mapped to 401.
	ErrUnauthorized = errors.New("unauthorized")
)
