package rest

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Response is a fixed status/body pair produced by an ErrorMapper.
type Response struct {
	Status      int
	Body        string
	ContentType string
}

// ErrorMapper translates a resource error into a response. ok is false when
// the mapper does not handle err.
type ErrorMapper interface {
	MapError(err error) (resp Response, ok bool)
}

// Serializer encodes response bodies for one media type.
type Serializer interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
}

// Providers is the list shared by every resource of a dispatch instance.
type Providers struct {
	Mappers     []ErrorMapper
	Serializers []Serializer
}

// DefaultProviders returns the not-found/unauthorized mappers and the JSON
// (default), XML and MessagePack serializers.
func DefaultProviders() *Providers {
	return &Providers{
		Mappers: []ErrorMapper{
			SentinelMapper{Target: ErrNotFound, Response: Response{
				Status:      http.StatusNotFound,
				Body:        "The resource you requested does not exist.",
				ContentType: "text/plain",
			}},
			SentinelMapper{Target: ErrUnauthorized, Response: Response{
				Status:      http.StatusUnauthorized,
				Body:        "unauthorized",
				ContentType: "text/plain",
			}},
		},
		Serializers: []Serializer{
			JSONSerializer{},
			XMLSerializer{},
			MsgpackSerializer{},
		},
	}
}

// SentinelMapper maps any error matching Target (errors.Is) to Response.
type SentinelMapper struct {
	Target   error
	Response Response
}

func (m SentinelMapper) MapError(err error) (Response, bool) {
	if errors.Is(err, m.Target) {
		return m.Response, true
	}
	return Response{}, false
}

type JSONSerializer struct{}

func (JSONSerializer) ContentType() string           { return "application/json" }
func (JSONSerializer) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

type XMLSerializer struct{}

func (XMLSerializer) ContentType() string           { return "application/xml" }
func (XMLSerializer) Marshal(v any) ([]byte, error) { return xml.Marshal(v) }

type MsgpackSerializer struct{}

func (MsgpackSerializer) ContentType() string           { return "application/msgpack" }
func (MsgpackSerializer) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

// MapError runs the mappers in order.
func (p *Providers) MapError(err error) (Response, bool) {
	if p == nil {
		return Response{}, false
	}
	for _, m := range p.Mappers {
		if resp, ok := m.MapError(err); ok {
			return resp, true
		}
	}
	return Response{}, false
}

// Negotiate picks the serializer for an Accept header. The first serializer
// is the default for a missing header or wildcard.
func (p *Providers) Negotiate(accept string) Serializer {
	if p == nil || len(p.Serializers) == 0 {
		return JSONSerializer{}
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		for _, s := range p.Serializers {
			if s.ContentType() == mediaType {
				return s
			}
		}
	}
	return p.Serializers[0]
}

type ctxKey struct{}

// WithProviders attaches providers to a request context.
func WithProviders(ctx context.Context, p *Providers) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// ProvidersFrom returns the providers of the dispatch instance serving ctx,
// falling back to DefaultProviders.
func ProvidersFrom(ctx context.Context) *Providers {
	if p, ok := ctx.Value(ctxKey{}).(*Providers); ok && p != nil {
		return p
	}
	return DefaultProviders()
}

type basePathKey struct{}

// WithBasePath records the service path a request was dispatched under.
func WithBasePath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, basePathKey{}, path)
}

// BasePath returns the service path the current request was dispatched under.
func BasePath(ctx context.Context) string {
	p, _ := ctx.Value(basePathKey{}).(string)
	return p
}
