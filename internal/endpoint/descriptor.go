package endpoint

import (
	"strings"

	"github.com/MrSnakeDoc/restpub/internal/host"
	"github.com/MrSnakeDoc/restpub/internal/rest"
)

// Descriptor identifies one published capability.
//
// It is captured once, when the host registry reports the service, and
// never changes for the lifetime of the registration.
type Descriptor struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// RefID is the host reference that owns this descriptor.
	RefID uint64

	// Module is the name of the module that registered the service.
	Module string

	// Impl is the implementation name (precedence lookups key on it).
	Impl string

	// ─────────────────────────────
	// Declared metadata
	// ─────────────────────────────

	// Path is the base URL the resource mounts at. Example: /ingest
	Path string

	// Type is a free-form classification tag.
	Type string

	// Publish defaults to true when the property is absent.
	Publish bool

	// JobProducer defaults to false when the property is absent.
	JobProducer bool
}

// NewDescriptor reads a descriptor from a service reference.
//
// An absent publish flag means true and an absent job-producer flag means
// false; a present flag is true only for a case-insensitive "true".
func NewDescriptor(ref *host.ServiceReference) Descriptor {
	d := Descriptor{
		RefID:       ref.ID(),
		Impl:        ref.Impl(),
		Path:        NormalizePath(ref.Property(rest.ServicePathProperty)),
		Type:        ref.Property(rest.ServiceTypeProperty),
		Publish:     true,
		JobProducer: false,
	}
	if m := ref.Module(); m != nil {
		d.Module = m.Name
	}
	if v, ok := ref.LookupProperty(rest.ServicePublishProperty); ok {
		d.Publish = parseBool(v)
	}
	if v, ok := ref.LookupProperty(rest.ServiceJobProducerProperty); ok {
		d.JobProducer = parseBool(v)
	}
	return d
}

// NormalizePath trims surrounding blanks and trailing slashes, so "/x/" and
// "/x" name the same endpoint. The root path stays "/".
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}

func parseBool(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
