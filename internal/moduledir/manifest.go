// Package moduledir reads module manifests from disk.
//
// Layout: <dir>/<module>/module.yaml, with the module's static files living
// next to the manifest.
package moduledir

// ManifestFile is the manifest name inside a module directory.
const ManifestFile = "module.yaml"

// Manifest represents one module.yaml
type Manifest struct {
	Name     string            `yaml:"name"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Services []ServiceManifest `yaml:"services,omitempty"`
}

// ServiceManifest declares one service the module registers once active.
type ServiceManifest struct {
	Factory    string            `yaml:"factory"`
	Impl       string            `yaml:"impl"`
	Classes    []string          `yaml:"classes,omitempty"`
	Properties map[string]string `yaml:"properties,omitempty"`
}
