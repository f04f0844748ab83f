package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrSnakeDoc/restpub/internal/host"
	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/moduledir"
)

func writeModule(t *testing.T, root, name, manifest string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create module dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, moduledir.ManifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
}

func newTestReloader(t *testing.T, root string) (*ModuleReloader, *host.Registry) {
	t.Helper()
	catalog := moduledir.NewCatalog()
	catalog.Register("greeter", func(m *host.Module, props host.Properties) (any, error) {
		return m.Name + ":" + props["greeting"], nil
	})

	registry := host.NewRegistry()
	mr := NewModuleReloader(ModuleReloaderConfig{
		Dir:      root,
		Catalog:  catalog,
		Registry: registry,
		Logger:   logger.New("error", false),
		Interval: time.Hour,
	})
	return mr, registry
}

func TestModuleReloader_Reload(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "hello", `
services:
  - factory: greeter
    impl: hello.Greeter
    properties:
      greeting: hi
  - factory: missing
    impl: hello.Missing
`)

	mr, registry := newTestReloader(t, root)
	ctx := context.Background()

	if err := mr.Reload(ctx); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if got := mr.Loaded(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("Loaded() = %v, want [hello]", got)
	}
	if mr.LastReload().IsZero() {
		t.Error("LastReload should be set")
	}

	ref := registry.ServiceReference("hello.Greeter")
	if ref == nil {
		t.Fatal("hello.Greeter not registered")
	}
	if svc := registry.GetService(ref); svc != "hello:hi" {
		t.Errorf("GetService() = %v, want hello:hi", svc)
	}
	if registry.ServiceReference("hello.Missing") != nil {
		t.Error("service with unknown factory should be skipped")
	}

	// An edited manifest reactivates the module.
	writeModule(t, root, "hello", `
services:
  - factory: greeter
    impl: hello.Greeter
    properties:
      greeting: hey
`)
	if err := mr.Reload(ctx); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	ref = registry.ServiceReference("hello.Greeter")
	if ref == nil {
		t.Fatal("hello.Greeter not registered after change")
	}
	if svc := registry.GetService(ref); svc != "hello:hey" {
		t.Errorf("GetService() after change = %v, want hello:hey", svc)
	}

	// A vanished module is deactivated.
	if err := os.RemoveAll(filepath.Join(root, "hello")); err != nil {
		t.Fatal(err)
	}
	if err := mr.Reload(ctx); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if len(mr.Loaded()) != 0 {
		t.Errorf("Loaded() = %v, want empty", mr.Loaded())
	}
	if _, ok := registry.Module("hello"); ok {
		t.Error("module hello should be deactivated")
	}
	if registry.ServiceReference("hello.Greeter") != nil {
		t.Error("services of a deactivated module should be gone")
	}
}

func TestModuleReloader_UnchangedIsKept(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "hello", `
services:
  - factory: greeter
    impl: hello.Greeter
`)

	mr, registry := newTestReloader(t, root)
	if err := mr.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	first := registry.ServiceReference("hello.Greeter")

	if err := mr.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if got := registry.ServiceReference("hello.Greeter"); got != first {
		t.Error("an unchanged module should not be re-registered")
	}
}

func TestModuleReloader_MissingDirFailsStart(t *testing.T) {
	mr, _ := newTestReloader(t, filepath.Join(t.TempDir(), "nope"))
	if err := mr.Start(context.Background()); err == nil {
		mr.Stop()
		t.Fatal("expected Start to fail on a missing modules directory")
	}
}
