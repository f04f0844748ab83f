package endpoint

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrSnakeDoc/restpub/internal/host"
	"github.com/MrSnakeDoc/restpub/internal/rest"
)

type fakeHandle struct{ unregistered atomic.Bool }

func (h *fakeHandle) Unregister() { h.unregistered.Store(true) }

func mountOK() (Handle, error) { return &fakeHandle{}, nil }

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.Count() != 0 {
		t.Errorf("NewRegistry() should start empty, got %d", r.Count())
	}
	if !r.LastChange().IsZero() {
		t.Error("LastChange() should be zero before any change")
	}
}

func TestRegisterDuplicatePathKeepsOriginal(t *testing.T) {
	r := NewRegistry()

	first, err := r.Register(Descriptor{RefID: 1, Path: "/a"}, mountOK)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	mounted := false
	_, err = r.Register(Descriptor{RefID: 2, Path: "/a"}, func() (Handle, error) {
		mounted = true
		return &fakeHandle{}, nil
	})
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("Register() duplicate error = %v, want ErrAlreadyRegistered", err)
	}
	if mounted {
		t.Error("mount should not run for an already registered path")
	}

	got, ok := r.Get("/a")
	if !ok || got != first {
		t.Error("original registration should be untouched")
	}
}

func TestRegisterMountFailureRecordsNothing(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("duplicate handler name")

	_, err := r.Register(Descriptor{Path: "/a"}, func() (Handle, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Register() error = %v, want %v", err, boom)
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(Descriptor{RefID: 1, Path: "/a"}, mountOK); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, ok := r.Unregister("/missing"); ok {
		t.Error("Unregister() of unknown path should report false")
	}
	if _, ok := r.UnregisterOwned("/a", 99); ok {
		t.Error("UnregisterOwned() with foreign owner should not remove")
	}
	if _, ok := r.UnregisterOwned("/a", 1); !ok {
		t.Error("UnregisterOwned() with owner should remove")
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestAllSortedByPath(t *testing.T) {
	r := NewRegistry()
	for _, p := range []string{"/c", "/a", "/b"} {
		if _, err := r.Register(Descriptor{Path: p}, mountOK); err != nil {
			t.Fatalf("Register(%s) error = %v", p, err)
		}
	}

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("All() = %d entries, want 3", len(all))
	}
	for i, want := range []string{"/a", "/b", "/c"} {
		if all[i].Path != want {
			t.Errorf("All()[%d] = %s, want %s", i, all[i].Path, want)
		}
	}
}

func TestConcurrentRegisterSinglePath(t *testing.T) {
	r := NewRegistry()
	var mounts atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, _ = r.Register(Descriptor{RefID: uint64(id), Path: "/shared"}, func() (Handle, error) {
				mounts.Add(1)
				return &fakeHandle{}, nil
			})
			_, _ = r.Register(Descriptor{RefID: uint64(id), Path: fmt.Sprintf("/own/%d", id)}, mountOK)
		}(i)
	}
	wg.Wait()

	if mounts.Load() != 1 {
		t.Errorf("shared path mounted %d times, want 1", mounts.Load())
	}
	if r.Count() != 101 {
		t.Errorf("Count() = %d, want 101", r.Count())
	}
}

func TestNewDescriptorDefaults(t *testing.T) {
	reg := host.NewRegistry()
	mod := &host.Module{Name: "ingest"}
	if err := reg.ActivateModule(mod); err != nil {
		t.Fatalf("ActivateModule() error = %v", err)
	}

	tests := []struct {
		name            string
		props           host.Properties
		wantPublish     bool
		wantJobProducer bool
	}{
		{
			name:            "absent flags",
			props:           host.Properties{rest.ServicePathProperty: "/ingest"},
			wantPublish:     true,
			wantJobProducer: false,
		},
		{
			name: "explicit flags",
			props: host.Properties{
				rest.ServicePathProperty:        "/ingest",
				rest.ServicePublishProperty:     "false",
				rest.ServiceJobProducerProperty: "TRUE",
			},
			wantPublish:     false,
			wantJobProducer: true,
		},
		{
			name: "unparseable flags are false",
			props: host.Properties{
				rest.ServicePathProperty:        "/ingest",
				rest.ServicePublishProperty:     "yes",
				rest.ServiceJobProducerProperty: "1",
			},
			wantPublish:     false,
			wantJobProducer: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr, err := reg.Register(mod, host.ServiceSpec{Impl: "ingest.Resource", Instance: 1, Properties: tt.props})
			if err != nil {
				t.Fatalf("Register() error = %v", err)
			}
			defer sr.Unregister()

			d := NewDescriptor(sr.Reference())
			if d.Publish != tt.wantPublish {
				t.Errorf("Publish = %v, want %v", d.Publish, tt.wantPublish)
			}
			if d.JobProducer != tt.wantJobProducer {
				t.Errorf("JobProducer = %v, want %v", d.JobProducer, tt.wantJobProducer)
			}
			if d.Module != "ingest" || d.Path != "/ingest" || d.Impl != "ingest.Resource" {
				t.Errorf("unexpected descriptor %+v", d)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/x", "/x"},
		{"/x/", "/x"},
		{" /x// ", "/x"},
		{"/", "/"},
		{"//", "/"},
		{"/a/b/", "/a/b"},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewDescriptorNormalizesPath(t *testing.T) {
	reg := host.NewRegistry()
	mod := &host.Module{Name: "ingest"}
	if err := reg.ActivateModule(mod); err != nil {
		t.Fatalf("ActivateModule() error = %v", err)
	}
	sr, err := reg.Register(mod, host.ServiceSpec{
		Impl:       "ingest.Resource",
		Instance:   1,
		Properties: host.Properties{rest.ServicePathProperty: "/ingest/"},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	defer sr.Unregister()

	if d := NewDescriptor(sr.Reference()); d.Path != "/ingest" {
		t.Errorf("Path = %q, want /ingest", d.Path)
	}
}
