package host

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu      sync.Mutex
	events  []string
	added   map[uint64]bool
	modules []string
}

func newRecordingListener() *recordingListener {
	return &recordingListener{added: make(map[uint64]bool)}
}

func (l *recordingListener) ServiceAdded(ref *ServiceReference) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "+"+ref.Impl())
	l.added[ref.ID()] = true
}

func (l *recordingListener) ServiceRemoved(ref *ServiceReference) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "-"+ref.Impl())
	delete(l.added, ref.ID())
}

func (l *recordingListener) ModuleActivated(m *Module) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modules = append(l.modules, "+"+m.Name)
}

func (l *recordingListener) ModuleDeactivated(m *Module) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modules = append(l.modules, "-"+m.Name)
}

func activate(t *testing.T, r *Registry, name string) *Module {
	t.Helper()
	m := &Module{Name: name}
	require.NoError(t, r.ActivateModule(m))
	return m
}

func TestRegisterRequiresActiveModule(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(&Module{Name: "ghost"}, ServiceSpec{Impl: "x", Instance: 1})
	assert.True(t, errors.Is(err, ErrModuleInactive))

	m := activate(t, r, "mod")
	_, err = r.Register(m, ServiceSpec{Impl: "x"})
	assert.True(t, errors.Is(err, ErrNoService))

	reg, err := r.Register(m, ServiceSpec{Impl: "x", Instance: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, r.GetService(reg.Reference()))
}

func TestActivateTwice(t *testing.T) {
	r := NewRegistry()
	activate(t, r, "mod")

	err := r.ActivateModule(&Module{Name: "mod"})
	assert.True(t, errors.Is(err, ErrModuleActive))
}

func TestTrackServicesReplaysAndFilters(t *testing.T) {
	r := NewRegistry()
	m := activate(t, r, "mod")

	_, err := r.Register(m, ServiceSpec{Impl: "a", Instance: "a", Properties: Properties{"path": "/a"}})
	require.NoError(t, err)
	_, err = r.Register(m, ServiceSpec{Impl: "b", Instance: "b"})
	require.NoError(t, err)

	l := newRecordingListener()
	untrack := r.TrackServices(func(ref *ServiceReference) bool {
		return ref.Property("path") != ""
	}, l)

	assert.Equal(t, []string{"+a"}, l.events)

	c, err := r.Register(m, ServiceSpec{Impl: "c", Instance: "c", Properties: Properties{"path": "/c"}})
	require.NoError(t, err)
	c.Unregister()
	c.Unregister()

	untrack()
	assert.Equal(t, []string{"+a", "+c", "-c", "-a"}, l.events)
}

func TestGetServiceAfterUnregister(t *testing.T) {
	r := NewRegistry()
	m := activate(t, r, "mod")

	reg, err := r.Register(m, ServiceSpec{Impl: "a", Instance: "a"})
	require.NoError(t, err)
	reg.Unregister()

	assert.Nil(t, r.GetService(reg.Reference()))
}

func TestFactoryIsLazyAndFailuresStick(t *testing.T) {
	r := NewRegistry()
	m := activate(t, r, "mod")

	calls := 0
	ok, err := r.Register(m, ServiceSpec{Impl: "lazy", Factory: func() (any, error) {
		calls++
		return "built", nil
	}})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
	assert.Equal(t, "built", r.GetService(ok.Reference()))
	assert.Equal(t, "built", r.GetService(ok.Reference()))
	assert.Equal(t, 1, calls)

	bad, err := r.Register(m, ServiceSpec{Impl: "broken", Factory: func() (any, error) {
		return nil, errors.New("boom")
	}})
	require.NoError(t, err)
	assert.Nil(t, r.GetService(bad.Reference()))
}

func TestServiceReferenceOldestWins(t *testing.T) {
	r := NewRegistry()
	m := activate(t, r, "mod")

	first, err := r.Register(m, ServiceSpec{Impl: "dup", Instance: 1})
	require.NoError(t, err)
	_, err = r.Register(m, ServiceSpec{Impl: "dup", Instance: 2})
	require.NoError(t, err)

	assert.Equal(t, first.Reference().ID(), r.ServiceReference("dup").ID())
	assert.Nil(t, r.ServiceReference("missing"))
}

func TestDeactivateModuleRemovesServicesFirst(t *testing.T) {
	r := NewRegistry()
	m := activate(t, r, "mod")
	_, err := r.Register(m, ServiceSpec{Impl: "a", Instance: "a"})
	require.NoError(t, err)

	l := newRecordingListener()
	defer r.TrackServices(nil, l)()
	defer r.TrackModules(l)()

	require.NoError(t, r.DeactivateModule("mod"))
	assert.Equal(t, []string{"+a", "-a"}, l.events)
	assert.Equal(t, []string{"+mod", "-mod"}, l.modules)
	assert.Empty(t, r.Modules())

	err = r.DeactivateModule("mod")
	assert.True(t, errors.Is(err, ErrModuleInactive))
}

func TestConcurrentRegistrationsTrackedOnce(t *testing.T) {
	r := NewRegistry()
	m := activate(t, r, "mod")
	l := newRecordingListener()
	untrack := r.TrackServices(nil, l)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg, err := r.Register(m, ServiceSpec{Impl: "x", Instance: 1})
			if err == nil {
				reg.Unregister()
			}
		}()
	}
	wg.Wait()

	l.mu.Lock()
	assert.Len(t, l.events, 100)
	assert.Empty(t, l.added)
	l.mu.Unlock()
	untrack()
}

type blockingRemover struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingRemover) ServiceAdded(*ServiceReference) {}

func (b *blockingRemover) ServiceRemoved(*ServiceReference) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
}

func TestRegisterRejectedWhileDeactivating(t *testing.T) {
	r := NewRegistry()
	m := activate(t, r, "mod")
	for i := 0; i < 5; i++ {
		_, err := r.Register(m, ServiceSpec{Impl: "svc", Instance: i})
		require.NoError(t, err)
	}

	b := &blockingRemover{entered: make(chan struct{}), release: make(chan struct{})}
	defer r.TrackServices(nil, b)()

	done := make(chan error, 1)
	go func() { done <- r.DeactivateModule("mod") }()

	<-b.entered
	_, err := r.Register(m, ServiceSpec{Impl: "late", Instance: 1})
	assert.True(t, errors.Is(err, ErrModuleInactive))
	assert.True(t, errors.Is(r.DeactivateModule("mod"), ErrModuleInactive))
	close(b.release)

	require.NoError(t, <-done)
	assert.Empty(t, r.References(nil))
	assert.Empty(t, r.Modules())
}

func TestConcurrentRegisterAndDeactivateLeavesNoOrphans(t *testing.T) {
	for i := 0; i < 50; i++ {
		r := NewRegistry()
		m := activate(t, r, "mod")
		for j := 0; j < 20; j++ {
			_, err := r.Register(m, ServiceSpec{Impl: "svc", Instance: j})
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = r.Register(m, ServiceSpec{Impl: "late", Instance: j})
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, r.DeactivateModule("mod"))
		}()
		wg.Wait()

		assert.Empty(t, r.References(nil), "iteration %d", i)
	}
}
