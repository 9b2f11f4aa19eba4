package compute

import (
	"fmt"
	"sort"
	"sync"
)

// Factory opens a device of one backend.
type Factory func() (Device, error)

type registration struct {
	name     string
	priority int
	factory  Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]registration)
)

// Register makes a backend available under name. Higher priorities are
// preferred by [OpenDefault]. Registering a name twice replaces the earlier
// factory. Backends call Register from init.
func Register(name string, priority int, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = registration{name: name, priority: priority, factory: factory}
}

// Unregister removes a backend. It is intended for tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}

// Available returns registered backend names, highest priority first.
func Available() []string {
	regs := sortedRegistrations()
	names := make([]string, len(regs))
	for i, r := range regs {
		names[i] = r.name
	}
	return names
}

// IsRegistered reports whether a backend is registered under name.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// Open opens a device of the named backend.
func Open(name string) (Device, error) {
	registryMu.RLock()
	r, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	dev, err := r.factory()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBackendNotAvailable, name, err)
	}
	return dev, nil
}

// OpenDefault opens the highest-priority backend that succeeds. Backends
// that fail to open are logged and skipped.
func OpenDefault() (Device, error) {
	for _, r := range sortedRegistrations() {
		dev, err := r.factory()
		if err == nil {
			Logger().Info("compute: opened device", "backend", r.name)
			return dev, nil
		}
		Logger().Warn("compute: backend unavailable, trying next", "backend", r.name, "err", err)
	}
	return nil, ErrBackendNotAvailable
}

func sortedRegistrations() []registration {
	registryMu.RLock()
	regs := make([]registration, 0, len(registry))
	for _, r := range registry {
		regs = append(regs, r)
	}
	registryMu.RUnlock()
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority > regs[j].priority
		}
		return regs[i].name < regs[j].name
	})
	return regs
}
