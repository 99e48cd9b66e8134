package model

import "sync"

var (
	globalRegistry *Registry
	globalOnce     sync.Once
)

// Global returns the singleton registry, creating a default registry on
// first use if InitGlobal was never called.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewDefaultRegistry()
	})
	return globalRegistry
}

// InitGlobal installs a custom registry as the singleton. Only the first
// initialization (InitGlobal or Global) has any effect.
func InitGlobal(r *Registry) {
	globalOnce.Do(func() {
		globalRegistry = r
	})
}

// ResetGlobal resets the singleton. Not thread-safe; tests only.
func ResetGlobal() {
	globalOnce = sync.Once{}
	globalRegistry = nil
}
