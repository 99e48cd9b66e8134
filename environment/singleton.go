package environment

import "sync"

// Global resolved configuration and initialization guard.
var (
	globalConfig *Config
	globalOnce   sync.Once
)

// Global returns the process-wide resolved environment configuration.
// Resolution happens once on first call; subsequent calls return the same
// cached object.
func Global() *Config {
	globalOnce.Do(func() {
		globalConfig = NewResolver().Resolve()
	})
	return globalConfig
}

// InitGlobal seeds the global configuration with a custom instance.
// Must be called before any call to Global() to take effect.
// Safe for concurrent use but only the first call has any effect.
func InitGlobal(c *Config) {
	globalOnce.Do(func() {
		globalConfig = c
	})
}

// ResetGlobal resets the global configuration for testing purposes.
// This is NOT thread-safe and should only be used in tests.
func ResetGlobal() {
	globalOnce = sync.Once{}
	globalConfig = nil
}
