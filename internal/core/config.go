package core

// Config holds runtime configuration for a container engine, parsed from a
// settings string.
type Config struct {
	Workers       int    // dispatcher goroutines and VM pool size per container
	MemoryLimitMB int    // per-VM memory limit, 0 = engine default
	LogLevel      string // zap level name, empty = logging disabled
}

// DefaultConfig returns the configuration used when a settings string leaves
// a field unset.
func DefaultConfig() Config {
	return Config{Workers: 2}
}
