package core

// JSRuntime abstracts a single JavaScript VM (QuickJS or V8) behind the
// interface the engine drives. A JSRuntime is not safe for concurrent use;
// the engine serializes access through its pool.
type JSRuntime interface {
	// Eval evaluates JavaScript source at global scope and discards the
	// result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// EvalBool evaluates JavaScript and returns the result as a Go bool.
	EvalBool(js string) (bool, error)

	// SetGlobal sets a global variable on the VM. Basic Go types (string,
	// bool, ints, float64) are converted to the corresponding JS types.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the microtask queue (Promise callbacks).
	// V8: PerformMicrotaskCheckpoint, QuickJS: ExecutePendingJob loop.
	RunMicrotasks()

	// Interrupt terminates the currently executing script. Safe to call
	// from another goroutine; this is the watchdog's kill switch. The VM
	// should be considered poisoned afterwards and discarded.
	Interrupt()

	// Close releases the VM.
	Close()
}

// RuntimeFactory creates a fresh VM configured with the given limits.
// Backends (QuickJS, V8) each provide one; build tags select which.
type RuntimeFactory func(cfg Config) (JSRuntime, error)
