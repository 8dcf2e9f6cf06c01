package core

// ContainerBackend is the engine-side surface of one container. The public
// Container type delegates to a ContainerBackend selected by build tags
// (QuickJS by default, V8 with -tags v8).
type ContainerBackend interface {
	// SetGlobalValue registers a caller-owned value under key. Basic types
	// are mirrored into every VM's global scope.
	SetGlobalValue(key string, value any) ResponseCode

	// GlobalValue returns a previously registered value.
	GlobalValue(key string) (any, bool)

	// Load evaluates source into every VM of the container so any of them
	// can serve a later run.
	Load(source string) ResponseCode

	// Run invokes a previously loaded function by name. The args are JS
	// expression texts spliced into the call. timeoutMillis == 0 waits
	// indefinitely.
	Run(fn string, args []string, timeoutMillis uint32) Response

	// Dispatch hands an asynchronous operation to the engine's completion
	// machinery.
	Dispatch(job Job) error

	// Release tears the container down: drains the dispatcher and closes
	// every VM. No operation may be issued afterwards.
	Release()
}
