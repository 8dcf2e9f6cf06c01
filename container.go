// Package scriptbox provides isolated JavaScript execution containers.
//
// A Container owns a pool of pre-warmed VMs (QuickJS by default, V8 with
// -tags v8). Code is loaded into every VM of the pool; named functions are
// then invoked synchronously or asynchronously with an optional timeout,
// producing a Response carrying a status code, an error message, and the
// JSON-serialized return value.
//
// The global runtime must be initialized before the first container is
// created and shut down only after every container has been released:
//
//	scriptbox.Initialize("--workers 4 --log-level info")
//	c, err := scriptbox.NewContainer("")
//	...
//	c.Release()
//	scriptbox.Shutdown()
//
// Settings strings are whitespace-separated "--flag value" tokens:
// --workers N (VM pool size and dispatcher goroutines), --memory-limit-mb N
// (per-VM heap limit), --log-level LEVEL (global settings only).
package scriptbox

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scriptbox/scriptbox/internal/core"
)

// ErrContainerReleased is returned by asynchronous submissions against a
// container whose resources have already been released. The callback is
// never invoked in that case.
var ErrContainerReleased = errors.New("container has been released")

var errNilCallback = errors.New("callback must not be nil")

// Container is an isolated script execution environment. It has single
// ownership of its engine resources: do not copy a Container. All methods
// are safe for concurrent use; Release waits for outstanding asynchronous
// operations before freeing anything, so a released handle can never be
// observed by an in-flight operation.
type Container struct {
	id      string
	backend core.ContainerBackend

	// mu is read-locked for the duration of every operation and
	// write-locked only by Release, which therefore cannot proceed while a
	// synchronous call is still inside the engine.
	mu       sync.RWMutex
	released bool

	// ops tracks outstanding asynchronous operations. Release waits on it
	// after marking the container released.
	ops sync.WaitGroup
}

// NewContainer creates a container, applying the settings string on top of
// the global defaults. The settings text is not retained. Fails when the
// runtime is not initialized, the settings are invalid, or the engine cannot
// allocate its VMs.
func NewContainer(settings string) (*Container, error) {
	base, err := acquirePlatform()
	if err != nil {
		return nil, err
	}

	cfg, err := parseSettings(settings, base, false)
	if err != nil {
		releasePlatform()
		return nil, fmt.Errorf("invalid container settings: %w", err)
	}

	id := uuid.NewString()
	backend, err := newBackend(id, cfg)
	if err != nil {
		releasePlatform()
		return nil, err
	}

	return &Container{id: id, backend: backend}, nil
}

// ID returns the container's unique identifier, as used in log output.
func (c *Container) ID() string { return c.id }

// SetGlobalValue registers a caller-owned value under key. String, bool,
// integer and float values are mirrored into the VMs' global scope so loaded
// code can read them; any value is retrievable host-side via GlobalValue.
// The caller must guarantee the value remains valid for as long as the
// container may use it.
func (c *Container) SetGlobalValue(key string, value any) ResponseCode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.released {
		return ResponseContainerReleased
	}
	return c.backend.SetGlobalValue(key, value)
}

// GlobalValue returns a value previously registered with SetGlobalValue.
func (c *Container) GlobalValue(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.released {
		return nil, false
	}
	return c.backend.GlobalValue(key)
}

// LoadSync evaluates source into the container, blocking until every VM has
// processed it. The container stays usable after a failed load.
func (c *Container) LoadSync(source string) ResponseCode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.released {
		return ResponseContainerReleased
	}
	return c.backend.Load(source)
}

// Load evaluates source asynchronously. cb is invoked exactly once on an
// engine-owned goroutine, never reentrantly on the caller's stack.
func (c *Container) Load(source string, cb LoadCallback) error {
	if cb == nil {
		return errNilCallback
	}
	return c.submit(
		func() Response { return Response{Code: c.backend.Load(source)} },
		func(r Response) { cb(r.Code) },
	)
}

// LoadFileSync reads, optionally bundles, and evaluates the script at path,
// blocking until every VM has processed it.
func (c *Container) LoadFileSync(path string) ResponseCode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.released {
		return ResponseContainerReleased
	}
	return c.loadFile(path)
}

// LoadFile reads, optionally bundles, and evaluates the script at path
// asynchronously. cb is invoked exactly once on an engine-owned goroutine.
func (c *Container) LoadFile(path string, cb LoadCallback) error {
	if cb == nil {
		return errNilCallback
	}
	return c.submit(
		func() Response { return Response{Code: c.loadFile(path)} },
		func(r Response) { cb(r.Code) },
	)
}

// RunSync invokes a previously loaded function by name, blocking until the
// engine produces a result or the timeout elapses. Each arg is a JavaScript
// expression text spliced into the call (`"1"` is the number one, `"\"x\""`
// the string "x"). timeoutMillis == 0 waits indefinitely.
func (c *Container) RunSync(fn string, args []string, timeoutMillis uint32) Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.released {
		return core.Failure(ResponseContainerReleased, ErrContainerReleased.Error())
	}
	return c.backend.Run(fn, args, timeoutMillis)
}

// Run invokes a previously loaded function asynchronously. The args slice is
// copied at submission, so the caller's buffers need not outlive the call.
// cb is invoked exactly once on an engine-owned goroutine.
func (c *Container) Run(fn string, args []string, timeoutMillis uint32, cb RunCallback) error {
	if cb == nil {
		return errNilCallback
	}
	argv := append([]string(nil), args...)
	return c.submit(
		func() Response { return c.backend.Run(fn, argv, timeoutMillis) },
		func(r Response) { cb(r) },
	)
}

// Release waits for outstanding asynchronous operations to complete, then
// frees all engine resources. Further operations return
// ResponseContainerReleased (sync) or ErrContainerReleased (async); a second
// Release returns ResponseContainerReleased.
func (c *Container) Release() ResponseCode {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return ResponseContainerReleased
	}
	c.released = true
	c.mu.Unlock()

	c.ops.Wait()
	c.backend.Release()
	releasePlatform()
	return ResponseSuccess
}

// loadFile resolves a script file into source text and loads it. Read and
// bundling failures surface as load failures, like compile errors.
func (c *Container) loadFile(path string) ResponseCode {
	source, err := loadFileSource(path)
	if err != nil {
		core.Logger().Debug("load file failed",
			zap.String("container", c.id),
			zap.String("path", path),
			zap.Error(err))
		return ResponseLoadFailure
	}
	return c.backend.Load(source)
}

// submit registers an asynchronous operation and hands it to the engine.
// The job owns copies of its inputs; its Done hook runs the user callback
// exactly once and then retires the operation.
func (c *Container) submit(execute func() Response, done func(Response)) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.released {
		return ErrContainerReleased
	}

	c.ops.Add(1)
	err := c.backend.Dispatch(core.Job{
		Execute: execute,
		Done: func(r Response) {
			done(r)
			c.ops.Done()
		},
	})
	if err != nil {
		c.ops.Done()
		return fmt.Errorf("submitting operation: %w", err)
	}
	return nil
}
