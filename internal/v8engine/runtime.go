//go:build v8

// Package v8engine provides the V8 VM backend on top of github.com/tommie/v8go.
// Selected with -tags v8; requires cgo.
package v8engine

import (
	"fmt"

	v8 "github.com/tommie/v8go"

	"github.com/scriptbox/scriptbox/internal/core"
)

// v8Runtime implements core.JSRuntime for a single V8 isolate+context pair.
type v8Runtime struct {
	iso *v8.Isolate
	ctx *v8.Context
}

var _ core.JSRuntime = (*v8Runtime)(nil)

// NewRuntime creates a fresh V8 isolate and context with the configured
// heap limit.
func NewRuntime(cfg core.Config) (core.JSRuntime, error) {
	var iso *v8.Isolate
	if cfg.MemoryLimitMB > 0 {
		heapSize := uint64(cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	ctx := v8.NewContext(iso)
	return &v8Runtime{iso: iso, ctx: ctx}, nil
}

// Eval evaluates JavaScript and discards the result.
func (r *v8Runtime) Eval(js string) error {
	_, err := r.ctx.RunScript(js, "eval.js")
	return err
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *v8Runtime) EvalString(js string) (string, error) {
	val, err := r.ctx.RunScript(js, "eval_string.js")
	if err != nil {
		return "", err
	}
	if val == nil {
		return "", nil
	}
	return val.String(), nil
}

// EvalBool evaluates JavaScript and returns the result as a Go bool.
func (r *v8Runtime) EvalBool(js string) (bool, error) {
	val, err := r.ctx.RunScript(js, "eval_bool.js")
	if err != nil {
		return false, err
	}
	if val == nil {
		return false, nil
	}
	return val.Boolean(), nil
}

// SetGlobal sets a global variable on the context.
func (r *v8Runtime) SetGlobal(name string, value any) error {
	jsVal, err := toJSValue(r.iso, value)
	if err != nil {
		return fmt.Errorf("converting value for %q: %w", name, err)
	}
	return r.ctx.Global().Set(name, jsVal)
}

// RunMicrotasks pumps the V8 microtask queue.
func (r *v8Runtime) RunMicrotasks() {
	r.ctx.PerformMicrotaskCheckpoint()
}

// Interrupt terminates the currently executing script.
func (r *v8Runtime) Interrupt() {
	r.iso.TerminateExecution()
}

// Close releases the context and the isolate.
func (r *v8Runtime) Close() {
	r.ctx.Close()
	r.iso.Dispose()
}

// toJSValue converts a basic Go value to a V8 value.
func toJSValue(iso *v8.Isolate, value any) (*v8.Value, error) {
	switch v := value.(type) {
	case string:
		return v8.NewValue(iso, v)
	case bool:
		return v8.NewValue(iso, v)
	case int:
		return v8.NewValue(iso, int32(v))
	case int32:
		return v8.NewValue(iso, v)
	case int64:
		return v8.NewValue(iso, int32(v))
	case float32:
		return v8.NewValue(iso, float64(v))
	case float64:
		return v8.NewValue(iso, v)
	default:
		return nil, fmt.Errorf("unsupported global type %T", value)
	}
}
