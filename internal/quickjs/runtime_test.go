//go:build !v8

package quickjs

import (
	"testing"

	"github.com/scriptbox/scriptbox/internal/core"
)

func newVM(t *testing.T) core.JSRuntime {
	t.Helper()
	rt, err := NewRuntime(core.DefaultConfig())
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func TestEval(t *testing.T) {
	rt := newVM(t)

	if err := rt.Eval(`var x = 1 + 2;`); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if err := rt.Eval(`throw new Error("boom");`); err == nil {
		t.Error("Eval of a throwing script should fail")
	}
	// The VM survives a thrown error.
	got, err := rt.EvalString(`String(x)`)
	if err != nil {
		t.Fatalf("EvalString: %v", err)
	}
	if got != "3" {
		t.Errorf("x = %q, want %q", got, "3")
	}
}

func TestEvalBool(t *testing.T) {
	rt := newVM(t)

	got, err := rt.EvalBool(`1 < 2`)
	if err != nil {
		t.Fatalf("EvalBool: %v", err)
	}
	if !got {
		t.Error("EvalBool(1 < 2) = false")
	}
	if _, err := rt.EvalBool(`"not a bool"`); err == nil {
		t.Error("EvalBool of a string should fail")
	}
}

func TestSetGlobal(t *testing.T) {
	rt := newVM(t)

	if err := rt.SetGlobal("answer", int64(42)); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}
	got, err := rt.EvalString(`String(answer)`)
	if err != nil {
		t.Fatalf("EvalString: %v", err)
	}
	if got != "42" {
		t.Errorf("answer = %q, want %q", got, "42")
	}
}

func TestRunMicrotasksSettlesPromises(t *testing.T) {
	rt := newVM(t)

	err := rt.Eval(`
		var settled = false;
		Promise.resolve().then(function() { settled = true; });
	`)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}

	rt.RunMicrotasks()

	settled, err := rt.EvalBool(`settled`)
	if err != nil {
		t.Fatalf("EvalBool: %v", err)
	}
	if !settled {
		t.Error("promise continuation did not run")
	}
}
