package scriptbox

import (
	"testing"
	"time"
)

// initRuntime initializes the global runtime for a test and registers its
// shutdown. Tests in this package share the platform state, so they rely on
// the default sequential test execution.
func initRuntime(t *testing.T) {
	t.Helper()
	if code := Initialize(""); code != ResponseSuccess {
		t.Fatalf("Initialize: %v", code)
	}
	t.Cleanup(func() {
		if code := Shutdown(); code != ResponseSuccess {
			t.Errorf("Shutdown: %v", code)
		}
	})
}

// newTestContainer creates a container that is released when the test ends.
func newTestContainer(t *testing.T, settings string) *Container {
	t.Helper()
	c, err := NewContainer(settings)
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	t.Cleanup(func() { _ = c.Release() })
	return c
}

func TestRunSyncAddFunction(t *testing.T) {
	initRuntime(t)
	c := newTestContainer(t, "")

	if code := c.LoadSync(`function add(a, b) { return a + b; }`); code != ResponseSuccess {
		t.Fatalf("LoadSync: %v", code)
	}

	resp := c.RunSync("add", []string{"1", "2"}, 0)
	if resp.Code != ResponseSuccess {
		t.Fatalf("RunSync: %v (%s)", resp.Code, resp.Error)
	}
	if resp.Error != "" {
		t.Errorf("error should be empty on success, got %q", resp.Error)
	}
	if resp.ReturnValue != "3" {
		t.Errorf("ReturnValue = %q, want %q", resp.ReturnValue, "3")
	}
}

func TestRunSyncUnknownFunction(t *testing.T) {
	initRuntime(t)
	c := newTestContainer(t, "")

	resp := c.RunSync("neverLoaded", nil, 0)
	if resp.Code == ResponseSuccess {
		t.Fatal("RunSync of an unknown function should not succeed")
	}
	if resp.Error == "" {
		t.Error("failure response should carry an error message")
	}
	if resp.ReturnValue != "" {
		t.Errorf("ReturnValue should be empty on failure, got %q", resp.ReturnValue)
	}
}

func TestRunSyncArgumentRoundTrip(t *testing.T) {
	initRuntime(t)
	c := newTestContainer(t, "")

	if code := c.LoadSync(`function echo(s) { return s; }`); code != ResponseSuccess {
		t.Fatalf("LoadSync: %v", code)
	}

	// Arguments are JS expression texts; a quoted literal round-trips
	// byte-identically through JSON serialization of the result.
	arg := `"héllo wörld"`
	resp := c.RunSync("echo", []string{arg}, 0)
	if resp.Code != ResponseSuccess {
		t.Fatalf("RunSync: %v (%s)", resp.Code, resp.Error)
	}
	if resp.ReturnValue != arg {
		t.Errorf("ReturnValue = %q, want %q", resp.ReturnValue, arg)
	}
}

func TestRunSyncObjectReturnValue(t *testing.T) {
	initRuntime(t)
	c := newTestContainer(t, "")

	if code := c.LoadSync(`function make(a, b) { return { sum: a + b }; }`); code != ResponseSuccess {
		t.Fatalf("LoadSync: %v", code)
	}

	resp := c.RunSync("make", []string{"2", "3"}, 0)
	if resp.Code != ResponseSuccess {
		t.Fatalf("RunSync: %v (%s)", resp.Code, resp.Error)
	}
	if resp.ReturnValue != `{"sum":5}` {
		t.Errorf("ReturnValue = %q, want %q", resp.ReturnValue, `{"sum":5}`)
	}
}

func TestRunSyncUndefinedReturnValue(t *testing.T) {
	initRuntime(t)
	c := newTestContainer(t, "")

	if code := c.LoadSync(`function noop() {}`); code != ResponseSuccess {
		t.Fatalf("LoadSync: %v", code)
	}

	resp := c.RunSync("noop", nil, 0)
	if resp.Code != ResponseSuccess {
		t.Fatalf("RunSync: %v (%s)", resp.Code, resp.Error)
	}
	if resp.ReturnValue != "" {
		t.Errorf("ReturnValue = %q, want empty for undefined", resp.ReturnValue)
	}
}

func TestRunSyncPromiseResult(t *testing.T) {
	initRuntime(t)
	c := newTestContainer(t, "")

	if code := c.LoadSync(`function later() { return Promise.resolve(7); }`); code != ResponseSuccess {
		t.Fatalf("LoadSync: %v", code)
	}

	resp := c.RunSync("later", nil, 0)
	if resp.Code != ResponseSuccess {
		t.Fatalf("RunSync: %v (%s)", resp.Code, resp.Error)
	}
	if resp.ReturnValue != "7" {
		t.Errorf("ReturnValue = %q, want %q", resp.ReturnValue, "7")
	}
}

func TestRunSyncRejectedPromise(t *testing.T) {
	initRuntime(t)
	c := newTestContainer(t, "")

	if code := c.LoadSync(`function nope() { return Promise.reject(new Error("boom")); }`); code != ResponseSuccess {
		t.Fatalf("LoadSync: %v", code)
	}

	resp := c.RunSync("nope", nil, 0)
	if resp.Code != ResponseExecutionFailure {
		t.Fatalf("RunSync: %v, want execution failure", resp.Code)
	}
	if resp.Error == "" {
		t.Error("rejected promise should carry an error message")
	}
}

func TestLoadSyncInvalidSource(t *testing.T) {
	initRuntime(t)
	c := newTestContainer(t, "")

	if code := c.LoadSync(`function {{{ invalid`); code != ResponseLoadFailure {
		t.Fatalf("LoadSync of invalid source: %v, want load failure", code)
	}

	// A failed load leaves the container usable.
	if code := c.LoadSync(`function ok() { return 1; }`); code != ResponseSuccess {
		t.Fatalf("LoadSync after failed load: %v", code)
	}
	resp := c.RunSync("ok", nil, 0)
	if resp.Code != ResponseSuccess {
		t.Fatalf("RunSync after failed load: %v (%s)", resp.Code, resp.Error)
	}
}

func TestSetGlobalValueMirroredIntoScripts(t *testing.T) {
	initRuntime(t)
	c := newTestContainer(t, "")

	if code := c.SetGlobalValue("greeting", "hello"); code != ResponseSuccess {
		t.Fatalf("SetGlobalValue: %v", code)
	}
	if code := c.LoadSync(`function greet() { return greeting; }`); code != ResponseSuccess {
		t.Fatalf("LoadSync: %v", code)
	}

	resp := c.RunSync("greet", nil, 0)
	if resp.Code != ResponseSuccess {
		t.Fatalf("RunSync: %v (%s)", resp.Code, resp.Error)
	}
	if resp.ReturnValue != `"hello"` {
		t.Errorf("ReturnValue = %q, want %q", resp.ReturnValue, `"hello"`)
	}
}

func TestSetGlobalValueHostSide(t *testing.T) {
	initRuntime(t)
	c := newTestContainer(t, "")

	type handle struct{ n int }
	value := &handle{n: 42}
	if code := c.SetGlobalValue("opaque", value); code != ResponseSuccess {
		t.Fatalf("SetGlobalValue: %v", code)
	}

	got, ok := c.GlobalValue("opaque")
	if !ok {
		t.Fatal("GlobalValue should find a registered value")
	}
	if got != value {
		t.Errorf("GlobalValue = %v, want the identical pointer", got)
	}
}

func TestReleaseMakesContainerUnusable(t *testing.T) {
	initRuntime(t)
	c, err := NewContainer("")
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}

	if code := c.Release(); code != ResponseSuccess {
		t.Fatalf("Release: %v", code)
	}

	if code := c.LoadSync(`function f() {}`); code != ResponseContainerReleased {
		t.Errorf("LoadSync after release: %v, want container released", code)
	}
	resp := c.RunSync("f", nil, 0)
	if resp.Code != ResponseContainerReleased {
		t.Errorf("RunSync after release: %v, want container released", resp.Code)
	}
	if resp.Error == "" {
		t.Error("released response should carry an error message")
	}
	if err := c.Run("f", nil, 0, func(Response) {}); err != ErrContainerReleased {
		t.Errorf("Run after release: %v, want ErrContainerReleased", err)
	}
	if code := c.Release(); code != ResponseContainerReleased {
		t.Errorf("second Release: %v, want container released", code)
	}
}

func TestReleaseWaitsForOutstandingRuns(t *testing.T) {
	initRuntime(t)
	c, err := NewContainer("--workers 1")
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}

	if code := c.LoadSync(spinSource); code != ResponseSuccess {
		t.Fatalf("LoadSync: %v", code)
	}

	done := make(chan Response, 1)
	if err := c.Run("spin", []string{"200"}, 0, func(r Response) { done <- r }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if code := c.Release(); code != ResponseSuccess {
		t.Fatalf("Release: %v", code)
	}

	// Release must not return before the callback fired.
	select {
	case r := <-done:
		if r.Code != ResponseSuccess {
			t.Errorf("outstanding run: %v (%s)", r.Code, r.Error)
		}
	case <-time.After(time.Second):
		t.Fatal("callback did not fire before Release returned")
	}
}
