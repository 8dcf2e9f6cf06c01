package core

// ResponseCode classifies the outcome of a container operation.
// The zero value is ResponseUndefined so that a default-constructed
// Response never reads as a real result.
type ResponseCode int32

const (
	// ResponseUndefined is the sentinel default. It is never produced by a
	// completed operation.
	ResponseUndefined ResponseCode = iota

	// ResponseSuccess is the only success code. Every other code implies a
	// populated error message on the Response.
	ResponseSuccess

	// ResponseTimeout reports that a run did not complete within its
	// timeout window. The underlying work is interrupted but is not
	// guaranteed to have stopped at a clean point.
	ResponseTimeout

	// ResponseLoadFailure reports a failed load: unreadable file, bundling
	// error, or a parse/compile/evaluation error in the loaded code.
	ResponseLoadFailure

	// ResponseExecutionFailure reports a failed run: unknown function name
	// or an exception thrown by the executed code.
	ResponseExecutionFailure

	// ResponseInitializationFailure reports a violation of the global
	// runtime lifecycle or invalid settings.
	ResponseInitializationFailure

	// ResponseContainerReleased reports an operation issued against a
	// container whose resources have already been released.
	ResponseContainerReleased
)

var codeNames = map[ResponseCode]string{
	ResponseUndefined:             "undefined",
	ResponseSuccess:               "success",
	ResponseTimeout:               "timeout",
	ResponseLoadFailure:           "load failure",
	ResponseExecutionFailure:      "execution failure",
	ResponseInitializationFailure: "initialization failure",
	ResponseContainerReleased:     "container released",
}

func (c ResponseCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// Response is the result of one execution attempt. Error is empty exactly
// when Code is ResponseSuccess. ReturnValue holds the JSON-serialized return
// value of the invoked function; both strings are independently owned copies,
// never references into engine memory.
type Response struct {
	Code        ResponseCode
	Error       string
	ReturnValue string
}

// Failure builds a non-success Response carrying a diagnostic.
func Failure(code ResponseCode, msg string) Response {
	return Response{Code: code, Error: msg}
}
