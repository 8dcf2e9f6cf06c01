package scriptbox

import "github.com/scriptbox/scriptbox/internal/core"

// Type aliases re-exporting internal/core types so callers can use
// scriptbox.Response, scriptbox.ResponseCode, etc. without importing the
// internal package directly.

type Response = core.Response
type ResponseCode = core.ResponseCode

// Response codes. ResponseSuccess is the only success code; every other
// code implies a populated error message.
const (
	ResponseUndefined             = core.ResponseUndefined
	ResponseSuccess               = core.ResponseSuccess
	ResponseTimeout               = core.ResponseTimeout
	ResponseLoadFailure           = core.ResponseLoadFailure
	ResponseExecutionFailure      = core.ResponseExecutionFailure
	ResponseInitializationFailure = core.ResponseInitializationFailure
	ResponseContainerReleased     = core.ResponseContainerReleased
)

// LoadCallback receives the outcome of an asynchronous load. It is invoked
// exactly once, on a goroutine owned by the engine.
type LoadCallback func(ResponseCode)

// RunCallback receives the outcome of an asynchronous run. It is invoked
// exactly once, on a goroutine owned by the engine.
type RunCallback func(Response)
