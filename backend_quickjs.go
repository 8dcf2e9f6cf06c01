//go:build !v8

package scriptbox

import (
	"github.com/scriptbox/scriptbox/internal/core"
	"github.com/scriptbox/scriptbox/internal/engine"
	"github.com/scriptbox/scriptbox/internal/quickjs"
)

func newBackend(id string, cfg core.Config) (core.ContainerBackend, error) {
	return engine.New(id, cfg, quickjs.NewRuntime)
}
