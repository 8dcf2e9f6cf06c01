package scriptbox

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/scriptbox/scriptbox/internal/core"
)

// platform holds process-wide runtime state. Initialize must succeed before
// any container is created; Shutdown must not run while containers are alive.
var platform struct {
	mu          sync.Mutex
	initialized bool
	cfg         core.Config
	log         *zap.Logger
	containers  int
}

// Initialize prepares the global runtime from a settings string (see the
// package documentation for the grammar). It must be called exactly once
// before the first container is created; a second call is a checked failure.
func Initialize(settings string) ResponseCode {
	platform.mu.Lock()
	defer platform.mu.Unlock()

	if platform.initialized {
		return ResponseInitializationFailure
	}

	cfg, err := parseSettings(settings, core.DefaultConfig(), true)
	if err != nil {
		return ResponseInitializationFailure
	}

	logger := zap.NewNop()
	if cfg.LogLevel != "" {
		zc := zap.NewProductionConfig()
		lvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return ResponseInitializationFailure
		}
		zc.Level = lvl
		logger, err = zc.Build()
		if err != nil {
			return ResponseInitializationFailure
		}
	}
	core.SetLogger(logger)

	platform.cfg = cfg
	platform.log = logger
	platform.initialized = true
	return ResponseSuccess
}

// InitializeFromConsole initializes the runtime from console-provided
// arguments. The arguments are joined into a settings string unmodified;
// this is a pass-through, not a parsed CLI.
func InitializeFromConsole(args []string) ResponseCode {
	return Initialize(strings.Join(args, " "))
}

// Shutdown tears down the global runtime. It fails while containers are
// still alive: every container must be released first.
func Shutdown() ResponseCode {
	platform.mu.Lock()
	defer platform.mu.Unlock()

	if !platform.initialized {
		return ResponseInitializationFailure
	}
	if platform.containers > 0 {
		platform.log.Warn("shutdown refused, containers still alive",
			zap.Int("containers", platform.containers))
		return ResponseInitializationFailure
	}

	_ = platform.log.Sync()
	core.SetLogger(zap.NewNop())
	platform.initialized = false
	return ResponseSuccess
}

// acquirePlatform registers a new container against the global runtime and
// returns the default configuration. Fails when the runtime has not been
// initialized.
func acquirePlatform() (core.Config, error) {
	platform.mu.Lock()
	defer platform.mu.Unlock()

	if !platform.initialized {
		return core.Config{}, errors.New("runtime is not initialized")
	}
	platform.containers++
	return platform.cfg, nil
}

// releasePlatform unregisters a container.
func releasePlatform() {
	platform.mu.Lock()
	defer platform.mu.Unlock()
	platform.containers--
}
