package scriptbox

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/scriptbox/scriptbox/internal/core"
)

// parseSettings applies a settings string of whitespace-separated
// "--flag value" tokens on top of base. Global-only flags (--log-level) are
// rejected when global is false, so per-container settings cannot reconfigure
// process-wide logging.
func parseSettings(settings string, base core.Config, global bool) (core.Config, error) {
	cfg := base
	fields := strings.Fields(settings)

	for i := 0; i < len(fields); i++ {
		flag := fields[i]
		if i+1 >= len(fields) {
			return cfg, fmt.Errorf("setting %s is missing a value", flag)
		}
		value := fields[i+1]
		i++

		switch flag {
		case "--workers":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return cfg, fmt.Errorf("invalid --workers value %q", value)
			}
			cfg.Workers = n
		case "--memory-limit-mb":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return cfg, fmt.Errorf("invalid --memory-limit-mb value %q", value)
			}
			cfg.MemoryLimitMB = n
		case "--log-level":
			if !global {
				return cfg, fmt.Errorf("--log-level is a global setting")
			}
			if _, err := zap.ParseAtomicLevel(value); err != nil {
				return cfg, fmt.Errorf("invalid --log-level value %q: %w", value, err)
			}
			cfg.LogLevel = value
		default:
			return cfg, fmt.Errorf("unknown setting %q", flag)
		}
	}

	return cfg, nil
}
