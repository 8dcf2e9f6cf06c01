package scriptbox

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// loadFileSource reads a script file. Sources using ES module imports are
// bundled into a single plain script first, so multi-file scripts can be
// loaded from disk. Bundled output is wrapped in an IIFE: bundled entry
// points must attach the functions they want runnable to globalThis.
// Plain scripts are returned as-is and evaluate at global scope.
func loadFileSource(path string) (string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading script file: %w", err)
	}

	src := string(source)
	if !needsBundling(src) {
		return src, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving script path: %w", err)
	}

	result := esbuild.Build(esbuild.BuildOptions{
		EntryPoints:   []string{absPath},
		AbsWorkingDir: filepath.Dir(absPath),
		Bundle:        true,
		Format:        esbuild.FormatIIFE,
		Write:         false,
		Platform:      esbuild.PlatformBrowser,
		Target:        esbuild.ES2020,
	})

	if len(result.Errors) > 0 {
		var msgs []string
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("bundling %s: %s", path, strings.Join(msgs, "; "))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundling %s produced no output", path)
	}

	return string(result.OutputFiles[0].Contents), nil
}

// modulePattern matches top-level import/export declarations. ES module
// syntax only appears at the start of a statement, so anchoring to the line
// start keeps import text inside string literals or trailing comments from
// triggering the bundler.
var modulePattern = regexp.MustCompile(`(?m)^[ \t]*(import|export)\b`)

// needsBundling checks whether a script uses ES module syntax that requires
// bundling. Plain scripts skip the bundler entirely: wrapping them in the
// bundler's IIFE would pull their function declarations out of global scope.
func needsBundling(source string) bool {
	return modulePattern.MatchString(source)
}
