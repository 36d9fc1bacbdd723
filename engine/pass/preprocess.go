package pass

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-render/engine/binding"
)

// includePrefix marks a WGSL comment line that is replaced by a registered struct source.
//
// Syntax: //@oxy:include <name>
const includePrefix = "//@oxy:include"

// includeRegistry maps include names to the WGSL sources of the shared uniform blocks.
var includeRegistry = map[string]string{
	"camera": binding.CameraUniformsSource,
	"light":  binding.LightUniformsSource,
	"scene":  binding.SceneUniformsSource,
	"object": binding.ObjectUniformsSource,
}

// preprocess replaces every include line in source with the registered struct source. Each name
// is injected at most once; repeated includes of the same name are dropped.
//
// Parameters:
//   - label: the shader label used in error messages
//   - source: the raw WGSL source
//
// Returns:
//   - string: the processed WGSL source
//   - error: an error if an include line is malformed or names an unknown struct
func preprocess(label, source string) (string, error) {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	seen := make(map[string]bool)

	for i, line := range lines {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), includePrefix)
		if !ok {
			out = append(out, line)
			continue
		}
		args := strings.Fields(rest)
		if len(args) != 1 {
			return "", fmt.Errorf("%s: line %d: include expects one argument, got %d", label, i+1, len(args))
		}
		src, ok := includeRegistry[args[0]]
		if !ok {
			return "", fmt.Errorf("%s: line %d: unknown include %q", label, i+1, args[0])
		}
		if seen[args[0]] {
			continue
		}
		seen[args[0]] = true
		out = append(out, src)
	}
	return strings.Join(out, "\n"), nil
}

func mustPreprocess(label, source string) string {
	out, err := preprocess(label, source)
	if err != nil {
		panic(err)
	}
	return out
}
