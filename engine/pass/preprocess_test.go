package pass

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-render/engine/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessInjectsIncludes(t *testing.T) {
	src := "//@oxy:include camera\n  //@oxy:include object\n//@oxy:include camera\n@vertex fn vs_main() {}"

	out, err := preprocess("test", src)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, binding.CameraUniformsSource))
	assert.Contains(t, out, binding.ObjectUniformsSource)
	assert.NotContains(t, out, includePrefix)
	assert.True(t, strings.HasSuffix(out, "@vertex fn vs_main() {}"))
}

func TestPreprocessRejectsBadIncludes(t *testing.T) {
	_, err := preprocess("test", "//@oxy:include")
	assert.ErrorContains(t, err, "test: line 1: include expects one argument")

	_, err = preprocess("test", "\n//@oxy:include skeleton")
	assert.ErrorContains(t, err, `line 2: unknown include "skeleton"`)
}

func TestShippedShadersHaveNoIncludesLeft(t *testing.T) {
	for _, src := range []string{shadowShader, forwardShader} {
		assert.NotContains(t, src, includePrefix)
		assert.Contains(t, src, "struct CameraUniforms")
	}
}
