package hashutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionFingerprintDeterministic(t *testing.T) {
	first := ExecutionFingerprint(nil, "http://a", "calculator", map[string]any{
		"expression": "2+2",
		"precision":  4,
	})
	second := ExecutionFingerprint(nil, "http://a", "calculator", map[string]any{
		"precision":  4,
		"expression": "2+2",
	})
	assert.Equal(t, first, second, "parameter order must not change the fingerprint")
	assert.Len(t, first, 64)
}

func TestExecutionFingerprintDiscriminates(t *testing.T) {
	base := ExecutionFingerprint(nil, "http://a", "calculator", map[string]any{"expression": "2+2"})

	assert.NotEqual(t, base,
		ExecutionFingerprint(nil, "http://b", "calculator", map[string]any{"expression": "2+2"}))
	assert.NotEqual(t, base,
		ExecutionFingerprint(nil, "http://a", "web_search", map[string]any{"expression": "2+2"}))
	assert.NotEqual(t, base,
		ExecutionFingerprint(nil, "http://a", "calculator", map[string]any{"expression": "3+3"}))
}

func TestExecutionFingerprintSeparatorSafety(t *testing.T) {
	// Endpoint/tool concatenation must not be ambiguous.
	assert.NotEqual(t,
		ExecutionFingerprint(nil, "http://ab", "c", nil),
		ExecutionFingerprint(nil, "http://a", "bc", nil),
	)
}

func TestExecutionFingerprintUnmarshalableParams(t *testing.T) {
	fingerprint := ExecutionFingerprint(nil, "http://a", "calculator", map[string]any{
		"bad": func() {},
	})
	assert.Len(t, fingerprint, 64, "marshal failure falls back to a params-less key")
}
