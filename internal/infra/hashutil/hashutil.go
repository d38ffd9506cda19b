// Package hashutil builds deterministic fingerprints used as cache keys.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"go.uber.org/zap"
)

// ExecutionFingerprint returns a stable key for (endpoint, tool, params).
// Parameter maps marshal with sorted keys, so identical parameter sets
// produce identical fingerprints regardless of construction order. A
// marshal failure falls back to a params-less key and logs.
func ExecutionFingerprint(logger *zap.Logger, endpoint, tool string, params map[string]any) string {
	canonical, err := json.Marshal(params)
	if err != nil {
		if logger != nil {
			logger.Warn("fingerprint canonicalization failed",
				zap.String("endpoint", endpoint),
				zap.String("tool", tool),
				zap.Error(err),
			)
		}
		canonical = nil
	}
	h := sha256.New()
	h.Write([]byte(endpoint))
	h.Write([]byte{0})
	h.Write([]byte(tool))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}
