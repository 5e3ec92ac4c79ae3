package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the SHA-256 of s's canonical emit, hex-encoded. The
// report writer uses this to identify IR content without relying on
// filesystem paths.
func ContentHash(s Spec) (string, error) {
	var buf bytes.Buffer
	if err := Emit(&buf, s); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}
