package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID mints a random hex identifier. Audit runs, consent events, and
// request tracing all share this format.
func NewID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
