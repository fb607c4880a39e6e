// Package util provides shared utility functions.
package util

import (
	"fmt"
	"hash/fnv"
)

// Fingerprint returns a short hash of key material for log lines. The
// hash is only for telling keys apart and does not need to be reversible.
func Fingerprint(key []byte) string {
	if len(key) == 0 {
		return "none"
	}
	h := fnv.New32a()
	h.Write(key)
	return fmt.Sprintf("%08x", h.Sum32())
}
