// Package configsum computes the config-freshness checksum agents and
// the server compare on every metrics submission (spec.md §4.5, §6).
package configsum

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Checksum returns the hex-encoded BLAKE3 digest of agentToml and
// tasksToml concatenated, in that order, with no separator.
func Checksum(agentToml, tasksToml string) string {
	sum := blake3.Sum256([]byte(agentToml + tasksToml))
	return hex.EncodeToString(sum[:])
}
