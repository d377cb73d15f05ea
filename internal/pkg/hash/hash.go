// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256String computes the SHA256 hash of a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// TaskID generates a deterministic evaluation task ID from the query text
// and search configuration. Repeated runs of the same (query, configuration)
// pair produce the same ID.
func TaskID(queryText, configurationID string) string {
	data := []byte(queryText + "\x00" + configurationID)
	return SHA256Short(data, 16)
}

// RecordID generates a deterministic record ID for a sub-experiment owned
// by an experiment.
func RecordID(experimentID, taskID string) string {
	data := []byte(experimentID + "\x00" + taskID)
	return SHA256Short(data, 16)
}
