package githubbridge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// NewRunID derives a run id in the `"gh-<issue>-<ms>-<hash>"` format
// (spec §4.8 step 5b), where hash is the first 8 hex characters of the
// event key's sha256 digest — grounded on short_key_hash's first-4-
// bytes truncation, generalized to 8 hex chars (4 bytes) to match the
// spec's literal `hash(event_key)[0..8]` slice.
func NewRunID(issueNumber, nowUnixMs int64, eventKey string) string {
	return fmt.Sprintf("gh-%d-%d-%s", issueNumber, nowUnixMs, shortKeyHash(eventKey))
}

func shortKeyHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}
