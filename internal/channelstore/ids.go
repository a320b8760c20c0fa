package channelstore

import (
	"fmt"

	"github.com/google/uuid"
)

// newArtifactID derives a sortable, collision-resistant artifact id from
// the creation timestamp plus a random suffix.
func newArtifactID(nowUnixMs int64) string {
	return fmt.Sprintf("art-%d-%s", nowUnixMs, uuid.NewString()[:8])
}
