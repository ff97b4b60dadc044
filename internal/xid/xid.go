// Package xid generates prefixed opaque ids for records that need a unique
// handle but not a full UUID, such as generated payment ids.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns "<prefix>-<unixnano>-<random hex>". The timestamp keeps ids
// roughly sortable; the random tail makes collisions within a nanosecond a
// non-issue.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// rand failing is effectively unheard of; the timestamp alone still
		// identifies the record well enough to not lose the write.
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
