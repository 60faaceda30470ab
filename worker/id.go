package worker

import (
	"fmt"
	"math/rand"
	"time"
)

// newID builds an id of the form "worker-{time}-{random5}" (spec
// section 4.8, step 1).
func newID(now time.Time) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 5)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return fmt.Sprintf("worker-%d-%s", now.UnixMilli(), string(b))
}
