package syncer

import (
	"encoding/base64"
	"strconv"
	"sync"
	"time"
)

var (
	checkpointMu   sync.Mutex
	lastCheckpoint int64
)

// NewCheckpoint returns an opaque, monotonically advancing sync cursor. It is
// a server-sequence marker, not a version vector; clients echo it back
// unchanged on their next request.
func NewCheckpoint() string {
	checkpointMu.Lock()
	seq := time.Now().UnixNano()
	if seq <= lastCheckpoint {
		seq = lastCheckpoint + 1
	}
	lastCheckpoint = seq
	checkpointMu.Unlock()

	return base64.URLEncoding.EncodeToString([]byte(strconv.FormatInt(seq, 10)))
}
