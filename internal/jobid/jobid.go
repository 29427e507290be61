// Package jobid mints the identifiers attached to transfer jobs and host
// records (FSA per-slot job_id, proc_id) so they can be correlated across
// log lines, events, and the shared status store.
package jobid

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// New returns a fresh random job identifier.
func New() string {
	return uuid.NewString()
}

// HostID derives the stable host_id of §3.1 by hashing the host alias, so
// it is reproducible across restarts without needing to persist a counter.
func HostID(alias string) uint32 {
	id := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(alias))
	return binary.BigEndian.Uint32(id[:4])
}
