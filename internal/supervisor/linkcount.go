package supervisor

import (
	"io/fs"
	"syscall"
)

// linkCountOf reads the inode link count backing fi, the filesystem-level
// stand-in §4.6 uses as its back-pressure signal on the outgoing spool.
func linkCountOf(fi fs.FileInfo) uint64 {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return uint64(st.Nlink)
}
