// Package transfer implements the FD-equivalent transfer workers: pushing
// a batch of files from the outgoing spool to a destination host over
// FTP, HTTP, or the local filesystem. Each transport exposes the same
// small Transport interface so the supervisor's per-host pause/backoff
// logic (internal/supervisor, internal/retrypacer) doesn't need to know
// which protocol a given host speaks.
package transfer

import (
	"context"
	"io"
)

// Transport sends a single file to a destination host. Implementations
// must be safe to reuse across files in a batch but not across
// goroutines concurrently.
type Transport interface {
	// Send uploads the contents read from src to remoteName on the
	// destination, returning the number of bytes written.
	Send(ctx context.Context, remoteName string, src io.Reader, size int64) (int64, error)
	// Close releases any held connection.
	Close() error
}

// Result is one file's transfer outcome. Nothing in this repository
// constructs one; the supervisor's sendOneFile updates the host's
// TotalFileCounter/TotalFileSize (§3.1) directly.
type Result struct {
	Name  string
	Bytes int64
	Err   error
}
