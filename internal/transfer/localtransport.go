package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/afdist/afd/internal/afderr"
)

// LocalTransport copies files into a local destination directory, for
// hosts reachable via a mounted/shared filesystem rather than a network
// protocol — the "local" delivery mode §3.1's protocol field recognises
// alongside FTP and HTTP.
type LocalTransport struct {
	destDir string
}

// NewLocalTransport targets destDir, creating it if absent.
func NewLocalTransport(destDir string) (*LocalTransport, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, afderr.New(afderr.Filesystem, destDir, err)
	}
	return &LocalTransport{destDir: destDir}, nil
}

// Send writes src to destDir/remoteName via a sibling temp file and
// rename, the same atomic-delivery pattern internal/convert uses for
// in-place conversions.
func (t *LocalTransport) Send(ctx context.Context, remoteName string, src io.Reader, size int64) (int64, error) {
	final := filepath.Join(t.destDir, remoteName)
	tmp, err := os.CreateTemp(t.destDir, "."+filepath.Base(remoteName)+".transfer-*")
	if err != nil {
		return 0, afderr.New(afderr.Filesystem, final, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, afderr.New(afderr.Filesystem, final, err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return n, afderr.New(afderr.Filesystem, final, err)
	}
	return n, nil
}

// Close is a no-op: LocalTransport holds no persistent connection state.
func (t *LocalTransport) Close() error { return nil }
