package transfer

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/afdist/afd/internal/afderr"
)

// FTPConfig is the connection parameters for one host's FTP transport.
type FTPConfig struct {
	Addr       string // host:port
	User       string
	Password   string
	RemoteDir  string
	Passive    bool // §4.3's (passive|active)-ftp option; false only disables EPSV (PASV is used), data connections are always passive
	DialTimeout time.Duration
}

// FTPTransport sends files over FTP via a single persistent control
// connection, reconnecting on the next Send if the connection was closed
// out from under it by a timeout (grounded on the dial/connection-pool
// idiom of rclone's FTP backend, narrowed to one connection since the
// handling pipeline already serialises batches per host).
type FTPTransport struct {
	cfg  FTPConfig
	conn *ftp.ServerConn
}

// NewFTPTransport dials and authenticates against cfg.Addr.
func NewFTPTransport(ctx context.Context, cfg FTPConfig) (*FTPTransport, error) {
	t := &FTPTransport{cfg: cfg}
	if err := t.dial(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *FTPTransport) dial(ctx context.Context) error {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if t.cfg.DialTimeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(t.cfg.DialTimeout))
	}
	if !t.cfg.Passive {
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}
	conn, err := ftp.Dial(t.cfg.Addr, opts...)
	if err != nil {
		return afderr.New(afderr.TransientNetwork, t.cfg.Addr, err)
	}
	if err := conn.Login(t.cfg.User, t.cfg.Password); err != nil {
		conn.Quit()
		return afderr.New(afderr.PermanentNetwork, t.cfg.Addr, err)
	}
	t.conn = conn
	return nil
}

// Send STORs src under remoteName in cfg.RemoteDir.
func (t *FTPTransport) Send(ctx context.Context, remoteName string, src io.Reader, size int64) (int64, error) {
	if t.conn == nil {
		if err := t.dial(ctx); err != nil {
			return 0, err
		}
	}
	full := remoteName
	if t.cfg.RemoteDir != "" {
		full = path.Join(t.cfg.RemoteDir, remoteName)
	}
	counted := &countingReader{r: src}
	if err := t.conn.Stor(full, counted); err != nil {
		// Drop the connection so the next Send dials afresh.
		_ = t.conn.Quit()
		t.conn = nil
		return counted.n, classifyFTPError(t.cfg.Addr, err)
	}
	return counted.n, nil
}

// Close ends the control connection.
func (t *FTPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Quit()
	t.conn = nil
	if err != nil {
		return afderr.New(afderr.TransientNetwork, t.cfg.Addr, err)
	}
	return nil
}

func classifyFTPError(subject string, err error) error {
	if err == io.ErrClosedPipe || err == io.EOF {
		return afderr.New(afderr.TransientNetwork, subject, err)
	}
	return afderr.New(afderr.PermanentNetwork, subject, fmt.Errorf("ftp store failed: %w", err))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
