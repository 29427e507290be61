package transfer

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/afdist/afd/internal/afderr"
)

// HTTPConfig is the destination for an HTTP PUT-based transport — used
// for AFD hosts that accept files via a simple upload endpoint rather
// than FTP.
type HTTPConfig struct {
	BaseURL string
	Headers map[string]string
	Timeout time.Duration
}

// HTTPTransport sends files via HTTP PUT, grounded on the same
// client/header idiom the retrieval planner's GET/HEAD requests use.
type HTTPTransport struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPTransport builds a transport bound to cfg.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &HTTPTransport{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

// Send issues PUT {BaseURL}/{remoteName} with src as the body.
func (t *HTTPTransport) Send(ctx context.Context, remoteName string, src io.Reader, size int64) (int64, error) {
	u, err := url.Parse(t.cfg.BaseURL)
	if err != nil {
		return 0, afderr.New(afderr.Configuration, t.cfg.BaseURL, err)
	}
	u.Path = path.Join(u.Path, remoteName)

	counted := &countingReader{r: src}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), counted)
	if err != nil {
		return 0, afderr.New(afderr.Configuration, u.String(), err)
	}
	if size >= 0 {
		req.ContentLength = size
	}
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return counted.n, afderr.New(afderr.TransientNetwork, u.String(), err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return counted.n, afderr.Newf(afderr.TransientNetwork, u.String(), "server error %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return counted.n, afderr.Newf(afderr.PermanentNetwork, u.String(), "client error %d", resp.StatusCode)
	}
	return counted.n, nil
}

// Close is a no-op: HTTPTransport holds no persistent connection state.
func (t *HTTPTransport) Close() error { return nil }
