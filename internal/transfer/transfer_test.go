package transfer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afdist/afd/internal/afderr"
)

func TestLocalTransportSendWritesFileAtomically(t *testing.T) {
	destDir := t.TempDir()
	tr, err := NewLocalTransport(destDir)
	require.NoError(t, err)
	defer tr.Close()

	n, err := tr.Send(context.Background(), "bulletin.txt", strings.NewReader("hello world"), 11)
	require.NoError(t, err)
	assert.EqualValues(t, 11, n)

	got, err := os.ReadFile(filepath.Join(destDir, "bulletin.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1) // no leftover temp file
}

func TestHTTPTransportSendsPUTWithBody(t *testing.T) {
	var gotBody string
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: srv.URL})
	n, err := tr.Send(context.Background(), "out.dat", strings.NewReader("payload"), 7)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/out.dat", gotPath)
	assert.Equal(t, "payload", gotBody)
}

func TestHTTPTransportClassifiesServerErrorsAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: srv.URL})
	_, err := tr.Send(context.Background(), "out.dat", strings.NewReader("x"), 1)
	require.Error(t, err)
	assert.Equal(t, afderr.TransientNetwork, afderr.KindOf(err))
}

func TestHTTPTransportClassifiesClientErrorsAsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: srv.URL})
	_, err := tr.Send(context.Background(), "out.dat", strings.NewReader("x"), 1)
	require.Error(t, err)
	assert.Equal(t, afderr.PermanentNetwork, afderr.KindOf(err))
}

func TestCountingReaderTracksBytesRead(t *testing.T) {
	cr := &countingReader{r: strings.NewReader("abcde")}
	buf := make([]byte, 2)
	n, err := cr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.EqualValues(t, 2, cr.n)
}
