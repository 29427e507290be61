package convert

import (
	"os"
	"path/filepath"

	"github.com/afdist/afd/internal/afderr"
)

// ToFile runs fn over the contents of path and, on success, atomically
// replaces path with the result via a sibling temp file and rename; on any
// failure the original file is left untouched (§4.5).
func ToFile(path string, fn Func) (newSize int64, err error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return 0, afderr.New(afderr.Filesystem, path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".convert-*")
	if err != nil {
		return 0, afderr.New(afderr.Filesystem, path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed away

	n, ferr := fn(src, tmp)
	if cerr := tmp.Close(); ferr == nil {
		ferr = cerr
	}
	if ferr != nil {
		return 0, afderr.New(afderr.ProtocolParse, path, ferr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, afderr.New(afderr.Filesystem, path, err)
	}
	return n, nil
}
