package orchestrator

import (
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// pickImage chooses one random file matching mask inside dir and returns
// its bytes and SHA-256 hash, or ok=false if mask matched nothing.
func pickImage(rngIntn func(int) int, dir, mask string) (data []byte, hash [32]byte, ok bool, err error) {
	matches, err := filepath.Glob(filepath.Join(dir, mask))
	if err != nil {
		return nil, hash, false, xerrors.Errorf("globbing image mask %q: %v", mask, err)
	}
	if len(matches) == 0 {
		return nil, hash, false, nil
	}
	path := matches[rngIntn(len(matches))]
	f, err := os.Open(path)
	if err != nil {
		return nil, hash, false, xerrors.Errorf("opening image %q: %v", path, err)
	}
	defer f.Close()
	data, err = io.ReadAll(f)
	if err != nil {
		return nil, hash, false, xerrors.Errorf("reading image %q: %v", path, err)
	}
	hash = sha256.Sum256(data)
	return data, hash, true, nil
}
