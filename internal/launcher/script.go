package launcher

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed script/driver.py
var scriptFS embed.FS

const scriptName = "driver.py"

// WriteScript writes the embedded interpreter driver script into a fresh
// subdirectory of dir and returns its path along with a cleanup func that
// removes the subdirectory. The caller must invoke cleanup on session
// teardown regardless of spawn outcome, so the script never outlives its
// session.
func WriteScript(dir string) (path string, cleanup func() error, err error) {
	data, err := scriptFS.ReadFile("script/" + scriptName)
	if err != nil {
		return "", nil, fmt.Errorf("read embedded script: %w", err)
	}

	scratch, err := os.MkdirTemp(dir, "sessionkernel-")
	if err != nil {
		return "", nil, fmt.Errorf("create script dir: %w", err)
	}

	path = filepath.Join(scratch, scriptName)
	if err := os.WriteFile(path, data, 0o755); err != nil {
		os.RemoveAll(scratch)
		return "", nil, fmt.Errorf("write script: %w", err)
	}

	cleanup = func() error {
		return os.RemoveAll(scratch)
	}
	return path, cleanup, nil
}
