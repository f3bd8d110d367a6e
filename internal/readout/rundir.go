// Package readout manages per-run output directories and their manifests.
package readout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
)

// DirLayout names run directories by their local start time.
const DirLayout = "20060102_150405"

// maxSuffix bounds the search for a free directory name within one second.
const maxSuffix = 100

// RunDir is the output directory of a single acquisition run.
type RunDir struct {
	// Path is the directory path.
	Path string
	// ID uniquely identifies the run.
	ID ulid.ULID
	// Started is the time used to name the directory.
	Started time.Time
}

// NewRunDir creates <base>/<YYYYmmdd_HHMMSS> for a run starting at now.
// If that directory already exists a numeric suffix is appended, so a run
// never writes into another run's directory.
func NewRunDir(base string, now time.Time) (RunDir, error) {
	if base == "" {
		return RunDir{}, errors.New("readout: base directory is required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return RunDir{}, err
	}

	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		return RunDir{}, err
	}

	name := now.Format(DirLayout)
	for i := 1; i <= maxSuffix; i++ {
		candidate := name
		if i > 1 {
			candidate = name + "_" + strconv.Itoa(i)
		}
		path := filepath.Join(base, candidate)
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return RunDir{Path: path, ID: id, Started: now}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return RunDir{}, err
		}
	}
	return RunDir{}, fmt.Errorf("readout: no free directory for %s in %s", name, base)
}

// File returns the path of name inside the run directory.
func (r RunDir) File(name string) string {
	return filepath.Join(r.Path, name)
}
