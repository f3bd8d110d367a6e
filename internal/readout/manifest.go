package readout

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// ManifestFileName is the manifest written next to the sample log.
const ManifestFileName = "run.toml"

// Manifest describes one run: what was measured, how, and how it ended.
type Manifest struct {
	RunID    string     `toml:"run_id"`
	Started  time.Time  `toml:"started"`
	Stopped  *time.Time `toml:"stopped,omitempty"`
	Mode     string     `toml:"mode"`
	Resource string     `toml:"resource,omitempty"`
	Identity string     `toml:"identity,omitempty"`
	DataFile string     `toml:"data_file"`
	Interval string     `toml:"interval"`

	Instrument InstrumentSettings `toml:"instrument"`
	Result     *Result            `toml:"result,omitempty"`
}

// InstrumentSettings records the configuration applied to the instrument.
type InstrumentSettings struct {
	Property   string  `toml:"property"`
	Resolution float64 `toml:"resolution"`
	Medium     string  `toml:"medium"`
	Averaging  bool    `toml:"averaging"`
}

// Result is filled in when the run stops.
type Result struct {
	Samples        int64  `toml:"samples"`
	FailedTicks    int64  `toml:"failed_ticks"`
	DisplayDropped int64  `toml:"display_dropped"`
	Error          string `toml:"error,omitempty"`
}

// WriteManifest stores m in dir atomically.
// Uses atomic write (write to temp file, then rename) so a reader never
// sees a partial manifest.
func WriteManifest(dir string, m Manifest) error {
	path := filepath.Join(dir, ManifestFileName)
	tmp := path + ".tmp"

	data, err := toml.Marshal(m)
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

// ReadManifest loads the manifest from dir.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return m, err
	}
	if err := toml.Unmarshal(data, &m); err != nil {
		return m, err
	}
	return m, nil
}
