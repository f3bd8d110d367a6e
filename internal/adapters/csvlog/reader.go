package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spectools/wavemeter/internal/domain"
)

// ReadFile parses a readout file back into samples. CapturedAt is not
// recorded in the file and is left zero.
func ReadFile(path string) ([]domain.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses readout rows from r.
func Read(r io.Reader) ([]domain.Sample, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = 2

	head, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("readout is empty")
		}
		return nil, err
	}
	if strings.Join(head, ", ") != Header {
		return nil, fmt.Errorf("unexpected header %q", strings.Join(head, ", "))
	}

	var samples []domain.Sample
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return samples, nil
		}
		if err != nil {
			return nil, err
		}
		secs, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: elapsed: %w", len(samples)+2, err)
		}
		value, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: value: %w", len(samples)+2, err)
		}
		samples = append(samples, domain.Sample{
			Elapsed: time.Duration(math.Round(secs * float64(time.Second))),
			Value:   value,
		})
	}
}
