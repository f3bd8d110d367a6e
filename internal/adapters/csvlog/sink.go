// Package csvlog persists samples to the comma-separated readout file.
//
// The file layout is fixed for compatibility with existing analysis scripts:
//
//	Time (s), Wavelength
//	0.10, 532.0012
//	0.20, 532.0015
package csvlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logAdapter "github.com/spectools/wavemeter/internal/adapters/log"
	"github.com/spectools/wavemeter/internal/domain"
	"github.com/spectools/wavemeter/internal/ports"
)

// Header is the first line of every readout file.
const Header = "Time (s), Wavelength"

// FileName is the readout file name inside a run directory.
const FileName = "wavemeter_readout.csv"

// rowFormat fixes two decimals for elapsed seconds and four for the value.
const rowFormat = "%.2f, %.4f\n"

// Option configures optional behavior of Sink.
type Option func(*Sink)

// WithSync controls whether every append is fsynced (default true).
// Without it rows survive a process crash but not a power loss.
func WithSync(enabled bool) Option {
	return func(s *Sink) {
		s.sync = enabled
	}
}

// WithGuard controls whether the file is watched for removal or rename
// (default true).
func WithGuard(enabled bool) Option {
	return func(s *Sink) {
		s.guard = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sink appends samples to a readout file, one flushed row per sample.
type Sink struct {
	path   string
	sync   bool
	guard  bool
	logger ports.Logger

	mu          sync.Mutex
	f           *os.File
	w           *bufio.Writer
	rows        int
	lastElapsed time.Duration
	closed      bool

	watcher  *fsnotify.Watcher
	lost     chan struct{} // closed when the file is removed or renamed
	lostOnce sync.Once
	watchWG  sync.WaitGroup
}

// Open creates the readout file at path and writes the header.
// An existing file is never overwritten.
func Open(path string, opts ...Option) (*Sink, error) {
	s := &Sink{
		path:   path,
		sync:   true,
		guard:  true,
		logger: logAdapter.NewNoop(),
		lost:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", domain.ErrIO, path, err)
	}
	s.f = f
	s.w = bufio.NewWriter(f)

	if _, err := s.w.WriteString(Header + "\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: write header: %v", domain.ErrIO, err)
	}
	if err := s.flush(); err != nil {
		f.Close()
		return nil, err
	}

	if s.guard {
		s.startGuard()
	}
	return s, nil
}

// Path returns the readout file path.
func (s *Sink) Path() string {
	return s.path
}

// Rows returns the number of sample rows written.
func (s *Sink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Append writes one row and flushes it. Samples must arrive in strictly
// increasing elapsed order; any other sample is not written and
// domain.ErrOutOfOrder is returned.
func (s *Sink) Append(sample domain.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: append to closed log %s", domain.ErrIO, s.path)
	}
	select {
	case <-s.lost:
		return fmt.Errorf("%w: %s was removed or renamed", domain.ErrIO, s.path)
	default:
	}
	if s.rows > 0 && sample.Elapsed <= s.lastElapsed {
		return fmt.Errorf("%w: sample at %v does not follow %v", domain.ErrOutOfOrder, sample.Elapsed, s.lastElapsed)
	}

	if _, err := fmt.Fprintf(s.w, rowFormat, sample.ElapsedSeconds(), sample.Value); err != nil {
		return fmt.Errorf("%w: write row: %v", domain.ErrIO, err)
	}
	if err := s.flush(); err != nil {
		return err
	}
	s.rows++
	s.lastElapsed = sample.Elapsed
	return nil
}

// Close flushes and closes the file. Only the first call has any effect.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var errs []error
	if err := s.w.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("%w: flush: %v", domain.ErrIO, err))
	}
	if err := s.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("%w: close: %v", domain.ErrIO, err))
	}
	watcher := s.watcher
	s.mu.Unlock()

	if watcher != nil {
		watcher.Close()
		s.watchWG.Wait()
	}
	return errors.Join(errs...)
}

// flush pushes buffered bytes to the OS and optionally to disk. Caller holds mu.
func (s *Sink) flush() error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %v", domain.ErrIO, err)
	}
	if s.sync {
		if err := s.f.Sync(); err != nil {
			return fmt.Errorf("%w: sync: %v", domain.ErrIO, err)
		}
	}
	return nil
}

// startGuard watches the parent directory so that deleting or moving the
// readout file mid-run fails the next append instead of writing to an
// unlinked inode.
func (s *Sink) startGuard() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("readout guard disabled", ports.Err(err))
		return
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		s.logger.Warn("readout guard disabled", ports.String("path", s.path), ports.Err(err))
		return
	}
	s.watcher = watcher
	s.watchWG.Add(1)
	go s.watch(watcher)
}

func (s *Sink) watch(watcher *fsnotify.Watcher) {
	defer s.watchWG.Done()
	target := filepath.Clean(s.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.logger.Error("readout file removed or renamed", ports.String("path", s.path), ports.String("op", event.Op.String()))
				s.lostOnce.Do(func() { close(s.lost) })
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("readout guard error", ports.Err(err))
		}
	}
}

var _ ports.SampleSink = (*Sink)(nil)
