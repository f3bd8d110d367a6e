package display

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/spectools/wavemeter/internal/domain"
	"github.com/spectools/wavemeter/internal/ports"
)

// Plot defaults.
const (
	DefaultMaxPoints = 500
	DefaultRefresh   = time.Second
)

// PlotConfig configures a Plot.
type PlotConfig struct {
	// Path of the rendered image; the extension selects the format (.png, .svg, .pdf).
	Path string
	// MaxPoints is the size of the rolling window.
	MaxPoints int
	// Refresh is the minimum time between renders.
	Refresh time.Duration
	// Title and YLabel annotate the chart.
	Title  string
	YLabel string
	// Width and Height of the image.
	Width, Height vg.Length
}

// Plot keeps a rolling window of samples and periodically renders it as a
// line chart, replacing the image file atomically.
type Plot struct {
	cfg PlotConfig
	now func() time.Time

	mu         sync.Mutex
	points     plotter.XYs // ring buffer, start is the oldest point
	start      int
	n          int
	dirty      bool
	lastRender time.Time
	renders    int
}

// NewPlot creates a Plot. Zero fields in cfg take defaults.
func NewPlot(cfg PlotConfig) (*Plot, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: plot path is required", domain.ErrInvalidConfig)
	}
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = DefaultMaxPoints
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = DefaultRefresh
	}
	if cfg.Title == "" {
		cfg.Title = "Wavelength Measurement"
	}
	if cfg.YLabel == "" {
		cfg.YLabel = "Wavelength (nm)"
	}
	if cfg.Width == 0 {
		cfg.Width = 8 * vg.Inch
	}
	if cfg.Height == 0 {
		cfg.Height = 5 * vg.Inch
	}
	return &Plot{
		cfg:    cfg,
		now:    time.Now,
		points: make(plotter.XYs, cfg.MaxPoints),
	}, nil
}

// Name implements ports.Display.
func (p *Plot) Name() string { return "plot" }

// Path returns the image path.
func (p *Plot) Path() string { return p.cfg.Path }

// Publish adds s to the window and renders if the refresh interval elapsed.
func (p *Plot) Publish(s domain.Sample) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := (p.start + p.n) % len(p.points)
	p.points[idx] = plotter.XY{X: s.ElapsedSeconds(), Y: s.Value}
	if p.n < len(p.points) {
		p.n++
	} else {
		p.start = (p.start + 1) % len(p.points)
	}
	p.dirty = true

	now := p.now()
	if now.Sub(p.lastRender) < p.cfg.Refresh {
		return nil
	}
	return p.render(now)
}

// Close renders the final window.
func (p *Plot) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirty {
		return nil
	}
	return p.render(p.now())
}

// Window returns the points currently shown, oldest first.
func (p *Plot) Window() plotter.XYs {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window()
}

// Renders returns how many images were written.
func (p *Plot) Renders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renders
}

func (p *Plot) window() plotter.XYs {
	out := make(plotter.XYs, p.n)
	for i := 0; i < p.n; i++ {
		out[i] = p.points[(p.start+i)%len(p.points)]
	}
	return out
}

// render draws the window to a temp file and renames it over the image. Caller holds mu.
func (p *Plot) render(now time.Time) error {
	pl := plot.New()
	pl.Title.Text = p.cfg.Title
	pl.X.Label.Text = "Time (s)"
	pl.Y.Label.Text = p.cfg.YLabel

	line, err := plotter.NewLine(p.window())
	if err != nil {
		return fmt.Errorf("plot line: %w", err)
	}
	pl.Add(line, plotter.NewGrid())

	ext := filepath.Ext(p.cfg.Path)
	tmp := p.cfg.Path + ".tmp" + ext
	if err := pl.Save(p.cfg.Width, p.cfg.Height, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("render plot: %w", err)
	}
	if err := os.Rename(tmp, p.cfg.Path); err != nil {
		return fmt.Errorf("replace plot: %w", err)
	}
	p.dirty = false
	p.lastRender = now
	p.renders++
	return nil
}

var _ ports.Display = (*Plot)(nil)
