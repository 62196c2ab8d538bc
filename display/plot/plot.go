// Package plot draws series grids as PNG images for the HTTP API and the
// TUI's save-to-file key.
package plot

import (
	"fmt"
	"image"
	imgcolor "image/color"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/disintegration/imaging"

	"gitlab.com/tinyland/lab/loadgraph/display/color"
	"gitlab.com/tinyland/lab/loadgraph/history"
)

// Options controls image size and colors.
type Options struct {
	// Width and Height are the output size in pixels.
	Width, Height int
	// Supersample draws at this multiple of the output size before
	// downsampling with a Lanczos filter. Values below 1 mean 1.
	Supersample int
	// Line is the series color.
	Line lipgloss.Color
	// Background fills the area above the series.
	Background lipgloss.Color
	// Gridlines draws horizontal rules at each quarter of the range.
	Gridlines bool
}

// DefaultOptions returns a 600x160 graph drawn at 2x.
func DefaultOptions() Options {
	return Options{
		Width:       600,
		Height:      160,
		Supersample: 2,
		Line:        color.Success,
		Background:  "#111827",
		Gridlines:   true,
	}
}

// MaxDimension bounds Width and Height.
const MaxDimension = 4096

// mix blends a over b by f in [0,1].
func mix(a, b imgcolor.NRGBA, f float64) imgcolor.NRGBA {
	m := func(x, y uint8) uint8 { return uint8(float64(x)*f + float64(y)*(1-f) + 0.5) }
	return imgcolor.NRGBA{R: m(a.R, b.R), G: m(a.G, b.G), B: m(a.B, b.B), A: 0xff}
}

// Render draws g as an area graph scaled to [lo, hi]. Each pixel column
// maps onto one grid column; the grid's Lead columns are left empty. When
// hi <= lo every value sits on the baseline.
func Render(g history.Grid, lo, hi int64, opt Options) (*image.NRGBA, error) {
	if opt.Width <= 0 || opt.Height <= 0 || opt.Width > MaxDimension || opt.Height > MaxDimension {
		return nil, fmt.Errorf("plot: size %dx%d out of range", opt.Width, opt.Height)
	}
	ss := max(opt.Supersample, 1)
	w, h := opt.Width*ss, opt.Height*ss

	bg := color.RGBA(opt.Background)
	line := color.RGBA(opt.Line)
	fill := mix(line, bg, 0.35)
	rule := mix(color.RGBA(color.Grid), bg, 0.6)

	img := imaging.New(w, h, bg)

	if opt.Gridlines {
		for q := 1; q < 4; q++ {
			y := h * q / 4
			for x := 0; x < w; x++ {
				img.SetNRGBA(x, y, rule)
			}
		}
	}

	n := len(g.Values)
	if n > 0 {
		thick := 2 * ss
		for x := 0; x < w; x++ {
			idx := x * n / w
			if idx < g.Lead {
				continue
			}
			top := h - 1
			if hi > lo {
				f := float64(g.Values[idx]-lo) / float64(hi-lo)
				f = min(max(f, 0), 1)
				top = h - 1 - int(f*float64(h-1)+0.5)
			}
			for y := top; y < h; y++ {
				if y < top+thick {
					img.SetNRGBA(x, y, line)
				} else {
					img.SetNRGBA(x, y, fill)
				}
			}
		}
	}

	if ss == 1 {
		return img, nil
	}
	return imaging.Resize(img, opt.Width, opt.Height, imaging.Lanczos), nil
}

// Save writes img to path. The format follows the file extension.
func Save(path string, img image.Image) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("plot: save %s: %w", path, err)
	}
	return nil
}

// Encode writes img to w as PNG.
func Encode(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}
