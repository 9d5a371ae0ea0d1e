package sfm

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"maps"
	"os"
	"slices"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Coverage sheet layout
const (
	coverageCellPx  = 8
	coverageTilePad = 10
	coverageLabelPx = 16
	coverageColumns = 6
)

var (
	coveredColor   = color.RGBA{46, 139, 87, 255}  // sea green
	uncoveredColor = color.RGBA{225, 225, 225, 255}
	gridColor      = color.RGBA{255, 255, 255, 255}
	lowBorderColor = color.RGBA{200, 30, 30, 255}
	labelColor     = color.RGBA{0, 0, 0, 255}
)

// CoverageSheet renders per-frame coverage masks as a grid of tiles, one
// per frame in ascending order. Frames below Threshold get a red border.
type CoverageSheet struct {
	Masks     map[FrameID]*CoverageMask
	Threshold float64
	Columns   int
}

// NewCoverageSheet builds a sheet from the coverage masks of a scene
func NewCoverageSheet(s *Scene, threshold float64) *CoverageSheet {
	return &CoverageSheet{
		Masks:     CoverageMasks(s.Tracks, s.Landmarks, s.Cameras),
		Threshold: threshold,
		Columns:   coverageColumns,
	}
}

func tileSize() (w, h int) {
	w = MaskWidth*coverageCellPx + 2*coverageTilePad
	h = MaskHeight*coverageCellPx + 2*coverageTilePad + coverageLabelPx
	return w, h
}

// Render draws the sheet. An empty sheet is a single blank tile.
func (cs *CoverageSheet) Render() *image.RGBA {
	frames := slices.Sorted(maps.Keys(cs.Masks))
	cols := cs.Columns
	if cols <= 0 {
		cols = coverageColumns
	}
	cols = max(1, min(cols, len(frames)))
	rows := max(1, (len(frames)+cols-1)/cols)

	tw, th := tileSize()
	img := image.NewRGBA(image.Rect(0, 0, cols*tw, rows*th))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	for i, fid := range frames {
		ox := (i % cols) * tw
		oy := (i / cols) * th
		cs.drawTile(img, ox, oy, fid, cs.Masks[fid])
	}
	return img
}

func (cs *CoverageSheet) drawTile(img *image.RGBA, ox, oy int, fid FrameID, m *CoverageMask) {
	gx := ox + coverageTilePad
	gy := oy + coverageTilePad + coverageLabelPx
	frac := m.Fraction()

	if frac < cs.Threshold {
		border := image.Rect(gx-3, gy-3, gx+MaskWidth*coverageCellPx+3, gy+MaskHeight*coverageCellPx+3)
		draw.Draw(img, border, &image.Uniform{C: lowBorderColor}, image.Point{}, draw.Src)
	}

	for r := 0; r < MaskHeight; r++ {
		for c := 0; c < MaskWidth; c++ {
			fill := uncoveredColor
			if m != nil && m[r][c] {
				fill = coveredColor
			}
			x0 := gx + c*coverageCellPx
			y0 := gy + r*coverageCellPx
			cell := image.Rect(x0, y0, x0+coverageCellPx, y0+coverageCellPx)
			draw.Draw(img, cell, &image.Uniform{C: gridColor}, image.Point{}, draw.Src)
			draw.Draw(img, cell.Inset(1), &image.Uniform{C: fill}, image.Point{}, draw.Src)
		}
	}

	drawText(img, gx, oy+coverageTilePad+11, fmt.Sprintf("frame %d  %.1f%%", fid, 100*frac), labelColor)
}

// RenderCoverageMasks renders the coverage sheet of a scene
func RenderCoverageMasks(s *Scene, threshold float64) *image.RGBA {
	return NewCoverageSheet(s, threshold).Render()
}

// WritePNG encodes the rendered sheet as PNG
func (cs *CoverageSheet) WritePNG(w io.Writer) error {
	return png.Encode(w, cs.Render())
}

// SavePNG saves the rendered sheet to a file
func (cs *CoverageSheet) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := cs.WritePNG(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode coverage png: %w", err)
	}
	return f.Close()
}

// drawText renders text onto an image with its baseline at y
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
