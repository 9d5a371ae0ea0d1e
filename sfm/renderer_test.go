package sfm

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestCoverageSheet_Layout(t *testing.T) {
	masks := make(map[FrameID]*CoverageMask)
	for fid := FrameID(1); fid <= 8; fid++ {
		masks[fid] = &CoverageMask{}
	}
	cs := &CoverageSheet{Masks: masks, Columns: 3}
	img := cs.Render()

	tw, th := tileSize()
	if got := img.Bounds().Dx(); got != 3*tw {
		t.Errorf("width = %d, want %d", got, 3*tw)
	}
	if got := img.Bounds().Dy(); got != 3*th {
		t.Errorf("height = %d, want %d", got, 3*th)
	}
}

func TestCoverageSheet_Empty(t *testing.T) {
	img := (&CoverageSheet{}).Render()
	tw, th := tileSize()
	if img.Bounds().Dx() != tw || img.Bounds().Dy() != th {
		t.Errorf("empty sheet = %v, want one %dx%d tile", img.Bounds(), tw, th)
	}
}

func TestCoverageSheet_CellColors(t *testing.T) {
	m := &CoverageMask{}
	m[0][0] = true
	cs := &CoverageSheet{Masks: map[FrameID]*CoverageMask{1: m}, Threshold: 0.5}
	img := cs.Render()

	gx := coverageTilePad
	gy := coverageTilePad + coverageLabelPx
	center := coverageCellPx / 2

	if got := img.RGBAAt(gx+center, gy+center); got != coveredColor {
		t.Errorf("covered cell = %v, want %v", got, coveredColor)
	}
	if got := img.RGBAAt(gx+coverageCellPx+center, gy+center); got != uncoveredColor {
		t.Errorf("uncovered cell = %v, want %v", got, uncoveredColor)
	}
	// 1/256 is below the threshold, so the tile is outlined.
	if got := img.RGBAAt(gx-2, gy+center); got != lowBorderColor {
		t.Errorf("border pixel = %v, want %v", got, lowBorderColor)
	}

	cs.Threshold = 0
	img = cs.Render()
	if got := img.RGBAAt(gx-2, gy+center); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("border pixel without threshold = %v, want white", got)
	}
}

func TestRenderCoverageMasks_Scene(t *testing.T) {
	f := newFixture(t)
	f.addCamera(1, r3.Vec{X: -1})
	f.addCamera(2, r3.Vec{X: 1})
	f.addGrid(1, 4, 4, 10, 1, 2)
	s := &Scene{ID: "s", Cameras: f.cams, Landmarks: f.lms, Tracks: f.tracks}

	img := RenderCoverageMasks(s, 0.25)
	tw, _ := tileSize()
	if img.Bounds().Dx() != 2*tw {
		t.Errorf("width = %d, want two tiles", img.Bounds().Dx())
	}
}

func TestCoverageSheet_SavePNG(t *testing.T) {
	cs := &CoverageSheet{Masks: map[FrameID]*CoverageMask{1: {}}}
	path := filepath.Join(t.TempDir(), "coverage.png")
	if err := cs.SavePNG(path); err != nil {
		t.Fatalf("SavePNG: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("output is not a valid PNG: %v", err)
	}

	if err := cs.SavePNG(filepath.Join(t.TempDir(), "missing", "x.png")); err == nil {
		t.Error("expected error for unwritable path")
	}
}
