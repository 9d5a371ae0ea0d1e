package sfm

import (
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha.
// The canvas library expects premultiplied colors.
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

var (
	removedColor  = color.NRGBA{200, 30, 30, 255}
	orphanColor   = color.NRGBA{128, 128, 128, 255}
	landmarkColor = color.NRGBA{60, 60, 60, 160}
	gridLineColor = color.NRGBA{200, 200, 200, 255}
)

// PlanRenderer draws a PlanView as vector graphics. Canvas units are
// millimeters; Scale converts world units to millimeters.
type PlanRenderer struct {
	View           *PlanView
	Colors         []ComponentColor
	Scale          float64           // mm per world unit
	Padding        float64           // padding in world units
	Resolution     canvas.Resolution // resolution for PNG output
	GridSpacing    float64           // grid spacing in world units; 0 disables
	CameraRadius   float64           // mm
	LandmarkRadius float64           // mm
}

// NewPlanRenderer creates a plan renderer with default settings
func NewPlanRenderer(view *PlanView) *PlanRenderer {
	return &PlanRenderer{
		View:           view,
		Colors:         DefaultComponentColors(),
		Scale:          25.0,
		Padding:        1.0,
		Resolution:     canvas.DPI(96),
		GridSpacing:    1.0,
		CameraRadius:   4.0,
		LandmarkRadius: 1.0,
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// canvasSize returns the drawing bounds in world units and the canvas size in mm
func (r *PlanRenderer) canvasSize() (orb.Bound, float64, float64) {
	b, ok := r.View.Bound()
	if !ok {
		b = orb.Bound{}
	}
	width := (b.Max[0]-b.Min[0])*r.Scale + 2*r.Padding*r.Scale
	height := (b.Max[1]-b.Min[1])*r.Scale + 2*r.Padding*r.Scale
	// keep a visible canvas for single-point and empty views
	width = math.Max(width, 2*r.CameraRadius+1)
	height = math.Max(height, 2*r.CameraRadius+1)
	return b, width, height
}

// RenderToSVG writes the plan as an SVG to w
func (r *PlanRenderer) RenderToSVG(w io.Writer) error {
	b, width, height := r.canvasSize()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, b, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the plan as a PNG to w
func (r *PlanRenderer) RenderToPNG(w io.Writer) error {
	b, width, height := r.canvasSize()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, b, width, height)
	return png.Encode(w, rast)
}

func (r *PlanRenderer) componentColor(i int) ComponentColor {
	if i < 0 || len(r.Colors) == 0 {
		return ComponentColor{Fill: color.NRGBA{}, Outline: orphanColor}
	}
	return r.Colors[i%len(r.Colors)]
}

// renderToCanvas draws the background, grid, component footprints,
// landmarks and cameras in that order
func (r *PlanRenderer) renderToCanvas(renderer canvasRenderer, b orb.Bound, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(p orb.Point) (float64, float64) {
		return (p[0]-b.Min[0]+r.Padding)*r.Scale, (p[1]-b.Min[1]+r.Padding)*r.Scale
	}

	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(gridLineColor)}
		gridStyle.StrokeWidth = 0.3
		gridStyle.Dashes = []float64{2.0, 2.0}

		minX, maxX := b.Min[0]-r.Padding, b.Max[0]+r.Padding
		minY, maxY := b.Min[1]-r.Padding, b.Max[1]+r.Padding
		for x := math.Ceil(minX/r.GridSpacing) * r.GridSpacing; x <= maxX; x += r.GridSpacing {
			gp := &canvas.Path{}
			gp.MoveTo(toCanvas(orb.Point{x, minY}))
			gp.LineTo(toCanvas(orb.Point{x, maxY}))
			renderer.RenderPath(gp, gridStyle, canvas.Identity)
		}
		for y := math.Ceil(minY/r.GridSpacing) * r.GridSpacing; y <= maxY; y += r.GridSpacing {
			gp := &canvas.Path{}
			gp.MoveTo(toCanvas(orb.Point{minX, y}))
			gp.LineTo(toCanvas(orb.Point{maxX, y}))
			renderer.RenderPath(gp, gridStyle, canvas.Identity)
		}
	}

	for i := range r.View.Components {
		poly := r.View.Footprint(i)
		if len(poly) == 0 {
			continue
		}
		cc := r.componentColor(i)
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: nrgbaToRGBA(cc.Fill)}
		style.Stroke = canvas.Paint{Color: nrgbaToRGBA(cc.Outline)}
		style.StrokeWidth = 0.5

		cp := &canvas.Path{}
		for j, pt := range poly[0] {
			x, y := toCanvas(pt)
			if j == 0 {
				cp.MoveTo(x, y)
			} else {
				cp.LineTo(x, y)
			}
		}
		cp.Close()
		renderer.RenderPath(cp, style, canvas.Identity)
	}

	lmStyle := canvas.DefaultStyle
	lmStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(landmarkColor)}
	lmStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, lm := range r.View.Landmarks {
		x, y := toCanvas(lm.Position)
		renderer.RenderPath(canvas.Circle(r.LandmarkRadius).Translate(x, y), lmStyle, canvas.Identity)
	}

	for _, cam := range r.View.Cameras {
		x, y := toCanvas(cam.Position)
		if cam.Removed {
			crossStyle := canvas.DefaultStyle
			crossStyle.Fill = canvas.Paint{Color: canvas.Transparent}
			crossStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(removedColor)}
			crossStyle.StrokeWidth = 1.0

			d := r.CameraRadius
			cross := &canvas.Path{}
			cross.MoveTo(x-d, y-d)
			cross.LineTo(x+d, y+d)
			cross.MoveTo(x-d, y+d)
			cross.LineTo(x+d, y-d)
			renderer.RenderPath(cross, crossStyle, canvas.Identity)
			continue
		}

		cc := r.componentColor(cam.Component)
		camStyle := canvas.DefaultStyle
		camStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(cc.Outline)}
		camStyle.Stroke = canvas.Paint{Color: canvas.Black}
		camStyle.StrokeWidth = 0.5
		renderer.RenderPath(canvas.Circle(r.CameraRadius).Translate(x, y), camStyle, canvas.Identity)
	}
}
