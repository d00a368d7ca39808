package director

import (
	"image"
	"image/draw"

	"github.com/ivlev/nlecore/internal/effects"
)

// RegionDetector finds content blocks on a slide using an edge mask grown
// by dilation and split into connected components.
type RegionDetector struct {
	MinArea       int     // minimum region area in pixels²
	EdgeThreshold float64 // gradient magnitude threshold
	Dilate        int     // dilation radius joining nearby edges
}

func NewRegionDetector() *RegionDetector {
	return &RegionDetector{
		MinArea:       500,
		EdgeThreshold: 30,
		Dilate:        2,
	}
}

// Detect returns region bounds in img's coordinate space, in no particular
// order; Build sorts them into reading order.
func (r *RegionDetector) Detect(img image.Image) ([]image.Rectangle, error) {
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	// Force opaque so transparent areas do not hide edges.
	for i := 3; i < len(rgba.Pix); i += 4 {
		rgba.Pix[i] = 255
	}
	if err := effects.Apply(rgba, effects.KindEdges, map[string]float64{"threshold": r.EdgeThreshold}); err != nil {
		return nil, err
	}

	mask := make([]bool, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			mask[y*b.Dx()+x] = rgba.Pix[rgba.PixOffset(b.Min.X+x, b.Min.Y+y)] > 128
		}
	}
	mask = dilate(mask, b.Dx(), b.Dy(), r.Dilate)

	var out []image.Rectangle
	for _, rect := range components(mask, b.Dx(), b.Dy()) {
		if rect.Dx()*rect.Dy() >= r.MinArea {
			out = append(out, rect.Add(b.Min))
		}
	}
	return out, nil
}

// dilate grows set pixels by radius in a square neighbourhood.
func dilate(mask []bool, w, h, radius int) []bool {
	if radius <= 0 {
		return mask
	}
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y*w+x] {
				continue
			}
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := x+dx, y+dy
					if nx >= 0 && nx < w && ny >= 0 && ny < h {
						out[ny*w+nx] = true
					}
				}
			}
		}
	}
	return out
}

// components returns the bounding rectangle of each 4-connected set region.
func components(mask []bool, w, h int) []image.Rectangle {
	visited := make([]bool, len(mask))
	var rects []image.Rectangle

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}
		minX, minY := start%w, start/w
		maxX, maxY := minX, minY

		stack := []int{start}
		visited[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for _, n := range [4][2]int{{x + 1, y}, {x - 1, y}, {x, y + 1}, {x, y - 1}} {
				if n[0] < 0 || n[0] >= w || n[1] < 0 || n[1] >= h {
					continue
				}
				j := n[1]*w + n[0]
				if mask[j] && !visited[j] {
					visited[j] = true
					stack = append(stack, j)
				}
			}
		}
		rects = append(rects, image.Rect(minX, minY, maxX+1, maxY+1))
	}
	return rects
}

// ScaleRegions maps regions from a source of size src into the viewport.
func (d *Director) ScaleRegions(regions []image.Rectangle, src image.Rectangle) []image.Rectangle {
	if src.Dx() == 0 || src.Dy() == 0 {
		return nil
	}
	sx := float64(d.ViewportWidth) / float64(src.Dx())
	sy := float64(d.ViewportHeight) / float64(src.Dy())
	out := make([]image.Rectangle, len(regions))
	for i, r := range regions {
		r = r.Sub(src.Min)
		out[i] = image.Rect(
			int(float64(r.Min.X)*sx), int(float64(r.Min.Y)*sy),
			int(float64(r.Max.X)*sx), int(float64(r.Max.Y)*sy),
		)
	}
	return out
}
