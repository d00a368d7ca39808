package effects

import (
	"image"
	"image/color"
	"math"
)

// Filter mutates img in place using the given parameters.
type Filter func(img *image.RGBA, def Definition, params map[string]float64)

var filters = map[string]Filter{
	KindBrightness: brightness,
	KindContrast:   contrast,
	KindSaturation: saturation,
	KindGrayscale:  grayscale,
	KindTint:       tint,
	KindBlur:       boxBlur,
	KindEdges:      sobelEdges,
}

// Apply runs the filter for kind over img. Unknown kinds return an error and
// leave img untouched.
func Apply(img *image.RGBA, kind string, params map[string]float64) error {
	def, err := Lookup(kind)
	if err != nil {
		return err
	}
	filters[kind](img, def, params)
	return nil
}

// mapPixels calls fn with straight (non-premultiplied) channels in [0, 1]
// for every non-transparent pixel and stores the clamped result.
func mapPixels(img *image.RGBA, fn func(r, g, b float64) (float64, float64, float64)) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i+3 < len(row); i += 4 {
			a := float64(row[i+3])
			if a == 0 {
				continue
			}
			r, g, bl := fn(float64(row[i])/a, float64(row[i+1])/a, float64(row[i+2])/a)
			row[i] = premul(r, a)
			row[i+1] = premul(g, a)
			row[i+2] = premul(bl, a)
		}
	}
}

func premul(c, a float64) uint8 {
	if c < 0 {
		c = 0
	} else if c > 1 {
		c = 1
	}
	return uint8(math.Round(c * a))
}

func luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

func brightness(img *image.RGBA, def Definition, params map[string]float64) {
	amt := def.Param(params, "amount")
	if amt == 0 {
		return
	}
	mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
		return r + amt, g + amt, b + amt
	})
}

func contrast(img *image.RGBA, def Definition, params map[string]float64) {
	k := def.Param(params, "amount")
	if k == 1 {
		return
	}
	mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
		return (r-0.5)*k + 0.5, (g-0.5)*k + 0.5, (b-0.5)*k + 0.5
	})
}

func saturation(img *image.RGBA, def Definition, params map[string]float64) {
	k := def.Param(params, "amount")
	if k == 1 {
		return
	}
	mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
		l := luma(r, g, b)
		return l + (r-l)*k, l + (g-l)*k, l + (b-l)*k
	})
}

func grayscale(img *image.RGBA, def Definition, params map[string]float64) {
	k := def.Param(params, "amount")
	if k == 0 {
		return
	}
	mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
		l := luma(r, g, b)
		return r + (l-r)*k, g + (l-g)*k, b + (l-b)*k
	})
}

func tint(img *image.RGBA, def Definition, params map[string]float64) {
	k := def.Param(params, "amount")
	if k == 0 {
		return
	}
	tr, tg, tb := def.Param(params, "r"), def.Param(params, "g"), def.Param(params, "b")
	mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
		return r + (tr-r)*k, g + (tg-g)*k, b + (tb-b)*k
	})
}

// boxBlur runs a separable box filter over the premultiplied channels.
func boxBlur(img *image.RGBA, def Definition, params map[string]float64) {
	radius := int(math.Round(def.Param(params, "radius")))
	if radius <= 0 {
		return
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return
	}
	tmp := make([]float64, w*h*4)
	// horizontal pass into tmp
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum [4]float64
			n := 0
			for k := -radius; k <= radius; k++ {
				sx := x + k
				if sx < 0 || sx >= w {
					continue
				}
				o := img.PixOffset(b.Min.X+sx, b.Min.Y+y)
				for c := 0; c < 4; c++ {
					sum[c] += float64(img.Pix[o+c])
				}
				n++
			}
			for c := 0; c < 4; c++ {
				tmp[(y*w+x)*4+c] = sum[c] / float64(n)
			}
		}
	}
	// vertical pass back into img
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum [4]float64
			n := 0
			for k := -radius; k <= radius; k++ {
				sy := y + k
				if sy < 0 || sy >= h {
					continue
				}
				for c := 0; c < 4; c++ {
					sum[c] += tmp[(sy*w+x)*4+c]
				}
				n++
			}
			o := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			for c := 0; c < 4; c++ {
				img.Pix[o+c] = uint8(math.Round(sum[c] / float64(n)))
			}
		}
	}
}

// sobelEdges replaces colour with a white-on-black edge mask, keeping alpha.
func sobelEdges(img *image.RGBA, def Definition, params map[string]float64) {
	threshold := def.Param(params, "threshold")
	gray := toGrayscale(img)
	b := img.Bounds()

	gx := [3][3]int{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	gy := [3][3]int{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var sumX, sumY float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					px := clampInt(x+kx, b.Min.X, b.Max.X-1)
					py := clampInt(y+ky, b.Min.Y, b.Max.Y-1)
					v := float64(gray.GrayAt(px, py).Y)
					sumX += v * float64(gx[ky+1][kx+1])
					sumY += v * float64(gy[ky+1][kx+1])
				}
			}
			magnitude := math.Sqrt(sumX*sumX + sumY*sumY)

			o := img.PixOffset(x, y)
			var v uint8
			if magnitude > threshold {
				v = img.Pix[o+3]
			}
			img.Pix[o], img.Pix[o+1], img.Pix[o+2] = v, v, v
		}
	}
}

// toGrayscale converts an image to grayscale
func toGrayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}

	return gray
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
