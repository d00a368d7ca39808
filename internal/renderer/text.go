package renderer

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/skip2/go-qrcode"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/nlecore/internal/compositor"
)

// renderText draws s with a 7x13 bitmap face on a transparent image sized to
// the text. Lines are split on "\n".
func renderText(s string, c color.Color) *image.RGBA {
	face := basicfont.Face7x13
	lines := strings.Split(s, "\n")
	lineHeight := face.Metrics().Height.Ceil()

	width := 1
	for _, line := range lines {
		width = max(width, font.MeasureString(face, line).Ceil())
	}
	img := image.NewRGBA(image.Rect(0, 0, width, lineHeight*len(lines)))

	d := &font.Drawer{Dst: img, Src: image.NewUniform(c), Face: face}
	for i, line := range lines {
		d.Dot = fixed.P(0, i*lineHeight+face.Metrics().Ascent.Ceil())
		d.DrawString(line)
	}
	return img
}

// stamp marks the top-right corner with the frame time as a QR code and a
// timecode label.
func (r *Renderer) stamp(canvas *image.RGBA, frame compositor.Frame) error {
	size := max(min(r.width, r.height)/6, 21)
	code, err := qrcode.New(fmt.Sprintf("t=%d n=%d", frame.Time, len(frame.Instructions)), qrcode.Low)
	if err != nil {
		return err
	}
	qr := code.Image(size)
	at := image.Pt(r.width-qr.Bounds().Dx(), 0)
	xdraw.Draw(canvas, qr.Bounds().Add(at), qr, qr.Bounds().Min, xdraw.Src)

	label := renderText(Timecode(frame.Time), color.White)
	labelAt := image.Pt(at.X-label.Bounds().Dx()-4, 2)
	xdraw.Draw(canvas, label.Bounds().Add(labelAt), label, image.Point{}, xdraw.Over)
	return nil
}

// Timecode formats ms as MM:SS.mmm.
func Timecode(ms int64) string {
	sign := ""
	if ms < 0 {
		sign, ms = "-", -ms
	}
	return fmt.Sprintf("%s%02d:%02d.%03d", sign, ms/60000, ms/1000%60, ms%1000)
}
