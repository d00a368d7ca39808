package video

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// PNGSequenceEncoder writes each frame as dir/frame_000000.png. It needs no
// external tools, so previews and tests use it.
type PNGSequenceEncoder struct {
	dir    string
	frames int
	enc    png.Encoder
}

func NewPNGSequence(dir string) (*PNGSequenceEncoder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &PNGSequenceEncoder{dir: dir, enc: png.Encoder{CompressionLevel: png.BestSpeed}}, nil
}

// FramePath is the file frame i is written to.
func (p *PNGSequenceEncoder) FramePath(i int) string {
	return filepath.Join(p.dir, fmt.Sprintf("frame_%06d.png", i))
}

func (p *PNGSequenceEncoder) WriteFrame(img *image.RGBA) error {
	f, err := os.Create(p.FramePath(p.frames))
	if err != nil {
		return err
	}
	if err := p.enc.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode frame %d: %w", p.frames, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	p.frames++
	return nil
}

func (p *PNGSequenceEncoder) Frames() int { return p.frames }

func (p *PNGSequenceEncoder) Close() error { return nil }
