// Package imgsource decodes a still image or animated GIF into a fixed
// sequence of full-canvas RGBA frames with per-frame display durations.
package imgsource

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"iter"
	"os"
	"time"

	_ "image/jpeg" // register still-image codecs
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeError reports an image that could not be opened or decoded. Fatal
// to the run; no surface is created after one.
type DecodeError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s: %s", e.Path, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Frame is one decoded frame: full-canvas RGBA pixels (stride 4*width) and
// the time it stays on screen. The single frame of a still image has
// Duration 0, meaning it never expires.
type Frame struct {
	Pix      []byte
	Duration time.Duration
}

// GIF delays of 0 (or 1) centisecond are a legacy "as fast as possible"
// marker; browsers and viewers clamp them to 100ms, and so do we.
const minFrameDelay = 100 * time.Millisecond

// Source is a decoded image: dimensions plus a finite, restartable frame
// sequence. All frames are decoded up front; iteration carries no state of
// its own, so the scheduler loops by re-iterating.
type Source struct {
	width  int
	height int
	frames []Frame
}

// New assembles a source from pre-decoded frames. Every frame's Pix must be
// width*height*4 bytes.
func New(width, height int, frames []Frame) *Source {
	return &Source{width: width, height: height, frames: frames}
}

// Open reads and decodes the image at path. GIFs yield one frame per
// animation step, composited to the full canvas; everything else yields
// exactly one frame.
func Open(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Reason: "cannot read file", Err: err}
	}

	if bytes.HasPrefix(data, []byte("GIF8")) {
		return decodeGIF(path, data)
	}
	return decodeStill(path, data)
}

// Dimensions returns the canvas size in pixels.
func (s *Source) Dimensions() (width, height int) {
	return s.width, s.height
}

// FrameCount returns the number of frames; 1 for still images.
func (s *Source) FrameCount() int {
	return len(s.frames)
}

// Animated reports whether the source has more than one frame.
func (s *Source) Animated() bool {
	return len(s.frames) > 1
}

// Frames returns the frame sequence. Each call starts from the first frame.
func (s *Source) Frames() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for _, f := range s.frames {
			if !yield(f) {
				return
			}
		}
	}
}

func decodeStill(path string, data []byte) (*Source, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Path: path, Reason: "unsupported or corrupt image", Err: err}
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	return &Source{
		width:  b.Dx(),
		height: b.Dy(),
		frames: []Frame{{Pix: rgba.Pix}},
	}, nil
}

// decodeGIF composites every animation step onto a persistent canvas,
// honoring the per-frame disposal mode, so each exposed Frame covers the
// whole logical screen regardless of how the file crops its deltas.
func decodeGIF(path string, data []byte) (*Source, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Path: path, Reason: "corrupt GIF", Err: err}
	}
	if len(g.Image) == 0 {
		return nil, &DecodeError{Path: path, Reason: "GIF has no frames"}
	}

	width, height := g.Config.Width, g.Config.Height
	if width == 0 || height == 0 {
		// Older encoders leave the logical screen size unset.
		b := g.Image[0].Bounds()
		width, height = b.Max.X, b.Max.Y
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	frames := make([]Frame, 0, len(g.Image))

	for i, paletted := range g.Image {
		var previous []byte
		if i < len(g.Disposal) && g.Disposal[i] == gif.DisposalPrevious {
			previous = append([]byte(nil), canvas.Pix...)
		}

		draw.Draw(canvas, paletted.Bounds(), paletted, paletted.Bounds().Min, draw.Over)

		frames = append(frames, Frame{
			Pix:      append([]byte(nil), canvas.Pix...),
			Duration: frameDelay(g.Delay, i),
		})

		if i < len(g.Disposal) {
			switch g.Disposal[i] {
			case gif.DisposalBackground:
				clearRect(canvas, paletted.Bounds())
			case gif.DisposalPrevious:
				copy(canvas.Pix, previous)
			}
		}
	}

	return &Source{width: width, height: height, frames: frames}, nil
}

// frameDelay converts a GIF centisecond delay into a duration.
func frameDelay(delays []int, i int) time.Duration {
	if i >= len(delays) {
		return minFrameDelay
	}
	d := time.Duration(delays[i]) * 10 * time.Millisecond
	if d < minFrameDelay {
		return minFrameDelay
	}
	return d
}

// clearRect zeroes a rectangle of the canvas to transparent black.
func clearRect(canvas *image.RGBA, r image.Rectangle) {
	r = r.Intersect(canvas.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := canvas.Pix[canvas.PixOffset(r.Min.X, y):canvas.PixOffset(r.Max.X, y)]
		for i := range row {
			row[i] = 0
		}
	}
}
