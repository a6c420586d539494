package overlay

import (
	"image"

	"github.com/nfnt/resize"
)

// renderFrame converts RGBA source pixels into premultiplied little-endian
// ARGB8888 (bytes B,G,R,A), scaling every alpha by opacity, and writes them
// into dst. When the compositor granted a size other than the frame's, the
// frame is rescaled to fill the buffer. Pure function of its inputs.
func renderFrame(pix []byte, srcW, srcH int, opacity float64, dst []byte, dstW, dstH int) {
	if srcW != dstW || srcH != dstH {
		src := &image.RGBA{Pix: pix, Stride: srcW * 4, Rect: image.Rect(0, 0, srcW, srcH)}
		scaled := resize.Resize(uint(dstW), uint(dstH), src, resize.Bilinear)
		rgba, ok := scaled.(*image.RGBA)
		if !ok {
			rgba = image.NewRGBA(image.Rect(0, 0, dstW, dstH))
			for y := 0; y < dstH; y++ {
				for x := 0; x < dstW; x++ {
					rgba.Set(x, y, scaled.At(x, y))
				}
			}
		}
		pix = rgba.Pix
	}

	n := dstW * dstH * 4
	for i := 0; i+3 < n; i += 4 {
		r, g, b := pix[i], pix[i+1], pix[i+2]
		a := float64(pix[i+3]) * opacity
		dst[i] = premul(b, a)
		dst[i+1] = premul(g, a)
		dst[i+2] = premul(r, a)
		dst[i+3] = uint8(a + 0.5)
	}
}

func premul(c uint8, alpha float64) uint8 {
	return uint8(float64(c)*alpha/255 + 0.5)
}
