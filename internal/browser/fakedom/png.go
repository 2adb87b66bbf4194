package fakedom

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// tinyPNG is a small valid screenshot so image decoding paths are exercised.
func tinyPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
