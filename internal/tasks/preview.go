package tasks

import (
	"bytes"
	"crypto/sha256"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

const (
	PreviewWidth  = 1200
	PreviewHeight = 630
)

// RenderPreview draws the social preview card for a share token. The palette
// is derived from the token hash, so a token always renders the same card.
func RenderPreview(token string) ([]byte, error) {
	sum := sha256.Sum256([]byte(token))

	base := color.RGBA{R: 0x40 + sum[0]%0x60, G: 0x08 + sum[1]%0x20, B: 0x18 + sum[2]%0x30, A: 0xff}
	accent := color.RGBA{R: 0xc0 + sum[3]%0x40, G: 0x90 + sum[4]%0x50, B: 0x40 + sum[5]%0x40, A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, PreviewWidth, PreviewHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: base}, image.Point{}, draw.Src)

	// Diagonal band plus a row of blocks keyed by the hash.
	for y := 0; y < PreviewHeight; y++ {
		from := (y*PreviewWidth)/PreviewHeight - 120
		for x := from; x < from+80; x++ {
			if x >= 0 && x < PreviewWidth {
				img.SetRGBA(x, y, accent)
			}
		}
	}
	const block = 60
	for i := 0; i < 16; i++ {
		shade := color.RGBA{R: accent.R, G: accent.G, B: accent.B, A: 0x40 + sum[6+i]%0xa0}
		rect := image.Rect(60+i*(block+10), PreviewHeight-120, 60+i*(block+10)+block, PreviewHeight-60)
		draw.Draw(img, rect, &image.Uniform{C: shade}, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
