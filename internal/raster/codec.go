package raster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// EncodePNG encodes buf losslessly.
func EncodePNG(buf *PixelBuffer) ([]byte, error) {
	var out bytes.Buffer
	if err := png.Encode(&out, buf.Image()); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

// DecodeImage decodes PNG, JPEG or WebP data.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// DecodeToSize decodes data into a width×height buffer. Images of another
// size are resampled nearest-neighbor so line art keeps hard edges.
func DecodeToSize(data []byte, width, height int) (*PixelBuffer, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return FromImage(img), nil
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return FromImage(dst), nil
}
