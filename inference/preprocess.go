package inference

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	// 注册标准库解码器
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	// 注册扩展解码器
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Channels is the number of color channels fed to the model.
const Channels = 3

// ImageNet normalization constants, RGB order.
var (
	Mean = [Channels]float32{0.485, 0.456, 0.406}
	Std  = [Channels]float32{0.229, 0.224, 0.225}
)

// DecodableFormats lists the formats Decode understands.
var DecodableFormats = []string{"jpeg", "png", "gif", "webp", "bmp", "tiff"}

// Decode decodes an image payload and returns the detected format name.
func Decode(payload []byte) (image.Image, string, error) {
	if len(payload) == 0 {
		return nil, "", fmt.Errorf("empty payload")
	}
	img, format, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", fmt.Errorf("image has no pixels")
	}
	return img, format, nil
}

// DecodeErrorMessage is the per-item message for payloads Decode rejects.
func DecodeErrorMessage() string {
	return "File is not a supported image format. Supported formats: " +
		strings.ToUpper(strings.Join(DecodableFormats, ", "))
}

// Resize scales src to a size x size RGBA image with bilinear filtering.
func Resize(src image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// Normalize writes img into dst as CHW floats normalized with Mean and Std.
// dst must hold Channels * w * h values.
func Normalize(img *image.RGBA, dst []float32) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4:]
			i := y*w + x
			for c := 0; c < Channels; c++ {
				v := float32(px[c]) / 255
				dst[c*plane+i] = (v - Mean[c]) / Std[c]
			}
		}
	}
}

// Preprocess decodes, resizes and normalizes one payload into dst.
func Preprocess(payload []byte, size int, dst []float32) error {
	img, _, err := Decode(payload)
	if err != nil {
		return err
	}
	Normalize(Resize(img, size), dst)
	return nil
}
