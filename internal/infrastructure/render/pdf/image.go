package pdf

import (
	"bytes"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/mirono/webtrees/pkg/errors"
)

func readImageFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRenderFailed, "read image file")
	}
	return data, nil
}

// decodeImage turns JPEG or PNG bytes into an image XObject payload. JPEG
// data passes through untouched under DCTDecode; PNG is decoded, stripped
// of alpha, and recompressed as flate raw RGB.
func decodeImage(data []byte) (*imageData, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return decodeJPEG(data)
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return decodePNG(data)
	}
	return nil, errors.New(errors.ErrCodeRenderFailed, "unsupported image format, want jpeg or png")
}

func decodeJPEG(data []byte) (*imageData, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRenderFailed, "decode jpeg header")
	}
	colorSpace := "DeviceRGB"
	switch cfg.ColorModel {
	case color.GrayModel:
		colorSpace = "DeviceGray"
	case color.CMYKModel:
		return nil, errors.New(errors.ErrCodeRenderFailed, "cmyk jpeg is not supported")
	}
	return &imageData{
		width:      cfg.Width,
		height:     cfg.Height,
		colorSpace: colorSpace,
		bitsPer:    8,
		filter:     "DCTDecode",
		data:       data,
	}, nil
}

func decodePNG(data []byte) (*imageData, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRenderFailed, "decode png")
	}
	b := img.Bounds()
	rgb := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			rgb = append(rgb, byte(cr>>8), byte(cg>>8), byte(cb>>8))
		}
	}
	return &imageData{
		width:      b.Dx(),
		height:     b.Dy(),
		colorSpace: "DeviceRGB",
		bitsPer:    8,
		filter:     "FlateDecode",
		data:       zlibCompress(rgb),
	}, nil
}
