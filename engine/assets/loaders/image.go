package loaders

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// ImageLoader decodes png, bmp and tiff files into RGBA8 pixels. Data is a
// *metadata.ImageResourceData.
type ImageLoader struct{}

func (il *ImageLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		img, err = png.Decode(f)
	case ".bmp":
		img, err = bmp.Decode(f)
	case ".tif", ".tiff":
		img, err = tiff.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported image format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	bounds := img.Bounds()
	rgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	return &metadata.Resource{
		Name:     filepath.Base(path),
		FullPath: path,
		Type:     metadata.RESOURCE_TYPE_IMAGE,
		DataSize: uint64(len(rgba.Pix)),
		Data: &metadata.ImageResourceData{
			Width:  uint32(bounds.Dx()),
			Height: uint32(bounds.Dy()),
			Pixels: rgba.Pix,
		},
	}, nil
}

func (il *ImageLoader) Unload(*metadata.Resource) error {
	return nil
}

// ImageEncoding selects the container written by EncodeImage.
type ImageEncoding string

const (
	IMAGE_ENCODING_PNG  ImageEncoding = "png"
	IMAGE_ENCODING_BMP  ImageEncoding = "bmp"
	IMAGE_ENCODING_TIFF ImageEncoding = "tiff"
)

// ParseImageEncoding accepts the encoding name with or without a leading dot.
func ParseImageEncoding(s string) (ImageEncoding, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "png":
		return IMAGE_ENCODING_PNG, nil
	case "bmp":
		return IMAGE_ENCODING_BMP, nil
	case "tif", "tiff":
		return IMAGE_ENCODING_TIFF, nil
	}
	return "", fmt.Errorf("unsupported image encoding %q", s)
}

// EncodeImage writes tightly packed 4 byte pixels. When bgra is set the
// source is in B8G8R8A8 order, as read back from a swapchain image.
func EncodeImage(w io.Writer, enc ImageEncoding, data *metadata.ImageResourceData, bgra bool) error {
	expected := int(data.Width) * int(data.Height) * 4
	if len(data.Pixels) != expected {
		return fmt.Errorf("pixel buffer holds %d bytes, expected %d", len(data.Pixels), expected)
	}
	img := image.NewNRGBA(image.Rect(0, 0, int(data.Width), int(data.Height)))
	copy(img.Pix, data.Pixels)
	if bgra {
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		}
	}
	switch enc {
	case IMAGE_ENCODING_PNG:
		return png.Encode(w, img)
	case IMAGE_ENCODING_BMP:
		return bmp.Encode(w, img)
	case IMAGE_ENCODING_TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("unsupported image encoding %q", enc)
}

// WriteImageFile creates path and encodes data into it.
func WriteImageFile(path string, enc ImageEncoding, data *metadata.ImageResourceData, bgra bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeImage(f, enc, data, bgra); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
