// Image file loading and saving
package io

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"gocv.io/x/gocv"

	"photoflow/internal/core"
	"photoflow/internal/logging"
)

var supportedFormats = []string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".bmp"}

// eightBit lists the formats that cannot hold 16-bit channels.
var eightBit = []string{".jpg", ".jpeg", ".bmp"}

// ImageLoader reads and writes photos through OpenCV.
type ImageLoader struct {
	logger logging.Logger
}

func NewImageLoader(logger logging.Logger) *ImageLoader {
	if logger == nil {
		logger = logging.New(nil)
	}
	return &ImageLoader{logger: logger}
}

// LoadPhoto reads path into a linear 16-bit RGB photo identified by path.
func (il *ImageLoader) LoadPhoto(path string) (*core.Photo, error) {
	il.logger.Debugf("loading image %s", path)

	if !IsSupported(path) {
		return nil, fmt.Errorf("unsupported image format: %s", path)
	}

	mat := gocv.IMRead(path, gocv.IMReadAnyDepth|gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to load image: %s", path)
	}
	rgb, err := toRGB16(mat)
	mat.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	img, err := core.NewImageFromMat(rgb)
	if err != nil {
		rgb.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	photo := core.NewPhoto(path, core.Linear)
	photo.Image = img
	photo.SetTag(core.TagName, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	photo.SetTag(core.TagFilename, path)

	il.logger.Infof("loaded %s (%dx%d)", path, img.Width(), img.Height())
	return photo, nil
}

// SavePhoto writes photo to path. Formats without 16-bit support get the
// channels scaled down to 8 bits.
func (il *ImageLoader) SavePhoto(photo *core.Photo, path string) error {
	il.logger.Debugf("saving image %s", path)

	if !photo.IsComplete() {
		return fmt.Errorf("cannot save incomplete photo %s", photo.Identity)
	}
	if !IsSupported(path) {
		return fmt.Errorf("unsupported image format: %s", path)
	}

	bgr, err := fromRGB16(*photo.Image.Mat(), slices.Contains(eightBit, strings.ToLower(filepath.Ext(path))))
	if err != nil {
		return err
	}
	defer bgr.Close()

	if !gocv.IMWrite(path, bgr) {
		return fmt.Errorf("failed to save image: %s", path)
	}

	il.logger.Infof("saved %s (%dx%d)", path, bgr.Cols(), bgr.Rows())
	return nil
}

// IsSupported reports whether the extension of path is a known image format.
func IsSupported(path string) bool {
	return slices.Contains(supportedFormats, strings.ToLower(filepath.Ext(path)))
}

func SupportedFormats() []string {
	return []string{"JPEG", "PNG", "TIFF", "BMP"}
}

// toRGB16 converts a decoded BGR mat to the photo layout.
func toRGB16(mat gocv.Mat) (gocv.Mat, error) {
	var scale float32
	switch mat.Type() {
	case gocv.MatTypeCV8UC3:
		scale = 257
	case gocv.MatTypeCV16UC3:
		scale = 1
	case gocv.MatTypeCV32FC3:
		scale = core.QuantumRange
	default:
		return gocv.NewMat(), fmt.Errorf("unsupported pixel format: %v", mat.Type())
	}

	rgb := gocv.NewMat()
	gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)
	if scale == 1 {
		return rgb, nil
	}
	out := gocv.NewMat()
	rgb.ConvertToWithParams(&out, core.ImageType, scale, 0)
	rgb.Close()
	if out.Empty() {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("failed to convert pixels")
	}
	return out, nil
}

// fromRGB16 converts the photo layout to a BGR mat ready for encoding.
func fromRGB16(mat gocv.Mat, to8 bool) (gocv.Mat, error) {
	bgr := gocv.NewMat()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBToBGR)
	if bgr.Empty() {
		bgr.Close()
		return gocv.NewMat(), fmt.Errorf("failed to convert pixels")
	}
	if !to8 {
		return bgr, nil
	}
	out := gocv.NewMat()
	bgr.ConvertToWithParams(&out, gocv.MatTypeCV8UC3, 1./257, 0)
	bgr.Close()
	return out, nil
}
