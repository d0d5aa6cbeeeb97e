// Pixel buffer owned by a photo
package core

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// QuantumRange is the largest channel value of an image.
const QuantumRange = 65535

// Levels is the number of representable channel values.
const Levels = QuantumRange + 1

// ImageType is the only layout photos carry: three 16-bit channels, R,G,B.
const ImageType = gocv.MatTypeCV16UC3

const maxDimension = 65536

// Image is a 16-bit RGB pixel buffer. The zero value is empty.
type Image struct {
	mu  sync.RWMutex
	mat gocv.Mat
}

// NewImage allocates a black image.
func NewImage(width, height int) (*Image, error) {
	if width <= 0 || height <= 0 || width > maxDimension || height > maxDimension {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", width, height)
	}
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, ImageType)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to allocate %dx%d image", width, height)
	}
	return &Image{mat: mat}, nil
}

// NewImageFromMat takes ownership of mat, which must already be 16-bit RGB.
func NewImageFromMat(mat gocv.Mat) (*Image, error) {
	if err := ValidateMat(mat); err != nil {
		return nil, err
	}
	if mat.Type() != ImageType {
		return nil, fmt.Errorf("unsupported mat type: %v", mat.Type())
	}
	return &Image{mat: mat}, nil
}

// Width returns the number of columns.
func (img *Image) Width() int {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.mat.Cols()
}

// Height returns the number of rows.
func (img *Image) Height() int {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.mat.Rows()
}

// Empty reports whether no pixels are allocated.
func (img *Image) Empty() bool {
	if img == nil {
		return true
	}
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.mat.Ptr() == nil || img.mat.Empty()
}

// Clone returns an independent copy of the buffer. Cloning a released
// image yields an empty one.
func (img *Image) Clone() *Image {
	img.mu.RLock()
	defer img.mu.RUnlock()
	if img.mat.Ptr() == nil {
		return &Image{}
	}
	return &Image{mat: img.mat.Clone()}
}

// Mat exposes the underlying buffer. The caller must not close it.
func (img *Image) Mat() *gocv.Mat {
	return &img.mat
}

// Replace swaps the buffer for mat and closes the previous one.
func (img *Image) Replace(mat gocv.Mat) error {
	if err := ValidateMat(mat); err != nil {
		return err
	}
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.mat.Ptr() != nil {
		img.mat.Close()
	}
	img.mat = mat
	return nil
}

// Close releases the buffer.
func (img *Image) Close() {
	if img == nil {
		return
	}
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.mat.Ptr() != nil {
		img.mat.Close()
	}
	img.mat = gocv.Mat{}
}

// ValidateMat validates an OpenCV Mat for basic requirements
func ValidateMat(mat gocv.Mat) error {
	if mat.Ptr() == nil || mat.Empty() {
		return fmt.Errorf("image is empty")
	}

	if mat.Cols() <= 0 || mat.Rows() <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", mat.Cols(), mat.Rows())
	}

	if mat.Cols() > maxDimension || mat.Rows() > maxDimension {
		return fmt.Errorf("image too large: %dx%d (max: %d)", mat.Cols(), mat.Rows(), maxDimension)
	}

	if mat.Channels() != 3 {
		return fmt.Errorf("unsupported channel count: %d", mat.Channels())
	}

	return nil
}
