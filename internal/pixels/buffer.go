// Row access to photo pixel buffers
package pixels

import (
	"errors"

	"photoflow/internal/core"
)

// ErrUnavailable is returned when a row range of a buffer cannot be accessed.
var ErrUnavailable = errors.New("null pixels")

// Buffer gives row-range access to an RGB image. Row slices are interleaved
// R,G,B; pixel x of a row starts at index 3*x. A nil slice means the rows
// are unavailable.
type Buffer interface {
	Rows() int
	Columns() int
	ConstRows(y, n int) []uint16
	MutableRows(y, n int) []uint16
	Sync() error
}

// MatBuffer is a Buffer over the gocv storage of an image.
type MatBuffer struct {
	data []uint16
	cols int
	rows int
	err  error
}

// NewMatBuffer maps img. When the image cannot be mapped every accessor
// returns nil and Sync reports the cause.
func NewMatBuffer(img *core.Image) *MatBuffer {
	b := &MatBuffer{}
	if img.Empty() {
		b.err = ErrUnavailable
		return b
	}
	data, err := img.Mat().DataPtrUint16()
	if err != nil {
		b.err = err
		return b
	}
	b.data = data
	b.cols = img.Width()
	b.rows = img.Height()
	return b
}

func (b *MatBuffer) Rows() int    { return b.rows }
func (b *MatBuffer) Columns() int { return b.cols }

// ConstRows returns rows [y, y+n). The caller must not write to it.
func (b *MatBuffer) ConstRows(y, n int) []uint16 {
	return b.slice(y, n)
}

// MutableRows returns rows [y, y+n) for writing.
func (b *MatBuffer) MutableRows(y, n int) []uint16 {
	return b.slice(y, n)
}

// Sync commits written rows. The mapping is direct, so only a failed
// mapping is reported.
func (b *MatBuffer) Sync() error {
	return b.err
}

func (b *MatBuffer) slice(y, n int) []uint16 {
	if b.data == nil || y < 0 || n <= 0 || y+n > b.rows {
		return nil
	}
	stride := 3 * b.cols
	return b.data[y*stride : (y+n)*stride : (y+n)*stride]
}
