package video

import (
	"errors"
	"fmt"
)

// Frame layout and validation errors.
var (
	// ErrOddDimensions indicates width or height is not even for YUV420.
	ErrOddDimensions = errors.New("width and height must be even for YUV420")

	// ErrInvalidDimensions indicates a non-positive width or height.
	ErrInvalidDimensions = errors.New("invalid frame dimensions")

	// ErrFrameSizeMismatch indicates a byte buffer of the wrong length.
	ErrFrameSizeMismatch = errors.New("frame buffer size mismatch")

	// ErrUnknownFormat indicates an unrecognized pixel format.
	ErrUnknownFormat = errors.New("unknown pixel format")
)

// PixelFormat identifies the raw pixel layout of a frame.
type PixelFormat uint8

const (
	// FormatYUV420 is planar 4:2:0: full-resolution luma plane followed
	// by two quarter-resolution chroma planes.
	FormatYUV420 PixelFormat = iota

	// FormatRGB24 is packed 8-bit RGB, 3 bytes per pixel, row-major.
	FormatRGB24
)

// String returns the ffmpeg-style name of the format.
func (f PixelFormat) String() string {
	switch f {
	case FormatYUV420:
		return "yuv420p"
	case FormatRGB24:
		return "rgb24"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// FrameSize returns the exact byte length of one raw frame.
//
// YUV420 requires even dimensions because of chroma subsampling;
// odd dimensions are rejected rather than rounded so the caller never
// gets a silently altered aspect ratio.
func FrameSize(width, height int, format PixelFormat) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	switch format {
	case FormatYUV420:
		if width%2 != 0 || height%2 != 0 {
			return 0, fmt.Errorf("%w: got %dx%d", ErrOddDimensions, width, height)
		}
		return width*height + 2*(width/2)*(height/2), nil
	case FormatRGB24:
		return width * height * 3, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownFormat, uint8(format))
	}
}

// Frame is one raw video frame backed by a single byte buffer.
//
// For YUV420 frames the Y, U and V fields are sub-slices of Data at
// fixed offsets; writing through them mutates the frame in place. For
// RGB24 frames the plane fields are nil and Data holds packed pixels.
type Frame struct {
	Width  int
	Height int
	Format PixelFormat
	Data   []byte

	Y []byte // Luma plane (YUV420 only)
	U []byte // Chroma U plane (YUV420 only)
	V []byte // Chroma V plane (YUV420 only)
}

// NewFrame allocates a zeroed frame of the given geometry.
func NewFrame(width, height int, format PixelFormat) (*Frame, error) {
	size, err := FrameSize(width, height, format)
	if err != nil {
		return nil, err
	}
	return frameOver(width, height, format, make([]byte, size)), nil
}

// FrameFromBytes wraps an existing buffer as a frame without copying.
//
// The buffer length must be exactly FrameSize(width, height, format).
func FrameFromBytes(width, height int, format PixelFormat, data []byte) (*Frame, error) {
	size, err := FrameSize(width, height, format)
	if err != nil {
		return nil, err
	}
	if len(data) != size {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrFrameSizeMismatch, size, len(data))
	}
	return frameOver(width, height, format, data), nil
}

func frameOver(width, height int, format PixelFormat, data []byte) *Frame {
	f := &Frame{
		Width:  width,
		Height: height,
		Format: format,
		Data:   data,
	}
	if format == FormatYUV420 {
		ySize := width * height
		cSize := (width / 2) * (height / 2)
		f.Y = data[:ySize]
		f.U = data[ySize : ySize+cSize]
		f.V = data[ySize+cSize : ySize+2*cSize]
	}
	return f
}

// Bytes returns the frame's backing buffer, ready for raw emission.
func (f *Frame) Bytes() []byte {
	return f.Data
}

// Luma returns a single-channel view of the frame for motion analysis.
//
// For YUV420 this is the Y plane itself. For RGB24 a BT.601 luma
// approximation is computed into dst, which is grown as needed.
func (f *Frame) Luma(dst []byte) []byte {
	if f.Format == FormatYUV420 {
		return f.Y
	}
	n := f.Width * f.Height
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	for i := 0; i < n; i++ {
		r := int(f.Data[i*3])
		g := int(f.Data[i*3+1])
		b := int(f.Data[i*3+2])
		// Integer BT.601: Y = 0.299R + 0.587G + 0.114B
		dst[i] = byte((299*r + 587*g + 114*b) / 1000)
	}
	return dst
}
