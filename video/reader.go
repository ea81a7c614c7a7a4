package video

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// ErrTruncatedStream indicates the upstream ended mid-frame.
var ErrTruncatedStream = errors.New("stream ended inside a frame")

// StreamReader slices an unframed byte stream into fixed-size frames.
//
// Upstream chunk boundaries carry no meaning: bytes are accumulated in
// a pending buffer and exactly one frame-sized slice is cut off per
// Next call, so frame alignment is never lost no matter how the
// upstream writer chunks its output.
type StreamReader struct {
	r         io.Reader
	width     int
	height    int
	format    PixelFormat
	frameSize int

	pending []byte
	chunk   []byte
	frames  uint64
}

// NewStreamReader creates a frame slicer over r for the given geometry.
func NewStreamReader(r io.Reader, width, height int, format PixelFormat) (*StreamReader, error) {
	size, err := FrameSize(width, height, format)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewStreamReader",
		"width":      width,
		"height":     height,
		"format":     format.String(),
		"frame_size": size,
	}).Debug("Creating raw frame stream reader")

	return &StreamReader{
		r:         r,
		width:     width,
		height:    height,
		format:    format,
		frameSize: size,
		pending:   make([]byte, 0, size*2),
		chunk:     make([]byte, 64*1024),
	}, nil
}

// FrameSize returns the fixed byte length of one frame.
func (sr *StreamReader) FrameSize() int {
	return sr.frameSize
}

// FrameCount returns the number of complete frames returned so far.
func (sr *StreamReader) FrameCount() uint64 {
	return sr.frames
}

// Next returns the next complete frame.
//
// Returns io.EOF when the upstream ends exactly on a frame boundary,
// and ErrTruncatedStream when it ends with a partial frame pending.
// The returned frame owns a fresh buffer; it is never aliased by a
// later Next call.
func (sr *StreamReader) Next() (*Frame, error) {
	for len(sr.pending) < sr.frameSize {
		n, err := sr.r.Read(sr.chunk)
		if n > 0 {
			sr.pending = append(sr.pending, sr.chunk[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				if len(sr.pending) == 0 {
					return nil, io.EOF
				}
				if len(sr.pending) < sr.frameSize {
					logrus.WithFields(logrus.Fields{
						"function":      "StreamReader.Next",
						"pending_bytes": len(sr.pending),
						"frame_size":    sr.frameSize,
					}).Error("Upstream ended inside a frame")
					return nil, fmt.Errorf("%w: %d of %d bytes", ErrTruncatedStream, len(sr.pending), sr.frameSize)
				}
				break
			}
			return nil, fmt.Errorf("reading frame stream: %w", err)
		}
	}

	buf := make([]byte, sr.frameSize)
	copy(buf, sr.pending[:sr.frameSize])
	// Keep leftover bytes for the next frame.
	rest := copy(sr.pending, sr.pending[sr.frameSize:])
	sr.pending = sr.pending[:rest]

	frame, err := FrameFromBytes(sr.width, sr.height, sr.format, buf)
	if err != nil {
		return nil, err
	}
	sr.frames++
	return frame, nil
}
