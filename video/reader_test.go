package video

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader yields its payload in fixed-size chunks, simulating an
// upstream pipe with arbitrary chunk boundaries.
type chunkReader struct {
	data  []byte
	chunk int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.chunk
	if n > len(c.data) {
		n = len(c.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func TestStreamReader_AlignmentAcrossChunkSizes(t *testing.T) {
	const w, h = 8, 8
	frameSize, err := FrameSize(w, h, FormatYUV420)
	require.NoError(t, err)

	// Three frames with distinct fill values.
	stream := make([]byte, 0, 3*frameSize)
	for v := byte(1); v <= 3; v++ {
		stream = append(stream, bytes.Repeat([]byte{v}, frameSize)...)
	}

	// Chunk sizes chosen to straddle frame boundaries in every way.
	for _, chunk := range []int{1, 7, frameSize - 1, frameSize, frameSize + 13, 3 * frameSize} {
		sr, err := NewStreamReader(&chunkReader{data: append([]byte(nil), stream...), chunk: chunk}, w, h, FormatYUV420)
		require.NoError(t, err)

		for v := byte(1); v <= 3; v++ {
			frame, err := sr.Next()
			require.NoError(t, err, "chunk size %d frame %d", chunk, v)
			assert.Equal(t, v, frame.Data[0])
			assert.Equal(t, v, frame.Data[frameSize-1])
		}

		_, err = sr.Next()
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, uint64(3), sr.FrameCount())
	}
}

func TestStreamReader_FreshBufferPerFrame(t *testing.T) {
	const w, h = 4, 4
	frameSize, _ := FrameSize(w, h, FormatYUV420)
	stream := append(bytes.Repeat([]byte{1}, frameSize), bytes.Repeat([]byte{2}, frameSize)...)

	sr, err := NewStreamReader(bytes.NewReader(stream), w, h, FormatYUV420)
	require.NoError(t, err)

	first, err := sr.Next()
	require.NoError(t, err)
	second, err := sr.Next()
	require.NoError(t, err)

	// Mutating the second frame must not touch the first.
	second.Data[0] = 99
	assert.Equal(t, byte(1), first.Data[0])
}

func TestStreamReader_TruncatedStream(t *testing.T) {
	const w, h = 8, 8
	frameSize, _ := FrameSize(w, h, FormatYUV420)

	sr, err := NewStreamReader(bytes.NewReader(make([]byte, frameSize+10)), w, h, FormatYUV420)
	require.NoError(t, err)

	_, err = sr.Next()
	require.NoError(t, err)

	_, err = sr.Next()
	assert.ErrorIs(t, err, ErrTruncatedStream)
}

func TestStreamReader_EmptyStream(t *testing.T) {
	sr, err := NewStreamReader(bytes.NewReader(nil), 8, 8, FormatYUV420)
	require.NoError(t, err)

	_, err = sr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFillTensor(t *testing.T) {
	t.Run("luma only duplicates channels", func(t *testing.T) {
		frame, err := NewFrame(16, 16, FormatYUV420)
		require.NoError(t, err)
		for i := range frame.Y {
			frame.Y[i] = 120
		}

		tensor := NewTensor(8, 8)
		require.NoError(t, frame.FillTensor(tensor, true))

		for i := 0; i < len(tensor.Data); i += 3 {
			assert.Equal(t, float32(120), tensor.Data[i])
			assert.Equal(t, tensor.Data[i], tensor.Data[i+1])
			assert.Equal(t, tensor.Data[i], tensor.Data[i+2])
		}
	})

	t.Run("neutral chroma converts to gray rgb", func(t *testing.T) {
		frame, err := NewFrame(8, 8, FormatYUV420)
		require.NoError(t, err)
		for i := range frame.Y {
			frame.Y[i] = 100
		}
		for i := range frame.U {
			frame.U[i] = 128
			frame.V[i] = 128
		}

		tensor := NewTensor(8, 8)
		require.NoError(t, frame.FillTensor(tensor, false))

		for i := 0; i < len(tensor.Data); i += 3 {
			assert.InDelta(t, 100, tensor.Data[i], 0.5)
			assert.InDelta(t, 100, tensor.Data[i+1], 0.5)
			assert.InDelta(t, 100, tensor.Data[i+2], 0.5)
		}
	})

	t.Run("rgb24 copies channels", func(t *testing.T) {
		frame, err := NewFrame(4, 4, FormatRGB24)
		require.NoError(t, err)
		for i := 0; i < 4*4; i++ {
			frame.Data[i*3] = 10
			frame.Data[i*3+1] = 20
			frame.Data[i*3+2] = 30
		}

		tensor := NewTensor(4, 4)
		require.NoError(t, frame.FillTensor(tensor, false))

		assert.Equal(t, float32(10), tensor.Data[0])
		assert.Equal(t, float32(20), tensor.Data[1])
		assert.Equal(t, float32(30), tensor.Data[2])
	})

	t.Run("mis-sized tensor rejected", func(t *testing.T) {
		frame, err := NewFrame(4, 4, FormatRGB24)
		require.NoError(t, err)

		bad := &Tensor{Width: 4, Height: 4, Data: make([]float32, 5)}
		assert.ErrorIs(t, frame.FillTensor(bad, false), ErrFrameSizeMismatch)
	})
}
