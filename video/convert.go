package video

import "fmt"

// Tensor is an interleaved 3-channel RGB image in the layout the pose
// detector consumes. Values are 0..255 stored as float32.
//
// One Tensor is owned by the masking pipeline and refilled every
// detection cycle; it is never retained by the estimator past a call.
type Tensor struct {
	Width  int
	Height int
	Data   []float32 // len = Width*Height*3, RGB interleaved
}

// NewTensor allocates a tensor of the given detection resolution.
func NewTensor(width, height int) *Tensor {
	return &Tensor{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height*3),
	}
}

// FillTensor converts the frame into t, downsampling to the tensor's
// resolution with nearest-neighbor sampling.
//
// When lumaOnly is set (or the frame is YUV420 and chroma is to be
// ignored), the luma value is duplicated across all three channels;
// otherwise a full BT.601 YUV→RGB conversion is performed. RGB24
// frames copy channels directly.
func (f *Frame) FillTensor(t *Tensor, lumaOnly bool) error {
	if t == nil || len(t.Data) != t.Width*t.Height*3 {
		return fmt.Errorf("%w: tensor not sized %dx%dx3", ErrFrameSizeMismatch, t.Width, t.Height)
	}

	for ty := 0; ty < t.Height; ty++ {
		sy := ty * f.Height / t.Height
		for tx := 0; tx < t.Width; tx++ {
			sx := tx * f.Width / t.Width
			i := (ty*t.Width + tx) * 3

			var r, g, b float32
			switch {
			case f.Format == FormatRGB24:
				p := (sy*f.Width + sx) * 3
				r = float32(f.Data[p])
				g = float32(f.Data[p+1])
				b = float32(f.Data[p+2])
			case lumaOnly:
				y := float32(f.Y[sy*f.Width+sx])
				r, g, b = y, y, y
			default:
				r, g, b = f.yuvAt(sx, sy)
			}

			t.Data[i] = r
			t.Data[i+1] = g
			t.Data[i+2] = b
		}
	}
	return nil
}

// yuvAt converts one YUV420 pixel to RGB using BT.601 full-range math.
func (f *Frame) yuvAt(x, y int) (r, g, b float32) {
	cw := f.Width / 2
	yv := float32(f.Y[y*f.Width+x])
	u := float32(f.U[(y/2)*cw+(x/2)]) - 128
	v := float32(f.V[(y/2)*cw+(x/2)]) - 128

	r = clamp255(yv + 1.402*v)
	g = clamp255(yv - 0.344136*u - 0.714136*v)
	b = clamp255(yv + 1.772*u)
	return r, g, b
}

func clamp255(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
