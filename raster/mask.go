package raster

import (
	"github.com/opd-ai/facemask/geometry"
	"github.com/opd-ai/facemask/video"
)

// DrawMask rasterizes one mask polygon into the frame in place.
//
// YUV420 frames get the luma plane filled to opaque black and both
// chroma planes to neutral, so the region reads as pure black no
// matter what was underneath. RGB24 frames are filled solid black.
// strokeWidth > 0 additionally draws a white outline along the
// contour. Polygons with fewer than three points are ignored.
func DrawMask(frame *video.Frame, pts []geometry.Point, strokeWidth float64, scratch *Scratch) {
	if len(pts) < 3 {
		return
	}

	switch frame.Format {
	case video.FormatYUV420:
		drawMaskYUV(frame, pts, strokeWidth, scratch)
	case video.FormatRGB24:
		FillPolygonRGB(frame.Data, frame.Width, frame.Height, pts, [3]byte{0, 0, 0}, scratch)
		if strokeWidth > 0 {
			strokeRGB(frame, pts, strokeWidth)
		}
	}
}

func drawMaskYUV(frame *video.Frame, pts []geometry.Point, strokeWidth float64, scratch *Scratch) {
	FillPolygon(frame.Y, frame.Width, frame.Height, pts, FillLuma, scratch)

	// Chroma planes are quarter resolution; halve the contour.
	cw := frame.Width / 2
	ch := frame.Height / 2
	half := halfScale(pts)
	FillPolygon(frame.U, cw, ch, half, NeutralChroma, scratch)
	FillPolygon(frame.V, cw, ch, half, NeutralChroma, scratch)

	if strokeWidth > 0 {
		StrokePolyline(frame.Y, frame.Width, frame.Height, pts, strokeWidth, StrokeLuma)
		StrokePolyline(frame.U, cw, ch, half, strokeWidth/2, NeutralChroma)
		StrokePolyline(frame.V, cw, ch, half, strokeWidth/2, NeutralChroma)
	}
}

// strokeRGB runs the capsule stroke through a temporary single-channel
// mask, then writes white into the packed buffer wherever it was hit.
func strokeRGB(frame *video.Frame, pts []geometry.Point, thickness float64) {
	mask := make([]byte, frame.Width*frame.Height)
	StrokePolyline(mask, frame.Width, frame.Height, pts, thickness, 1)
	for i, m := range mask {
		if m != 0 {
			frame.Data[i*3] = 255
			frame.Data[i*3+1] = 255
			frame.Data[i*3+2] = 255
		}
	}
}

func halfScale(pts []geometry.Point) []geometry.Point {
	out := make([]geometry.Point, len(pts))
	for i, p := range pts {
		out[i] = geometry.Point{X: p.X / 2, Y: p.Y / 2}
	}
	return out
}
