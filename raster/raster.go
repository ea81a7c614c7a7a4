// Package raster draws filled and stroked mask polygons directly into
// raw pixel planes.
//
// The fill is a classic scan-line even-odd fill, the stroke a
// capsule-distance test per polygon edge. There is no graphics-context
// abstraction: all writes are direct byte stores into the plane, which
// keeps the rasterizer portable and exactly specifiable.
//
// Pixel conventions used throughout: scanlines are sampled at y+0.5 to
// avoid vertex-on-scanline ambiguity, fractional x coordinates are
// truncated with a +0.5 bias (pixel centers), and every coordinate is
// clamped to [0, dim-1] before a write.
package raster

import (
	"math"
	"sort"

	"github.com/opd-ai/facemask/geometry"
)

// Luma and chroma values written by the YUV mask helpers. Chroma is
// held at neutral 128 so no color bleeds through regardless of luma.
const (
	FillLuma     = 0
	StrokeLuma   = 255
	NeutralChroma = 128
)

// Scratch holds the reusable scan-line intersection buffer.
//
// The masking pipeline owns one Scratch per stream and passes it into
// every rasterizer call; the rasterizer never retains it after a call
// returns.
type Scratch struct {
	xs []float64
}

// FillPolygon fills the closed polygon into a single-channel plane
// using the even-odd rule. Polygons with fewer than three points are
// skipped silently; that is the normal signal for degenerate or
// fully clipped geometry.
func FillPolygon(plane []byte, width, height int, pts []geometry.Point, fill byte, scratch *Scratch) {
	fillSpans(width, height, pts, scratch, func(y, x0, x1 int) {
		row := plane[y*width:]
		for x := x0; x <= x1; x++ {
			row[x] = fill
		}
	})
}

// FillPolygonRGB fills the closed polygon into a packed RGB24 buffer.
func FillPolygonRGB(pix []byte, width, height int, pts []geometry.Point, rgb [3]byte, scratch *Scratch) {
	fillSpans(width, height, pts, scratch, func(y, x0, x1 int) {
		for x := x0; x <= x1; x++ {
			i := (y*width + x) * 3
			pix[i] = rgb[0]
			pix[i+1] = rgb[1]
			pix[i+2] = rgb[2]
		}
	})
}

// fillSpans computes even-odd spans per scanline and hands inclusive
// [x0,x1] runs to emit. Horizontal edges are skipped; an odd
// intersection count (numerically possible at near-degenerate
// vertices) drops the unpaired tail intersection.
func fillSpans(width, height int, pts []geometry.Point, scratch *Scratch, emit func(y, x0, x1 int)) {
	if len(pts) < 3 {
		return
	}

	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	yStart := clampInt(int(math.Floor(minY)), 0, height-1)
	yEnd := clampInt(int(math.Ceil(maxY)), 0, height-1)

	for y := yStart; y <= yEnd; y++ {
		yc := float64(y) + 0.5
		xs := scratch.xs[:0]

		prev := pts[len(pts)-1]
		for _, cur := range pts {
			if prev.Y != cur.Y {
				// Half-open test so a vertex on the scanline counts once.
				if (prev.Y <= yc && yc < cur.Y) || (cur.Y <= yc && yc < prev.Y) {
					t := (yc - prev.Y) / (cur.Y - prev.Y)
					xs = append(xs, prev.X+t*(cur.X-prev.X))
				}
			}
			prev = cur
		}
		scratch.xs = xs

		if len(xs) < 2 {
			continue
		}
		sort.Float64s(xs)

		for i := 0; i+1 < len(xs); i += 2 {
			x0 := clampInt(int(math.Floor(xs[i]+0.5)), 0, width-1)
			x1 := clampInt(int(math.Floor(xs[i+1]+0.5)), 0, width-1)
			if x1 < x0 {
				continue
			}
			emit(y, x0, x1)
		}
	}
}

// StrokePolyline draws the closed polygon outline into a
// single-channel plane with round caps and joins.
//
// Each edge is rendered as a capsule: every pixel in the edge's padded
// bounding box whose squared distance to the segment is within
// radius^2 receives value. A thickness of zero or less disables
// stroking entirely.
func StrokePolyline(plane []byte, width, height int, pts []geometry.Point, thickness float64, value byte) {
	if thickness <= 0 || len(pts) < 2 {
		return
	}
	radius := thickness / 2
	r2 := radius * radius

	prev := pts[len(pts)-1]
	for _, cur := range pts {
		strokeSegment(plane, width, height, prev, cur, radius, r2, value)
		prev = cur
	}
}

func strokeSegment(plane []byte, width, height int, a, b geometry.Point, radius, r2 float64, value byte) {
	minX := clampInt(int(math.Floor(math.Min(a.X, b.X)-radius)), 0, width-1)
	maxX := clampInt(int(math.Ceil(math.Max(a.X, b.X)+radius)), 0, width-1)
	minY := clampInt(int(math.Floor(math.Min(a.Y, b.Y)-radius)), 0, height-1)
	maxY := clampInt(int(math.Ceil(math.Max(a.Y, b.Y)+radius)), 0, height-1)

	dx := b.X - a.X
	dy := b.Y - a.Y
	lenSq := dx*dx + dy*dy

	for y := minY; y <= maxY; y++ {
		py := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float64(x) + 0.5
			if distSqToSegment(px, py, a, b, dx, dy, lenSq) <= r2 {
				plane[y*width+x] = value
			}
		}
	}
}

// distSqToSegment returns the squared distance from (px,py) to the
// segment a-b, with the segment direction and squared length
// precomputed by the caller.
func distSqToSegment(px, py float64, a, b geometry.Point, dx, dy, lenSq float64) float64 {
	if lenSq == 0 {
		ddx := px - a.X
		ddy := py - a.Y
		return ddx*ddx + ddy*ddy
	}
	t := ((px-a.X)*dx + (py-a.Y)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	cx := a.X + t*dx
	cy := a.Y + t*dy
	ddx := px - cx
	ddy := py - cy
	return ddx*ddx + ddy*ddy
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
