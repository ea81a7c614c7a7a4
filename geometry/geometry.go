// Package geometry builds and transforms face mask contours.
//
// All functions are pure: they take mask dimensions and style
// parameters and return ordered, implicitly-closed point lists.
// Degenerate inputs yield empty slices rather than errors; the
// rasterizer skips anything with fewer than three points.
//
// Coordinates are mask-local with the origin at the anchor point
// (the nose) and y growing downward, matching image coordinates.
package geometry

import "math"

// Point is a 2D point in either mask-local or image coordinates.
type Point struct {
	X float64
	Y float64
}

// Liquid mask silhouette fractions. The forehead arc bows up to
// -0.55*H and the chin arc down to +0.7*H, joined by a short seam at
// +/-0.05*H, giving the asymmetric rounded-trapezoid shape.
const (
	liquidSeamHalf    = 0.05
	liquidControlX    = 0.4
	liquidForeheadTop = 0.55
	liquidChinBottom  = 0.7
)

// LiquidContour builds the two-arc "liquid" mask outline.
//
// The contour is a forehead cubic Bezier arc and a chin cubic Bezier
// arc joined by two short straight seams. Each arc contributes
// samples points, each seam 2, so the output length is deterministic:
// 2*samples + 4. Non-positive dimensions or samples return nil.
func LiquidContour(maskWidth, maskHeight float64, samples int) []Point {
	if maskWidth <= 0 || maskHeight <= 0 || samples <= 0 {
		return nil
	}

	halfW := maskWidth / 2
	seam := liquidSeamHalf * maskHeight
	topY := -liquidForeheadTop * maskHeight
	botY := liquidChinBottom * maskHeight
	ctrlX := liquidControlX * maskWidth

	pts := make([]Point, 0, 2*samples+4)

	// Forehead arc: left seam -> right seam, bowing upward.
	pts = appendBezier(pts,
		Point{-halfW, -seam},
		Point{-ctrlX, topY},
		Point{ctrlX, topY},
		Point{halfW, -seam},
		samples)

	// Right seam.
	pts = appendLine(pts, Point{halfW, -seam}, Point{halfW, seam})

	// Chin arc: right seam -> left seam, bowing downward.
	pts = appendBezier(pts,
		Point{halfW, seam},
		Point{ctrlX, botY},
		Point{-ctrlX, botY},
		Point{-halfW, seam},
		samples)

	// Left seam closes the contour implicitly.
	pts = appendLine(pts, Point{-halfW, seam}, Point{-halfW, -seam})

	return pts
}

// SuperellipseContour samples a closed superellipse around the origin.
//
// The upper half (negative y) uses upperExp and is scaled by
// upperScale, the lower half uses lowerExp and lowerScale, so the
// forehead can be tightened and the chin rounded independently.
// Exponents below ~2 square the shape off; higher values tighten it
// toward a diamond. Output length equals samples. Degenerate inputs
// return nil.
func SuperellipseContour(maskWidth, maskHeight float64, samples int, upperExp, lowerExp, upperScale, lowerScale float64) []Point {
	if maskWidth <= 0 || maskHeight <= 0 || samples <= 0 {
		return nil
	}
	if upperExp <= 0 || lowerExp <= 0 {
		return nil
	}

	a := maskWidth / 2
	b := maskHeight / 2

	pts := make([]Point, 0, samples)
	for i := 0; i < samples; i++ {
		theta := 2 * math.Pi * float64(i) / float64(samples)
		c := math.Cos(theta)
		s := math.Sin(theta)

		exp := lowerExp
		scale := lowerScale
		if s < 0 { // negative y is the upper (forehead) half
			exp = upperExp
			scale = upperScale
		}

		x := a * sign(c) * math.Pow(math.Abs(c), 2/exp)
		y := b * scale * sign(s) * math.Pow(math.Abs(s), 2/exp)
		pts = append(pts, Point{x, y})
	}
	return pts
}

// Transform rotates points by angle radians around the origin and
// translates them to center, producing image-space coordinates.
//
// The rotation convention matches FaceAngle: a positive angle from
// atan2(leftEar.Y-rightEar.Y, leftEar.X-rightEar.X) rotates the
// contour so its x axis stays aligned with the ear-to-ear line.
func Transform(points []Point, centerX, centerY, angle float64) []Point {
	if len(points) == 0 {
		return nil
	}
	sin, cos := math.Sincos(angle)
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{
			X: p.X*cos - p.Y*sin + centerX,
			Y: p.X*sin + p.Y*cos + centerY,
		}
	}
	return out
}

// FaceAngle derives the head roll angle from the two ear positions.
//
// Uses atan2(leftEar.Y-rightEar.Y, leftEar.X-rightEar.X); Transform
// applies the same convention, so the pair stays self-consistent.
func FaceAngle(leftEar, rightEar Point) float64 {
	return math.Atan2(leftEar.Y-rightEar.Y, leftEar.X-rightEar.X)
}

// ClipBelow clips the closed polygon to the half-plane y <= yLimit.
//
// In image coordinates this keeps everything at or above the limit
// row, which is how "mask nose-and-above only" variants restrict the
// contour. Sutherland-Hodgman against the single horizontal edge:
// intersection points are synthesized at the boundary, and the result
// may be shorter than the input or empty if the whole polygon lies
// below the limit. yLimit of +Inf returns a copy of the input,
// -Inf returns nil.
func ClipBelow(points []Point, yLimit float64) []Point {
	if len(points) == 0 {
		return nil
	}

	out := make([]Point, 0, len(points)+2)
	prev := points[len(points)-1]
	prevIn := prev.Y <= yLimit

	for _, cur := range points {
		curIn := cur.Y <= yLimit
		if curIn != prevIn {
			// Edge crosses the boundary; synthesize the intersection.
			t := (yLimit - prev.Y) / (cur.Y - prev.Y)
			out = append(out, Point{
				X: prev.X + t*(cur.X-prev.X),
				Y: yLimit,
			})
		}
		if curIn {
			out = append(out, cur)
		}
		prev, prevIn = cur, curIn
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// Centroid returns the arithmetic mean of the points.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sx, sy float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(points))
	return Point{sx / n, sy / n}
}

// ClampToFrame clamps a point inside [0,width-1]x[0,height-1] so the
// mask anchor never leaves the frame.
func ClampToFrame(p Point, width, height int) Point {
	return Point{
		X: clampF(p.X, 0, float64(width-1)),
		Y: clampF(p.Y, 0, float64(height-1)),
	}
}

// appendBezier samples a cubic Bezier arc at n uniform parameter
// steps, excluding t=1 so adjoining segments do not duplicate points.
func appendBezier(dst []Point, p0, p1, p2, p3 Point, n int) []Point {
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n)
		mt := 1 - t
		a := mt * mt * mt
		b := 3 * mt * mt * t
		c := 3 * mt * t * t
		d := t * t * t
		dst = append(dst, Point{
			X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
			Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
		})
	}
	return dst
}

// appendLine adds 2 interpolated samples along a straight join.
func appendLine(dst []Point, from, to Point) []Point {
	dst = append(dst, from)
	dst = append(dst, Point{(from.X + to.X) / 2, (from.Y + to.Y) / 2})
	return dst
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	if v > 0 {
		return 1
	}
	return 0
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
