// Package pose wraps the external keypoint detector behind a small
// adapter interface and derives face geometry from its output.
//
// The detector itself is an opaque capability: an image tensor goes
// in, zero or more candidate poses come out, each with an overall
// confidence and a set of named joints. Different backends name their
// joints differently (leftEar vs left_ear vs "Left Ear"); every pose
// passes through CanonicalJoint immediately after estimation so one
// naming scheme is used everywhere downstream.
package pose

import (
	"math"
	"strings"

	"github.com/opd-ai/facemask/geometry"
)

// Canonical joint names in COCO-17 order. Downstream code only ever
// needs the first five (the face), but backends report all of them.
var JointNames = []string{
	"nose",
	"leftEye", "rightEye",
	"leftEar", "rightEar",
	"leftShoulder", "rightShoulder",
	"leftElbow", "rightElbow",
	"leftWrist", "rightWrist",
	"leftHip", "rightHip",
	"leftKnee", "rightKnee",
	"leftAnkle", "rightAnkle",
}

// Face joints required for a pose to be usable for masking.
const (
	JointNose     = "nose"
	JointLeftEar  = "leftEar"
	JointRightEar = "rightEar"
)

// Keypoint is one named landmark in detection-resolution pixel
// coordinates with a confidence score in [0,1].
type Keypoint struct {
	Name  string
	X     float64
	Y     float64
	Score float64
}

// Pose is one detected figure: an overall confidence plus keypoints
// indexed by canonical joint name.
type Pose struct {
	Score     float64
	Keypoints map[string]Keypoint
}

// Keypoint returns the named joint, if the pose carries it.
func (p Pose) Keypoint(name string) (Keypoint, bool) {
	kp, ok := p.Keypoints[name]
	return kp, ok
}

// HasFace reports whether the pose carries a nose and both ears, each
// scoring at or above threshold. Only such poses are valid for
// masking.
func (p Pose) HasFace(threshold float64) bool {
	for _, name := range []string{JointNose, JointLeftEar, JointRightEar} {
		kp, ok := p.Keypoints[name]
		if !ok || kp.Score < threshold {
			return false
		}
	}
	return true
}

// CanonicalJoint normalizes a backend joint name to the scheme in
// JointNames. Underscore, hyphen and space separated forms collapse
// to lower camel case: "left_ear", "Left Ear" and "LEFT-EAR" all map
// to "leftEar". Already-canonical names pass through unchanged.
func CanonicalJoint(name string) string {
	sep := strings.ContainsAny(name, "_- ")
	if !sep {
		// Lowercase the leading rune only; trust the rest.
		if name == "" {
			return name
		}
		return strings.ToLower(name[:1]) + name[1:]
	}

	parts := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	if len(parts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// Canonicalize rewrites every keypoint of the pose under its
// canonical joint name.
func Canonicalize(p Pose) Pose {
	out := Pose{
		Score:     p.Score,
		Keypoints: make(map[string]Keypoint, len(p.Keypoints)),
	}
	for _, kp := range p.Keypoints {
		kp.Name = CanonicalJoint(kp.Name)
		out.Keypoints[kp.Name] = kp
	}
	return out
}

// FaceGeometry is the per-frame snapshot the scheduler and mask
// builder work from: nose anchor, ear positions, derived roll angle
// and mask dimensions, all in full frame coordinates.
type FaceGeometry struct {
	Nose       geometry.Point
	LeftEar    geometry.Point
	RightEar   geometry.Point
	Angle      float64
	FaceWidth  float64
	MaskWidth  float64
	MaskHeight float64
}

// Mask size as fractions of the ear-to-ear distance. The width
// overshoots the ears so the mask reaches past the cheeks; the height
// covers forehead through chin.
const (
	maskWidthFactor  = 1.8
	maskHeightFactor = 2.2
)

// ExtractFaceGeometry validates the pose and derives its face
// geometry.
//
// Keypoints are scaled from detection resolution to frame resolution
// by (scaleX, scaleY); maskScaleW/maskScaleH are the user's size
// knobs. The nose anchor is clamped inside the frame. Returns false
// when the pose has no usable face or the geometry degenerates
// (coincident ears).
func ExtractFaceGeometry(p Pose, scaleX, scaleY float64, cfg GeometryConfig) (FaceGeometry, bool) {
	if !p.HasFace(cfg.ScoreThreshold) {
		return FaceGeometry{}, false
	}

	nose := p.Keypoints[JointNose]
	le := p.Keypoints[JointLeftEar]
	re := p.Keypoints[JointRightEar]

	g := FaceGeometry{
		Nose:     geometry.Point{X: nose.X * scaleX, Y: nose.Y * scaleY},
		LeftEar:  geometry.Point{X: le.X * scaleX, Y: le.Y * scaleY},
		RightEar: geometry.Point{X: re.X * scaleX, Y: re.Y * scaleY},
	}

	dx := g.LeftEar.X - g.RightEar.X
	dy := g.LeftEar.Y - g.RightEar.Y
	g.FaceWidth = math.Hypot(dx, dy)
	if g.FaceWidth <= 0 {
		return FaceGeometry{}, false
	}

	g.Angle = geometry.FaceAngle(g.LeftEar, g.RightEar)
	g.MaskWidth = g.FaceWidth * maskWidthFactor * cfg.MaskScaleW
	g.MaskHeight = g.FaceWidth * maskHeightFactor * cfg.MaskScaleH

	if cfg.FrameWidth > 0 && cfg.FrameHeight > 0 {
		g.Nose = geometry.ClampToFrame(g.Nose, cfg.FrameWidth, cfg.FrameHeight)
	}
	return g, true
}

// GeometryConfig carries the knobs ExtractFaceGeometry needs.
type GeometryConfig struct {
	ScoreThreshold float64
	MaskScaleW     float64
	MaskScaleH     float64
	FrameWidth     int
	FrameHeight    int
}

