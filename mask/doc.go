// Package mask implements the streaming frame masking pipeline.
//
// The pipeline is a single sequential consumer of one raw byte
// stream:
//
//	stdin bytes → frame slicing → (detect?) → geometry → rasterize → stdout bytes
//
// Per frame it asks the detection scheduler whether to run pose
// inference, converts the frame into the detector's tensor layout
// when it does, derives a mask polygon per valid pose, rasterizes the
// polygons into the frame's pixel planes in place, and emits the
// frame downstream. Emission is a plain blocking write, which is the
// backpressure contract: when downstream cannot accept bytes the
// pipeline stalls, it never drops a frame.
//
// Frames are processed and emitted strictly in arrival order. A
// failed or skipped detection falls back through prediction, last
// pose and pose history before a frame is ever passed through
// unmasked. Degenerate geometry (fewer than three points after
// clipping, non-positive mask size) silently skips that one pose for
// that one frame. An estimator error terminates the whole stage.
package mask
