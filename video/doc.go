// Package video provides raw frame handling for the masking pipeline.
//
// This package implements the frame codec adapter: fixed-size raw frame
// materialization from a byte stream, planar YUV420 and packed RGB24
// layouts, and conversion of pixel data into the tensor layout expected
// by the pose detector.
//
// Frame layout for YUV420:
//
//	[Y plane: width*height][U plane: (width/2)*(height/2)][V plane: (width/2)*(height/2)]
//
// Frame layout for RGB24:
//
//	[R G B, R G B, ...] row-major, width*height*3 bytes
//
// Frames are materialized once per decode cycle, mutated in place by the
// rasterizer, then handed downstream and discarded. The StreamReader
// guarantees frame alignment regardless of upstream chunk boundaries.
package video
